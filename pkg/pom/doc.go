// Package pom reads the subset of a Maven project descriptor needed to mirror
// its dependencies: the project coordinate, an optional parent, properties,
// dependencies and dependency management.
//
// Property placeholders (${name}) are left untouched by [Parse]. A [Scope]
// expands them using, in priority order, the descriptor's declared
// properties, the implicit project properties (project.version,
// project.groupId, ...) and caller-supplied overrides.
//
// Only locally supplied content is considered; parent descriptors are never
// fetched.
package pom
