// Package config defines configuration structures for the offliner CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (OFFLINER_ prefix)
//   - YAML configuration file
//
// Sources are applied in that order of precedence, flags winning. Durations
// are written as Go duration strings ("500ms", "1m").
//
// # Example
//
//	mirrors:
//	  - https://repo1.maven.org/maven2
//	  - https://mirror.example.com/maven
//	output: ./repository
//	locations:
//	  - pom.xml
//	  - extra-artifacts.txt
//	properties:
//	  version.org.slf4j: 2.0.13
//	retry:
//	  attempts: 3
//	  backoff: 500ms
package config
