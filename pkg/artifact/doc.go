// Package artifact describes Maven-style artifact coordinates and maps them
// onto the standard repository layout.
//
// # Coordinates
//
// A coordinate is written as
//
//	groupId:artifactId:version[:type[:classifier]]
//
// and parsed with [Parse]. The type defaults to "jar".
//
// # Repository Layout
//
//	{groupId with dots as slashes}/{artifactId}/{version}/{artifactId}-{version}[-{classifier}].{extension}
//
// For example org.example:lib:1.0:jar:sources lives at
//
//	org/example/lib/1.0/lib-1.0-sources.jar
//
// Every artifact except a descriptor itself has a descriptor (POM) at the
// same groupId, artifactId and version; see [Coordinate.POM].
//
// # Checksums
//
// Each repository file has checksum companions whose content is the lowercase
// hex digest of the file. The supported algorithms are [MD5] and [SHA1].
package artifact
