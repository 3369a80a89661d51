// Package version holds the build-time version string, overridden via
// -ldflags at release build time (the same mechanism the teacher uses for
// its own Version var).
package version

// Version is overwritten by the release build; "dev" otherwise.
var Version = "dev"
