// Package version exposes build identification for linedex binaries and
// embedders. The variables are overridden at link time via -ldflags.
package version

// Version is the linedex release version.
var Version = "dev"

// GitHash is the Git hash of the source tree this binary was built from.
var GitHash = "<unknown>"
