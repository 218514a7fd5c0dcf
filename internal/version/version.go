// Package version carries build identification, stamped in via -ldflags at
// release time.
package version

var (
	// Version is the agent release version.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
)
