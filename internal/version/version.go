package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// UserAgent identifies this build to the ingestion service.
func UserAgent() string {
	return fmt.Sprintf("fabric-inspector/%s (%s)", Version, GitSHA)
}

// String returns a one-line description for the -version flag.
func String() string {
	return fmt.Sprintf("fabric-inspector %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
