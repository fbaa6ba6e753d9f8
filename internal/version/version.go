// Package version holds build metadata stamped in via -ldflags, e.g.
//
//	go build -ldflags "-X .../internal/version.Version=1.2.0"
//
// It is reported in startup logs and on the health endpoint.
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)
