// Package version exposes build metadata for the governor binaries.
// The variables are set with -ldflags at build time.
package version

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
)

var (
	// Version is the release tag or commit hash.
	// Set via: -ldflags "-X metricgovernor/internal/version.Version=..."
	Version = "unknown"

	// BuildDate is the UTC build timestamp.
	// Set via: -ldflags "-X metricgovernor/internal/version.BuildDate=..."
	BuildDate = "unknown"

	// GitCommit is the source commit SHA.
	// Set via: -ldflags "-X metricgovernor/internal/version.GitCommit=..."
	GitCommit = "unknown"
)

// Info is build metadata plus the identity of this process. InstanceID tags
// every status report so reports from several agents can share one store.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns the process build info. The instance ID and hostname are
// resolved once.
func GetInfo() Info {
	once.Do(func() {
		info = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			InstanceID: uuid.New().String(),
			Hostname:   getHostname(),
		}
	})
	return info
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// LogAttrs returns the attributes attached to every log record.
func (i Info) LogAttrs() []any {
	return []any{
		slog.String("version", i.Version),
		slog.String("git_commit", i.GitCommit),
		slog.String("instance_id", i.InstanceID),
	}
}

// String formats version info for CLI display.
func (i Info) String() string {
	return fmt.Sprintf("metricgovernor %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
}
