// Package version exposes build metadata for keygate binaries. The
// variables are stamped at link time with -ldflags.
package version

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

var (
	// Version is the release tag or commit hash.
	// Set via: -ldflags "-X keygate/internal/version.Version=..."
	Version = "unknown"

	// BuildDate is the ISO 8601 UTC build timestamp.
	BuildDate = "unknown"

	// GitCommit is the commit SHA the binary was built from.
	GitCommit = "unknown"
)

// Info holds build metadata plus identifiers for this process.
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

// GetInfo returns build metadata. InstanceID and Hostname are resolved on
// the first call and reused for the life of the process so every log line
// and metric from one gate instance carries the same identity.
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

// String formats version info for `keygate version`.
func (i Info) String() string {
	return fmt.Sprintf("keygate version %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
}

// UserAgent is sent by the admin CLI client.
func (i Info) UserAgent() string {
	return "keygate-cli/" + i.Version
}
