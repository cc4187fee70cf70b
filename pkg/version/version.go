package version

import (
	"runtime"
	"runtime/debug"
)

// Build variables injected with ldflags:
// -X 'github.com/kiriru/mistral-relay/pkg/version.Version=v1.0.0'
// -X 'github.com/kiriru/mistral-relay/pkg/version.CommitHash=abc123'
// -X 'github.com/kiriru/mistral-relay/pkg/version.BuildDate=2024-01-01T00:00:00Z'
var (
	Version    = "unknown"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// Info returns build information in a structured format
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildDate  string `json:"build_date"`
	GoVersion  string `json:"go_version"`
}

// Get returns the build information, falling back to the module build info
// embedded by the Go toolchain when ldflags were not set.
func Get() Info {
	info := Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildDate:  BuildDate,
		GoVersion:  runtime.Version(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "unknown" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.CommitHash == "unknown" {
				info.CommitHash = setting.Value
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = setting.Value
			}
		}
	}
	return info
}

// UserAgent is sent upstream when the client did not supply one.
func UserAgent() string {
	return "mistral-relay/" + Get().Version
}
