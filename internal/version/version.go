// Package version reports build information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Set with -ldflags "-X github.com/pandasAtHome/TimeTask/internal/version.Version=..."
var (
	Version   = "0.3.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string
	BuildDate string
	GitCommit string
	GoVersion string
	Platform  string
}

// Get collects build information. When the commit or date were not
// injected at link time they are taken from the embedded VCS stamp.
func Get() Info {
	info := Info{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.GitCommit == "unknown":
				info.GitCommit = s.Value
			case s.Key == "vcs.time" && info.BuildDate == "unknown":
				info.BuildDate = s.Value
			}
		}
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("timetask version %s (%s %s)", i.Version, i.Platform, i.GoVersion)
}

// FullString renders every field, one per line.
func (i Info) FullString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "timetask version %s\n", i.Version)
	for _, row := range [][2]string{
		{"Git Commit", i.GitCommit},
		{"Build Date", i.BuildDate},
		{"Go Version", i.GoVersion},
		{"Platform", i.Platform},
	} {
		fmt.Fprintf(&sb, "%s: %s\n", row[0], row[1])
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// Outdated reports whether latest is newer than the running version.
func (i Info) Outdated(latest string) (bool, error) {
	current, err := goversion.NewVersion(i.Version)
	if err != nil {
		return false, fmt.Errorf("invalid version format: %w", err)
	}
	l, err := goversion.NewVersion(latest)
	if err != nil {
		return false, fmt.Errorf("invalid latest version format: %w", err)
	}
	return current.LessThan(l), nil
}
