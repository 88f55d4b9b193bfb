// Package sysinfo describes the binary and host that produced a run.
package sysinfo

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the simulator version, set at build time via ldflags.
	// Example: go build -ldflags="-X github.com/postalsys/muti-sim/internal/sysinfo.Version=1.0.0"
	Version = "dev"
)

// Info identifies the build and machine a run was produced on.
type Info struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Hostname  string `json:"hostname,omitempty"`
	CPUs      int    `json:"cpus"`
}

// Collect gathers the local build and host information.
func Collect() Info {
	hostname, _ := os.Hostname()
	return Info{
		Version:   ResolvedVersion(),
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Hostname:  hostname,
		CPUs:      runtime.NumCPU(),
	}
}

// String formats the info as "version (go, os/arch)".
func (i Info) String() string {
	return fmt.Sprintf("%s (%s, %s/%s)", i.Version, i.GoVersion, i.OS, i.Arch)
}

// ResolvedVersion returns Version, or for dev builds "dev-<commit>" when the
// binary carries VCS build info.
func ResolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version
	}
	return devVersion(info.Settings)
}

func devVersion(settings []debug.BuildSetting) string {
	var revision string
	var dirty bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return "dev"
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	v := "dev-" + revision
	if dirty {
		v += "-dirty"
	}
	return v
}
