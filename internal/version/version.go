package version

import (
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
)

const AppName = "nascraft"

// Version values are set at build time using -ldflags.
var Version = "dev"
var Built = ""
var GitCommit = ""

type VersionInfo struct {
	App       string `json:"app"`
	Version   string `json:"version"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Patch     int    `json:"patch"`
	Built     string `json:"built,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
	GoVersion string `json:"go_version"`
}

func GetVersionInfo() VersionInfo {
	major, minor, patch := parseSemver(Version)
	return VersionInfo{
		App:       AppName,
		Version:   Version,
		Major:     major,
		Minor:     minor,
		Patch:     patch,
		Built:     Built,
		GitCommit: commit(),
		GoVersion: runtime.Version(),
	}
}

// UserAgent identifies outbound requests, e.g. "nascraft/1.2.3".
func UserAgent() string {
	return AppName + "/" + Version
}

func commit() string {
	if GitCommit != "" {
		return GitCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}
	return ""
}

func parseSemver(value string) (int, int, int) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "v")
	if index := strings.IndexAny(trimmed, "-+"); index >= 0 {
		trimmed = trimmed[:index]
	}
	parts := strings.SplitN(trimmed, ".", 3)
	numbers := [3]int{}
	for index, part := range parts {
		numbers[index] = parseInt(part)
	}
	return numbers[0], numbers[1], numbers[2]
}

func parseInt(value string) int {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}
