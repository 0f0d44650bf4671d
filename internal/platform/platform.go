// Package platform reports what the host can do. Components consult the
// capabilities once at startup instead of checking the OS at call sites.
package platform

import (
	"errors"
	"runtime"
)

var ErrUnsupported = errors.New("unsupported on this platform")

type Capabilities struct {
	OS        string `json:"os"`
	FileWatch bool   `json:"file_watch"`
	Multicast bool   `json:"multicast"`
}

// Detect returns the capabilities of the running host.
func Detect() Capabilities {
	return ForOS(runtime.GOOS)
}

// ForOS returns the capabilities assumed for goos. Mobile targets cannot hold
// directory watches and do not get multicast without an app entitlement, so
// they fall back to the broadcast probe.
func ForOS(goos string) Capabilities {
	switch goos {
	case "android", "ios":
		return Capabilities{OS: goos}
	case "js", "wasip1":
		return Capabilities{OS: goos}
	default:
		return Capabilities{OS: goos, FileWatch: true, Multicast: true}
	}
}

// Mobile reports whether the capabilities describe a mobile target.
func (c Capabilities) Mobile() bool {
	return c.OS == "android" || c.OS == "ios"
}
