package platform

import (
	"runtime"
	"testing"
)

func TestForOS(t *testing.T) {
	cases := []struct {
		goos      string
		fileWatch bool
		multicast bool
		mobile    bool
	}{
		{goos: "linux", fileWatch: true, multicast: true},
		{goos: "darwin", fileWatch: true, multicast: true},
		{goos: "windows", fileWatch: true, multicast: true},
		{goos: "android", mobile: true},
		{goos: "ios", mobile: true},
		{goos: "js"},
	}
	for _, tc := range cases {
		t.Run(tc.goos, func(t *testing.T) {
			caps := ForOS(tc.goos)
			if caps.OS != tc.goos {
				t.Fatalf("expected os %q, got %q", tc.goos, caps.OS)
			}
			if caps.FileWatch != tc.fileWatch || caps.Multicast != tc.multicast {
				t.Fatalf("unexpected capabilities %+v", caps)
			}
			if caps.Mobile() != tc.mobile {
				t.Fatalf("expected mobile=%v", tc.mobile)
			}
		})
	}
}

func TestDetectMatchesRuntime(t *testing.T) {
	if Detect().OS != runtime.GOOS {
		t.Fatalf("expected detected os %q", runtime.GOOS)
	}
}
