// Package cli holds flag helpers shared by the nascraft command-line tools.
package cli

import (
	"flag"
	"os"
	"strings"
)

const (
	DefaultServerURL   = "http://127.0.0.1:47853"
	defaultHelpDesc    = "Show help"
	defaultVersionDesc = "Print version and exit"
)

type HelpVersionFlags struct {
	Help    bool
	Version bool
}

func AddHelpVersionFlags(fs *flag.FlagSet, helpDesc, versionDesc string) *HelpVersionFlags {
	if fs == nil {
		return &HelpVersionFlags{}
	}
	if helpDesc == "" {
		helpDesc = defaultHelpDesc
	}
	if versionDesc == "" {
		versionDesc = defaultVersionDesc
	}
	flags := &HelpVersionFlags{}
	fs.BoolVar(&flags.Help, "help", false, helpDesc)
	fs.BoolVar(&flags.Help, "h", false, helpDesc)
	fs.BoolVar(&flags.Version, "version", false, versionDesc)
	fs.BoolVar(&flags.Version, "v", false, versionDesc)
	return flags
}

// ServerFlags selects the nascraftd instance a tool talks to.
type ServerFlags struct {
	URL   string
	Token string
}

func AddServerFlags(fs *flag.FlagSet) *ServerFlags {
	flags := &ServerFlags{}
	if fs == nil {
		return flags
	}
	fs.StringVar(&flags.URL, "url", "", "Server URL (env: NASCRAFT_URL, default: "+DefaultServerURL+")")
	fs.StringVar(&flags.Token, "token", "", "Auth token (env: NASCRAFT_TOKEN, default: none)")
	return flags
}

// Resolve fills unset values from NASCRAFT_URL and NASCRAFT_TOKEN, then from
// defaults.
func (f *ServerFlags) Resolve() ServerFlags {
	resolved := ServerFlags{}
	if f != nil {
		resolved.URL = strings.TrimSpace(f.URL)
		resolved.Token = strings.TrimSpace(f.Token)
	}
	if resolved.URL == "" {
		resolved.URL = strings.TrimSpace(os.Getenv("NASCRAFT_URL"))
	}
	if resolved.URL == "" {
		resolved.URL = DefaultServerURL
	}
	if resolved.Token == "" {
		resolved.Token = strings.TrimSpace(os.Getenv("NASCRAFT_TOKEN"))
	}
	return resolved
}
