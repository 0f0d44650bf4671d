package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const DefaultSettingsFile = "settings.yaml"

// Settings is the optional settings file, YAML or TOML. Unset fields leave the lower
// configuration layer in place.
type Settings struct {
	Host           *string           `yaml:"host" toml:"host"`
	Port           *int              `yaml:"port" toml:"port"`
	Token          *string           `yaml:"token" toml:"token"`
	AllowedOrigins []string          `yaml:"allowed_origins" toml:"allowed_origins"`
	Log            LogSettings       `yaml:"log" toml:"log"`
	Watch          WatchSettings     `yaml:"watch" toml:"watch"`
	Discovery      DiscoverySettings `yaml:"discovery" toml:"discovery"`
	Events         EventSettings     `yaml:"events" toml:"events"`
	Telemetry      TelemetrySettings `yaml:"telemetry" toml:"telemetry"`
}

type LogSettings struct {
	MaxBytes *int64  `yaml:"max_bytes" toml:"max_bytes"`
	Level    *string `yaml:"level" toml:"level"`
}

type WatchSettings struct {
	Dirs       []string `yaml:"dirs" toml:"dirs"`
	DebounceMS *int     `yaml:"debounce_ms" toml:"debounce_ms"`
	MaxWatches *int     `yaml:"max_watches" toml:"max_watches"`
}

type DiscoverySettings struct {
	Mode             *string  `yaml:"mode" toml:"mode"`
	ServiceTypes     []string `yaml:"service_types" toml:"service_types"`
	BroadcastTargets []string `yaml:"broadcast_targets" toml:"broadcast_targets"`
	ProbePort        *int     `yaml:"probe_port" toml:"probe_port"`
}

type EventSettings struct {
	Replay        *int `yaml:"replay" toml:"replay"`
	MaxClients    *int `yaml:"max_clients" toml:"max_clients"`
	SendTimeoutMS *int `yaml:"send_timeout_ms" toml:"send_timeout_ms"`
}

type TelemetrySettings struct {
	Endpoint *string `yaml:"endpoint" toml:"endpoint"`
}

// LoadSettings reads a settings file. Files ending in .toml are decoded as
// TOML, everything else as YAML. A missing file is reported with an error
// wrapping os.ErrNotExist.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseSettingsTOML(data)
	}
	return ParseSettings(data)
}

// ParseSettings decodes settings YAML. Unknown keys are rejected.
func ParseSettings(data []byte) (Settings, error) {
	var settings Settings
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&settings); err != nil {
		if errors.Is(err, io.EOF) {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return settings, nil
}

// ParseSettingsTOML decodes settings TOML. Unknown keys are rejected.
func ParseSettingsTOML(data []byte) (Settings, error) {
	var settings Settings
	meta, err := toml.Decode(string(data), &settings)
	if err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return Settings{}, fmt.Errorf("parse settings: unknown keys %s", strings.Join(keys, ", "))
	}
	return settings, nil
}
