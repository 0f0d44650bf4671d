package server

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"nascraft/internal/discovery"
	"nascraft/internal/logfile"
	"nascraft/internal/logging"
	"nascraft/internal/version"
	"nascraft/internal/watcher"
)

type Config struct {
	Host             string
	Port             int
	AuthToken        string
	AllowedOrigins   []string
	DataDir          string
	AppName          string
	SettingsFile     string
	LogMaxBytes      int64
	LogLevel         logging.Level
	WatchDirs        []string
	WatchDebounce    time.Duration
	MaxWatches       int
	DiscoveryMode    string
	ServiceTypes     []string
	BroadcastTargets []string
	ProbePort        int
	EventReplay      int
	EventClients     int
	EventSendTimeout time.Duration
	OTelEndpoint     string
	Verbose          bool
	Quiet            bool
	ShowVersion      bool
	Sources          map[string]configSource
}

type configSource string

const (
	sourceDefault configSource = "default"
	sourceFile    configSource = "file"
	sourceEnv     configSource = "env"
	sourceFlag    configSource = "flag"
)

type configDefaults struct {
	Host             string
	Port             int
	DataDir          string
	AppName          string
	LogMaxBytes      int64
	LogLevel         logging.Level
	WatchDebounce    time.Duration
	MaxWatches       int
	DiscoveryMode    string
	ProbePort        int
	EventReplay      int
	EventClients     int
	EventSendTimeout time.Duration
}

type flagValues struct {
	Host             string
	Port             int
	Token            string
	AllowedOrigins   string
	DataDir          string
	SettingsFile     string
	AppName          string
	LogMaxBytes      int64
	LogLevel         string
	WatchDirs        stringList
	WatchDebounce    time.Duration
	MaxWatches       int
	DiscoveryMode    string
	ServiceTypes     stringList
	BroadcastTargets stringList
	ProbePort        int
	EventReplay      int
	EventClients     int
	EventSendTimeout time.Duration
	OTelEndpoint     string
	Verbose          bool
	Quiet            bool
	Help             bool
	Version          bool
	Set              map[string]bool
}

// stringList collects a repeatable flag. Each value may also hold a
// comma-separated list.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(value string) error {
	*l = append(*l, splitList(value)...)
	return nil
}

// Source reports where a configuration key was resolved from.
func (cfg Config) Source(key string) string {
	if cfg.Sources == nil {
		return ""
	}
	return string(cfg.Sources[key])
}

// ListenAddr is the API listen address.
func (cfg Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// LogPath is the rotating log file location.
func (cfg Config) LogPath() string {
	return logfile.DefaultPath(cfg.DataDir, cfg.AppName)
}

// LoadConfig resolves configuration from defaults, the settings file,
// NASCRAFT_* environment variables and flags, in increasing precedence.
func LoadConfig(args []string) (Config, error) {
	defaults := defaultConfigValues()
	flags, err := parseFlags(args, defaults)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Sources: make(map[string]configSource),
	}

	dataDir := defaults.DataDir
	dataDirSource := sourceDefault
	if rawDir, ok := envString("NASCRAFT_DATA_DIR"); ok {
		dataDir = rawDir
		dataDirSource = sourceEnv
	}
	if flags.Set["data-dir"] {
		trimmed := strings.TrimSpace(flags.DataDir)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --data-dir: value cannot be empty")
		}
		dataDir = trimmed
		dataDirSource = sourceFlag
	}
	cfg.DataDir = dataDir
	cfg.Sources["data-dir"] = dataDirSource

	settingsFile := filepath.Join(dataDir, DefaultSettingsFile)
	settingsSource := sourceDefault
	if rawPath, ok := envString("NASCRAFT_CONFIG"); ok {
		settingsFile = rawPath
		settingsSource = sourceEnv
	}
	if flags.Set["config"] {
		trimmed := strings.TrimSpace(flags.SettingsFile)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --config: value cannot be empty")
		}
		settingsFile = trimmed
		settingsSource = sourceFlag
	}
	cfg.SettingsFile = settingsFile
	cfg.Sources["config"] = settingsSource

	settings, err := LoadSettings(settingsFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || settingsSource != sourceDefault {
			return Config{}, err
		}
		settings = Settings{}
	}

	host := defaults.Host
	hostSource := sourceDefault
	if settings.Host != nil && strings.TrimSpace(*settings.Host) != "" {
		host = strings.TrimSpace(*settings.Host)
		hostSource = sourceFile
	}
	if rawHost, ok := envString("NASCRAFT_HOST"); ok {
		host = rawHost
		hostSource = sourceEnv
	}
	if flags.Set["host"] {
		trimmed := strings.TrimSpace(flags.Host)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --host: value cannot be empty")
		}
		host = trimmed
		hostSource = sourceFlag
	}
	cfg.Host = host
	cfg.Sources["host"] = hostSource

	port := defaults.Port
	portSource := sourceDefault
	if settings.Port != nil {
		if !validPort(*settings.Port) {
			return Config{}, fmt.Errorf("invalid port in %s: %d", settingsFile, *settings.Port)
		}
		port = *settings.Port
		portSource = sourceFile
	}
	if parsed, ok := envInt("NASCRAFT_PORT"); ok && validPort(parsed) {
		port = parsed
		portSource = sourceEnv
	}
	if flags.Set["port"] {
		if !validPort(flags.Port) {
			return Config{}, fmt.Errorf("invalid --port: must be between 1 and 65535")
		}
		port = flags.Port
		portSource = sourceFlag
	}
	cfg.Port = port
	cfg.Sources["port"] = portSource

	token := ""
	tokenSource := sourceDefault
	if settings.Token != nil {
		token = *settings.Token
		tokenSource = sourceFile
	}
	if rawToken := os.Getenv("NASCRAFT_TOKEN"); rawToken != "" {
		token = rawToken
		tokenSource = sourceEnv
	}
	if flags.Set["token"] {
		token = flags.Token
		tokenSource = sourceFlag
	}
	cfg.AuthToken = token
	cfg.Sources["token"] = tokenSource

	origins := []string(nil)
	originsSource := sourceDefault
	if len(settings.AllowedOrigins) > 0 {
		origins = cleanList(settings.AllowedOrigins)
		originsSource = sourceFile
	}
	if rawOrigins, ok := envList("NASCRAFT_ALLOWED_ORIGINS"); ok {
		origins = rawOrigins
		originsSource = sourceEnv
	}
	if flags.Set["allowed-origins"] {
		origins = splitList(flags.AllowedOrigins)
		originsSource = sourceFlag
	}
	cfg.AllowedOrigins = origins
	cfg.Sources["allowed-origins"] = originsSource

	appName := defaults.AppName
	appNameSource := sourceDefault
	if rawName, ok := envString("NASCRAFT_APP_NAME"); ok {
		appName = rawName
		appNameSource = sourceEnv
	}
	if flags.Set["app-name"] {
		trimmed := strings.TrimSpace(flags.AppName)
		if trimmed == "" || strings.ContainsAny(trimmed, `/\`) {
			return Config{}, fmt.Errorf("invalid --app-name: must be a plain file name")
		}
		appName = trimmed
		appNameSource = sourceFlag
	}
	cfg.AppName = appName
	cfg.Sources["app-name"] = appNameSource

	logMaxBytes := defaults.LogMaxBytes
	logMaxBytesSource := sourceDefault
	if settings.Log.MaxBytes != nil {
		if *settings.Log.MaxBytes <= 0 {
			return Config{}, fmt.Errorf("invalid log.max_bytes in %s: must be > 0", settingsFile)
		}
		logMaxBytes = *settings.Log.MaxBytes
		logMaxBytesSource = sourceFile
	}
	if rawMax, ok := envString("NASCRAFT_LOG_MAX_BYTES"); ok {
		if parsed, err := strconv.ParseInt(rawMax, 10, 64); err == nil && parsed > 0 {
			logMaxBytes = parsed
			logMaxBytesSource = sourceEnv
		}
	}
	if flags.Set["log-max-bytes"] {
		if flags.LogMaxBytes <= 0 {
			return Config{}, fmt.Errorf("invalid --log-max-bytes: must be > 0")
		}
		logMaxBytes = flags.LogMaxBytes
		logMaxBytesSource = sourceFlag
	}
	cfg.LogMaxBytes = logMaxBytes
	cfg.Sources["log-max-bytes"] = logMaxBytesSource

	logLevel := defaults.LogLevel
	logLevelSource := sourceDefault
	if settings.Log.Level != nil {
		parsed, ok := logging.ParseLevel(*settings.Log.Level)
		if !ok {
			return Config{}, fmt.Errorf("invalid log.level in %s: %q", settingsFile, *settings.Log.Level)
		}
		logLevel = parsed
		logLevelSource = sourceFile
	}
	if rawLevel, ok := envString("NASCRAFT_LOG_LEVEL"); ok {
		if parsed, ok := logging.ParseLevel(rawLevel); ok {
			logLevel = parsed
			logLevelSource = sourceEnv
		}
	}
	if flags.Set["log-level"] {
		parsed, ok := logging.ParseLevel(flags.LogLevel)
		if !ok {
			return Config{}, fmt.Errorf("invalid --log-level: %q", flags.LogLevel)
		}
		logLevel = parsed
		logLevelSource = sourceFlag
	}
	if flags.Set["verbose"] && flags.Verbose {
		logLevel = logging.LevelDebug
		logLevelSource = sourceFlag
	}
	if flags.Set["quiet"] && flags.Quiet {
		logLevel = logging.LevelWarning
		logLevelSource = sourceFlag
	}
	cfg.LogLevel = logLevel
	cfg.Sources["log-level"] = logLevelSource

	watchDirs := []string(nil)
	watchDirsSource := sourceDefault
	if settings.Watch.Dirs != nil {
		watchDirs = cleanList(settings.Watch.Dirs)
		watchDirsSource = sourceFile
	}
	if rawDirs := strings.TrimSpace(os.Getenv("NASCRAFT_WATCH_DIRS")); rawDirs != "" {
		watchDirs = cleanList(filepath.SplitList(rawDirs))
		watchDirsSource = sourceEnv
	}
	if flags.Set["watch-dir"] {
		watchDirs = cleanList(flags.WatchDirs)
		watchDirsSource = sourceFlag
	}
	cfg.WatchDirs = watchDirs
	cfg.Sources["watch-dir"] = watchDirsSource

	debounce := defaults.WatchDebounce
	debounceSource := sourceDefault
	if settings.Watch.DebounceMS != nil {
		if *settings.Watch.DebounceMS < 0 {
			return Config{}, fmt.Errorf("invalid watch.debounce_ms in %s: must be >= 0", settingsFile)
		}
		debounce = time.Duration(*settings.Watch.DebounceMS) * time.Millisecond
		debounceSource = sourceFile
	}
	if rawDebounce, ok := envString("NASCRAFT_WATCH_DEBOUNCE"); ok {
		if parsed, err := time.ParseDuration(rawDebounce); err == nil && parsed >= 0 {
			debounce = parsed
			debounceSource = sourceEnv
		}
	}
	if flags.Set["watch-debounce"] {
		if flags.WatchDebounce < 0 {
			return Config{}, fmt.Errorf("invalid --watch-debounce: must be >= 0")
		}
		debounce = flags.WatchDebounce
		debounceSource = sourceFlag
	}
	cfg.WatchDebounce = debounce
	cfg.Sources["watch-debounce"] = debounceSource

	maxWatches := defaults.MaxWatches
	maxWatchesSource := sourceDefault
	if settings.Watch.MaxWatches != nil {
		if *settings.Watch.MaxWatches <= 0 {
			return Config{}, fmt.Errorf("invalid watch.max_watches in %s: must be > 0", settingsFile)
		}
		maxWatches = *settings.Watch.MaxWatches
		maxWatchesSource = sourceFile
	}
	if parsed, ok := envInt("NASCRAFT_MAX_WATCHES"); ok && parsed > 0 {
		maxWatches = parsed
		maxWatchesSource = sourceEnv
	}
	if flags.Set["max-watches"] {
		if flags.MaxWatches <= 0 {
			return Config{}, fmt.Errorf("invalid --max-watches: must be > 0")
		}
		maxWatches = flags.MaxWatches
		maxWatchesSource = sourceFlag
	}
	cfg.MaxWatches = maxWatches
	cfg.Sources["max-watches"] = maxWatchesSource

	mode := defaults.DiscoveryMode
	modeSource := sourceDefault
	if settings.Discovery.Mode != nil {
		parsed, err := discovery.ParseMode(*settings.Discovery.Mode)
		if err != nil {
			return Config{}, fmt.Errorf("invalid discovery.mode in %s: %w", settingsFile, err)
		}
		mode = parsed
		modeSource = sourceFile
	}
	if rawMode, ok := envString("NASCRAFT_DISCOVERY_MODE"); ok {
		if parsed, err := discovery.ParseMode(rawMode); err == nil {
			mode = parsed
			modeSource = sourceEnv
		}
	}
	if flags.Set["discovery-mode"] {
		parsed, err := discovery.ParseMode(flags.DiscoveryMode)
		if err != nil {
			return Config{}, fmt.Errorf("invalid --discovery-mode: %w", err)
		}
		mode = parsed
		modeSource = sourceFlag
	}
	cfg.DiscoveryMode = mode
	cfg.Sources["discovery-mode"] = modeSource

	serviceTypes := []string(nil)
	serviceTypesSource := sourceDefault
	if len(settings.Discovery.ServiceTypes) > 0 {
		serviceTypes = cleanList(settings.Discovery.ServiceTypes)
		serviceTypesSource = sourceFile
	}
	if rawTypes, ok := envList("NASCRAFT_SERVICE_TYPES"); ok {
		serviceTypes = rawTypes
		serviceTypesSource = sourceEnv
	}
	if flags.Set["service-type"] {
		serviceTypes = cleanList(flags.ServiceTypes)
		serviceTypesSource = sourceFlag
	}
	cfg.ServiceTypes = serviceTypes
	cfg.Sources["service-type"] = serviceTypesSource

	targets := []string(nil)
	targetsSource := sourceDefault
	if len(settings.Discovery.BroadcastTargets) > 0 {
		targets = cleanList(settings.Discovery.BroadcastTargets)
		targetsSource = sourceFile
	}
	if rawTargets, ok := envList("NASCRAFT_BROADCAST_TARGETS"); ok {
		targets = rawTargets
		targetsSource = sourceEnv
	}
	if flags.Set["broadcast-target"] {
		targets = cleanList(flags.BroadcastTargets)
		targetsSource = sourceFlag
	}
	cfg.BroadcastTargets = targets
	cfg.Sources["broadcast-target"] = targetsSource

	probePort := defaults.ProbePort
	probePortSource := sourceDefault
	if settings.Discovery.ProbePort != nil {
		if !validPort(*settings.Discovery.ProbePort) {
			return Config{}, fmt.Errorf("invalid discovery.probe_port in %s: %d", settingsFile, *settings.Discovery.ProbePort)
		}
		probePort = *settings.Discovery.ProbePort
		probePortSource = sourceFile
	}
	if parsed, ok := envInt("NASCRAFT_PROBE_PORT"); ok && validPort(parsed) {
		probePort = parsed
		probePortSource = sourceEnv
	}
	if flags.Set["probe-port"] {
		if !validPort(flags.ProbePort) {
			return Config{}, fmt.Errorf("invalid --probe-port: must be between 1 and 65535")
		}
		probePort = flags.ProbePort
		probePortSource = sourceFlag
	}
	cfg.ProbePort = probePort
	cfg.Sources["probe-port"] = probePortSource

	replay := defaults.EventReplay
	replaySource := sourceDefault
	if settings.Events.Replay != nil {
		replay = *settings.Events.Replay
		replaySource = sourceFile
	}
	if parsed, ok := envInt("NASCRAFT_EVENT_REPLAY"); ok {
		replay = parsed
		replaySource = sourceEnv
	}
	if flags.Set["event-replay"] {
		replay = flags.EventReplay
		replaySource = sourceFlag
	}
	cfg.EventReplay = replay
	cfg.Sources["event-replay"] = replaySource

	eventClients := defaults.EventClients
	eventClientsSource := sourceDefault
	if settings.Events.MaxClients != nil {
		if *settings.Events.MaxClients < 0 {
			return Config{}, fmt.Errorf("invalid events.max_clients in %s: must be >= 0", settingsFile)
		}
		eventClients = *settings.Events.MaxClients
		eventClientsSource = sourceFile
	}
	if parsed, ok := envInt("NASCRAFT_EVENT_CLIENTS"); ok && parsed >= 0 {
		eventClients = parsed
		eventClientsSource = sourceEnv
	}
	if flags.Set["event-clients"] {
		if flags.EventClients < 0 {
			return Config{}, fmt.Errorf("invalid --event-clients: must be >= 0")
		}
		eventClients = flags.EventClients
		eventClientsSource = sourceFlag
	}
	cfg.EventClients = eventClients
	cfg.Sources["event-clients"] = eventClientsSource

	sendTimeout := defaults.EventSendTimeout
	sendTimeoutSource := sourceDefault
	if settings.Events.SendTimeoutMS != nil {
		if *settings.Events.SendTimeoutMS < 0 {
			return Config{}, fmt.Errorf("invalid events.send_timeout_ms in %s: must be >= 0", settingsFile)
		}
		sendTimeout = time.Duration(*settings.Events.SendTimeoutMS) * time.Millisecond
		sendTimeoutSource = sourceFile
	}
	if rawTimeout, ok := envString("NASCRAFT_EVENT_SEND_TIMEOUT"); ok {
		if parsed, err := time.ParseDuration(rawTimeout); err == nil && parsed >= 0 {
			sendTimeout = parsed
			sendTimeoutSource = sourceEnv
		}
	}
	if flags.Set["event-send-timeout"] {
		if flags.EventSendTimeout < 0 {
			return Config{}, fmt.Errorf("invalid --event-send-timeout: must be >= 0")
		}
		sendTimeout = flags.EventSendTimeout
		sendTimeoutSource = sourceFlag
	}
	cfg.EventSendTimeout = sendTimeout
	cfg.Sources["event-send-timeout"] = sendTimeoutSource

	otelEndpoint := ""
	otelEndpointSource := sourceDefault
	if settings.Telemetry.Endpoint != nil {
		otelEndpoint = strings.TrimSpace(*settings.Telemetry.Endpoint)
		otelEndpointSource = sourceFile
	}
	if rawEndpoint, ok := envString("NASCRAFT_OTEL_ENDPOINT"); ok {
		otelEndpoint = rawEndpoint
		otelEndpointSource = sourceEnv
	}
	if flags.Set["otel-endpoint"] {
		otelEndpoint = strings.TrimSpace(flags.OTelEndpoint)
		otelEndpointSource = sourceFlag
	}
	cfg.OTelEndpoint = otelEndpoint
	cfg.Sources["otel-endpoint"] = otelEndpointSource

	verboseSource := sourceDefault
	if flags.Set["verbose"] {
		cfg.Verbose = flags.Verbose
		verboseSource = sourceFlag
	}
	cfg.Sources["verbose"] = verboseSource

	quietSource := sourceDefault
	if flags.Set["quiet"] {
		cfg.Quiet = flags.Quiet
		quietSource = sourceFlag
	}
	cfg.Sources["quiet"] = quietSource

	versionSource := sourceDefault
	cfg.ShowVersion = flags.Version
	if flags.Set["version"] {
		versionSource = sourceFlag
	}
	cfg.Sources["version"] = versionSource

	return cfg, nil
}

func defaultConfigValues() configDefaults {
	return configDefaults{
		Host:             "127.0.0.1",
		Port:             47853,
		DataDir:          defaultDataDir(),
		AppName:          version.AppName,
		LogMaxBytes:      logfile.DefaultMaxBytes,
		LogLevel:         logging.LevelInfo,
		WatchDebounce:    watcher.DefaultDebounce,
		MaxWatches:       watcher.DefaultMaxWatches,
		DiscoveryMode:    discovery.ModeAuto,
		ProbePort:        discovery.DefaultProbePort,
		EventReplay:      20,
		EventClients:     32,
		EventSendTimeout: 250 * time.Millisecond,
	}
}

func defaultDataDir() string {
	if base, err := os.UserConfigDir(); err == nil && base != "" {
		return filepath.Join(base, version.AppName)
	}
	return "." + version.AppName
}

func parseFlags(args []string, defaults configDefaults) (flagValues, error) {
	if args == nil {
		args = []string{}
	}
	var flags flagValues
	fs := flag.NewFlagSet(version.AppName+"d", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&flags.Host, "host", defaults.Host, "API listen host")
	fs.IntVar(&flags.Port, "port", defaults.Port, "API listen port")
	fs.StringVar(&flags.Token, "token", "", "Auth token for REST/WS")
	fs.StringVar(&flags.AllowedOrigins, "allowed-origins", "", "Comma-separated websocket origins")
	fs.StringVar(&flags.DataDir, "data-dir", defaults.DataDir, "Data directory")
	fs.StringVar(&flags.SettingsFile, "config", "", "Settings file")
	fs.StringVar(&flags.AppName, "app-name", defaults.AppName, "Log file base name")
	fs.Int64Var(&flags.LogMaxBytes, "log-max-bytes", defaults.LogMaxBytes, "Log file size cap in bytes")
	fs.StringVar(&flags.LogLevel, "log-level", string(defaults.LogLevel), "Minimum log level")
	fs.Var(&flags.WatchDirs, "watch-dir", "Directory to watch (repeatable)")
	fs.DurationVar(&flags.WatchDebounce, "watch-debounce", defaults.WatchDebounce, "Per-path event debounce")
	fs.IntVar(&flags.MaxWatches, "max-watches", defaults.MaxWatches, "Max watched directories")
	fs.StringVar(&flags.DiscoveryMode, "discovery-mode", defaults.DiscoveryMode, "Discovery strategy: auto, mdns or broadcast")
	fs.Var(&flags.ServiceTypes, "service-type", "Additional mDNS service type (repeatable)")
	fs.Var(&flags.BroadcastTargets, "broadcast-target", "Broadcast probe target (repeatable)")
	fs.IntVar(&flags.ProbePort, "probe-port", defaults.ProbePort, "Broadcast probe port")
	fs.IntVar(&flags.EventReplay, "event-replay", defaults.EventReplay, "Events replayed to new websocket clients")
	fs.IntVar(&flags.EventClients, "event-clients", defaults.EventClients, "Max concurrent event stream clients (0 = unlimited)")
	fs.DurationVar(&flags.EventSendTimeout, "event-send-timeout", defaults.EventSendTimeout, "Stall allowed before a slow event client is dropped")
	fs.StringVar(&flags.OTelEndpoint, "otel-endpoint", "", "OTLP/HTTP collector endpoint")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.Quiet, "quiet", false, "Reduce logging to warnings")
	help := fs.Bool("help", false, "Show help")
	showVersion := fs.Bool("version", false, "Print version and exit")
	helpShort := fs.Bool("h", false, "Show help")
	versionShort := fs.Bool("v", false, "Print version and exit")

	fs.Usage = func() {
		printHelp(fs.Output(), defaults)
	}

	if err := fs.Parse(args); err != nil {
		return flagValues{}, err
	}
	if fs.NArg() > 0 {
		return flagValues{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	set := make(map[string]bool)
	fs.Visit(func(flagValue *flag.Flag) {
		set[flagValue.Name] = true
	})
	flags.Help = *help || *helpShort
	flags.Version = *showVersion || *versionShort
	flags.Set = set

	if flags.Help {
		set["help"] = true
		fs.SetOutput(os.Stdout)
		fs.Usage()
		return flags, flag.ErrHelp
	}

	if flags.Version {
		set["version"] = true
	}

	return flags, nil
}

type helpOption struct {
	Name string
	Desc string
}

func printHelp(out io.Writer, defaults configDefaults) {
	fmt.Fprintf(out, "Usage: %sd [options]\n", version.AppName)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Nascraft companion services: log file, directory watching and NAS discovery")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")

	writeOptionGroup(out, "Server", []helpOption{
		{
			Name: "--host HOST",
			Desc: fmt.Sprintf("API listen host (env: NASCRAFT_HOST, default: %s)", defaults.Host),
		},
		{
			Name: "--port PORT",
			Desc: fmt.Sprintf("API listen port (env: NASCRAFT_PORT, default: %d)", defaults.Port),
		},
		{
			Name: "--token TOKEN",
			Desc: "Auth token for REST/WS (env: NASCRAFT_TOKEN, default: none)",
		},
		{
			Name: "--allowed-origins LIST",
			Desc: "Websocket origins (env: NASCRAFT_ALLOWED_ORIGINS, default: same host)",
		},
		{
			Name: "--event-replay N",
			Desc: fmt.Sprintf("Events replayed to new clients (env: NASCRAFT_EVENT_REPLAY, default: %d)", defaults.EventReplay),
		},
		{
			Name: "--event-clients N",
			Desc: fmt.Sprintf("Max event stream clients, 0 = unlimited (env: NASCRAFT_EVENT_CLIENTS, default: %d)", defaults.EventClients),
		},
		{
			Name: "--event-send-timeout DURATION",
			Desc: fmt.Sprintf("Slow client eviction timeout (env: NASCRAFT_EVENT_SEND_TIMEOUT, default: %s)", defaults.EventSendTimeout),
		},
		{
			Name: "--otel-endpoint HOST:PORT",
			Desc: "OTLP/HTTP collector for traces and logs (env: NASCRAFT_OTEL_ENDPOINT, default: off)",
		},
	})

	writeOptionGroup(out, "Storage", []helpOption{
		{
			Name: "--data-dir DIR",
			Desc: fmt.Sprintf("Data directory (env: NASCRAFT_DATA_DIR, default: %s)", defaults.DataDir),
		},
		{
			Name: "--config FILE",
			Desc: fmt.Sprintf("Settings file (env: NASCRAFT_CONFIG, default: <data-dir>/%s)", DefaultSettingsFile),
		},
		{
			Name: "--app-name NAME",
			Desc: fmt.Sprintf("Log file base name (env: NASCRAFT_APP_NAME, default: %s)", defaults.AppName),
		},
		{
			Name: "--log-max-bytes N",
			Desc: fmt.Sprintf("Log size cap (env: NASCRAFT_LOG_MAX_BYTES, default: %d)", defaults.LogMaxBytes),
		},
		{
			Name: "--log-level LEVEL",
			Desc: fmt.Sprintf("Minimum log level (env: NASCRAFT_LOG_LEVEL, default: %s)", defaults.LogLevel),
		},
	})

	writeOptionGroup(out, "Watching", []helpOption{
		{
			Name: "--watch-dir DIR",
			Desc: "Directory to watch, repeatable (env: NASCRAFT_WATCH_DIRS, path list)",
		},
		{
			Name: "--watch-debounce DURATION",
			Desc: fmt.Sprintf("Per-path debounce (env: NASCRAFT_WATCH_DEBOUNCE, default: %s)", defaults.WatchDebounce),
		},
		{
			Name: "--max-watches N",
			Desc: fmt.Sprintf("Max watched directories (env: NASCRAFT_MAX_WATCHES, default: %d)", defaults.MaxWatches),
		},
	})

	writeOptionGroup(out, "Discovery", []helpOption{
		{
			Name: "--discovery-mode MODE",
			Desc: fmt.Sprintf("auto, mdns or broadcast (env: NASCRAFT_DISCOVERY_MODE, default: %s)", defaults.DiscoveryMode),
		},
		{
			Name: "--service-type TYPE",
			Desc: "Extra mDNS service type, repeatable (env: NASCRAFT_SERVICE_TYPES)",
		},
		{
			Name: "--broadcast-target ADDR",
			Desc: "Probe target, repeatable (env: NASCRAFT_BROADCAST_TARGETS, default: 255.255.255.255)",
		},
		{
			Name: "--probe-port PORT",
			Desc: fmt.Sprintf("Broadcast probe port (env: NASCRAFT_PROBE_PORT, default: %d)", defaults.ProbePort),
		},
	})

	writeOptionGroup(out, "Common", []helpOption{
		{
			Name: "--verbose",
			Desc: "Enable verbose logging (default: false)",
		},
		{
			Name: "--quiet",
			Desc: "Reduce logging to warnings (default: false)",
		},
		{
			Name: "--help",
			Desc: "Show this help message",
		},
		{
			Name: "--version",
			Desc: "Print version and exit",
		},
	})

	fmt.Fprintln(out, "Settings file values override defaults; environment variables override the")
	fmt.Fprintln(out, "settings file; CLI flags override environment variables.")
}

func writeOptionGroup(out io.Writer, title string, options []helpOption) {
	fmt.Fprintf(out, "  %s:\n", title)
	for _, option := range options {
		fmt.Fprintf(out, "    %-30s %s\n", option.Name, option.Desc)
	}
	fmt.Fprintln(out, "")
}

func envString(name string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(name))
	return value, value != ""
}

func envInt(name string) (int, bool) {
	value, ok := envString(name)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func envList(name string) ([]string, bool) {
	value, ok := envString(name)
	if !ok {
		return nil, false
	}
	values := splitList(value)
	return values, len(values) > 0
}

func splitList(value string) []string {
	return cleanList(strings.Split(value, ","))
}

func cleanList(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}
