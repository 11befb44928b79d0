package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration shared by the server and the
// client subcommand.
//
// Precedence: DefaultConfig < YAML file < LUMA_* environment < flags.
// Validate runs last so the rest of the code can assume a well-formed config.
type Config struct {
	// Websocket action broadcaster
	Server ServerConfig `yaml:"server"`

	// Raw IR source
	Listener ListenerFileConfig `yaml:"listener"`

	// Press timing
	Classifier ClassifierFileConfig `yaml:"classifier"`

	// Button symbol -> action tables
	Buttons ButtonsConfig `yaml:"buttons"`

	// Kiosk side connection manager
	Client ClientConfig `yaml:"client"`

	// Demo fallback sequence
	Demo DemoConfig `yaml:"demo"`

	// IPC injection socket
	IPC IPCConfig `yaml:"ipc"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	SendBuffer int    `yaml:"send_buffer"`
}

type ListenerFileConfig struct {
	Source         string   `yaml:"source"` // "lirc", "evdev" or "none"
	Command        string   `yaml:"command"`
	LircSocket     string   `yaml:"lirc_socket"`
	Devices        []string `yaml:"devices,omitempty"`
	RestartDelayMS int      `yaml:"restart_delay_ms"` // 0 disables restart
}

type ClassifierFileConfig struct {
	LongPressRepeats  int `yaml:"long_press_repeats"`
	ReleaseDebounceMS int `yaml:"release_debounce_ms"`
}

// ButtonsConfig replaces the built-in tables when non-empty.
type ButtonsConfig struct {
	Short map[string]string `yaml:"short,omitempty"`
	Long  map[string]string `yaml:"long,omitempty"`
}

type ClientConfig struct {
	ServerURL          string `yaml:"server_url"`
	ReconnectDelayMS   int    `yaml:"reconnect_delay_ms"`
	DemoTriggerMS      int    `yaml:"demo_trigger_ms"`
	HandshakeTimeoutMS int    `yaml:"handshake_timeout_ms"`
	ForceDemo          bool   `yaml:"force_demo"`
}

type DemoConfig struct {
	StartDelayMS int              `yaml:"start_delay_ms"`
	Steps        []DemoStepConfig `yaml:"steps,omitempty"` // empty means built-in sequence
}

type DemoStepConfig struct {
	Action  string `yaml:"action"`
	DelayMS int    `yaml:"delay_ms"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"` // empty disables IPC
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: defaultListenAddr,
			SendBuffer: defaultSendBuf,
		},
		Listener: ListenerFileConfig{
			Source:         listenerSourceLirc,
			Command:        defaultIRWCommand,
			LircSocket:     defaultLircSocket,
			Devices:        []string{defaultEvdevDevicePath},
			RestartDelayMS: defaultRestartDelayMS,
		},
		Classifier: ClassifierFileConfig{
			LongPressRepeats:  defaultLongPressRepeats,
			ReleaseDebounceMS: defaultReleaseDebounceMS,
		},
		Client: ClientConfig{
			ServerURL:          defaultServerURL,
			ReconnectDelayMS:   defaultReconnectDelayMS,
			DemoTriggerMS:      defaultDemoTriggerMS,
			HandshakeTimeoutMS: defaultHandshakeMS,
		},
		Demo: DemoConfig{
			StartDelayMS: defaultDemoStartDelayMS,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocketPath,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    defaultMetricsPath,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace and comments may follow the document. Decode into a
	// node so a second document is seen regardless of its fields.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error unless required.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(ExpandPath(path))
	if err != nil && !required && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// envPrefix namespaces every environment override.
const envPrefix = "LUMA_"

// ApplyEnv overlays LUMA_* variables onto cfg. lookup is os.LookupEnv in
// production.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if cfg == nil {
		return nil
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(envPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = n
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(envPrefix + key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = b
		return nil
	}

	str("LISTEN_ADDR", &cfg.Server.ListenAddr)
	str("LISTENER_SOURCE", &cfg.Listener.Source)
	str("IRW_COMMAND", &cfg.Listener.Command)
	str("LIRC_SOCKET", &cfg.Listener.LircSocket)
	if v, ok := lookup(envPrefix + "INPUT_DEVICES"); ok {
		cfg.Listener.Devices = splitList(v)
	}
	str("SERVER_URL", &cfg.Client.ServerURL)
	str("IPC_SOCKET", &cfg.IPC.SocketPath)
	str("METRICS_PATH", &cfg.Metrics.Path)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	for _, n := range []struct {
		key string
		dst *int
	}{
		{"RESTART_DELAY_MS", &cfg.Listener.RestartDelayMS},
		{"LONG_PRESS_REPEATS", &cfg.Classifier.LongPressRepeats},
		{"RELEASE_DEBOUNCE_MS", &cfg.Classifier.ReleaseDebounceMS},
		{"RECONNECT_DELAY_MS", &cfg.Client.ReconnectDelayMS},
		{"DEMO_TRIGGER_MS", &cfg.Client.DemoTriggerMS},
		{"DEMO_START_DELAY_MS", &cfg.Demo.StartDelayMS},
	} {
		if err := num(n.key, n.dst); err != nil {
			return err
		}
	}

	if err := boolean("FORCE_DEMO", &cfg.Client.ForceDemo); err != nil {
		return err
	}
	return boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FlagOverrides applies overrides from flags on top of a loaded config.
//
// Flags pass pointers; nil means the flag was not set.
type FlagOverrides struct {
	ListenAddr *string

	ListenerSource *string
	IRWCommand     *string
	LircSocket     *string
	InputDevice    *string

	LongPressRepeats  *int
	ReleaseDebounceMS *int

	ServerURL *string
	ForceDemo *bool

	IPCSocketPath *string

	MetricsEnabled *bool

	LogLevel  *string
	LogFormat *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a “zero value”).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.ListenAddr != nil {
		cfg.Server.ListenAddr = *o.ListenAddr
	}

	if o.ListenerSource != nil {
		cfg.Listener.Source = *o.ListenerSource
	}
	if o.IRWCommand != nil {
		cfg.Listener.Command = *o.IRWCommand
	}
	if o.LircSocket != nil {
		cfg.Listener.LircSocket = *o.LircSocket
	}
	if o.InputDevice != nil {
		cfg.Listener.Devices = []string{*o.InputDevice}
	}

	if o.LongPressRepeats != nil {
		cfg.Classifier.LongPressRepeats = *o.LongPressRepeats
	}
	if o.ReleaseDebounceMS != nil {
		cfg.Classifier.ReleaseDebounceMS = *o.ReleaseDebounceMS
	}

	if o.ServerURL != nil {
		cfg.Client.ServerURL = *o.ServerURL
	}
	if o.ForceDemo != nil {
		cfg.Client.ForceDemo = *o.ForceDemo
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.MetricsEnabled != nil {
		cfg.Metrics.Enabled = *o.MetricsEnabled
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Logging.Format = *o.LogFormat
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + env + overrides are applied.
func (c *Config) Validate() error {
	// Server
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr must not be empty")
	}
	if c.Server.SendBuffer <= 0 {
		return errors.New("server.send_buffer must be > 0")
	}

	// Listener
	switch c.Listener.Source {
	case listenerSourceLirc:
		if c.Listener.Command == "" {
			return errors.New("listener.command must not be empty for source lirc")
		}
		if c.Listener.LircSocket == "" {
			return errors.New("listener.lirc_socket must not be empty for source lirc")
		}
	case listenerSourceEvdev:
		if len(c.Listener.Devices) == 0 {
			return errors.New("listener.devices must not be empty for source evdev")
		}
		for i, dev := range c.Listener.Devices {
			if dev == "" {
				return fmt.Errorf("listener.devices[%d] is empty", i)
			}
		}
	case listenerSourceNone:
	default:
		return fmt.Errorf("listener.source must be %q, %q or %q", listenerSourceLirc, listenerSourceEvdev, listenerSourceNone)
	}
	if c.Listener.RestartDelayMS < 0 {
		return errors.New("listener.restart_delay_ms must be >= 0")
	}

	// Classifier
	if c.Classifier.LongPressRepeats <= 0 {
		return errors.New("classifier.long_press_repeats must be > 0")
	}
	if c.Classifier.ReleaseDebounceMS <= 0 {
		return errors.New("classifier.release_debounce_ms must be > 0")
	}

	// Buttons
	if err := validateButtons("buttons.short", c.Buttons.Short); err != nil {
		return err
	}
	if err := validateButtons("buttons.long", c.Buttons.Long); err != nil {
		return err
	}

	// Client
	u, err := url.Parse(c.Client.ServerURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("client.server_url must be a ws:// or wss:// URL, got %q", c.Client.ServerURL)
	}
	if c.Client.ReconnectDelayMS <= 0 {
		return errors.New("client.reconnect_delay_ms must be > 0")
	}
	if c.Client.DemoTriggerMS <= 0 {
		return errors.New("client.demo_trigger_ms must be > 0")
	}
	if c.Client.HandshakeTimeoutMS <= 0 {
		return errors.New("client.handshake_timeout_ms must be > 0")
	}

	// Demo
	if c.Demo.StartDelayMS < 0 {
		return errors.New("demo.start_delay_ms must be >= 0")
	}
	for i, s := range c.Demo.Steps {
		if _, err := ParseAction(s.Action); err != nil {
			return fmt.Errorf("demo.steps[%d]: %w", i, err)
		}
		if s.DelayMS < 0 {
			return fmt.Errorf("demo.steps[%d].delay_ms must be >= 0", i)
		}
	}

	// Metrics
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return errors.New("logging.format must be \"text\" or \"json\"")
	}

	return nil
}

func validateButtons(section string, table map[string]string) error {
	for symbol, name := range table {
		if symbol == "" {
			return fmt.Errorf("%s: empty button symbol", section)
		}
		if _, err := ParseAction(name); err != nil {
			return fmt.Errorf("%s[%s]: %w", section, symbol, err)
		}
	}
	return nil
}

// ToActionMap builds the button tables. A configured table replaces the
// built-in one entirely.
func (c *Config) ToActionMap() (*ActionMap, error) {
	short := defaultShortPress()
	if len(c.Buttons.Short) > 0 {
		t, err := parseButtonTable(c.Buttons.Short)
		if err != nil {
			return nil, fmt.Errorf("buttons.short: %w", err)
		}
		short = t
	}
	long := defaultLongPress()
	if len(c.Buttons.Long) > 0 {
		t, err := parseButtonTable(c.Buttons.Long)
		if err != nil {
			return nil, fmt.Errorf("buttons.long: %w", err)
		}
		long = t
	}
	return NewActionMap(short, long), nil
}

func parseButtonTable(table map[string]string) (map[string]SemanticAction, error) {
	out := make(map[string]SemanticAction, len(table))
	for symbol, name := range table {
		a, err := ParseAction(name)
		if err != nil {
			return nil, err
		}
		out[symbol] = a
	}
	return out, nil
}

func (c *Config) ToClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		LongPressRepeats: c.Classifier.LongPressRepeats,
		ReleaseDebounce:  time.Duration(c.Classifier.ReleaseDebounceMS) * time.Millisecond,
	}
}

func (c *Config) ToListenerConfig() ListenerConfig {
	return ListenerConfig{
		Source:       c.Listener.Source,
		Command:      c.Listener.Command,
		LircSocket:   c.Listener.LircSocket,
		Devices:      append([]string(nil), c.Listener.Devices...),
		RestartDelay: time.Duration(c.Listener.RestartDelayMS) * time.Millisecond,
	}
}

func (c *Config) ToConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		ReconnectDelay: time.Duration(c.Client.ReconnectDelayMS) * time.Millisecond,
		DemoTrigger:    time.Duration(c.Client.DemoTriggerMS) * time.Millisecond,
		ForceDemo:      c.Client.ForceDemo,
	}
}

// DemoSteps returns the configured sequence, or the built-in one.
func (c *Config) DemoSteps() ([]DemoStep, error) {
	if len(c.Demo.Steps) == 0 {
		return DefaultDemoSequence(), nil
	}
	steps := make([]DemoStep, 0, len(c.Demo.Steps))
	for i, s := range c.Demo.Steps {
		a, err := ParseAction(s.Action)
		if err != nil {
			return nil, fmt.Errorf("demo.steps[%d]: %w", i, err)
		}
		steps = append(steps, DemoStep{Action: a, Delay: time.Duration(s.DelayMS) * time.Millisecond})
	}
	return steps, nil
}

func (c *Config) DemoStartDelay() time.Duration {
	return time.Duration(c.Demo.StartDelayMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
