package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8765", cfg.Server.ListenAddr)
	assert.Equal(t, 20, cfg.Classifier.LongPressRepeats)
	assert.Equal(t, 200, cfg.Classifier.ReleaseDebounceMS)
	assert.Equal(t, 3000, cfg.Client.ReconnectDelayMS)
	assert.Equal(t, 1000, cfg.Client.DemoTriggerMS)
	assert.Equal(t, "ws://localhost:8765", cfg.Client.ServerURL)
}

func TestLoadConfigFile(t *testing.T) {
	p := writeFile(t, "config.yaml", `
server:
  listen_addr: "127.0.0.1:9000"
listener:
  source: evdev
  devices: ["/dev/input/event3"]
classifier:
  long_press_repeats: 12
buttons:
  short:
    KEY_A: up
client:
  server_url: wss://mirror.local/ws
demo:
  steps:
    - action: OK
      delay_ms: 0
    - action: power
      delay_ms: 500
logging:
  level: debug
  format: json
`)

	cfg, err := LoadConfigFile(p)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddr)
	assert.Equal(t, defaultSendBuf, cfg.Server.SendBuffer, "unset fields keep defaults")
	assert.Equal(t, listenerSourceEvdev, cfg.Listener.Source)
	assert.Equal(t, []string{"/dev/input/event3"}, cfg.Listener.Devices)
	assert.Equal(t, 12, cfg.Classifier.LongPressRepeats)
	assert.Equal(t, defaultReleaseDebounceMS, cfg.Classifier.ReleaseDebounceMS)
	assert.Equal(t, "wss://mirror.local/ws", cfg.Client.ServerURL)
	assert.Equal(t, "json", cfg.Logging.Format)

	steps, err := cfg.DemoSteps()
	require.NoError(t, err)
	assert.Equal(t, []DemoStep{
		{Action: ActionOK},
		{Action: ActionPower, Delay: 500 * time.Millisecond},
	}, steps)
}

func TestLoadConfigFile_Errors(t *testing.T) {
	_, err := LoadConfigFile("")
	assert.Error(t, err)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")

	_, err = LoadConfigFile(writeFile(t, "typo.yaml", "server:\n  listen_adr: \":1\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen_adr")

	_, err = LoadConfigFile(writeFile(t, "two.yaml", "server:\n  listen_addr: \":1\"\n---\nserver:\n  listen_addr: \":2\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing document")
}

func TestLoadConfigFile_TrailingDocuments(t *testing.T) {
	for name, content := range map[string]string{
		"same shape":    "server:\n  listen_addr: \":1\"\n---\nserver:\n  listen_addr: \":2\"\n",
		"unknown field": "server:\n  listen_addr: \":1\"\n---\nbogus: true\n",
		"scalar":        "server:\n  listen_addr: \":1\"\n---\nhello\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfigFile(writeFile(t, "multi.yaml", content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "trailing document")
		})
	}

	cfg, err := LoadConfigFile(writeFile(t, "comment.yaml", "server:\n  listen_addr: \":1\"\n# trailing comment\n\n"))
	require.NoError(t, err)
	assert.Equal(t, ":1", cfg.Server.ListenAddr)
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnv(&cfg, envMap(map[string]string{
		"LUMA_LISTEN_ADDR":        ":7000",
		"LUMA_LISTENER_SOURCE":    "evdev",
		"LUMA_INPUT_DEVICES":      "/dev/input/event1, ,/dev/input/event2",
		"LUMA_LONG_PRESS_REPEATS": " 15 ",
		"LUMA_FORCE_DEMO":         "true",
		"LUMA_METRICS_ENABLED":    "0",
		"LUMA_LOG_LEVEL":          "warning",
		"UNRELATED":               "x",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.ListenAddr)
	assert.Equal(t, listenerSourceEvdev, cfg.Listener.Source)
	assert.Equal(t, []string{"/dev/input/event1", "/dev/input/event2"}, cfg.Listener.Devices)
	assert.Equal(t, 15, cfg.Classifier.LongPressRepeats)
	assert.True(t, cfg.Client.ForceDemo)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "warning", cfg.Logging.Level)
	assert.Equal(t, defaultIRWCommand, cfg.Listener.Command, "untouched without a variable")
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_BadValues(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnv(&cfg, envMap(map[string]string{"LUMA_RECONNECT_DELAY_MS": "soon"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LUMA_RECONNECT_DELAY_MS")

	cfg = DefaultConfig()
	err = ApplyEnv(&cfg, envMap(map[string]string{"LUMA_FORCE_DEMO": "maybe"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LUMA_FORCE_DEMO")
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile("", true))
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), ".env"), false))
	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), ".env"), true))

	t.Setenv("LUMA_TEST_PRESET", "from-env")
	p := writeFile(t, ".env", "LUMA_TEST_FROM_FILE=hello\nLUMA_TEST_PRESET=from-file\n")
	t.Setenv("LUMA_TEST_FROM_FILE", "")
	require.NoError(t, os.Unsetenv("LUMA_TEST_FROM_FILE"))

	require.NoError(t, LoadEnvFile(p, true))
	assert.Equal(t, "hello", os.Getenv("LUMA_TEST_FROM_FILE"))
	assert.Equal(t, "from-env", os.Getenv("LUMA_TEST_PRESET"), "existing variables win")
}

func TestFlagOverridesApply(t *testing.T) {
	cfg := DefaultConfig()
	source := listenerSourceNone
	device := "/dev/input/event9"
	repeats := 0
	forceDemo := true
	empty := ""

	FlagOverrides{
		ListenerSource:   &source,
		InputDevice:      &device,
		LongPressRepeats: &repeats,
		ForceDemo:        &forceDemo,
		IPCSocketPath:    &empty,
	}.Apply(&cfg)

	assert.Equal(t, listenerSourceNone, cfg.Listener.Source)
	assert.Equal(t, []string{device}, cfg.Listener.Devices)
	assert.Equal(t, 0, cfg.Classifier.LongPressRepeats, "zero values are applied")
	assert.True(t, cfg.Client.ForceDemo)
	assert.Empty(t, cfg.IPC.SocketPath)
	assert.Equal(t, defaultListenAddr, cfg.Server.ListenAddr, "nil overrides are ignored")

	FlagOverrides{}.Apply(nil)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"listen addr", func(c *Config) { c.Server.ListenAddr = "" }, "listen_addr"},
		{"send buffer", func(c *Config) { c.Server.SendBuffer = 0 }, "send_buffer"},
		{"unknown source", func(c *Config) { c.Listener.Source = "serial" }, "listener.source"},
		{"lirc command", func(c *Config) { c.Listener.Command = "" }, "listener.command"},
		{"lirc socket", func(c *Config) { c.Listener.LircSocket = "" }, "lirc_socket"},
		{"evdev devices", func(c *Config) {
			c.Listener.Source = listenerSourceEvdev
			c.Listener.Devices = nil
		}, "listener.devices"},
		{"restart delay", func(c *Config) { c.Listener.RestartDelayMS = -1 }, "restart_delay_ms"},
		{"repeats", func(c *Config) { c.Classifier.LongPressRepeats = 0 }, "long_press_repeats"},
		{"debounce", func(c *Config) { c.Classifier.ReleaseDebounceMS = -5 }, "release_debounce_ms"},
		{"button action", func(c *Config) { c.Buttons.Long = map[string]string{"KEY_X": "JUMP"} }, "buttons.long[KEY_X]"},
		{"button symbol", func(c *Config) { c.Buttons.Short = map[string]string{"": "OK"} }, "empty button symbol"},
		{"server url scheme", func(c *Config) { c.Client.ServerURL = "http://localhost:8765" }, "server_url"},
		{"server url host", func(c *Config) { c.Client.ServerURL = "ws://" }, "server_url"},
		{"reconnect", func(c *Config) { c.Client.ReconnectDelayMS = 0 }, "reconnect_delay_ms"},
		{"trigger", func(c *Config) { c.Client.DemoTriggerMS = 0 }, "demo_trigger_ms"},
		{"handshake", func(c *Config) { c.Client.HandshakeTimeoutMS = 0 }, "handshake_timeout_ms"},
		{"demo delay", func(c *Config) { c.Demo.StartDelayMS = -1 }, "start_delay_ms"},
		{"demo action", func(c *Config) { c.Demo.Steps = []DemoStepConfig{{Action: "NOPE"}} }, "demo.steps[0]"},
		{"demo step delay", func(c *Config) { c.Demo.Steps = []DemoStepConfig{{Action: "OK", DelayMS: -1}} }, "delay_ms"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_SourceNoneNeedsNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Listener = ListenerFileConfig{Source: listenerSourceNone}
	assert.NoError(t, cfg.Validate())

	cfg.Metrics = MetricsConfig{Enabled: false, Path: ""}
	assert.NoError(t, cfg.Validate(), "path is only checked when metrics are on")
}

func TestToActionMap(t *testing.T) {
	cfg := DefaultConfig()
	m, err := cfg.ToActionMap()
	require.NoError(t, err)
	a, ok := m.ResolveLong("KEY_LEFT")
	require.True(t, ok)
	assert.Equal(t, ActionBack, a)

	cfg.Buttons.Short = map[string]string{"BTN_RED": "power"}
	m, err = cfg.ToActionMap()
	require.NoError(t, err)

	a, ok = m.ResolveShort("BTN_RED")
	require.True(t, ok)
	assert.Equal(t, ActionPower, a)
	_, ok = m.ResolveShort("KEY_UP")
	assert.False(t, ok, "configured table replaces the built-in one")
	assert.True(t, m.HasLongPress("KEY_LEFT"), "long table untouched")

	cfg.Buttons.Long = map[string]string{"BTN_RED": "bogus"}
	_, err = cfg.ToActionMap()
	assert.Error(t, err)
}

func TestConfigConversions(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ClassifierConfig{LongPressRepeats: 20, ReleaseDebounce: 200 * time.Millisecond}, cfg.ToClassifierConfig())
	assert.Equal(t, ConnectionConfig{ReconnectDelay: 3 * time.Second, DemoTrigger: time.Second}, cfg.ToConnectionConfig())
	assert.Equal(t, 4*time.Second, cfg.DemoStartDelay())

	lc := cfg.ToListenerConfig()
	assert.Equal(t, defaultIRWCommand, lc.Command)
	assert.Equal(t, 5*time.Second, lc.RestartDelay)
	lc.Devices[0] = "changed"
	assert.Equal(t, defaultEvdevDevicePath, cfg.Listener.Devices[0])

	steps, err := cfg.DemoSteps()
	require.NoError(t, err)
	assert.Equal(t, DefaultDemoSequence(), steps)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, "/etc/luma.yaml", ExpandPath("/etc/luma.yaml"))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, ".config/luma.yaml"), ExpandPath("~/.config/luma.yaml"))
	assert.Equal(t, "~other/x", ExpandPath("~other/x"))
}
