package main

// Server defaults
const (
	defaultListenAddr  = ":8765" // the mirror UI dials ws://localhost:8765
	defaultMetricsPath = "/metrics"

	connectedMessage = "IR Remote Server Ready"
)

// Listener defaults
const (
	defaultIRWCommand      = "irw"
	defaultLircSocket      = "/var/run/lirc/lircd"
	defaultRestartDelayMS  = 5000
	defaultEvdevDevicePath = "/dev/input/event0"

	// Lines shorter than this are decoder noise.
	minRawLineLength = 6

	listenerSourceLirc  = "lirc"
	listenerSourceEvdev = "evdev"
	listenerSourceNone  = "none"
)

// Press classification defaults
const (
	defaultLongPressRepeats  = 20  // ~2s at ~10 repeats/s
	defaultReleaseDebounceMS = 200 // no repeat within this window = released
)

// Client defaults
const (
	defaultServerURL        = "ws://localhost:8765"
	defaultReconnectDelayMS = 3000
	defaultDemoTriggerMS    = 1000
	defaultHandshakeMS      = 2000
)

// Demo defaults
const (
	defaultDemoStartDelayMS = 4000 // give the setup screen time to load
)

// IPC defaults
const (
	defaultIPCSocketPath = "/tmp/lumaremote.sock"
)

// Hub defaults
const (
	defaultSendBuf      = 32
	defaultBroadcastBuf = 128
)
