package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("lumaremote v%s\n", version)
	fmt.Println("IR remote bridge for the Luma smart mirror")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  lumaremote [serve] [OPTIONS]")
	fmt.Println("  lumaremote client [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  serve (default) reads IR button events from LIRC (irw) or a Linux input")
	fmt.Println("  device, turns them into semantic actions (short and long press), and")
	fmt.Println("  broadcasts them to every websocket client.")
	fmt.Println()
	fmt.Println("  client connects to a server and prints one JSON line per action on")
	fmt.Println("  stdout. If no server is reachable at startup it plays a demo sequence.")
	fmt.Println()
	fmt.Println("COMMON OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (default: built-in defaults)")
	fmt.Println()
	fmt.Println("  -env-file string")
	fmt.Println("        File of LUMA_* variables to load (default \".env\", ignored if missing)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -log-format string")
	fmt.Println("        Log format: text, json (default \"text\")")
	fmt.Println()
	fmt.Println("SERVE OPTIONS:")
	fmt.Println("  -listen string")
	fmt.Printf("        Websocket listen address (default %q)\n", defaultListenAddr)
	fmt.Println()
	fmt.Println("  -listener string")
	fmt.Println("        IR source: lirc, evdev, none (default \"lirc\")")
	fmt.Println()
	fmt.Println("  -irw string")
	fmt.Printf("        irw command (default %q)\n", defaultIRWCommand)
	fmt.Println()
	fmt.Println("  -lirc-socket string")
	fmt.Printf("        lircd socket passed to irw (default %q)\n", defaultLircSocket)
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Printf("        Linux input device for the evdev source (default %q)\n", defaultEvdevDevicePath)
	fmt.Println()
	fmt.Println("  -long-press-repeats int")
	fmt.Printf("        Repeat count that turns a hold into a long press (default %d)\n", defaultLongPressRepeats)
	fmt.Println()
	fmt.Println("  -release-debounce-ms int")
	fmt.Printf("        Quiet time after the last repeat that counts as release (default %d)\n", defaultReleaseDebounceMS)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket for luma-ctl, empty disables (default %q)\n", defaultIPCSocketPath)
	fmt.Println()
	fmt.Println("  -metrics")
	fmt.Println("        Serve Prometheus metrics (default true)")
	fmt.Println()
	fmt.Println("CLIENT OPTIONS:")
	fmt.Println("  -server-url string")
	fmt.Printf("        Websocket URL of the server (default %q)\n", defaultServerURL)
	fmt.Println()
	fmt.Println("  -demo")
	fmt.Println("        Start the demo immediately")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Raspberry Pi with LIRC")
	fmt.Println("  lumaremote")
	fmt.Println()
	fmt.Println("  # No IR hardware; drive it with luma-ctl")
	fmt.Println("  lumaremote -listener none")
	fmt.Println()
	fmt.Println("  # Kiosk side")
	fmt.Println("  lumaremote client -server-url ws://mirror.local:8765")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - A missing irw binary or input device is not fatal; the server keeps")
	fmt.Println("    accepting websocket clients.")
	fmt.Println("  - The evdev source needs read access to the device (root or 'input' group).")
	fmt.Println()
}

// commonFlags are shared by serve and client.
type commonFlags struct {
	configPath *string
	envFile    *string
	logLevel   *string
	logFormat  *string
	showHelp   *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", "", "YAML config file"),
		envFile:    fs.String("env-file", ".env", "File of LUMA_* variables to load"),
		logLevel:   fs.String("log-level", "info", "Log level: error, warn, info, debug"),
		logFormat:  fs.String("log-format", "text", "Log format: text, json"),
		showHelp:   fs.Bool("help", false, "Print help message"),
	}
}

// setFlags returns the names of flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// loadConfig applies defaults, file, environment and flag overrides, then validates.
func loadConfig(cf commonFlags, set map[string]bool, o FlagOverrides) (Config, error) {
	cfg := DefaultConfig()
	if *cf.configPath != "" {
		var err error
		if cfg, err = LoadConfigFile(*cf.configPath); err != nil {
			return Config{}, err
		}
	}

	if err := LoadEnvFile(*cf.envFile, set["env-file"]); err != nil {
		return Config{}, err
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	if set["log-level"] {
		o.LogLevel = cf.logLevel
	}
	if set["log-format"] {
		o.LogFormat = cf.logFormat
	}
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newLogger(cfg Config, w io.Writer) *slog.Logger {
	level, _ := parseLogLevel(cfg.Logging.Level) // validated
	return setupLogger(level, cfg.Logging.Format, w)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func main() {
	args := os.Args[1:]

	// Check for subcommand mode first
	if len(args) > 0 {
		switch args[0] {
		case "client":
			runClientSubcommand(args[1:])
			return
		case "serve":
			args = args[1:]
		}
	}

	// Check for version flag early
	for _, arg := range args {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	runServeSubcommand(args)
}

func runServeSubcommand(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cf := addCommonFlags(fs)
	var (
		listenAddr     = fs.String("listen", defaultListenAddr, "Websocket listen address")
		listenerSource = fs.String("listener", listenerSourceLirc, "IR source: lirc, evdev, none")
		irwCommand     = fs.String("irw", defaultIRWCommand, "irw command")
		lircSocket     = fs.String("lirc-socket", defaultLircSocket, "lircd socket passed to irw")
		inputDevice    = fs.String("input-device", defaultEvdevDevicePath, "Linux input device for the evdev source")
		longRepeats    = fs.Int("long-press-repeats", defaultLongPressRepeats, "Repeat count that turns a hold into a long press")
		debounceMS     = fs.Int("release-debounce-ms", defaultReleaseDebounceMS, "Quiet time after the last repeat that counts as release")
		ipcSocketPath  = fs.String("ipc-socket", defaultIPCSocketPath, "Unix domain socket for luma-ctl")
		metricsEnabled = fs.Bool("metrics", true, "Serve Prometheus metrics")
	)
	fs.Usage = printUsage
	_ = fs.Parse(args)

	if *cf.showHelp {
		printUsage()
		return
	}

	set := setFlags(fs)
	var o FlagOverrides
	if set["listen"] {
		o.ListenAddr = listenAddr
	}
	if set["listener"] {
		o.ListenerSource = listenerSource
	}
	if set["irw"] {
		o.IRWCommand = irwCommand
	}
	if set["lirc-socket"] {
		o.LircSocket = lircSocket
	}
	if set["input-device"] {
		o.InputDevice = inputDevice
	}
	if set["long-press-repeats"] {
		o.LongPressRepeats = longRepeats
	}
	if set["release-debounce-ms"] {
		o.ReleaseDebounceMS = debounceMS
	}
	if set["ipc-socket"] {
		o.IPCSocketPath = ipcSocketPath
	}
	if set["metrics"] {
		o.MetricsEnabled = metricsEnabled
	}

	cfg, err := loadConfig(cf, set, o)
	if err != nil {
		fatal(err)
	}
	logger := newLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runServer(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// runServer wires listener -> classifier -> hub and serves until ctx ends.
func runServer(ctx context.Context, cfg Config, logger *slog.Logger) error {
	actions, err := cfg.ToActionMap()
	if err != nil {
		return err
	}
	demoSteps, err := cfg.DemoSteps()
	if err != nil {
		return err
	}

	var metrics *Metrics
	if cfg.Metrics.Enabled {
		metrics = NewMetrics()
	}

	hub := NewHub(logger, metrics, HubConfig{SendBuf: cfg.Server.SendBuffer})
	classifier := NewPressClassifier(actions, cfg.ToClassifierConfig(), hub.Broadcast, logger, metrics)
	listener := NewListenerBridge(cfg.ToListenerConfig(), classifier, logger, metrics)
	srv := NewServer(logger, hub, metrics, listener, cfg.Metrics.Path)
	demo := newDemoController(demoSteps, hub.Broadcast, logger)

	logger.Debug("configuration",
		"listen_addr", cfg.Server.ListenAddr,
		"listener", cfg.Listener.Source,
		"irw", cfg.Listener.Command,
		"lirc_socket", cfg.Listener.LircSocket,
		"devices", cfg.Listener.Devices,
		"long_press_repeats", cfg.Classifier.LongPressRepeats,
		"release_debounce_ms", cfg.Classifier.ReleaseDebounceMS,
		"ipc_socket", cfg.IPC.SocketPath,
		"metrics", cfg.Metrics.Enabled)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return runHTTPServer(ctx, cfg.Server.ListenAddr, srv.Router(), logger)
	})
	g.Go(func() error {
		defer classifier.Abandon()
		return listener.Run(ctx)
	})
	if cfg.IPC.SocketPath != "" {
		g.Go(func() error {
			defer demo.Shutdown()
			return runIPCServer(ctx, cfg.IPC.SocketPath, IPCHandler{
				Broadcast: hub.Broadcast,
				Raw:       classifier.Handle,
				Demo:      demo,
			}, logger)
		})
	}

	logger.Info("lumaremote started", "version", version)
	err = g.Wait()
	logger.Info("shutting down")
	return err
}

func runClientSubcommand(args []string) {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	cf := addCommonFlags(fs)
	var (
		serverURL = fs.String("server-url", defaultServerURL, "Websocket URL of the server")
		forceDemo = fs.Bool("demo", false, "Start the demo immediately")
	)
	fs.Usage = printUsage
	_ = fs.Parse(args)

	if *cf.showHelp {
		printUsage()
		return
	}

	set := setFlags(fs)
	var o FlagOverrides
	if set["server-url"] {
		o.ServerURL = serverURL
	}
	if set["demo"] {
		o.ForceDemo = forceDemo
	}

	cfg, err := loadConfig(cf, set, o)
	if err != nil {
		fatal(err)
	}
	// stdout carries actions.
	logger := newLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runClient(ctx, cfg, os.Stdout, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("client stopped", "error", err)
		os.Exit(1)
	}
}

// actionLine is what the client prints for the UI shell.
type actionLine struct {
	Action    SemanticAction `json:"action"`
	Timestamp int64          `json:"timestamp"`
}

func runClient(ctx context.Context, cfg Config, out io.Writer, logger *slog.Logger) error {
	steps, err := cfg.DemoSteps()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	onAction := func(a SemanticAction) {
		if err := enc.Encode(actionLine{Action: a, Timestamp: time.Now().UnixMilli()}); err != nil {
			logger.Warn("failed to write action", "action", a, "error", err)
		}
	}

	dialer := newWSDialer(cfg.Client.ServerURL, time.Duration(cfg.Client.HandshakeTimeoutMS)*time.Millisecond)
	m := NewConnectionManager(cfg.ToConnectionConfig(), dialer, steps, cfg.DemoStartDelay(), onAction, logger)

	logger.Info("lumaremote client starting", "server_url", cfg.Client.ServerURL, "force_demo", cfg.Client.ForceDemo)
	return m.Run(ctx)
}
