package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// ============================================================================
// Listener Bridge - raw IR source supervision
// ============================================================================
// Adapts an external raw-event source into (symbol, repeat) pairs for the
// press classifier:
//   - lirc:  spawn `irw <socket>` and parse its stdout line by line
//   - evdev: read Linux input events from one or more devices
//   - none:  no hardware; presses arrive only over IPC
//
// A missing binary or device is never fatal: the daemon keeps serving
// websocket clients so their own fallback logic can run.
// ============================================================================

// rawSink consumes raw events. *PressClassifier implements it.
type rawSink interface {
	Handle(RawEvent)
	Abandon() int
}

// ListenerConfig selects and tunes the raw event source.
type ListenerConfig struct {
	Source       string
	Command      string
	LircSocket   string
	Devices      []string
	RestartDelay time.Duration
}

// Listener status values reported on /healthz.
const (
	listenerStarting    = "starting"
	listenerRunning     = "running"
	listenerUnavailable = "unavailable"
	listenerExited      = "exited"
	listenerDisabled    = "disabled"
)

type ListenerBridge struct {
	cfg     ListenerConfig
	sink    rawSink
	logger  *slog.Logger
	metrics *Metrics

	status atomic.Value // string

	lookPath func(string) (string, error)
	command  func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func NewListenerBridge(cfg ListenerConfig, sink rawSink, logger *slog.Logger, metrics *Metrics) *ListenerBridge {
	b := &ListenerBridge{
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		metrics:  metrics,
		lookPath: exec.LookPath,
		command:  exec.CommandContext,
	}
	b.setStatus(listenerStarting)
	return b
}

func (b *ListenerBridge) setStatus(s string) { b.status.Store(s) }

// Status reports the current source state.
func (b *ListenerBridge) Status() string {
	s, _ := b.status.Load().(string)
	return s
}

// Run drives the configured source until ctx is canceled. It only returns an
// error for an unknown source; source failures degrade to an idle listener.
func (b *ListenerBridge) Run(ctx context.Context) error {
	switch b.cfg.Source {
	case listenerSourceNone:
		b.setStatus(listenerDisabled)
		b.logger.Info("IR listener disabled; accepting IPC input only")
		<-ctx.Done()
		return nil
	case listenerSourceEvdev:
		b.runEvdev(ctx)
		return nil
	case listenerSourceLirc, "":
		b.runLirc(ctx)
		return nil
	default:
		return fmt.Errorf("unknown listener source %q", b.cfg.Source)
	}
}

func (b *ListenerBridge) idle(ctx context.Context, status string) {
	b.setStatus(status)
	<-ctx.Done()
}

// waitRestart sleeps for the restart delay; false means do not restart.
func (b *ListenerBridge) waitRestart(ctx context.Context) bool {
	if b.cfg.RestartDelay <= 0 {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(b.cfg.RestartDelay):
		b.metrics.IncListenerRestarts()
		return true
	}
}

func (b *ListenerBridge) runLirc(ctx context.Context) {
	b.logger.Info("starting IR remote listener", "command", b.cfg.Command, "socket", b.cfg.LircSocket)

	path, err := b.lookPath(b.cfg.Command)
	if err != nil {
		b.logger.Warn("irw command not found; IR remote will not work",
			"command", b.cfg.Command,
			"tip", "install LIRC: sudo apt-get install lirc")
		b.logger.Warn("server will continue to run without IR input")
		b.idle(ctx, listenerUnavailable)
		return
	}

	for {
		err := b.runIRWOnce(ctx, path)

		// Whatever was held when the signal was lost stays lost.
		b.sink.Abandon()

		if ctx.Err() != nil {
			return
		}
		b.setStatus(listenerExited)
		b.logger.Warn("IR process exited", "error", err, "restart_in", b.cfg.RestartDelay)

		if !b.waitRestart(ctx) {
			b.idle(ctx, listenerExited)
			return
		}
	}
}

func (b *ListenerBridge) runIRWOnce(ctx context.Context, path string) error {
	cmd := b.command(ctx, path, b.cfg.LircSocket)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", path, err)
	}

	b.setStatus(listenerRunning)
	b.logger.Info("IR listener started", "pid", cmd.Process.Pid)

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			b.logger.Warn("IR error", "stderr", sc.Text())
		}
	}()

	scanErr := scanRawLines(stdout, b.sink, b.logger)
	// Wait closes the pipes; finish reading them first.
	<-stderrDone
	waitErr := cmd.Wait()
	if scanErr != nil {
		return scanErr
	}
	return waitErr
}

// scanRawLines parses line-buffered decoder output and feeds sink until r ends.
func scanRawLines(r io.Reader, sink rawSink, logger *slog.Logger) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		ev, ok := parseRawLine(line)
		if !ok {
			if strings.TrimSpace(line) != "" {
				logger.Debug("ignoring IR line", "line", line)
			}
			continue
		}
		sink.Handle(ev)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read IR output: %w", err)
	}
	return nil
}

// parseRawLine parses one irw line: "<code> <repeat-hex> <button> <remote>".
func parseRawLine(line string) (RawEvent, bool) {
	if len(line) < minRawLineLength {
		return RawEvent{}, false
	}
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return RawEvent{}, false
	}
	repeat, err := strconv.ParseUint(parts[1], 16, 31)
	if err != nil {
		return RawEvent{}, false
	}
	return RawEvent{Symbol: parts[2], Repeat: int(repeat)}, true
}
