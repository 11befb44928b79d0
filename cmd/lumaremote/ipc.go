package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Lets luma-ctl and scripts drive the broadcaster without IR hardware.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "event_name", "data": {...}}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
// ============================================================================

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // error message if status == "error"
}

var (
	errDemoRunning    = errors.New("demo already running")
	errDemoNotRunning = errors.New("no demo running")
)

// demoController plays the demo sequence to websocket clients, one run at a
// time. Each run gets a fresh DemoFallback; a finished run can be replayed.
type demoController struct {
	steps  []DemoStep
	play   func(SemanticAction)
	logger *slog.Logger

	mu     sync.Mutex
	active *DemoFallback
}

func newDemoController(steps []DemoStep, play func(SemanticAction), logger *slog.Logger) *demoController {
	return &demoController{steps: steps, play: play, logger: logger}
}

func (c *demoController) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && c.active.Running() {
		return errDemoRunning
	}
	d := NewDemoFallback(c.steps, 0, c.play, c.logger)
	d.Start(ctx)
	c.active = d
	return nil
}

func (c *demoController) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || !c.active.Running() {
		return errDemoNotRunning
	}
	c.active.Cancel()
	return nil
}

func (c *demoController) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil && c.active.Running()
}

// Shutdown cancels any active run and waits for it.
func (c *demoController) Shutdown() {
	c.mu.Lock()
	d := c.active
	c.mu.Unlock()
	if d != nil {
		d.Cancel()
		d.Wait()
	}
}

// IPCHandler routes decoded events into the server pipeline.
type IPCHandler struct {
	Broadcast func(SemanticAction)
	Raw       func(RawEvent)
	Demo      *demoController
}

func (h IPCHandler) dispatch(ctx context.Context, ev IPCEvent) error {
	switch ev := ev.(type) {
	case ButtonPress:
		h.Broadcast(ev.Action)
	case IREvent:
		h.Raw(RawEvent{Symbol: ev.Symbol, Repeat: ev.Repeat})
	case RunDemo:
		return h.Demo.Start(ctx)
	case StopDemo:
		return h.Demo.Stop()
	default:
		return fmt.Errorf("unsupported event type: %T", ev)
	}
	return nil
}

// runIPCServer starts the Unix domain socket server.
// It runs until ctx is canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, h IPCHandler, logger *slog.Logger) error {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}

			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, h, logger)
	}
}

// handleIPCConnection handles a single IPC connection
func handleIPCConnection(ctx context.Context, conn net.Conn, h IPCHandler, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	respond := func(err error) {
		resp := IPCResponse{Status: "ok"}
		if err != nil {
			resp = IPCResponse{Status: "error", Error: err.Error()}
		}
		if encErr := encoder.Encode(resp); encErr != nil {
			logger.Error("IPC failed to send response", "error", encErr)
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		ev, err := UnmarshalEvent([]byte(line))
		if err != nil {
			respond(fmt.Errorf("parse event: %w", err))
			continue
		}
		respond(h.dispatch(ctx, ev))
	}

	logger.Debug("IPC connection closed")
}

// SendIPCEvent sends an event to the daemon via IPC and returns the response
func SendIPCEvent(socketPath string, ev IPCEvent) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("ipc error: %s", resp.Error)
	}
	return nil
}
