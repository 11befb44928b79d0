package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ============================================================================
// Connection Manager - kiosk side of the action stream
// ============================================================================
//
// States: CONNECTING -> CONNECTED -> DISCONNECTED -> (retry) CONNECTING,
// plus the orthogonal everConnected flag.
//
//   - Connect ok:    everConnected = true; a pending demo trigger is stopped.
//   - Down, never connected: arm the demo trigger (unless the demo already
//     started or a trigger is pending) and retry after the reconnect delay.
//     A server that shows up before the trigger fires wins.
//   - Down, was connected: retry after the reconnect delay, forever. A blip
//     after real connectivity never starts the demo.
//
// One goroutine (Run) owns all of this state. Dials run off the loop so demo
// actions keep flowing while an attempt hangs. The dialer, the socket reader
// and the demo only send into the loop, so onAction is only ever called from Run and
// never after Run returns.
// ============================================================================

type clientState int

const (
	stateConnecting clientState = iota
	stateConnected
	stateDisconnected
)

func (s clientState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ActionConn is one live connection to the action broadcaster.
type ActionConn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens connections to the action broadcaster.
type Dialer interface {
	Dial(ctx context.Context) (ActionConn, error)
}

// ConnectionConfig tunes retry and fallback timing.
type ConnectionConfig struct {
	ReconnectDelay time.Duration
	DemoTrigger    time.Duration
	ForceDemo      bool
}

// ConnectionStatus is a point-in-time view for callers outside the loop.
type ConnectionStatus struct {
	State         string `json:"state"`
	EverConnected bool   `json:"ever_connected"`
	DemoRunning   bool   `json:"demo_running"`
}

type frame struct {
	data []byte
	err  error
}

type dialResult struct {
	conn ActionConn
	err  error
}

type ConnectionManager struct {
	cfg      ConnectionConfig
	dialer   Dialer
	onAction func(SemanticAction)
	demo     *DemoFallback
	logger   *slog.Logger

	demoActions chan SemanticAction
	loopDone    chan struct{}

	statusMu      sync.Mutex
	state         clientState
	everConnected bool

	// Loop-owned.
	conn      ActionConn
	frames    chan frame
	dials     chan dialResult // non-nil while a dial is in flight
	workers   sync.WaitGroup
	reconnect *time.Timer
	trigger   *time.Timer
}

// NewConnectionManager builds a manager that feeds live and demo actions into
// onAction. The demo is owned by the manager and runs at most once.
func NewConnectionManager(cfg ConnectionConfig, dialer Dialer, demoSteps []DemoStep, demoStartDelay time.Duration, onAction func(SemanticAction), logger *slog.Logger) *ConnectionManager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelayMS * time.Millisecond
	}
	if cfg.DemoTrigger <= 0 {
		cfg.DemoTrigger = defaultDemoTriggerMS * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &ConnectionManager{
		cfg:         cfg,
		dialer:      dialer,
		onAction:    onAction,
		logger:      logger,
		demoActions: make(chan SemanticAction),
		loopDone:    make(chan struct{}),
		state:       stateConnecting,
	}
	m.demo = NewDemoFallback(demoSteps, demoStartDelay, m.forwardDemo, logger)
	return m
}

// forwardDemo hands a demo action to the loop; dropped once the loop is gone.
func (m *ConnectionManager) forwardDemo(a SemanticAction) {
	select {
	case m.demoActions <- a:
	case <-m.loopDone:
	}
}

// Status returns the current connection and demo state.
func (m *ConnectionManager) Status() ConnectionStatus {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return ConnectionStatus{
		State:         m.state.String(),
		EverConnected: m.everConnected,
		DemoRunning:   m.demo.Running(),
	}
}

// DemoStarted reports whether the fallback demo was ever started.
func (m *ConnectionManager) DemoStarted() bool { return m.demo.Started() }

func (m *ConnectionManager) setState(s clientState) {
	m.statusMu.Lock()
	m.state = s
	m.statusMu.Unlock()
}

func (m *ConnectionManager) markConnected() {
	m.statusMu.Lock()
	m.state = stateConnected
	m.everConnected = true
	m.statusMu.Unlock()
}

func (m *ConnectionManager) wasConnected() bool {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.everConnected
}

// Run connects and keeps reconnecting until ctx is canceled. Teardown stops
// every timer, closes the socket, cancels the demo and waits for the dialer,
// reader and demo goroutines before returning.
func (m *ConnectionManager) Run(ctx context.Context) error {
	defer m.teardown()

	if m.cfg.ForceDemo {
		m.startDemo(ctx, "demo mode forced")
	}

	m.connect(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timerC(m.reconnect):
			m.reconnect = nil
			if m.dials == nil {
				m.connect(ctx)
			}

		case r := <-m.dials:
			m.dials = nil
			m.dialed(ctx, r)

		case <-timerC(m.trigger):
			m.trigger = nil
			// A connection processed earlier in this loop always wins.
			if m.wasConnected() {
				continue
			}
			m.startDemo(ctx, "cannot connect to IR server - starting demo mode")

		case f := <-m.frames:
			if f.err != nil {
				m.logger.Info("disconnected from IR remote server", "error", f.err)
				m.dropConn()
				m.down()
				continue
			}
			m.handleFrame(f.data)

		case a := <-m.demoActions:
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Info("demo action", "action", a)
			m.onAction(a)
		}
	}
}

// timerC returns t's channel, or nil (never ready) when no timer is armed.
func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t *time.Timer) {
	if t != nil && !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func (m *ConnectionManager) connect(ctx context.Context) {
	m.setState(stateConnecting)
	m.logger.Debug("connecting to IR remote server")

	// Buffered so the dialer never blocks on a loop that has already left.
	dials := make(chan dialResult, 1)
	m.dials = dials
	m.workers.Add(1)
	go func() {
		defer m.workers.Done()
		conn, err := m.dialer.Dial(ctx)
		dials <- dialResult{conn: conn, err: err}
	}()
}

func (m *ConnectionManager) dialed(ctx context.Context, r dialResult) {
	if r.err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("cannot connect to IR remote server", "error", r.err)
		m.down()
		return
	}
	if ctx.Err() != nil {
		_ = r.conn.Close()
		return
	}

	m.markConnected()
	if m.trigger != nil {
		stopTimer(m.trigger)
		m.trigger = nil
		m.logger.Info("connected before demo start; demo canceled")
	}
	m.logger.Info("connected to IR remote server")

	m.conn = r.conn
	frames := make(chan frame)
	m.frames = frames
	m.workers.Add(1)
	go m.readLoop(r.conn, frames)
}

func (m *ConnectionManager) readLoop(conn ActionConn, frames chan<- frame) {
	defer m.workers.Done()
	for {
		b, err := conn.ReadMessage()
		select {
		case frames <- frame{data: b, err: err}:
		case <-m.loopDone:
			return
		}
		if err != nil {
			return
		}
	}
}

func (m *ConnectionManager) dropConn() {
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.frames = nil
}

// down handles a failed attempt or a closed connection.
func (m *ConnectionManager) down() {
	m.setState(stateDisconnected)

	if !m.wasConnected() && !m.demo.Started() && m.trigger == nil {
		m.trigger = time.NewTimer(m.cfg.DemoTrigger)
	}

	stopTimer(m.reconnect)
	m.reconnect = time.NewTimer(m.cfg.ReconnectDelay)
	m.logger.Debug("reconnect scheduled", "in", m.cfg.ReconnectDelay)
}

func (m *ConnectionManager) handleFrame(b []byte) {
	ev, err := decodeActionEvent(b)
	if err != nil {
		m.logger.Warn("dropping malformed message", "error", err)
		return
	}
	switch ev.Type {
	case msgTypeConnected:
		m.logger.Info("server ready", "message", ev.Message)
	case msgTypeButtonPress:
		m.logger.Info("IR remote", "action", ev.Action)
		m.onAction(ev.Action)
	}
}

func (m *ConnectionManager) startDemo(ctx context.Context, reason string) {
	if m.demo.Start(ctx) {
		m.logger.Info(reason)
	}
}

func (m *ConnectionManager) teardown() {
	stopTimer(m.reconnect)
	stopTimer(m.trigger)
	m.reconnect, m.trigger = nil, nil

	close(m.loopDone)
	m.dropConn()
	m.demo.Cancel()

	m.workers.Wait()
	// A dial that finished after the loop left still owns its conn.
	if m.dials != nil {
		select {
		case r := <-m.dials:
			if r.conn != nil {
				_ = r.conn.Close()
			}
		default:
		}
		m.dials = nil
	}
	m.demo.Wait()
	m.setState(stateDisconnected)
	m.logger.Info("connection manager stopped")
}
