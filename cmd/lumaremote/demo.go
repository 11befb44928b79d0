package main

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// Demo Fallback - scripted action sequence
// ============================================================================
// When no live remote is reachable the kiosk replays a fixed sequence of
// actions so the mirror still shows itself off. A DemoFallback:
//   - runs at most once per instance (the run flag is never reset)
//   - waits each step's delay, then invokes the handler, strictly in order
//   - checks liveness before every step, so Cancel takes effect at the next
//     step boundary and no action fires after it
// ============================================================================

// DemoStep is one scripted action, fired Delay after the previous step.
type DemoStep struct {
	Action SemanticAction
	Delay  time.Duration
}

type demoScriptStep struct {
	action SemanticAction
	ms     int
}

// defaultDemoScript walks through setup (Montreal, Celsius, 12-hour clock),
// rearranges widgets, adjusts brightness, and power-cycles the display.
var defaultDemoScript = []demoScriptStep{
	// Setup starts
	{ActionOK, 0},

	// Brightness adjustment during setup
	{ActionBrightnessUp, 3000},
	{ActionBrightnessUp, 500},
	{ActionBrightnessUp, 500},
	{ActionBrightnessUp, 500},
	{ActionBrightnessDown, 500},
	{ActionBrightnessDown, 500},
	{ActionBrightnessDown, 500},
	{ActionOK, 3000},
	{ActionOK, 3000},

	// City selection (Montreal)
	{ActionBack, 10000},
	{ActionDown, 500},
	{ActionOK, 500},

	// Temperature / time settings
	{ActionRight, 500},
	{ActionRight, 500},
	{ActionRight, 500},
	{ActionRight, 500},
	{ActionRight, 500},
	{ActionOK, 500},
	{ActionDown, 500},
	{ActionDown, 500},
	{ActionDown, 500},
	{ActionRight, 500},
	{ActionOK, 3000},
	{ActionOK, 3000},
	{ActionOK, 3000},

	// Settings menu
	{ActionDown, 10000},
	{ActionDown, 500},
	{ActionDown, 500},
	{ActionOK, 500},

	// Rearrange widgets
	{ActionDown, 10000},
	{ActionOK, 500},
	{ActionDown, 5000},
	{ActionOK, 500},
	{ActionBack, 2000},
	{ActionBack, 500},
	{ActionDown, 5000},
	{ActionOK, 500},
	{ActionDown, 500},
	{ActionOK, 500},

	// Adjust widget position
	{ActionEQ, 7000},
	{ActionEQ, 500},
	{ActionUp, 500},
	{ActionUp, 500},
	{ActionRight, 500},
	{ActionRight, 500},
	{ActionRight, 500},
	{ActionOK, 500},
	{ActionDown, 500},
	{ActionOK, 500},

	// Final brightness
	{ActionBrightnessUp, 5000},
	{ActionBrightnessUp, 500},
	{ActionBrightnessUp, 500},
	{ActionBrightnessUp, 500},
	{ActionBrightnessUp, 500},

	// Power off, then back on
	{ActionPower, 5000},
	{ActionPower, 3000},

	// Return to main screen
	{ActionBack, 2000},
	{ActionBack, 500},
}

// DefaultDemoSequence returns a fresh copy of the built-in demo sequence.
func DefaultDemoSequence() []DemoStep {
	steps := make([]DemoStep, len(defaultDemoScript))
	for i, s := range defaultDemoScript {
		steps[i] = DemoStep{Action: s.action, Delay: time.Duration(s.ms) * time.Millisecond}
	}
	return steps
}

type DemoFallback struct {
	steps      []DemoStep
	startDelay time.Duration
	handler    func(SemanticAction)
	logger     *slog.Logger

	started atomic.Bool
	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDemoFallback creates a demo that plays steps into handler after startDelay.
func NewDemoFallback(steps []DemoStep, startDelay time.Duration, handler func(SemanticAction), logger *slog.Logger) *DemoFallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &DemoFallback{
		steps:      append([]DemoStep(nil), steps...),
		startDelay: startDelay,
		handler:    handler,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start launches the sequence in its own goroutine. It returns false if the
// demo was already started; a second start is a no-op even after the first
// run finished or was canceled.
func (d *DemoFallback) Start(ctx context.Context) bool {
	if !d.started.CompareAndSwap(false, true) {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	d.running.Store(true)

	go func() {
		defer close(d.done)
		defer cancel()
		d.run(ctx)
	}()
	return true
}

// Cancel stops the demo at the next step boundary.
func (d *DemoFallback) Cancel() {
	d.running.Store(false)
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until a started demo has stopped. It returns at once if the
// demo was never started.
func (d *DemoFallback) Wait() {
	if !d.started.Load() {
		return
	}
	<-d.done
}

// Started reports whether Start ever succeeded.
func (d *DemoFallback) Started() bool { return d.started.Load() }

// Running reports whether the sequence is still playing.
func (d *DemoFallback) Running() bool { return d.running.Load() }

func (d *DemoFallback) alive(ctx context.Context) bool {
	return ctx.Err() == nil && d.running.Load()
}

func (d *DemoFallback) run(ctx context.Context) {
	defer d.running.Store(false)

	d.logger.Info("demo mode activated", "steps", len(d.steps), "start_delay", d.startDelay)
	if !sleepCtx(ctx, d.startDelay) {
		d.logger.Info("demo canceled before start")
		return
	}

	for i, step := range d.steps {
		if !sleepCtx(ctx, step.Delay) || !d.alive(ctx) {
			d.logger.Info("demo canceled", "completed", i, "steps", len(d.steps))
			return
		}
		d.logger.Debug("demo action", "step", i+1, "steps", len(d.steps), "action", step.Action)
		d.handler(step.Action)
	}
	d.logger.Info("demo sequence complete", "steps", len(d.steps))
}

// sleepCtx waits for d or ctx cancellation; false means canceled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
