package main

import (
	"log/slog"
	"sync"
	"time"
)

// ============================================================================
// Press Classifier - short/long press detection
// ============================================================================
//
// Input is a stream of (symbol, repeat) pairs from the IR decoder:
//   - repeat == 0 is a fresh physical press
//   - repeat  > 0 is the decoder's periodic "still held" re-announcement
//
// Per symbol the classifier walks IDLE -> HELD_PENDING -> (SHORT | LONG) -> IDLE:
//   - Symbols without a long-press alternate fire their short action on repeat 0.
//   - Symbols with one are held pending; every repeat rearms a release timer.
//     Reaching the repeat threshold fires the long action (once per hold).
//     When the release timer elapses the press is over; if the long action
//     did not fire, the deferred short action fires then.
//
// The threshold counts repeat events, not wall-clock time. At the usual
// ~10 repeats/s a threshold of 20 is about two seconds of hold.
// ============================================================================

// RawEvent is one decoded IR line: a button symbol and its repeat counter.
type RawEvent struct {
	Symbol string `json:"symbol"`
	Repeat int    `json:"repeat"`
}

// pressKind labels how an emitted action was decided (logs + metrics).
type pressKind string

const (
	pressDirect pressKind = "direct"
	pressShort  pressKind = "short"
	pressLong   pressKind = "long"
)

// releaseTimer is the part of *time.Timer the classifier needs.
type releaseTimer interface {
	Stop() bool
}

// afterFuncFactory schedules f after d. Production uses time.AfterFunc.
type afterFuncFactory func(d time.Duration, f func()) releaseTimer

func realAfterFunc(d time.Duration, f func()) releaseTimer {
	return time.AfterFunc(d, f)
}

// ClassifierConfig holds the press-timing tunables.
type ClassifierConfig struct {
	// LongPressRepeats is the repeat count at which a hold becomes a long press.
	LongPressRepeats int
	// ReleaseDebounce is how long after the last repeat a button counts as released.
	ReleaseDebounce time.Duration
}

// pressState is the live state of one held symbol. It exists only between the
// initial press and the detected release.
type pressState struct {
	active    bool
	symbol    string
	startedAt time.Time
	repeat    int
	longFired bool
	timer     releaseTimer

	// gen increments every time the slot is (re)armed; a timer callback carrying
	// an older generation is stale and must do nothing.
	gen uint64
}

func (s *pressState) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *pressState) clear() {
	gen := s.gen
	*s = pressState{gen: gen}
}

// PressClassifier debounces raw IR events into at most one semantic action
// per physical press. It is safe for concurrent use; timer callbacks and
// Handle serialize on a single mutex.
//
// The emit sink is called with the lock held, so it must not block and must
// not call back into the classifier.
type PressClassifier struct {
	mu sync.Mutex

	actions *ActionMap
	cfg     ClassifierConfig
	slots   []pressState // indexed by ActionMap.Slot

	emit      func(SemanticAction)
	afterFunc afterFuncFactory
	now       func() time.Time

	logger  *slog.Logger
	metrics *Metrics
}

// NewPressClassifier creates a classifier emitting into emit.
func NewPressClassifier(actions *ActionMap, cfg ClassifierConfig, emit func(SemanticAction), logger *slog.Logger, metrics *Metrics) *PressClassifier {
	if cfg.LongPressRepeats <= 0 {
		cfg.LongPressRepeats = defaultLongPressRepeats
	}
	if cfg.ReleaseDebounce <= 0 {
		cfg.ReleaseDebounce = defaultReleaseDebounceMS * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PressClassifier{
		actions:   actions,
		cfg:       cfg,
		slots:     make([]pressState, actions.Slots()),
		emit:      emit,
		afterFunc: realAfterFunc,
		now:       time.Now,
		logger:    logger,
		metrics:   metrics,
	}
}

// Handle feeds one raw event through the state machine.
func (c *PressClassifier) Handle(ev RawEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.IncRawEvents()

	if !c.actions.Known(ev.Symbol) {
		if ev.Repeat == 0 {
			c.logger.Info("unknown IR button", "button", ev.Symbol)
			c.metrics.IncUnknownButtons()
		}
		return
	}
	i, _ := c.actions.Slot(ev.Symbol)
	st := &c.slots[i]

	if ev.Repeat == 0 {
		if !c.actions.HasLongPress(ev.Symbol) {
			if a, ok := c.actions.ResolveShort(ev.Symbol); ok {
				c.fire(ev.Symbol, a, pressDirect)
			}
			return
		}

		if st.active {
			// A second fresh press while still held is a decoder glitch; start over.
			c.logger.Debug("press restarted while held", "button", ev.Symbol, "repeat", st.repeat)
			st.stopTimer()
		}
		st.gen++
		st.active = true
		st.symbol = ev.Symbol
		st.startedAt = c.now()
		st.repeat = 0
		st.longFired = false
		st.timer = c.armRelease(i, st.gen)
		return
	}

	if !st.active {
		// Repeats for plain buttons, or a hold whose release already fired.
		return
	}

	st.stopTimer()
	st.gen++
	st.timer = c.armRelease(i, st.gen)
	if ev.Repeat > st.repeat {
		st.repeat = ev.Repeat
	}

	if !st.longFired && st.repeat >= c.cfg.LongPressRepeats {
		st.longFired = true
		if a, ok := c.actions.ResolveLong(ev.Symbol); ok {
			c.fire(ev.Symbol, a, pressLong)
		}
	}
}

func (c *PressClassifier) armRelease(slot int, gen uint64) releaseTimer {
	return c.afterFunc(c.cfg.ReleaseDebounce, func() {
		c.release(slot, gen)
	})
}

// release runs when no repeat arrived within the debounce window.
func (c *PressClassifier) release(slot int, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := &c.slots[slot]
	if !st.active || st.gen != gen {
		return
	}

	if !st.longFired {
		if a, ok := c.actions.ResolveShort(st.symbol); ok {
			c.fire(st.symbol, a, pressShort)
		}
	}
	c.logger.Debug("button released",
		"button", st.symbol,
		"repeat", st.repeat,
		"long_fired", st.longFired,
		"held_ms", c.now().Sub(st.startedAt).Milliseconds())
	st.clear()
}

func (c *PressClassifier) fire(symbol string, a SemanticAction, kind pressKind) {
	c.logger.Info("IR button", "button", symbol, "action", a, "press", kind)
	c.metrics.IncActions(kind)
	if c.emit != nil {
		c.emit(a)
	}
}

// Abandon drops every in-flight press without emitting anything. Used when
// the raw event source dies mid-hold: a lost signal is treated as lost.
func (c *PressClassifier) Abandon() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for i := range c.slots {
		st := &c.slots[i]
		if !st.active {
			continue
		}
		st.stopTimer()
		st.gen++
		st.clear()
		n++
	}
	if n > 0 {
		c.logger.Warn("abandoned held buttons", "count", n)
	}
	return n
}

// Pending reports whether symbol currently has live press state.
func (c *PressClassifier) Pending(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.actions.Slot(symbol)
	if !ok {
		return false
	}
	return c.slots[i].active
}

// Held returns the number of symbols with live press state.
func (c *PressClassifier) Held() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for i := range c.slots {
		if c.slots[i].active {
			n++
		}
	}
	return n
}
