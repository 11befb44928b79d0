package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// Linux input event types (from <linux/input.h>)
const (
	EV_KEY = 0x01
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// evdevKeyNames names the key codes an IR receiver exposed through rc-core
// typically emits. Names match the LIRC/irw symbols so one ActionMap serves
// both sources.
var evdevKeyNames = map[uint16]string{
	1:   "KEY_ESC",
	2:   "KEY_1",
	3:   "KEY_2",
	9:   "KEY_8",
	10:  "KEY_9",
	11:  "KEY_0",
	28:  "KEY_ENTER",
	103: "KEY_UP",
	104: "KEY_PAGEUP",
	105: "KEY_LEFT",
	106: "KEY_RIGHT",
	108: "KEY_DOWN",
	109: "KEY_PAGEDOWN",
	114: "KEY_VOLUMEDOWN",
	115: "KEY_VOLUMEUP",
	116: "KEY_POWER",
	119: "KEY_PAUSE",
	158: "KEY_BACK",
	163: "KEY_NEXTSONG",
	164: "KEY_PLAYPAUSE",
	165: "KEY_PREVIOUSSONG",
	174: "KEY_EXIT",
	207: "KEY_PLAY",
	352: "KEY_OK",
	402: "KEY_CHANNELUP",
	403: "KEY_CHANNELDOWN",
	407: "KEY_NEXT",
	412: "KEY_PREVIOUS",
}

func evdevKeyName(code uint16) string {
	if name, ok := evdevKeyNames[code]; ok {
		return name
	}
	return fmt.Sprintf("KEY_%d", code)
}

// evdevRepeats turns kernel press/repeat/release values into IR-style repeat
// counters: press starts at 0, each autorepeat increments, release resets.
type evdevRepeats struct {
	counts map[uint16]int
}

func newEvdevRepeats() *evdevRepeats {
	return &evdevRepeats{counts: make(map[uint16]int)}
}

// translate returns the raw event for ev, or false for events that carry no
// press information (non-key events, releases).
func (r *evdevRepeats) translate(ev inputEvent) (RawEvent, bool) {
	if ev.Type != EV_KEY {
		return RawEvent{}, false
	}
	switch ev.Value {
	case evValuePress:
		r.counts[ev.Code] = 0
		return RawEvent{Symbol: evdevKeyName(ev.Code), Repeat: 0}, true
	case evValueRepeat:
		n, held := r.counts[ev.Code]
		if !held {
			// Repeat without a press we saw (device opened mid-hold).
			return RawEvent{}, false
		}
		n++
		r.counts[ev.Code] = n
		return RawEvent{Symbol: evdevKeyName(ev.Code), Repeat: n}, true
	case evValueRelease:
		// Release is decided by the classifier's debounce, not here.
		delete(r.counts, ev.Code)
	}
	return RawEvent{}, false
}

// readInputEvents reads input events from a file descriptor and sends them to a channel
// This runs in a dedicated goroutine and blocks on read operations. It returns
// once done is closed, even if nobody drains events.
func readInputEvents(f *os.File, events chan<- inputEvent, readErr chan<- error, done <-chan struct{}) {
	evSize := binary.Size(inputEvent{})
	buf := make([]byte, evSize)
	reader := bytes.NewReader(buf) // Reusable reader, reset on each iteration

	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			readErr <- fmt.Errorf("read from %s: %w", f.Name(), err)
			return
		}

		reader.Reset(buf)
		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			// Skip malformed events
			continue
		}

		select {
		case events <- ev:
		case <-done:
			return
		}
	}
}

// runEvdev reads from the configured input devices until ctx is canceled,
// reopening them after a failure if a restart delay is configured.
func (b *ListenerBridge) runEvdev(ctx context.Context) {
	for {
		files := b.openDevices()
		if len(files) == 0 {
			b.logger.Warn("no IR input device could be opened; IR remote will not work",
				"devices", b.cfg.Devices,
				"tip", "run as root or add user to 'input' group")
			b.setStatus(listenerUnavailable)
		} else {
			b.readEvdev(ctx, files)
			b.sink.Abandon()
			if ctx.Err() != nil {
				return
			}
			b.setStatus(listenerExited)
		}

		if !b.waitRestart(ctx) {
			b.idle(ctx, b.Status())
			return
		}
	}
}

func (b *ListenerBridge) openDevices() []*os.File {
	var files []*os.File
	for _, dev := range b.cfg.Devices {
		f, err := os.Open(dev)
		if err != nil {
			b.logger.Warn("failed to open input device", "device", dev, "error", err)
			continue
		}
		files = append(files, f)
	}
	return files
}

func (b *ListenerBridge) readEvdev(ctx context.Context, files []*os.File) {
	done := make(chan struct{})
	defer func() {
		// Unblock readers parked on a send, then their reads.
		close(done)
		for _, f := range files {
			_ = f.Close()
		}
	}()

	events := make(chan inputEvent, 64)
	readErr := make(chan error, len(files)+1)
	go readDevices(files, events, readErr, done)

	b.setStatus(listenerRunning)
	b.logger.Info("IR listener started", "source", listenerSourceEvdev, "devices", len(files))

	repeats := newEvdevRepeats()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			b.logger.Warn("input reader stopped", "error", err)
			return
		case ev := <-events:
			if raw, ok := repeats.translate(ev); ok {
				b.sink.Handle(raw)
			}
		}
	}
}
