package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyEvent(code uint16, value int32) inputEvent {
	return inputEvent{Type: EV_KEY, Code: code, Value: value}
}

func TestEvdevRepeats_Translate(t *testing.T) {
	r := newEvdevRepeats()

	ev, ok := r.translate(keyEvent(105, evValuePress))
	require.True(t, ok)
	assert.Equal(t, RawEvent{Symbol: "KEY_LEFT", Repeat: 0}, ev)

	for want := 1; want <= 3; want++ {
		ev, ok = r.translate(keyEvent(105, evValueRepeat))
		require.True(t, ok)
		assert.Equal(t, RawEvent{Symbol: "KEY_LEFT", Repeat: want}, ev)
	}

	_, ok = r.translate(keyEvent(105, evValueRelease))
	assert.False(t, ok, "release is left to the classifier debounce")

	// A new press starts counting again.
	ev, ok = r.translate(keyEvent(105, evValuePress))
	require.True(t, ok)
	assert.Equal(t, 0, ev.Repeat)
}

func TestEvdevRepeats_IgnoresNoise(t *testing.T) {
	r := newEvdevRepeats()

	_, ok := r.translate(inputEvent{Type: 0x04, Code: 4, Value: 1}) // EV_MSC scancode
	assert.False(t, ok)

	_, ok = r.translate(keyEvent(352, evValueRepeat))
	assert.False(t, ok, "repeat without a seen press")
}

func TestEvdevKeyName(t *testing.T) {
	assert.Equal(t, "KEY_OK", evdevKeyName(352))
	assert.Equal(t, "KEY_POWER", evdevKeyName(116))
	assert.Equal(t, "KEY_999", evdevKeyName(999))
}

func TestReadInputEvents(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	events := make(chan inputEvent, 4)
	readErr := make(chan error, 1)
	go readInputEvents(r, events, readErr, make(chan struct{}))

	var buf bytes.Buffer
	want := []inputEvent{keyEvent(103, evValuePress), keyEvent(103, evValueRepeat)}
	for _, ev := range want {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, ev))
	}
	_, err = w.Write(buf.Bytes())
	require.NoError(t, err)

	for _, exp := range want {
		select {
		case got := <-events:
			assert.Equal(t, exp, got)
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for input event")
		}
	}

	require.NoError(t, w.Close())
	select {
	case err := <-readErr:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatalf("reader did not report EOF")
	}
}

func TestReadInputEvents_ReturnsWhenDoneWithUndrainedEvents(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	events := make(chan inputEvent) // never drained
	readErr := make(chan error, 1)
	done := make(chan struct{})
	returned := make(chan struct{})
	go func() {
		defer close(returned)
		readInputEvents(r, events, readErr, done)
	}()

	require.NoError(t, binary.Write(w, binary.LittleEndian, keyEvent(28, evValuePress)))
	time.Sleep(20 * time.Millisecond)
	close(done)

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("reader stayed blocked on send after done")
	}
	assert.Empty(t, readErr)
}
