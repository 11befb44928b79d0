//go:build linux

package main

import (
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDevices_EpollDeliversAndStopsOnDone(t *testing.T) {
	var files []*os.File
	var writers []*os.File
	for i := 0; i < 2; i++ {
		r, w, err := os.Pipe()
		require.NoError(t, err)
		files = append(files, r)
		writers = append(writers, w)
	}
	t.Cleanup(func() {
		for _, f := range append(files, writers...) {
			_ = f.Close()
		}
	})

	events := make(chan inputEvent)
	readErr := make(chan error, len(files)+1)
	done := make(chan struct{})
	returned := make(chan struct{})
	go func() {
		defer close(returned)
		readDevices(files, events, readErr, done)
	}()

	want := keyEvent(106, evValuePress)
	require.NoError(t, binary.Write(writers[1], binary.LittleEndian, want))
	select {
	case got := <-events:
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for input event")
	}

	// Leave the next event undrained; done must still stop the reader.
	require.NoError(t, binary.Write(writers[0], binary.LittleEndian, keyEvent(105, evValuePress)))
	time.Sleep(20 * time.Millisecond)
	close(done)

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("epoll reader stayed blocked on send after done")
	}
	assert.Empty(t, readErr)
}
