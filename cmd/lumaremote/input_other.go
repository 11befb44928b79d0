//go:build !linux

package main

import (
	"fmt"
	"os"
)

// readDevices starts one blocking reader per device. Only Linux exposes
// evdev, so this exists to keep the daemon building elsewhere.
func readDevices(files []*os.File, events chan<- inputEvent, readErr chan<- error, done <-chan struct{}) {
	if len(files) == 0 {
		readErr <- fmt.Errorf("no input devices provided")
		return
	}
	for _, f := range files {
		go readInputEvents(f, events, readErr, done)
	}
}
