package main

import (
	"fmt"
	"os"
)

// ============================================================================
// luma-ctl - Command-line client for lumaremote
// ============================================================================
// Drives a running lumaremote server without IR hardware:
//
//   luma-ctl press OK             broadcast an action
//   luma-ctl ir KEY_LEFT          send one raw IR event
//   luma-ctl hold KEY_LEFT        simulate holding a button (long press)
//   luma-ctl demo start|stop      play the demo sequence to every client
//   luma-ctl listen               print the action stream
// ============================================================================

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
