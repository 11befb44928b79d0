package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	defaultSocketPath = "/tmp/lumaremote.sock"
	defaultServerURL  = "ws://localhost:8765"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Socket string
	Format string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for luma-ctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "luma-ctl",
		Short:         "Control a lumaremote server",
		Long:          "Inject button presses, raw IR events and demo runs into a lumaremote server, or watch its action stream.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Socket, "socket", defaultSocketPath, "lumaremote IPC socket path")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewPressCommand(opts))
	cmd.AddCommand(NewIRCommand(opts))
	cmd.AddCommand(NewHoldCommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewListenCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
