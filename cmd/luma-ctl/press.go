package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewPressCommand creates the press command.
func NewPressCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "press <action>",
		Short: "Broadcast a semantic action",
		Long: `Broadcast a semantic action to every connected client, bypassing the
press classifier.

Actions: POWER, UP, DOWN, LEFT, RIGHT, OK, BACK, CHANNEL_UP, CHANNEL_DOWN,
BRIGHTNESS_UP, BRIGHTNESS_DOWN, EQ

Example:
  luma-ctl press ok`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := strings.ToUpper(args[0])
			if err := sendEvent(rootOpts.Socket, ButtonPress{Action: action}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

// IROptions holds flags for the ir command.
type IROptions struct {
	*RootOptions
	Repeat int
}

// NewIRCommand creates the ir command.
func NewIRCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IROptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ir <symbol>",
		Short: "Send one raw IR event through the press classifier",
		Long: `Send one raw (symbol, repeat) pair, exactly as irw would report it.

Example:
  luma-ctl ir KEY_UP
  luma-ctl ir KEY_LEFT --repeat 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Repeat < 0 {
				return fmt.Errorf("--repeat must be >= 0")
			}
			if err := sendEvent(opts.Socket, IREvent{Symbol: args[0], Repeat: opts.Repeat}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Repeat, "repeat", 0, "repeat counter")

	return cmd
}

// HoldOptions holds flags for the hold command.
type HoldOptions struct {
	*RootOptions
	Repeats  int
	Interval time.Duration
}

// NewHoldCommand creates the hold command.
func NewHoldCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HoldOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hold <symbol>",
		Short: "Simulate holding a button",
		Long: `Send an initial press followed by repeat events, like a held remote
button. With the server defaults, 20 or more repeats make a long press.

Example:
  luma-ctl hold KEY_LEFT             # long press: BACK
  luma-ctl hold KEY_LEFT --repeats 3 # short press: LEFT`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return hold(cmd, opts, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.Repeats, "repeats", 21, "number of repeat events after the initial press")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 100*time.Millisecond, "time between events")

	return cmd
}

func hold(cmd *cobra.Command, opts *HoldOptions, symbol string) error {
	if opts.Repeats < 0 {
		return fmt.Errorf("--repeats must be >= 0")
	}

	s, err := dialIPC(opts.Socket)
	if err != nil {
		return err
	}
	defer s.Close()

	for i := 0; i <= opts.Repeats; i++ {
		if i > 0 {
			time.Sleep(opts.Interval)
		}
		if err := s.Send(IREvent{Symbol: symbol, Repeat: i}); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok (%d repeats)\n", opts.Repeats)
	return nil
}

// NewDemoCommand creates the demo command group.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Play or stop the demo sequence on the server",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Play the demo sequence to every connected client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sendEvent(rootOpts.Socket, RunDemo{}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop a running demo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sendEvent(rootOpts.Socket, StopDemo{}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	})

	return cmd
}
