package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// ListenOptions holds flags for the listen command.
type ListenOptions struct {
	*RootOptions
	URL   string
	Count int
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print the server's action stream",
		Long: `Connect to the websocket endpoint and print every message until
interrupted (or until --count messages have been received).

Example:
  luma-ctl listen --url ws://mirror.local:8765
  luma-ctl listen --format json --count 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return listen(ctx, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", defaultServerURL, "websocket URL")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "exit after this many messages (0 = unlimited)")

	return cmd
}

// streamMessage mirrors the server's wire format.
type streamMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Action    string `json:"action,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func listen(ctx context.Context, opts *ListenOptions, out io.Writer) error {
	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	fmt.Fprintf(os.Stderr, "connecting to %s...\n", opts.URL)
	conn, _, err := d.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for n := 0; opts.Count == 0 || n < opts.Count; n++ {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				fmt.Fprintln(os.Stderr, "connection closed")
				return nil
			}
			return fmt.Errorf("websocket error: %w", err)
		}
		printMessage(out, opts.Format, message)
	}
	return nil
}

func printMessage(out io.Writer, format string, message []byte) {
	if format == "json" {
		fmt.Fprintf(out, "%s\n", message)
		return
	}

	var m streamMessage
	if err := json.Unmarshal(message, &m); err != nil {
		fmt.Fprintf(out, "[RAW] %s\n", message)
		return
	}
	switch m.Type {
	case "connected":
		fmt.Fprintf(out, "[CONNECTED] %s\n", m.Message)
	case "button_press":
		at := time.UnixMilli(m.Timestamp).Format("15:04:05.000")
		fmt.Fprintf(out, "[%s] %s\n", at, m.Action)
	default:
		fmt.Fprintf(out, "[%s] %s\n", m.Type, message)
	}
}
