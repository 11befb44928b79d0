package main

import (
	"encoding/json"
	"fmt"
	"net"
)

// Event types (duplicated from the lumaremote package for a standalone binary)
type Event interface{}

type ButtonPress struct {
	Action string `json:"action"`
}

type IREvent struct {
	Symbol string `json:"symbol"`
	Repeat int    `json:"repeat"`
}

type RunDemo struct{}

type StopDemo struct{}

// EventEnvelope wraps events for JSON
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func marshalEvent(ev Event) ([]byte, error) {
	var env EventEnvelope

	switch e := ev.(type) {
	case ButtonPress:
		env.Type = "button_press"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal ButtonPress: %w", err)
		}
		env.Data = data

	case IREvent:
		env.Type = "ir_event"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal IREvent: %w", err)
		}
		env.Data = data

	case RunDemo:
		env.Type = "run_demo"

	case StopDemo:
		env.Type = "stop_demo"

	default:
		return nil, fmt.Errorf("unknown event type: %T", ev)
	}

	return json.Marshal(env)
}

// ipcSession sends several events over one connection.
type ipcSession struct {
	conn net.Conn
	dec  *json.Decoder
}

func dialIPC(socketPath string) (*ipcSession, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	return &ipcSession{conn: conn, dec: json.NewDecoder(conn)}, nil
}

func (s *ipcSession) Send(ev Event) error {
	data, err := marshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(s.conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var response IPCResponse
	if err := s.dec.Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if response.Status == "error" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}
	return nil
}

func (s *ipcSession) Close() error { return s.conn.Close() }

// sendEvent sends a single event and waits for the response.
func sendEvent(socketPath string, ev Event) error {
	s, err := dialIPC(socketPath)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Send(ev)
}
