package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// IPC Events
// ============================================================================
// Events injected over the IPC socket by luma-ctl and scripts, standing in
// for a physical remote:
//   - button_press  broadcast an action directly
//   - ir_event      feed a raw (symbol, repeat) pair through the classifier
//   - run_demo      play the demo sequence to every websocket client
//   - stop_demo     cancel it
// ============================================================================

// IPCEvent is a marker interface for all injectable events.
type IPCEvent interface {
	ipcEvent()
}

// ButtonPress broadcasts Action as if a remote had been pressed.
type ButtonPress struct {
	Action SemanticAction `json:"action"`
}

func (ButtonPress) ipcEvent() {}

// IREvent is one raw decoder line, already split into its fields.
type IREvent struct {
	Symbol string `json:"symbol"`
	Repeat int    `json:"repeat"`
}

func (IREvent) ipcEvent() {}

type RunDemo struct{}

func (RunDemo) ipcEvent() {}

type StopDemo struct{}

func (StopDemo) ipcEvent() {}

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete IPCEvent
func UnmarshalEvent(data []byte) (IPCEvent, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "button_press":
		var raw struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal ButtonPress: %w", err)
		}
		a, err := ParseAction(raw.Action)
		if err != nil {
			return nil, err
		}
		return ButtonPress{Action: a}, nil

	case "ir_event":
		var e IREvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal IREvent: %w", err)
		}
		if e.Symbol == "" {
			return nil, fmt.Errorf("ir_event: symbol must not be empty")
		}
		if e.Repeat < 0 {
			return nil, fmt.Errorf("ir_event: repeat must be >= 0")
		}
		return e, nil

	case "run_demo":
		return RunDemo{}, nil

	case "stop_demo":
		return StopDemo{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an IPCEvent into a JSON envelope with type discriminator
func MarshalEvent(e IPCEvent) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
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
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
