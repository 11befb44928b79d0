package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Wire protocol (server -> client only)
// ============================================================================
//
// One UTF-8 JSON object per websocket text frame:
//
//	{"type":"connected","message":"IR Remote Server Ready"}
//	{"type":"button_press","action":"OK","timestamp":1718000000000}
//
// No client -> server messages are defined.
// ============================================================================

const (
	msgTypeConnected   = "connected"
	msgTypeButtonPress = "button_press"
)

// ActionEvent is the serialized form crossing the transport boundary.
type ActionEvent struct {
	Type      string         `json:"type"`
	Message   string         `json:"message,omitempty"`
	Action    SemanticAction `json:"action,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"` // unix milliseconds
}

func encodeConnected() ([]byte, error) {
	return json.Marshal(ActionEvent{Type: msgTypeConnected, Message: connectedMessage})
}

func encodeButtonPress(a SemanticAction, at time.Time) ([]byte, error) {
	return json.Marshal(ActionEvent{
		Type:      msgTypeButtonPress,
		Action:    a,
		Timestamp: at.UnixMilli(),
	})
}

// decodeActionEvent parses one inbound frame. Unknown types and actions outside
// the closed set are errors; the caller drops the frame and keeps the connection.
func decodeActionEvent(b []byte) (ActionEvent, error) {
	var ev ActionEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return ActionEvent{}, fmt.Errorf("unmarshal message: %w", err)
	}
	switch ev.Type {
	case msgTypeConnected:
		return ev, nil
	case msgTypeButtonPress:
		if !ev.Action.Valid() {
			return ActionEvent{}, fmt.Errorf("button_press with unknown action %q", ev.Action)
		}
		return ev, nil
	default:
		return ActionEvent{}, fmt.Errorf("unknown message type: %q", ev.Type)
	}
}
