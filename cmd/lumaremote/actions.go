package main

import (
	"fmt"
	"strings"
)

// ============================================================================
// Semantic Actions
// ============================================================================
// SemanticAction is the only vocabulary crossing the boundary between the
// remote subsystem and the mirror UI. Raw button symbols never leave the
// server; they are translated by the ActionMap first.
// ============================================================================

// SemanticAction is an application-level remote command.
type SemanticAction string

const (
	ActionPower          SemanticAction = "POWER"
	ActionUp             SemanticAction = "UP"
	ActionDown           SemanticAction = "DOWN"
	ActionLeft           SemanticAction = "LEFT"
	ActionRight          SemanticAction = "RIGHT"
	ActionOK             SemanticAction = "OK"
	ActionBack           SemanticAction = "BACK"
	ActionChannelUp      SemanticAction = "CHANNEL_UP"
	ActionChannelDown    SemanticAction = "CHANNEL_DOWN"
	ActionBrightnessUp   SemanticAction = "BRIGHTNESS_UP"
	ActionBrightnessDown SemanticAction = "BRIGHTNESS_DOWN"
	ActionEQ             SemanticAction = "EQ"
)

// allActions is the closed set, in the order the UI documents them.
var allActions = []SemanticAction{
	ActionPower,
	ActionUp,
	ActionDown,
	ActionLeft,
	ActionRight,
	ActionOK,
	ActionBack,
	ActionChannelUp,
	ActionChannelDown,
	ActionBrightnessUp,
	ActionBrightnessDown,
	ActionEQ,
}

// Valid reports whether a is a member of the closed action set.
func (a SemanticAction) Valid() bool {
	for _, known := range allActions {
		if a == known {
			return true
		}
	}
	return false
}

func (a SemanticAction) String() string { return string(a) }

// ParseAction converts a user-supplied name (any case) into a SemanticAction.
func ParseAction(s string) (SemanticAction, error) {
	a := SemanticAction(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q (must be one of %s)", s, actionNames())
	}
	return a, nil
}

func actionNames() string {
	names := make([]string, len(allActions))
	for i, a := range allActions {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}
