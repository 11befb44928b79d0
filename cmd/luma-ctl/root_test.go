package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "luma-ctl", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{{"press"}, {"ir"}, {"hold"}, {"demo", "start"}, {"demo", "stop"}, {"listen"}}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	socketFlag := cmd.PersistentFlags().Lookup("socket")
	require.NotNil(t, socketFlag)
	assert.Equal(t, defaultSocketPath, socketFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestHoldDefaultsReachLongPress(t *testing.T) {
	cmd := NewRootCommand()
	holdCmd, _, err := cmd.Find([]string{"hold"})
	require.NoError(t, err)

	repeats := holdCmd.Flags().Lookup("repeats")
	require.NotNil(t, repeats)
	assert.Equal(t, "21", repeats.DefValue)
}

func TestInvalidFormatRejected(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "xml", "press", "OK"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestMarshalEvent(t *testing.T) {
	tests := []struct {
		name     string
		ev       Event
		wantType string
		wantData string
	}{
		{"press", ButtonPress{Action: "OK"}, "button_press", `{"action":"OK"}`},
		{"ir", IREvent{Symbol: "KEY_LEFT", Repeat: 3}, "ir_event", `{"symbol":"KEY_LEFT","repeat":3}`},
		{"run demo", RunDemo{}, "run_demo", ""},
		{"stop demo", StopDemo{}, "stop_demo", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := marshalEvent(tt.ev)
			require.NoError(t, err)

			var env EventEnvelope
			require.NoError(t, json.Unmarshal(b, &env))
			assert.Equal(t, tt.wantType, env.Type)
			if tt.wantData == "" {
				assert.Empty(t, env.Data)
			} else {
				assert.JSONEq(t, tt.wantData, string(env.Data))
			}
		})
	}

	_, err := marshalEvent(42)
	assert.Error(t, err)
}

func TestPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	printMessage(&buf, "text", []byte(`{"type":"connected","message":"IR Remote Server Ready"}`))
	assert.Equal(t, "[CONNECTED] IR Remote Server Ready\n", buf.String())

	buf.Reset()
	printMessage(&buf, "text", []byte(`{"type":"button_press","action":"EQ","timestamp":1718000000000}`))
	assert.Contains(t, buf.String(), "] EQ\n")

	buf.Reset()
	printMessage(&buf, "text", []byte(`not json`))
	assert.Equal(t, "[RAW] not json\n", buf.String())

	buf.Reset()
	printMessage(&buf, "json", []byte(`{"type":"button_press","action":"UP"}`))
	assert.Equal(t, `{"type":"button_press","action":"UP"}`+"\n", buf.String())
}
