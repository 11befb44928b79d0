package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListen_PrintsUntilCount(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connected","message":"IR Remote Server Ready"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"button_press","action":"UP","timestamp":1}`))
		// Hold the connection open until the client leaves.
		_, _, _ = conn.ReadMessage()
	}))
	defer ts.Close()

	var out bytes.Buffer
	opts := &ListenOptions{
		RootOptions: &RootOptions{Format: "text"},
		URL:         "ws" + strings.TrimPrefix(ts.URL, "http"),
		Count:       2,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, listen(ctx, opts, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[CONNECTED] IR Remote Server Ready", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "] UP"), lines[1])
}

func TestListen_ConnectFailure(t *testing.T) {
	opts := &ListenOptions{RootOptions: &RootOptions{Format: "text"}, URL: "ws://127.0.0.1:1"}
	err := listen(context.Background(), opts, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

// fakeDaemon accepts one IPC connection and answers every line with ok.
type fakeDaemon struct {
	mu    sync.Mutex
	lines []EventEnvelope
}

func startFakeDaemon(t *testing.T) (string, *fakeDaemon) {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "ctl.sock")
	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	d := &fakeDaemon{}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go d.serve(conn)
		}
	}()
	return socket, d
}

func (d *fakeDaemon) serve(conn net.Conn) {
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)
	for sc.Scan() {
		var env EventEnvelope
		resp := IPCResponse{Status: "ok"}
		if err := json.Unmarshal(sc.Bytes(), &env); err != nil {
			resp = IPCResponse{Status: "error", Error: err.Error()}
		}
		if env.Type == "stop_demo" {
			resp = IPCResponse{Status: "error", Error: "no demo running"}
		}
		d.mu.Lock()
		d.lines = append(d.lines, env)
		d.mu.Unlock()
		_ = enc.Encode(resp)
	}
}

func (d *fakeDaemon) received() []EventEnvelope {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]EventEnvelope(nil), d.lines...)
}

func runCtl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestHold_SendsPressThenRepeats(t *testing.T) {
	socket, d := startFakeDaemon(t)

	out, err := runCtl(t, "--socket", socket, "hold", "KEY_LEFT", "--repeats", "3", "--interval", "1ms")
	require.NoError(t, err)
	assert.Equal(t, "ok (3 repeats)\n", out)

	got := d.received()
	require.Len(t, got, 4)
	for i, env := range got {
		assert.Equal(t, "ir_event", env.Type)
		var ev IREvent
		require.NoError(t, json.Unmarshal(env.Data, &ev))
		assert.Equal(t, IREvent{Symbol: "KEY_LEFT", Repeat: i}, ev)
	}
}

func TestPress_UppercasesAction(t *testing.T) {
	socket, d := startFakeDaemon(t)

	out, err := runCtl(t, "--socket", socket, "press", "brightness_up")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	got := d.received()
	require.Len(t, got, 1)
	assert.Equal(t, "button_press", got[0].Type)
	assert.JSONEq(t, `{"action":"BRIGHTNESS_UP"}`, string(got[0].Data))
}

func TestDemoStop_ReportsDaemonError(t *testing.T) {
	socket, _ := startFakeDaemon(t)

	_, err := runCtl(t, "--socket", socket, "demo", "stop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no demo running")
}

func TestSendEvent_NoDaemon(t *testing.T) {
	err := sendEvent(filepath.Join(t.TempDir(), "none.sock"), RunDemo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to")
}
