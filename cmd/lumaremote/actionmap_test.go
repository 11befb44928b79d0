package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionMap_Resolve(t *testing.T) {
	m := testActionMap()

	a, ok := m.ResolveShort("LEFT")
	require.True(t, ok)
	assert.Equal(t, ActionLeft, a)

	a, ok = m.ResolveLong("LEFT")
	require.True(t, ok)
	assert.Equal(t, ActionBack, a)

	_, ok = m.ResolveLong("1")
	assert.False(t, ok)
	assert.False(t, m.HasLongPress("1"))

	_, ok = m.ResolveShort("KEY_UNKNOWN")
	assert.False(t, ok)
	assert.False(t, m.Known("KEY_UNKNOWN"))
}

func TestActionMap_SlotsAreDenseAndStable(t *testing.T) {
	m := testActionMap()

	// LEFT and OK appear in both tables; they get one slot each.
	assert.Equal(t, 4, m.Slots())

	seen := make(map[int]string)
	for _, sym := range []string{"1", "HOLD", "LEFT", "OK"} {
		i, ok := m.Slot(sym)
		require.True(t, ok, sym)
		require.GreaterOrEqual(t, i, 0)
		require.Less(t, i, m.Slots())
		_, dup := seen[i]
		require.False(t, dup, "slot %d reused", i)
		seen[i] = sym
	}

	// Sorted symbol order.
	i, _ := m.Slot("1")
	assert.Equal(t, 0, i)

	_, ok := m.Slot("NOPE")
	assert.False(t, ok)
}

func TestActionMap_CopiesInput(t *testing.T) {
	short := map[string]SemanticAction{"A": ActionUp}
	m := NewActionMap(short, nil)
	short["A"] = ActionDown
	short["B"] = ActionDown

	a, _ := m.ResolveShort("A")
	assert.Equal(t, ActionUp, a)
	assert.False(t, m.Known("B"))
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    SemanticAction
		wantErr bool
	}{
		{"OK", ActionOK, false},
		{"ok", ActionOK, false},
		{" brightness_up ", ActionBrightnessUp, false},
		{"CHANNEL_DOWN", ActionChannelDown, false},
		{"EQ", ActionEQ, false},
		{"VOLUME_UP", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultTablesOnlyUseKnownActions(t *testing.T) {
	for sym, a := range defaultShortPress() {
		assert.True(t, a.Valid(), "short %s -> %s", sym, a)
	}
	for sym, a := range defaultLongPress() {
		assert.True(t, a.Valid(), "long %s -> %s", sym, a)
	}
}
