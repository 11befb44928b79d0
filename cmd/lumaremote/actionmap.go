package main

import "sort"

// ActionMap translates raw button symbols (as reported by the IR decoder) into
// semantic actions. It is immutable once built and safe for concurrent reads.
//
// Every symbol that appears in either table is assigned a dense slot index so
// the press classifier can keep per-symbol state in a fixed-size table.
type ActionMap struct {
	short map[string]SemanticAction
	long  map[string]SemanticAction
	slots map[string]int
}

// NewActionMap builds a map from short-press and long-press tables.
// The input maps are copied; later mutation by the caller has no effect.
//
// A symbol may appear only in long; in that case a quick release emits nothing.
func NewActionMap(short, long map[string]SemanticAction) *ActionMap {
	m := &ActionMap{
		short: make(map[string]SemanticAction, len(short)),
		long:  make(map[string]SemanticAction, len(long)),
		slots: make(map[string]int, len(short)+len(long)),
	}
	for sym, a := range short {
		m.short[sym] = a
	}
	for sym, a := range long {
		m.long[sym] = a
	}

	// Sorted so slot numbering is stable across runs (handy when reading debug logs).
	symbols := make([]string, 0, len(short)+len(long))
	seen := make(map[string]struct{}, len(short)+len(long))
	for _, table := range []map[string]SemanticAction{short, long} {
		for sym := range table {
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	for i, sym := range symbols {
		m.slots[sym] = i
	}
	return m
}

// ResolveShort returns the action fired by a brief press of symbol.
func (m *ActionMap) ResolveShort(symbol string) (SemanticAction, bool) {
	a, ok := m.short[symbol]
	return a, ok
}

// ResolveLong returns the alternate action fired once symbol is held past the threshold.
func (m *ActionMap) ResolveLong(symbol string) (SemanticAction, bool) {
	a, ok := m.long[symbol]
	return a, ok
}

// HasLongPress reports whether symbol has a long-press alternate.
func (m *ActionMap) HasLongPress(symbol string) bool {
	_, ok := m.long[symbol]
	return ok
}

// Known reports whether symbol appears in either table.
func (m *ActionMap) Known(symbol string) bool {
	_, ok := m.slots[symbol]
	return ok
}

// Slot returns the dense index assigned to symbol.
func (m *ActionMap) Slot(symbol string) (int, bool) {
	i, ok := m.slots[symbol]
	return i, ok
}

// Slots returns the number of distinct symbols known to the map.
func (m *ActionMap) Slots() int { return len(m.slots) }

// defaultShortPress mirrors the button table shipped with the mirror. Several
// remotes lack dedicated BACK/CHANNEL keys, so media and number keys double up.
func defaultShortPress() map[string]SemanticAction {
	return map[string]SemanticAction{
		// Core navigation
		"KEY_POWER":     ActionPower,
		"KEY_UP":        ActionUp,
		"KEY_DOWN":      ActionDown,
		"KEY_LEFT":      ActionLeft,
		"KEY_RIGHT":     ActionRight,
		"KEY_ENTER":     ActionOK,
		"KEY_OK":        ActionOK,
		"KEY_PLAY":      ActionOK,
		"KEY_PLAYPAUSE": ActionOK,

		// Back, with alternatives
		"KEY_BACK":     ActionBack,
		"KEY_EXIT":     ActionBack,
		"KEY_ESC":      ActionBack,
		"KEY_PREVIOUS": ActionBack,
		"KEY_9":        ActionBack,

		// Channels, with alternatives
		"KEY_CHANNELUP":   ActionChannelUp,
		"KEY_NEXT":        ActionChannelUp,
		"KEY_2":           ActionChannelUp,
		"KEY_PAGEUP":      ActionChannelUp,
		"KEY_CHANNELDOWN": ActionChannelDown,
		"KEY_8":           ActionChannelDown,
		"KEY_PAGEDOWN":    ActionChannelDown,

		// Brightness
		"KEY_VOLUMEUP":   ActionBrightnessUp,
		"KEY_VOLUMEDOWN": ActionBrightnessDown,
		"KEY_0":          ActionBrightnessDown,
		"KEY_1":          ActionBrightnessUp,
	}
}

// defaultLongPress lists the buttons with a hold alternate.
func defaultLongPress() map[string]SemanticAction {
	return map[string]SemanticAction{
		"KEY_LEFT":  ActionBack,
		"KEY_OK":    ActionEQ,
		"KEY_ENTER": ActionEQ,
	}
}
