package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorder/internal/engine"
	"chorder/internal/keys"
)

func evdevRegistry(t *testing.T) *keys.Registry {
	t.Helper()
	reg, err := keys.FromSpecs([]keys.Spec{
		{Pin: "KEY_J", Abbrev: "I", Description: "Index"},
		{Pin: "37", Abbrev: "M", Description: "Middle"},
		{Pin: "0x100", Abbrev: "T", Description: "Thumb"},
	})
	require.NoError(t, err)
	return reg
}

func TestParseKeyCode(t *testing.T) {
	tests := []struct {
		pin  string
		code uint16
	}{
		{"30", 30},
		{"0x110", 0x110},
		{"KEY_A", 30},
		{"key_space", 57},
		{"BTN_0", 0x100},
		{"ENTER", 28},
	}
	for _, test := range tests {
		code, err := ParseKeyCode(test.pin)
		require.NoError(t, err, test.pin)
		assert.Equal(t, test.code, code, test.pin)
	}

	_, err := ParseKeyCode("A1")
	assert.Error(t, err)
}

func TestKeyCodeMap(t *testing.T) {
	codes, err := KeyCodeMap(evdevRegistry(t))
	require.NoError(t, err)
	assert.Equal(t, map[uint16]keys.Index{36: 0, 37: 1, 0x100: 2}, codes)

	_, err = KeyCodeMap(keys.Default())
	assert.Error(t, err, "board pins are not key codes")

	dup, err := keys.FromSpecs([]keys.Spec{
		{Pin: "KEY_A", Abbrev: "A", Description: "a"},
		{Pin: "30", Abbrev: "B", Description: "b"},
	})
	require.NoError(t, err)
	_, err = KeyCodeMap(dup)
	assert.Error(t, err)
}

func TestTranslate(t *testing.T) {
	codes := map[uint16]keys.Index{36: 0, 37: 1}

	ev, ok := translate(codes, evKey, 37, keyPress)
	require.True(t, ok)
	assert.Equal(t, engine.Press(1), ev)

	ev, ok = translate(codes, evKey, 36, keyRelease)
	require.True(t, ok)
	assert.Equal(t, engine.Release(0), ev)

	_, ok = translate(codes, evKey, 36, keyRepeat)
	assert.False(t, ok, "autorepeat is not a press")
	_, ok = translate(codes, evKey, 99, keyPress)
	assert.False(t, ok)
	_, ok = translate(codes, 0x00, 36, keyPress)
	assert.False(t, ok, "sync events are skipped")
}
