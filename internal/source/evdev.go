package source

import (
	"fmt"
	"strconv"
	"strings"

	"chorder/internal/engine"
	"chorder/internal/keys"
)

// Linux input event constants.
const (
	evKey = 0x01

	keyRelease = 0
	keyPress   = 1
	keyRepeat  = 2
)

var keyCodeNames = map[string]uint16{
	"ESC": 1, "1": 2, "2": 3, "3": 4, "4": 5, "5": 6, "6": 7, "7": 8, "8": 9, "9": 10, "0": 11,
	"TAB": 15, "Q": 16, "W": 17, "E": 18, "R": 19, "T": 20, "Y": 21, "U": 22, "I": 23, "O": 24, "P": 25,
	"ENTER": 28, "LEFTCTRL": 29, "A": 30, "S": 31, "D": 32, "F": 33, "G": 34, "H": 35, "J": 36, "K": 37, "L": 38,
	"LEFTSHIFT": 42, "Z": 44, "X": 45, "C": 46, "V": 47, "B": 48, "N": 49, "M": 50,
	"RIGHTSHIFT": 54, "LEFTALT": 56, "SPACE": 57,
	"F1": 59, "F2": 60, "F3": 61, "F4": 62, "F5": 63, "F6": 64, "F7": 65, "F8": 66, "F9": 67, "F10": 68,
	"UP": 103, "LEFT": 105, "RIGHT": 106, "DOWN": 108,
	"BTN_0": 0x100, "BTN_1": 0x101, "BTN_2": 0x102, "BTN_3": 0x103, "BTN_4": 0x104,
	"BTN_5": 0x105, "BTN_6": 0x106, "BTN_7": 0x107, "BTN_8": 0x108, "BTN_9": 0x109,
}

// ParseKeyCode interprets a registry pin as a Linux key code: either a
// number ("30", "0x110") or a name such as "KEY_A" or "BTN_0".
func ParseKeyCode(pin string) (uint16, error) {
	if n, err := strconv.ParseUint(pin, 0, 16); err == nil {
		return uint16(n), nil
	}
	name := strings.TrimPrefix(strings.ToUpper(pin), "KEY_")
	if code, ok := keyCodeNames[name]; ok {
		return code, nil
	}
	return 0, fmt.Errorf("pin %q is not a key code", pin)
}

// KeyCodeMap maps key codes to registry indices using each key's pin.
func KeyCodeMap(reg *keys.Registry) (map[uint16]keys.Index, error) {
	out := make(map[uint16]keys.Index, reg.Len())
	for _, d := range reg.Keys() {
		code, err := ParseKeyCode(d.Pin)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", d, err)
		}
		if prev, dup := out[code]; dup {
			return nil, fmt.Errorf("key %s: code %d already used by key %d", d, code, prev)
		}
		out[code] = d.Index
	}
	return out, nil
}

// translate converts one raw input event. Repeats, non-key events and
// unmapped codes are skipped.
func translate(codes map[uint16]keys.Index, typ, code uint16, value int32) (engine.Event, bool) {
	if typ != evKey {
		return engine.Event{}, false
	}
	idx, ok := codes[code]
	if !ok {
		return engine.Event{}, false
	}
	switch value {
	case keyPress:
		return engine.Press(idx), true
	case keyRelease:
		return engine.Release(idx), true
	default:
		return engine.Event{}, false
	}
}
