// Package chord holds the modal chord table: for every mode, a mapping from a
// sorted key combination to an output token and the mode that follows it.
//
// Tables are built once (from a file or the embedded default), validated at
// build time and never mutated afterwards.
package chord

import (
	"math/bits"
	"strconv"
	"strings"

	"chorder/internal/keys"
)

// Combo is a set of key indices stored as a bitmask: bit i is key i. The
// representation is sorted and multiplicity-free by construction.
type Combo uint16

// ComboOf returns the combination of the given key indices. Indices at or
// above keys.MaxKeys are ignored.
func ComboOf(idx ...keys.Index) Combo {
	var c Combo
	for _, i := range idx {
		c = c.With(i)
	}
	return c
}

// With returns c with key i added.
func (c Combo) With(i keys.Index) Combo {
	if int(i) >= keys.MaxKeys {
		return c
	}
	return c | 1<<i
}

// Without returns c with key i removed. Removing an absent key is a no-op.
func (c Combo) Without(i keys.Index) Combo {
	if int(i) >= keys.MaxKeys {
		return c
	}
	return c &^ (1 << i)
}

// Has reports whether key i is in c.
func (c Combo) Has(i keys.Index) bool {
	return int(i) < keys.MaxKeys && c&(1<<i) != 0
}

// Len returns the number of keys in c.
func (c Combo) Len() int {
	return bits.OnesCount16(uint16(c))
}

// IsEmpty reports whether c holds no keys.
func (c Combo) IsEmpty() bool {
	return c == 0
}

// Indices returns the key indices of c in ascending order.
func (c Combo) Indices() []keys.Index {
	out := make([]keys.Index, 0, c.Len())
	for m := uint16(c); m != 0; m &= m - 1 {
		out = append(out, keys.Index(bits.TrailingZeros16(m)))
	}
	return out
}

// String renders c as a sorted set, e.g. "{1,2}".
func (c Combo) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, idx := range c.Indices() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(idx)))
	}
	b.WriteByte('}')
	return b.String()
}

// Label renders c using key abbreviations from reg, e.g. "NC". Keys unknown
// to reg are rendered by index.
func (c Combo) Label(reg *keys.Registry) string {
	if reg == nil {
		return c.String()
	}
	var b strings.Builder
	for _, idx := range c.Indices() {
		if d, ok := reg.ByIndex(idx); ok {
			b.WriteString(d.Abbrev)
			continue
		}
		b.WriteString("#" + strconv.Itoa(int(idx)))
	}
	return b.String()
}
