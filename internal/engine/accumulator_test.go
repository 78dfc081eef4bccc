package engine

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorder/internal/chord"
	"chorder/internal/keys"
)

func TestAccumulatorSamplesOnFirstRelease(t *testing.T) {
	orders := [][]keys.Index{
		{1, 2, 3}, {1, 3, 2}, {2, 1, 3}, {2, 3, 1}, {3, 1, 2}, {3, 2, 1},
	}
	for _, order := range orders {
		var a Accumulator
		var samples []chord.Combo
		sample := func(c chord.Combo, _ time.Duration) { samples = append(samples, c) }

		for _, k := range []keys.Index{1, 2, 3} {
			a.Press(k, time.Time{})
		}
		for _, k := range order {
			a.Release(k, time.Time{}, sample)
		}

		require.Len(t, samples, 1, "release order %v", order)
		assert.Equal(t, chord.ComboOf(1, 2, 3), samples[0], "release order %v", order)
		assert.True(t, a.State().Idle())
	}
}

func TestAccumulatorSampleIncludesReleasedKey(t *testing.T) {
	var a Accumulator
	a.Press(4, time.Time{})
	var got chord.Combo
	ok := a.Release(4, time.Time{}, func(c chord.Combo, _ time.Duration) {
		got = c
		assert.True(t, a.State().Pressed.Has(4), "key is removed after sampling")
	})
	assert.True(t, ok)
	assert.Equal(t, chord.ComboOf(4), got)
	assert.False(t, a.State().Pressed.Has(4))
}

func TestAccumulatorReleaseOfAbsentKeyIsNoop(t *testing.T) {
	var a Accumulator
	a.Press(1, time.Time{})
	before := a.State()

	called := false
	ok := a.Release(5, time.Time{}, func(chord.Combo, time.Duration) { called = true })
	assert.False(t, ok)
	assert.False(t, called)
	assert.Equal(t, before, a.State())
	assert.True(t, a.State().Hot, "hot survives the stray release")

	var got chord.Combo
	assert.True(t, a.Release(1, time.Time{}, func(c chord.Combo, _ time.Duration) { got = c }))
	assert.Equal(t, chord.ComboOf(1), got, "the next real release samples the held keys")

	var idle Accumulator
	idle.Release(2, time.Time{}, nil)
	assert.Equal(t, AccumulatorState{}, idle.State())
}

func TestAccumulatorDuplicatePress(t *testing.T) {
	var a Accumulator
	assert.True(t, a.Press(2, time.Time{}))
	assert.False(t, a.Press(2, time.Time{}))
	assert.Equal(t, AccumulatorState{Pressed: chord.ComboOf(2), Hot: true}, a.State())
}

func TestAccumulatorNewWindowAfterDrain(t *testing.T) {
	var a Accumulator
	count := 0
	sample := func(chord.Combo, time.Duration) { count++ }

	a.Press(1, time.Time{})
	a.Press(2, time.Time{})
	a.Release(1, time.Time{}, sample)
	// Pressing again while 2 is still held opens a new window.
	a.Press(3, time.Time{})
	var got chord.Combo
	a.Release(3, time.Time{}, func(c chord.Combo, d time.Duration) { got = c; sample(c, d) })
	a.Release(2, time.Time{}, sample)

	assert.Equal(t, 2, count)
	assert.Equal(t, chord.ComboOf(2, 3), got)
	assert.True(t, a.State().Idle())
}

func TestAccumulatorHeldDuration(t *testing.T) {
	var a Accumulator
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a.Press(1, start)
	a.Press(2, start.Add(30*time.Millisecond))

	var held time.Duration
	a.Release(2, start.Add(180*time.Millisecond), func(_ chord.Combo, d time.Duration) { held = d })
	assert.Equal(t, 180*time.Millisecond, held)
}

// Any well-formed sequence (no double press without a release) drains to
// an empty set and samples exactly once per window.
func TestAccumulatorRandomSequencesDrain(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for iter := 0; iter < 500; iter++ {
		var a Accumulator
		var down []keys.Index
		windows, samples := 0, 0
		hot := false

		for step := 0; step < 40; step++ {
			canPress := len(down) < 7
			if canPress && (len(down) == 0 || rng.IntN(2) == 0) {
				var k keys.Index
				for {
					k = keys.Index(rng.IntN(7))
					if !contains(down, k) {
						break
					}
				}
				down = append(down, k)
				a.Press(k, time.Time{})
				if !hot {
					windows++
					hot = true
				}
				continue
			}
			i := rng.IntN(len(down))
			k := down[i]
			down = append(down[:i], down[i+1:]...)
			if a.Release(k, time.Time{}, nil) {
				samples++
			}
			hot = false
		}
		for len(down) > 0 {
			k := down[0]
			down = down[1:]
			if a.Release(k, time.Time{}, nil) {
				samples++
			}
			hot = false
		}

		require.True(t, a.State().Idle(), "iteration %d", iter)
		require.Equal(t, windows, samples, "iteration %d", iter)
	}
}

func contains(ks []keys.Index, k keys.Index) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}
	return false
}
