// Package practice implements a typing game driven by resolved chords.
//
// The game shows a target word. A resolved token equal to the next letter
// advances the cursor, any other printable token counts as an error. When
// the cursor passes the last letter the word is complete and the next word
// in the list becomes the target.
package practice

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"chorder/internal/chord"
)

// ErrNoWords is returned when the game has nothing to practice.
var ErrNoWords = errors.New("practice: no words")

// Control tokens understood by the game. Other multi-character tokens, like
// mode switches, are ignored.
const (
	TokenBackspace chord.Token = "BACKSPACE"
	TokenSpace     chord.Token = "SPACE"
)

// Option configures a Game.
type Option func(*Game)

// WithClock replaces time.Now for WPM accounting.
func WithClock(now func() time.Time) Option {
	return func(g *Game) {
		if now != nil {
			g.now = now
		}
	}
}

// Game is the practice state. It is a subscriber and is safe for concurrent
// use: the engine writes while a display reads.
type Game struct {
	mu    sync.Mutex
	now   func() time.Time
	words []string

	word      int
	cursor    int // letters matched in the current word
	errors    int
	completed int
	typed     int // letters of completed words
	started   time.Time
}

// New returns a game cycling through words. Blank words are skipped.
func New(words []string, opts ...Option) (*Game, error) {
	g := &Game{now: time.Now}
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			g.words = append(g.words, w)
		}
	}
	if len(g.words) == 0 {
		return nil, ErrNoWords
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// OnResolved feeds one token to the game.
func (g *Game) OnResolved(token chord.Token) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch token {
	case TokenBackspace:
		if g.cursor > 0 {
			g.cursor--
		}
		return
	case TokenSpace:
		return
	}

	r, size := utf8.DecodeRuneInString(string(token))
	if size == 0 || size != len(token) {
		return
	}
	if g.started.IsZero() {
		g.started = g.now()
	}

	target := []rune(g.words[g.word])
	if r != target[g.cursor] {
		g.errors++
		return
	}
	g.cursor++
	if g.cursor == len(target) {
		g.completed++
		g.typed += len(target)
		g.cursor = 0
		g.word = (g.word + 1) % len(g.words)
	}
}

// State is a snapshot of the game.
type State struct {
	Target    string
	Cursor    int
	Errors    int
	Completed int
	Elapsed   time.Duration
	WPM       float64
}

// Done is the matched prefix of the target.
func (s State) Done() string {
	return string([]rune(s.Target)[:s.Cursor])
}

// Remaining is the unmatched suffix of the target.
func (s State) Remaining() string {
	return string([]rune(s.Target)[s.Cursor:])
}

// State returns the current snapshot. WPM counts five letters as a word and
// only includes completed words.
func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := State{
		Target:    g.words[g.word],
		Cursor:    g.cursor,
		Errors:    g.errors,
		Completed: g.completed,
	}
	if !g.started.IsZero() {
		st.Elapsed = g.now().Sub(g.started)
		if minutes := st.Elapsed.Minutes(); minutes > 0 {
			st.WPM = float64(g.typed) / 5 / minutes
		}
	}
	return st
}

// Reset starts over from the first word.
func (g *Game) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.word, g.cursor, g.errors, g.completed, g.typed = 0, 0, 0, 0, 0
	g.started = time.Time{}
}
