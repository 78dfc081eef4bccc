// Package display draws the chorder status screen with tcell.
package display

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"chorder/internal/chord"
	"chorder/internal/engine"
	"chorder/internal/keys"
	"chorder/internal/logging"
	"chorder/internal/nav"
	"chorder/internal/practice"
)

// DefaultRefresh is the redraw interval used by Run.
const DefaultRefresh = 100 * time.Millisecond

// Screen layout rows.
const (
	rowTitle    = 0
	rowKeys     = 2
	rowMode     = 4
	rowPractice = 6
	rowLog      = 8
	rowNav      = 10

	keyWidth  = 4
	fingerGap = 3
)

var (
	styleTitle    = tcell.StyleDefault.Bold(true)
	styleKey      = tcell.StyleDefault.Foreground(tcell.ColorBlue)
	stylePressed  = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorGreen)
	styleLabel    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleMiss     = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	styleDone     = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleNext     = tcell.StyleDefault.Underline(true)
	styleLogLine  = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleNavLabel = tcell.StyleDefault.Reverse(true)
)

// EngineView is the engine state the display reads.
type EngineView interface {
	Mode() chord.Mode
	LastResolved() engine.Outcome
	Pressed() chord.Combo
}

// Option configures a Status.
type Option func(*Status)

// WithLogTail shows the most recent log message, as returned by
// logging.Logger.Last.
func WithLogTail(last func() (logging.Entry, bool)) Option {
	return func(s *Status) { s.lastLog = last }
}

// WithPractice shows the practice game. When a navigator is set the game
// is only shown on page.
func WithPractice(game *practice.Game, page *nav.Page) Option {
	return func(s *Status) {
		s.game = game
		s.gamePage = page
	}
}

// WithNavigator shows the current page and its button labels.
func WithNavigator(n *nav.Navigator) Option {
	return func(s *Status) { s.nav = n }
}

// Status renders engine state on a tcell screen.
type Status struct {
	screen tcell.Screen
	engine EngineView
	reg    *keys.Registry

	lastLog  func() (logging.Entry, bool)
	game     *practice.Game
	gamePage *nav.Page
	nav      *nav.Navigator
}

// New returns a status view. reg supplies the key layout: the first
// keys.ThumbCount keys are drawn as the thumb cluster, the rest as the
// finger row.
func New(screen tcell.Screen, view EngineView, reg *keys.Registry, opts ...Option) *Status {
	s := &Status{screen: screen, engine: view, reg: reg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run redraws every interval until ctx is done.
func (s *Status) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultRefresh
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Draw()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Draw()
		}
	}
}

// Draw renders one frame.
func (s *Status) Draw() {
	s.screen.Clear()

	title := "chorder"
	var page *nav.Page
	if s.nav != nil {
		page = s.nav.Current()
		title += " - " + page.Name
	}
	s.text(0, rowTitle, title, styleTitle)

	s.drawKeys()
	s.drawMode()
	if s.game != nil && (page == nil || s.gamePage == nil || page == s.gamePage) {
		s.drawPractice()
	}
	if s.lastLog != nil {
		if e, ok := s.lastLog(); ok {
			s.text(0, rowLog, fmt.Sprintf("%s %s", logging.LevelString(e.Level), e.Message), styleLogLine)
		}
	}
	if page != nil {
		s.drawNav(page)
	}

	s.screen.Show()
}

func (s *Status) drawKeys() {
	pressed := s.engine.Pressed()
	x := 0
	for i, d := range s.reg.Keys() {
		if i == keys.ThumbCount {
			x += fingerGap
		}
		style := styleKey
		if pressed.Has(d.Index) {
			style = stylePressed
		}
		s.text(x, rowKeys, "["+d.Abbrev+"]", style)
		x += keyWidth + len(d.Abbrev) - 1
	}
}

func (s *Status) drawMode() {
	x := s.text(0, rowMode, "mode ", styleLabel)
	x = s.text(x, rowMode, string(s.engine.Mode()), tcell.StyleDefault)
	x = s.text(x+2, rowMode, "last ", styleLabel)

	last := s.engine.LastResolved()
	style := tcell.StyleDefault
	if last.Miss {
		style = styleMiss
	}
	s.text(x, rowMode, last.String(), style)
}

func (s *Status) drawPractice() {
	st := s.game.State()
	x := s.text(0, rowPractice, st.Done(), styleDone)
	rest := []rune(st.Remaining())
	if len(rest) > 0 {
		x = s.text(x, rowPractice, string(rest[0]), styleNext)
		x = s.text(x, rowPractice, string(rest[1:]), tcell.StyleDefault)
	}
	s.text(x+2, rowPractice,
		fmt.Sprintf("words %d  errors %d  wpm %.0f", st.Completed, st.Errors, st.WPM), styleLabel)
}

func (s *Status) drawNav(page *nav.Page) {
	x := 0
	for slot := nav.D0; slot < nav.SlotCount; slot++ {
		x = s.text(x, rowNav, slot.String(), styleNavLabel)
		x = s.text(x+1, rowNav, page.Link(slot).Name(), tcell.StyleDefault) + 2
	}
}

// text draws str at (x, y) and returns the column after it. Text past the
// right edge is dropped.
func (s *Status) text(x, y int, str string, style tcell.Style) int {
	w, _ := s.screen.Size()
	for _, r := range str {
		if x >= w {
			break
		}
		s.screen.SetContent(x, y, r, nil, style)
		x++
	}
	return x
}
