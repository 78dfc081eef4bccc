// Package nav models the pages selected with the three navigation buttons.
package nav

import (
	"errors"
	"fmt"
	"sync"
)

// Slot is a navigation button.
type Slot int

const (
	D0 Slot = iota
	D1
	D2

	// SlotCount is the number of navigation buttons.
	SlotCount = 3
)

// String returns the button name.
func (s Slot) String() string {
	if s < 0 || s >= SlotCount {
		return fmt.Sprintf("Slot(%d)", int(s))
	}
	return fmt.Sprintf("D%d", int(s))
}

// LinkKind tags what a Link does.
type LinkKind int

const (
	LinkNone LinkKind = iota
	LinkPage
	LinkAction
)

// String returns the kind name.
func (k LinkKind) String() string {
	switch k {
	case LinkPage:
		return "page"
	case LinkAction:
		return "action"
	default:
		return "none"
	}
}

// Link is what a navigation button is bound to. Exactly one of Page and
// Action is meaningful, chosen by Kind.
type Link struct {
	Kind   LinkKind
	Page   *Page
	Action func()
	Label  string // shown for actions
}

// None is the unbound link.
var None = Link{}

// ToPage links to p.
func ToPage(p *Page) Link {
	if p == nil {
		return None
	}
	return Link{Kind: LinkPage, Page: p}
}

// Do links to an action.
func Do(label string, fn func()) Link {
	if fn == nil {
		return None
	}
	return Link{Kind: LinkAction, Action: fn, Label: label}
}

// Name is the text shown next to the button, empty when unbound.
func (l Link) Name() string {
	switch l.Kind {
	case LinkPage:
		return l.Page.Name
	case LinkAction:
		return l.Label
	default:
		return ""
	}
}

// Page is a screen of the status display.
type Page struct {
	Name        string
	Description string
	slots       [SlotCount]Link
}

// NewPage returns a page with every slot unbound.
func NewPage(name, description string) *Page {
	return &Page{Name: name, Description: description}
}

// Bind sets the link for slot s.
func (p *Page) Bind(s Slot, l Link) error {
	if s < 0 || s >= SlotCount {
		return fmt.Errorf("%w: %v", ErrInvalidSlot, s)
	}
	p.slots[s] = l
	return nil
}

// Link returns the link on slot s.
func (p *Page) Link(s Slot) Link {
	if s < 0 || s >= SlotCount {
		return None
	}
	return p.slots[s]
}

var ErrInvalidSlot = errors.New("nav: invalid slot")

// Navigator tracks the current page.
type Navigator struct {
	mu      sync.RWMutex
	current *Page
	onEnter []func(*Page)
}

// NewNavigator starts on start.
func NewNavigator(start *Page) *Navigator {
	return &Navigator{current: start}
}

// Current returns the page on screen.
func (n *Navigator) Current() *Page {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.current
}

// OnEnter registers fn to run whenever a page is entered through Press.
func (n *Navigator) OnEnter(fn func(*Page)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onEnter = append(n.onEnter, fn)
}

// Press follows the current page's link on s. It reports whether anything
// happened: an unbound slot is ignored.
func (n *Navigator) Press(s Slot) bool {
	n.mu.Lock()
	link := n.current.Link(s)
	var hooks []func(*Page)
	switch link.Kind {
	case LinkPage:
		n.current = link.Page
		hooks = append(hooks, n.onEnter...)
	case LinkNone:
		n.mu.Unlock()
		return false
	}
	n.mu.Unlock()

	// Run outside the lock so actions and hooks may navigate.
	switch link.Kind {
	case LinkPage:
		for _, fn := range hooks {
			fn(link.Page)
		}
	case LinkAction:
		link.Action()
	}
	return true
}
