package source

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"chorder/internal/engine"
	"chorder/internal/keys"
)

// ParseScript reads whitespace separated event tokens. "+K" presses key K
// and "-K" releases it, where K is a key index or, with a registry, an
// abbreviation. "@N" advances the event clock by N milliseconds from then
// on. Text after '#' is ignored.
//
//	# the "a" chord
//	+1 +2 -1 -2
//	+N +C @120 -C -N
//
// Timed events count from the Unix epoch. Events before the first "@N"
// carry no time and are stamped by the engine clock.
func ParseScript(r io.Reader, reg *keys.Registry) ([]engine.Event, error) {
	return ParseScriptAt(r, reg, time.Unix(0, 0).UTC())
}

// ParseScriptAt is ParseScript with timed events counted from start.
func ParseScriptAt(r io.Reader, reg *keys.Registry, start time.Time) ([]engine.Event, error) {
	var (
		evs    []engine.Event
		offset time.Duration
		timed  bool
	)

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		for _, tok := range strings.Fields(text) {
			if strings.HasPrefix(tok, "@") {
				ms, err := strconv.Atoi(tok[1:])
				if err != nil || ms < 0 {
					return nil, fmt.Errorf("line %d: bad delay %q", line, tok)
				}
				offset += time.Duration(ms) * time.Millisecond
				timed = true
				continue
			}
			ev, err := parseToken(tok, reg)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			if timed {
				ev.At = start.Add(offset)
			}
			evs = append(evs, ev)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return evs, nil
}

func parseToken(tok string, reg *keys.Registry) (engine.Event, error) {
	if len(tok) < 2 || (tok[0] != '+' && tok[0] != '-') {
		return engine.Event{}, fmt.Errorf("bad event %q, want +KEY or -KEY", tok)
	}
	kind := engine.Pressed
	if tok[0] == '-' {
		kind = engine.Released
	}
	name := tok[1:]

	if reg != nil {
		if d, ok := reg.ByAbbrev(name); ok {
			return engine.Event{Key: d.Index, Kind: kind}, nil
		}
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 || n >= keys.MaxKeys {
		return engine.Event{}, fmt.Errorf("unknown key %q", name)
	}
	return engine.Event{Key: keys.Index(n), Kind: kind}, nil
}

// OpenScript parses the script at path into a closed Queue. Its timeline
// starts when the file is opened.
func OpenScript(path string, reg *keys.Registry) (*Queue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	evs, err := ParseScriptAt(f, reg, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	q := NewQueue(evs...)
	q.Close()
	return q, nil
}
