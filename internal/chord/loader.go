package chord

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"chorder/internal/keys"
)

//go:embed tables/default.toml
var defaultTable []byte

//go:embed schema.json
var schemaJSON string

// Format is a chord table file encoding.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
	FormatJSON
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatJSON:
		return "json"
	default:
		return "toml"
	}
}

// FormatFromPath picks the format from a file extension. Unknown extensions
// are treated as TOML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatTOML
	}
}

// File is the on-disk shape of a chord table.
type File struct {
	InitialMode string     `toml:"initial_mode,omitempty" json:"initial_mode,omitempty" yaml:"initial_mode,omitempty"`
	Modes       []FileMode `toml:"modes" json:"modes" yaml:"modes"`
}

// FileMode is one mode section of a table file.
type FileMode struct {
	Name   string      `toml:"name" json:"name" yaml:"name"`
	Chords []FileChord `toml:"chords,omitempty" json:"chords,omitempty" yaml:"chords,omitempty"`
}

// FileChord is one chord row. Exactly one of Keys and Combo is set.
type FileChord struct {
	// Keys lists key abbreviations, either one character per key ("NC") or
	// separated by '+', ',' or spaces ("D0+D1").
	Keys string `toml:"keys,omitempty" json:"keys,omitempty" yaml:"keys,omitempty"`

	// Combo lists key indices.
	Combo []int `toml:"combo,omitempty" json:"combo,omitempty" yaml:"combo,omitempty,flow"`

	Token string `toml:"token" json:"token" yaml:"token"`
	Next  string `toml:"next,omitempty" json:"next,omitempty" yaml:"next,omitempty"`
}

// Default returns the embedded table for the reference hardware.
func Default(reg *keys.Registry) (*Table, error) {
	t, err := Parse(defaultTable, FormatTOML, reg)
	if err != nil {
		return nil, fmt.Errorf("embedded table: %w", err)
	}
	return t, nil
}

// Load reads and builds the table at path.
func Load(path string, reg *keys.Registry) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chord table: %w", err)
	}
	t, err := Parse(data, FormatFromPath(path), reg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes data in the given format and builds the table. Abbreviations
// and key indices are checked against reg; a nil reg only bounds indices by
// keys.MaxKeys and rejects abbreviations.
func Parse(data []byte, format Format, reg *keys.Registry) (*Table, error) {
	f, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	return f.Build(reg)
}

// Decode decodes data into a File without building it. Unknown fields are
// rejected for every format.
func Decode(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatJSON:
		if err := validateJSON(data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("decode TOML: unknown field %q", undecoded[0].String())
		}
	}
	return &f, nil
}

// Build validates f and converts it into a Table.
func (f *File) Build(reg *keys.Registry) (*Table, error) {
	b := NewBuilder(Mode(f.InitialMode))
	for _, m := range f.Modes {
		if m.Name == "" {
			return nil, fmt.Errorf("mode without a name: %w", ErrUnknownMode)
		}
		b.AddMode(Mode(m.Name))
		for i, c := range m.Chords {
			combo, err := c.combo(reg)
			if err != nil {
				return nil, fmt.Errorf("mode %s chord %d: %w", m.Name, i, err)
			}
			if err := b.Add(Mode(m.Name), combo, Token(c.Token), Mode(c.Next)); err != nil {
				return nil, err
			}
		}
	}
	return b.Build()
}

func (c FileChord) combo(reg *keys.Registry) (Combo, error) {
	if c.Keys != "" && len(c.Combo) > 0 {
		return 0, errors.New("keys and combo are mutually exclusive")
	}
	var combo Combo
	for _, n := range c.Combo {
		if n < 0 || n >= keys.MaxKeys || (reg != nil && !reg.Contains(keys.Index(n))) {
			return 0, fmt.Errorf("index %d: %w", n, ErrUnknownKey)
		}
		combo = combo.With(keys.Index(n))
	}
	if c.Keys != "" {
		if reg == nil {
			return 0, fmt.Errorf("abbreviations %q need a key registry: %w", c.Keys, ErrUnknownKey)
		}
		parts := splitAbbrevs(c.Keys)
		if _, ok := reg.ByAbbrev(c.Keys); ok {
			parts = []string{c.Keys}
		}
		for _, ab := range parts {
			d, ok := reg.ByAbbrev(ab)
			if !ok {
				return 0, fmt.Errorf("abbreviation %q: %w", ab, ErrUnknownKey)
			}
			combo = combo.With(d.Index)
		}
	}
	if combo.IsEmpty() {
		return 0, ErrEmptyCombo
	}
	return combo, nil
}

func splitAbbrevs(s string) []string {
	if strings.ContainsAny(s, "+, ") {
		return strings.FieldsFunc(s, func(r rune) bool {
			return r == '+' || r == ',' || r == ' '
		})
	}
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func validateJSON(data []byte) error {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("chordtable.schema.json", schemaJSON)
	})
	if schemaErr != nil {
		return fmt.Errorf("compile chord table schema: %w", schemaErr)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("chord table schema: %w", err)
	}
	return nil
}

// Encode writes the table in the given format using the File shape. Chords
// are written by abbreviation when reg is non-nil.
func Encode(w io.Writer, t *Table, format Format, reg *keys.Registry) error {
	f := File{InitialMode: string(t.Initial())}
	for _, mode := range t.Modes() {
		fm := FileMode{Name: string(mode)}
		for _, c := range t.Chords(mode) {
			fc := FileChord{Token: string(c.Token)}
			if c.Next != mode {
				fc.Next = string(c.Next)
			}
			if reg != nil {
				fc.Keys = strings.Join(abbrevs(c.Combo, reg), "+")
			} else {
				for _, idx := range c.Combo.Indices() {
					fc.Combo = append(fc.Combo, int(idx))
				}
			}
			fm.Chords = append(fm.Chords, fc)
		}
		f.Modes = append(f.Modes, fm)
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(f)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(f)
	default:
		return toml.NewEncoder(w).Encode(f)
	}
}

func abbrevs(c Combo, reg *keys.Registry) []string {
	out := make([]string, 0, c.Len())
	for _, idx := range c.Indices() {
		if d, ok := reg.ByIndex(idx); ok {
			out = append(out, d.Abbrev)
		}
	}
	return out
}
