package decoder

import (
	"strings"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"go.viam.com/slrig/pipeline"
)

// A Pattern is one entry of a projector's pattern list: either an image file or a solid color.
type Pattern struct {
	Type     pipeline.PatternType
	Filename string
	Color    colorful.Color
	Solid    bool
}

// ParsePattern parses a pattern list entry. An entry is a file name or a "#rrggbb" color,
// optionally prefixed with a pattern type and "=", e.g. "white_to_black=#000000".
// Without a prefix white and black colors are typed as solid white and solid black.
func ParsePattern(entry string) (Pattern, error) {
	entry = strings.TrimSpace(entry)
	var p Pattern
	if typ, value, ok := strings.Cut(entry, "="); ok {
		pt, err := pipeline.ParsePatternType(typ)
		if err != nil {
			return Pattern{}, err
		}
		p.Type = pt
		entry = value
	}
	if entry == "" {
		return Pattern{}, errors.New("empty pattern entry")
	}
	if strings.HasPrefix(entry, "#") {
		c, err := colorful.Hex(entry)
		if err != nil {
			return Pattern{}, errors.Wrapf(err, "parsing pattern color %q", entry)
		}
		p.Color = c
		p.Solid = true
		if p.Type == pipeline.PatternUnknown {
			p.Type = solidType(c)
		}
		return p, nil
	}
	p.Filename = entry
	if p.Type == pipeline.PatternUnknown {
		p.Type = pipeline.PatternFile
	}
	return p, nil
}

func solidType(c colorful.Color) pipeline.PatternType {
	r, g, b := c.RGB255()
	switch {
	case r == 255 && g == 255 && b == 255:
		return pipeline.PatternSolidWhite
	case r == 0 && g == 0 && b == 0:
		return pipeline.PatternSolidBlack
	default:
		return pipeline.PatternSolidColor
	}
}

// ParsePatterns parses every entry of a pattern list.
func ParsePatterns(entries []string) ([]Pattern, error) {
	patterns := make([]Pattern, 0, len(entries))
	for i, e := range entries {
		p, err := ParsePattern(e)
		if err != nil {
			return nil, errors.Wrapf(err, "pattern %d", i)
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// Source hands out patterns in list order. A cycling source starts over at the end of the list
// and never runs out.
type Source struct {
	mu       sync.Mutex
	patterns []Pattern
	next     int
	cycle    bool
}

// NewSource returns a source over patterns.
func NewSource(patterns []Pattern, cycle bool) *Source {
	return &Source{patterns: append([]Pattern(nil), patterns...), cycle: cycle}
}

// Cycle reports whether the source restarts at the end of its list.
func (s *Source) Cycle() bool {
	return s.cycle
}

// Len returns the length of the pattern list.
func (s *Source) Len() int {
	return len(s.patterns)
}

// HasNext reports whether Next would return a pattern.
func (s *Source) HasNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasNext()
}

func (s *Source) hasNext() bool {
	if len(s.patterns) == 0 {
		return false
	}
	return s.cycle || s.next < len(s.patterns)
}

// Next returns the next pattern and its position in the list.
func (s *Source) Next() (Pattern, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasNext() {
		return Pattern{}, -1, false
	}
	if s.next >= len(s.patterns) {
		s.next = 0
	}
	idx := s.next
	s.next++
	return s.patterns[idx], idx, true
}

// Rewind restarts the source at the first pattern.
func (s *Source) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
}
