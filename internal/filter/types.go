package filter

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownMatchType  = errors.New("unknown match type")
	ErrUnknownFilterType = errors.New("unknown filter type")
)

// MatchType says how a filter's text is turned into a pattern.
type MatchType int

const (
	Simple MatchType = iota
	Wildcard
	Regex
	RegexGroups
)

var matchTypeNames = []string{"Simple", "Wildcard", "Regex", "RegexGroups"}

func (m MatchType) String() string {
	if m < 0 || int(m) >= len(matchTypeNames) {
		return fmt.Sprintf("MatchType(%d)", int(m))
	}
	return matchTypeNames[m]
}

func ParseMatchType(s string) (MatchType, error) {
	for i, name := range matchTypeNames {
		if strings.EqualFold(s, name) {
			return MatchType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMatchType, s)
}

func (m MatchType) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(matchTypeNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMatchType, int(m))
	}
	return []byte(m.String()), nil
}

func (m *MatchType) UnmarshalText(text []byte) error {
	v, err := ParseMatchType(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// FilterType says what a matching filter does to a line.
type FilterType int

const (
	Include FilterType = iota
	Exclude
	Highlight
	Token
	Stop
	Track
	Once
	Clear
	Beep
	MatchColor
)

var filterTypeNames = []string{
	"Include", "Exclude", "Highlight", "Token", "Stop",
	"Track", "Once", "Clear", "Beep", "MatchColor",
}

func (f FilterType) String() string {
	if f < 0 || int(f) >= len(filterTypeNames) {
		return fmt.Sprintf("FilterType(%d)", int(f))
	}
	return filterTypeNames[f]
}

func ParseFilterType(s string) (FilterType, error) {
	for i, name := range filterTypeNames {
		if strings.EqualFold(s, name) {
			return FilterType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFilterType, s)
}

func (f FilterType) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= len(filterTypeNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFilterType, int(f))
	}
	return []byte(f.String()), nil
}

func (f *FilterType) UnmarshalText(text []byte) error {
	v, err := ParseFilterType(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Color is an RGB colour.
type Color struct {
	Red   uint8 `json:"Red" xml:"Red" toml:"Red"`
	Green uint8 `json:"Green" xml:"Green" toml:"Green"`
	Blue  uint8 `json:"Blue" xml:"Blue" toml:"Blue"`
}

var (
	White = Color{255, 255, 255}
	Black = Color{0, 0, 0}
)

// Hex returns the colour as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.Red, c.Green, c.Blue)
}
