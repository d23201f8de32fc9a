// Package filter decides which captured lines are shown and how they are
// highlighted. Filter sets are stored as JSON, XML or TOML.
package filter

import (
	"encoding/xml"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"dbgview/internal/logline"
)

// Filter is one rule. Patterns match case-insensitively.
type Filter struct {
	Text       string     `json:"Text" xml:"Text" toml:"Text"`
	MatchType  MatchType  `json:"MatchType" xml:"MatchType" toml:"MatchType"`
	FilterType FilterType `json:"FilterType" xml:"FilterType" toml:"FilterType"`
	BackColor  Color      `json:"BackColor" xml:"BackColor" toml:"BackColor"`
	TextColor  Color      `json:"TextColor" xml:"TextColor" toml:"TextColor"`
	Enable     bool       `json:"Enable" xml:"Enable" toml:"Enable"`

	re      *regexp.Regexp
	matched bool
}

// New returns an enabled, compiled filter with the default colours.
func New(text string, matchType MatchType, filterType FilterType) (Filter, error) {
	f := Filter{
		Text:       text,
		MatchType:  matchType,
		FilterType: filterType,
		BackColor:  White,
		TextColor:  Black,
		Enable:     true,
	}
	if err := f.Compile(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// MakePattern turns text into a regular expression according to matchType.
func MakePattern(matchType MatchType, text string) string {
	switch matchType {
	case Simple:
		return regexp.QuoteMeta(text)
	case Wildcard:
		var b strings.Builder
		for _, r := range text {
			switch r {
			case '*':
				b.WriteString(".*")
			case '?':
				b.WriteString(".?")
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		return b.String()
	default:
		return text
	}
}

func (f *Filter) Compile() error {
	re, err := regexp.Compile("(?i)" + MakePattern(f.MatchType, f.Text))
	if err != nil {
		return fmt.Errorf("failed to compile filter %q: %w", f.Text, err)
	}
	f.re = re
	return nil
}

func (f *Filter) match(text string) bool {
	return f.re != nil && f.re.MatchString(text)
}

// Match is a highlighted span of a message, as byte offsets.
type Match struct {
	Start, End int
	BackColor  Color
	TextColor  Color
}

// LogFilter is a named filter set. Message filters apply to the message text, process
// filters to the process name.
type LogFilter struct {
	XMLName        xml.Name `json:"-" xml:"Filter" toml:"-"`
	Name           string   `json:"Name" xml:"Name" toml:"Name"`
	MessageFilters []Filter `json:"MessageFilters" xml:"MessageFilters>Filter" toml:"MessageFilters"`
	ProcessFilters []Filter `json:"ProcessFilters" xml:"ProcessFilters>Filter" toml:"ProcessFilters"`
}

// Compile compiles every filter of the set.
func (lf *LogFilter) Compile() error {
	for i := range lf.MessageFilters {
		if err := lf.MessageFilters[i].Compile(); err != nil {
			return err
		}
	}
	for i := range lf.ProcessFilters {
		if err := lf.ProcessFilters[i].Compile(); err != nil {
			return err
		}
	}
	return nil
}

// IsIncluded reports whether line passes both filter lists, and returns the
// highlighted spans of its message. Once filters remember their first match, so
// IsIncluded is not safe for concurrent use.
func (lf *LogFilter) IsIncluded(line logline.Line) (bool, []Match) {
	if !isIncluded(lf.ProcessFilters, line.ProcessName) {
		return false, nil
	}
	if !isIncluded(lf.MessageFilters, line.Message) {
		return false, nil
	}
	return true, lf.Highlights(line.Message)
}

func isIncluded(filters []Filter, text string) bool {
	for i := range filters {
		f := &filters[i]
		if f.Enable && f.FilterType == Exclude && f.match(text) {
			return false
		}
	}

	included := false
	includePresent := false
	for i := range filters {
		f := &filters[i]
		if !f.Enable {
			continue
		}
		switch f.FilterType {
		case Include:
			includePresent = true
			if f.match(text) {
				included = true
			}
		case Once:
			if f.match(text) {
				first := !f.matched
				f.matched = true
				return first
			}
		}
	}
	return !includePresent || included
}

// MatchFilterType reports whether any enabled message filter of type t matches text.
func (lf *LogFilter) MatchFilterType(t FilterType, text string) bool {
	for i := range lf.MessageFilters {
		f := &lf.MessageFilters[i]
		if f.Enable && f.FilterType == t && f.match(text) {
			return true
		}
	}
	return false
}

// Highlights returns the spans of text selected by Highlight, Token and MatchColor
// filters. With RegexGroups, Token filters mark each capture group instead of the
// whole match.
func (lf *LogFilter) Highlights(text string) []Match {
	var matches []Match
	for i := range lf.MessageFilters {
		f := &lf.MessageFilters[i]
		if !f.Enable || f.re == nil {
			continue
		}
		switch f.FilterType {
		case Highlight:
			for _, loc := range f.re.FindAllStringIndex(text, -1) {
				matches = append(matches, Match{Start: loc[0], End: loc[1], BackColor: f.BackColor, TextColor: f.TextColor})
			}
		case Token:
			for _, loc := range f.re.FindAllStringSubmatchIndex(text, -1) {
				if f.MatchType != RegexGroups || len(loc) == 2 {
					matches = append(matches, Match{Start: loc[0], End: loc[1], BackColor: f.BackColor, TextColor: f.TextColor})
					continue
				}
				for g := 2; g+1 < len(loc); g += 2 {
					if loc[g] >= 0 {
						matches = append(matches, Match{Start: loc[g], End: loc[g+1], BackColor: f.BackColor, TextColor: f.TextColor})
					}
				}
			}
		case MatchColor:
			if loc := f.re.FindStringIndex(text); loc != nil {
				matches = append(matches, Match{Start: loc[0], End: loc[1], BackColor: randomBackColor(), TextColor: f.TextColor})
			}
		}
	}
	return matches
}

func randomBackColor() Color {
	return Color{
		Red:   uint8(160 + rand.IntN(96)),
		Green: uint8(160 + rand.IntN(96)),
		Blue:  uint8(160 + rand.IntN(96)),
	}
}

// FromPatterns builds a filter set of simple include and exclude rules, as given on
// the command line.
func FromPatterns(include, exclude, includeProcess, excludeProcess []string) (*LogFilter, error) {
	lf := &LogFilter{Name: "command line"}
	add := func(list *[]Filter, patterns []string, ft FilterType) error {
		for _, p := range patterns {
			f, err := New(p, Simple, ft)
			if err != nil {
				return fmt.Errorf("failed to compile filter %q: %w", p, err)
			}
			*list = append(*list, f)
		}
		return nil
	}
	if err := add(&lf.MessageFilters, include, Include); err != nil {
		return nil, err
	}
	if err := add(&lf.MessageFilters, exclude, Exclude); err != nil {
		return nil, err
	}
	if err := add(&lf.ProcessFilters, includeProcess, Include); err != nil {
		return nil, err
	}
	if err := add(&lf.ProcessFilters, excludeProcess, Exclude); err != nil {
		return nil, err
	}
	return lf, nil
}
