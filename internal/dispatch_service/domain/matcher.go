package domain

import (
	"fmt"
	"regexp"
)

// Matcher extracts the external recipient identifier embedded in a document
// filename and resolves it against the recipient set. The grammar is a
// configurable regular expression: capture group 1 is the identifier and the
// optional capture group 2 is the period tag.
//
// Default grammar: ^(\d+)_(?:holerite_)?(.+)\.pdf$
type Matcher struct {
	re *regexp.Regexp
}

func NewMatcher(pattern string) (*Matcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid filename pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("filename pattern %q needs a capture group for the identifier", pattern)
	}
	return &Matcher{re: re}, nil
}

// ExternalID extracts the identifier from filename. ok is false when the
// filename does not follow the grammar.
func (m *Matcher) ExternalID(filename string) (id string, ok bool) {
	groups := m.re.FindStringSubmatch(filename)
	if groups == nil || groups[1] == "" {
		return "", false
	}
	return groups[1], true
}

// PeriodTag extracts the period tag from filename, or "" when the grammar has
// no period group or the filename does not match.
func (m *Matcher) PeriodTag(filename string) string {
	if m.re.NumSubexp() < 2 {
		return ""
	}
	groups := m.re.FindStringSubmatch(filename)
	if groups == nil {
		return ""
	}
	return groups[2]
}

// Match resolves filename to a recipient by exact, case-sensitive identifier
// lookup. Ambiguity is impossible by construction (identifiers are unique);
// anything short of an exact match fails closed to not-found.
func (m *Matcher) Match(filename string, recipients []Recipient) (*Recipient, bool) {
	id, ok := m.ExternalID(filename)
	if !ok {
		return nil, false
	}
	for i := range recipients {
		if recipients[i].ExternalID == id {
			return &recipients[i], true
		}
	}
	return nil, false
}
