package sprint

import (
	"errors"
	"fmt"
	"strings"

	"cycletrack/internal/timeline"
)

// ErrInvalidFilter indicates a filter expression that cannot be parsed.
var ErrInvalidFilter = errors.New("invalid filter")

// Mode selects how filter predicates apply.
type Mode int

const (
	// Exclude drops stories matching any predicate.
	Exclude Mode = iota
	// Include keeps only stories matching at least one predicate.
	Include
)

func (m Mode) String() string {
	if m == Include {
		return "include"
	}
	return "exclude"
}

// Predicate matches a story attribute against an exact value.
type Predicate struct {
	Attribute string
	Value     string
}

func (p Predicate) String() string {
	return p.Attribute + "=" + p.Value
}

// Filter restricts which stories a report counts. The zero value keeps
// everything.
type Filter struct {
	Mode       Mode
	Predicates []Predicate
}

var filterAttributes = map[string]bool{
	timeline.AttrType:      true,
	timeline.AttrArea:      true,
	timeline.AttrIteration: true,
	timeline.AttrDeveloper: true,
	timeline.AttrTitle:     true,
}

// ParseFilter parses "attr=value,attr=value". An empty expression yields a
// filter with no predicates.
func ParseFilter(mode Mode, expr string) (Filter, error) {
	f := Filter{Mode: mode}
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		attr, value, ok := strings.Cut(part, "=")
		attr = strings.ToLower(strings.TrimSpace(attr))
		value = strings.TrimSpace(value)
		if !ok || attr == "" {
			return Filter{}, fmt.Errorf("%w: %q is not attribute=value", ErrInvalidFilter, part)
		}
		if !filterAttributes[attr] {
			return Filter{}, fmt.Errorf("%w: unknown attribute %q", ErrInvalidFilter, attr)
		}
		f.Predicates = append(f.Predicates, Predicate{Attribute: attr, Value: value})
	}
	return f, nil
}

// IsEmpty reports whether the filter has no predicates.
func (f Filter) IsEmpty() bool {
	return len(f.Predicates) == 0
}

// Keep reports whether s survives the filter.
func (f Filter) Keep(s *timeline.Story) bool {
	if f.IsEmpty() {
		return true
	}
	matched := false
	for _, p := range f.Predicates {
		if v, ok := s.Attribute(p.Attribute); ok && v == p.Value {
			matched = true
			break
		}
	}
	if f.Mode == Include {
		return matched
	}
	return !matched
}

// String renders the predicates as they were parsed.
func (f Filter) String() string {
	parts := make([]string, len(f.Predicates))
	for i, p := range f.Predicates {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}
