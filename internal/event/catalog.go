// Package event defines the story lifecycle event kinds, the catalog of legal
// transitions between them, and the immutable event record.
//
// The catalog is the single source of truth for which kinds exist, which of
// them require a reason, and which kinds may follow each one. It is built once
// at init time ([Default]) and never mutated, so it is safe to share across
// goroutines without locking.
//
// Key types:
//   - [Kind] - A lifecycle event tag (start, block, finish, ...)
//   - [Rule] - Reason requirement and legal successors for one kind
//   - [Catalog] - Immutable kind → rule registry
//   - [Event] - A timestamped fact about a story
package event

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind indicates that a kind is not registered in the catalog.
// Callers should treat this as fatal to the operation; it usually means a
// typo on the command line or a record written by an incompatible tool.
var ErrUnknownKind = errors.New("unknown event kind")

// Kind is a lifecycle event tag.
type Kind string

// Registered event kinds, in catalog order.
const (
	KindStart      Kind = "start"
	KindStop       Kind = "stop"
	KindBlock      Kind = "block"
	KindResume     Kind = "resume"
	KindQAReady    Kind = "qa_ready"
	KindQAComplete Kind = "qa_complete"
	KindFinish     Kind = "finish"
	KindReject     Kind = "reject"
	KindRestart    Kind = "restart"
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	return string(k)
}

// Rule describes what the catalog knows about one kind.
type Rule struct {
	// RequiresReason is true when an event of this kind must carry a reason.
	RequiresReason bool

	// AllowedNext lists the kinds that may legally follow this one, in the
	// order they are offered to users.
	AllowedNext []Kind
}

// Entry pairs a kind with its rule for catalog construction.
type Entry struct {
	Kind Kind
	Rule Rule
}

// Catalog is an immutable registry of event kinds.
//
// Create with [NewCatalog]; the zero value is an empty catalog that knows no
// kinds. All methods are safe for concurrent use.
type Catalog struct {
	order []Kind
	rules map[Kind]Rule
}

// NewCatalog builds a [Catalog] from entries in registration order.
//
// It fails if a kind is registered twice or if any AllowedNext references a
// kind that is not itself registered.
func NewCatalog(entries ...Entry) (*Catalog, error) {
	c := &Catalog{
		order: make([]Kind, 0, len(entries)),
		rules: make(map[Kind]Rule, len(entries)),
	}

	for _, e := range entries {
		if e.Kind == "" {
			return nil, fmt.Errorf("catalog entry with empty kind")
		}
		if _, dup := c.rules[e.Kind]; dup {
			return nil, fmt.Errorf("duplicate catalog entry: %s", e.Kind)
		}
		next := make([]Kind, len(e.Rule.AllowedNext))
		copy(next, e.Rule.AllowedNext)
		c.rules[e.Kind] = Rule{RequiresReason: e.Rule.RequiresReason, AllowedNext: next}
		c.order = append(c.order, e.Kind)
	}

	for _, k := range c.order {
		for _, n := range c.rules[k].AllowedNext {
			if _, ok := c.rules[n]; !ok {
				return nil, fmt.Errorf("%s lists successor %q: %w", k, n, ErrUnknownKind)
			}
		}
	}

	return c, nil
}

// MustCatalog is like [NewCatalog] but panics on an invalid table.
// It is intended for package-level tables that are fixed at compile time.
func MustCatalog(entries ...Entry) *Catalog {
	c, err := NewCatalog(entries...)
	if err != nil {
		panic(err)
	}
	return c
}

// working lists the kinds that may follow any "in progress" state.
var working = []Kind{KindQAReady, KindQAComplete, KindBlock, KindFinish, KindStop}

// Default is the current lifecycle table.
var Default = MustCatalog(
	Entry{KindStart, Rule{AllowedNext: working}},
	Entry{KindStop, Rule{RequiresReason: true, AllowedNext: []Kind{KindResume}}},
	Entry{KindBlock, Rule{RequiresReason: true, AllowedNext: []Kind{KindResume}}},
	Entry{KindResume, Rule{AllowedNext: working}},
	Entry{KindQAReady, Rule{AllowedNext: []Kind{KindQAComplete, KindReject}}},
	Entry{KindQAComplete, Rule{AllowedNext: []Kind{KindFinish, KindReject}}},
	Entry{KindFinish, Rule{}},
	Entry{KindReject, Rule{RequiresReason: true, AllowedNext: []Kind{KindRestart}}},
	Entry{KindRestart, Rule{AllowedNext: working}},
)

// RuleFor returns the rule registered for kind.
// Returns an error wrapping [ErrUnknownKind] if kind is not registered.
func (c *Catalog) RuleFor(kind Kind) (Rule, error) {
	r, ok := c.rules[kind]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	next := make([]Kind, len(r.AllowedNext))
	copy(next, r.AllowedNext)
	return Rule{RequiresReason: r.RequiresReason, AllowedNext: next}, nil
}

// RequiresReason reports whether events of kind must carry a reason.
// Unknown kinds report false; use [Catalog.RuleFor] to detect them.
func (c *Catalog) RequiresReason(kind Kind) bool {
	return c.rules[kind].RequiresReason
}

// AllowedSuccessors returns a copy of the kinds that may follow kind.
// Unknown kinds and terminal kinds both return nil.
func (c *Catalog) AllowedSuccessors(kind Kind) []Kind {
	r, ok := c.rules[kind]
	if !ok || len(r.AllowedNext) == 0 {
		return nil
	}
	next := make([]Kind, len(r.AllowedNext))
	copy(next, r.AllowedNext)
	return next
}

// Allows reports whether next may legally follow prev.
func (c *Catalog) Allows(prev, next Kind) bool {
	for _, k := range c.rules[prev].AllowedNext {
		if k == next {
			return true
		}
	}
	return false
}

// Has reports whether kind is registered.
func (c *Catalog) Has(kind Kind) bool {
	_, ok := c.rules[kind]
	return ok
}

// Kinds returns all registered kinds in registration order.
func (c *Catalog) Kinds() []Kind {
	out := make([]Kind, len(c.order))
	copy(out, c.order)
	return out
}

// Parse resolves a user-supplied name to a registered kind.
// Matching ignores case and surrounding whitespace.
func (c *Catalog) Parse(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !c.Has(k) {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// ParseKind resolves s against the [Default] catalog.
func ParseKind(s string) (Kind, error) {
	return Default.Parse(s)
}
