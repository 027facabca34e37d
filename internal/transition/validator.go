// Package transition decides whether a proposed event is a legal next step in
// a story's history.
//
// The validator is the central decision point before anything is written to
// the event log. It is a pure function of the [event.Catalog] and the story's
// most recent event: it performs no I/O and has no side effects, so callers
// can ask it as often as they like (for example to build a menu of legal
// events) before committing.
//
// Key types:
//   - [Validator] - Checks candidates against a catalog
//   - [InvalidTransitionError] - Carries both the candidate and the last kind
//
// Package-level functions [Validate], [CheckReason] and [NextKinds] use
// [event.Default].
package transition

import (
	"errors"
	"fmt"
	"strings"

	"cycletrack/internal/event"
)

// Sentinel errors for transition checks.
var (
	// ErrInvalidTransition is matched by every [InvalidTransitionError].
	// Callers can recover by offering a different candidate.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrMissingReason indicates the candidate kind requires a reason but none
	// was supplied. Recoverable in the same way as ErrInvalidTransition.
	ErrMissingReason = errors.New("event requires a reason")
)

// InvalidTransitionError reports a candidate that may not follow the story's
// last event. HasLast is false when the story has no history at all.
type InvalidTransitionError struct {
	Candidate event.Kind
	Last      event.Kind
	HasLast   bool
}

// Error returns "missing initial Start" for stories without history and
// "<candidate> not valid after <last>" otherwise.
func (e *InvalidTransitionError) Error() string {
	if !e.HasLast {
		return "missing initial Start"
	}
	return fmt.Sprintf("%s not valid after %s", e.Candidate, e.Last)
}

// Is makes errors.Is(err, ErrInvalidTransition) succeed.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Validator checks candidate events against a catalog.
//
// Create with [NewValidator]. A Validator holds no mutable state and may be
// shared freely.
type Validator struct {
	catalog *event.Catalog
}

// NewValidator creates a [Validator] over catalog. A nil catalog selects
// [event.Default].
func NewValidator(catalog *event.Catalog) *Validator {
	if catalog == nil {
		catalog = event.Default
	}
	return &Validator{catalog: catalog}
}

// Catalog returns the catalog the validator consults.
func (v *Validator) Catalog() *event.Catalog {
	return v.catalog
}

// Validate decides whether candidate may follow last.
//
// With no history (last == nil) only [event.KindStart] is legal. Otherwise
// candidate must be one of the catalog's allowed successors of last.Kind.
//
// Returns an error wrapping [event.ErrUnknownKind] when either kind is not
// registered, and an [*InvalidTransitionError] when the step is illegal.
func (v *Validator) Validate(last *event.Event, candidate event.Kind) error {
	if !v.catalog.Has(candidate) {
		return fmt.Errorf("candidate %w: %q", event.ErrUnknownKind, candidate)
	}

	if last == nil {
		if candidate == event.KindStart {
			return nil
		}
		return &InvalidTransitionError{Candidate: candidate}
	}

	if !v.catalog.Has(last.Kind) {
		return fmt.Errorf("history of %s: %w: %q", last.TrackerID, event.ErrUnknownKind, last.Kind)
	}

	if !v.catalog.Allows(last.Kind, candidate) {
		return &InvalidTransitionError{Candidate: candidate, Last: last.Kind, HasLast: true}
	}
	return nil
}

// CheckReason returns [ErrMissingReason] if candidate requires a reason and
// reason is blank.
func (v *Validator) CheckReason(candidate event.Kind, reason string) error {
	if v.catalog.RequiresReason(candidate) && strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%s: %w", candidate, ErrMissingReason)
	}
	return nil
}

// NextKinds returns the kinds that may legally follow last, in catalog order.
// For a story with no history this is just [event.KindStart].
func (v *Validator) NextKinds(last *event.Event) []event.Kind {
	if last == nil {
		return []event.Kind{event.KindStart}
	}
	return v.catalog.AllowedSuccessors(last.Kind)
}

// LastEvent picks the most recent event from a story's history: the one with
// the greatest CreatedAt, with ties going to the later arrival. It returns nil
// for an empty history. history is not modified.
func LastEvent(history []event.Event) *event.Event {
	if len(history) == 0 {
		return nil
	}
	idx := 0
	for i := 1; i < len(history); i++ {
		if !history[i].CreatedAt.Before(history[idx].CreatedAt) {
			idx = i
		}
	}
	last := history[idx]
	return &last
}

// defaultValidator backs the package-level helpers.
var defaultValidator = NewValidator(event.Default)

// Validate checks candidate against [event.Default].
func Validate(last *event.Event, candidate event.Kind) error {
	return defaultValidator.Validate(last, candidate)
}

// CheckReason checks the reason requirement against [event.Default].
func CheckReason(candidate event.Kind, reason string) error {
	return defaultValidator.CheckReason(candidate, reason)
}

// NextKinds lists legal successors of last according to [event.Default].
func NextKinds(last *event.Event) []event.Kind {
	return defaultValidator.NextKinds(last)
}
