// Package filter turns dashboard filter inputs into canonical cache keys.
//
// A FilterSet describes one logical dataset view: a namespace (which
// table is being loaded), a date range, unordered facet sets and scalar
// flags. Normalize renders it into a CacheKey that is identical for every
// equivalent FilterSet, regardless of how the caller ordered its facets.
package filter

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrInvalidRange indicates From is after To.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrMissingNamespace indicates the FilterSet has no dataset namespace.
	ErrMissingNamespace = errors.New("namespace is required")
)

// Well-known dataset namespaces used by the dashboard views.
const (
	NamespaceTickets        = "tickets"
	NamespaceSupportThreads = "support_threads"
	NamespaceDetailedStats  = "detailed_stats"
)

// FilterSet holds the query parameters of one dataset view.
// Facet slices are treated as sets: order and duplicates are irrelevant.
type FilterSet struct {
	// Namespace discriminates datasets that share filter shapes (e.g. "tickets").
	Namespace string

	// From and To bound the date range. A zero value leaves that side open.
	From time.Time
	To   time.Time

	Versions     []string
	Categories   []string
	Agents       []string // nil is the same as empty
	Statuses     []string
	Requirements []string

	// Flags are scalar switches such as "pending_drafts_only".
	// A false flag is equivalent to an absent one.
	Flags map[string]bool
}

// Validate checks the caller-side preconditions of Normalize.
func (f FilterSet) Validate() error {
	if f.Namespace == "" {
		return ErrMissingNamespace
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return fmt.Errorf("%w: from %s is after to %s",
			ErrInvalidRange, formatTime(f.From), formatTime(f.To))
	}
	return nil
}

// Canonical returns a copy with every facet sorted and de-duplicated,
// timestamps truncated to the key precision and false flags removed.
func (f FilterSet) Canonical() FilterSet {
	out := FilterSet{
		Namespace:    f.Namespace,
		From:         canonicalTime(f.From),
		To:           canonicalTime(f.To),
		Versions:     canonicalSet(f.Versions),
		Categories:   canonicalSet(f.Categories),
		Agents:       canonicalSet(f.Agents),
		Statuses:     canonicalSet(f.Statuses),
		Requirements: canonicalSet(f.Requirements),
	}
	for name, on := range f.Flags {
		if !on {
			continue
		}
		if out.Flags == nil {
			out.Flags = make(map[string]bool)
		}
		out.Flags[name] = true
	}
	return out
}

// Equivalent reports whether two FilterSets address the same dataset.
func (f FilterSet) Equivalent(other FilterSet) bool {
	return Normalize(f) == Normalize(other)
}

// canonicalSet sorts and de-duplicates values. Empty input yields nil.
func canonicalSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

func canonicalTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Millisecond)
}
