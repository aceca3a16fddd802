package filter

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ErrMalformedKey indicates a string that ParseKey cannot decode.
var ErrMalformedKey = errors.New("malformed cache key")

// TimeFormat is the fixed-precision layout used for timestamps in keys.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// Query parameter names in a rendered key.
const (
	fieldFrom         = "from"
	fieldTo           = "to"
	fieldVersions     = "versions"
	fieldCategories   = "categories"
	fieldAgents       = "agents"
	fieldStatuses     = "statuses"
	fieldRequirements = "requirements"
	flagPrefix        = "flag."
)

// CacheKey is the canonical identity of a FilterSet.
// Two FilterSets are equivalent iff their keys are equal, so a CacheKey
// is safe to use directly as a map key.
//
// Format: namespace?agents=a&categories=b&from=...&to=...&versions=x&versions=y
type CacheKey string

// String returns the key text.
func (k CacheKey) String() string {
	return string(k)
}

// Namespace returns the dataset namespace encoded in the key.
func (k CacheKey) Namespace() string {
	ns, _, _ := strings.Cut(string(k), "?")
	if unescaped, err := url.PathUnescape(ns); err == nil {
		return unescaped
	}
	return ns
}

// Hash returns a 64-bit digest of the key, used for sharding.
func (k CacheKey) Hash() uint64 {
	return xxhash.Sum64String(string(k))
}

// Normalize renders a FilterSet into its CacheKey.
//
// Facets are sorted and de-duplicated, timestamps are rendered in UTC with
// millisecond precision and empty facets are omitted, so equivalent
// FilterSets always produce the same key. Normalize does not validate the
// date range; callers run FilterSet.Validate first.
func Normalize(f FilterSet) CacheKey {
	c := f.Canonical()
	// Encode sorts by parameter name, which fixes the field order.
	return CacheKey(url.PathEscape(c.Namespace) + "?" + c.Values().Encode())
}

// Values renders the filters (without namespace) as query parameters:
// from, to, one repeated parameter per facet value and flag.<name>=1 for
// every true flag. Facet values keep the FilterSet's order; call
// Canonical first for the normalized form.
func (f FilterSet) Values() url.Values {
	values := url.Values{}

	if !f.From.IsZero() {
		values.Set(fieldFrom, formatTime(f.From))
	}
	if !f.To.IsZero() {
		values.Set(fieldTo, formatTime(f.To))
	}
	setFacet(values, fieldVersions, f.Versions)
	setFacet(values, fieldCategories, f.Categories)
	setFacet(values, fieldAgents, f.Agents)
	setFacet(values, fieldStatuses, f.Statuses)
	setFacet(values, fieldRequirements, f.Requirements)

	for name, on := range f.Flags {
		if on {
			values.Set(flagPrefix+name, "1")
		}
	}
	return values
}

// ParseKey decodes a CacheKey back into its canonical FilterSet.
// Normalize(ParseKey(k)) == k for every key produced by Normalize.
func ParseKey(k CacheKey) (FilterSet, error) {
	ns, query, ok := strings.Cut(string(k), "?")
	if !ok {
		return FilterSet{}, fmt.Errorf("%w: missing separator in %q", ErrMalformedKey, k)
	}

	namespace, err := url.PathUnescape(ns)
	if err != nil {
		return FilterSet{}, fmt.Errorf("%w: namespace: %v", ErrMalformedKey, err)
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return FilterSet{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	f, err := FromValues(namespace, values)
	if err != nil {
		return FilterSet{}, err
	}
	return f.Canonical(), nil
}

// FromValues builds a FilterSet from query parameters in the layout
// produced by Values. Unknown parameters are ignored, so request URLs
// carrying paging parameters can be passed as-is. Timestamps accept any
// RFC 3339 form.
func FromValues(namespace string, values url.Values) (FilterSet, error) {
	f := FilterSet{Namespace: namespace}

	var err error
	if f.From, err = parseTime(values.Get(fieldFrom)); err != nil {
		return FilterSet{}, err
	}
	if f.To, err = parseTime(values.Get(fieldTo)); err != nil {
		return FilterSet{}, err
	}
	f.Versions = values[fieldVersions]
	f.Categories = values[fieldCategories]
	f.Agents = values[fieldAgents]
	f.Statuses = values[fieldStatuses]
	f.Requirements = values[fieldRequirements]

	for name := range values {
		if !strings.HasPrefix(name, flagPrefix) {
			continue
		}
		on := values.Get(name)
		if on != "1" && on != "true" {
			continue
		}
		if f.Flags == nil {
			f.Flags = make(map[string]bool)
		}
		f.Flags[strings.TrimPrefix(name, flagPrefix)] = true
	}

	return f, nil
}

func setFacet(values url.Values, field string, set []string) {
	if len(set) == 0 {
		return
	}
	values[field] = append([]string(nil), set...)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedKey, s, err)
	}
	return t, nil
}
