package cusipmap

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CIKWhitelist holds CIKs both as written and as numbers so that
// "0000320193" and "320193" select the same company.
type CIKWhitelist struct {
	raw     map[string]struct{}
	numeric map[int64]struct{}
}

// NormalizeCIKWhitelist builds a whitelist, ignoring blank entries and
// whitespace inside entries. A nil input yields a nil whitelist that
// accepts every CIK.
func NormalizeCIKWhitelist(values []string) *CIKWhitelist {
	if values == nil {
		return nil
	}
	w := &CIKWhitelist{
		raw:     make(map[string]struct{}),
		numeric: make(map[int64]struct{}),
	}
	for _, v := range values {
		text := strings.Join(strings.Fields(v), "")
		if text == "" {
			continue
		}
		w.raw[text] = struct{}{}
		if n, err := strconv.ParseInt(text, 10, 64); err == nil && n >= 0 {
			w.numeric[n] = struct{}{}
		}
	}
	return w
}

// Contains reports whether cik is whitelisted. A nil whitelist contains
// everything.
func (w *CIKWhitelist) Contains(cik string) bool {
	if w == nil {
		return true
	}
	cik = strings.TrimSpace(cik)
	if _, ok := w.raw[cik]; ok {
		return true
	}
	if n, ok := ParseCIK(cik); ok {
		_, ok = w.numeric[n]
		return ok
	}
	return false
}

// EventFilter selects events before aggregation. Zero fields do not filter.
type EventFilter struct {
	CIKs           *CIKWhitelist
	From           time.Time
	To             time.Time
	SkipAmendments bool
	Forms          []string
}

// Match reports whether e passes the filter. Date bounds are inclusive; an
// event whose date cannot be parsed fails any date bound.
func (f EventFilter) Match(e Event) bool {
	if !f.CIKs.Contains(e.CIK) {
		return false
	}
	if f.SkipAmendments && IsAmendedForm(e.Form) {
		return false
	}
	if !MatchesAnyForm(e.Form, f.Forms) {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}

	date, err := ParseFilingDate(e.FilingDate)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && date.After(f.To) {
		return false
	}
	return true
}

// FilterEvents returns the events that pass f, in their original order.
func FilterEvents(events []Event, f EventFilter) ([]Event, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return nil, fmt.Errorf("%w: from date %s is after to date %s",
			ErrInvalidConfig, f.From.Format(isoDate), f.To.Format(isoDate))
	}

	var filtered []Event
	for _, e := range events {
		if f.Match(e) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}
