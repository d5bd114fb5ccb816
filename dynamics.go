package cusipmap

import (
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidEvent is returned in strict mode for events that cannot be aggregated.
var ErrInvalidEvent = errors.New("invalid event")

// DynamicsHeader is the column layout of the dynamics CSV.
var DynamicsHeader = []string{
	"cik",
	"cusip6",
	"cusip8",
	"cusip9",
	"first_seen",
	"last_seen",
	"filings_count",
	"forms",
	"months_active",
	"most_recent_accession",
	"most_recent_form",
	"most_recent_filing_date",
	"valid_check_digit",
	"parse_methods",
	"fallback_filings",
}

const isoDate = "2006-01-02"

// filingDateLayouts are tried in order when reading a filing date.
var filingDateLayouts = []string{
	isoDate,
	"20060102",
	"2006/01/02",
	"01/02/2006",
	time.RFC3339,
}

// DynamicsOptions controls BuildDynamics.
type DynamicsOptions struct {
	// StrictDates rejects events whose filing date cannot be parsed instead
	// of silently dropping them.
	StrictDates bool `mapstructure:"strict_dates" yaml:"strict_dates"`
}

// DynamicsRow summarizes the filing history of one (CIK, cusip8) pair.
type DynamicsRow struct {
	CIK                  int64  `json:"cik"`
	CUSIP6               string `json:"cusip6"`
	CUSIP8               string `json:"cusip8"`
	CUSIP9               string `json:"cusip9"`
	FirstSeen            string `json:"first_seen"`
	LastSeen             string `json:"last_seen"`
	FilingsCount         int    `json:"filings_count"`
	Forms                string `json:"forms"`
	MonthsActive         int    `json:"months_active"`
	MostRecentAccession  string `json:"most_recent_accession"`
	MostRecentForm       string `json:"most_recent_form"`
	MostRecentFilingDate string `json:"most_recent_filing_date"`
	ValidCheckDigit      bool   `json:"valid_check_digit"`
	ParseMethods         string `json:"parse_methods"`
	FallbackFilings      int    `json:"fallback_filings"`
}

type dynamicsKey struct {
	cik    int64
	cusip8 string
}

type datedEvent struct {
	Event
	date time.Time
}

// BuildDynamics aggregates events per (CIK, cusip8). Events without a
// numeric CIK or a cusip8 are skipped, as are events with an unparseable
// filing date unless opts.StrictDates is set.
func BuildDynamics(events []Event, opts DynamicsOptions) ([]DynamicsRow, error) {
	groups := make(map[dynamicsKey][]datedEvent)
	for i, e := range events {
		cik, ok := ParseCIK(e.CIK)
		if !ok {
			continue
		}
		cusip8 := strings.ToUpper(strings.TrimSpace(e.CUSIP8))
		if cusip8 == "" {
			continue
		}
		date, err := ParseFilingDate(e.FilingDate)
		if err != nil {
			if opts.StrictDates {
				return nil, fmt.Errorf("%w: event %d: %v", ErrInvalidEvent, i, err)
			}
			continue
		}

		key := dynamicsKey{cik: cik, cusip8: cusip8}
		groups[key] = append(groups[key], datedEvent{Event: e, date: date})
	}

	rows := make([]DynamicsRow, 0, len(groups))
	for key, group := range groups {
		rows = append(rows, summarize(key, group))
	}
	slices.SortFunc(rows, func(a, b DynamicsRow) int {
		return cmp.Or(cmp.Compare(a.CIK, b.CIK), strings.Compare(a.CUSIP8, b.CUSIP8))
	})
	return rows, nil
}

func summarize(key dynamicsKey, group []datedEvent) DynamicsRow {
	slices.SortStableFunc(group, func(a, b datedEvent) int {
		return cmp.Or(a.date.Compare(b.date), strings.Compare(a.AccessionNumber, b.AccessionNumber))
	})

	forms := make(map[string]struct{})
	methods := make(map[string]struct{})
	months := make(map[string]struct{})
	var cusip6, cusip9 string
	fallbacks := 0

	for _, e := range group {
		if form := strings.TrimSpace(e.Form); form != "" {
			forms[form] = struct{}{}
		}
		method := strings.TrimSpace(e.ParseMethod)
		if method != "" {
			methods[method] = struct{}{}
		}
		if method != string(MethodWindow) {
			fallbacks++
		}
		months[e.date.Format("2006-01")] = struct{}{}
		if cusip6 == "" {
			cusip6 = strings.TrimSpace(e.CUSIP6)
		}
		if cusip9 == "" {
			cusip9 = strings.TrimSpace(e.CUSIP9)
		}
	}

	first, last := group[0], group[len(group)-1]
	return DynamicsRow{
		CIK:                  key.cik,
		CUSIP6:               cusip6,
		CUSIP8:               key.cusip8,
		CUSIP9:               cusip9,
		FirstSeen:            first.date.Format(isoDate),
		LastSeen:             last.date.Format(isoDate),
		FilingsCount:         len(group),
		Forms:                joinSorted(forms),
		MonthsActive:         len(months),
		MostRecentAccession:  last.AccessionNumber,
		MostRecentForm:       last.Form,
		MostRecentFilingDate: last.date.Format(isoDate),
		ValidCheckDigit:      HasValidCheckDigit(cusip9),
		ParseMethods:         joinSorted(methods),
		FallbackFilings:      fallbacks,
	}
}

// ParseFilingDate parses the date formats found in EDGAR indexes and
// filing headers.
func ParseFilingDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty filing date")
	}
	for _, layout := range filingDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized filing date %q", value)
}

func joinSorted(set map[string]struct{}) string {
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	slices.Sort(values)
	return strings.Join(values, ";")
}

func (r DynamicsRow) record() []string {
	return []string{
		strconv.FormatInt(r.CIK, 10),
		r.CUSIP6,
		r.CUSIP8,
		r.CUSIP9,
		r.FirstSeen,
		r.LastSeen,
		strconv.Itoa(r.FilingsCount),
		r.Forms,
		strconv.Itoa(r.MonthsActive),
		r.MostRecentAccession,
		r.MostRecentForm,
		r.MostRecentFilingDate,
		strconv.FormatBool(r.ValidCheckDigit),
		r.ParseMethods,
		strconv.Itoa(r.FallbackFilings),
	}
}

// WriteDynamics writes the dynamics CSV.
func WriteDynamics(w io.Writer, rows []DynamicsRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DynamicsHeader); err != nil {
		return fmt.Errorf("failed to write dynamics header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row.record()); err != nil {
			return fmt.Errorf("failed to write dynamics row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush dynamics: %w", err)
	}
	return nil
}
