package cusipmap

import (
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidConfig is returned when aggregation options cannot produce any row.
var ErrInvalidConfig = errors.New("invalid configuration")

// MappingHeader is the column layout of the mapping CSV.
var MappingHeader = []string{"cik", "cusip6", "cusip8"}

// MappingOptions filters the events folded into the mapping.
type MappingOptions struct {
	// ValidLengths lists the accepted lengths of the richest CUSIP of an
	// event (cusip9 when present, else cusip8). Nil means {6, 8, 9}; an
	// empty non-nil set is rejected.
	ValidLengths []int `mapstructure:"valid_lengths" yaml:"valid_lengths"`
	// ForbiddenPrefixes lists issuer codes dropped from the mapping. Nil
	// means {000000, 0001PT}.
	ForbiddenPrefixes []string `mapstructure:"forbidden_prefixes" yaml:"forbidden_prefixes"`
}

// DefaultMappingOptions returns the stock filters.
func DefaultMappingOptions() MappingOptions {
	return MappingOptions{
		ValidLengths:      []int{6, 8, 9},
		ForbiddenPrefixes: []string{"000000", "0001PT"},
	}
}

// MappingRow is one deduplicated CIK to CUSIP association.
type MappingRow struct {
	CIK    int64  `json:"cik"`
	CUSIP6 string `json:"cusip6"`
	CUSIP8 string `json:"cusip8"`
}

// BuildMapping folds events into the deduplicated CIK to CUSIP mapping,
// sorted by CIK then cusip8.
func BuildMapping(events []Event, opts MappingOptions) ([]MappingRow, error) {
	if opts.ValidLengths == nil {
		opts.ValidLengths = DefaultMappingOptions().ValidLengths
	}
	if opts.ForbiddenPrefixes == nil {
		opts.ForbiddenPrefixes = DefaultMappingOptions().ForbiddenPrefixes
	}
	if len(opts.ValidLengths) == 0 {
		return nil, fmt.Errorf("%w: valid lengths must not be empty", ErrInvalidConfig)
	}

	lengths := make(map[int]struct{}, len(opts.ValidLengths))
	for _, n := range opts.ValidLengths {
		lengths[n] = struct{}{}
	}
	forbidden := make(map[string]struct{}, len(opts.ForbiddenPrefixes))
	for _, p := range opts.ForbiddenPrefixes {
		forbidden[strings.ToUpper(p)] = struct{}{}
	}

	seen := make(map[MappingRow]struct{})
	var rows []MappingRow
	for _, e := range events {
		cik, ok := ParseCIK(e.CIK)
		if !ok {
			continue
		}
		cusip8 := strings.ToUpper(strings.TrimSpace(e.CUSIP8))
		if len(cusip8) != 8 {
			continue
		}

		richest := strings.TrimSpace(e.CUSIP9)
		if richest == "" {
			richest = cusip8
		}
		if _, ok := lengths[len(richest)]; !ok {
			continue
		}

		cusip6 := strings.ToUpper(strings.TrimSpace(e.CUSIP6))
		if len(cusip6) != 6 {
			cusip6 = cusip8[:6]
		}
		if _, drop := forbidden[cusip6]; drop {
			continue
		}

		row := MappingRow{CIK: cik, CUSIP6: cusip6, CUSIP8: cusip8}
		if _, dup := seen[row]; dup {
			continue
		}
		seen[row] = struct{}{}
		rows = append(rows, row)
	}

	slices.SortFunc(rows, func(a, b MappingRow) int {
		return cmp.Or(
			cmp.Compare(a.CIK, b.CIK),
			strings.Compare(a.CUSIP8, b.CUSIP8),
			strings.Compare(a.CUSIP6, b.CUSIP6),
		)
	})
	return rows, nil
}

// ParseCIK converts a CIK column to an integer. Integral floats such as
// "320193.0" are accepted; anything else is rejected.
func ParseCIK(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// WriteMapping writes the mapping CSV.
func WriteMapping(w io.Writer, rows []MappingRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(MappingHeader); err != nil {
		return fmt.Errorf("failed to write mapping header: %w", err)
	}
	for _, row := range rows {
		record := []string{strconv.FormatInt(row.CIK, 10), row.CUSIP6, row.CUSIP8}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write mapping row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush mapping: %w", err)
	}
	return nil
}
