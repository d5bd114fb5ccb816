package cusipmap

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EventHeader is the column layout of the events CSV.
var EventHeader = []string{
	"cik",
	"form",
	"filing_date",
	"accession_number",
	"company_name",
	"cusip9",
	"cusip8",
	"cusip6",
	"parse_method",
}

// Event is one (filing, CUSIP) observation. Multi-security filings produce
// one event per security.
type Event struct {
	CIK             string
	Form            string
	FilingDate      string
	AccessionNumber string
	CompanyName     string
	CUSIP9          string
	CUSIP8          string
	CUSIP6          string
	ParseMethod     string
}

// EventsFromParsed expands a parsed filing into events. A filing without a
// CUSIP still yields one event so the miss stays auditable; "NONE" is kept
// in cusip9 with the derived columns left blank.
func EventsFromParsed(parsed ParsedFiling) []Event {
	base := Event{
		CIK:             parsed.CIK,
		Form:            parsed.Form,
		FilingDate:      parsed.FilingDate,
		AccessionNumber: parsed.AccessionNumber,
		CompanyName:     parsed.CompanyName,
		ParseMethod:     string(parsed.ParseMethod),
	}

	tokens := parsed.CUSIPs()
	if len(tokens) == 0 {
		return []Event{base}
	}

	events := make([]Event, 0, len(tokens))
	for _, token := range tokens {
		event := base
		event.CUSIP9 = token
		if token != NoCUSIP {
			event.CUSIP8 = prefix(token, 8)
			event.CUSIP6 = prefix(token, 6)
		}
		events = append(events, event)
	}
	return events
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (e Event) record() []string {
	return []string{
		e.CIK,
		e.Form,
		e.FilingDate,
		e.AccessionNumber,
		e.CompanyName,
		e.CUSIP9,
		e.CUSIP8,
		e.CUSIP6,
		e.ParseMethod,
	}
}

// EventWriter streams events as CSV.
type EventWriter struct {
	w     *csv.Writer
	count int
}

// NewEventWriter writes the header and returns a writer for event rows.
func NewEventWriter(w io.Writer) (*EventWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(EventHeader); err != nil {
		return nil, fmt.Errorf("failed to write events header: %w", err)
	}
	return &EventWriter{w: cw}, nil
}

// Write appends events.
func (ew *EventWriter) Write(events ...Event) error {
	for _, e := range events {
		if err := ew.w.Write(e.record()); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
		ew.count++
	}
	return nil
}

// Count returns the number of events written so far.
func (ew *EventWriter) Count() int {
	return ew.count
}

// Flush flushes buffered rows.
func (ew *EventWriter) Flush() error {
	ew.w.Flush()
	if err := ew.w.Error(); err != nil {
		return fmt.Errorf("failed to flush events: %w", err)
	}
	return nil
}

// WriteEvents writes a complete events CSV.
func WriteEvents(w io.Writer, events []Event) error {
	ew, err := NewEventWriter(w)
	if err != nil {
		return err
	}
	if err := ew.Write(events...); err != nil {
		return err
	}
	return ew.Flush()
}

// ReadEvents reads an events CSV. Columns are matched by header name, so
// extra columns are ignored and missing ones read as empty.
func ReadEvents(r io.Reader) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read events header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}
	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var events []Event
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		events = append(events, Event{
			CIK:             field(record, "cik"),
			Form:            field(record, "form"),
			FilingDate:      field(record, "filing_date"),
			AccessionNumber: field(record, "accession_number"),
			CompanyName:     field(record, "company_name"),
			CUSIP9:          field(record, "cusip9"),
			CUSIP8:          field(record, "cusip8"),
			CUSIP6:          field(record, "cusip6"),
			ParseMethod:     field(record, "parse_method"),
		})
	}
	return events, nil
}
