package cusipmap

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Filing is one raw filing handed to the parser. Empty optional fields are
// treated as absent and filled from the SGML header when it carries them.
type Filing struct {
	Identifier string
	Content    string

	Form            string
	FilingDate      string
	AccessionNumber string
	CompanyName     string
}

// ParsedFiling is the structured result of parsing one filing.
type ParsedFiling struct {
	Identifier      string      `json:"identifier"`
	CIK             string      `json:"cik,omitempty"`
	CUSIP           string      `json:"cusip,omitempty"`
	Form            string      `json:"form,omitempty"`
	FilingDate      string      `json:"filing_date,omitempty"`
	AccessionNumber string      `json:"accession_number,omitempty"`
	CompanyName     string      `json:"company_name,omitempty"`
	ParseMethod     ParseMethod `json:"parse_method,omitempty"`
}

// CUSIPs splits a multi-security result into its tokens.
func (p ParsedFiling) CUSIPs() []string {
	if p.CUSIP == "" {
		return nil
	}
	return strings.Split(p.CUSIP, ";")
}

// Parser turns filing text into ParsedFiling records. It is safe for
// concurrent use.
type Parser struct {
	extractor *Extractor
}

// NewParser returns a Parser using the given extraction options.
func NewParser(opts ExtractorOptions) *Parser {
	return &Parser{extractor: NewExtractor(opts)}
}

var defaultParser = &Parser{extractor: defaultExtractor}

// ParseText extracts the subject CIK and the CUSIP from raw filing text
// using the default options.
func ParseText(text string) (cik, cusip string, method ParseMethod) {
	return defaultParser.ParseText(text)
}

// ParseText extracts the subject CIK and the CUSIP from raw filing text.
// The CIK, with and without leading zeros, is never reported as a CUSIP.
func (p *Parser) ParseText(text string) (cik, cusip string, method ParseMethod) {
	return p.parseLines(splitLines(text))
}

func (p *Parser) parseLines(lines []string) (cik, cusip string, method ParseMethod) {
	cik = ExtractCIK(lines)
	cusip, method = p.extractor.ExtractCUSIP(lines, CIKVariants(cik))
	return cik, cusip, method
}

// Parse parses a single filing.
func (p *Parser) Parse(filing Filing) ParsedFiling {
	lines := splitLines(filing.Content)
	cik, cusip, method := p.parseLines(lines)
	header := ExtractHeaderMetadata(lines)

	return ParsedFiling{
		Identifier:      filing.Identifier,
		CIK:             cik,
		CUSIP:           cusip,
		Form:            firstNonEmpty(filing.Form, header.FormType),
		FilingDate:      firstNonEmpty(filing.FilingDate, header.FilingDate),
		AccessionNumber: firstNonEmpty(filing.AccessionNumber, header.Accession),
		CompanyName:     firstNonEmpty(filing.CompanyName, header.CompanyName),
		ParseMethod:     method,
	}
}

// ParseReader reads a whole filing from r. Invalid UTF-8 is dropped.
func (p *Parser) ParseReader(identifier string, r io.Reader) (ParsedFiling, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ParsedFiling{}, fmt.Errorf("failed to read filing %s: %w", identifier, err)
	}
	return p.Parse(Filing{
		Identifier: identifier,
		Content:    strings.ToValidUTF8(string(data), ""),
	}), nil
}

// ReadFiling loads a filing from disk. The identifier is the path; archive
// paths also supply the accession number and filing date.
func ReadFiling(path string) (Filing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Filing{}, fmt.Errorf("failed to read filing: %w", err)
	}

	filing := Filing{
		Identifier: path,
		Content:    strings.ToValidUTF8(string(data), ""),
	}
	if meta, err := ExtractMetadataFromPath(path); err == nil {
		filing.AccessionNumber = meta.Accession
		filing.FilingDate = meta.FilingDate
	}
	return filing, nil
}

// ParseFile parses a filing stored on disk.
func (p *Parser) ParseFile(path string) (ParsedFiling, error) {
	filing, err := ReadFiling(path)
	if err != nil {
		return ParsedFiling{}, err
	}
	return p.Parse(filing), nil
}

// ParseFilings parses filings one at a time, in order.
func (p *Parser) ParseFilings(filings iter.Seq[Filing]) iter.Seq[ParsedFiling] {
	return func(yield func(ParsedFiling) bool) {
		for filing := range filings {
			if !yield(p.Parse(filing)) {
				return
			}
		}
	}
}

// ConcurrencyOptions bounds ParseConcurrently.
type ConcurrencyOptions struct {
	// Workers is the number of filings parsed at the same time.
	Workers int `mapstructure:"workers" yaml:"workers"`
	// MaxQueue is the number of submitted filings whose results have not
	// been yielded yet. Reaching it blocks submission until the oldest
	// result is drained.
	MaxQueue int `mapstructure:"max_queue" yaml:"max_queue"`
}

// DefaultConcurrencyOptions returns 2 workers and a queue of 32.
func DefaultConcurrencyOptions() ConcurrencyOptions {
	return ConcurrencyOptions{Workers: 2, MaxQueue: 32}
}

func (o ConcurrencyOptions) withDefaults() ConcurrencyOptions {
	def := DefaultConcurrencyOptions()
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	if o.MaxQueue <= 0 {
		o.MaxQueue = def.MaxQueue
	}
	return o
}

// ParseConcurrently parses filings on a bounded pool of goroutines and
// yields results in submission order. At most opts.MaxQueue results are
// pending at any time. When ctx is cancelled, submission stops and the
// context error is yielded once.
func (p *Parser) ParseConcurrently(ctx context.Context, filings iter.Seq[Filing], opts ConcurrencyOptions) iter.Seq2[ParsedFiling, error] {
	opts = opts.withDefaults()

	return func(yield func(ParsedFiling, error) bool) {
		var g errgroup.Group
		g.SetLimit(opts.Workers)
		// in-flight parses still finish on early return; the result
		// channels are buffered so none of them blocks
		defer g.Wait()

		var pending []chan ParsedFiling
		drainOldest := func() bool {
			oldest := pending[0]
			pending = pending[1:]
			select {
			case parsed := <-oldest:
				return yield(parsed, nil)
			case <-ctx.Done():
				yield(ParsedFiling{}, ctx.Err())
				return false
			}
		}

		for filing := range filings {
			if err := ctx.Err(); err != nil {
				yield(ParsedFiling{}, err)
				return
			}

			result := make(chan ParsedFiling, 1)
			pending = append(pending, result)
			g.Go(func() error {
				result <- p.Parse(filing)
				return nil
			})

			if len(pending) >= opts.MaxQueue && !drainOldest() {
				return
			}
		}

		for len(pending) > 0 {
			if !drainOldest() {
				return
			}
		}
	}
}

// splitLines normalizes line endings and invisible characters before
// splitting text into lines.
func splitLines(text string) []string {
	return strings.Split(string(NormalizeFilingText([]byte(text))), "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
