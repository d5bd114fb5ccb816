package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	cusipmap "github.com/RxDataLab/go-cusipmap"
	"github.com/RxDataLab/go-cusipmap/internal/store"
)

const progressEvery = 1000

// --- Parse Command ---

var parseCmd = &cobra.Command{
	Use:   "parse <path>...",
	Short: "Parse filings into an events CSV",
	Long: `Parse filing files, or directories of them, and write one event row per
extracted CUSIP. Directories are walked recursively in lexical order and only
file names matching parsing.pattern are read.`,
	Example: `  cusipmap parse ./filings
  cusipmap parse --json 0000320193_2020-01-15_000119312520001234.txt
  cusipmap parse -o - --concurrent --workers 8 ./filings`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		applyParsingFlags(cmd)
		asJSON, _ := cmd.Flags().GetBool("json")
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = cfg.Output.Path(cfg.Output.EventsFile)
			if asJSON {
				output = "-"
			}
		}

		w, err := openOutput(cmd, output)
		if err != nil {
			return err
		}

		if asJSON {
			return closeOutput(w, output, parseToJSON(cmd.Context(), args, w))
		}

		events, err := parseToEvents(cmd.Context(), args, w)
		if err := closeOutput(w, output, err); err != nil {
			return err
		}
		return saveEvents(cmd.Context(), events)
	},
}

func init() {
	addParsingFlags(parseCmd)
	parseCmd.Flags().StringP("output", "o", "", "events CSV path, - for stdout (default: output.dir/output.events_file)")
	parseCmd.Flags().Bool("json", false, "print parsed filings as JSON instead of events")
}

func addParsingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("concurrent", false, "parse on a worker pool")
	cmd.Flags().Int("workers", 0, "number of parsing workers (default: parsing.workers)")
	cmd.Flags().Int("max-queue", 0, "maximum pending filings (default: parsing.max_queue)")
}

func applyParsingFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("concurrent") {
		cfg.Parsing.Concurrent, _ = cmd.Flags().GetBool("concurrent")
	}
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		cfg.Parsing.Workers = n
	}
	if n, _ := cmd.Flags().GetInt("max-queue"); n > 0 {
		cfg.Parsing.MaxQueue = n
	}
}

// filingsFrom lazily reads every filing below paths. Unreadable entries are
// logged and skipped.
func filingsFrom(paths []string, pattern string) iter.Seq[cusipmap.Filing] {
	return func(yield func(cusipmap.Filing) bool) {
		stopped := false
		for _, root := range paths {
			filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					logger.Warn("skipping path", "path", path, "error", err)
					return nil
				}
				if d.IsDir() {
					return nil
				}
				if path != root && pattern != "" {
					if ok, _ := filepath.Match(pattern, d.Name()); !ok {
						return nil
					}
				}

				filing, err := cusipmap.ReadFiling(path)
				if err != nil {
					logger.Warn("skipping filing", "path", path, "error", err)
					return nil
				}
				if !yield(filing) {
					stopped = true
					return fs.SkipAll
				}
				return nil
			})
			if stopped {
				return
			}
		}
	}
}

// parseAll parses filings sequentially or on the worker pool, depending on
// the configuration.
func parseAll(ctx context.Context, filings iter.Seq[cusipmap.Filing]) iter.Seq2[cusipmap.ParsedFiling, error] {
	parser := cusipmap.NewParser(cfg.Extractor)
	if cfg.Parsing.Concurrent {
		logger.Debug("parsing concurrently",
			"workers", cfg.Parsing.Workers,
			"max_queue", cfg.Parsing.MaxQueue)
		return parser.ParseConcurrently(ctx, filings, cfg.Parsing.Concurrency())
	}

	return func(yield func(cusipmap.ParsedFiling, error) bool) {
		for parsed := range parser.ParseFilings(filings) {
			if err := ctx.Err(); err != nil {
				yield(cusipmap.ParsedFiling{}, err)
				return
			}
			if !yield(parsed, nil) {
				return
			}
		}
	}
}

func parseToEvents(ctx context.Context, paths []string, w io.Writer) ([]cusipmap.Event, error) {
	ew, err := cusipmap.NewEventWriter(w)
	if err != nil {
		return nil, err
	}

	var events []cusipmap.Event
	filings := 0
	methods := make(map[cusipmap.ParseMethod]int)
	for parsed, err := range parseAll(ctx, filingsFrom(paths, cfg.Parsing.Pattern)) {
		if err != nil {
			return nil, fmt.Errorf("parsing interrupted: %w", err)
		}
		logger.Debug("parsed filing",
			"identifier", parsed.Identifier,
			"cik", parsed.CIK,
			"cusip", parsed.CUSIP,
			"method", parsed.ParseMethod)

		batch := cusipmap.EventsFromParsed(parsed)
		if err := ew.Write(batch...); err != nil {
			return nil, err
		}
		events = append(events, batch...)

		filings++
		methods[parsed.ParseMethod]++
		if filings%progressEvery == 0 {
			logger.Info("parsing filings", "parsed", filings)
		}
	}
	if err := ew.Flush(); err != nil {
		return nil, err
	}

	logger.Info("parsing complete",
		"filings", filings,
		"events", ew.Count(),
		"window", methods[cusipmap.MethodWindow],
		"fallback", methods[cusipmap.MethodFallback],
		"not_found", methods[cusipmap.MethodNone])
	return events, nil
}

func parseToJSON(ctx context.Context, paths []string, w io.Writer) error {
	var all []cusipmap.ParsedFiling
	for parsed, err := range parseAll(ctx, filingsFrom(paths, cfg.Parsing.Pattern)) {
		if err != nil {
			return fmt.Errorf("parsing interrupted: %w", err)
		}
		all = append(all, parsed)
	}

	out, err := cusipmap.FormatJSONBatch(all)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	out = append(out, '\n')
	_, err = w.Write(out)
	return err
}

// saveEvents mirrors events into the SQLite sink when one is configured.
func saveEvents(ctx context.Context, events []cusipmap.Event) error {
	if cfg.Output.SQLitePath == "" {
		return nil
	}
	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SaveEvents(ctx, events); err != nil {
		return err
	}
	logger.Info("events stored", "path", cfg.Output.Path(cfg.Output.SQLitePath), "events", len(events))
	return nil
}

func openStore(ctx context.Context) (*store.SQLiteStore, error) {
	path := cfg.Output.Path(cfg.Output.SQLitePath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return store.Open(ctx, path)
}

// closeOutput closes w and returns err, or the close error when err is nil.
func closeOutput(w io.Closer, path string, err error) error {
	if closeErr := w.Close(); err == nil && closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", path, closeErr)
	}
	return err
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// openOutput creates path, or returns the command's stdout for "-".
func openOutput(cmd *cobra.Command, path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{cmd.OutOrStdout()}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	logger.Info("writing output", "path", path)
	return f, nil
}
