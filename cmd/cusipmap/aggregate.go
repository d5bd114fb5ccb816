package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	cusipmap "github.com/RxDataLab/go-cusipmap"
)

// --- Mapping Command ---

var mappingCmd = &cobra.Command{
	Use:   "mapping <events.csv>...",
	Short: "Build the deduplicated CIK to CUSIP mapping from events",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := loadEvents(cmd, args)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = cfg.Output.Path(cfg.Output.MappingFile)
		}
		_, err = writeMapping(cmd, events, output)
		return err
	},
}

// --- Dynamics Command ---

var dynamicsCmd = &cobra.Command{
	Use:   "dynamics <events.csv>...",
	Short: "Summarize the filing history of every (CIK, CUSIP) pair",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := loadEvents(cmd, args)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = cfg.Output.Path(cfg.Output.DynamicsFile)
		}
		_, err = writeDynamics(cmd, events, output)
		return err
	},
}

// --- Run Command ---

var runCmd = &cobra.Command{
	Use:   "run <path>...",
	Short: "Parse filings and write events, mapping and dynamics",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		applyParsingFlags(cmd)

		eventsFile, err := openOutput(cmd, cfg.Output.Path(cfg.Output.EventsFile))
		if err != nil {
			return err
		}
		events, err := parseToEvents(ctx, args, eventsFile)
		if err := closeOutput(eventsFile, cfg.Output.EventsFile, err); err != nil {
			return err
		}

		events, err = filterEvents(cmd, events)
		if err != nil {
			return err
		}
		mapping, err := writeMapping(cmd, events, cfg.Output.Path(cfg.Output.MappingFile))
		if err != nil {
			return err
		}
		dynamics, err := writeDynamics(cmd, events, cfg.Output.Path(cfg.Output.DynamicsFile))
		if err != nil {
			return err
		}
		return saveAll(ctx, events, mapping, dynamics)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{mappingCmd, dynamicsCmd} {
		cmd.Flags().StringP("output", "o", "", "output CSV path, - for stdout")
		addFilterFlags(cmd)
	}
	addParsingFlags(runCmd)
	addFilterFlags(runCmd)
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("cik", nil, "only keep these CIKs (default: filter.ciks)")
	cmd.Flags().String("from", "", "earliest filing date, YYYY-MM-DD (default: filter.from)")
	cmd.Flags().String("to", "", "latest filing date, YYYY-MM-DD (default: filter.to)")
	cmd.Flags().StringSlice("form", nil, `only keep these forms, e.g. "13D" (default: filter.forms)`)
	cmd.Flags().Bool("skip-amendments", false, "drop amended filings")
}

// filterEvents applies the configured filter, overridden by flags.
func filterEvents(cmd *cobra.Command, events []cusipmap.Event) ([]cusipmap.Event, error) {
	fc := cfg.Filter
	if ciks, _ := cmd.Flags().GetStringSlice("cik"); len(ciks) > 0 {
		fc.CIKs = ciks
	}
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		fc.From = from
	}
	if to, _ := cmd.Flags().GetString("to"); to != "" {
		fc.To = to
	}
	if forms, _ := cmd.Flags().GetStringSlice("form"); len(forms) > 0 {
		fc.Forms = forms
	}
	if cmd.Flags().Changed("skip-amendments") {
		fc.SkipAmendments, _ = cmd.Flags().GetBool("skip-amendments")
	}

	filter, err := fc.EventFilter()
	if err != nil {
		return nil, err
	}
	filtered, err := cusipmap.FilterEvents(events, filter)
	if err != nil {
		return nil, err
	}
	if len(filtered) != len(events) {
		logger.Info("events filtered", "kept", len(filtered), "dropped", len(events)-len(filtered))
	}
	return filtered, nil
}

// loadEvents reads and filters events CSVs. Missing files are skipped.
func loadEvents(cmd *cobra.Command, paths []string) ([]cusipmap.Event, error) {
	var all []cusipmap.Event
	for _, path := range paths {
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("events file not found", "path", path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open events file: %w", err)
		}

		events, err := cusipmap.ReadEvents(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		logger.Debug("events loaded", "path", path, "events", len(events))
		all = append(all, events...)
	}
	return filterEvents(cmd, all)
}

func writeMapping(cmd *cobra.Command, events []cusipmap.Event, output string) ([]cusipmap.MappingRow, error) {
	rows, err := cusipmap.BuildMapping(events, cfg.Mapping)
	if err != nil {
		return nil, err
	}

	w, err := openOutput(cmd, output)
	if err != nil {
		return nil, err
	}
	if err := closeOutput(w, output, cusipmap.WriteMapping(w, rows)); err != nil {
		return nil, err
	}
	logger.Info("mapping built", "events", len(events), "rows", len(rows))
	return rows, nil
}

func writeDynamics(cmd *cobra.Command, events []cusipmap.Event, output string) ([]cusipmap.DynamicsRow, error) {
	rows, err := cusipmap.BuildDynamics(events, cfg.Dynamics)
	if err != nil {
		return nil, err
	}

	w, err := openOutput(cmd, output)
	if err != nil {
		return nil, err
	}
	if err := closeOutput(w, output, cusipmap.WriteDynamics(w, rows)); err != nil {
		return nil, err
	}
	logger.Info("dynamics built", "events", len(events), "rows", len(rows))
	return rows, nil
}

func saveAll(ctx context.Context, events []cusipmap.Event, mapping []cusipmap.MappingRow, dynamics []cusipmap.DynamicsRow) error {
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
	if err := db.ReplaceMapping(ctx, mapping); err != nil {
		return err
	}
	if err := db.ReplaceDynamics(ctx, dynamics); err != nil {
		return err
	}
	logger.Info("outputs stored", "path", cfg.Output.Path(cfg.Output.SQLitePath))
	return nil
}
