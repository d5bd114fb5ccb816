package cusipmap_test

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RxDataLab/go-cusipmap"
)

var updateGolden = flag.Bool("update", false, "update golden test files")

// TestCaseMetadata describes where a fixture came from.
type TestCaseMetadata struct {
	SourceURL string `json:"source_url"`
	Notes     string `json:"notes"`
}

// FilingTestCase is the content of an expected.json file.
type FilingTestCase struct {
	Metadata TestCaseMetadata       `json:"metadata"`
	Expected *cusipmap.ParsedFiling `json:"expected"`
}

// TestParseFilings discovers every case under testdata/filings/<case_name>/:
//   - input.txt: the raw filing
//   - expected.json: the expected parse result with metadata
func TestParseFilings(t *testing.T) {
	testCasesDir := "testdata/filings"

	entries, err := os.ReadDir(testCasesDir)
	require.NoError(t, err, "failed to read test cases directory")

	var testCases []string
	for _, entry := range entries {
		if entry.IsDir() {
			testCases = append(testCases, entry.Name())
		}
	}
	require.NotEmpty(t, testCases, "no test cases found in %s", testCasesDir)

	parser := cusipmap.NewParser(cusipmap.DefaultExtractorOptions())
	for _, testCase := range testCases {
		t.Run(testCase, func(t *testing.T) {
			casePath := filepath.Join(testCasesDir, testCase)
			inputPath := filepath.Join(casePath, "input.txt")
			expectedPath := filepath.Join(casePath, "expected.json")

			input, err := os.ReadFile(inputPath)
			require.NoError(t, err, "failed to read input.txt")

			expectedData, err := os.ReadFile(expectedPath)
			require.NoError(t, err, "failed to read expected.json")

			var tc FilingTestCase
			require.NoError(t, json.Unmarshal(expectedData, &tc), "failed to parse expected.json")

			t.Logf("Source: %s", tc.Metadata.SourceURL)
			t.Logf("Notes: %s", tc.Metadata.Notes)

			fresh := parser.Parse(cusipmap.Filing{Identifier: testCase, Content: string(input)})

			newPath := expectedPath + ".new"
			if diff := cmp.Diff(tc.Expected, &fresh); diff != "" {
				tc.Expected = &fresh
				newData, err := json.MarshalIndent(tc, "", "  ")
				require.NoError(t, err, "failed to marshal new output")
				newData = append(newData, '\n')

				require.NoError(t, os.WriteFile(newPath, newData, 0o644), "failed to write .new file")

				if *updateGolden {
					require.NoError(t, os.WriteFile(expectedPath, newData, 0o644), "failed to update golden file")
					os.Remove(newPath)
					t.Logf("Accepted new snapshot: %s", expectedPath)
				} else {
					t.Errorf("Snapshot mismatch!\n\n"+
						"DIFF (-committed +fresh):\n%s\n\n"+
						"A new snapshot has been written to:\n  %s\n\n"+
						"If the new output is CORRECT, accept it with:\n"+
						"  go test -v -run TestParseFilings/%s -update",
						diff, newPath, testCase)
				}
			} else if _, err := os.Stat(newPath); err == nil {
				os.Remove(newPath)
			}
		})
	}
}

func TestParseHeaderDoesNotOverrideCallerFields(t *testing.T) {
	input, err := os.ReadFile("testdata/filings/sgml_13g/input.txt")
	require.NoError(t, err)

	parsed := cusipmap.NewParser(cusipmap.ExtractorOptions{}).Parse(cusipmap.Filing{
		Identifier: "sgml_13g",
		Content:    string(input),
		Form:       "SC 13G/A",
		FilingDate: "2020-02-01",
	})

	assert.Equal(t, "SC 13G/A", parsed.Form)
	assert.Equal(t, "2020-02-01", parsed.FilingDate)
	assert.Equal(t, "0000950123-20-001234", parsed.AccessionNumber)
	assert.Equal(t, "037833100", parsed.CUSIP)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, cusipmap.FilingIdentifier("320193", "20200115", "0000950123-20-001234"))
	require.NoError(t, os.WriteFile(path, []byte("<DOCUMENT>\nCUSIP No. 68389X105\n\xff"), 0o644))

	parsed, err := cusipmap.NewParser(cusipmap.DefaultExtractorOptions()).ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, cusipmap.ParsedFiling{
		Identifier:      path,
		CUSIP:           "68389X105",
		FilingDate:      "2020-01-15",
		AccessionNumber: "0000950123-20-001234",
		ParseMethod:     cusipmap.MethodWindow,
	}, parsed)

	_, err = cusipmap.ReadFiling(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestParseReader(t *testing.T) {
	parsed, err := cusipmap.NewParser(cusipmap.DefaultExtractorOptions()).
		ParseReader("stdin", strings.NewReader("CUSIP Number: None"))
	require.NoError(t, err)
	assert.Equal(t, cusipmap.NoCUSIP, parsed.CUSIP)
	assert.Equal(t, []string{cusipmap.NoCUSIP}, parsed.CUSIPs())
}

func numberedFilings(n int) iter.Seq[cusipmap.Filing] {
	return func(yield func(cusipmap.Filing) bool) {
		for i := range n {
			filing := cusipmap.Filing{
				Identifier: fmt.Sprintf("filing-%03d", i),
				Content:    fmt.Sprintf("<DOCUMENT>\nCUSIP No. 68389X%03d\n", i),
			}
			if !yield(filing) {
				return
			}
		}
	}
}

func TestParseFilingsSequential(t *testing.T) {
	parser := cusipmap.NewParser(cusipmap.DefaultExtractorOptions())

	var ids []string
	for parsed := range parser.ParseFilings(numberedFilings(5)) {
		ids = append(ids, parsed.Identifier)
	}
	assert.Equal(t, []string{"filing-000", "filing-001", "filing-002", "filing-003", "filing-004"}, ids)
}

func TestParseConcurrentlyPreservesOrder(t *testing.T) {
	parser := cusipmap.NewParser(cusipmap.DefaultExtractorOptions())

	tests := []struct {
		name string
		opts cusipmap.ConcurrencyOptions
	}{
		{"defaults", cusipmap.ConcurrencyOptions{}},
		{"single worker", cusipmap.ConcurrencyOptions{Workers: 1, MaxQueue: 1}},
		{"small queue", cusipmap.ConcurrencyOptions{Workers: 4, MaxQueue: 3}},
		{"wide", cusipmap.ConcurrencyOptions{Workers: 16, MaxQueue: 64}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results []cusipmap.ParsedFiling
			for parsed, err := range parser.ParseConcurrently(context.Background(), numberedFilings(50), tt.opts) {
				require.NoError(t, err)
				results = append(results, parsed)
			}

			var sequential []cusipmap.ParsedFiling
			for parsed := range parser.ParseFilings(numberedFilings(50)) {
				sequential = append(sequential, parsed)
			}
			if diff := cmp.Diff(sequential, results); diff != "" {
				t.Errorf("concurrent results differ from sequential (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseConcurrentlyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	parser := cusipmap.NewParser(cusipmap.DefaultExtractorOptions())
	var errs []error
	for _, err := range parser.ParseConcurrently(ctx, numberedFilings(10), cusipmap.ConcurrencyOptions{}) {
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], context.Canceled))
}

func TestParseConcurrentlyEarlyBreak(t *testing.T) {
	parser := cusipmap.NewParser(cusipmap.DefaultExtractorOptions())

	var ids []string
	opts := cusipmap.ConcurrencyOptions{Workers: 3, MaxQueue: 2}
	for parsed, err := range parser.ParseConcurrently(context.Background(), numberedFilings(20), opts) {
		require.NoError(t, err)
		ids = append(ids, parsed.Identifier)
		if len(ids) == 3 {
			break
		}
	}
	assert.True(t, slices.Equal([]string{"filing-000", "filing-001", "filing-002"}, ids))
}

func TestParseConcurrentlyBoundsPendingFilings(t *testing.T) {
	parser := cusipmap.NewParser(cusipmap.DefaultExtractorOptions())
	opts := cusipmap.ConcurrencyOptions{Workers: 4, MaxQueue: 3}

	pulled := 0
	counted := func(yield func(cusipmap.Filing) bool) {
		for filing := range numberedFilings(20) {
			pulled++
			if !yield(filing) {
				return
			}
		}
	}

	received, maxPending := 0, 0
	for _, err := range parser.ParseConcurrently(context.Background(), counted, opts) {
		require.NoError(t, err)
		// filings handed out whose results had not been delivered yet,
		// counting the one being delivered now
		maxPending = max(maxPending, pulled-received)
		received++
	}

	assert.Equal(t, 20, received)
	assert.Equal(t, opts.MaxQueue, maxPending)
}
