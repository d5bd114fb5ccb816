package cusipmap

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMetadataFromURL(t *testing.T) {
	meta, err := ExtractMetadataFromURL("https://www.sec.gov/Archives/edgar/data/1631574/000119312525314736/0001193125-25-314736-index.html")
	require.NoError(t, err)
	assert.Equal(t, "1631574", meta.CIK)
	assert.Equal(t, "0001193125-25-314736", meta.Accession)

	_, err = ExtractMetadataFromURL("https://www.sec.gov/cgi-bin/browse-edgar")
	assert.Error(t, err)
}

func TestExtractMetadataFromPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want FilingMetadata
	}{
		{
			name: "flat name with iso date",
			path: "filings/320193_2020-01-15_000095012320001234.txt",
			want: FilingMetadata{CIK: "320193", FilingDate: "2020-01-15", Accession: "0000950123-20-001234"},
		},
		{
			name: "flat name with compact date",
			path: "320193_20200115_000095012320001234.txt",
			want: FilingMetadata{CIK: "320193", FilingDate: "2020-01-15", Accession: "0000950123-20-001234"},
		},
		{
			name: "archive layout",
			path: "mirror/edgar/data/320193/000095012320001234/filing.txt",
			want: FilingMetadata{CIK: "320193", Accession: "0000950123-20-001234"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := ExtractMetadataFromPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *meta)
		})
	}

	_, err := ExtractMetadataFromPath("filings/random.txt")
	assert.Error(t, err)
}

func TestFormatAccession(t *testing.T) {
	assert.Equal(t, "0000950123-20-001234", FormatAccession("000095012320001234"))
	assert.Equal(t, "0000950123-20-001234", FormatAccession("0000950123-20-001234"))
	assert.Equal(t, "12345", FormatAccession("12345"))
}

func TestFilingURL(t *testing.T) {
	assert.Equal(t,
		"https://www.sec.gov/Archives/edgar/data/320193/000095012320001234/0000950123-20-001234-index.html",
		FilingURL("0000320193", "0000950123-20-001234"))
}

func TestFilingIdentifier(t *testing.T) {
	id := FilingIdentifier("320193", "2020-01-15", "0000950123-20-001234")
	assert.Equal(t, "320193_2020-01-15_000095012320001234.txt", id)

	meta, err := ExtractMetadataFromPath(id)
	require.NoError(t, err)
	assert.Equal(t, "0000950123-20-001234", meta.Accession)
}

func TestExtractHeaderMetadata(t *testing.T) {
	header := strings.Join([]string{
		"ACCESSION NUMBER:\t\t0001193125-21-000042",
		"CONFORMED SUBMISSION TYPE:\tSC 13D/A",
		"FILED AS OF DATE:\t\t20210302",
		"FILED BY:\t\t",
		"\t\tCOMPANY CONFORMED NAME:\t\t\tACTIVIST CAPITAL LLC",
		"\t\tCENTRAL INDEX KEY:\t\t\t0001791234",
		"SUBJECT COMPANY:\t",
		"\t\tCOMPANY CONFORMED NAME:\t\t\tNORTHWIND HOLDINGS LTD",
		"\t\tCENTRAL INDEX KEY:\t\t\t0001576940",
		"</SEC-HEADER>",
		"<DOCUMENT>",
		"FILED AS OF DATE: 19990101",
	}, "\n")

	got := ExtractHeaderMetadata(strings.Split(header, "\n"))
	assert.Equal(t, FilingMetadata{
		CIK:         "0001576940",
		Accession:   "0001193125-21-000042",
		FormType:    "SC 13D/A",
		FilingDate:  "2021-03-02",
		CompanyName: "NORTHWIND HOLDINGS LTD",
	}, got)

	assert.Equal(t, FilingMetadata{}, ExtractHeaderMetadata([]string{"CUSIP No. 68389X105"}))
}

func TestFormatJSONBatch(t *testing.T) {
	data, err := FormatJSONBatch(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	data, err = FormatJSON(ParsedFiling{Identifier: "a.txt", CUSIP: "68389X105", ParseMethod: MethodWindow})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, map[string]any{
		"identifier":   "a.txt",
		"cusip":        "68389X105",
		"parse_method": "window",
	}, decoded)
}
