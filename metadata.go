package cusipmap

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const archivesURL = "https://www.sec.gov/Archives/"

var (
	archivePathPattern = regexp.MustCompile(`edgar/data/(\d+)/(\d{18})(?:/|$)`)
	identifierPattern  = regexp.MustCompile(`^(\d+)_(\d{4}-\d{2}-\d{2}|\d{8})_(\d{18})\.txt$`)
	filedAsOfPattern   = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
)

// FilingMetadata contains information recovered from archive paths or from
// the SGML header of a filing.
type FilingMetadata struct {
	CIK         string
	Accession   string
	FormType    string
	FilingDate  string
	CompanyName string
}

// ExtractMetadataFromURL parses SEC EDGAR URLs to extract CIK and accession number
// Example URL: https://www.sec.gov/Archives/edgar/data/1631574/000119312525314736/0001193125-25-314736-index.html
func ExtractMetadataFromURL(url string) (*FilingMetadata, error) {
	matches := archivePathPattern.FindStringSubmatch(url)
	if len(matches) < 3 {
		return nil, fmt.Errorf("could not extract CIK and accession from URL")
	}

	return &FilingMetadata{
		CIK:       matches[1],
		Accession: FormatAccession(matches[2]),
	}, nil
}

// ExtractMetadataFromPath recovers metadata from where a filing was stored.
// Both the EDGAR archive layout (.../edgar/data/{cik}/{accession}/...) and
// the flat {cik}_{date}_{accession}.txt naming are understood.
func ExtractMetadataFromPath(path string) (*FilingMetadata, error) {
	slashed := filepath.ToSlash(path)
	if meta, err := ExtractMetadataFromURL(slashed); err == nil {
		return meta, nil
	}

	matches := identifierPattern.FindStringSubmatch(filepath.Base(slashed))
	if matches == nil {
		return nil, fmt.Errorf("could not extract metadata from path %s", path)
	}
	return &FilingMetadata{
		CIK:        matches[1],
		FilingDate: formatFiledDate(matches[2]),
		Accession:  FormatAccession(matches[3]),
	}, nil
}

// FormatAccession turns an 18-digit accession fragment into the dashed form
// XXXXXXXXXX-XX-XXXXXX. Anything else is returned unchanged.
func FormatAccession(fragment string) string {
	if len(fragment) != 18 || strings.Contains(fragment, "-") {
		return fragment
	}
	return fragment[:10] + "-" + fragment[10:12] + "-" + fragment[12:]
}

// FilingURL rebuilds the EDGAR index URL of a filing.
func FilingURL(cik, accession string) string {
	cikValue := strings.TrimLeft(strings.TrimSpace(cik), "0")
	if cikValue == "" {
		cikValue = "0"
	}
	fragment := strings.ReplaceAll(accession, "-", "")
	return fmt.Sprintf("%sedgar/data/%s/%s/%s-index.html", archivesURL, cikValue, fragment, accession)
}

// FilingIdentifier creates the on-disk name of a filing.
// Format: {cik}_{date}_{accession without dashes}.txt
func FilingIdentifier(cik, date, accession string) string {
	return fmt.Sprintf("%s_%s_%s.txt", cik, date, strings.ReplaceAll(accession, "-", ""))
}

// ExtractHeaderMetadata reads the accession number, submission type, filing
// date and subject company name from the SGML header. Filings without a
// header yield an empty FilingMetadata.
func ExtractHeaderMetadata(lines []string) FilingMetadata {
	end := BodyStart(lines)
	if end == 0 {
		end = len(lines)
	}

	var meta FilingMetadata
	inSubject := false
	for _, line := range lines[:end] {
		label, value, ok := headerField(line)
		if !ok {
			if strings.Contains(line, subjectCompanyLabel) {
				inSubject = true
			} else if strings.Contains(line, "FILED BY") {
				inSubject = false
			}
			continue
		}

		switch label {
		case "ACCESSION NUMBER":
			if meta.Accession == "" {
				meta.Accession = FormatAccession(value)
			}
		case "CONFORMED SUBMISSION TYPE":
			if meta.FormType == "" {
				meta.FormType = value
			}
		case "FILED AS OF DATE":
			if meta.FilingDate == "" {
				meta.FilingDate = formatFiledDate(value)
			}
		case "COMPANY CONFORMED NAME":
			if inSubject && meta.CompanyName == "" {
				meta.CompanyName = value
			}
		case centralIndexKey:
			if inSubject && meta.CIK == "" {
				meta.CIK = value
			}
		}
	}
	return meta
}

// headerField splits a "LABEL:<tabs>value" header line.
func headerField(line string) (label, value string, ok bool) {
	label, value, ok = strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	label = strings.ToUpper(strings.TrimSpace(label))
	value = strings.TrimSpace(value)
	if label == "" || value == "" {
		return "", "", false
	}
	return label, value, true
}

// formatFiledDate converts the header's YYYYMMDD into YYYY-MM-DD.
func formatFiledDate(value string) string {
	if m := filedAsOfPattern.FindStringSubmatch(value); m != nil {
		return m[1] + "-" + m[2] + "-" + m[3]
	}
	return value
}

// FormatJSON returns pretty-printed JSON for a parsed filing
func FormatJSON(parsed ParsedFiling) ([]byte, error) {
	return json.MarshalIndent(parsed, "", "  ")
}

// FormatJSONBatch returns pretty-printed JSON for an array of parsed filings
func FormatJSONBatch(parsed []ParsedFiling) ([]byte, error) {
	if parsed == nil {
		parsed = []ParsedFiling{}
	}
	return json.MarshalIndent(parsed, "", "  ")
}
