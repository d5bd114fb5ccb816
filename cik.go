package cusipmap

import (
	"regexp"
	"strings"
)

const (
	subjectCompanyLabel = "SUBJECT COMPANY"
	centralIndexKey     = "CENTRAL INDEX KEY"
	headerFieldSep      = "\t\t\t"
)

var trailingDigitsPattern = regexp.MustCompile(`(\d+)\s*$`)

// ExtractCIK returns the subject company's CIK from an SGML filing header, or
// "" when none is present.
//
// An ownership filing header lists both the subject company and the filer,
// each with its own CENTRAL INDEX KEY line. Only keys that follow a
// SUBJECT COMPANY block are considered.
func ExtractCIK(lines []string) string {
	recording := false
	for _, line := range lines {
		if strings.Contains(line, subjectCompanyLabel) {
			recording = true
		}
		if !recording || !strings.Contains(line, centralIndexKey) {
			continue
		}

		fields := strings.Split(line, headerFieldSep)
		value := strings.TrimSpace(fields[len(fields)-1])
		if !strings.Contains(value, centralIndexKey) {
			return value
		}
		// space-aligned header without the tab separator
		if m := trailingDigitsPattern.FindStringSubmatch(value); m != nil {
			return m[1]
		}
		return ""
	}
	return ""
}

// CIKVariants returns the CIK as written and without its leading zeros.
func CIKVariants(cik string) []string {
	cik = strings.TrimSpace(cik)
	if cik == "" {
		return nil
	}
	variants := []string{cik}
	if stripped := strings.TrimLeft(cik, "0"); stripped != "" && stripped != cik {
		variants = append(variants, stripped)
	}
	return variants
}
