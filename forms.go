package cusipmap

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	amendmentNumberPattern = regexp.MustCompile(`(?i)Amendment\s+No\.\s+(\d+)`)
	amendmentSuffixPattern = regexp.MustCompile(`(?i)/A\s*#?(\d+)`)
)

// NormalizeFormType converts user-friendly form names to SEC form names.
// Examples:
//   - "13D" → "SC 13D"
//   - "13g/a" → "SC 13G/A"
//   - "SCHEDULE 13D" → "SC 13D"
//   - "4" → "4" (unchanged)
func NormalizeFormType(formType string) string {
	formType = strings.ToUpper(strings.Join(strings.Fields(formType), " "))

	if rest, ok := strings.CutPrefix(formType, "SCHEDULE "); ok {
		formType = "SC " + rest
	}
	if strings.HasPrefix(formType, "SC ") {
		return formType
	}

	if formType == "13D" || formType == "13G" ||
		strings.HasPrefix(formType, "13D/") || strings.HasPrefix(formType, "13G/") {
		return "SC " + formType
	}

	return formType
}

// MatchesFormType checks if a filing form matches the requested form type.
//   - "13D" matches "SC 13D", "SC 13D/A", etc.
//   - "13G" matches "SC 13G", "SC 13G/A", etc.
//   - "13" matches all Schedule 13 forms
//   - "SC 13D/A" matches only amendments
//   - other forms require an exact match
func MatchesFormType(filingForm, requestedForm string) bool {
	filingForm = NormalizeFormType(filingForm)
	requested := NormalizeFormType(requestedForm)

	if requested == "13" {
		return strings.HasPrefix(filingForm, "SC 13D") || strings.HasPrefix(filingForm, "SC 13G")
	}
	if filingForm == requested {
		return true
	}
	// Schedule 13 requests include amendments of the base form
	if strings.HasPrefix(requested, "SC 13") && strings.HasPrefix(filingForm, requested+"/") {
		return true
	}
	return false
}

// MatchesAnyForm reports whether filingForm matches one of requested. An
// empty list matches everything.
func MatchesAnyForm(filingForm string, requested []string) bool {
	if len(requested) == 0 {
		return true
	}
	for _, r := range requested {
		if MatchesFormType(filingForm, r) {
			return true
		}
	}
	return false
}

// IsAmendedForm reports whether a form type denotes an amendment
// ("SC 13D/A", "13G/A").
func IsAmendedForm(formType string) bool {
	return strings.HasSuffix(strings.ToUpper(strings.TrimSpace(formType)), "A")
}

// ExtractAmendmentInfo parses the form type to determine if it's an amendment
// and extracts the amendment number if present.
func ExtractAmendmentInfo(formType string) (isAmendment bool, amendmentNumber *int) {
	isAmendment = strings.Contains(strings.ToUpper(formType), "/A")
	if !isAmendment {
		return false, nil
	}

	// "Amendment No. 9"
	if matches := amendmentNumberPattern.FindStringSubmatch(formType); matches != nil {
		if num, err := strconv.Atoi(matches[1]); err == nil {
			return true, &num
		}
	}

	// "/A 9" or "/A#9"
	if matches := amendmentSuffixPattern.FindStringSubmatch(formType); matches != nil {
		if num, err := strconv.Atoi(matches[1]); err == nil {
			return true, &num
		}
	}

	return true, nil
}

// IsActivistForm returns true for Schedule 13D forms (active investors).
func IsActivistForm(formType string) bool {
	return strings.Contains(NormalizeFormType(formType), "13D")
}

// IsPassiveForm returns true for Schedule 13G forms (passive investors).
func IsPassiveForm(formType string) bool {
	return strings.Contains(NormalizeFormType(formType), "13G")
}
