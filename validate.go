package cusipmap

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	minCUSIPLength = 8
	maxCUSIPLength = 10
	minCUSIPDigits = 5
)

var (
	allZerosPattern = regexp.MustCompile(`^0+$`)
	zipCodePattern  = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	datePattern     = regexp.MustCompile(`^(19|20)\d{6}$`)

	// falsePositiveWords show up in filenames and table captions.
	falsePositiveWords = []string{"FILE", "PAGE", "TABLE"}
)

// IsValidCUSIP reports whether candidate plausibly is a CUSIP.
//
// Strict mode is meant for unlabeled candidates found by a document-wide
// scan and additionally rejects date-, phone- and serial-number-shaped
// numerics. Lenient mode is meant for candidates found next to an explicit
// CUSIP label and only rejects the obvious non-CUSIPs.
func IsValidCUSIP(candidate string, strict bool) bool {
	n := len(candidate)
	if n < minCUSIPLength || n > maxCUSIPLength {
		return false
	}
	if !isAlphanumeric(candidate) {
		return false
	}

	digits := countDigits(candidate)
	if digits < minCUSIPDigits {
		return false
	}

	if allZerosPattern.MatchString(candidate) || zipCodePattern.MatchString(candidate) {
		return false
	}
	upper := strings.ToUpper(candidate)
	for _, word := range falsePositiveWords {
		if strings.Contains(upper, word) {
			return false
		}
	}

	allDigits := digits == n

	// 10-digit numerics are phone numbers or file numbers even when labeled
	if allDigits && n == 10 {
		return false
	}

	if !strict {
		return true
	}

	if datePattern.MatchString(candidate) {
		return false
	}
	if allDigits && n == 8 {
		return false
	}
	if allDigits && n == 9 {
		if strings.HasPrefix(candidate, "19") || strings.HasPrefix(candidate, "20") {
			return false
		}
		if distinctRunes(candidate) < 4 {
			return false
		}
	}

	return true
}

// CheckDigit computes the Modulus 10 "double add double" check digit for an
// 8-character CUSIP body.
func CheckDigit(body string) (int, error) {
	if len(body) != 8 {
		return 0, fmt.Errorf("CUSIP body must be 8 characters, got %d", len(body))
	}

	total := 0
	for i := 0; i < len(body); i++ {
		value, err := cusipCharValue(body[i])
		if err != nil {
			return 0, err
		}
		// positions are 1-indexed: every even position is doubled
		if i%2 == 1 {
			value *= 2
		}
		total += value/10 + value%10
	}

	return (10 - total%10) % 10, nil
}

// HasValidCheckDigit reports whether a 9-character CUSIP carries the check
// digit computed from its first 8 characters. Malformed input is reported as
// invalid rather than as an error.
func HasValidCheckDigit(cusip string) bool {
	if len(cusip) != 9 || !isAlphanumeric(cusip[:8]) {
		return false
	}

	digit, err := CheckDigit(strings.ToUpper(cusip[:8]))
	if err != nil {
		return false
	}
	return cusip[8] == byte('0'+digit)
}

func cusipCharValue(c byte) (int, error) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), nil
	case c >= 'A' && c <= 'Z':
		return int(c) - 55, nil
	case c >= 'a' && c <= 'z':
		return int(c-'a'+'A') - 55, nil
	default:
		return 0, fmt.Errorf("invalid CUSIP character: %q", c)
	}
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isAlnumByte(s[i]) {
			return false
		}
	}
	return true
}

func isAlnumByte(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func countDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			n++
		}
	}
	return n
}

func hasLetter(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			return true
		}
	}
	return false
}

func distinctRunes(s string) int {
	seen := make(map[rune]struct{}, len(s))
	for _, r := range s {
		seen[r] = struct{}{}
	}
	return len(seen)
}
