package cusipmap

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

var (
	tagPattern = regexp.MustCompile(`<[^>]+>`)

	// headerEndMarkers separate the SEC header from the filing body.
	headerEndMarkers = []string{"</SEC-HEADER>", "<DOCUMENT>"}
)

// NormalizeText normalizes the Unicode and HTML entity noise that appears in SEC filings.
//
// Normalizations performed:
// - HTML/SGML entities (&nbsp;, &amp;, &#160;, ...) → Unicode equivalents
// - Non-breaking and other Unicode spaces → regular spaces
// - Zero-width characters → removed
// - CRLF and bare CR → LF
func NormalizeText(data []byte) []byte {
	text := html.UnescapeString(string(data))
	return NormalizeFilingText([]byte(text))
}

// NormalizeFilingText is the lighter variant used on raw filing text before it
// is split into lines. Entities are left alone so that markup such as
// &lt;DOCUMENT&gt; in a rendered exhibit does not turn into a section marker.
func NormalizeFilingText(data []byte) []byte {
	text := normalizeWhitespace(string(data))
	text = removeInvisibleChars(text)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	return []byte(text)
}

// StripTags decodes entities and replaces every markup tag with a single
// space so that neighbouring tokens stay separated.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(string(NormalizeText([]byte(s))), " ")
}

// CleanLines applies StripTags to every line.
func CleanLines(lines []string) []string {
	cleaned := make([]string, len(lines))
	for i, line := range lines {
		cleaned[i] = StripTags(line)
	}
	return cleaned
}

// BodyStart returns the index of the first line holding a header end marker
// (</SEC-HEADER> or <DOCUMENT>), or 0 when the filing has no SGML header.
func BodyStart(lines []string) int {
	for i, line := range lines {
		upper := strings.ToUpper(line)
		for _, marker := range headerEndMarkers {
			if strings.Contains(upper, marker) {
				return i
			}
		}
	}
	return 0
}

// normalizeWhitespace converts various Unicode whitespace characters to regular spaces
func normalizeWhitespace(text string) string {
	var result strings.Builder
	result.Grow(len(text))

	for _, r := range text {
		switch {
		case r == '\u00A0', r == '\u202F', r == '\u205F', r == '\u3000':
			result.WriteRune(' ')
		case r >= '\u2000' && r <= '\u200A':
			result.WriteRune(' ')
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

// removeInvisibleChars removes zero-width and other format characters
func removeInvisibleChars(text string) string {
	var result strings.Builder
	result.Grow(len(text))

	for _, r := range text {
		switch r {
		case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u180E':
			continue
		default:
			if unicode.Is(unicode.Cf, r) {
				continue
			}
			result.WriteRune(r)
		}
	}

	return result.String()
}
