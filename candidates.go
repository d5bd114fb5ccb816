package cusipmap

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[0-9A-Z]+`)

// Candidate is a CUSIP-shaped token found in a block of text.
type Candidate struct {
	Token   string // normalized: separators removed, uppercased
	Start   int    // byte offset of the raw match in the cleaned, uppercased text
	End     int
	Context string // surrounding window used for false-positive screening
}

// FindCandidates returns the CUSIP-shaped tokens in text in order of
// appearance, using the default extractor options.
func FindCandidates(text string) []Candidate {
	return defaultExtractor.FindCandidates(text)
}

// FindCandidates strips markup from text and returns its CUSIP-shaped tokens.
func (e *Extractor) FindCandidates(text string) []Candidate {
	return e.candidatesIn(strings.ToUpper(StripTags(text)))
}

// tokens returns the lenient-valid candidate tokens of an already cleaned line.
func (e *Extractor) tokens(cleaned string) []string {
	var out []string
	for _, c := range e.candidatesIn(strings.ToUpper(cleaned)) {
		if IsValidCUSIP(c.Token, false) {
			out = append(out, c.Token)
		}
	}
	return out
}

// candidatesIn scans cleaned, uppercased text. Table-formatted filings split
// CUSIPs with spaces or dashes ("461148-AA6", "518439 10 4"), so a candidate
// is a run of up to MaxPieces alphanumeric words joined by a single separator.
// The run must start on a word holding a digit, which keeps labels such as
// "NO" or "NUMBER" from being glued onto the identifier.
func (e *Extractor) candidatesIn(upper string) []Candidate {
	words := wordPattern.FindAllStringIndex(upper, -1)

	var out []Candidate
	for i := 0; i < len(words); {
		if countDigits(upper[words[i][0]:words[i][1]]) == 0 {
			i++
			continue
		}

		last, token := e.longestJoin(upper, words, i)
		if last < 0 {
			i++
			continue
		}
		// a stray number in front of a full identifier ("NO. 5 68389X105")
		// starts the candidate one word later
		if len(token) != 9 && last > i && countDigits(upper[words[i+1][0]:words[i+1][1]]) > 0 {
			if _, next := e.longestJoin(upper, words, i+1); len(next) == 9 {
				i++
				continue
			}
		}

		start, end := words[i][0], words[last][1]
		context := upper[max(0, start-e.opts.ContextRadius):min(len(upper), end+e.opts.ContextRadius)]
		i = last + 1
		if e.suspiciousContext(context) {
			continue
		}
		out = append(out, Candidate{Token: token, Start: start, End: end, Context: context})
	}
	return out
}

// longestJoin extends words[first] with the following words and returns the
// index of the last word of the chosen join, or -1. A 9-character join wins
// outright, otherwise the longest acceptable one is kept.
func (e *Extractor) longestJoin(upper string, words [][]int, first int) (int, string) {
	best, bestToken := -1, ""
	var b strings.Builder
	for j := first; j < len(words) && j < first+e.opts.MaxPieces; j++ {
		if j > first {
			gap := upper[words[j-1][1]:words[j][0]]
			if gap != " " && gap != "-" {
				break
			}
		}
		word := upper[words[j][0]:words[j][1]]
		b.WriteString(word)
		token := b.String()
		if len(token) > maxCUSIPLength {
			break
		}
		// a join never ends on a letters-only word: "00001 PAR" is a par
		// value, "461148 AA 6" is a CUSIP
		if countDigits(word) == 0 {
			continue
		}
		if len(token) < minCUSIPLength || countDigits(token) < minCUSIPDigits {
			continue
		}
		best, bestToken = j, token
		if len(token) == 9 {
			break
		}
	}
	return best, bestToken
}

func (e *Extractor) suspiciousContext(context string) bool {
	for _, marker := range e.opts.ContextMarkers {
		if strings.Contains(context, marker) {
			return true
		}
	}
	return false
}
