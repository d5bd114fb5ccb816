package cusipmap

import (
	"regexp"
	"strings"
)

// ParseMethod records how a filing's CUSIP was located.
type ParseMethod string

const (
	// MethodWindow means the CUSIP came from text near an explicit CUSIP label.
	MethodWindow ParseMethod = "window"
	// MethodFallback means no label produced a token and the whole body was scanned.
	MethodFallback ParseMethod = "fallback"
	// MethodNone means nothing was found.
	MethodNone ParseMethod = ""
)

// NoCUSIP is returned when a filing explicitly declares it has no CUSIP.
const NoCUSIP = "NONE"

const cusipLabel = "CUSIP"

var noneMentionPattern = regexp.MustCompile(`\bNONE\b|\bNOT APPLICABLE\b`)

// ExtractorOptions tunes the extraction heuristics. The defaults were tuned
// against historical 13D/13G filings.
type ExtractorOptions struct {
	// WindowBefore and WindowAfter bound the block of lines cut around each
	// CUSIP label.
	WindowBefore int `mapstructure:"window_before" yaml:"window_before"`
	WindowAfter  int `mapstructure:"window_after"  yaml:"window_after"`
	// LookBehind and LookAhead bound the search for a token when the label
	// line itself carries none.
	LookBehind int `mapstructure:"look_behind" yaml:"look_behind"`
	LookAhead  int `mapstructure:"look_ahead"  yaml:"look_ahead"`
	// ContextRadius is the number of characters on each side of a candidate
	// screened for ContextMarkers.
	ContextRadius int `mapstructure:"context_radius" yaml:"context_radius"`
	// MaxPieces caps how many separator-split words form one candidate.
	MaxPieces int `mapstructure:"max_pieces" yaml:"max_pieces"`
	// SkipKeywords mark table headers and metadata lines ignored while
	// looking around a label.
	SkipKeywords []string `mapstructure:"skip_keywords" yaml:"skip_keywords"`
	// ContextMarkers reject a candidate found near IRS numbers, document
	// filenames or mailing addresses.
	ContextMarkers []string `mapstructure:"context_markers" yaml:"context_markers"`
}

// DefaultExtractorOptions returns the stock heuristics.
func DefaultExtractorOptions() ExtractorOptions {
	return ExtractorOptions{
		WindowBefore:   15,
		WindowAfter:    10,
		LookBehind:     20,
		LookAhead:      20,
		ContextRadius:  16,
		MaxPieces:      4,
		SkipKeywords:   []string{"TITLE", "FILENAME", "CIK", "DOC", "HTM"},
		ContextMarkers: []string{"IRS NUMBER", "I.R.S", ".DOC", ".HTM", "P.O. BOX", "PO BOX", "P O BOX"},
	}
}

// Extractor locates CUSIPs in filing text. It holds no per-filing state and
// is safe for concurrent use.
type Extractor struct {
	opts ExtractorOptions
}

var defaultExtractor = NewExtractor(DefaultExtractorOptions())

// NewExtractor returns an Extractor; zero-valued options fall back to the defaults.
func NewExtractor(opts ExtractorOptions) *Extractor {
	def := DefaultExtractorOptions()
	if opts.WindowBefore <= 0 {
		opts.WindowBefore = def.WindowBefore
	}
	if opts.WindowAfter <= 0 {
		opts.WindowAfter = def.WindowAfter
	}
	if opts.LookBehind <= 0 {
		opts.LookBehind = def.LookBehind
	}
	if opts.LookAhead <= 0 {
		opts.LookAhead = def.LookAhead
	}
	if opts.ContextRadius <= 0 {
		opts.ContextRadius = def.ContextRadius
	}
	if opts.MaxPieces <= 0 {
		opts.MaxPieces = def.MaxPieces
	}
	if opts.SkipKeywords == nil {
		opts.SkipKeywords = def.SkipKeywords
	}
	if opts.ContextMarkers == nil {
		opts.ContextMarkers = def.ContextMarkers
	}
	opts.SkipKeywords = upperAll(opts.SkipKeywords)
	opts.ContextMarkers = upperAll(opts.ContextMarkers)
	return &Extractor{opts: opts}
}

// Options returns the effective options.
func (e *Extractor) Options() ExtractorOptions {
	return e.opts
}

// labelBlock is the window of lines cut around one CUSIP label.
type labelBlock struct {
	tokens   []string
	mentions int
}

// ExtractCUSIP locates the CUSIP of a filing, never returning a token from
// exclude. The result is "" when nothing was found, NoCUSIP when the filing
// declares it has none, or several tokens joined by ';' for filings that
// cover more than one security.
func (e *Extractor) ExtractCUSIP(lines []string, exclude []string) (string, ParseMethod) {
	body := BodyStart(lines)

	excluded := make(map[string]struct{}, len(exclude))
	for _, token := range exclude {
		excluded[strings.ToUpper(token)] = struct{}{}
	}

	var blocks []labelBlock
	for i := body; i < len(lines); i++ {
		upper := strings.ToUpper(lines[i])
		if strings.Contains(upper, "CIK") {
			for _, c := range e.FindCandidates(lines[i]) {
				excluded[c.Token] = struct{}{}
			}
		}
		if !strings.Contains(upper, cusipLabel) {
			continue
		}
		window := lines[max(body, i-e.opts.WindowBefore):min(len(lines), i+e.opts.WindowAfter)]
		if block := e.collectNearLabels(window); len(block.tokens) > 0 {
			blocks = append(blocks, block)
		}
	}

	if cusip, ok := selectWinner(blocks, excluded); ok {
		return cusip, MethodWindow
	}
	return e.fallback(lines[body:], excluded)
}

// collectNearLabels gathers the tokens attached to every CUSIP label inside
// window. A label line carrying no token borrows the nearest tokens above
// it, then below it. Labels are detected on the raw line so that XML
// elements such as <issuerCUSIP> count as labels.
func (e *Extractor) collectNearLabels(window []string) labelBlock {
	cleaned := CleanLines(window)
	uppers := make([]string, len(cleaned))
	for i, line := range cleaned {
		uppers[i] = strings.ToUpper(line)
	}

	var block labelBlock
	var tokens []string
	for i, upper := range uppers {
		if !strings.Contains(strings.ToUpper(window[i]), cusipLabel) {
			continue
		}
		block.mentions += max(1, strings.Count(upper, cusipLabel))
		if noneMentionPattern.MatchString(upper) {
			tokens = append(tokens, NoCUSIP)
			continue
		}
		if own := e.tokens(cleaned[i]); len(own) > 0 {
			tokens = append(tokens, own...)
			continue
		}

		var above []string
		for j := i - 1; j >= 0 && j >= i-e.opts.LookBehind; j-- {
			if e.skipLine(uppers[j]) {
				continue
			}
			if noneMentionPattern.MatchString(uppers[j]) {
				above = append([]string{NoCUSIP}, above...)
				continue
			}
			if found := e.tokens(cleaned[j]); len(found) > 0 {
				above = append(found, above...)
			} else if len(above) > 0 && strings.TrimSpace(cleaned[j]) != "" {
				break
			}
		}
		if len(above) > 0 {
			tokens = append(tokens, above...)
			continue
		}

		var below []string
		for j := i + 1; j < len(uppers) && j <= i+e.opts.LookAhead; j++ {
			if e.skipLine(uppers[j]) {
				continue
			}
			if noneMentionPattern.MatchString(uppers[j]) {
				below = append(below, NoCUSIP)
				continue
			}
			if found := e.tokens(cleaned[j]); len(found) > 0 {
				below = append(below, found...)
			} else if len(below) > 0 && strings.TrimSpace(cleaned[j]) != "" {
				break
			}
		}
		tokens = append(tokens, below...)
	}

	if len(tokens) == 0 {
		block.tokens = e.tokens(strings.Join(cleaned, " "))
		return block
	}

	for _, token := range tokens {
		if token != NoCUSIP {
			block.tokens = append(block.tokens, token)
		}
	}
	if len(block.tokens) == 0 {
		block.tokens = []string{NoCUSIP}
	}
	return block
}

func (e *Extractor) skipLine(upper string) bool {
	for _, keyword := range e.opts.SkipKeywords {
		if strings.Contains(upper, keyword) {
			return true
		}
	}
	return false
}

// selectWinner applies the tie-break policy across all label blocks.
func selectWinner(blocks []labelBlock, excluded map[string]struct{}) (string, bool) {
	var singles []string
	firstSeen := make(map[string]int)
	sawNone := false

	for index, block := range blocks {
		var ordered []string
		seen := make(map[string]struct{})
		for _, token := range block.tokens {
			if _, skip := excluded[token]; skip {
				continue
			}
			if _, ok := firstSeen[token]; !ok {
				firstSeen[token] = index
			}
			if _, dup := seen[token]; !dup {
				seen[token] = struct{}{}
				ordered = append(ordered, token)
			}
		}

		switch {
		case len(ordered) == 0:
			continue
		case len(ordered) == 1 && ordered[0] == NoCUSIP:
			sawNone = true
			continue
		case len(ordered) > 1:
			// one block listing several securities of the same issuer, or one
			// label per token
			bases := make(map[string]struct{})
			for _, token := range ordered {
				if len(token) >= 6 {
					bases[token[:6]] = struct{}{}
				}
			}
			if len(bases) == 1 || block.mentions >= len(ordered) {
				return strings.Join(ordered, ";"), true
			}
		}
		singles = append(singles, ordered...)
	}

	if len(singles) > 0 {
		return bestSingle(singles, firstSeen, len(blocks)), true
	}
	if sawNone {
		return NoCUSIP, true
	}
	return "", false
}

type singleScore struct {
	letter, digits, firstSeen, count, lengthGap int
}

// better ranks by letter presence, digit count, earliest block, frequency,
// then closeness to 9 characters.
func (s singleScore) better(o singleScore) bool {
	if s.letter != o.letter {
		return s.letter > o.letter
	}
	if s.digits != o.digits {
		return s.digits > o.digits
	}
	if s.firstSeen != o.firstSeen {
		return s.firstSeen < o.firstSeen
	}
	if s.count != o.count {
		return s.count > o.count
	}
	return s.lengthGap < o.lengthGap
}

func bestSingle(singles []string, firstSeen map[string]int, blockCount int) string {
	counts := make(map[string]int)
	var unique []string
	for _, token := range singles {
		if counts[token] == 0 {
			unique = append(unique, token)
		}
		counts[token]++
	}

	score := func(token string) singleScore {
		s := singleScore{
			digits:    countDigits(token),
			firstSeen: blockCount,
			count:     counts[token],
			lengthGap: abs(len(token) - 9),
		}
		if hasLetter(token) {
			s.letter = 1
		}
		if index, ok := firstSeen[token]; ok {
			s.firstSeen = index
		}
		return s
	}

	winner, winnerScore := unique[0], score(unique[0])
	for _, token := range unique[1:] {
		if s := score(token); s.better(winnerScore) {
			winner, winnerScore = token, s
		}
	}
	return winner
}

// fallback scans the whole body for strictly valid tokens, preferring ones
// holding a letter and ones exactly 9 characters long.
func (e *Extractor) fallback(body []string, excluded map[string]struct{}) (string, ParseMethod) {
	text := strings.ToUpper(strings.Join(CleanLines(body), "\n"))

	best, bestScore := "", -1
	for _, c := range e.candidatesIn(text) {
		if _, skip := excluded[c.Token]; skip {
			continue
		}
		if !IsValidCUSIP(c.Token, true) {
			continue
		}
		score := 0
		if hasLetter(c.Token) {
			score += 10
		}
		if len(c.Token) == 9 {
			score += 5
		}
		if score > bestScore {
			best, bestScore = c.Token, score
		}
	}

	if best == "" {
		return "", MethodNone
	}
	return best, MethodFallback
}

func upperAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToUpper(v)
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
