package omr

import (
	"regexp"
	"strconv"
	"strings"
)

// KeyFormat names the layout ParseKey recognized in a key text.
type KeyFormat string

const (
	FormatEmpty    KeyFormat = "empty"
	FormatNumbered KeyFormat = "numbered"
	FormatDense    KeyFormat = "dense"
	FormatTokens   KeyFormat = "tokens"
)

var (
	numberedPairRegex = regexp.MustCompile(`(?i)(\d+)\s*[:=\-]\s*([A-D]|NA)`)
	denseRegex        = regexp.MustCompile(`^[A-DNa-dn\s,]+$`)
	tokenSplitRegex   = regexp.MustCompile(`[\s,]+`)
)

// keyDetector parses text in one layout, or reports that the layout does not apply.
type keyDetector struct {
	format KeyFormat
	parse  func(text string, n int) (Sheet, bool)
}

// Order matters: a numbered pair anywhere beats a dense string, which beats
// a plain token list.
var keyDetectors = []keyDetector{
	{FormatNumbered, parseNumbered},
	{FormatDense, parseDense},
	{FormatTokens, parseTokens},
}

// ParseKey turns free-form answer key text into a sheet covering 1..n.
// Accepted layouts, tried in order:
//
//	1:A, 2=B, 3- C     numbered pairs, found anywhere in the text
//	ABCDN              one character per question, N for NA
//	A B C / A,B,C      tokens assigned to questions in order
//
// Anything unreadable becomes NA; ParseKey never fails.
func ParseKey(text string, n int) Sheet {
	key, _ := parseKey(text, n)
	return key
}

// FormatOf reports which layout ParseKey would use for text.
func FormatOf(text string, n int) KeyFormat {
	_, f := parseKey(text, n)
	return f
}

func parseKey(text string, n int) (Sheet, KeyFormat) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Blank(n), FormatEmpty
	}
	for _, d := range keyDetectors {
		if key, ok := d.parse(text, n); ok {
			return key.fill(n), d.format
		}
	}
	// parseTokens always applies.
	return Blank(n), FormatTokens
}

func parseNumbered(text string, n int) (Sheet, bool) {
	pairs := numberedPairRegex.FindAllStringSubmatch(text, -1)
	if len(pairs) == 0 {
		return nil, false
	}
	key := make(Sheet, max(n, 0))
	for _, p := range pairs {
		q, err := strconv.Atoi(p[1])
		if err != nil || q < 1 || q > n {
			continue
		}
		key[q] = normalizeToken(p[2])
	}
	return key, true
}

// parseDense only strips spaces and commas before the length check, so tabs
// and newlines count toward the length.
func parseDense(text string, n int) (Sheet, bool) {
	if !denseRegex.MatchString(text) {
		return nil, false
	}
	stripped := strings.NewReplacer(" ", "", ",", "").Replace(text)
	if len(stripped) != n {
		return nil, false
	}
	var seq []Answer
	for _, c := range strings.ToUpper(text) {
		switch c {
		case 'A', 'B', 'C', 'D':
			seq = append(seq, Answer(c))
		case 'N':
			seq = append(seq, NA)
		}
	}
	key := make(Sheet, n)
	for i := 1; i <= n && i <= len(seq); i++ {
		key[i] = normalizeToken(string(seq[i-1]))
	}
	return key, true
}

func parseTokens(text string, n int) (Sheet, bool) {
	key := make(Sheet, max(n, 0))
	idx := 1
	for _, tok := range tokenSplitRegex.Split(text, -1) {
		if idx > n {
			break
		}
		if tok == "" {
			continue
		}
		key[idx] = normalizeToken(tok)
		idx++
	}
	return key, true
}

// normalizeToken uppercases and trims tok, forcing anything outside
// A, B, C, D and NA to NA.
func normalizeToken(tok string) Answer {
	a := Answer(strings.ToUpper(strings.TrimSpace(tok)))
	if a.IsLetter() || a == NA {
		return a
	}
	return NA
}
