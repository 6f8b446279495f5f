// Package omr holds the answer-sheet engine: normalizing raw bubble
// detections, parsing answer keys and scoring a sheet against a key.
//
// Everything here is pure. Malformed input never produces an error; it
// degrades to NA so that an unreadable mark is never counted as wrong.
package omr

import (
	"bytes"
	"encoding/json"
	"strings"
)

// MinQuestions and MaxQuestions bound the number of questions on a sheet.
const (
	MinQuestions = 1
	MaxQuestions = 300
)

// Answer is a canonical per-question answer.
type Answer string

const (
	A  Answer = "A"
	B  Answer = "B"
	C  Answer = "C"
	D  Answer = "D"
	NA Answer = "NA"
)

// IsLetter reports whether a is one of A, B, C or D.
func (a Answer) IsLetter() bool {
	switch a {
	case A, B, C, D:
		return true
	}
	return false
}

// Sheet maps a 1-based question index to its canonical answer.
type Sheet map[int]Answer

// Get returns the answer for q, or NA when q is absent.
func (s Sheet) Get(q int) Answer {
	if a, ok := s[q]; ok {
		return a
	}
	return NA
}

// fill sets every missing index in 1..n to NA.
func (s Sheet) fill(n int) Sheet {
	for i := 1; i <= n; i++ {
		if _, ok := s[i]; !ok {
			s[i] = NA
		}
	}
	return s
}

// Blank returns a sheet of n questions, all NA.
func Blank(n int) Sheet {
	return make(Sheet, max(n, 0)).fill(n)
}

// uncertainMark is how the recognizer reports a half-filled or doubtful bubble.
const uncertainMark = "half"

// RawDetection is the list of marks reported for one question before
// normalization: empty, one letter, several letters, or the "half" marker.
type RawDetection []string

// UnmarshalJSON accepts a single string, an array, or anything else.
// Non-string array items and non-list values decode as no marks.
func (r *RawDetection) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*r = RawDetection{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = RawDetection{s}
		return nil
	}
	var items []any
	if err := json.Unmarshal(b, &items); err != nil {
		*r = RawDetection{}
		return nil
	}
	out := make(RawDetection, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	*r = out
	return nil
}

// Detections maps a question index to its raw detection.
type Detections map[int]RawDetection

// Normalize collapses one raw detection into a canonical answer.
//
// Only the exact letters A-D and the uncertainty marker survive; the marker
// becomes NA before counting, so a letter plus "half" is two elements and
// yields NA. Exactly one surviving letter is the answer.
func Normalize(raw RawDetection) Answer {
	var kept []Answer
	for _, tok := range raw {
		switch a := Answer(tok); {
		case a.IsLetter():
			kept = append(kept, a)
		case strings.EqualFold(tok, uncertainMark):
			kept = append(kept, NA)
		}
	}
	if len(kept) == 1 && kept[0].IsLetter() {
		return kept[0]
	}
	return NA
}

// NormalizeDetections normalizes questions 1..n. Missing questions are NA.
func NormalizeDetections(raw Detections, n int) Sheet {
	out := make(Sheet, max(n, 0))
	for i := 1; i <= n; i++ {
		out[i] = Normalize(raw[i])
	}
	return out
}

// collapse is the single-element rule the scorer applies to raw input.
// Unlike Normalize it drops nothing: any second token forces NA.
func collapse(raw RawDetection) Answer {
	if len(raw) == 1 {
		if a := Answer(raw[0]); a.IsLetter() {
			return a
		}
	}
	return NA
}

// ValidQuestionCount reports whether n is an accepted number of questions.
func ValidQuestionCount(n int) bool {
	return n >= MinQuestions && n <= MaxQuestions
}
