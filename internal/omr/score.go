package omr

// Result classifies one scored question.
type Result string

const (
	ResultCorrect   Result = "Correct"
	ResultIncorrect Result = "Incorrect"
	ResultNA        Result = "NA"
)

// BreakdownEntry is the outcome for a single question.
type BreakdownEntry struct {
	Question int    `json:"q"`
	Key      Answer `json:"key"`
	Student  Answer `json:"student"`
	Result   Result `json:"result"`
}

// Summary tallies a scoring run. Total always equals the question count.
type Summary struct {
	Total     int `json:"total"`
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`
	NA        int `json:"na"`
}

// Score compares student answers with the key for questions 1..n.
// Missing answers on either side count as NA. A student NA is never
// counted as incorrect, even when the key is NA too.
func Score(student, key Sheet, n int) (Summary, []BreakdownEntry) {
	sum := Summary{Total: n}
	breakdown := make([]BreakdownEntry, 0, max(n, 0))

	for i := 1; i <= n; i++ {
		s := student.Get(i)
		k := key.Get(i)

		var res Result
		switch {
		case s == NA:
			res = ResultNA
			sum.NA++
		case s == k && s.IsLetter():
			res = ResultCorrect
			sum.Correct++
		default:
			res = ResultIncorrect
			sum.Incorrect++
		}

		breakdown = append(breakdown, BreakdownEntry{
			Question: i,
			Key:      k,
			Student:  s,
			Result:   res,
		})
	}
	return sum, breakdown
}

// ScoreDetections scores raw, un-normalized student detections. Each
// question counts only when exactly one letter was reported.
func ScoreDetections(student Detections, key Sheet, n int) (Summary, []BreakdownEntry) {
	collapsed := make(Sheet, len(student))
	for q, raw := range student {
		collapsed[q] = collapse(raw)
	}
	return Score(collapsed, key, n)
}
