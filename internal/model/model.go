package model

import (
	"time"

	"github.com/pavelanni/omrscore/internal/omr"
)

// Mode tells whether a request was scored against a key.
type Mode string

const (
	ModeScored        Mode = "scored"
	ModeDetectionOnly Mode = "detection_only"
)

// KeySource records where a run's answer key came from.
type KeySource string

const (
	KeySourceNone  KeySource = "none"
	KeySourceImage KeySource = "image"
	KeySourceText  KeySource = "text"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ServiceConfig holds runtime parameters set via CLI flags.
type ServiceConfig struct {
	DefaultQuestions int           // used when the form omits num_questions
	MaxUploadBytes   int64         // multipart body limit
	DetectTimeout    time.Duration // per-request recognition budget; 0 means none
	APIKeyHash       string        // bcrypt hash; empty disables API-key auth
}

// ScoreResponse is the JSON body of a successful scoring request.
type ScoreResponse struct {
	Status         string               `json:"status"`
	Mode           Mode                 `json:"mode"`
	RunID          string               `json:"run_id,omitempty"`
	Summary        *omr.Summary         `json:"summary,omitempty"`
	Breakdown      []omr.BreakdownEntry `json:"breakdown,omitempty"`
	StudentAnswers omr.Sheet            `json:"student_answers"`
	CorrectAnswers omr.Sheet            `json:"correct_answers,omitempty"`
	NumQuestions   int                  `json:"num_questions,omitempty"`
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Run is one scoring request as kept in history.
type Run struct {
	ID             string               `json:"id"`
	CreatedAt      time.Time            `json:"created_at"`
	Mode           Mode                 `json:"mode"`
	NumQuestions   int                  `json:"num_questions"`
	SheetName      string               `json:"sheet_name"`
	KeySource      KeySource            `json:"key_source"`
	Provider       string               `json:"provider"`
	Summary        *omr.Summary         `json:"summary,omitempty"`
	Breakdown      []omr.BreakdownEntry `json:"breakdown,omitempty"`
	StudentAnswers omr.Sheet            `json:"student_answers"`
	CorrectAnswers omr.Sheet            `json:"correct_answers,omitempty"`
}

// Response renders the run in the scoring API shape.
func (r Run) Response() ScoreResponse {
	resp := ScoreResponse{
		Status:         StatusSuccess,
		Mode:           r.Mode,
		RunID:          r.ID,
		StudentAnswers: r.StudentAnswers,
	}
	if r.Mode == ModeScored {
		resp.Summary = r.Summary
		resp.Breakdown = r.Breakdown
		resp.CorrectAnswers = r.CorrectAnswers
	} else {
		resp.NumQuestions = r.NumQuestions
	}
	return resp
}

// RunSummary is the list view of a run.
type RunSummary struct {
	ID           string       `json:"id"`
	CreatedAt    time.Time    `json:"created_at"`
	Mode         Mode         `json:"mode"`
	NumQuestions int          `json:"num_questions"`
	SheetName    string       `json:"sheet_name"`
	KeySource    KeySource    `json:"key_source"`
	Summary      *omr.Summary `json:"summary,omitempty"`
}
