package store

import (
	"errors"
	"maps"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/pavelanni/omrscore/internal/model"
	"github.com/pavelanni/omrscore/internal/omr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func scoredRun(id string, at time.Time) model.Run {
	student := omr.Sheet{1: omr.A, 2: omr.B, 3: omr.NA}
	key := omr.Sheet{1: omr.A, 2: omr.C, 3: omr.B}
	sum, breakdown := omr.Score(student, key, 3)
	return model.Run{
		ID:             id,
		CreatedAt:      at,
		Mode:           model.ModeScored,
		NumQuestions:   3,
		SheetName:      "sheet.png",
		KeySource:      model.KeySourceText,
		Provider:       "gemini",
		Summary:        &sum,
		Breakdown:      breakdown,
		StudentAnswers: student,
		CorrectAnswers: key,
	}
}

func detectionRun(id string, at time.Time) model.Run {
	return model.Run{
		ID:             id,
		CreatedAt:      at,
		Mode:           model.ModeDetectionOnly,
		NumQuestions:   2,
		SheetName:      "only.jpg",
		KeySource:      model.KeySourceNone,
		Provider:       "openai",
		StudentAnswers: omr.Sheet{1: omr.D, 2: omr.NA},
	}
}

func TestSaveAndGetScoredRun(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	in := scoredRun("run-1", now)

	if err := s.SaveRun(in); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Mode != model.ModeScored {
		t.Errorf("expected mode scored, got %q", got.Mode)
	}
	if got.SheetName != "sheet.png" || got.KeySource != model.KeySourceText || got.Provider != "gemini" {
		t.Errorf("unexpected run metadata: %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("expected created_at %v, got %v", now, got.CreatedAt)
	}
	if got.Summary == nil || *got.Summary != *in.Summary {
		t.Errorf("expected summary %+v, got %+v", in.Summary, got.Summary)
	}
	if !slices.Equal(got.Breakdown, in.Breakdown) {
		t.Errorf("expected breakdown %+v, got %+v", in.Breakdown, got.Breakdown)
	}
	if !maps.Equal(got.StudentAnswers, in.StudentAnswers) {
		t.Errorf("expected student answers %v, got %v", in.StudentAnswers, got.StudentAnswers)
	}
	if !maps.Equal(got.CorrectAnswers, in.CorrectAnswers) {
		t.Errorf("expected correct answers %v, got %v", in.CorrectAnswers, got.CorrectAnswers)
	}
}

func TestSaveAndGetDetectionRun(t *testing.T) {
	s := newTestStore(t)
	in := detectionRun("run-d", time.Now().UTC())

	if err := s.SaveRun(in); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := s.GetRun("run-d")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Summary != nil {
		t.Errorf("expected nil summary, got %+v", got.Summary)
	}
	if len(got.Breakdown) != 0 {
		t.Errorf("expected no breakdown, got %d entries", len(got.Breakdown))
	}
	if got.CorrectAnswers != nil {
		t.Errorf("expected nil correct answers, got %v", got.CorrectAnswers)
	}
	if !maps.Equal(got.StudentAnswers, in.StudentAnswers) {
		t.Errorf("expected student answers %v, got %v", in.StudentAnswers, got.StudentAnswers)
	}

	resp := got.Response()
	if resp.NumQuestions != 2 || resp.Mode != model.ModeDetectionOnly {
		t.Errorf("unexpected response shape: %+v", resp)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetRun("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDuplicateRunID(t *testing.T) {
	s := newTestStore(t)
	r := scoredRun("dup", time.Now().UTC())
	if err := s.SaveRun(r); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.SaveRun(r); err == nil {
		t.Error("expected error saving duplicate run ID")
	}
	count, err := s.RunCount()
	if err != nil {
		t.Fatalf("RunCount: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 run, got %d", count)
	}
}

func TestListRuns(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i, r := range []model.Run{
		scoredRun("a", base),
		detectionRun("b", base.Add(time.Minute)),
		scoredRun("c", base.Add(2*time.Minute)),
	} {
		if err := s.SaveRun(r); err != nil {
			t.Fatalf("SaveRun %d: %v", i, err)
		}
	}

	tests := []struct {
		name    string
		limit   int
		wantIDs []string
	}{
		{"all", 0, []string{"c", "b", "a"}},
		{"limited", 2, []string{"c", "b"}},
		{"limit above count", 10, []string{"c", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := s.ListRuns(tt.limit)
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			var ids []string
			for _, r := range runs {
				ids = append(ids, r.ID)
			}
			if !slices.Equal(ids, tt.wantIDs) {
				t.Errorf("expected %v, got %v", tt.wantIDs, ids)
			}
		})
	}

	runs, _ := s.ListRuns(0)
	if runs[1].Summary != nil {
		t.Error("detection-only run should have no summary")
	}
	if runs[0].Summary == nil || runs[0].Summary.Correct != 1 {
		t.Errorf("unexpected summary for scored run: %+v", runs[0].Summary)
	}
}

func TestExportRuns(t *testing.T) {
	s := newTestStore(t)

	runs, err := s.ExportRuns()
	if err != nil {
		t.Fatalf("ExportRuns on empty store: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}

	base := time.Now().UTC().Add(-time.Hour)
	_ = s.SaveRun(scoredRun("first", base))
	_ = s.SaveRun(detectionRun("second", base.Add(time.Minute)))

	runs, err = s.ExportRuns()
	if err != nil {
		t.Fatalf("ExportRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "first" || runs[1].ID != "second" {
		t.Errorf("expected oldest first, got %s, %s", runs[0].ID, runs[1].ID)
	}
	if len(runs[0].Breakdown) != 3 {
		t.Errorf("expected full breakdown in export, got %d entries", len(runs[0].Breakdown))
	}
}

func TestNewUnreachablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "runs.db")
	if _, err := New(path); err == nil {
		t.Error("expected error opening a database in a missing directory")
	}
}
