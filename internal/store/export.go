package store

import (
	"fmt"

	"github.com/pavelanni/omrscore/internal/model"
)

// ExportRuns loads every stored run in full, oldest first.
func (s *Store) ExportRuns() ([]model.Run, error) {
	summaries, err := s.ListRuns(0)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]model.Run, 0, len(summaries))
	for i := len(summaries) - 1; i >= 0; i-- {
		r, err := s.GetRun(summaries[i].ID)
		if err != nil {
			return nil, fmt.Errorf("get run %s: %w", summaries[i].ID, err)
		}
		runs = append(runs, r)
	}
	return runs, nil
}
