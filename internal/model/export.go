package model

import "time"

// RunExport is the top-level JSON structure for history export.
type RunExport struct {
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Runs       []Run     `json:"runs"`
}
