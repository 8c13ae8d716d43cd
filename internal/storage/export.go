package storage

import (
	"encoding/json"
	"io"
)

// ExportData is the JSON shape of one exported run.
type ExportData struct {
	RunMetadata
	Series []exportEntry `json:"series"`
}

type exportEntry struct {
	Object    string  `json:"object"`
	ElapsedMs float64 `json:"elapsed_ms"`
	Failed    bool    `json:"failed,omitempty"`
}

// ExportJSON writes one archived run, metadata plus timing series, to w.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	series, err := s.LoadSeries(runID)
	if err != nil {
		return err
	}

	data := ExportData{RunMetadata: *meta, Series: make([]exportEntry, 0, len(series))}
	for _, entry := range series {
		data.Series = append(data.Series, exportEntry{
			Object:    entry.Object,
			ElapsedMs: entry.ElapsedMs,
			Failed:    entry.Failed,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
