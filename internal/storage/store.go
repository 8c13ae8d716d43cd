// Package storage archives calculation runs: one directory per run holding
// metadata and the per-object timing series, so past runs can be listed,
// compared, and plotted.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunMetadata describes one archived calculation pass.
type RunMetadata struct {
	ID              string    `json:"id"`
	Mode            string    `json:"mode"`
	Flowsheet       string    `json:"flowsheet"`
	Output          string    `json:"output"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"duration_seconds"`
	Objects         int       `json:"objects"`
	Failures        int       `json:"failures"`
}

// ObjectTiming is one entry of a run's timing series, in calculation
// sequence.
type ObjectTiming struct {
	Object    string
	ElapsedMs float64
	Failed    bool
}

// Save archives a run and returns its id.
func (s *Store) Save(meta RunMetadata, series []ObjectTiming) (string, error) {
	runID := fmt.Sprintf("%s_%d", meta.Mode, time.Now().UnixNano())
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}
	meta.ID = runID

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "series.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	if err := w.Write([]string{"object", "elapsed_ms", "failed"}); err != nil {
		return "", err
	}
	for _, entry := range series {
		row := []string{
			entry.Object,
			strconv.FormatFloat(entry.ElapsedMs, 'f', 3, 64),
			strconv.FormatBool(entry.Failed),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	return runID, nil
}

// List returns metadata for every archived run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		runs = append(runs, meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

// Load returns one run's metadata.
func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadSeries returns a run's per-object timing series.
func (s *Store) LoadSeries(runID string) ([]ObjectTiming, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "series.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	series := make([]ObjectTiming, 0, len(records))
	for i, record := range records {
		if i == 0 || len(record) < 3 {
			continue
		}
		ms, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			continue
		}
		failed, _ := strconv.ParseBool(record[2])
		series = append(series, ObjectTiming{Object: record[0], ElapsedMs: ms, Failed: failed})
	}
	return series, nil
}
