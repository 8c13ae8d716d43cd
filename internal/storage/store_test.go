package storage

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	meta := RunMetadata{
		Mode:            "auto",
		Flowsheet:       "plant.fsd",
		Output:          "plant_auto.fsd",
		Timestamp:       time.Now(),
		DurationSeconds: 1.25,
		Objects:         3,
		Failures:        1,
	}
	series := []ObjectTiming{
		{Object: "feed", ElapsedMs: 0.2},
		{Object: "heater", ElapsedMs: 4.7},
		{Object: "out", ElapsedMs: 0.1, Failed: true},
	}

	runID, err := st.Save(meta, series)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Fatal("expected non-empty run id")
	}
	if !strings.HasPrefix(runID, "auto_") {
		t.Errorf("expected mode-prefixed id, got %s", runID)
	}

	loaded, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Mode != "auto" {
		t.Errorf("expected mode auto, got %s", loaded.Mode)
	}
	if loaded.DurationSeconds != 1.25 {
		t.Errorf("expected duration 1.25, got %f", loaded.DurationSeconds)
	}
	if loaded.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", loaded.Failures)
	}

	got, err := st.LoadSeries(runID)
	if err != nil {
		t.Fatalf("load series failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 series entries, got %d", len(got))
	}
	if got[1].Object != "heater" || got[1].ElapsedMs != 4.7 {
		t.Errorf("unexpected series entry: %+v", got[1])
	}
	if !got[2].Failed {
		t.Error("expected failed flag preserved")
	}
}

func TestListEmpty(t *testing.T) {
	st := New(t.TempDir() + "/missing")
	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestListNewestFirst(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}

	old := RunMetadata{Mode: "auto", Timestamp: time.Now().Add(-time.Hour)}
	recent := RunMetadata{Mode: "ordenado", Timestamp: time.Now()}
	if _, err := st.Save(old, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Save(recent, nil); err != nil {
		t.Fatal(err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Mode != "ordenado" {
		t.Errorf("expected newest run first, got %s", runs[0].Mode)
	}
}

func TestExportJSON(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	runID, err := st.Save(RunMetadata{Mode: "auto", Timestamp: time.Now()},
		[]ObjectTiming{{Object: "feed", ElapsedMs: 0.5}})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := st.ExportJSON(&buf, runID); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"mode": "auto"`) || !strings.Contains(out, `"feed"`) {
		t.Errorf("unexpected export payload: %s", out)
	}
}
