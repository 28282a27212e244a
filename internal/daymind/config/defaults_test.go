package config_test

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/soraya-vance/daymind/internal/daymind/config"
)

const sampleDefaultsYAML = `
planner:
  workday_start: "09:00"
  workday_end: "18:00"
  sleep_start: "23:00"
  sleep_end: "07:00"
  break_every_minutes: 90
  stress_threshold: 0.75

confidence_floor: 0.6
calendar_name: "daymind"
`

func TestLoadDefaultsFile_MissingFileIsNotAnError(t *testing.T) {
	fsys := fstest.MapFS{}
	d, err := config.LoadDefaultsFile(fsys, "defaults.yaml")
	if err != nil {
		t.Fatalf("LoadDefaultsFile: %v", err)
	}
	if d != nil {
		t.Fatalf("expected nil Defaults for a missing file, got %+v", d)
	}
}

func TestLoadDefaultsFile_ParsesKnownFields(t *testing.T) {
	fsys := fstest.MapFS{
		"defaults.yaml": {Data: []byte(sampleDefaultsYAML)},
	}
	d, err := config.LoadDefaultsFile(fsys, "defaults.yaml")
	if err != nil {
		t.Fatalf("LoadDefaultsFile: %v", err)
	}
	if d.Planner.WorkdayStart != "09:00" || d.Planner.SleepEnd != "07:00" {
		t.Errorf("unexpected planner defaults: %+v", d.Planner)
	}
	if d.ConfidenceFloor != 0.6 || d.CalendarName != "daymind" {
		t.Errorf("unexpected top-level defaults: %+v", d)
	}
}

func TestSeedIfEmpty_WritesOnlyMissingKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "planner.workday_start", "10:00"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	d := &config.Defaults{}
	d.Planner.WorkdayStart = "09:00"
	d.Planner.SleepStart = "23:00"
	d.ConfidenceFloor = 0.6

	if err := config.SeedIfEmpty(ctx, store, d); err != nil {
		t.Fatalf("SeedIfEmpty: %v", err)
	}

	got, err := store.Get(ctx, "planner.workday_start")
	if err != nil {
		t.Fatalf("Get(workday_start): %v", err)
	}
	if got != "10:00" {
		t.Errorf("SeedIfEmpty overwrote an existing key: got %q, want %q", got, "10:00")
	}

	got, err = store.Get(ctx, "planner.sleep_start")
	if err != nil {
		t.Fatalf("Get(sleep_start): %v", err)
	}
	if got != "23:00" {
		t.Errorf("got %q, want %q", got, "23:00")
	}

	got, err = store.Get(ctx, "confidence_floor")
	if err != nil {
		t.Fatalf("Get(confidence_floor): %v", err)
	}
	if got != "0.6" {
		t.Errorf("got %q, want %q", got, "0.6")
	}
}

func TestSeedIfEmpty_NilDefaultsIsNoop(t *testing.T) {
	store := newTestStore(t)
	if err := config.SeedIfEmpty(context.Background(), store, nil); err != nil {
		t.Fatalf("SeedIfEmpty(nil): %v", err)
	}
}
