package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func sampleEntry(source string, confidence float64) Entry {
	return Entry{
		Source:        source,
		RegionStart:   10,
		RegionEnd:     32,
		OriginalSpan:  "teh quick brwon fox",
		CorrectedSpan: "the quick brown fox",
		Confidence:    confidence,
		Stages:        []string{"noise", "context"},
		Duration:      420 * time.Millisecond,
		DocChars:      128,
	}
}

func TestOpenAndClose(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state", "tacet")
	j, err := Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected directory %s to exist: %v", dir, err)
	}
}

func TestCloseNilDB(t *testing.T) {
	j := &Journal{}
	if err := j.Close(); err != nil {
		t.Errorf("Close() on zero journal error = %v", err)
	}
}

func TestPing(t *testing.T) {
	j := openTestJournal(t)
	if err := j.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	e := sampleEntry("sweep", 0.82)
	e.AppliedAt = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	id, err := j.Record(ctx, e)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if id == 0 {
		t.Error("Record() returned id 0")
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Recent() returned %d entries, want 1", len(entries))
	}

	got := entries[0]
	if got.ID != id {
		t.Errorf("ID = %d, want %d", got.ID, id)
	}
	if !got.AppliedAt.Equal(e.AppliedAt) {
		t.Errorf("AppliedAt = %v, want %v", got.AppliedAt, e.AppliedAt)
	}
	if got.Source != "sweep" {
		t.Errorf("Source = %q, want %q", got.Source, "sweep")
	}
	if got.RegionStart != 10 || got.RegionEnd != 32 {
		t.Errorf("region = [%d, %d), want [10, 32)", got.RegionStart, got.RegionEnd)
	}
	if got.OriginalSpan != e.OriginalSpan {
		t.Errorf("OriginalSpan = %q, want %q", got.OriginalSpan, e.OriginalSpan)
	}
	if got.CorrectedSpan != e.CorrectedSpan {
		t.Errorf("CorrectedSpan = %q, want %q", got.CorrectedSpan, e.CorrectedSpan)
	}
	if got.Confidence != 0.82 {
		t.Errorf("Confidence = %v, want 0.82", got.Confidence)
	}
	if len(got.Stages) != 2 || got.Stages[0] != "noise" || got.Stages[1] != "context" {
		t.Errorf("Stages = %v, want [noise context]", got.Stages)
	}
	if got.Duration != 420*time.Millisecond {
		t.Errorf("Duration = %v, want 420ms", got.Duration)
	}
	if got.DocChars != 128 {
		t.Errorf("DocChars = %d, want 128", got.DocChars)
	}
}

func TestRecordStampsZeroAppliedAt(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	if _, err := j.Record(ctx, sampleEntry("forced", 0.9)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := j.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Recent() returned %d entries, want 1", len(entries))
	}
	if entries[0].AppliedAt.Before(before) {
		t.Errorf("AppliedAt = %v, want a recent timestamp", entries[0].AppliedAt)
	}
}

func TestRecentOrderAndLimit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for i, span := range []string{"first", "second", "third"} {
		e := sampleEntry("sweep", 0.7+float64(i)*0.1)
		e.CorrectedSpan = span
		if _, err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	entries, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent(2) returned %d entries, want 2", len(entries))
	}
	if entries[0].CorrectedSpan != "third" || entries[1].CorrectedSpan != "second" {
		t.Errorf("Recent(2) order = [%q, %q], want newest first [third, second]",
			entries[0].CorrectedSpan, entries[1].CorrectedSpan)
	}
}

func TestRecentZeroLimit(t *testing.T) {
	j := openTestJournal(t)

	entries, err := j.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent(0) error = %v", err)
	}
	if entries != nil {
		t.Errorf("Recent(0) = %v, want nil", entries)
	}
}

func TestRecentEmptyStages(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	e := sampleEntry("oneshot", 0.75)
	e.Stages = nil
	if _, err := j.Record(ctx, e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := j.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries[0].Stages) != 0 {
		t.Errorf("Stages = %v, want empty", entries[0].Stages)
	}
}

func TestStats(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	inserts := []struct {
		source     string
		confidence float64
		duration   time.Duration
	}{
		{"sweep", 0.8, 400 * time.Millisecond},
		{"sweep", 0.6, 600 * time.Millisecond},
		{"forced", 0.9, 200 * time.Millisecond},
	}
	for i, in := range inserts {
		e := sampleEntry(in.source, in.confidence)
		e.Duration = in.duration
		if _, err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	s, err := j.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if s.Corrections != 3 {
		t.Errorf("Corrections = %d, want 3", s.Corrections)
	}
	wantConf := (0.8 + 0.6 + 0.9) / 3
	if diff := s.AvgConfidence - wantConf; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("AvgConfidence = %v, want %v", s.AvgConfidence, wantConf)
	}
	if s.AvgDuration != 400*time.Millisecond {
		t.Errorf("AvgDuration = %v, want 400ms", s.AvgDuration)
	}
	if s.BySource["sweep"] != 2 || s.BySource["forced"] != 1 {
		t.Errorf("BySource = %v, want sweep:2 forced:1", s.BySource)
	}
}

func TestStatsEmpty(t *testing.T) {
	j := openTestJournal(t)

	s, err := j.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if s.Corrections != 0 {
		t.Errorf("Corrections = %d, want 0", s.Corrections)
	}
	if s.AvgConfidence != 0 {
		t.Errorf("AvgConfidence = %v, want 0", s.AvgConfidence)
	}
	if s.AvgDuration != 0 {
		t.Errorf("AvgDuration = %v, want 0", s.AvgDuration)
	}
	if len(s.BySource) != 0 {
		t.Errorf("BySource = %v, want empty", s.BySource)
	}
}

func TestPrune(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := j.Record(ctx, sampleEntry("sweep", 0.8)); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	removed, err := j.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("Prune() removed %d, want 3", removed)
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("after prune Recent() returned %d entries, want 2", len(entries))
	}
}

func TestPruneKeepAll(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if _, err := j.Record(ctx, sampleEntry("sweep", 0.8)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	removed, err := j.Prune(ctx, 10)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("Prune() removed %d, want 0", removed)
	}
}
