package store_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jacobpro/calpol/internal/engine"
	"github.com/jacobpro/calpol/internal/probe"
	"github.com/jacobpro/calpol/internal/store"
)

func newTestSQLite(t *testing.T) *store.SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calpol.db")
	s, err := store.NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_InsertAndListProbes(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p := engine.Probe{
		ID: "p1", Name: "example", Enabled: true, FailureThreshold: 2,
		Config: probe.Config{
			IPVersion: probe.IPVersionV4,
			Variant:   &probe.TCPConfig{Host: "127.0.0.1", Port: 80},
		},
	}
	if err := s.InsertProbe(ctx, p); err != nil {
		t.Fatalf("InsertProbe: %v", err)
	}

	probes, err := s.ListProbes(ctx)
	if err != nil {
		t.Fatalf("ListProbes: %v", err)
	}
	if len(probes) != 1 || probes[0].Name != "example" {
		t.Fatalf("unexpected probes: %+v", probes)
	}
}

func TestSQLite_ListProbes_TolerantOfMalformedConfigRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calpol.db")
	s, err := store.NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	good := engine.Probe{
		ID: "good", Name: "good", Enabled: true, FailureThreshold: 1,
		Config: probe.Config{IPVersion: probe.IPVersionV4, Variant: &probe.TCPConfig{Host: "h", Port: 1}},
	}
	if err := s.InsertProbe(ctx, good); err != nil {
		t.Fatalf("InsertProbe(good): %v", err)
	}

	// A legacy or hand-edited row whose config isn't valid JSON at all.
	// ListProbes must still return both rows rather than fail the whole
	// call over this one.
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw sqlite handle: %v", err)
	}
	defer raw.Close()
	if _, err := raw.ExecContext(ctx,
		`INSERT INTO probes (id, name, enabled, failure_threshold, failing, config) VALUES (?, ?, ?, ?, ?, ?)`,
		"bad", "bad", 1, 1, 0, "not json"); err != nil {
		t.Fatalf("insert malformed row: %v", err)
	}

	probes, err := s.ListProbes(ctx)
	if err != nil {
		t.Fatalf("ListProbes should tolerate a malformed row, got error: %v", err)
	}
	if len(probes) != 2 {
		t.Fatalf("expected 2 probes, got %d", len(probes))
	}

	var bad, goodProbe *engine.Probe
	for i := range probes {
		switch probes[i].ID {
		case "bad":
			bad = &probes[i]
		case "good":
			goodProbe = &probes[i]
		}
	}
	if bad == nil || bad.ConfigErr == nil {
		t.Fatalf("expected probe %q to carry a ConfigErr, got %+v", "bad", bad)
	}
	if goodProbe == nil || goodProbe.ConfigErr != nil {
		t.Fatalf("expected probe %q to parse cleanly, got %+v", "good", goodProbe)
	}
}

func TestSQLite_InsertResultsAndRecentResults(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p := engine.Probe{ID: "p1", Name: "example", Enabled: true, FailureThreshold: 3,
		Config: probe.Config{IPVersion: probe.IPVersionV4, Variant: &probe.TCPConfig{Host: "h", Port: 1}}}
	if err := s.InsertProbe(ctx, p); err != nil {
		t.Fatalf("InsertProbe: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		ts := now.Add(time.Duration(i) * time.Second)
		if err := s.InsertResults(ctx, []engine.Result{
			{RunID: "run", ProbeID: "p1", Success: false, TimeStarted: ts, TimeFinished: ts},
		}); err != nil {
			t.Fatalf("InsertResults[%d]: %v", i, err)
		}
	}

	recent, err := s.RecentResults(ctx, "p1", 2)
	if err != nil {
		t.Fatalf("RecentResults: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("want 2 recent results, got %d", len(recent))
	}
	// newest first
	if !recent[0].TimeFinished.After(recent[1].TimeFinished) {
		t.Errorf("expected newest-first order, got %+v", recent)
	}
}

func TestSQLite_SetFailingAndNotificationTargets(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p := engine.Probe{ID: "p1", Name: "example", Enabled: true, FailureThreshold: 1,
		Config: probe.Config{IPVersion: probe.IPVersionV4, Variant: &probe.TCPConfig{Host: "h", Port: 1}}}
	if err := s.InsertProbe(ctx, p); err != nil {
		t.Fatalf("InsertProbe: %v", err)
	}
	if err := s.SetFailing(ctx, "p1", true); err != nil {
		t.Fatalf("SetFailing: %v", err)
	}
	probes, err := s.ListProbes(ctx)
	if err != nil {
		t.Fatalf("ListProbes: %v", err)
	}
	if !probes[0].Failing {
		t.Errorf("expected probe to be failing")
	}

	targets, err := s.NotificationTargets(ctx)
	if err != nil {
		t.Fatalf("NotificationTargets: %v", err)
	}
	if len(targets.Emails) != 0 || len(targets.Phones) != 0 {
		t.Errorf("expected no targets seeded, got %+v", targets)
	}
}

func TestSQLite_DeleteResultsOlderThan(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p := engine.Probe{ID: "p1", Name: "example", Enabled: true, FailureThreshold: 1,
		Config: probe.Config{IPVersion: probe.IPVersionV4, Variant: &probe.TCPConfig{Host: "h", Port: 1}}}
	if err := s.InsertProbe(ctx, p); err != nil {
		t.Fatalf("InsertProbe: %v", err)
	}

	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()
	if err := s.InsertResults(ctx, []engine.Result{
		{RunID: "old", ProbeID: "p1", Success: true, TimeStarted: old, TimeFinished: old},
		{RunID: "new", ProbeID: "p1", Success: true, TimeStarted: recent, TimeFinished: recent},
	}); err != nil {
		t.Fatalf("InsertResults: %v", err)
	}

	if err := s.DeleteResultsOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour)); err != nil {
		t.Fatalf("DeleteResultsOlderThan: %v", err)
	}

	left, err := s.RecentResults(ctx, "p1", 10)
	if err != nil {
		t.Fatalf("RecentResults: %v", err)
	}
	if len(left) != 1 || left[0].RunID != "new" {
		t.Fatalf("want only the recent result left, got %+v", left)
	}
}

func TestSQLite_InsertRunLogAndDeleteOlderThan(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	passed, failed, skipped := 1, 0, 0
	now := time.Now().UTC().Truncate(time.Millisecond)
	log := engine.RunLog{
		RunID: "run1", TimeStarted: now, TimeFinished: now.Add(time.Second), Success: true,
		TestsPassed: &passed, TestsFailed: &failed, TestsSkipped: &skipped,
	}
	if err := s.InsertRunLog(ctx, log); err != nil {
		t.Fatalf("InsertRunLog: %v", err)
	}

	if err := s.DeleteRunLogsOlderThan(ctx, now.Add(-time.Hour)); err != nil {
		t.Fatalf("DeleteRunLogsOlderThan: %v", err)
	}
}
