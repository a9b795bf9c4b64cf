// Package store_test provides tests for the store package
package store_test

import (
	"path/filepath"
	"testing"

	"github.com/cloud-shuttle/muster/internal/store"
	"github.com/cloud-shuttle/muster/pkg/types"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.InitSchema(); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}
	return s
}

func TestStore_GetAbsent(t *testing.T) {
	s := setupTestStore(t)

	rec, err := s.Get("ISSUE-404")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("Expected nil for absent record, got %+v", rec)
	}
}

func TestStore_UpsertMergeOnNull(t *testing.T) {
	s := setupTestStore(t)

	err := s.Upsert(&types.Record{
		IssueID:  "ISSUE-1",
		OrgID:    "org-a",
		State:    types.StatePlanning,
		RepoPath: "/work/checkouts/repo",
	})
	if err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	// Second write omits repo_path; it must not clobber the stored value.
	err = s.Upsert(&types.Record{
		IssueID:        "ISSUE-1",
		OrgID:          "org-a",
		State:          types.StateAwaitingApproval,
		AgentSessionID: "sess-9",
	})
	if err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	rec, err := s.Get("ISSUE-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec == nil {
		t.Fatal("Expected record, got nil")
	}
	if rec.State != types.StateAwaitingApproval {
		t.Errorf("State = %s, want %s", rec.State, types.StateAwaitingApproval)
	}
	if rec.RepoPath != "/work/checkouts/repo" {
		t.Errorf("RepoPath = %q, want preserved value", rec.RepoPath)
	}
	if rec.AgentSessionID != "sess-9" {
		t.Errorf("AgentSessionID = %q, want sess-9", rec.AgentSessionID)
	}
}

func TestStore_UpsertOverwritesWithValue(t *testing.T) {
	s := setupTestStore(t)

	if err := s.Upsert(&types.Record{IssueID: "ISSUE-2", OrgID: "o", State: types.StatePlanning}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.Upsert(&types.Record{IssueID: "ISSUE-2", State: types.StateInProgress, PRURL: "https://example.com/pr/1"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rec, _ := s.Get("ISSUE-2")
	if rec.State != types.StateInProgress {
		t.Errorf("State = %s, want in_progress", rec.State)
	}
	if rec.PRURL != "https://example.com/pr/1" {
		t.Errorf("PRURL = %q, want set value", rec.PRURL)
	}
	if rec.OrgID != "o" {
		t.Errorf("OrgID = %q, want preserved value", rec.OrgID)
	}
}

func TestStore_CountByState(t *testing.T) {
	s := setupTestStore(t)

	for i, st := range []types.State{types.StatePlanning, types.StatePlanning, types.StateReviewing} {
		if err := s.Upsert(&types.Record{IssueID: string(rune('A' + i)), OrgID: "o", State: st}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	counts, err := s.CountByState()
	if err != nil {
		t.Fatalf("CountByState failed: %v", err)
	}
	if counts[types.StatePlanning] != 2 {
		t.Errorf("planning count = %d, want 2", counts[types.StatePlanning])
	}
	if counts[types.StateReviewing] != 1 {
		t.Errorf("reviewing count = %d, want 1", counts[types.StateReviewing])
	}
}
