// Package store handles durable issue-record persistence for Muster
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cloud-shuttle/muster/pkg/types"
)

// Store manages the issue-record database.
type Store struct {
	DB *sql.DB
}

// Open opens a SQLite database at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Set busy timeout to handle lock contention gracefully
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &Store{DB: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

// InitSchema creates the database schema.
func (s *Store) InitSchema() error {
	schema := `
	-- One record per tracked issue. All cross-phase context lives here;
	-- the plan document itself is stored on the tracker, not in this table.
	CREATE TABLE IF NOT EXISTS issues (
		issue_id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		state TEXT NOT NULL,
		repo_path TEXT NOT NULL DEFAULT '',
		agent_session_id TEXT NOT NULL DEFAULT '',
		plan_comment_id TEXT NOT NULL DEFAULT '',
		pr_url TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_issues_state ON issues(state);
	CREATE INDEX IF NOT EXISTS idx_issues_org ON issues(org_id);
	`

	_, err := s.DB.Exec(schema)
	return err
}

// Get retrieves the record for an issue. Returns nil without error when no
// record exists.
func (s *Store) Get(issueID string) (*types.Record, error) {
	var rec types.Record
	err := s.DB.QueryRow(`
		SELECT issue_id, org_id, state, repo_path, agent_session_id,
		       plan_comment_id, pr_url, created_at, updated_at
		FROM issues
		WHERE issue_id = ?
	`, issueID).Scan(
		&rec.IssueID, &rec.OrgID, &rec.State, &rec.RepoPath, &rec.AgentSessionID,
		&rec.PlanCommentID, &rec.PRURL, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting issue %s: %w", issueID, err)
	}
	return &rec, nil
}

// Upsert writes a record with merge-on-null semantics: an empty field in
// the incoming record preserves whatever is already stored, so duplicate or
// out-of-order writes from retried phases are commutative and safe. State
// and OrgID always overwrite when non-empty.
func (s *Store) Upsert(rec *types.Record) error {
	if rec.IssueID == "" {
		return fmt.Errorf("upsert requires an issue id")
	}
	now := time.Now().Unix()
	_, err := s.DB.Exec(`
		INSERT INTO issues (issue_id, org_id, state, repo_path, agent_session_id,
		                    plan_comment_id, pr_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(issue_id) DO UPDATE SET
			org_id           = COALESCE(NULLIF(excluded.org_id, ''), issues.org_id),
			state            = COALESCE(NULLIF(excluded.state, ''), issues.state),
			repo_path        = COALESCE(NULLIF(excluded.repo_path, ''), issues.repo_path),
			agent_session_id = COALESCE(NULLIF(excluded.agent_session_id, ''), issues.agent_session_id),
			plan_comment_id  = COALESCE(NULLIF(excluded.plan_comment_id, ''), issues.plan_comment_id),
			pr_url           = COALESCE(NULLIF(excluded.pr_url, ''), issues.pr_url),
			updated_at       = excluded.updated_at
	`, rec.IssueID, rec.OrgID, rec.State, rec.RepoPath, rec.AgentSessionID,
		rec.PlanCommentID, rec.PRURL, now, now)
	if err != nil {
		return fmt.Errorf("upserting issue %s: %w", rec.IssueID, err)
	}
	return nil
}

// List returns all issue records, newest first.
func (s *Store) List() ([]*types.Record, error) {
	rows, err := s.DB.Query(`
		SELECT issue_id, org_id, state, repo_path, agent_session_id,
		       plan_comment_id, pr_url, created_at, updated_at
		FROM issues
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}
	defer rows.Close()

	var recs []*types.Record
	for rows.Next() {
		var rec types.Record
		err := rows.Scan(
			&rec.IssueID, &rec.OrgID, &rec.State, &rec.RepoPath, &rec.AgentSessionID,
			&rec.PlanCommentID, &rec.PRURL, &rec.CreatedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// CountByState returns how many issues sit in each lifecycle state.
func (s *Store) CountByState() (map[types.State]int, error) {
	rows, err := s.DB.Query(`SELECT state, COUNT(*) FROM issues GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("querying state counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.State]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			continue
		}
		counts[types.State(state)] = count
	}
	return counts, rows.Err()
}
