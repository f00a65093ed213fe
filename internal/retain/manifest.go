package retain

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Artifact roles recorded at creation time, so retention never has to
// guess a file's purpose from its name.
const (
	RoleOriginal     = "original"
	RoleMerged       = "merged"
	RoleFiltered     = "filtered"
	RoleConverted    = "converted"
	RoleIntermediate = "intermediate"
)

// Manifest is the sqlite side-table mapping each artifact path to its
// role and originating project. It lives as manifest.db in the output
// directory and survives across runs, which is what makes reruns able to
// classify files an earlier invocation produced.
type Manifest struct {
	db *sql.DB
}

// OpenManifest opens (creating if needed) the manifest database.
func OpenManifest(dbPath string) (*Manifest, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", dbPath, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		path TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		project TEXT,
		created_at TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init manifest schema: %w", err)
	}
	return &Manifest{db: db}, nil
}

// Record upserts the role for a path. Re-recording (e.g. a merged file
// later converted in place) keeps the latest role.
func (m *Manifest) Record(path, role, project string) error {
	_, err := m.db.Exec(
		`INSERT INTO artifacts(path, role, project, created_at) VALUES(?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET role = excluded.role, project = excluded.project`,
		path, role, project, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", path, err)
	}
	return nil
}

// Role looks up a path's recorded role.
func (m *Manifest) Role(path string) (string, bool) {
	var role string
	err := m.db.QueryRow(`SELECT role FROM artifacts WHERE path = ?`, path).Scan(&role)
	if err != nil {
		return "", false
	}
	return role, true
}

// Forget drops the record for a removed file.
func (m *Manifest) Forget(path string) error {
	_, err := m.db.Exec(`DELETE FROM artifacts WHERE path = ?`, path)
	return err
}

func (m *Manifest) Close() error {
	return m.db.Close()
}
