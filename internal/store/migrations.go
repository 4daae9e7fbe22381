package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    label TEXT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    area_tol REAL NOT NULL,
    merge BOOLEAN NOT NULL,
    lock_policy TEXT NOT NULL,
    protected_count INTEGER DEFAULT 0,
    locked_count INTEGER DEFAULT 0,
    hrus_in INTEGER,
    hrus_out INTEGER,
    area_in REAL,
    area_out REAL,
    warnings INTEGER DEFAULT 0,
    hru_path TEXT,
    subbasin_path TEXT,
    success BOOLEAN DEFAULT FALSE,
    error_message TEXT
);

CREATE TABLE IF NOT EXISTS run_hrus (
    run_id TEXT NOT NULL,
    hru_id INTEGER NOT NULL,
    sbid INTEGER NOT NULL,
    land_use TEXT,
    area REAL NOT NULL,
    PRIMARY KEY (run_id, hru_id)
);

CREATE TABLE IF NOT EXISTS run_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    hru_id INTEGER,
    sbid INTEGER,
    target_id INTEGER,
    area REAL,
    message TEXT
);

CREATE TABLE IF NOT EXISTS run_subbasins (
    run_id TEXT NOT NULL,
    sbid INTEGER NOT NULL,
    hrus_in INTEGER,
    hrus_out INTEGER,
    area_in REAL,
    area_out REAL,
    threshold REAL,
    merged INTEGER,
    dropped INTEGER,
    unmerged INTEGER,
    PRIMARY KEY (run_id, sbid)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, kind);
`,
	},
	{
		Version:     2,
		Description: "Input snapshots",
		SQL: `
CREATE TABLE IF NOT EXISTS input_snapshots (
    hash TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    source_path TEXT,
    stored_at DATETIME NOT NULL,
    size_bytes INTEGER NOT NULL,
    payload_compressed BLOB NOT NULL
);

ALTER TABLE runs ADD COLUMN hru_snapshot TEXT;
ALTER TABLE runs ADD COLUMN subbasin_snapshot TEXT;
`,
	},
	{
		Version:     3,
		Description: "Exemption IDs on runs",
		SQL: `
ALTER TABLE runs ADD COLUMN protected_ids TEXT;
ALTER TABLE runs ADD COLUMN locked_ids TEXT;
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Printf("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
