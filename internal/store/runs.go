package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lox/hruclean/internal/models"
)

// StartRun assigns the run an ID and records it as in progress.
func (s *Store) StartRun(run *models.Run) error {
	protected, err := encodeIDs(run.ProtectedIDs)
	if err != nil {
		return err
	}
	locked, err := encodeIDs(run.LockedIDs)
	if err != nil {
		return err
	}

	run.ID = uuid.NewString()
	run.StartedAt = time.Now().UTC()

	_, err = s.db.Exec(`
		INSERT INTO runs (id, label, started_at, area_tol, merge, lock_policy, protected_count, locked_count,
			protected_ids, locked_ids, hru_path, subbasin_path, hru_snapshot, subbasin_snapshot, success)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE)
	`, run.ID, run.Label, run.StartedAt, run.AreaTol, run.Merge, run.LockPolicy, run.Protected, run.Locked,
		protected, locked, run.HRUPath, run.SubBasinPath, nullString(run.HRUSnapshot), nullString(run.SubBasinSnapshot))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// CompleteRun records the outcome of a run started with StartRun.
func (s *Store) CompleteRun(run *models.Run) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		UPDATE runs SET
			finished_at = ?,
			hrus_in = ?,
			hrus_out = ?,
			area_in = ?,
			area_out = ?,
			warnings = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HRUsIn, run.HRUsOut, run.AreaIn, run.AreaOut, run.Warnings,
		run.Success, nullString(run.ErrorMessage), run.ID)
	return err
}

const runColumns = `id, label, started_at, finished_at, area_tol, merge, lock_policy, protected_count, locked_count,
	hrus_in, hrus_out, area_in, area_out, warnings, hru_path, subbasin_path, hru_snapshot, subbasin_snapshot,
	success, error_message, protected_ids, locked_ids`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var r models.Run
	var (
		label, hruPath, sbPath, hruSnap, sbSnap, errMsg sql.NullString
		protectedIDs, lockedIDs                         sql.NullString
		finished                                        sql.NullTime
		hrusIn, hrusOut                                 sql.NullInt64
		areaIn, areaOut                                 sql.NullFloat64
	)
	if err := row.Scan(&r.ID, &label, &r.StartedAt, &finished, &r.AreaTol, &r.Merge, &r.LockPolicy,
		&r.Protected, &r.Locked, &hrusIn, &hrusOut, &areaIn, &areaOut, &r.Warnings,
		&hruPath, &sbPath, &hruSnap, &sbSnap, &r.Success, &errMsg, &protectedIDs, &lockedIDs); err != nil {
		return nil, err
	}
	var err error
	if r.ProtectedIDs, err = decodeIDs(protectedIDs); err != nil {
		return nil, fmt.Errorf("run %s protected ids: %w", r.ID, err)
	}
	if r.LockedIDs, err = decodeIDs(lockedIDs); err != nil {
		return nil, fmt.Errorf("run %s locked ids: %w", r.ID, err)
	}
	r.Label = label.String
	r.FinishedAt = finished.Time
	r.HRUsIn = int(hrusIn.Int64)
	r.HRUsOut = int(hrusOut.Int64)
	r.AreaIn = areaIn.Float64
	r.AreaOut = areaOut.Float64
	r.HRUPath = hruPath.String
	r.SubBasinPath = sbPath.String
	r.HRUSnapshot = hruSnap.String
	r.SubBasinSnapshot = sbSnap.String
	r.ErrorMessage = errMsg.String
	return &r, nil
}

func (s *Store) GetRun(id string) (*models.Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetRuns returns the requested runs in the order given. Unknown IDs are an
// error so comparisons never silently drop a column.
func (s *Store) GetRuns(ids []string) ([]models.Run, error) {
	runs := make([]models.Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.GetRun(id)
		if err != nil {
			return nil, fmt.Errorf("get run %s: %w", id, err)
		}
		if run == nil {
			return nil, fmt.Errorf("run %s not found", id)
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(limit int) ([]models.Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// RunsForSnapshot returns the successful runs made against the same HRU
// table, oldest first.
func (s *Store) RunsForSnapshot(hash string) ([]models.Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs WHERE hru_snapshot = ? AND success = TRUE ORDER BY started_at, id`, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// encodeIDs stores an ID list as a JSON array. An empty list is NULL.
func encodeIDs(ids []int64) (sql.NullString, error) {
	if len(ids) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode ids: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeIDs(v sql.NullString) ([]int64, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(v.String), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
