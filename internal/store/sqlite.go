package store

import (
	"database/sql"
	"fmt"

	"github.com/lox/hruclean/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveResult stores the surviving HRUs, the audit events and the sub-basin
// summary of a run in one transaction.
func (s *Store) SaveResult(runID string, hrus []models.HRU, events []models.Event, summary []models.SubBasinSummary) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	hruStmt, err := tx.Prepare(`INSERT INTO run_hrus (run_id, hru_id, sbid, land_use, area) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare run_hrus: %w", err)
	}
	defer hruStmt.Close()
	for _, h := range hrus {
		if _, err := hruStmt.Exec(runID, h.ID, h.SBID, h.LandUse, h.Area); err != nil {
			return fmt.Errorf("insert hru %d: %w", h.ID, err)
		}
	}

	eventStmt, err := tx.Prepare(`INSERT INTO run_events (run_id, kind, hru_id, sbid, target_id, area, message) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare run_events: %w", err)
	}
	defer eventStmt.Close()
	for _, e := range events {
		var target sql.NullInt64
		if e.Kind == models.EventMerge {
			target = sql.NullInt64{Int64: e.TargetID, Valid: true}
		}
		if _, err := eventStmt.Exec(runID, string(e.Kind), e.HRUID, e.SBID, target, e.Area, e.Message); err != nil {
			return fmt.Errorf("insert event for hru %d: %w", e.HRUID, err)
		}
	}

	for _, sb := range summary {
		if _, err := tx.Exec(`
			INSERT INTO run_subbasins (run_id, sbid, hrus_in, hrus_out, area_in, area_out, threshold, merged, dropped, unmerged)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, sb.SBID, sb.HRUsIn, sb.HRUsOut, sb.AreaIn, sb.AreaOut, sb.Threshold, sb.Merged, sb.Dropped, sb.Unmerged); err != nil {
			return fmt.Errorf("insert summary for sub-basin %d: %w", sb.SBID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetRunHRUs(runID string) ([]models.HRU, error) {
	rows, err := s.db.Query(`SELECT hru_id, sbid, land_use, area FROM run_hrus WHERE run_id = ? ORDER BY hru_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hrus []models.HRU
	for rows.Next() {
		var h models.HRU
		var landUse sql.NullString
		if err := rows.Scan(&h.ID, &h.SBID, &landUse, &h.Area); err != nil {
			return nil, err
		}
		h.LandUse = landUse.String
		hrus = append(hrus, h)
	}
	return hrus, rows.Err()
}

// GetRunEvents returns the events of a run in the order they happened. An
// empty kind returns every event.
func (s *Store) GetRunEvents(runID string, kind models.EventKind) ([]models.Event, error) {
	rows, err := s.db.Query(`
		SELECT kind, hru_id, sbid, target_id, area, message
		FROM run_events
		WHERE run_id = ? AND (? = '' OR kind = ?)
		ORDER BY id
	`, runID, string(kind), string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		var k string
		var target sql.NullInt64
		var msg sql.NullString
		if err := rows.Scan(&k, &e.HRUID, &e.SBID, &target, &e.Area, &msg); err != nil {
			return nil, err
		}
		e.Kind = models.EventKind(k)
		e.TargetID = target.Int64
		e.Message = msg.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) GetRunSummary(runID string) ([]models.SubBasinSummary, error) {
	rows, err := s.db.Query(`
		SELECT sbid, hrus_in, hrus_out, area_in, area_out, threshold, merged, dropped, unmerged
		FROM run_subbasins
		WHERE run_id = ?
		ORDER BY sbid
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summary []models.SubBasinSummary
	for rows.Next() {
		var sb models.SubBasinSummary
		if err := rows.Scan(&sb.SBID, &sb.HRUsIn, &sb.HRUsOut, &sb.AreaIn, &sb.AreaOut, &sb.Threshold, &sb.Merged, &sb.Dropped, &sb.Unmerged); err != nil {
			return nil, err
		}
		summary = append(summary, sb)
	}
	return summary, rows.Err()
}

// DeleteRun removes a run and everything recorded for it.
func (s *Store) DeleteRun(runID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"run_hrus", "run_events", "run_subbasins"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, runID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return tx.Commit()
}
