package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Snapshot is a stored copy of an input table, keyed by the SHA-256 of its
// uncompressed bytes.
type Snapshot struct {
	Hash       string
	Kind       string // "hru", "subbasin"
	SourcePath string
	StoredAt   time.Time
	SizeBytes  int64
}

func SnapshotHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// StoreSnapshot compresses and stores an input table. Storing the same bytes
// twice keeps the first copy. It returns the content hash either way.
func (s *Store) StoreSnapshot(kind, sourcePath string, payload []byte) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return "", fmt.Errorf("compress snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("close gzip: %w", err)
	}

	hash := SnapshotHash(payload)
	_, err := s.db.Exec(`
		INSERT INTO input_snapshots (hash, kind, source_path, stored_at, size_bytes, payload_compressed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hash, kind, sourcePath, time.Now().UTC(), len(payload), buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}
	return hash, nil
}

// GetSnapshot returns the decompressed table, or nil if the hash is unknown.
func (s *Store) GetSnapshot(hash string) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT payload_compressed FROM input_snapshots WHERE hash = ?`, hash).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

func (s *Store) GetSnapshotInfo(hash string) (*Snapshot, error) {
	var snap Snapshot
	var path sql.NullString
	err := s.db.QueryRow(`
		SELECT hash, kind, source_path, stored_at, size_bytes
		FROM input_snapshots WHERE hash = ?
	`, hash).Scan(&snap.Hash, &snap.Kind, &path, &snap.StoredAt, &snap.SizeBytes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.SourcePath = path.String
	return &snap, nil
}
