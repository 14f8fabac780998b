package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/dataq/internal/scene"
)

// PathRecord is a stored path with its row id.
type PathRecord struct {
	ID   string     `json:"id"`
	Path scene.Path `json:"path"`
}

// RecordPath stores a finalized path and returns its generated id.
func (db *DB) RecordPath(p scene.Path) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode path: %w", err)
	}

	id := uuid.NewString()
	_, err = db.Exec(
		`INSERT INTO paths (
			path_id, track_id, class, confidence, birth_unix_ms, age_s, distance,
			dwell_s, directions, max_speed, birth_x, birth_y, dx, dy, anomaly,
			stitched, path_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.ID, p.Class, p.Confidence, p.Timestamp, p.Age, p.Distance,
		p.Dwell, p.Directions, p.MaxSpeed, p.BX, p.BY, p.DX, p.DY, p.Anomaly,
		p.Stitched, string(body),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert path: %w", err)
	}
	return id, nil
}

// ListPaths returns up to limit paths, newest birth first. An empty class
// matches every class.
func (db *DB) ListPaths(class string, limit int) ([]PathRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT path_id, path_json FROM paths
		 WHERE (? = '' OR class = ?)
		 ORDER BY birth_unix_ms DESC LIMIT ?`,
		class, class, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PathRecord
	for rows.Next() {
		var (
			rec  PathRecord
			body string
		)
		if err := rows.Scan(&rec.ID, &body); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(body), &rec.Path); err != nil {
			return nil, fmt.Errorf("failed to decode path %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetPath returns a stored path by id.
func (db *DB) GetPath(id string) (PathRecord, error) {
	var body string
	err := db.QueryRow(`SELECT path_json FROM paths WHERE path_id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return PathRecord{}, ErrNotFound
	}
	if err != nil {
		return PathRecord{}, err
	}

	rec := PathRecord{ID: id}
	if err := json.Unmarshal([]byte(body), &rec.Path); err != nil {
		return PathRecord{}, fmt.Errorf("failed to decode path %s: %w", id, err)
	}
	return rec, nil
}
