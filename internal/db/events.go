package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/dataq/internal/occupancy"
	"github.com/banshee-data/dataq/internal/pipeline"
)

// RecordAnomaly stores an anomaly signal transition.
func (db *DB) RecordAnomaly(sig pipeline.AnomalySignal) error {
	_, err := db.Exec(
		`INSERT INTO anomalies (name, state, reason, track_id, class, ts_unix_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sig.Name, sig.State, sig.Reason, sig.TrackID, sig.Class, sig.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert anomaly: %w", err)
	}
	return nil
}

// ListAnomalies returns up to limit transitions, newest first.
func (db *DB) ListAnomalies(limit int) ([]pipeline.AnomalySignal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT name, state, reason, track_id, class, ts_unix_ms FROM anomalies
		 ORDER BY ts_unix_ms DESC, anomaly_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pipeline.AnomalySignal
	for rows.Next() {
		var sig pipeline.AnomalySignal
		if err := rows.Scan(&sig.Name, &sig.State, &sig.Reason, &sig.TrackID, &sig.Class, &sig.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// RecordOccupancy stores a published occupancy snapshot.
func (db *DB) RecordOccupancy(snap occupancy.Snapshot) error {
	counts, err := json.Marshal(snap.Counts)
	if err != nil {
		return fmt.Errorf("failed to encode occupancy: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO occupancy (ts_unix_ms, counts_json) VALUES (?, ?)`,
		snap.Timestamp, string(counts),
	)
	if err != nil {
		return fmt.Errorf("failed to insert occupancy: %w", err)
	}
	return nil
}

// RecentOccupancy returns snapshots recorded at or after since, oldest
// first, capped at limit.
func (db *DB) RecentOccupancy(since time.Time, limit int) ([]occupancy.Snapshot, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.Query(
		`SELECT ts_unix_ms, counts_json FROM (
			SELECT occupancy_id, ts_unix_ms, counts_json FROM occupancy
			WHERE ts_unix_ms >= ?
			ORDER BY ts_unix_ms DESC, occupancy_id DESC LIMIT ?
		 ) ORDER BY ts_unix_ms ASC, occupancy_id ASC`,
		since.UnixMilli(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []occupancy.Snapshot
	for rows.Next() {
		var (
			snap   occupancy.Snapshot
			counts string
		)
		if err := rows.Scan(&snap.Timestamp, &counts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(counts), &snap.Counts); err != nil {
			return nil, fmt.Errorf("failed to decode occupancy: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
