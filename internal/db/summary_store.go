package db

import (
	"fmt"
	"time"
)

// SessionSummary is one persisted row of session state: the four on-demand
// values the core supplies (timestamp, in, out, occupancy) plus the session
// identity and peak track count.
type SessionSummary struct {
	SummaryID  int64     `json:"summary_id"`
	SessionID  string    `json:"session_id"`
	RecordedAt time.Time `json:"recorded_at"`
	CountIn    int       `json:"count_in"`
	CountOut   int       `json:"count_out"`
	Occupancy  int       `json:"current_occupancy"`
	PeakTracks int       `json:"peak_tracks"`
}

// RecordSummary inserts a summary row and fills in its assigned ID.
func (db *DB) RecordSummary(s *SessionSummary) error {
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now().UTC()
	}

	result, err := db.Exec(
		`INSERT INTO session_summaries (
			session_id, recorded_at, count_in, count_out, occupancy, peak_tracks
		) VALUES (?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.RecordedAt.UTC().Format(time.RFC3339), s.CountIn, s.CountOut, s.Occupancy, s.PeakTracks,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session summary: %w", err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		s.SummaryID = id
	}
	return nil
}

// Summaries retrieves the most recent summary rows, optionally filtered by
// session. A limit <= 0 defaults to 100.
func (db *DB) Summaries(sessionID string, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT summary_id, session_id, recorded_at, count_in, count_out, occupancy, peak_tracks
		FROM session_summaries`
	args := []interface{}{}

	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY recorded_at DESC, summary_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query session summaries: %w", err)
	}
	defer rows.Close()

	var summaries []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var recordedAt string
		if err := rows.Scan(&s.SummaryID, &s.SessionID, &recordedAt, &s.CountIn, &s.CountOut, &s.Occupancy, &s.PeakTracks); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339, recordedAt); err == nil {
			s.RecordedAt = ts
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// LatestSummary returns the newest row for a session, or nil if the session
// has no rows yet.
func (db *DB) LatestSummary(sessionID string) (*SessionSummary, error) {
	summaries, err := db.Summaries(sessionID, 1)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, nil
	}
	return &summaries[0], nil
}
