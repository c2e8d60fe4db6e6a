package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// QuizResultRepo stores finished quiz scores.
type QuizResultRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

// Save appends a result.
func (r *QuizResultRepo) Save(ctx context.Context, rec QuizResultRecord) error {
	if rec.Total <= 0 || rec.Score < 0 || rec.Score > rec.Total {
		return fmt.Errorf("invalid quiz score %d/%d", rec.Score, rec.Total)
	}
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO quiz_results (sequence, session_key, topic, score, total, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		seqNum, rec.SessionKey, rec.Topic, rec.Score, rec.Total, ts.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save quiz result: %w", err)
	}
	return nil
}

// Latest returns the most recent result, or nil if none exist.
func (r *QuizResultRepo) Latest(ctx context.Context) (*QuizResultRecord, error) {
	recs, err := r.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// List returns up to limit results, newest first. A limit of 0 returns all.
func (r *QuizResultRepo) List(ctx context.Context, limit int) ([]QuizResultRecord, error) {
	q := `SELECT id, session_key, topic, score, total, created_at FROM quiz_results ORDER BY sequence DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query quiz results: %w", err)
	}
	defer rows.Close()

	var out []QuizResultRecord
	for rows.Next() {
		var (
			rec       QuizResultRecord
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionKey, &rec.Topic, &rec.Score, &rec.Total, &createdAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				break
			}
			return nil, fmt.Errorf("scan quiz result: %w", err)
		}
		rec.Timestamp = time.UnixMilli(createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
