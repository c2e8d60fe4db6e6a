package store

import (
	"context"
	"database/sql"
	"fmt"
)

// TranscriptRepo stores question/answer turns per session key.
type TranscriptRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

// AppendTurn appends one turn. Turns are never updated.
func (r *TranscriptRepo) AppendTurn(ctx context.Context, turn TranscriptTurn) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO transcript_turns (sequence, session_key, user_text, assistant, ts) VALUES (?, ?, ?, ?, ?)`,
		seqNum, turn.SessionKey, turn.User, turn.Assistant, turn.TS,
	)
	if err != nil {
		return fmt.Errorf("save transcript turn: %w", err)
	}
	return nil
}

// Turns returns every turn for sessionKey in append order.
func (r *TranscriptRepo) Turns(ctx context.Context, sessionKey string) ([]TranscriptTurn, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_key, user_text, assistant, ts FROM transcript_turns WHERE session_key = ? ORDER BY sequence`,
		sessionKey,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript turns: %w", err)
	}
	defer rows.Close()

	var out []TranscriptTurn
	for rows.Next() {
		var t TranscriptTurn
		if err := rows.Scan(&t.SessionKey, &t.User, &t.Assistant, &t.TS); err != nil {
			return nil, fmt.Errorf("scan transcript turn: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SessionKeys lists every session with at least one turn, most recent first.
func (r *TranscriptRepo) SessionKeys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_key FROM transcript_turns GROUP BY session_key ORDER BY MAX(sequence) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query session keys: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan session key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
