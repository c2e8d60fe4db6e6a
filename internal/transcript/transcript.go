// Package transcript persists the question/answer turns of a tutoring
// session. Every backend is append-only and keyed by the session key.
package transcript

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrMissingFields is returned when a turn lacks its session key, question
// or answer.
var ErrMissingFields = errors.New("transcript: session key, user and assistant are required")

// Turn is one persisted exchange.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
	// TS is the server-side append time in Unix milliseconds.
	TS int64 `json:"ts"`
}

// Store loads and appends turns for a session key.
type Store interface {
	// Load returns all turns for key ordered by timestamp. A key with no
	// turns yields an empty slice and no error.
	Load(ctx context.Context, key string) ([]Turn, error)

	// Append timestamps and stores one turn.
	Append(ctx context.Context, key, user, assistant string) (Turn, error)
}

// SessionKey derives the storage key for a grade/subject/unit/topic
// combination.
func SessionKey(grade, subject, unit, topic string) string {
	return strings.Join([]string{grade, subject, unit, topic}, "|")
}

func validate(key, user, assistant string) error {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(user) == "" || strings.TrimSpace(assistant) == "" {
		return ErrMissingFields
	}
	return nil
}

// sortByTS orders turns by timestamp, keeping append order for ties.
func sortByTS(turns []Turn) {
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].TS < turns[j].TS })
}
