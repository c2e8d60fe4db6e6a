package llm

import "context"

type contextKey int

const (
	purposeKey contextKey = iota
	sessionKey
)

// Purposes recorded with every request event.
const (
	PurposeAnswer = "answer"
	PurposeQuiz   = "quiz"
)

// WithPurpose labels requests made with ctx, e.g. PurposeAnswer.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom returns the label set by WithPurpose, or "unknown".
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// WithSession ties requests made with ctx to a tutoring session key so
// request logs can be grouped by session.
func WithSession(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKey, key)
}

// SessionFrom returns the key set by WithSession.
func SessionFrom(ctx context.Context) string {
	v, _ := ctx.Value(sessionKey).(string)
	return v
}
