package transcript

import (
	"context"
	"time"

	"github.com/vidyadost/vidyadost/internal/store"
)

// SQLStore keeps turns in the application database.
type SQLStore struct {
	repo *store.TranscriptRepo
	now  func() time.Time
}

// NewSQLStore wraps the store's transcript repository.
func NewSQLStore(repo *store.TranscriptRepo) *SQLStore {
	return &SQLStore{repo: repo, now: time.Now}
}

func (s *SQLStore) Load(ctx context.Context, key string) ([]Turn, error) {
	if key == "" {
		return nil, ErrMissingFields
	}
	rows, err := s.repo.Turns(ctx, key)
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, 0, len(rows))
	for _, r := range rows {
		turns = append(turns, Turn{User: r.User, Assistant: r.Assistant, TS: r.TS})
	}
	sortByTS(turns)
	return turns, nil
}

func (s *SQLStore) Append(ctx context.Context, key, user, assistant string) (Turn, error) {
	if err := validate(key, user, assistant); err != nil {
		return Turn{}, err
	}
	turn := Turn{User: user, Assistant: assistant, TS: s.now().UnixMilli()}
	err := s.repo.AppendTurn(ctx, store.TranscriptTurn{
		SessionKey: key,
		User:       user,
		Assistant:  assistant,
		TS:         turn.TS,
	})
	if err != nil {
		return Turn{}, err
	}
	return turn, nil
}
