package transcript

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/vidyadost/vidyadost/internal/logger"
)

// FileStore keeps one JSON array file per session key in Dir.
type FileStore struct {
	dir string
	log *logger.Logger
	now func() time.Time

	mu sync.Mutex
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, log *logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &FileStore{dir: dir, log: logger.OrNop(log), now: time.Now}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

// Load treats a missing or unreadable file as an empty history.
func (s *FileStore) Load(_ context.Context, key string) ([]Turn, error) {
	if key == "" {
		return nil, ErrMissingFields
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, err := s.read(key)
	if err != nil {
		s.log.Warn("history file unreadable", "session_key", key, "error", err)
		return []Turn{}, nil
	}
	sortByTS(turns)
	return turns, nil
}

func (s *FileStore) Append(_ context.Context, key, user, assistant string) (Turn, error) {
	if err := validate(key, user, assistant); err != nil {
		return Turn{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, err := s.read(key)
	if err != nil {
		s.log.Warn("history file unreadable, starting fresh", "session_key", key, "error", err)
		turns = nil
	}
	turn := Turn{User: user, Assistant: assistant, TS: s.now().UnixMilli()}
	turns = append(turns, turn)

	raw, err := sonic.ConfigStd.MarshalIndent(turns, "", "  ")
	if err != nil {
		return Turn{}, fmt.Errorf("encode history: %w", err)
	}
	if err := writeFileAtomic(s.path(key), raw); err != nil {
		return Turn{}, fmt.Errorf("write history: %w", err)
	}
	s.log.Debug("history saved", "session_key", key, "total", len(turns))
	return turn, nil
}

func (s *FileStore) read(key string) ([]Turn, error) {
	raw, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return []Turn{}, nil
	}
	if err != nil {
		return nil, err
	}
	var turns []Turn
	if err := sonic.Unmarshal(raw, &turns); err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".history-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
