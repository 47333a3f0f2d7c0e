package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// fileStore keeps all entries in one JSON file, loaded at startup and
// rewritten synchronously after every mutation.
type fileStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
	logger  *zap.Logger
}

// NewFileStore loads (or initializes) the JSON cache file at path.
func NewFileStore(path string, logger *zap.Logger) (Store, error) {
	s := &fileStore{
		path:    path,
		entries: make(map[string]Entry),
		logger:  logger,
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &s.entries); err != nil {
			logger.Warn("cache file unreadable, starting empty", zap.String("path", path), zap.Error(err))
			s.entries = make(map[string]Entry)
		} else {
			logger.Info("loaded cache", zap.String("path", path), zap.Int("entries", len(s.entries)))
		}
	case os.IsNotExist(err):
		// first run
	default:
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	return entry, ok, nil
}

func (s *fileStore) Set(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return s.flushLocked()
}

func (s *fileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	return s.flushLocked()
}

func (s *fileStore) flushLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
