// Package cache is a small durable key to JSON-object store. One file per
// key, written atomically so a crash mid-write never clobbers the previous
// good state.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Store persists JSON objects under string keys.
type Store struct {
	rootDir string
	logger  *zap.Logger
}

// NewStore creates the cache directory if needed and returns a Store.
func NewStore(rootDir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, err
	}
	return &Store{rootDir: rootDir, logger: logger}, nil
}

// Read unmarshals the value stored under key into out. It returns false on a
// missing or corrupt entry; corruption is logged, never fatal.
func (s *Store) Read(key string, out any) bool {
	path := s.pathForKey(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Cache read failed", zap.String("path", path), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("Cache entry is not valid JSON, treating as miss",
			zap.String("path", path), zap.Error(err))
		return false
	}
	return true
}

// Write marshals v and stores it under key via a temp file and atomic rename.
func (s *Store) Write(key string, v any) error {
	path := s.pathForKey(key)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		s.logger.Error("Cache write failed", zap.String("path", path), zap.Error(err))
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		s.logger.Error("Cache rename failed", zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}

// ListKeys returns every stored key with the given prefix, sorted. Callers
// enumerate through this instead of reaching into the directory layout.
func (s *Store) ListKeys(prefix string) []string {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		s.logger.Warn("Cache listing failed", zap.String("dir", s.rootDir), zap.Error(err))
		return nil
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		key := strings.TrimSuffix(name, ".json")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) pathForKey(key string) string {
	// A key must always map to a single file inside the cache directory.
	safe := strings.ReplaceAll(key, string(os.PathSeparator), "_")
	return filepath.Join(s.rootDir, safe+".json")
}
