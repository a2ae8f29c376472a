package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/logger"
)

// FileStore is an append-only JSONL audit log. Every append is synced to
// disk before returning, so an acknowledged entry survives a crash.
type FileStore struct {
	path   string
	file   *os.File
	logger *logger.Logger
	mu     sync.Mutex
}

// NewFileStore opens (or creates) the audit log file for appending.
func NewFileStore(path string, log *logger.Logger) (*FileStore, error) {
	if path == "" {
		path = "audit.jsonl"
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("audit: create directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}

	log.Info("Audit file store opened", zap.String("path", path))

	return &FileStore{
		path:   path,
		file:   file,
		logger: log,
	}, nil
}

// Append writes one entry as a JSON line and syncs to disk.
func (s *FileStore) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}

	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}

	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}

	return nil
}

// Query scans the log file and returns entries matching the filter, oldest
// first. A line that fails to parse is skipped with a warning rather than
// aborting the scan; the log is append-only, so a bad line cannot be fixed
// in place.
func (s *FileStore) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open for query: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			s.logger.Warn("Skipping malformed audit line",
				zap.Int("line", lineNo),
				zap.Error(err))
			continue
		}
		if !matches(entry, filter) {
			continue
		}
		entries = append(entries, entry)
		if filter.Limit > 0 && len(entries) >= filter.Limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan log: %w", err)
	}

	return entries, nil
}

// Close flushes and closes the underlying file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func matches(entry Entry, filter Filter) bool {
	if filter.ActorHash != "" && entry.Actor.ActorHash != filter.ActorHash {
		return false
	}
	if filter.Role != "" && entry.Actor.Role != filter.Role {
		return false
	}
	if filter.CloudRouted != nil && entry.Metadata.CloudRouted != *filter.CloudRouted {
		return false
	}
	if !filter.Since.IsZero() && entry.Timestamp.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && entry.Timestamp.After(filter.Until) {
		return false
	}
	return true
}
