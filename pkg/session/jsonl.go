package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tunedesk/tunedesk/internal/observability"
	"github.com/tunedesk/tunedesk/internal/tracing"
)

// compactEvery is how many appends a thread file accumulates before
// Put rewrites it down to a single snapshot.
const compactEvery = 16

// JSONLStore persists thread state as one append-only JSONL file per
// thread. Each Put appends a full snapshot; Get replays the file and
// keeps the last valid line, so a torn write loses at most one turn.
type JSONLStore struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	putCounts  map[string]int
	locksMu    sync.Mutex
	logger     zerolog.Logger
}

// JSONLConfig holds JSONL store configuration
type JSONLConfig struct {
	// Dir holds the thread files. Empty means ~/.tunedesk/threads.
	Dir    string
	Logger zerolog.Logger
}

// NewJSONLStore creates a new JSONLStore
func NewJSONLStore(cfg JSONLConfig) (*JSONLStore, error) {
	observability.EnsureRegistered()

	dir := cfg.Dir
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".tunedesk", "threads")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create threads directory: %w", err)
	}

	s := &JSONLStore{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
		putCounts:  make(map[string]int),
		logger:     cfg.Logger,
	}

	s.logger.Info().Str("dir", dir).Msg("Thread store initialized")
	s.updateActiveThreadsMetric()

	return s, nil
}

// Thread ids become file names, so path tricks are rejected outright.
func validateThreadID(threadID string) error {
	if threadID == "" {
		return fmt.Errorf("thread id cannot be empty")
	}
	if strings.Contains(threadID, "..") {
		return fmt.Errorf("thread id cannot contain '..'")
	}
	if strings.ContainsAny(threadID, "/\\") {
		return fmt.Errorf("thread id cannot contain path separators")
	}
	if strings.Contains(threadID, "\x00") {
		return fmt.Errorf("thread id cannot contain null bytes")
	}
	return nil
}

func (s *JSONLStore) threadPath(threadID string) string {
	return filepath.Join(s.dir, threadID+".jsonl")
}

func (s *JSONLStore) writeLock(threadID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, ok := s.writeLocks[threadID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.writeLocks[threadID] = lock
	return lock
}

func (s *JSONLStore) updateActiveThreadsMetric() {
	ids, err := s.List(context.Background())
	if err != nil {
		return
	}
	observability.SetActiveThreads(len(ids))
}

// Get returns the last saved snapshot for a thread, or a fresh empty
// state when no file exists. Corrupted lines are skipped.
func (s *JSONLStore) Get(ctx context.Context, threadID string) (*State, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"tunedesk.session",
		"thread.load",
		attribute.String("thread_id", threadID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	if err := validateThreadID(threadID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	path := s.threadPath(threadID)
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return NewState(threadID), nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to open thread file: %w", err)
	}
	defer file.Close()

	var last *State
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var snapshot State
		if err := json.Unmarshal([]byte(line), &snapshot); err != nil {
			logger.Warn().
				Str("thread_id", threadID).
				Int("line", lineNum).
				Err(err).
				Msg("Failed to parse snapshot, skipping")
			continue
		}
		if snapshot.ThreadID != threadID {
			logger.Warn().
				Str("thread_id", threadID).
				Int("line", lineNum).
				Msg("Snapshot for wrong thread, skipping")
			continue
		}
		last = &snapshot
	}

	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read thread file: %w", err)
	}

	if last == nil {
		return NewState(threadID), nil
	}

	logger.Debug().
		Str("thread_id", threadID).
		Int("messages", len(last.Messages)).
		Msg("Thread loaded")

	return last, nil
}

// Put appends a snapshot of the state to its thread file.
func (s *JSONLStore) Put(ctx context.Context, state *State) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"tunedesk.session",
		"thread.save",
		attribute.String("thread_id", state.ThreadID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	if err := validateThreadID(state.ThreadID); err != nil {
		span.RecordError(err)
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := s.appendSnapshot(state.ThreadID, data); err != nil {
		span.RecordError(err)
		return err
	}

	s.updateActiveThreadsMetric()
	logger.Debug().
		Str("thread_id", state.ThreadID).
		Int("messages", len(state.Messages)).
		Msg("Thread saved")

	// Compact takes the same per-thread lock, so it must run after
	// appendSnapshot has released it.
	if s.bumpPutCount(state.ThreadID) {
		if err := s.Compact(ctx, state.ThreadID); err != nil {
			logger.Warn().
				Str("thread_id", state.ThreadID).
				Err(err).
				Msg("Failed to compact thread file")
		}
	}

	return nil
}

func (s *JSONLStore) appendSnapshot(threadID string, data []byte) error {
	lock := s.writeLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(s.threadPath(threadID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open thread file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync thread file: %w", err)
	}
	return nil
}

// bumpPutCount reports whether the thread has accumulated enough
// appends to warrant rewriting its file.
func (s *JSONLStore) bumpPutCount(threadID string) bool {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	s.putCounts[threadID]++
	if s.putCounts[threadID] < compactEvery {
		return false
	}
	s.putCounts[threadID] = 0
	return true
}

// List returns the known thread ids.
func (s *JSONLStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read threads directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".jsonl"))
	}
	return ids, nil
}

// Delete removes a thread file.
func (s *JSONLStore) Delete(ctx context.Context, threadID string) error {
	if err := validateThreadID(threadID); err != nil {
		return err
	}

	lock := s.writeLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.threadPath(threadID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete thread file: %w", err)
	}

	s.locksMu.Lock()
	delete(s.writeLocks, threadID)
	delete(s.putCounts, threadID)
	s.locksMu.Unlock()

	s.updateActiveThreadsMetric()
	s.logger.Info().Str("thread_id", threadID).Msg("Thread deleted")

	return nil
}

// Compact rewrites a thread file down to its latest snapshot. Put
// triggers it every compactEvery appends; long-lived stores may also
// call it directly, for example from a maintenance sweep.
func (s *JSONLStore) Compact(ctx context.Context, threadID string) error {
	state, err := s.Get(ctx, threadID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	lock := s.writeLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	path := s.threadPath(threadID)
	tempPath := path + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}
	file.Close()

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace thread file: %w", err)
	}

	s.logger.Info().Str("thread_id", threadID).Msg("Thread compacted")
	return nil
}
