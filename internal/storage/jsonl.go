package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/IshaanNene/finscrape/internal/types"
)

// JSONL store file names inside the data directory.
const (
	recordsFile = "records.jsonl"
	runsFile    = "runs.jsonl"
	acksFile    = "acks.jsonl"
	targetsFile = "targets.json"

	maxLineSize = 64 << 20
)

type ackEntry struct {
	ID      string    `json:"id"`
	AckedAt time.Time `json:"acked_at"`
}

// JSONLStore appends records, run logs and acks to newline-delimited JSON
// files and keeps an in-memory index rebuilt from them on open.
type JSONLStore struct {
	dir     string
	mem     *MemoryStore
	mu      sync.Mutex
	records *os.File
	runs    *os.File
	acks    *os.File
	logger  *slog.Logger
}

// NewJSONLStore opens or creates the store in dir.
func NewJSONLStore(dir string, logger *slog.Logger) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &JSONLStore{
		dir:    dir,
		mem:    NewMemoryStore(),
		logger: logger.With("component", "jsonl_store"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}

	var err error
	if s.records, err = openAppend(filepath.Join(dir, recordsFile)); err != nil {
		return nil, err
	}
	if s.runs, err = openAppend(filepath.Join(dir, runsFile)); err != nil {
		s.records.Close()
		return nil, err
	}
	if s.acks, err = openAppend(filepath.Join(dir, acksFile)); err != nil {
		s.records.Close()
		s.runs.Close()
		return nil, err
	}

	s.logger.Info("jsonl store opened", "path", dir, "records", len(s.mem.records))
	return s, nil
}

// openAppend opens path for appending, terminating a torn last line first
// so new entries start on their own line.
func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if size := info.Size(); size > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, size-1); err != nil {
			f.Close()
			return nil, err
		}
		if last[0] != '\n' {
			if _, err := f.Write([]byte{'\n'}); err != nil {
				f.Close()
				return nil, err
			}
		}
	}
	return f, nil
}

func (s *JSONLStore) load() error {
	data, err := os.ReadFile(filepath.Join(s.dir, targetsFile))
	switch {
	case err == nil:
		var targets []types.Target
		if err := json.Unmarshal(data, &targets); err != nil {
			return fmt.Errorf("decode %s: %w", targetsFile, err)
		}
		s.mem.syncTargets(targets)
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("read %s: %w", targetsFile, err)
	}

	err = s.replay(recordsFile, func(line []byte) error {
		var rec types.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		s.mem.insert(rec)
		return nil
	})
	if err != nil {
		return err
	}

	return s.replay(acksFile, func(line []byte) error {
		var a ackEntry
		if err := json.Unmarshal(line, &a); err != nil {
			return err
		}
		if err := s.mem.ack(a.ID); err != nil {
			s.logger.Warn("ack for unknown record", "id", a.ID)
		}
		return nil
	})
}

// replay feeds every line of name to fn. Undecodable lines, such as a torn
// final write, are logged and skipped.
func (s *JSONLStore) replay(name string, fn func([]byte) error) error {
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			s.logger.Warn("skipping malformed line", "file", name, "line", lineNo, "error", err)
		}
	}
	return scanner.Err()
}

func appendJSON(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

func (s *JSONLStore) Name() string { return "jsonl" }

func (s *JSONLStore) SyncTargets(ctx context.Context, targets []types.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mem.SyncTargets(ctx, targets); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.mem.Targets(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode targets: %w", err)
	}
	tmp := filepath.Join(s.dir, targetsFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write targets: %w", err)
	}
	return os.Rename(tmp, filepath.Join(s.dir, targetsFile))
}

func (s *JSONLStore) ActiveTargets(ctx context.Context) ([]types.Target, error) {
	return s.mem.ActiveTargets(ctx)
}

func (s *JSONLStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	return s.mem.Exists(ctx, fingerprint)
}

func (s *JSONLStore) Insert(ctx context.Context, rec *types.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exists, _ := s.mem.Exists(ctx, rec.Fingerprint); exists {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if err := appendJSON(s.records, rec); err != nil {
		return false, fmt.Errorf("append record: %w", err)
	}
	return s.mem.Insert(ctx, rec)
}

func (s *JSONLStore) StartRun(ctx context.Context, run *types.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mem.StartRun(ctx, run); err != nil {
		return err
	}
	return appendJSON(s.runs, run)
}

func (s *JSONLStore) FinishRun(ctx context.Context, run *types.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mem.FinishRun(ctx, run); err != nil {
		return err
	}
	return appendJSON(s.runs, run)
}

func (s *JSONLStore) Pending(ctx context.Context, limit int) ([]types.Record, error) {
	return s.mem.Pending(ctx, limit)
}

func (s *JSONLStore) Ack(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mem.Ack(ctx, id); err != nil {
		return err
	}
	return appendJSON(s.acks, ackEntry{ID: id, AckedAt: time.Now().UTC()})
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("jsonl store closing", "path", s.dir, "records", len(s.mem.Records()))
	return errors.Join(s.records.Close(), s.runs.Close(), s.acks.Close())
}
