package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var testTarget = types.Target{ID: "bbc-business", Name: "BBC Business", URL: "https://www.bbc.com/business", Active: true}

func TestFingerprintIsRawSHA256(t *testing.T) {
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Fingerprint("ab", "c"); got != want {
		t.Errorf("Fingerprint = %s, want %s", got, want)
	}
	if Fingerprint("Title", "body") == Fingerprint("Title", "body ") {
		t.Error("trailing whitespace should change the fingerprint")
	}
	if Fingerprint("Title", "body") == Fingerprint("title", "body") {
		t.Error("case should change the fingerprint")
	}
}

func TestGateTryStoreTwice(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			defer store.Close()
			gate := NewGate(store, testLogger)

			ok, err := gate.TryStore(ctx, "Fed holds", "Rates unchanged.", "https://example.com/a", testTarget, types.Metadata{FinalScore: 7})
			if err != nil || !ok {
				t.Fatalf("first TryStore = %v, %v; want true, nil", ok, err)
			}
			ok, err = gate.TryStore(ctx, "Fed holds", "Rates unchanged.", "https://example.com/b", testTarget, types.Metadata{})
			if err != nil || ok {
				t.Fatalf("second TryStore = %v, %v; want false, nil", ok, err)
			}

			pending, err := store.Pending(ctx, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(pending) != 1 {
				t.Fatalf("records = %d, want 1", len(pending))
			}
			rec := pending[0]
			if rec.URL != "https://example.com/a" || rec.TargetID != testTarget.ID || rec.Metadata.FinalScore != 7 {
				t.Errorf("unexpected record %+v", rec)
			}
			if rec.Fingerprint != Fingerprint("Fed holds", "Rates unchanged.") {
				t.Errorf("fingerprint = %s", rec.Fingerprint)
			}
			if rec.Metadata.ProcessedAt.IsZero() || rec.ScrapedAt.IsZero() {
				t.Error("timestamps not set")
			}
		})
	}
}

func TestGateConcurrentInsertStoresOnce(t *testing.T) {
	store := NewMemoryStore()
	gate := NewGate(store, testLogger)

	var wg sync.WaitGroup
	var stored atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := gate.TryStore(context.Background(), "Same", "Same body", "https://example.com/x", testTarget, types.Metadata{})
			if err != nil {
				t.Error(err)
			}
			if ok {
				stored.Add(1)
			}
		}()
	}
	wg.Wait()

	if stored.Load() != 1 {
		t.Errorf("stored %d times, want 1", stored.Load())
	}
	if n := len(store.Records()); n != 1 {
		t.Errorf("records = %d, want 1", n)
	}
}

type failingStore struct{ *MemoryStore }

func (f failingStore) Insert(context.Context, *types.Record) (bool, error) {
	return false, errors.New("disk full")
}

func TestGateWrapsStorageErrors(t *testing.T) {
	gate := NewGate(failingStore{NewMemoryStore()}, testLogger)
	_, err := gate.TryStore(context.Background(), "t", "c", "https://example.com", testTarget, types.Metadata{})

	var se *types.StorageError
	if !errors.As(err, &se) || se.Op != "insert" {
		t.Fatalf("err = %v, want StorageError on insert", err)
	}
}

func TestPendingAndAck(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			defer store.Close()
			gate := NewGate(store, testLogger)

			for _, title := range []string{"one", "two", "three"} {
				if _, err := gate.TryStore(ctx, title, "body "+title, "https://example.com/"+title, testTarget, types.Metadata{}); err != nil {
					t.Fatal(err)
				}
			}

			limited, err := store.Pending(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(limited) != 2 || limited[0].Title != "one" {
				t.Fatalf("Pending(2) = %d records starting %q", len(limited), limited[0].Title)
			}

			if err := store.Ack(ctx, limited[0].ID); err != nil {
				t.Fatal(err)
			}
			rest, _ := store.Pending(ctx, 0)
			if len(rest) != 2 || rest[0].Title != "two" {
				t.Errorf("after ack: %d pending starting %q", len(rest), rest[0].Title)
			}

			if err := store.Ack(ctx, "missing"); !errors.Is(err, types.ErrNotFound) {
				t.Errorf("Ack(missing) = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSyncTargetsUpserts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	inactive := types.Target{ID: "npr", Name: "NPR", URL: "https://www.npr.org/sections/economy/"}
	if err := store.SyncTargets(ctx, []types.Target{testTarget, inactive}); err != nil {
		t.Fatal(err)
	}
	active, _ := store.ActiveTargets(ctx)
	if len(active) != 1 || active[0].ID != testTarget.ID {
		t.Fatalf("active = %+v", active)
	}

	inactive.Active = true
	inactive.URL = "https://www.npr.org/sections/business/"
	if err := store.SyncTargets(ctx, []types.Target{inactive}); err != nil {
		t.Fatal(err)
	}
	active, _ = store.ActiveTargets(ctx)
	if len(active) != 2 || active[1].URL != inactive.URL {
		t.Fatalf("after update active = %+v", active)
	}
	if n := len(store.Targets()); n != 2 {
		t.Errorf("targets = %d, want 2", n)
	}
}

func TestJSONLStoreReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")

	store, err := NewJSONLStore(dir, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SyncTargets(ctx, []types.Target{testTarget}); err != nil {
		t.Fatal(err)
	}
	gate := NewGate(store, testLogger)
	if ok, err := gate.TryStore(ctx, "Kept", "Across restarts", "https://example.com/k", testTarget, types.Metadata{}); !ok || err != nil {
		t.Fatalf("TryStore = %v, %v", ok, err)
	}
	if ok, _ := gate.TryStore(ctx, "Acked", "Consumed already", "https://example.com/a", testTarget, types.Metadata{}); !ok {
		t.Fatal("second article not stored")
	}
	pending, _ := store.Pending(ctx, 0)
	if err := store.Ack(ctx, pending[1].ID); err != nil {
		t.Fatal(err)
	}
	run := &types.RunLog{TargetID: testTarget.ID, Status: types.StatusRunning}
	if err := store.StartRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	run.Status = types.StatusSuccess
	if err := store.FinishRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	// A torn final write must not prevent reopening.
	f, err := os.OpenFile(filepath.Join(dir, recordsFile), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"id":"torn","title":`)
	f.Close()

	reopened, err := NewJSONLStore(dir, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	exists, _ := reopened.Exists(ctx, Fingerprint("Kept", "Across restarts"))
	if !exists {
		t.Error("fingerprint lost after reopen")
	}
	if ok, _ := NewGate(reopened, testLogger).TryStore(ctx, "Kept", "Across restarts", "https://example.com/k", testTarget, types.Metadata{}); ok {
		t.Error("duplicate stored after reopen")
	}
	pending, _ = reopened.Pending(ctx, 0)
	if len(pending) != 1 || pending[0].Title != "Kept" {
		t.Errorf("pending after reopen = %+v", pending)
	}
	active, _ := reopened.ActiveTargets(ctx)
	if len(active) != 1 || active[0].ID != testTarget.ID {
		t.Errorf("targets after reopen = %+v", active)
	}

	runs, err := os.ReadFile(filepath.Join(dir, runsFile))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(runs), "\n"); n != 2 {
		t.Errorf("run log lines = %d, want 2", n)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, config.StorageConfig{Type: "memory"}, testLogger)
	if err != nil || s.Name() != "memory" {
		t.Fatalf("memory: %v, %v", s, err)
	}
	s, err = New(ctx, config.StorageConfig{Type: "jsonl", Path: t.TempDir()}, testLogger)
	if err != nil || s.Name() != "jsonl" {
		t.Fatalf("jsonl: %v, %v", s, err)
	}
	s.Close()
	if _, err := New(ctx, config.StorageConfig{Type: "sqlite"}, testLogger); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func backends(t *testing.T) map[string]func(*testing.T) Store {
	return map[string]func(*testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"jsonl": func(t *testing.T) Store {
			s, err := NewJSONLStore(t.TempDir(), testLogger)
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
	}
}

func BenchmarkFingerprint(b *testing.B) {
	content := strings.Repeat("Markets closed higher on Friday. ", 200)
	b.SetBytes(int64(len(content)))
	for i := 0; i < b.N; i++ {
		Fingerprint("Markets close higher", content)
	}
}
