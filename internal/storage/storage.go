package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/types"
)

// Store is the interface for all persistence backends.
type Store interface {
	// SyncTargets upserts the configured targets by ID.
	SyncTargets(ctx context.Context, targets []types.Target) error

	// ActiveTargets returns the targets flagged active.
	ActiveTargets(ctx context.Context) ([]types.Target, error)

	// Exists reports whether a record with the fingerprint is stored.
	Exists(ctx context.Context, fingerprint string) (bool, error)

	// Insert stores rec unless its fingerprint is already present. It
	// reports whether the record was written.
	Insert(ctx context.Context, rec *types.Record) (bool, error)

	// StartRun records the start of a target run.
	StartRun(ctx context.Context, run *types.RunLog) error

	// FinishRun records the final state of a target run.
	FinishRun(ctx context.Context, run *types.RunLog) error

	// Pending returns unconsumed records, oldest first. A limit of zero
	// returns all of them.
	Pending(ctx context.Context, limit int) ([]types.Record, error)

	// Ack marks a record as consumed.
	Ack(ctx context.Context, id string) error

	// Close releases resources held by the backend.
	Close() error

	// Name returns the backend identifier.
	Name() string
}

// New opens the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "jsonl":
		return NewJSONLStore(cfg.Path, logger)
	case "mongo":
		return NewMongoStore(ctx, cfg.URI, cfg.Database, logger)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// Fingerprint identifies an article by the SHA-256 of its raw title and
// content bytes. No normalization is applied, so whitespace or casing
// differences produce distinct fingerprints.
func Fingerprint(title, content string) string {
	sum := sha256.Sum256([]byte(title + content))
	return hex.EncodeToString(sum[:])
}

// NewID returns a fresh record or run identifier.
func NewID() string { return uuid.NewString() }

// Gate is the dedup and persistence step for accepted articles.
type Gate struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewGate wraps store.
func NewGate(store Store, logger *slog.Logger) *Gate {
	return &Gate{
		store:  store,
		now:    time.Now,
		logger: logger.With("component", "gate"),
	}
}

// TryStore persists the article unless an identical one exists. It returns
// false without error when the article is a duplicate, including when a
// concurrent writer stored it first.
func (g *Gate) TryStore(ctx context.Context, title, content, url string, target types.Target, meta types.Metadata) (bool, error) {
	fp := Fingerprint(title, content)

	exists, err := g.store.Exists(ctx, fp)
	if err != nil {
		return false, &types.StorageError{Backend: g.store.Name(), Op: "exists", Err: err}
	}
	if exists {
		g.logger.Debug("duplicate article", "url", url, "fingerprint", fp[:12])
		return false, nil
	}

	now := g.now()
	if meta.ProcessedAt.IsZero() {
		meta.ProcessedAt = now
	}
	rec := &types.Record{
		ID:          NewID(),
		TargetID:    target.ID,
		TargetName:  target.Name,
		Title:       title,
		Content:     content,
		URL:         url,
		Fingerprint: fp,
		ScrapedAt:   now,
		Metadata:    meta,
	}

	inserted, err := g.store.Insert(ctx, rec)
	if err != nil {
		return false, &types.StorageError{Backend: g.store.Name(), Op: "insert", Err: err}
	}
	if !inserted {
		g.logger.Debug("duplicate article lost insert race", "url", url, "fingerprint", fp[:12])
		return false, nil
	}

	g.logger.Info("article stored", "url", url, "target", target.Name, "id", rec.ID)
	return true, nil
}
