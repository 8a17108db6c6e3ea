package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/mingle/internal/event"
)

// Default sync loop parameters.
const (
	DefaultSyncInterval = 30 * time.Second
	DefaultBatchSize    = 200
)

// Indexer is the slice of the client the syncer needs; split out so tests
// can record pushed batches without an HTTP server.
type Indexer interface {
	IndexDocuments(ctx context.Context, docs []Document) error
}

// Syncer keeps the search index aligned with the events table. It polls for
// events updated since the previous pass and pushes their documents in
// batches. A small overlap window guards against rows committed with an
// updated_at just before the cursor was taken.
type Syncer struct {
	repo      event.Repository
	indexer   Indexer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	overlap   time.Duration

	cursor time.Time
}

// NewSyncer creates a sync loop over repo pushing to indexer.
func NewSyncer(repo event.Repository, indexer Indexer, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		repo:      repo,
		indexer:   indexer,
		logger:    logger,
		interval:  DefaultSyncInterval,
		batchSize: DefaultBatchSize,
		overlap:   2 * time.Second,
	}
}

// SetInterval overrides the poll interval. Intended for tests and tuning.
func (s *Syncer) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// SetBatchSize overrides the per-pass document limit.
func (s *Syncer) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// Run polls until the context is cancelled. The first pass reindexes
// everything (zero cursor); later passes only push what changed.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial pass before the first tick so a fresh deployment serves
	// searches promptly.
	if err := s.SyncOnce(ctx); err != nil {
		s.logger.Warn("initial index sync failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("index syncer stopping due to context cancellation")
			return ctx.Err()
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				s.logger.Warn("index sync pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// SyncOnce runs a single sync pass. The cursor only advances when the whole
// pass succeeds, so a failed push is retried on the next pass.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	passStart := time.Now()

	events, err := s.repo.UpdatedSince(ctx, s.cursor, s.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		s.cursor = passStart.Add(-s.overlap)
		return nil
	}

	docs := make([]Document, 0, len(events))
	for _, e := range events {
		doc, err := MapEvent(e)
		if err != nil {
			s.logger.Warn("skipping unmappable event",
				slog.Int64("event_id", e.ID),
				slog.String("error", err.Error()))
			continue
		}
		docs = append(docs, doc)
	}

	if err := s.indexer.IndexDocuments(ctx, docs); err != nil {
		return err
	}

	s.logger.Info("index sync pass complete",
		slog.Int("documents", len(docs)),
		slog.Duration("took", time.Since(passStart)))

	if len(events) == s.batchSize {
		// More rows may be waiting; advance only to the newest row seen so
		// the next pass picks up where this one stopped.
		s.cursor = events[len(events)-1].UpdatedAt
	} else {
		s.cursor = passStart.Add(-s.overlap)
	}
	return nil
}
