package place

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/geodex/internal/db"
)

// DefaultBatchSize is the number of documents written per engine round-trip.
const DefaultBatchSize = 500

// indexStore is the consumer interface for index setup and loading (ISP).
type indexStore interface {
	db.IndexManager
	PutDocuments(ctx context.Context, index string, docs []db.Document) error
}

// Loader creates the place index and writes documents into it.
type Loader struct {
	store     indexStore
	opts      Options
	batchSize int
	logger    *zap.Logger
}

// NewLoader creates a loader. batchSize <= 0 selects DefaultBatchSize.
func NewLoader(s indexStore, opts Options, batchSize int, logger *zap.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{store: s, opts: opts, batchSize: batchSize, logger: logger}
}

// Definition returns the place index definition for these options.
func (l *Loader) Definition() *db.IndexDefinition {
	return db.PlaceIndex(l.opts.IndexName, l.opts.KeyPrefix)
}

// EnsureIndex creates the index unless it exists. Reports whether it was created.
func (l *Loader) EnsureIndex(ctx context.Context) (bool, error) {
	exists, err := l.store.IndexExists(ctx, l.opts.IndexName)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", l.opts.IndexName, err)
	}
	if exists {
		return false, nil
	}
	if err := l.store.CreateIndex(ctx, l.Definition()); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return false, nil
		}
		return false, fmt.Errorf("create index %s: %w", l.opts.IndexName, err)
	}
	l.logger.Info("index created", zap.String("index", l.opts.IndexName))
	return true, nil
}

// Load validates and writes docs. Invalid documents are skipped and reported
// through the returned count; a write failure aborts the load.
func (l *Loader) Load(ctx context.Context, docs []Document) (loaded, skipped int, err error) {
	batch := make([]db.Document, 0, min(len(docs), l.batchSize))
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := l.store.PutDocuments(ctx, l.opts.IndexName, batch); err != nil {
			return fmt.Errorf("put documents: %w", err)
		}
		loaded += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, d := range docs {
		doc, err := l.encode(d)
		if err != nil {
			skipped++
			l.logger.Warn("skipping document", zap.String("id", d.ID), zap.Error(err))
			continue
		}
		batch = append(batch, doc)
		if len(batch) >= l.batchSize {
			if err := flush(); err != nil {
				return loaded, skipped, err
			}
		}
	}
	if err := flush(); err != nil {
		return loaded, skipped, err
	}
	return loaded, skipped, nil
}

func (l *Loader) encode(d Document) (db.Document, error) {
	c, err := d.Candidate()
	if err != nil {
		return db.Document{}, err
	}
	if err := c.Validate(); err != nil {
		return db.Document{}, err
	}
	fields, err := buildFields(c)
	if err != nil {
		return db.Document{}, err
	}
	return db.Document{Key: l.opts.KeyPrefix + c.ID(), Fields: fields}, nil
}
