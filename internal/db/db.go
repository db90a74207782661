package db

import (
	"context"
	"time"
)

// Store is the main index engine facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	DocumentStore
	IndexManager
	PlaceSearcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks engine connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Document holds a single storage key and its flat fields.
type Document struct {
	Key    string
	Fields map[string]string
}

// DocumentStore reads and writes flat place documents.
type DocumentStore interface {
	PutDocuments(ctx context.Context, index string, docs []Document) error
	GetDocument(ctx context.Context, index, key string) (map[string]string, error)
}

// IndexManager provides index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// PlaceSearcher runs place queries.
type PlaceSearcher interface {
	SearchPlaces(ctx context.Context, q *PlaceQuery) (*SearchResult, error)
	SearchNear(ctx context.Context, q *NearQuery) (*SearchResult, error)
	SearchCovering(ctx context.Context, q *CoverQuery) (*SearchResult, error)
}
