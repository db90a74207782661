package health

import "context"

// Pinger checks index engine reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IndexChecker reports whether the place index exists.
type IndexChecker interface {
	IndexExists(ctx context.Context, name string) (bool, error)
}
