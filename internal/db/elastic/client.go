package elastic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/geodex/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Config holds connection parameters for an Elasticsearch store.
type Config struct {
	Addrs    []string
	Username string
	Password string
	APIKey   string
	// Schema types flat document fields on write. Nil stores every field as a string.
	Schema *db.IndexDefinition
}

// Store implements db.Store on Elasticsearch 8.
type Store struct {
	client *elasticsearch.Client
	schema *db.IndexDefinition
}

// NewStore creates an Elasticsearch store.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addrs,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client, schema: cfg.Schema}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping: status %d", res.StatusCode)
	}
	return nil
}

// Close is a no-op: the HTTP transport holds no session state.
func (s *Store) Close() {}

// WaitForReady pings until the cluster responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		err := s.Ping(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for elasticsearch: %w (last error: %w)", ctx.Err(), err)
		case <-ticker.C:
		}
	}
}

type errorBody struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// responseError maps an error response to the db sentinels.
func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(res.Body)

	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	switch {
	case eb.Error.Type == "index_not_found_exception":
		return &db.Error{Op: op, Err: fmt.Errorf("%w: %s", db.ErrIndexNotFound, eb.Error.Reason)}
	case eb.Error.Type == "resource_already_exists_exception":
		return db.ErrIndexExists
	case res.StatusCode == http.StatusBadRequest:
		return &db.Error{Op: op, Err: fmt.Errorf("%w: %s: %s", db.ErrBadQuery, eb.Error.Type, eb.Error.Reason)}
	}
	if eb.Error.Type != "" {
		return &db.Error{Op: op, Err: fmt.Errorf("status %d: %s: %s", res.StatusCode, eb.Error.Type, eb.Error.Reason)}
	}
	return &db.Error{Op: op, Err: fmt.Errorf("status %d", res.StatusCode)}
}
