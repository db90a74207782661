package elastic

import (
	"context"
	"errors"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/kailas-cloud/geodex/internal/db"
)

// foldNormalizer lowercases keyword values, matching TAG fields without CASESENSITIVE.
const foldNormalizer = "fold"

// CreateIndex creates an index whose mapping follows the definition.
// Unmapped fields (admins, localized names) are kept in _source only.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	body, err := buildMapping(def)
	if err != nil {
		return err
	}

	res, err := s.client.Indices.Create(
		def.Name,
		s.client.Indices.Create.WithBody(esutil.NewJSONReader(body)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return &db.Error{Op: db.OpESCreateIndex, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError(db.OpESCreateIndex, res)
	}
	return nil
}

// DropIndex deletes the index together with its documents.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	res, err := s.client.Indices.Delete([]string{name}, s.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return &db.Error{Op: db.OpESDeleteIndex, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return db.ErrIndexNotFound
	}
	if res.IsError() {
		return responseError(db.OpESDeleteIndex, res)
	}
	return nil
}

// IndexExists reports whether the index exists.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := s.client.Indices.Exists([]string{name}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, &db.Error{Op: db.OpESIndexExists, Err: err}
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, responseError(db.OpESIndexExists, res)
}

func buildMapping(def *db.IndexDefinition) (map[string]any, error) {
	if def.Name == "" {
		return nil, errors.New("index name is required")
	}
	if len(def.Fields) == 0 {
		return nil, errors.New("at least one field is required")
	}

	props := make(map[string]any, len(def.Fields))
	for _, f := range def.Fields {
		if f.Name == "" {
			return nil, errors.New("field name is required")
		}
		switch f.Type {
		case db.IndexFieldNumeric:
			props[f.Name] = map[string]any{"type": "double"}
		case db.IndexFieldTag:
			m := map[string]any{"type": "keyword"}
			if !f.TagCaseSensitive {
				m["normalizer"] = foldNormalizer
			}
			props[f.Name] = m
		case db.IndexFieldText:
			props[f.Name] = map[string]any{"type": "text"}
		case db.IndexFieldGeo:
			props[f.Name] = map[string]any{"type": "geo_point"}
		default:
			return nil, errors.New("unknown field type")
		}
	}

	return map[string]any{
		"settings": map[string]any{
			"analysis": map[string]any{
				"normalizer": map[string]any{
					foldNormalizer: map[string]any{
						"type":   "custom",
						"filter": []string{"lowercase", "asciifolding"},
					},
				},
			},
		},
		"mappings": map[string]any{
			"dynamic":    false,
			"properties": props,
		},
	}, nil
}
