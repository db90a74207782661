package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/kailas-cloud/geodex/internal/db"
	"github.com/kailas-cloud/geodex/internal/domain/geo"
)

// PutDocuments indexes documents through the bulk API, one worker, keyed by Document.Key.
func (s *Store) PutDocuments(ctx context.Context, index string, docs []db.Document) error {
	if len(docs) == 0 {
		return nil
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:      index,
		Client:     s.client,
		NumWorkers: 1,
	})
	if err != nil {
		return &db.Error{Op: db.OpESBulk, Err: err}
	}

	var (
		mu       sync.Mutex
		firstErr error
	)
	onFailure := func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr != nil {
			return
		}
		if err == nil {
			err = fmt.Errorf("status %d: %s: %s", res.Status, res.Error.Type, res.Error.Reason)
		}
		firstErr = fmt.Errorf("key %s: %w", item.DocumentID, err)
	}

	for _, doc := range docs {
		body, err := io.ReadAll(esutil.NewJSONReader(s.toSource(doc.Fields)))
		if err != nil {
			_ = bi.Close(ctx)
			return &db.Error{Op: db.OpESBulk, Err: err}
		}
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: doc.Key,
			Body:       bytes.NewReader(body),
			OnFailure:  onFailure,
		})
		if err != nil {
			_ = bi.Close(ctx)
			return &db.Error{Op: db.OpESBulk, Err: err}
		}
	}

	if err := bi.Close(ctx); err != nil {
		return &db.Error{Op: db.OpESBulk, Err: err}
	}
	if firstErr != nil {
		return &db.Error{Op: db.OpESBulk, Err: firstErr}
	}
	return nil
}

// GetDocument returns the flat fields of a stored document.
func (s *Store) GetDocument(ctx context.Context, index, key string) (map[string]string, error) {
	res, err := s.client.Get(index, key, s.client.Get.WithContext(ctx))
	if err != nil {
		return nil, &db.Error{Op: db.OpESGet, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		var eb errorBody
		if json.NewDecoder(res.Body).Decode(&eb) == nil && eb.Error.Type == "index_not_found_exception" {
			return nil, &db.Error{Op: db.OpESGet, Err: fmt.Errorf("%w: %s", db.ErrIndexNotFound, index)}
		}
		return nil, db.ErrKeyNotFound
	}
	if res.IsError() {
		return nil, responseError(db.OpESGet, res)
	}

	var body struct {
		Found  bool           `json:"found"`
		Source map[string]any `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, &db.Error{Op: db.OpESGet, Err: fmt.Errorf("decode: %w", err)}
	}
	if !body.Found {
		return nil, db.ErrKeyNotFound
	}
	return flatten(body.Source), nil
}

// toSource types flat fields by the schema: numbers, geo points and tag lists.
func (s *Store) toSource(fields map[string]string) map[string]any {
	src := make(map[string]any, len(fields))
	for k, v := range fields {
		src[k] = v
		if s.schema == nil {
			continue
		}
		f, ok := s.schema.Field(k)
		if !ok {
			continue
		}
		switch f.Type {
		case db.IndexFieldNumeric:
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				src[k] = n
			}
		case db.IndexFieldGeo:
			if p, err := geo.ParsePoint(v); err == nil {
				src[k] = map[string]float64{"lat": p.Lat, "lon": p.Lon}
			}
		case db.IndexFieldTag:
			if f.TagSeparator != "" && strings.Contains(v, f.TagSeparator) {
				src[k] = strings.Split(v, f.TagSeparator)
			}
		}
	}
	return src
}

// flatten turns a _source object back into flat string fields.
// Geo points become "lon,lat" and arrays are joined with the admin separator.
func flatten(src map[string]any) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		if s, ok := flattenValue(v); ok {
			out[k] = s
		}
	}
	return out
}

func flattenValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := flattenValue(e); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, db.AdminIDSeparator), true
	case map[string]any:
		lat, okLat := t["lat"].(float64)
		lon, okLon := t["lon"].(float64)
		if !okLat || !okLon {
			return "", false
		}
		return geo.Point{Lat: lat, Lon: lon}.String(), true
	}
	return "", false
}
