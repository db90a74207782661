package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/geodex/internal/domain/place"
	placerepo "github.com/kailas-cloud/geodex/internal/repository/place"
)

const rowBuffer = 1000

// fsqPlace is one Foursquare Open Places row.
type fsqPlace struct {
	ID         string
	Name       string
	Lat        *float64
	Lon        *float64
	Postcode   *string
	Locality   *string
	Region     *string
	Country    *string
	DateClosed *string
}

// Document converts the row to a POI document. Closed places and rows without
// coordinates are rejected.
func (p fsqPlace) Document() (placerepo.Document, bool) {
	if p.DateClosed != nil || p.Lat == nil || p.Lon == nil {
		return placerepo.Document{}, false
	}
	d := placerepo.Document{
		ID:       "fsq:" + p.ID,
		Type:     string(place.POI),
		Name:     p.Name,
		Postcode: deref(p.Postcode),
		Lat:      *p.Lat,
		Lon:      *p.Lon,
	}
	country := deref(p.Country)
	if city := deref(p.Locality); city != "" {
		d.Admins = append(d.Admins, adminRef(place.LevelCity, city, country, deref(p.Region), city))
	}
	if region := deref(p.Region); region != "" {
		d.Admins = append(d.Admins, adminRef(place.LevelRegion, region, country, region))
	}
	if country != "" {
		d.Admins = append(d.Admins, adminRef(place.LevelCountry, country, country))
	}
	return d, true
}

// adminRef derives a stable admin id from the names along the chain.
func adminRef(level, name string, path ...string) place.AdminRef {
	parts := make([]string, 0, len(path)+1)
	parts = append(parts, level)
	for _, p := range path {
		parts = append(parts, strings.ToLower(strings.TrimSpace(p)))
	}
	return place.AdminRef{ID: strings.Join(parts, ":"), Name: name, Level: level}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parquetReader streams places parquet files in name order.
type parquetReader struct {
	files []string
}

func newParquetReader(dir string) (*parquetReader, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		return nil, fmt.Errorf("glob parquet files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parquet files found in %s", dir)
	}
	sort.Strings(files)
	return &parquetReader{files: files}, nil
}

// ReadPlaces calls fn for every row until maxRows rows were read (0 = all)
// or fn fails. Returns the number of rows read.
func (r *parquetReader) ReadPlaces(maxRows int, fn func(fsqPlace) error) (int, error) {
	read := 0
	for _, path := range r.files {
		n, err := readFile(path, maxRows-read, maxRows > 0, fn)
		read += n
		if err != nil {
			return read, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if maxRows > 0 && read >= maxRows {
			break
		}
	}
	return read, nil
}

// placeColumns holds leaf column indexes; -1 means absent.
type placeColumns struct {
	id, name, lat, lon, postcode, locality, region, country, dateClosed int
}

func resolvePlaceColumns(pf *parquet.File) placeColumns {
	cols := placeColumns{-1, -1, -1, -1, -1, -1, -1, -1, -1}
	for i, path := range pf.Schema().Columns() {
		if len(path) == 0 {
			continue
		}
		switch path[0] {
		case "fsq_place_id":
			cols.id = i
		case "name":
			cols.name = i
		case "latitude":
			cols.lat = i
		case "longitude":
			cols.lon = i
		case "postcode":
			cols.postcode = i
		case "locality":
			cols.locality = i
		case "region":
			cols.region = i
		case "country":
			cols.country = i
		case "date_closed":
			cols.dateClosed = i
		}
	}
	return cols
}

func readFile(path string, budget int, limited bool, fn func(fsqPlace) error) (int, error) {
	h, err := openParquet(path)
	if err != nil {
		return 0, err
	}
	defer h.Close()

	cols := resolvePlaceColumns(h.pf)
	if cols.id < 0 || cols.lat < 0 || cols.lon < 0 {
		return 0, fmt.Errorf("missing fsq_place_id, latitude or longitude column")
	}

	read := 0
	buf := make([]parquet.Row, rowBuffer)
	for _, rg := range h.pf.RowGroups() {
		rows := parquet.NewRowGroupReader(rg)
		for {
			n, readErr := rows.ReadRows(buf)
			for i := 0; i < n; i++ {
				if limited && read >= budget {
					return read, nil
				}
				read++
				if err := fn(rowToPlace(buf[i], cols)); err != nil {
					return read, err
				}
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					break
				}
				return read, fmt.Errorf("read rows: %w", readErr)
			}
		}
	}
	return read, nil
}

func rowToPlace(row parquet.Row, cols placeColumns) fsqPlace {
	var p fsqPlace
	optString := func(v parquet.Value) *string {
		if v.IsNull() {
			return nil
		}
		s := v.String()
		return &s
	}
	optDouble := func(v parquet.Value) *float64 {
		if v.IsNull() {
			return nil
		}
		f := v.Double()
		return &f
	}

	for _, v := range row {
		switch v.Column() {
		case cols.id:
			p.ID = v.String()
		case cols.name:
			p.Name = v.String()
		case cols.lat:
			p.Lat = optDouble(v)
		case cols.lon:
			p.Lon = optDouble(v)
		case cols.postcode:
			p.Postcode = optString(v)
		case cols.locality:
			p.Locality = optString(v)
		case cols.region:
			p.Region = optString(v)
		case cols.country:
			p.Country = optString(v)
		case cols.dateClosed:
			p.DateClosed = optString(v)
		}
	}
	return p
}

// parquetHandle wraps parquet.File and the underlying os.File.
type parquetHandle struct {
	pf   *parquet.File
	file *os.File
}

func (h *parquetHandle) Close() {
	_ = h.file.Close()
}

func openParquet(path string) (*parquetHandle, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	return &parquetHandle{pf: pf, file: f}, nil
}

// loadParquet streams parquet POIs into the loader in chunks.
func loadParquet(
	ctx context.Context, l *placerepo.Loader, dir string, maxRows int, st *loadStats, logger *zap.Logger,
) error {
	r, err := newParquetReader(dir)
	if err != nil {
		return err
	}
	logger.Info("reading parquet places", zap.String("dir", dir), zap.Int("files", len(r.files)))

	chunk := make([]placerepo.Document, 0, placerepo.DefaultBatchSize)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		err := st.load(ctx, l, chunk)
		chunk = chunk[:0]
		return err
	}

	rows, err := r.ReadPlaces(maxRows, func(p fsqPlace) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, ok := p.Document()
		if !ok {
			st.skipped++
			return nil
		}
		chunk = append(chunk, d)
		if len(chunk) == cap(chunk) {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}
	logger.Info("parquet places read", zap.Int("rows", rows))
	return nil
}
