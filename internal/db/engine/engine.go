// Package engine opens the index store selected by configuration.
package engine

import (
	"fmt"

	"github.com/kailas-cloud/geodex/internal/config"
	"github.com/kailas-cloud/geodex/internal/db"
	dbElastic "github.com/kailas-cloud/geodex/internal/db/elastic"
	dbRedis "github.com/kailas-cloud/geodex/internal/db/redis"
)

// Open creates the store for cfg.Database.Driver. No connection is verified;
// call WaitForReady before use.
func Open(cfg config.Config) (db.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverElasticsearch:
		s, err := dbElastic.NewStore(dbElastic.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			Schema:   db.PlaceIndex(cfg.Index.Name, cfg.Index.KeyPrefix),
		})
		if err != nil {
			return nil, fmt.Errorf("elasticsearch: %w", err)
		}
		return s, nil
	case config.DriverRedis:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}
