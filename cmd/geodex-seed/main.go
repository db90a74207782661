// geodex-seed creates the place index and loads documents into it.
//
// Sources are JSON lines (one place document per line) and Foursquare
// Open Places parquet files, which are loaded as POIs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/geodex/internal/config"
	"github.com/kailas-cloud/geodex/internal/db"
	"github.com/kailas-cloud/geodex/internal/db/engine"
	logpkg "github.com/kailas-cloud/geodex/internal/logger"
	placerepo "github.com/kailas-cloud/geodex/internal/repository/place"
	"github.com/kailas-cloud/geodex/internal/version"
)

// seedStore is what the seeder needs from an engine.
type seedStore interface {
	db.IndexManager
	PutDocuments(ctx context.Context, index string, docs []db.Document) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()
}

// openStore is replaced in tests.
var openStore = func(cfg config.Config) (seedStore, error) {
	return engine.Open(cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "geodex-seed:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "geodex-seed",
		Usage:   "Create the place index and load place documents",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Config environment (reads config/<env>.yaml)",
				Value:   "local",
				EnvVars: []string{"ENV"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a config file; overrides --env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "ensure-index",
				Usage:  "Create the place index if it does not exist",
				Action: ensureIndexCommand,
			},
			{
				Name:   "load",
				Usage:  "Load place documents from JSON lines or parquet files",
				Action: loadCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "jsonl",
						Aliases: []string{"f"},
						Usage:   "JSON lines file with one place document per line (repeatable)",
					},
					&cli.StringFlag{
						Name:  "parquet-dir",
						Usage: "Directory with Foursquare Open Places parquet files",
					},
					&cli.IntFlag{
						Name:  "max-rows",
						Usage: "Stop after this many parquet rows (0 = all)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Documents per engine write",
						Value: placerepo.DefaultBatchSize,
					},
					&cli.BoolFlag{
						Name:  "create-index",
						Usage: "Create the index before loading if it is missing",
						Value: true,
					},
				},
			},
		},
	}
}

// session is an opened store plus the settings every command needs.
type session struct {
	cfg    config.Config
	store  seedStore
	logger *zap.Logger
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger, err := logpkg.NewLogger(c.String("env"), cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	timeout := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(c.Context, timeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("index engine not ready: %w", err)
	}
	return &session{cfg: cfg, store: store, logger: logger}, nil
}

func (s *session) close() {
	s.store.Close()
	_ = s.logger.Sync()
}

func (s *session) loader(batchSize int) *placerepo.Loader {
	return placerepo.NewLoader(s.store, placerepo.Options{
		IndexName: s.cfg.Index.Name,
		KeyPrefix: s.cfg.Index.KeyPrefix,
	}, batchSize, s.logger)
}

func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String("config")
	if path == "" {
		return config.Load(c.String("env"))
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return config.Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return config.Parse(data)
}

func ensureIndexCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	created, err := s.loader(0).EnsureIndex(c.Context)
	if err != nil {
		return err
	}
	if !created {
		s.logger.Info("index already exists", zap.String("index", s.cfg.Index.Name))
	}
	return nil
}

func loadCommand(c *cli.Context) error {
	files := c.StringSlice("jsonl")
	dir := c.String("parquet-dir")
	if len(files) == 0 && dir == "" {
		return fmt.Errorf("nothing to load: pass --jsonl or --parquet-dir")
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	l := s.loader(c.Int("batch-size"))
	if c.Bool("create-index") {
		if _, err := l.EnsureIndex(c.Context); err != nil {
			return err
		}
	}

	var st loadStats
	for _, path := range files {
		docs, err := readDocumentsFile(path)
		if err != nil {
			return err
		}
		if err := st.load(c.Context, l, docs); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		s.logger.Info("file loaded", zap.String("file", path), zap.Int("documents", len(docs)))
	}

	if dir != "" {
		if err := loadParquet(c.Context, l, dir, c.Int("max-rows"), &st, s.logger); err != nil {
			return err
		}
	}

	s.logger.Info("load finished",
		zap.String("index", s.cfg.Index.Name),
		zap.Int("loaded", st.loaded),
		zap.Int("skipped", st.skipped),
	)
	return nil
}

type loadStats struct {
	loaded  int
	skipped int
}

func (st *loadStats) load(ctx context.Context, l *placerepo.Loader, docs []placerepo.Document) error {
	loaded, skipped, err := l.Load(ctx, docs)
	st.loaded += loaded
	st.skipped += skipped
	return err
}
