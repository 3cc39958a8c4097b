// Package app is the application layer between the CLI and the crawler: it
// constructs all dependencies from config and manages resource lifecycles.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"filesdb-go/internal/config"
	"filesdb-go/internal/crawler"
	"filesdb-go/internal/database"
	"filesdb-go/internal/model"
	"filesdb-go/internal/pypi"
	"filesdb-go/internal/vault"
)

// Stats summarizes the outcome of one sweep for CLI reporting.
type Stats = crawler.Stats

// App wires the store, the index client, and the optional artifact vault into
// a ready-to-run Crawler. The caller must call Close when done.
type App struct {
	cfg     *config.Config
	store   *database.SQLiteStore
	vault   crawler.ArtifactVault
	crawler *crawler.Crawler
	op      *CrawlOperation
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "crawl", "versions").
func NewApp(cfg *config.Config, operation, parameters string) (*App, error) {
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	// An in-memory database is fresh every run; give it a schema instead of
	// demanding one.
	if cfg.Database.Type == "memory" {
		if err := store.MigrateUp(); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrating in-memory database: %w", err)
		}
	} else if err := store.CheckMigrations(); err != nil {
		store.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	v, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	if v != nil {
		if err := v.ValidateSetup(); err != nil {
			store.Close()
			return nil, fmt.Errorf("validating vault: %w", err)
		}
	}

	// Every run gets a unique ID so its lines can be picked out of the
	// shared log file.
	opID := uuid.New().String()
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	fetcher := pypi.NewClient(cfg.Index.BaseURL, cfg.Index.UserAgent, cfg.Index.Timeout())

	c := crawler.New(store, fetcher, v, &slogAdapter{l: logger}, crawler.RealClock{}, crawler.Config{
		Concurrency:   cfg.Crawler.Concurrency,
		PageSize:      cfg.Crawler.PageSize,
		RetryAttempts: cfg.Crawler.RetryAttempts,
		RetryDelay:    cfg.Crawler.RetryDelay(),
		ProgressEvery: cfg.Crawler.ProgressEvery,
	})

	return &App{
		cfg:     cfg,
		store:   store,
		vault:   v,
		crawler: c,
		op:      NewCrawlOperation(operation, parameters),
		logFile: logFile,
	}, nil
}

// persistOperation saves the crawl operation to the database, giving it an
// auto-increment ID. This should only be called for DB-mutating commands.
func (a *App) persistOperation(ctx context.Context) error {
	if a.op.Persisted() {
		return nil // already persisted
	}
	id, err := a.store.CreateOperation(ctx, a.op.Operation, a.op.Parameters, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("persisting crawl operation: %w", err)
	}
	a.op.ID = id
	return nil
}

// SeedProjects registers project names for crawling. Already known projects
// are refreshed, not duplicated.
func (a *App) SeedProjects(ctx context.Context, names []string) error {
	if err := a.persistOperation(ctx); err != nil {
		return err
	}
	if err := a.store.SeedProjects(ctx, names, time.Now().UTC()); err != nil {
		a.op.Status = "error"
		return err
	}
	return nil
}

// CrawlFiles runs the main file-indexing sweep, optionally resuming after the
// given project name.
func (a *App) CrawlFiles(ctx context.Context, startFrom string) (*crawler.Stats, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	stats, err := a.crawler.CrawlFiles(ctx, startFrom)
	if err != nil {
		a.op.Status = "error"
	}
	return stats, err
}

// FetchVersions runs the version-metadata sweep over projects whose release
// lists have never been retrieved.
func (a *App) FetchVersions(ctx context.Context) (*crawler.Stats, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	stats, err := a.crawler.FetchVersions(ctx)
	if err != nil {
		a.op.Status = "error"
	}
	return stats, err
}

// GuessImports runs the import-name guessing sweep over all projects.
func (a *App) GuessImports(ctx context.Context) (*crawler.Stats, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	stats, err := a.crawler.GuessImports(ctx)
	if err != nil {
		a.op.Status = "error"
	}
	return stats, err
}

// History returns the most recent crawl operations, newest first.
func (a *App) History(ctx context.Context, limit int) ([]model.CrawlOperation, error) {
	return a.store.ListOperations(ctx, limit)
}

// Close finalizes the operation record (if persisted) and closes all resources.
func (a *App) Close() error {
	var firstErr error

	if a.op.Persisted() {
		err := a.store.FinishOperation(context.Background(), a.op.ID, a.op.Status, time.Now().UTC())
		if err != nil {
			firstErr = fmt.Errorf("finishing crawl operation: %w", err)
		}
	}

	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
