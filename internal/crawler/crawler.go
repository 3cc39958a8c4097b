// Package crawler implements the crawl-download-extract-index pipeline:
// selecting one release artifact per project version, downloading it,
// enumerating and digesting the files inside, and recording the outcome
// transactionally. It also hosts the version-metadata sweep and the import
// guessing sweep that run against the same store.
package crawler

import "time"

// Config controls crawl behavior. The zero value is usable; unset fields
// fall back to the defaults below.
type Config struct {
	// Concurrency is the ceiling on in-flight work units.
	Concurrency int
	// PageSize bounds how many (project, version) rows are pulled from the
	// store per batch.
	PageSize int
	// RetryAttempts is how many times a work unit is tried on transient
	// network failures.
	RetryAttempts int
	// RetryDelay is the initial delay between attempts; it doubles after
	// each failure.
	RetryDelay time.Duration
	// ProgressEvery is the completion interval between progress log lines.
	ProgressEvery int
}

const (
	defaultConcurrency   = 5
	defaultPageSize      = 500
	defaultRetryAttempts = 3
	defaultRetryDelay    = 5 * time.Second
	defaultProgressEvery = 100
)

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = defaultRetryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = defaultProgressEvery
	}
	return c
}

// Stats tallies a sweep's outcomes. It is returned by the sweep that owns
// it rather than shared through globals, so concurrent sweeps never step on
// each other's counters.
type Stats struct {
	Completed int // work units that ran to a terminal outcome
	Succeeded int
	Skipped   int // units short-circuited by an idempotency check
	Failed    int
}

// Crawler coordinates the store, the package index, and the optional
// artifact vault to perform the crawl, version, and guess sweeps.
type Crawler struct {
	store   Store
	fetcher Fetcher
	vault   ArtifactVault // may be nil: artifact mirroring disabled
	logger  Logger
	clock   Clock
	cfg     Config
}

// New constructs a Crawler. vault may be nil to disable artifact mirroring;
// a nil logger discards output and a nil clock uses real time.
func New(store Store, fetcher Fetcher, vault ArtifactVault, logger Logger, clock Clock, cfg Config) *Crawler {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Crawler{
		store:   store,
		fetcher: fetcher,
		vault:   vault,
		logger:  logger,
		clock:   clock,
		cfg:     cfg.withDefaults(),
	}
}
