package crawler

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// versionGroup is one project together with all of its known versions.
type versionGroup struct {
	Project  string
	Versions []string
}

// versionIterator walks the (project, version) table in stable key order,
// pulling page-sized batches so memory stays bounded, and groups rows into
// per-project units. A project's group is only emitted once a row for a
// different project (or the end of the table) proves it complete.
type versionIterator struct {
	store    Store
	pageSize int

	rows      []rowKey
	idx       int
	lastP     string
	lastV     string
	cur       *versionGroup
	exhausted bool
}

type rowKey struct {
	project string
	version string
}

func newVersionIterator(store Store, startFrom string, pageSize int) *versionIterator {
	return &versionIterator{
		store:    store,
		pageSize: pageSize,
		lastP:    startFrom,
	}
}

// Next returns the next complete project group, or nil when the table is
// exhausted.
func (it *versionIterator) Next(ctx context.Context) (*versionGroup, error) {
	for {
		if it.idx >= len(it.rows) {
			if it.exhausted {
				if g := it.cur; g != nil {
					it.cur = nil
					return g, nil
				}
				return nil, nil
			}
			if err := it.fetchPage(ctx); err != nil {
				return nil, err
			}
			continue
		}

		row := it.rows[it.idx]
		it.idx++

		if it.cur == nil {
			it.cur = &versionGroup{Project: row.project, Versions: []string{row.version}}
			continue
		}
		if row.project == it.cur.Project {
			it.cur.Versions = append(it.cur.Versions, row.version)
			continue
		}

		done := it.cur
		it.cur = &versionGroup{Project: row.project, Versions: []string{row.version}}
		return done, nil
	}
}

func (it *versionIterator) fetchPage(ctx context.Context) error {
	rows, err := it.store.ProjectVersionsPage(ctx, it.lastP, it.lastV, it.pageSize)
	if err != nil {
		return fmt.Errorf("listing project versions: %w", err)
	}
	if len(rows) == 0 {
		it.exhausted = true
		return nil
	}

	it.rows = it.rows[:0]
	for _, r := range rows {
		it.rows = append(it.rows, rowKey{project: r.ProjectName, version: r.Version})
	}
	it.idx = 0
	it.lastP = rows[len(rows)-1].ProjectName
	it.lastV = rows[len(rows)-1].Version
	if len(rows) < it.pageSize {
		it.exhausted = true
	}
	return nil
}

// CrawlFiles runs the main sweep: for every project (optionally resuming
// after startFrom), index the latest version's selected artifact. At most
// Config.Concurrency units are in flight at once; as each completes, the
// next project is admitted. A unit's failure is tallied and logged but
// never blocks the rest of the sweep.
func (c *Crawler) CrawlFiles(ctx context.Context, startFrom string) (*Stats, error) {
	total, err := c.store.CountProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting projects: %w", err)
	}

	done := int64(0)
	if startFrom != "" {
		done, err = c.store.CountProjectsBefore(ctx, startFrom)
		if err != nil {
			return nil, fmt.Errorf("counting resumed projects: %w", err)
		}
	}

	it := newVersionIterator(c.store, startFrom, c.cfg.PageSize)

	var mu sync.Mutex
	stats := &Stats{}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, c.cfg.Concurrency)

	for {
		group, err := it.Next(gctx)
		if err != nil {
			// The backlog query itself failed; wait for in-flight units
			// before surfacing it.
			if werr := g.Wait(); werr != nil {
				return stats, werr
			}
			return stats, err
		}
		if group == nil {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			if werr := g.Wait(); werr != nil {
				return stats, werr
			}
			return stats, gctx.Err()
		}

		g.Go(func() error {
			defer func() { <-sem }()

			skipped, uerr := c.processVersions(gctx, group.Project, group.Versions)

			mu.Lock()
			defer mu.Unlock()
			stats.Completed++
			switch {
			case uerr != nil:
				stats.Failed++
				c.logger.Error("crawl unit failed", "project", group.Project, "error", uerr)
			case skipped:
				stats.Skipped++
			default:
				stats.Succeeded++
			}
			if n := done + int64(stats.Completed); n%int64(c.cfg.ProgressEvery) == 0 {
				c.logger.Info(fmt.Sprintf("%d / %d", n, total))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, ctx.Err()
}
