package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"filesdb-go/internal/model"
)

// versionsProgressEvery is the tally interval for the metadata sweep; it
// reports more often than the crawl because each unit is a single request.
const versionsProgressEvery = 50

// FetchVersions refreshes release metadata for every project whose version
// list has never been retrieved: it fetches the project's JSON manifest,
// records all version rows, and records the download entries of the latest
// version. Projects the index no longer knows are deleted.
func (c *Crawler) FetchVersions(ctx context.Context) (*Stats, error) {
	var mu sync.Mutex
	stats := &Stats{}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, c.cfg.Concurrency)

	after := ""
	for {
		names, err := c.store.ProjectsWithoutVersions(ctx, after, c.cfg.PageSize)
		if err != nil {
			if werr := g.Wait(); werr != nil {
				return stats, werr
			}
			return stats, fmt.Errorf("listing projects without versions: %w", err)
		}
		if len(names) == 0 {
			break
		}
		c.logger.Info("got projects batch", "count", len(names), "first", names[0], "last", names[len(names)-1])
		after = names[len(names)-1]

		for _, name := range names {
			name := name
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

				err := Retry(gctx, c.cfg.RetryAttempts, c.cfg.RetryDelay, func() error {
					return c.fetchProjectVersions(gctx, name)
				})

				mu.Lock()
				defer mu.Unlock()
				stats.Completed++
				if err != nil {
					stats.Failed++
					c.logger.Warn("can't list versions", "project", name, "error", err)
				} else {
					stats.Succeeded++
				}
				if stats.Completed%versionsProgressEvery == 0 {
					c.logger.Info(fmt.Sprintf("successful = %d / total = %d", stats.Succeeded, stats.Completed))
				}
				return nil
			})
		}

		if len(names) < c.cfg.PageSize {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, ctx.Err()
}

// fetchProjectVersions handles one project: manifest fetch, version rows,
// and download rows for the latest version.
func (c *Crawler) fetchProjectVersions(ctx context.Context, project string) error {
	rel, err := c.fetcher.ReleaseIndex(ctx, project)
	if errors.Is(err, ErrProjectNotFound) {
		c.logger.Warn("removing project on 404", "project", project)
		return c.store.DeleteProject(ctx, project)
	}
	if err != nil {
		return err
	}

	versions := make([]string, 0, len(rel.Releases))
	for v := range rel.Releases {
		versions = append(versions, v)
	}

	now := c.clock.Now().UTC()
	if err := c.store.RecordVersions(ctx, project, versions, now); err != nil {
		return fmt.Errorf("recording versions: %w", err)
	}
	if len(versions) == 0 {
		return nil
	}

	latest := LatestVersion(versions)
	downloads, err := downloadsFromManifest(project, latest, rel.Releases[latest])
	if err != nil {
		// Malformed metadata is an upstream contract breach: fail this
		// project loudly instead of recording partial rows.
		return err
	}

	if err := c.store.RecordDownloads(ctx, project, latest, downloads, c.clock.Now().UTC()); err != nil {
		return fmt.Errorf("recording downloads: %w", err)
	}
	return nil
}

// downloadsFromManifest validates and converts the manifest's release file
// entries for one version into download rows.
func downloadsFromManifest(project, version string, entries []DownloadInfo) ([]model.Download, error) {
	downloads := make([]model.Download, 0, len(entries))
	for _, e := range entries {
		if e.Filename == "" || e.URL == "" || e.PackageType == "" || e.MD5 == "" || e.SHA256 == "" || e.SizeBytes < 0 {
			return nil, fmt.Errorf("malformed release metadata for %s %s: %+v", project, version, e)
		}
		downloads = append(downloads, model.Download{
			Name:           e.Filename,
			ProjectName:    project,
			ProjectVersion: version,
			SizeBytes:      e.SizeBytes,
			URL:            e.URL,
			Type:           e.PackageType,
			PythonVersion:  e.PythonVersion,
			MD5:            e.MD5,
			SHA256:         e.SHA256,
		})
	}
	return downloads, nil
}
