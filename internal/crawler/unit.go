package crawler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"filesdb-go/internal/model"
)

// processVersions is one unit of crawl work: index the latest version of a
// project. Transient network failures retry the whole unit; everything the
// unit does is guarded by the idempotency check so re-running is safe.
func (c *Crawler) processVersions(ctx context.Context, project string, versions []string) (skipped bool, err error) {
	latest := LatestVersion(versions)
	if latest == "" {
		return true, nil
	}

	err = Retry(ctx, c.cfg.RetryAttempts, c.cfg.RetryDelay, func() error {
		var uerr error
		skipped, uerr = c.indexLatest(ctx, project, latest)
		return uerr
	})
	return skipped, err
}

// indexLatest downloads and indexes the selected artifact for one project
// version, committing file rows and the status marker transactionally.
func (c *Crawler) indexLatest(ctx context.Context, project, version string) (skipped bool, err error) {
	indexed, err := c.store.VersionIndexed(ctx, project, version)
	if err != nil {
		return false, fmt.Errorf("checking indexed state: %w", err)
	}
	if indexed {
		c.logger.Debug("version already indexed, skipping", "project", project, "version", version)
		return true, nil
	}

	downloads, err := c.store.ListDownloads(ctx, project, version)
	if err != nil {
		return false, fmt.Errorf("listing downloads: %w", err)
	}
	if len(downloads) == 0 {
		return true, nil
	}

	download := SelectDownload(downloads)
	if download == nil {
		return true, nil
	}

	tmpdir, err := os.MkdirTemp("", "filesdb_")
	if err != nil {
		return false, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpdir)

	archivePath := filepath.Join(tmpdir, SecureFilename(download.Name))
	if err := c.fetchArtifact(ctx, download, archivePath); err != nil {
		return false, err
	}

	c.mirrorArtifact(download, archivePath)

	return false, c.indexArchive(ctx, project, download, archivePath)
}

// fetchArtifact streams the download's URL into archivePath. A non-2xx
// response is logged but not fatal: the received bytes are still handed to
// the introspector, which records corrupt content as a bad archive.
func (c *Crawler) fetchArtifact(ctx context.Context, download *model.Download, archivePath string) error {
	c.logger.Info("getting artifact", "url", download.URL)

	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	status, err := c.fetcher.FetchArtifact(ctx, download.URL, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("writing artifact: %w", cerr)
	}
	if err != nil {
		return fmt.Errorf("downloading %s: %w", download.Name, err)
	}
	if status < 200 || status >= 300 {
		c.logger.Warn("download error", "status", status, "download", download.Name)
	}
	return nil
}

// mirrorArtifact archives the raw artifact bytes into the vault, keyed by
// the SHA-256 the index reported. Best-effort: a vault failure must not
// prevent indexing.
func (c *Crawler) mirrorArtifact(download *model.Download, archivePath string) {
	if c.vault == nil || download.SHA256 == "" {
		return
	}

	f, err := os.Open(archivePath)
	if err != nil {
		c.logger.Warn("cannot reopen artifact for mirroring", "download", download.Name, "error", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		c.logger.Warn("cannot stat artifact for mirroring", "download", download.Name, "error", err)
		return
	}
	if err := c.vault.PutArtifact(download.SHA256, f, info.Size()); err != nil {
		c.logger.Warn("artifact mirror failed", "download", download.Name, "error", err)
	}
}

// indexArchive introspects the downloaded artifact inside one staging
// transaction. On success the file rows and the success marker commit
// together; on any archive-structural outcome the staged rows are rolled
// back and only the failure status is written, in a fresh transaction.
func (c *Crawler) indexArchive(ctx context.Context, project string, download *model.Download, archivePath string) error {
	tx, err := c.store.BeginIndex(ctx, download.Name)
	if err != nil {
		return fmt.Errorf("beginning index transaction: %w", err)
	}

	inserted := 0
	status, err := Introspect(archivePath, project, func(f model.File) error {
		f.DownloadName = download.Name
		if err := tx.AddFile(ctx, f); err != nil {
			return err
		}
		inserted++
		return nil
	})
	if err != nil {
		// Storage failure: no partial file set may survive, and no status
		// is recorded since the attempt didn't reach a terminal outcome.
		tx.Rollback()
		return fmt.Errorf("staging files for %s: %w", download.Name, err)
	}

	if status == model.StatusSuccess {
		if err := tx.Commit(ctx, model.StatusSuccess); err != nil {
			tx.Rollback()
			return fmt.Errorf("committing %d files for %s: %w", inserted, download.Name, err)
		}
		c.logger.Info("indexed download", "download", download.Name, "files", inserted)
		return nil
	}

	c.logger.Warn("archive not indexable", "download", download.Name, "status", string(status))
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rolling back staged files for %s: %w", download.Name, err)
	}
	if err := c.store.MarkIndexed(ctx, download.Name, status); err != nil {
		return fmt.Errorf("recording status for %s: %w", download.Name, err)
	}
	return nil
}
