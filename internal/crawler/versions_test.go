package crawler

import (
	"context"
	"errors"
	"testing"
)

func manifestEntry(project, version, pkgType string) DownloadInfo {
	name := project + "-" + version + ".tar.gz"
	if pkgType == "bdist_wheel" {
		name = project + "-" + version + "-py3-none-any.whl"
	}
	return DownloadInfo{
		Filename:      name,
		SizeBytes:     1234,
		URL:           "https://files.example.invalid/" + name,
		PackageType:   pkgType,
		PythonVersion: "py3",
		MD5:           "0123456789abcdef0123456789abcdef",
		SHA256:        "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
	}
}

func TestFetchVersions_RecordsVersionsAndLatestDownloads(t *testing.T) {
	store := newMemStore()
	fetcher := newFakeFetcher()

	store.SeedProjects(context.Background(), []string{"demo"}, testClock().Now())
	fetcher.manifests["demo"] = &ReleaseIndex{
		Name: "demo",
		Releases: map[string][]DownloadInfo{
			"1.0": {manifestEntry("demo", "1.0", "sdist")},
			"2.0": {manifestEntry("demo", "2.0", "sdist"), manifestEntry("demo", "2.0", "bdist_wheel")},
		},
	}

	c := testCrawler(store, fetcher, nil, Config{})
	stats, err := c.FetchVersions(context.Background())
	if err != nil {
		t.Fatalf("FetchVersions() error = %v", err)
	}
	if stats.Completed != 1 || stats.Succeeded != 1 {
		t.Errorf("stats = %+v, want 1 completed, 1 succeeded", stats)
	}

	rows, err := store.ProjectVersionsPage(context.Background(), "", "", 100)
	if err != nil {
		t.Fatalf("ProjectVersionsPage() error = %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("version rows = %d, want 2", len(rows))
	}

	// Downloads are recorded for the latest version only.
	latest, _ := store.ListDownloads(context.Background(), "demo", "2.0")
	if len(latest) != 2 {
		t.Errorf("latest downloads = %d, want 2", len(latest))
	}
	old, _ := store.ListDownloads(context.Background(), "demo", "1.0")
	if len(old) != 0 {
		t.Errorf("old downloads = %d, want 0", len(old))
	}
}

func TestFetchVersions_SecondSweepIsEmpty(t *testing.T) {
	store := newMemStore()
	fetcher := newFakeFetcher()

	store.SeedProjects(context.Background(), []string{"demo"}, testClock().Now())
	fetcher.manifests["demo"] = &ReleaseIndex{
		Name:     "demo",
		Releases: map[string][]DownloadInfo{"1.0": {manifestEntry("demo", "1.0", "sdist")}},
	}

	c := testCrawler(store, fetcher, nil, Config{})
	if _, err := c.FetchVersions(context.Background()); err != nil {
		t.Fatalf("first FetchVersions() error = %v", err)
	}

	stats, err := c.FetchVersions(context.Background())
	if err != nil {
		t.Fatalf("second FetchVersions() error = %v", err)
	}
	if stats.Completed != 0 {
		t.Errorf("second sweep completed = %d, want 0", stats.Completed)
	}
	if fetcher.manifestCalls["demo"] != 1 {
		t.Errorf("manifest fetched %d times, want 1", fetcher.manifestCalls["demo"])
	}
}

func TestFetchVersions_GoneProjectDeleted(t *testing.T) {
	store := newMemStore()
	fetcher := newFakeFetcher()

	store.SeedProjects(context.Background(), []string{"vanished"}, testClock().Now())
	// No manifest scripted: the fetcher reports it as not found.

	c := testCrawler(store, fetcher, nil, Config{})
	stats, err := c.FetchVersions(context.Background())
	if err != nil {
		t.Fatalf("FetchVersions() error = %v", err)
	}
	if stats.Succeeded != 1 {
		t.Errorf("stats = %+v, want 1 succeeded", stats)
	}

	if len(store.deletedProjects) != 1 || store.deletedProjects[0] != "vanished" {
		t.Errorf("deleted projects = %v, want [vanished]", store.deletedProjects)
	}
	if n, _ := store.CountProjects(context.Background()); n != 0 {
		t.Errorf("projects remaining = %d, want 0", n)
	}
}

func TestFetchVersions_MalformedManifestFailsLoudly(t *testing.T) {
	store := newMemStore()
	fetcher := newFakeFetcher()

	store.SeedProjects(context.Background(), []string{"demo"}, testClock().Now())
	bad := manifestEntry("demo", "1.0", "sdist")
	bad.MD5 = ""
	fetcher.manifests["demo"] = &ReleaseIndex{
		Name:     "demo",
		Releases: map[string][]DownloadInfo{"1.0": {bad}},
	}

	c := testCrawler(store, fetcher, nil, Config{})
	stats, err := c.FetchVersions(context.Background())
	if err != nil {
		t.Fatalf("FetchVersions() error = %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 failed", stats)
	}

	// No partial download rows may be recorded for the bad entry.
	downloads, _ := store.ListDownloads(context.Background(), "demo", "1.0")
	if len(downloads) != 0 {
		t.Errorf("downloads recorded = %d, want 0", len(downloads))
	}
}

func TestFetchVersions_RetryableErrorRetried(t *testing.T) {
	store := newMemStore()
	fetcher := newFakeFetcher()

	store.SeedProjects(context.Background(), []string{"flaky"}, testClock().Now())
	fetcher.errors["flaky"] = Retryable(errors.New("connection reset"))

	c := testCrawler(store, fetcher, nil, Config{RetryAttempts: 3})
	stats, err := c.FetchVersions(context.Background())
	if err != nil {
		t.Fatalf("FetchVersions() error = %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 failed", stats)
	}
	if fetcher.manifestCalls["flaky"] != 3 {
		t.Errorf("manifest fetched %d times, want 3", fetcher.manifestCalls["flaky"])
	}
}

func TestFetchVersions_EmptyReleaseList(t *testing.T) {
	store := newMemStore()
	fetcher := newFakeFetcher()

	store.SeedProjects(context.Background(), []string{"empty"}, testClock().Now())
	fetcher.manifests["empty"] = &ReleaseIndex{Name: "empty", Releases: map[string][]DownloadInfo{}}

	c := testCrawler(store, fetcher, nil, Config{})
	stats, err := c.FetchVersions(context.Background())
	if err != nil {
		t.Fatalf("FetchVersions() error = %v", err)
	}
	if stats.Succeeded != 1 {
		t.Errorf("stats = %+v, want 1 succeeded", stats)
	}

	// The retrieval is stamped even with zero versions, so the project is
	// not revisited.
	names, _ := store.ProjectsWithoutVersions(context.Background(), "", 100)
	if len(names) != 0 {
		t.Errorf("projects still pending = %v, want none", names)
	}
}

func TestDownloadsFromManifest_Validation(t *testing.T) {
	good := manifestEntry("demo", "1.0", "sdist")

	tests := []struct {
		name   string
		mutate func(*DownloadInfo)
	}{
		{name: "missing filename", mutate: func(d *DownloadInfo) { d.Filename = "" }},
		{name: "missing url", mutate: func(d *DownloadInfo) { d.URL = "" }},
		{name: "missing package type", mutate: func(d *DownloadInfo) { d.PackageType = "" }},
		{name: "missing md5", mutate: func(d *DownloadInfo) { d.MD5 = "" }},
		{name: "missing sha256", mutate: func(d *DownloadInfo) { d.SHA256 = "" }},
		{name: "negative size", mutate: func(d *DownloadInfo) { d.SizeBytes = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := good
			tt.mutate(&entry)
			if _, err := downloadsFromManifest("demo", "1.0", []DownloadInfo{entry}); err == nil {
				t.Error("downloadsFromManifest() error = nil, want validation failure")
			}
		})
	}

	t.Run("valid entry converts", func(t *testing.T) {
		downloads, err := downloadsFromManifest("demo", "1.0", []DownloadInfo{good})
		if err != nil {
			t.Fatalf("downloadsFromManifest() error = %v", err)
		}
		if len(downloads) != 1 {
			t.Fatalf("downloads = %d, want 1", len(downloads))
		}
		d := downloads[0]
		if d.ProjectName != "demo" || d.ProjectVersion != "1.0" || d.Name != good.Filename {
			t.Errorf("converted download = %+v", d)
		}
	})

	t.Run("empty python version allowed", func(t *testing.T) {
		entry := good
		entry.PythonVersion = ""
		if _, err := downloadsFromManifest("demo", "1.0", []DownloadInfo{entry}); err != nil {
			t.Errorf("downloadsFromManifest() error = %v, want nil", err)
		}
	})
}
