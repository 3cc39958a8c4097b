package crawler

import (
	"context"
	"errors"
	"io"
)

// ErrProjectNotFound is returned by Fetcher.ReleaseIndex when the index
// reports the project as gone (404).
var ErrProjectNotFound = errors.New("project not found on index")

// DownloadInfo is one release file entry from a project's JSON manifest.
type DownloadInfo struct {
	Filename      string
	SizeBytes     int64
	URL           string
	PackageType   string // "bdist_wheel", "bdist_egg", "sdist", ...
	PythonVersion string
	MD5           string
	SHA256        string
}

// ReleaseIndex is a project's release manifest: every known version and the
// release files attached to each.
type ReleaseIndex struct {
	Name     string
	Releases map[string][]DownloadInfo
}

// Fetcher provides access to the package index over the network.
// Implementations wrap transient transport failures in RetryableError so
// callers can retry whole work units.
type Fetcher interface {
	// ReleaseIndex fetches and parses the JSON release manifest for a
	// project. Returns ErrProjectNotFound for a 404.
	ReleaseIndex(ctx context.Context, project string) (*ReleaseIndex, error)

	// FetchArtifact streams the artifact at url into dest and returns the
	// HTTP status code. A non-2xx status is not an error: whatever bytes
	// were received are written to dest and the caller decides what to do.
	FetchArtifact(ctx context.Context, url string, dest io.Writer) (int, error)
}
