// Package pypi implements the JSON API client for a PyPI-compatible package
// index.
package pypi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"filesdb-go/internal/crawler"
)

const (
	defaultBaseURL   = "https://pypi.org/pypi"
	defaultUserAgent = "filesdb"
	defaultTimeout   = 5 * time.Minute
)

// Client provides access to the package index JSON API and to release
// artifact downloads.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
}

// NewClient creates a client for the given index base URL (the path under
// which <project>/json lives). Empty arguments select the public PyPI
// defaults.
func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		userAgent: userAgent,
	}
}

// ReleaseIndex fetches and decodes the project's JSON manifest. A 404 maps to
// crawler.ErrProjectNotFound; transport failures and 5xx responses are marked
// retryable.
func (c *Client) ReleaseIndex(ctx context.Context, project string) (*crawler.ReleaseIndex, error) {
	url := fmt.Sprintf("%s/%s/json", c.baseURL, project)
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode, project); err != nil {
		return nil, err
	}

	var manifest apiManifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest for %s: %w", project, err)
	}

	rel := &crawler.ReleaseIndex{
		Name:     manifest.Info.Name,
		Releases: make(map[string][]crawler.DownloadInfo, len(manifest.Releases)),
	}
	for version, entries := range manifest.Releases {
		infos := make([]crawler.DownloadInfo, 0, len(entries))
		for _, e := range entries {
			infos = append(infos, crawler.DownloadInfo{
				Filename:      e.Filename,
				SizeBytes:     e.Size,
				URL:           e.URL,
				PackageType:   e.PackageType,
				PythonVersion: e.PythonVersion,
				MD5:           e.Digests.MD5,
				SHA256:        e.Digests.SHA256,
			})
		}
		rel.Releases[version] = infos
	}
	return rel, nil
}

// FetchArtifact streams the artifact at url into dest and returns the HTTP
// status code. A non-2xx status is not an error here: the caller decides what
// to do with whatever bytes the server returned.
func (c *Client) FetchArtifact(ctx context.Context, url string, dest io.Writer) (int, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(dest, resp.Body); err != nil {
		return resp.StatusCode, &crawler.RetryableError{Err: fmt.Errorf("reading artifact body: %w", err)}
	}
	return resp.StatusCode, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &crawler.RetryableError{Err: fmt.Errorf("requesting %s: %w", url, err)}
	}
	return resp, nil
}

func checkStatus(code int, project string) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", crawler.ErrProjectNotFound, project)
	case code >= 500:
		return &crawler.RetryableError{Err: fmt.Errorf("index returned status %d for %s", code, project)}
	default:
		return fmt.Errorf("index returned status %d for %s", code, project)
	}
}

type apiManifest struct {
	Info     apiInfo                 `json:"info"`
	Releases map[string][]apiRelease `json:"releases"`
}

type apiInfo struct {
	Name string `json:"name"`
}

type apiRelease struct {
	Filename      string     `json:"filename"`
	Size          int64      `json:"size"`
	URL           string     `json:"url"`
	PackageType   string     `json:"packagetype"`
	PythonVersion string     `json:"python_version"`
	Digests       apiDigests `json:"digests"`
}

type apiDigests struct {
	MD5    string `json:"md5"`
	SHA256 string `json:"sha256"`
}

// Compile-time check that Client implements the crawler.Fetcher interface
var _ crawler.Fetcher = (*Client)(nil)
