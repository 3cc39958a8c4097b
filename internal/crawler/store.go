package crawler

import (
	"context"
	"time"

	"filesdb-go/internal/model"
)

// Store provides an interface for metadata storage operations. Implementations
// must be safe for concurrent use: each method runs in its own transaction,
// and an IndexTx isolates one download's writes from every other caller.
type Store interface {
	// CountProjects returns the total number of known projects.
	CountProjects(ctx context.Context) (int64, error)

	// CountProjectsBefore returns the number of projects whose name sorts
	// strictly before the given name. Used to resume progress reporting.
	CountProjectsBefore(ctx context.Context, name string) (int64, error)

	// ProjectVersionsPage returns up to limit (project, version) rows whose
	// key sorts strictly after (afterProject, afterVersion), in ascending
	// (project, version) order.
	ProjectVersionsPage(ctx context.Context, afterProject, afterVersion string, limit int) ([]model.ProjectVersion, error)

	// SeedProjects inserts project rows with insert-or-ignore semantics and
	// stamps when they were last seen, in one transaction.
	SeedProjects(ctx context.Context, names []string, seen time.Time) error

	// ProjectsWithoutVersions returns up to limit names of projects whose
	// version list has never been retrieved, sorting after the given name.
	ProjectsWithoutVersions(ctx context.Context, afterName string, limit int) ([]string, error)

	// DeleteProject removes a project and its dependent rows. Used when the
	// index reports the project as gone.
	DeleteProject(ctx context.Context, name string) error

	// RecordVersions inserts version rows for a project (insert-or-ignore)
	// and stamps the project's versions-retrieved time, in one transaction.
	RecordVersions(ctx context.Context, project string, versions []string, retrieved time.Time) error

	// RecordDownloads inserts download rows for one project version
	// (insert-or-ignore) and stamps the version's downloads-retrieved time,
	// in one transaction.
	RecordDownloads(ctx context.Context, project, version string, downloads []model.Download, retrieved time.Time) error

	// VersionIndexed reports whether any download of the given version
	// already has a recorded indexing status.
	VersionIndexed(ctx context.Context, project, version string) (bool, error)

	// ListDownloads returns all known downloads for one project version.
	ListDownloads(ctx context.Context, project, version string) ([]model.Download, error)

	// MarkIndexed writes a download's indexing status in its own
	// transaction. Used to record failure outcomes after a rollback.
	MarkIndexed(ctx context.Context, downloadName string, status model.IndexStatus) error

	// BeginIndex opens a transaction for staging one download's file rows.
	// The caller must finish it with Commit or Rollback.
	BeginIndex(ctx context.Context, downloadName string) (IndexTx, error)

	// GuessExists reports whether import guesses deduced from the given
	// project version are already recorded.
	GuessExists(ctx context.Context, project, version string) (bool, error)

	// IndexedDownload returns the successfully indexed download for a
	// project version, or nil if there is none.
	IndexedDownload(ctx context.Context, project, version string) (*model.Download, error)

	// FileNames returns the in-archive names of all files recorded for a
	// download.
	FileNames(ctx context.Context, downloadName string) ([]string, error)

	// ReplaceImportGuesses atomically deletes all prior guesses for the
	// project and inserts the given set.
	ReplaceImportGuesses(ctx context.Context, project string, guesses []model.ImportGuess) error

	// CreateOperation records the start of a database-mutating run.
	CreateOperation(ctx context.Context, operation, parameters string, startedAt time.Time) (int64, error)

	// FinishOperation records the outcome of a previously created operation.
	FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error

	// Close closes the underlying database connection.
	Close() error
}

// IndexTx stages file rows for a single download. AddFile inserts are not
// visible to other connections until Commit; Rollback discards them. Commit
// also writes the download's indexing status so that file rows and the
// success marker land atomically.
type IndexTx interface {
	AddFile(ctx context.Context, f model.File) error
	Commit(ctx context.Context, status model.IndexStatus) error
	Rollback() error
}
