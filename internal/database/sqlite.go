// Package database implements the metadata store on SQLite.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"filesdb-go/internal/crawler"
	"filesdb-go/internal/database/migrations"
	"filesdb-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements the crawler.Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, path: ""}
}

// OpenConnection opens and configures a SQLite database connection with
// appropriate PRAGMAs. Exported for use in tools and tests that need a
// properly configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; pin the pool to one so
	// the schema and data survive across queries.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Concurrent crawl units contend on SQLite's single writer; wait for
	// locks instead of failing with SQLITE_BUSY.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Project operations

func (s *SQLiteStore) CountProjects(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting projects: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) CountProjectsBefore(ctx context.Context, name string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects WHERE name < ?", name).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting projects before %q: %w", name, err)
	}
	return count, nil
}

func (s *SQLiteStore) SeedProjects(ctx context.Context, names []string, seen time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO projects (name, seen) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer insert.Close()

	touch, err := tx.PrepareContext(ctx, "UPDATE projects SET seen = ?, deleted = NULL WHERE name = ?")
	if err != nil {
		return fmt.Errorf("preparing update: %w", err)
	}
	defer touch.Close()

	for _, name := range names {
		if _, err := insert.ExecContext(ctx, name, seen); err != nil {
			return fmt.Errorf("inserting project %q: %w", name, err)
		}
		if _, err := touch.ExecContext(ctx, seen, name); err != nil {
			return fmt.Errorf("updating project %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ProjectsWithoutVersions(ctx context.Context, afterName string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM projects
		WHERE versions_retrieved IS NULL AND name > ?
		ORDER BY name
		LIMIT ?`, afterName, limit)
	if err != nil {
		return nil, fmt.Errorf("listing projects without versions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning project name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading project names: %w", err)
	}
	return names, nil
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, name string) error {
	// Dependent rows go with the project via ON DELETE CASCADE.
	if _, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting project %q: %w", name, err)
	}
	return nil
}

// Version operations

func (s *SQLiteStore) ProjectVersionsPage(ctx context.Context, afterProject, afterVersion string, limit int) ([]model.ProjectVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_name, version, downloads_retrieved FROM project_versions
		WHERE project_name > ? OR (project_name = ? AND version > ?)
		ORDER BY project_name, version
		LIMIT ?`, afterProject, afterProject, afterVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("listing project versions: %w", err)
	}
	defer rows.Close()

	var page []model.ProjectVersion
	for rows.Next() {
		var pv model.ProjectVersion
		var retrieved sql.NullTime
		if err := rows.Scan(&pv.ProjectName, &pv.Version, &retrieved); err != nil {
			return nil, fmt.Errorf("scanning project version: %w", err)
		}
		if retrieved.Valid {
			t := retrieved.Time
			pv.DownloadsRetrieved = &t
		}
		page = append(page, pv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading project versions: %w", err)
	}
	return page, nil
}

func (s *SQLiteStore) RecordVersions(ctx context.Context, project string, versions []string, retrieved time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO project_versions (project_name, version) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer insert.Close()

	for _, version := range versions {
		if _, err := insert.ExecContext(ctx, project, version); err != nil {
			return fmt.Errorf("inserting version %q: %w", version, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE projects SET versions_retrieved = ? WHERE name = ?", retrieved, project); err != nil {
		return fmt.Errorf("stamping versions retrieved: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Download operations

func (s *SQLiteStore) RecordDownloads(ctx context.Context, project, version string, downloads []model.Download, retrieved time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO downloads
		(name, project_name, project_version, size_bytes, url, type, python_version, hash_md5, hash_sha256)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer insert.Close()

	for _, d := range downloads {
		_, err := insert.ExecContext(ctx, d.Name, project, version,
			d.SizeBytes, d.URL, d.Type, d.PythonVersion, d.MD5, d.SHA256)
		if err != nil {
			return fmt.Errorf("inserting download %q: %w", d.Name, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE project_versions SET downloads_retrieved = ? WHERE project_name = ? AND version = ?",
		retrieved, project, version)
	if err != nil {
		return fmt.Errorf("stamping downloads retrieved: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) VersionIndexed(ctx context.Context, project, version string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM downloads
			WHERE project_name = ? AND project_version = ? AND indexed IS NOT NULL
		)`, project, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking indexed state: %w", err)
	}
	return exists, nil
}

const downloadColumns = "name, project_name, project_version, size_bytes, url, type, python_version, hash_md5, hash_sha256, indexed"

func scanDownload(row interface{ Scan(...any) error }) (model.Download, error) {
	var d model.Download
	var indexed sql.NullString
	err := row.Scan(&d.Name, &d.ProjectName, &d.ProjectVersion, &d.SizeBytes,
		&d.URL, &d.Type, &d.PythonVersion, &d.MD5, &d.SHA256, &indexed)
	if err != nil {
		return model.Download{}, err
	}
	d.Indexed = model.IndexStatus(indexed.String)
	return d, nil
}

func (s *SQLiteStore) ListDownloads(ctx context.Context, project, version string) ([]model.Download, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+downloadColumns+` FROM downloads
		WHERE project_name = ? AND project_version = ?
		ORDER BY name`, project, version)
	if err != nil {
		return nil, fmt.Errorf("listing downloads: %w", err)
	}
	defer rows.Close()

	var downloads []model.Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning download: %w", err)
		}
		downloads = append(downloads, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading downloads: %w", err)
	}
	return downloads, nil
}

func (s *SQLiteStore) IndexedDownload(ctx context.Context, project, version string) (*model.Download, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+downloadColumns+` FROM downloads
		WHERE project_name = ? AND project_version = ? AND indexed = ?
		ORDER BY name
		LIMIT 1`, project, version, string(model.StatusSuccess))

	d, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding indexed download: %w", err)
	}
	return &d, nil
}

func (s *SQLiteStore) MarkIndexed(ctx context.Context, downloadName string, status model.IndexStatus) error {
	_, err := s.db.ExecContext(ctx, "UPDATE downloads SET indexed = ? WHERE name = ?",
		string(status), downloadName)
	if err != nil {
		return fmt.Errorf("marking download %q indexed: %w", downloadName, err)
	}
	return nil
}

// File operations

func (s *SQLiteStore) FileNames(ctx context.Context, downloadName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM files WHERE download_name = ? ORDER BY name", downloadName)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning file name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading file names: %w", err)
	}
	return names, nil
}

// BeginIndex opens the staging transaction for one download's file rows. The
// staged inserts and the status marker commit together, so readers never see
// a partially indexed download.
func (s *SQLiteStore) BeginIndex(ctx context.Context, downloadName string) (crawler.IndexTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return &indexTx{tx: tx, downloadName: downloadName}, nil
}

type indexTx struct {
	tx           *sql.Tx
	downloadName string
}

func (t *indexTx) AddFile(ctx context.Context, f model.File) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO files (download_name, name, size_bytes, hash_sha1, hash_sha256)
		VALUES (?, ?, ?, ?, ?)`,
		f.DownloadName, f.Name, f.SizeBytes, f.SHA1, f.SHA256)
	if err != nil {
		return fmt.Errorf("inserting file %q: %w", f.Name, err)
	}
	return nil
}

func (t *indexTx) Commit(ctx context.Context, status model.IndexStatus) error {
	_, err := t.tx.ExecContext(ctx, "UPDATE downloads SET indexed = ? WHERE name = ?",
		string(status), t.downloadName)
	if err != nil {
		return fmt.Errorf("writing index status: %w", err)
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("committing index transaction: %w", err)
	}
	return nil
}

func (t *indexTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// Import guess operations

func (s *SQLiteStore) GuessExists(ctx context.Context, project, version string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM python_imports
			WHERE project_name = ? AND deduced_from_version = ?
		)`, project, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking prior guesses: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStore) ReplaceImportGuesses(ctx context.Context, project string, guesses []model.ImportGuess) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM python_imports WHERE project_name = ?", project); err != nil {
		return fmt.Errorf("deleting prior guesses: %w", err)
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO python_imports (project_name, import_path, deduced_from_version, deduced_from_download)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer insert.Close()

	for _, g := range guesses {
		if _, err := insert.ExecContext(ctx, g.ProjectName, g.ImportPath, g.DeducedFrom, g.DeducedFromName); err != nil {
			return fmt.Errorf("inserting guess %q: %w", g.ImportPath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Crawl operation tracking

func (s *SQLiteStore) CreateOperation(ctx context.Context, operation, parameters string, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO crawl_operations (operation, parameters, started_at, status)
		VALUES (?, ?, ?, 'running')`, operation, parameters, startedAt)
	if err != nil {
		return 0, fmt.Errorf("creating crawl operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading crawl operation id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE crawl_operations SET finished_at = ?, status = ? WHERE id = ?",
		finishedAt, status, id)
	if err != nil {
		return fmt.Errorf("finishing crawl operation: %w", err)
	}
	return nil
}

// ListOperations returns the most recent crawl operations, newest first.
func (s *SQLiteStore) ListOperations(ctx context.Context, limit int) ([]model.CrawlOperation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, parameters, started_at, finished_at, status
		FROM crawl_operations
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing crawl operations: %w", err)
	}
	defer rows.Close()

	var ops []model.CrawlOperation
	for rows.Next() {
		var op model.CrawlOperation
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.StartedAt, &finished, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning crawl operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading crawl operations: %w", err)
	}
	return ops, nil
}

/// Summary reports row counts across the main tables, for the status command.
func (s *SQLiteStore) Summary(ctx context.Context) (*Summary, error) {
	var sum Summary
	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM projects", &sum.Projects},
		{"SELECT COUNT(*) FROM projects WHERE versions_retrieved IS NOT NULL", &sum.ProjectsWithVersions},
		{"SELECT COUNT(*) FROM project_versions", &sum.Versions},
		{"SELECT COUNT(*) FROM downloads", &sum.Downloads},
		{"SELECT COUNT(*) FROM downloads WHERE indexed IS NOT NULL", &sum.DownloadsAttempted},
		{"SELECT COUNT(*) FROM downloads WHERE indexed = 'yes'", &sum.DownloadsIndexed},
		{"SELECT COUNT(*) FROM files", &sum.Files},
		{"SELECT COUNT(DISTINCT project_name) FROM python_imports", &sum.ProjectsGuessed},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("summarizing database: %w", err)
		}
	}
	return &sum, nil
}

// Summary is a row-count snapshot of the database.
type Summary struct {
	Projects             int64
	ProjectsWithVersions int64
	Versions             int64
	Downloads            int64
	DownloadsAttempted   int64
	DownloadsIndexed     int64
	Files                int64
	ProjectsGuessed      int64
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp brings the database schema to the latest version.
func (s *SQLiteStore) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteStore implements the crawler.Store interface
var _ crawler.Store = (*SQLiteStore)(nil)
