package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"filesdb-go/internal/model"
	"filesdb-go/internal/testutil"
)

// testClock returns a fixed clock so recorded timestamps are deterministic.
func testClock() Clock { return testutil.FixedClock() }

// memStore is an in-memory Store used by the sweep tests. All methods are
// safe for concurrent use. Error injection fields make a specific call fail.
type memStore struct {
	mu sync.Mutex

	projects          map[string]bool // name -> versions retrieved
	projectVersions   []model.ProjectVersion
	downloads         map[string][]model.Download // "project \x00 version" -> downloads
	indexed           map[string]model.IndexStatus
	files             map[string][]model.File // download name -> files
	guesses           map[string][]model.ImportGuess
	operations        []model.CrawlOperation
	committedTxs      int
	rolledBackTxs     int
	markIndexedCalls  []string
	deletedProjects   []string
	replacedGuessesOf []string

	pageErr        error
	addFileErr     error
	commitErr      error
	markIndexedErr error
}

func newMemStore() *memStore {
	return &memStore{
		projects:  make(map[string]bool),
		downloads: make(map[string][]model.Download),
		indexed:   make(map[string]model.IndexStatus),
		files:     make(map[string][]model.File),
		guesses:   make(map[string][]model.ImportGuess),
	}
}

func dlKey(project, version string) string { return project + "\x00" + version }

// addProject registers a project and its versions directly, bypassing the
// sweeps, so tests can set up any starting state.
func (s *memStore) addProject(name string, versions ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[name]; !ok {
		s.projects[name] = len(versions) > 0
	}
	for _, v := range versions {
		s.projectVersions = append(s.projectVersions, model.ProjectVersion{ProjectName: name, Version: v})
	}
	s.sortVersionsLocked()
}

func (s *memStore) addDownload(d model.Download) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := dlKey(d.ProjectName, d.ProjectVersion)
	s.downloads[k] = append(s.downloads[k], d)
}

func (s *memStore) sortVersionsLocked() {
	sort.Slice(s.projectVersions, func(i, j int) bool {
		a, b := s.projectVersions[i], s.projectVersions[j]
		if a.ProjectName != b.ProjectName {
			return a.ProjectName < b.ProjectName
		}
		return a.Version < b.Version
	})
}

func (s *memStore) CountProjects(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.projects)), nil
}

func (s *memStore) CountProjectsBefore(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(0)
	for p := range s.projects {
		if p < name {
			n++
		}
	}
	return n, nil
}

func (s *memStore) ProjectVersionsPage(ctx context.Context, afterProject, afterVersion string, limit int) ([]model.ProjectVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	var page []model.ProjectVersion
	for _, pv := range s.projectVersions {
		if pv.ProjectName < afterProject ||
			(pv.ProjectName == afterProject && pv.Version <= afterVersion) {
			continue
		}
		page = append(page, pv)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (s *memStore) SeedProjects(ctx context.Context, names []string, seen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if _, ok := s.projects[n]; !ok {
			s.projects[n] = false
		}
	}
	return nil
}

func (s *memStore) ProjectsWithoutVersions(ctx context.Context, afterName string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for p, retrieved := range s.projects {
		if !retrieved && p > afterName {
			names = append(names, p)
		}
	}
	sort.Strings(names)
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (s *memStore) DeleteProject(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, name)
	kept := s.projectVersions[:0]
	for _, pv := range s.projectVersions {
		if pv.ProjectName != name {
			kept = append(kept, pv)
		}
	}
	s.projectVersions = kept
	s.deletedProjects = append(s.deletedProjects, name)
	return nil
}

func (s *memStore) RecordVersions(ctx context.Context, project string, versions []string, retrieved time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := make(map[string]bool)
	for _, pv := range s.projectVersions {
		if pv.ProjectName == project {
			existing[pv.Version] = true
		}
	}
	for _, v := range versions {
		if !existing[v] {
			s.projectVersions = append(s.projectVersions, model.ProjectVersion{ProjectName: project, Version: v})
		}
	}
	s.sortVersionsLocked()
	s.projects[project] = true
	return nil
}

func (s *memStore) RecordDownloads(ctx context.Context, project, version string, downloads []model.Download, retrieved time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := dlKey(project, version)
	existing := make(map[string]bool)
	for _, d := range s.downloads[k] {
		existing[d.Name] = true
	}
	for _, d := range downloads {
		if !existing[d.Name] {
			s.downloads[k] = append(s.downloads[k], d)
		}
	}
	return nil
}

func (s *memStore) VersionIndexed(ctx context.Context, project, version string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.downloads[dlKey(project, version)] {
		if s.indexed[d.Name] != "" {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListDownloads(ctx context.Context, project, version string) ([]model.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Download(nil), s.downloads[dlKey(project, version)]...), nil
}

func (s *memStore) MarkIndexed(ctx context.Context, downloadName string, status model.IndexStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markIndexedErr != nil {
		return s.markIndexedErr
	}
	s.indexed[downloadName] = status
	s.markIndexedCalls = append(s.markIndexedCalls, downloadName+":"+string(status))
	return nil
}

func (s *memStore) BeginIndex(ctx context.Context, downloadName string) (IndexTx, error) {
	return &memIndexTx{store: s, downloadName: downloadName}, nil
}

func (s *memStore) GuessExists(ctx context.Context, project, version string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.guesses[project] {
		if g.DeducedFrom == version {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) IndexedDownload(ctx context.Context, project, version string) (*model.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.Download
	for _, d := range s.downloads[dlKey(project, version)] {
		if s.indexed[d.Name] != model.StatusSuccess {
			continue
		}
		d := d
		if best == nil || d.Name < best.Name {
			best = &d
		}
	}
	return best, nil
}

func (s *memStore) FileNames(ctx context.Context, downloadName string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, f := range s.files[downloadName] {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memStore) ReplaceImportGuesses(ctx context.Context, project string, guesses []model.ImportGuess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guesses[project] = append([]model.ImportGuess(nil), guesses...)
	s.replacedGuessesOf = append(s.replacedGuessesOf, project)
	return nil
}

func (s *memStore) CreateOperation(ctx context.Context, operation, parameters string, startedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.operations) + 1)
	s.operations = append(s.operations, model.CrawlOperation{
		ID: id, Operation: operation, Parameters: parameters, StartedAt: startedAt, Status: "running",
	})
	return id, nil
}

func (s *memStore) FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.operations {
		if s.operations[i].ID == id {
			s.operations[i].Status = status
			s.operations[i].FinishedAt = &finishedAt
		}
	}
	return nil
}

func (s *memStore) Close() error { return nil }

// fileCount returns the number of file rows recorded for a download.
func (s *memStore) fileCount(downloadName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files[downloadName])
}

func (s *memStore) status(downloadName string) model.IndexStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexed[downloadName]
}

// memIndexTx buffers file rows until Commit so tests can verify that nothing
// leaks out of a rolled back attempt.
type memIndexTx struct {
	store        *memStore
	downloadName string
	staged       []model.File
	done         bool
}

func (tx *memIndexTx) AddFile(ctx context.Context, f model.File) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	if tx.store.addFileErr != nil {
		return tx.store.addFileErr
	}
	tx.staged = append(tx.staged, f)
	return nil
}

func (tx *memIndexTx) Commit(ctx context.Context, status model.IndexStatus) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	if tx.done {
		return nil
	}
	if tx.store.commitErr != nil {
		return tx.store.commitErr
	}
	tx.done = true
	tx.store.files[tx.downloadName] = append(tx.store.files[tx.downloadName], tx.staged...)
	tx.store.indexed[tx.downloadName] = status
	tx.store.committedTxs++
	return nil
}

func (tx *memIndexTx) Rollback() error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	if tx.done {
		return nil
	}
	tx.done = true
	tx.staged = nil
	tx.store.rolledBackTxs++
	return nil
}

var _ Store = (*memStore)(nil)

// fakeFetcher serves scripted manifests and artifact bodies.
type fakeFetcher struct {
	mu sync.Mutex

	manifests map[string]*ReleaseIndex
	errors    map[string]error // project -> ReleaseIndex error
	artifacts map[string][]byte
	statuses  map[string]int // url -> status override, default 200

	manifestCalls map[string]int
	artifactCalls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		manifests:     make(map[string]*ReleaseIndex),
		errors:        make(map[string]error),
		artifacts:     make(map[string][]byte),
		statuses:      make(map[string]int),
		manifestCalls: make(map[string]int),
		artifactCalls: make(map[string]int),
	}
}

func (f *fakeFetcher) ReleaseIndex(ctx context.Context, project string) (*ReleaseIndex, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifestCalls[project]++
	if err, ok := f.errors[project]; ok {
		return nil, err
	}
	if rel, ok := f.manifests[project]; ok {
		return rel, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, project)
}

func (f *fakeFetcher) FetchArtifact(ctx context.Context, url string, dest io.Writer) (int, error) {
	f.mu.Lock()
	body, ok := f.artifacts[url]
	status := f.statuses[url]
	f.artifactCalls[url]++
	f.mu.Unlock()

	if !ok {
		return 404, nil
	}
	if status == 0 {
		status = 200
	}
	if _, err := io.Copy(dest, bytes.NewReader(body)); err != nil {
		return 0, Retryable(err)
	}
	return status, nil
}

var _ Fetcher = (*fakeFetcher)(nil)

// fakeVault records mirrored artifacts; putErr makes every put fail.
type fakeVault struct {
	mu     sync.Mutex
	stored map[string][]byte
	putErr error
}

func newFakeVault() *fakeVault {
	return &fakeVault{stored: make(map[string][]byte)}
}

func (v *fakeVault) PutArtifact(checksum string, r io.Reader, size int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.putErr != nil {
		return v.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	v.stored[checksum] = data
	return nil
}

func (v *fakeVault) GetArtifact(checksum string, w io.Writer) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	data, ok := v.stored[checksum]
	if !ok {
		return fmt.Errorf("artifact not found: %s", checksum)
	}
	_, err := w.Write(data)
	return err
}

func (v *fakeVault) ValidateSetup() error { return nil }

func (v *fakeVault) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.stored)
}

var _ ArtifactVault = (*fakeVault)(nil)
