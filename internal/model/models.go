package model

import "time"

// IndexStatus is the terminal outcome recorded on a download after one
// processing attempt. A download with no recorded status has never been
// attempted.
type IndexStatus string

const (
	// StatusSuccess means file rows were inserted for the download.
	StatusSuccess IndexStatus = "yes"
	// StatusBadArchive means the container could not be decoded.
	StatusBadArchive IndexStatus = "bad archive"
	// StatusWrongStructure means an sdist member was outside the expected
	// top-level directory.
	StatusWrongStructure IndexStatus = "wrong structure"
	// StatusNoFiles means the archive decoded fine but every member was
	// filtered out.
	StatusNoFiles IndexStatus = "no files"
)

// Terminal reports whether s is one of the recognized terminal statuses.
func (s IndexStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusBadArchive, StatusWrongStructure, StatusNoFiles:
		return true
	}
	return false
}

// Download package types as reported by the PyPI API.
const (
	TypeWheel = "bdist_wheel"
	TypeEgg   = "bdist_egg"
	TypeSdist = "sdist"
)

// Project is a named package on the index. Name is normalized per PEP 503
// (lowercase, underscores mapped to hyphens).
type Project struct {
	Name              string
	Seen              *time.Time // last time the project appeared in a listing
	VersionsRetrieved *time.Time // set once project_versions has been populated
	Deleted           *time.Time // set when absent from a refreshed listing
}

// ProjectVersion is one released version of a project.
type ProjectVersion struct {
	ProjectName        string
	Version            string
	DownloadsRetrieved *time.Time // set once downloads has been populated
}

// Download is one release artifact of a project version. The artifact
// filename is globally unique on the index and serves as the primary key.
type Download struct {
	Name           string // full artifact filename, e.g. "reprozip-1.0.16-py2.py3-none-any.whl"
	ProjectName    string
	ProjectVersion string
	SizeBytes      int64
	URL            string
	Type           string // "bdist_wheel", "bdist_egg", "sdist", ...
	PythonVersion  string // declared tag, e.g. "py2.py3", "cp39", "source"
	MD5            string // digest reported by the index, not computed locally
	SHA256         string
	Indexed        IndexStatus // empty until a processing attempt completes
}

// File is one logical file found inside a download's archive. All of a
// download's files are inserted in a single transaction or not at all.
type File struct {
	DownloadName string
	Name         string // in-archive relative path
	SizeBytes    int64
	SHA1         string
	SHA256       string
}

// ImportGuess is a heuristically derived import name for a project. The
// full guess set for a project is replaced atomically; a row with an empty
// ImportPath records that guessing ran and found nothing.
type ImportGuess struct {
	ProjectName     string
	ImportPath      string
	DeducedFrom     string // version the guess was deduced from
	DeducedFromName string // download the guess was deduced from
}

// CrawlOperation tracks one database-mutating CLI run.
type CrawlOperation struct {
	ID         int64
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string // "success" or "error"
}
