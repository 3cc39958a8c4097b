package crawler

import (
	"strings"

	"filesdb-go/internal/model"
)

// downloadPriority ranks a release file for indexing. Pure-Python wheels are
// the best candidates because their layout needs no build step to inspect;
// CPython-specific wheels rank below sdists because their contents vary per
// interpreter build.
func downloadPriority(d model.Download) int {
	switch d.Type {
	case model.TypeWheel:
		tag := d.PythonVersion
		switch {
		case tag == "":
			return 5
		case strings.Contains(tag, "py2"):
			return 6
		case strings.Contains(tag, "py3"):
			return 7
		case strings.Contains(tag, "cp"):
			return 1
		default:
			return 4
		}
	case model.TypeEgg:
		return 3
	case model.TypeSdist:
		return 2
	default:
		return 0
	}
}

// SelectDownload picks the single best release file to index from the
// downloads of one project version, or nil if the list is empty. Ties on
// priority are broken by the lexicographically smallest filename so the
// choice is deterministic regardless of listing order.
func SelectDownload(downloads []model.Download) *model.Download {
	var best *model.Download
	bestPriority := -1

	for i := range downloads {
		d := &downloads[i]
		p := downloadPriority(*d)
		if p > bestPriority || (p == bestPriority && d.Name < best.Name) {
			best = d
			bestPriority = p
		}
	}
	return best
}
