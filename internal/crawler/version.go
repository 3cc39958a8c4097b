package crawler

import (
	pep440 "github.com/aquasecurity/go-pep440-version"
)

// LatestVersion returns the highest version string by PEP 440 ordering
// (pre/post/dev-release aware). Versions that fail to parse sort below every
// parseable version and compare to each other as plain text, so a project
// with only malformed versions still yields a deterministic pick. Returns
// "" for an empty slice.
func LatestVersion(versions []string) string {
	best := ""
	var bestParsed *pep440.Version
	haveBest := false

	for _, v := range versions {
		if v == "" {
			continue
		}
		parsed, err := pep440.Parse(v)
		if err != nil {
			if !haveBest && (best == "" || v > best) {
				best = v
			}
			continue
		}
		if !haveBest || parsed.GreaterThan(*bestParsed) {
			best = v
			bestParsed = &parsed
			haveBest = true
		}
	}
	return best
}
