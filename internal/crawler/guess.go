package crawler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"filesdb-go/internal/model"
)

// excludedGuessFiles are top-level scripts whose stems say nothing about
// what the project is imported as.
var excludedGuessFiles = map[string]bool{
	"test.py":  true,
	"tests.py": true,
	"setup.py": true,
}

// GuessImports sweeps all projects and derives candidate import names from
// the file list of each project's latest successfully indexed download. The
// guess set for a project is replaced atomically; a sentinel row with an
// empty import path records "guessed, nothing found". Projects already
// guessed from their current latest version are skipped.
func (c *Crawler) GuessImports(ctx context.Context) (*Stats, error) {
	total, err := c.store.CountProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting projects: %w", err)
	}

	stats := &Stats{}
	matching, notMatching := 0, 0

	it := newVersionIterator(c.store, "", c.cfg.PageSize)
	for {
		group, err := it.Next(ctx)
		if err != nil {
			return stats, err
		}
		if group == nil {
			break
		}

		names, skipped, err := c.guessProject(ctx, group.Project, group.Versions)
		stats.Completed++
		switch {
		case err != nil:
			stats.Failed++
			c.logger.Error("guess failed", "project", group.Project, "error", err)
		case skipped:
			stats.Skipped++
		default:
			stats.Succeeded++
			if importsMatchProject(group.Project, names) {
				matching++
			} else {
				notMatching++
			}
		}

		if stats.Completed%c.cfg.ProgressEvery == 0 {
			c.logger.Info(fmt.Sprintf("%d / %d", stats.Completed, total))
		}
	}

	c.logger.Info("guess sweep finished",
		"total", total, "name_matching_import", matching, "not_matching", notMatching)
	return stats, ctx.Err()
}

// guessProject derives and stores the import guesses for one project.
// Returns the guessed names, or skipped=true when the project has no
// indexed download or was already guessed from its latest version.
func (c *Crawler) guessProject(ctx context.Context, project string, versions []string) ([]string, bool, error) {
	latest := LatestVersion(versions)
	if latest == "" {
		return nil, true, nil
	}

	guessed, err := c.store.GuessExists(ctx, project, latest)
	if err != nil {
		return nil, false, fmt.Errorf("checking prior guesses: %w", err)
	}
	if guessed {
		c.logger.Debug("already guessed, skipping", "project", project, "version", latest)
		return nil, true, nil
	}

	download, err := c.store.IndexedDownload(ctx, project, latest)
	if err != nil {
		return nil, false, fmt.Errorf("finding indexed download: %w", err)
	}
	if download == nil {
		c.logger.Debug("can't guess, no indexed files", "project", project, "version", latest)
		return nil, true, nil
	}

	files, err := c.store.FileNames(ctx, download.Name)
	if err != nil {
		return nil, false, fmt.Errorf("listing files: %w", err)
	}

	names := GuessImportNames(files)

	guesses := make([]model.ImportGuess, 0, len(names))
	for _, name := range names {
		guesses = append(guesses, model.ImportGuess{
			ProjectName:     project,
			ImportPath:      name,
			DeducedFrom:     latest,
			DeducedFromName: download.Name,
		})
	}
	if len(guesses) == 0 {
		c.logger.Info("guess yielded nothing", "project", project, "version", latest)
		guesses = append(guesses, model.ImportGuess{
			ProjectName:     project,
			ImportPath:      "",
			DeducedFrom:     latest,
			DeducedFromName: download.Name,
		})
	} else {
		c.logger.Info("guessed imports", "project", project, "version", latest, "imports", strings.Join(names, ","))
	}

	if err := c.store.ReplaceImportGuesses(ctx, project, guesses); err != nil {
		return nil, false, fmt.Errorf("replacing guesses: %w", err)
	}
	return names, false, nil
}

// GuessImportNames derives the unique candidate import names from a
// download's file list: the first path segment of nested .py files, or the
// stem of eligible top-level .py files. Results are sorted.
func GuessImportNames(files []string) []string {
	seen := make(map[string]bool)
	for _, f := range files {
		if !strings.HasSuffix(f, ".py") || excludedGuessFiles[f] {
			continue
		}
		var name string
		if i := strings.Index(f, "/"); i >= 0 {
			name = f[:i]
		} else {
			name = strings.TrimSuffix(f, ".py")
		}
		if name != "" {
			seen[name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// importsMatchProject reports whether any guessed import name matches the
// project's own name, allowing a stripped "python-" prefix and hyphen to
// underscore folding. Used only for the end-of-sweep tally.
func importsMatchProject(project string, imports []string) bool {
	candidates := map[string]bool{strings.ReplaceAll(project, "-", "_"): true}
	if rest, ok := strings.CutPrefix(project, "python-"); ok {
		candidates[strings.ReplaceAll(rest, "-", "_")] = true
	}
	for _, imp := range imports {
		if candidates[imp] {
			return true
		}
	}
	return false
}
