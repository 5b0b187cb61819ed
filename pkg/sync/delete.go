package sync

import (
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/paths"
)

// previouslySynchronized returns the link's synchronized paths that can be
// safely resolved against a root. Paths that escape their root are dropped.
func (pl *planner) previouslySynchronized() []string {
	var rels []string
	for _, rel := range pl.link.SynchronizedPaths {
		rel = paths.RemoveTrailingSlashes(paths.Clean(rel))
		switch {
		case rel == "", rel == ".":
			continue
		case rel == "..", strings.HasPrefix(rel, "../"), paths.IsAbs(rel):
			log.WithField("link", pl.link.Name()).WithField("path", rel).Warn(
				"Ignoring synchronized path outside of the link")
			continue
		}

		if pl.link.IsExcluded(rel) || pl.link.IsDefinitionFile(rel) {
			continue
		}
		rels = append(rels, rel)
	}
	return rels
}

// gatherDeletionsPull deletes local copies of paths that no longer exist in
// any external directory.
func (pl *planner) gatherDeletionsPull() {
	for _, rel := range pl.previouslySynchronized() {
		if pl.existsInAny(pl.externalRoots, rel) {
			continue
		}

		local := paths.Join(pl.localRoot, rel)
		if exists(local) {
			pl.delete(local)
		}
	}
}

// gatherDeletionsPush deletes external copies of paths that no longer exist
// locally.
func (pl *planner) gatherDeletionsPush() {
	for _, rel := range pl.previouslySynchronized() {
		if exists(paths.Join(pl.localRoot, rel)) {
			continue
		}

		for _, root := range pl.externalRoots {
			external := paths.Join(root, rel)
			if exists(external) {
				pl.delete(external)
			}
		}
	}
}

// gatherDeletionsSync propagates a deletion from any root to every other
// root, unless one of the surviving copies was modified since the last
// execution. In that case the edit wins and the path is copied back instead.
//
// Directory modification times change whenever their contents do, including
// during the previous execution, so a surviving directory only counts as
// modified if something inside it changed or wasn't synchronized before.
func (pl *planner) gatherDeletionsSync() {
	synchronized := map[string]struct{}{}
	for _, rel := range pl.link.SynchronizedPaths {
		synchronized[paths.RemoveTrailingSlashes(paths.Clean(rel))] = struct{}{}
	}

	for _, rel := range pl.previouslySynchronized() {
		var existing []string
		var missing, modified bool
		for _, root := range pl.allRoots() {
			rooted := paths.Join(root, rel)
			fi, ok := stat(rooted)
			if !ok {
				missing = true
				continue
			}

			existing = append(existing, rooted)
			switch {
			case fi.IsDir():
				if pl.changedInside(rooted, rel, synchronized) {
					modified = true
				}
			case fi.ModTime().After(pl.link.LastExecuted):
				modified = true
			}
		}

		if !missing || modified {
			continue
		}
		for _, path := range existing {
			pl.delete(path)
		}
	}
}

var errChanged = errors.New("changed")

// changedInside returns whether anything inside the directory was modified
// since the last execution, or wasn't part of it. `rel` is the directory's
// path relative to its root.
func (pl *planner) changedInside(dir, rel string, synchronized map[string]struct{}) bool {
	err := afero.Walk(fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		sub, ok := paths.RelativeTo(dir, paths.NormalizeSlashes(path))
		if !ok {
			return nil
		}

		childRel := paths.Join(rel, sub)
		if pl.link.IsExcluded(childRel) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if _, ok := synchronized[childRel]; !ok {
			return errChanged
		}
		if !fi.IsDir() && fi.ModTime().After(pl.link.LastExecuted) {
			return errChanged
		}
		return nil
	})
	return err == errChanged
}

func (pl *planner) existsInAny(roots []string, rel string) bool {
	for _, root := range roots {
		if exists(paths.Join(root, rel)) {
			return true
		}
	}
	return false
}

// isDeleting returns whether the relative path, or any directory containing
// it, is being deleted from any of the roots.
func (pl *planner) isDeleting(roots []string, rel string) bool {
	for _, root := range roots {
		for p := rel; p != "." && p != ""; p = parent(p) {
			if _, ok := pl.deleting[paths.Join(root, p)]; ok {
				return true
			}
		}
	}
	return false
}

func parent(rel string) string {
	i := strings.LastIndexByte(rel, paths.Slash)
	if i < 0 {
		return ""
	}
	return rel[:i]
}
