package sync

import (
	"sort"
	"time"

	"github.com/sidkik/linksync/pkg/paths"
)

// gatherCopiesPull copies the most recently modified external copy of each
// file into the local root, if it's newer than the local copy.
func (pl *planner) gatherCopiesPull() error {
	type candidate struct {
		path    string
		modTime time.Time
	}
	newest := map[string]candidate{}

	for _, root := range pl.externalRoots {
		t, err := pl.walk(root)
		if err != nil {
			return err
		}

		for _, dir := range t.dirs {
			pl.synchronize(dir)
			if local := paths.Join(pl.localRoot, dir); !dirExists(local) {
				pl.copy("", local)
			}
		}

		for _, file := range t.files {
			pl.synchronize(file)

			external := paths.Join(root, file)
			modified := modTime(external)
			if best, ok := newest[file]; ok && !modified.After(best.modTime) {
				continue
			}
			newest[file] = candidate{path: external, modTime: modified}
		}
	}

	for file, best := range newest {
		local := paths.Join(pl.localRoot, file)
		if pl.force || best.modTime.After(modTime(local)) {
			pl.copy(best.path, local)
		}
	}
	return nil
}

// gatherCopiesPush copies each local file into every external directory
// whose copy is older.
func (pl *planner) gatherCopiesPush() error {
	t, err := pl.walk(pl.localRoot)
	if err != nil {
		return err
	}

	for _, dir := range t.dirs {
		pl.synchronize(dir)
		for _, root := range pl.externalRoots {
			if external := paths.Join(root, dir); !dirExists(external) {
				pl.copy("", external)
			}
		}
	}

	for _, file := range t.files {
		pl.synchronize(file)

		local := paths.Join(pl.localRoot, file)
		modified := modTime(local)
		for _, root := range pl.externalRoots {
			external := paths.Join(root, file)
			if pl.force || modified.After(modTime(external)) {
				pl.copy(local, external)
			}
		}
	}
	return nil
}

// gatherCopiesSync copies the most recently modified copy of each file over
// every older copy in all roots. Paths that are being deleted by this plan
// are left alone.
func (pl *planner) gatherCopiesSync() error {
	roots := pl.allRoots()

	dirSet := map[string]struct{}{}
	fileSet := map[string]struct{}{}
	for _, root := range roots {
		t, err := pl.walk(root)
		if err != nil {
			return err
		}

		for _, dir := range t.dirs {
			dirSet[dir] = struct{}{}
		}
		for _, file := range t.files {
			fileSet[file] = struct{}{}
		}
	}

	for _, dir := range sortedKeys(dirSet) {
		if pl.isDeleting(roots, dir) {
			continue
		}

		pl.synchronize(dir)
		for _, root := range roots {
			if rooted := paths.Join(root, dir); !dirExists(rooted) {
				pl.copy("", rooted)
			}
		}
	}

	for _, file := range sortedKeys(fileSet) {
		if pl.isDeleting(roots, file) {
			continue
		}

		var newest string
		var newestModified time.Time
		for _, root := range roots {
			rooted := paths.Join(root, file)
			fi, ok := stat(rooted)
			if !ok || fi.IsDir() {
				continue
			}

			if newest == "" || fi.ModTime().After(newestModified) {
				newest = rooted
				newestModified = fi.ModTime()
			}
		}
		if newest == "" {
			continue
		}

		pl.synchronize(file)
		for _, root := range roots {
			rooted := paths.Join(root, file)
			if rooted == newest {
				continue
			}

			if pl.force || newestModified.After(modTime(rooted)) {
				pl.copy(newest, rooted)
			}
		}
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	var keys []string
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
