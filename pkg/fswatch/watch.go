package fswatch

import (
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/paths"
)

var fs = afero.NewOsFs()

// Filter decides whether a path should be watched. Paths that are filtered
// out don't trigger updates, and neither does anything inside them.
type Filter func(path string) bool

// Watcher watches a set of directory trees for changes.
type Watcher struct {
	updates chan struct{}
	keep    Filter
	add     func(string) error
	closer  io.Closer
}

// Watch watches the roots and every directory inside them. An update is sent
// on the Updates channel whenever anything inside the roots changes. Roots
// that can't be watched are logged and ignored.
func Watch(roots []string, keep Filter) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	w := newWatcher(keep, fsw.Add)
	w.closer = fsw
	for _, root := range roots {
		w.addTree(root)
	}

	go w.run(fsw.Events, fsw.Errors)
	return w, nil
}

func newWatcher(keep Filter, add func(string) error) *Watcher {
	if keep == nil {
		keep = func(string) bool { return true }
	}

	return &Watcher{
		updates: make(chan struct{}, 1),
		keep:    keep,
		add:     add,
	}
}

// Updates returns the channel that receives an event whenever a watched path
// changes. Bursts of changes are combined into a single event. The channel is
// closed when the watcher is closed.
func (w *Watcher) Updates() <-chan struct{} {
	return w.updates
}

// Close stops watching and releases the underlying file handles.
func (w *Watcher) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

func (w *Watcher) run(events <-chan fsnotify.Event, errs <-chan error) {
	defer close(w.updates)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}

			path := paths.NormalizeSlashes(event.Name)
			if !w.keep(path) {
				continue
			}

			// fsnotify doesn't watch recursively, so new directories have to
			// be added as they show up.
			if event.Op&fsnotify.Create != 0 {
				if fi, err := fs.Stat(path); err == nil && fi.IsDir() {
					w.addTree(path)
				}
			}

			select {
			case w.updates <- struct{}{}:
			default:
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			log.WithError(err).Warn("File watch error")
		}
	}
}

func (w *Watcher) addTree(root string) {
	dirs, err := getPathsToWatch(root, w.keep)
	if err != nil {
		log.WithError(err).WithField("path", root).Warn("Failed to watch directory")
		return
	}

	for _, dir := range dirs {
		if err := w.add(dir); err != nil {
			log.WithError(err).WithField("path", dir).Warn("Failed to watch directory")
		}
	}
}

// getPathsToWatch returns the root and all of the directories inside it.
// Files don't need to be watched since changes to them are reported on their
// parent directory.
func getPathsToWatch(root string, keep Filter) (dirs []string, err error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}

	if !fi.IsDir() {
		return nil, errors.NewFriendlyError("%q is not a directory", root)
	}

	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if !fi.IsDir() {
			return nil
		}

		path = paths.Clean(path)
		if path != paths.Clean(root) && !keep(path) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs, err
}
