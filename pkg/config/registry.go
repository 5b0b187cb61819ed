package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	goSync "sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/paths"
)

// skippedDirs are never searched for link definitions.
var skippedDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
}

// Registry tracks every link in a project. It's owned by the caller and
// passed to everything that needs to iterate over links. It's safe for
// concurrent use, but the links themselves aren't.
type Registry struct {
	project string

	lock  goSync.RWMutex
	links map[string]*Link
}

// NewRegistry creates an empty registry for the project directory.
func NewRegistry(project string) *Registry {
	return &Registry{
		project: paths.Clean(project),
		links:   map[string]*Link{},
	}
}

// DiscoverLinks searches the project directory for link definitions and
// returns a registry containing all of them.
func DiscoverLinks(project string) (*Registry, error) {
	registry := NewRegistry(project)

	err := afero.Walk(fs, registry.project, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if fi.IsDir() {
			if _, ok := skippedDirs[fi.Name()]; ok {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.HasSuffix(fi.Name(), LinkSuffix) {
			return nil
		}

		link, err := ParseLink(paths.NormalizeSlashes(path))
		if err != nil {
			return errors.WithContext(err, "parse link")
		}
		return registry.Add(link)
	})
	if err != nil {
		return nil, errors.WithContext(err, "discover links")
	}

	log.WithField("project", registry.project).Debugf("Found %d links", len(registry.links))
	return registry, nil
}

// Project returns the project directory.
func (r *Registry) Project() string {
	return r.project
}

// Add registers the link. Link names must be unique within a project.
func (r *Registry) Add(link *Link) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if existing, ok := r.links[link.Name()]; ok && existing.Path() != link.Path() {
		return errors.NewFriendlyError(
			"Two links are named %q (%q and %q). Link names must be unique.",
			link.Name(), existing.Path(), link.Path())
	}

	link.SetProject(r.project)
	r.links[link.Name()] = link
	return nil
}

// Remove unregisters the link with the given name.
func (r *Registry) Remove(name string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.links, name)
}

// Get returns the link with the given name.
func (r *Registry) Get(name string) (*Link, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	link, ok := r.links[strings.TrimSuffix(name, LinkSuffix)]
	if !ok {
		return nil, errors.UnknownLink{Name: name}
	}
	return link, nil
}

// All returns every registered link, sorted by name.
func (r *Registry) All() []*Link {
	r.lock.RLock()
	var links []*Link
	for _, link := range r.links {
		links = append(links, link)
	}
	r.lock.RUnlock()

	sort.Slice(links, func(i, j int) bool {
		return links[i].Name() < links[j].Name()
	})
	return links
}

// WithTrigger returns the links using the given trigger, sorted by name.
func (r *Registry) WithTrigger(trigger Trigger) []*Link {
	var links []*Link
	for _, link := range r.All() {
		if link.Trigger == trigger {
			links = append(links, link)
		}
	}
	return links
}

// Containing returns the links that contain the given path and don't
// exclude it.
func (r *Registry) Containing(p string) []*Link {
	p = paths.NewConverter(r.project).ToAbsolute(paths.RemoveTrailingSlashes(p))
	if p == "" {
		return nil
	}

	var links []*Link
	for _, link := range r.All() {
		if link.Contains(p) {
			links = append(links, link)
		}
	}
	return links
}
