package config

import (
	"path"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/paths"
)

// LinkSuffix is the file name suffix of link definitions. The name of a link
// is its file name without the suffix.
const LinkSuffix = ".link.yaml"

// Direction determines which way files flow when a link is executed.
type Direction string

const (
	// Pull overwrites local files with any external changes.
	Pull Direction = "Pull"

	// Push overwrites external files with any local changes.
	Push Direction = "Push"

	// Sync mirrors any changes to all other locations.
	Sync Direction = "Sync"
)

// Directions lists every valid Direction.
var Directions = []Direction{Pull, Push, Sync}

// ParseDirection parses a direction name, ignoring case.
func ParseDirection(s string) (Direction, error) {
	for _, d := range Directions {
		if strings.EqualFold(string(d), s) {
			return d, nil
		}
	}
	return "", errors.NewFriendlyError(
		"Unknown direction %q. Expected one of Pull, Push or Sync.", s)
}

// Trigger determines when a link is executed.
type Trigger string

const (
	// Manual links are only executed when the user asks.
	Manual Trigger = "Manual"

	// Notify links are executed manually, but the user is told when there
	// are modified files to synchronize.
	Notify Trigger = "Notify"

	// Automatic links are executed whenever modified files are detected.
	Automatic Trigger = "Automatic"
)

// Triggers lists every valid Trigger.
var Triggers = []Trigger{Manual, Notify, Automatic}

// ParseTrigger parses a trigger name, ignoring case.
func ParseTrigger(s string) (Trigger, error) {
	for _, t := range Triggers {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", errors.NewFriendlyError(
		"Unknown trigger %q. Expected one of Manual, Notify or Automatic.", s)
}

// Link describes one synchronization relationship between the directory
// containing the link definition (the local root) and its external
// directories.
type Link struct {
	Version string `json:"version,omitempty"`

	// ExternalDirectories are synchronized with the local root. Relative
	// paths are relative to the project directory.
	ExternalDirectories []string `json:"externalDirectories,omitempty"`

	// Exclusions are paths relative to the local root that are never
	// synchronized. Excluding a directory excludes everything inside it.
	Exclusions []string `json:"exclusions,omitempty"`

	Direction Direction `json:"direction,omitempty"`
	Trigger   Trigger   `json:"trigger,omitempty"`

	// LastExecuted is when the link was last successfully executed. It's
	// updated automatically.
	LastExecuted time.Time `json:"lastExecuted,omitempty"`

	// SynchronizedPaths are the relative paths of everything that was
	// synchronized by the last execution. It's updated automatically.
	SynchronizedPaths []string `json:"synchronizedPaths,omitempty"`

	// EncounteredError is set when planning or executing the link fails. It
	// disables Automatic execution until the link is executed successfully.
	EncounteredError bool `json:"-"`

	// OutOfDate is only set for Notify links.
	OutOfDate bool `json:"-"`

	// Only populated and consumed by linksync. Never set by the user.
	path    string
	project string
}

func (l Link) getVersion() string {
	return l.Version
}

// NewLink creates a link with the default settings that will be stored at
// `definitionPath`.
func NewLink(definitionPath string) *Link {
	return &Link{
		Version:   CurrentVersion,
		Direction: Pull,
		Trigger:   Manual,
		path:      paths.Clean(definitionPath),
	}
}

// ParseLink parses the link definition stored at `definitionPath`.
func ParseLink(definitionPath string) (*Link, error) {
	if !strings.HasSuffix(definitionPath, LinkSuffix) {
		return nil, errors.NewFriendlyError(
			"Link definitions must be named `<name>%s`, but got %q.",
			LinkSuffix, definitionPath)
	}

	link := NewLink(definitionPath)
	if err := parseConfig(link.path, link); err != nil {
		return nil, errors.WithContext(err, "parse")
	}

	if _, err := ParseDirection(string(link.Direction)); err != nil {
		return nil, errors.WithContext(err, "parse direction")
	}
	if _, err := ParseTrigger(string(link.Trigger)); err != nil {
		return nil, errors.WithContext(err, "parse trigger")
	}

	link.LastExecuted = link.LastExecuted.UTC()
	return link, nil
}

// Clone returns a copy of the link that shares no state with it.
func (l *Link) Clone() *Link {
	clone := *l
	clone.ExternalDirectories = append([]string(nil), l.ExternalDirectories...)
	clone.Exclusions = append([]string(nil), l.Exclusions...)
	clone.SynchronizedPaths = append([]string(nil), l.SynchronizedPaths...)
	return &clone
}

// Save writes the link definition to disk.
func (l *Link) Save() error {
	return errors.WithContext(writeConfig(l.path, l), "save link")
}

// Name returns the name of the link, which is derived from its definition's
// file name.
func (l *Link) Name() string {
	return strings.TrimSuffix(path.Base(l.path), LinkSuffix)
}

// Path returns the absolute path of the link definition.
func (l *Link) Path() string {
	return l.path
}

// LocalRoot returns the directory containing the link definition.
func (l *Link) LocalRoot() string {
	return path.Dir(l.path)
}

// Project returns the project directory that relative external directories
// are resolved against.
func (l *Link) Project() string {
	return l.project
}

// SetProject sets the project directory. It's set by the Registry when the
// link is added.
func (l *Link) SetProject(project string) {
	l.project = paths.Clean(project)
}

// IsDefinitionFile returns whether the path, relative to any root of the
// link, refers to the link definition or its metadata companion.
func (l *Link) IsDefinitionFile(rel string) bool {
	rel = paths.NormalizeSlashes(rel)
	name := path.Base(l.path)
	return rel == name || rel == name+paths.MetaSuffix
}

// IsExcluded returns whether the path relative to a root of the link is
// excluded from synchronization.
func (l *Link) IsExcluded(rel string) bool {
	return paths.IsExcluded(rel, l.Exclusions)
}

// Exclude adds the relative path to the exclusions. It returns false if the
// path was already excluded.
func (l *Link) Exclude(rel string) bool {
	rel = paths.RemoveTrailingSlashes(paths.Clean(rel))
	for _, exclusion := range l.Exclusions {
		if paths.Clean(exclusion) == rel {
			return false
		}
	}
	l.Exclusions = append(l.Exclusions, rel)
	return true
}

// ExternalRoots returns the absolute paths of the external directories that
// are valid. Invalid directories are skipped.
func (l *Link) ExternalRoots(fs afero.Fs, logWarnings bool) []string {
	conv := paths.NewConverter(l.project)

	var roots []string
	for _, dir := range l.ExternalDirectories {
		expanded, err := homedir.Expand(dir)
		if err == nil {
			err = paths.ValidateExternalRoot(fs, conv, expanded, l.LocalRoot())
		}

		if err != nil {
			logger := log.WithField("link", l.Name()).WithError(err)
			if logWarnings {
				logger.Warn("Skipping external directory")
			} else {
				logger.Debug("Skipping external directory")
			}
			continue
		}

		roots = append(roots, conv.ToAbsolute(expanded))
	}
	return roots
}

// ArePathsValid returns whether the link has at least one external
// directory and all of them are valid.
func (l *Link) ArePathsValid(fs afero.Fs) bool {
	return len(l.ExternalDirectories) > 0 &&
		len(l.ExternalRoots(fs, false)) == len(l.ExternalDirectories)
}

// Contains returns whether the absolute path is inside the local root or
// one of the external directories, and isn't excluded.
func (l *Link) Contains(p string) bool {
	conv := paths.NewConverter(l.project)
	p = conv.ToAbsolute(p)

	roots := []string{l.LocalRoot()}
	for _, dir := range l.ExternalDirectories {
		if expanded, err := homedir.Expand(dir); err == nil && expanded != "" {
			roots = append(roots, conv.ToAbsolute(expanded))
		}
	}

	for _, root := range roots {
		if p == root {
			return true
		}

		if rel, ok := paths.RelativeTo(root, p); ok {
			return !l.IsExcluded(rel)
		}
	}
	return false
}

// RelativeToLocalRoot returns `p` relative to the local root.
func (l *Link) RelativeToLocalRoot(p string) (string, bool) {
	return paths.RelativeTo(l.LocalRoot(), paths.NewConverter(l.project).ToAbsolute(p))
}
