package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/paths"
)

// Copy is a single operation of a Plan. An empty From means that To is a
// directory that should be created.
type Copy struct {
	From string
	To   string
}

// IsMkdir returns whether the copy creates a directory rather than copying a
// file.
func (c Copy) IsMkdir() bool {
	return c.From == ""
}

// Plan is the set of operations that synchronize a link.
type Plan struct {
	Link      *config.Link
	Direction config.Direction
	Force     bool

	// Deletions are absolute paths, ordered so that files are deleted before
	// the directories containing them.
	Deletions []string

	// Copies are sorted by destination, so directories are created before
	// anything is copied into them.
	Copies []Copy

	// SynchronizedPaths are the sorted relative paths that were considered
	// by the plan. They replace the link's SynchronizedPaths once the plan
	// is executed.
	SynchronizedPaths []string
}

// NewPlan computes the operations that synchronize the link in the given
// direction. When `force` is set, files are copied regardless of their
// modification times. The link is flagged as errored if planning fails.
func NewPlan(link *config.Link, direction config.Direction, force bool) (*Plan, error) {
	plan, err := newPlanner(link, direction, force).run()
	if err != nil {
		link.EncounteredError = true
		return nil, errors.WithContext(err, fmt.Sprintf("plan %s", link.Name()))
	}
	return plan, nil
}

// IsEmpty returns whether executing the plan would change nothing, including
// the link's record of synchronized paths.
func (p *Plan) IsEmpty() bool {
	return len(p.Deletions) == 0 && len(p.Copies) == 0 &&
		equalPaths(p.SynchronizedPaths, p.Link.SynchronizedPaths)
}

// Len returns the number of filesystem operations in the plan.
func (p *Plan) Len() int {
	return len(p.Deletions) + len(p.Copies)
}

func (p *Plan) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s", p.Link.Name(), p.Direction)
	if p.Force {
		sb.WriteString(", forced")
	}
	sb.WriteString(")\n")

	if p.IsEmpty() {
		sb.WriteString("  Already up to date.\n")
		return sb.String()
	}

	for _, path := range p.Deletions {
		fmt.Fprintf(&sb, "  delete  %s\n", path)
	}
	for _, c := range p.Copies {
		if c.IsMkdir() {
			fmt.Fprintf(&sb, "  mkdir   %s\n", c.To)
		} else {
			fmt.Fprintf(&sb, "  copy    %s -> %s\n", c.From, c.To)
		}
	}
	fmt.Fprintf(&sb, "  %d synchronized paths\n", len(p.SynchronizedPaths))
	return sb.String()
}

func equalPaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type planner struct {
	link      *config.Link
	direction config.Direction
	force     bool

	localRoot     string
	externalRoots []string

	deleting     map[string]struct{}
	copies       map[string]string
	synchronized map[string]struct{}
}

func newPlanner(link *config.Link, direction config.Direction, force bool) *planner {
	return &planner{
		link:          link,
		direction:     direction,
		force:         force,
		localRoot:     paths.Clean(link.LocalRoot()),
		externalRoots: link.ExternalRoots(fs, false),
		deleting:      map[string]struct{}{},
		copies:        map[string]string{},
		synchronized:  map[string]struct{}{},
	}
}

func (pl *planner) run() (*Plan, error) {
	plan := &Plan{
		Link:      pl.link,
		Direction: pl.direction,
		Force:     pl.force,
	}

	// Without any valid external directories there's nothing to compare
	// against, and every previously synchronized path would look deleted.
	if len(pl.externalRoots) == 0 {
		log.WithField("link", pl.link.Name()).Debug(
			"No valid external directories. Nothing to synchronize.")
		plan.SynchronizedPaths = append([]string(nil), pl.link.SynchronizedPaths...)
		return plan, nil
	}

	var err error
	switch pl.direction {
	case config.Pull:
		pl.gatherDeletionsPull()
		err = pl.gatherCopiesPull()
	case config.Push:
		pl.gatherDeletionsPush()
		err = pl.gatherCopiesPush()
	case config.Sync:
		pl.gatherDeletionsSync()
		err = pl.gatherCopiesSync()
	default:
		return nil, errors.NewFriendlyError("Unhandled direction %q.", pl.direction)
	}
	if err != nil {
		return nil, err
	}

	for path := range pl.deleting {
		plan.Deletions = append(plan.Deletions, path)
	}
	sort.Strings(plan.Deletions)
	paths.SortLongestFirst(plan.Deletions)

	for to, from := range pl.copies {
		plan.Copies = append(plan.Copies, Copy{From: from, To: to})
	}
	sort.Slice(plan.Copies, func(i, j int) bool {
		return plan.Copies[i].To < plan.Copies[j].To
	})

	for path := range pl.synchronized {
		plan.SynchronizedPaths = append(plan.SynchronizedPaths, path)
	}
	sort.Strings(plan.SynchronizedPaths)
	return plan, nil
}

func (pl *planner) delete(path string) {
	pl.deleting[path] = struct{}{}
}

func (pl *planner) copy(from, to string) {
	pl.copies[to] = from
}

func (pl *planner) synchronize(rel string) {
	pl.synchronized[rel] = struct{}{}
}

// tree is the contents of a root as paths relative to it. Excluded paths and
// the link definition are left out.
type tree struct {
	dirs  []string
	files []string
}

func (pl *planner) walk(root string) (tree, error) {
	var t tree
	if !dirExists(root) {
		return t, nil
	}

	err := afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, ok := paths.RelativeTo(root, paths.NormalizeSlashes(path))
		if !ok {
			return nil
		}

		if pl.link.IsExcluded(rel) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if fi.IsDir() {
			t.dirs = append(t.dirs, rel)
			return nil
		}

		if !pl.link.IsDefinitionFile(rel) {
			t.files = append(t.files, rel)
		}
		return nil
	})
	if err != nil {
		return tree{}, errors.WithContext(err, fmt.Sprintf("walk %s", root))
	}
	return t, nil
}

func (pl *planner) allRoots() []string {
	return append([]string{pl.localRoot}, pl.externalRoots...)
}
