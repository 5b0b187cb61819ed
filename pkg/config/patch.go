package config

import (
	"fmt"
	"strings"

	"github.com/sidkik/linksync/pkg/paths"
)

// LinkPatch is a set of edits to a link's user-editable settings. Fields that
// are nil or empty are left unchanged.
type LinkPatch struct {
	Direction *Direction
	Trigger   *Trigger

	AddExternal    []string
	RemoveExternal []string

	AddExclusions    []string
	RemoveExclusions []string
}

// DiffLinks returns the patch that turns the settings of `old` into the
// settings of `new`. Fields that are updated automatically during execution
// aren't compared.
func DiffLinks(old, new *Link) LinkPatch {
	var patch LinkPatch
	if old.Direction != new.Direction {
		direction := new.Direction
		patch.Direction = &direction
	}
	if old.Trigger != new.Trigger {
		trigger := new.Trigger
		patch.Trigger = &trigger
	}

	patch.AddExternal, patch.RemoveExternal = diffLists(old.ExternalDirectories, new.ExternalDirectories)
	patch.AddExclusions, patch.RemoveExclusions = diffLists(old.Exclusions, new.Exclusions)
	return patch
}

// IsEmpty returns whether applying the patch would change nothing.
func (p LinkPatch) IsEmpty() bool {
	return p.Direction == nil && p.Trigger == nil &&
		len(p.AddExternal) == 0 && len(p.RemoveExternal) == 0 &&
		len(p.AddExclusions) == 0 && len(p.RemoveExclusions) == 0
}

// Apply edits the link according to the patch.
func (p LinkPatch) Apply(link *Link) {
	if p.Direction != nil {
		link.Direction = *p.Direction
	}
	if p.Trigger != nil {
		link.Trigger = *p.Trigger
	}

	link.ExternalDirectories = patchList(link.ExternalDirectories, p.AddExternal, p.RemoveExternal)
	link.Exclusions = patchList(link.Exclusions, p.AddExclusions, p.RemoveExclusions)
}

func (p LinkPatch) String() string {
	var changes []string
	if p.Direction != nil {
		changes = append(changes, fmt.Sprintf("direction=%s", *p.Direction))
	}
	if p.Trigger != nil {
		changes = append(changes, fmt.Sprintf("trigger=%s", *p.Trigger))
	}
	for _, dir := range p.AddExternal {
		changes = append(changes, "+external "+dir)
	}
	for _, dir := range p.RemoveExternal {
		changes = append(changes, "-external "+dir)
	}
	for _, exclusion := range p.AddExclusions {
		changes = append(changes, "+exclusion "+exclusion)
	}
	for _, exclusion := range p.RemoveExclusions {
		changes = append(changes, "-exclusion "+exclusion)
	}

	if len(changes) == 0 {
		return "no changes"
	}
	return strings.Join(changes, ", ")
}

// diffLists returns the normalized entries that are only in `new`, and the
// ones that are only in `old`.
func diffLists(old, new []string) (added, removed []string) {
	oldSet := toSet(old)
	newSet := toSet(new)

	for _, entry := range new {
		entry = normalizeEntry(entry)
		if _, ok := oldSet[entry]; !ok {
			added = appendUnique(added, entry)
		}
	}
	for _, entry := range old {
		entry = normalizeEntry(entry)
		if _, ok := newSet[entry]; !ok {
			removed = appendUnique(removed, entry)
		}
	}
	return added, removed
}

func patchList(list, add, remove []string) []string {
	removeSet := toSet(remove)

	var patched []string
	for _, entry := range list {
		if _, ok := removeSet[normalizeEntry(entry)]; ok {
			continue
		}
		patched = append(patched, entry)
	}

	existing := toSet(patched)
	for _, entry := range add {
		entry = normalizeEntry(entry)
		if _, ok := existing[entry]; ok {
			continue
		}
		existing[entry] = struct{}{}
		patched = append(patched, entry)
	}
	return patched
}

func normalizeEntry(entry string) string {
	return paths.RemoveTrailingSlashes(paths.Clean(entry))
}

func toSet(entries []string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, entry := range entries {
		set[normalizeEntry(entry)] = struct{}{}
	}
	return set
}

func appendUnique(list []string, entry string) []string {
	for _, existing := range list {
		if existing == entry {
			return list
		}
	}
	return append(list, entry)
}
