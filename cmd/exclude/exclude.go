package exclude

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/linksync/cmd/util"
	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/paths"
)

// Mocked out for unit testing.
var (
	fs                     = afero.NewOsFs()
	stdout       io.Writer = os.Stdout
	loadRegistry           = util.LoadRegistry
	saveLink               = (*config.Link).Save
	absPath                = filepath.Abs
)

// New creates a new `exclude` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "exclude PATH...",
		Short: "Stop synchronizing paths",
		Long: "Add each PATH to the exclusions of every link that contains it.\n" +
			"PATH may be inside a link's directory or one of its external\n" +
			"directories. Relative paths are relative to the working directory.",
		Args: cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(args); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(targets []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	changed := map[string]*config.Link{}
	for _, target := range targets {
		abs, err := absPath(target)
		if err != nil {
			return errors.WithContext(err, "get absolute path")
		}
		abs = paths.NormalizeSlashes(abs)

		links := registry.Containing(abs)
		if len(links) == 0 {
			return errors.NewFriendlyError(
				"%q isn't synchronized by any link, or is already excluded.", target)
		}

		for _, link := range links {
			rel, ok := relativeToLink(link, abs)
			if !ok {
				log.WithField("link", link.Name()).Warnf(
					"Can't exclude %q. It's either a root of the link, or "+
						"inside an external directory that doesn't exist.", target)
				continue
			}

			if link.Exclude(rel) {
				changed[link.Name()] = link
				fmt.Fprintf(stdout, "Excluded %q from link %q\n", rel, link.Name())
			}
		}
	}

	for _, link := range registry.All() {
		if _, ok := changed[link.Name()]; !ok {
			continue
		}
		if err := saveLink(link); err != nil {
			return errors.WithContext(err, fmt.Sprintf("save %s", link.Name()))
		}
	}
	return nil
}

// relativeToLink returns the path relative to whichever root of the link
// contains it. Exclusions apply to every root, so it doesn't matter which.
func relativeToLink(link *config.Link, abs string) (string, bool) {
	if rel, ok := link.RelativeToLocalRoot(abs); ok {
		return rel, true
	}

	for _, root := range link.ExternalRoots(fs, false) {
		if rel, ok := paths.RelativeTo(root, abs); ok {
			return rel, true
		}
	}
	return "", false
}
