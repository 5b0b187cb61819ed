package initialize

import (
	"fmt"
	"io"
	"os"
	"path"

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
)

type options struct {
	name       string
	external   []string
	exclusions []string
	direction  string
	trigger    string
}

// New creates a new `init` command.
func New() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "init DIRECTORY",
		Short: "Create a link for a directory in the project",
		Long: "Create a link definition in DIRECTORY, which becomes the link's local\n" +
			"directory. Relative paths are relative to the project directory.\n\n" +
			"The definition is written to `<name>.link.yaml` and can be edited\n" +
			"later with `linksync config`.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(args[0], opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "",
		"The name of the link. Defaults to the name of DIRECTORY.")
	cmd.Flags().StringArrayVarP(&opts.external, "external", "e", nil,
		"An external directory to synchronize with. Can be repeated.")
	cmd.Flags().StringArrayVar(&opts.exclusions, "exclude", nil,
		"A path, relative to DIRECTORY, that is never synchronized. Can be repeated.")
	cmd.Flags().StringVarP(&opts.direction, "direction", "d", string(config.Pull),
		"How files flow when the link is executed: Pull, Push or Sync.")
	cmd.Flags().StringVarP(&opts.trigger, "trigger", "t", string(config.Manual),
		"When the link is executed: Manual, Notify or Automatic.")
	return cmd
}

func run(dir string, opts options) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	link, err := newLink(registry, dir, opts)
	if err != nil {
		return err
	}

	if err := registry.Add(link); err != nil {
		return err
	}

	// Warn about bad external directories now rather than when the link is
	// first executed.
	link.ExternalRoots(fs, true)

	if err := saveLink(link); err != nil {
		return errors.WithContext(err, "write link")
	}

	fmt.Fprintf(stdout, "Created link %q at %s\n", link.Name(), link.Path())
	return nil
}

func newLink(registry *config.Registry, dir string, opts options) (*config.Link, error) {
	project := registry.Project()
	dir = paths.NewConverter(project).ToAbsolute(dir)
	if !paths.IsInside(dir, project) {
		return nil, errors.NewFriendlyError(
			"%q is outside of the project directory %q.", dir, project)
	}

	isDir, err := afero.IsDir(fs, dir)
	if err != nil || !isDir {
		return nil, errors.NewFriendlyError("%q is not a directory.", dir)
	}

	name := opts.name
	if name == "" {
		name = path.Base(dir)
	}

	definitionPath := paths.Join(dir, name+config.LinkSuffix)
	if exists, _ := afero.Exists(fs, definitionPath); exists {
		return nil, errors.NewFriendlyError("%q already exists.", definitionPath)
	}

	direction, err := config.ParseDirection(opts.direction)
	if err != nil {
		return nil, err
	}

	trigger, err := config.ParseTrigger(opts.trigger)
	if err != nil {
		return nil, err
	}

	link := config.NewLink(definitionPath)
	link.Direction = direction
	link.Trigger = trigger
	for _, external := range opts.external {
		link.ExternalDirectories = append(link.ExternalDirectories,
			paths.RemoveTrailingSlashes(paths.NormalizeSlashes(external)))
	}
	for _, exclusion := range opts.exclusions {
		link.Exclude(exclusion)
	}
	return link, nil
}
