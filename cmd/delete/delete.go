package delete

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/linksync/cmd/util"
	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/paths"
)

// Mocked out for unit testing.
var (
	fs                        = afero.NewOsFs()
	stdin           io.Reader = os.Stdin
	stdout          io.Writer = os.Stdout
	stdinIsTerminal           = func() bool { return util.IsTerminal(os.Stdin) }
	loadRegistry              = util.LoadRegistry
)

// New creates a new `delete` command.
func New() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use: "delete LINK",
		Short: "Delete a link. " +
			"The files in its directories are not affected.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(args[0], yes); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking for confirmation")
	return cmd
}

func run(name string, yes bool) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	link, err := registry.Get(name)
	if err != nil {
		return err
	}

	if !yes {
		if !stdinIsTerminal() {
			return errors.NewFriendlyError("Refusing to delete %q without confirmation.\n"+
				"Pass --yes to delete it anyway.", link.Name())
		}

		ok, err := util.Confirm(stdin, stdout, fmt.Sprintf("Delete link %q?", link.Name()))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(stdout, "Cancelled. Nothing was changed.")
			return nil
		}
	}

	// The metadata companion is removed along with the definition so that it
	// doesn't get synchronized on its own.
	for _, path := range []string{link.Path(), link.Path() + paths.MetaSuffix} {
		if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.WithContext(err, fmt.Sprintf("remove %s", path))
		}
	}

	fmt.Fprintf(stdout, "Deleted link %q. The files in %s were kept.\n", link.Name(), link.LocalRoot())
	return nil
}
