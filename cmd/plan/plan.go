package plan

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sidkik/linksync/cmd/util"
)

// Mocked out for unit testing.
var (
	stdout       io.Writer = os.Stdout
	loadRegistry           = util.LoadRegistry
	makePlans              = util.MakePlans
)

type options struct {
	direction string
	force     bool
}

// New creates a new `plan` command.
func New() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "plan [LINK...]",
		Short: "Show what executing links would change",
		Long: "Print the operations that `linksync execute` would perform, without\n" +
			"changing anything. Every link is planned if no LINK is given.",
		Run: func(_ *cobra.Command, args []string) {
			if err := run(args, opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	cmd.Flags().StringVarP(&opts.direction, "direction", "d", "",
		"Plan in this direction instead of each link's own direction.")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false,
		"Plan to copy every file, even the ones that are up to date.")
	return cmd
}

func run(names []string, opts options) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	links, err := util.GetLinks(registry, names)
	if err != nil {
		return err
	}

	if len(links) == 0 {
		fmt.Fprintln(stdout, "There are no links in this project. "+
			"Create one with `linksync init`.")
		return nil
	}

	plans, err := makePlans(links, opts.direction, opts.force)
	if err != nil {
		return err
	}

	for _, plan := range plans {
		fmt.Fprint(stdout, plan)
	}
	return nil
}
