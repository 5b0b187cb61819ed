package status

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/buger/goterm"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/linksync/cmd/util"
	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/sync"
)

// Mocked out for unit testing.
var (
	fs                     = afero.NewOsFs()
	stdout       io.Writer = os.Stdout
	useColor               = func() bool { return util.IsTerminal(os.Stdout) }
	loadRegistry           = util.LoadRegistry
	newPlan                = sync.NewPlan
)

// New creates a new `status` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every link in the project and whether it's up to date",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

type linkStatus struct {
	msg   string
	color int
}

func (ls linkStatus) String() string {
	if !useColor() {
		return ls.msg
	}
	return goterm.Color(ls.msg, ls.color)
}

func run() error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	links := registry.All()
	if len(links) == 0 {
		fmt.Fprintln(stdout, "There are no links in this project. "+
			"Create one with `linksync init`.")
		return nil
	}

	table := goterm.NewTable(0, 10, 3, ' ', 0)
	fmt.Fprintln(table, "LINK\tDIRECTION\tTRIGGER\tEXTERNAL DIRECTORIES\tLAST EXECUTED\tSTATUS")
	for _, link := range links {
		external := "-"
		if len(link.ExternalDirectories) != 0 {
			external = strings.Join(link.ExternalDirectories, ", ")
		}

		lastExecuted := "never"
		if !link.LastExecuted.IsZero() {
			lastExecuted = link.LastExecuted.Local().Format(time.RFC822)
		}

		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\n", link.Name(), link.Direction,
			link.Trigger, external, lastExecuted, getStatus(link))
	}
	fmt.Fprint(stdout, table.String())
	return nil
}

func getStatus(link *config.Link) linkStatus {
	// Log the reason for each invalid directory so that the user can fix
	// them.
	if len(link.ExternalRoots(fs, true)) == 0 {
		return linkStatus{msg: "No valid external directories", color: goterm.YELLOW}
	}

	plan, err := newPlan(link, link.Direction, false)
	if err != nil {
		return linkStatus{
			msg:   "Error: " + errors.GetPrintableMessage(err),
			color: goterm.RED,
		}
	}

	if plan.IsEmpty() {
		return linkStatus{msg: "Up to date", color: goterm.GREEN}
	}

	msg := "Out of date"
	if n := plan.Len(); n != 0 {
		msg = fmt.Sprintf("Out of date (%d changes)", n)
	}
	return linkStatus{msg: msg, color: goterm.YELLOW}
}
