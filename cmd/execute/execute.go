package execute

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/linksync/cmd/util"
	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/sync"
)

// Mocked out for unit testing.
var (
	stdout           io.Writer = os.Stdout
	stdin            io.Reader = os.Stdin
	stdinIsTerminal            = func() bool { return util.IsTerminal(os.Stdin) }
	stdoutIsTerminal           = func() bool { return util.IsTerminal(os.Stdout) }
	loadRegistry               = util.LoadRegistry
	parseSettings              = config.ParseSettings
	makePlans                  = util.MakePlans
	newPlan                    = sync.NewPlan
	executePlan                = (*sync.Plan).Execute
	executePending             = sync.ExecutePending
)

type options struct {
	all       bool
	yes       bool
	direction string
	force     bool
}

// New creates a new `execute` command.
func New() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "execute [LINK...]",
		Short: "Synchronize links",
		Long: "Execute the named links, or every out of date link with --all.\n\n" +
			"Unless the showConfirmation setting is disabled, the plans are\n" +
			"printed and must be confirmed before anything is changed.",
		Run: func(_ *cobra.Command, args []string) {
			if err := run(args, opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	cmd.Flags().BoolVarP(&opts.all, "all", "a", false,
		"Execute every link in its own direction.")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false,
		"Don't ask for confirmation.")
	cmd.Flags().StringVarP(&opts.direction, "direction", "d", "",
		"Execute in this direction instead of each link's own direction.")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false,
		"Copy every file, even the ones that are up to date.")
	return cmd
}

func run(names []string, opts options) error {
	if err := checkOptions(names, opts); err != nil {
		return err
	}

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	links, err := util.GetLinks(registry, names)
	if err != nil {
		return err
	}

	var plans []*sync.Plan
	var unplanned []string
	if opts.all {
		plans, unplanned = planEach(links)
	} else if plans, err = makePlans(links, opts.direction, opts.force); err != nil {
		return err
	}

	var pending []*sync.Plan
	for _, plan := range plans {
		if !plan.IsEmpty() {
			pending = append(pending, plan)
		}
	}

	if len(pending) == 0 {
		if len(unplanned) != 0 {
			return planningError(unplanned)
		}
		fmt.Fprintln(stdout, "Everything is already up to date.")
		return nil
	}

	ok, err := confirm(pending, opts.yes)
	if err != nil || !ok {
		return err
	}

	progress := newProgress()
	defer progress.stop()

	if opts.all {
		var confirmed []*config.Link
		for _, plan := range pending {
			confirmed = append(confirmed, plan.Link)
		}

		executed, err := executePending(confirmed, progress.update)
		progress.stop()
		fmt.Fprintf(stdout, "Executed %d links\n", executed)
		if err != nil {
			return err
		}
		if len(unplanned) != 0 {
			return planningError(unplanned)
		}
		return nil
	}

	var failed []string
	for _, plan := range pending {
		if err := executePlan(plan, progress.update); err != nil {
			log.WithError(err).WithField("link", plan.Link.Name()).Error("Failed to execute link")
			failed = append(failed, plan.Link.Name())
			continue
		}
		progress.stop()
		fmt.Fprintf(stdout, "Executed %q\n", plan.Link.Name())
	}

	if len(failed) != 0 {
		return errors.NewFriendlyError(
			"Failed to execute %d links: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

// planEach plans every link in its own direction. Links that can't be
// planned are logged and returned by name, and don't stop the others.
func planEach(links []*config.Link) (plans []*sync.Plan, unplanned []string) {
	for _, link := range links {
		plan, err := newPlan(link, link.Direction, false)
		if err != nil {
			log.WithError(err).WithField("link", link.Name()).Error("Failed to plan link")
			unplanned = append(unplanned, link.Name())
			continue
		}
		plans = append(plans, plan)
	}
	return plans, unplanned
}

func planningError(names []string) error {
	return errors.NewFriendlyError(
		"Failed to plan %d links: %s", len(names), strings.Join(names, ", "))
}

func checkOptions(names []string, opts options) error {
	switch {
	case opts.all && len(names) != 0:
		return errors.NewFriendlyError("--all can't be used with the names of links.")
	case opts.all && (opts.direction != "" || opts.force):
		return errors.NewFriendlyError("--all executes every link in its own direction, " +
			"so it can't be used with --direction or --force.")
	case !opts.all && len(names) == 0:
		return errors.NewFriendlyError("Specify the links to execute, " +
			"or use --all to execute every link that's out of date.")
	}
	return nil
}

// confirm prints the plans and asks the user whether to execute them.
func confirm(plans []*sync.Plan, yes bool) (bool, error) {
	if yes {
		return true, nil
	}

	settings, err := parseSettings()
	if err != nil {
		return false, errors.WithContext(err, "read settings")
	}

	if !settings.ShowConfirmation {
		return true, nil
	}

	if !stdinIsTerminal() {
		return false, errors.NewFriendlyError("Executing links requires confirmation, " +
			"but the input isn't a terminal.\n" +
			"Rerun with --yes, or disable the confirmation with " +
			"`linksync config --show-confirmation=false`.")
	}

	for _, plan := range plans {
		fmt.Fprint(stdout, plan)
	}
	fmt.Fprintln(stdout)

	ok, err := util.Confirm(stdin, stdout, fmt.Sprintf("Execute %d links?", len(plans)))
	if err != nil {
		return false, err
	}
	if !ok {
		fmt.Fprintln(stdout, "Cancelled. Nothing was changed.")
	}
	return ok, nil
}
