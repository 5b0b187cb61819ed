package config

import (
	"fmt"
	"io"
	"os"

	"github.com/ghodss/yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sidkik/linksync/cmd/util"
	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout          io.Writer = os.Stdout
	loadRegistry              = util.LoadRegistry
	saveLink                  = (*config.Link).Save
	parseSettings             = config.ParseSettings
	writeSettings             = config.WriteSettings
	getSettingsPath           = config.GetSettingsPath
)

type linkOptions struct {
	direction, trigger              string
	addExternal, removeExternal     []string
	addExclusions, removeExclusions []string
}

type settingsOptions struct {
	automaticWarning, notifyViaLog, showConfirmation bool
}

// New creates a new `config` command.
func New() *cobra.Command {
	var linkOpts linkOptions
	var settingsOpts settingsOptions
	cmd := &cobra.Command{
		Use:   "config [LINK]",
		Short: "View or edit the settings of a link, or the user settings",
		Long: "When LINK is given, its definition is edited with the link flags.\n" +
			"Otherwise, the user settings are edited with the settings flags.\n\n" +
			"If no flags are given, the current settings are printed.",
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var err error
			if len(args) == 1 {
				err = runLink(cmd.Flags(), args[0], linkOpts)
			} else {
				err = runSettings(cmd.Flags(), settingsOpts)
			}
			if err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	addFlags(cmd.Flags(), &linkOpts, &settingsOpts)

	cmd.AddCommand(&cobra.Command{
		Use:   "get-settings-path",
		Short: "Get the path to the user settings file",
		Run: func(_ *cobra.Command, _ []string) {
			path, err := getSettingsPath()
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "get settings path"))
			}
			fmt.Fprintln(stdout, path)
		},
	})
	return cmd
}

func addFlags(flags *pflag.FlagSet, linkOpts *linkOptions, settingsOpts *settingsOptions) {
	flags.StringVar(&linkOpts.direction, "direction", "",
		"Link: set how files flow when the link is executed (Pull, Push or Sync).")
	flags.StringVar(&linkOpts.trigger, "trigger", "",
		"Link: set when the link is executed (Manual, Notify or Automatic).")
	flags.StringArrayVar(&linkOpts.addExternal, "add-external", nil,
		"Link: add an external directory. Can be repeated.")
	flags.StringArrayVar(&linkOpts.removeExternal, "remove-external", nil,
		"Link: remove an external directory. Can be repeated.")
	flags.StringArrayVar(&linkOpts.addExclusions, "add-exclusion", nil,
		"Link: exclude a path relative to the link's directory. Can be repeated.")
	flags.StringArrayVar(&linkOpts.removeExclusions, "remove-exclusion", nil,
		"Link: stop excluding a path. Can be repeated.")

	flags.BoolVar(&settingsOpts.automaticWarning, "automatic-warning", true,
		"Settings: ask before the first automatic execution of each session.")
	flags.BoolVar(&settingsOpts.notifyViaLog, "notify-via-log", true,
		"Settings: log a warning when a Notify link becomes out of date.")
	flags.BoolVar(&settingsOpts.showConfirmation, "show-confirmation", true,
		"Settings: show the plan and ask for confirmation before executing links.")
}

var settingsFlags = []string{"automatic-warning", "notify-via-log", "show-confirmation"}

func runLink(flags *pflag.FlagSet, name string, opts linkOptions) error {
	if flag, ok := anyChanged(flags, settingsFlags); ok {
		return errors.NewFriendlyError("--%s changes the user settings, "+
			"so it can't be used with a link.", flag)
	}

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	link, err := registry.Get(name)
	if err != nil {
		return err
	}

	patch, err := makePatch(opts)
	if err != nil {
		return err
	}

	if patch.IsEmpty() {
		return printYAML(link)
	}

	patch.Apply(link)
	if err := saveLink(link); err != nil {
		return errors.WithContext(err, "write link")
	}
	fmt.Fprintf(stdout, "Updated link %q: %s\n", link.Name(), patch)
	return nil
}

func makePatch(opts linkOptions) (config.LinkPatch, error) {
	patch := config.LinkPatch{
		AddExternal:      opts.addExternal,
		RemoveExternal:   opts.removeExternal,
		AddExclusions:    opts.addExclusions,
		RemoveExclusions: opts.removeExclusions,
	}

	if opts.direction != "" {
		direction, err := config.ParseDirection(opts.direction)
		if err != nil {
			return config.LinkPatch{}, err
		}
		patch.Direction = &direction
	}

	if opts.trigger != "" {
		trigger, err := config.ParseTrigger(opts.trigger)
		if err != nil {
			return config.LinkPatch{}, err
		}
		patch.Trigger = &trigger
	}
	return patch, nil
}

func runSettings(flags *pflag.FlagSet, opts settingsOptions) error {
	linkFlags := []string{"direction", "trigger", "add-external",
		"remove-external", "add-exclusion", "remove-exclusion"}
	if flag, ok := anyChanged(flags, linkFlags); ok {
		return errors.NewFriendlyError("--%s changes a link, "+
			"so the name of the link is required.", flag)
	}

	settings, err := parseSettings()
	if err != nil {
		return errors.WithContext(err, "read settings")
	}

	if _, ok := anyChanged(flags, settingsFlags); !ok {
		return printYAML(settings)
	}

	if flags.Changed("automatic-warning") {
		settings.EnableAutomaticWarning = opts.automaticWarning
	}
	if flags.Changed("notify-via-log") {
		settings.NotifyViaLog = opts.notifyViaLog
	}
	if flags.Changed("show-confirmation") {
		settings.ShowConfirmation = opts.showConfirmation
	}

	if err := writeSettings(settings); err != nil {
		return errors.WithContext(err, "write settings")
	}

	path, err := getSettingsPath()
	if err != nil {
		return errors.WithContext(err, "get settings path")
	}
	fmt.Fprintf(stdout, "Wrote settings to %s\n", path)
	return nil
}

func anyChanged(flags *pflag.FlagSet, names []string) (string, bool) {
	for _, name := range names {
		if flags.Changed(name) {
			return name, true
		}
	}
	return "", false
}

func printYAML(obj interface{}) error {
	out, err := yaml.Marshal(obj)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}
	_, err = stdout.Write(out)
	return err
}
