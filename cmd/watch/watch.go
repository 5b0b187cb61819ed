package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/linksync/cmd/util"
	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/fswatch"
	"github.com/sidkik/linksync/pkg/paths"
	"github.com/sidkik/linksync/pkg/trigger"
)

// Mocked out for unit testing.
var (
	fs                        = afero.NewOsFs()
	stdout          io.Writer = os.Stdout
	stdin           io.Reader = os.Stdin
	loadRegistry              = util.LoadRegistry
	parseSettings             = config.ParseSettings
	getSettingsPath           = config.GetSettingsPath
	watchProject              = func(project string) (updater, error) {
		return fswatch.Watch([]string{project}, isDefinitionOrDir)
	}
	watchSettings = func(settingsPath string) (updater, error) {
		settingsPath = paths.Clean(settingsPath)
		return fswatch.Watch([]string{path.Dir(settingsPath)}, func(p string) bool {
			return paths.Clean(p) == settingsPath
		})
	}
)

type updater interface {
	Updates() <-chan struct{}
	Close() error
}

type settingsReceiver interface {
	UpdateSettings(config.Settings)
	ResetSession()
	CheckAll()
}

// New creates a new `watch` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch links and synchronize them according to their triggers",
		Long: "Watch every link that doesn't use the Manual trigger.\n\n" +
			"Notify links are reported when they become out of date, and\n" +
			"Automatic links are executed as soon as their files stop changing.\n" +
			"Changes to link definitions are picked up while watching.",
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := run(ctx); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(ctx context.Context) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	settings, err := parseSettings()
	if err != nil {
		return errors.WithContext(err, "read settings")
	}

	prompter := newTerminalPrompter(stdin, stdout, util.IsTerminal(os.Stdin))
	coordinator := trigger.New(registry, settings, prompter, nil, clockwork.NewRealClock())
	defer coordinator.Close()
	coordinator.Start()

	projectWatcher, err := watchProject(registry.Project())
	if err != nil {
		log.WithError(err).Warn("Failed to watch the project for new links. " +
			"Restart `linksync watch` after creating or editing links.")
	} else {
		defer projectWatcher.Close()
		go func() {
			for range projectWatcher.Updates() {
				coordinator.Reload()
			}
		}()
	}

	if settingsPath, err := getSettingsPath(); err != nil {
		log.WithError(err).Warn("Failed to find the settings. Changes to them won't be picked up.")
	} else if settingsWatcher, err := watchSettings(settingsPath); err != nil {
		log.WithError(err).Warn("Failed to watch the settings. " +
			"Restart `linksync watch` after changing them.")
	} else {
		defer settingsWatcher.Close()
		go reloadSettings(coordinator, settingsWatcher.Updates())
	}

	var watched int
	for _, link := range registry.All() {
		if link.Trigger != config.Manual {
			watched++
		}
	}
	fmt.Fprintf(stdout, "Watching %d links in %s. Press Ctrl+C to stop.\n",
		watched, registry.Project())

	if err := coordinator.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// reloadSettings hands the settings to the coordinator whenever they change.
// The user is asked about automatic executions again, since the answers may
// depend on the settings.
func reloadSettings(receiver settingsReceiver, updates <-chan struct{}) {
	for range updates {
		settings, err := parseSettings()
		if err != nil {
			log.WithError(err).Warn("Failed to reload settings")
			continue
		}

		log.Info("Settings changed")
		receiver.UpdateSettings(settings)
		receiver.ResetSession()
		receiver.CheckAll()
	}
}

// isDefinitionOrDir filters the project watch down to the changes that can
// affect which links exist.
func isDefinitionOrDir(p string) bool {
	switch path.Base(p) {
	case ".git", "node_modules":
		return false
	}

	if strings.HasSuffix(p, config.LinkSuffix) {
		return true
	}
	isDir, err := afero.IsDir(fs, p)
	return err == nil && isDir
}
