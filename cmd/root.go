package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/linksync/cmd/bugtool"
	configCmd "github.com/sidkik/linksync/cmd/config"
	deleteCmd "github.com/sidkik/linksync/cmd/delete"
	"github.com/sidkik/linksync/cmd/exclude"
	"github.com/sidkik/linksync/cmd/execute"
	"github.com/sidkik/linksync/cmd/initialize"
	"github.com/sidkik/linksync/cmd/plan"
	"github.com/sidkik/linksync/cmd/status"
	"github.com/sidkik/linksync/cmd/util"
	"github.com/sidkik/linksync/cmd/version"
	"github.com/sidkik/linksync/cmd/watch"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "LINKSYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "linksync",
		Short: "Keep directories synchronized with directories outside the project",
		Long: "linksync keeps a directory in the project consistent with one or more\n" +
			"external directories. Each link has a direction (Pull, Push or Sync)\n" +
			"and a trigger (Manual, Notify or Automatic). Conflicts are resolved\n" +
			"by keeping the most recently modified file.",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&util.Project, "project", "p", "",
		"The project directory. Defaults to the working directory.")

	rootCmd.AddCommand(
		bugtool.New(),
		configCmd.New(),
		deleteCmd.New(),
		exclude.New(),
		execute.New(),
		initialize.New(),
		plan.New(),
		status.New(),
		version.New(),
		watch.New(),
	)
	return rootCmd
}
