package bugtool

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/linksync/cmd/util"
	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/sync"
	"github.com/sidkik/linksync/pkg/version"
)

const archiveRoot = "linksync-bug-info"

// Mocked out for unit testing.
var (
	fs                        = afero.NewOsFs()
	stdout          io.Writer = os.Stdout
	loadRegistry              = util.LoadRegistry
	getSettingsPath           = config.GetSettingsPath
	getStatePath              = config.GetStatePath
	newPlan                   = sync.NewPlan
	now                       = time.Now
)

// New creates a new `bug-tool` command.
func New() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "bug-tool",
		Short: "Generate an archive for debugging linksync",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(out); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "path for archive")
	return cmd
}

func run(out string) error {
	tmpdir, err := afero.TempDir(fs, "", "linksync-bug-tool")
	if err != nil {
		return errors.NewFriendlyError("Failed to create out directory:\n%s", err)
	}
	defer func() {
		if err := fs.RemoveAll(tmpdir); err != nil {
			log.WithError(err).WithField("path", tmpdir).Warn("Failed to remove temporary directory")
		}
	}()

	registry, err := loadRegistry()
	if err != nil {
		// The archive is still useful without the links.
		log.WithError(err).Warn("Failed to load links")
	}
	setupInfo(tmpdir, registry)

	if out == "" {
		out = fmt.Sprintf("linksync-bug-info-%s.tar.gz",
			now().Format("Jan_02_2006-15-04-05"))
	}
	if err := tarDirectory(tmpdir, out); err != nil {
		return errors.NewFriendlyError("Failed to tar:\n%s", err)
	}

	msg := `Created bug information archive at '%s'.
You may want to edit the archive if your links contain sensitive paths.
The archive contains:
 * The version of linksync.
 * The user settings and the persisted state.
 * The definition of every link in the project.
 * What executing each link would currently do.
`
	fmt.Fprintf(stdout, msg, out)
	return nil
}

func setupInfo(root string, registry *config.Registry) {
	if err := setupVersion(root); err != nil {
		log.WithError(err).Warn("Failed to setup version info")
	}

	if settingsPath, err := getSettingsPath(); err != nil {
		log.WithError(err).Warn("Failed to get settings path")
	} else if err := copyFile(settingsPath, filepath.Join(root, "settings.yaml")); err != nil {
		log.WithError(err).Warn("Failed to copy settings")
	}

	if err := copyFile(getStatePath(), filepath.Join(root, "state.yaml")); err != nil {
		log.WithError(err).Warn("Failed to copy state")
	}

	if registry == nil {
		return
	}

	for _, link := range registry.All() {
		if err := setupLink(filepath.Join(root, "links", link.Name()), link); err != nil {
			log.WithError(err).WithField("link", link.Name()).Warn("Failed to setup link info")
		}
	}
}

func setupVersion(root string) error {
	contents := fmt.Sprintf("linksync version: %s\ngo version:       %s %s/%s\n",
		version.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if err := afero.WriteFile(fs, filepath.Join(root, "version"), []byte(contents), 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// setupLink saves the link's definition and the plan for synchronizing it
// in its own direction.
func setupLink(outdir string, link *config.Link) error {
	if err := fs.MkdirAll(outdir, 0755); err != nil {
		return errors.WithContext(err, "mkdir")
	}

	if err := copyFile(link.Path(), filepath.Join(outdir, "definition.yaml")); err != nil {
		return errors.WithContext(err, "copy definition")
	}

	var planContents string
	plan, err := newPlan(link, link.Direction, false)
	if err != nil {
		planContents = fmt.Sprintf("Failed to plan: %s\n", err)
	} else {
		planContents = plan.String()
	}

	if err := afero.WriteFile(fs, filepath.Join(outdir, "plan"), []byte(planContents), 0644); err != nil {
		return errors.WithContext(err, "write plan")
	}
	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := fs.Open(src)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer srcFile.Close()

	dstFile, err := fs.Create(dst)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return errors.WithContext(err, "copy")
	}
	return nil
}

func tarDirectory(src, outPath string) error {
	out, err := fs.Create(outPath)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}
	defer out.Close()

	gzw := gzip.NewWriter(out)
	defer gzw.Close()

	tw := tar.NewWriter(gzw)
	defer tw.Close()

	return afero.Walk(fs, src, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(fi, fi.Name())
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("make header %s", file))
		}

		relPath, err := filepath.Rel(src, file)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("get relative path of %s to %s", file, src))
		}

		header.Name = filepath.ToSlash(filepath.Join(archiveRoot, relPath))
		if err := tw.WriteHeader(header); err != nil {
			return errors.WithContext(err, fmt.Sprintf("write %s header", file))
		}

		// Only write contents if it's a file (i.e. not a directory).
		if !fi.Mode().IsRegular() {
			return nil
		}

		f, err := fs.Open(file)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("open %s", file))
		}
		defer f.Close()

		if _, err := io.Copy(tw, f); err != nil {
			return errors.WithContext(err, fmt.Sprintf("copy %s", file))
		}
		return nil
	})
}
