package sync

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/paths"
)

// Progress describes how far along an execution is. It's purely advisory.
type Progress struct {
	Message string
	Done    int
	Total   int
}

// ProgressFunc is called before each operation of a plan is executed.
type ProgressFunc func(Progress)

var (
	// Mocked out for unit testing.
	clock           = clockwork.NewRealClock()
	saveLink        = (*config.Link).Save
	recordExecution = config.RecordLastExecuted
)

// Execute applies the plan to the filesystem. Deletions are executed before
// copies. If any operation fails, the remaining operations are abandoned and
// the link is flagged as errored. Otherwise, the link's record of what was
// synchronized is updated and saved.
func (p *Plan) Execute(progress ProgressFunc) error {
	logger := log.WithField("link", p.Link.Name())
	if p.IsEmpty() {
		logger.Debug("Plan is empty. Nothing to execute.")
		p.Link.EncounteredError = false
		p.Link.OutOfDate = false
		return nil
	}

	if err := p.execute(progress); err != nil {
		p.Link.EncounteredError = true
		return errors.WithContext(err, fmt.Sprintf("execute %s", p.Link.Name()))
	}
	return nil
}

func (p *Plan) execute(progress ProgressFunc) error {
	logger := log.WithField("link", p.Link.Name())
	start := clock.Now().UTC()

	total := p.Len()
	done := 0
	report := func(msg string) {
		logger.Debug(msg)
		if progress != nil {
			progress(Progress{Message: msg, Done: done, Total: total})
		}
		done++
	}

	for _, path := range p.Deletions {
		report("Deleting " + path)
		if path == "" {
			continue
		}

		if err := deletePath(path); err != nil {
			return errors.WithContext(err, fmt.Sprintf("delete %s", path))
		}
	}

	for _, c := range p.Copies {
		if c.To == "" {
			done++
			continue
		}

		if c.IsMkdir() {
			report("Creating directory " + c.To)
			if err := fs.MkdirAll(c.To, 0755); err != nil {
				return errors.WithContext(err, fmt.Sprintf("create directory %s", c.To))
			}
			continue
		}

		report(fmt.Sprintf("Copying %s to %s", c.From, c.To))
		if !exists(c.From) {
			logger.WithField("path", c.From).Warn(
				"File no longer exists. It was most likely removed after the plan " +
					"was made. The next execution will pick up the change.")
			continue
		}

		if err := copyFile(c.From, c.To); err != nil {
			return errors.WithContext(err, fmt.Sprintf("copy %s", c.From))
		}
	}

	p.Link.LastExecuted = start
	p.Link.SynchronizedPaths = append([]string(nil), p.SynchronizedPaths...)
	p.Link.OutOfDate = false
	if err := saveLink(p.Link); err != nil {
		return err
	}
	p.Link.EncounteredError = false

	if err := recordExecution(start); err != nil {
		logger.WithError(err).Warn("Failed to record the execution time")
	}

	logger.WithFields(log.Fields{
		"deleted": len(p.Deletions),
		"copied":  len(p.Copies),
	}).Info("Executed link")
	return nil
}

// deletePath removes a file or an empty directory. Directories that still
// contain files aren't removed, since those files were never synchronized.
func deletePath(path string) error {
	fi, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithContext(err, "stat")
	}

	if fi.IsDir() {
		children, err := afero.ReadDir(fs, path)
		if err != nil {
			return errors.WithContext(err, "read directory")
		}

		if len(children) > 0 {
			log.WithField("path", path).Warn(
				"Directory contains files that weren't synchronized. Leaving it in place.")
			return nil
		}
	}

	return fs.Remove(path)
}

func copyFile(src, dst string) error {
	dstParent := paths.Clean(parentDir(dst))
	if err := fs.MkdirAll(dstParent, 0755); err != nil {
		return errors.WithContext(err, "make parent")
	}

	srcFile, err := fs.Open(src)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer srcFile.Close()

	fileInfo, err := srcFile.Stat()
	if err != nil {
		return errors.WithContext(err, "stat")
	}

	dstFile, err := fs.Create(dst)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return errors.WithContext(err, "copy")
	}

	if err := dstFile.Close(); err != nil {
		return errors.WithContext(err, "close destination")
	}

	if err := fs.Chmod(dst, fileInfo.Mode()); err != nil {
		return errors.WithContext(err, "set file mode")
	}

	// Change the modification time as the last step so that it doesn't get
	// reset by other file operations.
	if err := fs.Chtimes(dst, clock.Now(), fileInfo.ModTime()); err != nil {
		return errors.WithContext(err, "set file modtime")
	}
	return nil
}

func parentDir(path string) string {
	if i := strings.LastIndexByte(path, paths.Slash); i > 0 {
		return path[:i]
	}
	return string(paths.Slash)
}

// ExecutePending plans every link in its configured direction and executes
// the plans that aren't empty. Failures don't stop the remaining links from
// being executed. It returns the number of links that were executed.
func ExecutePending(links []*config.Link, progress ProgressFunc) (int, error) {
	var executed int
	var failed []string
	for _, link := range links {
		logger := log.WithField("link", link.Name())

		plan, err := NewPlan(link, link.Direction, false)
		if err != nil {
			logger.WithError(err).Error("Failed to plan link")
			failed = append(failed, link.Name())
			continue
		}

		if plan.IsEmpty() {
			continue
		}

		if err := plan.Execute(progress); err != nil {
			logger.WithError(err).Error("Failed to execute link")
			failed = append(failed, link.Name())
			continue
		}
		executed++
	}

	if len(failed) != 0 {
		return executed, errors.NewFriendlyError(
			"Failed to execute %d links: %s", len(failed), strings.Join(failed, ", "))
	}
	return executed, nil
}
