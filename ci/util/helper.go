package util

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/ghodss/yaml"

	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/errors"
)

// TestHelper runs the linksync binary against a project in a temporary
// directory. The binary gets its own home and state directories so that the
// user's settings aren't touched.
type TestHelper struct {
	Binary  string
	Project string
	HomeDir string
}

// NewTestHelper creates a new TestHelper.
func NewTestHelper(binary, project, homeDir string) *TestHelper {
	return &TestHelper{
		Binary:  binary,
		Project: project,
		HomeDir: homeDir,
	}
}

func (helper *TestHelper) command(ctx context.Context, args ...string) *exec.Cmd {
	args = append([]string{"--project", helper.Project}, args...)
	cmd := exec.CommandContext(ctx, helper.Binary, args...)
	cmd.Env = append(os.Environ(),
		"HOME="+helper.HomeDir,
		"XDG_STATE_HOME="+helper.HomeDir+"/.local/state",
		"LINKSYNC_LOG_VERBOSE=true")
	return cmd
}

// WriteSettings writes the user settings used by the binary.
func (helper *TestHelper) WriteSettings(settings config.Settings) error {
	settings.Version = config.CurrentVersion
	yamlBytes, err := yaml.Marshal(settings)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}
	return os.WriteFile(helper.HomeDir+"/.linksync.yaml", yamlBytes, 0644)
}

// Run runs the given linksync command, and returns its stdout.
func (helper *TestHelper) Run(ctx context.Context, args ...string) (string, error) {
	cmd := helper.command(ctx, args...)
	stderr := bytes.NewBuffer(nil)
	cmd.Stderr = stderr

	out, err := cmd.Output()
	if err != nil {
		return string(out), fmt.Errorf("%s (%s): stderr: %s", strings.Join(args, " "), err, stderr)
	}
	return string(out), nil
}

// Start starts the given linksync command. It returns a reader for the
// stdout output, and a channel for obtaining any errors after starting the
// command. The command is stopped when the context is cancelled.
func (helper *TestHelper) Start(ctx context.Context, args ...string) (
	io.Reader, chan error, error) {

	cmd := helper.command(context.Background(), args...)
	stdoutReader, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}

	stderr := bytes.NewBuffer(nil)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	errChan := make(chan error, 1)
	go func() {
		waitErr := make(chan error)
		go func() {
			waitErr <- cmd.Wait()
			close(waitErr)
		}()

		defer close(errChan)
		select {
		case <-ctx.Done():
			if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
				errChan <- errors.WithContext(err, "kill")
				return
			}
			<-waitErr
		case err := <-waitErr:
			errChan <- fmt.Errorf("crashed (%v): stderr: %s", err, stderr)
		}
	}()
	return stdoutReader, errChan, nil
}

// WaitForOutput blocks until a line containing `expOutput` is written to
// `reader`, or `ctx` has expired.
func WaitForOutput(ctx context.Context, reader io.Reader, expOutput string) error {
	found := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(reader)
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), expOutput) {
				found <- nil
				return
			}
		}
		if err := scanner.Err(); err != nil {
			found <- errors.WithContext(err, "read")
			return
		}
		found <- errors.New("output ended")
	}()

	select {
	case <-ctx.Done():
		return errors.New("cancelled")
	case err := <-found:
		if err == nil {
			return nil
		}
		return errors.NewFriendlyError("never saw %q: %s", expOutput, err)
	}
}

// TestWithRetry calls `test` with an exponential backoff until it passes, or
// `ctx` has expired.
func TestWithRetry(ctx context.Context, test func() bool) bool {
	maxSleepTime := 5 * time.Second
	sleepTime := 100 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return test()
		case <-time.After(sleepTime):
			sleepTime *= 2
			if sleepTime > maxSleepTime {
				sleepTime = maxSleepTime
			}
		}

		if test() {
			return true
		}
	}
}
