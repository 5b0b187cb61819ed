package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/paths"
	"github.com/sidkik/linksync/pkg/sync"
)

// Project is the project directory set by the `--project` flag. It defaults
// to the working directory.
var Project string

// Mocked out for unit testing.
var (
	exit                    = os.Exit
	stderr        io.Writer = os.Stderr
	getwd                   = os.Getwd
	discoverLinks           = config.DiscoverLinks
	newPlan                 = sync.NewPlan
)

// HandleFatalError prints the error and exits. Friendly errors are printed
// without their context.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")
	fmt.Fprintln(stderr, errors.GetPrintableMessage(err))
	exit(1)
}

// HandlePanic logs any panic along with its stack trace and exits. It
// should be deferred at the start of main.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Errorf("Unexpected panic: %v", r)
		exit(1)
	}
}

// ProjectDir returns the absolute path of the project directory.
func ProjectDir() (string, error) {
	dir := Project
	if dir == "" {
		wd, err := getwd()
		if err != nil {
			return "", errors.WithContext(err, "get working directory")
		}
		dir = wd
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.WithContext(err, "get absolute path")
	}
	return paths.NormalizeSlashes(abs), nil
}

// LoadRegistry discovers every link in the project directory.
func LoadRegistry() (*config.Registry, error) {
	project, err := ProjectDir()
	if err != nil {
		return nil, err
	}

	registry, err := discoverLinks(project)
	if err != nil {
		return nil, errors.WithContext(err, "discover links")
	}
	return registry, nil
}

// GetLinks returns the named links, or every link in the registry if no
// names are given.
func GetLinks(registry *config.Registry, names []string) ([]*config.Link, error) {
	if len(names) == 0 {
		return registry.All(), nil
	}

	var links []*config.Link
	for _, name := range names {
		link, err := registry.Get(name)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

// MakePlans plans each of the links. Each link is planned in its own
// direction unless `direction` is set.
func MakePlans(links []*config.Link, direction string, force bool) ([]*sync.Plan, error) {
	var override config.Direction
	if direction != "" {
		parsed, err := config.ParseDirection(direction)
		if err != nil {
			return nil, err
		}
		override = parsed
	}

	var plans []*sync.Plan
	for _, link := range links {
		linkDirection := link.Direction
		if override != "" {
			linkDirection = override
		}

		plan, err := newPlan(link, linkDirection, force)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// Confirm asks a yes or no question. Anything other than an explicit yes,
// including the end of the input, is treated as no.
func Confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)

	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.WithContext(err, "read response")
	}

	switch strings.ToLower(strings.TrimSpace(resp)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// IsTerminal returns whether the file is an interactive terminal.
func IsTerminal(f interface{ Fd() uintptr }) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
