package status

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/buger/goterm"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/sync"
)

func TestRun(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/ext", 0755))

	registry := config.NewRegistry("/project")
	links := map[string]*config.Link{}
	for _, name := range []string{"current", "stale", "broken", "invalid", "unsynced"} {
		link := config.NewLink("/project/" + name + "/" + name + config.LinkSuffix)
		link.ExternalDirectories = []string{"/ext"}
		require.NoError(t, registry.Add(link))
		links[name] = link
	}
	links["invalid"].ExternalDirectories = []string{"/missing"}
	links["current"].LastExecuted = time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	links["unsynced"].SynchronizedPaths = []string{"removed"}
	loadRegistry = func() (*config.Registry, error) { return registry, nil }

	newPlan = func(link *config.Link, direction config.Direction, force bool) (*sync.Plan, error) {
		plan := &sync.Plan{Link: link, Direction: direction}
		switch link.Name() {
		case "broken":
			return nil, errors.NewFriendlyError("disk on fire")
		case "stale":
			plan.Copies = []sync.Copy{{From: "/ext/a", To: "/project/stale/a"}}
		}
		return plan, nil
	}
	useColor = func() bool { return false }

	var out bytes.Buffer
	stdout = &out
	require.NoError(t, run())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "LINK"))

	expStatus := map[string]string{
		"broken":   "Error: disk on fire",
		"current":  "Up to date",
		"invalid":  "No valid external directories",
		"stale":    "Out of date (1 changes)",
		"unsynced": "Out of date",
	}
	for i, name := range []string{"broken", "current", "invalid", "stale", "unsynced"} {
		line := lines[i+1]
		assert.True(t, strings.HasPrefix(line, name), line)
		assert.True(t, strings.HasSuffix(line, expStatus[name]), line)
	}
	assert.NotContains(t, lines[2], "never")
	assert.Contains(t, lines[4], "never")
}

func TestStatusColor(t *testing.T) {
	useColor = func() bool { return true }
	status := linkStatus{msg: "Up to date", color: goterm.GREEN}
	assert.Equal(t, goterm.Color("Up to date", goterm.GREEN), status.String())

	useColor = func() bool { return false }
	assert.Equal(t, "Up to date", status.String())
}

func TestRunNoLinks(t *testing.T) {
	loadRegistry = func() (*config.Registry, error) {
		return config.NewRegistry("/project"), nil
	}

	var out bytes.Buffer
	stdout = &out
	require.NoError(t, run())
	assert.Contains(t, out.String(), "There are no links in this project.")
}
