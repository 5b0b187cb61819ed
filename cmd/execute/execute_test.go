package execute

import (
	"bytes"
	"strings"
	"testing"

	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/errors"
	"github.com/sidkik/linksync/pkg/sync"
)

type mockEnv struct {
	links     map[string]*config.Link
	settings  config.Settings
	failing   map[string]bool
	unplanned map[string]bool
	executed  []string
	pending   []string
	out       bytes.Buffer
}

func setup(t *testing.T, input string, terminal bool) *mockEnv {
	env := &mockEnv{
		links:     map[string]*config.Link{},
		settings:  config.DefaultSettings(),
		failing:   map[string]bool{},
		unplanned: map[string]bool{},
	}

	registry := config.NewRegistry("/project")
	for _, name := range []string{"stale", "current", "broken"} {
		link := config.NewLink("/project/" + name + "/" + name + config.LinkSuffix)
		require.NoError(t, registry.Add(link))
		env.links[name] = link
	}
	env.failing["broken"] = true
	loadRegistry = func() (*config.Registry, error) { return registry, nil }
	parseSettings = func() (config.Settings, error) { return env.settings, nil }

	newPlan = func(link *config.Link, direction config.Direction, _ bool) (*sync.Plan, error) {
		if env.unplanned[link.Name()] {
			return nil, assert.AnError
		}

		plan := &sync.Plan{Link: link, Direction: direction}
		if link.Name() != "current" {
			plan.Deletions = []string{link.LocalRoot() + "/old"}
		}
		return plan, nil
	}
	makePlans = func(links []*config.Link, direction string, force bool) ([]*sync.Plan, error) {
		var plans []*sync.Plan
		for _, link := range links {
			plan, err := newPlan(link, link.Direction, force)
			if err != nil {
				return nil, err
			}
			plans = append(plans, plan)
		}
		return plans, nil
	}
	executePlan = func(plan *sync.Plan, progress sync.ProgressFunc) error {
		if env.failing[plan.Link.Name()] {
			return assert.AnError
		}
		env.executed = append(env.executed, plan.Link.Name())
		return nil
	}
	executePending = func(links []*config.Link, progress sync.ProgressFunc) (int, error) {
		for _, link := range links {
			env.pending = append(env.pending, link.Name())
		}
		return 2, nil
	}

	stdin = strings.NewReader(input)
	stdout = &env.out
	stdinIsTerminal = func() bool { return terminal }
	stdoutIsTerminal = func() bool { return false }
	return env
}

func TestCheckOptions(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		opts  options
		ok    bool
	}{
		{name: "Names", names: []string{"a"}, ok: true},
		{name: "All", opts: options{all: true, yes: true}, ok: true},
		{name: "Neither"},
		{name: "AllAndNames", names: []string{"a"}, opts: options{all: true}},
		{name: "AllAndDirection", opts: options{all: true, direction: "Push"}},
		{name: "AllAndForce", opts: options{all: true, force: true}},
	}

	for _, test := range tests {
		err := checkOptions(test.names, test.opts)
		if test.ok {
			assert.NoError(t, err, test.name)
		} else {
			assert.IsType(t, errors.FriendlyError{}, err, test.name)
		}
	}
}

func TestExecuteConfirmed(t *testing.T) {
	env := setup(t, "y\n", true)

	require.NoError(t, run([]string{"stale", "current"}, options{}))
	assert.Equal(t, []string{"stale"}, env.executed)
	assert.Contains(t, env.out.String(), "stale (Pull)\n  delete  /project/stale/old\n")
	assert.NotContains(t, env.out.String(), "current (Pull)")
	assert.Contains(t, env.out.String(), "Execute 1 links? [y/N]: ")
	assert.Contains(t, env.out.String(), "Executed \"stale\"\n")
}

func TestExecuteCancelled(t *testing.T) {
	env := setup(t, "n\n", true)

	require.NoError(t, run([]string{"stale"}, options{}))
	assert.Empty(t, env.executed)
	assert.Contains(t, env.out.String(), "Cancelled. Nothing was changed.")
}

func TestExecuteWithoutTerminal(t *testing.T) {
	env := setup(t, "", false)

	err := run([]string{"stale"}, options{})
	assert.IsType(t, errors.FriendlyError{}, err)
	assert.Empty(t, env.executed)

	require.NoError(t, run([]string{"stale"}, options{yes: true}))
	assert.Equal(t, []string{"stale"}, env.executed)

	env.executed = nil
	env.settings.ShowConfirmation = false
	require.NoError(t, run([]string{"stale"}, options{}))
	assert.Equal(t, []string{"stale"}, env.executed)
	assert.NotContains(t, env.out.String(), "[y/N]")
}

func TestExecuteUpToDate(t *testing.T) {
	env := setup(t, "", true)

	require.NoError(t, run([]string{"current"}, options{}))
	assert.Empty(t, env.executed)
	assert.Equal(t, "Everything is already up to date.\n", env.out.String())
}

func TestExecuteFailure(t *testing.T) {
	env := setup(t, "", true)

	err := run([]string{"broken", "stale"}, options{yes: true})
	assert.Equal(t, errors.NewFriendlyError("Failed to execute %d links: %s", 1, "broken"), err)
	assert.Equal(t, []string{"stale"}, env.executed)
}

func TestExecuteAll(t *testing.T) {
	env := setup(t, "yes\n", true)

	require.NoError(t, run(nil, options{all: true}))
	assert.Empty(t, env.executed)
	assert.Equal(t, []string{"broken", "stale"}, env.pending)
	assert.Contains(t, env.out.String(), "Execute 2 links? [y/N]: ")
	assert.Contains(t, env.out.String(), "Executed 2 links\n")
}

func TestExecuteAllPlanningFailure(t *testing.T) {
	env := setup(t, "", true)
	env.unplanned["stale"] = true

	// The other links are still executed.
	logHook := logrusTest.NewGlobal()
	err := run(nil, options{all: true, yes: true})
	assert.Equal(t, errors.NewFriendlyError("Failed to plan %d links: %s", 1, "stale"), err)
	assert.Equal(t, []string{"broken"}, env.pending)
	assert.Contains(t, env.out.String(), "Executed 2 links\n")

	require.NotNil(t, logHook.LastEntry())
	assert.Equal(t, "Failed to plan link", logHook.LastEntry().Message)
	assert.Equal(t, "stale", logHook.LastEntry().Data["link"])

	// Naming the links still fails as a whole.
	env.pending = nil
	err = run([]string{"broken", "stale"}, options{yes: true})
	assert.Equal(t, assert.AnError, err)
	assert.Empty(t, env.executed)

	env.unplanned["broken"] = true
	err = run(nil, options{all: true, yes: true})
	assert.Equal(t, errors.NewFriendlyError("Failed to plan %d links: %s", 2, "broken, stale"), err)
	assert.Empty(t, env.pending)
}
