package watch

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/sync"
	"github.com/sidkik/linksync/pkg/trigger"
)

type fakeUpdater struct {
	updates chan struct{}
	closed  bool
}

func (u *fakeUpdater) Updates() <-chan struct{} {
	return u.updates
}

func (u *fakeUpdater) Close() error {
	if !u.closed {
		close(u.updates)
	}
	u.closed = true
	return nil
}

func testPlan() *sync.Plan {
	link := config.NewLink("/project/assets/shared.link.yaml")
	return &sync.Plan{
		Link:      link,
		Direction: config.Pull,
		Deletions: []string{"/project/assets/old.txt"},
	}
}

func TestAskAutomatic(t *testing.T) {
	tests := []struct {
		input string
		exp   trigger.Answer
	}{
		{input: "a\n", exp: trigger.Allow},
		{input: "Notify\n", exp: trigger.DowngradeToNotify},
		{input: "r\n", exp: trigger.Review},
		{input: "maybe\nallow\n", exp: trigger.Allow},
		{input: "", exp: trigger.Review},
	}

	automatic := []*config.Link{config.NewLink("/project/assets/shared.link.yaml")}
	for _, test := range tests {
		var out bytes.Buffer
		p := newTerminalPrompter(strings.NewReader(test.input), &out, true)
		assert.Equal(t, test.exp, p.AskAutomatic(testPlan(), automatic), test.input)
		assert.Contains(t, out.String(), "  - shared\n")
		assert.Contains(t, out.String(), "  delete  /project/assets/old.txt\n")
	}

	p := newTerminalPrompter(strings.NewReader("a\n"), &bytes.Buffer{}, false)
	assert.Equal(t, trigger.Review, p.AskAutomatic(testPlan(), automatic))
}

func TestAskContinueAutomatic(t *testing.T) {
	var out bytes.Buffer
	p := newTerminalPrompter(strings.NewReader("y\nn\n"), &out, true)
	assert.True(t, p.AskContinueAutomatic())
	assert.False(t, p.AskContinueAutomatic())
	assert.Contains(t, out.String(), "Keep executing links automatically? [y/N]: ")

	p = newTerminalPrompter(strings.NewReader("y\n"), &bytes.Buffer{}, false)
	assert.False(t, p.AskContinueAutomatic())
}

func TestReview(t *testing.T) {
	var out bytes.Buffer
	p := newTerminalPrompter(strings.NewReader(""), &out, false)
	p.Review(testPlan())
	assert.Equal(t, "shared (Pull)\n"+
		"  delete  /project/assets/old.txt\n"+
		"  0 synchronized paths\n"+
		"Run `linksync execute shared` to apply these changes.\n", out.String())
}

func TestIsDefinitionOrDir(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/project/assets/.git", 0755))
	require.NoError(t, afero.WriteFile(fs, "/project/assets/file.txt", nil, 0644))

	assert.True(t, isDefinitionOrDir("/project/assets"))
	assert.True(t, isDefinitionOrDir("/project/assets/shared.link.yaml"))
	assert.False(t, isDefinitionOrDir("/project/assets/file.txt"))
	assert.False(t, isDefinitionOrDir("/project/assets/.git"))
	assert.False(t, isDefinitionOrDir("/project/missing"))
}

func TestRun(t *testing.T) {
	registry := config.NewRegistry("/project")
	require.NoError(t, registry.Add(config.NewLink("/project/assets/assets.link.yaml")))
	loadRegistry = func() (*config.Registry, error) { return registry, nil }
	parseSettings = func() (config.Settings, error) { return config.DefaultSettings(), nil }

	projectWatcher := &fakeUpdater{updates: make(chan struct{})}
	var watchedProject string
	watchProject = func(project string) (updater, error) {
		watchedProject = project
		return projectWatcher, nil
	}

	settingsWatcher := &fakeUpdater{updates: make(chan struct{})}
	var watchedSettings string
	getSettingsPath = func() (string, error) { return "/home/.linksync.yaml", nil }
	watchSettings = func(settingsPath string) (updater, error) {
		watchedSettings = settingsPath
		return settingsWatcher, nil
	}

	var out bytes.Buffer
	stdout = &out
	stdin = strings.NewReader("")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, run(ctx))
	assert.Equal(t, "/project", watchedProject)
	assert.True(t, projectWatcher.closed)
	assert.Equal(t, "/home/.linksync.yaml", watchedSettings)
	assert.True(t, settingsWatcher.closed)
	assert.Equal(t, "Watching 0 links in /project. Press Ctrl+C to stop.\n", out.String())
}

type fakeReceiver struct {
	calls    []string
	settings []config.Settings
}

func (r *fakeReceiver) UpdateSettings(settings config.Settings) {
	r.calls = append(r.calls, "UpdateSettings")
	r.settings = append(r.settings, settings)
}

func (r *fakeReceiver) ResetSession() {
	r.calls = append(r.calls, "ResetSession")
}

func (r *fakeReceiver) CheckAll() {
	r.calls = append(r.calls, "CheckAll")
}

func TestReloadSettings(t *testing.T) {
	settings := config.DefaultSettings()
	settings.NotifyViaLog = false
	parsed := []error{nil, assert.AnError}
	parseSettings = func() (config.Settings, error) {
		err := parsed[0]
		parsed = parsed[1:]
		return settings, err
	}

	updates := make(chan struct{}, 2)
	updates <- struct{}{}
	updates <- struct{}{}
	close(updates)

	// Settings that fail to parse are ignored.
	receiver := &fakeReceiver{}
	reloadSettings(receiver, updates)
	assert.Equal(t, []string{"UpdateSettings", "ResetSession", "CheckAll"}, receiver.calls)
	assert.Equal(t, []config.Settings{settings}, receiver.settings)
}
