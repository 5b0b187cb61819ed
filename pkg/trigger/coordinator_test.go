package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/fswatch"
	"github.com/sidkik/linksync/pkg/sync"
)

type mockPrompter struct {
	mock.Mock
}

func (m *mockPrompter) AskAutomatic(plan *sync.Plan, automatic []*config.Link) Answer {
	return m.Called(plan, automatic).Get(0).(Answer)
}

func (m *mockPrompter) AskContinueAutomatic() bool {
	return m.Called().Bool(0)
}

func (m *mockPrompter) Review(plan *sync.Plan) {
	m.Called(plan)
}

type mockHost struct {
	building bool
}

func (h mockHost) IsBuilding() bool {
	return h.building
}

type fakeWatcher struct {
	roots   []string
	updates chan struct{}
	closed  bool
}

func (w *fakeWatcher) Updates() <-chan struct{} {
	return w.updates
}

func (w *fakeWatcher) Close() error {
	if !w.closed {
		close(w.updates)
	}
	w.closed = true
	return nil
}

type testEnv struct {
	clock    clockwork.FakeClock
	registry *config.Registry
	prompter *mockPrompter
	settings config.Settings

	executed []string
	saved    []string
	pending  bool
}

func newTestEnv(t *testing.T) *testEnv {
	env := &testEnv{
		clock:    clockwork.NewFakeClockAt(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)),
		registry: config.NewRegistry("/project"),
		prompter: &mockPrompter{},
		settings: config.DefaultSettings(),
		pending:  true,
	}

	fs = afero.NewMemMapFs()
	lastExecuted = func() time.Time { return time.Time{} }
	newPlan = func(link *config.Link, direction config.Direction, force bool) (*sync.Plan, error) {
		plan := &sync.Plan{Link: link, Direction: direction}
		if env.pending {
			plan.Copies = []sync.Copy{{From: "/ext/a.txt", To: link.LocalRoot() + "/a.txt"}}
		}
		return plan, nil
	}
	executePlan = func(plan *sync.Plan, _ sync.ProgressFunc) error {
		env.executed = append(env.executed, plan.Link.Name())
		plan.Link.LastExecuted = env.clock.Now()
		return nil
	}
	saveLink = func(link *config.Link) error {
		env.saved = append(env.saved, link.Name())
		return nil
	}
	return env
}

func (env *testEnv) addLink(t *testing.T, name string, trigger config.Trigger) *config.Link {
	link := config.NewLink("/project/" + name + "/" + name + config.LinkSuffix)
	link.Trigger = trigger
	link.ExternalDirectories = []string{"/ext/" + name}
	require.NoError(t, env.registry.Add(link))
	return link
}

func (env *testEnv) coordinator(host Host) *Coordinator {
	return New(env.registry, env.settings, env.prompter, host, env.clock)
}

func TestDebouncer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := newDebouncer(clock, DebounceDelay)

	d.schedule("a")
	clock.Advance(200 * time.Millisecond)
	d.schedule("a")
	d.schedule("b")
	clock.Advance(200 * time.Millisecond)

	// The first timer for "a" was replaced before it expired.
	assert.Equal(t, 2, d.pending())
	assert.Empty(t, d.takeReady())

	clock.Advance(50 * time.Millisecond)
	require.Eventually(t, func() bool {
		return d.pending() == 0
	}, time.Second, 10*time.Millisecond)

	select {
	case <-d.wake:
	case <-time.After(time.Second):
		t.Fatal("debouncer never woke the control loop")
	}
	assert.Equal(t, []string{"a", "b"}, d.takeReady())
	assert.Empty(t, d.takeReady())

	d.schedule("c")
	d.stop()
	clock.Advance(time.Second)
	assert.Equal(t, 0, d.pending())
	assert.Empty(t, d.takeReady())
}

func TestEvaluateManual(t *testing.T) {
	env := newTestEnv(t)
	link := env.addLink(t, "manual", config.Manual)

	env.coordinator(nil).evaluate(link)
	assert.Empty(t, env.executed)
	assert.False(t, link.OutOfDate)
}

func TestEvaluateNotify(t *testing.T) {
	env := newTestEnv(t)
	link := env.addLink(t, "notify", config.Notify)
	c := env.coordinator(nil)

	logHook := logrusTest.NewGlobal()
	c.evaluate(link)
	assert.True(t, link.OutOfDate)
	assert.Empty(t, env.executed)
	require.Len(t, logHook.Entries, 1)
	assert.Equal(t, log.WarnLevel, logHook.LastEntry().Level)
	assert.Equal(t, "Link is out of date and needs to be synchronized", logHook.LastEntry().Message)

	// The warning is only logged when the link becomes out of date.
	c.evaluate(link)
	assert.Len(t, logHook.Entries, 1)

	env.pending = false
	c.evaluate(link)
	assert.False(t, link.OutOfDate)
}

func TestEvaluateNotifyWithoutLog(t *testing.T) {
	env := newTestEnv(t)
	env.settings.NotifyViaLog = false
	link := env.addLink(t, "notify", config.Notify)

	logHook := logrusTest.NewGlobal()
	env.coordinator(nil).evaluate(link)
	assert.True(t, link.OutOfDate)
	assert.Empty(t, logHook.Entries)
}

func TestEvaluateAutomaticSkipped(t *testing.T) {
	env := newTestEnv(t)
	link := env.addLink(t, "auto", config.Automatic)

	link.EncounteredError = true
	env.coordinator(nil).evaluate(link)
	assert.Empty(t, env.executed)

	link.EncounteredError = false
	env.coordinator(mockHost{building: true}).evaluate(link)
	assert.Empty(t, env.executed)

	env.pending = false
	env.coordinator(mockHost{}).evaluate(link)
	assert.Empty(t, env.executed)

	// The prompter is only consulted when there's something to execute.
	env.prompter.AssertExpectations(t)
}

func TestFirstAutomaticExecution(t *testing.T) {
	tests := []struct {
		name        string
		answer      Answer
		expExecuted []string
		expSaved    []string
		expTrigger  config.Trigger
		expReview   bool
	}{
		{
			name:        "Allow",
			answer:      Allow,
			expExecuted: []string{"auto", "auto"},
			expTrigger:  config.Automatic,
		},
		{
			name:       "Downgrade",
			answer:     DowngradeToNotify,
			expSaved:   []string{"auto"},
			expTrigger: config.Notify,
		},
		{
			name:       "Review",
			answer:     Review,
			expTrigger: config.Automatic,
			expReview:  true,
		},
	}

	for _, test := range tests {
		env := newTestEnv(t)
		link := env.addLink(t, "auto", config.Automatic)
		other := env.addLink(t, "other", config.Automatic)

		env.prompter.On("AskAutomatic", mock.Anything, []*config.Link{link, other}).
			Return(test.answer).Once()
		if test.expReview {
			env.prompter.On("Review", mock.Anything).Return().Once()
		}

		c := env.coordinator(nil)
		c.evaluate(link)

		// Evaluating again only asks again if the user didn't allow
		// automatic execution.
		if test.answer == Allow {
			env.clock.Advance(time.Minute)
			c.evaluate(link)
		}

		assert.Equal(t, test.expExecuted, env.executed, test.name)
		assert.Equal(t, test.expSaved, env.saved, test.name)
		assert.Equal(t, test.expTrigger, link.Trigger, test.name)
		assert.Equal(t, config.Automatic, other.Trigger, test.name)
		env.prompter.AssertExpectations(t)
	}
}

func TestAutomaticWarningDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.settings.EnableAutomaticWarning = false
	link := env.addLink(t, "auto", config.Automatic)

	env.coordinator(nil).evaluate(link)
	assert.Equal(t, []string{"auto"}, env.executed)
	env.prompter.AssertNotCalled(t, "AskAutomatic", mock.Anything, mock.Anything)
}

func TestAutomaticExecutionFailure(t *testing.T) {
	env := newTestEnv(t)
	env.settings.EnableAutomaticWarning = false
	link := env.addLink(t, "auto", config.Automatic)
	executePlan = func(plan *sync.Plan, _ sync.ProgressFunc) error {
		plan.Link.EncounteredError = true
		return assert.AnError
	}

	c := env.coordinator(nil)
	c.evaluate(link)
	assert.True(t, link.EncounteredError)
	assert.True(t, c.lastExecution.IsZero())
}

func TestLoopDetection(t *testing.T) {
	for _, allow := range []bool{true, false} {
		env := newTestEnv(t)
		env.settings.EnableAutomaticWarning = false
		link := env.addLink(t, "auto", config.Automatic)
		other := env.addLink(t, "other", config.Automatic)
		notify := env.addLink(t, "notify", config.Notify)
		env.prompter.On("AskContinueAutomatic").Return(allow).Once()

		c := env.coordinator(nil)

		// The first execution starts the count, and the following ones are
		// consecutive since the clock never advances past the window.
		for i := 0; i < LoopThreshold; i++ {
			c.evaluate(link)
			env.clock.Advance(LoopWindow / 2)
		}
		assert.Len(t, env.executed, LoopThreshold)
		env.prompter.AssertNotCalled(t, "AskContinueAutomatic")

		c.evaluate(link)
		env.prompter.AssertExpectations(t)

		if allow {
			assert.Len(t, env.executed, LoopThreshold+1)
			assert.True(t, c.loopCheckDisabled)

			// The user isn't asked again for the rest of the session.
			for i := 0; i < LoopThreshold*2; i++ {
				c.evaluate(link)
			}
			assert.Len(t, env.executed, 3*LoopThreshold+1)
			continue
		}

		assert.Len(t, env.executed, LoopThreshold)
		assert.Equal(t, config.Notify, link.Trigger)
		assert.Equal(t, config.Notify, other.Trigger)
		assert.Equal(t, config.Notify, notify.Trigger)
		assert.Equal(t, []string{"auto", "other"}, env.saved)
	}
}

func TestLoopCountResets(t *testing.T) {
	env := newTestEnv(t)
	env.settings.EnableAutomaticWarning = false
	link := env.addLink(t, "auto", config.Automatic)

	c := env.coordinator(nil)
	for i := 0; i < LoopThreshold*3; i++ {
		c.evaluate(link)
		env.clock.Advance(LoopWindow + time.Millisecond)
	}
	assert.Len(t, env.executed, LoopThreshold*3)
	env.prompter.AssertNotCalled(t, "AskContinueAutomatic")
}

func TestSlowExecutionsAreNotLoops(t *testing.T) {
	env := newTestEnv(t)
	env.settings.EnableAutomaticWarning = false
	link := env.addLink(t, "auto", config.Automatic)
	executePlan = func(plan *sync.Plan, _ sync.ProgressFunc) error {
		env.executed = append(env.executed, plan.Link.Name())
		plan.Link.LastExecuted = env.clock.Now()
		env.clock.Advance(2 * LoopWindow)
		return nil
	}

	// Each evaluation immediately follows the previous execution, but the
	// executions themselves started far apart.
	c := env.coordinator(nil)
	for i := 0; i < LoopThreshold*2; i++ {
		c.evaluate(link)
	}
	assert.Len(t, env.executed, LoopThreshold*2)
	assert.Equal(t, env.clock.Now().Add(-2*LoopWindow), c.lastExecution)
	env.prompter.AssertNotCalled(t, "AskContinueAutomatic")
}

func TestResetSession(t *testing.T) {
	env := newTestEnv(t)
	c := env.coordinator(nil)
	c.askedAutomatic = true
	c.loopCount = 3
	c.loopCheckDisabled = true

	c.resetSession()
	assert.False(t, c.askedAutomatic)
	assert.Equal(t, 0, c.loopCount)
	assert.False(t, c.loopCheckDisabled)
}

func TestWatchers(t *testing.T) {
	env := newTestEnv(t)
	env.addLink(t, "manual", config.Manual)
	auto := env.addLink(t, "auto", config.Automatic)

	var watchers []*fakeWatcher
	watch = func(roots []string, keep fswatch.Filter) (watcher, error) {
		w := &fakeWatcher{roots: roots, updates: make(chan struct{})}
		watchers = append(watchers, w)
		return w, nil
	}

	c := env.coordinator(nil)
	c.Start()
	require.Len(t, watchers, 1)
	assert.Equal(t, []string{"/project/auto"}, watchers[0].roots)
	assert.Equal(t, 1, c.debouncer.pending())

	auto.Trigger = config.Manual
	c.Refresh(auto)
	assert.True(t, watchers[0].closed)
	assert.Len(t, watchers, 1)

	auto.Trigger = config.Notify
	c.Refresh(auto)
	require.Len(t, watchers, 2)

	c.Close()
	assert.True(t, watchers[1].closed)
	assert.Equal(t, 0, c.debouncer.pending())
}

func TestReload(t *testing.T) {
	env := newTestEnv(t)
	edited := env.addLink(t, "edited", config.Automatic)
	env.addLink(t, "removed", config.Notify)
	env.addLink(t, "manual", config.Manual)

	watchers := map[string][]*fakeWatcher{}
	watch = func(roots []string, keep fswatch.Filter) (watcher, error) {
		w := &fakeWatcher{roots: roots, updates: make(chan struct{})}
		watchers[roots[0]] = append(watchers[roots[0]], w)
		return w, nil
	}

	c := env.coordinator(nil)
	c.Start()
	require.Len(t, watchers["/project/edited"], 1)
	require.Len(t, watchers["/project/removed"], 1)

	fresh := config.NewRegistry("/project")
	for _, name := range []string{"edited", "manual", "added"} {
		link := config.NewLink("/project/" + name + "/" + name + config.LinkSuffix)
		link.ExternalDirectories = []string{"/ext/" + name}
		require.NoError(t, fresh.Add(link))
	}
	freshEdited, err := fresh.Get("edited")
	require.NoError(t, err)
	freshEdited.Trigger = config.Automatic
	freshEdited.Direction = config.Sync
	freshAdded, err := fresh.Get("added")
	require.NoError(t, err)
	freshAdded.Trigger = config.Notify
	discoverLinks = func(project string) (*config.Registry, error) {
		assert.Equal(t, "/project", project)
		return fresh, nil
	}

	c.reloadLinks()

	var names []string
	for _, link := range env.registry.All() {
		names = append(names, link.Name())
	}
	assert.Equal(t, []string{"added", "edited", "manual"}, names)

	// Edited links keep their identity so that runtime state survives.
	current, err := env.registry.Get("edited")
	require.NoError(t, err)
	assert.True(t, current == edited)
	assert.Equal(t, config.Sync, edited.Direction)

	require.Len(t, watchers["/project/edited"], 2)
	assert.True(t, watchers["/project/edited"][0].closed)
	assert.False(t, watchers["/project/edited"][1].closed)
	assert.True(t, watchers["/project/removed"][0].closed)
	require.Len(t, watchers["/project/added"], 1)
	assert.Empty(t, watchers["/project/manual"])

	discoverLinks = func(string) (*config.Registry, error) {
		return nil, assert.AnError
	}
	logHook := logrusTest.NewGlobal()
	c.reloadLinks()
	require.NotNil(t, logHook.LastEntry())
	assert.Equal(t, "Failed to reload link definitions", logHook.LastEntry().Message)
	c.Close()
}

func TestReloadAdoptsExternalExecution(t *testing.T) {
	env := newTestEnv(t)
	env.settings.EnableAutomaticWarning = false
	link := env.addLink(t, "auto", config.Automatic)
	link.EncounteredError = true
	link.LastExecuted = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	watch = func(roots []string, keep fswatch.Filter) (watcher, error) {
		return &fakeWatcher{roots: roots, updates: make(chan struct{})}, nil
	}

	c := env.coordinator(nil)
	c.evaluate(link)
	assert.Empty(t, env.executed)

	// The link was executed manually, which rewrote its definition.
	executedAt := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := config.NewRegistry("/project")
	onDisk := config.NewLink(link.Path())
	onDisk.Trigger = config.Automatic
	onDisk.ExternalDirectories = []string{"/ext/auto"}
	onDisk.LastExecuted = executedAt
	onDisk.SynchronizedPaths = []string{"a.txt"}
	require.NoError(t, fresh.Add(onDisk))
	discoverLinks = func(string) (*config.Registry, error) {
		return fresh, nil
	}

	c.reloadLinks()
	assert.False(t, link.EncounteredError)
	assert.Equal(t, executedAt, link.LastExecuted)
	assert.Equal(t, []string{"a.txt"}, link.SynchronizedPaths)
	assert.Equal(t, 1, c.debouncer.pending())

	c.evaluate(link)
	assert.Equal(t, []string{"auto"}, env.executed)

	// Older records don't clear failures.
	link.EncounteredError = true
	link.LastExecuted = executedAt.Add(time.Hour)
	c.reloadLinks()
	assert.True(t, link.EncounteredError)
	assert.Equal(t, executedAt.Add(time.Hour), link.LastExecuted)
	c.Close()
}

func TestWatchFilterUnaffectedByEdits(t *testing.T) {
	env := newTestEnv(t)
	link := env.addLink(t, "edited", config.Automatic)

	var filters []fswatch.Filter
	watch = func(roots []string, keep fswatch.Filter) (watcher, error) {
		filters = append(filters, keep)
		return &fakeWatcher{roots: roots, updates: make(chan struct{})}, nil
	}

	c := env.coordinator(nil)
	c.Start()
	require.Len(t, filters, 1)

	// The watcher calls its filter from its own goroutine while the link is
	// being edited.
	keep := filters[0]
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				keep("/project/edited/build/a.txt")
			}
		}
	}()

	const edits = 100
	for i := 0; i < edits; i++ {
		fresh := config.NewRegistry("/project")
		onDisk := config.NewLink(link.Path())
		onDisk.Trigger = config.Automatic
		onDisk.ExternalDirectories = []string{"/ext/edited"}
		if i%2 == 0 {
			onDisk.Exclusions = []string{"build"}
		}
		require.NoError(t, fresh.Add(onDisk))
		discoverLinks = func(string) (*config.Registry, error) {
			return fresh, nil
		}
		c.reloadLinks()
	}
	close(stop)
	<-done

	require.Len(t, filters, edits+1)
	assert.True(t, keep("/project/edited/build/a.txt"))
	assert.False(t, filters[edits-1]("/project/edited/build/a.txt"))
	assert.True(t, filters[edits]("/project/edited/build/a.txt"))
	assert.Empty(t, link.Exclusions)
	c.Close()
}

func TestRun(t *testing.T) {
	env := newTestEnv(t)
	env.settings.EnableAutomaticWarning = false
	env.addLink(t, "auto", config.Automatic)
	env.addLink(t, "manual", config.Manual)

	executed := make(chan string, 10)
	executePlan = func(plan *sync.Plan, _ sync.ProgressFunc) error {
		executed <- plan.Link.Name()
		return nil
	}

	updates := make(chan struct{})
	watch = func(roots []string, keep fswatch.Filter) (watcher, error) {
		return &fakeWatcher{roots: roots, updates: updates}, nil
	}

	c := env.coordinator(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- c.Run(ctx)
	}()

	// Starting the coordinator schedules an initial evaluation.
	c.Start()
	env.clock.Advance(DebounceDelay)
	assert.Equal(t, "auto", waitForExecution(t, executed))

	// A burst of updates results in a single evaluation.
	for i := 0; i < 3; i++ {
		updates <- struct{}{}
	}
	require.Eventually(t, func() bool {
		return c.debouncer.pending() == 1
	}, time.Second, 10*time.Millisecond)
	env.clock.Advance(DebounceDelay)
	assert.Equal(t, "auto", waitForExecution(t, executed))

	c.CheckAll()
	assert.Equal(t, 1, c.debouncer.pending())
	env.clock.Advance(DebounceDelay)
	assert.Equal(t, "auto", waitForExecution(t, executed))

	// New settings apply to later evaluations.
	reviewed := make(chan struct{}, 1)
	env.prompter.On("AskAutomatic", mock.Anything, mock.Anything).Return(Review).Once()
	env.prompter.On("Review", mock.Anything).Return().Once().Run(func(mock.Arguments) {
		reviewed <- struct{}{}
	})
	settings := config.DefaultSettings()
	settings.EnableAutomaticWarning = true
	c.UpdateSettings(settings)
	c.ResetSession()
	require.Eventually(t, func() bool {
		return len(c.settingsUpdates) == 0 && len(c.reset) == 0
	}, time.Second, 10*time.Millisecond)
	c.CheckAll()
	env.clock.Advance(DebounceDelay)
	select {
	case <-reviewed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for review")
	}

	cancel()
	assert.Equal(t, context.Canceled, <-done)
	c.Close()
	assert.Empty(t, executed)
}

func waitForExecution(t *testing.T, executed chan string) string {
	select {
	case name := <-executed:
		return name
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for execution")
	}
	return ""
}
