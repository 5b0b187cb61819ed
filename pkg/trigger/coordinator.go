package trigger

import (
	"context"
	goSync "sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/linksync/pkg/config"
	"github.com/sidkik/linksync/pkg/fswatch"
	"github.com/sidkik/linksync/pkg/sync"
)

const (
	// DebounceDelay is how long a link's files have to stay unchanged before
	// the link is evaluated.
	DebounceDelay = 250 * time.Millisecond

	// LoopWindow is how soon automatic executions have to follow each other
	// to count as consecutive.
	LoopWindow = time.Second

	// LoopThreshold is the number of consecutive automatic executions after
	// which the user is asked whether the links are stuck in a loop.
	LoopThreshold = 7
)

// Answer is the user's response to the first automatic execution of a
// session.
type Answer int

const (
	// Allow lets automatic executions proceed for the rest of the session.
	Allow Answer = iota

	// DowngradeToNotify switches the link to the Notify trigger.
	DowngradeToNotify

	// Review shows the plan to the user without executing it.
	Review
)

// Prompter asks the user questions on behalf of the coordinator.
type Prompter interface {
	// AskAutomatic is asked before the first automatic execution of each
	// session. `automatic` lists every link using the Automatic trigger.
	AskAutomatic(plan *sync.Plan, automatic []*config.Link) Answer

	// AskContinueAutomatic is asked when automatic executions happen so often
	// that the links might be triggering each other. Returning false
	// downgrades every Automatic link to Notify.
	AskContinueAutomatic() bool

	// Review shows a plan that won't be executed.
	Review(plan *sync.Plan)
}

// Host is the application that the coordinator runs in.
type Host interface {
	// IsBuilding returns whether files are currently being generated. Links
	// aren't executed automatically while the host is building.
	IsBuilding() bool
}

type watcher interface {
	Updates() <-chan struct{}
	Close() error
}

// Mocked out for unit testing.
var (
	fs          = afero.NewOsFs()
	newPlan     = sync.NewPlan
	executePlan = (*sync.Plan).Execute
	saveLink    = (*config.Link).Save
	watch       = func(roots []string, keep fswatch.Filter) (watcher, error) {
		return fswatch.Watch(roots, keep)
	}
	lastExecuted  = config.LastExecuted
	discoverLinks = config.DiscoverLinks
)

// Coordinator decides when links are planned and executed in response to
// filesystem changes.
//
// All evaluations happen on the goroutine that calls Run. The other methods
// are safe to call from any goroutine.
type Coordinator struct {
	registry *config.Registry
	settings config.Settings
	prompter Prompter
	host     Host
	clock    clockwork.Clock

	debouncer       *debouncer
	reset           chan struct{}
	reload          chan struct{}
	settingsUpdates chan config.Settings

	watchersLock goSync.Mutex
	watchers     map[string]watcher

	// Session state. Only accessed by the control goroutine.
	askedAutomatic    bool
	loopCount         int
	loopCheckDisabled bool
	lastExecution     time.Time
}

// New creates a coordinator for the links in the registry. `host` may be nil
// if the host never builds.
func New(registry *config.Registry, settings config.Settings,
	prompter Prompter, host Host, clock clockwork.Clock) *Coordinator {
	return &Coordinator{
		registry:        registry,
		settings:        settings,
		prompter:        prompter,
		host:            host,
		clock:           clock,
		debouncer:       newDebouncer(clock, DebounceDelay),
		reset:           make(chan struct{}, 1),
		reload:          make(chan struct{}, 1),
		settingsUpdates: make(chan config.Settings, 1),
		watchers:        map[string]watcher{},
		lastExecution:   lastExecuted(),
	}
}

// Start watches every link that isn't Manual, and schedules an evaluation
// for each of them.
func (c *Coordinator) Start() {
	for _, link := range c.registry.All() {
		c.Refresh(link)
	}
}

// Refresh recreates the link's watcher after its configuration changed, and
// schedules an evaluation.
func (c *Coordinator) Refresh(link *config.Link) {
	c.watchersLock.Lock()
	defer c.watchersLock.Unlock()

	c.unwatch(link.Name())
	if link.Trigger == config.Manual {
		return
	}

	logger := log.WithField("link", link.Name())

	// The filter runs on the watcher's goroutine, so it gets its own copy of
	// the link. Edits to the link replace the watcher.
	roots := append([]string{link.LocalRoot()}, link.ExternalRoots(fs, true)...)
	w, err := watch(roots, link.Clone().Contains)
	if err != nil {
		logger.WithError(err).Warn("Failed to watch link. It will only be checked on request.")
	} else {
		c.watchers[link.Name()] = w
		go c.forward(link.Name(), w)
	}

	c.Schedule(link.Name())
}

// unwatch closes the link's watcher. The caller must hold watchersLock.
func (c *Coordinator) unwatch(name string) {
	w, ok := c.watchers[name]
	if !ok {
		return
	}

	if err := w.Close(); err != nil {
		log.WithError(err).WithField("link", name).Warn("Failed to close file watcher")
	}
	delete(c.watchers, name)
}

func (c *Coordinator) forward(name string, w watcher) {
	for range w.Updates() {
		c.Schedule(name)
	}
}

// Schedule evaluates the link once it hasn't been scheduled again for
// DebounceDelay.
func (c *Coordinator) Schedule(name string) {
	c.debouncer.schedule(name)
}

// CheckAll schedules an evaluation of every link. It's used when the host
// knows that files changed, for example after generating them.
func (c *Coordinator) CheckAll() {
	for _, link := range c.registry.All() {
		if link.Trigger != config.Manual {
			c.Schedule(link.Name())
		}
	}
}

// ResetSession forgets the user's answers for this session, so they're asked
// again.
func (c *Coordinator) ResetSession() {
	select {
	case c.reset <- struct{}{}:
	default:
	}
}

// Reload rediscovers the link definitions in the project, and picks up any
// links that were added, removed or edited since the coordinator started.
// Every link is evaluated afterwards.
func (c *Coordinator) Reload() {
	select {
	case c.reload <- struct{}{}:
	default:
	}
}

// UpdateSettings replaces the user's settings for future evaluations.
func (c *Coordinator) UpdateSettings(settings config.Settings) {
	// Only the newest settings matter.
	select {
	case <-c.settingsUpdates:
	default:
	}

	select {
	case c.settingsUpdates <- settings:
	default:
	}
}

// Close stops watching every link and cancels pending evaluations.
func (c *Coordinator) Close() {
	c.watchersLock.Lock()
	defer c.watchersLock.Unlock()

	for name := range c.watchers {
		c.unwatch(name)
	}
	c.debouncer.stop()
}

// Run evaluates links as they become ready until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.reset:
			c.resetSession()
		case <-c.reload:
			c.reloadLinks()
		case settings := <-c.settingsUpdates:
			c.settings = settings
		case <-c.debouncer.wake:
			for _, name := range c.debouncer.takeReady() {
				link, err := c.registry.Get(name)
				if err != nil {
					log.WithField("link", name).Debug("Link was removed before it was evaluated")
					continue
				}
				c.evaluate(link)
			}
		}
	}
}

func (c *Coordinator) resetSession() {
	c.askedAutomatic = false
	c.loopCount = 0
	c.loopCheckDisabled = false
}

func (c *Coordinator) reloadLinks() {
	fresh, err := discoverLinks(c.registry.Project())
	if err != nil {
		log.WithError(err).Warn("Failed to reload link definitions")
		return
	}

	for _, link := range c.registry.All() {
		if current, err := fresh.Get(link.Name()); err == nil && current.Path() == link.Path() {
			continue
		}

		log.WithField("link", link.Name()).Info("Link was removed")
		c.registry.Remove(link.Name())
		c.watchersLock.Lock()
		c.unwatch(link.Name())
		c.watchersLock.Unlock()
	}

	for _, link := range fresh.All() {
		logger := log.WithField("link", link.Name())

		existing, err := c.registry.Get(link.Name())
		if err != nil {
			if err := c.registry.Add(link); err != nil {
				logger.WithError(err).Warn("Failed to add link")
				continue
			}
			logger.Info("Found new link")
			c.Refresh(link)
			continue
		}

		// The link was executed by another process, such as `linksync
		// execute`. Its record is newer than ours, and it succeeded.
		if link.LastExecuted.After(existing.LastExecuted) {
			logger.Info("Link was executed elsewhere")
			existing.LastExecuted = link.LastExecuted
			existing.SynchronizedPaths = link.SynchronizedPaths
			existing.EncounteredError = false
		}

		// Only the user's settings are compared. Everything else is
		// maintained by this process.
		patch := config.DiffLinks(existing, link)
		if patch.IsEmpty() {
			continue
		}

		logger.WithField("changes", patch.String()).Info("Link definition changed")
		c.watchersLock.Lock()
		c.unwatch(existing.Name())
		c.watchersLock.Unlock()
		patch.Apply(existing)
		c.Refresh(existing)
	}
	c.CheckAll()
}

func (c *Coordinator) evaluate(link *config.Link) {
	switch link.Trigger {
	case config.Notify:
		c.evaluateNotify(link)
	case config.Automatic:
		c.evaluateAutomatic(link)
	}
}

func (c *Coordinator) evaluateNotify(link *config.Link) {
	logger := log.WithField("link", link.Name())

	plan, err := newPlan(link, link.Direction, false)
	if err != nil {
		logger.WithError(err).Error("Failed to plan link")
		return
	}

	if plan.IsEmpty() {
		link.OutOfDate = false
		return
	}

	if !link.OutOfDate && c.settings.NotifyViaLog {
		logger.Warn("Link is out of date and needs to be synchronized")
	}
	link.OutOfDate = true
}

func (c *Coordinator) evaluateAutomatic(link *config.Link) {
	logger := log.WithField("link", link.Name())

	if link.EncounteredError {
		logger.Debug("Skipping automatic execution because the link previously failed")
		return
	}

	if c.host != nil && c.host.IsBuilding() {
		logger.Debug("Skipping automatic execution while the host is building")
		return
	}

	plan, err := newPlan(link, link.Direction, false)
	if err != nil {
		logger.WithError(err).Error("Failed to plan link")
		return
	}

	if plan.IsEmpty() {
		return
	}

	if c.settings.EnableAutomaticWarning && !c.askedAutomatic {
		switch c.prompter.AskAutomatic(plan, c.registry.WithTrigger(config.Automatic)) {
		case Allow:
			c.askedAutomatic = true
		case DowngradeToNotify:
			c.downgrade(link)
			link.OutOfDate = true
			return
		default:
			c.prompter.Review(plan)
			return
		}
	}

	if c.executedTooOften() {
		return
	}

	if err := executePlan(plan, nil); err != nil {
		logger.WithError(err).Error("Automatic execution failed. " +
			"The link won't be executed automatically until it's executed manually.")
		return
	}

	// Measured from when the execution started, like the persisted record.
	c.lastExecution = link.LastExecuted
}

// executedTooOften counts consecutive automatic executions, and asks the user
// whether to continue once there have been too many. It returns true if
// automatic execution was disabled.
func (c *Coordinator) executedTooOften() bool {
	if c.loopCheckDisabled {
		return false
	}

	if c.clock.Since(c.lastExecution) > LoopWindow {
		c.loopCount = 0
		return false
	}

	c.loopCount++
	if c.loopCount < LoopThreshold {
		return false
	}

	if c.prompter.AskContinueAutomatic() {
		c.loopCheckDisabled = true
		return false
	}

	for _, link := range c.registry.WithTrigger(config.Automatic) {
		c.downgrade(link)
	}
	c.loopCount = 0
	return true
}

func (c *Coordinator) downgrade(link *config.Link) {
	logger := log.WithField("link", link.Name())
	logger.Info("Switching link to the Notify trigger")

	link.Trigger = config.Notify
	if err := saveLink(link); err != nil {
		logger.WithError(err).Warn("Failed to save link")
	}
}
