package trigger

import (
	"sort"
	goSync "sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// debouncer delays evaluations until changes to a link have settled. Each
// link has at most one pending timer, and scheduling a link again restarts
// its timer. Expired links are collected in a ready set, and the control
// goroutine is woken through a channel that never holds more than one
// wakeup.
type debouncer struct {
	clock clockwork.Clock
	delay time.Duration
	wake  chan struct{}

	lock   goSync.Mutex
	timers map[string]clockwork.Timer
	ready  map[string]struct{}
}

func newDebouncer(clock clockwork.Clock, delay time.Duration) *debouncer {
	return &debouncer{
		clock:  clock,
		delay:  delay,
		wake:   make(chan struct{}, 1),
		timers: map[string]clockwork.Timer{},
		ready:  map[string]struct{}{},
	}
}

func (d *debouncer) schedule(name string) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if timer, ok := d.timers[name]; ok {
		timer.Stop()
	}

	var timer clockwork.Timer
	timer = d.clock.AfterFunc(d.delay, func() {
		// The clock may hold its own lock while running callbacks.
		go d.fire(name, &timer)
	})
	d.timers[name] = timer
}

func (d *debouncer) fire(name string, timer *clockwork.Timer) {
	d.lock.Lock()
	// The timer was replaced after it had already expired.
	if d.timers[name] != *timer {
		d.lock.Unlock()
		return
	}
	delete(d.timers, name)
	d.ready[name] = struct{}{}
	d.lock.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// takeReady returns the names of the links whose timers expired, and clears
// them.
func (d *debouncer) takeReady() []string {
	d.lock.Lock()
	defer d.lock.Unlock()

	var names []string
	for name := range d.ready {
		names = append(names, name)
	}
	d.ready = map[string]struct{}{}

	sort.Strings(names)
	return names
}

func (d *debouncer) pending() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.timers)
}

func (d *debouncer) stop() {
	d.lock.Lock()
	defer d.lock.Unlock()

	for name, timer := range d.timers {
		timer.Stop()
		delete(d.timers, name)
	}
}
