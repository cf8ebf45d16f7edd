package studio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/robfig/cron/v3"
)

const (
	DefaultAutosaveDebounce = 30 * time.Second
	DefaultAutosaveInterval = 2 * time.Minute
)

// Autosave saves a dirty design shortly after the last edit and, as a safety net, on a
// fixed interval. A trigger that finds a save running is dropped.
type Autosave struct {
	store *Store
	saver *Saver
	log   *slog.Logger

	debounced func(f func())
	interval  time.Duration
	sched     *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	started bool
	stopped bool
	running sync.WaitGroup
}

func newAutosave(store *Store, saver *Saver, debounceAfter, interval time.Duration, log *slog.Logger) *Autosave {
	if debounceAfter <= 0 {
		debounceAfter = DefaultAutosaveDebounce
	}
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	a := &Autosave{
		store:     store,
		saver:     saver,
		log:       log,
		debounced: debounce.New(debounceAfter),
		interval:  interval,
		ctx:       context.Background(),
	}
	store.OnDirty(a.edited)
	return a
}

// Start arms the periodic timer. Saves run with ctx's values but are not cancelled by it.
func (a *Autosave) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.stopped {
		return
	}
	a.started = true
	a.ctx = context.WithoutCancel(ctx)
	a.sched = cron.New()
	a.sched.Schedule(cron.Every(a.interval), cron.FuncJob(func() { a.fire(TriggerPeriodic) }))
	a.sched.Start()
	a.log.Debug("autosave started", "interval", a.interval)
}

func (a *Autosave) edited() {
	a.mu.Lock()
	live := a.started && !a.stopped
	a.mu.Unlock()
	if live {
		a.debounced(func() { a.fire(TriggerDebounce) })
	}
}

func (a *Autosave) fire(trigger Trigger) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.running.Add(1)
	ctx := a.ctx
	a.mu.Unlock()
	defer a.running.Done()
	a.Trigger(ctx, trigger)
}

// Trigger saves when the design is dirty, a canvas exists and no save is running.
// It reports whether a save was dispatched.
func (a *Autosave) Trigger(ctx context.Context, trigger Trigger) (SaveResult, bool) {
	if !a.store.IsDirty() || a.store.Canvas() == nil {
		return SaveResult{Outcome: Skipped}, false
	}
	res, ok := a.saver.TrySave(ctx, trigger)
	if !ok {
		a.log.Debug("autosave dropped, save in flight", "trigger", trigger.String())
	}
	return res, ok
}

// Stop disarms both timers and waits for a save already running.
func (a *Autosave) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	sched := a.sched
	a.mu.Unlock()

	// cancel any pending debounce
	a.debounced(func() {})
	if sched != nil {
		<-sched.Stop().Done()
	}
	a.running.Wait()
}
