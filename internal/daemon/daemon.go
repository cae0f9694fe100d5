// Package daemon runs the long-lived sync loop: scheduled vault passes,
// polling the vault for changed documents, and routing host events to the
// reconcile engine.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gtasksync/internal/config"
	"gtasksync/internal/events"
	"gtasksync/internal/reconcile"
	"gtasksync/internal/tracker"
)

// Engine is the part of the reconcile engine the daemon drives.
type Engine interface {
	SyncLine(ctx context.Context, path string, lineNum int, lineText, content string) (*reconcile.Report, error)
	SyncDocument(ctx context.Context, path string) (*reconcile.Report, error)
	SyncVault(ctx context.Context) (*reconcile.Report, error)
	DeletedTaskCheck(ctx context.Context, path string) (*reconcile.Report, error)
	DocumentDeleted(ctx context.Context, path string) (*reconcile.Report, error)
	DocumentRenamed(ctx context.Context, oldPath, newPath string) (*reconcile.Report, error)
	Unload()
}

// Watcher reports the modification time of every document in the vault.
type Watcher interface {
	ModTimes() (map[string]time.Time, error)
}

// Backuper writes a snapshot of the cache into dir.
type Backuper interface {
	Backup(dir string, now time.Time) (string, error)
}

// Stats summarizes the passes run by a daemon.
type Stats struct {
	StartedAt  time.Time
	LastSync   time.Time
	SyncCount  int
	ErrorCount int
	Coalesced  int
}

// Config holds the daemon configuration.
type Config struct {
	Engine     Engine
	Events     *events.Dispatcher
	Tracker    *tracker.Tracker
	Watcher    Watcher
	Backup     Backuper
	BackupDir  string
	Settings   config.Settings
	Logger     *slog.Logger
	Clock      func() time.Time
	RetryDelay time.Duration
}

// Daemon is the single logical worker of a vault.
type Daemon struct {
	engine    Engine
	events    *events.Dispatcher
	tracker   *tracker.Tracker
	watcher   Watcher
	backup    Backuper
	backupDir string
	settings  config.Settings
	logger    *slog.Logger
	clock     func() time.Time

	initialAttempts int
	retryDelay      time.Duration

	mu       sync.RWMutex
	active   string
	mtimes   map[string]time.Time
	stats    Stats
	authWarn bool
}

// New creates a daemon.
func New(cfg Config) *Daemon {
	if cfg.Events == nil {
		cfg.Events = events.NewDispatcher(events.WithLogger(cfg.Logger))
	}
	if cfg.Tracker == nil {
		cfg.Tracker = tracker.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	return &Daemon{
		engine:          cfg.Engine,
		events:          cfg.Events,
		tracker:         cfg.Tracker,
		watcher:         cfg.Watcher,
		backup:          cfg.Backup,
		backupDir:       cfg.BackupDir,
		settings:        cfg.Settings,
		logger:          cfg.Logger,
		clock:           cfg.Clock,
		initialAttempts: 3,
		retryDelay:      cfg.RetryDelay,
		mtimes:          make(map[string]time.Time),
	}
}

// Events returns the dispatcher the daemon consumes.
func (d *Daemon) Events() *events.Dispatcher { return d.events }

// SetActive marks the document open in the editor. Modification events of
// the active document are left to cursor interactions.
func (d *Daemon) SetActive(path string) {
	d.mu.Lock()
	d.active = path
	d.mu.Unlock()
}

// Active returns the document marked active.
func (d *Daemon) Active() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

// Stats returns a copy of the pass counters.
func (d *Daemon) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}

// Run performs the initial vault pass and then serves timers and events
// until ctx is cancelled. The engine is unloaded on return.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("starting sync daemon",
		"sync_interval", d.settings.SyncInterval, "poll_interval", d.settings.PollInterval)
	d.mu.Lock()
	d.stats.StartedAt = d.clock()
	d.mu.Unlock()
	defer d.engine.Unload()

	sub := d.events.Subscribe()
	defer sub.Close()

	if !d.settings.SkipBackup && d.backup != nil {
		path, err := d.backup.Backup(d.backupDir, d.clock())
		if err != nil {
			return fmt.Errorf("backup cache: %w", err)
		}
		d.logger.Info("cache backed up", "path", path)
	}

	if d.watcher != nil {
		d.poll(false)
	}

	if err := d.initialSync(ctx); err != nil {
		return err
	}

	var syncC, pollC <-chan time.Time
	if d.settings.SyncInterval > 0 {
		t := time.NewTicker(d.settings.SyncInterval)
		defer t.Stop()
		syncC = t.C
	}
	if d.settings.PollInterval > 0 && d.watcher != nil {
		t := time.NewTicker(d.settings.PollInterval)
		defer t.Stop()
		pollC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutdown requested, stopping sync daemon")
			return nil
		case <-syncC:
			d.record(d.engine.SyncVault(ctx))
		case <-pollC:
			d.poll(true)
		case ev, ok := <-sub.Events:
			if !ok {
				return nil
			}
			_, _ = d.Handle(ctx, ev)
		}
	}
}

func (d *Daemon) initialSync(ctx context.Context) error {
	var lastErr error
	for i := 0; i < d.initialAttempts; i++ {
		_, err := d.engine.SyncVault(ctx)
		d.record(nil, err)
		if err == nil {
			return nil
		}
		if errors.Is(err, reconcile.ErrAuthRequired) {
			return fmt.Errorf("initial sync: %w", err)
		}
		lastErr = err
		d.logger.Warn("initial sync failed", "attempt", i+1, "of", d.initialAttempts, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.retryDelay * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("initial sync failed after %d attempts: %w", d.initialAttempts, lastErr)
}

// Handle routes one event to the engine and returns the pass result. A nil
// report with a nil error means the event needed no pass.
func (d *Daemon) Handle(ctx context.Context, ev events.Event) (*reconcile.Report, error) {
	var (
		r   *reconcile.Report
		err error
	)
	switch ev.Kind {
	case events.DocumentModified:
		if ev.Path == d.Active() {
			d.logger.Debug("skipping modification of the active document", "path", ev.Path)
			return nil, nil
		}
		r, err = d.engine.SyncDocument(ctx, ev.Path)
	case events.DocumentDeleted:
		d.tracker.Forget(ev.Path)
		r, err = d.engine.DocumentDeleted(ctx, ev.Path)
	case events.DocumentRenamed:
		d.tracker.Rename(ev.OldPath, ev.Path)
		d.mu.Lock()
		if d.active == ev.OldPath {
			d.active = ev.Path
		}
		d.mu.Unlock()
		r, err = d.engine.DocumentRenamed(ctx, ev.OldPath, ev.Path)
	case events.InteractionOccurred:
		change, moved := d.tracker.Observe(ev.Path, ev.Line, ev.Content)
		switch {
		case ev.Deletion:
			r, err = d.engine.DeletedTaskCheck(ctx, ev.Path)
		case !moved:
			return nil, nil
		case change.Text == "":
			r, err = d.engine.DeletedTaskCheck(ctx, ev.Path)
		default:
			r, err = d.engine.SyncLine(ctx, change.Path, change.Line, change.Text, change.Content)
		}
	case events.ManualTrigger:
		r, err = d.engine.SyncVault(ctx)
	default:
		return nil, fmt.Errorf("unknown event kind %d", ev.Kind)
	}
	d.record(r, err)
	return r, err
}

func (d *Daemon) record(_ *reconcile.Report, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case err == nil:
		d.stats.SyncCount++
		d.stats.LastSync = d.clock()
		d.authWarn = false
	case errors.Is(err, reconcile.ErrBusy):
		d.stats.Coalesced++
		d.logger.Debug("trigger dropped, a pass is running")
	case errors.Is(err, reconcile.ErrAuthRequired):
		d.stats.ErrorCount++
		if !d.authWarn {
			d.authWarn = true
			d.logger.Warn("sync paused until credentials are renewed, run 'gtasksync login'")
		}
	default:
		d.stats.ErrorCount++
		d.logger.Warn("sync pass failed", "err", err)
	}
}

// poll compares document modification times with the previous scan. With
// publish set, differences become DocumentModified and DocumentDeleted
// events; otherwise the scan only seeds the baseline.
func (d *Daemon) poll(publish bool) {
	now, err := d.watcher.ModTimes()
	if err != nil {
		d.logger.Warn("scanning vault failed", "err", err)
		return
	}
	d.mu.Lock()
	prev := d.mtimes
	d.mtimes = now
	d.mu.Unlock()
	if !publish {
		return
	}
	for path, mt := range now {
		if old, ok := prev[path]; !ok || !old.Equal(mt) {
			d.events.Publish(events.Event{Kind: events.DocumentModified, Path: path})
		}
	}
	for path := range prev {
		if _, ok := now[path]; !ok {
			d.events.Publish(events.Event{Kind: events.DocumentDeleted, Path: path})
		}
	}
}
