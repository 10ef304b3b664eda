package duplicator

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Tracker is what the watcher drives when the host reports lifecycle
// changes. Duplicator implements it.
type Tracker interface {
	TrackedID() string
	Retarget(ctx context.Context, oldID, newID string) error
	Reconcile(ctx context.Context) (Report, error)
}

// Watcher follows host rename and removal notifications for the tracked
// target.
//
// Renames of the tracked id recapture it under the new id. A removal after
// which the tracked id no longer resolves starts one reconcile on its own
// goroutine, so the host's notification loop is never blocked on creation.
type Watcher struct {
	registry Registry
	tracker  Tracker
	logger   *zap.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	unsubs  []Unsubscribe
	wg      sync.WaitGroup

	closeOnce sync.Once
}

func NewWatcher(registry Registry, tracker Tracker, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		registry: registry,
		tracker:  tracker,
		logger:   logger,
	}
}

// Start subscribes to the registry. Calling it again is a no-op; calling it
// after Close returns ErrClosed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.started {
		return nil
	}
	w.started = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.unsubs = append(w.unsubs,
		w.registry.OnRename(w.handleRename),
		w.registry.OnRemoved(w.handleRemoved),
	)
	return nil
}

// Close unsubscribes both handlers, cancels removal-driven reconciles and
// waits for them to return. Only the first call has an effect.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		unsubs := w.unsubs
		w.unsubs = nil
		cancel := w.cancel
		w.mu.Unlock()

		for _, unsubscribe := range unsubs {
			if unsubscribe != nil {
				unsubscribe()
			}
		}
		if cancel != nil {
			cancel()
		}
		w.wg.Wait()
	})
	return nil
}

// Wait blocks until every removal-driven reconcile started so far returns.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

func (w *Watcher) handleRename(oldID, newID string) {
	if oldID == "" || oldID != w.tracker.TrackedID() {
		return
	}
	ctx, ok := w.context()
	if !ok {
		return
	}
	if err := w.tracker.Retarget(ctx, oldID, newID); err != nil {
		w.logger.Warn("retarget after rename failed",
			zap.String("old_id", oldID),
			zap.String("new_id", newID),
			zap.Error(err),
		)
	}
}

func (w *Watcher) handleRemoved(removed Entity) {
	tracked := w.tracker.TrackedID()
	if tracked == "" {
		return
	}
	if _, err := w.registry.Resolve(tracked); err == nil {
		return
	}

	w.mu.Lock()
	if w.closed || w.ctx == nil {
		w.mu.Unlock()
		return
	}
	ctx := w.ctx
	w.wg.Add(1)
	w.mu.Unlock()

	removedID := ""
	if removed != nil {
		removedID = removed.ID()
	}
	go func() {
		defer w.wg.Done()
		if _, err := w.tracker.Reconcile(ctx); err != nil {
			w.logger.Warn("reconcile after removal failed",
				zap.String("target", tracked),
				zap.String("removed", removedID),
				zap.Error(err),
			)
		}
	}()
}

func (w *Watcher) context() (context.Context, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.ctx == nil {
		return nil, false
	}
	return w.ctx, true
}
