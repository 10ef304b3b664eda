package duplicator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/goliatone/go-duplicator/pkg/activity"
	"github.com/goliatone/go-duplicator/pkg/state"
	"github.com/goliatone/go-duplicator/spatial"
)

const selectionDomain = "selection"

// Duplicator owns the reference selection of one anchor: it captures the
// target, reconciles it on demand and follows host lifecycle events.
type Duplicator struct {
	registry  Registry
	documents DocumentSource
	anchor    Entity

	store      state.Store[ReferenceSelection]
	ref        state.Ref
	reconciler *Reconciler
	watcher    *Watcher
	emitter    *activity.Emitter
	logger     *zap.Logger
}

// New builds a Duplicator positioning its target relative to anchor.
// documents may be nil when no scene document is loaded.
func New(registry Registry, documents DocumentSource, anchor Entity, opts ...Option) (*Duplicator, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	reconciler, err := newReconciler(registry, anchor, cfg)
	if err != nil {
		return nil, err
	}
	owner := strings.TrimSpace(cfg.ownerID)
	if owner == "" {
		owner = anchor.ID() + "#duplicator"
	}
	d := &Duplicator{
		registry:   registry,
		documents:  documents,
		anchor:     anchor,
		store:      cfg.store,
		ref:        state.Ref{Owner: owner, Domain: selectionDomain},
		reconciler: reconciler,
		emitter:    activity.NewEmitter(cfg.hooks, cfg.activity),
		logger:     cfg.logger.With(zap.String("anchor", anchor.ID())),
	}
	d.watcher = NewWatcher(registry, d, d.logger)
	return d, nil
}

// Candidates lists the distinct ids currently in the registry, sorted.
func (d *Duplicator) Candidates() []string {
	seen := map[string]struct{}{}
	ids := []string{}
	for _, entity := range d.registry.List() {
		if entity == nil {
			continue
		}
		id := entity.ID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Select captures targetID and its offset from the anchor and replaces the
// selection. An unresolvable target is tolerated: it is stored with an empty
// type and a zero offset, and a warning is logged.
func (d *Duplicator) Select(ctx context.Context, targetID string) error {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return fmt.Errorf("duplicator: target id must not be empty")
	}
	selection := d.capture(targetID)
	meta, err := d.store.Save(ctx, d.ref, selection, state.Meta{SnapshotID: selection.Snapshot.CaptureID()})
	if err != nil {
		return fmt.Errorf("duplicator: store selection: %w", err)
	}
	d.logger.Info("target selected",
		zap.String("target", targetID),
		zap.String("type", selection.Snapshot.Type()),
		zap.Strings("storables", selection.Snapshot.StorableIDs()),
		zap.String("etag", meta.ETag),
	)
	d.emit(ctx, activity.BuildSelectionCapturedEvent(activity.EventInput{
		AnchorID:   d.anchor.ID(),
		TargetID:   targetID,
		TargetType: selection.Snapshot.Type(),
		SnapshotID: selection.Snapshot.CaptureID(),
	}))
	return nil
}

func (d *Duplicator) capture(targetID string) ReferenceSelection {
	snapshot, err := Capture(d.registry, d.documents, targetID)
	selection := ReferenceSelection{TargetID: targetID, Snapshot: snapshot}
	if err != nil {
		d.logger.Warn("capture degraded", zap.String("target", targetID), zap.Error(err))
		return selection
	}
	target, err := d.registry.Resolve(targetID)
	if err != nil {
		d.logger.Warn("target vanished during capture", zap.String("target", targetID), zap.Error(err))
		return selection
	}
	selection.Offset = spatial.ComputeOffset(d.anchor.Pose(), target.Pose())
	return selection
}

// Selection returns the current selection.
func (d *Duplicator) Selection(ctx context.Context) (ReferenceSelection, bool) {
	selection, _, ok, err := d.store.Load(ctx, d.ref)
	if err != nil {
		d.logger.Warn("load selection failed", zap.Error(err))
		return ReferenceSelection{}, false
	}
	return selection, ok
}

// Selected is the tracked id as shown to the user; it follows renames.
func (d *Duplicator) Selected() string {
	return d.TrackedID()
}

// TrackedID returns the id of the tracked target, or "" before Select.
func (d *Duplicator) TrackedID() string {
	selection, ok := d.Selection(context.Background())
	if !ok {
		return ""
	}
	return selection.TargetID
}

var errNotTracked = errors.New("duplicator: id is not tracked")

// Retarget recaptures the selection under newID when oldID is the tracked
// id. Any other oldID is ignored. The replacement is rejected when the
// selection changed since it was read.
func (d *Duplicator) Retarget(ctx context.Context, oldID, newID string) error {
	current, meta, ok, err := d.store.Load(ctx, d.ref)
	if err != nil {
		return fmt.Errorf("duplicator: load selection: %w", err)
	}
	if !ok || current.TargetID != oldID {
		return nil
	}
	selection := d.capture(newID)
	_, _, err = state.Mutate(ctx, d.store, d.ref, state.Meta{
		ETag:       meta.ETag,
		SnapshotID: selection.Snapshot.CaptureID(),
	}, func(record *ReferenceSelection) error {
		if record.TargetID != oldID {
			return errNotTracked
		}
		*record = selection
		return nil
	})
	if errors.Is(err, errNotTracked) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("duplicator: replace selection: %w", err)
	}
	d.logger.Info("tracked target renamed", zap.String("old_id", oldID), zap.String("new_id", newID))
	d.emit(ctx, activity.BuildSelectionRenamedEvent(activity.EventInput{
		AnchorID:   d.anchor.ID(),
		TargetID:   newID,
		PreviousID: oldID,
		TargetType: selection.Snapshot.Type(),
		SnapshotID: selection.Snapshot.CaptureID(),
	}))
	return nil
}

// Reconcile reads the selection once and reconciles it.
func (d *Duplicator) Reconcile(ctx context.Context) (Report, error) {
	selection, ok := d.Selection(ctx)
	if !ok {
		return Report{}, ErrNoSelection
	}
	return d.reconciler.Reconcile(ctx, selection)
}

// Start subscribes to host lifecycle notifications.
func (d *Duplicator) Start(ctx context.Context) error {
	return d.watcher.Start(ctx)
}

// Wait blocks until removal-driven reconciles started so far have finished.
func (d *Duplicator) Wait() {
	d.watcher.Wait()
}

// Close unsubscribes from the host and waits for in-flight work.
func (d *Duplicator) Close() error {
	return d.watcher.Close()
}

func (d *Duplicator) emit(ctx context.Context, event activity.Event) {
	if err := d.emitter.Emit(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("activity hook failed", zap.String("verb", event.Verb), zap.Error(err))
	}
}
