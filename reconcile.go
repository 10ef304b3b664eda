package duplicator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-duplicator/pkg/activity"
	"github.com/goliatone/go-duplicator/spatial"
)

// Reconciler ensures the target exists and sits at its offset from the
// anchor.
type Reconciler struct {
	registry Registry
	anchor   Entity
	replayer *replayer
	logger   *zap.Logger
	emitter  *activity.Emitter
	inflight *singleflight.Group
}

// NewReconciler builds a standalone reconciler positioning targets relative
// to anchor.
func NewReconciler(registry Registry, anchor Entity, opts ...Option) (*Reconciler, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return newReconciler(registry, anchor, cfg)
}

func newReconciler(registry Registry, anchor Entity, cfg config) (*Reconciler, error) {
	if registry == nil {
		return nil, fmt.Errorf("duplicator: registry is required")
	}
	if anchor == nil {
		return nil, fmt.Errorf("duplicator: anchor is required")
	}
	r := &Reconciler{
		registry: registry,
		anchor:   anchor,
		replayer: &replayer{
			anchorID:   anchor.ID(),
			rules:      prepareRules(cfg.evaluator, cfg.rules),
			evalLogger: cfg.evalLogger,
			logger:     cfg.logger,
		},
		logger:  cfg.logger,
		emitter: activity.NewEmitter(cfg.hooks, cfg.activity),
	}
	if cfg.guard {
		r.inflight = &singleflight.Group{}
	}
	return r, nil
}

// Reconcile brings the selection's target to Present and repositions it.
//
// An absent target is created from the snapshot, awaited, re-resolved and
// then gets its captured configuration replayed. A present target is only
// repositioned. Creation or resolution failures return an
// *EntityResolutionError and leave the scene unpositioned.
func (r *Reconciler) Reconcile(ctx context.Context, selection ReferenceSelection) (Report, error) {
	if selection.TargetID == "" {
		return Report{}, ErrNoSelection
	}
	if r.inflight == nil {
		return r.reconcile(ctx, selection)
	}
	value, err, shared := r.inflight.Do(selection.TargetID, func() (any, error) {
		return r.reconcile(ctx, selection)
	})
	report, _ := value.(Report)
	report.Shared = shared
	return report, err
}

func (r *Reconciler) reconcile(ctx context.Context, selection ReferenceSelection) (Report, error) {
	report := Report{TargetID: selection.TargetID}

	entity, err := r.registry.Resolve(selection.TargetID)
	if err != nil {
		entity, err = r.create(ctx, selection)
		if err != nil {
			r.logger.Error("reconcile aborted",
				zap.String("target", selection.TargetID),
				zap.String("type", selection.Snapshot.Type()),
				zap.Error(err),
			)
			r.emit(ctx, activity.BuildReconcileFailedEvent(r.eventInput(selection, err)))
			return report, err
		}
		report.Created = true
		r.replayer.replay(entity, selection.Snapshot, &report)
		input := r.eventInput(selection, nil)
		input.Replayed = report.Replayed
		r.emit(ctx, activity.BuildTargetCreatedEvent(input))
	}

	report.Pose = spatial.Reapply(r.anchor.Pose(), selection.Offset)
	entity.SetPose(report.Pose)
	r.logger.Debug("target repositioned",
		zap.String("target", selection.TargetID),
		zap.Bool("created", report.Created),
		zap.Strings("replayed", report.Replayed),
	)
	r.emit(ctx, activity.BuildTargetRepositionedEvent(r.eventInput(selection, nil)))
	return report, nil
}

// create instantiates the snapshot's type under the snapshot id and resolves
// the tracked id once the host reports completion.
func (r *Reconciler) create(ctx context.Context, selection ReferenceSelection) (Entity, error) {
	snapshot := selection.Snapshot
	pending := r.registry.CreateAsync(ctx, snapshot.Type(), snapshot.ID())
	if err := Await(ctx, pending); err != nil {
		return nil, &EntityResolutionError{Op: "create", TargetID: snapshot.ID(), Type: snapshot.Type(), Err: err}
	}
	entity, err := r.registry.Resolve(selection.TargetID)
	if err != nil {
		return nil, &EntityResolutionError{Op: "resolve", TargetID: selection.TargetID, Type: snapshot.Type(), Err: err}
	}
	return entity, nil
}

func (r *Reconciler) eventInput(selection ReferenceSelection, err error) activity.EventInput {
	return activity.EventInput{
		AnchorID:   r.anchor.ID(),
		TargetID:   selection.TargetID,
		TargetType: selection.Snapshot.Type(),
		SnapshotID: selection.Snapshot.CaptureID(),
		Err:        err,
	}
}

func (r *Reconciler) emit(ctx context.Context, event activity.Event) {
	if err := r.emitter.Emit(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("activity hook failed", zap.String("verb", event.Verb), zap.Error(err))
	}
}
