package duplicator_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/goleak"

	duplicator "github.com/goliatone/go-duplicator"
	"github.com/goliatone/go-duplicator/pkg/activity"
	"github.com/goliatone/go-duplicator/pkg/state"
	"github.com/goliatone/go-duplicator/spatial"
)

func TestRenameOfTrackedTargetRecaptures(t *testing.T) {
	s := newScene(t)
	hook := &activity.CaptureHook{}
	d := s.duplicator(t, duplicator.WithActivityHooks(hook))
	ctx := context.Background()
	if err := d.Select(ctx, "Cube"); err != nil {
		t.Fatalf("select: %v", err)
	}
	before, _ := d.Selection(ctx)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Close()

	s.anchor.SetPose(spatial.NewPose(spatial.V(-1, 0, 0), spatial.V(0, 0, 0)))
	if err := s.host.Rename("Cube", "Box"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	after, ok := d.Selection(ctx)
	if !ok || after.TargetID != "Box" || d.Selected() != "Box" {
		t.Fatalf("expected tracking to follow the rename, got %+v", after)
	}
	if after.Snapshot.ID() != "Box" || after.Snapshot.CaptureID() == before.Snapshot.CaptureID() {
		t.Fatalf("expected a fresh snapshot under the new id")
	}
	// The offset is recomputed against the anchor pose at rename time.
	if !after.Offset.Position.ApproxEqual(spatial.V(2, 0, 0), eps) {
		t.Fatalf("unexpected recomputed offset %+v", after.Offset.Position)
	}
	if len(s.host.Creates()) != 0 {
		t.Fatalf("rename must not create anything")
	}
	verbs := hook.Verbs()
	if verbs[len(verbs)-1] != activity.VerbSelectionRenamed {
		t.Fatalf("expected a rename event, got %v", verbs)
	}
}

func TestRenameOfOtherEntityIsIgnored(t *testing.T) {
	s := newScene(t)
	s.host.Add("Lamp", "Light", spatial.Pose{Rotation: spatial.Identity()})
	d := s.duplicator(t)
	ctx := context.Background()
	if err := d.Select(ctx, "Cube"); err != nil {
		t.Fatalf("select: %v", err)
	}
	before, _ := d.Selection(ctx)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Close()

	if err := s.host.Rename("Lamp", "Lantern"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	after, _ := d.Selection(ctx)
	if after.TargetID != "Cube" || after.Snapshot.CaptureID() != before.Snapshot.CaptureID() {
		t.Fatalf("unrelated rename changed the selection: %+v", after)
	}
}

func TestRemovalOfTrackedTargetRespawnsOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newScene(t)
	d := s.duplicator(t)
	ctx := context.Background()
	if err := d.Select(ctx, "Cube"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := s.host.Remove("Cube"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	d.Wait()

	if got := len(s.host.Creates()); got != 1 {
		t.Fatalf("expected exactly one recreation, got %d", got)
	}
	cube := s.entity(t, "Cube")
	if !cube.Pose().Position.ApproxEqual(spatial.V(1, 0, 0), eps) {
		t.Fatalf("recreated target not positioned: %+v", cube.Pose())
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRemovalOfOtherEntityIsIgnored(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newScene(t)
	s.host.Add("Lamp", "Light", spatial.Pose{Rotation: spatial.Identity()})
	d := s.duplicator(t)
	ctx := context.Background()
	if err := d.Select(ctx, "Cube"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := s.host.Remove("Lamp"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	d.Wait()
	if len(s.host.Creates()) != 0 {
		t.Fatalf("unrelated removal must not reconcile")
	}
	if s.entity(t, "Cube").PoseWrites() != 0 {
		t.Fatalf("unrelated removal must not reposition")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestCloseUnsubscribesOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newScene(t)
	d := s.duplicator(t)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if rename, removed := s.host.Subscribers(); rename != 1 || removed != 1 {
		t.Fatalf("expected one subscription per stream, got %d/%d", rename, removed)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if rename, removed := s.host.Subscribers(); rename != 0 || removed != 0 {
		t.Fatalf("expected no subscriptions after close, got %d/%d", rename, removed)
	}
	if err := d.Start(ctx); !errors.Is(err, duplicator.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCloseCancelsRemovalDrivenReconcile(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newScene(t)
	d := s.duplicator(t)
	ctx := context.Background()
	if err := d.Select(ctx, "Cube"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.host.Hold()
	if err := s.host.Remove("Cube"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitFor(t, "queued creation", func() bool { return s.host.Queued() == 1 })

	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	s.host.Release()
	if _, ok := s.host.Entity("Cube"); ok {
		t.Fatalf("creation should have been cancelled by Close")
	}

	if err := s.host.Remove("Person"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := len(s.host.Creates()); got != 1 {
		t.Fatalf("closed watcher must ignore later removals, got %d creates", got)
	}
}

func TestRenameStampsFreshCaptureOnRecord(t *testing.T) {
	s := newScene(t)
	store := state.NewMemoryStore[duplicator.ReferenceSelection]()
	d := s.duplicator(t, duplicator.WithStore(store), duplicator.WithOwnerID("duplicator-1"))
	ctx := context.Background()
	if err := d.Select(ctx, "Cube"); err != nil {
		t.Fatalf("select: %v", err)
	}
	ref := state.Ref{Owner: "duplicator-1", Domain: "selection"}
	_, before, _, _ := store.Load(ctx, ref)

	if err := d.Retarget(ctx, "Cube", "Box"); err != nil {
		t.Fatalf("retarget: %v", err)
	}
	value, after, ok, err := store.Load(ctx, ref)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if value.TargetID != "Box" {
		t.Fatalf("expected the record to track Box, got %q", value.TargetID)
	}
	if after.ETag == before.ETag {
		t.Fatalf("expected a new etag after retarget")
	}
	if after.SnapshotID != value.Snapshot.CaptureID() || after.SnapshotID == before.SnapshotID {
		t.Fatalf("expected the record stamped with the new capture, got %+v", after)
	}

	if err := d.Retarget(ctx, "Cube", "Crate"); err != nil {
		t.Fatalf("retarget of an untracked id: %v", err)
	}
	if d.TrackedID() != "Box" {
		t.Fatalf("untracked retarget changed the selection to %q", d.TrackedID())
	}
}

func TestRemovalRacesManualReconcile(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newScene(t)
	s.host.Add("Lamp", "Light", spatial.Pose{Rotation: spatial.Identity()})
	d := s.duplicator(t)
	ctx := context.Background()
	if err := d.Select(ctx, "Cube"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := s.host.Remove("Cube"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.host.Hold()

	var wg sync.WaitGroup
	var manualErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, manualErr = d.Reconcile(ctx)
	}()
	waitFor(t, "manual creation queued", func() bool { return s.host.Queued() == 1 })

	// The tracked id is still unresolved, so this removal triggers a second
	// reconcile while the first creation is pending.
	if err := s.host.Remove("Lamp"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitFor(t, "removal creation queued", func() bool { return s.host.Queued() == 2 })
	s.host.Release()
	wg.Wait()
	d.Wait()

	if manualErr != nil {
		t.Fatalf("manual reconcile: %v", manualErr)
	}
	if got := len(s.host.Creates()); got != 2 {
		t.Fatalf("expected both triggers to instantiate, got %d creates", got)
	}
	if _, ok := s.host.Entity("Cube#2"); !ok {
		t.Fatalf("expected a duplicate instance from the race")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
