// Package duplicator keeps a dependent scene object alive at a fixed offset
// from an anchor object.
//
// A Duplicator captures a target (its type and the configuration of its
// sub-components, read from the loaded scene document) together with its
// placement relative to the anchor. Reconcile recreates the target when it
// is gone, replays the asset and plugin configuration onto the new object,
// and moves it back next to the anchor. Once started, the Duplicator follows
// the host's rename and removal notifications.
//
// Basic usage:
//
//	d, err := duplicator.New(registry, document, anchor, duplicator.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	if err := d.Select(ctx, "Cube"); err != nil {
//		return err
//	}
//	if err := d.Start(ctx); err != nil {
//		return err
//	}
//	defer d.Close()
//	report, err := d.Reconcile(ctx)
//
// Concurrent reconciles of the same target are not serialised unless
// WithInFlightGuard is given; without it both may instantiate the target.
package duplicator
