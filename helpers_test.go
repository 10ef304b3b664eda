package duplicator_test

import (
	"testing"
	"time"

	duplicator "github.com/goliatone/go-duplicator"
	"github.com/goliatone/go-duplicator/memhost"
	"github.com/goliatone/go-duplicator/spatial"
)

const eps = 1e-6

type scene struct {
	host   *memhost.Registry
	anchor *memhost.Entity
	doc    duplicator.SceneDocument
}

// newScene places an anchor "Person" at the origin and a CustomUnityAsset
// "Cube" at (1,0,0), both unrotated, with a matching scene document.
func newScene(t *testing.T) scene {
	t.Helper()
	doc := duplicator.SceneDocument{Atoms: []duplicator.DocumentEntry{
		{ID: "Person", Type: "Person"},
		{
			ID:   "Cube",
			Type: duplicator.CustomUnityAssetType,
			Storables: []duplicator.Config{
				{"id": "asset", "assetName": "Chair", "assetUrl": "Furniture.var:/chair.assetbundle"},
				{"id": "PluginManager", "plugins": map[string]any{"plugin#0": "Custom/Scripts/Spin.cs"}},
				{"id": "scale", "scale": 2.5},
				{"note": "no id"},
			},
		},
	}}

	host := memhost.New()
	host.RegisterType(duplicator.CustomUnityAssetType, func(string) []duplicator.Config {
		return []duplicator.Config{
			{"id": "asset", "assetName": "", "assetUrl": "", "showHandles": true},
			{"id": "PluginManager", "plugins": map[string]any{"plugin#1": "Custom/Scripts/Glow.cs"}},
			{"id": "scale", "scale": 1.0},
		}
	})
	anchor := host.Add("Person", "Person", spatial.NewPose(spatial.V(0, 0, 0), spatial.V(0, 0, 0)))
	cube := host.Add("Cube", duplicator.CustomUnityAssetType, spatial.NewPose(spatial.V(1, 0, 0), spatial.V(0, 0, 0)))
	for _, cfg := range doc.Atoms[1].Storables {
		cube.AddStorable(cfg)
	}
	return scene{host: host, anchor: anchor, doc: doc}
}

func (s scene) duplicator(t *testing.T, opts ...duplicator.Option) *duplicator.Duplicator {
	t.Helper()
	d, err := duplicator.New(s.host, s.doc, s.anchor, opts...)
	if err != nil {
		t.Fatalf("new duplicator: %v", err)
	}
	return d
}

func (s scene) entity(t *testing.T, id string) *memhost.Entity {
	t.Helper()
	entity, ok := s.host.Entity(id)
	if !ok {
		t.Fatalf("expected entity %q in scene", id)
	}
	return entity
}

func (s scene) storable(t *testing.T, entityID, storableID string) *memhost.Storable {
	t.Helper()
	st, ok := s.entity(t, entityID).StorableByID(storableID)
	if !ok {
		t.Fatalf("expected storable %q on %q", storableID, entityID)
	}
	return st
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
