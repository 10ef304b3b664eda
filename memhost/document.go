package memhost

import (
	"strconv"

	duplicator "github.com/goliatone/go-duplicator"
	"github.com/goliatone/go-duplicator/spatial"
)

// ControlStorableID names the storable holding an entity's pose in scene
// documents.
const ControlStorableID = "control"

// FromDocument builds a registry holding every entry of doc. Every type seen
// in the document is registered with SceneFactory.
func FromDocument(doc duplicator.SceneDocument) *Registry {
	r := New()
	for _, entry := range doc.Atoms {
		if entry.ID == "" {
			continue
		}
		if entry.Type != "" {
			r.RegisterType(entry.Type, SceneFactory(entry.Type))
		}
		r.Add(entry.ID, entry.Type, DocumentPose(entry), entry.Storables...)
	}
	return r
}

// SceneFactory gives new entities the storables a scene host creates by
// default: a control, an empty plugin manager and, for CustomUnityAsset, an
// empty asset.
func SceneFactory(typ string) StorableFactory {
	return func(string) []duplicator.Config {
		storables := []duplicator.Config{
			{"id": ControlStorableID},
			{"id": duplicator.PluginManagerStorableID, "plugins": map[string]any{}},
		}
		if typ == duplicator.CustomUnityAssetType {
			storables = append(storables, duplicator.Config{"id": duplicator.AssetStorableID, "assetName": "", "assetUrl": ""})
		}
		return storables
	}
}

// DocumentPose reads position and Euler rotation from the control storable.
// Components may be numbers or numeric strings; anything missing is zero.
func DocumentPose(entry duplicator.DocumentEntry) spatial.Pose {
	control, ok := entry.Storable(ControlStorableID)
	if !ok {
		return spatial.Pose{Rotation: spatial.Identity()}
	}
	return spatial.NewPose(vector(control["position"]), vector(control["rotation"]))
}

func vector(value any) spatial.Vec3 {
	fields, ok := value.(map[string]any)
	if !ok {
		if cfg, isCfg := value.(duplicator.Config); isCfg {
			fields = cfg
		} else {
			return spatial.Vec3{}
		}
	}
	return spatial.V(number(fields["x"]), number(fields["y"]), number(fields["z"]))
}

func number(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
