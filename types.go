package duplicator

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-duplicator/internal/hydrate"
	"github.com/goliatone/go-duplicator/layering"
	"github.com/goliatone/go-duplicator/spatial"
)

const (
	// CustomUnityAssetType is the entity type whose asset reference is replayed.
	CustomUnityAssetType = "CustomUnityAsset"
	// AssetStorableID identifies the asset sub-component.
	AssetStorableID = "asset"
	// PluginManagerStorableID identifies the plugin list sub-component.
	PluginManagerStorableID = "PluginManager"
)

// Config is a JSON-shaped sub-component configuration document. Values are
// the encoding/json union: map[string]any, []any, string, float64, bool or nil.
type Config map[string]any

// ID returns the identifying key of the configuration.
func (c Config) ID() (string, bool) {
	return c.String("id")
}

// String returns key when it holds a string.
func (c Config) String(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	value, ok := c[key].(string)
	return value, ok
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	return Config(layering.Clone(map[string]any(c)))
}

// Snapshot is the captured identity and sub-component configuration of a
// target. It is immutable; accessors hand out copies.
type Snapshot struct {
	id         string
	typ        string
	storables  map[string]Config
	captureID  string
	capturedAt time.Time
}

// NewSnapshot builds a snapshot from document storable entries. Entries
// without a string id are dropped and the first entry wins for a repeated id.
func NewSnapshot(id, typ string, entries []Config) Snapshot {
	storables := make(map[string]Config, len(entries))
	for _, entry := range entries {
		key, ok := entry.ID()
		if !ok || key == "" {
			continue
		}
		if _, exists := storables[key]; exists {
			continue
		}
		storables[key] = entry.Clone()
	}
	return Snapshot{
		id:         id,
		typ:        typ,
		storables:  storables,
		captureID:  uuid.NewString(),
		capturedAt: time.Now().UTC(),
	}
}

func (s Snapshot) ID() string { return s.id }

// Type is empty when the target could not be resolved at capture time.
func (s Snapshot) Type() string { return s.typ }

func (s Snapshot) CaptureID() string { return s.captureID }

func (s Snapshot) CapturedAt() time.Time { return s.capturedAt }

// Storable returns a copy of the captured configuration for id.
func (s Snapshot) Storable(id string) (Config, bool) {
	cfg, ok := s.storables[id]
	if !ok {
		return nil, false
	}
	return cfg.Clone(), true
}

// HasStorable reports whether id was captured.
func (s Snapshot) HasStorable(id string) bool {
	_, ok := s.storables[id]
	return ok
}

// StorableIDs lists captured sub-component ids in sorted order.
func (s Snapshot) StorableIDs() []string {
	ids := make([]string, 0, len(s.storables))
	for id := range s.storables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Storables returns a copy of every captured configuration keyed by id.
func (s Snapshot) Storables() map[string]Config {
	out := make(map[string]Config, len(s.storables))
	for id, cfg := range s.storables {
		out[id] = cfg.Clone()
	}
	return out
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID         string            `json:"id"`
		Type       string            `json:"type"`
		Storables  map[string]Config `json:"storables"`
		CaptureID  string            `json:"capture_id,omitempty"`
		CapturedAt time.Time         `json:"captured_at"`
	}{
		ID:         s.id,
		Type:       s.typ,
		Storables:  s.storables,
		CaptureID:  s.captureID,
		CapturedAt: s.capturedAt,
	})
}

// ReferenceSelection is the tracked target with its snapshot and offset. It
// is always replaced as a whole.
type ReferenceSelection struct {
	TargetID string         `json:"target_id"`
	Snapshot Snapshot       `json:"snapshot"`
	Offset   spatial.Offset `json:"offset"`
}

// SceneDocument is the loaded scene: a list of top-level entries.
type SceneDocument struct {
	Atoms []DocumentEntry `json:"atoms"`
}

// DocumentEntry is one top-level scene object and its storable blobs.
type DocumentEntry struct {
	ID        string   `json:"id"`
	Type      string   `json:"type,omitempty"`
	Storables []Config `json:"storables,omitempty"`
}

// Find scans the document for the entry whose id matches.
func (d SceneDocument) Find(id string) (DocumentEntry, bool) {
	for _, entry := range d.Atoms {
		if entry.ID == id {
			return entry, true
		}
	}
	return DocumentEntry{}, false
}

// LoadedDocument lets a static document act as a DocumentSource.
func (d SceneDocument) LoadedDocument() (SceneDocument, bool) {
	return d, true
}

// Storable returns the first blob of the entry carrying id.
func (e DocumentEntry) Storable(id string) (Config, bool) {
	for _, cfg := range e.Storables {
		if key, ok := cfg.ID(); ok && key == id {
			return cfg, true
		}
	}
	return nil, false
}

// AssetConfig is the typed view of the asset sub-component.
type AssetConfig struct {
	ID        string         `json:"id"`
	AssetName string         `json:"assetName"`
	AssetURL  string         `json:"assetUrl"`
	Extra     map[string]any `json:"-"`
}

func (a *AssetConfig) SetExtras(extra map[string]any) {
	a.Extra = extra
}

// Config folds the declared fields back over the extras.
func (a AssetConfig) Config() Config {
	out := Config(layering.Clone(a.Extra))
	if out == nil {
		out = Config{}
	}
	out["id"] = a.ID
	out["assetName"] = a.AssetName
	out["assetUrl"] = a.AssetURL
	return out
}

// PluginManagerConfig is the typed view of the plugin list sub-component.
type PluginManagerConfig struct {
	ID      string         `json:"id"`
	Plugins map[string]any `json:"plugins"`
	Extra   map[string]any `json:"-"`
}

func (p *PluginManagerConfig) SetExtras(extra map[string]any) {
	p.Extra = extra
}

func (p PluginManagerConfig) Config() Config {
	out := Config(layering.Clone(p.Extra))
	if out == nil {
		out = Config{}
	}
	out["id"] = p.ID
	plugins := layering.Clone(p.Plugins)
	if plugins == nil {
		plugins = map[string]any{}
	}
	out["plugins"] = plugins
	return out
}

var (
	assetDecoder  = hydrate.NewDecoder(hydrate.WithPreHook[AssetConfig](stringScalars("id", "assetName", "assetUrl")))
	pluginDecoder = hydrate.NewDecoder(hydrate.WithPreHook[PluginManagerConfig](stringScalars("id")))
)

// stringScalars renders number and bool values of the named fields as text,
// the way the host shows them in its string fields.
func stringScalars(fields ...string) hydrate.PreHook {
	return func(_ hydrate.Context, payload map[string]any) (map[string]any, error) {
		for key, value := range payload {
			if !matchesField(key, fields) {
				continue
			}
			switch typed := value.(type) {
			case float64:
				payload[key] = strconv.FormatFloat(typed, 'f', -1, 64)
			case bool:
				payload[key] = strconv.FormatBool(typed)
			}
		}
		return payload, nil
	}
}

func matchesField(key string, fields []string) bool {
	for _, field := range fields {
		if strings.EqualFold(key, field) {
			return true
		}
	}
	return false
}

// DecodeAsset parses cfg into an AssetConfig keeping unknown fields.
func DecodeAsset(entityID string, cfg Config) (AssetConfig, error) {
	return assetDecoder.Decode(hydrate.Context{EntityID: entityID, StorableID: AssetStorableID}, cfg)
}

// DecodePluginManager parses cfg into a PluginManagerConfig keeping unknown
// fields.
func DecodePluginManager(entityID string, cfg Config) (PluginManagerConfig, error) {
	return pluginDecoder.Decode(hydrate.Context{EntityID: entityID, StorableID: PluginManagerStorableID}, cfg)
}
