package duplicator

import (
	"context"

	"github.com/goliatone/go-duplicator/spatial"
)

// Entity is a live object in the host scene.
type Entity interface {
	ID() string
	Type() string
	Pose() spatial.Pose
	SetPose(spatial.Pose)
	Storable(id string) (Storable, bool)
}

// Storable is a named sub-component exposing its configuration.
type Storable interface {
	ID() string
	Config() Config
	ApplyConfig(Config) error
	// ApplyConfigDeferred applies cfg after the owning entity finished its
	// own initialisation.
	ApplyConfigDeferred(Config) error
}

// Pending represents an entity creation in progress.
type Pending interface {
	Done() <-chan struct{}
	// Err is valid once Done is closed.
	Err() error
	Cancel()
}

// RenameHandler observes entity id changes.
type RenameHandler func(oldID, newID string)

// RemovedHandler observes entity removal. The entity no longer resolves when
// the handler runs.
type RemovedHandler func(entity Entity)

// Unsubscribe releases a handler registration.
type Unsubscribe func()

// Registry is the host's live object registry.
type Registry interface {
	// Resolve returns an error wrapping ErrNotFound for unknown ids.
	Resolve(id string) (Entity, error)
	List() []Entity
	CreateAsync(ctx context.Context, typ, id string) Pending
	OnRename(RenameHandler) Unsubscribe
	OnRemoved(RemovedHandler) Unsubscribe
}

// DocumentSource exposes the scene document the host loaded, if any.
type DocumentSource interface {
	LoadedDocument() (SceneDocument, bool)
}

// Await blocks until p completes. When ctx ends first the creation is
// cancelled and the context error returned.
func Await(ctx context.Context, p Pending) error {
	if p == nil {
		return ErrNoPending
	}
	select {
	case <-p.Done():
		return p.Err()
	case <-ctx.Done():
		p.Cancel()
		return ctx.Err()
	}
}
