package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

var ErrRefRequired = errors.New("state: owner and domain are required")

// Ref identifies one record: the owning component and what it records.
type Ref struct {
	Owner  string
	Domain string
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads/saves one value for a single reference.
type Store[T any] interface {
	Load(ctx context.Context, ref Ref) (value T, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, value T, meta Meta) (Meta, error)
}

// Mutator edits a loaded value in place before it is saved back.
type Mutator[T any] func(*T) error

// Identifier returns the deterministic storage key for r.
func (r Ref) Identifier() (string, error) {
	owner := strings.TrimSpace(r.Owner)
	domain := strings.TrimSpace(r.Domain)
	if owner == "" || domain == "" {
		return "", fmt.Errorf("%w: %+v", ErrRefRequired, r)
	}
	return owner + "/" + domain, nil
}

// Mutate loads the value for ref, applies fn and saves it back guarded by the
// ETag observed on load. A missing record starts from the zero value. When
// meta.ETag is set it must match the loaded record; meta.SnapshotID and
// meta.Extra are stamped on the saved record.
func Mutate[T any](ctx context.Context, store Store[T], ref Ref, meta Meta, fn Mutator[T]) (T, Meta, error) {
	var zero T
	if store == nil {
		return zero, Meta{}, fmt.Errorf("state: store is required")
	}
	if fn == nil {
		return zero, Meta{}, fmt.Errorf("state: mutator is required")
	}

	value, loaded, ok, err := store.Load(ctx, ref)
	if err != nil {
		return zero, Meta{}, fmt.Errorf("state: load %+v: %w", ref, err)
	}
	if !ok {
		value = zero
		loaded = Meta{}
	}
	if meta.ETag != "" && meta.ETag != loaded.ETag {
		return zero, loaded, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loaded.ETag)
	}

	if err := fn(&value); err != nil {
		return zero, loaded, err
	}

	next := mergeMeta(loaded, meta)
	next.ETag = loaded.ETag
	saved, err := store.Save(ctx, ref, value, next)
	if err != nil {
		return zero, loaded, fmt.Errorf("state: save %+v: %w", ref, err)
	}
	return value, saved, nil
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}
