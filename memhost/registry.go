// Package memhost is an in-memory scene host: a thread-safe entity registry
// with asynchronous creation, rename and removal notifications.
package memhost

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	duplicator "github.com/goliatone/go-duplicator"
	"github.com/goliatone/go-duplicator/spatial"
)

var ErrUnknownType = errors.New("memhost: entity type required")

// StorableFactory returns the default storables of a freshly created entity.
type StorableFactory func(id string) []duplicator.Config

// CreateCall records one CreateAsync request.
type CreateCall struct {
	Type string
	ID   string
}

type handlerEntry[T any] struct {
	id int
	fn T
}

// Registry implements duplicator.Registry.
type Registry struct {
	mu        sync.Mutex
	entities  map[string]*Entity
	factories map[string]StorableFactory
	creates   []CreateCall
	held      bool
	queue     []*pending
	createErr error
	applyErrs map[string]error

	nextHandler int
	renamed     []handlerEntry[duplicator.RenameHandler]
	removed     []handlerEntry[duplicator.RemovedHandler]
}

var _ duplicator.Registry = (*Registry)(nil)

func New() *Registry {
	return &Registry{
		entities:  map[string]*Entity{},
		factories: map[string]StorableFactory{},
	}
}

// RegisterType sets the storables new entities of typ start with.
func (r *Registry) RegisterType(typ string, factory StorableFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = factory
}

// Add places an entity in the scene, suffixing the id when it is taken.
func (r *Registry) Add(id, typ string, pose spatial.Pose, storables ...duplicator.Config) *Entity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(id, typ, pose, storables)
}

func (r *Registry) addLocked(id, typ string, pose spatial.Pose, storables []duplicator.Config) *Entity {
	id = r.uniqueIDLocked(id)
	entity := newEntity(id, typ, pose, storables)
	r.entities[id] = entity
	return entity
}

func (r *Registry) uniqueIDLocked(id string) string {
	if _, taken := r.entities[id]; !taken {
		return id
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s#%d", id, n)
		if _, taken := r.entities[candidate]; !taken {
			return candidate
		}
	}
}

func (r *Registry) Resolve(id string) (duplicator.Entity, error) {
	entity, ok := r.Entity(id)
	if !ok {
		return nil, fmt.Errorf("memhost: %q: %w", id, duplicator.ErrNotFound)
	}
	return entity, nil
}

// Entity returns the concrete entity for id.
func (r *Registry) Entity(id string) (*Entity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entity, ok := r.entities[id]
	return entity, ok
}

// List returns every entity ordered by id.
func (r *Registry) List() []duplicator.Entity {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]duplicator.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.entities[id])
	}
	r.mu.Unlock()
	return out
}

// CreateAsync instantiates typ under id. While the registry is held the
// creation stays pending until Release.
func (r *Registry) CreateAsync(_ context.Context, typ, id string) duplicator.Pending {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates = append(r.creates, CreateCall{Type: typ, ID: id})
	p := &pending{typ: typ, id: id, done: make(chan struct{})}
	if r.held {
		r.queue = append(r.queue, p)
		return p
	}
	r.completeLocked(p)
	return p
}

func (r *Registry) completeLocked(p *pending) {
	if p.isCancelled() {
		return
	}
	if r.createErr != nil {
		p.finish(r.createErr)
		return
	}
	if p.typ == "" {
		p.finish(fmt.Errorf("memhost: create %q: %w", p.id, ErrUnknownType))
		return
	}
	var storables []duplicator.Config
	if factory := r.factories[p.typ]; factory != nil {
		storables = factory(p.id)
	}
	entity := r.addLocked(p.id, p.typ, spatial.Pose{Rotation: spatial.Identity()}, storables)
	for storableID, err := range r.applyErrs {
		if st, ok := entity.StorableByID(storableID); ok {
			st.FailApplies(err)
		}
	}
	p.finish(nil)
}

// Hold queues subsequent creations until Release.
func (r *Registry) Hold() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held = true
}

// Release completes queued creations in request order and stops holding.
func (r *Registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held = false
	queue := r.queue
	r.queue = nil
	for _, p := range queue {
		r.completeLocked(p)
	}
}

// Queued reports how many creations wait for Release.
func (r *Registry) Queued() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// FailCreations makes every later creation complete with err. nil restores
// normal behaviour.
func (r *Registry) FailCreations(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createErr = err
}

// FailApplies makes the storableID sub-component of every later created
// entity reject applies with err.
func (r *Registry) FailApplies(storableID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyErrs == nil {
		r.applyErrs = map[string]error{}
	}
	r.applyErrs[storableID] = err
}

// Creates returns the CreateAsync calls seen so far.
func (r *Registry) Creates() []CreateCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CreateCall(nil), r.creates...)
}

// Rename changes an entity id and notifies rename handlers.
func (r *Registry) Rename(oldID, newID string) error {
	r.mu.Lock()
	entity, ok := r.entities[oldID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("memhost: rename %q: %w", oldID, duplicator.ErrNotFound)
	}
	if _, taken := r.entities[newID]; taken {
		r.mu.Unlock()
		return fmt.Errorf("memhost: rename %q: id %q already in use", oldID, newID)
	}
	delete(r.entities, oldID)
	entity.setID(newID)
	r.entities[newID] = entity
	handlers := make([]duplicator.RenameHandler, 0, len(r.renamed))
	for _, h := range r.renamed {
		handlers = append(handlers, h.fn)
	}
	r.mu.Unlock()

	for _, handler := range handlers {
		handler(oldID, newID)
	}
	return nil
}

// Remove deletes an entity and notifies removal handlers.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	entity, ok := r.entities[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("memhost: remove %q: %w", id, duplicator.ErrNotFound)
	}
	delete(r.entities, id)
	handlers := make([]duplicator.RemovedHandler, 0, len(r.removed))
	for _, h := range r.removed {
		handlers = append(handlers, h.fn)
	}
	r.mu.Unlock()

	for _, handler := range handlers {
		handler(entity)
	}
	return nil
}

func (r *Registry) OnRename(handler duplicator.RenameHandler) duplicator.Unsubscribe {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextHandler++
	id := r.nextHandler
	r.renamed = append(r.renamed, handlerEntry[duplicator.RenameHandler]{id: id, fn: handler})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.renamed = dropHandler(r.renamed, id)
	}
}

func (r *Registry) OnRemoved(handler duplicator.RemovedHandler) duplicator.Unsubscribe {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextHandler++
	id := r.nextHandler
	r.removed = append(r.removed, handlerEntry[duplicator.RemovedHandler]{id: id, fn: handler})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.removed = dropHandler(r.removed, id)
	}
}

// Subscribers reports how many rename and removal handlers are registered.
func (r *Registry) Subscribers() (rename, removed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.renamed), len(r.removed)
}

func dropHandler[T any](entries []handlerEntry[T], id int) []handlerEntry[T] {
	out := entries[:0]
	for _, entry := range entries {
		if entry.id != id {
			out = append(out, entry)
		}
	}
	return out
}

type pending struct {
	typ  string
	id   string
	done chan struct{}

	mu        sync.Mutex
	finished  bool
	cancelled bool
	err       error
}

func (p *pending) Done() <-chan struct{} { return p.done }

func (p *pending) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Cancel abandons a queued creation; the entity is never added.
func (p *pending) Cancel() {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	p.cancelled = true
	p.mu.Unlock()
	p.finish(context.Canceled)
}

func (p *pending) isCancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

func (p *pending) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true
	p.err = err
	close(p.done)
}
