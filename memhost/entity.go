package memhost

import (
	"sync"

	duplicator "github.com/goliatone/go-duplicator"
	"github.com/goliatone/go-duplicator/spatial"
)

// Entity implements duplicator.Entity.
type Entity struct {
	mu         sync.Mutex
	id         string
	typ        string
	pose       spatial.Pose
	poseWrites int
	storables  map[string]*Storable
}

var _ duplicator.Entity = (*Entity)(nil)

func newEntity(id, typ string, pose spatial.Pose, storables []duplicator.Config) *Entity {
	e := &Entity{
		id:        id,
		typ:       typ,
		pose:      pose,
		storables: map[string]*Storable{},
	}
	for _, cfg := range storables {
		e.AddStorable(cfg)
	}
	return e
}

func (e *Entity) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

func (e *Entity) setID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.id = id
}

func (e *Entity) Type() string {
	return e.typ
}

func (e *Entity) Pose() spatial.Pose {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pose
}

func (e *Entity) SetPose(pose spatial.Pose) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pose = pose
	e.poseWrites++
}

// PoseWrites counts SetPose calls.
func (e *Entity) PoseWrites() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.poseWrites
}

func (e *Entity) Storable(id string) (duplicator.Storable, bool) {
	s, ok := e.StorableByID(id)
	if !ok {
		return nil, false
	}
	return s, true
}

// StorableByID returns the concrete storable for id.
func (e *Entity) StorableByID(id string) (*Storable, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.storables[id]
	return s, ok
}

// AddStorable attaches a sub-component. Configurations without an id are
// ignored.
func (e *Entity) AddStorable(cfg duplicator.Config) *Storable {
	id, ok := cfg.ID()
	if !ok || id == "" {
		return nil
	}
	s := &Storable{id: id, config: cfg.Clone()}
	e.mu.Lock()
	e.storables[id] = s
	e.mu.Unlock()
	return s
}

// Storable implements duplicator.Storable and records every apply.
type Storable struct {
	mu       sync.Mutex
	id       string
	config   duplicator.Config
	applied  []duplicator.Config
	deferred []duplicator.Config
	applyErr error
}

var _ duplicator.Storable = (*Storable)(nil)

func (s *Storable) ID() string { return s.id }

func (s *Storable) Config() duplicator.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Clone()
}

func (s *Storable) ApplyConfig(cfg duplicator.Config) error {
	return s.apply(cfg, false)
}

// ApplyConfigDeferred applies cfg like ApplyConfig; entities here have no
// initialisation phase to wait for. The call is recorded separately.
func (s *Storable) ApplyConfigDeferred(cfg duplicator.Config) error {
	return s.apply(cfg, true)
}

func (s *Storable) apply(cfg duplicator.Config, deferred bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	s.config = cfg.Clone()
	if deferred {
		s.deferred = append(s.deferred, cfg.Clone())
	} else {
		s.applied = append(s.applied, cfg.Clone())
	}
	return nil
}

// Applied returns configurations passed to ApplyConfig.
func (s *Storable) Applied() []duplicator.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]duplicator.Config(nil), s.applied...)
}

// Deferred returns configurations passed to ApplyConfigDeferred.
func (s *Storable) Deferred() []duplicator.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]duplicator.Config(nil), s.deferred...)
}

// FailApplies makes later applies return err.
func (s *Storable) FailApplies(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyErr = err
}
