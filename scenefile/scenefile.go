// Package scenefile loads scene documents from JSON files and keeps them
// current while the file changes on disk.
package scenefile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	duplicator "github.com/goliatone/go-duplicator"
)

// Load reads a scene document from path.
func Load(path string) (duplicator.SceneDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return duplicator.SceneDocument{}, fmt.Errorf("scenefile: read %q: %w", path, err)
	}
	doc, err := Decode(bytes.NewReader(data))
	if err != nil {
		return duplicator.SceneDocument{}, fmt.Errorf("scenefile: %q: %w", path, err)
	}
	return doc, nil
}

// Decode parses a scene document. Unknown keys are ignored.
func Decode(r io.Reader) (duplicator.SceneDocument, error) {
	var doc duplicator.SceneDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return duplicator.SceneDocument{}, fmt.Errorf("scenefile: decode: %w", err)
	}
	return doc, nil
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger used while watching.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Source is a duplicator.DocumentSource backed by a file.
type Source struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	doc    duplicator.SceneDocument
	loaded bool
}

var _ duplicator.DocumentSource = (*Source)(nil)

// Open loads path and returns a Source serving it.
func Open(path string, opts ...Option) (*Source, error) {
	s := &Source{path: filepath.Clean(path), logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) Path() string { return s.path }

func (s *Source) LoadedDocument() (duplicator.SceneDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc, s.loaded
}

// Reload re-reads the file. The previous document stays in place on error.
func (s *Source) Reload() error {
	doc, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.doc = doc
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Watch reloads the document whenever the file is written, created or
// renamed into place, calling onChange after each successful reload. The
// parent directory is watched so editors that replace the file are seen. It
// blocks until ctx is done.
func (s *Source) Watch(ctx context.Context, onChange func(duplicator.SceneDocument)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("scenefile: watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("scenefile: watch %q: %w", s.path, err)
	}
	s.logger.Debug("watching scene file", zap.String("path", s.path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("scene reload failed", zap.String("path", s.path), zap.Error(err))
				continue
			}
			s.logger.Info("scene reloaded", zap.String("path", s.path), zap.String("op", event.Op.String()))
			if onChange != nil {
				doc, _ := s.LoadedDocument()
				onChange(doc)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("scene watcher error", zap.String("path", s.path), zap.Error(err))
		}
	}
}
