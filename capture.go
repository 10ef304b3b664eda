package duplicator

import (
	"fmt"
)

// Capture snapshots targetID from the registry and the loaded document.
//
// When targetID does not resolve the returned snapshot has an empty type and
// the error wraps ErrNotFound; storables are still read from the document. A
// target without a document entry gets no storables and no error.
func Capture(registry Registry, documents DocumentSource, targetID string) (Snapshot, error) {
	var (
		typ        string
		resolveErr error
	)
	if registry == nil {
		resolveErr = fmt.Errorf("duplicator: capture %q: registry is nil: %w", targetID, ErrNotFound)
	} else if entity, err := registry.Resolve(targetID); err != nil {
		resolveErr = fmt.Errorf("duplicator: capture %q: %w", targetID, err)
	} else {
		typ = entity.Type()
	}
	return NewSnapshot(targetID, typ, documentStorables(documents, targetID)), resolveErr
}

// SelfConfig returns the blob stored under storeID on the anchorID entry of
// the loaded document.
func SelfConfig(documents DocumentSource, anchorID, storeID string) (Config, bool) {
	if documents == nil {
		return nil, false
	}
	doc, ok := documents.LoadedDocument()
	if !ok {
		return nil, false
	}
	entry, ok := doc.Find(anchorID)
	if !ok {
		return nil, false
	}
	cfg, ok := entry.Storable(storeID)
	if !ok {
		return nil, false
	}
	return cfg.Clone(), true
}

func documentStorables(documents DocumentSource, targetID string) []Config {
	if documents == nil {
		return nil
	}
	doc, ok := documents.LoadedDocument()
	if !ok {
		return nil
	}
	entry, ok := doc.Find(targetID)
	if !ok {
		return nil
	}
	return entry.Storables
}
