package activity

import (
	"strings"
	"time"
)

const (
	VerbSelectionCaptured  = "duplicator.selection.captured"
	VerbSelectionRenamed   = "duplicator.selection.renamed"
	VerbTargetCreated      = "duplicator.target.created"
	VerbTargetRepositioned = "duplicator.target.repositioned"
	VerbReconcileFailed    = "duplicator.reconcile.failed"

	ObjectTypeSelection = "duplicator.selection"
	ObjectTypeTarget    = "duplicator.target"
)

// EventInput carries the fields shared by duplicator lifecycle events.
type EventInput struct {
	ActorID    string
	TenantID   string
	AnchorID   string
	TargetID   string
	PreviousID string
	TargetType string
	SnapshotID string
	Replayed   []string
	Err        error
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildSelectionCapturedEvent describes a new capture of the tracked target.
func BuildSelectionCapturedEvent(input EventInput) Event {
	return buildEvent(VerbSelectionCaptured, ObjectTypeSelection, input)
}

// BuildSelectionRenamedEvent describes tracking following a rename.
func BuildSelectionRenamedEvent(input EventInput) Event {
	return buildEvent(VerbSelectionRenamed, ObjectTypeSelection, input)
}

// BuildTargetCreatedEvent describes the target being recreated from a snapshot.
func BuildTargetCreatedEvent(input EventInput) Event {
	return buildEvent(VerbTargetCreated, ObjectTypeTarget, input)
}

// BuildTargetRepositionedEvent describes the target being moved next to the anchor.
func BuildTargetRepositionedEvent(input EventInput) Event {
	return buildEvent(VerbTargetRepositioned, ObjectTypeTarget, input)
}

// BuildReconcileFailedEvent describes a reconcile aborted before positioning.
func BuildReconcileFailedEvent(input EventInput) Event {
	return buildEvent(VerbReconcileFailed, ObjectTypeTarget, input)
}

func buildEvent(verb, objectType string, input EventInput) Event {
	metadata := cloneMap(input.Metadata)
	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}
	if v := strings.TrimSpace(input.AnchorID); v != "" {
		set("anchor_id", v)
	}
	if v := strings.TrimSpace(input.PreviousID); v != "" {
		set("previous_id", v)
	}
	if v := strings.TrimSpace(input.TargetType); v != "" {
		set("target_type", v)
	}
	if v := strings.TrimSpace(input.SnapshotID); v != "" {
		set("snapshot_id", v)
	}
	if len(input.Replayed) > 0 {
		set("replayed", append([]string{}, input.Replayed...))
	}
	if input.Err != nil {
		set("error", input.Err.Error())
	}

	objectID := strings.TrimSpace(input.TargetID)
	if objectID == "" {
		objectID = strings.TrimSpace(input.SnapshotID)
	}
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: objectType,
		ObjectID:   objectID,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}
