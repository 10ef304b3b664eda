// Package usersink forwards duplicator activity to a go-users ActivitySink.
package usersink

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-duplicator/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Namespace seeds the name-based UUIDs derived for scene object names.
var Namespace = uuid.MustParse("6f1c7d1e-2a7b-5b5e-9d0e-3c2f8a9b4e71")

// Hook adapts activity events to a go-users ActivitySink.
//
// Scene objects are identified by name rather than UUID, so actor ids that do
// not parse as a UUID are mapped to a stable name-based UUID and the original
// name is kept in the record data.
type Hook struct {
	Sink     usertypes.ActivitySink
	UserID   uuid.UUID
	TenantID uuid.UUID
}

// Notify maps the event into an ActivityRecord and forwards it to the sink.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}

	normalized := activity.NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectType == "" || normalized.ObjectID == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	record := usertypes.ActivityRecord{
		ActorID:    nameUUID(normalized.ActorID),
		UserID:     h.UserID,
		TenantID:   h.TenantID,
		Verb:       normalized.Verb,
		ObjectType: normalized.ObjectType,
		ObjectID:   normalized.ObjectID,
		Channel:    normalized.Channel,
		Data:       cloneMap(normalized.Metadata),
		OccurredAt: normalized.OccurredAt,
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now()
	}
	if tenant := parseUUID(normalized.TenantID); tenant != uuid.Nil {
		record.TenantID = tenant
	}
	if normalized.ActorID != "" {
		if record.Data == nil {
			record.Data = map[string]any{}
		}
		record.Data["actor_name"] = normalized.ActorID
	}

	return h.Sink.Log(ctx, record)
}

func nameUUID(input string) uuid.UUID {
	value := strings.TrimSpace(input)
	if value == "" {
		return uuid.Nil
	}
	if id := parseUUID(value); id != uuid.Nil {
		return id
	}
	return uuid.NewSHA1(Namespace, []byte(value))
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
