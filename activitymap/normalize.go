// Package activitymap turns auth activity events into flat audit records
// and writes them to a structured log.
package activitymap

import (
	"cmp"
	"context"
	"maps"
	"strings"
	"time"

	auth "github.com/goliatone/go-portal-auth"
	"github.com/rs/zerolog"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "account"
	defaultActorID    = "anonymous"
)

// Record is the flattened form of an auth.ActivityEvent.
type Record struct {
	ActorID    string         `json:"actor_id"`
	ActorType  string         `json:"actor_type,omitempty"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*options)

type options struct {
	channel       string
	objectType    string
	actorFallback string
	now           func() time.Time
}

func WithDefaultChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

func WithDefaultObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when neither actor nor account is known.
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

func buildOptions(opts []Option) options {
	o := options{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Normalize flattens event. The event metadata is copied, never shared.
func Normalize(event auth.ActivityEvent, opts ...Option) Record {
	o := buildOptions(opts)

	accountID := strings.TrimSpace(event.AccountID)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = o.now().UTC()
	}

	var metadata map[string]any
	if len(event.Metadata) > 0 {
		metadata = maps.Clone(event.Metadata)
	}

	return Record{
		ActorID:    cmp.Or(strings.TrimSpace(event.Actor.ID), accountID, o.actorFallback),
		ActorType:  strings.TrimSpace(event.Actor.Type),
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   accountID,
		Channel:    o.channel,
		Metadata:   metadata,
		OccurredAt: occurredAt,
	}
}

// NewLogSink writes every event as one "activity" line on log.
func NewLogSink(log zerolog.Logger, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		r := Normalize(event, opts...)

		entry := log.Info().
			Str("channel", r.Channel).
			Str("verb", r.Verb).
			Str("actor_id", r.ActorID).
			Str("object_type", r.ObjectType).
			Time("occurred_at", r.OccurredAt)
		if r.ActorType != "" {
			entry = entry.Str("actor_type", r.ActorType)
		}
		if r.ObjectID != "" {
			entry = entry.Str("object_id", r.ObjectID)
		}
		if len(r.Metadata) > 0 {
			entry = entry.Fields(r.Metadata)
		}
		entry.Msg("activity")
		return nil
	})
}
