package activitymap_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	auth "github.com/goliatone/go-portal-auth"
	"github.com/goliatone/go-portal-auth/activitymap"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType:  auth.ActivityEventPasswordChanged,
		Actor:      auth.ActorRef{ID: "acc-1", Type: "account"},
		AccountID:  "acc-1",
		Metadata:   map[string]any{"source": "self"},
		OccurredAt: at,
	}

	n := activitymap.Normalize(event)

	assert.Equal(t, "acc-1", n.ActorID)
	assert.Equal(t, string(auth.ActivityEventPasswordChanged), n.Verb)
	assert.Equal(t, "account", n.ObjectType)
	assert.Equal(t, "acc-1", n.ObjectID)
	assert.Equal(t, "auth", n.Channel)
	assert.Equal(t, at, n.OccurredAt)
	assert.Equal(t, "account", n.ActorType)
	assert.Equal(t, "self", n.Metadata["source"])

	n.Metadata["source"] = "changed"
	assert.Equal(t, "self", event.Metadata["source"])
}

func TestNormalizeFallbacks(t *testing.T) {
	n := activitymap.Normalize(auth.ActivityEvent{EventType: auth.ActivityEventLoginFailure})
	assert.Equal(t, "anonymous", n.ActorID)
	assert.Empty(t, n.ObjectID)
	assert.Nil(t, n.Metadata)
	assert.False(t, n.OccurredAt.IsZero())

	n = activitymap.Normalize(
		auth.ActivityEvent{EventType: auth.ActivityEventLoginFailure},
		activitymap.WithActorFallback("system"),
		activitymap.WithDefaultChannel("portal"),
		activitymap.WithDefaultObjectType("user"),
	)
	assert.Equal(t, "system", n.ActorID)
	assert.Equal(t, "portal", n.Channel)
	assert.Equal(t, "user", n.ObjectType)
}

func TestLogSinkWritesEvent(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := activitymap.NewLogSink(zerolog.New(buf))

	err := sink.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventAccountRegistered,
		Actor:     auth.ActorRef{ID: "acc-9", Type: "account"},
		AccountID: "acc-9",
		Metadata:  map[string]any{"email": "a@x.com"},
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "activity", line["message"])
	assert.Equal(t, string(auth.ActivityEventAccountRegistered), line["verb"])
	assert.Equal(t, "acc-9", line["object_id"])
	assert.Equal(t, "a@x.com", line["email"])
	assert.Equal(t, "account", line["actor_type"])
}
