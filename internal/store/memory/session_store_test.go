package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/roundtable/internal/models"
	"github.com/wolfeidau/roundtable/internal/store"
)

func TestSessionLifecycle(t *testing.T) {
	st := NewSessionStore()
	ctx := context.Background()

	// 1. Create a session with an initial moderator message
	d := models.NewDiscussion("renewable energy", 10*time.Minute)
	d.Append(models.SpeakerModerator, "welcome")
	require.NoError(t, st.Create(ctx, d))

	// 2. Read it back
	got, err := st.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, d.ID, got.ID)
	require.Equal(t, "renewable energy", got.Topic)
	require.Equal(t, 10*time.Minute, got.DurationLimit)
	require.Len(t, got.Transcript, 1)
	require.Equal(t, "welcome", got.Transcript[0].Text)

	// 3. Append messages and verify ordering survives the round trip
	require.NoError(t, st.AppendMessage(ctx, d.ID, models.Message{Speaker: models.SpeakerUser, Text: "first", CreatedAt: time.Now()}))
	require.NoError(t, st.AppendMessage(ctx, d.ID, models.Message{Speaker: "Alex", Text: "second", Interrupted: true, CreatedAt: time.Now()}))

	got, err = st.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, got.Transcript, 3)
	require.Equal(t, "first", got.Transcript[1].Text)
	require.Equal(t, "second", got.Transcript[2].Text)
	require.True(t, got.Transcript[2].Interrupted)

	// 4. Delete removes the session and its messages
	require.NoError(t, st.Delete(ctx, d.ID))
	_, err = st.Get(ctx, d.ID)
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestGetUnknownSession(t *testing.T) {
	st := NewSessionStore()

	_, err := st.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestUpdateStatePreservesTranscript(t *testing.T) {
	st := NewSessionStore()
	ctx := context.Background()

	d := models.NewDiscussion("test", time.Minute)
	d.Append(models.SpeakerModerator, "welcome")
	require.NoError(t, st.Create(ctx, d))

	// Update scalar state from an entity with a diverged transcript; the
	// stored message log must win.
	updated := d.Snapshot()
	updated.Transcript = nil
	updated.AISpeaking = true
	updated.CurrentSpeaker = models.SpeakerAI
	updated.LastPersona = 1
	require.NoError(t, st.UpdateState(ctx, updated))

	got, err := st.Get(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, got.AISpeaking)
	require.Equal(t, models.SpeakerAI, got.CurrentSpeaker)
	require.Equal(t, 1, got.LastPersona)
	require.Len(t, got.Transcript, 1)
	require.Equal(t, "welcome", got.Transcript[0].Text)
}

func TestUpdateStateUnknownSession(t *testing.T) {
	st := NewSessionStore()

	d := models.NewDiscussion("test", time.Minute)
	require.ErrorIs(t, st.UpdateState(context.Background(), d), store.ErrSessionNotFound)
}

func TestAppendMessageUnknownSession(t *testing.T) {
	st := NewSessionStore()

	err := st.AppendMessage(context.Background(), uuid.New(), models.Message{Speaker: models.SpeakerUser, Text: "hi"})
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestDeleteUnknownSession(t *testing.T) {
	st := NewSessionStore()

	require.ErrorIs(t, st.Delete(context.Background(), uuid.New()), store.ErrSessionNotFound)
}

func TestGetReturnsSnapshot(t *testing.T) {
	st := NewSessionStore()
	ctx := context.Background()

	d := models.NewDiscussion("test", time.Minute)
	d.Append(models.SpeakerModerator, "welcome")
	require.NoError(t, st.Create(ctx, d))

	got, err := st.Get(ctx, d.ID)
	require.NoError(t, err)

	// Mutating the returned entity must not leak into the store.
	got.Transcript[0].Text = "changed"
	got.Ended = true

	again, err := st.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "welcome", again.Transcript[0].Text)
	require.False(t, again.Ended)
}
