//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/roundtable/internal/models"
	"github.com/wolfeidau/roundtable/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*SessionStore, func()) {
	// Start postgres container
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)

	require.NoError(t, RunMigrations(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return NewSessionStore(pool), cleanup
}

func TestIntegration_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	d := models.NewDiscussion("renewable energy", 10*time.Minute)
	d.Append(models.SpeakerModerator, "welcome")

	t.Run("create session", func(t *testing.T) {
		require.NoError(t, st.Create(ctx, d))
	})

	t.Run("get session with transcript replay", func(t *testing.T) {
		got, err := st.Get(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, d.ID, got.ID)
		require.Equal(t, "renewable energy", got.Topic)
		require.Equal(t, 10*time.Minute, got.DurationLimit)
		require.Equal(t, models.SpeakerModerator, got.CurrentSpeaker)
		require.Equal(t, -1, got.LastPersona)
		require.Len(t, got.Transcript, 1)
		require.Equal(t, "welcome", got.Transcript[0].Text)
	})

	t.Run("append messages preserves order", func(t *testing.T) {
		require.NoError(t, st.AppendMessage(ctx, d.ID, models.Message{Speaker: models.SpeakerUser, Text: "first", CreatedAt: time.Now()}))
		require.NoError(t, st.AppendMessage(ctx, d.ID, models.Message{Speaker: "Alex", Text: "second", Interrupted: true, CreatedAt: time.Now()}))

		got, err := st.Get(ctx, d.ID)
		require.NoError(t, err)
		require.Len(t, got.Transcript, 3)
		require.Equal(t, "first", got.Transcript[1].Text)
		require.Equal(t, models.Speaker("Alex"), got.Transcript[2].Speaker)
		require.True(t, got.Transcript[2].Interrupted)
	})

	t.Run("update scalar state", func(t *testing.T) {
		d.AISpeaking = true
		d.CurrentSpeaker = models.SpeakerAI
		d.LastPersona = 1
		require.NoError(t, st.UpdateState(ctx, d))

		got, err := st.Get(ctx, d.ID)
		require.NoError(t, err)
		require.True(t, got.AISpeaking)
		require.Equal(t, models.SpeakerAI, got.CurrentSpeaker)
		require.Equal(t, 1, got.LastPersona)
		require.Len(t, got.Transcript, 3)
	})

	t.Run("delete cascades to messages", func(t *testing.T) {
		require.NoError(t, st.Delete(ctx, d.ID))

		_, err := st.Get(ctx, d.ID)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})
}

func TestIntegration_UnknownSession(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	id := uuid.New()

	_, err := st.Get(ctx, id)
	require.ErrorIs(t, err, store.ErrSessionNotFound)

	require.ErrorIs(t, st.UpdateState(ctx, models.NewDiscussion("x", time.Minute)), store.ErrSessionNotFound)
	require.ErrorIs(t, st.Delete(ctx, id), store.ErrSessionNotFound)

	err = st.AppendMessage(ctx, id, models.Message{Speaker: models.SpeakerUser, Text: "orphan", CreatedAt: time.Now()})
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestIntegration_MigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	// Running migrations a second time must be a no-op.
	require.NoError(t, RunMigrations(ctx, st.pool))
}
