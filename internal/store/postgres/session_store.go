package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/roundtable/internal/models"
	"github.com/wolfeidau/roundtable/internal/store"
)

// SessionStore implements store.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{
		pool: pool,
	}
}

// Create persists a new session and any initial transcript entries in one
// transaction.
func (s *SessionStore) Create(ctx context.Context, d *models.Discussion) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	query := `
		INSERT INTO discussions (
			discussion_id, topic, duration_seconds, start_time,
			current_speaker, hand_raised, hand_queued, user_turn_granted,
			ai_speaking, ended, last_activity, last_persona
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err = tx.Exec(ctx, query,
		d.ID,
		d.Topic,
		int64(d.DurationLimit/time.Second),
		d.StartTime,
		string(d.CurrentSpeaker),
		d.HandRaised,
		d.HandQueued,
		d.UserTurnGranted,
		d.AISpeaking,
		d.Ended,
		d.LastActivity,
		d.LastPersona,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", mapPostgresError(err))
	}

	for _, msg := range d.Transcript {
		if err := appendMessageTx(ctx, tx, d.ID, msg); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session create: %w", err)
	}

	log.Debug().
		Str("discussion_id", d.ID.String()).
		Str("topic", d.Topic).
		Msg("Created session")

	return nil
}

// Get retrieves a session by ID, replaying the message log to rebuild the
// transcript in insertion order.
func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (*models.Discussion, error) {
	query := `
		SELECT
			discussion_id, topic, duration_seconds, start_time,
			current_speaker, hand_raised, hand_queued, user_turn_granted,
			ai_speaking, ended, last_activity, last_persona
		FROM discussions
		WHERE discussion_id = $1
	`

	var d models.Discussion
	var durationSeconds int64
	var currentSpeaker string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.Topic,
		&durationSeconds,
		&d.StartTime,
		&currentSpeaker,
		&d.HandRaised,
		&d.HandQueued,
		&d.UserTurnGranted,
		&d.AISpeaking,
		&d.Ended,
		&d.LastActivity,
		&d.LastPersona,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", mapPostgresError(err))
	}

	d.DurationLimit = time.Duration(durationSeconds) * time.Second
	d.CurrentSpeaker = models.Speaker(currentSpeaker)

	rows, err := s.pool.Query(ctx, `
		SELECT speaker, content, interrupted, created_at
		FROM discussion_messages
		WHERE discussion_id = $1
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", mapPostgresError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var msg models.Message
		var speaker string
		if err := rows.Scan(&speaker, &msg.Text, &msg.Interrupted, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Speaker = models.Speaker(speaker)
		d.Transcript = append(d.Transcript, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return &d, nil
}

// UpdateState write-through persists the scalar turn-state fields.
func (s *SessionStore) UpdateState(ctx context.Context, d *models.Discussion) error {
	query := `
		UPDATE discussions
		SET current_speaker = $2,
		    hand_raised = $3,
		    hand_queued = $4,
		    user_turn_granted = $5,
		    ai_speaking = $6,
		    ended = $7,
		    last_activity = $8,
		    last_persona = $9
		WHERE discussion_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		d.ID,
		string(d.CurrentSpeaker),
		d.HandRaised,
		d.HandQueued,
		d.UserTurnGranted,
		d.AISpeaking,
		d.Ended,
		d.LastActivity,
		d.LastPersona,
	)
	if err != nil {
		return fmt.Errorf("failed to update session state: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	return nil
}

// AppendMessage appends one transcript entry to the session's log.
func (s *SessionStore) AppendMessage(ctx context.Context, id uuid.UUID, msg models.Message) error {
	return appendMessageTx(ctx, s.pool, id, msg)
}

// Delete deletes a session and all its messages (cascade).
func (s *SessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM discussions WHERE discussion_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	log.Debug().
		Str("discussion_id", id.String()).
		Msg("Deleted session")

	return nil
}

// execer covers both pgxpool.Pool and pgx.Tx for message inserts.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func appendMessageTx(ctx context.Context, db execer, id uuid.UUID, msg models.Message) error {
	query := `
		INSERT INTO discussion_messages (discussion_id, speaker, content, interrupted, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := db.Exec(ctx, query, id, string(msg.Speaker), msg.Text, msg.Interrupted, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", mapPostgresError(err))
	}

	return nil
}
