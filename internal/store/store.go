package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/roundtable/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrSessionNotFound = errors.New("session not found")
)

// SessionStore is the durable backing for discussion sessions. It persists the
// scalar turn-state fields of each session plus an ordered, append-only message
// log; Get replays the log so a reload reproduces the full transcript in
// insertion order.
//
// Implementations are passive - turn arbitration and per-session locking live
// above this layer, in the discussion registry.
type SessionStore interface {
	// Create persists a new session and its initial transcript (if any).
	Create(ctx context.Context, d *models.Discussion) error

	// Get reconstructs a session from durable state: scalar fields plus a
	// full transcript replay, ordered. Returns ErrSessionNotFound for an
	// unknown id.
	Get(ctx context.Context, id uuid.UUID) (*models.Discussion, error)

	// UpdateState persists the scalar turn-state fields. The message log is
	// untouched; use AppendMessage for transcript growth.
	UpdateState(ctx context.Context, d *models.Discussion) error

	// AppendMessage appends one transcript entry to the session's log.
	AppendMessage(ctx context.Context, id uuid.UUID, msg models.Message) error

	// Delete removes the session record and all associated messages.
	Delete(ctx context.Context, id uuid.UUID) error
}
