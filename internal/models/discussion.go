package models

import (
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who produced a transcript message. The moderator and the
// human user have fixed tags; AI participants use their persona name.
type Speaker string

const (
	SpeakerModerator Speaker = "moderator"
	SpeakerUser      Speaker = "user"
	SpeakerAI        Speaker = "ai"
)

// Message is a single transcript entry. Entries are append-only and never
// edited in place.
type Message struct {
	Speaker     Speaker
	Text        string
	Interrupted bool // stream failed or was cancelled before the terminal marker
	CreatedAt   time.Time
}

// Discussion is the mutable turn state of one group discussion session.
// All session data lives server-side; the session ID is the only value the
// client holds.
//
// A Discussion is never mutated directly by callers - the discussion service
// acquires the canonical instance through the registry and mutates it under
// the per-session lock.
type Discussion struct {
	ID            uuid.UUID
	Topic         string
	DurationLimit time.Duration
	StartTime     time.Time

	Transcript []Message

	CurrentSpeaker  Speaker
	HandRaised      bool // user asked for the floor, not yet granted or denied
	HandQueued      bool // hand raised while the AI held the floor
	UserTurnGranted bool // user may submit exactly one message
	AISpeaking      bool // an AI stream is in flight
	Ended           bool // monotonic, never reverts

	LastActivity time.Time

	// LastPersona is the round-robin cursor for persona selection, -1 before
	// the first AI turn. Owned per session so sequencing is deterministic.
	LastPersona int
}

// NewDiscussion creates a discussion for the given topic and duration limit.
func NewDiscussion(topic string, duration time.Duration) *Discussion {
	now := time.Now()
	return &Discussion{
		ID:             uuid.New(),
		Topic:          topic,
		DurationLimit:  duration,
		StartTime:      now,
		CurrentSpeaker: SpeakerModerator,
		LastActivity:   now,
		LastPersona:    -1,
	}
}

// Append adds a message to the transcript and touches the activity clock.
func (d *Discussion) Append(speaker Speaker, text string) {
	d.appendMessage(Message{Speaker: speaker, Text: text, CreatedAt: time.Now()})
}

// AppendInterrupted adds a message whose stream did not reach its terminal
// marker. The partial text is preserved, annotated rather than discarded.
func (d *Discussion) AppendInterrupted(speaker Speaker, text string) {
	d.appendMessage(Message{Speaker: speaker, Text: text, Interrupted: true, CreatedAt: time.Now()})
}

func (d *Discussion) appendMessage(msg Message) {
	d.Transcript = append(d.Transcript, msg)
	d.LastActivity = msg.CreatedAt
}

// TouchActivity resets the silence clock without appending a message.
func (d *Discussion) TouchActivity() {
	d.LastActivity = time.Now()
}

// TimeOver reports whether the discussion has exceeded its duration limit.
func (d *Discussion) TimeOver(now time.Time) bool {
	return now.Sub(d.StartTime) > d.DurationLimit
}

// SilentFor reports whether no activity has been recorded for at least the
// given threshold.
func (d *Discussion) SilentFor(threshold time.Duration, now time.Time) bool {
	return now.Sub(d.LastActivity) > threshold
}

// Snapshot returns a deep copy safe to hand to a store or another goroutine.
func (d *Discussion) Snapshot() *Discussion {
	clone := *d
	clone.Transcript = make([]Message, len(d.Transcript))
	copy(clone.Transcript, d.Transcript)
	return &clone
}
