package discussion

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/roundtable/internal/genai"
	"github.com/wolfeidau/roundtable/internal/models"
	"github.com/wolfeidau/roundtable/internal/personas"
)

// UnitKind tags one element of a streamed AI turn.
type UnitKind string

const (
	// UnitToken carries one incremental token of the AI response.
	UnitToken UnitKind = "token"

	// UnitDone is the terminal element of a successful turn.
	UnitDone UnitKind = "done"

	// UnitError is the terminal element of a failed turn. Failures surface as
	// a tagged value in the sequence, not as an unwind, so consumers on any
	// transport can react.
	UnitError UnitKind = "error"
)

// Unit is one element of the incremental sequence produced by an AI turn.
type Unit struct {
	Kind UnitKind

	// Token text, set when Kind is UnitToken.
	Text string

	// Terminal fields, set when Kind is UnitDone.
	Speaker          string
	ModeratorMessage string
	HandQueueGranted bool

	// Set when Kind is UnitError.
	Err error
}

// Stream is the lazy sequence of units for one AI turn. The channel is closed
// after the terminal unit; consumers must drain it to completion or the
// producing goroutine leaks.
type Stream struct {
	units chan Unit
}

// Units returns the unit sequence. Exactly one terminal unit (done or error)
// is delivered, always last.
func (s *Stream) Units() <-chan Unit {
	return s.units
}

func (s *Stream) send(u Unit) {
	s.units <- u
}

// beginAITurnLocked starts the streaming pipeline for one AI turn. The
// session lock must be held; the flag flip, persona selection and prompt
// construction happen atomically with the precondition checks in the caller.
func (s *Service) beginAITurnLocked(ctx context.Context, sess *Session) (*Stream, error) {
	d := sess.Discussion

	idx, persona := s.personas.Next(d.LastPersona)
	d.LastPersona = idx
	d.AISpeaking = true
	d.CurrentSpeaker = models.SpeakerAI

	if err := s.store.UpdateState(ctx, d); err != nil {
		d.AISpeaking = false
		return nil, err
	}

	s.metrics.AITurnsTotal.Add(ctx, 1)
	s.metrics.ActiveStreams.Add(ctx, 1)

	prompt := participantPrompt(persona, d.Topic, d.Transcript)

	st := &Stream{units: make(chan Unit, 16)}
	go s.runAITurn(ctx, sess, persona, prompt, st)

	return st, nil
}

// runAITurn pulls tokens from the generation backend and finalizes the turn.
// Whatever the exit path - terminal marker, cooperative stop on session end,
// or a mid-stream failure - the finalize step runs exactly once: partial text
// is flushed to the transcript, AISpeaking is cleared and persisted, and one
// terminal unit is emitted before the channel closes.
func (s *Service) runAITurn(ctx context.Context, sess *Session, persona personas.Persona, prompt string, st *Stream) {
	log := zerolog.Ctx(ctx)
	d := sess.Discussion

	var buf strings.Builder
	var streamErr error

	ts, err := s.gen.Stream(ctx, prompt, s.cfg.genOptions())
	if err != nil {
		streamErr = err
	} else {
		streamErr = s.pullTokens(ctx, sess, ts, &buf, st)
	}

	// Finalize with a context that survives the request; a client disconnect
	// must not lose the partial text or leave AISpeaking stuck.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	s.metrics.ActiveStreams.Add(fctx, -1)
	if streamErr != nil {
		s.metrics.AITurnsInterruptedTotal.Add(fctx, 1)
	}

	sess.Lock()

	if buf.Len() > 0 {
		if streamErr != nil {
			d.AppendInterrupted(models.Speaker(persona.Name), buf.String())
		} else {
			d.Append(models.Speaker(persona.Name), buf.String())
		}
		last := d.Transcript[len(d.Transcript)-1]
		if err := s.store.AppendMessage(fctx, d.ID, last); err != nil {
			log.Error().Err(err).Str("discussion_id", d.ID.String()).Msg("failed to persist AI message")
		}
	} else {
		d.TouchActivity()
	}

	d.AISpeaking = false

	var moderatorMsg string
	var handGranted bool
	if streamErr == nil && !d.Ended {
		moderatorMsg, handGranted = s.moderatorTransitionLocked(fctx, d)
	}

	if err := s.store.UpdateState(fctx, d); err != nil {
		log.Error().Err(err).Str("discussion_id", d.ID.String()).Msg("failed to persist turn state")
	}

	sess.Unlock()

	// The terminal send happens outside the session lock: a consumer that has
	// stopped draining must never hold up End's poll or the next arbitration
	// request.
	if streamErr != nil {
		log.Warn().Err(streamErr).
			Str("discussion_id", d.ID.String()).
			Str("persona", persona.Name).
			Msg("AI turn interrupted")
		st.send(Unit{Kind: UnitError, Speaker: persona.Name, Err: streamErr})
	} else {
		st.send(Unit{
			Kind:             UnitDone,
			Speaker:          persona.Name,
			ModeratorMessage: moderatorMsg,
			HandQueueGranted: handGranted,
		})
	}
	close(st.units)
}

// pullTokens is the token loop. The session-ended flag is checked once per
// token, giving cancellation a bound of one token's latency; tokens already
// received are kept. The stream is always closed before returning so the
// backend connection is released deterministically.
func (s *Service) pullTokens(ctx context.Context, sess *Session, ts genai.TokenStream, buf *strings.Builder, st *Stream) error {
	defer ts.Close() //nolint:errcheck

	d := sess.Discussion

	for {
		sess.Lock()
		ended := d.Ended
		sess.Unlock()
		if ended {
			return nil
		}

		tok, err := ts.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		buf.WriteString(tok)
		s.metrics.TokensStreamedTotal.Add(ctx, 1)
		st.send(Unit{Kind: UnitToken, Text: tok})
	}
}

// moderatorTransitionLocked runs after every completed AI turn. Canned text
// only - the stream that just finished may still be releasing its connection,
// and a generation call here would collide with it.
func (s *Service) moderatorTransitionLocked(ctx context.Context, d *models.Discussion) (string, bool) {
	log := zerolog.Ctx(ctx)

	var msg string
	granted := false

	if d.HandQueued {
		msg = pickGrantPhrase()
		granted = true
		d.UserTurnGranted = true
		d.HandRaised = false
		d.HandQueued = false
		d.CurrentSpeaker = models.SpeakerUser
	} else {
		msg = pickTransitionPhrase()
		d.CurrentSpeaker = models.SpeakerAI
	}

	d.Append(models.SpeakerModerator, msg)
	last := d.Transcript[len(d.Transcript)-1]
	if err := s.store.AppendMessage(ctx, d.ID, last); err != nil {
		log.Error().Err(err).Str("discussion_id", d.ID.String()).Msg("failed to persist moderator message")
	}

	return msg, granted
}
