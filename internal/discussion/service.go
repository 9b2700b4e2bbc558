package discussion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/roundtable/internal/genai"
	"github.com/wolfeidau/roundtable/internal/models"
	"github.com/wolfeidau/roundtable/internal/personas"
	"github.com/wolfeidau/roundtable/internal/store"
	"github.com/wolfeidau/roundtable/internal/telemetry"
)

// Config holds tunables for the discussion service.
type Config struct {
	// SilenceThreshold is the inactivity window after which callers are
	// expected to trigger an AI turn. Default: 5s
	SilenceThreshold time.Duration

	// EndGracePeriod bounds how long End waits for an in-flight stream to
	// flush before evaluation runs. Default: 8s
	EndGracePeriod time.Duration

	// EndPollInterval is how often End re-checks the speaking flag while
	// waiting. Default: 100ms
	EndPollInterval time.Duration

	// EvalMaxTokens caps the evaluation response. Default: 500
	EvalMaxTokens int

	// MaxSessionDuration bounds the duration a start request may ask for.
	// Default: 1h
	MaxSessionDuration time.Duration

	// MaxTokens caps each moderator and participant response. Default: 300
	MaxTokens int

	// Temperature controls sampling randomness for generation calls.
	// Default: 0.7
	Temperature float64
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.SilenceThreshold == 0 {
		c.SilenceThreshold = 5 * time.Second
	}
	if c.EndGracePeriod == 0 {
		c.EndGracePeriod = 8 * time.Second
	}
	if c.EndPollInterval == 0 {
		c.EndPollInterval = 100 * time.Millisecond
	}
	if c.EvalMaxTokens == 0 {
		c.EvalMaxTokens = 500
	}
	if c.MaxSessionDuration == 0 {
		c.MaxSessionDuration = time.Hour
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 300
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
}

// genOptions returns the options for moderator and participant calls.
func (c *Config) genOptions() genai.Options {
	return genai.Options{MaxTokens: c.MaxTokens, Temperature: c.Temperature}
}

// Service arbitrates turns for discussion sessions. Every operation validates
// the session's turn state under its per-session lock before any side effect.
type Service struct {
	registry *Registry
	store    store.SessionStore
	gen      genai.Client
	personas *personas.Set
	cfg      Config
	metrics  *telemetry.Metrics

	now func() time.Time
}

// New creates a discussion service.
func New(st store.SessionStore, gen genai.Client, set *personas.Set, cfg Config) *Service {
	cfg.ApplyDefaults()
	return &Service{
		registry: NewRegistry(st),
		store:    st,
		gen:      gen,
		personas: set,
		cfg:      cfg,
		metrics:  telemetry.GetMetrics(),
		now:      time.Now,
	}
}

// StartResult is the outcome of starting a discussion.
type StartResult struct {
	SessionID uuid.UUID
	Intro     string
}

// Start creates a session, generates the moderator introduction and persists
// both. Start never fails on a generation error - the intro falls back to
// canned text so a session always begins cleanly.
func (s *Service) Start(ctx context.Context, topic string, duration time.Duration) (*StartResult, error) {
	log := zerolog.Ctx(ctx)

	if duration <= 0 || duration > s.cfg.MaxSessionDuration {
		return nil, ErrDurationOutOfRange
	}

	d := models.NewDiscussion(topic, duration)

	intro, err := s.gen.Complete(ctx, introPrompt(topic), s.cfg.genOptions())
	if err != nil || intro == "" {
		log.Warn().Err(err).Str("topic", topic).Msg("moderator intro generation failed, using canned text")
		s.metrics.GenerationFallbacksTotal.Add(ctx, 1)
		intro = pickIntroFallback()
	}

	d.Append(models.SpeakerModerator, intro)

	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}
	s.registry.Insert(d)
	s.metrics.SessionsStartedTotal.Add(ctx, 1)

	log.Info().
		Str("discussion_id", d.ID.String()).
		Str("topic", topic).
		Dur("duration", duration).
		Msg("discussion started")

	return &StartResult{SessionID: d.ID, Intro: intro}, nil
}

// HandStatus reports the outcome of a raise-hand request.
type HandStatus string

const (
	HandAlreadyGranted HandStatus = "already_granted"
	HandQueued         HandStatus = "queued"
	HandGranted        HandStatus = "granted"
)

// HandResult is the outcome of RaiseHand.
type HandResult struct {
	Status           HandStatus
	ModeratorMessage string
}

// RaiseHand requests the floor for the user. While an AI stream is in flight
// the hand is queued and honored at the next natural transition; otherwise
// the floor is granted immediately with a canned moderator line (no
// generation call, the backend connection may be busy).
func (s *Service) RaiseHand(ctx context.Context, id uuid.UUID) (*HandResult, error) {
	sess, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.metrics.HandRaisesTotal.Add(ctx, 1)

	sess.Lock()
	defer sess.Unlock()

	d := sess.Discussion

	if d.Ended {
		return nil, ErrSessionEnded
	}

	if d.UserTurnGranted {
		// Idempotent: no state change, no duplicate transcript entries.
		return &HandResult{Status: HandAlreadyGranted}, nil
	}

	if d.AISpeaking {
		if !d.HandQueued {
			d.HandRaised = true
			d.HandQueued = true
			if err := s.store.UpdateState(ctx, d); err != nil {
				return nil, err
			}
		}
		return &HandResult{Status: HandQueued}, nil
	}

	msg := s.grantTurnLocked(d)
	if err := s.persistGrantLocked(ctx, d); err != nil {
		return nil, err
	}

	return &HandResult{Status: HandGranted, ModeratorMessage: msg}, nil
}

// grantTurnLocked gives the user the floor with a canned grant line. The
// session lock must be held.
func (s *Service) grantTurnLocked(d *models.Discussion) string {
	d.UserTurnGranted = true
	d.HandRaised = false
	d.HandQueued = false
	d.CurrentSpeaker = models.SpeakerUser

	msg := pickGrantPhrase()
	d.Append(models.SpeakerModerator, msg)
	return msg
}

func (s *Service) persistGrantLocked(ctx context.Context, d *models.Discussion) error {
	last := d.Transcript[len(d.Transcript)-1]
	if err := s.store.AppendMessage(ctx, d.ID, last); err != nil {
		return err
	}
	return s.store.UpdateState(ctx, d)
}

// SubmitUserMessage accepts the user's message while they hold the floor,
// revokes the floor and begins the AI streaming response.
func (s *Service) SubmitUserMessage(ctx context.Context, id uuid.UUID, text string) (*Stream, error) {
	sess, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.Lock()
	defer sess.Unlock()

	d := sess.Discussion

	if d.Ended {
		return nil, ErrSessionEnded
	}
	if !d.UserTurnGranted {
		s.metrics.TurnConflictsTotal.Add(ctx, 1)
		return nil, ErrFloorNotGranted
	}

	d.Append(models.SpeakerUser, text)
	d.UserTurnGranted = false
	d.HandRaised = false
	d.CurrentSpeaker = models.SpeakerAI

	last := d.Transcript[len(d.Transcript)-1]
	if err := s.store.AppendMessage(ctx, d.ID, last); err != nil {
		return nil, err
	}

	return s.beginAITurnLocked(ctx, sess)
}

// TriggerAITurn starts a silence-driven AI turn. Each blocked precondition is
// its own reported condition, never a generic conflict.
func (s *Service) TriggerAITurn(ctx context.Context, id uuid.UUID) (*Stream, error) {
	log := zerolog.Ctx(ctx)

	sess, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.Lock()
	defer sess.Unlock()

	d := sess.Discussion

	if d.Ended {
		return nil, ErrSessionEnded
	}
	if d.UserTurnGranted {
		s.metrics.TurnConflictsTotal.Add(ctx, 1)
		return nil, ErrUserHasFloor
	}
	if d.AISpeaking {
		s.metrics.TurnConflictsTotal.Add(ctx, 1)
		return nil, ErrAIAlreadySpeaking
	}
	if d.TimeOver(s.now()) {
		s.metrics.TurnConflictsTotal.Add(ctx, 1)
		return nil, ErrTimeExpired
	}

	log.Debug().
		Str("discussion_id", d.ID.String()).
		Bool("silent", d.SilentFor(s.cfg.SilenceThreshold, s.now())).
		Msg("triggering AI turn")

	return s.beginAITurnLocked(ctx, sess)
}

// EndResult is the outcome of ending a discussion.
type EndResult struct {
	Evaluation string
}

// End terminates the session. The ended flag is set immediately so new
// operations are rejected at once, then End waits - bounded by the grace
// period - for any in-flight stream to flush its partial text, and finally
// evaluates the transcript. Evaluation failure degrades to a fixed apology
// plus the raw error detail; End never surfaces it as an error.
func (s *Service) End(ctx context.Context, id uuid.UUID) (*EndResult, error) {
	log := zerolog.Ctx(ctx)

	sess, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.Lock()
	d := sess.Discussion
	if !d.Ended {
		d.Ended = true
		if err := s.store.UpdateState(ctx, d); err != nil {
			sess.Unlock()
			return nil, err
		}
	}
	speaking := d.AISpeaking
	sess.Unlock()

	// Evaluation must never read the transcript while a stream still holds
	// write rights to it. Cooperative cancellation lands within one token,
	// so poll briefly up to the grace deadline.
	if speaking {
		deadline := s.now().Add(s.cfg.EndGracePeriod)
		ticker := time.NewTicker(s.cfg.EndPollInterval)
		defer ticker.Stop()

		for speaking && s.now().Before(deadline) {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			sess.Lock()
			speaking = d.AISpeaking
			sess.Unlock()
		}

		if speaking {
			log.Error().
				Str("discussion_id", id.String()).
				Msg("stream did not release within the grace period, evaluating anyway")
		}
	}

	sess.Lock()
	topic := d.Topic
	transcript := make([]models.Message, len(d.Transcript))
	copy(transcript, d.Transcript)
	sess.Unlock()

	started := s.now()
	evaluation, err := s.gen.Complete(ctx, evaluationPrompt(topic, transcript), genai.Options{MaxTokens: s.cfg.EvalMaxTokens, Temperature: s.cfg.Temperature})
	s.metrics.EvaluationDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
	if err != nil {
		log.Warn().Err(err).Str("discussion_id", id.String()).Msg("evaluation generation failed")
		s.metrics.GenerationFallbacksTotal.Add(ctx, 1)
		evaluation = evaluationApology + " (" + err.Error() + ")"
	}

	s.metrics.SessionsEndedTotal.Add(ctx, 1)
	log.Info().Str("discussion_id", id.String()).Msg("discussion ended")

	return &EndResult{Evaluation: evaluation}, nil
}

// Delete removes the session from the cache and the durable store, including
// all transcript entries.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	s.registry.Evict(id)
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.metrics.SessionsDeletedTotal.Add(ctx, 1)
	return nil
}
