package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/roundtable/internal/discussion"
	httpmiddleware "github.com/wolfeidau/roundtable/internal/http"
	"github.com/wolfeidau/roundtable/internal/store"
)

// Request inputs arrive as query parameters and responses are JSON, matching
// the client contract. Speak and ai-speak respond with NDJSON: one
// {"type":"token"} object per line followed by a single terminal
// {"type":"done"} or {"type":"error"} line.

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeBadRequest(w, "topic is required")
		return
	}

	seconds, err := strconv.Atoi(r.URL.Query().Get("duration"))
	if err != nil || seconds <= 0 {
		writeBadRequest(w, "duration must be a positive number of seconds")
		return
	}

	result, err := s.svc.Start(r.Context(), topic, time.Duration(seconds)*time.Second)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": result.SessionID.String(),
		"message":    result.Intro,
	})
}

func (s *Server) handleRaiseHand(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Str("discussion_id", id.String()).
		Str("client_ip", httpmiddleware.ClientIPFromContext(r.Context())).
		Msg("raise hand")

	result, err := s.svc.RaiseHand(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            string(result.Status),
		"moderator_message": result.ModeratorMessage,
	})
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	message := r.URL.Query().Get("message")
	if message == "" {
		writeBadRequest(w, "message is required")
		return
	}

	st, err := s.svc.SubmitUserMessage(r.Context(), id, message)
	if err != nil {
		writeError(w, r, err)
		return
	}

	streamUnits(w, r, st)
}

func (s *Server) handleAISpeak(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	st, err := s.svc.TriggerAITurn(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	streamUnits(w, r, st)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	result, err := s.svc.End(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"evaluation": result.Evaluation,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := s.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// streamUnits writes the unit sequence as NDJSON, flushing per line. The
// channel is always drained to completion so the pipeline goroutine can
// finish even if the client has gone away mid-stream.
func streamUnits(w http.ResponseWriter, r *http.Request, st *discussion.Stream) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	clientGone := false

	for unit := range st.Units() {
		if clientGone {
			continue
		}

		var line any
		switch unit.Kind {
		case discussion.UnitToken:
			line = map[string]any{"type": "token", "text": unit.Text}
		case discussion.UnitDone:
			line = map[string]any{
				"type":               "done",
				"speaker":            unit.Speaker,
				"moderator_message":  unit.ModeratorMessage,
				"hand_queue_granted": unit.HandQueueGranted,
			}
		case discussion.UnitError:
			line = map[string]any{"type": "error", "detail": unit.Err.Error()}
		}

		if err := enc.Encode(line); err != nil {
			clientGone = true
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.URL.Query().Get("session_id"))
	if err != nil {
		writeBadRequest(w, "session_id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "bad_request",
		"detail": detail,
	})
}

// writeError maps service errors to status codes. Each arbitration violation
// keeps its own error code so clients can react to the specific conflict.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := "internal"
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, discussion.ErrDurationOutOfRange):
		code, status = "bad_request", http.StatusBadRequest
	case errors.Is(err, store.ErrSessionNotFound):
		code, status = "session_not_found", http.StatusNotFound
	case errors.Is(err, discussion.ErrSessionEnded):
		code, status = "session_ended", http.StatusGone
	case errors.Is(err, discussion.ErrFloorNotGranted):
		code, status = "floor_not_granted", http.StatusConflict
	case errors.Is(err, discussion.ErrUserHasFloor):
		code, status = "user_has_floor", http.StatusConflict
	case errors.Is(err, discussion.ErrAIAlreadySpeaking):
		code, status = "ai_already_speaking", http.StatusConflict
	case errors.Is(err, discussion.ErrTimeExpired):
		code, status = "time_expired", http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}

	writeJSON(w, status, map[string]any{
		"error":  code,
		"detail": err.Error(),
	})
}
