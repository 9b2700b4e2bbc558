package discussion

import "errors"

// Turn-arbitration violations. Each is reported as its own condition so
// callers can react to the specific conflict rather than a generic one.
var (
	// ErrSessionEnded rejects any operation against an ended session.
	ErrSessionEnded = errors.New("session has ended")

	// ErrFloorNotGranted rejects a user message when the user does not hold
	// the floor.
	ErrFloorNotGranted = errors.New("user does not hold the floor")

	// ErrUserHasFloor rejects an AI turn while the user holds the floor.
	ErrUserHasFloor = errors.New("user holds the floor")

	// ErrAIAlreadySpeaking rejects an AI turn while a stream is in flight.
	ErrAIAlreadySpeaking = errors.New("an AI response is already streaming")

	// ErrTimeExpired rejects an AI turn after the discussion's time limit.
	ErrTimeExpired = errors.New("discussion time has expired")

	// ErrDurationOutOfRange rejects a start request whose duration is not
	// positive or exceeds the configured maximum.
	ErrDurationOutOfRange = errors.New("duration is out of range")
)
