package session

import "errors"

// Reason explains why a session ended. The string value goes out on the wire
// in SessionEnd.
type Reason string

const (
	ReasonCompleted            Reason = "completed"
	ReasonOpponentDisconnected Reason = "opponent_disconnected"
	ReasonForfeited            Reason = "forfeited"
)

// Status is the session lifecycle state; Ended is terminal.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusEnded  Status = "ENDED"
)

var (
	// ErrNotYourTurn rejects a relay attempt from the player whose turn it is
	// not. The attempt has no side effect.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrNoActiveSession means the player has no active session (or it just
	// ended concurrently).
	ErrNoActiveSession = errors.New("no active session")
	// ErrPlayerUnavailable means a participant changed state or disconnected
	// between challenge acceptance and session start.
	ErrPlayerUnavailable = errors.New("player unavailable for session")
)
