package registry

import (
	"github.com/google/uuid"

	"github.com/kapu/duel-arena-go/internal/protocol"
)

// Phase names the coarse availability of a player.
type Phase string

const (
	PhaseAvailable        Phase = "AVAILABLE"
	PhaseChallengePending Phase = "CHALLENGE_PENDING"
	PhaseInGame           Phase = "IN_GAME"
)

// State is the full tagged player state. Exactly one of Challenge/Session is
// set, depending on Phase; both are uuid.Nil when available. The struct is
// comparable so Transition can compare-and-set it atomically.
type State struct {
	Phase     Phase
	Challenge uuid.UUID
	Session   uuid.UUID
}

func Available() State { return State{Phase: PhaseAvailable} }

func ChallengePending(challengeID uuid.UUID) State {
	return State{Phase: PhaseChallengePending, Challenge: challengeID}
}

func InGame(sessionID uuid.UUID) State {
	return State{Phase: PhaseInGame, Session: sessionID}
}

// Sender pushes one outbound message to a player's connection. Implemented by
// wire.Conn; kept narrow so the registry never sees transport details.
type Sender interface {
	Send(m protocol.Message) error
}

// Entry is one row of an availability snapshot.
type Entry struct {
	ID   uuid.UUID
	Name string
}
