package archive

import "time"

// Record is the archived summary of one ended game session. It is advisory
// history for the status surface and the results database; live matchmaking
// state never leaves the server process.
type Record struct {
	SessionID      string    `json:"session_id"`
	ChallengerID   string    `json:"challenger_id"`
	ChallengerName string    `json:"challenger_name"`
	OpponentID     string    `json:"opponent_id"`
	OpponentName   string    `json:"opponent_name"`
	Reason         string    `json:"reason"`
	Moves          int       `json:"moves"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
}
