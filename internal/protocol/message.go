package protocol

// Kind is the wire discriminant for a tagged message. It is carried as the
// first byte of every frame payload, ahead of the MessagePack body.
type Kind uint8

const (
	KindHello Kind = iota + 1
	KindWelcome
	KindListOpponents
	KindOpponentList
	KindChallengeRequest
	KindChallengeNotice
	KindChallengeResult
	KindSessionStart
	KindMoveData
	KindSessionEnd
	KindErrorNotice
	KindGoodbye
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "hello"
	case KindWelcome:
		return "welcome"
	case KindListOpponents:
		return "list_opponents"
	case KindOpponentList:
		return "opponent_list"
	case KindChallengeRequest:
		return "challenge_request"
	case KindChallengeNotice:
		return "challenge_notice"
	case KindChallengeResult:
		return "challenge_result"
	case KindSessionStart:
		return "session_start"
	case KindMoveData:
		return "move_data"
	case KindSessionEnd:
		return "session_end"
	case KindErrorNotice:
		return "error_notice"
	case KindGoodbye:
		return "goodbye"
	default:
		return "unknown"
	}
}

// Message is implemented by every wire variant.
type Message interface {
	Kind() Kind
}

// Hello is the first message a client must send. Password is only checked
// when the server was started with a shared secret.
type Hello struct {
	DisplayName string `msgpack:"display_name"`
	Password    string `msgpack:"password,omitempty"`
}

// Welcome assigns the server-generated player id to a freshly registered client.
type Welcome struct {
	ID string `msgpack:"id"`
}

// ListOpponents asks for a snapshot of currently available players.
type ListOpponents struct{}

// Opponent is one entry of an OpponentList.
type Opponent struct {
	ID   string `msgpack:"id"`
	Name string `msgpack:"name"`
}

type OpponentList struct {
	Entries []Opponent `msgpack:"entries"`
}

// ChallengeRequest asks the server to challenge the target player.
type ChallengeRequest struct {
	Target string `msgpack:"target"`
}

// ChallengeNotice is pushed to the challenged player.
type ChallengeNotice struct {
	ChallengeID string `msgpack:"challenge_id"`
	From        string `msgpack:"from"`
	FromName    string `msgpack:"from_name"`
}

// ChallengeResult resolves a challenge. Sent by the challenged client to
// accept or reject, and pushed by the server to the challenger when the
// challenge was rejected or expired.
type ChallengeResult struct {
	ChallengeID string `msgpack:"challenge_id"`
	Accepted    bool   `msgpack:"accepted"`
}

// SessionStart is pushed to both players once a challenge is accepted.
type SessionStart struct {
	SessionID    string `msgpack:"session_id"`
	Opponent     string `msgpack:"opponent"`
	OpponentName string `msgpack:"opponent_name"`
	YourTurn     bool   `msgpack:"your_turn"`
}

// MoveData carries one opaque turn payload. The server relays it unchanged;
// game rules live entirely on the clients.
type MoveData struct {
	Payload []byte `msgpack:"payload"`
}

type SessionEnd struct {
	Reason string `msgpack:"reason"`
}

type ErrorNotice struct {
	Text string `msgpack:"text"`
}

// Goodbye is a clean close, sent by either side.
type Goodbye struct{}

func (Hello) Kind() Kind            { return KindHello }
func (Welcome) Kind() Kind          { return KindWelcome }
func (ListOpponents) Kind() Kind    { return KindListOpponents }
func (OpponentList) Kind() Kind     { return KindOpponentList }
func (ChallengeRequest) Kind() Kind { return KindChallengeRequest }
func (ChallengeNotice) Kind() Kind  { return KindChallengeNotice }
func (ChallengeResult) Kind() Kind  { return KindChallengeResult }
func (SessionStart) Kind() Kind     { return KindSessionStart }
func (MoveData) Kind() Kind         { return KindMoveData }
func (SessionEnd) Kind() Kind       { return KindSessionEnd }
func (ErrorNotice) Kind() Kind      { return KindErrorNotice }
func (Goodbye) Kind() Kind          { return KindGoodbye }
