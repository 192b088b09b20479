package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultMaxFrame bounds a single frame payload (discriminant + body).
// Oversize frames are a protocol violation and close the connection.
const DefaultMaxFrame = 256 * 1024

// frame layout: [4-byte big-endian payload length][1-byte kind][msgpack body]
const headerLen = 4

var (
	// ErrMalformed marks an undecodable frame: unknown discriminant, truncated
	// or corrupt body. Connection-fatal; no resynchronization is attempted.
	ErrMalformed = errors.New("malformed frame")
	// ErrFrameTooLarge marks a frame whose declared length exceeds the
	// configured maximum.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// Encode serializes a message into a frame payload (without the length prefix).
func Encode(m Message) ([]byte, error) {
	body, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(m.Kind()))
	return append(out, body...), nil
}

// Decode parses one frame payload back into its typed message.
func Decode(payload []byte) (Message, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	var m Message
	switch Kind(payload[0]) {
	case KindHello:
		m = &Hello{}
	case KindWelcome:
		m = &Welcome{}
	case KindListOpponents:
		m = &ListOpponents{}
	case KindOpponentList:
		m = &OpponentList{}
	case KindChallengeRequest:
		m = &ChallengeRequest{}
	case KindChallengeNotice:
		m = &ChallengeNotice{}
	case KindChallengeResult:
		m = &ChallengeResult{}
	case KindSessionStart:
		m = &SessionStart{}
	case KindMoveData:
		m = &MoveData{}
	case KindSessionEnd:
		m = &SessionEnd{}
	case KindErrorNotice:
		m = &ErrorNotice{}
	case KindGoodbye:
		m = &Goodbye{}
	default:
		return nil, fmt.Errorf("%w: unknown kind 0x%02x", ErrMalformed, payload[0])
	}
	if err := msgpack.Unmarshal(payload[1:], m); err != nil {
		return nil, fmt.Errorf("%w: %s body: %v", ErrMalformed, Kind(payload[0]), err)
	}
	return m, nil
}

// WriteFrame encodes m and writes it as one length-prefixed frame.
func WriteFrame(w io.Writer, m Message) error {
	payload, err := Encode(m)
	if err != nil {
		return err
	}
	var hdr [headerLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame and decodes it. maxFrame <= 0
// falls back to DefaultMaxFrame. Partial reads are buffered by io.ReadFull;
// an EOF mid-frame surfaces as io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, maxFrame int) (Message, error) {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return nil, fmt.Errorf("%w: zero-length frame", ErrMalformed)
	}
	if int(n) > maxFrame {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxFrame)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return Decode(payload)
}
