package protocol

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
)

func TestRoundTripAllKinds(t *testing.T) {
	msgs := []Message{
		&Hello{DisplayName: "Alice"},
		&Hello{DisplayName: "Alice", Password: "hunter2"},
		&Welcome{ID: "8a6e0804-2bd0-4672-b79d-d97027f9071a"},
		&ListOpponents{},
		&OpponentList{Entries: []Opponent{{ID: "id-1", Name: "Bob"}, {ID: "id-2", Name: "Carol"}}},
		&ChallengeRequest{Target: "id-2"},
		&ChallengeNotice{ChallengeID: "ch-1", From: "id-1", FromName: "Alice"},
		&ChallengeResult{ChallengeID: "ch-1", Accepted: true},
		&ChallengeResult{ChallengeID: "ch-1", Accepted: false},
		&SessionStart{SessionID: "s-1", Opponent: "id-2", OpponentName: "Bob", YourTurn: true},
		&MoveData{Payload: []byte{0x00, 0xff, 0x10}},
		&SessionEnd{Reason: "completed"},
		&ErrorNotice{Text: "target unavailable"},
		&Goodbye{},
	}
	for _, m := range msgs {
		payload, err := Encode(m)
		if err != nil {
			t.Fatalf("Encode(%s): %v", m.Kind(), err)
		}
		got, err := Decode(payload)
		if err != nil {
			t.Fatalf("Decode(%s): %v", m.Kind(), err)
		}
		if !reflect.DeepEqual(got, m) {
			t.Fatalf("round trip mismatch for %s: got %#v want %#v", m.Kind(), got, m)
		}
	}
}

func TestRoundTripMaxSizePayload(t *testing.T) {
	// Fill a MoveData payload close to the frame bound; the envelope overhead
	// (discriminant + msgpack map header) must still fit under DefaultMaxFrame.
	big := make([]byte, DefaultMaxFrame-64)
	for i := range big {
		big[i] = byte(i)
	}
	m := &MoveData{Payload: big}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, m); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf, DefaultMaxFrame)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	mv, ok := got.(*MoveData)
	if !ok {
		t.Fatalf("expected *MoveData, got %T", got)
	}
	if !bytes.Equal(mv.Payload, big) {
		t.Fatalf("payload corrupted in transit")
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	if _, err := Decode([]byte{0xEE, 0x80}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for unknown kind, got %v", err)
	}
}

func TestDecodeTruncatedBody(t *testing.T) {
	payload, err := Encode(&SessionStart{SessionID: "s-1", Opponent: "id-2", YourTurn: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(payload[:len(payload)/2]); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for truncated body, got %v", err)
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for empty payload, got %v", err)
	}
}

func TestReadFrameOversize(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, &MoveData{Payload: make([]byte, 2048)}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := ReadFrame(&buf, 1024); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, &ErrorNotice{Text: "x"}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	raw := buf.Bytes()
	if _, err := ReadFrame(bytes.NewReader(raw[:len(raw)-1]), 0); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestFrameStreamOrdering(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		if err := WriteFrame(&buf, &MoveData{Payload: []byte{byte(i)}}); err != nil {
			t.Fatalf("WriteFrame#%d: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		got, err := ReadFrame(&buf, 0)
		if err != nil {
			t.Fatalf("ReadFrame#%d: %v", i, err)
		}
		mv := got.(*MoveData)
		if len(mv.Payload) != 1 || mv.Payload[0] != byte(i) {
			t.Fatalf("frame #%d out of order: %v", i, mv.Payload)
		}
	}
}
