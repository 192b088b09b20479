package server

import (
	"errors"
	"net"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/duel-arena-go/internal/challenge"
	"github.com/kapu/duel-arena-go/internal/obslog"
	"github.com/kapu/duel-arena-go/internal/protocol"
	"github.com/kapu/duel-arena-go/internal/registry"
	"github.com/kapu/duel-arena-go/internal/session"
	"github.com/kapu/duel-arena-go/internal/wire"
)

// errFatal breaks the worker loop for protocol violations; the connection is
// closed without resynchronization.
var errFatal = errors.New("connection-fatal")

// handleConn is the per-connection worker: handshake, dispatch loop, and the
// exactly-once teardown cascade on the way out.
func (s *Server) handleConn(nc net.Conn) {
	conn := wire.New(nc, wire.WithMaxFrame(s.cfg.MaxFrameBytes))
	defer conn.Close()

	if !s.track(conn) {
		return
	}
	defer s.untrack(conn)

	id, err := s.handshake(conn)
	if err != nil {
		obslog.L().Debug("handshake_failed", zap.String("remote", conn.RemoteAddr()), zap.Error(err))
		return
	}
	defer s.teardown(id)

	for {
		m, err := conn.Recv()
		if err != nil {
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				_ = conn.Send(&protocol.ErrorNotice{Text: s.cat.Text("err.frame_too_large", nil)})
			}
			if errors.Is(err, protocol.ErrMalformed) || errors.Is(err, protocol.ErrFrameTooLarge) {
				obslog.L().Warn("protocol_error",
					zap.String("player_id", id.String()),
					zap.Error(err))
			}
			return
		}
		if err := s.dispatch(id, m, conn); err != nil {
			return
		}
	}
}

// handshake expects Hello first: optional password gate, display-name
// validation, then registration and the Welcome push.
func (s *Server) handshake(conn *wire.Conn) (uuid.UUID, error) {
	m, err := conn.Recv()
	if err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			_ = conn.Send(&protocol.ErrorNotice{Text: s.cat.Text("err.frame_too_large", nil)})
		}
		return uuid.Nil, err
	}
	hello, ok := m.(*protocol.Hello)
	if !ok {
		_ = conn.Send(&protocol.ErrorNotice{Text: s.cat.Text("err.hello_required", nil)})
		return uuid.Nil, errFatal
	}
	if s.cfg.ServerPassword != "" && hello.Password != s.cfg.ServerPassword {
		_ = conn.Send(&protocol.ErrorNotice{Text: s.cat.Text("err.wrong_password", nil)})
		return uuid.Nil, errFatal
	}
	name := strings.TrimSpace(hello.DisplayName)
	if name == "" || utf8.RuneCountInString(name) > s.cfg.MaxNameLen {
		_ = conn.Send(&protocol.ErrorNotice{Text: s.cat.Text("err.bad_name", map[string]any{"Max": s.cfg.MaxNameLen})})
		return uuid.Nil, errFatal
	}

	id := s.reg.Register(name, conn)
	if err := conn.Send(&protocol.Welcome{ID: id.String()}); err != nil {
		s.teardown(id)
		return uuid.Nil, err
	}
	return id, nil
}

// dispatch routes one inbound message. Logical failures answer the sender
// with a typed notice and leave all state unchanged; only protocol
// violations return an error and drop the connection.
func (s *Server) dispatch(id uuid.UUID, m protocol.Message, conn *wire.Conn) error {
	switch msg := m.(type) {
	case *protocol.ListOpponents:
		entries := s.reg.ListAvailable(id)
		out := make([]protocol.Opponent, 0, len(entries))
		for _, e := range entries {
			out = append(out, protocol.Opponent{ID: e.ID.String(), Name: e.Name})
		}
		return conn.Send(&protocol.OpponentList{Entries: out})

	case *protocol.ChallengeRequest:
		target, err := uuid.Parse(msg.Target)
		if err != nil {
			return conn.Send(&protocol.ErrorNotice{Text: s.cat.Text("err.unknown_player", nil)})
		}
		if _, err := s.coord.Issue(id, target); err != nil {
			return conn.Send(&protocol.ErrorNotice{Text: s.issueErrText(err)})
		}
		return nil

	case *protocol.ChallengeResult:
		chID, err := uuid.Parse(msg.ChallengeID)
		if err != nil {
			return conn.Send(&protocol.ErrorNotice{Text: s.cat.Text("err.unknown_challenge", nil)})
		}
		if err := s.coord.Respond(id, chID, msg.Accepted); err != nil {
			return conn.Send(&protocol.ErrorNotice{Text: s.respondErrText(err)})
		}
		return nil

	case *protocol.MoveData:
		if err := s.sessions.RelayMove(id, msg.Payload); err != nil {
			key := "err.no_active_session"
			if errors.Is(err, session.ErrNotYourTurn) {
				key = "err.not_your_turn"
			}
			return conn.Send(&protocol.ErrorNotice{Text: s.cat.Text(key, nil)})
		}
		return nil

	case *protocol.Goodbye:
		// leaving an active game is a forfeit, not a silent vanish
		if st, err := s.reg.Get(id); err == nil && st.Phase == registry.PhaseInGame {
			s.sessions.End(st.Session, session.ReasonForfeited)
		}
		return errFatal

	default:
		// a client pushing server-only kinds is out of contract
		obslog.L().Warn("unexpected_client_message",
			zap.String("player_id", id.String()),
			zap.String("kind", m.Kind().String()))
		_ = conn.Send(&protocol.ErrorNotice{Text: s.cat.Text("err.unexpected_message", nil)})
		return errFatal
	}
}

func (s *Server) issueErrText(err error) string {
	switch {
	case errors.Is(err, challenge.ErrSelfChallenge):
		return s.cat.Text("err.self_challenge", nil)
	case errors.Is(err, challenge.ErrChallengerBusy):
		return s.cat.Text("err.challenger_busy", nil)
	default:
		return s.cat.Text("err.target_unavailable", nil)
	}
}

func (s *Server) respondErrText(err error) string {
	switch {
	case errors.Is(err, challenge.ErrNotYourChallenge):
		return s.cat.Text("err.not_your_challenge", nil)
	case errors.Is(err, session.ErrPlayerUnavailable):
		return s.cat.Text("err.target_unavailable", nil)
	default:
		return s.cat.Text("err.unknown_challenge", nil)
	}
}

// teardown runs the disconnect cascade once per connection: pending challenge
// first, then active session, then registry removal. A challenge or session
// can win its compare-and-set pins while the first pass runs; once the
// registry entry is gone no new pin can succeed, so a second pass catches
// anything the first one raced past.
func (s *Server) teardown(id uuid.UUID) {
	s.coord.AbortForDisconnect(id)
	s.sessions.OnDisconnect(id)
	s.reg.Remove(id)
	s.coord.AbortForDisconnect(id)
	s.sessions.OnDisconnect(id)
}
