package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/duel-arena-go/internal/archive"
	"github.com/kapu/duel-arena-go/internal/obslog"
	"github.com/kapu/duel-arena-go/internal/protocol"
	"github.com/kapu/duel-arena-go/internal/registry"
)

const archiveTimeout = 3 * time.Second

// Session owns two players for the duration of a match and relays opaque
// move payloads between them. Index 0 is the challenger, who moves first.
type Session struct {
	ID uuid.UUID

	mu      sync.Mutex
	players [2]uuid.UUID
	names   [2]string
	turn    int
	status  Status
	reason  Reason
	moves   int
	started time.Time
}

// Manager tracks every active session. It is the only writer of the InGame
// player state, always through the registry's compare-and-set.
type Manager struct {
	mu       sync.Mutex
	active   map[uuid.UUID]*Session
	byPlayer map[uuid.UUID]uuid.UUID

	reg   *registry.Registry
	store *archive.Store
	repo  *archive.Repository
}

func NewManager(reg *registry.Registry) *Manager {
	return &Manager{
		active:   make(map[uuid.UUID]*Session),
		byPlayer: make(map[uuid.UUID]uuid.UUID),
		reg:      reg,
	}
}

// AttachArchive wires the recent-results store. Optional.
func (m *Manager) AttachArchive(store *archive.Store) {
	if m != nil {
		m.store = store
	}
}

// AttachRepository wires the results database. Optional.
func (m *Manager) AttachRepository(repo *archive.Repository) {
	if m != nil {
		m.repo = repo
	}
}

// Start converts an accepted challenge into an active session. Both players
// must still be in ChallengePending for that exact challenge; the challenger
// gets the first turn. SessionStart is pushed to both.
func (m *Manager) Start(challengeID, challenger, target uuid.UUID) (*Session, error) {
	sid := uuid.New()
	cName, _ := m.reg.Name(challenger)
	tName, _ := m.reg.Name(target)
	s := &Session{
		ID:      sid,
		players: [2]uuid.UUID{challenger, target},
		names:   [2]string{cName, tName},
		status:  StatusActive,
		started: time.Now(),
	}

	// The session is registered before the players are pinned so a disconnect
	// teardown racing the acceptance always finds it through byPlayer.
	m.mu.Lock()
	m.active[sid] = s
	m.byPlayer[challenger] = sid
	m.byPlayer[target] = sid
	m.mu.Unlock()

	pending := registry.ChallengePending(challengeID)
	if err := m.reg.Transition(challenger, pending, registry.InGame(sid)); err != nil {
		m.discard(sid)
		return nil, ErrPlayerUnavailable
	}
	if err := m.reg.Transition(target, pending, registry.InGame(sid)); err != nil {
		// roll the challenger back out; a vanished challenger is already gone
		_ = m.reg.Transition(challenger, registry.InGame(sid), registry.Available())
		m.discard(sid)
		return nil, ErrPlayerUnavailable
	}

	s.mu.Lock()
	if s.status == StatusEnded {
		// a participant disconnected while the players were being pinned; end
		// already unregistered the session, so unpin whatever the transitions
		// above won
		s.mu.Unlock()
		_ = m.reg.Transition(challenger, registry.InGame(sid), registry.Available())
		_ = m.reg.Transition(target, registry.InGame(sid), registry.Available())
		return nil, ErrPlayerUnavailable
	}
	// sent under the session lock so a concurrent end cannot overtake
	// SessionStart on either stream
	_ = m.reg.Send(challenger, &protocol.SessionStart{
		SessionID: sid.String(), Opponent: target.String(), OpponentName: tName, YourTurn: true,
	})
	_ = m.reg.Send(target, &protocol.SessionStart{
		SessionID: sid.String(), Opponent: challenger.String(), OpponentName: cName, YourTurn: false,
	})
	s.mu.Unlock()

	obslog.L().Info("session_start",
		zap.String("session_id", sid.String()),
		zap.String("challenger", challenger.String()),
		zap.String("target", target.String()))
	return s, nil
}

// discard unregisters a session that never started. byPlayer entries are only
// cleared when they still point at this session.
func (m *Manager) discard(sid uuid.UUID) {
	m.mu.Lock()
	if s, ok := m.active[sid]; ok {
		delete(m.active, sid)
		for _, p := range s.players {
			if m.byPlayer[p] == sid {
				delete(m.byPlayer, p)
			}
		}
	}
	m.mu.Unlock()
}

// RelayMove forwards one opaque payload to the sender's opponent and flips the
// turn. The payload is never inspected; only strict turn alternation is
// enforced here.
func (m *Manager) RelayMove(from uuid.UUID, payload []byte) error {
	s := m.sessionFor(from)
	if s == nil {
		return ErrNoActiveSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return ErrNoActiveSession
	}
	if s.players[s.turn] != from {
		return ErrNotYourTurn
	}
	opponent := s.players[1-s.turn]
	s.turn = 1 - s.turn
	s.moves++
	// Send under the session lock so relayed moves and a concurrent end keep
	// their order on the opponent's stream. A failed push means the opponent
	// is going away; its own worker runs the disconnect cascade.
	_ = m.reg.Send(opponent, &protocol.MoveData{Payload: payload})
	return nil
}

// End terminates the session: both players go back to Available, whoever is
// still connected receives SessionEnd, and the result is archived. Idempotent.
func (m *Manager) End(sid uuid.UUID, reason Reason) {
	m.end(sid, reason, uuid.Nil)
}

// OnDisconnect is the connection worker's teardown hook. The leaver is skipped
// during unwind: it is about to be removed from the registry, not returned to
// Available.
func (m *Manager) OnDisconnect(player uuid.UUID) {
	m.mu.Lock()
	sid, ok := m.byPlayer[player]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.end(sid, ReasonOpponentDisconnected, player)
}

func (m *Manager) end(sid uuid.UUID, reason Reason, skip uuid.UUID) {
	m.mu.Lock()
	s, ok := m.active[sid]
	if ok {
		delete(m.active, sid)
		for _, p := range s.players {
			if m.byPlayer[p] == sid {
				delete(m.byPlayer, p)
			}
		}
	}
	m.mu.Unlock()
	if !ok {
		return // already ended
	}

	s.mu.Lock()
	if s.status == StatusEnded {
		s.mu.Unlock()
		return
	}
	s.status = StatusEnded
	s.reason = reason
	rec := &archive.Record{
		SessionID:      s.ID.String(),
		ChallengerID:   s.players[0].String(),
		ChallengerName: s.names[0],
		OpponentID:     s.players[1].String(),
		OpponentName:   s.names[1],
		Reason:         string(reason),
		Moves:          s.moves,
		StartedAt:      s.started,
		EndedAt:        time.Now(),
	}
	// Unwind under the session lock so SessionEnd cannot overtake SessionStart
	// or a relayed move on a survivor's stream. Only players the compare-and-set
	// confirms in this session are notified; a player still mid-acceptance or
	// already vanished never entered it.
	for _, p := range s.players {
		if p == skip {
			continue
		}
		if err := m.reg.Transition(p, registry.InGame(sid), registry.Available()); err == nil {
			_ = m.reg.Send(p, &protocol.SessionEnd{Reason: string(reason)})
		}
	}
	s.mu.Unlock()

	obslog.L().Info("session_end",
		zap.String("session_id", sid.String()),
		zap.String("reason", string(reason)),
		zap.Int("moves", rec.Moves))

	m.persist(rec)
}

func (m *Manager) persist(rec *archive.Record) {
	if m.store == nil && m.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if m.store != nil {
		if err := m.store.SaveEnded(ctx, rec); err != nil {
			obslog.L().Error("archive_store_error", zap.String("session_id", rec.SessionID), zap.Error(err))
		}
	}
	if m.repo != nil {
		if err := m.repo.SaveResult(ctx, rec); err != nil {
			obslog.L().Error("archive_repo_error", zap.String("session_id", rec.SessionID), zap.Error(err))
		}
	}
}

func (m *Manager) sessionFor(player uuid.UUID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sid, ok := m.byPlayer[player]
	if !ok {
		return nil
	}
	return m.active[sid]
}

// ActiveCount reports the number of live sessions for the status surface.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
