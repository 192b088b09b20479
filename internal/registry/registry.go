package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/duel-arena-go/internal/obslog"
	"github.com/kapu/duel-arena-go/internal/protocol"
)

var (
	ErrNotFound = errors.New("player not found")
	// ErrConflict signals a failed compare-and-set: the player's state changed
	// under a concurrently processed message. Callers surface it, never retry.
	ErrConflict = errors.New("state conflict")
)

type player struct {
	id    uuid.UUID
	name  string
	state State
	conn  Sender
}

// Registry is the single source of truth for connected players and the only
// component that mutates PlayerState. Every mutation after Register goes
// through Transition's compare-and-set, which serializes state changes per
// player across independent connection workers.
type Registry struct {
	mu      sync.Mutex
	players map[uuid.UUID]*player
}

func New() *Registry {
	return &Registry{players: make(map[uuid.UUID]*player)}
}

// Register allocates a fresh player id and inserts the player as available.
func (r *Registry) Register(name string, conn Sender) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	r.players[id] = &player{id: id, name: name, state: Available(), conn: conn}
	r.mu.Unlock()
	obslog.L().Info("player_register", zap.String("player_id", id.String()), zap.String("name", name))
	return id
}

// ListAvailable snapshots currently available players, excluding the caller.
// The snapshot is optimistic: a listed player may transition away immediately,
// so challenge issuance re-validates via Transition.
func (r *Registry) ListAvailable(excluding uuid.UUID) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.players))
	for id, p := range r.players {
		if id == excluding || p.state.Phase != PhaseAvailable {
			continue
		}
		out = append(out, Entry{ID: id, Name: p.name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the player's current state.
func (r *Registry) Get(id uuid.UUID) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return State{}, ErrNotFound
	}
	return p.state, nil
}

// Name returns the registered display name.
func (r *Registry) Name(id uuid.UUID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return "", ErrNotFound
	}
	return p.name, nil
}

// Transition compare-and-sets the player's state: it succeeds only when the
// current state equals want. This is the sole state-mutation primitive used by
// the challenge coordinator and game sessions.
func (r *Registry) Transition(id uuid.UUID, want, next State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return ErrNotFound
	}
	if p.state != want {
		return ErrConflict
	}
	p.state = next
	return nil
}

// Send pushes a message to the player's connection. A missing player is
// reported as ErrNotFound; a transport failure belongs to that player's own
// connection worker and is only logged here.
func (r *Registry) Send(id uuid.UUID, m protocol.Message) error {
	r.mu.Lock()
	p, ok := r.players[id]
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if err := p.conn.Send(m); err != nil {
		obslog.L().Warn("player_send_failed",
			zap.String("player_id", id.String()),
			zap.String("kind", m.Kind().String()),
			zap.Error(err))
		return err
	}
	return nil
}

// Remove deregisters a player. The connection worker calls it last in its
// teardown, after challenge/session collaborators have unwound.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	_, ok := r.players[id]
	delete(r.players, id)
	r.mu.Unlock()
	if ok {
		obslog.L().Info("player_remove", zap.String("player_id", id.String()))
	}
}

// Counts reports connected and available player totals for the status surface.
func (r *Registry) Counts() (total, available int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total = len(r.players)
	for _, p := range r.players {
		if p.state.Phase == PhaseAvailable {
			available++
		}
	}
	return total, available
}
