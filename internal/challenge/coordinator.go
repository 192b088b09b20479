package challenge

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/duel-arena-go/internal/msgcat"
	"github.com/kapu/duel-arena-go/internal/obslog"
	"github.com/kapu/duel-arena-go/internal/protocol"
	"github.com/kapu/duel-arena-go/internal/registry"
	"github.com/kapu/duel-arena-go/internal/session"
)

var (
	ErrSelfChallenge = errors.New("cannot challenge yourself")
	// ErrTargetUnavailable is the fail-fast answer when the target is busy,
	// gone, or was won by a concurrent challenge. Never retried automatically.
	ErrTargetUnavailable = errors.New("target unavailable")
	// ErrChallengerBusy means the issuing player is not Available themselves.
	ErrChallengerBusy   = errors.New("challenger not available")
	ErrUnknownChallenge = errors.New("no such pending challenge")
	ErrNotYourChallenge = errors.New("challenge addressed to another player")
)

// Challenge is a pending request between two players. It exists only between
// issuance and resolution.
type Challenge struct {
	ID         uuid.UUID
	Challenger uuid.UUID
	Target     uuid.UUID
	CreatedAt  time.Time

	timer *time.Timer
}

// Coordinator processes challenge requests and responses. Exclusivity comes
// from the registry compare-and-set: winning the target's Available state is
// the only way a challenge gets created, so at most one challenge can pin a
// player at a time.
type Coordinator struct {
	mu       sync.Mutex
	pending  map[uuid.UUID]*Challenge
	byPlayer map[uuid.UUID]uuid.UUID // either role -> pending challenge

	reg      *registry.Registry
	sessions *session.Manager
	cat      *msgcat.Catalog
	ttl      time.Duration
}

// New builds a coordinator. ttl bounds how long a challenge may stay pending;
// ttl <= 0 disables expiry.
func New(reg *registry.Registry, sessions *session.Manager, cat *msgcat.Catalog, ttl time.Duration) *Coordinator {
	return &Coordinator{
		pending:  make(map[uuid.UUID]*Challenge),
		byPlayer: make(map[uuid.UUID]uuid.UUID),
		reg:      reg,
		sessions: sessions,
		cat:      cat,
		ttl:      ttl,
	}
}

// Issue creates a pending challenge from challenger to target and pushes a
// ChallengeNotice to the target. Both players are pinned via compare-and-set;
// a lost race on either side fails fast.
func (c *Coordinator) Issue(challenger, target uuid.UUID) (*Challenge, error) {
	if challenger == target {
		return nil, ErrSelfChallenge
	}
	id := uuid.New()
	if err := c.reg.Transition(target, registry.Available(), registry.ChallengePending(id)); err != nil {
		return nil, ErrTargetUnavailable
	}
	if err := c.reg.Transition(challenger, registry.Available(), registry.ChallengePending(id)); err != nil {
		_ = c.reg.Transition(target, registry.ChallengePending(id), registry.Available())
		return nil, ErrChallengerBusy
	}

	ch := &Challenge{ID: id, Challenger: challenger, Target: target, CreatedAt: time.Now()}
	if c.ttl > 0 {
		ch.timer = time.AfterFunc(c.ttl, func() { c.expire(id) })
	}
	c.mu.Lock()
	c.pending[id] = ch
	c.byPlayer[challenger] = id
	c.byPlayer[target] = id
	c.mu.Unlock()

	name, _ := c.reg.Name(challenger)
	_ = c.reg.Send(target, &protocol.ChallengeNotice{
		ChallengeID: id.String(), From: challenger.String(), FromName: name,
	})

	// Re-check both participants. A teardown that ran between winning a pin
	// and the map insert above could not have seen this challenge, so its
	// unwind has to happen here.
	if _, err := c.reg.Get(target); errors.Is(err, registry.ErrNotFound) {
		c.mu.Lock()
		if cur, ok := c.pending[id]; ok {
			c.remove(cur)
		}
		c.mu.Unlock()
		_ = c.reg.Transition(challenger, registry.ChallengePending(id), registry.Available())
		return nil, ErrTargetUnavailable
	}
	if _, err := c.reg.Get(challenger); errors.Is(err, registry.ErrNotFound) {
		c.AbortForDisconnect(challenger)
		return nil, ErrChallengerBusy
	}

	obslog.L().Info("challenge_issue",
		zap.String("challenge_id", id.String()),
		zap.String("challenger", challenger.String()),
		zap.String("target", target.String()))
	return ch, nil
}

// Respond resolves a pending challenge. Accepting hands both players to the
// session manager; rejecting frees them and notifies the challenger.
func (c *Coordinator) Respond(responder, challengeID uuid.UUID, accept bool) error {
	c.mu.Lock()
	ch, ok := c.pending[challengeID]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownChallenge
	}
	if ch.Target != responder {
		c.mu.Unlock()
		return ErrNotYourChallenge
	}
	c.remove(ch)
	c.mu.Unlock()

	if accept {
		if _, err := c.sessions.Start(ch.ID, ch.Challenger, ch.Target); err != nil {
			// a participant slipped away mid-acceptance; free whoever is left
			c.release(ch)
			return err
		}
		obslog.L().Info("challenge_accept", zap.String("challenge_id", ch.ID.String()))
		return nil
	}

	c.release(ch)
	_ = c.reg.Send(ch.Challenger, &protocol.ChallengeResult{ChallengeID: ch.ID.String(), Accepted: false})
	obslog.L().Info("challenge_reject", zap.String("challenge_id", ch.ID.String()))
	return nil
}

// AbortForDisconnect unwinds the pending challenge held by a disconnecting
// player, in either role. The counterpart goes back to Available and gets a
// single ErrorNotice; the leaver's own state is left for the worker's
// registry removal.
func (c *Coordinator) AbortForDisconnect(player uuid.UUID) {
	c.mu.Lock()
	id, ok := c.byPlayer[player]
	if !ok {
		c.mu.Unlock()
		return
	}
	ch := c.pending[id]
	c.remove(ch)
	c.mu.Unlock()

	counterpart := ch.Challenger
	if counterpart == player {
		counterpart = ch.Target
	}
	_ = c.reg.Transition(counterpart, registry.ChallengePending(id), registry.Available())
	_ = c.reg.Send(counterpart, &protocol.ErrorNotice{Text: c.cat.Text("notice.opponent_left", nil)})
	obslog.L().Info("challenge_abort",
		zap.String("challenge_id", id.String()),
		zap.String("player", player.String()))
}

// expire fires from the challenge timer: an implicit rejection.
func (c *Coordinator) expire(id uuid.UUID) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.remove(ch)
	c.mu.Unlock()

	c.release(ch)
	_ = c.reg.Send(ch.Challenger, &protocol.ChallengeResult{ChallengeID: id.String(), Accepted: false})
	_ = c.reg.Send(ch.Target, &protocol.ErrorNotice{Text: c.cat.Text("notice.challenge_expired", nil)})
	obslog.L().Info("challenge_expire", zap.String("challenge_id", id.String()))
}

// release frees both participants back to Available. Vanished players are
// already out of the registry and ignored.
func (c *Coordinator) release(ch *Challenge) {
	pending := registry.ChallengePending(ch.ID)
	_ = c.reg.Transition(ch.Challenger, pending, registry.Available())
	_ = c.reg.Transition(ch.Target, pending, registry.Available())
}

// remove must run under c.mu.
func (c *Coordinator) remove(ch *Challenge) {
	delete(c.pending, ch.ID)
	delete(c.byPlayer, ch.Challenger)
	delete(c.byPlayer, ch.Target)
	if ch.timer != nil {
		ch.timer.Stop()
	}
}

// PendingCount reports pending challenges for the status surface.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
