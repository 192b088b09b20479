package challenge

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kapu/duel-arena-go/internal/msgcat"
	"github.com/kapu/duel-arena-go/internal/protocol"
	"github.com/kapu/duel-arena-go/internal/registry"
	"github.com/kapu/duel-arena-go/internal/session"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (f *fakeSender) Send(m protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeSender) byKind(k protocol.Kind) []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Message
	for _, m := range f.msgs {
		if m.Kind() == k {
			out = append(out, m)
		}
	}
	return out
}

func newCoordinator(t *testing.T, ttl time.Duration) (*Coordinator, *registry.Registry) {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	reg := registry.New()
	return New(reg, session.NewManager(reg), cat, ttl), reg
}

func TestIssueDeliversNotice(t *testing.T) {
	c, reg := newCoordinator(t, 0)
	sa, sb := &fakeSender{}, &fakeSender{}
	a := reg.Register("Alice", sa)
	b := reg.Register("Bob", sb)

	ch, err := c.Issue(a, b)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for _, id := range []uuid.UUID{a, b} {
		st, _ := reg.Get(id)
		if st != registry.ChallengePending(ch.ID) {
			t.Fatalf("player %s not pinned: %+v", id, st)
		}
	}
	notices := sb.byKind(protocol.KindChallengeNotice)
	if len(notices) != 1 {
		t.Fatalf("target got %d notices", len(notices))
	}
	if n := notices[0].(*protocol.ChallengeNotice); n.From != a.String() || n.FromName != "Alice" || n.ChallengeID != ch.ID.String() {
		t.Fatalf("wrong notice: %+v", n)
	}
	if c.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d", c.PendingCount())
	}
}

func TestIssueSelfChallenge(t *testing.T) {
	c, reg := newCoordinator(t, 0)
	a := reg.Register("Alice", &fakeSender{})
	if _, err := c.Issue(a, a); !errors.Is(err, ErrSelfChallenge) {
		t.Fatalf("expected ErrSelfChallenge, got %v", err)
	}
}

func TestIssueBusyTargetFailsFast(t *testing.T) {
	c, reg := newCoordinator(t, 0)
	a := reg.Register("Alice", &fakeSender{})
	b := reg.Register("Bob", &fakeSender{})
	if err := reg.Transition(b, registry.Available(), registry.InGame(uuid.New())); err != nil {
		t.Fatalf("pin b: %v", err)
	}

	if _, err := c.Issue(a, b); !errors.Is(err, ErrTargetUnavailable) {
		t.Fatalf("expected ErrTargetUnavailable, got %v", err)
	}
	// no state leaked onto the challenger
	st, _ := reg.Get(a)
	if st != registry.Available() {
		t.Fatalf("challenger state changed: %+v", st)
	}
	if c.PendingCount() != 0 {
		t.Fatalf("phantom pending challenge")
	}
}

func TestIssueBusyChallengerRollsBackTarget(t *testing.T) {
	c, reg := newCoordinator(t, 0)
	a := reg.Register("Alice", &fakeSender{})
	b := reg.Register("Bob", &fakeSender{})
	if err := reg.Transition(a, registry.Available(), registry.InGame(uuid.New())); err != nil {
		t.Fatalf("pin a: %v", err)
	}

	if _, err := c.Issue(a, b); !errors.Is(err, ErrChallengerBusy) {
		t.Fatalf("expected ErrChallengerBusy, got %v", err)
	}
	st, _ := reg.Get(b)
	if st != registry.Available() {
		t.Fatalf("target not rolled back: %+v", st)
	}
}

// Concurrent challenges against the same target: exactly one wins, the rest
// fail with ErrTargetUnavailable.
func TestConcurrentIssueSingleWinner(t *testing.T) {
	c, reg := newCoordinator(t, 0)
	target := reg.Register("Target", &fakeSender{})

	const challengers = 32
	ids := make([]uuid.UUID, challengers)
	for i := range ids {
		ids[i] = reg.Register("C", &fakeSender{})
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners, unavailable int
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := c.Issue(id, target)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrTargetUnavailable):
				unavailable++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if winners != 1 || unavailable != challengers-1 {
		t.Fatalf("winners=%d unavailable=%d", winners, unavailable)
	}
	st, _ := reg.Get(target)
	if st.Phase != registry.PhaseChallengePending {
		t.Fatalf("target not pinned after race: %+v", st)
	}
}

func TestRespondAcceptStartsSession(t *testing.T) {
	c, reg := newCoordinator(t, 0)
	sa, sb := &fakeSender{}, &fakeSender{}
	a := reg.Register("Alice", sa)
	b := reg.Register("Bob", sb)
	ch, err := c.Issue(a, b)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := c.Respond(b, ch.ID, true); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	for _, id := range []uuid.UUID{a, b} {
		st, _ := reg.Get(id)
		if st.Phase != registry.PhaseInGame {
			t.Fatalf("player %s not InGame: %+v", id, st)
		}
	}
	if got := sa.byKind(protocol.KindSessionStart); len(got) != 1 || !got[0].(*protocol.SessionStart).YourTurn {
		t.Fatalf("challenger SessionStart wrong: %+v", got)
	}
	if got := sb.byKind(protocol.KindSessionStart); len(got) != 1 || got[0].(*protocol.SessionStart).YourTurn {
		t.Fatalf("target SessionStart wrong: %+v", got)
	}
	if c.PendingCount() != 0 {
		t.Fatalf("challenge survived acceptance")
	}
}

func TestRespondRejectFreesBoth(t *testing.T) {
	c, reg := newCoordinator(t, 0)
	sa := &fakeSender{}
	a := reg.Register("Alice", sa)
	b := reg.Register("Bob", &fakeSender{})
	ch, err := c.Issue(a, b)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := c.Respond(b, ch.ID, false); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	for _, id := range []uuid.UUID{a, b} {
		st, _ := reg.Get(id)
		if st != registry.Available() {
			t.Fatalf("player %s not freed: %+v", id, st)
		}
	}
	results := sa.byKind(protocol.KindChallengeResult)
	if len(results) != 1 || results[0].(*protocol.ChallengeResult).Accepted {
		t.Fatalf("challenger result wrong: %+v", results)
	}
}

func TestRespondWrongResponder(t *testing.T) {
	c, reg := newCoordinator(t, 0)
	a := reg.Register("Alice", &fakeSender{})
	b := reg.Register("Bob", &fakeSender{})
	ch, err := c.Issue(a, b)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// the challenger cannot accept their own challenge
	if err := c.Respond(a, ch.ID, true); !errors.Is(err, ErrNotYourChallenge) {
		t.Fatalf("expected ErrNotYourChallenge, got %v", err)
	}
	if c.PendingCount() != 1 {
		t.Fatalf("challenge vanished after bad responder")
	}
}

func TestRespondUnknownChallenge(t *testing.T) {
	c, reg := newCoordinator(t, 0)
	b := reg.Register("Bob", &fakeSender{})
	if err := c.Respond(b, uuid.New(), true); !errors.Is(err, ErrUnknownChallenge) {
		t.Fatalf("expected ErrUnknownChallenge, got %v", err)
	}
}

func TestExpireActsAsRejection(t *testing.T) {
	c, reg := newCoordinator(t, 30*time.Millisecond)
	sa, sb := &fakeSender{}, &fakeSender{}
	a := reg.Register("Alice", sa)
	b := reg.Register("Bob", sb)
	if _, err := c.Issue(a, b); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.PendingCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.PendingCount() != 0 {
		t.Fatalf("challenge never expired")
	}
	for _, id := range []uuid.UUID{a, b} {
		st, _ := reg.Get(id)
		if st != registry.Available() {
			t.Fatalf("player %s not freed by expiry: %+v", id, st)
		}
	}
	results := sa.byKind(protocol.KindChallengeResult)
	if len(results) != 1 || results[0].(*protocol.ChallengeResult).Accepted {
		t.Fatalf("challenger expiry result wrong: %+v", results)
	}
	if got := sb.byKind(protocol.KindErrorNotice); len(got) != 1 {
		t.Fatalf("target expiry notice wrong: %+v", got)
	}
}

// Issuing can race either participant's connection teardown. No interleaving
// may leave a challenge pinned to a removed player or the other participant
// stuck in ChallengePending.
func TestIssueRacesDisconnectTeardown(t *testing.T) {
	for _, role := range []string{"challenger", "target"} {
		t.Run(role, func(t *testing.T) {
			for i := 0; i < 300; i++ {
				c, reg := newCoordinator(t, 0)
				a := reg.Register("Alice", &fakeSender{})
				b := reg.Register("Bob", &fakeSender{})
				leaver, survivor := b, a
				if role == "challenger" {
					leaver, survivor = a, b
				}

				var wg sync.WaitGroup
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, _ = c.Issue(a, b)
				}()
				go func() {
					defer wg.Done()
					// the leaver's worker cascade, including the post-removal pass
					c.AbortForDisconnect(leaver)
					reg.Remove(leaver)
					c.AbortForDisconnect(leaver)
				}()
				wg.Wait()

				if n := c.PendingCount(); n != 0 {
					t.Fatalf("iteration %d: %d challenges reference a removed player", i, n)
				}
				st, err := reg.Get(survivor)
				if err != nil {
					t.Fatalf("iteration %d: survivor vanished: %v", i, err)
				}
				if st != registry.Available() {
					t.Fatalf("iteration %d: survivor stuck: %+v", i, st)
				}
			}
		})
	}
}

func TestAbortForDisconnect(t *testing.T) {
	for _, role := range []string{"challenger", "target"} {
		t.Run(role, func(t *testing.T) {
			c, reg := newCoordinator(t, 0)
			sa, sb := &fakeSender{}, &fakeSender{}
			a := reg.Register("Alice", sa)
			b := reg.Register("Bob", sb)
			if _, err := c.Issue(a, b); err != nil {
				t.Fatalf("Issue: %v", err)
			}

			leaver, counterpart, counterSender := a, b, sb
			if role == "target" {
				leaver, counterpart, counterSender = b, a, sa
			}
			c.AbortForDisconnect(leaver)
			reg.Remove(leaver)

			st, _ := reg.Get(counterpart)
			if st != registry.Available() {
				t.Fatalf("counterpart not freed: %+v", st)
			}
			if got := counterSender.byKind(protocol.KindErrorNotice); len(got) != 1 {
				t.Fatalf("counterpart got %d ErrorNotice, want exactly 1", len(got))
			}
			if c.PendingCount() != 0 {
				t.Fatalf("challenge survived disconnect")
			}
			// repeated abort is inert
			c.AbortForDisconnect(leaver)
			if got := counterSender.byKind(protocol.KindErrorNotice); len(got) != 1 {
				t.Fatalf("duplicate notice after second abort")
			}
		})
	}
}
