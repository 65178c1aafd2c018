package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"

	"github.com/edgeee/pinchat/chat/validate"
	"github.com/edgeee/pinchat/store/memory"
)

// fakeClock hands out strictly increasing timestamps so message order is
// deterministic across sessions sharing it.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestSession(t *testing.T, st *memory.Memory, clock *fakeClock) *Session {
	t.Helper()
	s := NewSession(st, slogt.New(t))
	s.Now = clock.Now
	return s
}

func signup(t *testing.T, s *Session, pin, ttl string) {
	t.Helper()
	if err := s.Signup(context.Background(), pin, "hunter2", ttl); err != nil {
		t.Fatalf("Signup(%s) error = %v", pin, err)
	}
}

func TestSession_SignupLogin(t *testing.T) {
	ctx := context.Background()
	st := memory.New(slogt.New(t))
	clock := newFakeClock()

	s := newTestSession(t, st, clock)
	if s.State() != StateUnauthenticated {
		t.Fatalf("Fresh session state = %v", s.State())
	}

	signup(t, s, "111111", TTLDay)
	if s.State() != StateContacts {
		t.Errorf("State after signup = %v, want StateContacts", s.State())
	}
	if got := s.CurrentAccount(); got.PIN != "111111" || got.TTL != TTLDay {
		t.Errorf("Account after signup = %+v", got)
	}

	// Failed login must not touch the session's state.
	other := newTestSession(t, st, clock)
	if err := other.Login(ctx, "111111", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login error = %v, want ErrInvalidCredentials", err)
	}
	if other.State() != StateUnauthenticated {
		t.Errorf("State after failed login = %v", other.State())
	}

	if err := other.Login(ctx, "111111", "hunter2"); err != nil {
		t.Fatalf("Login error = %v", err)
	}
	if other.State() != StateContacts {
		t.Errorf("State after login = %v, want StateContacts", other.State())
	}
}

func TestSession_SelectContact(t *testing.T) {
	ctx := context.Background()
	st := memory.New(slogt.New(t))
	clock := newFakeClock()

	alice := newTestSession(t, st, clock)
	signup(t, alice, "111111", TTLDay)
	bob := newTestSession(t, st, clock)
	signup(t, bob, "222222", TTLNever)

	tests := []struct {
		name    string
		target  string
		wantErr error
		wantVal bool
	}{
		{name: "OK", target: "222222"},
		{name: "Self", target: "111111", wantErr: ErrSelfChat},
		{name: "Unknown", target: "999999", wantErr: ErrNotFound},
		{name: "BadShape", target: "22", wantVal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := alice.SelectContact(ctx, tt.target)
			defer alice.Back()

			if tt.wantVal {
				var verr *validate.Error
				if !errors.As(err, &verr) {
					t.Fatalf("SelectContact error = %v, want validation error", err)
				}
				return
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SelectContact error = %v, want %v", err, tt.wantErr)
				}
				if alice.State() != StateContacts {
					t.Errorf("Failed transition left state %v", alice.State())
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if alice.State() != StateInChannel || alice.ActivePeer() != tt.target {
				t.Errorf("State %v peer %q after select", alice.State(), alice.ActivePeer())
			}
		})
	}
}

func TestSession_SendMessage(t *testing.T) {
	ctx := context.Background()
	st := memory.New(slogt.New(t))
	clock := newFakeClock()

	alice := newTestSession(t, st, clock)
	signup(t, alice, "111111", TTLDay)
	bob := newTestSession(t, st, clock)
	signup(t, bob, "222222", TTLNever)

	if err := alice.SelectContact(ctx, "222222"); err != nil {
		t.Fatal(err)
	}

	// Whitespace-only input is a silent no-op.
	if err := alice.SendMessage(ctx, "   \t"); err != nil {
		t.Fatal(err)
	}
	if got := alice.ActiveMessages(); len(got) != 0 {
		t.Fatalf("Blank send stored a message: %v", got)
	}

	if err := alice.SendMessage(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	got := alice.ActiveMessages()
	if len(got) != 1 {
		t.Fatalf("Got %d messages, want 1", len(got))
	}
	msg := got[0]
	if msg.From != "111111" || msg.To != "222222" || msg.Text != "hello" {
		t.Errorf("Stored message = %+v", msg)
	}
	if msg.ExpiresAt == nil {
		t.Fatal("ttl 24h message has no expiry")
	}
	if want := msg.Timestamp.Add(24 * time.Hour); !msg.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", msg.ExpiresAt, want)
	}

	// The subscription is live on both ends.
	if err := bob.SelectContact(ctx, "111111"); err != nil {
		t.Fatal(err)
	}
	if got := bob.ActiveMessages(); len(got) != 1 || got[0].Text != "hello" {
		t.Errorf("Peer sees %v", got)
	}

	// ttl "never" produces no expiry.
	if err := bob.SendMessage(ctx, "hi back"); err != nil {
		t.Fatal(err)
	}
	got = alice.ActiveMessages()
	if len(got) != 2 {
		t.Fatalf("Got %d messages, want 2", len(got))
	}
	if got[1].Text != "hi back" {
		t.Errorf("Messages out of order: %v", got)
	}
	if got[1].ExpiresAt != nil {
		t.Errorf("ttl never message has expiry %v", got[1].ExpiresAt)
	}
}

// Entering a channel must surface its existing history immediately: the
// subscription's first snapshot arrives while SelectContact is still
// committing, and it must not be discarded.
func TestSession_SelectContactLoadsHistory(t *testing.T) {
	ctx := context.Background()
	st := memory.New(slogt.New(t))
	clock := newFakeClock()

	alice := newTestSession(t, st, clock)
	signup(t, alice, "111111", TTLNever)
	bob := newTestSession(t, st, clock)
	signup(t, bob, "222222", TTLNever)
	carol := newTestSession(t, st, clock)
	signup(t, carol, "333333", TTLNever)

	if err := alice.SelectContact(ctx, "222222"); err != nil {
		t.Fatal(err)
	}
	if err := alice.SendMessage(ctx, "hello"); err != nil {
		t.Fatal(err)
	}

	// Bob opens the channel after the fact and sees the history at once.
	if err := bob.SelectContact(ctx, "111111"); err != nil {
		t.Fatal(err)
	}
	got := bob.ActiveMessages()
	if len(got) != 1 || got[0].Text != "hello" {
		t.Fatalf("Messages right after select = %v, want [hello]", got)
	}

	// Switching to an empty channel must not carry the old list over.
	if err := bob.SelectContact(ctx, "333333"); err != nil {
		t.Fatal(err)
	}
	if got := bob.ActiveMessages(); len(got) != 0 {
		t.Errorf("Messages after switching channel = %v, want none", got)
	}

	// A failed switch leaves the current channel fully intact.
	if err := bob.SelectContact(ctx, "999999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SelectContact error = %v, want ErrNotFound", err)
	}
	if bob.State() != StateInChannel || bob.ActivePeer() != "333333" {
		t.Errorf("Failed switch left state %v peer %q", bob.State(), bob.ActivePeer())
	}
	if err := carol.SelectContact(ctx, "222222"); err != nil {
		t.Fatal(err)
	}
	if err := carol.SendMessage(ctx, "still live"); err != nil {
		t.Fatal(err)
	}
	if got := bob.ActiveMessages(); len(got) != 1 || got[0].Text != "still live" {
		t.Errorf("Subscription after failed switch sees %v", got)
	}
}

func TestSession_Reply(t *testing.T) {
	ctx := context.Background()
	st := memory.New(slogt.New(t))
	clock := newFakeClock()

	alice := newTestSession(t, st, clock)
	signup(t, alice, "111111", TTLNever)
	bob := newTestSession(t, st, clock)
	signup(t, bob, "222222", TTLNever)

	if err := alice.SelectContact(ctx, "222222"); err != nil {
		t.Fatal(err)
	}
	if err := alice.SendMessage(ctx, "original"); err != nil {
		t.Fatal(err)
	}
	original := alice.ActiveMessages()[0]

	alice.SetReply(original.ID)
	if alice.ReplyTarget() != original.ID {
		t.Fatalf("ReplyTarget = %q", alice.ReplyTarget())
	}
	if err := alice.SendMessage(ctx, "the reply"); err != nil {
		t.Fatal(err)
	}

	got := alice.ActiveMessages()
	if len(got) != 2 {
		t.Fatalf("Got %d messages", len(got))
	}
	if got[1].ReplyTo != original.ID {
		t.Errorf("ReplyTo = %q, want %q", got[1].ReplyTo, original.ID)
	}
	// Pending reply clears after a successful send.
	if alice.ReplyTarget() != "" {
		t.Errorf("ReplyTarget after send = %q", alice.ReplyTarget())
	}
}

func TestSession_ReactToggle(t *testing.T) {
	ctx := context.Background()
	st := memory.New(slogt.New(t))
	clock := newFakeClock()

	alice := newTestSession(t, st, clock)
	signup(t, alice, "111111", TTLNever)
	bob := newTestSession(t, st, clock)
	signup(t, bob, "222222", TTLNever)

	if err := alice.SelectContact(ctx, "222222"); err != nil {
		t.Fatal(err)
	}
	if err := alice.SendMessage(ctx, "react to me"); err != nil {
		t.Fatal(err)
	}
	id := alice.ActiveMessages()[0].ID

	if err := bob.SelectContact(ctx, "111111"); err != nil {
		t.Fatal(err)
	}

	// Set.
	if err := bob.React(ctx, id, "❤️"); err != nil {
		t.Fatal(err)
	}
	if got := bob.ActiveMessages()[0].Reactions["222222"]; got != "❤️" {
		t.Fatalf("Reaction = %q", got)
	}

	// Different emoji overwrites, count stays at one.
	if err := bob.React(ctx, id, "😂"); err != nil {
		t.Fatal(err)
	}
	reactions := bob.ActiveMessages()[0].Reactions
	if len(reactions) != 1 || reactions["222222"] != "😂" {
		t.Fatalf("Reactions = %v", reactions)
	}

	// Same emoji toggles off.
	if err := bob.React(ctx, id, "😂"); err != nil {
		t.Fatal(err)
	}
	if reactions := bob.ActiveMessages()[0].Reactions; len(reactions) != 0 {
		t.Fatalf("Reactions after toggle = %v", reactions)
	}
}

func TestSession_BackAndLogout(t *testing.T) {
	ctx := context.Background()
	st := memory.New(slogt.New(t))
	clock := newFakeClock()

	alice := newTestSession(t, st, clock)
	signup(t, alice, "111111", TTLNever)
	bob := newTestSession(t, st, clock)
	signup(t, bob, "222222", TTLNever)

	if err := alice.SelectContact(ctx, "222222"); err != nil {
		t.Fatal(err)
	}
	alice.SetReply("some-id")
	alice.Back()

	if alice.State() != StateContacts {
		t.Errorf("State after back = %v", alice.State())
	}
	if alice.ActivePeer() != "" || alice.ReplyTarget() != "" {
		t.Errorf("Back left peer %q reply %q", alice.ActivePeer(), alice.ReplyTarget())
	}

	// The torn-down subscription no longer feeds the session.
	if err := bob.SelectContact(ctx, "111111"); err != nil {
		t.Fatal(err)
	}
	if err := bob.SendMessage(ctx, "anyone there?"); err != nil {
		t.Fatal(err)
	}
	if got := alice.ActiveMessages(); len(got) != 0 {
		t.Errorf("Messages leaked into a left channel: %v", got)
	}

	alice.Logout()
	if alice.State() != StateUnauthenticated {
		t.Errorf("State after logout = %v", alice.State())
	}
	if alice.CurrentAccount() != (Account{}) {
		t.Errorf("Account survived logout: %+v", alice.CurrentAccount())
	}
}

func TestSession_ContactsRefresh(t *testing.T) {
	ctx := context.Background()
	st := memory.New(slogt.New(t))
	clock := newFakeClock()

	alice := newTestSession(t, st, clock)
	signup(t, alice, "111111", TTLNever)
	bob := newTestSession(t, st, clock)
	signup(t, bob, "222222", TTLNever)

	if len(alice.RecentContacts()) != 0 {
		t.Fatalf("Fresh account has contacts: %v", alice.RecentContacts())
	}

	if err := bob.SelectContact(ctx, "111111"); err != nil {
		t.Fatal(err)
	}
	if err := bob.SendMessage(ctx, "hello"); err != nil {
		t.Fatal(err)
	}

	if err := alice.RefreshContacts(ctx); err != nil {
		t.Fatal(err)
	}
	contacts := alice.RecentContacts()
	if len(contacts) != 1 || contacts[0] != "222222" {
		t.Errorf("Contacts = %v, want [222222]", contacts)
	}
}

// The full lifecycle: signup, send, expiry, sweep.
func TestSession_EndToEndExpiry(t *testing.T) {
	ctx := context.Background()
	st := memory.New(slogt.New(t))
	clock := newFakeClock()

	alice := newTestSession(t, st, clock)
	signup(t, alice, "111111", TTLDay)
	bob := newTestSession(t, st, clock)
	signup(t, bob, "222222", TTLNever)

	if err := alice.SelectContact(ctx, "222222"); err != nil {
		t.Fatal(err)
	}
	if err := alice.SendMessage(ctx, "hello"); err != nil {
		t.Fatal(err)
	}

	msgs := NewMessageStore(st, slogt.New(t))
	list, err := msgs.List(ctx, "111111_222222")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Text != "hello" {
		t.Fatalf("List = %v", list)
	}
	if list[0].ExpiresAt == nil || !list[0].ExpiresAt.Equal(list[0].Timestamp.Add(24*time.Hour)) {
		t.Fatalf("ExpiresAt = %v", list[0].ExpiresAt)
	}

	// Jump the clock past expiry and run one sweep.
	expiresAt := *list[0].ExpiresAt
	sweeper := NewSweeper(st, slogt.New(t))
	sweeper.Now = func() time.Time { return expiresAt.Add(time.Second) }
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatal(err)
	}

	list, err = msgs.List(ctx, "111111_222222")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("List after sweep = %v, want empty", list)
	}

	// The deletion surfaced through the live subscription.
	if got := alice.ActiveMessages(); len(got) != 0 {
		t.Errorf("Session still shows %v", got)
	}
}
