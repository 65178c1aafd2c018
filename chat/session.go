package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/edgeee/pinchat/store"
)

// State is the session screen the user is on.
type State int

const (
	StateUnauthenticated State = iota
	StateContacts
	StateInChannel
)

// ErrNotSignedIn is returned when a transition requires an authenticated
// session.
var ErrNotSignedIn = errors.New("not signed in")

// A Session owns the UI-independent chat state and drives the adapters. All
// mutations go through the named transitions; on failure no transition
// partially mutates session state. A Session is transient and client-local.
type Session struct {
	Accounts *AccountStore
	Messages *MessageStore
	Contacts *ContactDirectory
	Logger   *slog.Logger

	// Now is the clock; defaults to time.Now.
	Now func() time.Time

	mu          sync.Mutex
	state       State
	account     Account
	contacts    []string
	peer        string
	channelID   string
	msgs        []Message
	replyTo     string
	unsubscribe func()
	onMessages  func([]Message)
}

// NewSession returns an unauthenticated session over st.
func NewSession(st store.Store, logger *slog.Logger) *Session {
	return &Session{
		Accounts: NewAccountStore(st, logger),
		Messages: NewMessageStore(st, logger),
		Contacts: NewContactDirectory(st, logger),
		Logger:   logger,
		Now:      time.Now,
	}
}

// OnMessages sets the callback invoked with the sorted message list whenever
// the active channel changes. The callback runs on the subscription path and
// must not block.
func (s *Session) OnMessages(fn func([]Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessages = fn
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentAccount returns the authenticated account, zero if none.
func (s *Session) CurrentAccount() Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// RecentContacts returns the last refreshed contact list.
func (s *Session) RecentContacts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.contacts))
	copy(out, s.contacts)
	return out
}

// ActivePeer returns the selected counterpart PIN, empty outside a channel.
func (s *Session) ActivePeer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// ActiveMessages returns the in-memory message list for the active channel.
func (s *Session) ActiveMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// ReplyTarget returns the id of the message an in-progress reply refers to.
func (s *Session) ReplyTarget() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replyTo
}

// Signup creates the account and enters the contact list.
func (s *Session) Signup(ctx context.Context, pin, password, ttl string) error {
	account, err := s.Accounts.Create(ctx, pin, password, ttl)
	if err != nil {
		return err
	}
	s.enter(ctx, account)
	return nil
}

// Login authenticates and enters the contact list.
func (s *Session) Login(ctx context.Context, pin, password string) error {
	account, err := s.Accounts.Authenticate(ctx, pin, password)
	if err != nil {
		return err
	}
	s.enter(ctx, account)
	return nil
}

// Resume restores a session from a cached account, skipping authentication.
// Used with a verified resumable token.
func (s *Session) Resume(ctx context.Context, account Account) {
	s.enter(ctx, account)
}

func (s *Session) enter(ctx context.Context, account Account) {
	s.mu.Lock()
	s.state = StateContacts
	s.account = account
	s.contacts = nil
	s.mu.Unlock()

	// Contact discovery is best-effort on entry; absence of channels is not
	// an error and a failed scan leaves an empty list.
	if err := s.RefreshContacts(ctx); err != nil {
		s.Logger.Error("Could not load contacts", "error", err.Error())
	}
}

// RefreshContacts rescans the channel ids for the user's counterparties.
func (s *Session) RefreshContacts(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateUnauthenticated {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	pin := s.account.PIN
	s.mu.Unlock()

	contacts, err := s.Contacts.List(ctx, pin)
	if err != nil {
		return fmt.Errorf("refresh contacts: %w", err)
	}

	s.mu.Lock()
	s.contacts = contacts
	s.mu.Unlock()
	return nil
}

// SelectContact validates the target PIN, rejects self-chat, verifies the
// target account exists, subscribes to the pairwise channel and enters it.
func (s *Session) SelectContact(ctx context.Context, target string) error {
	s.mu.Lock()
	if s.state == StateUnauthenticated {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	own := s.account.PIN
	s.mu.Unlock()

	if err := s.Accounts.Val.PIN(target); err != nil {
		return err
	}
	if target == own {
		return ErrSelfChat
	}
	exists, err := s.Accounts.Exists(ctx, target)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	channelID := ChannelID(own, target)

	// The channel identity is committed before subscribing: the subscription
	// delivers its initial snapshot synchronously, and handleSnapshot only
	// accepts deliveries for the current channel. On failure the previous
	// state is restored in full.
	s.mu.Lock()
	savedState, savedPeer, savedChannel := s.state, s.peer, s.channelID
	savedMsgs, savedReply := s.msgs, s.replyTo
	s.state = StateInChannel
	s.peer = target
	s.channelID = channelID
	s.msgs = nil
	s.replyTo = ""
	s.mu.Unlock()

	unsubscribe, err := s.Messages.Subscribe(channelID, func(msgs []Message) {
		s.handleSnapshot(channelID, msgs)
	})
	if err != nil {
		s.mu.Lock()
		s.state, s.peer, s.channelID = savedState, savedPeer, savedChannel
		s.msgs, s.replyTo = savedMsgs, savedReply
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	prev := s.unsubscribe
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	if prev != nil {
		prev()
	}
	return nil
}

func (s *Session) handleSnapshot(channelID string, msgs []Message) {
	s.mu.Lock()
	if s.channelID != channelID {
		// Stale delivery from a channel being torn down.
		s.mu.Unlock()
		return
	}
	s.msgs = msgs
	fn := s.onMessages
	s.mu.Unlock()

	if fn != nil {
		fn(msgs)
	}
}

// SendMessage appends a message to the active channel. Blank text is a
// no-op. Expiry follows the sender's configured lifetime; the pending reply
// reference is attached and cleared on success.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s.mu.Lock()
	if s.state != StateInChannel {
		s.mu.Unlock()
		return errors.New("no channel selected")
	}
	account := s.account
	peer := s.peer
	channelID := s.channelID
	replyTo := s.replyTo
	s.mu.Unlock()

	lifetime, expires, err := ParseTTL(account.TTL)
	if err != nil {
		return fmt.Errorf("account lifetime: %w", err)
	}

	now := s.Now()
	msg := Message{
		From:      account.PIN,
		To:        peer,
		Text:      text,
		Timestamp: now,
		ReplyTo:   replyTo,
	}
	if expires {
		expiresAt := now.Add(lifetime)
		msg.ExpiresAt = &expiresAt
	}

	if _, err := s.Messages.Append(ctx, channelID, msg); err != nil {
		return err
	}

	s.mu.Lock()
	if s.channelID == channelID {
		s.replyTo = ""
	}
	s.mu.Unlock()
	return nil
}

// React toggles the user's reaction on a message: repeating the held emoji
// clears it, anything else sets or overwrites it.
func (s *Session) React(ctx context.Context, messageID, emoji string) error {
	s.mu.Lock()
	if s.state != StateInChannel {
		s.mu.Unlock()
		return errors.New("no channel selected")
	}
	own := s.account.PIN
	channelID := s.channelID
	held := ""
	for _, msg := range s.msgs {
		if msg.ID == messageID {
			held = msg.Reactions[own]
			break
		}
	}
	s.mu.Unlock()

	if held == emoji {
		emoji = ""
	}
	return s.Messages.SetReaction(ctx, channelID, messageID, own, emoji)
}

// SetReply marks a message as the in-progress reply target.
func (s *Session) SetReply(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyTo = messageID
}

// ClearReply discards the in-progress reply target.
func (s *Session) ClearReply() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyTo = ""
}

// Back leaves the channel, tears down its subscription and returns to the
// contact list.
func (s *Session) Back() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	if s.state == StateInChannel {
		s.state = StateContacts
	}
	s.peer = ""
	s.channelID = ""
	s.msgs = nil
	s.replyTo = ""
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Logout clears the session entirely and returns to Unauthenticated. Cached
// credentials are the caller's to discard.
func (s *Session) Logout() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.state = StateUnauthenticated
	s.account = Account{}
	s.contacts = nil
	s.peer = ""
	s.channelID = ""
	s.msgs = nil
	s.replyTo = ""
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
