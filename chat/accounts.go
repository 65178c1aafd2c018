package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edgeee/pinchat/chat/validate"
	"github.com/edgeee/pinchat/store"
)

const usersPath = "users"

// An AccountStore creates and looks up user records under users/{pin}.
type AccountStore struct {
	Store  store.Store
	Logger *slog.Logger
	Val    *validate.Validator
}

// NewAccountStore returns an AccountStore backed by st.
func NewAccountStore(st store.Store, logger *slog.Logger) *AccountStore {
	return &AccountStore{Store: st, Logger: logger, Val: validate.New()}
}

// Create validates the input, rejects an already-taken PIN with
// ErrDuplicatePIN and persists the new account.
func (s *AccountStore) Create(ctx context.Context, pin, password, ttl string) (Account, error) {
	if err := s.Val.Credentials(pin, password); err != nil {
		return Account{}, err
	}
	if _, _, err := ParseTTL(ttl); err != nil {
		return Account{}, &validate.Error{Field: "ttl", Reason: "Message lifetime must be 24h, never or an hour count"}
	}

	existing, err := s.Store.ReadOnce(ctx, store.Join(usersPath, pin))
	if err != nil {
		return Account{}, fmt.Errorf("look up pin: %w", err)
	}
	if existing != nil {
		return Account{}, ErrDuplicatePIN
	}

	doc := accountDoc{Password: password, TTL: ttl}
	if err := s.Store.Write(ctx, store.Join(usersPath, pin), doc); err != nil {
		return Account{}, fmt.Errorf("persist account: %w", err)
	}

	s.Logger.Info("Account created", "pin", pin, "ttl", ttl)
	return doc.Account(pin), nil
}

// Authenticate returns the account for pin if password matches. Unknown PINs
// fail with ErrNotFound, a mismatch with ErrInvalidCredentials.
func (s *AccountStore) Authenticate(ctx context.Context, pin, password string) (Account, error) {
	if err := s.Val.Credentials(pin, password); err != nil {
		return Account{}, err
	}

	snap, err := s.Store.ReadOnce(ctx, store.Join(usersPath, pin))
	if err != nil {
		return Account{}, fmt.Errorf("look up pin: %w", err)
	}
	if snap == nil {
		return Account{}, ErrNotFound
	}

	var doc accountDoc
	if err := store.Decode(snap, &doc); err != nil {
		return Account{}, fmt.Errorf("decode account: %w", err)
	}
	if doc.Password != password {
		return Account{}, ErrInvalidCredentials
	}

	return doc.Account(pin), nil
}

// Exists reports whether an account is registered at pin.
func (s *AccountStore) Exists(ctx context.Context, pin string) (bool, error) {
	snap, err := s.Store.ReadOnce(ctx, store.Join(usersPath, pin))
	if err != nil {
		return false, fmt.Errorf("look up pin: %w", err)
	}
	return snap != nil, nil
}
