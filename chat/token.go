package chat

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoCachedSession is returned by Load when no resumable session exists.
var ErrNoCachedSession = errors.New("no cached session")

// sessionClaims carries the cached account fields inside the token.
type sessionClaims struct {
	jwt.RegisteredClaims
	PIN string `json:"pin"`
	TTL string `json:"ttl"`
}

// A SessionCache persists a signed resumable session token so a restarted
// client can skip re-login. It caches only the account pin and ttl, never
// the password. Signing keeps the cached file tamper-evident; it is not an
// authentication mechanism.
type SessionCache struct {
	Path     string
	Secret   []byte
	Validity time.Duration
}

// Save signs the account into a token and writes it to the cache file.
func (c *SessionCache) Save(account Account) error {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(c.Validity)),
		},
		PIN: account.PIN,
		TTL: account.TTL,
	})
	signed, err := token.SignedString(c.Secret)
	if err != nil {
		return fmt.Errorf("sign session token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.Path), 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(c.Path, []byte(signed), 0o600); err != nil {
		return fmt.Errorf("write session cache: %w", err)
	}
	return nil
}

// Load reads and verifies the cached token, returning the account it
// carries. A missing, expired or tampered token yields ErrNoCachedSession.
func (c *SessionCache) Load() (Account, error) {
	raw, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Account{}, ErrNoCachedSession
		}
		return Account{}, fmt.Errorf("read session cache: %w", err)
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(string(raw), claims, func(t *jwt.Token) (interface{}, error) {
		return c.Secret, nil
	})
	if err != nil || !token.Valid {
		return Account{}, ErrNoCachedSession
	}

	return Account{PIN: claims.PIN, TTL: claims.TTL}, nil
}

// Clear discards the cached session. Clearing an absent cache is a no-op.
func (c *SessionCache) Clear() error {
	if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session cache: %w", err)
	}
	return nil
}
