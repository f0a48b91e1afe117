// Package auth stores the bearer token between invocations and reads the few
// claims the client shows to the user.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken means nobody is logged in.
var ErrNoToken = errors.New("not logged in (run guardrev login)")

const tokenFile = "token"

// Store keeps the token in a file under dir.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on Save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path is the token file location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, tokenFile)
}

// Load returns the saved token. A token that is not a well-formed JWT is removed
// and reported as ErrNoToken.
func (s *Store) Load() (string, error) {
	raw, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", ErrNoToken
	}
	if _, err := Parse(token); err != nil {
		_ = s.Clear()
		return "", ErrNoToken
	}
	return token, nil
}

// Save writes the token readable by the owner only.
func (s *Store) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("saving token: empty token")
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(s.Path(), []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	return nil
}

// Clear removes the saved token. Clearing an absent token is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token: %w", err)
	}
	return nil
}

// Claims are the token fields shown in the UI.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry before now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Initial is the single upper-case letter used as the avatar.
func (c Claims) Initial() string {
	r, _ := utf8.DecodeRuneInString(c.Subject)
	if r == utf8.RuneError {
		return "?"
	}
	return string(unicode.ToUpper(r))
}

// Parse decodes the claims without verifying the signature; the service does
// that on every request.
func Parse(token string) (Claims, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Claims{}, fmt.Errorf("parsing token: %w", err)
	}
	c := Claims{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		c.ExpiresAt = claims.ExpiresAt.Time
	}
	return c, nil
}
