// Package token issues and verifies the signed identity tokens carried in the
// jwtToken cookie. Signing keys come from configuration so tokens survive
// restarts; rotation keeps a bounded set of previous keys for verification.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// DefaultTTL is the fixed lifetime of an issued token.
const DefaultTTL = 1000 * time.Hour

// maxPreviousKeys bounds how many rotated-out keys still verify.
const maxPreviousKeys = 3

// Key is an HMAC secret and the id written to the token's kid header.
type Key struct {
	ID     string
	Secret []byte
}

// NewKey derives the key id from the secret so the same secret always maps to the same kid.
func NewKey(secret []byte) Key {
	sum := sha256.Sum256(secret)
	return Key{ID: hex.EncodeToString(sum[:4]), Secret: secret}
}

type keyring struct {
	current  Key
	previous []Key
}

func (kr *keyring) lookup(id string) (Key, bool) {
	if kr.current.ID == id {
		return kr.current, true
	}
	for _, k := range kr.previous {
		if k.ID == id {
			return k, true
		}
	}
	return Key{}, false
}

func (kr *keyring) rotated(next Key) *keyring {
	if next.ID == kr.current.ID {
		return kr
	}
	prev := []Key{kr.current}
	for _, k := range kr.previous {
		if k.ID != next.ID && len(prev) < maxPreviousKeys {
			prev = append(prev, k)
		}
	}
	return &keyring{current: next, previous: prev}
}

// Claims is the payload of an identity token.
type Claims struct {
	UserID uint `json:"userId"`
	jwt.RegisteredClaims
}

type Service struct {
	keys atomic.Pointer[keyring]
	ttl  time.Duration
	now  func() time.Time
}

type Option func(*Service)

func WithTTL(d time.Duration) Option { return func(s *Service) { s.ttl = d } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService signs with current and additionally accepts tokens signed with any of previous.
func NewService(current []byte, previous [][]byte, opts ...Option) (*Service, error) {
	if len(current) == 0 {
		return nil, errors.New("token: empty signing key")
	}
	s := &Service{ttl: DefaultTTL, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	kr := &keyring{current: NewKey(current)}
	for _, p := range previous {
		if len(p) == 0 || len(kr.previous) == maxPreviousKeys {
			continue
		}
		k := NewKey(p)
		if _, dup := kr.lookup(k.ID); !dup {
			kr.previous = append(kr.previous, k)
		}
	}
	s.keys.Store(kr)
	return s, nil
}

// Issue returns a token for userID valid for the service TTL.
func (s *Service) Issue(userID uint) (string, error) {
	kr := s.keys.Load()
	now := s.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = kr.current.ID
	signed, err := t.SignedString(kr.current.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify returns the user id carried by raw.
func (s *Service) Verify(raw string) (uint, error) {
	kr := s.keys.Load()
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		k, ok := kr.lookup(kid)
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return k.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == 0 {
		return 0, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	return claims.UserID, nil
}

// Rotate makes secret the signing key. The old key keeps verifying until it
// falls out of the previous-key window. Rotating to the current secret is a no-op.
func (s *Service) Rotate(secret []byte) error {
	if len(secret) == 0 {
		return errors.New("token: empty signing key")
	}
	next := NewKey(secret)
	for {
		old := s.keys.Load()
		if s.keys.CompareAndSwap(old, old.rotated(next)) {
			return nil
		}
	}
}

// CurrentKeyID reports the kid new tokens are signed with.
func (s *Service) CurrentKeyID() string {
	return s.keys.Load().current.ID
}
