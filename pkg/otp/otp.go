// Package otp keeps short-lived verification tokens for operations that need
// a second confirmation before they are carried out.
//
// A Store is created by the caller and handed to whatever needs it; there is
// no package-level state. Tokens expire after the store's TTL and are removed
// either when touched after expiry or by an explicit Sweep.
package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnknownToken     = errors.New("unknown verification token")
	ErrExpired          = errors.New("verification token expired")
	ErrInvalidCode      = errors.New("invalid verification code")
	ErrTooManyAttempts  = errors.New("too many failed verification attempts")
	ErrNotVerified      = errors.New("verification token has not been verified")
	ErrWrongOperation   = errors.New("verification token was issued for a different operation")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrTokenInUse       = errors.New("verification token is already in use")
)

const (
	codeDigits  = 6
	maxAttempts = 5
)

// Challenge is handed to the requester; Code goes to the member out of band.
type Challenge struct {
	Token     string    `json:"token"`
	Operation Operation `json:"operation"`
	ExpiresAt time.Time `json:"expires_at"`
	Code      string    `json:"-"`
}

type entry struct {
	op       Operation
	codeHash []byte
	expires  time.Time
	verified bool
	reserved bool
	attempts int
}

type Store struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	code   func() (string, error)
	tokens map[string]*entry
}

type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Store) { s.code = gen }
}

func NewStore(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		ttl:    ttl,
		now:    time.Now,
		code:   randomCode,
		tokens: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func randomCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}

// Issue creates a token for op and returns it together with the plain code.
func (s *Store) Issue(op Operation) (Challenge, error) {
	if !op.Valid() {
		return Challenge{}, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	code, err := s.code()
	if err != nil {
		return Challenge{}, fmt.Errorf("failed to generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return Challenge{}, fmt.Errorf("failed to hash code: %w", err)
	}

	token := uuid.NewString()
	expires := s.now().Add(s.ttl)

	s.mu.Lock()
	s.tokens[token] = &entry{op: op, codeHash: hash, expires: expires}
	s.mu.Unlock()

	return Challenge{Token: token, Operation: op, ExpiresAt: expires, Code: code}, nil
}

// lookup returns the live entry for token, dropping it if it has expired.
// Callers hold s.mu.
func (s *Store) lookup(token string) (*entry, error) {
	e, ok := s.tokens[token]
	if !ok {
		return nil, ErrUnknownToken
	}
	if !s.now().Before(e.expires) {
		delete(s.tokens, token)
		return nil, ErrExpired
	}
	return e, nil
}

// Verify checks code against the token. A token is discarded after
// maxAttempts wrong codes.
func (s *Store) Verify(token, code string) error {
	s.mu.Lock()
	e, err := s.lookup(token)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	hash := e.codeHash
	s.mu.Unlock()

	match := bcrypt.CompareHashAndPassword(hash, []byte(code)) == nil

	s.mu.Lock()
	defer s.mu.Unlock()
	e, err = s.lookup(token)
	if err != nil {
		return err
	}
	if !match {
		e.attempts++
		if e.attempts >= maxAttempts {
			delete(s.tokens, token)
			return ErrTooManyAttempts
		}
		return ErrInvalidCode
	}
	e.verified = true
	return nil
}

// Reserve claims a verified token for op without spending it. The caller
// settles it with Spend once the operation has succeeded or Release when it
// failed. A reserved token cannot be reserved again.
func (s *Store) Reserve(token string, op Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(token)
	if err != nil {
		return err
	}
	if e.op != op {
		return fmt.Errorf("%w: issued for %s, used for %s", ErrWrongOperation, e.op, op)
	}
	if !e.verified {
		return ErrNotVerified
	}
	if e.reserved {
		return ErrTokenInUse
	}
	e.reserved = true
	return nil
}

// Spend removes a reserved token for good.
func (s *Store) Spend(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// Release hands a reserved token back so the operation can be retried.
func (s *Store) Release(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.tokens[token]; ok {
		e.reserved = false
	}
}

// Consume spends a verified token on op. A token can be consumed once.
func (s *Store) Consume(token string, op Operation) error {
	if err := s.Reserve(token, op); err != nil {
		return err
	}
	s.Spend(token)
	return nil
}

// Sweep drops every expired token and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, e := range s.tokens {
		if !now.Before(e.expires) {
			delete(s.tokens, token)
			removed++
		}
	}
	return removed
}

// Len is the number of tokens currently held, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
