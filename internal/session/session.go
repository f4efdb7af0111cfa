// Package session holds the authenticated identity and keeps it in durable storage.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pellicule/internal/models"
	"pellicule/internal/observability"
	"pellicule/internal/storage"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotLoggedIn is returned by operations that require an identity.
var ErrNotLoggedIn = errors.New("session: not logged in")

// Authenticator exchanges credentials for an identity.
type Authenticator interface {
	Login(ctx context.Context, creds models.Credentials) (*models.Identity, error)
}

// Listener receives the new identity after each change, or nil after logout.
type Listener func(identity *models.Identity)

// Store is the session state holder. One Store is shared by every view of a
// process and passed to them explicitly.
type Store struct {
	slots storage.Store
	auth  Authenticator
	log   *observability.Logger
	now   func() time.Time

	mu      sync.RWMutex
	current *models.Identity

	subMu     sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for rehydration warnings.
func WithLogger(l *observability.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore builds a Store and rehydrates it from the identity slot. A persisted
// record that cannot be used is discarded and the store starts logged out.
func NewStore(ctx context.Context, slots storage.Store, auth Authenticator, opts ...Option) (*Store, error) {
	s := &Store{
		slots:     slots,
		auth:      auth,
		log:       observability.GlobalLogger,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := slots.Get(ctx, storage.SlotIdentity)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read identity slot: %w", err)
	}

	identity, reason := s.decode(raw)
	if identity == nil {
		s.log.WarnContext(ctx, "discarding persisted identity", slog.String("reason", reason))
		if err := slots.Delete(ctx, storage.SlotIdentity); err != nil {
			s.log.WarnContext(ctx, "failed to clear identity slot", slog.String("error", err.Error()))
		}
		return s, nil
	}
	s.current = identity
	return s, nil
}

func (s *Store) decode(raw []byte) (*models.Identity, string) {
	var identity models.Identity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return nil, "malformed record"
	}
	if !identity.Valid() {
		return nil, "missing id or email"
	}
	if s.tokenExpired(identity.Token) {
		return nil, "token expired"
	}
	return &identity, ""
}

// tokenExpired reports whether token is a JWT whose exp claim has passed. Opaque
// tokens are never considered expired.
func (s *Store) tokenExpired(token string) bool {
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(s.now())
}

// Login authenticates creds. On success the identity is persisted, becomes current
// and listeners are notified. On failure the store is left untouched.
func (s *Store) Login(ctx context.Context, creds models.Credentials) error {
	identity, err := s.auth.Login(ctx, creds)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := s.slots.Put(ctx, storage.SlotIdentity, raw); err != nil {
		return fmt.Errorf("persist identity: %w", err)
	}

	s.mu.Lock()
	s.current = identity
	s.mu.Unlock()

	s.notify(identity)
	return nil
}

// Logout clears the persisted and in-memory identity and notifies listeners with nil.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.slots.Delete(ctx, storage.SlotIdentity); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	s.notify(nil)
	return nil
}

// Current returns a copy of the identity and whether one is present.
func (s *Store) Current() (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return models.Identity{}, false
	}
	return *s.current, true
}

// Require returns the current identity or ErrNotLoggedIn.
func (s *Store) Require() (models.Identity, error) {
	identity, ok := s.Current()
	if !ok {
		return models.Identity{}, ErrNotLoggedIn
	}
	return identity, nil
}

// Token returns the current bearer token, or "" when logged out.
func (s *Store) Token() string {
	identity, _ := s.Current()
	return identity.Token
}

// Subscribe registers fn for identity changes. The returned function removes it.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.listeners, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify(identity *models.Identity) {
	s.subMu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		var arg *models.Identity
		if identity != nil {
			cp := *identity
			arg = &cp
		}
		fn(arg)
	}
}
