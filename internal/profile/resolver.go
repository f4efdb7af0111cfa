// Package profile derives the full user profile from the session identity.
package profile

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"pellicule/internal/models"
	"pellicule/internal/observability"
	"pellicule/internal/session"
)

// ErrStale is returned by Resolve when the identity changed while the lookup was in flight.
var ErrStale = errors.New("profile: identity changed during lookup")

// Fetcher looks up a profile by user id.
type Fetcher interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// Sessions is the part of the session store the resolver watches.
type Sessions interface {
	Current() (models.Identity, bool)
	Subscribe(fn session.Listener) (cancel func())
}

// Listener receives the resolved profile, or nil when it is wiped.
type Listener func(p *models.Profile)

// Resolver keeps the profile of the current identity. Each identity transition
// wipes the previous profile at once and issues a single lookup; there is no retry.
type Resolver struct {
	fetcher Fetcher
	log     *observability.Logger

	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()
	wg     sync.WaitGroup

	mu         sync.RWMutex
	generation uint64
	current    *models.Profile
	listeners  map[int]Listener
	nextID     int
}

// NewResolver starts watching sessions. If an identity is already present its
// lookup is issued immediately.
func NewResolver(sessions Sessions, fetcher Fetcher, l *observability.Logger) *Resolver {
	if l == nil {
		l = observability.GlobalLogger
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Resolver{
		fetcher:   fetcher,
		log:       l,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[int]Listener),
	}
	r.unsub = sessions.Subscribe(r.onIdentity)
	if identity, ok := sessions.Current(); ok {
		r.onIdentity(&identity)
	}
	return r
}

func (r *Resolver) onIdentity(identity *models.Identity) {
	if !identity.Valid() {
		r.begin()
		return
	}
	// The wipe and the generation bump happen before returning, so a later
	// transition always supersedes this lookup.
	gen := r.begin()
	id := *identity
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.resolve(r.ctx, id, gen); err != nil && !errors.Is(err, ErrStale) && !errors.Is(err, context.Canceled) {
			r.log.ErrorContext(r.ctx, "profile lookup failed",
				slog.String("user_id", id.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// begin bumps the generation and wipes the current profile.
func (r *Resolver) begin() uint64 {
	r.mu.Lock()
	r.generation++
	gen := r.generation
	wiped := r.current != nil
	r.current = nil
	r.mu.Unlock()
	if wiped {
		r.notify(nil)
	}
	return gen
}

// Resolve looks up the profile for identity and makes it current. The result is
// discarded with ErrStale if another transition happened while it was in flight.
func (r *Resolver) Resolve(ctx context.Context, identity models.Identity) (*models.Profile, error) {
	return r.resolve(ctx, identity, r.begin())
}

// resolve fetches the profile and keeps it only if gen is still current.
func (r *Resolver) resolve(ctx context.Context, identity models.Identity, gen uint64) (*models.Profile, error) {
	p, err := r.fetcher.GetProfile(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.generation != gen {
		r.mu.Unlock()
		return nil, ErrStale
	}
	cp := *p
	r.current = &cp
	r.mu.Unlock()

	r.notify(&cp)
	return &cp, nil
}

// Current returns the resolved profile and whether one is present.
func (r *Resolver) Current() (models.Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return models.Profile{}, false
	}
	return *r.current, true
}

// Subscribe registers fn for profile changes. The returned function removes it.
func (r *Resolver) Subscribe(fn Listener) (cancel func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Resolver) notify(p *models.Profile) {
	r.mu.RLock()
	fns := make([]Listener, 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()
	for _, fn := range fns {
		if p == nil {
			fn(nil)
			continue
		}
		cp := *p
		fn(&cp)
	}
}

// Close stops watching the session and cancels any lookup in flight.
func (r *Resolver) Close() {
	r.unsub()
	r.cancel()
	r.wg.Wait()
}
