// Package views holds the state behind each screen of the client: feed, film
// roll, photo detail and profile. A view is mounted, loads from the REST API,
// follows the realtime channel and is unmounted when the screen goes away.
package views

import (
	"context"
	"errors"
	"sync"

	"pellicule/internal/api"
	"pellicule/internal/models"
	"pellicule/internal/observability"
	"pellicule/internal/realtime"
	"pellicule/internal/session"
)

// ErrNotLoggedIn is returned by mutations attempted without an identity.
var ErrNotLoggedIn = session.ErrNotLoggedIn

// ErrNotAuthor is returned when deleting something the current user did not create.
var ErrNotAuthor = errors.New("views: not the author")

// ErrNotMounted is returned by operations on a view that is not mounted.
var ErrNotMounted = errors.New("views: view is not mounted")

// Backend is the subset of the REST client the views use.
type Backend interface {
	ListPhotos(ctx context.Context) ([]models.Photo, error)
	ListPhotosByRoll(ctx context.Context, rollID string) ([]models.Photo, error)
	ListPhotosByUser(ctx context.Context, userID string) ([]models.Photo, error)
	GetPhoto(ctx context.Context, photoID string) (*models.Photo, error)
	CreatePhoto(ctx context.Context, p api.NewPhoto) (*models.Photo, error)
	DeletePhoto(ctx context.Context, photoID string) error
	ListLikesByPhoto(ctx context.Context, photoID string) ([]models.Like, error)
	ListLikesByUser(ctx context.Context, userID string) ([]models.Like, error)
	CreateLike(ctx context.Context, like models.Like) error
	DeleteLike(ctx context.Context, like models.Like) error
	ListComments(ctx context.Context, photoID string) ([]models.Comment, error)
	CreateComment(ctx context.Context, c api.NewComment) (*models.Comment, error)
	DeleteComment(ctx context.Context, commentID string) error
	ListFilmRolls(ctx context.Context) ([]models.FilmRoll, error)
	GetFilmRoll(ctx context.Context, rollID string) (*models.FilmRoll, error)
}

// Sessions is the session store as seen by views.
type Sessions interface {
	Current() (models.Identity, bool)
	Subscribe(fn session.Listener) (cancel func())
}

// Profiles exposes the resolved profile of the current identity.
type Profiles interface {
	Current() (models.Profile, bool)
}

// Deps are the collaborators shared by every view of a process.
type Deps struct {
	API      Backend
	Sessions Sessions
	Profiles Profiles
	// Channel is optional; without it views do not follow remote events.
	Channel *realtime.Channel
	Logger  *observability.Logger
	// RollbackOnFailure reverts an optimistic mutation when its REST call fails.
	RollbackOnFailure bool
}

// State is the initial-load state of a view.
type State string

// View states.
const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Status reports the outcome of the last load. Mutation failures do not change it.
type Status struct {
	State   State  `yaml:"state"`
	Message string `yaml:"message,omitempty"`
}

// base is the lifecycle shared by every view.
type base struct {
	name string
	deps Deps
	log  *observability.ViewLogger

	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	mounted bool
	status  Status
	sub     *realtime.Subscription
	unwatch func()
	wg      sync.WaitGroup
}

func (b *base) init(name string, deps Deps) {
	b.name = name
	b.deps = deps
	b.log = observability.NewViewLogger(name, deps.Logger)
	b.status = Status{State: StateLoading}
}

// mount starts the view: it loads, subscribes to the channel with onEvent and
// reloads whenever the identity changes.
func (b *base) mount(parent context.Context, load func(ctx context.Context) error, onEvent realtime.Handler) error {
	b.mu.Lock()
	if b.mounted {
		b.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(parent)
	b.ctx, b.cancel, b.mounted = ctx, cancel, true
	b.status = Status{State: StateLoading}
	b.mu.Unlock()

	b.log.LogLifecycle(ctx, "mount", nil)

	if b.deps.Channel != nil && onEvent != nil {
		sub, err := b.deps.Channel.Subscribe(ctx, func(ev realtime.Event) {
			if b.isMounted() {
				onEvent(ev)
			}
		})
		if err != nil {
			b.log.Warn(ctx, "realtime unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			b.mu.Lock()
			b.sub = sub
			b.mu.Unlock()
		}
	}

	unwatch := b.deps.Sessions.Subscribe(func(*models.Identity) {
		b.mu.Lock()
		if !b.mounted {
			b.mu.Unlock()
			return
		}
		b.wg.Add(1)
		b.mu.Unlock()
		go func() {
			defer b.wg.Done()
			b.log.LogLifecycle(ctx, "reload", map[string]interface{}{"cause": "identity"})
			_ = b.run(ctx, load)
		}()
	})
	b.mu.Lock()
	b.unwatch = unwatch
	b.mu.Unlock()

	return b.run(ctx, load)
}

// run executes load and records the outcome unless the view was unmounted meanwhile.
func (b *base) run(ctx context.Context, load func(ctx context.Context) error) error {
	err := load(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	b.mu.Lock()
	if err != nil {
		b.status = Status{State: StateFailed, Message: err.Error()}
	} else {
		b.status = Status{State: StateReady}
	}
	b.mu.Unlock()
	if err != nil {
		b.log.LogFetchError(ctx, b.name, err)
	}
	return err
}

// Unmount cancels in-flight fetches, drops the channel subscription and stops
// following identity changes.
func (b *base) Unmount() {
	b.mu.Lock()
	if !b.mounted {
		b.mu.Unlock()
		return
	}
	b.mounted = false
	cancel, sub, unwatch := b.cancel, b.sub, b.unwatch
	ctx := b.ctx
	b.sub, b.unwatch = nil, nil
	b.mu.Unlock()

	cancel()
	if unwatch != nil {
		unwatch()
	}
	if sub != nil {
		sub.Close()
	}
	b.wg.Wait()
	b.log.LogLifecycle(ctx, "unmount", nil)
}

// Status returns the load status.
func (b *base) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *base) isMounted() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mounted
}

// live returns the view context, or an error when unmounted.
func (b *base) live() (context.Context, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.mounted {
		return nil, ErrNotMounted
	}
	return b.ctx, nil
}

// reload runs load again on the mounted view.
func (b *base) reload(load func(ctx context.Context) error) error {
	ctx, err := b.live()
	if err != nil {
		return err
	}
	return b.run(ctx, load)
}

func (b *base) identity() (models.Identity, error) {
	identity, ok := b.deps.Sessions.Current()
	if !ok {
		return models.Identity{}, ErrNotLoggedIn
	}
	return identity, nil
}

func (b *base) selfID() string {
	identity, _ := b.deps.Sessions.Current()
	return identity.ID
}

// emit broadcasts ev on the view's subscription. Delivery is best effort.
func (b *base) emit(ctx context.Context, ev realtime.Event) {
	b.mu.RLock()
	sub := b.sub
	b.mu.RUnlock()

	var err error
	switch {
	case sub != nil:
		err = sub.Emit(ctx, ev)
	case b.deps.Channel != nil:
		err = b.deps.Channel.Emit(ctx, ev)
	default:
		return
	}
	if err != nil && !errors.Is(err, realtime.ErrNotConnected) {
		b.log.Warn(ctx, "realtime emit failed", map[string]interface{}{
			"kind":  string(ev.Kind()),
			"error": err.Error(),
		})
	}
}

// mutationContext joins the caller's context with the view's so that unmount
// cancels the call.
func (b *base) mutationContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	viewCtx, err := b.live()
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(viewCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}
