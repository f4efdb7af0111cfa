package views

import (
	"context"
	"testing"
	"time"

	"pellicule/internal/api"
	"pellicule/internal/models"
	"pellicule/internal/observability"
	"pellicule/internal/realtime"
	"pellicule/internal/session"
	"pellicule/internal/storage"
	"pellicule/internal/testutil"

	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

// client is one running process: its own session, slots and realtime channel.
type client struct {
	api     *api.Client
	session *session.Store
	channel *realtime.Channel
	slots   *storage.MemoryStore
	deps    Deps
}

func newFixture(t *testing.T) (*testutil.Backend, *realtime.MemoryBus) {
	t.Helper()
	backend := testutil.NewBackend()
	backend.AddUser("u1@pellicule.test", "pw1", models.Profile{ID: "u1", Name: "Ana", Handle: "ana", Role: models.RoleUser})
	backend.AddUser("u2@pellicule.test", "pw2", models.Profile{ID: "u2", Name: "Bo", Handle: "bo", Role: models.RoleUser})
	backend.AddRoll(models.FilmRoll{ID: "r1", Name: "ILFORD - HP5"})
	backend.AddRoll(models.FilmRoll{ID: "r2", Name: "KODAK - GOLD"})
	backend.AddPhoto(models.Photo{ID: "p1", URL: "http://img/p1.jpg", OwnerID: "u2", FilmRollID: "r1"})
	backend.AddPhoto(models.Photo{ID: "p2", URL: "http://img/p2.jpg", OwnerID: "u1", FilmRollID: "r2"})
	return backend, realtime.NewMemoryBus()
}

func newClient(t *testing.T, backend *testutil.Backend, bus *realtime.MemoryBus) *client {
	t.Helper()
	logger := observability.DiscardLogger()
	apiClient := api.NewClient("http://backend.test", api.WithHTTPClient(backend.HTTPClient()), api.WithLogger(logger))
	slots := storage.NewMemoryStore()
	sess, err := session.NewStore(context.Background(), slots, apiClient, session.WithLogger(logger))
	require.NoError(t, err)
	apiClient.SetTokenSource(sess.Token)
	ch := realtime.NewChannel(bus, realtime.WithLogger(logger))
	return &client{
		api:     apiClient,
		session: sess,
		channel: ch,
		slots:   slots,
		deps: Deps{
			API:      apiClient,
			Sessions: sess,
			Channel:  ch,
			Logger:   logger,
		},
	}
}

func (c *client) login(t *testing.T, email, password string) {
	t.Helper()
	require.NoError(t, c.session.Login(context.Background(), models.Credentials{Email: email, Password: password}))
}

func (c *client) feed(opts ...FeedCacheOption) *Feed {
	opts = append([]FeedCacheOption{WithShuffle(func([]models.Photo) {})}, opts...)
	return NewFeed(c.deps, NewFeedCache(c.slots, c.deps.Logger, opts...))
}

func photoByID(photos []models.Photo, id string) (models.Photo, bool) {
	for _, p := range photos {
		if p.ID == id {
			return p, true
		}
	}
	return models.Photo{}, false
}

type staticProfiles struct{ p models.Profile }

func (s staticProfiles) Current() (models.Profile, bool) { return s.p, s.p.ID != "" }
