package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"pellicule/internal/bootstrap"
	"pellicule/internal/config"
	"pellicule/internal/models"
	"pellicule/internal/realtime"
	"pellicule/internal/storage"
	"pellicule/internal/testutil"

	"github.com/docopt/docopt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type harness struct {
	backend *testutil.Backend
	store   *storage.MemoryStore
	cfg     *config.Config
}

func newHarness() *harness {
	backend := testutil.NewBackend()
	backend.AddUser("u1@pellicule.test", "pw1", models.Profile{ID: "u1", Name: "Ana", Handle: "ana", Role: models.RoleUser})
	backend.AddRoll(models.FilmRoll{ID: "r1", Name: "ILFORD - HP5"})
	backend.AddPhoto(models.Photo{ID: "p1", URL: "http://img/p1.jpg", OwnerID: "u1", FilmRollID: "r1", Caption: "dunes"})

	return &harness{
		backend: backend,
		store:   storage.NewMemoryStore(),
		cfg: &config.Config{
			Env:                 "test",
			APIURL:              "http://backend.test",
			HTTPTimeout:         time.Second,
			StorageDriver:       config.StorageMemory,
			FeedCacheTTL:        time.Hour,
			FeedSampleSize:      20,
			LogLevel:            "error",
			LogFormat:           "json",
			TracingSamplerRatio: 1,
		},
	}
}

// exec runs one CLI invocation against the shared backend and slot store.
func (h *harness) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	opts, err := docopt.ParseArgs(usage, args, Version)
	require.NoError(t, err)

	var out bytes.Buffer
	err = run(context.Background(), h.cfg, opts, &out,
		bootstrap.WithHTTPClient(h.backend.HTTPClient()),
		bootstrap.WithStore(h.store),
		bootstrap.WithLogOutput(io.Discard),
	)
	return out.String(), err
}

func (h *harness) mustExec(t *testing.T, args ...string) map[string]any {
	t.Helper()
	out, err := h.exec(t, args...)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc), out)
	return doc
}

func TestCLI_LoginWhoamiLogout(t *testing.T) {
	h := newHarness()

	doc := h.mustExec(t, "login", "--email=u1@pellicule.test", "--password=pw1")
	assert.Equal(t, "u1", doc["id"])

	doc = h.mustExec(t, "whoami")
	assert.Equal(t, "ana", doc["handle"])

	h.mustExec(t, "logout")
	_, err := h.exec(t, "whoami")
	assert.Error(t, err)
}

func TestCLI_LoginRejected(t *testing.T) {
	h := newHarness()
	_, err := h.exec(t, "login", "--email=u1@pellicule.test", "--password=nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Email ou mot de passe incorrect")

	_, ok, _ := readSlot(h.store, storage.SlotIdentity)
	assert.False(t, ok)
}

func readSlot(s storage.Store, slot string) ([]byte, bool, error) {
	raw, err := s.Get(context.Background(), slot)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func TestCLI_LikeAndComment(t *testing.T) {
	h := newHarness()
	h.mustExec(t, "login", "--email=u1@pellicule.test", "--password=pw1")

	doc := h.mustExec(t, "like", "p1")
	assert.Equal(t, true, doc["liked"])
	assert.Equal(t, 1, doc["likes"])
	assert.True(t, h.backend.HasLike("p1", "u1"))

	doc = h.mustExec(t, "comment", "p1", "grain is lovely")
	assert.Equal(t, "grain is lovely", doc["content"])
	commentID, _ := doc["id"].(string)
	require.NotEmpty(t, commentID)
	assert.False(t, strings.HasPrefix(commentID, "pending-"))

	doc = h.mustExec(t, "photo", "p1")
	assert.Len(t, doc["comments"], 1)

	doc = h.mustExec(t, "uncomment", "p1", commentID)
	assert.Empty(t, doc["comments"])

	// toggling again unlikes
	doc = h.mustExec(t, "like", "p1")
	assert.Equal(t, false, doc["liked"])
	assert.False(t, h.backend.HasLike("p1", "u1"))
}

func TestCLI_LikeRequiresLogin(t *testing.T) {
	h := newHarness()
	_, err := h.exec(t, "like", "p1")
	assert.Error(t, err)
}

func TestCLI_BrowseCommands(t *testing.T) {
	h := newHarness()

	out, err := h.exec(t, "feed")
	require.NoError(t, err)
	var photos []models.Photo
	require.NoError(t, yaml.Unmarshal([]byte(out), &photos))
	require.Len(t, photos, 1)
	assert.Equal(t, "dunes", photos[0].Caption)

	out, err = h.exec(t, "rolls")
	require.NoError(t, err)
	assert.Contains(t, out, "ILFORD - HP5")

	doc := h.mustExec(t, "roll", "r1")
	assert.Len(t, doc["photos"], 1)

	_, err = h.exec(t, "photo", "missing")
	assert.Error(t, err)
}

func TestCLI_FeedRefreshFetchesAgain(t *testing.T) {
	h := newHarness()

	_, err := h.exec(t, "feed")
	require.NoError(t, err)
	_, err = h.exec(t, "feed")
	require.NoError(t, err)
	assert.Len(t, h.backend.CallsTo("GET", "/api/photo"), 1, "second run reads the cached sample")

	_, err = h.exec(t, "feed", "--refresh")
	require.NoError(t, err)
	assert.Len(t, h.backend.CallsTo("GET", "/api/photo"), 2)
}

func TestCLI_PostAndUnpost(t *testing.T) {
	h := newHarness()
	h.mustExec(t, "login", "--email=u1@pellicule.test", "--password=pw1")

	doc := h.mustExec(t, "post", "r1", "http://img/new.jpg", "harbour")
	id, _ := doc["id"].(string)
	require.NotEmpty(t, id)

	doc = h.mustExec(t, "profile")
	assert.Len(t, doc["photos"], 2)

	doc = h.mustExec(t, "unpost", id)
	assert.Len(t, doc["photos"], 1)
}

func TestConcerns(t *testing.T) {
	assert.True(t, concerns(realtime.LikeAdded{PhotoID: "p1", UserID: "u1"}, "p1"))
	assert.False(t, concerns(realtime.LikeRemoved{PhotoID: "p2", UserID: "u1"}, "p1"))
	assert.False(t, concerns(realtime.CommentAdded{Comment: models.Comment{ID: "c1", PhotoID: "p2"}}, "p1"))
	assert.True(t, concerns(realtime.CommentDeleted{ID: "c1"}, "p1"))
}
