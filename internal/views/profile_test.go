package views

import (
	"context"
	"net/http"
	"testing"

	"pellicule/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileView_RequiresIdentity(t *testing.T) {
	backend, bus := newFixture(t)
	anon := newClient(t, backend, bus)

	v := NewProfileView(anon.deps)
	err := v.Mount(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	defer v.Unmount()
	assert.Equal(t, StateFailed, v.Status().State)

	anon.login(t, "u1@pellicule.test", "pw1")
	require.Eventually(t, func() bool { return v.Status().State == StateReady }, waitFor, tick)
	assert.Len(t, v.Photos(), 1)
}

func TestProfileView_LoadsPhotosAndRolls(t *testing.T) {
	backend, bus := newFixture(t)
	alice := newClient(t, backend, bus)
	alice.login(t, "u1@pellicule.test", "pw1")
	alice.deps.Profiles = staticProfiles{models.Profile{ID: "u1", Handle: "ana"}}

	v := NewProfileView(alice.deps)
	require.NoError(t, v.Mount(context.Background()))
	defer v.Unmount()

	p, ok := v.Profile()
	require.True(t, ok)
	assert.Equal(t, "ana", p.Handle)

	photos := v.Photos()
	require.Len(t, photos, 1)
	assert.Equal(t, "p2", photos[0].ID)
	assert.Len(t, v.FilmRolls(), 2)
}

func TestProfileView_AddAndDeletePhoto(t *testing.T) {
	backend, bus := newFixture(t)
	ctx := context.Background()
	alice := newClient(t, backend, bus)
	alice.login(t, "u1@pellicule.test", "pw1")

	v := NewProfileView(alice.deps)
	require.NoError(t, v.Mount(ctx))
	defer v.Unmount()

	_, err := v.AddPhoto(ctx, "", "http://img/x.jpg", "")
	assert.ErrorIs(t, err, ErrInvalidPhoto)
	_, err = v.AddPhoto(ctx, "r1", " ", "")
	assert.ErrorIs(t, err, ErrInvalidPhoto)

	created, err := v.AddPhoto(ctx, "r1", "http://img/x.jpg", "grain")
	require.NoError(t, err)
	assert.Equal(t, "u1", created.OwnerID)
	assert.Len(t, v.Photos(), 2)

	calls := backend.CallsTo(http.MethodPost, "/api/photo/create")
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"userId":"u1","pelliculeId":"r1","photoURL":"http://img/x.jpg","legende":"grain"}`, calls[0].Body)

	require.NoError(t, v.DeletePhoto(ctx, created.ID))
	assert.Len(t, v.Photos(), 1)
	require.Error(t, v.DeletePhoto(ctx, "p1"))
}

func TestProfileView_DeleteFailureKeepsList(t *testing.T) {
	backend, bus := newFixture(t)
	ctx := context.Background()
	alice := newClient(t, backend, bus)
	alice.login(t, "u1@pellicule.test", "pw1")

	v := NewProfileView(alice.deps)
	require.NoError(t, v.Mount(ctx))
	defer v.Unmount()

	backend.Fail(http.MethodDelete, "/api/photo/p2", http.StatusInternalServerError)
	require.Error(t, v.DeletePhoto(ctx, "p2"))
	assert.Len(t, v.Photos(), 1)
	assert.Equal(t, StateReady, v.Status().State)
}
