package views

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_LikePropagatesToOtherSession(t *testing.T) {
	backend, bus := newFixture(t)
	ctx := context.Background()

	alice := newClient(t, backend, bus)
	alice.login(t, "u1@pellicule.test", "pw1")
	bob := newClient(t, backend, bus)
	bob.login(t, "u2@pellicule.test", "pw2")

	aliceFeed := alice.feed()
	require.NoError(t, aliceFeed.Mount(ctx))
	defer aliceFeed.Unmount()
	bobFeed := bob.feed()
	require.NoError(t, bobFeed.Mount(ctx))
	defer bobFeed.Unmount()

	p, ok := photoByID(aliceFeed.Photos(), "p1")
	require.True(t, ok)
	require.Equal(t, 0, p.LikesCount)

	p, err := aliceFeed.ToggleLike(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.LikesCount)
	assert.True(t, p.Liked)

	calls := backend.CallsTo(http.MethodPost, "/api/like/create")
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"userId":"u1","photoId":"p1"}`, calls[0].Body)

	require.Eventually(t, func() bool {
		p, _ := photoByID(bobFeed.Photos(), "p1")
		return p.LikesCount == 1
	}, waitFor, tick)
	p, _ = photoByID(bobFeed.Photos(), "p1")
	assert.False(t, p.Liked)
}

func TestFeed_ToggleTwiceRestores(t *testing.T) {
	backend, bus := newFixture(t)
	ctx := context.Background()
	alice := newClient(t, backend, bus)
	alice.login(t, "u1@pellicule.test", "pw1")

	feed := alice.feed()
	require.NoError(t, feed.Mount(ctx))
	defer feed.Unmount()

	before, _ := photoByID(feed.Photos(), "p1")
	_, err := feed.ToggleLike(ctx, "p1")
	require.NoError(t, err)
	after, err := feed.ToggleLike(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.False(t, backend.HasLike("p1", "u1"))
	assert.Len(t, backend.CallsTo(http.MethodDelete, "/api/like"), 1)
}

func TestFeed_LikeRequiresIdentity(t *testing.T) {
	backend, bus := newFixture(t)
	ctx := context.Background()
	anon := newClient(t, backend, bus)

	feed := anon.feed()
	require.NoError(t, feed.Mount(ctx))
	defer feed.Unmount()

	_, err := feed.ToggleLike(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Empty(t, backend.CallsTo(http.MethodPost, "/api/like/create"))
}

func TestLike_FailureKeepsOptimisticStateAndDoesNotEmit(t *testing.T) {
	backend, bus := newFixture(t)
	ctx := context.Background()
	alice := newClient(t, backend, bus)
	alice.login(t, "u1@pellicule.test", "pw1")
	bob := newClient(t, backend, bus)

	aliceFeed := alice.feed()
	require.NoError(t, aliceFeed.Mount(ctx))
	defer aliceFeed.Unmount()
	bobFeed := bob.feed()
	require.NoError(t, bobFeed.Mount(ctx))
	defer bobFeed.Unmount()

	backend.Fail(http.MethodPost, "/api/like/create", http.StatusInternalServerError)
	p, err := aliceFeed.ToggleLike(ctx, "p1")
	require.Error(t, err)
	assert.True(t, p.Liked)
	assert.Equal(t, 1, p.LikesCount)

	time.Sleep(30 * time.Millisecond)
	peer, _ := photoByID(bobFeed.Photos(), "p1")
	assert.Equal(t, 0, peer.LikesCount)
	assert.Equal(t, StateReady, aliceFeed.Status().State)
}

func TestLike_RollbackOnFailure(t *testing.T) {
	backend, bus := newFixture(t)
	ctx := context.Background()
	alice := newClient(t, backend, bus)
	alice.login(t, "u1@pellicule.test", "pw1")
	alice.deps.RollbackOnFailure = true

	feed := alice.feed()
	require.NoError(t, feed.Mount(ctx))
	defer feed.Unmount()

	backend.Fail(http.MethodPost, "/api/like/create", http.StatusInternalServerError)
	p, err := feed.ToggleLike(ctx, "p1")
	require.Error(t, err)
	assert.False(t, p.Liked)
	assert.Equal(t, 0, p.LikesCount)

	backend.Heal()
	p, err = feed.ToggleLike(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, p.Liked)
}

func TestLike_SameProcessViewsShareEvents(t *testing.T) {
	backend, bus := newFixture(t)
	ctx := context.Background()
	alice := newClient(t, backend, bus)
	alice.login(t, "u1@pellicule.test", "pw1")

	feed := alice.feed()
	require.NoError(t, feed.Mount(ctx))
	defer feed.Unmount()
	detail := NewPhotoDetail(alice.deps, "p1")
	require.NoError(t, detail.Mount(ctx))
	defer detail.Unmount()

	_, err := detail.ToggleLike(ctx)
	require.NoError(t, err)

	p, _ := photoByID(feed.Photos(), "p1")
	assert.Equal(t, 1, p.LikesCount)
	assert.True(t, p.Liked)
	assert.Equal(t, 1, bus.Dials())
}

func TestLike_ReloadsOnIdentityChange(t *testing.T) {
	backend, bus := newFixture(t)
	backend.AddLike("p1", "u1")
	ctx := context.Background()
	alice := newClient(t, backend, bus)

	feed := alice.feed()
	require.NoError(t, feed.Mount(ctx))
	defer feed.Unmount()
	p, _ := photoByID(feed.Photos(), "p1")
	require.False(t, p.Liked)

	alice.login(t, "u1@pellicule.test", "pw1")
	require.Eventually(t, func() bool {
		p, _ := photoByID(feed.Photos(), "p1")
		return p.Liked
	}, waitFor, tick)

	require.NoError(t, alice.session.Logout(ctx))
	require.Eventually(t, func() bool {
		p, _ := photoByID(feed.Photos(), "p1")
		return !p.Liked && p.LikesCount == 1
	}, waitFor, tick)
}

func TestFeed_LikesFetchFailureStillShowsPhotos(t *testing.T) {
	backend, bus := newFixture(t)
	backend.AddLike("p1", "u1")
	backend.Fail(http.MethodGet, "/api/photo/likes/user/u1", http.StatusInternalServerError)
	ctx := context.Background()

	alice := newClient(t, backend, bus)
	alice.login(t, "u1@pellicule.test", "pw1")

	feed := alice.feed()
	require.NoError(t, feed.Mount(ctx))
	defer feed.Unmount()
	assert.Equal(t, StateReady, feed.Status().State)
	require.Len(t, feed.Photos(), 2)

	p, ok := photoByID(feed.Photos(), "p1")
	require.True(t, ok)
	assert.Equal(t, 1, p.LikesCount)
	assert.False(t, p.Liked, "liked flag unknown without the user's likes")

	backend.Heal()
	require.NoError(t, feed.Reenter(ctx))
	p, _ = photoByID(feed.Photos(), "p1")
	assert.True(t, p.Liked)
	assert.Equal(t, 1, p.LikesCount)
}
