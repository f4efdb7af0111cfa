package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pellicule/internal/models"
	"pellicule/internal/observability"
	"pellicule/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *testutil.Backend) {
	t.Helper()
	backend := testutil.NewBackend()
	backend.AddUser("a@b.com", "secret", models.Profile{ID: "u1", Name: "Sara", Surname: "L", Handle: "sarl", Role: models.RoleUser})
	backend.AddRoll(models.FilmRoll{ID: "r1", Name: "KODAK - PORTRA"})
	backend.AddPhoto(models.Photo{ID: "p1", URL: "http://img/p1.jpg", OwnerID: "u1", FilmRollID: "r1", Caption: "dusk"})
	backend.AddPhoto(models.Photo{ID: "p2", URL: "http://img/p2.jpg", OwnerID: "u2", FilmRollID: "r2"})
	client := NewClient("http://backend.test", WithHTTPClient(backend.HTTPClient()), WithLogger(observability.DiscardLogger()))
	return client, backend
}

func TestClient_Login(t *testing.T) {
	client, _ := newTestClient(t)

	identity, err := client.Login(context.Background(), models.Credentials{Email: "a@b.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.ID)
	assert.Equal(t, "a@b.com", identity.Email)
	assert.NotEmpty(t, identity.Token)
}

func TestClient_LoginRejectedCarriesServerMessage(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Login(context.Background(), models.Credentials{Email: "a@b.com", Password: "wrong"})
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Email ou mot de passe incorrect", apiErr.Message)
}

func TestClient_SendsBearerToken(t *testing.T) {
	client, backend := newTestClient(t)
	client.SetTokenSource(func() string { return "tok-123" })

	_, err := client.ListPhotos(context.Background())
	require.NoError(t, err)

	calls := backend.CallsTo(http.MethodGet, "/api/photo")
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer tok-123", calls[0].Auth)
}

func TestClient_PhotoQueries(t *testing.T) {
	client, backend := newTestClient(t)
	backend.AddLike("p1", "u2")
	ctx := context.Background()

	all, err := client.ListPhotos(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].LikesCount)

	byRoll, err := client.ListPhotosByRoll(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, byRoll, 1)
	assert.Equal(t, "p1", byRoll[0].ID)

	byUser, err := client.ListPhotosByUser(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "p2", byUser[0].ID)

	photo, err := client.GetPhoto(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "dusk", photo.Caption)
	assert.Equal(t, "r1", photo.FilmRollID)

	_, err = client.GetPhoto(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_LikeLifecycle(t *testing.T) {
	client, backend := newTestClient(t)
	ctx := context.Background()
	like := models.Like{PhotoID: "p1", UserID: "u1"}

	require.NoError(t, client.CreateLike(ctx, like))
	assert.True(t, backend.HasLike("p1", "u1"))

	calls := backend.CallsTo(http.MethodPost, "/api/like/create")
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"userId":"u1","photoId":"p1"}`, calls[0].Body)

	byPhoto, err := client.ListLikesByPhoto(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []models.Like{like}, byPhoto)

	byUser, err := client.ListLikesByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []models.Like{like}, byUser)

	var apiErr *Error
	require.ErrorAs(t, client.CreateLike(ctx, like), &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	require.NoError(t, client.DeleteLike(ctx, like))
	assert.False(t, backend.HasLike("p1", "u1"))
	assert.ErrorIs(t, client.DeleteLike(ctx, like), ErrNotFound)
}

func TestClient_CommentLifecycle(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	created, err := client.CreateComment(ctx, NewComment{PhotoID: "p1", UserID: "u1", Content: "superbe"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "sarl", created.AuthorHandle)
	assert.False(t, created.CreatedAt.IsZero())

	list, err := client.ListComments(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	require.NoError(t, client.DeleteComment(ctx, created.ID))
	assert.ErrorIs(t, client.DeleteComment(ctx, created.ID), ErrNotFound)
}

func TestClient_PhotoCreateAndDelete(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	created, err := client.CreatePhoto(ctx, NewPhoto{UserID: "u1", FilmRollID: "r1", URL: "http://img/new.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "u1", created.OwnerID)

	require.NoError(t, client.DeletePhoto(ctx, created.ID))
	_, err = client.GetPhoto(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_ProfileAndRolls(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	profile, err := client.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "sarl", profile.Handle)
	assert.Equal(t, "a@b.com", profile.Email)

	rolls, err := client.ListFilmRolls(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.FilmRoll{{ID: "r1", Name: "KODAK - PORTRA"}}, rolls)

	roll, err := client.GetFilmRoll(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "KODAK - PORTRA", roll.Name)
}

func TestClient_ErrorWithoutJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(observability.DiscardLogger()))
	_, err := client.ListFilmRolls(context.Background())

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Message)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestClient_MessageField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "caption too long"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(observability.DiscardLogger()))
	_, err := client.CreatePhoto(context.Background(), NewPhoto{UserID: "u1"})

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "caption too long", apiErr.Message)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithTimeout(20*time.Millisecond), WithLogger(observability.DiscardLogger()))
	_, err := client.ListPhotos(context.Background())
	require.Error(t, err)

	var apiErr *Error
	assert.False(t, errors.As(err, &apiErr))
}
