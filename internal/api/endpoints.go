package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"pellicule/internal/models"
)

type loginResponse struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// Login authenticates credentials. A rejection is returned as *Error carrying the
// server's message.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (*models.Identity, error) {
	var out loginResponse
	if err := c.do(ctx, http.MethodPost, "user.login", "/api/user/login", creds, &out); err != nil {
		return nil, err
	}
	identity := &models.Identity{ID: out.ID, Email: out.Email, Token: out.Token}
	if !identity.Valid() {
		return nil, errors.New("user.login: response is missing id or email")
	}
	return identity, nil
}

// GetProfile looks up the full profile for a user id.
func (c *Client) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var out models.Profile
	if err := c.do(ctx, http.MethodGet, "user.get", "/api/user/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPhotos returns every photo.
func (c *Client) ListPhotos(ctx context.Context) ([]models.Photo, error) {
	var out []models.Photo
	err := c.do(ctx, http.MethodGet, "photo.list", "/api/photo", nil, &out)
	return out, err
}

// ListPhotosByRoll returns the photos tagged with a film roll.
func (c *Client) ListPhotosByRoll(ctx context.Context, rollID string) ([]models.Photo, error) {
	var out []models.Photo
	err := c.do(ctx, http.MethodGet, "photo.list_by_roll", "/api/photo/pellicule/"+url.PathEscape(rollID), nil, &out)
	return out, err
}

// ListPhotosByUser returns the photos a user posted.
func (c *Client) ListPhotosByUser(ctx context.Context, userID string) ([]models.Photo, error) {
	var out []models.Photo
	err := c.do(ctx, http.MethodGet, "photo.list_by_user", "/api/photo/user/"+url.PathEscape(userID), nil, &out)
	return out, err
}

// GetPhoto returns one photo.
func (c *Client) GetPhoto(ctx context.Context, photoID string) (*models.Photo, error) {
	var out models.Photo
	if err := c.do(ctx, http.MethodGet, "photo.get", "/api/photo/details/"+url.PathEscape(photoID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NewPhoto is the create-photo request. Caption is optional.
type NewPhoto struct {
	UserID     string `json:"userId"`
	FilmRollID string `json:"pelliculeId"`
	URL        string `json:"photoURL"`
	Caption    string `json:"legende,omitempty"`
}

// CreatePhoto posts a new photo.
func (c *Client) CreatePhoto(ctx context.Context, p NewPhoto) (*models.Photo, error) {
	var out models.Photo
	if err := c.do(ctx, http.MethodPost, "photo.create", "/api/photo/create", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePhoto removes a photo by id.
func (c *Client) DeletePhoto(ctx context.Context, photoID string) error {
	return c.do(ctx, http.MethodDelete, "photo.delete", "/api/photo/"+url.PathEscape(photoID), nil, nil)
}

// ListLikesByPhoto returns every like on a photo.
func (c *Client) ListLikesByPhoto(ctx context.Context, photoID string) ([]models.Like, error) {
	var out []models.Like
	err := c.do(ctx, http.MethodGet, "like.list_by_photo", "/api/photo/"+url.PathEscape(photoID)+"/likes", nil, &out)
	return out, err
}

// ListLikesByUser returns every like a user has given.
func (c *Client) ListLikesByUser(ctx context.Context, userID string) ([]models.Like, error) {
	var out []models.Like
	err := c.do(ctx, http.MethodGet, "like.list_by_user", "/api/photo/likes/user/"+url.PathEscape(userID), nil, &out)
	return out, err
}

// CreateLike records a like.
func (c *Client) CreateLike(ctx context.Context, like models.Like) error {
	return c.do(ctx, http.MethodPost, "like.create", "/api/like/create", like, nil)
}

// DeleteLike removes a like. The pair travels in the request body.
func (c *Client) DeleteLike(ctx context.Context, like models.Like) error {
	return c.do(ctx, http.MethodDelete, "like.delete", "/api/like", like, nil)
}

// ListComments returns the comments on a photo.
func (c *Client) ListComments(ctx context.Context, photoID string) ([]models.Comment, error) {
	var out []models.Comment
	err := c.do(ctx, http.MethodGet, "comment.list", "/api/photo/"+url.PathEscape(photoID)+"/comments", nil, &out)
	return out, err
}

// NewComment is the create-comment request.
type NewComment struct {
	PhotoID string `json:"photoId"`
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

// CreateComment posts a comment and returns the stored record.
func (c *Client) CreateComment(ctx context.Context, nc NewComment) (*models.Comment, error) {
	var out models.Comment
	if err := c.do(ctx, http.MethodPost, "comment.create", "/api/comment/create", nc, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComment removes a comment by id.
func (c *Client) DeleteComment(ctx context.Context, commentID string) error {
	return c.do(ctx, http.MethodDelete, "comment.delete", "/api/comment/"+url.PathEscape(commentID), nil, nil)
}

// ListFilmRolls returns the film-roll catalogue.
func (c *Client) ListFilmRolls(ctx context.Context) ([]models.FilmRoll, error) {
	var out []models.FilmRoll
	err := c.do(ctx, http.MethodGet, "roll.list", "/api/pellicule", nil, &out)
	return out, err
}

// GetFilmRoll returns one film roll.
func (c *Client) GetFilmRoll(ctx context.Context, rollID string) (*models.FilmRoll, error) {
	var out models.FilmRoll
	if err := c.do(ctx, http.MethodGet, "roll.get", "/api/pellicule/"+url.PathEscape(rollID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
