// Package testutil provides an in-memory fake of the photo-sharing backend.
package testutil

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"pellicule/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// TokenSecret signs the HS256 tokens the fake backend issues on login.
const TokenSecret = "pellicule-test-secret-that-is-32-chars"

// Call is one request the backend received.
type Call struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type likeKey struct{ photoID, userID string }

type fakeUser struct {
	profile      models.Profile
	passwordHash []byte
}

// Backend is a fiber app serving the REST endpoints from in-memory state.
type Backend struct {
	App *fiber.App

	mu         sync.Mutex
	users      map[string]*fakeUser
	emails     map[string]string
	photoOrder []string
	photos     map[string]models.Photo
	likes      map[likeKey]struct{}
	comments   []models.Comment
	rolls      []models.FilmRoll
	failures   map[string]int
	calls      []Call
	seq        int
	now        func() time.Time
}

// NewBackend returns an empty backend with routes registered.
func NewBackend() *Backend {
	b := &Backend{
		users:    make(map[string]*fakeUser),
		emails:   make(map[string]string),
		photos:   make(map[string]models.Photo),
		likes:    make(map[likeKey]struct{}),
		failures: make(map[string]int),
		now:      time.Now,
	}
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(b.record)
	b.routes(app)
	b.App = app
	return b
}

// HTTPClient returns an *http.Client whose requests are served by the fiber app in-process.
func (b *Backend) HTTPClient() *http.Client {
	return &http.Client{Transport: fiberTransport{app: b.App}}
}

type fiberTransport struct {
	app *fiber.App
}

func (t fiberTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.app.Test(req, -1)
}

// AddUser registers credentials and a profile. The profile id is the user id.
func (b *Backend) AddUser(email, password string, profile models.Profile) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	profile.Email = email
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[profile.ID] = &fakeUser{profile: profile, passwordHash: hash}
	b.emails[strings.ToLower(email)] = profile.ID
}

// AddRoll registers a film roll.
func (b *Backend) AddRoll(roll models.FilmRoll) {
	b.mu.Lock()
	b.rolls = append(b.rolls, roll)
	b.mu.Unlock()
}

// AddPhoto registers a photo. LikesCount and CommentsCount are derived on read.
func (b *Backend) AddPhoto(p models.Photo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.photos[p.ID]; !exists {
		b.photoOrder = append(b.photoOrder, p.ID)
	}
	b.photos[p.ID] = p
}

// AddLike records a like without going through the API.
func (b *Backend) AddLike(photoID, userID string) {
	b.mu.Lock()
	b.likes[likeKey{photoID, userID}] = struct{}{}
	b.mu.Unlock()
}

// AddComment records a comment without going through the API.
func (b *Backend) AddComment(c models.Comment) {
	b.mu.Lock()
	b.comments = append(b.comments, c)
	b.mu.Unlock()
}

// SeedPhotos adds n photos with generated captions on the given roll, owned by ownerID.
func (b *Backend) SeedPhotos(n int, ownerID, rollID string) []models.Photo {
	faker := gofakeit.New(42)
	out := make([]models.Photo, 0, n)
	for i := 0; i < n; i++ {
		p := models.Photo{
			ID:         fmt.Sprintf("seed-%d", i),
			URL:        faker.URL() + "/photo.jpg",
			Caption:    faker.Sentence(4),
			OwnerID:    ownerID,
			FilmRollID: rollID,
		}
		b.AddPhoto(p)
		out = append(out, p)
	}
	return out
}

// Fail makes every request matching method and concrete path answer with status
// until Heal is called.
func (b *Backend) Fail(method, path string, status int) {
	b.mu.Lock()
	b.failures[method+" "+path] = status
	b.mu.Unlock()
}

// Heal clears all injected failures.
func (b *Backend) Heal() {
	b.mu.Lock()
	b.failures = make(map[string]int)
	b.mu.Unlock()
}

// Calls returns a copy of the recorded requests.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallsTo returns the recorded requests for method and path.
func (b *Backend) CallsTo(method, path string) []Call {
	var out []Call
	for _, c := range b.Calls() {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// HasLike reports whether the backend holds the like.
func (b *Backend) HasLike(photoID, userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.likes[likeKey{photoID, userID}]
	return ok
}

// IssueToken signs a token for userID expiring after ttl.
func IssueToken(userID string, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TokenSecret))
	if err != nil {
		panic(err)
	}
	return signed
}

func (b *Backend) record(c *fiber.Ctx) error {
	b.mu.Lock()
	b.calls = append(b.calls, Call{
		Method: c.Method(),
		Path:   c.Path(),
		Body:   string(c.Body()),
		Auth:   c.Get(fiber.HeaderAuthorization),
	})
	status, failing := b.failures[c.Method()+" "+c.Path()]
	b.mu.Unlock()

	if failing {
		return c.Status(status).JSON(fiber.Map{"error": "injected failure"})
	}
	return c.Next()
}

func (b *Backend) routes(app *fiber.App) {
	api := app.Group("/api")

	api.Post("/user/login", b.login)
	api.Get("/user/:id", b.getProfile)

	api.Get("/photo", b.listPhotos)
	api.Get("/photo/pellicule/:id", b.listPhotosByRoll)
	api.Get("/photo/user/:id", b.listPhotosByUser)
	api.Get("/photo/details/:id", b.getPhoto)
	api.Get("/photo/likes/user/:id", b.listLikesByUser)
	api.Get("/photo/:id/likes", b.listLikesByPhoto)
	api.Get("/photo/:id/comments", b.listComments)
	api.Post("/photo/create", b.createPhoto)
	api.Delete("/photo/:id", b.deletePhoto)

	api.Post("/like/create", b.createLike)
	api.Delete("/like", b.deleteLike)

	api.Post("/comment/create", b.createComment)
	api.Delete("/comment/:id", b.deleteComment)

	api.Get("/pellicule", b.listRolls)
	api.Get("/pellicule/:id", b.getRoll)
}

func (b *Backend) login(c *fiber.Ctx) error {
	var req models.Credentials
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	b.mu.Lock()
	id, ok := b.emails[strings.ToLower(req.Email)]
	var user *fakeUser
	if ok {
		user = b.users[id]
	}
	b.mu.Unlock()

	if user == nil || bcrypt.CompareHashAndPassword(user.passwordHash, []byte(req.Password)) != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Email ou mot de passe incorrect"})
	}
	return c.JSON(fiber.Map{
		"_id":   user.profile.ID,
		"email": user.profile.Email,
		"token": IssueToken(user.profile.ID, time.Hour),
	})
}

func (b *Backend) getProfile(c *fiber.Ctx) error {
	b.mu.Lock()
	user, ok := b.users[c.Params("id")]
	b.mu.Unlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
	}
	return c.JSON(user.profile)
}

// hydrate fills derived counters. Caller holds b.mu.
func (b *Backend) hydrate(p models.Photo) models.Photo {
	p.LikesCount = 0
	for k := range b.likes {
		if k.photoID == p.ID {
			p.LikesCount++
		}
	}
	p.CommentsCount = 0
	for _, cm := range b.comments {
		if cm.PhotoID == p.ID {
			p.CommentsCount++
		}
	}
	return p
}

func (b *Backend) filterPhotos(keep func(models.Photo) bool) []models.Photo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Photo, 0, len(b.photoOrder))
	for _, id := range b.photoOrder {
		p := b.photos[id]
		if keep(p) {
			out = append(out, b.hydrate(p))
		}
	}
	return out
}

func (b *Backend) listPhotos(c *fiber.Ctx) error {
	return c.JSON(b.filterPhotos(func(models.Photo) bool { return true }))
}

func (b *Backend) listPhotosByRoll(c *fiber.Ctx) error {
	rollID := c.Params("id")
	return c.JSON(b.filterPhotos(func(p models.Photo) bool { return p.FilmRollID == rollID }))
}

func (b *Backend) listPhotosByUser(c *fiber.Ctx) error {
	userID := c.Params("id")
	return c.JSON(b.filterPhotos(func(p models.Photo) bool { return p.OwnerID == userID }))
}

func (b *Backend) getPhoto(c *fiber.Ctx) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.photos[c.Params("id")]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "photo not found"})
	}
	return c.JSON(b.hydrate(p))
}

func (b *Backend) createPhoto(c *fiber.Ctx) error {
	var req struct {
		UserID     string `json:"userId"`
		FilmRollID string `json:"pelliculeId"`
		URL        string `json:"photoURL"`
		Caption    string `json:"legende"`
	}
	if err := c.BodyParser(&req); err != nil || req.UserID == "" || req.FilmRollID == "" || req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "userId, pelliculeId and photoURL are required"})
	}
	b.mu.Lock()
	b.seq++
	p := models.Photo{
		ID:         fmt.Sprintf("photo-%d", b.seq),
		URL:        req.URL,
		Caption:    req.Caption,
		OwnerID:    req.UserID,
		FilmRollID: req.FilmRollID,
	}
	b.photoOrder = append(b.photoOrder, p.ID)
	b.photos[p.ID] = p
	b.mu.Unlock()
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (b *Backend) deletePhoto(c *fiber.Ctx) error {
	id := c.Params("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.photos[id]; !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "photo not found"})
	}
	delete(b.photos, id)
	for i, pid := range b.photoOrder {
		if pid == id {
			b.photoOrder = append(b.photoOrder[:i], b.photoOrder[i+1:]...)
			break
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (b *Backend) listLikes(keep func(likeKey) bool) []models.Like {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Like, 0)
	for k := range b.likes {
		if keep(k) {
			out = append(out, models.Like{PhotoID: k.photoID, UserID: k.userID})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PhotoID != out[j].PhotoID {
			return out[i].PhotoID < out[j].PhotoID
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (b *Backend) listLikesByPhoto(c *fiber.Ctx) error {
	photoID := c.Params("id")
	return c.JSON(b.listLikes(func(k likeKey) bool { return k.photoID == photoID }))
}

func (b *Backend) listLikesByUser(c *fiber.Ctx) error {
	userID := c.Params("id")
	return c.JSON(b.listLikes(func(k likeKey) bool { return k.userID == userID }))
}

func (b *Backend) createLike(c *fiber.Ctx) error {
	var req models.Like
	if err := c.BodyParser(&req); err != nil || req.PhotoID == "" || req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "userId and photoId are required"})
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := likeKey{req.PhotoID, req.UserID}
	if _, exists := b.likes[key]; exists {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already liked"})
	}
	b.likes[key] = struct{}{}
	return c.Status(fiber.StatusCreated).JSON(req)
}

func (b *Backend) deleteLike(c *fiber.Ctx) error {
	var req models.Like
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := likeKey{req.PhotoID, req.UserID}
	if _, exists := b.likes[key]; !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "like not found"})
	}
	delete(b.likes, key)
	return c.SendStatus(fiber.StatusNoContent)
}

func (b *Backend) listComments(c *fiber.Ctx) error {
	photoID := c.Params("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Comment, 0)
	for _, cm := range b.comments {
		if cm.PhotoID == photoID {
			out = append(out, cm)
		}
	}
	return c.JSON(out)
}

func (b *Backend) createComment(c *fiber.Ctx) error {
	var req struct {
		PhotoID string `json:"photoId"`
		UserID  string `json:"userId"`
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil || req.PhotoID == "" || req.UserID == "" || strings.TrimSpace(req.Content) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "photoId, userId and content are required"})
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	cm := models.Comment{
		ID:        fmt.Sprintf("comment-%d", b.seq),
		PhotoID:   req.PhotoID,
		AuthorID:  req.UserID,
		Content:   req.Content,
		CreatedAt: b.now().UTC(),
	}
	if user, ok := b.users[req.UserID]; ok {
		cm.AuthorHandle = user.profile.Handle
	}
	b.comments = append(b.comments, cm)
	return c.Status(fiber.StatusCreated).JSON(cm)
}

func (b *Backend) deleteComment(c *fiber.Ctx) error {
	id := c.Params("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, cm := range b.comments {
		if cm.ID == id {
			b.comments = append(b.comments[:i], b.comments[i+1:]...)
			return c.SendStatus(fiber.StatusNoContent)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "comment not found"})
}

func (b *Backend) listRolls(c *fiber.Ctx) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return c.JSON(append([]models.FilmRoll{}, b.rolls...))
}

func (b *Backend) getRoll(c *fiber.Ctx) error {
	id := c.Params("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.rolls {
		if r.ID == id {
			return c.JSON(r)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "pellicule not found"})
}
