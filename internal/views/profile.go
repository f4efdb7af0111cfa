package views

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pellicule/internal/api"
	"pellicule/internal/models"
	"pellicule/internal/observability"
	"pellicule/internal/realtime"
	"pellicule/internal/reconcile"
)

// ErrInvalidPhoto is returned by AddPhoto when the roll or URL is missing.
var ErrInvalidPhoto = errors.New("views: a photo needs exactly one film roll and a URL")

// ProfileView shows the current user's profile, their photos and the film-roll
// catalogue offered when posting.
type ProfileView struct {
	base
	likes likeBinder

	dataMu sync.RWMutex
	rolls  []models.FilmRoll
}

// NewProfileView returns an unmounted profile view.
func NewProfileView(deps Deps) *ProfileView {
	v := &ProfileView{}
	v.init("profile", deps)
	v.likes = likeBinder{b: &v.base, ledger: reconcile.NewLikeLedger("")}
	return v
}

// Mount loads the user's photos and the catalogue. It fails while logged out.
func (v *ProfileView) Mount(ctx context.Context) error {
	return v.mount(ctx, v.load, func(ev realtime.Event) { v.likes.apply(ev) })
}

func (v *ProfileView) load(ctx context.Context) error {
	identity, err := v.identity()
	if err != nil {
		v.likes.ledger.Load(nil, nil)
		v.setRolls(nil)
		return err
	}
	photos, err := v.deps.API.ListPhotosByUser(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("load photos of %s: %w", identity.ID, err)
	}
	rolls, err := v.deps.API.ListFilmRolls(ctx)
	if err != nil {
		return fmt.Errorf("load film rolls: %w", err)
	}
	if err := v.likes.loadLikes(ctx, photos); err != nil {
		return err
	}
	v.setRolls(rolls)
	return nil
}

func (v *ProfileView) setRolls(rolls []models.FilmRoll) {
	v.dataMu.Lock()
	v.rolls = rolls
	v.dataMu.Unlock()
}

// Profile returns the resolved profile of the current identity.
func (v *ProfileView) Profile() (models.Profile, bool) {
	if v.deps.Profiles == nil {
		return models.Profile{}, false
	}
	return v.deps.Profiles.Current()
}

// Photos returns the user's photos with derived like state.
func (v *ProfileView) Photos() []models.Photo {
	return v.likes.ledger.Photos()
}

// FilmRolls returns the catalogue for the add-photo form.
func (v *ProfileView) FilmRolls() []models.FilmRoll {
	v.dataMu.RLock()
	defer v.dataMu.RUnlock()
	return append([]models.FilmRoll(nil), v.rolls...)
}

// ToggleLike likes or unlikes one of the shown photos.
func (v *ProfileView) ToggleLike(ctx context.Context, photoID string) (models.Photo, error) {
	return v.likes.toggle(ctx, photoID)
}

// AddPhoto posts a photo on filmRollID and refreshes the list.
func (v *ProfileView) AddPhoto(ctx context.Context, filmRollID, url, caption string) (models.Photo, error) {
	identity, err := v.identity()
	if err != nil {
		return models.Photo{}, err
	}
	filmRollID, url = strings.TrimSpace(filmRollID), strings.TrimSpace(url)
	if filmRollID == "" || url == "" {
		return models.Photo{}, ErrInvalidPhoto
	}
	ctx, done, err := v.mutationContext(ctx)
	if err != nil {
		return models.Photo{}, err
	}
	defer done()

	created, err := v.deps.API.CreatePhoto(ctx, api.NewPhoto{
		UserID:     identity.ID,
		FilmRollID: filmRollID,
		URL:        url,
		Caption:    strings.TrimSpace(caption),
	})
	if err != nil {
		observability.RecordMutation("photo_create", "failed")
		v.log.LogMutationError(ctx, "photo_create", filmRollID, false, err)
		return models.Photo{}, fmt.Errorf("create photo: %w", err)
	}
	observability.RecordMutation("photo_create", "ok")
	return *created, v.reload(v.load)
}

// DeletePhoto removes one of the user's photos and refreshes the list.
func (v *ProfileView) DeletePhoto(ctx context.Context, photoID string) error {
	identity, err := v.identity()
	if err != nil {
		return err
	}
	p, ok := v.likes.ledger.Photo(photoID)
	if !ok {
		return fmt.Errorf("photo %s is not shown in profile", photoID)
	}
	if p.OwnerID != identity.ID {
		return ErrNotAuthor
	}
	ctx, done, err := v.mutationContext(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := v.deps.API.DeletePhoto(ctx, photoID); err != nil {
		observability.RecordMutation("photo_delete", "failed")
		v.log.LogMutationError(ctx, "photo_delete", photoID, false, err)
		return fmt.Errorf("delete photo %s: %w", photoID, err)
	}
	observability.RecordMutation("photo_delete", "ok")
	return v.reload(v.load)
}
