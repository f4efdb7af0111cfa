package views

import (
	"context"
	"fmt"
	"sync"

	"pellicule/internal/models"
	"pellicule/internal/realtime"
	"pellicule/internal/reconcile"
)

// RollView lists the photos of one film roll.
type RollView struct {
	base
	rollID string
	likes  likeBinder

	rollMu sync.RWMutex
	roll   models.FilmRoll
}

// NewRollView returns an unmounted view of rollID.
func NewRollView(deps Deps, rollID string) *RollView {
	v := &RollView{rollID: rollID}
	v.init("roll", deps)
	v.likes = likeBinder{b: &v.base, ledger: reconcile.NewLikeLedger("")}
	return v
}

// Mount loads the roll and its photos.
func (v *RollView) Mount(ctx context.Context) error {
	return v.mount(ctx, v.load, func(ev realtime.Event) { v.likes.apply(ev) })
}

func (v *RollView) load(ctx context.Context) error {
	roll, err := v.deps.API.GetFilmRoll(ctx, v.rollID)
	if err != nil {
		return fmt.Errorf("load film roll %s: %w", v.rollID, err)
	}
	photos, err := v.deps.API.ListPhotosByRoll(ctx, v.rollID)
	if err != nil {
		return fmt.Errorf("load photos of roll %s: %w", v.rollID, err)
	}
	if err := v.likes.loadLikes(ctx, photos); err != nil {
		return err
	}
	v.rollMu.Lock()
	v.roll = *roll
	v.rollMu.Unlock()
	return nil
}

// Roll returns the film roll.
func (v *RollView) Roll() models.FilmRoll {
	v.rollMu.RLock()
	defer v.rollMu.RUnlock()
	return v.roll
}

// Photos returns the roll's photos with derived like state.
func (v *RollView) Photos() []models.Photo {
	return v.likes.ledger.Photos()
}

// ToggleLike likes or unlikes a photo of the roll.
func (v *RollView) ToggleLike(ctx context.Context, photoID string) (models.Photo, error) {
	return v.likes.toggle(ctx, photoID)
}
