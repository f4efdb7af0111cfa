package views

import (
	"context"
	"fmt"

	"pellicule/internal/models"
	"pellicule/internal/realtime"
	"pellicule/internal/reconcile"
)

// Feed is the home screen: a random sample of every photo, cached for a while.
type Feed struct {
	base
	cache *FeedCache
	likes likeBinder
}

// NewFeed returns an unmounted feed.
func NewFeed(deps Deps, cache *FeedCache) *Feed {
	f := &Feed{cache: cache}
	f.init("feed", deps)
	f.likes = likeBinder{b: &f.base, ledger: reconcile.NewLikeLedger("")}
	return f
}

// Mount loads the feed and starts following like events.
func (f *Feed) Mount(ctx context.Context) error {
	return f.mount(ctx, f.load, f.onEvent)
}

// Reenter handles navigation back to the feed: the cached sample is dropped and a
// fresh one fetched.
func (f *Feed) Reenter(ctx context.Context) error {
	if err := f.cache.Invalidate(ctx); err != nil {
		f.log.Warn(ctx, "feed cache invalidate failed", map[string]interface{}{"error": err.Error()})
	}
	return f.reload(f.load)
}

func (f *Feed) load(ctx context.Context) error {
	photos, hit := f.cache.Get(ctx)
	if !hit {
		all, err := f.deps.API.ListPhotos(ctx)
		if err != nil {
			return fmt.Errorf("load photos: %w", err)
		}
		photos = f.cache.Sample(all)
		if err := f.cache.Put(ctx, photos); err != nil {
			f.log.Warn(ctx, "feed cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return f.likes.loadLikes(ctx, photos)
}

func (f *Feed) onEvent(ev realtime.Event) {
	f.likes.apply(ev)
}

// Photos returns the displayed photos with derived like state.
func (f *Feed) Photos() []models.Photo {
	return f.likes.ledger.Photos()
}

// ToggleLike likes or unlikes a displayed photo.
func (f *Feed) ToggleLike(ctx context.Context, photoID string) (models.Photo, error) {
	return f.likes.toggle(ctx, photoID)
}
