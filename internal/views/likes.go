package views

import (
	"context"
	"fmt"

	"pellicule/internal/models"
	"pellicule/internal/observability"
	"pellicule/internal/realtime"
	"pellicule/internal/reconcile"
)

// likeBinder connects a view's like ledger to the REST API and the channel.
type likeBinder struct {
	b      *base
	ledger *reconcile.LikeLedger
}

// toggle likes or unlikes photoID for the current identity. The ledger is
// updated first; the matching event is emitted only once the call succeeds.
func (l *likeBinder) toggle(ctx context.Context, photoID string) (models.Photo, error) {
	identity, err := l.b.identity()
	if err != nil {
		return models.Photo{}, err
	}
	if _, ok := l.ledger.Photo(photoID); !ok {
		return models.Photo{}, fmt.Errorf("photo %s is not shown in %s", photoID, l.b.name)
	}
	ctx, done, err := l.b.mutationContext(ctx)
	if err != nil {
		return models.Photo{}, err
	}
	defer done()

	like := models.Like{PhotoID: photoID, UserID: identity.ID}
	var (
		kind string
		ev   realtime.Event
	)
	if l.ledger.Liked(photoID, identity.ID) {
		kind = "unlike"
		l.ledger.Remove(photoID, identity.ID)
		err = l.b.deps.API.DeleteLike(ctx, like)
		ev = realtime.LikeRemoved(like)
	} else {
		kind = "like"
		l.ledger.Add(photoID, identity.ID)
		err = l.b.deps.API.CreateLike(ctx, like)
		ev = realtime.LikeAdded(like)
	}

	if err != nil {
		rolledBack := false
		if l.b.deps.RollbackOnFailure {
			if kind == "like" {
				l.ledger.Remove(photoID, identity.ID)
			} else {
				l.ledger.Add(photoID, identity.ID)
			}
			rolledBack = true
			observability.RecordMutation(kind, "rolled_back")
		} else {
			observability.RecordMutation(kind, "failed")
		}
		l.b.log.LogMutationError(ctx, kind, photoID, rolledBack, err)
		p, _ := l.ledger.Photo(photoID)
		return p, fmt.Errorf("%s %s: %w", kind, photoID, err)
	}

	observability.RecordMutation(kind, "ok")
	l.b.emit(ctx, ev)
	p, _ := l.ledger.Photo(photoID)
	return p, nil
}

// apply merges a remote like event into the ledger.
func (l *likeBinder) apply(ev realtime.Event) bool {
	switch e := ev.(type) {
	case realtime.LikeAdded:
		return l.ledger.Add(e.PhotoID, e.UserID)
	case realtime.LikeRemoved:
		return l.ledger.Remove(e.PhotoID, e.UserID)
	}
	return false
}

// loadLikes fills the ledger with photos and the current user's likes.
func (l *likeBinder) loadLikes(ctx context.Context, photos []models.Photo) error {
	self := l.b.selfID()
	l.ledger.SetSelf(self)
	if self == "" {
		l.ledger.Load(photos, nil)
		return nil
	}
	likes, err := l.b.deps.API.ListLikesByUser(ctx, self)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		// The photos are still shown; liked flags stay unknown until the next load.
		l.b.log.LogFetchError(ctx, "likes", err)
		l.ledger.Load(photos, nil)
		return nil
	}
	l.ledger.Load(photos, likes, self)
	return nil
}
