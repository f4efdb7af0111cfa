package views

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pellicule/internal/api"
	"pellicule/internal/models"
	"pellicule/internal/observability"
	"pellicule/internal/realtime"
	"pellicule/internal/reconcile"
)

// ErrCommentNotFound is returned when deleting a comment the view does not show.
var ErrCommentNotFound = errors.New("views: comment not found")

// ErrEmptyComment is returned when posting blank content.
var ErrEmptyComment = errors.New("views: comment is empty")

// PhotoDetail shows one photo with its likes and comments.
type PhotoDetail struct {
	base
	photoID string
	likes   likeBinder
	thread  *reconcile.CommentThread
	now     func() time.Time
}

// NewPhotoDetail returns an unmounted detail view of photoID.
func NewPhotoDetail(deps Deps, photoID string) *PhotoDetail {
	v := &PhotoDetail{
		photoID: photoID,
		thread:  reconcile.NewCommentThread(photoID),
		now:     time.Now,
	}
	v.init("photo", deps)
	v.likes = likeBinder{b: &v.base, ledger: reconcile.NewLikeLedger("")}
	return v
}

// Mount loads the photo, its likes and its comments.
func (v *PhotoDetail) Mount(ctx context.Context) error {
	return v.mount(ctx, v.load, v.onEvent)
}

func (v *PhotoDetail) load(ctx context.Context) error {
	photo, err := v.deps.API.GetPhoto(ctx, v.photoID)
	if err != nil {
		return fmt.Errorf("load photo %s: %w", v.photoID, err)
	}
	likes, err := v.deps.API.ListLikesByPhoto(ctx, v.photoID)
	if err != nil {
		return fmt.Errorf("load likes of %s: %w", v.photoID, err)
	}
	comments, err := v.deps.API.ListComments(ctx, v.photoID)
	if err != nil {
		return fmt.Errorf("load comments of %s: %w", v.photoID, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	self := v.selfID()
	v.likes.ledger.SetSelf(self)
	known := []string{}
	if self != "" {
		known = append(known, self)
	}
	v.likes.ledger.Load([]models.Photo{*photo}, likes, known...)
	v.thread.Load(comments)
	v.syncCommentCount()
	return nil
}

func (v *PhotoDetail) onEvent(ev realtime.Event) {
	switch e := ev.(type) {
	case realtime.CommentAdded:
		if v.thread.Add(e.Comment) {
			v.syncCommentCount()
		}
	case realtime.CommentDeleted:
		if _, ok := v.thread.Remove(e.ID); ok {
			v.syncCommentCount()
		}
	default:
		v.likes.apply(ev)
	}
}

func (v *PhotoDetail) syncCommentCount() {
	v.likes.ledger.SetCommentsCount(v.photoID, v.thread.Len())
}

// Photo returns the photo with derived like state.
func (v *PhotoDetail) Photo() (models.Photo, bool) {
	return v.likes.ledger.Photo(v.photoID)
}

// Comments returns the comments, newest first.
func (v *PhotoDetail) Comments() []models.Comment {
	return v.thread.Comments()
}

// ToggleLike likes or unlikes the photo.
func (v *PhotoDetail) ToggleLike(ctx context.Context) (models.Photo, error) {
	return v.likes.toggle(ctx, v.photoID)
}

// AddComment posts content as the current user. A pending comment is shown at
// once and replaced by the stored record when the call returns.
func (v *PhotoDetail) AddComment(ctx context.Context, content string) (models.Comment, error) {
	identity, err := v.identity()
	if err != nil {
		return models.Comment{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, ErrEmptyComment
	}
	ctx, done, err := v.mutationContext(ctx)
	if err != nil {
		return models.Comment{}, err
	}
	defer done()

	pending := models.Comment{
		ID:        "pending-" + realtime.NewID(),
		PhotoID:   v.photoID,
		AuthorID:  identity.ID,
		Content:   content,
		CreatedAt: v.now().UTC(),
	}
	if v.deps.Profiles != nil {
		if p, ok := v.deps.Profiles.Current(); ok {
			pending.AuthorHandle = p.Handle
		}
	}
	v.thread.Add(pending)
	v.syncCommentCount()

	stored, err := v.deps.API.CreateComment(ctx, api.NewComment{PhotoID: v.photoID, UserID: identity.ID, Content: content})
	if err != nil {
		rolledBack := false
		if v.deps.RollbackOnFailure {
			v.thread.Remove(pending.ID)
			v.syncCommentCount()
			rolledBack = true
			observability.RecordMutation("comment", "rolled_back")
		} else {
			observability.RecordMutation("comment", "failed")
		}
		v.log.LogMutationError(ctx, "comment", v.photoID, rolledBack, err)
		return pending, fmt.Errorf("comment on %s: %w", v.photoID, err)
	}

	v.thread.Replace(pending.ID, *stored)
	v.syncCommentCount()
	observability.RecordMutation("comment", "ok")
	v.emit(ctx, realtime.CommentAdded{Comment: *stored})
	return *stored, nil
}

// DeleteComment removes one of the current user's comments.
func (v *PhotoDetail) DeleteComment(ctx context.Context, commentID string) error {
	identity, err := v.identity()
	if err != nil {
		return err
	}
	c, ok := v.thread.Get(commentID)
	if !ok {
		return ErrCommentNotFound
	}
	if c.AuthorID != identity.ID {
		return ErrNotAuthor
	}
	ctx, done, err := v.mutationContext(ctx)
	if err != nil {
		return err
	}
	defer done()

	v.thread.Remove(commentID)
	v.syncCommentCount()

	if err := v.deps.API.DeleteComment(ctx, commentID); err != nil {
		rolledBack := false
		if v.deps.RollbackOnFailure {
			v.thread.Restore(c)
			v.syncCommentCount()
			rolledBack = true
			observability.RecordMutation("uncomment", "rolled_back")
		} else {
			observability.RecordMutation("uncomment", "failed")
		}
		v.log.LogMutationError(ctx, "uncomment", commentID, rolledBack, err)
		return fmt.Errorf("delete comment %s: %w", commentID, err)
	}

	observability.RecordMutation("uncomment", "ok")
	v.emit(ctx, realtime.CommentDeleted{ID: commentID})
	return nil
}
