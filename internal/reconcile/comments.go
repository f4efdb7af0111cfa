package reconcile

import (
	"sort"
	"sync"

	"pellicule/internal/models"
)

// CommentThread is the newest-first comment list of one photo. It does not check
// authorship.
type CommentThread struct {
	photoID string

	mu    sync.RWMutex
	items []models.Comment
}

// NewCommentThread returns an empty thread for photoID.
func NewCommentThread(photoID string) *CommentThread {
	return &CommentThread{photoID: photoID}
}

// PhotoID returns the photo the thread belongs to.
func (t *CommentThread) PhotoID() string { return t.photoID }

// Load replaces the thread with comments, sorted newest first.
func (t *CommentThread) Load(comments []models.Comment) {
	items := make([]models.Comment, 0, len(comments))
	seen := make(map[string]struct{}, len(comments))
	for _, c := range comments {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		items = append(items, c)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	t.mu.Lock()
	t.items = items
	t.mu.Unlock()
}

// Add prepends c when it belongs to this photo and is not already present.
func (t *CommentThread) Add(c models.Comment) bool {
	if c.PhotoID != t.photoID || c.ID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.indexOf(c.ID) >= 0 {
		return false
	}
	t.items = append([]models.Comment{c}, t.items...)
	return true
}

// Remove deletes the comment with id and returns it.
func (t *CommentThread) Remove(id string) (models.Comment, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexOf(id)
	if i < 0 {
		return models.Comment{}, false
	}
	c := t.items[i]
	t.items = append(t.items[:i], t.items[i+1:]...)
	return c, true
}

// Replace swaps the pending comment oldID for the confirmed c in place. If c is
// already present, the pending entry is just dropped.
func (t *CommentThread) Replace(oldID string, c models.Comment) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexOf(oldID)
	if i < 0 {
		return false
	}
	if t.indexOf(c.ID) >= 0 {
		t.items = append(t.items[:i], t.items[i+1:]...)
		return true
	}
	t.items[i] = c
	return true
}

// Restore re-inserts c at its position by creation time. It is a no-op when c
// is present or belongs to another photo.
func (t *CommentThread) Restore(c models.Comment) bool {
	if c.PhotoID != t.photoID || c.ID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.indexOf(c.ID) >= 0 {
		return false
	}
	i := sort.Search(len(t.items), func(i int) bool {
		return !t.items[i].CreatedAt.After(c.CreatedAt)
	})
	t.items = append(t.items, models.Comment{})
	copy(t.items[i+1:], t.items[i:])
	t.items[i] = c
	return true
}

// Get returns the comment with id.
func (t *CommentThread) Get(id string) (models.Comment, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i := t.indexOf(id); i >= 0 {
		return t.items[i], true
	}
	return models.Comment{}, false
}

// Comments returns a copy of the thread, newest first.
func (t *CommentThread) Comments() []models.Comment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]models.Comment(nil), t.items...)
}

// Len returns the number of comments.
func (t *CommentThread) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

func (t *CommentThread) indexOf(id string) int {
	for i, c := range t.items {
		if c.ID == id {
			return i
		}
	}
	return -1
}
