// Package reconcile holds the like and comment state shown by views and merges
// local optimistic mutations with remote events.
package reconcile

import (
	"sync"

	"pellicule/internal/models"
)

type likeState struct {
	photo models.Photo
	// unattributed counts server likes whose authors are not known individually.
	unattributed int
	// likers maps a user to true when their like is present and false when it is known absent.
	likers map[string]bool
}

func (s *likeState) count() int {
	n := s.unattributed
	for _, present := range s.likers {
		if present {
			n++
		}
	}
	return n
}

// LikeLedger tracks the like set of a list of photos. The displayed count and
// liked flag are derived from the set, so repeated adds or removes for the same
// (photo, user) pair change nothing.
type LikeLedger struct {
	mu     sync.RWMutex
	self   string
	order  []string
	photos map[string]*likeState
}

// NewLikeLedger returns an empty ledger for the given current user id ("" when logged out).
func NewLikeLedger(self string) *LikeLedger {
	return &LikeLedger{self: self, photos: make(map[string]*likeState)}
}

// SetSelf changes the user whose liked flags are derived.
func (l *LikeLedger) SetSelf(userID string) {
	l.mu.Lock()
	l.self = userID
	l.mu.Unlock()
}

// Self returns the current user id.
func (l *LikeLedger) Self() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.self
}

// Load replaces the ledger contents. likes are the attributed likes known for
// these photos; the remainder of each server count stays unattributed.
// knownUsers lists users whose likes are complete in likes, so their absence
// on a photo is known.
func (l *LikeLedger) Load(photos []models.Photo, likes []models.Like, knownUsers ...string) {
	byPhoto := make(map[string]map[string]bool, len(photos))
	for _, lk := range likes {
		m, ok := byPhoto[lk.PhotoID]
		if !ok {
			m = make(map[string]bool)
			byPhoto[lk.PhotoID] = m
		}
		m[lk.UserID] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = l.order[:0]
	l.photos = make(map[string]*likeState, len(photos))
	for _, p := range photos {
		if _, dup := l.photos[p.ID]; dup {
			continue
		}
		likers := make(map[string]bool)
		for u := range byPhoto[p.ID] {
			likers[u] = true
		}
		for _, u := range knownUsers {
			if !likers[u] {
				likers[u] = false
			}
		}
		st := &likeState{photo: p, likers: likers}
		st.unattributed = p.LikesCount - st.count()
		if st.unattributed < 0 {
			st.unattributed = 0
		}
		l.order = append(l.order, p.ID)
		l.photos[p.ID] = st
	}
}

// Add records userID's like on photoID and reports whether the state changed.
// Unknown photos are ignored.
func (l *LikeLedger) Add(photoID, userID string) bool {
	if userID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.photos[photoID]
	if !ok || st.likers[userID] {
		return false
	}
	st.likers[userID] = true
	return true
}

// Remove withdraws userID's like on photoID and reports whether the state changed.
// A user not tracked individually is assumed to be part of the unattributed count.
func (l *LikeLedger) Remove(photoID, userID string) bool {
	if userID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.photos[photoID]
	if !ok {
		return false
	}
	present, known := st.likers[userID]
	switch {
	case present:
		st.likers[userID] = false
		return true
	case known:
		return false
	case st.unattributed > 0:
		st.unattributed--
		st.likers[userID] = false
		return true
	default:
		st.likers[userID] = false
		return false
	}
}

// Liked reports whether userID's like on photoID is present.
func (l *LikeLedger) Liked(photoID, userID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, ok := l.photos[photoID]
	return ok && st.likers[userID]
}

// Photo returns the photo with derived LikesCount and Liked.
func (l *LikeLedger) Photo(photoID string) (models.Photo, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, ok := l.photos[photoID]
	if !ok {
		return models.Photo{}, false
	}
	return l.view(st), true
}

// Photos returns every photo in load order.
func (l *LikeLedger) Photos() []models.Photo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Photo, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.view(l.photos[id]))
	}
	return out
}

// SetCommentsCount overrides the stored comment count of a photo.
func (l *LikeLedger) SetCommentsCount(photoID string, n int) {
	if n < 0 {
		n = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.photos[photoID]; ok {
		st.photo.CommentsCount = n
	}
}

func (l *LikeLedger) view(st *likeState) models.Photo {
	p := st.photo
	p.LikesCount = st.count()
	p.Liked = l.self != "" && st.likers[l.self]
	return p
}
