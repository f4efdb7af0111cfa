package reconcile

import (
	"testing"
	"time"

	"pellicule/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func comment(id, photoID string, minutes int) models.Comment {
	return models.Comment{ID: id, PhotoID: photoID, AuthorID: "u1", Content: id, CreatedAt: t0.Add(time.Duration(minutes) * time.Minute)}
}

func ids(cs []models.Comment) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestCommentThread_LoadSortsNewestFirst(t *testing.T) {
	th := NewCommentThread("p1")
	th.Load([]models.Comment{comment("a", "p1", 1), comment("c", "p1", 3), comment("b", "p1", 2), comment("a", "p1", 1)})
	assert.Equal(t, []string{"c", "b", "a"}, ids(th.Comments()))
	assert.Equal(t, 3, th.Len())
	assert.Equal(t, "p1", th.PhotoID())
}

func TestCommentThread_AddPrependsMatchingPhotoOnly(t *testing.T) {
	th := NewCommentThread("p1")
	th.Load([]models.Comment{comment("a", "p1", 1)})

	assert.True(t, th.Add(comment("b", "p1", 0)))
	assert.Equal(t, []string{"b", "a"}, ids(th.Comments()))

	assert.False(t, th.Add(comment("x", "p2", 5)))
	assert.False(t, th.Add(comment("b", "p1", 0)))
	assert.Equal(t, []string{"b", "a"}, ids(th.Comments()))
}

func TestCommentThread_RemoveExactlyMatching(t *testing.T) {
	th := NewCommentThread("p1")
	th.Load([]models.Comment{comment("a", "p1", 1), comment("b", "p1", 2)})

	got, ok := th.Remove("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, []string{"b"}, ids(th.Comments()))

	_, ok = th.Remove("zzz")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, ids(th.Comments()))
}

func TestCommentThread_ReplacePending(t *testing.T) {
	th := NewCommentThread("p1")
	th.Load([]models.Comment{comment("a", "p1", 1)})
	th.Add(comment("pending-1", "p1", 2))

	assert.True(t, th.Replace("pending-1", comment("c7", "p1", 2)))
	assert.Equal(t, []string{"c7", "a"}, ids(th.Comments()))
	assert.False(t, th.Replace("pending-1", comment("c8", "p1", 2)))

	// The confirmed record may already have arrived through an event.
	th.Add(comment("pending-2", "p1", 3))
	th.Add(comment("c9", "p1", 3))
	assert.True(t, th.Replace("pending-2", comment("c9", "p1", 3)))
	assert.Equal(t, []string{"c9", "c7", "a"}, ids(th.Comments()))
}

func TestCommentThread_RestoreByTime(t *testing.T) {
	th := NewCommentThread("p1")
	th.Load([]models.Comment{comment("a", "p1", 1), comment("b", "p1", 2), comment("c", "p1", 3)})

	removed, _ := th.Remove("b")
	assert.True(t, th.Restore(removed))
	assert.Equal(t, []string{"c", "b", "a"}, ids(th.Comments()))
	assert.False(t, th.Restore(removed))
	assert.False(t, th.Restore(comment("z", "p2", 0)))

	assert.True(t, th.Restore(comment("old", "p1", -5)))
	assert.Equal(t, "old", th.Comments()[3].ID)

	got, ok := th.Get("old")
	require.True(t, ok)
	assert.Equal(t, "old", got.Content)
}
