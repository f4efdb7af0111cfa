package views

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"pellicule/internal/models"
	"pellicule/internal/observability"
	"pellicule/internal/storage"
)

// Feed cache defaults.
const (
	DefaultFeedTTL    = time.Hour
	DefaultSampleSize = 20
)

type feedRecord struct {
	Data []models.Photo `json:"data"`
	// Expiry is in epoch milliseconds.
	Expiry int64 `json:"expiry"`
}

// FeedCache stores the sampled feed in the photos slot with an expiry.
type FeedCache struct {
	slots  storage.Store
	ttl    time.Duration
	sample int
	log    *observability.ViewLogger

	now     func() time.Time
	shuffle func(photos []models.Photo)
}

// FeedCacheOption configures a FeedCache.
type FeedCacheOption func(*FeedCache)

// WithTTL sets how long a stored sample stays valid.
func WithTTL(d time.Duration) FeedCacheOption {
	return func(c *FeedCache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithSampleSize sets how many photos a sample keeps.
func WithSampleSize(n int) FeedCacheOption {
	return func(c *FeedCache) {
		if n > 0 {
			c.sample = n
		}
	}
}

// WithClock overrides the cache time source.
func WithClock(now func() time.Time) FeedCacheOption {
	return func(c *FeedCache) { c.now = now }
}

// WithShuffle overrides the sampling permutation.
func WithShuffle(fn func(photos []models.Photo)) FeedCacheOption {
	return func(c *FeedCache) { c.shuffle = fn }
}

// NewFeedCache returns a cache over slots.
func NewFeedCache(slots storage.Store, l *observability.Logger, opts ...FeedCacheOption) *FeedCache {
	c := &FeedCache{
		slots:  slots,
		ttl:    DefaultFeedTTL,
		sample: DefaultSampleSize,
		log:    observability.NewViewLogger("feed_cache", l),
		now:    time.Now,
		shuffle: func(photos []models.Photo) {
			rand.Shuffle(len(photos), func(i, j int) { photos[i], photos[j] = photos[j], photos[i] })
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the stored sample if it has not expired. A malformed record is
// discarded and reported as a miss.
func (c *FeedCache) Get(ctx context.Context) ([]models.Photo, bool) {
	raw, err := c.slots.Get(ctx, storage.SlotFeed)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.log.Warn(ctx, "feed cache read failed", map[string]interface{}{"error": err.Error()})
		}
		return nil, false
	}
	var rec feedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.log.Warn(ctx, "discarding malformed feed cache", map[string]interface{}{"error": err.Error()})
		_ = c.slots.Delete(ctx, storage.SlotFeed)
		return nil, false
	}
	if c.now().UnixMilli() >= rec.Expiry {
		return nil, false
	}
	return rec.Data, true
}

// Put stores photos with an expiry of now plus the TTL.
func (c *FeedCache) Put(ctx context.Context, photos []models.Photo) error {
	raw, err := json.Marshal(feedRecord{Data: photos, Expiry: c.now().Add(c.ttl).UnixMilli()})
	if err != nil {
		return fmt.Errorf("encode feed cache: %w", err)
	}
	return c.slots.Put(ctx, storage.SlotFeed, raw)
}

// Invalidate drops the stored sample.
func (c *FeedCache) Invalidate(ctx context.Context) error {
	return c.slots.Delete(ctx, storage.SlotFeed)
}

// Sample returns up to the sample size photos from a shuffled copy of photos.
func (c *FeedCache) Sample(photos []models.Photo) []models.Photo {
	out := append([]models.Photo(nil), photos...)
	c.shuffle(out)
	if len(out) > c.sample {
		out = out[:c.sample]
	}
	return out
}
