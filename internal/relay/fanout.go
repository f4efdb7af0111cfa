package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"pellicule/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventsChannel is the Redis pub/sub channel shared by relay instances.
const EventsChannel = "pellicule:events"

type fanoutFrame struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

// Fanout forwards events between relay instances over Redis. Frames carry the
// publishing instance id so an instance skips its own publishes.
type Fanout struct {
	rdb      *redis.Client
	instance string
	log      *observability.ChannelLogger
}

// NewFanout creates a Fanout with a fresh instance id. A nil client disables it.
func NewFanout(rdb *redis.Client, l *observability.Logger) *Fanout {
	return &Fanout{
		rdb:      rdb,
		instance: uuid.NewString(),
		log:      observability.NewChannelLogger("relay fanout", l),
	}
}

// Instance returns this relay's origin id.
func (f *Fanout) Instance() string { return f.instance }

// Publish sends an encoded event to the other instances.
func (f *Fanout) Publish(ctx context.Context, event []byte) error {
	if f == nil || f.rdb == nil {
		return nil
	}
	frame, err := json.Marshal(fanoutFrame{Origin: f.instance, Data: event})
	if err != nil {
		return fmt.Errorf("encode fanout frame: %w", err)
	}
	if err := f.rdb.Publish(ctx, EventsChannel, frame).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("publish").Inc()
		return fmt.Errorf("publish %s: %w", EventsChannel, err)
	}
	return nil
}

// Start subscribes to the events channel and calls onEvent for every frame
// published by another instance, until ctx is done.
func (f *Fanout) Start(ctx context.Context, onEvent func(event []byte)) error {
	if f == nil || f.rdb == nil {
		return nil
	}
	sub := f.rdb.Subscribe(ctx, EventsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		observability.RedisErrorRate.WithLabelValues("subscribe").Inc()
		return fmt.Errorf("subscribe %s: %w", EventsChannel, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							f.log.LogError(ctx, "fanout", fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
						}
					}()
					var frame fanoutFrame
					if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
						f.log.LogDrop(ctx, "malformed_frame", err)
						return
					}
					if frame.Origin == f.instance {
						return
					}
					onEvent(frame.Data)
				}()
			}
		}
	}()

	return nil
}
