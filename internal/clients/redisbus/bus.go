package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/sse"
	"github.com/tigerphoto/photobooth-backend/internal/utils"
)

const channelPrefix = "session:"

// Bus bridges session events across processes over Redis pub/sub, so an
// event published by a worker reaches subscribers held by any API process.
type Bus interface {
	Publish(ctx context.Context, msg sse.Event) error
	// StartForwarder subscribes to every session channel and feeds received
	// envelopes into onMsg until ctx is cancelled.
	StartForwarder(ctx context.Context, onMsg func(m sse.Event)) error
	Close() error
}

type bus struct {
	log *logger.Logger
	rdb *goredis.Client
}

func New(log *logger.Logger) (Bus, error) {
	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &bus{log: log.With("service", "RedisBus"), rdb: rdb}, nil
}

func (b *bus) Publish(ctx context.Context, msg sse.Event) error {
	if msg.Channel == "" {
		return fmt.Errorf("event channel required")
	}
	raw, err := json.Marshal(map[string]any{"event": msg.Event, "data": msg.Data})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelPrefix+msg.Channel, raw).Err()
}

func (b *bus) StartForwarder(ctx context.Context, onMsg func(m sse.Event)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				onMsg(decode(m.Channel, m.Payload))
			}
		}
	}()

	return nil
}

// decode turns a raw pub/sub payload back into a hub event. Malformed
// payloads become an "unknown" event carrying the raw text instead of
// being dropped.
func decode(redisChannel, payload string) sse.Event {
	session := strings.TrimPrefix(redisChannel, channelPrefix)
	var envelope struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil || envelope.Event == "" {
		return sse.Event{
			Channel: session,
			Event:   sse.EventUnknown,
			Data:    map[string]any{"raw": payload},
		}
	}
	var data any
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			data = string(envelope.Data)
		}
	}
	return sse.Event{Channel: session, Event: envelope.Event, Data: data}
}

func (b *bus) Close() error {
	return b.rdb.Close()
}
