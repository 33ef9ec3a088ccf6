package events

import (
	"context"

	"github.com/tigerphoto/photobooth-backend/internal/clients/redisbus"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/sse"
)

// Publisher is the fire-and-forget side of the event bus. Publish never
// returns an error to the workflow: event delivery is best-effort and
// carries no durability guarantee.
type Publisher interface {
	Publish(ctx context.Context, sessionUUID string, event string, data any)
}

// HubPublisher delivers directly to the in-process hub. Used when no Redis
// bridge is configured (single-process deployments and tests).
type HubPublisher struct {
	Hub *sse.Hub
}

func (p *HubPublisher) Publish(ctx context.Context, sessionUUID string, event string, data any) {
	p.Hub.Broadcast(sse.Event{Channel: sessionUUID, Event: event, Data: data})
}

// BusPublisher routes through Redis so every API process's hub sees the
// event via the forwarder.
type BusPublisher struct {
	Log *logger.Logger
	Bus redisbus.Bus
}

func (p *BusPublisher) Publish(ctx context.Context, sessionUUID string, event string, data any) {
	err := p.Bus.Publish(ctx, sse.Event{Channel: sessionUUID, Event: event, Data: data})
	if err != nil && p.Log != nil {
		p.Log.Warn("Event publish failed", "session_uuid", sessionUUID, "event", event, "error", err)
	}
}
