package services

import (
	"context"

	"github.com/yungbote/supportdesk-backend/internal/sse"
)

type SSEEmitter interface {
	Emit(ctx context.Context, msg sse.SSEMessage)
}

// HubEmitter delivers straight to the local hub; the single-instance setup
// and every test use this one.
type HubEmitter struct{ Hub *sse.SSEHub }

func (e *HubEmitter) Emit(ctx context.Context, msg sse.SSEMessage) {
	e.Hub.Broadcast(msg)
}

// BusEmitter publishes through redis so all instances (this one included,
// via the forwarder) deliver to their local hubs.
type BusEmitter struct{ Bus SSEBus }

func (e *BusEmitter) Emit(ctx context.Context, msg sse.SSEMessage) {
	_ = e.Bus.Publish(ctx, msg)
}
