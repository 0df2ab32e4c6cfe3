package sse

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/supportdesk-backend/internal/logger"
)

func TestBroadcastReachesSubscribers(t *testing.T) {
	hub := NewSSEHub(logger.NewNop())

	subscriber := hub.NewSSEClient(uuid.New())
	bystander := hub.NewSSEClient(uuid.New())
	hub.AddChannel(subscriber, "updates")

	hub.Broadcast(SSEMessage{Channel: "updates", Event: SSEEventQueueChanged})

	select {
	case msg := <-subscriber.Outbound:
		if msg.Event != SSEEventQueueChanged {
			t.Errorf("event = %s, want queue.changed", msg.Event)
		}
	default:
		t.Fatal("subscriber received nothing")
	}
	select {
	case <-bystander.Outbound:
		t.Fatal("bystander received a message for a channel it never joined")
	default:
	}
}

func TestBrowserFlagFollowsPermission(t *testing.T) {
	hub := NewSSEHub(logger.NewNop())

	granted := hub.NewSSEClient(uuid.New())
	denied := hub.NewSSEClient(uuid.New())
	hub.AddChannel(granted, "alerts")
	hub.AddChannel(denied, "alerts")
	hub.SetBrowserPermission(granted.ID, BrowserPermissionGranted)
	hub.SetBrowserPermission(denied.ID, BrowserPermissionDenied)

	hub.Broadcast(SSEMessage{Channel: "alerts", Event: SSEEventHandoffCreated, Browser: true})

	if msg := <-granted.Outbound; !msg.Browser {
		t.Error("granted session lost the browser flag")
	}
	if msg := <-denied.Outbound; msg.Browser {
		t.Error("denied session kept the browser flag")
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(logger.NewNop())
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, "flood")

	// Overfill the buffer; the surplus is dropped, never blocked on.
	for i := 0; i < cap(client.Outbound)+5; i++ {
		hub.Broadcast(SSEMessage{Channel: "flood", Event: SSEEventMessageCreated})
	}
	if got := len(client.Outbound); got != cap(client.Outbound) {
		t.Fatalf("buffered = %d, want full buffer of %d", got, cap(client.Outbound))
	}
}

func TestRemoveChannelStopsDelivery(t *testing.T) {
	hub := NewSSEHub(logger.NewNop())
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, "updates")
	hub.RemoveChannel(client, "updates")

	hub.Broadcast(SSEMessage{Channel: "updates", Event: SSEEventQueueChanged})

	select {
	case <-client.Outbound:
		t.Fatal("received after unsubscribe")
	default:
	}
}

func TestCloseClientCleansUp(t *testing.T) {
	hub := NewSSEHub(logger.NewNop())
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, "updates")

	hub.CloseClient(client)

	if hub.GetClient(client.ID) != nil {
		t.Error("client still registered after close")
	}
	// Broadcasting to the now-empty channel must not panic on the closed
	// outbound channel.
	hub.Broadcast(SSEMessage{Channel: "updates", Event: SSEEventQueueChanged})
}
