package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/supportdesk-backend/internal/logger"
)

type SSEEvent string

const (
	SSEEventMessageCreated      SSEEvent = "message.created"
	SSEEventConversationUpdated SSEEvent = "conversation.updated"
	SSEEventQueueChanged        SSEEvent = "queue.changed"
	SSEEventHandoffCreated      SSEEvent = "handoff.created"
)

// AdminQueueChannel is the shared channel every connected admin listens on
// for queue-wide events (new unassigned-urgent conversations, bulk changes).
const AdminQueueChannel = "admin.queue"

// BrowserPermission is tracked per client session, not per user account: the
// same user may have granted native notifications in one tab and denied them
// in another.
type BrowserPermission string

const (
	BrowserPermissionDefault BrowserPermission = "default"
	BrowserPermissionGranted BrowserPermission = "granted"
	BrowserPermissionDenied  BrowserPermission = "denied"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
	// Browser marks deliveries that should additionally surface as a native
	// browser notification on sessions that granted permission.
	Browser bool `json:"browser,omitempty"`
}

type SSEClient struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Channels          map[string]bool
	Outbound          chan SSEMessage
	browserPermission BrowserPermission
	done              chan struct{}
}

type SSEHub struct {
	mu            sync.RWMutex
	logger        *logger.Logger
	subscriptions map[string]map[*SSEClient]bool
	clients       map[uuid.UUID]*SSEClient
}

func NewSSEHub(log *logger.Logger) *SSEHub {
	return &SSEHub{
		logger:        log.With("component", "SSEHub"),
		subscriptions: make(map[string]map[*SSEClient]bool),
		clients:       make(map[uuid.UUID]*SSEClient),
	}
}

func (hub *SSEHub) NewSSEClient(userID uuid.UUID) *SSEClient {
	client := &SSEClient{
		ID:                uuid.New(),
		UserID:            userID,
		Channels:          make(map[string]bool),
		Outbound:          make(chan SSEMessage, 16),
		browserPermission: BrowserPermissionDefault,
		done:              make(chan struct{}),
	}
	hub.mu.Lock()
	hub.clients[client.ID] = client
	hub.mu.Unlock()
	return client
}

func (hub *SSEHub) GetClient(clientID uuid.UUID) *SSEClient {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return hub.clients[clientID]
}

// SetBrowserPermission records the client session's native-notification
// permission. Denial is not an error, it only disables that channel.
func (hub *SSEHub) SetBrowserPermission(clientID uuid.UUID, permission BrowserPermission) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if client, ok := hub.clients[clientID]; ok {
		client.browserPermission = permission
	}
}

func (hub *SSEHub) AddChannel(client *SSEClient, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}

	client.Channels[channel] = true

	clients, exists := hub.subscriptions[channel]
	if !exists {
		clients = make(map[*SSEClient]bool)
		hub.subscriptions[channel] = clients
	}
	clients[client] = true

	hub.logger.Debug("SSE client subscribed", "clientID", client.ID, "channel", channel)
}

func (hub *SSEHub) RemoveChannel(client *SSEClient, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	delete(client.Channels, channel)

	if subMap, ok := hub.subscriptions[channel]; ok {
		delete(subMap, client)
		if len(subMap) == 0 {
			delete(hub.subscriptions, channel)
		}
	}
	hub.logger.Debug("SSE client unsubscribed from channel", "clientID", client.ID, "channel", channel)
}

func (hub *SSEHub) RemoveClient(client *SSEClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for ch := range client.Channels {
		if subMap, ok := hub.subscriptions[ch]; ok {
			delete(subMap, client)
			if len(subMap) == 0 {
				delete(hub.subscriptions, ch)
			}
		}
	}
	client.Channels = make(map[string]bool)
	delete(hub.clients, client.ID)
}

// Broadcast fans a message out to every subscriber of its channel. Delivery
// is at-least-once per connected client; a client whose buffer is full loses
// the event (unread counters self-heal on the next read).
func (hub *SSEHub) Broadcast(msg SSEMessage) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if msg.Channel == "" {
		return
	}
	clientsMap, ok := hub.subscriptions[msg.Channel]
	if !ok {
		return
	}
	for c := range clientsMap {
		out := msg
		if out.Browser && c.browserPermission != BrowserPermissionGranted {
			out.Browser = false
		}
		select {
		case c.Outbound <- out:
		default:
			hub.logger.Warn("Dropping SSE message; outbound buffer full", "clientID", c.ID)
		}
	}
}

func (hub *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *SSEClient) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			hub.logger.Debug("SSE client context done", "clientID", client.ID, "err", ctx.Err())
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-client.Outbound:
			jsonBytes, err := json.Marshal(msg)
			if err != nil {
				hub.logger.Warn("Failed to marshal SSE message", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: message\n")
			_, _ = fmt.Fprintf(w, "data: %s\n\n", string(jsonBytes))
			flusher.Flush()
		}
	}
}

func (hub *SSEHub) CloseClient(client *SSEClient) {
	close(client.done)
	hub.RemoveClient(client)
	close(client.Outbound)
}
