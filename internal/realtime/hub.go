package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/rmhgeo/jobengine/internal/platform/logger"
)

// SSEEvent names the kind of job-lifecycle event carried by an SSEMessage.
type SSEEvent string

const (
	SSEEventJobCreated  SSEEvent = "job.created"
	SSEEventJobProgress SSEEvent = "job.progress"
	SSEEventJobFailed   SSEEvent = "job.failed"
	SSEEventJobDone     SSEEvent = "job.done"
	SSEEventJobCanceled SSEEvent = "job.canceled"
)

// SSEMessage is one notification pushed to every client subscribed to Channel.
// Channel is the job_id by convention (services.JobNotifier publishes on it
// and the SSE handler subscribes each client to one job_id); job handlers
// and the orchestrator never see this type directly, they go through
// services.JobNotifier.
type SSEMessage struct {
	Channel   string
	Event     SSEEvent
	Data      map[string]any
	TraceID   string `json:",omitempty"`
	RequestID string `json:",omitempty"`
}

/*
SSEHub fans out SSEMessages to in-process subscribers. It is the local half
of the notification path; bus.Bus (Redis-backed) carries messages across
process boundaries and feeds them back into a hub's Broadcast via
StartForwarder so every API replica sees every event regardless of which
worker produced it.

Delivery is best-effort: a client's outbound channel is bounded, and a
message that does not fit is dropped for that client (which stays
connected) rather than allowed to block every other subscriber on the
same channel.
*/
type SSEHub struct {
	mu      sync.RWMutex
	log     *logger.Logger
	clients map[uuid.UUID]*SSEClient
}

const outboundBuffer = 32

// NewSSEHub constructs an empty hub. Safe for concurrent use.
func NewSSEHub(log *logger.Logger) *SSEHub {
	return &SSEHub{
		log:     log.With("component", "SSEHub"),
		clients: make(map[uuid.UUID]*SSEClient),
	}
}

// NewSSEClient registers a new client under the hub and returns it. The
// caller still must call AddChannel for every channel the client should
// receive messages on.
func (h *SSEHub) NewSSEClient(userID uuid.UUID) *SSEClient {
	c := &SSEClient{
		ID:       uuid.New(),
		UserID:   userID,
		Channels: make(map[string]bool),
		Outbound: make(chan SSEMessage, outboundBuffer),
		done:     make(chan struct{}),
		Logger:   h.log,
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	return c
}

// AddChannel subscribes an already-registered client to an additional
// channel (the SSE handler uses the job_id; any string is valid).
func (h *SSEHub) AddChannel(c *SSEClient, channel string) {
	if c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	c.Channels[channel] = true
}

// RemoveChannel unsubscribes a client from a channel without disconnecting it.
func (h *SSEHub) RemoveChannel(c *SSEClient, channel string) {
	if c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.Channels, channel)
}

/*
Broadcast delivers msg to every currently-registered client subscribed to
msg.Channel. A message for a slow/full client is dropped with a warning
rather than blocking the broadcaster; since Queue Transport progress events are
idempotent snapshots (latest progress, latest status), a dropped message
is superseded by the next one rather than lost information a client
cannot recover.
*/
func (h *SSEHub) Broadcast(msg SSEMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.Channels[msg.Channel] {
			continue
		}
		select {
		case c.Outbound <- msg:
		case <-c.done:
		default:
			h.log.Warn("dropping SSE message for slow client", "client_id", c.ID, "channel", msg.Channel)
		}
	}
}

// CloseClient unregisters a client and closes its outbound channel. Safe to
// call more than once.
func (h *SSEHub) CloseClient(c *SSEClient) {
	if c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	select {
	case <-c.done:
	default:
		close(c.done)
		close(c.Outbound)
	}
}
