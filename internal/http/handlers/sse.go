package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rmhgeo/jobengine/internal/jobs/gateway"
	joberrors "github.com/rmhgeo/jobengine/internal/pkg/errors"
	"github.com/rmhgeo/jobengine/internal/platform/logger"
	"github.com/rmhgeo/jobengine/internal/realtime"
)

// SSEHandler streams job-progress events (spec §6's ambient push convenience):
// a client that already polled GET /jobs/{job_id} can instead hold this
// connection open and receive job.progress/job.done/job.failed events as the
// executor advances the job, via services.JobNotifier.
type SSEHandler struct {
	hub *realtime.SSEHub
	gw  *gateway.Gateway
	log *logger.Logger
}

func NewSSEHandler(hub *realtime.SSEHub, gw *gateway.Gateway, log *logger.Logger) *SSEHandler {
	return &SSEHandler{hub: hub, gw: gw, log: log.With("component", "SSEHandler")}
}

// StreamJobEvents handles GET /jobs/:job_id/events.
func (h *SSEHandler) StreamJobEvents(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := h.gw.Get(c.Request.Context(), jobID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, joberrors.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	client := h.hub.NewSSEClient(uuid.Nil)
	h.hub.AddChannel(client, jobID)
	defer h.hub.CloseClient(client)

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, open := <-client.Outbound:
			if !open {
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				h.log.Warn("marshal SSE message failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\n", msg.Event)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
