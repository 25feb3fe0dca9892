package app

import (
	"os"
	"strings"

	"github.com/rmhgeo/jobengine/internal/platform/gcp"
	"github.com/rmhgeo/jobengine/internal/platform/logger"
	"github.com/rmhgeo/jobengine/internal/realtime/bus"
)

// Clients holds the external-service collaborators SPEC_FULL.md's example
// workflows exercise through the Handler contract's dependency-injection
// point (spec §6): a blob store for the raster_tile_pyramid workflow, and
// the cross-process SSE bus for job-progress fan-out.
type Clients struct {
	SSEBus bus.Bus
	Bucket gcp.BucketService
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	var out Clients

	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		b, err := bus.NewRedisBus(log)
		if err != nil {
			return Clients{}, err
		}
		out.SSEBus = b
	}

	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		out.Close()
		return Clients{}, err
	}
	out.Bucket = bucket

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
		c.SSEBus = nil
	}
}
