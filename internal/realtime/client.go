package realtime

import (
	"github.com/google/uuid"

	"github.com/rmhgeo/jobengine/internal/platform/logger"
)

// SSEClient is one connected subscriber. Outbound is buffered so a slow
// reader cannot block Broadcast; CloseClient closes it.
type SSEClient struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	Logger   *logger.Logger
}
