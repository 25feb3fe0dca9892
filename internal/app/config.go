package app

import (
	"github.com/rmhgeo/jobengine/internal/platform/envutil"
)

// Config collects the process-start options app.New passes on to
// constructors (spec §6's queue.* table). The janitor.* settings, the
// worker concurrency settings, and RETRY_MAX_ATTEMPTS (read by the Janitor
// only) are read directly by the owning package via envutil, matching the
// teacher's no-central-config idiom; the backoff base/max and the
// Executor's retry bound are constants in internal/jobs/retry.
type Config struct {
	RedisAddr string

	QueueJobsName         string
	QueueTasksName        string
	QueueMaxDeliveryCount int
}

func LoadConfig() Config {
	return Config{
		RedisAddr: envutil.Str("REDIS_ADDR", "localhost:6379"),

		QueueJobsName:         envutil.Str("QUEUE_JOBS_NAME", "jobs"),
		QueueTasksName:        envutil.Str("QUEUE_TASKS_NAME", "tasks"),
		QueueMaxDeliveryCount: envutil.Int("QUEUE_MAX_DELIVERY_COUNT", 5),
	}
}
