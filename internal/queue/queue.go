package queue

import "context"

// ImportJob is the unit of work carried by the continuation queue. A
// START request enqueues the first job; a segment that runs out of
// budget enqueues a resume job for the same run.
type ImportJob struct {
	RunID         string `json:"run_id"`
	IntegrationID string `json:"integration_id"`
	Resume        bool   `json:"resume"`
}

// Publisher enqueues import jobs.
type Publisher interface {
	Publish(ctx context.Context, job *ImportJob) error
}

// Consumer delivers import jobs to a handler until the context is
// cancelled. Handler errors are logged and the message is dropped; the
// run registry, not the broker, is the source of truth for retrying.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, *ImportJob) error) error
}
