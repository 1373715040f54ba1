package importer

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/omnipos/catalog-sync/internal/queue"
)

// Worker consumes import jobs and drives the runner
type Worker struct {
	consumer queue.Consumer
	runner   *Runner
	logger   *logrus.Logger
}

// NewWorker creates a new worker
func NewWorker(consumer queue.Consumer, runner *Runner, logger *logrus.Logger) *Worker {
	return &Worker{
		consumer: consumer,
		runner:   runner,
		logger:   logger,
	}
}

// Start consumes jobs until the context is cancelled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Import worker started")
	return w.consumer.Consume(ctx, func(ctx context.Context, job *queue.ImportJob) error {
		return w.runner.RunSegment(ctx, job)
	})
}
