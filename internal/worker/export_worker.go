package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ledgerdash/internal/amqp"
	applog "ledgerdash/internal/log"
)

// JobSource delivers export jobs to a handler until ctx is done.
type JobSource interface {
	ConsumeExportJobs(ctx context.Context, handler amqp.Handler) error
}

// ExportWorker consumes export jobs from the queue and hands them to a
// handler, typically services.ExportService.HandleJob.
type ExportWorker struct {
	source  JobSource
	handler amqp.Handler
	logger  *applog.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	err     error
}

func NewExportWorker(source JobSource, handler amqp.Handler, logger *applog.Logger) *ExportWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &ExportWorker{
		source:  source,
		handler: handler,
		logger:  logger.WithComponent(applog.ComponentWorker),
	}
}

// Start begins consuming. Returns an error if already running.
func (w *ExportWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("export worker is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.doneCh = make(chan struct{})
	w.err = nil
	w.mu.Unlock()

	go w.run(ctx)

	w.logger.InfoContext(ctx, "Export worker started")
	return nil
}

func (w *ExportWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	err := w.source.ConsumeExportJobs(ctx, w.handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.ErrorContext(ctx, "Export worker stopped with error", applog.FieldError, err.Error())
	}

	w.mu.Lock()
	w.err = err
	w.running = false
	w.mu.Unlock()
}

func (w *ExportWorker) handle(ctx context.Context, msg *amqp.ExportJobMessage) error {
	w.logger.InfoContext(ctx, "Processing export job",
		applog.FieldJobID, msg.JobID,
		applog.FieldResource, msg.Resource,
		"search", msg.Search,
		"from", msg.From.String(),
		"to", msg.To.String())
	return w.handler(ctx, msg)
}

// Stop gracefully stops the worker and waits for the job in progress.
func (w *ExportWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.doneCh
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	select {
	case <-done:
		w.logger.InfoContext(ctx, "Export worker stopped gracefully")
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Export worker stop timed out")
		return ctx.Err()
	}
	return nil
}

// Done is closed when the consumer returns.
func (w *ExportWorker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doneCh
}

// Err returns the error the consumer stopped with, if any.
func (w *ExportWorker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// IsRunning returns whether the worker is currently consuming
func (w *ExportWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
