package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ledgerdash/internal/amqp"
	"ledgerdash/internal/api"
	"ledgerdash/internal/catalog"
	applog "ledgerdash/internal/log"
	"ledgerdash/internal/storage"
	"ledgerdash/internal/table"
)

var (
	ErrNoWriter         = errors.New("no export writer configured")
	ErrQueueUnavailable = errors.New("export queue not configured")
	ErrDestination      = errors.New("export destination not served")
)

// ExportLog records the lifecycle of export jobs.
type ExportLog interface {
	RecordExport(ctx context.Context, jobID, resource string) (storage.ExportRecord, error)
	FinishExport(ctx context.Context, jobID, resource, destination string, rows int, jobErr error) (storage.ExportRecord, error)
}

// ExportServiceConfig holds configuration for the export service
type ExportServiceConfig struct {
	// MaxRetries is how many times a transient failure is requeued before the
	// job is given up (default: 3)
	MaxRetries int

	// Timeout bounds a single job run (default: 2m)
	Timeout time.Duration

	// Destination names the backend the writer exports to (xlsx, sheets,
	// memory). Jobs asking for another destination fail permanently.
	Destination string
}

// DefaultExportServiceConfig returns sensible defaults
func DefaultExportServiceConfig() ExportServiceConfig {
	return ExportServiceConfig{
		MaxRetries: 3,
		Timeout:    2 * time.Minute,
	}
}

// ExportService runs exports of filtered views, either inline or through the
// job queue.
type ExportService struct {
	registry  *catalog.Registry
	deps      catalog.Deps
	writer    table.Writer
	exports   ExportLog
	publisher amqp.Publisher
	config    ExportServiceConfig
	logger    *applog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

// NewExportService creates an export service. exports and publisher may be
// nil: exports are then not logged and Enqueue is unavailable.
func NewExportService(
	registry *catalog.Registry,
	deps catalog.Deps,
	writer table.Writer,
	exports ExportLog,
	publisher amqp.Publisher,
	config ExportServiceConfig,
) *ExportService {
	logger := deps.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultExportServiceConfig().MaxRetries
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultExportServiceConfig().Timeout
	}
	return &ExportService{
		registry:  registry,
		deps:      deps,
		writer:    writer,
		exports:   exports,
		publisher: publisher,
		config:    config,
		logger:    logger.WithComponent(applog.ComponentExport),
		attempts:  make(map[string]int),
	}
}

// Enqueue records a queued export and publishes it for a worker.
func (s *ExportService) Enqueue(ctx context.Context, resource string, c table.Criteria, destination string) (*amqp.ExportJobMessage, error) {
	if s.publisher == nil {
		return nil, ErrQueueUnavailable
	}
	desc, err := s.registry.Lookup(resource)
	if err != nil {
		return nil, err
	}
	msg := amqp.NewExportJobMessage(desc.Info().Name, c, destination)

	if s.exports != nil {
		if _, err := s.exports.RecordExport(ctx, msg.JobID, msg.Resource); err != nil {
			return nil, fmt.Errorf("record export: %w", err)
		}
	}

	if err := s.publisher.PublishExportJob(ctx, msg); err != nil {
		if s.exports != nil {
			if _, logErr := s.exports.FinishExport(ctx, msg.JobID, msg.Resource, "", 0, err); logErr != nil {
				s.logger.WarnContext(ctx, "Failed to mark unpublished export as failed",
					applog.FieldJobID, msg.JobID, applog.FieldError, logErr.Error())
			}
		}
		return nil, fmt.Errorf("publish export job: %w", err)
	}

	s.logger.InfoContext(ctx, "Export job queued",
		applog.FieldJobID, msg.JobID,
		applog.FieldResource, msg.Resource,
		applog.FieldOperation, applog.OpEnqueue)
	return msg, nil
}

// Run executes a job inline: load the resource, apply the job criteria and
// write the view. The outcome is recorded in the export log.
func (s *ExportService) Run(ctx context.Context, job *amqp.ExportJobMessage) (table.ExportResult, error) {
	res, err := s.attemptJob(ctx, job)
	s.record(ctx, job, res, err)
	return res, err
}

func (s *ExportService) attemptJob(ctx context.Context, job *amqp.ExportJobMessage) (table.ExportResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	return s.run(ctx, job)
}

// record stores the final outcome of a job in the export log.
func (s *ExportService) record(ctx context.Context, job *amqp.ExportJobMessage, res table.ExportResult, err error) {
	if s.exports == nil {
		return
	}
	// The job context may be spent; the outcome still has to land.
	logCtx := context.WithoutCancel(ctx)
	if _, logErr := s.exports.FinishExport(logCtx, job.JobID, job.Resource, res.Ref, res.Rows, err); logErr != nil {
		s.logger.WarnContext(ctx, "Failed to record export outcome",
			applog.FieldJobID, job.JobID, applog.FieldError, logErr.Error())
	}
}

func (s *ExportService) run(ctx context.Context, job *amqp.ExportJobMessage) (table.ExportResult, error) {
	if s.writer == nil {
		return table.ExportResult{}, ErrNoWriter
	}
	if job.Destination != "" && job.Destination != s.config.Destination {
		return table.ExportResult{}, fmt.Errorf("%w: job wants %q, writer is %q", ErrDestination, job.Destination, s.config.Destination)
	}
	t, err := s.registry.Open(job.Resource, s.deps)
	if err != nil {
		return table.ExportResult{}, err
	}
	defer t.Close()

	if err := t.Load(ctx); err != nil {
		return table.ExportResult{}, fmt.Errorf("load %s: %w", job.Resource, err)
	}
	return t.Export(ctx, job.Criteria(), s.writer)
}

// HandleJob runs a queued job. Permanent failures are logged and swallowed so
// the message is acked; transient ones are returned for requeue until
// MaxRetries is reached. The export log keeps the job queued while a retry is
// still planned.
func (s *ExportService) HandleJob(ctx context.Context, job *amqp.ExportJobMessage) error {
	res, err := s.attemptJob(ctx, job)
	if err == nil {
		s.forget(job.JobID)
		s.record(ctx, job, res, nil)
		return nil
	}

	if !Retryable(err) {
		s.forget(job.JobID)
		s.record(ctx, job, res, err)
		s.logger.ErrorContext(ctx, "Export job failed permanently",
			applog.FieldJobID, job.JobID,
			applog.FieldResource, job.Resource,
			applog.FieldError, err.Error(),
			applog.FieldErrorType, api.ErrorType(err))
		return nil
	}

	attempt := s.attempt(job.JobID)
	if attempt >= s.config.MaxRetries {
		s.forget(job.JobID)
		s.record(ctx, job, res, err)
		s.logger.ErrorContext(ctx, "Export job failed permanently after max retries",
			applog.FieldJobID, job.JobID,
			applog.FieldResource, job.Resource,
			"attempts", attempt,
			applog.FieldError, err.Error())
		return nil
	}

	s.logger.WarnContext(ctx, "Export job failed, will retry",
		applog.FieldJobID, job.JobID,
		"attempt", attempt,
		applog.FieldError, err.Error())
	return err
}

func (s *ExportService) attempt(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[jobID]++
	return s.attempts[jobID]
}

func (s *ExportService) forget(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, jobID)
}

// Retryable reports whether an export failure may succeed on a later try.
// Auth, parse, unknown-resource and destination failures never will.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, api.ErrAuth), errors.Is(err, api.ErrParse), errors.Is(err, catalog.ErrUnknownResource),
		errors.Is(err, ErrNoWriter), errors.Is(err, ErrDestination):
		return false
	default:
		return true
	}
}
