package table

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	applog "ledgerdash/internal/log"
)

// State is the lifecycle of one controller instance.
type State int

const (
	Idle State = iota
	Loading
	Loaded
	Errored
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Errored:
		return "errored"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st := Idle; st <= Closed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

var (
	ErrNotLoaded    = errors.New("resource not loaded")
	ErrNotRetryable = errors.New("nothing to retry")
	ErrClosed       = errors.New("controller closed")
	ErrSuperseded   = errors.New("load superseded by a newer one")
)

// Loader fetches the whole list resource.
type Loader[T any] func(ctx context.Context) ([]T, error)

type options struct {
	endpoint  string
	logger    *applog.StructuredLogger
	message   func(error) string
	errorType func(error) string
	now       func() time.Time
}

type Option func(*options)

// WithEndpoint records the backend endpoint for logging.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

func WithLogger(l *applog.Logger) Option {
	return func(o *options) { o.logger = applog.NewStructuredLogger(l) }
}

// WithErrorMapping sets how load failures become user messages and log
// categories.
func WithErrorMapping(message, errorType func(error) string) Option {
	return func(o *options) {
		if message != nil {
			o.message = message
		}
		if errorType != nil {
			o.errorType = errorType
		}
	}
}

// Controller owns one list resource: it loads it, keeps it read-only in
// memory and derives filtered views and exports from it.
type Controller[T any] struct {
	name   string
	schema Schema[T]
	loader Loader[T]
	opts   options

	mu       sync.Mutex
	state    State
	records  []T
	err      error
	message  string
	loadedAt time.Time
	cancel   context.CancelFunc
	gen      uint64
}

func NewController[T any](name string, schema Schema[T], loader Loader[T], opts ...Option) *Controller[T] {
	o := options{
		logger:    applog.NewStructuredLogger(applog.Discard()),
		message:   func(error) string { return "Could not load the data. Try again." },
		errorType: func(error) string { return applog.ErrorTypeInternal },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Controller[T]{name: name, schema: schema, loader: loader, opts: o}
}

func (c *Controller[T]) Name() string {
	return c.name
}

func (c *Controller[T]) Schema() Schema[T] {
	return c.schema
}

// Load fetches the resource and replaces it wholesale. A load started while
// another is in flight cancels the older one; its result is discarded.
func (c *Controller[T]) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.cancel != nil {
		c.cancel()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.state = Loading
	c.mu.Unlock()
	defer cancel()

	start := c.opts.now()
	records, err := c.loader(loadCtx)
	elapsed := c.opts.now().Sub(start).Milliseconds()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Closed {
		return ErrClosed
	}
	if gen != c.gen {
		return ErrSuperseded
	}
	c.cancel = nil

	if err != nil {
		c.state = Errored
		c.records = nil
		c.err = err
		c.message = c.opts.message(err)
		c.opts.logger.LogLoad(ctx, c.name, c.opts.endpoint, 0, elapsed, err, c.opts.errorType(err))
		return err
	}

	if records == nil {
		records = []T{}
	}
	c.state = Loaded
	c.records = records
	c.err = nil
	c.message = ""
	c.loadedAt = c.opts.now()
	c.opts.logger.LogLoad(ctx, c.name, c.opts.endpoint, len(records), elapsed, nil, "")
	return nil
}

// Retry reloads after a failure, or refreshes a loaded resource.
func (c *Controller[T]) Retry(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case Errored, Loaded:
		return c.Load(ctx)
	case Closed:
		return ErrClosed
	default:
		return fmt.Errorf("%w: controller is %s", ErrNotRetryable, state)
	}
}

// Close cancels an in-flight load and drops the resource.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.state = Closed
	c.records = nil
}

func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the last load failure, if the controller is Errored.
func (c *Controller[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Message is the user-visible text for the last load failure.
func (c *Controller[T]) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

func (c *Controller[T]) LoadedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadedAt
}

// View recomputes the filtered view. It only reads the resource.
func (c *Controller[T]) View(criteria Criteria) (View[T], error) {
	c.mu.Lock()
	state, records, message := c.state, c.records, c.message
	c.mu.Unlock()

	if state != Loaded {
		if state == Errored {
			return View[T]{}, fmt.Errorf("%w: %s", ErrNotLoaded, message)
		}
		if state == Closed {
			return View[T]{}, fmt.Errorf("%w: %w", ErrNotLoaded, ErrClosed)
		}
		return View[T]{}, fmt.Errorf("%w: controller is %s", ErrNotLoaded, state)
	}
	return View[T]{
		Records:  Apply(records, c.schema, criteria),
		Criteria: criteria,
		Total:    len(records),
	}, nil
}

// Grid renders a view with this controller's schema.
func (c *Controller[T]) Grid(v View[T]) Grid {
	return Render(c.schema, v)
}

// ExportResult describes a finished export.
type ExportResult struct {
	Ref  string `json:"ref"`
	Rows int    `json:"rows"`
}

// Export serialises the filtered view, never the unfiltered resource.
func (c *Controller[T]) Export(ctx context.Context, criteria Criteria, w Writer, filename, sheetName string) (ExportResult, error) {
	v, err := c.View(criteria)
	if err != nil {
		return ExportResult{}, err
	}
	g := c.Grid(v)
	ref, err := w.WriteSheet(ctx, Sheet{
		Resource: c.name,
		Filename: filename,
		Name:     sheetName,
		Grid:     g,
	})
	if err != nil {
		return ExportResult{}, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	c.opts.logger.LogExport(ctx, c.name, ref, g.Len())
	return ExportResult{Ref: ref, Rows: g.Len()}, nil
}
