package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"ledgerdash/internal/api"
	applog "ledgerdash/internal/log"
	"ledgerdash/internal/table"
)

var ErrUnknownResource = errors.New("unknown resource")

// Deps is what an opened table needs to reach the backend.
type Deps struct {
	Client  *api.Client
	Session *api.Session
	Logger  *applog.Logger
}

// Resource describes one list resource of record type T.
type Resource[T any] struct {
	Name      string
	Title     string
	Endpoint  string
	Envelope  api.Envelope
	Schema    table.Schema[T]
	Filename  string
	SheetName string
}

// Descriptor is the untyped view of a Resource.
type Descriptor interface {
	Info() Info
	Open(d Deps) Table
}

// Info is the static description of a resource.
type Info struct {
	Name      string   `json:"name"`
	Title     string   `json:"title"`
	Endpoint  string   `json:"endpoint"`
	Envelope  string   `json:"envelope"`
	Columns   []string `json:"columns"`
	Filename  string   `json:"filename"`
	SheetName string   `json:"sheet_name"`
}

func (r Resource[T]) Info() Info {
	return Info{
		Name:      r.Name,
		Title:     r.Title,
		Endpoint:  r.Endpoint,
		Envelope:  r.Envelope.String(),
		Columns:   r.Schema.Headers(),
		Filename:  r.Filename,
		SheetName: r.SheetName,
	}
}

// Open returns an idle table bound to the given session.
func (r Resource[T]) Open(d Deps) Table {
	logger := d.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	client, sess := d.Client, d.Session
	loader := func(ctx context.Context) ([]T, error) {
		return api.Fetch[T](ctx, client, sess, r.Endpoint, r.Envelope)
	}
	ctrl := table.NewController(r.Name, r.Schema, loader,
		table.WithEndpoint(r.Endpoint),
		table.WithLogger(logger),
		table.WithErrorMapping(api.UserMessage, api.ErrorType),
	)
	return &typedTable[T]{res: r, ctrl: ctrl}
}

// Table is a loaded-or-loading resource handled by name.
type Table interface {
	Name() string
	Info() Info
	Load(ctx context.Context) error
	Retry(ctx context.Context) error
	State() table.State
	Err() error
	Render(c table.Criteria) Snapshot
	Export(ctx context.Context, c table.Criteria, w table.Writer) (table.ExportResult, error)
	Close()
}

// Snapshot is the rendered state of a table for one set of criteria. Rows
// are only present when the resource is loaded.
type Snapshot struct {
	Resource string         `json:"resource"`
	State    table.State    `json:"state"`
	Criteria table.Criteria `json:"criteria"`
	Total    int            `json:"total"`
	Count    int            `json:"count"`
	Grid     table.Grid     `json:"-"`
	Message  string         `json:"message,omitempty"`
}

// OK reports whether the snapshot carries rows (possibly zero).
func (s Snapshot) OK() bool {
	return s.State == table.Loaded
}

type typedTable[T any] struct {
	res  Resource[T]
	ctrl *table.Controller[T]
}

func (t *typedTable[T]) Name() string { return t.res.Name }
func (t *typedTable[T]) Info() Info { return t.res.Info() }
func (t *typedTable[T]) Load(ctx context.Context) error { return t.ctrl.Load(ctx) }
func (t *typedTable[T]) Retry(ctx context.Context) error { return t.ctrl.Retry(ctx) }
func (t *typedTable[T]) State() table.State { return t.ctrl.State() }
func (t *typedTable[T]) Err() error { return t.ctrl.Err() }
func (t *typedTable[T]) Close() { t.ctrl.Close() }

func (t *typedTable[T]) Render(c table.Criteria) Snapshot {
	snap := Snapshot{Resource: t.res.Name, Criteria: c, State: t.ctrl.State()}
	switch snap.State {
	case table.Errored:
		snap.Message = t.ctrl.Message()
		return snap
	case table.Loaded:
	default:
		snap.Message = fmt.Sprintf("%s is %s", t.res.Title, snap.State)
		return snap
	}

	v, err := t.ctrl.View(c)
	if err != nil {
		// State changed between the two calls.
		snap.State = t.ctrl.State()
		snap.Message = t.ctrl.Message()
		if snap.Message == "" {
			snap.Message = err.Error()
		}
		return snap
	}
	snap.Grid = t.ctrl.Grid(v)
	snap.Total = v.Total
	snap.Count = v.Count()
	snap.Message = snap.Grid.Message
	return snap
}

func (t *typedTable[T]) Export(ctx context.Context, c table.Criteria, w table.Writer) (table.ExportResult, error) {
	return t.ctrl.Export(ctx, c, w, t.res.Filename, t.res.SheetName)
}

// Registry looks up resources by name.
type Registry struct {
	byName map[string]Descriptor
}

func NewRegistry(ds ...Descriptor) *Registry {
	r := &Registry{byName: make(map[string]Descriptor, len(ds))}
	for _, d := range ds {
		r.byName[d.Info().Name] = d
	}
	return r
}

// Names returns the registered resource names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Infos returns the resource descriptions in name order.
func (r *Registry) Infos() []Info {
	names := r.Names()
	out := make([]Info, len(names))
	for i, name := range names {
		out[i] = r.byName[name].Info()
	}
	return out
}

func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownResource, name, strings.Join(r.Names(), ", "))
	}
	return d, nil
}

// Open looks up a resource and opens an idle table for it.
func (r *Registry) Open(name string, d Deps) (Table, error) {
	desc, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return desc.Open(d), nil
}

// LoadAll loads tables concurrently. A failing table does not abort the
// others; the result maps each failed table name to its error.
func LoadAll(ctx context.Context, tables []Table, limit int) map[string]error {
	var (
		mu     sync.Mutex
		failed = make(map[string]error)
	)
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, t := range tables {
		g.Go(func() error {
			if err := t.Load(gctx); err != nil {
				mu.Lock()
				failed[t.Name()] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}
