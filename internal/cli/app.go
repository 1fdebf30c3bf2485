package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ledgerdash/internal/api"
	"ledgerdash/internal/catalog"
	"ledgerdash/internal/config"
	applog "ledgerdash/internal/log"
	"ledgerdash/internal/storage"
	"ledgerdash/internal/table"
)

// Options are the settings shared by every subcommand.
type Options struct {
	cfg *config.Config

	apiURL    string
	token     string
	tokenFile string
	timeout   time.Duration
	dbPath    string
	logLevel  string

	registry *catalog.Registry
}

// New returns the ledgerdash command tree. A nil cfg loads the environment.
func New(cfg *config.Config) *cobra.Command {
	if cfg == nil {
		cfg = config.Load()
	}
	opts := &Options{
		cfg:       cfg,
		apiURL:    cfg.APIBaseURL,
		token:     cfg.APIToken,
		tokenFile: cfg.APITokenFile,
		timeout:   cfg.HTTPTimeout,
		dbPath:    cfg.SQLiteDBPath,
		logLevel:  cfg.LogLevel,
		registry:  catalog.Default(),
	}

	maincmd := &cobra.Command{
		Use:   "ledgerdash <options> <cmd> <args>",
		Short: "browse, filter and export ledger tables",
		Long: `
This command loads the list resources of the ledger backend, filters them
by free text and date range, exports the filtered view to a spreadsheet and
adds items to the cart.
`,
		SilenceUsage:     true,
		TraverseChildren: true,
	}

	flags := maincmd.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api", opts.apiURL, "backend base URL")
	flags.StringVarP(&opts.token, "token", "t", opts.token, "bearer token (overrides the token file)")
	flags.StringVar(&opts.tokenFile, "token-file", opts.tokenFile, "file holding the bearer token")
	flags.DurationVar(&opts.timeout, "timeout", opts.timeout, "backend request timeout")
	flags.StringVar(&opts.dbPath, "db", opts.dbPath, "SQLite database for saved filters and export history")
	flags.StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")

	maincmd.AddCommand(NewTables(opts))
	maincmd.AddCommand(NewShow(opts))
	maincmd.AddCommand(NewStatus(opts))
	maincmd.AddCommand(NewBrowse(opts))
	maincmd.AddCommand(NewExport(opts))
	maincmd.AddCommand(NewJobs(opts))
	maincmd.AddCommand(NewCart(opts))
	maincmd.AddCommand(NewFilters(opts))
	maincmd.AddCommand(NewToken(opts))
	return maincmd
}

func (o *Options) logger(cmd *cobra.Command) *applog.Logger {
	return applog.NewText(cmd.ErrOrStderr(), applog.ParseLevel(o.logLevel), applog.ComponentCLI)
}

// deps resolves the backend client and the caller's session.
func (o *Options) deps(cmd *cobra.Command) (catalog.Deps, error) {
	logger := o.logger(cmd)
	client, err := api.NewClient(o.apiURL,
		api.WithHTTPClient(api.NewHTTPClient(o.timeout)),
		api.WithLogger(logger))
	if err != nil {
		return catalog.Deps{}, err
	}
	sess, err := api.ResolveSession(o.token, o.tokenFile)
	if err != nil {
		return catalog.Deps{}, fmt.Errorf("%w (pass --token or run 'ledgerdash token save')", err)
	}
	return catalog.Deps{Client: client, Session: sess, Logger: logger}, nil
}

// load opens a resource and performs its initial load. The table is
// returned in its final state even when the load failed.
func (o *Options) load(cmd *cobra.Command, resource string) (catalog.Table, error) {
	deps, err := o.deps(cmd)
	if err != nil {
		return nil, err
	}
	t, err := o.registry.Open(resource, deps)
	if err != nil {
		return nil, err
	}
	return t, t.Load(cmd.Context())
}

func (o *Options) repository() (*storage.SQLiteRepository, error) {
	if o.dbPath == "" {
		return nil, fmt.Errorf("no database configured (set --db or SQLITE_DB_PATH)")
	}
	return storage.NewSQLiteRepository(o.dbPath)
}

// resourceName returns the canonical name of a resource.
func (o *Options) resourceName(name string) (string, error) {
	desc, err := o.registry.Lookup(name)
	if err != nil {
		return "", err
	}
	return desc.Info().Name, nil
}

// resourceArgs completes resource names.
func (o *Options) resourceArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return o.registry.Names(), cobra.ShellCompDirectiveNoFileComp
}

// criteriaFlags are the filter flags of show, browse and export.
type criteriaFlags struct {
	search string
	from   string
	to     string
	filter string
}

func (f *criteriaFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.search, "search", "q", "", "case-insensitive text filter")
	flags.StringVar(&f.from, "from", "", "inclusive start date (YYYY-MM-DD)")
	flags.StringVar(&f.to, "to", "", "inclusive end date (YYYY-MM-DD)")
	flags.StringVarP(&f.filter, "filter", "f", "", "saved filter name or ID, or \"default\"")
}

// criteria returns the explicit criteria, or those of the saved filter when
// no explicit criterion is given.
func (f *criteriaFlags) criteria(ctx context.Context, o *Options, resource string) (table.Criteria, error) {
	c, err := table.ParseCriteria(f.search, f.from, f.to)
	if err != nil || !c.IsEmpty() || f.filter == "" {
		return c, err
	}
	resource, err = o.resourceName(resource)
	if err != nil {
		return table.Criteria{}, err
	}

	repo, err := o.repository()
	if err != nil {
		return table.Criteria{}, err
	}
	defer repo.Close()

	if f.filter == "default" {
		saved, ok, err := repo.DefaultFilter(ctx, resource)
		if err != nil || !ok {
			return table.Criteria{}, err
		}
		return saved.Criteria(), nil
	}
	filters, err := repo.ListFilters(ctx, resource)
	if err != nil {
		return table.Criteria{}, err
	}
	for _, saved := range filters {
		if saved.ID == f.filter || strings.EqualFold(saved.Name, f.filter) {
			return saved.Criteria(), nil
		}
	}
	return table.Criteria{}, fmt.Errorf("saved filter %q for %s: %w", f.filter, resource, storage.ErrNotFound)
}

// readLine reads one trimmed line, for values passed on stdin.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
