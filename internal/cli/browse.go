package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"ledgerdash/internal/catalog"
	"ledgerdash/internal/core"
	"ledgerdash/internal/sheets/xlsx"
	"ledgerdash/internal/table"
)

const browseHelp = `Type text to search. Commands:
  :from YYYY-MM-DD   set the start date (empty clears it)
  :to YYYY-MM-DD     set the end date (empty clears it)
  :clear             drop every criterion
  :retry             reload the resource
  :export [dir]      write the current view as xlsx
  :quit              leave`

type Browse struct {
	cmd      *cobra.Command
	mainopts *Options
	criteria criteriaFlags

	mu      sync.Mutex
	out     io.Writer
	current table.Criteria
}

func NewBrowse(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "browse <resource>",
		Short:             "interactively filter a resource read from stdin",
		Long:              "\n" + browseHelp + "\n",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: opts.resourceArgs,
	}
	c := &Browse{cmd: cmd, mainopts: opts}
	cmd.RunE = func(cmd *cobra.Command, args []string) error { return c.Run(args[0]) }
	c.criteria.bind(cmd)
	return cmd
}

func (c *Browse) Run(resource string) error {
	ctx := c.cmd.Context()
	c.out = c.cmd.OutOrStdout()

	criteria, err := c.criteria.criteria(ctx, c.mainopts, resource)
	if err != nil {
		return err
	}
	t, err := c.mainopts.load(c.cmd, resource)
	if t == nil {
		return err
	}
	defer t.Close()

	c.current = criteria
	c.render(t, criteria)

	// Keystrokes arrive faster than a view is worth recomputing.
	deb := table.NewDebouncer(c.mainopts.cfg.SearchDebounce, func(cr table.Criteria) {
		c.render(t, cr)
	})
	defer deb.Stop()

	in := bufio.NewScanner(c.cmd.InOrStdin())
	for in.Scan() {
		line := in.Text()
		if !strings.HasPrefix(line, ":") {
			deb.Submit(c.update(func(cr *table.Criteria) { cr.Search = strings.TrimSpace(line) }))
			continue
		}

		verb, arg, _ := strings.Cut(strings.TrimSpace(line[1:]), " ")
		arg = strings.TrimSpace(arg)
		switch verb {
		case "q", "quit":
			deb.Flush()
			return nil
		case "from", "to":
			d, err := core.ParseDate(arg)
			if err != nil {
				c.printf("%v\n", err)
				continue
			}
			deb.Submit(c.update(func(cr *table.Criteria) {
				if verb == "from" {
					cr.From = d
				} else {
					cr.To = d
				}
			}))
		case "clear":
			deb.Submit(c.update(func(cr *table.Criteria) { *cr = table.Criteria{} }))
		case "retry":
			deb.Flush()
			if err := t.Retry(ctx); err != nil && errors.Is(err, table.ErrNotRetryable) {
				c.printf("%v\n", err)
				continue
			}
			c.render(t, c.update(func(*table.Criteria) {}))
		case "export":
			deb.Flush()
			c.export(t, arg)
		case "help", "?":
			c.printf("%s\n", browseHelp)
		default:
			c.printf("unknown command %q, try :help\n", verb)
		}
	}
	deb.Flush()
	return in.Err()
}

func (c *Browse) update(fn func(*table.Criteria)) table.Criteria {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.current)
	return c.current
}

func (c *Browse) render(t catalog.Table, cr table.Criteria) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := t.Render(cr)
	if !snap.OK() {
		fmt.Fprintf(c.out, "%s (:retry to reload)\n", snap.Message)
		return
	}
	_ = printSnapshot(c.out, t.Info(), snap)
}

func (c *Browse) export(t catalog.Table, dir string) {
	if dir == "" {
		dir = c.mainopts.cfg.ExportDir
	}
	w, err := xlsx.New(dir)
	if err != nil {
		c.printf("%v\n", err)
		return
	}
	c.mu.Lock()
	criteria := c.current
	c.mu.Unlock()

	res, err := t.Export(c.cmd.Context(), criteria, w)
	if err != nil {
		c.printf("export failed: %v\n", err)
		return
	}
	c.printf("exported %d rows to %s\n", res.Rows, res.Ref)
}

func (c *Browse) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
