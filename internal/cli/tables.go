package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ledgerdash/internal/catalog"
	"ledgerdash/internal/table"
)

func NewTables(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "list the resources that can be browsed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTITLE\tENDPOINT\tCOLUMNS")
			for _, info := range opts.registry.Infos() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", info.Name, info.Title, info.Endpoint, len(info.Columns))
			}
			return tw.Flush()
		},
	}
}

type Show struct {
	cmd      *cobra.Command
	mainopts *Options
	criteria criteriaFlags
}

func NewShow(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "show <resource> <options>",
		Short:             "load a resource and print its filtered view",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: opts.resourceArgs,
	}
	c := &Show{cmd: cmd, mainopts: opts}
	cmd.RunE = func(cmd *cobra.Command, args []string) error { return c.Run(args[0]) }
	c.criteria.bind(cmd)
	return cmd
}

func (c *Show) Run(resource string) error {
	ctx := c.cmd.Context()
	criteria, err := c.criteria.criteria(ctx, c.mainopts, resource)
	if err != nil {
		return err
	}
	t, err := c.mainopts.load(c.cmd, resource)
	if t == nil {
		return err
	}
	defer t.Close()

	snap := t.Render(criteria)
	if !snap.OK() {
		fmt.Fprintln(c.cmd.ErrOrStderr(), snap.Message)
		return fmt.Errorf("load %s: %w", resource, err)
	}
	return printSnapshot(c.cmd.OutOrStdout(), t.Info(), snap)
}

// printSnapshot writes a loaded view as an aligned text table.
func printSnapshot(w io.Writer, info catalog.Info, snap catalog.Snapshot) error {
	if snap.Grid.Empty {
		fmt.Fprintln(w, snap.Message)
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(snap.Grid.Headers, "\t")))
	for _, row := range snap.Grid.StringRows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d of %d %s", snap.Count, snap.Total, info.Title)
	if active := snap.Criteria.Active(); len(active) > 0 {
		fmt.Fprintf(w, " (filtered by %s)", strings.Join(active, ", "))
	}
	fmt.Fprintln(w)
	return nil
}

func NewStatus(opts *Options) *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "load every resource concurrently and report its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := opts.deps(cmd)
			if err != nil {
				return err
			}
			var tables []catalog.Table
			for _, name := range opts.registry.Names() {
				t, err := opts.registry.Open(name, deps)
				if err != nil {
					return err
				}
				defer t.Close()
				tables = append(tables, t)
			}

			failed := catalog.LoadAll(cmd.Context(), tables, parallel)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTATE\tROWS\tMESSAGE")
			for _, t := range tables {
				snap := t.Render(table.Criteria{})
				msg := ""
				if !snap.OK() {
					msg = snap.Message
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.Name(), snap.State, snap.Total, msg)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d resources failed to load", len(failed), len(tables))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "maximum concurrent loads")
	return cmd
}
