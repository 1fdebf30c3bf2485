package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ledgerdash/internal/storage"
	"ledgerdash/internal/table"
)

func NewFilters(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "manage saved filters",
		Long: `
Saved filters keep a search text and a date range per resource. A filter
marked as default is used by show, browse and export when they are called
with --filter default.
`,
	}
	cmd.AddCommand(newFiltersList(opts), newFiltersSave(opts), newFiltersDelete(opts))
	return cmd
}

func newFiltersList(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:               "list <resource>",
		Short:             "list the saved filters of a resource",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: opts.resourceArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resource, err := opts.resourceName(args[0])
			if err != nil {
				return err
			}
			repo, err := opts.repository()
			if err != nil {
				return err
			}
			defer repo.Close()

			filters, err := repo.ListFilters(cmd.Context(), resource)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tDEFAULT\tSEARCH\tFROM\tTO")
			for _, f := range filters {
				def := ""
				if f.IsDefault {
					def = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", f.ID, f.Name, def, f.Search, f.DateFrom, f.DateTo)
			}
			return tw.Flush()
		},
	}
}

func newFiltersSave(opts *Options) *cobra.Command {
	var (
		search, from, to string
		isDefault        bool
	)
	cmd := &cobra.Command{
		Use:               "save <resource> <name>",
		Short:             "save a search and date range under a name",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: opts.resourceArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resource, err := opts.resourceName(args[0])
			if err != nil {
				return err
			}
			c, err := table.ParseCriteria(search, from, to)
			if err != nil {
				return err
			}
			repo, err := opts.repository()
			if err != nil {
				return err
			}
			defer repo.Close()

			f, err := repo.SaveFilter(cmd.Context(), storage.SavedFilter{
				Name:      args[1],
				Resource:  resource,
				Search:    c.Search,
				DateFrom:  c.From,
				DateTo:    c.To,
				IsDefault: isDefault,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved filter %s (%s)\n", f.Name, f.ID)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&search, "search", "q", "", "case-insensitive text filter")
	flags.StringVar(&from, "from", "", "inclusive start date (YYYY-MM-DD)")
	flags.StringVar(&to, "to", "", "inclusive end date (YYYY-MM-DD)")
	flags.BoolVar(&isDefault, "default", false, "make this the default filter of the resource")
	return cmd
}

func newFiltersDelete(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "delete a saved filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := opts.repository()
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.DeleteFilter(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted filter %s\n", args[0])
			return nil
		},
	}
}
