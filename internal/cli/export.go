package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ledgerdash/internal/amqp"
	"ledgerdash/internal/backend"
	"ledgerdash/internal/services"
)

type Export struct {
	cmd      *cobra.Command
	mainopts *Options
	criteria criteriaFlags

	backend string
	dir     string
	async   bool
}

func NewExport(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <resource> <options>",
		Short: "export the filtered view of a resource to a spreadsheet",
		Long: `
Loads the resource, applies the criteria and writes the rows that pass to
the configured spreadsheet backend. With --async the export is queued for
ledgerdash-worker instead.
`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: opts.resourceArgs,
	}
	c := &Export{cmd: cmd, mainopts: opts}
	cmd.RunE = func(cmd *cobra.Command, args []string) error { return c.Run(args[0]) }
	c.criteria.bind(cmd)
	flags := cmd.Flags()
	flags.StringVarP(&c.backend, "backend", "b", opts.cfg.ExportBackend, "export backend (xlsx, sheets, memory)")
	flags.StringVarP(&c.dir, "out", "o", opts.cfg.ExportDir, "output directory of the xlsx backend")
	flags.BoolVar(&c.async, "async", false, "queue the export for the worker")
	return cmd
}

func (c *Export) Run(resource string) error {
	ctx := c.cmd.Context()
	criteria, err := c.criteria.criteria(ctx, c.mainopts, resource)
	if err != nil {
		return err
	}
	deps, err := c.mainopts.deps(c.cmd)
	if err != nil {
		return err
	}
	logger := deps.Logger

	repo, err := c.mainopts.repository()
	if err != nil {
		logger.Warn("Export history disabled", "reason", err.Error())
	} else {
		defer repo.Close()
	}
	var exports services.ExportLog
	if repo != nil {
		exports = repo
	}

	if c.async {
		cfg := c.mainopts.cfg
		if cfg.AMQPURL == "" {
			return fmt.Errorf("--async needs AMQP_URL")
		}
		queue, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return err
		}
		defer queue.Close()

		svc := services.NewExportService(c.mainopts.registry, deps, nil, exports, queue, services.DefaultExportServiceConfig())
		job, err := svc.Enqueue(ctx, resource, criteria, c.backend)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.cmd.OutOrStdout(), "queued export job %s\n", job.JobID)
		return nil
	}

	res, err := backend.NewFactory(logger).CreateBackend(ctx, backend.Config{
		Type:                     backend.BackendType(c.backend),
		ExportDir:                c.dir,
		GoogleSpreadsheetID:      c.mainopts.cfg.GoogleSpreadsheetID,
		GoogleServiceAccountJSON: c.mainopts.cfg.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: c.mainopts.cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return err
	}
	if res.Cleanup != nil {
		defer res.Cleanup()
	}

	name, err := c.mainopts.resourceName(resource)
	if err != nil {
		return err
	}
	config := services.DefaultExportServiceConfig()
	config.Destination = c.backend
	svc := services.NewExportService(c.mainopts.registry, deps, res.Backend, exports, nil, config)
	job := amqp.NewExportJobMessage(name, criteria, c.backend)
	out, err := svc.Run(ctx, job)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.cmd.OutOrStdout(), "exported %d rows to %s (job %s)\n", out.Rows, out.Ref, job.JobID)
	return nil
}

func NewJobs(opts *Options) *cobra.Command {
	var (
		resource string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "jobs [<job-id>]",
		Short: "show the export history or one export job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := opts.repository()
			if err != nil {
				return err
			}
			defer repo.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB\tRESOURCE\tSTATUS\tROWS\tDESTINATION\tUPDATED\tERROR")
			if len(args) == 1 {
				rec, err := repo.GetExport(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n", rec.JobID, rec.Resource, rec.Status, rec.Rows, rec.Destination, rec.UpdatedAt.Format(time.DateTime), rec.Error)
				return tw.Flush()
			}

			if resource != "" {
				name, err := opts.resourceName(resource)
				if err != nil {
					return err
				}
				resource = name
			}
			recs, err := repo.ListExports(cmd.Context(), resource, limit)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n", rec.JobID, rec.Resource, rec.Status, rec.Rows, rec.Destination, rec.UpdatedAt.Format(time.DateTime), rec.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&resource, "resource", "r", "", "only jobs of this resource")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of jobs")
	return cmd
}
