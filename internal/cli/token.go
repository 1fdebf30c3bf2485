package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ledgerdash/internal/api"
)

func NewToken(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "manage the stored bearer token",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "save [<token>]",
		Short: "store a bearer token in the token file (read from stdin without argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.tokenFile == "" {
				return fmt.Errorf("no token file configured (set --token-file or API_TOKEN_FILE)")
			}
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				token = line
			}
			if err := api.SaveToken(opts.tokenFile, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token saved to %s\n", opts.tokenFile)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "show whether the configured token is usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := api.ResolveSession(opts.token, opts.tokenFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "token:   %s\n", sess.Digest())
			if exp := sess.ExpiresAt(); exp.IsZero() {
				fmt.Fprintln(out, "expires: unknown")
			} else {
				fmt.Fprintf(out, "expires: %s\n", exp.Local().Format(time.RFC3339))
			}
			if err := sess.Check(time.Now()); err != nil {
				return err
			}
			fmt.Fprintln(out, "status:  valid")
			return nil
		},
	})
	return cmd
}
