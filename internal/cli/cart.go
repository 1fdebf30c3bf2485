package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ledgerdash/internal/core"
	applog "ledgerdash/internal/log"
)

func NewCart(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "manage the backend cart",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <product> <quantity>",
		Short: "add a quantity of a product to the cart",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			product, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("product %q: %w", args[0], core.ErrInvalidProduct)
			}
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity %q: %w", args[1], core.ErrInvalidQuantity)
			}
			item := core.CartItem{Product: product, Quantity: quantity}
			if err := item.Validate(); err != nil {
				return err
			}

			deps, err := opts.deps(cmd)
			if err != nil {
				return err
			}
			if err := deps.Client.AddToCart(cmd.Context(), deps.Session, item); err != nil {
				return err
			}
			deps.Logger.Debug("Cart item added",
				applog.FieldOperation, applog.OpCartAdd,
				"product", item.Product,
				"quantity", item.Quantity)
			fmt.Fprintf(cmd.OutOrStdout(), "added %d x product %d to the cart\n", item.Quantity, item.Product)
			return nil
		},
	})
	return cmd
}
