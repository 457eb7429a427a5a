package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/framefold/groupshot/internal/ledger"
)

func newPricingCmd() *cobra.Command {
	var tablePath string

	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Show the per-model price table used for cost tracking",
		RunE: func(cmd *cobra.Command, args []string) error {
			prices := ledger.DefaultPriceTable()
			if tablePath != "" {
				loaded, err := ledger.LoadPriceTable(tablePath)
				if err != nil {
					return fmt.Errorf("loading price table: %w", err)
				}
				prices = loaded
			}

			models := make([]string, 0, len(prices))
			for model := range prices {
				models = append(models, model)
			}
			sort.Strings(models)

			fmt.Printf("%-40s %12s %12s\n", "MODEL", "IN $/1M", "OUT $/1M")
			for _, model := range models {
				p := prices[model]
				fmt.Printf("%-40s %12.2f %12.2f\n", model, p.InputPerMillion, p.OutputPerMillion)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tablePath, "table", "", "YAML file overriding the built-in price table")

	return cmd
}
