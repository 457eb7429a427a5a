package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groupshot",
		Short: "Group portrait studio powered by generative image models",
		Long: `Groupshot composes polished group portraits from individual reference
photos using vision-capable generative models.

Upload a photo per person, describe a scene, and generate batches of
portrait variations with per-image retry and cost tracking.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newPricingCmd())

	return cmd
}
