package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/services"
)

// SeedCmd creates the seed command
func SeedCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <yaml_file>",
		Short: "Load users, groups, venues and availability from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Logger.Debug("seed command", zap.String("file", args[0]))

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open seed file: %w", err)
			}
			defer f.Close()

			seed, err := services.ParseSeedFile(f)
			if err != nil {
				return err
			}

			summary, err := services.Seed(app.Ctx, app.Database, app.Logger, seed)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Seed loaded\n\n")
			fmt.Printf("Users:          %d\n", summary.Users)
			fmt.Printf("Groups:         %d\n", summary.Groups)
			fmt.Printf("Memberships:    %d\n", summary.Memberships)
			fmt.Printf("Venues:         %d\n", summary.Venues)
			fmt.Printf("Rules:          %d\n", summary.Rules)
			fmt.Printf("Unavailability: %d\n\n", summary.Unavailability)

			return nil
		},
	}
}
