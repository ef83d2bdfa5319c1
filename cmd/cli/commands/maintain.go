package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/services"
)

// MaintainCmd creates the maintain command
func MaintainCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run scheduled housekeeping (expire stale proposals) until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			once, _ := cmd.Flags().GetBool("once")

			m, err := services.NewMaintenance(app.Database, app.Cfg, app.Logger)
			if err != nil {
				return err
			}

			if once {
				expired, err := m.RunOnce(app.Ctx)
				if err != nil {
					return err
				}
				fmt.Printf("\n✓ Expired %d stale proposals\n", len(expired))
				for _, id := range expired {
					fmt.Printf("  - %s\n", id)
				}
				fmt.Println()
				return nil
			}

			ctx, stop := interruptContext(app.Ctx)
			defer stop()

			schedule := app.Cfg.Maintenance.ExpireProposalsCron
			if schedule == "" {
				schedule = services.DefaultExpireProposalsSchedule
			}
			app.Logger.Info("maintain command", zap.String("schedule", schedule))
			fmt.Printf("\n🛠  Maintenance running (%s), press Ctrl+C to stop\n", schedule)

			return m.Run(ctx)
		},
	}

	cmd.Flags().Bool("once", false, "Run every job once and exit")

	return cmd
}
