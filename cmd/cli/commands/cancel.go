package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/services"
)

// CancelCmd creates the cancel command
func CancelCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <rehearsal_id>",
		Short: "Cancel a proposed or confirmed rehearsal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")

			app.Logger.Debug("cancel command", zap.String("rehearsal_id", args[0]), zap.String("actor", actor))

			r, err := services.CancelRehearsal(app.Ctx, app.Database, app.Logger, services.CancelParams{
				RehearsalID: args[0],
				ActorID:     actor,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Rehearsal cancelled: %s\n\n", formatRehearsal(*r, app.Location))
			return nil
		},
	}

	cmd.Flags().String("actor", "", "User ID of the admin cancelling the rehearsal")
	cmd.MarkFlagRequired("actor")

	return cmd
}
