package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/conflict"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/services"
)

// ConfirmCmd creates the confirm command
func ConfirmCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm <rehearsal_id>",
		Short: "Confirm a proposed rehearsal if it has no hard conflicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")

			app.Logger.Debug("confirm command", zap.String("rehearsal_id", args[0]), zap.String("actor", actor))

			result, err := services.ConfirmRehearsal(app.Ctx, app.Database, services.PolicyFromConfig(app.Cfg), app.Logger, services.ConfirmParams{
				RehearsalID: args[0],
				ActorID:     actor,
			})
			if err != nil {
				var conflictErr *conflict.ConflictError
				if errors.As(err, &conflictErr) {
					fmt.Printf("\n%s✗ Rehearsal %s was not confirmed%s\n\n", colorRed, args[0], colorReset)
					printReport(os.Stdout, conflictErr.Report, app.Location)
					fmt.Println()
				}
				return err
			}

			fmt.Printf("\n✓ Rehearsal confirmed!\n\n")
			fmt.Printf("Rehearsal ID: %s\n", result.Rehearsal.ID)
			fmt.Printf("When:         %s\n", formatWindow(result.Rehearsal.Window, app.Location))
			fmt.Printf("Attendance:   %d participants\n\n", len(result.Attendance))

			if !result.Warnings.IsEmpty() {
				printReport(os.Stdout, result.Warnings, app.Location)
				fmt.Println()
			}

			return nil
		},
	}

	cmd.Flags().String("actor", "", "User ID of the admin confirming the rehearsal")
	cmd.MarkFlagRequired("actor")

	return cmd
}
