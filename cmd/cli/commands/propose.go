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

// ProposeCmd creates the propose command
func ProposeCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "propose <group_id> <venue_id> <start> <end>",
		Short: "Propose a rehearsal (group admins only)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			participants, _ := cmd.Flags().GetString("participants")

			w, err := parseWindow(args[2], args[3], app.Location)
			if err != nil {
				return err
			}

			app.Logger.Debug("propose command",
				zap.String("group_id", args[0]),
				zap.String("venue_id", args[1]),
				zap.String("actor", actor),
				zap.Stringer("window", w))

			result, err := services.ProposeRehearsal(app.Ctx, app.Database, services.PolicyFromConfig(app.Cfg), app.Logger, services.ProposeParams{
				GroupID:        args[0],
				VenueID:        args[1],
				ActorID:        actor,
				Window:         w,
				ParticipantIDs: splitList(participants),
			})
			if err != nil {
				var conflictErr *conflict.ConflictError
				if errors.As(err, &conflictErr) {
					fmt.Printf("\n%s✗ Rehearsal was not proposed%s\n\n", colorRed, colorReset)
					printReport(os.Stdout, conflictErr.Report, app.Location)
					fmt.Println()
				}
				return err
			}

			fmt.Printf("\n✓ Rehearsal proposed!\n\n")
			fmt.Printf("Rehearsal ID: %s\n", result.Rehearsal.ID)
			fmt.Printf("When:         %s\n", formatWindow(result.Rehearsal.Window, app.Location))
			if len(result.Rehearsal.ParticipantIDs) > 0 {
				fmt.Printf("Participants: %v\n", result.Rehearsal.ParticipantIDs)
			}
			fmt.Println()

			if !result.Warnings.IsEmpty() {
				printReport(os.Stdout, result.Warnings, app.Location)
				if result.Warnings.HasHard() {
					fmt.Printf("\n%sResolve the conflicts above before confirming.%s\n", colorBold, colorReset)
				}
				fmt.Println()
			}

			return nil
		},
	}

	cmd.Flags().String("actor", "", "User ID of the admin proposing the rehearsal")
	cmd.Flags().String("participants", "", "Comma separated user IDs overriding the group membership")
	cmd.MarkFlagRequired("actor")

	return cmd
}
