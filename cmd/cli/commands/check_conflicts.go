package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/services"
)

// CheckConflictsCmd creates the checkConflicts command
func CheckConflictsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkConflicts (<rehearsal_id> | <group_id> <venue_id> <start> <end>)",
		Short: "Check a stored or hypothetical rehearsal for conflicts",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 && len(args) != 4 {
				return fmt.Errorf("expected a rehearsal ID or group, venue, start and end; got %d args", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var params services.CheckConflictsParams
			if len(args) == 1 {
				params.RehearsalID = args[0]
			} else {
				w, err := parseWindow(args[2], args[3], app.Location)
				if err != nil {
					return err
				}
				participants, _ := cmd.Flags().GetString("participants")
				params.GroupID = args[0]
				params.VenueID = args[1]
				params.Window = w
				params.ParticipantIDs = splitList(participants)
			}

			app.Logger.Debug("checkConflicts command",
				zap.String("rehearsal_id", params.RehearsalID),
				zap.String("group_id", params.GroupID),
				zap.String("venue_id", params.VenueID))

			report, err := services.CheckConflicts(app.Ctx, app.Database, services.PolicyFromConfig(app.Cfg), app.Logger, params)
			if err != nil {
				return err
			}

			fmt.Printf("\n🔎 Conflict check\n\n")
			printReport(os.Stdout, *report, app.Location)
			if report.HasHard() {
				fmt.Printf("\n%sThis rehearsal cannot be confirmed as scheduled.%s\n", colorBold, colorReset)
			}
			fmt.Println()

			return nil
		},
	}

	cmd.Flags().String("participants", "", "Comma separated user IDs overriding the group membership of a hypothetical rehearsal")

	return cmd
}
