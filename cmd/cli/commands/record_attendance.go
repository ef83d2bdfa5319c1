package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/services"
)

// RecordAttendanceCmd creates the recordAttendance command
func RecordAttendanceCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recordAttendance <rehearsal_id> <user_id> <present|absent|excused|unrecorded>",
		Short: "Record whether a participant attended a confirmed rehearsal",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")

			app.Logger.Debug("recordAttendance command",
				zap.String("rehearsal_id", args[0]),
				zap.String("user_id", args[1]),
				zap.String("status", args[2]))

			row, err := services.RecordAttendance(app.Ctx, app.Database, app.Logger, services.RecordAttendanceParams{
				RehearsalID: args[0],
				UserID:      args[1],
				Status:      model.AttendanceStatus(args[2]),
				ActorID:     actor,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Recorded %s as %s for rehearsal %s\n\n", row.UserID, row.Status, row.RehearsalID)
			return nil
		},
	}

	cmd.Flags().String("actor", "", "User ID recording the attendance")
	cmd.MarkFlagRequired("actor")

	return cmd
}
