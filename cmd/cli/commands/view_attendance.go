package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/services"
)

var attendanceColors = map[model.AttendanceStatus]string{
	model.AttendancePresent:    colorGreen,
	model.AttendanceAbsent:     colorRed,
	model.AttendanceExcused:    colorYellow,
	model.AttendanceUnrecorded: colorReset,
}

// ViewAttendanceCmd creates the viewAttendance command
func ViewAttendanceCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "viewAttendance <rehearsal_id>",
		Short: "View the attendance sheet of a rehearsal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Logger.Debug("viewAttendance command", zap.String("rehearsal_id", args[0]))

			summary, err := services.ViewAttendance(app.Ctx, app.Database, app.Logger, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("\n📋 Attendance\n\n")
			fmt.Printf("%s\n\n", formatRehearsal(summary.Rehearsal, app.Location))

			if len(summary.Rows) == 0 {
				fmt.Println("No attendance rows (the rehearsal was never confirmed).")
				fmt.Println()
				return nil
			}

			for _, row := range summary.Rows {
				recorded := ""
				if row.RecordedAt != nil {
					recorded = fmt.Sprintf("  (by %s at %s)", row.RecordedBy, row.RecordedAt.In(app.Location).Format(displayLayout))
				}
				fmt.Printf("  %-20s %s%-10s%s%s\n", row.UserID, attendanceColors[row.Status], row.Status, colorReset, recorded)
			}

			fmt.Printf("\nPresent: %d  Absent: %d  Excused: %d  Unrecorded: %d\n\n",
				summary.Counts[model.AttendancePresent],
				summary.Counts[model.AttendanceAbsent],
				summary.Counts[model.AttendanceExcused],
				summary.Counts[model.AttendanceUnrecorded])

			return nil
		},
	}
}
