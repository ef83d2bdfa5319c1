package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/services"
)

// EstimateCmd creates the estimate command
func EstimateCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <group_id> <start> <end>",
		Short: "Predict which group members can attend a window",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := parseWindow(args[1], args[2], app.Location)
			if err != nil {
				return err
			}

			app.Logger.Debug("estimate command", zap.String("group_id", args[0]), zap.Stringer("window", w))

			est, err := services.EstimateAttendance(app.Ctx, app.Database, app.Logger, args[0], w)
			if err != nil {
				return err
			}

			fmt.Printf("\n👥 Attendance estimate for %s\n", args[0])
			fmt.Printf("Window:      %s\n", formatWindow(w, app.Location))
			printEstimate(os.Stdout, *est)
			fmt.Println()

			return nil
		},
	}
}
