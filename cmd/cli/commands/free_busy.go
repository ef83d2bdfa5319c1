package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/availability"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/services"
)

// FreeBusyCmd creates the freeBusy command
func FreeBusyCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "freeBusy <user_id> <start> <end>",
		Short: "Show a member's free and busy time in a window",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := parseWindow(args[1], args[2], app.Location)
			if err != nil {
				return err
			}

			app.Logger.Debug("freeBusy command", zap.String("user_id", args[0]), zap.Stringer("window", w))

			result, err := services.FreeBusy(app.Ctx, app.Database, app.Logger, args[0], w, app.Location)
			if err != nil {
				return err
			}

			fmt.Printf("\n📅 Free/busy for %s\n\n", result.UserID)
			if !result.HasRules {
				fmt.Printf("%s⚠️  No weekly availability recorded, treat as unknown%s\n\n", colorYellow, colorReset)
			}
			for _, f := range result.Fragments {
				color := colorRed
				if f.Status == availability.StatusFree {
					color = colorGreen
				}
				fmt.Printf("  %s%-4s%s %s\n", color, f.Status, colorReset, formatWindow(f.Window, app.Location))
			}
			fmt.Println()

			return nil
		},
	}
}
