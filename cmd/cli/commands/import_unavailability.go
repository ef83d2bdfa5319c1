package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/services"
)

// ImportUnavailabilityCmd creates the importUnavailability command
func ImportUnavailabilityCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "importUnavailability <user_id> <ics_file> <start> <end>",
		Short: "Import busy events from an iCalendar file as one-off unavailability",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			span, err := parseWindow(args[2], args[3], app.Location)
			if err != nil {
				return err
			}

			app.Logger.Debug("importUnavailability command",
				zap.String("user_id", args[0]),
				zap.String("file", args[1]),
				zap.Stringer("span", span))

			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("failed to open calendar file: %w", err)
			}
			defer f.Close()

			items, err := services.ImportUnavailability(app.Ctx, app.Database, app.Logger, services.ImportParams{
				UserID:   args[0],
				Source:   f,
				Span:     span,
				Location: app.Location,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Imported %d busy windows for %s\n\n", len(items), args[0])
			for _, item := range items {
				reason := item.Reason
				if reason == "" {
					reason = "busy"
				}
				fmt.Printf("  %s  %s\n", formatWindow(item.Window, app.Location), reason)
			}
			if len(items) > 0 {
				fmt.Println()
			}

			return nil
		},
	}
}
