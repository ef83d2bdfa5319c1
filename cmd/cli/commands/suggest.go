package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/services"
)

// SuggestCmd creates the suggest command
func SuggestCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest <group_id> <venue_id> <search_start> <search_end>",
		Short: "Rank the best rehearsal slots for a group at a venue",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			duration, _ := cmd.Flags().GetDuration("duration")
			limit, _ := cmd.Flags().GetInt("limit")

			search, err := parseWindow(args[2], args[3], app.Location)
			if err != nil {
				return err
			}

			app.Logger.Debug("suggest command",
				zap.String("group_id", args[0]),
				zap.String("venue_id", args[1]),
				zap.Stringer("search", search),
				zap.Duration("duration", duration),
				zap.Int("limit", limit))

			// Ctrl+C stops the search and shows the slots ranked so far
			ctx, stop := interruptContext(app.Ctx)
			defer stop()

			result, err := services.SuggestSlots(ctx, app.Database, app.Cfg, app.Logger, services.SuggestParams{
				GroupID:      args[0],
				VenueID:      args[1],
				Search:       search,
				SlotDuration: duration,
				Limit:        limit,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n✨ Suggested slots for %s at %s\n\n", args[0], args[1])
			if result.Truncated {
				fmt.Printf("%s⚠️  Search interrupted, %d of %d candidates evaluated%s\n\n",
					colorYellow, result.Evaluated, result.Total, colorReset)
			}
			if len(result.Slots) == 0 {
				fmt.Println("No viable slots found.")
				fmt.Println()
				return nil
			}

			for i, slot := range result.Slots {
				fmt.Printf("%s%2d. %s%s  score %.2f (%s)\n",
					colorBold, i+1, formatWindow(slot.Window, app.Location), colorReset,
					slot.Score, memberSummary(slot.Counts))
				if slot.CapacityExceeded {
					fmt.Printf("    %s⚠️  More participants than the venue holds%s\n", colorYellow, colorReset)
				}
				if !slot.Conflicts.IsEmpty() {
					printReport(os.Stdout, slot.Conflicts, app.Location)
				}
			}
			fmt.Println()

			return nil
		},
	}

	cmd.Flags().Duration("duration", 2*time.Hour, "Length of each rehearsal slot")
	cmd.Flags().Int("limit", 0, "Maximum number of slots to show (0 uses suggestion.defaultLimit)")

	return cmd
}
