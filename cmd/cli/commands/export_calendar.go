package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/services"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

// ExportCalendarCmd creates the exportCalendar command
func ExportCalendarCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exportCalendar <group_id> [start end]",
		Short: "Export a group's rehearsals as an iCalendar feed",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 && len(args) != 3 {
				return fmt.Errorf("expected a group ID and optionally a start and end; got %d args", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")

			var span *window.Window
			if len(args) == 3 {
				w, err := parseWindow(args[1], args[2], app.Location)
				if err != nil {
					return err
				}
				span = &w
			}

			app.Logger.Debug("exportCalendar command", zap.String("group_id", args[0]), zap.String("out", out))

			feed, err := services.ExportCalendar(app.Ctx, app.Database, app.Logger, args[0], span, time.Now().UTC())
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				fmt.Print(feed)
				return nil
			}

			if err := os.WriteFile(out, []byte(feed), 0o644); err != nil {
				return fmt.Errorf("failed to write calendar to %s: %w", out, err)
			}
			fmt.Printf("\n✓ Calendar written to %s\n\n", out)

			return nil
		},
	}

	cmd.Flags().StringP("out", "o", "", "Output file (defaults to stdout)")

	return cmd
}
