package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/internal/config"
	"github.com/bandstand/rehearsal-scheduler/pkg/clients/calendarclient"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/services"
)

// ImportGoogleBusyCmd creates the importGoogleBusy command
func ImportGoogleBusyCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "importGoogleBusy <user_id> <calendar_id> <start> <end>",
		Short: "Import busy blocks from a member's Google Calendar",
		Long: `Import busy blocks from a member's Google Calendar as one-off unavailability.
Only free/busy information is requested. The first run opens a browser consent
flow; the token is stored per environment under ~/.rehearsal-scheduler/tokens.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			span, err := parseWindow(args[2], args[3], app.Location)
			if err != nil {
				return err
			}

			app.Logger.Debug("importGoogleBusy command",
				zap.String("user_id", args[0]),
				zap.String("calendar_id", args[1]),
				zap.Stringer("span", span))

			oauthCfg, err := config.LoadOAuthClientWithEnv(app.Env)
			if err != nil {
				return err
			}

			client, err := calendarclient.NewClient(app.Ctx, oauthCfg, app.Env, app.Logger)
			if err != nil {
				return err
			}

			items, err := services.ImportGoogleBusy(app.Ctx, app.Database, client, app.Logger, services.GoogleImportParams{
				UserID:     args[0],
				CalendarID: args[1],
				Span:       span,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Imported %d busy blocks for %s\n\n", len(items), args[0])
			for _, item := range items {
				fmt.Printf("  %s\n", formatWindow(item.Window, app.Location))
			}
			if len(items) > 0 {
				fmt.Println()
			}

			return nil
		},
	}
}
