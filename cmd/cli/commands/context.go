package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/internal/config"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
)

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg      *config.Config
	Database db.Database
	Logger   *zap.Logger
	Ctx      context.Context
	// Env selects per-environment config, OAuth client and token files
	Env string
	// Location is the configured default timezone used to read CLI times
	Location *time.Location
}

// interruptContext is done on Ctrl+C or SIGTERM, or when parent is done
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
