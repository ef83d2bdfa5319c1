package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/internal/config"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
)

// DefaultExpireProposalsSchedule is used when no cron spec is configured
const DefaultExpireProposalsSchedule = "@hourly"

// ExpireStore defines the database operations needed to expire stale proposals
type ExpireStore interface {
	db.Transactor
	ListRehearsals(ctx context.Context, filter db.RehearsalFilter) ([]model.Rehearsal, error)
}

// ExpireProposals cancels every proposed rehearsal that started more than
// grace before now. It returns the IDs of the cancelled rehearsals.
func ExpireProposals(
	ctx context.Context,
	database ExpireStore,
	logger *zap.Logger,
	grace time.Duration,
	now time.Time,
) ([]string, error) {
	cutoff := now.Add(-grace)

	logger.Debug("Starting expireProposals", zap.Time("cutoff", cutoff))

	proposed, err := database.ListRehearsals(ctx, db.RehearsalFilter{
		Statuses: []model.RehearsalStatus{model.RehearsalProposed},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list proposed rehearsals: %w", err)
	}

	var expired []string
	for _, r := range proposed {
		if !r.Window.Start.Before(cutoff) {
			continue
		}

		var cancelled bool
		err := database.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
			cancelled = false
			// Re-read under the transaction; the proposal may have been confirmed meanwhile
			current, err := tx.GetRehearsal(ctx, r.ID)
			if err != nil {
				return err
			}
			if current.Status != model.RehearsalProposed {
				return nil
			}
			if err := tx.SetRehearsalStatus(ctx, r.ID, model.RehearsalCancelled); err != nil {
				return err
			}
			cancelled = true
			return nil
		})
		if err != nil {
			return expired, fmt.Errorf("failed to expire rehearsal %s: %w", r.ID, err)
		}
		if cancelled {
			expired = append(expired, r.ID)
		}
	}

	logger.Info("Expired stale proposals", zap.Int("count", len(expired)), zap.Strings("rehearsal_ids", expired))

	return expired, nil
}

// Maintenance runs housekeeping jobs on a cron schedule
type Maintenance struct {
	cron     *cron.Cron
	database ExpireStore
	grace    time.Duration
	logger   *zap.Logger

	// jobCtx is cancelled when Run's context is done
	jobCtx context.Context
}

// NewMaintenance schedules proposal expiry according to cfg.Maintenance
func NewMaintenance(database ExpireStore, cfg *config.Config, logger *zap.Logger) (*Maintenance, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}

	spec := cfg.Maintenance.ExpireProposalsCron
	if spec == "" {
		spec = DefaultExpireProposalsSchedule
	}

	cl := cronLogger{logger.Sugar()}
	m := &Maintenance{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		database: database,
		grace:    cfg.ProposalGrace(),
		logger:   logger,
		jobCtx:   context.Background(),
	}

	if _, err := m.cron.AddFunc(spec, m.expire); err != nil {
		return nil, fmt.Errorf("failed to schedule proposal expiry %q: %w", spec, err)
	}

	return m, nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for a
// running job to finish. Jobs run on a context derived from ctx, so a
// shutdown also cancels an expiry in flight.
func (m *Maintenance) Run(ctx context.Context) error {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.jobCtx = jobCtx

	m.logger.Info("Maintenance scheduler starting")
	m.cron.Start()

	<-ctx.Done()

	m.logger.Info("Maintenance scheduler stopping")
	<-m.cron.Stop().Done()
	return nil
}

// RunOnce executes every job immediately
func (m *Maintenance) RunOnce(ctx context.Context) ([]string, error) {
	return ExpireProposals(ctx, m.database, m.logger, m.grace, time.Now().UTC())
}

func (m *Maintenance) expire() {
	if _, err := ExpireProposals(m.jobCtx, m.database, m.logger, m.grace, time.Now().UTC()); err != nil {
		m.logger.Error("Proposal expiry failed", zap.Error(err))
	}
}

// cronLogger adapts zap to cron's logger interface
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
