package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/internal/config"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/conflict"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/suggest"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
)

// SuggestParams describes a slot search
type SuggestParams struct {
	GroupID      string `validate:"required"`
	VenueID      string `validate:"required"`
	Search       window.Window
	SlotDuration time.Duration
	// Limit falls back to suggestion.defaultLimit when zero
	Limit int `validate:"min=0"`
}

// SuggestSlots loads a snapshot for the group and venue and ranks every
// viable slot in the search window
func SuggestSlots(
	ctx context.Context,
	database db.SnapshotLoader,
	cfg *config.Config,
	logger *zap.Logger,
	params SuggestParams,
) (*suggest.Result, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if err := params.Search.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate search window: %w", err)
	}
	if horizon := cfg.MaxHorizon(); horizon > 0 && params.Search.Duration() > horizon {
		return nil, fmt.Errorf("%w: search window longer than %d days", model.ErrInvalidWindow, cfg.Suggestion.MaxHorizonDays)
	}

	limit := params.Limit
	if limit == 0 {
		limit = cfg.Suggestion.DefaultLimit
	}

	logger.Debug("Starting suggestSlots",
		zap.String("group_id", params.GroupID),
		zap.String("venue_id", params.VenueID),
		zap.Stringer("search", params.Search),
		zap.Duration("slot_duration", params.SlotDuration),
		zap.Int("limit", limit))

	// Step 1: Load the snapshot
	snap, err := database.LoadSnapshot(ctx, db.SnapshotQuery{
		GroupID: params.GroupID,
		VenueID: params.VenueID,
		Span:    params.Search,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap.Venue == nil {
		return nil, fmt.Errorf("venue %s: %w", params.VenueID, model.ErrNotFound)
	}

	loc, err := snapshotLocation(snap.Group, snap.Venue)
	if err != nil {
		return nil, err
	}

	// Step 2: Expand configured blackouts over the search window
	blackouts, err := suggest.ExpandBlackouts(blackoutsFromConfig(cfg), params.Search, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to expand blackouts: %w", err)
	}

	logger.Debug("Loaded snapshot",
		zap.Int("members", len(snap.Members)),
		zap.Int("rehearsals", len(snap.Rehearsals)),
		zap.Int("blackout_windows", len(blackouts)))

	// Step 3: Run the engine
	engine := suggest.NewEngine(logger, suggest.Options{
		Workers:   cfg.Suggestion.Workers,
		ChunkSize: cfg.Suggestion.ChunkSize,
		Policy:    PolicyFromConfig(cfg),
	})

	result, err := engine.Suggest(ctx, suggest.Request{
		Group:           snap.Group,
		Venue:           *snap.Venue,
		Members:         snap.Members,
		RuleSets:        ruleSets(snap, loc),
		Rehearsals:      snap.Rehearsals,
		MembershipIndex: snap.MembershipsOf,
		Blackouts:       blackouts,
		Search:          params.Search,
		SlotDuration:    params.SlotDuration,
		Limit:           limit,
		Step:            cfg.Step(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to suggest slots: %w", err)
	}

	if result.Truncated {
		logger.Warn("Suggestion search cancelled before completion",
			zap.Int("evaluated", result.Evaluated),
			zap.Int("total", result.Total))
	}

	logger.Info("Suggested slots",
		zap.String("group_id", params.GroupID),
		zap.Int("slots", len(result.Slots)),
		zap.Int("evaluated", result.Evaluated))

	return &result, nil
}

// PolicyFromConfig builds the conflict policy from configuration
func PolicyFromConfig(cfg *config.Config) conflict.Policy {
	return conflict.Policy{EscalateMemberConflicts: cfg.Policy.EscalateMemberConflicts}
}

func blackoutsFromConfig(cfg *config.Config) []suggest.Blackout {
	blackouts := make([]suggest.Blackout, 0, len(cfg.Blackouts))
	for _, b := range cfg.Blackouts {
		blackouts = append(blackouts, suggest.Blackout{
			RRule:    b.RRule,
			Duration: time.Duration(b.DurationMinutes) * time.Minute,
			Reason:   b.Reason,
		})
	}
	return blackouts
}
