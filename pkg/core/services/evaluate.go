package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/availability"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/conflict"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/estimator"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
)

// FreeBusyResult is a user's free/busy breakdown for one window
type FreeBusyResult struct {
	UserID    string
	Fragments []availability.Fragment
	// HasRules is false when the user never recorded a weekly rule, in which
	// case every fragment is BUSY but the user should be treated as unknown
	HasRules bool
}

// FreeBusy partitions w into FREE and BUSY fragments for one user.
// Rules are interpreted in loc, UTC when nil.
func FreeBusy(
	ctx context.Context,
	database db.UserAvailabilityLoader,
	logger *zap.Logger,
	userID string,
	w window.Window,
	loc *time.Location,
) (*FreeBusyResult, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate window: %w", err)
	}

	logger.Debug("Starting freeBusy", zap.String("user_id", userID), zap.Stringer("window", w))

	ua, err := database.LoadUserAvailability(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load availability of %s: %w", userID, err)
	}

	rs := availability.NewRuleSet(userID, ua.Rules, ua.Exceptions, loc)
	fragments, err := rs.FreeBusy(w)
	if err != nil {
		return nil, fmt.Errorf("failed to compute free/busy: %w", err)
	}

	return &FreeBusyResult{UserID: userID, Fragments: fragments, HasRules: rs.HasRules()}, nil
}

// EstimateAttendance predicts which members of a group can attend w
func EstimateAttendance(
	ctx context.Context,
	database db.SnapshotLoader,
	logger *zap.Logger,
	groupID string,
	w window.Window,
) (*estimator.AttendanceEstimate, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate window: %w", err)
	}

	logger.Debug("Starting estimateAttendance", zap.String("group_id", groupID), zap.Stringer("window", w))

	snap, err := database.LoadSnapshot(ctx, db.SnapshotQuery{GroupID: groupID, Span: w})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	loc, err := snapshotLocation(snap.Group, snap.Venue)
	if err != nil {
		return nil, err
	}

	estimate, err := estimator.Estimate(snap.Members, ruleSets(snap, loc), w)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate attendance: %w", err)
	}

	logger.Debug("Estimated attendance",
		zap.Float64("score", estimate.Score),
		zap.Int("available", estimate.Counts.Available),
		zap.Int("unavailable", estimate.Counts.Unavailable),
		zap.Int("unknown", estimate.Counts.Unknown))

	return &estimate, nil
}

// CheckConflictsStore defines the database operations needed to check conflicts
type CheckConflictsStore interface {
	db.SnapshotLoader
	GetRehearsal(ctx context.Context, id string) (*model.Rehearsal, error)
}

// CheckConflictsParams selects the candidate. When RehearsalID is set the
// stored rehearsal is checked and the other fields are ignored.
type CheckConflictsParams struct {
	RehearsalID string
	GroupID     string
	VenueID     string
	Window      window.Window
	// ParticipantIDs overrides the group membership when non-empty
	ParticipantIDs []string
}

// CheckConflicts runs the conflict detector for a stored rehearsal or a
// hypothetical one without writing anything
func CheckConflicts(
	ctx context.Context,
	database CheckConflictsStore,
	policy conflict.Policy,
	logger *zap.Logger,
	params CheckConflictsParams,
) (*conflict.Report, error) {
	candidate := model.Rehearsal{
		GroupID:        params.GroupID,
		VenueID:        params.VenueID,
		Window:         params.Window,
		Status:         model.RehearsalProposed,
		ParticipantIDs: params.ParticipantIDs,
	}
	if params.RehearsalID != "" {
		stored, err := database.GetRehearsal(ctx, params.RehearsalID)
		if err != nil {
			return nil, fmt.Errorf("failed to load rehearsal: %w", err)
		}
		candidate = *stored
	}
	if candidate.GroupID == "" || candidate.VenueID == "" {
		return nil, fmt.Errorf("group and venue are required: %w", model.ErrNotFound)
	}
	if err := candidate.Window.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate window: %w", err)
	}

	logger.Debug("Starting checkConflicts",
		zap.String("rehearsal_id", candidate.ID),
		zap.String("group_id", candidate.GroupID),
		zap.String("venue_id", candidate.VenueID),
		zap.Stringer("window", candidate.Window))

	snap, err := database.LoadSnapshot(ctx, db.SnapshotQuery{
		GroupID:        candidate.GroupID,
		VenueID:        candidate.VenueID,
		Span:           candidate.Window,
		ParticipantIDs: candidate.ParticipantIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	participants := model.ResolveParticipants(candidate, snap.Members)
	report := conflict.NewDetector(policy).Detect(candidate, participants, snap.Rehearsals, snap.MembershipsOf)

	logger.Debug("Checked conflicts",
		zap.Bool("has_hard", report.HasHard()),
		zap.Int("venue_conflicts", len(report.VenueConflicts)),
		zap.Int("group_conflicts", len(report.GroupConflicts)),
		zap.Int("member_conflicts", len(report.MemberConflicts)))

	return &report, nil
}
