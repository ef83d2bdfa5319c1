package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
	"github.com/bandstand/rehearsal-scheduler/pkg/ics"
)

// ImportStore defines the database operations needed to import a busy calendar
type ImportStore interface {
	db.UserAvailabilityLoader
	InsertSpecialUnavailabilities(ctx context.Context, items []model.SpecialUnavailability) error
}

// ImportParams describes an iCalendar import for one user
type ImportParams struct {
	UserID string    `validate:"required"`
	Source io.Reader `validate:"required"`
	Span   window.Window
	// Location interprets floating times, UTC when nil
	Location *time.Location
}

// ImportUnavailability reads a member's busy calendar and stores every busy
// event in the span as a one-off unavailability. Re-importing the same feed
// does not create duplicates.
func ImportUnavailability(
	ctx context.Context,
	database ImportStore,
	logger *zap.Logger,
	params ImportParams,
) ([]model.SpecialUnavailability, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	logger.Debug("Starting importUnavailability",
		zap.String("user_id", params.UserID),
		zap.Stringer("span", params.Span))

	if _, err := database.LoadUserAvailability(ctx, params.UserID); err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", params.UserID, err)
	}

	items, err := ics.ParseBusy(params.Source, ics.ImportOptions{
		UserID:   params.UserID,
		Span:     params.Span,
		Location: params.Location,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar: %w", err)
	}

	if len(items) > 0 {
		if err := database.InsertSpecialUnavailabilities(ctx, items); err != nil {
			return nil, fmt.Errorf("failed to store unavailability: %w", err)
		}
	}

	logger.Info("Imported unavailability",
		zap.String("user_id", params.UserID),
		zap.Int("windows", len(items)))

	return items, nil
}

// BusySource reads busy blocks from an external calendar
type BusySource interface {
	BusyWindows(ctx context.Context, calendarID string, span window.Window) ([]window.Window, error)
}

// GoogleImportParams describes a free/busy import from a hosted calendar
type GoogleImportParams struct {
	UserID     string `validate:"required"`
	CalendarID string `validate:"required"`
	Span       window.Window
}

// ImportGoogleBusy copies the busy blocks of a member's hosted calendar into
// one-off unavailability. Only free/busy information is read, never event
// details. Re-importing the same span does not create duplicates.
func ImportGoogleBusy(
	ctx context.Context,
	database ImportStore,
	source BusySource,
	logger *zap.Logger,
	params GoogleImportParams,
) ([]model.SpecialUnavailability, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if err := params.Span.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate span: %w", err)
	}

	logger.Debug("Starting importGoogleBusy",
		zap.String("user_id", params.UserID),
		zap.String("calendar_id", params.CalendarID),
		zap.Stringer("span", params.Span))

	if _, err := database.LoadUserAvailability(ctx, params.UserID); err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", params.UserID, err)
	}

	busy, err := source.BusyWindows(ctx, params.CalendarID, params.Span)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar %s: %w", params.CalendarID, err)
	}

	items := make([]model.SpecialUnavailability, 0, len(busy))
	for _, w := range window.Union(busy) {
		items = append(items, model.SpecialUnavailability{
			ID:     ics.UnavailabilityID(params.UserID, "google:"+params.CalendarID, w.Start),
			UserID: params.UserID,
			Window: w,
			Reason: "Busy (calendar)",
		})
	}

	if len(items) > 0 {
		if err := database.InsertSpecialUnavailabilities(ctx, items); err != nil {
			return nil, fmt.Errorf("failed to store unavailability: %w", err)
		}
	}

	logger.Info("Imported calendar busy blocks",
		zap.String("user_id", params.UserID),
		zap.Int("windows", len(items)))

	return items, nil
}

// ExportStore defines the database operations needed to export a group calendar
type ExportStore interface {
	GetGroup(ctx context.Context, id string) (*model.Group, error)
	GetVenue(ctx context.Context, id string) (*model.Venue, error)
	ListRehearsals(ctx context.Context, filter db.RehearsalFilter) ([]model.Rehearsal, error)
}

// ExportCalendar renders the group's proposed and confirmed rehearsals as an
// iCalendar feed. A nil span exports every rehearsal.
func ExportCalendar(
	ctx context.Context,
	database ExportStore,
	logger *zap.Logger,
	groupID string,
	span *window.Window,
	now time.Time,
) (string, error) {
	logger.Debug("Starting exportCalendar", zap.String("group_id", groupID))

	group, err := database.GetGroup(ctx, groupID)
	if err != nil {
		return "", fmt.Errorf("failed to load group: %w", err)
	}

	rehearsals, err := database.ListRehearsals(ctx, db.RehearsalFilter{
		GroupID:  groupID,
		Statuses: []model.RehearsalStatus{model.RehearsalProposed, model.RehearsalConfirmed},
		Span:     span,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list rehearsals: %w", err)
	}

	venues := make(map[string]model.Venue)
	for _, r := range rehearsals {
		if _, ok := venues[r.VenueID]; ok {
			continue
		}
		v, err := database.GetVenue(ctx, r.VenueID)
		if err != nil {
			return "", fmt.Errorf("failed to load venue %s: %w", r.VenueID, err)
		}
		venues[v.ID] = *v
	}

	logger.Debug("Exporting rehearsals", zap.Int("count", len(rehearsals)))

	return ics.ExportRehearsals(*group, venues, rehearsals, now), nil
}
