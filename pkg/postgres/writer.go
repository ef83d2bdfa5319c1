package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
)

// InsertUser inserts a new user record
func (s *store) InsertUser(ctx context.Context, user model.User) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO users (id, display_name, email) VALUES ($1, $2, $3)
	`, user.ID, user.DisplayName, user.Email)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// InsertGroup inserts a new group record
func (s *store) InsertGroup(ctx context.Context, group model.Group) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO groups (id, name, timezone) VALUES ($1, $2, $3)
	`, group.ID, group.Name, group.Timezone)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

// InsertMembership inserts a membership, replacing the role of an existing one
func (s *store) InsertMembership(ctx context.Context, m model.Membership) error {
	if !m.Role.IsValid() {
		return fmt.Errorf("invalid role %q", m.Role)
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO memberships (group_id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (group_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`, m.GroupID, m.UserID, string(m.Role))
	if err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

// InsertVenue inserts a new venue record
func (s *store) InsertVenue(ctx context.Context, v model.Venue) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO venues (id, name, capacity, timezone, created_by) VALUES ($1, $2, $3, $4, $5)
	`, v.ID, v.Name, v.Capacity, v.Timezone, v.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to insert venue: %w", err)
	}
	return nil
}

// InsertRehearsal inserts a rehearsal and its explicit participant list
func (s *store) InsertRehearsal(ctx context.Context, r model.Rehearsal) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO rehearsals (id, group_id, venue_id, start_at, end_at, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.GroupID, r.VenueID, r.Window.Start.UTC(), r.Window.End.UTC(), string(r.Status), r.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to insert rehearsal: %w", err)
	}

	if len(r.ParticipantIDs) > 0 {
		_, err = s.q.Exec(ctx, `
			INSERT INTO rehearsal_participants (rehearsal_id, user_id)
			SELECT $1, unnest($2::text[])
			ON CONFLICT DO NOTHING
		`, r.ID, r.ParticipantIDs)
		if err != nil {
			return fmt.Errorf("failed to insert rehearsal participants: %w", err)
		}
	}
	return nil
}

// InsertAvailabilityRule inserts a recurring weekly rule
func (s *store) InsertAvailabilityRule(ctx context.Context, r model.AvailabilityRule) error {
	var from *time.Time
	if !r.EffectiveFrom.IsZero() {
		from = &r.EffectiveFrom
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO availability_rules (id, user_id, weekday, start_minute, end_minute, effective_from, effective_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.UserID, int16(r.Weekday), int32(r.Start), int32(r.End), from, r.EffectiveUntil)
	if err != nil {
		return fmt.Errorf("failed to insert availability rule: %w", err)
	}
	return nil
}

// InsertSpecialUnavailabilities inserts one-off busy windows, skipping IDs that already exist
func (s *store) InsertSpecialUnavailabilities(ctx context.Context, items []model.SpecialUnavailability) error {
	for _, item := range items {
		_, err := s.q.Exec(ctx, `
			INSERT INTO special_unavailability (id, user_id, start_at, end_at, reason)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, item.ID, item.UserID, item.Window.Start.UTC(), item.Window.End.UTC(), item.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert special unavailability %s: %w", item.ID, err)
		}
	}
	return nil
}

// SetRehearsalStatus updates the status of a rehearsal
func (s *store) SetRehearsalStatus(ctx context.Context, id string, status model.RehearsalStatus) error {
	tag, err := s.q.Exec(ctx, `UPDATE rehearsals SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update rehearsal status: %w", err)
	}
	return requireOneRow(tag, fmt.Sprintf("rehearsal %s", id))
}

// InsertAttendance inserts attendance rows
func (s *store) InsertAttendance(ctx context.Context, rows []model.Attendance) error {
	for _, a := range rows {
		_, err := s.q.Exec(ctx, `
			INSERT INTO attendance (rehearsal_id, user_id, status, recorded_at, recorded_by)
			VALUES ($1, $2, $3, $4, $5)
		`, a.RehearsalID, a.UserID, string(a.Status), a.RecordedAt, nullString(a.RecordedBy))
		if err != nil {
			return fmt.Errorf("failed to insert attendance for %s: %w", a.UserID, err)
		}
	}
	return nil
}

// UpdateAttendance overwrites the status and recording stamp of one row
func (s *store) UpdateAttendance(ctx context.Context, a model.Attendance) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE attendance SET status = $3, recorded_at = $4, recorded_by = $5
		WHERE rehearsal_id = $1 AND user_id = $2
	`, a.RehearsalID, a.UserID, string(a.Status), a.RecordedAt, nullString(a.RecordedBy))
	if err != nil {
		return fmt.Errorf("failed to update attendance: %w", err)
	}
	return requireOneRow(tag, fmt.Sprintf("attendance of %s at %s", a.UserID, a.RehearsalID))
}

func requireOneRow(tag pgconn.CommandTag, what string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
