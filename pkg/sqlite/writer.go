package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
)

// InsertUser inserts a new user record
func (s *store) InsertUser(ctx context.Context, user model.User) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email) VALUES (?, ?, ?)
	`, user.ID, user.DisplayName, user.Email)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// InsertGroup inserts a new group record
func (s *store) InsertGroup(ctx context.Context, group model.Group) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO groups (id, name, timezone) VALUES (?, ?, ?)
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
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO memberships (group_id, user_id, role) VALUES (?, ?, ?)
		ON CONFLICT (group_id, user_id) DO UPDATE SET role = excluded.role
	`, m.GroupID, m.UserID, string(m.Role))
	if err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

// InsertVenue inserts a new venue record
func (s *store) InsertVenue(ctx context.Context, v model.Venue) error {
	var capacity sql.NullInt64
	if v.Capacity != nil {
		capacity = sql.NullInt64{Int64: int64(*v.Capacity), Valid: true}
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO venues (id, name, capacity, timezone, created_by) VALUES (?, ?, ?, ?, ?)
	`, v.ID, v.Name, capacity, v.Timezone, v.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to insert venue: %w", err)
	}
	return nil
}

// InsertRehearsal inserts a rehearsal and its explicit participant list
func (s *store) InsertRehearsal(ctx context.Context, r model.Rehearsal) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO rehearsals (id, group_id, venue_id, start_at, end_at, status, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.GroupID, r.VenueID, r.Window.Start.Unix(), r.Window.End.Unix(), string(r.Status), r.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to insert rehearsal: %w", err)
	}

	for _, userID := range r.ParticipantIDs {
		_, err := s.conn.ExecContext(ctx, `
			INSERT OR IGNORE INTO rehearsal_participants (rehearsal_id, user_id) VALUES (?, ?)
		`, r.ID, userID)
		if err != nil {
			return fmt.Errorf("failed to insert rehearsal participant %s: %w", userID, err)
		}
	}
	return nil
}

// InsertAvailabilityRule inserts a recurring weekly rule
func (s *store) InsertAvailabilityRule(ctx context.Context, r model.AvailabilityRule) error {
	var from, until sql.NullString
	if !r.EffectiveFrom.IsZero() {
		from = sql.NullString{String: r.EffectiveFrom.Format(dateLayout), Valid: true}
	}
	if r.EffectiveUntil != nil {
		until = sql.NullString{String: r.EffectiveUntil.Format(dateLayout), Valid: true}
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO availability_rules (id, user_id, weekday, start_minute, end_minute, effective_from, effective_until)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.UserID, int(r.Weekday), int(r.Start), int(r.End), from, until)
	if err != nil {
		return fmt.Errorf("failed to insert availability rule: %w", err)
	}
	return nil
}

// InsertSpecialUnavailabilities inserts one-off busy windows, skipping IDs that already exist
func (s *store) InsertSpecialUnavailabilities(ctx context.Context, items []model.SpecialUnavailability) error {
	for _, item := range items {
		_, err := s.conn.ExecContext(ctx, `
			INSERT OR IGNORE INTO special_unavailability (id, user_id, start_at, end_at, reason)
			VALUES (?, ?, ?, ?, ?)
		`, item.ID, item.UserID, item.Window.Start.Unix(), item.Window.End.Unix(), item.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert special unavailability %s: %w", item.ID, err)
		}
	}
	return nil
}

// SetRehearsalStatus updates the status of a rehearsal
func (s *store) SetRehearsalStatus(ctx context.Context, id string, status model.RehearsalStatus) error {
	res, err := s.conn.ExecContext(ctx, `UPDATE rehearsals SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update rehearsal status: %w", err)
	}
	return requireOneRow(res, fmt.Sprintf("rehearsal %s", id))
}

// InsertAttendance inserts attendance rows
func (s *store) InsertAttendance(ctx context.Context, rows []model.Attendance) error {
	for _, a := range rows {
		var recordedAt sql.NullInt64
		if a.RecordedAt != nil {
			recordedAt = sql.NullInt64{Int64: a.RecordedAt.Unix(), Valid: true}
		}
		_, err := s.conn.ExecContext(ctx, `
			INSERT INTO attendance (rehearsal_id, user_id, status, recorded_at, recorded_by)
			VALUES (?, ?, ?, ?, ?)
		`, a.RehearsalID, a.UserID, string(a.Status), recordedAt, nullString(a.RecordedBy))
		if err != nil {
			return fmt.Errorf("failed to insert attendance for %s: %w", a.UserID, err)
		}
	}
	return nil
}

// UpdateAttendance overwrites the status and recording stamp of one row
func (s *store) UpdateAttendance(ctx context.Context, a model.Attendance) error {
	var recordedAt sql.NullInt64
	if a.RecordedAt != nil {
		recordedAt = sql.NullInt64{Int64: a.RecordedAt.Unix(), Valid: true}
	}
	res, err := s.conn.ExecContext(ctx, `
		UPDATE attendance SET status = ?, recorded_at = ?, recorded_by = ?
		WHERE rehearsal_id = ? AND user_id = ?
	`, string(a.Status), recordedAt, nullString(a.RecordedBy), a.RehearsalID, a.UserID)
	if err != nil {
		return fmt.Errorf("failed to update attendance: %w", err)
	}
	return requireOneRow(res, fmt.Sprintf("attendance of %s at %s", a.UserID, a.RehearsalID))
}

func requireOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
