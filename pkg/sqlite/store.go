package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
)

const dateLayout = "2006-01-02"

// store implements the read and write operations over one dbConn
type store struct {
	conn dbConn
}

// GetGroup retrieves a group by ID
func (s *store) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	var g model.Group
	err := s.conn.QueryRowContext(ctx, `SELECT id, name, timezone FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

// GetVenue retrieves a venue by ID
func (s *store) GetVenue(ctx context.Context, id string) (*model.Venue, error) {
	var v model.Venue
	var capacity sql.NullInt64
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, name, capacity, timezone, created_by
		FROM venues
		WHERE id = ?
	`, id).Scan(&v.ID, &v.Name, &capacity, &v.Timezone, &v.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("venue %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		v.Capacity = &c
	}
	return &v, nil
}

// GetMembership retrieves the role of userID in groupID
func (s *store) GetMembership(ctx context.Context, groupID, userID string) (*model.Membership, error) {
	var m model.Membership
	err := s.conn.QueryRowContext(ctx, `
		SELECT group_id, user_id, role FROM memberships WHERE group_id = ? AND user_id = ?
	`, groupID, userID).Scan(&m.GroupID, &m.UserID, &m.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("membership of %s in %s: %w", userID, groupID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

// GetRehearsal retrieves a rehearsal with its explicit participant list.
// Inside WithinTx the immediate transaction already holds the write lock.
func (s *store) GetRehearsal(ctx context.Context, id string) (*model.Rehearsal, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, group_id, venue_id, start_at, end_at, status, created_by
		FROM rehearsals
		WHERE id = ?
	`, id)
	r, err := scanRehearsal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rehearsal %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rehearsal: %w", err)
	}

	r.ParticipantIDs, err = s.participantsOf(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRehearsals retrieves rehearsals matching the filter ordered by start
func (s *store) ListRehearsals(ctx context.Context, filter db.RehearsalFilter) ([]model.Rehearsal, error) {
	query := `
		SELECT id, group_id, venue_id, start_at, end_at, status, created_by
		FROM rehearsals
		WHERE 1 = 1`
	var args []any
	if filter.GroupID != "" {
		query += ` AND group_id = ?`
		args = append(args, filter.GroupID)
	}
	if filter.VenueID != "" {
		query += ` AND venue_id = ?`
		args = append(args, filter.VenueID)
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(filter.Statuses)) + `)`
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.Span != nil {
		query += ` AND start_at < ? AND end_at > ?`
		args = append(args, filter.Span.End.Unix(), filter.Span.Start.Unix())
	}
	query += ` ORDER BY start_at, id`

	return s.queryRehearsals(ctx, query, args...)
}

// ListAttendance retrieves the attendance rows of a rehearsal ordered by user
func (s *store) ListAttendance(ctx context.Context, rehearsalID string) ([]model.Attendance, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT rehearsal_id, user_id, status, recorded_at, recorded_by
		FROM attendance
		WHERE rehearsal_id = ?
		ORDER BY user_id
	`, rehearsalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var result []model.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// GetAttendance retrieves one attendance row
func (s *store) GetAttendance(ctx context.Context, rehearsalID, userID string) (*model.Attendance, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT rehearsal_id, user_id, status, recorded_at, recorded_by
		FROM attendance
		WHERE rehearsal_id = ? AND user_id = ?
	`, rehearsalID, userID)
	a, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attendance of %s at %s: %w", userID, rehearsalID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attendance: %w", err)
	}
	return &a, nil
}

// LoadUserAvailability retrieves one user's rules and exceptions
func (s *store) LoadUserAvailability(ctx context.Context, userID string) (*db.UserAvailability, error) {
	var u model.User
	err := s.conn.QueryRowContext(ctx, `SELECT id, display_name, email FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.DisplayName, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rules, err := s.queryRules(ctx, `WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	exceptions, err := s.queryExceptions(ctx, `WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}

	return &db.UserAvailability{User: u, Rules: rules, Exceptions: exceptions}, nil
}

// LoadSnapshot retrieves everything needed to evaluate rehearsals for a group
func (s *store) LoadSnapshot(ctx context.Context, q db.SnapshotQuery) (*db.Snapshot, error) {
	if err := q.Span.Validate(); err != nil {
		return nil, err
	}

	group, err := s.GetGroup(ctx, q.GroupID)
	if err != nil {
		return nil, err
	}
	snap := db.NewSnapshot(*group)

	if q.VenueID != "" {
		venue, err := s.GetVenue(ctx, q.VenueID)
		if err != nil {
			return nil, err
		}
		snap.Venue = venue
	}

	snap.Members, err = s.membershipsOf(ctx, q.GroupID)
	if err != nil {
		return nil, err
	}

	const memberFilter = `WHERE user_id IN (SELECT user_id FROM memberships WHERE group_id = ?)`

	rows, err := s.conn.QueryContext(ctx, `SELECT id, display_name, email FROM users `+memberFilter+` ORDER BY id`, q.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Email); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		snap.Users[u.ID] = u
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	rules, err := s.queryRules(ctx, memberFilter, q.GroupID)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		snap.Rules[r.UserID] = append(snap.Rules[r.UserID], r)
	}

	exceptions, err := s.queryExceptions(ctx, memberFilter+` AND start_at < ? AND end_at > ?`,
		q.GroupID, q.Span.End.Unix(), q.Span.Start.Unix())
	if err != nil {
		return nil, err
	}
	for _, e := range exceptions {
		snap.Exceptions[e.UserID] = append(snap.Exceptions[e.UserID], e)
	}

	participantIn, participantArgs := inList("p.user_id", q.ParticipantIDs)
	ownerIn, ownerArgs := inList("o.user_id", q.ParticipantIDs)

	args := []any{q.Span.End.Unix(), q.Span.Start.Unix(), q.GroupID, q.VenueID}
	args = append(args, participantArgs...)
	args = append(args, q.GroupID)
	args = append(args, ownerArgs...)
	args = append(args, q.GroupID)

	snap.Rehearsals, err = s.queryRehearsals(ctx, `
		SELECT r.id, r.group_id, r.venue_id, r.start_at, r.end_at, r.status, r.created_by
		FROM rehearsals r
		WHERE r.status <> 'cancelled'
			AND r.start_at < ? AND r.end_at > ?
			AND (
				r.group_id = ?
				OR r.venue_id = ?
				OR EXISTS (
					SELECT 1 FROM rehearsal_participants p
					WHERE p.rehearsal_id = r.id AND (
						`+participantIn+`
						OR EXISTS (SELECT 1 FROM memberships m WHERE m.user_id = p.user_id AND m.group_id = ?)
					)
				)
				OR (
					NOT EXISTS (SELECT 1 FROM rehearsal_participants p WHERE p.rehearsal_id = r.id)
					AND EXISTS (
						SELECT 1 FROM memberships o
						WHERE o.group_id = r.group_id AND (
							`+ownerIn+`
							OR EXISTS (SELECT 1 FROM memberships m WHERE m.user_id = o.user_id AND m.group_id = ?)
						)
					)
				)
			)
		ORDER BY r.start_at, r.id
	`, args...)
	if err != nil {
		return nil, err
	}

	for _, r := range snap.Rehearsals {
		if r.GroupID == q.GroupID {
			continue
		}
		if _, loaded := snap.Memberships[r.GroupID]; loaded {
			continue
		}
		members, err := s.membershipsOf(ctx, r.GroupID)
		if err != nil {
			return nil, err
		}
		snap.Memberships[r.GroupID] = members
	}

	return snap, nil
}

// inList renders "column IN (?, ...)" for ids, or a false condition when
// there are none
func inList(column string, ids []string) (string, []any) {
	if len(ids) == 0 {
		return "0", nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return column + " IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ") + ")", args
}

func (s *store) membershipsOf(ctx context.Context, groupID string) ([]model.Membership, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT group_id, user_id, role FROM memberships WHERE group_id = ? ORDER BY user_id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	var members []model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *store) participantsOf(ctx context.Context, rehearsalID string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT user_id FROM rehearsal_participants WHERE rehearsal_id = ? ORDER BY user_id
	`, rehearsalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *store) queryRehearsals(ctx context.Context, query string, args ...any) ([]model.Rehearsal, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rehearsals: %w", err)
	}

	var result []model.Rehearsal
	for rows.Next() {
		r, err := scanRehearsal(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan rehearsal: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate rehearsals: %w", err)
	}
	rows.Close()

	// participants are read after the cursor is closed since a tx holds one connection
	for i := range result {
		result[i].ParticipantIDs, err = s.participantsOf(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *store) queryRules(ctx context.Context, where string, args ...any) ([]model.AvailabilityRule, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, user_id, weekday, start_minute, end_minute, effective_from, effective_until
		FROM availability_rules `+where+`
		ORDER BY user_id, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query availability rules: %w", err)
	}
	defer rows.Close()

	var rules []model.AvailabilityRule
	for rows.Next() {
		var r model.AvailabilityRule
		var weekday, start, end int
		var from, until sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &weekday, &start, &end, &from, &until); err != nil {
			return nil, fmt.Errorf("failed to scan availability rule: %w", err)
		}
		r.Weekday = time.Weekday(weekday)
		r.Start = model.TimeOfDay(start)
		r.End = model.TimeOfDay(end)
		if from.Valid && from.String != "" {
			if r.EffectiveFrom, err = time.Parse(dateLayout, from.String); err != nil {
				return nil, fmt.Errorf("failed to parse effective_from of rule %s: %w", r.ID, err)
			}
		}
		if until.Valid && until.String != "" {
			u, err := time.Parse(dateLayout, until.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse effective_until of rule %s: %w", r.ID, err)
			}
			r.EffectiveUntil = &u
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *store) queryExceptions(ctx context.Context, where string, args ...any) ([]model.SpecialUnavailability, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, user_id, start_at, end_at, reason
		FROM special_unavailability `+where+`
		ORDER BY user_id, start_at, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query special unavailability: %w", err)
	}
	defer rows.Close()

	var result []model.SpecialUnavailability
	for rows.Next() {
		var e model.SpecialUnavailability
		var start, end int64
		if err := rows.Scan(&e.ID, &e.UserID, &start, &end, &e.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan special unavailability: %w", err)
		}
		e.Window = window.Window{Start: time.Unix(start, 0).UTC(), End: time.Unix(end, 0).UTC()}
		result = append(result, e)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRehearsal(row scanner) (model.Rehearsal, error) {
	var r model.Rehearsal
	var start, end int64
	if err := row.Scan(&r.ID, &r.GroupID, &r.VenueID, &start, &end, &r.Status, &r.CreatedBy); err != nil {
		return model.Rehearsal{}, err
	}
	r.Window = window.Window{Start: time.Unix(start, 0).UTC(), End: time.Unix(end, 0).UTC()}
	return r, nil
}

func scanAttendance(row scanner) (model.Attendance, error) {
	var a model.Attendance
	var recordedAt sql.NullInt64
	var recordedBy sql.NullString
	if err := row.Scan(&a.RehearsalID, &a.UserID, &a.Status, &recordedAt, &recordedBy); err != nil {
		return model.Attendance{}, err
	}
	if recordedAt.Valid {
		t := time.Unix(recordedAt.Int64, 0).UTC()
		a.RecordedAt = &t
	}
	a.RecordedBy = recordedBy.String
	return a, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, 2*n-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
