package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
)

// store implements the read and write operations over the pool or a transaction
type store struct {
	q querier
	// lockRows adds FOR UPDATE to single-rehearsal reads inside WithinTx
	lockRows bool
}

const rehearsalColumns = `r.id, r.group_id, r.venue_id, r.start_at, r.end_at, r.status, r.created_by,
	COALESCE((SELECT array_agg(p.user_id ORDER BY p.user_id) FROM rehearsal_participants p WHERE p.rehearsal_id = r.id), '{}')`

// GetGroup retrieves a group by ID
func (s *store) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	var g model.Group
	err := s.q.QueryRow(ctx, `SELECT id, name, timezone FROM groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
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
	var capacity *int32
	err := s.q.QueryRow(ctx, `
		SELECT id, name, capacity, timezone, created_by
		FROM venues
		WHERE id = $1
	`, id).Scan(&v.ID, &v.Name, &capacity, &v.Timezone, &v.CreatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("venue %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}
	if capacity != nil {
		c := int(*capacity)
		v.Capacity = &c
	}
	return &v, nil
}

// GetMembership retrieves the role of userID in groupID
func (s *store) GetMembership(ctx context.Context, groupID, userID string) (*model.Membership, error) {
	var m model.Membership
	var role string
	err := s.q.QueryRow(ctx, `
		SELECT group_id, user_id, role FROM memberships WHERE group_id = $1 AND user_id = $2
	`, groupID, userID).Scan(&m.GroupID, &m.UserID, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("membership of %s in %s: %w", userID, groupID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m.Role = model.Role(role)
	return &m, nil
}

// GetRehearsal retrieves a rehearsal with its explicit participant list
func (s *store) GetRehearsal(ctx context.Context, id string) (*model.Rehearsal, error) {
	query := `SELECT ` + rehearsalColumns + ` FROM rehearsals r WHERE r.id = $1`
	if s.lockRows {
		query += ` FOR UPDATE OF r`
	}

	r, err := scanRehearsal(s.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("rehearsal %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rehearsal: %w", err)
	}
	return &r, nil
}

// ListRehearsals retrieves rehearsals matching the filter ordered by start
func (s *store) ListRehearsals(ctx context.Context, filter db.RehearsalFilter) ([]model.Rehearsal, error) {
	query := `SELECT ` + rehearsalColumns + ` FROM rehearsals r WHERE TRUE`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.GroupID != "" {
		query += ` AND r.group_id = ` + arg(filter.GroupID)
	}
	if filter.VenueID != "" {
		query += ` AND r.venue_id = ` + arg(filter.VenueID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		query += ` AND r.status = ANY(` + arg(statuses) + `)`
	}
	if filter.Span != nil {
		query += ` AND r.start_at < ` + arg(filter.Span.End) + ` AND r.end_at > ` + arg(filter.Span.Start)
	}
	query += ` ORDER BY r.start_at, r.id`

	return s.queryRehearsals(ctx, query, args...)
}

// ListAttendance retrieves the attendance rows of a rehearsal ordered by user
func (s *store) ListAttendance(ctx context.Context, rehearsalID string) ([]model.Attendance, error) {
	rows, err := s.q.Query(ctx, `
		SELECT rehearsal_id, user_id, status, recorded_at, recorded_by
		FROM attendance
		WHERE rehearsal_id = $1
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendance: %w", err)
	}
	return result, nil
}

// GetAttendance retrieves one attendance row
func (s *store) GetAttendance(ctx context.Context, rehearsalID, userID string) (*model.Attendance, error) {
	a, err := scanAttendance(s.q.QueryRow(ctx, `
		SELECT rehearsal_id, user_id, status, recorded_at, recorded_by
		FROM attendance
		WHERE rehearsal_id = $1 AND user_id = $2
	`, rehearsalID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
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
	err := s.q.QueryRow(ctx, `SELECT id, display_name, email FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.DisplayName, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rules, err := s.queryRules(ctx, `WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	exceptions, err := s.queryExceptions(ctx, `WHERE user_id = $1`, userID)
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

	const memberFilter = `WHERE user_id IN (SELECT user_id FROM memberships WHERE group_id = $1)`

	rows, err := s.q.Query(ctx, `SELECT id, display_name, email FROM users `+memberFilter+` ORDER BY id`, q.GroupID)
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

	exceptions, err := s.queryExceptions(ctx, memberFilter+` AND start_at < $2 AND end_at > $3`,
		q.GroupID, q.Span.End, q.Span.Start)
	if err != nil {
		return nil, err
	}
	for _, e := range exceptions {
		snap.Exceptions[e.UserID] = append(snap.Exceptions[e.UserID], e)
	}

	snap.Rehearsals, err = s.queryRehearsals(ctx, `
		SELECT `+rehearsalColumns+`
		FROM rehearsals r
		WHERE r.status <> 'cancelled'
			AND r.start_at < $1 AND r.end_at > $2
			AND (
				r.group_id = $3
				OR r.venue_id = $4
				OR EXISTS (
					SELECT 1 FROM rehearsal_participants p
					WHERE p.rehearsal_id = r.id AND (
						p.user_id = ANY($5::text[])
						OR EXISTS (SELECT 1 FROM memberships m WHERE m.user_id = p.user_id AND m.group_id = $3)
					)
				)
				OR (
					NOT EXISTS (SELECT 1 FROM rehearsal_participants p WHERE p.rehearsal_id = r.id)
					AND EXISTS (
						SELECT 1 FROM memberships o
						WHERE o.group_id = r.group_id AND (
							o.user_id = ANY($5::text[])
							OR EXISTS (SELECT 1 FROM memberships m WHERE m.user_id = o.user_id AND m.group_id = $3)
						)
					)
				)
			)
		ORDER BY r.start_at, r.id
	`, q.Span.End, q.Span.Start, q.GroupID, q.VenueID, participantIDs(q))
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

// participantIDs never returns nil so the query compares against an empty array
func participantIDs(q db.SnapshotQuery) []string {
	if q.ParticipantIDs == nil {
		return []string{}
	}
	return q.ParticipantIDs
}

func (s *store) membershipsOf(ctx context.Context, groupID string) ([]model.Membership, error) {
	rows, err := s.q.Query(ctx, `
		SELECT group_id, user_id, role FROM memberships WHERE group_id = $1 ORDER BY user_id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	var members []model.Membership
	for rows.Next() {
		var m model.Membership
		var role string
		if err := rows.Scan(&m.GroupID, &m.UserID, &role); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		m.Role = model.Role(role)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return members, nil
}

func (s *store) queryRehearsals(ctx context.Context, query string, args ...any) ([]model.Rehearsal, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rehearsals: %w", err)
	}
	defer rows.Close()

	var result []model.Rehearsal
	for rows.Next() {
		r, err := scanRehearsal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rehearsal: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rehearsals: %w", err)
	}
	return result, nil
}

func (s *store) queryRules(ctx context.Context, where string, args ...any) ([]model.AvailabilityRule, error) {
	rows, err := s.q.Query(ctx, `
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
		var weekday int16
		var start, end int32
		var from *time.Time
		if err := rows.Scan(&r.ID, &r.UserID, &weekday, &start, &end, &from, &r.EffectiveUntil); err != nil {
			return nil, fmt.Errorf("failed to scan availability rule: %w", err)
		}
		r.Weekday = time.Weekday(weekday)
		r.Start = model.TimeOfDay(start)
		r.End = model.TimeOfDay(end)
		if from != nil {
			r.EffectiveFrom = *from
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating availability rules: %w", err)
	}
	return rules, nil
}

func (s *store) queryExceptions(ctx context.Context, where string, args ...any) ([]model.SpecialUnavailability, error) {
	rows, err := s.q.Query(ctx, `
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
		var start, end time.Time
		if err := rows.Scan(&e.ID, &e.UserID, &start, &end, &e.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan special unavailability: %w", err)
		}
		e.Window = window.Window{Start: start.UTC(), End: end.UTC()}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating special unavailability: %w", err)
	}
	return result, nil
}

func scanRehearsal(row pgx.Row) (model.Rehearsal, error) {
	var r model.Rehearsal
	var start, end time.Time
	var status string
	if err := row.Scan(&r.ID, &r.GroupID, &r.VenueID, &start, &end, &status, &r.CreatedBy, &r.ParticipantIDs); err != nil {
		return model.Rehearsal{}, err
	}
	r.Window = window.Window{Start: start.UTC(), End: end.UTC()}
	r.Status = model.RehearsalStatus(status)
	if len(r.ParticipantIDs) == 0 {
		r.ParticipantIDs = nil
	}
	return r, nil
}

func scanAttendance(row pgx.Row) (model.Attendance, error) {
	var a model.Attendance
	var status string
	var recordedAt *time.Time
	var recordedBy *string
	if err := row.Scan(&a.RehearsalID, &a.UserID, &status, &recordedAt, &recordedBy); err != nil {
		return model.Attendance{}, err
	}
	a.Status = model.AttendanceStatus(status)
	if recordedAt != nil {
		t := recordedAt.UTC()
		a.RecordedAt = &t
	}
	if recordedBy != nil {
		a.RecordedBy = *recordedBy
	}
	return a, nil
}
