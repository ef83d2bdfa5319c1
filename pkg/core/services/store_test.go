package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
)

// mockStore is an in-memory db.Database. WithinTx restores rehearsals and
// attendance when fn fails.
type mockStore struct {
	users       map[string]model.User
	groups      map[string]model.Group
	venues      map[string]model.Venue
	memberships []model.Membership
	rules       map[string][]model.AvailabilityRule
	exceptions  map[string][]model.SpecialUnavailability
	rehearsals  map[string]model.Rehearsal
	attendance  map[string]model.Attendance // key: rehearsalID/userID

	txCount           int
	insertAttendErr   error
	listRehearsalsErr error
}

var _ db.Database = (*mockStore)(nil)
var _ db.Tx = (*mockStore)(nil)

func newMockStore() *mockStore {
	return &mockStore{
		users:      make(map[string]model.User),
		groups:     make(map[string]model.Group),
		venues:     make(map[string]model.Venue),
		rules:      make(map[string][]model.AvailabilityRule),
		exceptions: make(map[string][]model.SpecialUnavailability),
		rehearsals: make(map[string]model.Rehearsal),
		attendance: make(map[string]model.Attendance),
	}
}

func attendanceKey(rehearsalID, userID string) string {
	return rehearsalID + "/" + userID
}

func (m *mockStore) Close() error { return nil }

func (m *mockStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.txCount++

	rehearsals := make(map[string]model.Rehearsal, len(m.rehearsals))
	for k, v := range m.rehearsals {
		rehearsals[k] = v
	}
	attendance := make(map[string]model.Attendance, len(m.attendance))
	for k, v := range m.attendance {
		attendance[k] = v
	}

	if err := fn(ctx, m); err != nil {
		m.rehearsals = rehearsals
		m.attendance = attendance
		return err
	}
	return nil
}

func (m *mockStore) LoadSnapshot(ctx context.Context, q db.SnapshotQuery) (*db.Snapshot, error) {
	group, ok := m.groups[q.GroupID]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", q.GroupID, model.ErrNotFound)
	}
	snap := db.NewSnapshot(group)

	if q.VenueID != "" {
		v, ok := m.venues[q.VenueID]
		if !ok {
			return nil, fmt.Errorf("venue %s: %w", q.VenueID, model.ErrNotFound)
		}
		snap.Venue = &v
	}

	people := make(map[string]bool)
	for _, id := range q.ParticipantIDs {
		people[id] = true
	}
	for _, ms := range m.memberships {
		if ms.GroupID == q.GroupID {
			snap.Members = append(snap.Members, ms)
			people[ms.UserID] = true
			snap.Users[ms.UserID] = m.users[ms.UserID]
			snap.Rules[ms.UserID] = m.rules[ms.UserID]
			snap.Exceptions[ms.UserID] = m.exceptions[ms.UserID]
		}
	}

	for _, r := range m.rehearsals {
		if !r.IsActive() || !window.Overlaps(r.Window, q.Span) {
			continue
		}
		if !db.Involves(r, q.GroupID, q.VenueID, people, m.membershipsOf(r.GroupID)) {
			continue
		}
		snap.Rehearsals = append(snap.Rehearsals, r)
		if r.GroupID != q.GroupID {
			snap.Memberships[r.GroupID] = m.membershipsOf(r.GroupID)
		}
	}
	db.SortRehearsals(snap.Rehearsals)

	return snap, nil
}

func (m *mockStore) membershipsOf(groupID string) []model.Membership {
	var out []model.Membership
	for _, ms := range m.memberships {
		if ms.GroupID == groupID {
			out = append(out, ms)
		}
	}
	return out
}

func (m *mockStore) LoadUserAvailability(ctx context.Context, userID string) (*db.UserAvailability, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, model.ErrNotFound)
	}
	return &db.UserAvailability{User: u, Rules: m.rules[userID], Exceptions: m.exceptions[userID]}, nil
}

func (m *mockStore) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", id, model.ErrNotFound)
	}
	return &g, nil
}

func (m *mockStore) GetVenue(ctx context.Context, id string) (*model.Venue, error) {
	v, ok := m.venues[id]
	if !ok {
		return nil, fmt.Errorf("venue %s: %w", id, model.ErrNotFound)
	}
	return &v, nil
}

func (m *mockStore) GetMembership(ctx context.Context, groupID, userID string) (*model.Membership, error) {
	for _, ms := range m.memberships {
		if ms.GroupID == groupID && ms.UserID == userID {
			return &ms, nil
		}
	}
	return nil, fmt.Errorf("membership %s/%s: %w", groupID, userID, model.ErrNotFound)
}

func (m *mockStore) GetRehearsal(ctx context.Context, id string) (*model.Rehearsal, error) {
	r, ok := m.rehearsals[id]
	if !ok {
		return nil, fmt.Errorf("rehearsal %s: %w", id, model.ErrNotFound)
	}
	return &r, nil
}

func (m *mockStore) ListRehearsals(ctx context.Context, filter db.RehearsalFilter) ([]model.Rehearsal, error) {
	if m.listRehearsalsErr != nil {
		return nil, m.listRehearsalsErr
	}
	var out []model.Rehearsal
	for _, r := range m.rehearsals {
		if filter.GroupID != "" && r.GroupID != filter.GroupID {
			continue
		}
		if filter.VenueID != "" && r.VenueID != filter.VenueID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, r.Status) {
			continue
		}
		if filter.Span != nil && !window.Overlaps(r.Window, *filter.Span) {
			continue
		}
		out = append(out, r)
	}
	db.SortRehearsals(out)
	return out, nil
}

func containsStatus(statuses []model.RehearsalStatus, s model.RehearsalStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (m *mockStore) ListAttendance(ctx context.Context, rehearsalID string) ([]model.Attendance, error) {
	var out []model.Attendance
	for _, a := range m.attendance {
		if a.RehearsalID == rehearsalID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockStore) GetAttendance(ctx context.Context, rehearsalID, userID string) (*model.Attendance, error) {
	a, ok := m.attendance[attendanceKey(rehearsalID, userID)]
	if !ok {
		return nil, fmt.Errorf("attendance of %s at %s: %w", userID, rehearsalID, model.ErrNotFound)
	}
	return &a, nil
}

func (m *mockStore) SetRehearsalStatus(ctx context.Context, id string, status model.RehearsalStatus) error {
	r, ok := m.rehearsals[id]
	if !ok {
		return fmt.Errorf("rehearsal %s: %w", id, model.ErrNotFound)
	}
	r.Status = status
	m.rehearsals[id] = r
	return nil
}

func (m *mockStore) InsertAttendance(ctx context.Context, rows []model.Attendance) error {
	if m.insertAttendErr != nil {
		return m.insertAttendErr
	}
	for _, a := range rows {
		key := attendanceKey(a.RehearsalID, a.UserID)
		if _, exists := m.attendance[key]; exists {
			return fmt.Errorf("duplicate attendance %s", key)
		}
		m.attendance[key] = a
	}
	return nil
}

func (m *mockStore) UpdateAttendance(ctx context.Context, a model.Attendance) error {
	key := attendanceKey(a.RehearsalID, a.UserID)
	if _, ok := m.attendance[key]; !ok {
		return fmt.Errorf("attendance %s: %w", key, model.ErrNotFound)
	}
	m.attendance[key] = a
	return nil
}

func (m *mockStore) InsertUser(ctx context.Context, user model.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockStore) InsertGroup(ctx context.Context, group model.Group) error {
	m.groups[group.ID] = group
	return nil
}

func (m *mockStore) InsertMembership(ctx context.Context, membership model.Membership) error {
	for i, ms := range m.memberships {
		if ms.GroupID == membership.GroupID && ms.UserID == membership.UserID {
			m.memberships[i] = membership
			return nil
		}
	}
	m.memberships = append(m.memberships, membership)
	return nil
}

func (m *mockStore) InsertVenue(ctx context.Context, venue model.Venue) error {
	m.venues[venue.ID] = venue
	return nil
}

func (m *mockStore) InsertRehearsal(ctx context.Context, rehearsal model.Rehearsal) error {
	if _, exists := m.rehearsals[rehearsal.ID]; exists {
		return fmt.Errorf("duplicate rehearsal %s", rehearsal.ID)
	}
	m.rehearsals[rehearsal.ID] = rehearsal
	return nil
}

func (m *mockStore) InsertAvailabilityRule(ctx context.Context, rule model.AvailabilityRule) error {
	m.rules[rule.UserID] = append(m.rules[rule.UserID], rule)
	return nil
}

func (m *mockStore) InsertSpecialUnavailabilities(ctx context.Context, items []model.SpecialUnavailability) error {
	for _, item := range items {
		duplicate := false
		for _, existing := range m.exceptions[item.UserID] {
			if existing.ID == item.ID {
				duplicate = true
				break
			}
		}
		if !duplicate {
			m.exceptions[item.UserID] = append(m.exceptions[item.UserID], item)
		}
	}
	return nil
}

// Fixture helpers

// day returns a March 2025 UTC instant; the 4th is a Tuesday
func day(d, hour, minute int) time.Time {
	return time.Date(2025, 3, d, hour, minute, 0, 0, time.UTC)
}

func weekly(userID string, weekday time.Weekday, start, end string) model.AvailabilityRule {
	return model.AvailabilityRule{
		ID:      fmt.Sprintf("%s-%d-%s", userID, weekday, start),
		UserID:  userID,
		Weekday: weekday,
		Start:   model.MustParseTimeOfDay(start),
		End:     model.MustParseTimeOfDay(end),
	}
}

// bandFixture has one group "band" with admin alice and members bob and carol,
// one venue "hall", and one proposed rehearsal "r1" on Tuesday 4th 18-20
func bandFixture() *mockStore {
	store := newMockStore()
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		store.users[id] = model.User{ID: id, DisplayName: id}
	}
	store.groups["band"] = model.Group{ID: "band", Name: "Brass Band"}
	store.groups["choir"] = model.Group{ID: "choir", Name: "Choir"}
	store.memberships = []model.Membership{
		{GroupID: "band", UserID: "alice", Role: model.RoleAdmin},
		{GroupID: "band", UserID: "bob", Role: model.RoleMember},
		{GroupID: "band", UserID: "carol", Role: model.RoleMember},
		{GroupID: "choir", UserID: "dave", Role: model.RoleAdmin},
		{GroupID: "choir", UserID: "bob", Role: model.RoleMember},
	}
	store.venues["hall"] = model.Venue{ID: "hall", Name: "Town Hall"}
	store.venues["church"] = model.Venue{ID: "church", Name: "St Mary's"}
	store.rehearsals["r1"] = model.Rehearsal{
		ID:        "r1",
		GroupID:   "band",
		VenueID:   "hall",
		Window:    window.MustNew(day(4, 18, 0), day(4, 20, 0)),
		Status:    model.RehearsalProposed,
		CreatedBy: "alice",
	}
	return store
}
