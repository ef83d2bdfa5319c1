package suggest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/availability"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/conflict"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

// 2025-03-03 is a Monday
func day(d, hour, minute int) time.Time {
	return time.Date(2025, 3, d, hour, minute, 0, 0, time.UTC)
}

var week = window.MustNew(day(3, 0, 0), day(10, 0, 0))

func rule(userID string, weekday time.Weekday, start, end string) model.AvailabilityRule {
	return model.AvailabilityRule{
		ID:      userID + "-" + weekday.String() + "-" + start,
		UserID:  userID,
		Weekday: weekday,
		Start:   model.MustParseTimeOfDay(start),
		End:     model.MustParseTimeOfDay(end),
	}
}

func baseRequest() Request {
	members := []model.Membership{
		{GroupID: "g1", UserID: "alice", Role: model.RoleAdmin},
		{GroupID: "g1", UserID: "bob", Role: model.RoleMember},
		{GroupID: "g1", UserID: "carol", Role: model.RoleMember},
	}
	ruleSets := map[string]*availability.RuleSet{
		"alice": availability.NewRuleSet("alice", []model.AvailabilityRule{
			rule("alice", time.Tuesday, "18:00", "22:00"),
			rule("alice", time.Thursday, "18:00", "22:00"),
		}, nil, nil),
		"bob": availability.NewRuleSet("bob", []model.AvailabilityRule{
			rule("bob", time.Tuesday, "19:00", "21:00"),
		}, nil, nil),
		"carol": availability.NewRuleSet("carol", []model.AvailabilityRule{
			rule("carol", time.Thursday, "18:00", "21:00"),
			rule("carol", time.Tuesday, "18:00", "21:00"),
		}, nil, nil),
	}
	return Request{
		Group:        model.Group{ID: "g1", Name: "Brass Band"},
		Venue:        model.Venue{ID: "v1", Name: "Hall"},
		Members:      members,
		RuleSets:     ruleSets,
		Search:       week,
		SlotDuration: 2 * time.Hour,
		Step:         30 * time.Minute,
		Limit:        5,
	}
}

func TestSuggest_OnlyOneViableCandidate(t *testing.T) {
	req := baseRequest()
	// another group occupies the venue all week except Wednesday 18:00-20:00
	req.Rehearsals = []model.Rehearsal{
		{ID: "r1", GroupID: "g2", VenueID: "v1", Window: window.MustNew(day(3, 0, 0), day(5, 18, 0)), Status: model.RehearsalConfirmed},
		{ID: "r2", GroupID: "g2", VenueID: "v1", Window: window.MustNew(day(5, 20, 0), day(10, 0, 0)), Status: model.RehearsalProposed},
	}

	result, err := NewEngine(zap.NewNop(), Options{}).Suggest(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, result.Slots, 1)
	assert.Equal(t, window.MustNew(day(5, 18, 0), day(5, 20, 0)), result.Slots[0].Window)
	assert.False(t, result.Truncated)
	assert.Equal(t, result.Total, result.Evaluated)
	// 7 days * 48 half hours minus the 3 starts that would overrun the search end
	assert.Equal(t, 7*48-3, result.Total)
}

func TestSuggest_RanksByScoreThenStart(t *testing.T) {
	req := baseRequest()
	req.Limit = 3

	result, err := NewEngine(zap.NewNop(), Options{}).Suggest(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Slots, 3)

	// Tuesday 19:00-21:00 is the only slot all three can make
	assert.Equal(t, window.MustNew(day(4, 19, 0), day(4, 21, 0)), result.Slots[0].Window)
	assert.Equal(t, 1.0, result.Slots[0].Score)

	// then Tuesday 18:00, 18:30 and Thursday 18:00... all at 2/3, earliest first
	for i := 1; i < len(result.Slots); i++ {
		prev, cur := result.Slots[i-1], result.Slots[i]
		if prev.Score == cur.Score {
			assert.True(t, prev.Window.Start.Before(cur.Window.Start))
		} else {
			assert.Greater(t, prev.Score, cur.Score)
		}
	}
	assert.Equal(t, day(4, 18, 0), result.Slots[1].Window.Start)
	assert.InDelta(t, 2.0/3.0, result.Slots[1].Score, 1e-9)
}

func TestSuggest_DeterministicAcrossWorkerCounts(t *testing.T) {
	req := baseRequest()
	req.Limit = 0

	serial, err := NewEngine(zap.NewNop(), Options{Workers: 1, ChunkSize: 7}).Suggest(context.Background(), req)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		parallel, err := NewEngine(zap.NewNop(), Options{Workers: 8, ChunkSize: 13}).Suggest(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, serial, parallel)
	}
}

func TestSuggest_AdminConflictDiscards(t *testing.T) {
	req := baseRequest()
	req.Limit = 0
	// alice plays in another band on Tuesday evening
	req.Rehearsals = []model.Rehearsal{{
		ID:             "other",
		GroupID:        "g2",
		VenueID:        "v2",
		Window:         window.MustNew(day(4, 18, 0), day(4, 22, 0)),
		Status:         model.RehearsalConfirmed,
		ParticipantIDs: []string{"alice", "bob"},
	}}

	result, err := NewEngine(zap.NewNop(), Options{}).Suggest(context.Background(), req)
	require.NoError(t, err)

	for _, slot := range result.Slots {
		assert.False(t, window.Overlaps(slot.Window, req.Rehearsals[0].Window), "slot %s overlaps an admin commitment", slot.Window)
	}
}

func TestSuggest_MemberConflictIsSoftWarning(t *testing.T) {
	req := baseRequest()
	req.Limit = 1
	req.Rehearsals = []model.Rehearsal{{
		ID:             "other",
		GroupID:        "g2",
		VenueID:        "v2",
		Window:         window.MustNew(day(4, 19, 0), day(4, 21, 0)),
		Status:         model.RehearsalConfirmed,
		ParticipantIDs: []string{"bob"},
	}}

	result, err := NewEngine(zap.NewNop(), Options{}).Suggest(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Slots, 1)
	require.Len(t, result.Slots[0].Conflicts.MemberConflicts, 1)
	assert.Equal(t, conflict.SeveritySoft, result.Slots[0].Conflicts.MemberConflicts[0].Severity)

	escalated, err := NewEngine(zap.NewNop(), Options{Policy: conflict.Policy{EscalateMemberConflicts: true}}).Suggest(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, escalated.Slots, 1)
	assert.Empty(t, escalated.Slots[0].Conflicts.MemberConflicts)
}

func TestSuggest_BlackoutsSkipped(t *testing.T) {
	req := baseRequest()
	req.Limit = 0
	blackouts, err := ExpandBlackouts([]Blackout{{RRule: "FREQ=WEEKLY;BYDAY=TU", Duration: 24 * time.Hour, Reason: "hall cleaning"}}, req.Search, time.UTC)
	require.NoError(t, err)
	require.Len(t, blackouts, 1)
	assert.Equal(t, window.MustNew(day(4, 0, 0), day(5, 0, 0)), blackouts[0])
	req.Blackouts = blackouts

	result, err := NewEngine(zap.NewNop(), Options{}).Suggest(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, result.Slots)
	for _, slot := range result.Slots {
		assert.False(t, window.Overlaps(slot.Window, blackouts[0]))
	}
}

func TestSuggest_CapacityExceeded(t *testing.T) {
	req := baseRequest()
	capacity := 2
	req.Venue.Capacity = &capacity
	req.Limit = 1

	result, err := NewEngine(zap.NewNop(), Options{}).Suggest(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Slots, 1)
	assert.True(t, result.Slots[0].CapacityExceeded)
}

func TestSuggest_CancelledContextTruncates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewEngine(zap.NewNop(), Options{}).Suggest(ctx, baseRequest())
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Equal(t, 0, result.Evaluated)
	assert.Empty(t, result.Slots)
	assert.Greater(t, result.Total, 0)
}

func TestSuggest_InvalidRequest(t *testing.T) {
	engine := NewEngine(zap.NewNop(), Options{})

	req := baseRequest()
	req.SlotDuration = 0
	_, err := engine.Suggest(context.Background(), req)
	assert.True(t, errors.Is(err, model.ErrInvalidWindow))

	req = baseRequest()
	req.Search = window.Window{Start: week.End, End: week.Start}
	_, err = engine.Suggest(context.Background(), req)
	assert.True(t, errors.Is(err, model.ErrInvalidWindow))
}

func TestSuggest_SlotLongerThanSearch(t *testing.T) {
	req := baseRequest()
	req.Search = window.MustNew(day(4, 18, 0), day(4, 19, 0))

	result, err := NewEngine(zap.NewNop(), Options{}).Suggest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Slots)
}
