package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/internal/config"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/availability"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/conflict"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/estimator"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

// availabilityFixture gives alice and bob Tuesdays 18-21 and carol Tuesdays 19-21
func availabilityFixture() *mockStore {
	store := bandFixture()
	store.rules["alice"] = []model.AvailabilityRule{weekly("alice", time.Tuesday, "18:00", "21:00")}
	store.rules["bob"] = []model.AvailabilityRule{weekly("bob", time.Tuesday, "18:00", "21:00")}
	store.rules["carol"] = []model.AvailabilityRule{weekly("carol", time.Tuesday, "19:00", "21:00")}
	return store
}

func suggestConfig() *config.Config {
	return &config.Config{
		Suggestion: config.SuggestionConfig{
			StepMinutes:    30,
			Workers:        2,
			ChunkSize:      4,
			DefaultLimit:   3,
			MaxHorizonDays: 7,
		},
	}
}

func TestFreeBusy(t *testing.T) {
	store := availabilityFixture()

	result, err := FreeBusy(context.Background(), store, zap.NewNop(), "alice", window.MustNew(day(4, 17, 0), day(4, 22, 0)), nil)
	require.NoError(t, err)

	assert.True(t, result.HasRules)
	assert.Equal(t, []availability.Fragment{
		{Window: window.MustNew(day(4, 17, 0), day(4, 18, 0)), Status: availability.StatusBusy},
		{Window: window.MustNew(day(4, 18, 0), day(4, 21, 0)), Status: availability.StatusFree},
		{Window: window.MustNew(day(4, 21, 0), day(4, 22, 0)), Status: availability.StatusBusy},
	}, result.Fragments)
}

func TestFreeBusy_ExceptionOverridesRule(t *testing.T) {
	store := availabilityFixture()
	store.exceptions["alice"] = []model.SpecialUnavailability{
		{ID: "x1", UserID: "alice", Window: window.MustNew(day(4, 19, 0), day(4, 20, 0))},
	}

	result, err := FreeBusy(context.Background(), store, zap.NewNop(), "alice", window.MustNew(day(4, 18, 0), day(4, 21, 0)), nil)
	require.NoError(t, err)

	assert.Equal(t, []availability.Fragment{
		{Window: window.MustNew(day(4, 18, 0), day(4, 19, 0)), Status: availability.StatusFree},
		{Window: window.MustNew(day(4, 19, 0), day(4, 20, 0)), Status: availability.StatusBusy},
		{Window: window.MustNew(day(4, 20, 0), day(4, 21, 0)), Status: availability.StatusFree},
	}, result.Fragments)
}

func TestFreeBusy_Errors(t *testing.T) {
	store := availabilityFixture()

	_, err := FreeBusy(context.Background(), store, zap.NewNop(), "nobody", window.MustNew(day(4, 17, 0), day(4, 22, 0)), nil)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = FreeBusy(context.Background(), store, zap.NewNop(), "alice", window.Window{Start: day(4, 22, 0), End: day(4, 17, 0)}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidWindow)
}

func TestEstimateAttendance(t *testing.T) {
	store := availabilityFixture()

	estimate, err := EstimateAttendance(context.Background(), store, zap.NewNop(), "band", window.MustNew(day(4, 18, 0), day(4, 20, 0)))
	require.NoError(t, err)

	assert.InDelta(t, 2.0/3.0, estimate.Score, 1e-9)
	assert.Equal(t, estimator.StatusAvailable, estimate.PerMember["alice"])
	assert.Equal(t, estimator.StatusAvailable, estimate.PerMember["bob"])
	assert.Equal(t, estimator.StatusUnavailable, estimate.PerMember["carol"])
}

func TestEstimateAttendance_UnknownExcluded(t *testing.T) {
	store := availabilityFixture()
	delete(store.rules, "carol")

	estimate, err := EstimateAttendance(context.Background(), store, zap.NewNop(), "band", window.MustNew(day(4, 18, 0), day(4, 20, 0)))
	require.NoError(t, err)

	assert.Equal(t, 1.0, estimate.Score)
	assert.Equal(t, estimator.StatusUnknown, estimate.PerMember["carol"])
	assert.Equal(t, estimator.Counts{Available: 2, Unknown: 1}, estimate.Counts)
}

func TestEstimateAttendance_UnknownGroup(t *testing.T) {
	_, err := EstimateAttendance(context.Background(), availabilityFixture(), zap.NewNop(), "orchestra", window.MustNew(day(4, 18, 0), day(4, 20, 0)))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCheckConflicts(t *testing.T) {
	store := bandFixture()
	store.rehearsals["choir-1"] = model.Rehearsal{
		ID:      "choir-1",
		GroupID: "choir",
		VenueID: "hall",
		Window:  window.MustNew(day(4, 19, 0), day(4, 21, 0)),
		Status:  model.RehearsalConfirmed,
	}

	t.Run("stored rehearsal", func(t *testing.T) {
		report, err := CheckConflicts(context.Background(), store, conflict.Policy{}, zap.NewNop(), CheckConflictsParams{RehearsalID: "r1"})
		require.NoError(t, err)
		require.Len(t, report.VenueConflicts, 1)
		assert.Equal(t, "choir-1", report.VenueConflicts[0].ID)
		assert.Empty(t, report.GroupConflicts)
		assert.True(t, report.HasHard())
	})

	t.Run("hypothetical slot in the same group", func(t *testing.T) {
		report, err := CheckConflicts(context.Background(), store, conflict.Policy{}, zap.NewNop(), CheckConflictsParams{
			GroupID: "band",
			VenueID: "church",
			Window:  window.MustNew(day(4, 18, 0), day(4, 20, 0)),
		})
		require.NoError(t, err)
		assert.Empty(t, report.VenueConflicts)
		require.Len(t, report.GroupConflicts, 1)
		assert.Equal(t, "r1", report.GroupConflicts[0].ID)
	})

	t.Run("adjacent slot", func(t *testing.T) {
		report, err := CheckConflicts(context.Background(), store, conflict.Policy{}, zap.NewNop(), CheckConflictsParams{
			GroupID: "band",
			VenueID: "hall",
			Window:  window.MustNew(day(4, 21, 0), day(4, 22, 0)),
		})
		require.NoError(t, err)
		assert.True(t, report.IsEmpty())
	})

	t.Run("unknown rehearsal", func(t *testing.T) {
		_, err := CheckConflicts(context.Background(), store, conflict.Policy{}, zap.NewNop(), CheckConflictsParams{RehearsalID: "missing"})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
	t.Run("explicit participant outside the group", func(t *testing.T) {
		store := bandFixture()
		store.rehearsals["choir-2"] = model.Rehearsal{
			ID:             "choir-2",
			GroupID:        "choir",
			VenueID:        "church",
			Window:         window.MustNew(day(6, 18, 0), day(6, 20, 0)),
			Status:         model.RehearsalConfirmed,
			ParticipantIDs: []string{"dave"},
		}
		params := CheckConflictsParams{
			GroupID: "band",
			VenueID: "hall",
			Window:  window.MustNew(day(6, 18, 0), day(6, 20, 0)),
		}

		report, err := CheckConflicts(context.Background(), store, conflict.Policy{}, zap.NewNop(), params)
		require.NoError(t, err)
		assert.True(t, report.IsEmpty())

		params.ParticipantIDs = []string{"alice", "dave"}
		report, err = CheckConflicts(context.Background(), store, conflict.Policy{EscalateMemberConflicts: true}, zap.NewNop(), params)
		require.NoError(t, err)
		require.Len(t, report.MemberConflicts, 1)
		assert.Equal(t, "dave", report.MemberConflicts[0].UserID)
		assert.True(t, report.HasHard())
	})
}

func TestProposeRehearsal(t *testing.T) {
	store := bandFixture()

	result, err := ProposeRehearsal(context.Background(), store, conflict.Policy{}, zap.NewNop(), ProposeParams{
		GroupID: "choir",
		VenueID: "church",
		ActorID: "dave",
		Window:  window.MustNew(day(4, 19, 0), day(4, 21, 0)),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.Rehearsal.ID)
	assert.Equal(t, model.RehearsalProposed, result.Rehearsal.Status)
	assert.Equal(t, "dave", result.Rehearsal.CreatedBy)

	// bob is also at the band's r1, reported but not blocking
	assert.Empty(t, result.Warnings.VenueConflicts)
	assert.Empty(t, result.Warnings.GroupConflicts)
	require.Len(t, result.Warnings.MemberConflicts, 1)
	assert.Equal(t, "bob", result.Warnings.MemberConflicts[0].UserID)
	assert.Equal(t, conflict.SeveritySoft, result.Warnings.MemberConflicts[0].Severity)

	stored, ok := store.rehearsals[result.Rehearsal.ID]
	require.True(t, ok)
	assert.Equal(t, "church", stored.VenueID)
}

func TestProposeRehearsal_VenueOrGroupOverlapRejected(t *testing.T) {
	tests := []struct {
		name      string
		params    ProposeParams
		wantVenue int
		wantGroup int
	}{
		{
			name:      "venue taken by another group",
			params:    ProposeParams{GroupID: "choir", VenueID: "hall", ActorID: "dave", Window: window.MustNew(day(4, 19, 0), day(4, 21, 0))},
			wantVenue: 1,
		},
		{
			name:      "group already rehearsing elsewhere",
			params:    ProposeParams{GroupID: "band", VenueID: "church", ActorID: "alice", Window: window.MustNew(day(4, 19, 0), day(4, 21, 0))},
			wantGroup: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := bandFixture()

			_, err := ProposeRehearsal(context.Background(), store, conflict.Policy{}, zap.NewNop(), tt.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrConflict)

			var conflictErr *conflict.ConflictError
			require.True(t, errors.As(err, &conflictErr))
			assert.Len(t, conflictErr.Report.VenueConflicts, tt.wantVenue)
			assert.Len(t, conflictErr.Report.GroupConflicts, tt.wantGroup)
			assert.Len(t, store.rehearsals, 1)

			// The earlier rehearsal can still be confirmed
			_, err = ConfirmRehearsal(context.Background(), store, conflict.Policy{}, zap.NewNop(), ConfirmParams{RehearsalID: "r1", ActorID: "alice"})
			assert.NoError(t, err)
		})
	}
}

func TestProposeRehearsal_ParticipantOutsideGroup(t *testing.T) {
	store := bandFixture()
	store.rehearsals["choir-1"] = model.Rehearsal{
		ID:             "choir-1",
		GroupID:        "choir",
		VenueID:        "church",
		Window:         window.MustNew(day(6, 18, 0), day(6, 20, 0)),
		Status:         model.RehearsalConfirmed,
		ParticipantIDs: []string{"dave"},
	}

	result, err := ProposeRehearsal(context.Background(), store, conflict.Policy{}, zap.NewNop(), ProposeParams{
		GroupID:        "band",
		VenueID:        "hall",
		ActorID:        "alice",
		Window:         window.MustNew(day(6, 19, 0), day(6, 21, 0)),
		ParticipantIDs: []string{"alice", "dave"},
	})
	require.NoError(t, err)

	require.Len(t, result.Warnings.MemberConflicts, 1)
	assert.Equal(t, "dave", result.Warnings.MemberConflicts[0].UserID)
	assert.Equal(t, []string{"alice", "dave"}, store.rehearsals[result.Rehearsal.ID].ParticipantIDs)
}

func TestProposeRehearsal_Errors(t *testing.T) {
	tests := []struct {
		name    string
		params  ProposeParams
		wantErr error
	}{
		{
			name:    "non-admin",
			params:  ProposeParams{GroupID: "band", VenueID: "hall", ActorID: "bob", Window: window.MustNew(day(5, 18, 0), day(5, 20, 0))},
			wantErr: model.ErrUnauthorized,
		},
		{
			name:    "unknown venue",
			params:  ProposeParams{GroupID: "band", VenueID: "barn", ActorID: "alice", Window: window.MustNew(day(5, 18, 0), day(5, 20, 0))},
			wantErr: model.ErrNotFound,
		},
		{
			name:    "empty window",
			params:  ProposeParams{GroupID: "band", VenueID: "hall", ActorID: "alice", Window: window.Window{Start: day(5, 18, 0), End: day(5, 18, 0)}},
			wantErr: model.ErrInvalidWindow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := bandFixture()

			_, err := ProposeRehearsal(context.Background(), store, conflict.Policy{}, zap.NewNop(), tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Len(t, store.rehearsals, 1)
		})
	}
}

func TestSuggestSlots(t *testing.T) {
	store := availabilityFixture()
	delete(store.rehearsals, "r1")

	result, err := SuggestSlots(context.Background(), store, suggestConfig(), zap.NewNop(), SuggestParams{
		GroupID:      "band",
		VenueID:      "hall",
		Search:       window.MustNew(day(4, 17, 0), day(4, 22, 0)),
		SlotDuration: 2 * time.Hour,
	})
	require.NoError(t, err)

	assert.Equal(t, 7, result.Total)
	assert.False(t, result.Truncated)

	// Default limit of 3
	require.Len(t, result.Slots, 3)
	assert.Equal(t, day(4, 19, 0), result.Slots[0].Window.Start)
	assert.Equal(t, 1.0, result.Slots[0].Score)
	assert.Equal(t, day(4, 18, 0), result.Slots[1].Window.Start)
	assert.InDelta(t, 2.0/3.0, result.Slots[1].Score, 1e-9)
	assert.Equal(t, day(4, 18, 30), result.Slots[2].Window.Start)
}

func TestSuggestSlots_ExistingRehearsalBlocksVenue(t *testing.T) {
	store := availabilityFixture()

	result, err := SuggestSlots(context.Background(), store, suggestConfig(), zap.NewNop(), SuggestParams{
		GroupID:      "band",
		VenueID:      "hall",
		Search:       window.MustNew(day(4, 17, 0), day(4, 22, 0)),
		SlotDuration: 2 * time.Hour,
		Limit:        10,
	})
	require.NoError(t, err)

	// r1 occupies 18-20, so only the 20:00 start survives
	require.Len(t, result.Slots, 1)
	assert.Equal(t, day(4, 20, 0), result.Slots[0].Window.Start)
}

func TestSuggestSlots_ConfiguredBlackout(t *testing.T) {
	store := availabilityFixture()
	delete(store.rehearsals, "r1")

	cfg := suggestConfig()
	cfg.Blackouts = []config.Blackout{{RRule: "FREQ=WEEKLY;BYDAY=TU", DurationMinutes: 24 * 60, Reason: "hall closed"}}

	result, err := SuggestSlots(context.Background(), store, cfg, zap.NewNop(), SuggestParams{
		GroupID:      "band",
		VenueID:      "hall",
		Search:       window.MustNew(day(4, 17, 0), day(4, 22, 0)),
		SlotDuration: 2 * time.Hour,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Slots)
	assert.Equal(t, 7, result.Evaluated)
}

func TestSuggestSlots_Errors(t *testing.T) {
	store := availabilityFixture()

	_, err := SuggestSlots(context.Background(), store, suggestConfig(), zap.NewNop(), SuggestParams{
		GroupID:      "band",
		VenueID:      "hall",
		Search:       window.MustNew(day(1, 0, 0), day(20, 0, 0)),
		SlotDuration: 2 * time.Hour,
	})
	assert.ErrorIs(t, err, model.ErrInvalidWindow)

	_, err = SuggestSlots(context.Background(), store, suggestConfig(), zap.NewNop(), SuggestParams{
		GroupID:      "band",
		VenueID:      "barn",
		Search:       window.MustNew(day(4, 17, 0), day(4, 22, 0)),
		SlotDuration: 2 * time.Hour,
	})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = SuggestSlots(context.Background(), store, suggestConfig(), zap.NewNop(), SuggestParams{
		GroupID: "band",
		VenueID: "hall",
		Search:  window.MustNew(day(4, 17, 0), day(4, 22, 0)),
	})
	assert.ErrorIs(t, err, model.ErrInvalidWindow)
}

func TestSuggestSlots_CancelledContext(t *testing.T) {
	store := availabilityFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := SuggestSlots(ctx, store, suggestConfig(), zap.NewNop(), SuggestParams{
		GroupID:      "band",
		VenueID:      "hall",
		Search:       window.MustNew(day(4, 17, 0), day(4, 22, 0)),
		SlotDuration: 2 * time.Hour,
	})
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Empty(t, result.Slots)
}
