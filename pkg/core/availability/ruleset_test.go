package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

// 2025-03-04 is a Tuesday
func tuesday(hour, minute int) time.Time {
	return time.Date(2025, 3, 4, hour, minute, 0, 0, time.UTC)
}

func tuesdayEvening() model.AvailabilityRule {
	return model.AvailabilityRule{
		ID:      "rule-tue",
		UserID:  "alice",
		Weekday: time.Tuesday,
		Start:   model.MustParseTimeOfDay("18:00"),
		End:     model.MustParseTimeOfDay("21:00"),
	}
}

func assertPartition(t *testing.T, w window.Window, fragments []Fragment) {
	t.Helper()
	require.NotEmpty(t, fragments)
	assert.True(t, fragments[0].Window.Start.Equal(w.Start), "first fragment must start at window start")
	assert.True(t, fragments[len(fragments)-1].Window.End.Equal(w.End), "last fragment must end at window end")

	var total time.Duration
	for i, f := range fragments {
		assert.False(t, f.Window.IsEmpty(), "fragment %d must not be empty", i)
		total += f.Window.Duration()
		if i > 0 {
			prev := fragments[i-1]
			assert.True(t, prev.Window.End.Equal(f.Window.Start), "fragment %d must start where %d ends", i, i-1)
			assert.NotEqual(t, prev.Status, f.Status, "adjacent fragments %d and %d must differ in status", i-1, i)
		}
	}
	assert.Equal(t, w.Duration(), total)
}

func TestFreeBusy_ExceptionSplitsRule(t *testing.T) {
	rs := NewRuleSet("alice",
		[]model.AvailabilityRule{tuesdayEvening()},
		[]model.SpecialUnavailability{{
			ID:     "ex-1",
			UserID: "alice",
			Window: window.MustNew(tuesday(19, 0), tuesday(20, 0)),
		}},
		nil,
	)

	w := window.MustNew(tuesday(18, 0), tuesday(21, 0))
	fragments, err := rs.FreeBusy(w)
	require.NoError(t, err)

	require.Len(t, fragments, 3)
	assert.Equal(t, Fragment{Window: window.MustNew(tuesday(18, 0), tuesday(19, 0)), Status: StatusFree}, fragments[0])
	assert.Equal(t, Fragment{Window: window.MustNew(tuesday(19, 0), tuesday(20, 0)), Status: StatusBusy}, fragments[1])
	assert.Equal(t, Fragment{Window: window.MustNew(tuesday(20, 0), tuesday(21, 0)), Status: StatusFree}, fragments[2])
	assertPartition(t, w, fragments)
}

func TestFreeBusy_NoRulesIsBusy(t *testing.T) {
	rs := NewRuleSet("bob", nil, nil, nil)

	w := window.MustNew(tuesday(18, 0), tuesday(21, 0))
	fragments, err := rs.FreeBusy(w)
	require.NoError(t, err)

	require.Len(t, fragments, 1)
	assert.Equal(t, StatusBusy, fragments[0].Status)
	assert.False(t, rs.HasRules())
}

func TestFreeBusy_RuleUnionAcrossWeek(t *testing.T) {
	thursday := tuesdayEvening()
	thursday.ID = "rule-thu"
	thursday.Weekday = time.Thursday

	overlapping := tuesdayEvening()
	overlapping.ID = "rule-tue-late"
	overlapping.Start = model.MustParseTimeOfDay("20:00")
	overlapping.End = model.MustParseTimeOfDay("22:00")

	rs := NewRuleSet("alice", []model.AvailabilityRule{tuesdayEvening(), thursday, overlapping}, nil, nil)

	// Monday 00:00 to Monday 00:00 of the next week
	w := window.MustNew(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	fragments, err := rs.FreeBusy(w)
	require.NoError(t, err)
	assertPartition(t, w, fragments)

	var free []window.Window
	for _, f := range fragments {
		if f.Status == StatusFree {
			free = append(free, f.Window)
		}
	}
	require.Len(t, free, 2)
	assert.Equal(t, window.MustNew(tuesday(18, 0), tuesday(22, 0)), free[0])
	assert.Equal(t, window.MustNew(time.Date(2025, 3, 6, 18, 0, 0, 0, time.UTC), time.Date(2025, 3, 6, 21, 0, 0, 0, time.UTC)), free[1])
}

func TestFreeBusy_OverridePropertyForManyExceptions(t *testing.T) {
	rule := tuesdayEvening()
	f := window.MustNew(tuesday(18, 0), tuesday(21, 0))

	exceptions := []window.Window{
		window.MustNew(tuesday(18, 0), tuesday(18, 15)),
		window.MustNew(tuesday(18, 30), tuesday(19, 45)),
		window.MustNew(tuesday(20, 59), tuesday(21, 0)),
		f,
	}

	for _, e := range exceptions {
		t.Run(e.String(), func(t *testing.T) {
			rs := NewRuleSet("alice", []model.AvailabilityRule{rule},
				[]model.SpecialUnavailability{{ID: "ex", UserID: "alice", Window: e}}, nil)

			fragments, err := rs.FreeBusy(f)
			require.NoError(t, err)
			assertPartition(t, f, fragments)

			for _, frag := range fragments {
				if window.Overlaps(frag.Window, e) {
					assert.Equal(t, StatusBusy, frag.Status, "exception must be busy")
					assert.True(t, e.Covers(frag.Window), "busy fragment must come from the exception")
				} else {
					assert.Equal(t, StatusFree, frag.Status, "F minus E must stay free")
				}
			}
		})
	}
}

func TestFreeBusy_EffectiveRange(t *testing.T) {
	w := window.MustNew(tuesday(18, 0), tuesday(21, 0))

	t.Run("rule starting later contributes nothing", func(t *testing.T) {
		rule := tuesdayEvening()
		rule.EffectiveFrom = time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
		rs := NewRuleSet("alice", []model.AvailabilityRule{rule}, nil, nil)

		free, err := rs.IsFree(w)
		require.NoError(t, err)
		assert.False(t, free)
		assert.True(t, rs.HasRules(), "a rule outside the range still counts as configured")
	})

	t.Run("rule ended earlier contributes nothing", func(t *testing.T) {
		rule := tuesdayEvening()
		until := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
		rule.EffectiveUntil = &until
		rs := NewRuleSet("alice", []model.AvailabilityRule{rule}, nil, nil)

		free, err := rs.IsFree(w)
		require.NoError(t, err)
		assert.False(t, free)
	})

	t.Run("rule ending on the same day is inclusive", func(t *testing.T) {
		rule := tuesdayEvening()
		rule.EffectiveFrom = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		until := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
		rule.EffectiveUntil = &until
		rs := NewRuleSet("alice", []model.AvailabilityRule{rule}, nil, nil)

		free, err := rs.IsFree(w)
		require.NoError(t, err)
		assert.True(t, free)
	})

	t.Run("open ended rule applies far in the future", func(t *testing.T) {
		rule := tuesdayEvening()
		rule.EffectiveFrom = time.Date(2020, 1, 7, 0, 0, 0, 0, time.UTC)
		rs := NewRuleSet("alice", []model.AvailabilityRule{rule}, nil, nil)

		// 2030-03-05 is a Tuesday
		future := window.MustNew(time.Date(2030, 3, 5, 18, 0, 0, 0, time.UTC), time.Date(2030, 3, 5, 21, 0, 0, 0, time.UTC))
		free, err := rs.IsFree(future)
		require.NoError(t, err)
		assert.True(t, free)
	})
}

func TestFreeBusy_LocalTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	rs := NewRuleSet("alice", []model.AvailabilityRule{tuesdayEvening()}, nil, loc)

	// 18:00-21:00 Berlin in winter is 17:00-20:00 UTC
	winter := window.MustNew(tuesday(17, 0), tuesday(20, 0))
	free, err := rs.IsFree(winter)
	require.NoError(t, err)
	assert.True(t, free)

	// after the March DST switch (2025-03-30) Berlin is UTC+2
	summer := window.MustNew(time.Date(2025, 4, 1, 16, 0, 0, 0, time.UTC), time.Date(2025, 4, 1, 19, 0, 0, 0, time.UTC))
	free, err = rs.IsFree(summer)
	require.NoError(t, err)
	assert.True(t, free)
}

func TestFreeBusy_InvalidInputs(t *testing.T) {
	rs := NewRuleSet("alice", []model.AvailabilityRule{tuesdayEvening()}, nil, nil)

	_, err := rs.FreeBusy(window.Window{Start: tuesday(18, 0), End: tuesday(18, 0)})
	assert.True(t, errors.Is(err, model.ErrInvalidWindow))

	bad := tuesdayEvening()
	bad.End = model.MustParseTimeOfDay("17:00")
	rs = NewRuleSet("alice", []model.AvailabilityRule{bad}, nil, nil)
	_, err = rs.FreeBusy(window.MustNew(tuesday(18, 0), tuesday(21, 0)))
	assert.True(t, errors.Is(err, model.ErrInvalidWindow))
}

func TestValidateRule(t *testing.T) {
	valid := tuesdayEvening()
	assert.NoError(t, ValidateRule(valid))

	badDay := tuesdayEvening()
	badDay.Weekday = time.Weekday(9)
	assert.Error(t, ValidateRule(badDay))

	inverted := tuesdayEvening()
	inverted.EffectiveFrom = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	inverted.EffectiveUntil = &until
	assert.Error(t, ValidateRule(inverted))
}
