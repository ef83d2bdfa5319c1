package window

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 4, hour, minute, 0, 0, time.UTC)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		start   time.Time
		end     time.Time
		wantErr bool
	}{
		{"positive duration", at(18, 0), at(21, 0), false},
		{"zero duration", at(18, 0), at(18, 0), true},
		{"negative duration", at(21, 0), at(18, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := New(tt.start, tt.end)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidWindow))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3*time.Hour, w.Duration())
		})
	}
}

func TestNew_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	w, err := New(time.Date(2025, 3, 4, 20, 0, 0, 0, loc), time.Date(2025, 3, 4, 22, 0, 0, 0, loc))
	require.NoError(t, err)

	assert.Equal(t, time.UTC, w.Start.Location())
	assert.Equal(t, at(18, 0), w.Start)
}

func TestOverlaps(t *testing.T) {
	base := MustNew(at(18, 0), at(20, 0))

	tests := []struct {
		name  string
		other Window
		want  bool
	}{
		{"partial overlap at end", MustNew(at(19, 0), at(21, 0)), true},
		{"partial overlap at start", MustNew(at(17, 0), at(18, 30)), true},
		{"contained", MustNew(at(18, 30), at(19, 0)), true},
		{"containing", MustNew(at(17, 0), at(22, 0)), true},
		{"touching after", MustNew(at(20, 0), at(22, 0)), false},
		{"touching before", MustNew(at(16, 0), at(18, 0)), false},
		{"disjoint", MustNew(at(9, 0), at(10, 0)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(base, tt.other))
			assert.Equal(t, tt.want, Overlaps(tt.other, base), "overlap must be symmetric")
		})
	}
}

func TestSubtract(t *testing.T) {
	a := MustNew(at(18, 0), at(21, 0))

	t.Run("no overlap returns a", func(t *testing.T) {
		got := Subtract(a, MustNew(at(9, 0), at(10, 0)))
		assert.Equal(t, []Window{a}, got)
	})

	t.Run("middle cut returns two fragments", func(t *testing.T) {
		got := Subtract(a, MustNew(at(19, 0), at(20, 0)))
		require.Len(t, got, 2)
		assert.Equal(t, MustNew(at(18, 0), at(19, 0)), got[0])
		assert.Equal(t, MustNew(at(20, 0), at(21, 0)), got[1])
	})

	t.Run("leading cut returns tail", func(t *testing.T) {
		got := Subtract(a, MustNew(at(17, 0), at(19, 0)))
		assert.Equal(t, []Window{MustNew(at(19, 0), at(21, 0))}, got)
	})

	t.Run("trailing cut returns head", func(t *testing.T) {
		got := Subtract(a, MustNew(at(20, 0), at(23, 0)))
		assert.Equal(t, []Window{MustNew(at(18, 0), at(20, 0))}, got)
	})

	t.Run("full cover returns nothing", func(t *testing.T) {
		got := Subtract(a, MustNew(at(17, 0), at(22, 0)))
		assert.Empty(t, got)
	})
}

func TestIntersect(t *testing.T) {
	a := MustNew(at(18, 0), at(21, 0))

	got, ok := a.Intersect(MustNew(at(20, 0), at(22, 0)))
	require.True(t, ok)
	assert.Equal(t, MustNew(at(20, 0), at(21, 0)), got)

	_, ok = a.Intersect(MustNew(at(21, 0), at(22, 0)))
	assert.False(t, ok)
}

func TestUnion(t *testing.T) {
	got := Union([]Window{
		MustNew(at(20, 0), at(21, 0)),
		MustNew(at(18, 0), at(19, 0)),
		MustNew(at(19, 0), at(19, 30)), // touches previous
		MustNew(at(9, 0), at(12, 0)),
		MustNew(at(10, 0), at(11, 0)), // inside previous
	})

	require.Len(t, got, 3)
	assert.Equal(t, MustNew(at(9, 0), at(12, 0)), got[0])
	assert.Equal(t, MustNew(at(18, 0), at(19, 30)), got[1])
	assert.Equal(t, MustNew(at(20, 0), at(21, 0)), got[2])
}

func TestUnion_Empty(t *testing.T) {
	assert.Nil(t, Union(nil))
	assert.Nil(t, Union([]Window{{Start: at(10, 0), End: at(10, 0)}}))
}

func TestSubtractAll(t *testing.T) {
	set := []Window{MustNew(at(9, 0), at(12, 0)), MustNew(at(18, 0), at(21, 0))}
	cut := []Window{MustNew(at(11, 0), at(19, 0)), MustNew(at(20, 0), at(20, 30))}

	got := SubtractAll(set, cut)

	require.Len(t, got, 3)
	assert.Equal(t, MustNew(at(9, 0), at(11, 0)), got[0])
	assert.Equal(t, MustNew(at(19, 0), at(20, 0)), got[1])
	assert.Equal(t, MustNew(at(20, 30), at(21, 0)), got[2])
}

func TestClip(t *testing.T) {
	set := []Window{MustNew(at(9, 0), at(12, 0)), MustNew(at(18, 0), at(21, 0))}
	got := Clip(set, MustNew(at(11, 0), at(19, 0)))

	require.Len(t, got, 2)
	assert.Equal(t, MustNew(at(11, 0), at(12, 0)), got[0])
	assert.Equal(t, MustNew(at(18, 0), at(19, 0)), got[1])
	assert.Equal(t, 2*time.Hour, TotalDuration(got))
}
