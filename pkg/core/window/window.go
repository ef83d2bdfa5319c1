package window

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidWindow is returned for zero or negative duration windows
var ErrInvalidWindow = errors.New("invalid window")

// Window is a half-open interval [Start, End) of UTC instants
type Window struct {
	Start time.Time
	End   time.Time
}

// New builds a window normalized to UTC. The end must be strictly after the start.
func New(start, end time.Time) (Window, error) {
	if !end.After(start) {
		return Window{}, fmt.Errorf("%w: end %s is not after start %s",
			ErrInvalidWindow, end.UTC().Format(time.RFC3339), start.UTC().Format(time.RFC3339))
	}
	return Window{Start: start.UTC(), End: end.UTC()}, nil
}

// MustNew is New for windows known to be valid (tests, constants)
func MustNew(start, end time.Time) Window {
	w, err := New(start, end)
	if err != nil {
		panic(err)
	}
	return w
}

// Validate reports ErrInvalidWindow for empty or inverted windows
func (w Window) Validate() error {
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: end %s is not after start %s",
			ErrInvalidWindow, w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

// Duration returns End - Start
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// IsEmpty reports whether the window covers no instants
func (w Window) IsEmpty() bool {
	return !w.End.After(w.Start)
}

// Contains reports whether t falls inside [Start, End)
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Covers reports whether other lies entirely inside w
func (w Window) Covers(other Window) bool {
	return !other.Start.Before(w.Start) && !other.End.After(w.End)
}

// Overlaps reports whether the two windows share at least one instant.
// Touching windows ([a, b) and [b, c)) do not overlap.
func (w Window) Overlaps(other Window) bool {
	return Overlaps(w, other)
}

// Intersect returns the common part of both windows, if any
func (w Window) Intersect(other Window) (Window, bool) {
	if !Overlaps(w, other) {
		return Window{}, false
	}
	start := w.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := w.End
	if other.End.Before(end) {
		end = other.End
	}
	return Window{Start: start, End: end}, true
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Overlaps is true iff a.Start < b.End && b.Start < a.End
func Overlaps(a, b Window) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Subtract returns the fragments of a not covered by b, in start order.
// The result has zero, one or two windows.
func Subtract(a, b Window) []Window {
	if !Overlaps(a, b) {
		return []Window{a}
	}

	var out []Window
	if a.Start.Before(b.Start) {
		out = append(out, Window{Start: a.Start, End: b.Start})
	}
	if b.End.Before(a.End) {
		out = append(out, Window{Start: b.End, End: a.End})
	}
	return out
}

// Union sorts the windows and merges any that overlap or touch.
// Empty windows are dropped.
func Union(windows []Window) []Window {
	sorted := make([]Window, 0, len(windows))
	for _, w := range windows {
		if !w.IsEmpty() {
			sorted = append(sorted, w)
		}
	}
	if len(sorted) == 0 {
		return nil
	}

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Window{sorted[0]}
	for _, w := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !w.Start.After(last.End) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// SubtractAll removes every window in cut from every window in set.
// The result is normalized through Union.
func SubtractAll(set, cut []Window) []Window {
	remaining := Union(set)
	for _, c := range Union(cut) {
		next := make([]Window, 0, len(remaining)+1)
		for _, w := range remaining {
			next = append(next, Subtract(w, c)...)
		}
		remaining = next
	}
	return Union(remaining)
}

// Clip intersects every window in set with bound
func Clip(set []Window, bound Window) []Window {
	out := make([]Window, 0, len(set))
	for _, w := range set {
		if part, ok := w.Intersect(bound); ok {
			out = append(out, part)
		}
	}
	return Union(out)
}

// TotalDuration sums the durations of the windows
func TotalDuration(windows []Window) time.Duration {
	var total time.Duration
	for _, w := range windows {
		total += w.Duration()
	}
	return total
}
