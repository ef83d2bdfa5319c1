package suggest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/availability"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/conflict"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/estimator"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

const (
	DefaultStep      = 30 * time.Minute
	DefaultWorkers   = 4
	DefaultChunkSize = 48
)

// Options configures an Engine. Zero values fall back to the defaults.
type Options struct {
	Workers   int
	ChunkSize int
	Policy    conflict.Policy
}

// Request describes one search for rehearsal slots
type Request struct {
	Group   model.Group
	Venue   model.Venue
	Members []model.Membership
	// RuleSets is keyed by user ID
	RuleSets map[string]*availability.RuleSet
	// Rehearsals is the snapshot of existing rehearsals to check conflicts against
	Rehearsals []model.Rehearsal
	// MembershipIndex resolves participants of other groups' rehearsals
	MembershipIndex conflict.MembershipIndex
	Blackouts       []window.Window

	Search       window.Window
	SlotDuration time.Duration
	// Limit caps the number of returned slots; zero or less returns all
	Limit int
	// Step defaults to 30 minutes
	Step time.Duration
}

// CandidateSlot is one viable rehearsal slot
type CandidateSlot struct {
	Window    window.Window
	Score     float64
	PerMember map[string]estimator.MemberStatus
	Counts    estimator.Counts
	// Conflicts holds the SOFT member conflicts that did not discard the slot
	Conflicts        conflict.Report
	CapacityExceeded bool
}

// Result is the ranked output of a search
type Result struct {
	Slots []CandidateSlot
	// Evaluated counts candidate starts in fully evaluated chunks
	Evaluated int
	// Total is the number of candidate starts in the search window
	Total int
	// Truncated is set when the context was cancelled before every chunk ran
	Truncated bool
}

// Engine ranks candidate rehearsal slots. It is safe for concurrent use.
type Engine struct {
	logger    *zap.Logger
	detector  *conflict.Detector
	workers   int
	chunkSize int
}

// NewEngine creates an engine
func NewEngine(logger *zap.Logger, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Engine{
		logger:    logger,
		detector:  conflict.NewDetector(opts.Policy),
		workers:   opts.Workers,
		chunkSize: opts.ChunkSize,
	}
}

// Suggest enumerates every start on the step grid inside req.Search, drops
// candidates with hard conflicts or blackouts, and ranks the rest by
// (score desc, start asc).
//
// Chunks of candidates are evaluated in chronological order, each one fanned
// out over the worker pool. If ctx is cancelled the ranked prefix of fully
// evaluated chunks is returned with Truncated set and a nil error.
func (e *Engine) Suggest(ctx context.Context, req Request) (Result, error) {
	if err := req.Search.Validate(); err != nil {
		return Result{}, fmt.Errorf("failed to validate search window: %w", err)
	}
	if req.SlotDuration <= 0 {
		return Result{}, fmt.Errorf("%w: slot duration must be positive", model.ErrInvalidWindow)
	}
	step := req.Step
	if step <= 0 {
		step = DefaultStep
	}

	starts := candidateStarts(req.Search, req.SlotDuration, step)
	result := Result{Total: len(starts)}

	e.logger.Debug("Starting suggestion search",
		zap.String("group_id", req.Group.ID),
		zap.String("venue_id", req.Venue.ID),
		zap.Time("search_start", req.Search.Start),
		zap.Time("search_end", req.Search.End),
		zap.Duration("slot_duration", req.SlotDuration),
		zap.Int("candidates", len(starts)))

	commitments := conflict.Commitments(req.Rehearsals, req.MembershipIndex)

	var slots []CandidateSlot
	for offset := 0; offset < len(starts); offset += e.chunkSize {
		if ctx.Err() != nil {
			result.Truncated = true
			break
		}

		end := offset + e.chunkSize
		if end > len(starts) {
			end = len(starts)
		}

		chunk, err := e.evaluateChunk(ctx, req, commitments, starts[offset:end])
		if err != nil {
			return Result{}, err
		}
		if ctx.Err() != nil {
			// the chunk may be partially evaluated
			result.Truncated = true
			break
		}

		slots = append(slots, chunk...)
		result.Evaluated += end - offset
	}

	Rank(slots)
	if req.Limit > 0 && len(slots) > req.Limit {
		slots = slots[:req.Limit]
	}
	result.Slots = slots

	e.logger.Debug("Finished suggestion search",
		zap.Int("evaluated", result.Evaluated),
		zap.Int("viable", len(slots)),
		zap.Bool("truncated", result.Truncated))

	return result, nil
}

// Rank sorts slots by score descending, then start ascending
func Rank(slots []CandidateSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Score != slots[j].Score {
			return slots[i].Score > slots[j].Score
		}
		return slots[i].Window.Start.Before(slots[j].Window.Start)
	})
}

func (e *Engine) evaluateChunk(ctx context.Context, req Request, commitments map[string][]model.Rehearsal, starts []time.Time) ([]CandidateSlot, error) {
	results := make([]*CandidateSlot, len(starts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, start := range starts {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			slot, err := e.Evaluate(req, commitments, window.Window{Start: start, End: start.Add(req.SlotDuration)})
			if err != nil {
				return err
			}
			results[i] = slot
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to evaluate candidates: %w", err)
	}

	var slots []CandidateSlot
	for _, slot := range results {
		if slot != nil {
			slots = append(slots, *slot)
		}
	}
	return slots, nil
}

// Evaluate scores one candidate window. A nil slot means the candidate was
// discarded because of a blackout or a hard conflict.
func (e *Engine) Evaluate(req Request, commitments map[string][]model.Rehearsal, w window.Window) (*CandidateSlot, error) {
	for _, b := range req.Blackouts {
		if window.Overlaps(b, w) {
			return nil, nil
		}
	}

	candidate := model.Rehearsal{
		GroupID: req.Group.ID,
		VenueID: req.Venue.ID,
		Window:  w,
		Status:  model.RehearsalProposed,
	}
	participants := model.ResolveParticipants(candidate, req.Members)

	report := e.detector.DetectIndexed(candidate, participants, req.Rehearsals, commitments)
	if report.HasHard() {
		return nil, nil
	}

	estimate, err := estimator.Estimate(req.Members, req.RuleSets, w)
	if err != nil {
		return nil, err
	}

	slot := &CandidateSlot{
		Window:    w,
		Score:     estimate.Score,
		PerMember: estimate.PerMember,
		Counts:    estimate.Counts,
		Conflicts: report,
	}
	if req.Venue.Capacity != nil && len(participants) > *req.Venue.Capacity {
		slot.CapacityExceeded = true
	}
	return slot, nil
}

func candidateStarts(search window.Window, slot, step time.Duration) []time.Time {
	var starts []time.Time
	for s := search.Start; !s.Add(slot).After(search.End); s = s.Add(step) {
		starts = append(starts, s)
	}
	return starts
}
