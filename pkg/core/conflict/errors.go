package conflict

import (
	"fmt"
	"strings"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
)

// ConflictError carries the report that blocked a proposal or confirmation
type ConflictError struct {
	Report Report
}

func (e *ConflictError) Error() string {
	var parts []string
	if n := len(e.Report.VenueConflicts); n > 0 {
		parts = append(parts, fmt.Sprintf("%d venue", n))
	}
	if n := len(e.Report.GroupConflicts); n > 0 {
		parts = append(parts, fmt.Sprintf("%d group", n))
	}
	if n := len(e.Report.HardMemberConflicts()); n > 0 {
		parts = append(parts, fmt.Sprintf("%d member", n))
	}
	return fmt.Sprintf("%s: hard conflicts (%s)", model.ErrConflict, strings.Join(parts, ", "))
}

// Is lets errors.Is match model.ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == model.ErrConflict
}
