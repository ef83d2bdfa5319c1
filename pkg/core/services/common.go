package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/availability"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
)

var validate = validator.New()

// MembershipGetter looks up a single membership
type MembershipGetter interface {
	GetMembership(ctx context.Context, groupID, userID string) (*model.Membership, error)
}

// requireAdmin fails with ErrUnauthorized unless actorID is an admin of groupID
func requireAdmin(ctx context.Context, store MembershipGetter, groupID, actorID string) error {
	m, err := store.GetMembership(ctx, groupID, actorID)
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%s is not a member of group %s: %w", actorID, groupID, model.ErrUnauthorized)
	}
	if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}
	if !m.IsAdmin() {
		return fmt.Errorf("%s is not an admin of group %s: %w", actorID, groupID, model.ErrUnauthorized)
	}
	return nil
}

// ruleSets builds one rule set per snapshot member, interpreted in loc
func ruleSets(snap *db.Snapshot, loc *time.Location) map[string]*availability.RuleSet {
	sets := make(map[string]*availability.RuleSet, len(snap.Members))
	for _, m := range snap.Members {
		sets[m.UserID] = availability.NewRuleSet(m.UserID, snap.Rules[m.UserID], snap.Exceptions[m.UserID], loc)
	}
	return sets
}

// snapshotLocation uses the group's timezone, then the venue's, then UTC
func snapshotLocation(group model.Group, venue *model.Venue) (*time.Location, error) {
	if group.Timezone == "" && venue != nil && venue.Timezone != "" {
		loc, err := venue.Location()
		if err != nil {
			return nil, fmt.Errorf("failed to load timezone of venue %s: %w", venue.ID, err)
		}
		return loc, nil
	}

	loc, err := group.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone of group %s: %w", group.ID, err)
	}
	return loc, nil
}

func validateParams(params any) error {
	if err := validate.Struct(params); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}
