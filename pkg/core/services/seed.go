package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/availability"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
)

const seedDateLayout = "2006-01-02"

// SeedFile is the YAML layout of reference data loaded by the seed command
type SeedFile struct {
	Users []struct {
		ID          string `yaml:"id" validate:"required"`
		DisplayName string `yaml:"displayName" validate:"required"`
		Email       string `yaml:"email,omitempty" validate:"omitempty,email"`
	} `yaml:"users" validate:"dive"`
	Groups []struct {
		ID       string `yaml:"id" validate:"required"`
		Name     string `yaml:"name" validate:"required"`
		Timezone string `yaml:"timezone,omitempty"`
		Members  []struct {
			UserID string `yaml:"userId" validate:"required"`
			Role   string `yaml:"role" validate:"required,oneof=admin member"`
		} `yaml:"members" validate:"dive"`
	} `yaml:"groups" validate:"dive"`
	Venues []struct {
		ID        string `yaml:"id" validate:"required"`
		Name      string `yaml:"name" validate:"required"`
		Capacity  *int   `yaml:"capacity,omitempty" validate:"omitempty,min=1"`
		Timezone  string `yaml:"timezone,omitempty"`
		CreatedBy string `yaml:"createdBy,omitempty"`
	} `yaml:"venues" validate:"dive"`
	Rules []struct {
		UserID         string `yaml:"userId" validate:"required"`
		Weekday        string `yaml:"weekday" validate:"required"`
		Start          string `yaml:"start" validate:"required"`
		End            string `yaml:"end" validate:"required"`
		EffectiveFrom  string `yaml:"effectiveFrom,omitempty"`
		EffectiveUntil string `yaml:"effectiveUntil,omitempty"`
	} `yaml:"rules" validate:"dive"`
	Unavailability []struct {
		UserID string    `yaml:"userId" validate:"required"`
		Start  time.Time `yaml:"start" validate:"required"`
		End    time.Time `yaml:"end" validate:"required"`
		Reason string    `yaml:"reason,omitempty"`
	} `yaml:"unavailability" validate:"dive"`
}

// SeedSummary counts the records written by Seed
type SeedSummary struct {
	Users          int
	Groups         int
	Memberships    int
	Venues         int
	Rules          int
	Unavailability int
}

// ParseSeedFile decodes and validates a seed file
func ParseSeedFile(r io.Reader) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := validate.Struct(&seed); err != nil {
		return nil, fmt.Errorf("seed validation failed: %w", err)
	}
	return &seed, nil
}

// Seed writes users, groups with their memberships, venues, weekly rules and
// one-off unavailability in dependency order
func Seed(ctx context.Context, database db.Writer, logger *zap.Logger, seed *SeedFile) (*SeedSummary, error) {
	logger.Debug("Starting seed")

	summary := &SeedSummary{}

	for _, u := range seed.Users {
		if err := database.InsertUser(ctx, model.User{ID: u.ID, DisplayName: u.DisplayName, Email: u.Email}); err != nil {
			return summary, fmt.Errorf("failed to insert user %s: %w", u.ID, err)
		}
		summary.Users++
	}

	for _, g := range seed.Groups {
		group := model.Group{ID: g.ID, Name: g.Name, Timezone: g.Timezone}
		if _, err := group.Location(); err != nil {
			return summary, fmt.Errorf("invalid timezone for group %s: %w", g.ID, err)
		}
		if err := database.InsertGroup(ctx, group); err != nil {
			return summary, fmt.Errorf("failed to insert group %s: %w", g.ID, err)
		}
		summary.Groups++

		for _, m := range g.Members {
			membership := model.Membership{GroupID: g.ID, UserID: m.UserID, Role: model.Role(m.Role)}
			if err := database.InsertMembership(ctx, membership); err != nil {
				return summary, fmt.Errorf("failed to insert membership %s/%s: %w", g.ID, m.UserID, err)
			}
			summary.Memberships++
		}
	}

	for _, v := range seed.Venues {
		venue := model.Venue{ID: v.ID, Name: v.Name, Capacity: v.Capacity, Timezone: v.Timezone, CreatedBy: v.CreatedBy}
		if err := database.InsertVenue(ctx, venue); err != nil {
			return summary, fmt.Errorf("failed to insert venue %s: %w", v.ID, err)
		}
		summary.Venues++
	}

	for i, r := range seed.Rules {
		rule, err := parseSeedRule(r.UserID, r.Weekday, r.Start, r.End, r.EffectiveFrom, r.EffectiveUntil)
		if err != nil {
			return summary, fmt.Errorf("invalid rule %d: %w", i, err)
		}
		if err := database.InsertAvailabilityRule(ctx, rule); err != nil {
			return summary, fmt.Errorf("failed to insert rule %d: %w", i, err)
		}
		summary.Rules++
	}

	var items []model.SpecialUnavailability
	for i, u := range seed.Unavailability {
		w, err := window.New(u.Start, u.End)
		if err != nil {
			return summary, fmt.Errorf("invalid unavailability %d: %w", i, err)
		}
		items = append(items, model.SpecialUnavailability{
			ID:     uuid.NewString(),
			UserID: u.UserID,
			Window: w,
			Reason: u.Reason,
		})
	}
	if len(items) > 0 {
		if err := database.InsertSpecialUnavailabilities(ctx, items); err != nil {
			return summary, fmt.Errorf("failed to insert unavailability: %w", err)
		}
		summary.Unavailability = len(items)
	}

	logger.Info("Seed complete",
		zap.Int("users", summary.Users),
		zap.Int("groups", summary.Groups),
		zap.Int("memberships", summary.Memberships),
		zap.Int("venues", summary.Venues),
		zap.Int("rules", summary.Rules),
		zap.Int("unavailability", summary.Unavailability))

	return summary, nil
}

func parseSeedRule(userID, weekday, start, end, from, until string) (model.AvailabilityRule, error) {
	day, err := ParseWeekday(weekday)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	startTOD, err := model.ParseTimeOfDay(start)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	endTOD, err := model.ParseTimeOfDay(end)
	if err != nil {
		return model.AvailabilityRule{}, err
	}

	rule := model.AvailabilityRule{
		ID:      uuid.NewString(),
		UserID:  userID,
		Weekday: day,
		Start:   startTOD,
		End:     endTOD,
	}
	if from != "" {
		rule.EffectiveFrom, err = time.Parse(seedDateLayout, from)
		if err != nil {
			return model.AvailabilityRule{}, fmt.Errorf("invalid effectiveFrom: %w", err)
		}
	}
	if until != "" {
		u, err := time.Parse(seedDateLayout, until)
		if err != nil {
			return model.AvailabilityRule{}, fmt.Errorf("invalid effectiveUntil: %w", err)
		}
		rule.EffectiveUntil = &u
	}

	if err := availability.ValidateRule(rule); err != nil {
		return model.AvailabilityRule{}, err
	}
	return rule, nil
}

// ParseWeekday accepts full or three-letter English weekday names
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", model.ErrInvalidWindow, s)
}
