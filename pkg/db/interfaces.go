package db

import (
	"context"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

// SnapshotLoader loads the immutable inputs the pure components compute over
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, query SnapshotQuery) (*Snapshot, error)
}

// UserAvailabilityLoader loads a single user's rules and exceptions
type UserAvailabilityLoader interface {
	LoadUserAvailability(ctx context.Context, userID string) (*UserAvailability, error)
}

// Tx is the set of operations available inside a store transaction.
// GetRehearsal locks the row for the remainder of the transaction.
type Tx interface {
	SnapshotLoader
	GetRehearsal(ctx context.Context, id string) (*model.Rehearsal, error)
	GetMembership(ctx context.Context, groupID, userID string) (*model.Membership, error)
	SetRehearsalStatus(ctx context.Context, id string, status model.RehearsalStatus) error
	InsertAttendance(ctx context.Context, rows []model.Attendance) error
	GetAttendance(ctx context.Context, rehearsalID, userID string) (*model.Attendance, error)
	UpdateAttendance(ctx context.Context, row model.Attendance) error
}

// Transactor runs fn inside one store transaction, committing when fn
// returns nil and rolling back otherwise
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// RehearsalFilter narrows ListRehearsals. Zero values match everything.
type RehearsalFilter struct {
	GroupID  string
	VenueID  string
	Statuses []model.RehearsalStatus
	Span     *window.Window
}

// Reader covers lookups used by the CLI and services outside transactions
type Reader interface {
	GetGroup(ctx context.Context, id string) (*model.Group, error)
	GetVenue(ctx context.Context, id string) (*model.Venue, error)
	GetMembership(ctx context.Context, groupID, userID string) (*model.Membership, error)
	GetRehearsal(ctx context.Context, id string) (*model.Rehearsal, error)
	ListRehearsals(ctx context.Context, filter RehearsalFilter) ([]model.Rehearsal, error)
	ListAttendance(ctx context.Context, rehearsalID string) ([]model.Attendance, error)
}

// Writer covers inserts of reference data
type Writer interface {
	InsertUser(ctx context.Context, user model.User) error
	InsertGroup(ctx context.Context, group model.Group) error
	InsertMembership(ctx context.Context, membership model.Membership) error
	InsertVenue(ctx context.Context, venue model.Venue) error
	InsertRehearsal(ctx context.Context, rehearsal model.Rehearsal) error
	InsertAvailabilityRule(ctx context.Context, rule model.AvailabilityRule) error
	InsertSpecialUnavailabilities(ctx context.Context, items []model.SpecialUnavailability) error
}

// Database defines the interface for all database operations.
// Both the Postgres-backed postgres.DB and sqlite.DB implement this interface.
type Database interface {
	SnapshotLoader
	UserAvailabilityLoader
	Transactor
	Reader
	Writer
	Close() error
}
