// Package store defines persistence for option snapshots and the protocol
// event journal. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/hedgex/options-engine/internal/model"
)

// ErrOptionNotFound is returned for option ids the store has never seen.
var ErrOptionNotFound = errors.New("store: option not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. Ledger balances are not stored
// here: they replay from the event journal.
type Store interface {
	// --- Option snapshots ---

	// SaveOption upserts the current snapshot of an option.
	SaveOption(ctx context.Context, opt *model.Option) error

	// GetOption retrieves one option by id.
	GetOption(ctx context.Context, id uint64) (*model.Option, error)

	// ListOptions returns all options, newest first.
	ListOptions(ctx context.Context) ([]model.Option, error)

	// ListOptionsByHolder returns the options originally issued to a holder.
	ListOptionsByHolder(ctx context.Context, holder string) ([]model.Option, error)

	// --- Immutable event journal ---

	// InsertEvent appends an immutable journal record.
	InsertEvent(ctx context.Context, e *model.Event) error

	// GetEventsByOption returns all events for one option, oldest first.
	GetEventsByOption(ctx context.Context, optionID uint64) ([]model.Event, error)

	// GetEventsByAccount returns all events referencing an account.
	GetEventsByAccount(ctx context.Context, account string) ([]model.Event, error)

	// ListEvents returns the most recent events, newest first, capped at limit.
	ListEvents(ctx context.Context, limit int) ([]model.Event, error)
}
