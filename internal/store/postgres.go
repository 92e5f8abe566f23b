package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hedgex/options-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Wei amounts are stored as NUMERIC(78,0): a uint256 never exceeds 78
// decimal digits.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const optionColumns = `id, holder, type, state,
       strike::TEXT, amount::TEXT, locked_amount::TEXT, premium::TEXT,
       expiration, created_at`

func (s *PostgresStore) SaveOption(ctx context.Context, o *model.Option) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO options (id, holder, type, state, strike, amount, locked_amount, premium, expiration, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10)
		 ON CONFLICT (id) DO UPDATE
		 SET state = EXCLUDED.state, locked_amount = EXCLUDED.locked_amount`,
		o.ID, o.Holder, o.Type, o.State,
		o.Strike.String(), o.Amount, o.LockedAmount, o.Premium,
		o.Expiration, o.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetOption(ctx context.Context, id uint64) (*model.Option, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+optionColumns+` FROM options WHERE id = $1`, id)
	o, err := scanOption(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOptionNotFound
		}
		return nil, fmt.Errorf("get option %d: %w", id, err)
	}
	return o, nil
}

func (s *PostgresStore) ListOptions(ctx context.Context) ([]model.Option, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+optionColumns+` FROM options ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOptions(rows)
}

func (s *PostgresStore) ListOptionsByHolder(ctx context.Context, holder string) ([]model.Option, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+optionColumns+` FROM options WHERE holder = $1 ORDER BY id DESC`, holder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOptions(rows)
}

const eventColumns = `id, type, option_id, account, from_account, to_account,
       COALESCE(amount::TEXT, ''), COALESCE(settlement_fee::TEXT, ''), COALESCE(total_fee::TEXT, ''),
       timestamp`

func (s *PostgresStore) InsertEvent(ctx context.Context, e *model.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, type, option_id, account, from_account, to_account, amount, settlement_fee, total_fee, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::NUMERIC, NULLIF($8, '')::NUMERIC, NULLIF($9, '')::NUMERIC, $10)`,
		e.ID, e.Type, e.OptionID, e.Account, e.From, e.To,
		e.Amount, e.SettlementFee, e.TotalFee, e.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetEventsByOption(ctx context.Context, optionID uint64) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE option_id = $1 AND type IN ('Create', 'Exercise', 'Expire', 'Transfer')
		 ORDER BY timestamp`, optionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEvents(rows)
}

func (s *PostgresStore) GetEventsByAccount(ctx context.Context, account string) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE account = $1 OR from_account = $1 OR to_account = $1
		 ORDER BY timestamp`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEvents(rows)
}

func (s *PostgresStore) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEvents(rows)
}

type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanOption(row pgxRow) (*model.Option, error) {
	var o model.Option
	var strike string
	if err := row.Scan(&o.ID, &o.Holder, &o.Type, &o.State,
		&strike, &o.Amount, &o.LockedAmount, &o.Premium,
		&o.Expiration, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Strike, _ = decimal.NewFromString(strike)
	return &o, nil
}

func collectOptions(rows pgx.Rows) ([]model.Option, error) {
	var options []model.Option
	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			return nil, err
		}
		options = append(options, *o)
	}
	return options, rows.Err()
}

func collectEvents(rows pgx.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Type, &e.OptionID, &e.Account, &e.From, &e.To,
			&e.Amount, &e.SettlementFee, &e.TotalFee, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
