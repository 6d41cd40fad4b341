package consol

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

// Repository provides persistence helpers for consolidation workloads.
type Repository struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

// NewRepository constructs a consolidation repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// ErrFxRateInvalid indicates a malformed FX quote.
var ErrFxRateInvalid = errors.New("consol: invalid fx rate")

// FxRateInput represents a single FX quote to be stored.
type FxRateInput struct {
	AsOf    time.Time
	Pair    string
	Average decimal.Decimal
	Spot    decimal.Decimal
}

type balanceRow struct {
	AccountID int64           `db:"account_id"`
	Balance   decimal.Decimal `db:"balance"`
}

type quoteRow struct {
	Average *decimal.Decimal `db:"average_rate"`
	Spot    *decimal.Decimal `db:"spot_rate"`
}

func (r *Repository) ready() error {
	if r == nil || r.pool == nil {
		return errors.New("consol repo not initialised")
	}
	return nil
}

// Migrate creates the consolidation tables when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("consol: migrate: %w", err)
	}
	return nil
}
