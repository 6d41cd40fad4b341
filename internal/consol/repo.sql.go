package consol

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
	"github.com/odyssey-erp/account-consolidation/internal/platform/db"
)

var (
	companyColumns = []string{
		"id", "name", "currency", "parent_id", "is_consolidation", "consolidation_percentage",
		"consolidation_diff_account_id", "consolidation_default_journal_id",
	}
	accountColumns = []string{
		"id", "company_id", "code", "name", "currency", "is_consolidation",
		"consolidation_account_id", "include_initial_balance",
	}
	journalColumns = []string{"id", "company_id", "code", "name"}
)

const pgForeignKeyViolation = "23503"

// Company fetches a company by id.
func (r *Repository) Company(ctx context.Context, id int64) (Company, error) {
	if err := r.ready(); err != nil {
		return Company{}, err
	}
	query, args, err := r.sb.Select(companyColumns...).From("companies").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return Company{}, fmt.Errorf("build query: %w", err)
	}
	var c Company
	if err := pgxscan.Get(ctx, r.pool, &c, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Company{}, fmt.Errorf("%w: %d", ErrCompanyNotFound, id)
		}
		return Company{}, err
	}
	return c, nil
}

// Companies fetches the given companies ordered by id. Unknown ids are omitted.
func (r *Repository) Companies(ctx context.Context, ids []int64) ([]Company, error) {
	return r.selectCompanies(ctx, sq.Eq{"id": ids})
}

// Subsidiaries lists the direct children of a holding.
func (r *Repository) Subsidiaries(ctx context.Context, holdingID int64) ([]Company, error) {
	return r.selectCompanies(ctx, sq.Eq{"parent_id": holdingID})
}

func (r *Repository) selectCompanies(ctx context.Context, where sq.Sqlizer) ([]Company, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	query, args, err := r.sb.Select(companyColumns...).From("companies").Where(where).OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var companies []Company
	if err := pgxscan.Select(ctx, r.pool, &companies, query, args...); err != nil {
		return nil, err
	}
	return companies, nil
}

// Accounts lists the chart of accounts of a company.
func (r *Repository) Accounts(ctx context.Context, companyID int64) ([]Account, error) {
	return r.selectAccounts(ctx, sq.Eq{"company_id": companyID})
}

// AccountsByIDs fetches accounts of any company. Unknown ids are omitted.
func (r *Repository) AccountsByIDs(ctx context.Context, ids []int64) ([]Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.selectAccounts(ctx, sq.Eq{"id": ids})
}

func (r *Repository) selectAccounts(ctx context.Context, where sq.Sqlizer) ([]Account, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	query, args, err := r.sb.Select(accountColumns...).From("accounts").Where(where).OrderBy("code", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var accounts []Account
	if err := pgxscan.Select(ctx, r.pool, &accounts, query, args...); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Journal fetches a journal by id.
func (r *Repository) Journal(ctx context.Context, id int64) (Journal, error) {
	if err := r.ready(); err != nil {
		return Journal{}, err
	}
	query, args, err := r.sb.Select(journalColumns...).From("journals").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return Journal{}, fmt.Errorf("build query: %w", err)
	}
	var j Journal
	if err := pgxscan.Get(ctx, r.pool, &j, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Journal{}, fmt.Errorf("%w: %d", ErrJournalNotFound, id)
		}
		return Journal{}, err
	}
	return j, nil
}

// AccountBalances sums debit - credit per account over the filter. Accounts without lines are absent.
func (r *Repository) AccountBalances(ctx context.Context, filter BalanceFilter) (map[int64]decimal.Decimal, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	query, args, err := r.balanceQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []balanceRow
	if err := pgxscan.Select(ctx, r.pool, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make(map[int64]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[row.AccountID] = row.Balance
	}
	return out, nil
}

// balanceQuery selects the balances of the filter; both date bounds are inclusive.
func (r *Repository) balanceQuery(filter BalanceFilter) sq.SelectBuilder {
	q := r.sb.Select("l.account_id", "COALESCE(SUM(l.debit - l.credit), 0) AS balance").
		From("move_lines l").
		Join("moves m ON m.id = l.move_id").
		Where(sq.Eq{"m.company_id": filter.CompanyID}).
		Where(sq.Eq{"l.account_id": filter.AccountIDs}).
		Where(sq.GtOrEq{"m.date": filter.DateFrom}).
		Where(sq.LtOrEq{"m.date": filter.DateTo}).
		GroupBy("l.account_id")
	if filter.TargetMove == TargetMovePosted {
		q = q.Where(sq.Eq{"m.state": string(MoveStatePosted)})
	}
	return q
}

// CreateMoves inserts the moves and their lines in a single transaction.
func (r *Repository) CreateMoves(ctx context.Context, inputs []MoveInput) ([]Move, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	moves := make([]Move, 0, len(inputs))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, in := range inputs {
			move, err := r.insertMove(ctx, tx, in)
			if err != nil {
				return err
			}
			moves = append(moves, move)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moves, nil
}

func (r *Repository) insertMove(ctx context.Context, tx pgx.Tx, in MoveInput) (Move, error) {
	from := in.ConsolidatedFromCompanyID
	move := Move{
		CompanyID:                 in.CompanyID,
		JournalID:                 in.JournalID,
		Date:                      in.Date,
		Ref:                       in.Ref,
		State:                     MoveStateDraft,
		ConsolidatedFromCompanyID: &from,
		RunID:                     in.RunID,
	}
	query, args, err := r.sb.Insert("moves").
		Columns("company_id", "journal_id", "date", "ref", "state", "consolidated_from_company_id", "run_id").
		Values(in.CompanyID, in.JournalID, in.Date, in.Ref, string(MoveStateDraft), from, in.RunID).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return Move{}, fmt.Errorf("build insert: %w", err)
	}
	if err := tx.QueryRow(ctx, query, args...).Scan(&move.ID); err != nil {
		return Move{}, mapWriteError("insert move", err)
	}
	if len(in.Lines) == 0 {
		return move, nil
	}
	ins := r.sb.Insert("move_lines").
		Columns("move_id", "account_id", "name", "debit", "credit", "currency", "amount_currency", "consolidated_from_company_id")
	for _, l := range in.Lines {
		ins = ins.Values(move.ID, l.AccountID, l.Name, l.Debit, l.Credit, l.Currency, l.AmountCurrency, from)
	}
	query, args, err = ins.Suffix("RETURNING id").ToSql()
	if err != nil {
		return Move{}, fmt.Errorf("build insert: %w", err)
	}
	var ids []int64
	if err := pgxscan.Select(ctx, tx, &ids, query, args...); err != nil {
		return Move{}, mapWriteError("insert move lines", err)
	}
	for i, l := range in.Lines {
		line := Line{
			MoveID:                    move.ID,
			AccountID:                 l.AccountID,
			Name:                      l.Name,
			Debit:                     l.Debit,
			Credit:                    l.Credit,
			Currency:                  l.Currency,
			AmountCurrency:            l.AmountCurrency,
			ConsolidatedFromCompanyID: &from,
		}
		if i < len(ids) {
			line.ID = ids[i]
		}
		move.Lines = append(move.Lines, line)
	}
	return move, nil
}

// UpdateCompanySettings stores the consolidation settings of a company.
func (r *Repository) UpdateCompanySettings(ctx context.Context, settings CompanySettings) error {
	if err := r.ready(); err != nil {
		return err
	}
	query, args, err := r.sb.Update("companies").
		Set("consolidation_percentage", settings.ConsolidationPercentage).
		Set("consolidation_diff_account_id", settings.DiffAccountID).
		Set("consolidation_default_journal_id", settings.DefaultJournalID).
		Where(sq.Eq{"id": settings.CompanyID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapWriteError("update company settings", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrCompanyNotFound, settings.CompanyID)
	}
	return nil
}

// QuoteForDate returns the quote of a pair at asOf. The average rate is the latest one published in
// the month of asOf; the spot rate is the latest one published on or before asOf.
func (r *Repository) QuoteForDate(ctx context.Context, asOf time.Time, pair string) (fx.Quote, bool, error) {
	if err := r.ready(); err != nil {
		return fx.Quote{}, false, err
	}
	pair = strings.ToUpper(strings.TrimSpace(pair))
	if pair == "" {
		return fx.Quote{}, false, fmt.Errorf("fx pair required")
	}
	if asOf.IsZero() {
		return fx.Quote{}, false, fmt.Errorf("as of date required")
	}
	day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
	const query = `
SELECT
    (SELECT average_rate FROM fx_rates
      WHERE pair = $1 AND as_of_date BETWEEN $2 AND $3
      ORDER BY as_of_date DESC LIMIT 1) AS average_rate,
    (SELECT spot_rate FROM fx_rates
      WHERE pair = $1 AND as_of_date <= $3
      ORDER BY as_of_date DESC LIMIT 1) AS spot_rate`
	var row quoteRow
	if err := pgxscan.Get(ctx, r.pool, &row, query, pair, monthStart, day); err != nil {
		return fx.Quote{}, false, err
	}
	if row.Average == nil && row.Spot == nil {
		return fx.Quote{}, false, nil
	}
	var quote fx.Quote
	if row.Average != nil {
		quote.Average = *row.Average
	}
	if row.Spot != nil {
		quote.Spot = *row.Spot
	}
	return quote, true, nil
}

// UpsertFxRates persists FX quotes, replacing existing rows when necessary.
func (r *Repository) UpsertFxRates(ctx context.Context, rows []FxRateInput) error {
	if err := r.ready(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const query = `
INSERT INTO fx_rates (as_of_date, pair, average_rate, spot_rate)
VALUES ($1, $2, $3, $4)
ON CONFLICT (as_of_date, pair)
DO UPDATE SET average_rate = EXCLUDED.average_rate, spot_rate = EXCLUDED.spot_rate`
	for _, row := range rows {
		pair := strings.ToUpper(strings.TrimSpace(row.Pair))
		if len(pair) != 6 {
			return fmt.Errorf("%w: pair %q", ErrFxRateInvalid, row.Pair)
		}
		if row.AsOf.IsZero() {
			return fmt.Errorf("%w: as of date required for pair %s", ErrFxRateInvalid, pair)
		}
		if !row.Average.IsPositive() || !row.Spot.IsPositive() {
			return fmt.Errorf("%w: rates must be positive for %s %s", ErrFxRateInvalid, pair, row.AsOf.Format("2006-01-02"))
		}
		asOf := time.Date(row.AsOf.Year(), row.AsOf.Month(), row.AsOf.Day(), 0, 0, 0, 0, time.UTC)
		batch.Queue(query, asOf, pair, row.Average, row.Spot)
	}
	results := r.pool.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%w: %s: %s", ErrConfiguration, op, pgErr.Detail)
	}
	return fmt.Errorf("%s: %w", op, err)
}
