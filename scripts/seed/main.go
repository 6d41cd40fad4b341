// Command seed loads the reference consolidation scenario (a USD holding with a USD and a CHF
// subsidiary) into PostgreSQL.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/account-consolidation/internal/app"
	"github.com/odyssey-erp/account-consolidation/internal/consol"
	"github.com/odyssey-erp/account-consolidation/internal/consol/memstore"
	"github.com/odyssey-erp/account-consolidation/internal/platform/db"
)

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions("consol-seed"))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	repo := consol.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("migrate schema", slog.Any("error", err))
		os.Exit(1)
	}

	store, sc := memstore.Reference()
	records := store.Dump()
	logger.Info("seeding reference scenario",
		slog.Int("companies", len(records.Companies)),
		slog.Int("accounts", len(records.Accounts)),
		slog.Int("moves", len(records.Moves)))

	if err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		return seed(ctx, tx, records)
	}); err != nil {
		logger.Error("seed scenario", slog.Any("error", err))
		os.Exit(1)
	}
	if err := repo.UpsertFxRates(ctx, records.Rates); err != nil {
		logger.Error("seed fx rates", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seed complete", slog.Int64("holding_id", sc.Holding.ID))
}

func seed(ctx context.Context, tx pgx.Tx, rec memstore.Records) error {
	// Settings reference accounts and journals, so they are written once both exist.
	for _, c := range rec.Companies {
		if _, err := tx.Exec(ctx, `
INSERT INTO companies (id, name, currency, parent_id, is_consolidation, consolidation_percentage)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, currency = EXCLUDED.currency,
    parent_id = EXCLUDED.parent_id, is_consolidation = EXCLUDED.is_consolidation,
    consolidation_percentage = EXCLUDED.consolidation_percentage`,
			c.ID, c.Name, c.Currency, c.ParentID, c.IsConsolidation, c.ConsolidationPercentage); err != nil {
			return fmt.Errorf("company %s: %w", c.Name, err)
		}
	}
	for _, a := range rec.Accounts {
		if _, err := tx.Exec(ctx, `
INSERT INTO accounts (id, company_id, code, name, currency, is_consolidation, consolidation_account_id, include_initial_balance)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`,
			a.ID, a.CompanyID, a.Code, a.Name, a.Currency, a.IsConsolidation, a.ConsolidationAccountID, a.IncludeInitialBalance); err != nil {
			return fmt.Errorf("account %s: %w", a.Code, err)
		}
	}
	for _, j := range rec.Journals {
		if _, err := tx.Exec(ctx, `
INSERT INTO journals (id, company_id, code, name) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`, j.ID, j.CompanyID, j.Code, j.Name); err != nil {
			return fmt.Errorf("journal %s: %w", j.Code, err)
		}
	}
	for _, c := range rec.Companies {
		if _, err := tx.Exec(ctx, `
UPDATE companies SET consolidation_diff_account_id = $2, consolidation_default_journal_id = $3 WHERE id = $1`,
			c.ID, c.DiffAccountID, c.DefaultJournalID); err != nil {
			return fmt.Errorf("company settings %s: %w", c.Name, err)
		}
	}
	for _, m := range rec.Moves {
		tag, err := tx.Exec(ctx, `
INSERT INTO moves (id, company_id, journal_id, date, ref, state) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`, m.ID, m.CompanyID, m.JournalID, m.Date, m.Ref, string(m.State))
		if err != nil {
			return fmt.Errorf("move %s: %w", m.Ref, err)
		}
		if tag.RowsAffected() == 0 {
			continue
		}
		for _, l := range m.Lines {
			if _, err := tx.Exec(ctx, `
INSERT INTO move_lines (id, move_id, account_id, name, debit, credit) VALUES ($1, $2, $3, $4, $5, $6)`,
				l.ID, m.ID, l.AccountID, l.Name, l.Debit, l.Credit); err != nil {
				return fmt.Errorf("move %s line: %w", m.Ref, err)
			}
		}
	}
	for _, table := range []string{"companies", "accounts", "journals", "moves", "move_lines"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), COALESCE((SELECT MAX(id) FROM %[1]s), 1))`, table)); err != nil {
			return fmt.Errorf("reset %s sequence: %w", table, err)
		}
	}
	return nil
}
