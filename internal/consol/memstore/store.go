// Package memstore keeps companies, ledgers and FX quotes in memory. It backs tests, fixtures and
// local runs of the consolidation service.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
)

type rateRow struct {
	asOf    time.Time
	average decimal.Decimal
	spot    decimal.Decimal
}

// Store implements consol.Store and fx.QuoteProvider.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	companies map[int64]consol.Company
	accounts  map[int64]consol.Account
	journals  map[int64]consol.Journal
	moves     []consol.Move
	rates     map[string][]rateRow
	failNext  error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		companies: make(map[int64]consol.Company),
		accounts:  make(map[int64]consol.Account),
		journals:  make(map[int64]consol.Journal),
		rates:     make(map[string][]rateRow),
	}
}

func (s *Store) id(current int64) int64 {
	if current > s.nextID {
		s.nextID = current
		return current
	}
	if current != 0 {
		return current
	}
	s.nextID++
	return s.nextID
}

// AddCompany stores c, assigning an id when zero.
func (s *Store) AddCompany(c consol.Company) consol.Company {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id(c.ID)
	s.companies[c.ID] = c
	return c
}

// AddAccount stores a, assigning an id when zero.
func (s *Store) AddAccount(a consol.Account) consol.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.id(a.ID)
	s.accounts[a.ID] = a
	return a
}

// AddJournal stores j, assigning an id when zero.
func (s *Store) AddJournal(j consol.Journal) consol.Journal {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.ID = s.id(j.ID)
	s.journals[j.ID] = j
	return j
}

// AddMove records a move with its lines as is.
func (s *Store) AddMove(m consol.Move) consol.Move {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id(m.ID)
	for i := range m.Lines {
		m.Lines[i].ID = s.id(m.Lines[i].ID)
		m.Lines[i].MoveID = m.ID
	}
	s.moves = append(s.moves, m)
	return m
}

// SetRate stores a quote for pair published on asOf, replacing a quote of the same day.
func (s *Store) SetRate(pair string, asOf time.Time, average, spot decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setRate(strings.ToUpper(strings.TrimSpace(pair)), rateRow{asOf: day(asOf), average: average, spot: spot})
}

func (s *Store) setRate(pair string, row rateRow) {
	rows := s.rates[pair]
	for i := range rows {
		if rows[i].asOf.Equal(row.asOf) {
			rows[i] = row
			return
		}
	}
	rows = append(rows, row)
	sort.Slice(rows, func(i, j int) bool { return rows[i].asOf.Before(rows[j].asOf) })
	s.rates[pair] = rows
}

// UpsertFxRates validates rows like the SQL repository and stores all of them or none.
func (s *Store) UpsertFxRates(_ context.Context, rows []consol.FxRateInput) error {
	for _, row := range rows {
		pair := strings.ToUpper(strings.TrimSpace(row.Pair))
		if len(pair) != 6 {
			return fmt.Errorf("%w: pair %q", consol.ErrFxRateInvalid, row.Pair)
		}
		if row.AsOf.IsZero() {
			return fmt.Errorf("%w: as of date required for pair %s", consol.ErrFxRateInvalid, pair)
		}
		if !row.Average.IsPositive() || !row.Spot.IsPositive() {
			return fmt.Errorf("%w: rates must be positive for %s %s", consol.ErrFxRateInvalid, pair, row.AsOf.Format("2006-01-02"))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.setRate(strings.ToUpper(strings.TrimSpace(row.Pair)), rateRow{asOf: day(row.AsOf), average: row.Average, spot: row.Spot})
	}
	return nil
}

// FailNextCreate makes the next CreateMoves call fail with err without writing anything.
func (s *Store) FailNextCreate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Moves returns a copy of every stored move.
func (s *Store) Moves() []consol.Move {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]consol.Move, len(s.moves))
	copy(out, s.moves)
	return out
}

// MovesByRun returns the moves generated by a run.
func (s *Store) MovesByRun(runID uuid.UUID) []consol.Move {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []consol.Move
	for _, m := range s.moves {
		if m.RunID == runID {
			out = append(out, m)
		}
	}
	return out
}

// Company implements consol.Directory.
func (s *Store) Company(_ context.Context, id int64) (consol.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok {
		return consol.Company{}, fmt.Errorf("%w: %d", consol.ErrCompanyNotFound, id)
	}
	return c, nil
}

// Companies implements consol.Directory.
func (s *Store) Companies(_ context.Context, ids []int64) ([]consol.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []consol.Company
	for _, id := range ids {
		if c, ok := s.companies[id]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Subsidiaries implements consol.Directory.
func (s *Store) Subsidiaries(_ context.Context, holdingID int64) ([]consol.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []consol.Company
	for _, c := range s.companies {
		if c.ParentID != nil && *c.ParentID == holdingID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Accounts implements consol.Directory.
func (s *Store) Accounts(_ context.Context, companyID int64) ([]consol.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []consol.Account
	for _, a := range s.accounts {
		if a.CompanyID == companyID {
			out = append(out, a)
		}
	}
	sortAccounts(out)
	return out, nil
}

// AccountsByIDs implements consol.Directory.
func (s *Store) AccountsByIDs(_ context.Context, ids []int64) ([]consol.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []consol.Account
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok {
			out = append(out, a)
		}
	}
	sortAccounts(out)
	return out, nil
}

// Journal implements consol.Directory.
func (s *Store) Journal(_ context.Context, id int64) (consol.Journal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.journals[id]
	if !ok {
		return consol.Journal{}, fmt.Errorf("%w: %d", consol.ErrJournalNotFound, id)
	}
	return j, nil
}

// AccountBalances implements consol.Ledger.
func (s *Store) AccountBalances(_ context.Context, filter consol.BalanceFilter) (map[int64]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[int64]struct{}, len(filter.AccountIDs))
	for _, id := range filter.AccountIDs {
		wanted[id] = struct{}{}
	}
	from, to := day(filter.DateFrom), day(filter.DateTo)
	out := make(map[int64]decimal.Decimal)
	for _, m := range s.moves {
		if m.CompanyID != filter.CompanyID {
			continue
		}
		if filter.TargetMove == consol.TargetMovePosted && m.State != consol.MoveStatePosted {
			continue
		}
		d := day(m.Date)
		if d.Before(from) || d.After(to) {
			continue
		}
		for _, l := range m.Lines {
			if _, ok := wanted[l.AccountID]; !ok {
				continue
			}
			out[l.AccountID] = out[l.AccountID].Add(l.Balance())
		}
	}
	return out, nil
}

// CreateMoves implements consol.Ledger. Either every move is stored or none is.
func (s *Store) CreateMoves(_ context.Context, inputs []consol.MoveInput) ([]consol.Move, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		return nil, err
	}
	for _, in := range inputs {
		if _, ok := s.journals[in.JournalID]; !ok {
			return nil, fmt.Errorf("%w: %d", consol.ErrJournalNotFound, in.JournalID)
		}
		for _, l := range in.Lines {
			if _, ok := s.accounts[l.AccountID]; !ok {
				return nil, fmt.Errorf("%w: %d", consol.ErrAccountNotFound, l.AccountID)
			}
		}
	}
	created := make([]consol.Move, 0, len(inputs))
	for _, in := range inputs {
		from := in.ConsolidatedFromCompanyID
		m := consol.Move{
			ID:                        s.id(0),
			CompanyID:                 in.CompanyID,
			JournalID:                 in.JournalID,
			Date:                      in.Date,
			Ref:                       in.Ref,
			State:                     consol.MoveStateDraft,
			ConsolidatedFromCompanyID: &from,
			RunID:                     in.RunID,
		}
		for _, l := range in.Lines {
			m.Lines = append(m.Lines, consol.Line{
				ID:                        s.id(0),
				MoveID:                    m.ID,
				AccountID:                 l.AccountID,
				Name:                      l.Name,
				Debit:                     l.Debit,
				Credit:                    l.Credit,
				Currency:                  l.Currency,
				AmountCurrency:            l.AmountCurrency,
				ConsolidatedFromCompanyID: &from,
			})
		}
		created = append(created, m)
	}
	s.moves = append(s.moves, created...)
	return created, nil
}

// UpdateCompanySettings implements consol.SettingsStore.
func (s *Store) UpdateCompanySettings(_ context.Context, settings consol.CompanySettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[settings.CompanyID]
	if !ok {
		return fmt.Errorf("%w: %d", consol.ErrCompanyNotFound, settings.CompanyID)
	}
	c.ConsolidationPercentage = settings.ConsolidationPercentage
	c.DiffAccountID = settings.DiffAccountID
	c.DefaultJournalID = settings.DefaultJournalID
	s.companies[c.ID] = c
	return nil
}

// QuoteForDate implements fx.QuoteProvider with the same lookup rules as the SQL repository.
func (s *Store) QuoteForDate(_ context.Context, asOf time.Time, pair string) (fx.Quote, bool, error) {
	if asOf.IsZero() {
		return fx.Quote{}, false, errors.New("memstore: as of date required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := day(asOf)
	monthStart := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	var quote fx.Quote
	found := false
	for _, row := range s.rates[strings.ToUpper(strings.TrimSpace(pair))] {
		if row.asOf.After(d) {
			break
		}
		quote.Spot = row.spot
		found = true
		if !row.asOf.Before(monthStart) {
			quote.Average = row.average
		}
	}
	return quote, found, nil
}

// Records is a copy of everything held by a store, each slice ordered by identifier.
type Records struct {
	Companies []consol.Company
	Accounts  []consol.Account
	Journals  []consol.Journal
	Moves     []consol.Move
	Rates     []consol.FxRateInput
}

// Dump copies the store content, used to seed a database with a fixture.
func (s *Store) Dump() Records {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rec Records
	for _, c := range s.companies {
		rec.Companies = append(rec.Companies, c)
	}
	sort.Slice(rec.Companies, func(i, j int) bool { return rec.Companies[i].ID < rec.Companies[j].ID })
	for _, a := range s.accounts {
		rec.Accounts = append(rec.Accounts, a)
	}
	sort.Slice(rec.Accounts, func(i, j int) bool { return rec.Accounts[i].ID < rec.Accounts[j].ID })
	for _, j := range s.journals {
		rec.Journals = append(rec.Journals, j)
	}
	sort.Slice(rec.Journals, func(i, j int) bool { return rec.Journals[i].ID < rec.Journals[j].ID })
	rec.Moves = make([]consol.Move, len(s.moves))
	copy(rec.Moves, s.moves)
	pairs := make([]string, 0, len(s.rates))
	for pair := range s.rates {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	for _, pair := range pairs {
		for _, row := range s.rates[pair] {
			rec.Rates = append(rec.Rates, consol.FxRateInput{AsOf: row.asOf, Pair: pair, Average: row.average, Spot: row.spot})
		}
	}
	return rec
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sortAccounts(accounts []consol.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Code == accounts[j].Code {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].Code < accounts[j].Code
	})
}

var _ consol.Store = (*Store)(nil)
var _ fx.QuoteProvider = (*Store)(nil)
