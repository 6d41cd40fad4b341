package consol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
)

// moveRef is the reference of every generated move.
const moveRef = "Consolidation"

// Directory reads companies, charts of accounts and journals.
type Directory interface {
	Company(ctx context.Context, id int64) (Company, error)
	Companies(ctx context.Context, ids []int64) ([]Company, error)
	Subsidiaries(ctx context.Context, holdingID int64) ([]Company, error)
	Accounts(ctx context.Context, companyID int64) ([]Account, error)
	AccountsByIDs(ctx context.Context, ids []int64) ([]Account, error)
	Journal(ctx context.Context, id int64) (Journal, error)
}

// Ledger aggregates balances and records moves. CreateMoves must create all moves or none.
type Ledger interface {
	AccountBalances(ctx context.Context, filter BalanceFilter) (map[int64]decimal.Decimal, error)
	CreateMoves(ctx context.Context, moves []MoveInput) ([]Move, error)
}

// SettingsStore persists company consolidation settings.
type SettingsStore interface {
	UpdateCompanySettings(ctx context.Context, settings CompanySettings) error
}

// Store is the persistence required by the service.
type Store interface {
	Directory
	Ledger
	SettingsStore
}

// Service orchestrates mapping checks and consolidation runs.
type Service struct {
	repo      Store
	converter CurrencyConverter
	policy    fx.Policy
	logger    *slog.Logger
	newID     func() uuid.UUID
}

// NewService constructs a consolidation service instance.
func NewService(repo Store, converter CurrencyConverter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		converter: converter,
		policy:    fx.DefaultPolicy(),
		logger:    logger,
		newID:     uuid.New,
	}
}

// WithPolicy overrides the rate method policy.
func (s *Service) WithPolicy(policy fx.Policy) {
	s.policy = policy
}

// WithIDGenerator overrides run identifiers for deterministic tests.
func (s *Service) WithIDGenerator(fn func() uuid.UUID) {
	if fn != nil {
		s.newID = fn
	}
}

func (s *Service) ready() error {
	if s == nil || s.repo == nil {
		return errors.New("consol: service not initialised")
	}
	return nil
}

// runScope caches what a run reads once: the holding, its chart, the subsidiaries and their charts.
type runScope struct {
	holding         Company
	holdingAccounts []Account
	holdingByID     map[int64]Account
	subsidiaries    []Company
	accounts        map[int64][]Account
	indexes         map[int64]accountIndex
}

func (sc *runScope) index(subsidiaryID int64) accountIndex {
	if idx, ok := sc.indexes[subsidiaryID]; ok {
		return idx
	}
	idx := newAccountIndex(sc.holdingAccounts, sc.accounts[subsidiaryID])
	sc.indexes[subsidiaryID] = idx
	return idx
}

func (s *Service) loadScope(ctx context.Context, holdingID int64, subsidiaryIDs []int64) (*runScope, error) {
	holding, err := s.repo.Company(ctx, holdingID)
	if err != nil {
		return nil, fmt.Errorf("consol: load holding %d: %w", holdingID, err)
	}
	if !holding.IsConsolidation {
		return nil, fmt.Errorf("%w: %s", ErrHoldingInvalid, holding.Name)
	}
	subs, err := s.resolveSubsidiaries(ctx, holding, subsidiaryIDs)
	if err != nil {
		return nil, err
	}
	holdingAccounts, err := s.repo.Accounts(ctx, holding.ID)
	if err != nil {
		return nil, fmt.Errorf("consol: load accounts of %s: %w", holding.Name, err)
	}
	sortAccounts(holdingAccounts)
	scope := &runScope{
		holding:         holding,
		holdingAccounts: holdingAccounts,
		holdingByID:     make(map[int64]Account, len(holdingAccounts)),
		subsidiaries:    subs,
		accounts:        make(map[int64][]Account, len(subs)),
		indexes:         make(map[int64]accountIndex, len(subs)),
	}
	for _, acc := range holdingAccounts {
		scope.holdingByID[acc.ID] = acc
	}
	for _, sub := range subs {
		accounts, err := s.repo.Accounts(ctx, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("consol: load accounts of %s: %w", sub.Name, err)
		}
		sortAccounts(accounts)
		scope.accounts[sub.ID] = accounts
	}
	return scope, nil
}

// resolveSubsidiaries loads the explicit subsidiaries or defaults to the holding's children with
// a positive percentage.
func (s *Service) resolveSubsidiaries(ctx context.Context, holding Company, ids []int64) ([]Company, error) {
	if len(ids) == 0 {
		children, err := s.repo.Subsidiaries(ctx, holding.ID)
		if err != nil {
			return nil, fmt.Errorf("consol: load subsidiaries of %s: %w", holding.Name, err)
		}
		out := make([]Company, 0, len(children))
		for _, c := range children {
			if c.Eligible() {
				out = append(out, c)
			}
		}
		return out, nil
	}
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == holding.ID {
			return nil, fmt.Errorf("%w: holding %s cannot consolidate itself", ErrInvalidParams, holding.Name)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	subs, err := s.repo.Companies(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("consol: load subsidiaries: %w", err)
	}
	if len(subs) != len(unique) {
		return nil, fmt.Errorf("%w: %d of %d subsidiaries", ErrCompanyNotFound, len(unique)-len(subs), len(unique))
	}
	return subs, nil
}

func (s *Service) resolveJournal(ctx context.Context, holding Company, journalID int64) (Journal, error) {
	if journalID == 0 && holding.DefaultJournalID != nil {
		journalID = *holding.DefaultJournalID
	}
	if journalID == 0 {
		return Journal{}, fmt.Errorf("%w: no journal given and no default journal on %s", ErrJournalInvalid, holding.Name)
	}
	journal, err := s.repo.Journal(ctx, journalID)
	if errors.Is(err, ErrJournalNotFound) {
		return Journal{}, fmt.Errorf("%w: journal %d does not exist", ErrJournalInvalid, journalID)
	}
	if err != nil {
		return Journal{}, fmt.Errorf("consol: load journal %d: %w", journalID, err)
	}
	if journal.CompanyID != holding.ID {
		return Journal{}, fmt.Errorf("%w: journal %s does not belong to %s", ErrJournalInvalid, journal.Code, holding.Name)
	}
	return journal, nil
}

func (p *RunParams) normalize() error {
	if p.TargetMove == "" {
		p.TargetMove = TargetMovePosted
	}
	switch {
	case p.HoldingID <= 0:
		return fmt.Errorf("%w: holding id is required", ErrInvalidParams)
	case p.DateFrom.IsZero() || p.DateTo.IsZero():
		return fmt.Errorf("%w: date range is required", ErrInvalidParams)
	case p.DateTo.Before(p.DateFrom):
		return fmt.Errorf("%w: date_from must not be after date_to", ErrInvalidParams)
	case !p.TargetMove.Valid():
		return fmt.Errorf("%w: unsupported target move %q", ErrInvalidParams, p.TargetMove)
	}
	return nil
}

// Run consolidates the subsidiaries into the holding over the period. Either every move of the run
// is created or none is.
func (s *Service) Run(ctx context.Context, params RunParams) (RunResult, error) {
	if err := s.ready(); err != nil {
		return RunResult{}, err
	}
	if err := params.normalize(); err != nil {
		return RunResult{}, err
	}
	scope, err := s.loadScope(ctx, params.HoldingID, params.SubsidiaryIDs)
	if err != nil {
		return RunResult{}, err
	}
	report, err := s.checkScope(ctx, scope)
	if err != nil {
		return RunResult{}, err
	}
	if !report.OK() {
		return RunResult{}, &MappingError{Report: report}
	}
	journal, err := s.resolveJournal(ctx, scope.holding, params.JournalID)
	if err != nil {
		return RunResult{}, err
	}
	params.JournalID = journal.ID

	runID := s.newID()
	logger := s.logger.With(slog.String("run_id", runID.String()), slog.Int64("holding_id", scope.holding.ID))
	var inputs []MoveInput
	for _, sub := range scope.subsidiaries {
		if !sub.Eligible() {
			logger.Debug("subsidiary skipped", slog.Int64("company_id", sub.ID), slog.String("percentage", sub.ConsolidationPercentage.String()))
			continue
		}
		lines, err := s.consolidateSubsidiary(ctx, scope, sub, params)
		if err != nil {
			return RunResult{}, err
		}
		if len(lines) == 0 {
			continue
		}
		inputs = append(inputs, MoveInput{
			CompanyID:                 scope.holding.ID,
			JournalID:                 journal.ID,
			Date:                      params.DateTo,
			Ref:                       moveRef,
			ConsolidatedFromCompanyID: sub.ID,
			RunID:                     runID,
			Lines:                     lines,
		})
	}
	if len(inputs) == 0 {
		return RunResult{}, fmt.Errorf("%w for %s over %s", ErrNothingGenerated, scope.holding.Name, params.Period())
	}
	moves, err := s.repo.CreateMoves(ctx, inputs)
	if err != nil {
		return RunResult{}, fmt.Errorf("consol: create moves: %w", err)
	}
	logger.Info("consolidation run completed",
		slog.String("period", params.Period()),
		slog.String("target_move", string(params.TargetMove)),
		slog.Int("moves", len(moves)))
	return RunResult{RunID: runID, Moves: moves}, nil
}

// consolidateSubsidiary builds the lines of one subsidiary, including the balancing line.
func (s *Service) consolidateSubsidiary(ctx context.Context, scope *runScope, sub Company, params RunParams) ([]LineValues, error) {
	idx := scope.index(sub.ID)
	var mapped []Account
	for _, acc := range scope.accounts[sub.ID] {
		if acc.ConsolidationAccountID != nil {
			mapped = append(mapped, acc)
		}
	}
	balances, err := s.balances(ctx, sub.ID, mapped, params.DateFrom, params.DateTo, params.TargetMove)
	if err != nil {
		return nil, err
	}
	var lines []LineValues
	for _, holdingAccount := range scope.holdingAccounts {
		line, err := s.buildLine(ctx, scope.holding, holdingAccount, sub, idx.sources(holdingAccount.ID), balances, params)
		if err != nil {
			return nil, err
		}
		if line != nil {
			lines = append(lines, *line)
		}
	}
	if len(lines) == 0 {
		return nil, nil
	}
	diff, err := ExchangeDifferenceLine(lines, scope.holding, params)
	if err != nil {
		return nil, err
	}
	if diff != nil {
		lines = append(lines, *diff)
	}
	return lines, nil
}

// UpdateCompanySettings validates and stores the consolidation settings of a company.
func (s *Service) UpdateCompanySettings(ctx context.Context, settings CompanySettings) (Company, error) {
	if err := s.ready(); err != nil {
		return Company{}, err
	}
	company, err := s.repo.Company(ctx, settings.CompanyID)
	if err != nil {
		return Company{}, fmt.Errorf("consol: load company %d: %w", settings.CompanyID, err)
	}
	company.ConsolidationPercentage = settings.ConsolidationPercentage
	company.DiffAccountID = settings.DiffAccountID
	company.DefaultJournalID = settings.DefaultJournalID
	if err := company.Validate(); err != nil {
		return Company{}, err
	}
	if company.DiffAccountID != nil {
		accounts, err := s.repo.AccountsByIDs(ctx, []int64{*company.DiffAccountID})
		if err != nil {
			return Company{}, fmt.Errorf("consol: load difference account: %w", err)
		}
		if len(accounts) == 0 || accounts[0].CompanyID != company.ID {
			return Company{}, fmt.Errorf("%w: difference account %d is not an account of %s", ErrInvalidCompany, *company.DiffAccountID, company.Name)
		}
	}
	if company.DefaultJournalID != nil {
		journal, err := s.repo.Journal(ctx, *company.DefaultJournalID)
		if err != nil && !errors.Is(err, ErrJournalNotFound) {
			return Company{}, fmt.Errorf("consol: load journal: %w", err)
		}
		if err != nil || journal.CompanyID != company.ID {
			return Company{}, fmt.Errorf("%w: journal %d is not a journal of %s", ErrInvalidCompany, *company.DefaultJournalID, company.Name)
		}
	}
	if err := s.repo.UpdateCompanySettings(ctx, settings); err != nil {
		return Company{}, fmt.Errorf("consol: update settings of %s: %w", company.Name, err)
	}
	s.logger.Info("consolidation settings updated", slog.Int64("company_id", company.ID), slog.String("percentage", company.ConsolidationPercentage.String()))
	return company, nil
}

// Currencies returns the holding currency and the distinct currencies of the mapped subsidiary
// accounts, which is what a run has to convert.
func (s *Service) Currencies(ctx context.Context, params CheckParams) (string, []string, error) {
	if err := s.ready(); err != nil {
		return "", nil, err
	}
	scope, err := s.loadScope(ctx, params.HoldingID, params.SubsidiaryIDs)
	if err != nil {
		return "", nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, sub := range scope.subsidiaries {
		for _, acc := range scope.accounts[sub.ID] {
			if acc.ConsolidationAccountID == nil {
				continue
			}
			cur := acc.CurrencyOr(sub)
			if _, ok := seen[cur]; ok {
				continue
			}
			seen[cur] = struct{}{}
			out = append(out, cur)
		}
	}
	sort.Strings(out)
	return fx.NormalizeCode(scope.holding.Currency), out, nil
}
