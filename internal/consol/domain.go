package consol

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
)

// TargetMove selects which ledger entries contribute to balances.
type TargetMove string

const (
	// TargetMovePosted restricts balances to posted moves.
	TargetMovePosted TargetMove = "posted"
	// TargetMoveAll includes draft moves as well.
	TargetMoveAll TargetMove = "all"
)

// Valid reports whether the filter is supported.
func (t TargetMove) Valid() bool {
	return t == TargetMovePosted || t == TargetMoveAll
}

// MoveState enumerates the posting state of a ledger entry.
type MoveState string

const (
	MoveStateDraft  MoveState = "DRAFT"
	MoveStatePosted MoveState = "POSTED"
)

var hundred = decimal.NewFromInt(100)

// Company is either a holding (IsConsolidation) or a subsidiary weighted by ConsolidationPercentage.
type Company struct {
	ID                      int64           `db:"id"`
	Name                    string          `db:"name"`
	Currency                string          `db:"currency"`
	ParentID                *int64          `db:"parent_id"`
	IsConsolidation         bool            `db:"is_consolidation"`
	ConsolidationPercentage decimal.Decimal `db:"consolidation_percentage"`
	DiffAccountID           *int64          `db:"consolidation_diff_account_id"`
	DefaultJournalID        *int64          `db:"consolidation_default_journal_id"`
}

// Validate enforces the percentage invariants of a company.
func (c Company) Validate() error {
	pct := c.ConsolidationPercentage
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return fmt.Errorf("%w: consolidation percentage of %s must be between 0 and 100", ErrInvalidCompany, c.Name)
	}
	if c.IsConsolidation && !pct.IsZero() {
		return fmt.Errorf("%w: consolidation percentage can only be defined on subsidiaries, not on consolidation company %s", ErrInvalidCompany, c.Name)
	}
	if strings.TrimSpace(c.Currency) == "" {
		return fmt.Errorf("%w: company %s has no currency", ErrInvalidCompany, c.Name)
	}
	return nil
}

// Eligible reports whether the company takes part in a consolidation run.
func (c Company) Eligible() bool {
	return c.ConsolidationPercentage.IsPositive()
}

// Weight returns the ownership ratio applied to balances.
func (c Company) Weight() decimal.Decimal {
	return c.ConsolidationPercentage.Div(hundred)
}

// Account is a chart of accounts entry owned by one company.
type Account struct {
	ID                     int64  `db:"id"`
	CompanyID              int64  `db:"company_id"`
	Code                   string `db:"code"`
	Name                   string `db:"name"`
	Currency               string `db:"currency"`
	IsConsolidation        bool   `db:"is_consolidation"`
	ConsolidationAccountID *int64 `db:"consolidation_account_id"`
	IncludeInitialBalance  bool   `db:"include_initial_balance"`
}

// CurrencyOr returns the account currency, falling back to the owning company's.
func (a Account) CurrencyOr(company Company) string {
	if cur := fx.NormalizeCode(a.Currency); cur != "" {
		return cur
	}
	return fx.NormalizeCode(company.Currency)
}

// RateMethod picks the conversion method: spot for balance sheet accounts, period average otherwise.
func (a Account) RateMethod(policy fx.Policy) fx.Method {
	return policy.MethodFor(a.IncludeInitialBalance)
}

// DisplayName renders "code name".
func (a Account) DisplayName() string {
	return strings.TrimSpace(a.Code + " " + a.Name)
}

// Journal groups moves of a company.
type Journal struct {
	ID        int64  `db:"id"`
	CompanyID int64  `db:"company_id"`
	Code      string `db:"code"`
	Name      string `db:"name"`
}

// Move is a ledger entry.
type Move struct {
	ID                        int64
	CompanyID                 int64
	JournalID                 int64
	Date                      time.Time
	Ref                       string
	State                     MoveState
	ConsolidatedFromCompanyID *int64
	RunID                     uuid.UUID
	Lines                     []Line
}

// Line is a ledger line. Debit and credit are mutually exclusive and non-negative.
type Line struct {
	ID                        int64
	MoveID                    int64
	AccountID                 int64
	Name                      string
	Debit                     decimal.Decimal
	Credit                    decimal.Decimal
	Currency                  string
	AmountCurrency            decimal.Decimal
	ConsolidatedFromCompanyID *int64
}

// Balance returns debit minus credit.
func (l Line) Balance() decimal.Decimal {
	return l.Debit.Sub(l.Credit)
}

// LineValues are the computed values of a generated line.
type LineValues struct {
	AccountID      int64
	Name           string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	Currency       string
	AmountCurrency decimal.Decimal
}

// Balance returns debit minus credit.
func (v LineValues) Balance() decimal.Decimal {
	return v.Debit.Sub(v.Credit)
}

// MoveInput describes a move to create with its lines.
type MoveInput struct {
	CompanyID                 int64
	JournalID                 int64
	Date                      time.Time
	Ref                       string
	ConsolidatedFromCompanyID int64
	RunID                     uuid.UUID
	Lines                     []LineValues
}

// RunParams scopes a consolidation run.
type RunParams struct {
	HoldingID     int64
	SubsidiaryIDs []int64
	DateFrom      time.Time
	DateTo        time.Time
	TargetMove    TargetMove
	JournalID     int64
}

// Period renders the date range as printed on generated lines.
func (p RunParams) Period() string {
	return fmt.Sprintf("%s - %s", p.DateFrom.Format("2006-01-02"), p.DateTo.Format("2006-01-02"))
}

// CheckParams scopes a mapping check.
type CheckParams struct {
	HoldingID     int64
	SubsidiaryIDs []int64
}

// AccountDefects lists what is wrong with the mapping of one subsidiary account.
type AccountDefects struct {
	Account Account
	Defects []string
}

// SubsidiaryDefects groups defective accounts of one subsidiary.
type SubsidiaryDefects struct {
	Company  Company
	Accounts []AccountDefects
}

// MappingReport holds only subsidiaries with at least one defective account.
type MappingReport struct {
	Holding      Company
	Subsidiaries []SubsidiaryDefects
}

// OK reports whether every checked subsidiary is correctly mapped.
func (r MappingReport) OK() bool {
	return len(r.Subsidiaries) == 0
}

// DefectCount is the number of defective accounts across all subsidiaries.
func (r MappingReport) DefectCount() int {
	n := 0
	for _, sub := range r.Subsidiaries {
		n += len(sub.Accounts)
	}
	return n
}

// Defects returns the defects of an account, nil when it is correctly mapped.
func (r MappingReport) Defects(subsidiaryID, accountID int64) []string {
	for _, sub := range r.Subsidiaries {
		if sub.Company.ID != subsidiaryID {
			continue
		}
		for _, acc := range sub.Accounts {
			if acc.Account.ID == accountID {
				return acc.Defects
			}
		}
	}
	return nil
}

// CompanySettings are the consolidation settings editable on a company.
type CompanySettings struct {
	CompanyID               int64
	ConsolidationPercentage decimal.Decimal
	DiffAccountID           *int64
	DefaultJournalID        *int64
}

// RunResult lists the moves created by a run.
type RunResult struct {
	RunID uuid.UUID
	Moves []Move
}

// MoveIDs returns the identifiers of the created moves.
func (r RunResult) MoveIDs() []int64 {
	ids := make([]int64, len(r.Moves))
	for i, m := range r.Moves {
		ids[i] = m.ID
	}
	return ids
}
