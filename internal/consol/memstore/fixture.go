package memstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
)

// Scenario exposes the records created by Reference.
type Scenario struct {
	Holding         consol.Company
	SubA            consol.Company
	SubB            consol.Company
	Journal         consol.Journal
	HoldingAccounts map[string]consol.Account
	Accounts        map[int64]map[string]consol.Account
}

// Account returns the account of company with the given code.
func (sc Scenario) Account(companyID int64, code string) consol.Account {
	return sc.Accounts[companyID][code]
}

type entry struct {
	date   time.Time
	label  string
	amount map[string][]amount
}

type amount struct {
	code  string
	value int64
}

var (
	balanceSheetCodes = []string{"ass1", "lia1", "lia2"}
	profitLossCodes   = []string{"exp1", "exp2", "exp3", "rev1", "rev2"}
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Reference builds a USD holding owning two subsidiaries at 100%: A in USD with draft entries and
// B in CHF with posted entries. Each subsidiary books an opening entry on 2018-01-01 and one entry
// per period on 2018-01-20 and 2018-02-15. USDCHF quotes are 1.3 (average) and 1.36 (spot).
func Reference() (*Store, Scenario) {
	s := New()
	sc := Scenario{
		HoldingAccounts: make(map[string]consol.Account),
		Accounts:        make(map[int64]map[string]consol.Account),
	}
	sc.Holding = s.AddCompany(consol.Company{Name: "Holding", Currency: "USD", IsConsolidation: true})
	for _, code := range append(append([]string{}, balanceSheetCodes...), profitLossCodes...) {
		sc.HoldingAccounts[code] = s.AddAccount(consol.Account{
			CompanyID:             sc.Holding.ID,
			Code:                  code,
			Name:                  "Consolidation " + code,
			IsConsolidation:       true,
			IncludeInitialBalance: isBalanceSheet(code),
		})
	}
	ced := s.AddAccount(consol.Account{CompanyID: sc.Holding.ID, Code: "ced", Name: "Consolidation exchange difference", IsConsolidation: true})
	sc.HoldingAccounts["ced"] = ced
	sc.Journal = s.AddJournal(consol.Journal{CompanyID: sc.Holding.ID, Code: "CONSO", Name: "Consolidation"})
	sc.Holding.DiffAccountID = &ced.ID
	sc.Holding.DefaultJournalID = &sc.Journal.ID
	sc.Holding = s.AddCompany(sc.Holding)

	parent := sc.Holding.ID
	hundred := decimal.NewFromInt(100)
	sc.SubA = s.AddCompany(consol.Company{Name: "Subsidiary A", Currency: "USD", ParentID: &parent, ConsolidationPercentage: hundred})
	sc.SubB = s.AddCompany(consol.Company{Name: "Subsidiary B", Currency: "CHF", ParentID: &parent, ConsolidationPercentage: hundred})

	entries := []entry{
		{date: date(2018, 1, 1), label: "Opening", amount: map[string][]amount{
			"subA": {{"ass1", 130}, {"lia1", -80}, {"lia2", -50}},
			"subB": {{"ass1", 170}, {"lia1", -160}, {"lia2", -10}},
		}},
		{date: date(2018, 1, 20), label: "P1", amount: map[string][]amount{
			"subA": {{"exp1", 20}, {"exp2", 30}, {"exp3", 65}, {"rev1", -50}, {"rev2", -90}, {"ass1", 80}, {"lia1", -10}, {"lia2", -45}},
			"subB": {{"exp1", 15}, {"exp2", 26}, {"exp3", 12}, {"rev1", -88}, {"rev2", -70}, {"ass1", 155}, {"lia1", -40}, {"lia2", -10}},
		}},
		{date: date(2018, 2, 15), label: "P2", amount: map[string][]amount{
			"subA": {{"exp1", 10}, {"exp2", 55}, {"exp3", 40}, {"rev1", -120}, {"rev2", -75}, {"ass1", 40}, {"lia1", 50}},
			"subB": {{"exp1", 10}, {"exp2", 55}, {"exp3", 40}, {"rev1", -120}, {"ass1", 80}, {"lia1", -30}, {"lia2", -35}},
		}},
	}

	subs := []struct {
		key     string
		company consol.Company
		state   consol.MoveState
	}{
		{"subA", sc.SubA, consol.MoveStateDraft},
		{"subB", sc.SubB, consol.MoveStatePosted},
	}
	for _, sub := range subs {
		accounts := make(map[string]consol.Account)
		for _, code := range append(append([]string{}, balanceSheetCodes...), profitLossCodes...) {
			targetID := sc.HoldingAccounts[code].ID
			accounts[code] = s.AddAccount(consol.Account{
				CompanyID:              sub.company.ID,
				Code:                   code,
				Name:                   code,
				ConsolidationAccountID: &targetID,
				IncludeInitialBalance:  isBalanceSheet(code),
			})
		}
		sc.Accounts[sub.company.ID] = accounts
		journal := s.AddJournal(consol.Journal{CompanyID: sub.company.ID, Code: "OP", Name: "Operations"})
		for _, e := range entries {
			move := consol.Move{
				CompanyID: sub.company.ID,
				JournalID: journal.ID,
				Date:      e.date,
				Ref:       e.label,
				State:     sub.state,
			}
			for _, a := range e.amount[sub.key] {
				line := consol.Line{AccountID: accounts[a.code].ID, Name: e.label}
				v := decimal.NewFromInt(a.value)
				if v.IsPositive() {
					line.Debit = v
				} else {
					line.Credit = v.Neg()
				}
				move.Lines = append(move.Lines, line)
			}
			s.AddMove(move)
		}
	}

	s.SetRate("USDCHF", date(2018, 1, 1), decimal.RequireFromString("1.3"), decimal.RequireFromString("1.36"))
	s.SetRate("USDCHF", date(2018, 2, 1), decimal.RequireFromString("1.3"), decimal.RequireFromString("1.36"))
	return s, sc
}

func isBalanceSheet(code string) bool {
	for _, c := range balanceSheetCodes {
		if c == code {
			return true
		}
	}
	return false
}
