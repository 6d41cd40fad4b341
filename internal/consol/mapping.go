package consol

import (
	"context"
	"fmt"
	"sort"
)

const (
	defectNoMapping      = "No consolidation account defined for this account"
	defectWrongCompany   = "The consolidation account defined for this account should be on company %s."
	defectNotConsol      = "The consolidation account defined for this account should be marked as consolidation account."
	defectMissingAccount = "The consolidation account defined for this account (id %d) does not exist."
)

// accountIndex maps each holding account to the subsidiary accounts consolidated into it. It is built
// once per subsidiary and shared by the mapping check and the line builder.
type accountIndex struct {
	holding   map[int64]Account
	referrers map[int64][]Account
}

func newAccountIndex(holdingAccounts, subsidiaryAccounts []Account) accountIndex {
	idx := accountIndex{
		holding:   make(map[int64]Account, len(holdingAccounts)),
		referrers: make(map[int64][]Account),
	}
	for _, acc := range holdingAccounts {
		idx.holding[acc.ID] = acc
	}
	for _, acc := range subsidiaryAccounts {
		if acc.ConsolidationAccountID == nil {
			continue
		}
		target := *acc.ConsolidationAccountID
		idx.referrers[target] = append(idx.referrers[target], acc)
	}
	for id := range idx.referrers {
		sortAccounts(idx.referrers[id])
	}
	return idx
}

// sources returns the subsidiary accounts consolidated into the holding account.
func (idx accountIndex) sources(holdingAccountID int64) []Account {
	return idx.referrers[holdingAccountID]
}

// eligible reports whether id is a consolidation account owned by the holding.
func (idx accountIndex) eligible(id int64) bool {
	acc, ok := idx.holding[id]
	return ok && acc.IsConsolidation
}

// CheckSubsidiaryMapping returns the defects of the non-consolidation accounts of a subsidiary.
// targets resolves consolidation accounts that are not owned by the holding; accounts correctly
// mapped are omitted.
func CheckSubsidiaryMapping(holding Company, holdingAccounts, subsidiaryAccounts []Account, targets map[int64]Account) []AccountDefects {
	idx := newAccountIndex(holdingAccounts, subsidiaryAccounts)
	return idx.check(holding, subsidiaryAccounts, targets)
}

func (idx accountIndex) check(holding Company, subsidiaryAccounts []Account, targets map[int64]Account) []AccountDefects {
	var out []AccountDefects
	for _, acc := range subsidiaryAccounts {
		if acc.IsConsolidation {
			continue
		}
		if acc.ConsolidationAccountID == nil {
			out = append(out, AccountDefects{Account: acc, Defects: []string{defectNoMapping}})
			continue
		}
		targetID := *acc.ConsolidationAccountID
		if idx.eligible(targetID) {
			continue
		}
		target, ok := idx.holding[targetID]
		if !ok {
			target, ok = targets[targetID]
		}
		if !ok {
			out = append(out, AccountDefects{Account: acc, Defects: []string{fmt.Sprintf(defectMissingAccount, targetID)}})
			continue
		}
		var defects []string
		if target.CompanyID != holding.ID {
			defects = append(defects, fmt.Sprintf(defectWrongCompany, holding.Name))
		}
		if !target.IsConsolidation {
			defects = append(defects, defectNotConsol)
		}
		if len(defects) > 0 {
			out = append(out, AccountDefects{Account: acc, Defects: defects})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Account.Code < out[j].Account.Code })
	return out
}

// CheckMapping validates the account mapping of every subsidiary against the holding.
func (s *Service) CheckMapping(ctx context.Context, params CheckParams) (MappingReport, error) {
	if err := s.ready(); err != nil {
		return MappingReport{}, err
	}
	if params.HoldingID <= 0 {
		return MappingReport{}, fmt.Errorf("%w: holding id is required", ErrInvalidParams)
	}
	scope, err := s.loadScope(ctx, params.HoldingID, params.SubsidiaryIDs)
	if err != nil {
		return MappingReport{}, err
	}
	return s.checkScope(ctx, scope)
}

func (s *Service) checkScope(ctx context.Context, scope *runScope) (MappingReport, error) {
	report := MappingReport{Holding: scope.holding}
	for _, sub := range scope.subsidiaries {
		accounts := scope.accounts[sub.ID]
		targets, err := s.foreignTargets(ctx, scope, accounts)
		if err != nil {
			return MappingReport{}, err
		}
		defects := scope.index(sub.ID).check(scope.holding, accounts, targets)
		if len(defects) > 0 {
			report.Subsidiaries = append(report.Subsidiaries, SubsidiaryDefects{Company: sub, Accounts: defects})
		}
	}
	return report, nil
}

// foreignTargets loads consolidation accounts referenced by accounts but not owned by the holding.
func (s *Service) foreignTargets(ctx context.Context, scope *runScope, accounts []Account) (map[int64]Account, error) {
	var ids []int64
	for _, acc := range accounts {
		if acc.ConsolidationAccountID == nil {
			continue
		}
		if _, ok := scope.holdingByID[*acc.ConsolidationAccountID]; ok {
			continue
		}
		ids = append(ids, *acc.ConsolidationAccountID)
	}
	targets := make(map[int64]Account, len(ids))
	if len(ids) == 0 {
		return targets, nil
	}
	found, err := s.repo.AccountsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("consol: load consolidation accounts: %w", err)
	}
	for _, acc := range found {
		targets[acc.ID] = acc
	}
	return targets, nil
}

func sortAccounts(accounts []Account) {
	sort.SliceStable(accounts, func(i, j int) bool {
		if accounts[i].Code == accounts[j].Code {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].Code < accounts[j].Code
	})
}
