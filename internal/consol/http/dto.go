package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
)

const dateLayout = "2006-01-02"

type checkRequest struct {
	HoldingID     int64   `json:"holding_id" validate:"required,gt=0"`
	SubsidiaryIDs []int64 `json:"subsidiary_ids" validate:"omitempty,dive,gt=0"`
}

func (r checkRequest) params() consol.CheckParams {
	return consol.CheckParams{HoldingID: r.HoldingID, SubsidiaryIDs: r.SubsidiaryIDs}
}

type runRequest struct {
	HoldingID     int64   `json:"holding_id" validate:"required,gt=0"`
	SubsidiaryIDs []int64 `json:"subsidiary_ids" validate:"omitempty,dive,gt=0"`
	DateFrom      string  `json:"date_from" validate:"required,datetime=2006-01-02"`
	DateTo        string  `json:"date_to" validate:"required,datetime=2006-01-02"`
	TargetMove    string  `json:"target_move" validate:"omitempty,oneof=posted all"`
	JournalID     int64   `json:"journal_id" validate:"omitempty,gt=0"`
}

// params assumes the request passed validation.
func (r runRequest) params() consol.RunParams {
	from, _ := time.Parse(dateLayout, r.DateFrom)
	to, _ := time.Parse(dateLayout, r.DateTo)
	target := consol.TargetMove(r.TargetMove)
	if target == "" {
		target = consol.TargetMovePosted
	}
	return consol.RunParams{
		HoldingID:     r.HoldingID,
		SubsidiaryIDs: r.SubsidiaryIDs,
		DateFrom:      from,
		DateTo:        to,
		TargetMove:    target,
		JournalID:     r.JournalID,
	}
}

type fxCheckRequest struct {
	HoldingID     int64   `json:"holding_id" validate:"required,gt=0"`
	SubsidiaryIDs []int64 `json:"subsidiary_ids" validate:"omitempty,dive,gt=0"`
	AsOf          string  `json:"as_of" validate:"required,datetime=2006-01-02"`
}

type settingsRequest struct {
	ConsolidationPercentage decimal.Decimal `json:"consolidation_percentage"`
	DiffAccountID           *int64          `json:"diff_account_id" validate:"omitempty,gt=0"`
	DefaultJournalID        *int64          `json:"default_journal_id" validate:"omitempty,gt=0"`
}

type accountDefectsDTO struct {
	ID      int64    `json:"id"`
	Code    string   `json:"code"`
	Name    string   `json:"name"`
	Defects []string `json:"defects"`
}

type subsidiaryDefectsDTO struct {
	CompanyID int64               `json:"company_id"`
	Company   string              `json:"company"`
	Accounts  []accountDefectsDTO `json:"accounts"`
}

type checkResponse struct {
	OK           bool                   `json:"ok"`
	Message      string                 `json:"message"`
	Subsidiaries []subsidiaryDefectsDTO `json:"subsidiaries"`
}

func newCheckResponse(report consol.MappingReport) checkResponse {
	resp := checkResponse{OK: report.OK(), Message: report.Render(), Subsidiaries: subsidiaryDefects(report)}
	return resp
}

func subsidiaryDefects(report consol.MappingReport) []subsidiaryDefectsDTO {
	out := make([]subsidiaryDefectsDTO, 0, len(report.Subsidiaries))
	for _, sub := range report.Subsidiaries {
		dto := subsidiaryDefectsDTO{CompanyID: sub.Company.ID, Company: sub.Company.Name}
		for _, acc := range sub.Accounts {
			dto.Accounts = append(dto.Accounts, accountDefectsDTO{
				ID:      acc.Account.ID,
				Code:    acc.Account.Code,
				Name:    acc.Account.Name,
				Defects: acc.Defects,
			})
		}
		out = append(out, dto)
	}
	return out
}

type lineDTO struct {
	ID             int64           `json:"id"`
	AccountID      int64           `json:"account_id"`
	Name           string          `json:"name"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	Currency       string          `json:"currency,omitempty"`
	AmountCurrency decimal.Decimal `json:"amount_currency"`
}

type moveDTO struct {
	ID           int64     `json:"id"`
	SubsidiaryID int64     `json:"subsidiary_id"`
	JournalID    int64     `json:"journal_id"`
	Date         string    `json:"date"`
	Ref          string    `json:"ref"`
	State        string    `json:"state"`
	Lines        []lineDTO `json:"lines"`
}

type runResponse struct {
	RunID   uuid.UUID `json:"run_id"`
	MoveIDs []int64   `json:"move_ids"`
	Moves   []moveDTO `json:"moves"`
}

func newRunResponse(res consol.RunResult) runResponse {
	resp := runResponse{RunID: res.RunID, MoveIDs: res.MoveIDs(), Moves: make([]moveDTO, 0, len(res.Moves))}
	for _, m := range res.Moves {
		dto := moveDTO{
			ID:        m.ID,
			JournalID: m.JournalID,
			Date:      m.Date.Format(dateLayout),
			Ref:       m.Ref,
			State:     string(m.State),
		}
		if m.ConsolidatedFromCompanyID != nil {
			dto.SubsidiaryID = *m.ConsolidatedFromCompanyID
		}
		for _, l := range m.Lines {
			dto.Lines = append(dto.Lines, lineDTO{
				ID:             l.ID,
				AccountID:      l.AccountID,
				Name:           l.Name,
				Debit:          l.Debit,
				Credit:         l.Credit,
				Currency:       l.Currency,
				AmountCurrency: l.AmountCurrency,
			})
		}
		resp.Moves = append(resp.Moves, dto)
	}
	return resp
}

type enqueueResponse struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}

type gapDTO struct {
	Pair    string      `json:"pair"`
	Methods []fx.Method `json:"methods"`
}

type fxCheckResponse struct {
	OK        bool                `json:"ok"`
	AsOf      string              `json:"as_of"`
	Checked   int                 `json:"checked"`
	Gaps      []gapDTO            `json:"gaps"`
	Available map[string]fx.Quote `json:"available"`
}
