package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskConsolidateRun is the task type running a consolidation.
	TaskConsolidateRun = "consol:run"

	dateLayout = "2006-01-02"
)

// ConsolidateRunPayload describes a consolidation run. Empty dates select the calendar month before
// the one the job executes in.
type ConsolidateRunPayload struct {
	HoldingID     int64   `json:"holding_id"`
	SubsidiaryIDs []int64 `json:"subsidiary_ids,omitempty"`
	DateFrom      string  `json:"date_from,omitempty"`
	DateTo        string  `json:"date_to,omitempty"`
	TargetMove    string  `json:"target_move,omitempty"`
	JournalID     int64   `json:"journal_id,omitempty"`
}

// PayloadFromParams converts run parameters into a task payload.
func PayloadFromParams(p consol.RunParams) ConsolidateRunPayload {
	payload := ConsolidateRunPayload{
		HoldingID:     p.HoldingID,
		SubsidiaryIDs: p.SubsidiaryIDs,
		TargetMove:    string(p.TargetMove),
		JournalID:     p.JournalID,
	}
	if !p.DateFrom.IsZero() {
		payload.DateFrom = p.DateFrom.Format(dateLayout)
	}
	if !p.DateTo.IsZero() {
		payload.DateTo = p.DateTo.Format(dateLayout)
	}
	return payload
}

// Params resolves the payload into run parameters relative to now.
func (p ConsolidateRunPayload) Params(now time.Time) (consol.RunParams, error) {
	if p.HoldingID <= 0 {
		return consol.RunParams{}, fmt.Errorf("holding id must be positive")
	}
	params := consol.RunParams{
		HoldingID:     p.HoldingID,
		SubsidiaryIDs: p.SubsidiaryIDs,
		TargetMove:    consol.TargetMove(p.TargetMove),
		JournalID:     p.JournalID,
	}
	if params.TargetMove == "" {
		params.TargetMove = consol.TargetMovePosted
	}
	if !params.TargetMove.Valid() {
		return consol.RunParams{}, fmt.Errorf("unsupported target move %q", p.TargetMove)
	}
	if p.DateFrom == "" && p.DateTo == "" {
		params.DateFrom, params.DateTo = PreviousMonth(now)
		return params, nil
	}
	var err error
	if params.DateFrom, err = time.Parse(dateLayout, p.DateFrom); err != nil {
		return consol.RunParams{}, fmt.Errorf("invalid date_from: %w", err)
	}
	if params.DateTo, err = time.Parse(dateLayout, p.DateTo); err != nil {
		return consol.RunParams{}, fmt.Errorf("invalid date_to: %w", err)
	}
	return params, nil
}

// PreviousMonth returns the first and last day of the month preceding now.
func PreviousMonth(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return firstOfMonth.AddDate(0, -1, 0), firstOfMonth.AddDate(0, 0, -1)
}

// NewConsolidateRunTask constructs an Asynq task. Runs are never retried automatically.
func NewConsolidateRunTask(payload ConsolidateRunPayload, queue string) (*asynq.Task, error) {
	if queue == "" {
		queue = QueueDefault
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConsolidateRun, data, asynq.Queue(queue), asynq.MaxRetry(0)), nil
}
