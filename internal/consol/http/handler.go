package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
	"github.com/odyssey-erp/account-consolidation/internal/platform/httpx"
)

// Service is the consolidation behaviour exposed over HTTP.
type Service interface {
	CheckMapping(ctx context.Context, params consol.CheckParams) (consol.MappingReport, error)
	Run(ctx context.Context, params consol.RunParams) (consol.RunResult, error)
	UpdateCompanySettings(ctx context.Context, settings consol.CompanySettings) (consol.Company, error)
	Currencies(ctx context.Context, params consol.CheckParams) (string, []string, error)
}

// Enqueuer schedules runs on the background worker.
type Enqueuer interface {
	EnqueueRun(ctx context.Context, params consol.RunParams) (taskID, queue string, err error)
}

// Handler wires consolidation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	enqueuer  Enqueuer
	quotes    fx.QuoteProvider
	validate  *validator.Validate
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the consolidation handler. enqueuer and quotes may be nil; the endpoints
// depending on them then answer 503.
func NewHandler(logger *slog.Logger, service Service, enqueuer Enqueuer, quotes fx.QuoteProvider) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("consol handler: service required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	limiter := httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{
		logger:    logger,
		service:   service,
		enqueuer:  enqueuer,
		quotes:    quotes,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		rateLimit: limiter,
	}, nil
}

// MountRoutes registers consolidation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/finance/consol/check", h.handleCheck)
	r.Post("/finance/consol/fx/check", h.handleFxCheck)
	r.Put("/finance/consol/companies/{id}/settings", h.handleSettings)
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/finance/consol/run", h.handleRun)
		r.Post("/finance/consol/run/async", h.handleEnqueue)
	})
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	if err := h.validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.CheckMapping(r.Context(), req.params())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newCheckResponse(report))
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	params := req.params()
	res, err, shared := singleflightRun(r.Context(), runKey(params), func(ctx context.Context) (consol.RunResult, error) {
		return h.service.Run(ctx, params)
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if shared {
		h.logger.Info("consolidation run shared with concurrent request", slog.String("run_id", res.RunID.String()))
	}
	httpx.JSON(w, http.StatusCreated, newRunResponse(res))
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.RespondError(w, fmt.Errorf("%w: job queue not configured", httpx.ErrUnavailable))
		return
	}
	var req runRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	taskID, queue, err := h.enqueuer.EnqueueRun(r.Context(), req.params())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, enqueueResponse{TaskID: taskID, Queue: queue})
}

func (h *Handler) handleFxCheck(w http.ResponseWriter, r *http.Request) {
	if h.quotes == nil {
		httpx.RespondError(w, fmt.Errorf("%w: fx quotes not configured", httpx.ErrUnavailable))
		return
	}
	var req fxCheckRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, _ := time.Parse(dateLayout, req.AsOf)
	holdingCur, currencies, err := h.service.Currencies(r.Context(), consol.CheckParams{HoldingID: req.HoldingID, SubsidiaryIDs: req.SubsidiaryIDs})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	res, err := fx.Validate(r.Context(), h.quotes, asOf, fx.RequirementsFor(holdingCur, currencies))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := fxCheckResponse{
		OK:        res.OK(),
		AsOf:      req.AsOf,
		Checked:   res.Checked,
		Gaps:      make([]gapDTO, 0, len(res.Gaps)),
		Available: res.Available,
	}
	for _, gap := range res.Gaps {
		resp.Gaps = append(resp.Gaps, gapDTO{Pair: gap.Pair, Methods: gap.Methods})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	companyID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || companyID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: company id", httpx.ErrMalformed))
		return
	}
	var req settingsRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	_, err = h.service.UpdateCompanySettings(r.Context(), consol.CompanySettings{
		CompanyID:               companyID,
		ConsolidationPercentage: req.ConsolidationPercentage,
		DiffAccountID:           req.DiffAccountID,
		DefaultJournalID:        req.DefaultJournalID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondError maps the consolidation error taxonomy onto problem responses.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var mappingErr *consol.MappingError
	var missingRate *fx.MissingRateError
	switch {
	case errors.As(err, &mappingErr):
		httpx.ProblemWith(w, http.StatusUnprocessableEntity, "Invalid Account Mapping", err.Error(), subsidiaryDefects(mappingErr.Report))
		return
	case errors.Is(err, consol.ErrCompanyNotFound), errors.Is(err, consol.ErrJournalNotFound), errors.Is(err, consol.ErrAccountNotFound):
		err = fmt.Errorf("%w: %w", httpx.ErrNotFound, err)
	case errors.Is(err, consol.ErrInvalidCompany):
		err = fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	case errors.Is(err, consol.ErrValidation), errors.Is(err, consol.ErrConfiguration), errors.As(err, &missingRate):
		err = fmt.Errorf("%w: %w", httpx.ErrUnprocessable, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w: %w", httpx.ErrUnavailable, err)
	default:
		h.logger.Error("consolidation request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
