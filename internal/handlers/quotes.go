package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/homequote/api/internal/domain"
	"github.com/homequote/api/internal/platform/auth"
	"github.com/homequote/api/internal/platform/httpx"
	"github.com/homequote/api/internal/platform/pagination"
	"github.com/homequote/api/internal/services"
)

const maxQuoteBodySize = 16 * 1024

// QuoteHandlers exposes the authenticated quote resource.
type QuoteHandlers struct {
	authn       *auth.Authenticator
	quotes      services.QuoteService
	middlewares []func(http.Handler) http.Handler
	estimates   callerLimiter
}

// QuoteHandlerOption customises QuoteHandlers.
type QuoteHandlerOption func(*QuoteHandlers)

// WithQuoteMiddlewares adds middleware that runs after authentication, such as idempotency.
func WithQuoteMiddlewares(mw ...func(http.Handler) http.Handler) QuoteHandlerOption {
	return func(h *QuoteHandlers) {
		h.middlewares = append(h.middlewares, mw...)
	}
}

// WithEstimateRateLimit caps how many estimates a single caller may request per window.
func WithEstimateRateLimit(limit int, window time.Duration, clock func() time.Time) QuoteHandlerOption {
	return func(h *QuoteHandlers) {
		h.estimates = newFixedWindowLimiter(limit, window, clock)
	}
}

// NewQuoteHandlers constructs handlers enforcing Firebase authentication before invoking the quote service.
func NewQuoteHandlers(authn *auth.Authenticator, quotes services.QuoteService, opts ...QuoteHandlerOption) *QuoteHandlers {
	h := &QuoteHandlers{authn: authn, quotes: quotes}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /quotes endpoints onto the provided router.
func (h *QuoteHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	for _, mw := range h.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.Get("/", h.listQuotes)
	r.Post("/", h.createQuote)
	r.Post("/estimate", h.estimateQuote)
	r.Route("/{quoteId}", func(r chi.Router) {
		r.Get("/", h.getQuote)
		r.Put("/", h.replaceQuote)
		r.Patch("/", h.patchQuote)
		r.Delete("/", h.deleteQuote)
	})
}

func (h *QuoteHandlers) listQuotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.begin(w, r)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	page, err := h.quotes.ListQuotes(ctx, services.QuoteListFilter{
		OwnerID:    identity.UID,
		Pagination: services.Pagination{PageSize: params.PageSize, PageToken: params.PageToken},
	})
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	payload := quoteListPayload{
		Items:         make([]quoteSummaryPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, quote := range page.Items {
		payload.Items = append(payload.Items, quoteSummaryPayload{
			ID:             quote.ID,
			BuyerFirstName: quote.BuyerFirstName,
			BuyerLastName:  quote.BuyerLastName,
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *QuoteHandlers) createQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.begin(w, r)
	if !ok {
		return
	}

	req, ok := readQuoteRequest(w, r)
	if !ok {
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	quote, err := h.quotes.CreateQuote(ctx, services.CreateQuoteCommand{OwnerID: identity.UID, Input: input})
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+quote.ID)
	writeJSONResponse(w, http.StatusCreated, buildQuotePayload(quote))
}

func (h *QuoteHandlers) getQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.begin(w, r)
	if !ok {
		return
	}
	quoteID, ok := quoteIDParam(w, r)
	if !ok {
		return
	}

	quote, err := h.quotes.GetQuote(ctx, identity.UID, quoteID)
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildQuotePayload(quote))
}

func (h *QuoteHandlers) replaceQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.begin(w, r)
	if !ok {
		return
	}
	quoteID, ok := quoteIDParam(w, r)
	if !ok {
		return
	}

	req, ok := readQuoteRequest(w, r)
	if !ok {
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	quote, err := h.quotes.ReplaceQuote(ctx, services.ReplaceQuoteCommand{
		OwnerID: identity.UID,
		QuoteID: quoteID,
		Input:   input,
	})
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildQuotePayload(quote))
}

func (h *QuoteHandlers) patchQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.begin(w, r)
	if !ok {
		return
	}
	quoteID, ok := quoteIDParam(w, r)
	if !ok {
		return
	}

	req, ok := readQuoteRequest(w, r)
	if !ok {
		return
	}
	cmd, err := req.toPatch(identity.UID, quoteID)
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	quote, err := h.quotes.PatchQuote(ctx, cmd)
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildQuotePayload(quote))
}

func (h *QuoteHandlers) deleteQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.begin(w, r)
	if !ok {
		return
	}
	quoteID, ok := quoteIDParam(w, r)
	if !ok {
		return
	}

	if err := h.quotes.DeleteQuote(ctx, identity.UID, quoteID); err != nil {
		writeQuoteError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QuoteHandlers) estimateQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.begin(w, r)
	if !ok {
		return
	}
	if h.estimates != nil {
		if allowed, wait := h.estimates.Allow(identity.UID); !allowed {
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many estimate requests", http.StatusTooManyRequests).WithRetryAfter(wait))
			return
		}
	}

	req, ok := readQuoteRequest(w, r)
	if !ok {
		return
	}
	cmd, err := req.toEstimate()
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	cost, err := h.quotes.EstimateQuote(ctx, cmd)
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, estimatePayload{
		State:           strings.ToUpper(strings.TrimSpace(cmd.State)),
		MonthlySubtotal: cost.Subtotal.StringFixed(2),
		MonthlyTaxes:    cost.Taxes.StringFixed(2),
		MonthlyTotal:    cost.Total.StringFixed(2),
	})
}

// begin checks the shared preconditions of every quote endpoint.
func (h *QuoteHandlers) begin(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_service_unavailable", "quote service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return requireIdentity(w, r)
}

func quoteIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	quoteID := strings.TrimSpace(chi.URLParam(r, "quoteId"))
	if quoteID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "quote id is required", http.StatusBadRequest))
		return "", false
	}
	return quoteID, true
}

func readQuoteRequest(w http.ResponseWriter, r *http.Request) (quoteRequest, bool) {
	body, err := readLimitedBody(r, maxQuoteBodySize)
	if err != nil {
		writeBodyError(r.Context(), w, err)
		return quoteRequest{}, false
	}
	var req quoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return quoteRequest{}, false
	}
	return req, true
}

// quoteRequest mirrors the writable quote fields. Unknown keys, including any attempt to set the
// owner, are ignored.
type quoteRequest struct {
	BuyerFirstName          *string                    `json:"buyer_first_name"`
	BuyerLastName           *string                    `json:"buyer_last_name"`
	State                   *string                    `json:"state"`
	FlatCostCoverages       *flatCoverageRequest       `json:"flat_cost_coverages"`
	PercentageCostCoverages *percentageCoverageRequest `json:"percentage_cost_coverages"`
}

type flatCoverageRequest struct {
	TypeCoverage *string `json:"type_coverage"`
	PetCoverage  *bool   `json:"pet_coverage"`
}

type percentageCoverageRequest struct {
	FloodCoverage *bool `json:"flood_coverage"`
}

func (req quoteRequest) toInput() (services.QuoteInput, error) {
	if req.BuyerFirstName == nil {
		return services.QuoteInput{}, missingField("buyer_first_name")
	}
	if req.BuyerLastName == nil {
		return services.QuoteInput{}, missingField("buyer_last_name")
	}
	selection, err := req.toEstimate()
	if err != nil {
		return services.QuoteInput{}, err
	}
	return services.QuoteInput{
		BuyerFirstName:          *req.BuyerFirstName,
		BuyerLastName:           *req.BuyerLastName,
		State:                   selection.State,
		FlatCostCoverages:       selection.FlatCostCoverages,
		PercentageCostCoverages: selection.PercentageCostCoverages,
	}, nil
}

func (req quoteRequest) toEstimate() (services.EstimateQuoteCommand, error) {
	if req.State == nil {
		return services.EstimateQuoteCommand{}, missingField("state")
	}
	if req.FlatCostCoverages == nil {
		return services.EstimateQuoteCommand{}, missingField("flat_cost_coverages")
	}
	if req.PercentageCostCoverages == nil {
		return services.EstimateQuoteCommand{}, missingField("percentage_cost_coverages")
	}
	flat, err := req.FlatCostCoverages.toSelection()
	if err != nil {
		return services.EstimateQuoteCommand{}, err
	}
	percentage, err := req.PercentageCostCoverages.toSelection()
	if err != nil {
		return services.EstimateQuoteCommand{}, err
	}
	return services.EstimateQuoteCommand{
		State:                   *req.State,
		FlatCostCoverages:       flat,
		PercentageCostCoverages: percentage,
	}, nil
}

func (req quoteRequest) toPatch(ownerID, quoteID string) (services.PatchQuoteCommand, error) {
	cmd := services.PatchQuoteCommand{
		OwnerID:        ownerID,
		QuoteID:        quoteID,
		BuyerFirstName: req.BuyerFirstName,
		BuyerLastName:  req.BuyerLastName,
		State:          req.State,
	}
	if req.FlatCostCoverages != nil {
		flat, err := req.FlatCostCoverages.toSelection()
		if err != nil {
			return services.PatchQuoteCommand{}, err
		}
		cmd.FlatCostCoverages = &flat
	}
	if req.PercentageCostCoverages != nil {
		percentage, err := req.PercentageCostCoverages.toSelection()
		if err != nil {
			return services.PatchQuoteCommand{}, err
		}
		cmd.PercentageCostCoverages = &percentage
	}
	return cmd, nil
}

func (c flatCoverageRequest) toSelection() (services.FlatCoverageSelection, error) {
	if c.TypeCoverage == nil {
		return services.FlatCoverageSelection{}, missingField("flat_cost_coverages.type_coverage")
	}
	if c.PetCoverage == nil {
		return services.FlatCoverageSelection{}, missingField("flat_cost_coverages.pet_coverage")
	}
	return services.FlatCoverageSelection{
		Tier:        domain.CoverageTier(strings.TrimSpace(*c.TypeCoverage)),
		PetCoverage: *c.PetCoverage,
	}, nil
}

func (c percentageCoverageRequest) toSelection() (services.PercentageCoverageSelection, error) {
	if c.FloodCoverage == nil {
		return services.PercentageCoverageSelection{}, missingField("percentage_cost_coverages.flood_coverage")
	}
	return services.PercentageCoverageSelection{FloodCoverage: *c.FloodCoverage}, nil
}

func missingField(name string) error {
	return &services.QuoteFieldError{Field: name, Reason: "is required"}
}

type quoteSummaryPayload struct {
	ID             string `json:"id"`
	BuyerFirstName string `json:"buyer_first_name"`
	BuyerLastName  string `json:"buyer_last_name"`
}

type quoteListPayload struct {
	Items         []quoteSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type flatCoveragePayload struct {
	TypeCoverage string `json:"type_coverage"`
	PetCoverage  bool   `json:"pet_coverage"`
}

type percentageCoveragePayload struct {
	FloodCoverage bool `json:"flood_coverage"`
}

type quotePayload struct {
	ID                      string                    `json:"id"`
	BuyerFirstName          string                    `json:"buyer_first_name"`
	BuyerLastName           string                    `json:"buyer_last_name"`
	State                   string                    `json:"state"`
	FlatCostCoverages       flatCoveragePayload       `json:"flat_cost_coverages"`
	PercentageCostCoverages percentageCoveragePayload `json:"percentage_cost_coverages"`
	MonthlySubtotal         string                    `json:"monthly_subtotal"`
	MonthlyTaxes            string                    `json:"monthly_taxes"`
	MonthlyTotal            string                    `json:"monthly_total"`
	CreatedAt               string                    `json:"created_at,omitempty"`
	UpdatedAt               string                    `json:"updated_at,omitempty"`
}

type estimatePayload struct {
	State           string `json:"state"`
	MonthlySubtotal string `json:"monthly_subtotal"`
	MonthlyTaxes    string `json:"monthly_taxes"`
	MonthlyTotal    string `json:"monthly_total"`
}

func buildQuotePayload(quote services.Quote) quotePayload {
	return quotePayload{
		ID:             quote.ID,
		BuyerFirstName: quote.BuyerFirstName,
		BuyerLastName:  quote.BuyerLastName,
		State:          quote.State,
		FlatCostCoverages: flatCoveragePayload{
			TypeCoverage: string(quote.FlatCostCoverages.Tier),
			PetCoverage:  quote.FlatCostCoverages.PetCoverage,
		},
		PercentageCostCoverages: percentageCoveragePayload{
			FloodCoverage: quote.PercentageCostCoverages.FloodCoverage,
		},
		MonthlySubtotal: quote.MonthlyCost.Subtotal.StringFixed(2),
		MonthlyTaxes:    quote.MonthlyCost.Taxes.StringFixed(2),
		MonthlyTotal:    quote.MonthlyCost.Total.StringFixed(2),
		CreatedAt:       formatTime(quote.CreatedAt),
		UpdatedAt:       formatTime(quote.UpdatedAt),
	}
}

func writeQuoteError(ctx context.Context, w http.ResponseWriter, err error) {
	var fieldErr *services.QuoteFieldError
	switch {
	case errors.As(err, &fieldErr):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_quote", fieldErr.Field+" "+fieldErr.Reason, http.StatusBadRequest).
			WithField(fieldErr.Field, fieldErr.Reason))
	case errors.Is(err, services.ErrUnsupportedJurisdiction):
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_jurisdiction", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrQuoteInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_quote", err.Error(), http.StatusBadRequest))
	case errors.Is(err, pagination.ErrInvalidPageSize):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_page_size", err.Error(), http.StatusBadRequest))
	case errors.Is(err, pagination.ErrInvalidPageToken):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_page_token", "page token is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrQuoteNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("quote_not_found", "quote not found", http.StatusNotFound))
	case errors.Is(err, services.ErrQuoteConflict):
		httpx.WriteError(ctx, w, httpx.NewError("quote_conflict", "quote was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrQuoteRepositoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("quote_repository_unavailable", "quote storage is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("quote_error", "failed to process quote", http.StatusInternalServerError))
	}
}
