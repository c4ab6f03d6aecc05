package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/homequote/api/internal/domain"
	"github.com/homequote/api/internal/platform/httpx"
	"github.com/homequote/api/internal/services"
)

const jurisdictionCacheControl = "public, max-age=300"

// PublicHandlers serves unauthenticated endpoints.
type PublicHandlers struct {
	quotes services.QuoteService
}

// NewPublicHandlers constructs the public handlers.
func NewPublicHandlers(quotes services.QuoteService) *PublicHandlers {
	return &PublicHandlers{quotes: quotes}
}

// Routes wires the /public endpoints onto the provided router.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/jurisdictions", h.listJurisdictions)
}

type jurisdictionPayload struct {
	Code            string            `json:"code"`
	TypeCoverage    map[string]string `json:"type_coverage"`
	PetCoverage     string            `json:"pet_coverage"`
	PercentageRates map[string]string `json:"percentage_rates"`
	TaxRate         string            `json:"tax_rate"`
}

type jurisdictionListPayload struct {
	Items []jurisdictionPayload `json:"items"`
}

func (h *PublicHandlers) listJurisdictions(w http.ResponseWriter, r *http.Request) {
	if h.quotes == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("quote_service_unavailable", "quote service is unavailable", http.StatusServiceUnavailable))
		return
	}

	rates := h.quotes.ListJurisdictions(r.Context())
	payload := jurisdictionListPayload{Items: make([]jurisdictionPayload, 0, len(rates))}
	for _, rate := range rates {
		payload.Items = append(payload.Items, buildJurisdictionPayload(rate))
	}

	w.Header().Set("Cache-Control", jurisdictionCacheControl)
	writeJSONResponse(w, http.StatusOK, payload)
}

// Rates are percentages rendered at full precision, so "2" under flood means two percent of the subtotal.
func buildJurisdictionPayload(rate services.JurisdictionRates) jurisdictionPayload {
	payload := jurisdictionPayload{
		Code:            rate.Code,
		TypeCoverage:    make(map[string]string, len(rate.Table.FlatTypeCost)),
		PetCoverage:     rate.Table.PetCoverageCost.StringFixed(2),
		PercentageRates: make(map[string]string, len(rate.Table.PercentageCoverageRate)),
		TaxRate:         rate.Table.TaxRate.String(),
	}
	for _, tier := range domain.CoverageTiers() {
		if cost, ok := rate.Table.FlatTypeCost[tier]; ok {
			payload.TypeCoverage[string(tier)] = cost.StringFixed(2)
		}
	}
	for _, coverage := range domain.PercentageCoverages() {
		if pct, ok := rate.Table.PercentageCoverageRate[coverage]; ok {
			payload.PercentageRates[string(coverage)] = pct.String()
		}
	}
	return payload
}
