package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/homequote/api/internal/domain"
	"github.com/homequote/api/internal/services"
)

func TestPublicHandlersListJurisdictions(t *testing.T) {
	svc := &stubQuoteService{
		listJurisdictionsFunc: func(context.Context) []services.JurisdictionRates {
			return defaultJurisdictions(t)
		},
	}

	rr := httptest.NewRecorder()
	router := chi.NewRouter()
	router.Route("/", NewPublicHandlers(svc).Routes)
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jurisdictions", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Cache-Control"); got != jurisdictionCacheControl {
		t.Fatalf("unexpected cache control %q", got)
	}

	var body jurisdictionListPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 3 {
		t.Fatalf("expected 3 jurisdictions, got %d", len(body.Items))
	}
	codes := []string{body.Items[0].Code, body.Items[1].Code, body.Items[2].Code}
	if codes[0] != "CA" || codes[1] != "NY" || codes[2] != "TX" {
		t.Fatalf("expected sorted codes, got %v", codes)
	}
	tx := body.Items[2]
	if tx.TypeCoverage["Basic"] != "20.00" || tx.TypeCoverage["Premium"] != "40.00" {
		t.Fatalf("unexpected TX tiers %v", tx.TypeCoverage)
	}
	if tx.PercentageRates["flood"] != "50" || tx.TaxRate != "0.5" || tx.PetCoverage != "20.00" {
		t.Fatalf("unexpected TX rates %+v", tx)
	}
}

func TestBuildJurisdictionPayloadKeepsRatePrecision(t *testing.T) {
	payload := buildJurisdictionPayload(services.JurisdictionRates{
		Code: "OR",
		Table: domain.CoverageCostTable{
			FlatTypeCost: map[domain.CoverageTier]decimal.Decimal{
				domain.CoverageTierBasic:   decimal.RequireFromString("19.5"),
				domain.CoverageTierPremium: decimal.NewFromInt(40),
			},
			PetCoverageCost: decimal.NewFromInt(20),
			PercentageCoverageRate: map[domain.PercentageCoverage]decimal.Decimal{
				domain.PercentageCoverageFlood: decimal.RequireFromString("2.375"),
			},
			TaxRate: decimal.RequireFromString("0.125"),
		},
	})

	if payload.TaxRate != "0.125" || payload.PercentageRates["flood"] != "2.375" {
		t.Fatalf("expected rates at full precision, got tax %s flood %s", payload.TaxRate, payload.PercentageRates["flood"])
	}
	if payload.TypeCoverage["Basic"] != "19.50" || payload.PetCoverage != "20.00" {
		t.Fatalf("expected money rendered to cents, got %+v", payload)
	}
}

func TestPublicHandlersServiceUnavailable(t *testing.T) {
	rr := httptest.NewRecorder()
	router := chi.NewRouter()
	router.Route("/", NewPublicHandlers(nil).Routes)
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jurisdictions", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
