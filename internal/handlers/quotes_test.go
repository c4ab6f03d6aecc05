package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/homequote/api/internal/domain"
	"github.com/homequote/api/internal/platform/auth"
	"github.com/homequote/api/internal/platform/config"
	"github.com/homequote/api/internal/platform/pagination"
	"github.com/homequote/api/internal/services"
)

type stubQuoteService struct {
	createFunc            func(context.Context, services.CreateQuoteCommand) (services.Quote, error)
	getFunc               func(context.Context, string, string) (services.Quote, error)
	listFunc              func(context.Context, services.QuoteListFilter) (domain.CursorPage[services.Quote], error)
	replaceFunc           func(context.Context, services.ReplaceQuoteCommand) (services.Quote, error)
	patchFunc             func(context.Context, services.PatchQuoteCommand) (services.Quote, error)
	deleteFunc            func(context.Context, string, string) error
	estimateFunc          func(context.Context, services.EstimateQuoteCommand) (services.QuoteCost, error)
	listJurisdictionsFunc func(context.Context) []services.JurisdictionRates
}

func (s *stubQuoteService) CreateQuote(ctx context.Context, cmd services.CreateQuoteCommand) (services.Quote, error) {
	if s.createFunc == nil {
		return services.Quote{}, errors.New("unexpected CreateQuote call")
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubQuoteService) GetQuote(ctx context.Context, ownerID, quoteID string) (services.Quote, error) {
	if s.getFunc == nil {
		return services.Quote{}, errors.New("unexpected GetQuote call")
	}
	return s.getFunc(ctx, ownerID, quoteID)
}

func (s *stubQuoteService) ListQuotes(ctx context.Context, filter services.QuoteListFilter) (domain.CursorPage[services.Quote], error) {
	if s.listFunc == nil {
		return domain.CursorPage[services.Quote]{}, errors.New("unexpected ListQuotes call")
	}
	return s.listFunc(ctx, filter)
}

func (s *stubQuoteService) ReplaceQuote(ctx context.Context, cmd services.ReplaceQuoteCommand) (services.Quote, error) {
	if s.replaceFunc == nil {
		return services.Quote{}, errors.New("unexpected ReplaceQuote call")
	}
	return s.replaceFunc(ctx, cmd)
}

func (s *stubQuoteService) PatchQuote(ctx context.Context, cmd services.PatchQuoteCommand) (services.Quote, error) {
	if s.patchFunc == nil {
		return services.Quote{}, errors.New("unexpected PatchQuote call")
	}
	return s.patchFunc(ctx, cmd)
}

func (s *stubQuoteService) DeleteQuote(ctx context.Context, ownerID, quoteID string) error {
	if s.deleteFunc == nil {
		return errors.New("unexpected DeleteQuote call")
	}
	return s.deleteFunc(ctx, ownerID, quoteID)
}

func (s *stubQuoteService) EstimateQuote(ctx context.Context, cmd services.EstimateQuoteCommand) (services.QuoteCost, error) {
	if s.estimateFunc == nil {
		return services.QuoteCost{}, errors.New("unexpected EstimateQuote call")
	}
	return s.estimateFunc(ctx, cmd)
}

func (s *stubQuoteService) ListJurisdictions(ctx context.Context) []services.JurisdictionRates {
	if s.listJurisdictionsFunc == nil {
		return nil
	}
	return s.listJurisdictionsFunc(ctx)
}

var _ services.QuoteService = (*stubQuoteService)(nil)

func defaultJurisdictions(t *testing.T) []services.JurisdictionRates {
	t.Helper()
	engine, err := services.NewQuotePricingEngine(config.DefaultCoverageCostTables())
	if err != nil {
		t.Fatalf("NewQuotePricingEngine: %v", err)
	}
	return engine.Jurisdictions()
}

func sampleQuote() services.Quote {
	created := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	return services.Quote{
		ID:             "qt_01hxquote0000000000000000",
		OwnerID:        "user-1",
		BuyerFirstName: "Ada",
		BuyerLastName:  "Lovelace",
		State:          "CA",
		FlatCostCoverages: services.FlatCoverageSelection{
			Tier:        domain.CoverageTierPremium,
			PetCoverage: true,
		},
		PercentageCostCoverages: services.PercentageCoverageSelection{FloodCoverage: true},
		MonthlyCost: services.QuoteCost{
			Subtotal: decimal.RequireFromString("61.2"),
			Taxes:    decimal.RequireFromString("0.61"),
			Total:    decimal.RequireFromString("61.81"),
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

const fullQuoteBody = `{
	"buyer_first_name": "Ada",
	"buyer_last_name": "Lovelace",
	"state": "ca",
	"flat_cost_coverages": {"type_coverage": "Premium", "pet_coverage": true},
	"percentage_cost_coverages": {"flood_coverage": true},
	"user": "someone-else"
}`

func serveQuotes(t *testing.T, svc services.QuoteService, method, path, body, uid string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
	}

	rr := httptest.NewRecorder()
	router := chi.NewRouter()
	router.Route("/quotes", NewQuoteHandlers(nil, svc).Routes)
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON response: %v (%s)", err, rr.Body.String())
	}
	return body
}

func TestQuoteHandlersCreate(t *testing.T) {
	var captured services.CreateQuoteCommand
	svc := &stubQuoteService{
		createFunc: func(_ context.Context, cmd services.CreateQuoteCommand) (services.Quote, error) {
			captured = cmd
			return sampleQuote(), nil
		},
	}

	rr := serveQuotes(t, svc, http.MethodPost, "/quotes", fullQuoteBody, "user-1")

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Location"); got != "/quotes/qt_01hxquote0000000000000000" {
		t.Fatalf("unexpected location %q", got)
	}
	if captured.OwnerID != "user-1" {
		t.Fatalf("expected owner from identity, got %q", captured.OwnerID)
	}
	if captured.Input.State != "ca" || captured.Input.FlatCostCoverages.Tier != domain.CoverageTierPremium {
		t.Fatalf("unexpected input: %+v", captured.Input)
	}
	if !captured.Input.FlatCostCoverages.PetCoverage || !captured.Input.PercentageCostCoverages.FloodCoverage {
		t.Fatalf("expected coverages to be forwarded: %+v", captured.Input)
	}

	body := decodeBody(t, rr)
	if body["monthly_subtotal"] != "61.20" || body["monthly_taxes"] != "0.61" || body["monthly_total"] != "61.81" {
		t.Fatalf("expected fixed two-place money strings, got %v %v %v", body["monthly_subtotal"], body["monthly_taxes"], body["monthly_total"])
	}
	flat, ok := body["flat_cost_coverages"].(map[string]any)
	if !ok || flat["type_coverage"] != "Premium" || flat["pet_coverage"] != true {
		t.Fatalf("unexpected flat coverages %v", body["flat_cost_coverages"])
	}
	if _, leaked := body["owner_uid"]; leaked {
		t.Fatalf("owner must not be exposed")
	}
}

func TestQuoteHandlersCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "empty body", body: "", status: http.StatusBadRequest, code: "invalid_request"},
		{name: "malformed json", body: `{"buyer_first_name":`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "missing last name", body: `{"buyer_first_name":"Ada","state":"CA","flat_cost_coverages":{"type_coverage":"Basic","pet_coverage":false},"percentage_cost_coverages":{"flood_coverage":false}}`, status: http.StatusBadRequest, code: "invalid_quote"},
		{name: "missing state", body: `{"buyer_first_name":"Ada","buyer_last_name":"L","flat_cost_coverages":{"type_coverage":"Basic","pet_coverage":false},"percentage_cost_coverages":{"flood_coverage":false}}`, status: http.StatusBadRequest, code: "invalid_quote"},
		{name: "missing pet coverage", body: `{"buyer_first_name":"Ada","buyer_last_name":"L","state":"CA","flat_cost_coverages":{"type_coverage":"Basic"},"percentage_cost_coverages":{"flood_coverage":false}}`, status: http.StatusBadRequest, code: "invalid_quote"},
		{name: "missing percentage coverages", body: `{"buyer_first_name":"Ada","buyer_last_name":"L","state":"CA","flat_cost_coverages":{"type_coverage":"Basic","pet_coverage":false}}`, status: http.StatusBadRequest, code: "invalid_quote"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := serveQuotes(t, &stubQuoteService{}, http.MethodPost, "/quotes", tc.body, "user-1")
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if code := decodeBody(t, rr)["error"]; code != tc.code {
				t.Fatalf("expected error %s, got %v", tc.code, code)
			}
		})
	}
}

func TestQuoteHandlersValidationNamesField(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		err   error
		field string
	}{
		{
			name:  "missing state in payload",
			body:  `{"buyer_first_name":"Ada","buyer_last_name":"L","flat_cost_coverages":{"type_coverage":"Basic","pet_coverage":false},"percentage_cost_coverages":{"flood_coverage":false}}`,
			field: "state",
		},
		{
			name:  "missing pet coverage in payload",
			body:  `{"buyer_first_name":"Ada","buyer_last_name":"L","state":"CA","flat_cost_coverages":{"type_coverage":"Basic"},"percentage_cost_coverages":{"flood_coverage":false}}`,
			field: "flat_cost_coverages.pet_coverage",
		},
		{
			name:  "service rejects subtotal",
			body:  fullQuoteBody,
			err:   &services.QuoteFieldError{Field: "monthly_subtotal", Reason: "exceeds supported range"},
			field: "monthly_subtotal",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubQuoteService{
				createFunc: func(context.Context, services.CreateQuoteCommand) (services.Quote, error) {
					return services.Quote{}, tc.err
				},
			}
			rr := serveQuotes(t, svc, http.MethodPost, "/quotes", tc.body, "user-1")
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			payload := decodeBody(t, rr)
			if payload["error"] != "invalid_quote" {
				t.Fatalf("expected invalid_quote, got %v", payload["error"])
			}
			fields, ok := payload["fields"].([]any)
			if !ok || len(fields) != 1 {
				t.Fatalf("expected one field violation, got %v", payload["fields"])
			}
			violation, _ := fields[0].(map[string]any)
			if violation["field"] != tc.field || violation["reason"] == "" {
				t.Fatalf("expected violation on %s, got %v", tc.field, violation)
			}
		})
	}
}

func TestQuoteHandlersServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "unsupported jurisdiction", err: fmt.Errorf("%w: %q", services.ErrUnsupportedJurisdiction, "ZZ"), status: http.StatusBadRequest, code: "unsupported_jurisdiction"},
		{name: "invalid input", err: fmt.Errorf("%w: unknown coverage tier", services.ErrQuoteInvalidInput), status: http.StatusBadRequest, code: "invalid_quote"},
		{name: "not found", err: services.ErrQuoteNotFound, status: http.StatusNotFound, code: "quote_not_found"},
		{name: "conflict", err: services.ErrQuoteConflict, status: http.StatusConflict, code: "quote_conflict"},
		{name: "unavailable", err: services.ErrQuoteRepositoryUnavailable, status: http.StatusServiceUnavailable, code: "quote_repository_unavailable"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: "quote_error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubQuoteService{
				createFunc: func(context.Context, services.CreateQuoteCommand) (services.Quote, error) {
					return services.Quote{}, tc.err
				},
			}
			rr := serveQuotes(t, svc, http.MethodPost, "/quotes", fullQuoteBody, "user-1")
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if code := decodeBody(t, rr)["error"]; code != tc.code {
				t.Fatalf("expected error %s, got %v", tc.code, code)
			}
		})
	}
}

func TestQuoteHandlersRequireIdentity(t *testing.T) {
	rr := serveQuotes(t, &stubQuoteService{}, http.MethodGet, "/quotes", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if code := decodeBody(t, rr)["error"]; code != "unauthenticated" {
		t.Fatalf("expected unauthenticated, got %v", code)
	}
}

func TestQuoteHandlersServiceUnavailable(t *testing.T) {
	rr := serveQuotes(t, nil, http.MethodGet, "/quotes", "", "user-1")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestQuoteHandlersList(t *testing.T) {
	var captured services.QuoteListFilter
	svc := &stubQuoteService{
		listFunc: func(_ context.Context, filter services.QuoteListFilter) (domain.CursorPage[services.Quote], error) {
			captured = filter
			return domain.CursorPage[services.Quote]{Items: []services.Quote{sampleQuote()}, NextPageToken: "next"}, nil
		},
	}

	token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC), ID: "qt_1"})
	if err != nil {
		t.Fatalf("encode token: %v", err)
	}
	rr := serveQuotes(t, svc, http.MethodGet, "/quotes?pageSize=500&pageToken="+token, "", "user-1")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OwnerID != "user-1" || captured.Pagination.PageSize != pagination.DefaultMaxPageSize || captured.Pagination.PageToken != token {
		t.Fatalf("unexpected filter %+v", captured)
	}

	var body struct {
		Items []map[string]any `json:"items"`
		Next  string           `json:"next_page_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Next != "next" {
		t.Fatalf("unexpected list body %+v", body)
	}
	if _, ok := body.Items[0]["monthly_total"]; ok {
		t.Fatalf("list items should use the summary projection, got %v", body.Items[0])
	}
	if body.Items[0]["buyer_last_name"] != "Lovelace" {
		t.Fatalf("unexpected summary %v", body.Items[0])
	}
}

func TestQuoteHandlersListInvalidPagination(t *testing.T) {
	for _, query := range []string{"pageSize=abc", "pageSize=0", "pageToken=not-a-token!"} {
		t.Run(query, func(t *testing.T) {
			rr := serveQuotes(t, &stubQuoteService{}, http.MethodGet, "/quotes?"+query, "", "user-1")
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestQuoteHandlersGet(t *testing.T) {
	svc := &stubQuoteService{
		getFunc: func(_ context.Context, ownerID, quoteID string) (services.Quote, error) {
			if ownerID != "user-1" || quoteID != "qt_1" {
				return services.Quote{}, services.ErrQuoteNotFound
			}
			return sampleQuote(), nil
		},
	}

	rr := serveQuotes(t, svc, http.MethodGet, "/quotes/qt_1", "", "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if decodeBody(t, rr)["state"] != "CA" {
		t.Fatalf("expected detail projection with state")
	}

	rr = serveQuotes(t, svc, http.MethodGet, "/quotes/qt_1", "", "user-2")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another owner, got %d", rr.Code)
	}
}

func TestQuoteHandlersReplaceRequiresFullPayload(t *testing.T) {
	var captured services.ReplaceQuoteCommand
	svc := &stubQuoteService{
		replaceFunc: func(_ context.Context, cmd services.ReplaceQuoteCommand) (services.Quote, error) {
			captured = cmd
			return sampleQuote(), nil
		},
	}

	rr := serveQuotes(t, svc, http.MethodPut, "/quotes/qt_1", `{"buyer_first_name":"New"}`, "user-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for partial PUT, got %d", rr.Code)
	}

	rr = serveQuotes(t, svc, http.MethodPut, "/quotes/qt_1", fullQuoteBody, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.QuoteID != "qt_1" || captured.OwnerID != "user-1" || captured.Input.BuyerFirstName != "Ada" {
		t.Fatalf("unexpected replace command %+v", captured)
	}
}

func TestQuoteHandlersPatch(t *testing.T) {
	t.Run("names only", func(t *testing.T) {
		var captured services.PatchQuoteCommand
		svc := &stubQuoteService{
			patchFunc: func(_ context.Context, cmd services.PatchQuoteCommand) (services.Quote, error) {
				captured = cmd
				return sampleQuote(), nil
			},
		}
		rr := serveQuotes(t, svc, http.MethodPatch, "/quotes/qt_1", `{"buyer_first_name":"New","buyer_last_name":"Name","user":"other"}`, "user-1")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if captured.BuyerFirstName == nil || *captured.BuyerFirstName != "New" {
			t.Fatalf("expected first name patch, got %+v", captured)
		}
		if captured.State != nil || captured.FlatCostCoverages != nil || captured.PercentageCostCoverages != nil {
			t.Fatalf("expected untouched pricing fields, got %+v", captured)
		}
		if captured.OwnerID != "user-1" {
			t.Fatalf("owner must come from identity, got %q", captured.OwnerID)
		}
	})

	t.Run("complete coverage", func(t *testing.T) {
		var captured services.PatchQuoteCommand
		svc := &stubQuoteService{
			patchFunc: func(_ context.Context, cmd services.PatchQuoteCommand) (services.Quote, error) {
				captured = cmd
				return sampleQuote(), nil
			},
		}
		rr := serveQuotes(t, svc, http.MethodPatch, "/quotes/qt_1", `{"flat_cost_coverages":{"type_coverage":"Basic","pet_coverage":false}}`, "user-1")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if captured.FlatCostCoverages == nil || captured.FlatCostCoverages.Tier != domain.CoverageTierBasic {
			t.Fatalf("expected flat coverage patch, got %+v", captured.FlatCostCoverages)
		}
	})

	t.Run("incomplete coverage", func(t *testing.T) {
		rr := serveQuotes(t, &stubQuoteService{}, http.MethodPatch, "/quotes/qt_1", `{"flat_cost_coverages":{"pet_coverage":true}}`, "user-1")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if code := decodeBody(t, rr)["error"]; code != "invalid_quote" {
			t.Fatalf("expected invalid_quote, got %v", code)
		}
	})
}

func TestQuoteHandlersDelete(t *testing.T) {
	var deleted string
	svc := &stubQuoteService{
		deleteFunc: func(_ context.Context, ownerID, quoteID string) error {
			if ownerID != "user-1" {
				return services.ErrQuoteNotFound
			}
			deleted = quoteID
			return nil
		},
	}

	rr := serveQuotes(t, svc, http.MethodDelete, "/quotes/qt_9", "", "user-1")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if deleted != "qt_9" {
		t.Fatalf("expected qt_9 deleted, got %q", deleted)
	}

	rr = serveQuotes(t, svc, http.MethodDelete, "/quotes/qt_9", "", "user-2")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another owner, got %d", rr.Code)
	}
}

func TestQuoteHandlersEstimate(t *testing.T) {
	engine, err := services.NewQuotePricingEngine(config.DefaultCoverageCostTables())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	svc := &stubQuoteService{
		estimateFunc: func(_ context.Context, cmd services.EstimateQuoteCommand) (services.QuoteCost, error) {
			return engine.ComputeCost(cmd.State, cmd.FlatCostCoverages, cmd.PercentageCostCoverages)
		},
	}

	body := `{"state":"NY","flat_cost_coverages":{"type_coverage":"Premium","pet_coverage":true},"percentage_cost_coverages":{"flood_coverage":true}}`
	rr := serveQuotes(t, svc, http.MethodPost, "/quotes/estimate", body, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	if payload["monthly_total"] != "67.32" || payload["state"] != "NY" {
		t.Fatalf("unexpected estimate %v", payload)
	}

	rr = serveQuotes(t, svc, http.MethodPost, "/quotes/estimate", `{"state":"ZZ","flat_cost_coverages":{"type_coverage":"Basic","pet_coverage":false},"percentage_cost_coverages":{"flood_coverage":false}}`, "user-1")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported jurisdiction, got %d", rr.Code)
	}
	if code := decodeBody(t, rr)["error"]; code != "unsupported_jurisdiction" {
		t.Fatalf("expected unsupported_jurisdiction, got %v", code)
	}
}

func TestQuoteHandlersEstimateRateLimit(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := &stubQuoteService{
		estimateFunc: func(context.Context, services.EstimateQuoteCommand) (services.QuoteCost, error) {
			return services.QuoteCost{Subtotal: decimal.NewFromInt(20), Total: decimal.NewFromInt(20)}, nil
		},
	}
	router := chi.NewRouter()
	router.Route("/quotes", NewQuoteHandlers(nil, svc, WithEstimateRateLimit(2, time.Minute, clock)).Routes)

	body := `{"state":"CA","flat_cost_coverages":{"type_coverage":"Basic","pet_coverage":false},"percentage_cost_coverages":{"flood_coverage":false}}`
	var last *httptest.ResponseRecorder
	send := func(uid string) int {
		req := httptest.NewRequest(http.MethodPost, "/quotes/estimate", bytes.NewReader([]byte(body)))
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
		return last.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("user-1"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	now = now.Add(20 * time.Second)
	if code := send("user-1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the window is exhausted, got %d", code)
	}
	if got := last.Header().Get("Retry-After"); got != "40" {
		t.Fatalf("expected Retry-After 40, got %q", got)
	}
	if code := send("user-2"); code != http.StatusOK {
		t.Fatalf("expected other callers to be unaffected, got %d", code)
	}

	now = now.Add(40 * time.Second)
	if code := send("user-1"); code != http.StatusOK {
		t.Fatalf("expected window reset, got %d", code)
	}
}
