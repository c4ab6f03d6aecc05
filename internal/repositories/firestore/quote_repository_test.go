package firestore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/homequote/api/internal/domain"
)

func sampleQuote() domain.Quote {
	created := time.Date(2026, 2, 3, 4, 5, 6, 789, time.UTC)
	return domain.Quote{
		ID:             "qt_01hx",
		OwnerID:        "user-1",
		BuyerFirstName: "Ada",
		BuyerLastName:  "Lovelace",
		State:          "CA",
		FlatCostCoverages: domain.FlatCoverageSelection{
			Tier:        domain.CoverageTierPremium,
			PetCoverage: true,
		},
		PercentageCostCoverages: domain.PercentageCoverageSelection{FloodCoverage: true},
		MonthlyCost: domain.QuoteCost{
			Subtotal: decimal.RequireFromString("61.2"),
			Taxes:    decimal.RequireFromString("0.61"),
			Total:    decimal.RequireFromString("61.81"),
		},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
	}
}

func TestQuoteDocumentStoresFixedPointStrings(t *testing.T) {
	doc := encodeQuoteDocument(sampleQuote())

	if doc.MonthlySubtotal != "61.20" || doc.MonthlyTaxes != "0.61" || doc.MonthlyTotal != "61.81" {
		t.Fatalf("unexpected stored amounts: %s %s %s", doc.MonthlySubtotal, doc.MonthlyTaxes, doc.MonthlyTotal)
	}
	if doc.FlatCostCoverages.TypeCoverage != "Premium" || !doc.FlatCostCoverages.PetCoverage {
		t.Fatalf("unexpected flat coverages: %+v", doc.FlatCostCoverages)
	}
	if doc.OwnerUID != "user-1" {
		t.Fatalf("expected owner stored, got %q", doc.OwnerUID)
	}
}

func TestQuoteDocumentToDomainRestoresQuote(t *testing.T) {
	original := sampleQuote()

	restored, err := encodeQuoteDocument(original).toDomain(original.ID)
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}
	if restored.ID != original.ID || restored.State != "CA" || restored.FlatCostCoverages != original.FlatCostCoverages {
		t.Fatalf("unexpected quote: %+v", restored)
	}
	if !restored.MonthlyCost.Subtotal.Equal(original.MonthlyCost.Subtotal) {
		t.Fatalf("expected subtotal %s, got %s", original.MonthlyCost.Subtotal, restored.MonthlyCost.Subtotal)
	}
	if !restored.CreatedAt.Equal(original.CreatedAt) {
		t.Fatalf("expected createdAt %s, got %s", original.CreatedAt, restored.CreatedAt)
	}
}

func TestQuoteDocumentToDomainRejectsCorruptAmount(t *testing.T) {
	doc := encodeQuoteDocument(sampleQuote())
	doc.MonthlyTotal = "sixty"

	if _, err := doc.toDomain("qt_bad"); err == nil {
		t.Fatalf("expected decode error for corrupt amount")
	}
}

func TestNewQuoteRepositoryRequiresProvider(t *testing.T) {
	if _, err := NewQuoteRepository(nil); err == nil {
		t.Fatalf("expected error for nil provider")
	}
}
