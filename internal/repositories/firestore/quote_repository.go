package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/homequote/api/internal/domain"
	pfirestore "github.com/homequote/api/internal/platform/firestore"
	"github.com/homequote/api/internal/platform/pagination"
	"github.com/homequote/api/internal/repositories"
)

const quotesCollection = "quotes"

// QuoteRepository persists quotes in the top-level quotes collection.
type QuoteRepository struct {
	base *pfirestore.BaseRepository[quoteDocument]
}

var _ repositories.QuoteRepository = (*QuoteRepository)(nil)

// NewQuoteRepository constructs a Firestore-backed quote repository.
func NewQuoteRepository(provider *pfirestore.Provider) (*QuoteRepository, error) {
	if provider == nil {
		return nil, errors.New("quote repository requires firestore provider")
	}
	return &QuoteRepository{base: pfirestore.NewBaseRepository[quoteDocument](provider, quotesCollection)}, nil
}

// Insert stores a new quote and fails with a conflict when the id is already taken.
func (r *QuoteRepository) Insert(ctx context.Context, quote domain.Quote) error {
	return r.base.Create(ctx, quote.ID, encodeQuoteDocument(quote))
}

// Update reads the owner's quote, applies mutate and writes the result in one transaction so
// concurrent edits cannot overwrite each other. Identity and creation time are kept from the
// stored document. Errors returned by mutate are passed through unchanged.
func (r *QuoteRepository) Update(ctx context.Context, ownerID string, quoteID string, mutate repositories.QuoteMutation) (domain.Quote, error) {
	if mutate == nil {
		return domain.Quote{}, errors.New("quotes.update: mutate is required")
	}
	ref, err := r.base.DocumentRef(ctx, quoteID)
	if err != nil {
		return domain.Quote{}, err
	}

	var (
		updated   domain.Quote
		mutateErr error
	)
	err = r.base.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		mutateErr = nil
		stored, err := r.ownedSnapshot(tx, ref, ownerID)
		if err != nil {
			return err
		}
		current, err := stored.toDomain(quoteID)
		if err != nil {
			return err
		}
		next, err := mutate(current)
		if err != nil {
			mutateErr = err
			return err
		}
		next.ID = current.ID
		next.OwnerID = current.OwnerID
		next.CreatedAt = current.CreatedAt
		updated = next
		return tx.Set(ref, encodeQuoteDocument(next))
	})
	if mutateErr != nil {
		return domain.Quote{}, mutateErr
	}
	if err != nil {
		return domain.Quote{}, pfirestore.WrapError("quotes.update", err)
	}
	return updated, nil
}

// Delete removes a quote after confirming the stored owner matches.
func (r *QuoteRepository) Delete(ctx context.Context, ownerID string, quoteID string) error {
	ref, err := r.base.DocumentRef(ctx, quoteID)
	if err != nil {
		return err
	}
	err = r.base.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		if _, err := r.ownedSnapshot(tx, ref, ownerID); err != nil {
			return err
		}
		return tx.Delete(ref)
	})
	return pfirestore.WrapError("quotes.delete", err)
}

// FindByID loads a quote. Quotes owned by someone else are reported as not found.
func (r *QuoteRepository) FindByID(ctx context.Context, ownerID string, quoteID string) (domain.Quote, error) {
	doc, err := r.base.Get(ctx, quoteID)
	if err != nil {
		return domain.Quote{}, err
	}
	if doc.Data.OwnerUID != ownerID {
		return domain.Quote{}, pfirestore.NotFound("quotes.get", quoteID)
	}
	return doc.Data.toDomain(doc.ID)
}

// ListByOwner pages through an owner's quotes ordered by creation time, newest first.
func (r *QuoteRepository) ListByOwner(ctx context.Context, ownerID string, pager domain.Pagination) (domain.CursorPage[domain.Quote], error) {
	pageSize := pagination.ClampPageSize(pager.PageSize)

	after, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Quote]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("ownerUid", "==", ownerID).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if !after.IsZero() {
			q = q.StartAfter(after.CreatedAt, after.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Quote]{}, err
	}

	page := domain.CursorPage[domain.Quote]{Items: make([]domain.Quote, 0, min(len(docs), pageSize))}
	for i, doc := range docs {
		if i == pageSize {
			break
		}
		quote, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return domain.CursorPage[domain.Quote]{}, err
		}
		page.Items = append(page.Items, quote)
	}
	if len(docs) > pageSize {
		last := page.Items[len(page.Items)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Quote]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func (r *QuoteRepository) ownedSnapshot(tx *firestore.Transaction, ref *firestore.DocumentRef, ownerID string) (quoteDocument, error) {
	snapshot, err := tx.Get(ref)
	if err != nil {
		return quoteDocument{}, err
	}
	doc, err := pfirestore.Decode[quoteDocument](snapshot)
	if err != nil {
		return quoteDocument{}, err
	}
	if doc.Data.OwnerUID != ownerID {
		return quoteDocument{}, pfirestore.NotFound("quotes.owner", ref.ID)
	}
	return doc.Data, nil
}

type quoteDocument struct {
	OwnerUID                string                     `firestore:"ownerUid"`
	BuyerFirstName          string                     `firestore:"buyerFirstName"`
	BuyerLastName           string                     `firestore:"buyerLastName"`
	State                   string                     `firestore:"state"`
	FlatCostCoverages       flatCoverageDocument       `firestore:"flatCostCoverages"`
	PercentageCostCoverages percentageCoverageDocument `firestore:"percentageCostCoverages"`
	MonthlySubtotal         string                     `firestore:"monthlySubtotal"`
	MonthlyTaxes            string                     `firestore:"monthlyTaxes"`
	MonthlyTotal            string                     `firestore:"monthlyTotal"`
	CreatedAt               time.Time                  `firestore:"createdAt"`
	UpdatedAt               time.Time                  `firestore:"updatedAt"`
}

type flatCoverageDocument struct {
	TypeCoverage string `firestore:"typeCoverage"`
	PetCoverage  bool   `firestore:"petCoverage"`
}

type percentageCoverageDocument struct {
	FloodCoverage bool `firestore:"floodCoverage"`
}

func encodeQuoteDocument(quote domain.Quote) quoteDocument {
	return quoteDocument{
		OwnerUID:       quote.OwnerID,
		BuyerFirstName: quote.BuyerFirstName,
		BuyerLastName:  quote.BuyerLastName,
		State:          quote.State,
		FlatCostCoverages: flatCoverageDocument{
			TypeCoverage: string(quote.FlatCostCoverages.Tier),
			PetCoverage:  quote.FlatCostCoverages.PetCoverage,
		},
		PercentageCostCoverages: percentageCoverageDocument{
			FloodCoverage: quote.PercentageCostCoverages.FloodCoverage,
		},
		MonthlySubtotal: quote.MonthlyCost.Subtotal.StringFixed(2),
		MonthlyTaxes:    quote.MonthlyCost.Taxes.StringFixed(2),
		MonthlyTotal:    quote.MonthlyCost.Total.StringFixed(2),
		CreatedAt:       quote.CreatedAt.UTC(),
		UpdatedAt:       quote.UpdatedAt.UTC(),
	}
}

func (d quoteDocument) toDomain(id string) (domain.Quote, error) {
	subtotal, err := parseStoredAmount(id, "monthlySubtotal", d.MonthlySubtotal)
	if err != nil {
		return domain.Quote{}, err
	}
	taxes, err := parseStoredAmount(id, "monthlyTaxes", d.MonthlyTaxes)
	if err != nil {
		return domain.Quote{}, err
	}
	total, err := parseStoredAmount(id, "monthlyTotal", d.MonthlyTotal)
	if err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{
		ID:             id,
		OwnerID:        d.OwnerUID,
		BuyerFirstName: d.BuyerFirstName,
		BuyerLastName:  d.BuyerLastName,
		State:          d.State,
		FlatCostCoverages: domain.FlatCoverageSelection{
			Tier:        domain.CoverageTier(d.FlatCostCoverages.TypeCoverage),
			PetCoverage: d.FlatCostCoverages.PetCoverage,
		},
		PercentageCostCoverages: domain.PercentageCoverageSelection{
			FloodCoverage: d.PercentageCostCoverages.FloodCoverage,
		},
		MonthlyCost: domain.QuoteCost{Subtotal: subtotal, Taxes: taxes, Total: total},
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}, nil
}

func parseStoredAmount(id, field, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode quote %s: %s: %w", id, field, err)
	}
	return value, nil
}
