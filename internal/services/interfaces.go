package services

import (
	"context"
	"time"

	domain "github.com/homequote/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination                  = domain.Pagination
	Quote                       = domain.Quote
	QuoteCost                   = domain.QuoteCost
	FlatCoverageSelection       = domain.FlatCoverageSelection
	PercentageCoverageSelection = domain.PercentageCoverageSelection
	JurisdictionRates           = domain.JurisdictionRates
	SystemHealthReport          = domain.SystemHealthReport
)

// QuoteService owns the quote lifecycle for a single authenticated owner.
type QuoteService interface {
	CreateQuote(ctx context.Context, cmd CreateQuoteCommand) (Quote, error)
	GetQuote(ctx context.Context, ownerID string, quoteID string) (Quote, error)
	ListQuotes(ctx context.Context, filter QuoteListFilter) (domain.CursorPage[Quote], error)
	ReplaceQuote(ctx context.Context, cmd ReplaceQuoteCommand) (Quote, error)
	PatchQuote(ctx context.Context, cmd PatchQuoteCommand) (Quote, error)
	DeleteQuote(ctx context.Context, ownerID string, quoteID string) error
	EstimateQuote(ctx context.Context, cmd EstimateQuoteCommand) (QuoteCost, error)
	ListJurisdictions(ctx context.Context) []JurisdictionRates
}

// QuotePricer computes monthly costs. *QuotePricingEngine satisfies it.
type QuotePricer interface {
	ComputeCost(jurisdiction string, flat FlatCoverageSelection, percentage PercentageCoverageSelection) (QuoteCost, error)
	Jurisdictions() []JurisdictionRates
}

// QuoteEventPublisher emits quote lifecycle notifications to downstream consumers.
type QuoteEventPublisher interface {
	PublishQuoteEvent(ctx context.Context, event QuoteEvent) (string, error)
}

// SystemService exposes operational metadata for health endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// QuoteInput carries the full set of user-editable quote fields.
type QuoteInput struct {
	BuyerFirstName          string
	BuyerLastName           string
	State                   string
	FlatCostCoverages       FlatCoverageSelection
	PercentageCostCoverages PercentageCoverageSelection
}

// CreateQuoteCommand persists a new quote for OwnerID.
type CreateQuoteCommand struct {
	OwnerID string
	Input   QuoteInput
}

// ReplaceQuoteCommand overwrites every editable field of an existing quote.
type ReplaceQuoteCommand struct {
	OwnerID string
	QuoteID string
	Input   QuoteInput
}

// PatchQuoteCommand updates only the supplied fields.
type PatchQuoteCommand struct {
	OwnerID                 string
	QuoteID                 string
	BuyerFirstName          *string
	BuyerLastName           *string
	State                   *string
	FlatCostCoverages       *FlatCoverageSelection
	PercentageCostCoverages *PercentageCoverageSelection
}

// EstimateQuoteCommand prices a selection without persisting anything.
type EstimateQuoteCommand struct {
	State                   string
	FlatCostCoverages       FlatCoverageSelection
	PercentageCostCoverages PercentageCoverageSelection
}

// QuoteListFilter scopes ListQuotes to an owner.
type QuoteListFilter struct {
	OwnerID    string
	Pagination Pagination
}

// QuoteEvent is the payload published after a quote mutation commits.
type QuoteEvent struct {
	Type         domain.QuoteEventType
	QuoteID      string
	OwnerID      string
	State        string
	MonthlyTotal string
	OccurredAt   time.Time
}
