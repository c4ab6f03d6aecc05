package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	domain "github.com/homequote/api/internal/domain"
	"github.com/homequote/api/internal/platform/pagination"
	"github.com/homequote/api/internal/repositories"
)

var (
	// ErrQuoteInvalidInput indicates the request payload failed validation.
	ErrQuoteInvalidInput = errors.New("quote: invalid input")
	// ErrQuoteNotFound indicates the quote does not exist or belongs to another owner.
	ErrQuoteNotFound = errors.New("quote: not found")
	// ErrQuoteConflict indicates the write raced another mutation.
	ErrQuoteConflict = errors.New("quote: conflict")
	// ErrQuoteRepositoryUnavailable indicates persistence is not reachable.
	ErrQuoteRepositoryUnavailable = errors.New("quote: repository unavailable")
)

// QuoteFieldError reports the input field that failed validation. It matches ErrQuoteInvalidInput.
type QuoteFieldError struct {
	Field  string
	Reason string
}

func (e *QuoteFieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrQuoteInvalidInput, e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrQuoteInvalidInput.
func (e *QuoteFieldError) Unwrap() error { return ErrQuoteInvalidInput }

func invalidField(field, reason string) error {
	return &QuoteFieldError{Field: field, Reason: reason}
}

const (
	quoteIDPrefix         = "qt_"
	maxBuyerNameLength    = 255
	maxSanitisePasses     = 4
	defaultPublishTimeout = 5 * time.Second
)

var (
	// Subtotal and taxes are stored with six significant digits, the total with seven.
	maxComponentAmount = decimal.NewFromInt(10000)
	maxTotalAmount     = decimal.NewFromInt(100000)
)

// QuoteServiceDeps bundles collaborators required to construct a quote service.
type QuoteServiceDeps struct {
	Quotes         repositories.QuoteRepository
	Pricing        QuotePricer
	Events         QuoteEventPublisher
	Clock          func() time.Time
	IDGenerator    func() string
	PublishTimeout time.Duration
	Logger         func(context.Context, string, map[string]any)
}

type quoteService struct {
	quotes         repositories.QuoteRepository
	pricing        QuotePricer
	events         QuoteEventPublisher
	clock          func() time.Time
	newID          func() string
	publishTimeout time.Duration
	logger         func(context.Context, string, map[string]any)
	namePolicy     *bluemonday.Policy
}

var _ QuoteService = (*quoteService)(nil)

// NewQuoteService constructs a QuoteService backed by the provided dependencies.
func NewQuoteService(deps QuoteServiceDeps) (QuoteService, error) {
	if deps.Quotes == nil {
		return nil, errors.New("quote service: quote repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("quote service: pricing engine is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	timeout := deps.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	return &quoteService{
		quotes:         deps.Quotes,
		pricing:        deps.Pricing,
		events:         deps.Events,
		clock:          func() time.Time { return clock().UTC() },
		newID:          idGen,
		publishTimeout: timeout,
		logger:         logger,
		namePolicy:     bluemonday.StrictPolicy(),
	}, nil
}

// CreateQuote validates and prices the input, then persists it for the owner.
func (s *quoteService) CreateQuote(ctx context.Context, cmd CreateQuoteCommand) (Quote, error) {
	ownerID, err := requireOwner(cmd.OwnerID)
	if err != nil {
		return Quote{}, err
	}
	input, err := s.normaliseInput(cmd.Input)
	if err != nil {
		return Quote{}, err
	}
	cost, err := s.price(input.State, input.FlatCostCoverages, input.PercentageCostCoverages)
	if err != nil {
		return Quote{}, err
	}

	now := s.clock()
	quote := Quote{
		ID:                      quoteIDPrefix + strings.ToLower(s.newID()),
		OwnerID:                 ownerID,
		BuyerFirstName:          input.BuyerFirstName,
		BuyerLastName:           input.BuyerLastName,
		State:                   input.State,
		FlatCostCoverages:       input.FlatCostCoverages,
		PercentageCostCoverages: input.PercentageCostCoverages,
		MonthlyCost:             cost,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.quotes.Insert(ctx, quote); err != nil {
		return Quote{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "quote.created", map[string]any{
		"quoteId": quote.ID,
		"state":   quote.State,
		"total":   quote.MonthlyCost.Total.StringFixed(2),
	})
	s.publish(ctx, domain.QuoteEventCreated, quote)
	return quote, nil
}

// GetQuote fetches a single quote owned by the caller.
func (s *quoteService) GetQuote(ctx context.Context, ownerID string, quoteID string) (Quote, error) {
	owner, id, err := requireOwnerAndQuote(ownerID, quoteID)
	if err != nil {
		return Quote{}, err
	}
	quote, err := s.quotes.FindByID(ctx, owner, id)
	if err != nil {
		return Quote{}, s.mapRepositoryError(err)
	}
	return quote, nil
}

// ListQuotes returns the owner's quotes, newest first.
func (s *quoteService) ListQuotes(ctx context.Context, filter QuoteListFilter) (domain.CursorPage[Quote], error) {
	ownerID, err := requireOwner(filter.OwnerID)
	if err != nil {
		return domain.CursorPage[Quote]{}, err
	}
	pager := filter.Pagination
	pager.PageSize = pagination.ClampPageSize(pager.PageSize)
	pager.PageToken = strings.TrimSpace(pager.PageToken)

	page, err := s.quotes.ListByOwner(ctx, ownerID, pager)
	if err != nil {
		return domain.CursorPage[Quote]{}, s.mapRepositoryError(err)
	}
	if page.Items == nil {
		page.Items = []Quote{}
	}
	return page, nil
}

// ReplaceQuote overwrites every editable field and reprices the quote.
func (s *quoteService) ReplaceQuote(ctx context.Context, cmd ReplaceQuoteCommand) (Quote, error) {
	owner, id, err := requireOwnerAndQuote(cmd.OwnerID, cmd.QuoteID)
	if err != nil {
		return Quote{}, err
	}
	input, err := s.normaliseInput(cmd.Input)
	if err != nil {
		return Quote{}, err
	}
	cost, err := s.price(input.State, input.FlatCostCoverages, input.PercentageCostCoverages)
	if err != nil {
		return Quote{}, err
	}

	updated, err := s.quotes.Update(ctx, owner, id, func(current Quote) (Quote, error) {
		current.BuyerFirstName = input.BuyerFirstName
		current.BuyerLastName = input.BuyerLastName
		current.State = input.State
		current.FlatCostCoverages = input.FlatCostCoverages
		current.PercentageCostCoverages = input.PercentageCostCoverages
		current.MonthlyCost = cost
		current.UpdatedAt = s.clock()
		return current, nil
	})
	if err != nil {
		return Quote{}, s.mapRepositoryError(err)
	}
	s.publish(ctx, domain.QuoteEventUpdated, updated)
	return updated, nil
}

// PatchQuote applies the supplied fields. Pricing is recomputed only when the state or a
// coverage selection changes.
func (s *quoteService) PatchQuote(ctx context.Context, cmd PatchQuoteCommand) (Quote, error) {
	owner, id, err := requireOwnerAndQuote(cmd.OwnerID, cmd.QuoteID)
	if err != nil {
		return Quote{}, err
	}

	var first, last string
	if cmd.BuyerFirstName != nil {
		if first, err = s.normaliseName("buyer_first_name", *cmd.BuyerFirstName); err != nil {
			return Quote{}, err
		}
	}
	if cmd.BuyerLastName != nil {
		if last, err = s.normaliseName("buyer_last_name", *cmd.BuyerLastName); err != nil {
			return Quote{}, err
		}
	}

	// The merge runs against the stored quote inside the repository transaction.
	updated, err := s.quotes.Update(ctx, owner, id, func(current Quote) (Quote, error) {
		if cmd.BuyerFirstName != nil {
			current.BuyerFirstName = first
		}
		if cmd.BuyerLastName != nil {
			current.BuyerLastName = last
		}
		reprice := false
		if cmd.State != nil {
			current.State = normaliseState(*cmd.State)
			reprice = true
		}
		if cmd.FlatCostCoverages != nil {
			current.FlatCostCoverages = *cmd.FlatCostCoverages
			reprice = true
		}
		if cmd.PercentageCostCoverages != nil {
			current.PercentageCostCoverages = *cmd.PercentageCostCoverages
			reprice = true
		}
		if reprice {
			if err := validateSelections(current.State, current.FlatCostCoverages); err != nil {
				return Quote{}, err
			}
			cost, err := s.price(current.State, current.FlatCostCoverages, current.PercentageCostCoverages)
			if err != nil {
				return Quote{}, err
			}
			current.MonthlyCost = cost
		}
		current.UpdatedAt = s.clock()
		return current, nil
	})
	if err != nil {
		return Quote{}, s.mapRepositoryError(err)
	}
	s.publish(ctx, domain.QuoteEventUpdated, updated)
	return updated, nil
}

// DeleteQuote removes a quote owned by the caller.
func (s *quoteService) DeleteQuote(ctx context.Context, ownerID string, quoteID string) error {
	owner, id, err := requireOwnerAndQuote(ownerID, quoteID)
	if err != nil {
		return err
	}
	existing, err := s.quotes.FindByID(ctx, owner, id)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if err := s.quotes.Delete(ctx, owner, id); err != nil {
		return s.mapRepositoryError(err)
	}
	s.publish(ctx, domain.QuoteEventDeleted, existing)
	return nil
}

// EstimateQuote prices a selection without persisting it.
func (s *quoteService) EstimateQuote(_ context.Context, cmd EstimateQuoteCommand) (QuoteCost, error) {
	state := normaliseState(cmd.State)
	if err := validateSelections(state, cmd.FlatCostCoverages); err != nil {
		return QuoteCost{}, err
	}
	return s.price(state, cmd.FlatCostCoverages, cmd.PercentageCostCoverages)
}

// ListJurisdictions returns the configured cost tables ordered by code.
func (s *quoteService) ListJurisdictions(context.Context) []JurisdictionRates {
	return s.pricing.Jurisdictions()
}

func (s *quoteService) normaliseInput(input QuoteInput) (QuoteInput, error) {
	first, err := s.normaliseName("buyer_first_name", input.BuyerFirstName)
	if err != nil {
		return QuoteInput{}, err
	}
	last, err := s.normaliseName("buyer_last_name", input.BuyerLastName)
	if err != nil {
		return QuoteInput{}, err
	}
	state := normaliseState(input.State)
	if err := validateSelections(state, input.FlatCostCoverages); err != nil {
		return QuoteInput{}, err
	}
	return QuoteInput{
		BuyerFirstName:          first,
		BuyerLastName:           last,
		State:                   state,
		FlatCostCoverages:       input.FlatCostCoverages,
		PercentageCostCoverages: input.PercentageCostCoverages,
	}, nil
}

// normaliseName strips markup, collapses whitespace and applies NFC. Entity-encoded markup is
// decoded and stripped again until the text is stable.
func (s *quoteService) normaliseName(field, value string) (string, error) {
	cleaned := value
	for pass := 0; ; pass++ {
		next := html.UnescapeString(s.namePolicy.Sanitize(cleaned))
		if next == cleaned {
			break
		}
		if pass == maxSanitisePasses {
			return "", invalidField(field, "contains markup")
		}
		cleaned = next
	}
	cleaned = norm.NFC.String(strings.Join(strings.Fields(cleaned), " "))
	if cleaned == "" {
		return "", invalidField(field, "is required")
	}
	if utf8.RuneCountInString(cleaned) > maxBuyerNameLength {
		return "", invalidField(field, fmt.Sprintf("must be at most %d characters", maxBuyerNameLength))
	}
	return cleaned, nil
}

func (s *quoteService) price(state string, flat FlatCoverageSelection, percentage PercentageCoverageSelection) (QuoteCost, error) {
	cost, err := s.pricing.ComputeCost(state, flat, percentage)
	if err != nil {
		if errors.Is(err, ErrQuotePricingInvalidInput) {
			return QuoteCost{}, fmt.Errorf("%w: %v", ErrQuoteInvalidInput, err)
		}
		return QuoteCost{}, err
	}
	if cost.Subtotal.Abs().GreaterThanOrEqual(maxComponentAmount) {
		return QuoteCost{}, invalidField("monthly_subtotal", "exceeds supported range")
	}
	if cost.Taxes.Abs().GreaterThanOrEqual(maxComponentAmount) {
		return QuoteCost{}, invalidField("monthly_taxes", "exceeds supported range")
	}
	if cost.Total.Abs().GreaterThanOrEqual(maxTotalAmount) {
		return QuoteCost{}, invalidField("monthly_total", "exceeds supported range")
	}
	return cost, nil
}

func (s *quoteService) publish(ctx context.Context, eventType domain.QuoteEventType, quote Quote) {
	if s.events == nil {
		return
	}
	event := QuoteEvent{
		Type:         eventType,
		QuoteID:      quote.ID,
		OwnerID:      quote.OwnerID,
		State:        quote.State,
		MonthlyTotal: quote.MonthlyCost.Total.StringFixed(2),
		OccurredAt:   s.clock(),
	}

	// The write has committed; a client disconnect must not drop the event.
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	messageID, err := s.events.PublishQuoteEvent(publishCtx, event)
	if err != nil {
		s.logger(ctx, "quote.event.publish_failed", map[string]any{
			"quoteId": quote.ID,
			"event":   string(eventType),
			"error":   err.Error(),
		})
		return
	}
	s.logger(ctx, "quote.event.published", map[string]any{
		"quoteId":   quote.ID,
		"event":     string(eventType),
		"messageId": messageID,
	})
}

func (s *quoteService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrQuoteNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrQuoteConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrQuoteRepositoryUnavailable, err)
		}
	}
	return err
}

func validateSelections(state string, flat FlatCoverageSelection) error {
	if state == "" {
		return invalidField("state", "is required")
	}
	if !flat.Tier.Valid() {
		return invalidField("flat_cost_coverages.type_coverage", fmt.Sprintf("unknown coverage tier %q", flat.Tier))
	}
	return nil
}

func normaliseState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func requireOwner(ownerID string) (string, error) {
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return "", fmt.Errorf("%w: owner id is required", ErrQuoteInvalidInput)
	}
	return owner, nil
}

func requireOwnerAndQuote(ownerID, quoteID string) (string, string, error) {
	owner, err := requireOwner(ownerID)
	if err != nil {
		return "", "", err
	}
	id := strings.TrimSpace(quoteID)
	if id == "" {
		return "", "", fmt.Errorf("%w: quote id is required", ErrQuoteInvalidInput)
	}
	return owner, id, nil
}
