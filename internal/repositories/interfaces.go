package repositories

import (
	"context"

	domain "github.com/homequote/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// QuoteMutation edits a stored quote inside the repository's read-modify-write transaction.
// It may be invoked more than once when the transaction retries and must not have side effects.
type QuoteMutation func(current domain.Quote) (domain.Quote, error)

// QuoteRepository persists quotes. Every read and write is scoped to the owner; a quote owned by
// someone else is reported as not found.
type QuoteRepository interface {
	Insert(ctx context.Context, quote domain.Quote) error
	Update(ctx context.Context, ownerID string, quoteID string, mutate QuoteMutation) (domain.Quote, error)
	Delete(ctx context.Context, ownerID string, quoteID string) error
	FindByID(ctx context.Context, ownerID string, quoteID string) (domain.Quote, error)
	ListByOwner(ctx context.Context, ownerID string, pager domain.Pagination) (domain.CursorPage[domain.Quote], error)
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
