package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// Quote is a priced insurance quote owned by a single user.
type Quote struct {
	ID                      string
	OwnerID                 string
	BuyerFirstName          string
	BuyerLastName           string
	State                   string
	FlatCostCoverages       FlatCoverageSelection
	PercentageCostCoverages PercentageCoverageSelection
	MonthlyCost             QuoteCost
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// QuoteEventType identifies quote lifecycle notifications.
type QuoteEventType string

const (
	// QuoteEventCreated is emitted after a quote is persisted for the first time.
	QuoteEventCreated QuoteEventType = "quote.created"
	// QuoteEventUpdated is emitted after a quote is repriced or renamed.
	QuoteEventUpdated QuoteEventType = "quote.updated"
	// QuoteEventDeleted is emitted after a quote is removed.
	QuoteEventDeleted QuoteEventType = "quote.deleted"
)

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
