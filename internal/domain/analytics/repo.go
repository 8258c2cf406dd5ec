package analytics

import (
	"context"
	"time"

	"github.com/revcycle/denialengine/internal/domain/denial"
)

// PatternFilter narrows FindPatterns. Nil fields are unconstrained; a
// set field matches exactly, so rows whose dimension is null (the "all"
// wildcard) are only returned by queries that leave that field nil.
type PatternFilter struct {
	PayerID        *denial.PayerID
	ProcedureCode  *string
	DiagnosisCode  *string
	CARCCode       *string
	DenialCategory *denial.DenialCategory
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	Limit          int
}

type PatternRepository interface {
	// FindPatterns returns patterns matching the filter ordered by
	// period_start descending, newest periods first.
	FindPatterns(ctx context.Context, filter PatternFilter) ([]*DenialPattern, error)
	// Upsert inserts or replaces the row identified by the pattern's
	// dimension tuple and period.
	Upsert(ctx context.Context, p *DenialPattern) error
}

type StaffProductivityRepository interface {
	Upsert(ctx context.Context, sp *StaffProductivity) error
	// ListByStaffBetween returns a staff member's daily rows with
	// period_date in [from, to), oldest first.
	ListByStaffBetween(ctx context.Context, staffID denial.StaffID, from, to time.Time) ([]*StaffProductivity, error)
	// ListBetween returns all staff rows with period_date in [from, to).
	ListBetween(ctx context.Context, from, to time.Time) ([]*StaffProductivity, error)
}

type RevenueRecoveryRepository interface {
	Upsert(ctx context.Context, r *RevenueRecovery) error
	// GetByPeriod returns (nil, nil) when no rollup exists for the period.
	GetByPeriod(ctx context.Context, start, end time.Time) (*RevenueRecovery, error)
}
