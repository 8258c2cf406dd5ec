package denial

import (
	"context"
	"time"
)

// DenialFilter narrows ListDenials. Nil fields are unconstrained.
type DenialFilter struct {
	PayerID     *PayerID
	ClaimStatus *ClaimStatus
	Category    *DenialCategory
	DeniedFrom  *time.Time
	DeniedTo    *time.Time
	Limit       int
	Offset      int
}

type DenialRepository interface {
	Create(ctx context.Context, d *Denial) error
	GetByID(ctx context.Context, id DenialID) (*Denial, error)
	Update(ctx context.Context, d *Denial) error
	List(ctx context.Context, filter DenialFilter) ([]*Denial, error)
}

type AppealRepository interface {
	Create(ctx context.Context, a *Appeal) error
	GetByID(ctx context.Context, id AppealID) (*Appeal, error)
	// Update enforces optimistic concurrency on VersionID and fails with
	// ConflictError when the stored row has moved on.
	Update(ctx context.Context, a *Appeal) error
	// ListByDenial returns the denial's appeals ordered by appeal_level.
	ListByDenial(ctx context.Context, denialID DenialID) ([]*Appeal, error)
	// ListOpenWithDeadlineBefore returns non-closed, undecided appeals
	// whose filing deadline falls before cutoff, soonest first.
	ListOpenWithDeadlineBefore(ctx context.Context, cutoff time.Time) ([]*Appeal, error)
	// ListActiveBetween returns appeals created, assigned, submitted, or
	// completed inside [from, to), for productivity rollups.
	ListActiveBetween(ctx context.Context, from, to time.Time) ([]*Appeal, error)
}

type PayerConfigRepository interface {
	// GetByPayerID returns (nil, nil) when the payer has no config row;
	// callers fall back to system-wide defaults.
	GetByPayerID(ctx context.Context, payerID PayerID) (*PayerConfig, error)
	Upsert(ctx context.Context, pc *PayerConfig) error
}
