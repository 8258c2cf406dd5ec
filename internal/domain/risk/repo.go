package risk

import (
	"context"

	"github.com/revcycle/denialengine/internal/domain/denial"
)

type AssessmentRepository interface {
	// Upsert inserts or replaces the assessment for its claim_id.
	Upsert(ctx context.Context, a *ClaimRiskAssessment) error
	// GetByClaimID fails with NotFoundError when the claim has never
	// been assessed.
	GetByClaimID(ctx context.Context, claimID denial.ClaimID) (*ClaimRiskAssessment, error)
}
