package risk

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/revcycle/denialengine/internal/domain/denial"
	"github.com/revcycle/denialengine/internal/platform/db"
	"github.com/revcycle/denialengine/internal/platform/fault"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

type assessmentRepoPG struct{ pool *pgxpool.Pool }

func NewAssessmentRepoPG(pool *pgxpool.Pool) AssessmentRepository {
	return &assessmentRepoPG{pool: pool}
}

const assessmentCols = `id, claim_id, patient_id, provider_id, payer_id,
	procedure_code, diagnosis_codes, billed_amount,
	overall_risk_score, risk_level,
	risk_factors, recommendations, suggested_modifications,
	assessment_date, was_submitted, was_modified, actual_outcome,
	created_at, updated_at`

func scanAssessment(row pgx.Row) (*ClaimRiskAssessment, error) {
	var a ClaimRiskAssessment
	err := row.Scan(&a.ID, &a.ClaimID, &a.PatientID, &a.ProviderID, &a.PayerID,
		&a.ProcedureCode, &a.DiagnosisCodes, &a.BilledAmount,
		&a.OverallRiskScore, &a.RiskLevel,
		&a.RiskFactors, &a.Recommendations, &a.SuggestedModifications,
		&a.AssessmentDate, &a.WasSubmitted, &a.WasModified, &a.ActualOutcome,
		&a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *assessmentRepoPG) Upsert(ctx context.Context, a *ClaimRiskAssessment) error {
	if a.ID == "" {
		a.ID = NewAssessmentID()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO claim_risk_assessment (id, claim_id, patient_id, provider_id, payer_id,
			procedure_code, diagnosis_codes, billed_amount,
			overall_risk_score, risk_level,
			risk_factors, recommendations, suggested_modifications,
			assessment_date, was_submitted, was_modified, actual_outcome)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (claim_id) DO UPDATE SET
			patient_id=EXCLUDED.patient_id,
			provider_id=EXCLUDED.provider_id,
			payer_id=EXCLUDED.payer_id,
			procedure_code=EXCLUDED.procedure_code,
			diagnosis_codes=EXCLUDED.diagnosis_codes,
			billed_amount=EXCLUDED.billed_amount,
			overall_risk_score=EXCLUDED.overall_risk_score,
			risk_level=EXCLUDED.risk_level,
			risk_factors=EXCLUDED.risk_factors,
			recommendations=EXCLUDED.recommendations,
			suggested_modifications=EXCLUDED.suggested_modifications,
			assessment_date=EXCLUDED.assessment_date,
			was_submitted=EXCLUDED.was_submitted,
			was_modified=EXCLUDED.was_modified,
			actual_outcome=EXCLUDED.actual_outcome,
			updated_at=NOW()`,
		a.ID, a.ClaimID, a.PatientID, a.ProviderID, a.PayerID,
		a.ProcedureCode, a.DiagnosisCodes, a.BilledAmount,
		a.OverallRiskScore, a.RiskLevel,
		a.RiskFactors, a.Recommendations, a.SuggestedModifications,
		a.AssessmentDate, a.WasSubmitted, a.WasModified, a.ActualOutcome)
	return fault.Repository("upsert claim risk assessment", err)
}

func (r *assessmentRepoPG) GetByClaimID(ctx context.Context, claimID denial.ClaimID) (*ClaimRiskAssessment, error) {
	a, err := scanAssessment(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+assessmentCols+` FROM claim_risk_assessment WHERE claim_id = $1`, claimID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("claim risk assessment", string(claimID))
	}
	if err != nil {
		return nil, fault.Repository("get claim risk assessment", err)
	}
	return a, nil
}
