package risk

import (
	"time"

	"github.com/google/uuid"

	"github.com/revcycle/denialengine/internal/domain/denial"
)

// RiskLevel buckets an overall risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var validRiskLevels = map[RiskLevel]bool{
	RiskLow: true, RiskModerate: true, RiskHigh: true, RiskCritical: true,
}

func (l RiskLevel) Valid() bool { return validRiskLevels[l] }

// LevelFor maps a [0,1] score onto its risk level.
func LevelFor(score float64) RiskLevel {
	switch {
	case score < 0.25:
		return RiskLow
	case score < 0.5:
		return RiskModerate
	case score < 0.75:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// RiskFactor is one scored dimension of a claim assessment. Score is on
// a 0-100 scale before weighting; Weight is the factor's share of the
// overall score.
type RiskFactor struct {
	Factor      string  `json:"factor"`
	Score       float64 `json:"score"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
}

// ClaimModification is a suggested change to a claim field before
// submission.
type ClaimModification struct {
	Field          string `json:"field"`
	CurrentValue   string `json:"current_value"`
	SuggestedValue string `json:"suggested_value"`
	Reason         string `json:"reason"`
}

// ClaimInput describes a claim before submission, as handed over by the
// claims pipeline.
type ClaimInput struct {
	ClaimID             denial.ClaimID    `json:"claim_id"`
	PatientID           denial.PatientID  `json:"patient_id"`
	ProviderID          denial.ProviderID `json:"provider_id"`
	PayerID             denial.PayerID    `json:"payer_id"`
	ProcedureCode       string            `json:"procedure_code"`
	ProcedureModifiers  []string          `json:"procedure_modifiers,omitempty"`
	DiagnosisCodes      []string          `json:"diagnosis_codes"`
	BilledAmount        float64           `json:"billed_amount"`
	PlaceOfService      *string           `json:"place_of_service,omitempty"`
	HasAuthorization    bool              `json:"has_authorization"`
	AuthorizationNumber *string           `json:"authorization_number,omitempty"`
	ServiceDate         *time.Time        `json:"service_date,omitempty"`
}

// ClaimRiskAssessment maps to the claim_risk_assessment table: a
// point-in-time prospective risk snapshot for one claim, unique on
// claim_id. The was_submitted/was_modified/actual_outcome fields are
// filled in later for feedback-loop evaluation.
type ClaimRiskAssessment struct {
	ID      string         `db:"id" json:"id"`
	ClaimID denial.ClaimID `db:"claim_id" json:"claim_id"`

	PatientID      denial.PatientID  `db:"patient_id" json:"patient_id"`
	ProviderID     denial.ProviderID `db:"provider_id" json:"provider_id"`
	PayerID        denial.PayerID    `db:"payer_id" json:"payer_id"`
	ProcedureCode  string            `db:"procedure_code" json:"procedure_code"`
	DiagnosisCodes []string          `db:"diagnosis_codes" json:"diagnosis_codes,omitempty"`
	BilledAmount   float64           `db:"billed_amount" json:"billed_amount"`

	OverallRiskScore float64   `db:"overall_risk_score" json:"overall_risk_score"`
	RiskLevel        RiskLevel `db:"risk_level" json:"risk_level"`

	RiskFactors            []RiskFactor        `db:"risk_factors" json:"risk_factors"`
	Recommendations        []string            `db:"recommendations" json:"recommendations,omitempty"`
	SuggestedModifications []ClaimModification `db:"suggested_modifications" json:"suggested_modifications,omitempty"`

	AssessmentDate time.Time `db:"assessment_date" json:"assessment_date"`
	WasSubmitted   bool      `db:"was_submitted" json:"was_submitted"`
	WasModified    bool      `db:"was_modified" json:"was_modified"`
	ActualOutcome  *string   `db:"actual_outcome" json:"actual_outcome,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Recoverability is the scorer's verdict on an existing denial.
type Recoverability struct {
	RecoveryProbability  float64  `json:"recovery_probability"`
	PredictedRecoverable bool     `json:"predicted_recoverable"`
	RiskFactors          []string `json:"risk_factors,omitempty"`
}

// Claim outcome tokens recorded back onto an assessment.
const (
	OutcomePaid    = "paid"
	OutcomeDenied  = "denied"
	OutcomePartial = "partial"
)

func NewAssessmentID() string { return uuid.NewString() }
