package analytics

import (
	"time"

	"github.com/revcycle/denialengine/internal/domain/denial"
)

// Period is a closed aggregation window. Start is inclusive, End is
// exclusive.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// TrendPoint is one month of a pattern's monthly_trend breakdown.
type TrendPoint struct {
	Month  string  `json:"month"`
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// WeeklyStat is one week of a revenue rollup's weekly_breakdown.
type WeeklyStat struct {
	Week      string  `json:"week"`
	Denied    float64 `json:"denied"`
	Recovered float64 `json:"recovered"`
}

// DenialPattern maps to the denial_pattern table: aggregate statistics
// for one (payer, procedure, diagnosis, carc, period) dimension tuple.
// A nil dimension means "all", so a row keyed only by payer is the
// payer-wide aggregate. Rows are produced exclusively by the aggregator
// and consumed by the risk scorer.
type DenialPattern struct {
	ID        string         `db:"id" json:"id"`
	PayerID   denial.PayerID `db:"payer_id" json:"payer_id"`
	PayerName string         `db:"payer_name" json:"payer_name"`

	ProcedureCode  *string                `db:"procedure_code" json:"procedure_code,omitempty"`
	DiagnosisCode  *string                `db:"diagnosis_code" json:"diagnosis_code,omitempty"`
	CARCCode       *string                `db:"carc_code" json:"carc_code,omitempty"`
	DenialCategory *denial.DenialCategory `db:"denial_category" json:"denial_category,omitempty"`

	TotalDenials            int     `db:"total_denials" json:"total_denials"`
	TotalBilledAmount       float64 `db:"total_billed_amount" json:"total_billed_amount"`
	TotalRecoveredAmount    float64 `db:"total_recovered_amount" json:"total_recovered_amount"`
	DenialRate              float64 `db:"denial_rate" json:"denial_rate"`
	RecoveryRate            float64 `db:"recovery_rate" json:"recovery_rate"`
	AverageRecoveryTimeDays *int    `db:"average_recovery_time_days" json:"average_recovery_time_days,omitempty"`

	PeriodStart time.Time `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time `db:"period_end" json:"period_end"`

	MonthlyTrend     []TrendPoint `db:"monthly_trend" json:"monthly_trend,omitempty"`
	SuggestedActions []string     `db:"suggested_actions" json:"suggested_actions,omitempty"`
	RiskScore        *float64     `db:"risk_score" json:"risk_score,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StaffProductivity maps to the staff_productivity table: one staff
// member's rollup for one calendar day, unique on (staff_id, period_date).
type StaffProductivity struct {
	ID        string         `db:"id" json:"id"`
	StaffID   denial.StaffID `db:"staff_id" json:"staff_id"`
	StaffName string         `db:"staff_name" json:"staff_name"`

	PeriodDate time.Time `db:"period_date" json:"period_date"`

	DenialsReviewed int `db:"denials_reviewed" json:"denials_reviewed"`
	DenialsAssigned int `db:"denials_assigned" json:"denials_assigned"`

	AppealsCreated    int `db:"appeals_created" json:"appeals_created"`
	AppealsSubmitted  int `db:"appeals_submitted" json:"appeals_submitted"`
	AppealsOverturned int `db:"appeals_overturned" json:"appeals_overturned"`
	AppealsUpheld     int `db:"appeals_upheld" json:"appeals_upheld"`

	AverageProcessingTime *int `db:"average_processing_time" json:"average_processing_time,omitempty"`
	TotalProcessingTime   int  `db:"total_processing_time" json:"total_processing_time"`

	TotalRecovered float64 `db:"total_recovered" json:"total_recovered"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RevenueRecovery maps to the revenue_recovery table: the
// organization-wide rollup for one period, unique on
// (period_start, period_end).
type RevenueRecovery struct {
	ID string `db:"id" json:"id"`

	PeriodStart time.Time `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time `db:"period_end" json:"period_end"`

	TotalDenials      int     `db:"total_denials" json:"total_denials"`
	TotalDeniedAmount float64 `db:"total_denied_amount" json:"total_denied_amount"`

	TotalAppeals      int `db:"total_appeals" json:"total_appeals"`
	SuccessfulAppeals int `db:"successful_appeals" json:"successful_appeals"`

	TotalRecovered  float64 `db:"total_recovered" json:"total_recovered"`
	TotalWrittenOff float64 `db:"total_written_off" json:"total_written_off"`
	RecoveryRate    float64 `db:"recovery_rate" json:"recovery_rate"`

	RecoveryByCategory map[string]float64 `db:"recovery_by_category" json:"recovery_by_category,omitempty"`
	RecoveryByPayer    map[string]float64 `db:"recovery_by_payer" json:"recovery_by_payer,omitempty"`
	WeeklyBreakdown    []WeeklyStat       `db:"weekly_breakdown" json:"weekly_breakdown,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PendingRecovery is the denied amount neither recovered nor written off
// yet.
func (r *RevenueRecovery) PendingRecovery() float64 {
	pending := r.TotalDeniedAmount - r.TotalRecovered - r.TotalWrittenOff
	if pending < 0 {
		return 0
	}
	return pending
}

// PatternRiskScore folds a pattern's denial rate and recovery rate into
// a single [0,1] score. Frequent denials that rarely get overturned
// score highest.
func PatternRiskScore(denialRate, recoveryRate float64) float64 {
	score := 0.6*denialRate + 0.4*(1-recoveryRate)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
