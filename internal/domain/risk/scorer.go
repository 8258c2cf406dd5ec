package risk

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/revcycle/denialengine/internal/domain/analytics"
	"github.com/revcycle/denialengine/internal/domain/denial"
	"github.com/revcycle/denialengine/internal/platform/fault"
)

// Weights distributes the overall claim risk score across the seven
// factors. Must sum to 1; enforced by config validation, not here.
type Weights struct {
	HistoricalDenialRate float64
	PayerBehavior        float64
	ProcedureComplexity  float64
	Authorization        float64
	CodingAccuracy       float64
	TimingFactors        float64
	Documentation        float64
}

func DefaultWeights() Weights {
	return Weights{
		HistoricalDenialRate: 0.25,
		PayerBehavior:        0.20,
		ProcedureComplexity:  0.15,
		Authorization:        0.15,
		CodingAccuracy:       0.10,
		TimingFactors:        0.08,
		Documentation:        0.07,
	}
}

var (
	cptRe   = regexp.MustCompile(`^\d{5}$`)
	hcpcsRe = regexp.MustCompile(`^[A-Z]\d{4}$`)
	icd10Re = regexp.MustCompile(`^[A-Z]\d{2}\.?\d{0,4}$`)
)

// Procedure prefixes that payers almost always gate behind prior
// authorization (major joint, spine, bariatric and similar surgery
// ranges).
var authRequiredPrefixes = []string{"27", "29", "43", "47", "49", "60", "62", "63"}

// Recency weights for historical pattern lookups, newest period first.
var recencyWeights = []float64{0.4, 0.25, 0.15, 0.12, 0.08}

// Scorer computes prospective claim risk and denial recoverability from
// the aggregated pattern statistics. Deterministic for a fixed clock
// and pattern snapshot.
type Scorer struct {
	patterns    analytics.PatternRepository
	denials     denial.DenialRepository
	assessments AssessmentRepository
	weights     Weights
	prior       float64
	threshold   float64
	now         func() time.Time
}

func NewScorer(
	patterns analytics.PatternRepository,
	denials denial.DenialRepository,
	assessments AssessmentRepository,
	weights Weights,
	prior, threshold float64,
) *Scorer {
	return &Scorer{
		patterns:    patterns,
		denials:     denials,
		assessments: assessments,
		weights:     weights,
		prior:       prior,
		threshold:   threshold,
		now:         time.Now,
	}
}

// AssessClaimRisk scores a claim before submission, persists the
// assessment keyed by claim ID, and returns it.
func (s *Scorer) AssessClaimRisk(ctx context.Context, in ClaimInput) (*ClaimRiskAssessment, error) {
	if in.ClaimID == "" {
		return nil, fault.Validation("claim_id is required")
	}
	if in.ProcedureCode == "" {
		return nil, fault.Validation("procedure_code is required")
	}

	historical, err := s.historicalFactor(ctx, in)
	if err != nil {
		return nil, err
	}
	payer, err := s.payerBehaviorFactor(ctx, in)
	if err != nil {
		return nil, err
	}
	coding, err := s.codingFactor(ctx, in)
	if err != nil {
		return nil, err
	}

	factors := []RiskFactor{
		historical,
		payer,
		s.procedureComplexityFactor(in),
		s.authorizationFactor(in),
		coding,
		s.timingFactor(in),
		s.documentationFactor(in),
	}

	score := 0.0
	for _, f := range factors {
		score += f.Score * f.Weight
	}
	score /= 100
	if score > 1 {
		score = 1
	}

	a := &ClaimRiskAssessment{
		ClaimID:                in.ClaimID,
		PatientID:              in.PatientID,
		ProviderID:             in.ProviderID,
		PayerID:                in.PayerID,
		ProcedureCode:          in.ProcedureCode,
		DiagnosisCodes:         in.DiagnosisCodes,
		BilledAmount:           in.BilledAmount,
		OverallRiskScore:       score,
		RiskLevel:              LevelFor(score),
		RiskFactors:            factors,
		Recommendations:        recommendations(factors),
		SuggestedModifications: modifications(factors, in),
		AssessmentDate:         s.now(),
	}
	if err := s.assessments.Upsert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Scorer) historicalFactor(ctx context.Context, in ClaimInput) (RiskFactor, error) {
	lookups := []analytics.PatternFilter{
		{PayerID: &in.PayerID, ProcedureCode: &in.ProcedureCode, Limit: len(recencyWeights)},
		{PayerID: &in.PayerID, Limit: len(recencyWeights)},
		{ProcedureCode: &in.ProcedureCode, Limit: len(recencyWeights)},
	}
	var patterns []*analytics.DenialPattern
	for _, filter := range lookups {
		found, err := s.patterns.FindPatterns(ctx, filter)
		if err != nil {
			return RiskFactor{}, err
		}
		if len(found) > 0 {
			patterns = found
			break
		}
	}

	rate := 0.0
	for i, p := range patterns {
		w := 0.05
		if i < len(recencyWeights) {
			w = recencyWeights[i]
		}
		rate += p.DenialRate * w
	}

	return RiskFactor{
		Factor:      "Historical Denial Rate",
		Score:       math.Min(rate*100, 100),
		Weight:      s.weights.HistoricalDenialRate,
		Description: fmt.Sprintf("Historical denial rate for this payer/procedure combination is %.1f%%", rate*100),
		Category:    "historical",
	}, nil
}

func (s *Scorer) payerBehaviorFactor(ctx context.Context, in ClaimInput) (RiskFactor, error) {
	since := s.now().AddDate(0, 0, -90)
	recent, err := s.denials.List(ctx, denial.DenialFilter{PayerID: &in.PayerID, DeniedFrom: &since})
	if err != nil {
		return RiskFactor{}, err
	}

	total := len(recent)
	score := math.Min(float64(total)/100*20, 80)

	return RiskFactor{
		Factor:      "Payer Behavior",
		Score:       score,
		Weight:      s.weights.PayerBehavior,
		Description: fmt.Sprintf("Payer has %d denials in last 90 days", total),
		Category:    "payer",
	}, nil
}

func (s *Scorer) procedureComplexityFactor(in ClaimInput) RiskFactor {
	score := 0.0
	var issues []string

	if in.BilledAmount > 10000 {
		score += 20
		issues = append(issues, "High-cost procedure may face additional scrutiny")
	}
	if strings.HasPrefix(in.ProcedureCode, "9") && len(in.ProcedureModifiers) == 0 {
		score += 15
		issues = append(issues, "E/M code may require modifier for same-day procedures")
	}
	if len(in.ProcedureModifiers) > 2 {
		score += 10
		issues = append(issues, "Multiple modifiers may require additional documentation")
	}
	if strings.HasPrefix(in.ProcedureCode, "0") || len(in.ProcedureCode) > 5 {
		score += 15
		issues = append(issues, "Unlisted or complex procedure code requires detailed documentation")
	}

	return RiskFactor{
		Factor:      "Procedure Complexity",
		Score:       math.Min(score, 100),
		Weight:      s.weights.ProcedureComplexity,
		Description: describe(issues, "Standard procedure complexity"),
		Category:    "procedure",
	}
}

func (s *Scorer) authorizationFactor(in ClaimInput) RiskFactor {
	score := 0.0
	description := ""

	switch {
	case !in.HasAuthorization:
		requiresAuth := false
		for _, prefix := range authRequiredPrefixes {
			if strings.HasPrefix(in.ProcedureCode, prefix) {
				requiresAuth = true
				break
			}
		}
		if requiresAuth {
			score = 80
			description = "Procedure likely requires prior authorization which is missing"
		} else {
			score = 20
			description = "No authorization on file, but may not be required"
		}
	case in.AuthorizationNumber != nil:
		score = 5
		description = "Authorization on file"
	default:
		description = "Authorization claimed without a reference number"
	}

	return RiskFactor{
		Factor:      "Authorization Status",
		Score:       score,
		Weight:      s.weights.Authorization,
		Description: description,
		Category:    "authorization",
	}
}

func (s *Scorer) codingFactor(ctx context.Context, in ClaimInput) (RiskFactor, error) {
	score := 0.0
	var issues []string

	for _, dx := range in.DiagnosisCodes {
		if !icd10Re.MatchString(dx) {
			score += 15
			issues = append(issues, fmt.Sprintf("Invalid ICD-10 format: %s", dx))
		}
	}
	if !cptRe.MatchString(in.ProcedureCode) && !hcpcsRe.MatchString(in.ProcedureCode) {
		score += 20
		issues = append(issues, "Invalid procedure code format")
	}

	since := s.now().AddDate(0, 0, -180)
	category := denial.CategoryCodingError
	codingDenials, err := s.denials.List(ctx, denial.DenialFilter{Category: &category, DeniedFrom: &since})
	if err != nil {
		return RiskFactor{}, err
	}
	sameProc := 0
	for _, d := range codingDenials {
		if d.ProcedureCode == in.ProcedureCode {
			sameProc++
		}
	}
	if sameProc > 5 {
		score += 25
		issues = append(issues, "Historical coding issues detected for this procedure")
	}

	return RiskFactor{
		Factor:      "Coding Accuracy",
		Score:       math.Min(score, 100),
		Weight:      s.weights.CodingAccuracy,
		Description: describe(issues, "No coding issues detected"),
		Category:    "coding",
	}, nil
}

func (s *Scorer) timingFactor(in ClaimInput) RiskFactor {
	score := 0.0
	var issues []string

	if in.ServiceDate != nil {
		days := int(s.now().Sub(*in.ServiceDate).Hours() / 24)
		switch {
		case days > 300:
			score = 90
			issues = append(issues, "Approaching timely filing deadline")
		case days > 180:
			score = 40
			issues = append(issues, "Service date is over 6 months ago")
		case days > 90:
			score = 15
			issues = append(issues, "Service date is over 3 months ago")
		}

		if month := in.ServiceDate.Month(); month == time.December || month == time.January {
			score += 10
			issues = append(issues, "Year-end claims may have eligibility changes")
		}
	}

	return RiskFactor{
		Factor:      "Timing Factors",
		Score:       math.Min(score, 100),
		Weight:      s.weights.TimingFactors,
		Description: describe(issues, "No timing concerns"),
		Category:    "timing",
	}
}

func (s *Scorer) documentationFactor(in ClaimInput) RiskFactor {
	score := 0.0
	var issues []string

	if len(in.DiagnosisCodes) == 0 {
		score += 40
		issues = append(issues, "Missing diagnosis codes")
	}
	if in.PlaceOfService == nil {
		score += 15
		issues = append(issues, "Missing place of service")
	}
	if in.BilledAmount > 5000 && !in.HasAuthorization {
		score += 20
		issues = append(issues, "High-cost procedure without supporting authorization")
	}

	return RiskFactor{
		Factor:      "Documentation Completeness",
		Score:       math.Min(score, 100),
		Weight:      s.weights.Documentation,
		Description: describe(issues, "Documentation appears complete"),
		Category:    "documentation",
	}
}

func describe(issues []string, fallback string) string {
	if len(issues) == 0 {
		return fallback
	}
	return strings.Join(issues, "; ")
}

func recommendations(factors []RiskFactor) []string {
	var recs []string
	seen := make(map[string]bool)
	add := func(lines ...string) {
		for _, line := range lines {
			if !seen[line] {
				seen[line] = true
				recs = append(recs, line)
			}
		}
	}

	for _, f := range factors {
		if f.Score <= 30 {
			continue
		}
		switch f.Category {
		case "authorization":
			add("Obtain prior authorization before submission",
				"Verify authorization covers the specific procedure and date of service")
		case "coding":
			add("Review diagnosis-procedure code linkage",
				"Verify modifier usage is appropriate")
		case "documentation":
			add("Ensure medical necessity documentation is complete",
				"Attach supporting clinical notes")
		case "timing":
			add("Submit claim immediately to avoid timely filing issues")
		case "payer":
			add("Review payer-specific requirements before submission",
				"Consider pre-submission inquiry for high-value claims")
		case "procedure":
			add("Include detailed procedure notes for complex services",
				"Consider operative report attachment")
		}
	}
	return recs
}

func modifications(factors []RiskFactor, in ClaimInput) []ClaimModification {
	var mods []ClaimModification
	for _, f := range factors {
		if f.Category == "coding" && f.Score > 40 && len(in.ProcedureModifiers) == 0 {
			mods = append(mods, ClaimModification{
				Field:          "modifiers",
				CurrentValue:   "None",
				SuggestedValue: "Review for applicable modifiers (25, 59, etc.)",
				Reason:         "Modifiers may be required to indicate distinct services",
			})
		}
		if f.Category == "authorization" && f.Score > 50 {
			mods = append(mods, ClaimModification{
				Field:          "priorAuthorization",
				CurrentValue:   "Not present",
				SuggestedValue: "Obtain authorization before submission",
				Reason:         "High likelihood of denial without prior authorization",
			})
		}
	}
	return mods
}

// ScoreDenialRecoverability derives the probability that appealing the
// denial recovers money. Pattern lookups narrow from payer+CARC to
// payer+category to payer-wide; the recovery rate over the matched
// patterns is Laplace-smoothed so sparse history never yields exactly
// 0 or 1.
func (s *Scorer) ScoreDenialRecoverability(ctx context.Context, d *denial.Denial) (*Recoverability, error) {
	lookups := []analytics.PatternFilter{
		{PayerID: &d.PayerID, CARCCode: &d.CARCCode},
		{PayerID: &d.PayerID, DenialCategory: &d.DenialCategory},
		{PayerID: &d.PayerID},
	}
	var patterns []*analytics.DenialPattern
	for _, filter := range lookups {
		found, err := s.patterns.FindPatterns(ctx, filter)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			patterns = found
			break
		}
	}

	attempts, successes := 0, 0
	for _, p := range patterns {
		attempts += p.TotalDenials
		// Clamp per pattern so rows with recovery rates outside [0,1]
		// cannot push the smoothed probability out of (0,1).
		succ := int(math.Round(p.RecoveryRate * float64(p.TotalDenials)))
		if succ > p.TotalDenials {
			succ = p.TotalDenials
		}
		if succ < 0 {
			succ = 0
		}
		successes += succ
	}

	r := &Recoverability{}
	if attempts == 0 {
		r.RecoveryProbability = s.prior
		r.RiskFactors = []string{"insufficient_history"}
	} else {
		r.RecoveryProbability = float64(successes+1) / float64(attempts+2)
		if attempts < 5 {
			r.RiskFactors = append(r.RiskFactors, "insufficient_history")
		}
		if r.RecoveryProbability < 0.25 {
			r.RiskFactors = append(r.RiskFactors, "low_historical_recovery")
		}
	}
	r.PredictedRecoverable = r.RecoveryProbability >= s.threshold

	return r, nil
}

// ScoreAndStoreDenial scores a denial's recoverability and writes the
// verdict back onto the denial row.
func (s *Scorer) ScoreAndStoreDenial(ctx context.Context, denialID denial.DenialID) (*Recoverability, error) {
	d, err := s.denials.GetByID(ctx, denialID)
	if err != nil {
		return nil, err
	}
	r, err := s.ScoreDenialRecoverability(ctx, d)
	if err != nil {
		return nil, err
	}
	d.RecoveryProbability = &r.RecoveryProbability
	d.PredictedRecoverable = r.PredictedRecoverable
	d.RiskFactors = r.RiskFactors
	if err := s.denials.Update(ctx, d); err != nil {
		return nil, err
	}
	return r, nil
}

// BackfillRecoverability rescores every denial matching the filter,
// typically run after an aggregation pass refreshes the patterns.
// Returns the number of denials rescored.
func (s *Scorer) BackfillRecoverability(ctx context.Context, filter denial.DenialFilter) (int, error) {
	denials, err := s.denials.List(ctx, filter)
	if err != nil {
		return 0, err
	}
	for i, d := range denials {
		r, err := s.ScoreDenialRecoverability(ctx, d)
		if err != nil {
			return i, err
		}
		d.RecoveryProbability = &r.RecoveryProbability
		d.PredictedRecoverable = r.PredictedRecoverable
		d.RiskFactors = r.RiskFactors
		if err := s.denials.Update(ctx, d); err != nil {
			return i, err
		}
	}
	return len(denials), nil
}

// MarkClaimSubmitted records that the assessed claim went out, and
// whether the suggested modifications were applied first.
func (s *Scorer) MarkClaimSubmitted(ctx context.Context, claimID denial.ClaimID, wasModified bool) error {
	a, err := s.assessments.GetByClaimID(ctx, claimID)
	if err != nil {
		return err
	}
	a.WasSubmitted = true
	a.WasModified = wasModified
	return s.assessments.Upsert(ctx, a)
}

// RecordClaimOutcome closes the feedback loop with the claim's actual
// adjudication result.
func (s *Scorer) RecordClaimOutcome(ctx context.Context, claimID denial.ClaimID, outcome string) error {
	if outcome != OutcomePaid && outcome != OutcomeDenied && outcome != OutcomePartial {
		return fault.Validation(fmt.Sprintf("invalid claim outcome: %s", outcome))
	}
	a, err := s.assessments.GetByClaimID(ctx, claimID)
	if err != nil {
		return err
	}
	a.ActualOutcome = &outcome
	return s.assessments.Upsert(ctx, a)
}
