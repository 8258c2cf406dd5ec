package denial

import "fmt"

// ValidateDenial checks the denial against its data-model invariants and
// returns the list of violations, empty when valid. Business-rule
// violations are reported, never panicked on.
func ValidateDenial(d *Denial) []string {
	var violations []string

	if d.ClaimID == "" {
		violations = append(violations, "claim_id is required")
	}
	if d.PatientID == "" {
		violations = append(violations, "patient_id is required")
	}
	if d.ProviderID == "" {
		violations = append(violations, "provider_id is required")
	}
	if d.PayerID == "" {
		violations = append(violations, "payer_id is required")
	}
	if d.CARCCode == "" {
		violations = append(violations, "carc_code is required")
	}
	if d.CARCDescription == "" {
		violations = append(violations, "carc_description is required")
	}
	if d.ProcedureCode == "" {
		violations = append(violations, "procedure_code is required")
	}
	if d.ClaimStatus != "" && !d.ClaimStatus.Valid() {
		violations = append(violations, fmt.Sprintf("invalid claim_status: %s", d.ClaimStatus))
	}
	if !d.DenialCategory.Valid() {
		violations = append(violations, fmt.Sprintf("invalid denial_category: %s", d.DenialCategory))
	}

	if d.BilledAmount < 0 {
		violations = append(violations, "billed_amount must be non-negative")
	}
	for name, amt := range map[string]*float64{
		"allowed_amount":         d.AllowedAmount,
		"paid_amount":            d.PaidAmount,
		"patient_responsibility": d.PatientResponsibility,
		"recovered_amount":       d.RecoveredAmount,
		"write_off_amount":       d.WriteOffAmount,
	} {
		if amt != nil && *amt < 0 {
			violations = append(violations, name+" must be non-negative")
		}
	}

	if d.AllowedAmount != nil && d.BilledAmount < *d.AllowedAmount {
		violations = append(violations, "billed_amount must be >= allowed_amount")
	}
	if d.AllowedAmount != nil && d.PaidAmount != nil && *d.AllowedAmount < *d.PaidAmount {
		violations = append(violations, "allowed_amount must be >= paid_amount")
	}
	if d.AllowedAmount != nil && d.PaidAmount != nil && d.PatientResponsibility != nil &&
		*d.PaidAmount+*d.PatientResponsibility > *d.AllowedAmount {
		violations = append(violations, "paid_amount + patient_responsibility must not exceed allowed_amount")
	}

	if d.ServiceDate.IsZero() {
		violations = append(violations, "service_date is required")
	} else if !d.DenialDate.IsZero() && d.ServiceDate.After(d.DenialDate) {
		violations = append(violations, "service_date must be on or before denial_date")
	}

	if d.RecoveryProbability != nil && (*d.RecoveryProbability < 0 || *d.RecoveryProbability > 1) {
		violations = append(violations, "recovery_probability must be within [0,1]")
	}

	return violations
}

// ValidateAppeal checks the appeal against its data-model invariants and
// returns the list of violations, empty when valid. Level density across
// a denial's appeals is enforced by the service at creation, not here.
func ValidateAppeal(a *Appeal) []string {
	var violations []string

	if a.DenialID == "" {
		violations = append(violations, "denial_id is required")
	}
	if a.AppealLevel < 1 {
		violations = append(violations, "appeal_level must be a positive integer")
	}
	if !a.AppealType.Valid() {
		violations = append(violations, fmt.Sprintf("invalid appeal_type: %s", a.AppealType))
	}
	if a.Status != "" && !a.Status.Valid() {
		violations = append(violations, fmt.Sprintf("invalid status: %s", a.Status))
	}
	if a.FilingDeadline.IsZero() {
		violations = append(violations, "filing_deadline is required")
	}
	if a.Outcome != nil && !a.Outcome.Valid() {
		violations = append(violations, fmt.Sprintf("invalid outcome: %s", *a.Outcome))
	}
	if a.AdjustedAmount != nil && *a.AdjustedAmount < 0 {
		violations = append(violations, "adjusted_amount must be non-negative")
	}
	if a.SubmittedDate != nil && a.ResponseDeadline != nil && a.ResponseDeadline.Before(*a.SubmittedDate) {
		violations = append(violations, "response_deadline must be on or after submitted_date")
	}

	return violations
}
