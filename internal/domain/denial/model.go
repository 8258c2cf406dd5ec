package denial

import (
	"time"

	"github.com/google/uuid"
)

// Opaque identifier types. Claim, patient, provider, payer, and staff IDs
// originate in upstream systems and are never dereferenced here; wrapping
// them keeps a PayerID from ever being passed where a ClaimID belongs.
type (
	DenialID   string
	AppealID   string
	ClaimID    string
	PatientID  string
	ProviderID string
	PayerID    string
	StaffID    string
)

func NewDenialID() DenialID { return DenialID(uuid.NewString()) }
func NewAppealID() AppealID { return AppealID(uuid.NewString()) }

// ClaimStatus tracks where a denied claim sits in the recovery lifecycle.
type ClaimStatus string

const (
	ClaimStatusPending         ClaimStatus = "pending"
	ClaimStatusDenied          ClaimStatus = "denied"
	ClaimStatusPartiallyDenied ClaimStatus = "partially_denied"
	ClaimStatusAppealed        ClaimStatus = "appealed"
	ClaimStatusAppealPending   ClaimStatus = "appeal_pending"
	ClaimStatusAppealApproved  ClaimStatus = "appeal_approved"
	ClaimStatusAppealDenied    ClaimStatus = "appeal_denied"
	ClaimStatusRecovered       ClaimStatus = "recovered"
	ClaimStatusWrittenOff      ClaimStatus = "written_off"
)

var validClaimStatuses = map[ClaimStatus]bool{
	ClaimStatusPending: true, ClaimStatusDenied: true, ClaimStatusPartiallyDenied: true,
	ClaimStatusAppealed: true, ClaimStatusAppealPending: true, ClaimStatusAppealApproved: true,
	ClaimStatusAppealDenied: true, ClaimStatusRecovered: true, ClaimStatusWrittenOff: true,
}

func (s ClaimStatus) Valid() bool { return validClaimStatuses[s] }

// DenialCategory classifies the payer's stated reason for the denial.
type DenialCategory string

const (
	CategoryPriorAuthorization     DenialCategory = "prior_authorization"
	CategoryMedicalNecessity       DenialCategory = "medical_necessity"
	CategoryCodingError            DenialCategory = "coding_error"
	CategoryDuplicateClaim         DenialCategory = "duplicate_claim"
	CategoryTimelyFiling           DenialCategory = "timely_filing"
	CategoryEligibility            DenialCategory = "eligibility"
	CategoryCoordinationOfBenefits DenialCategory = "coordination_of_benefits"
	CategoryBundling               DenialCategory = "bundling"
	CategoryModifierIssue          DenialCategory = "modifier_issue"
	CategoryDocumentation          DenialCategory = "documentation"
	CategoryNonCoveredService      DenialCategory = "non_covered_service"
	CategoryOutOfNetwork           DenialCategory = "out_of_network"
	CategoryBenefitExhausted       DenialCategory = "benefit_exhausted"
	CategoryPreExistingCondition   DenialCategory = "pre_existing_condition"
	CategoryOther                  DenialCategory = "other"
)

var validCategories = map[DenialCategory]bool{
	CategoryPriorAuthorization: true, CategoryMedicalNecessity: true, CategoryCodingError: true,
	CategoryDuplicateClaim: true, CategoryTimelyFiling: true, CategoryEligibility: true,
	CategoryCoordinationOfBenefits: true, CategoryBundling: true, CategoryModifierIssue: true,
	CategoryDocumentation: true, CategoryNonCoveredService: true, CategoryOutOfNetwork: true,
	CategoryBenefitExhausted: true, CategoryPreExistingCondition: true, CategoryOther: true,
}

func (c DenialCategory) Valid() bool { return validCategories[c] }

// AppealType distinguishes the review channel an appeal goes through.
type AppealType string

const (
	AppealTypeClinicalReview       AppealType = "clinical_review"
	AppealTypeAdministrativeReview AppealType = "administrative_review"
	AppealTypePeerToPeer           AppealType = "peer_to_peer"
	AppealTypeExternalReview       AppealType = "external_review"
	AppealTypeExpedited            AppealType = "expedited"
)

var validAppealTypes = map[AppealType]bool{
	AppealTypeClinicalReview: true, AppealTypeAdministrativeReview: true,
	AppealTypePeerToPeer: true, AppealTypeExternalReview: true, AppealTypeExpedited: true,
}

func (t AppealType) Valid() bool { return validAppealTypes[t] }

// AppealStatus is the workflow state of an appeal. Transitions between
// statuses are governed by the state machine in workflow.go.
type AppealStatus string

const (
	StatusDraft                   AppealStatus = "draft"
	StatusPendingReview           AppealStatus = "pending_review"
	StatusApprovedForSubmission   AppealStatus = "approved_for_submission"
	StatusSubmitted               AppealStatus = "submitted"
	StatusPendingResponse         AppealStatus = "pending_response"
	StatusAdditionalInfoRequested AppealStatus = "additional_info_requested"
	StatusResolved                AppealStatus = "resolved"
	StatusClosed                  AppealStatus = "closed"
)

var validAppealStatuses = map[AppealStatus]bool{
	StatusDraft: true, StatusPendingReview: true, StatusApprovedForSubmission: true,
	StatusSubmitted: true, StatusPendingResponse: true, StatusAdditionalInfoRequested: true,
	StatusResolved: true, StatusClosed: true,
}

func (s AppealStatus) Valid() bool { return validAppealStatuses[s] }

// Terminal reports whether no further transitions are possible.
func (s AppealStatus) Terminal() bool { return s == StatusClosed }

// Open reports whether the appeal is still actively worked, i.e. neither
// decided (resolved) nor closed. Only open appeals block the creation of
// a new appeal for the same denial.
func (s AppealStatus) Open() bool { return s != StatusResolved && s != StatusClosed }

// AppealOutcome is the payer's decision, set only on terminal transitions.
type AppealOutcome string

const (
	OutcomeOverturnedFull    AppealOutcome = "overturned_full"
	OutcomeOverturnedPartial AppealOutcome = "overturned_partial"
	OutcomeUpheld            AppealOutcome = "upheld"
	OutcomeWithdrawn         AppealOutcome = "withdrawn"
	OutcomeExpired           AppealOutcome = "expired"
)

var validOutcomes = map[AppealOutcome]bool{
	OutcomeOverturnedFull: true, OutcomeOverturnedPartial: true,
	OutcomeUpheld: true, OutcomeWithdrawn: true, OutcomeExpired: true,
}

func (o AppealOutcome) Valid() bool { return validOutcomes[o] }

// Overturn reports whether the outcome recovered money.
func (o AppealOutcome) Overturn() bool {
	return o == OutcomeOverturnedFull || o == OutcomeOverturnedPartial
}

// Denial maps to the denial table: one denied or partially denied claim
// line as reported on an 835 remittance advice.
type Denial struct {
	ID         DenialID   `db:"id" json:"id"`
	ClaimID    ClaimID    `db:"claim_id" json:"claim_id"`
	PatientID  PatientID  `db:"patient_id" json:"patient_id"`
	ProviderID ProviderID `db:"provider_id" json:"provider_id"`
	PayerID    PayerID    `db:"payer_id" json:"payer_id"`
	PayerName  string     `db:"payer_name" json:"payer_name"`

	ClaimStatus ClaimStatus `db:"claim_status" json:"claim_status"`
	DenialDate  time.Time   `db:"denial_date" json:"denial_date"`
	ServiceDate time.Time   `db:"service_date" json:"service_date"`

	BilledAmount          float64  `db:"billed_amount" json:"billed_amount"`
	AllowedAmount         *float64 `db:"allowed_amount" json:"allowed_amount,omitempty"`
	PaidAmount            *float64 `db:"paid_amount" json:"paid_amount,omitempty"`
	PatientResponsibility *float64 `db:"patient_responsibility" json:"patient_responsibility,omitempty"`

	CARCCode        string   `db:"carc_code" json:"carc_code"`
	CARCDescription string   `db:"carc_description" json:"carc_description"`
	RARCCodes       []string `db:"rarc_codes" json:"rarc_codes,omitempty"`
	GroupCode       string   `db:"group_code" json:"group_code"`

	ProcedureCode      string   `db:"procedure_code" json:"procedure_code"`
	ProcedureModifiers []string `db:"procedure_modifiers" json:"procedure_modifiers,omitempty"`
	DiagnosisCodes     []string `db:"diagnosis_codes" json:"diagnosis_codes,omitempty"`
	PlaceOfService     *string  `db:"place_of_service" json:"place_of_service,omitempty"`

	X277StatusCode    *string `db:"x277_status_code" json:"x277_status_code,omitempty"`
	X277StatusMessage *string `db:"x277_status_message" json:"x277_status_message,omitempty"`

	PredictedRecoverable bool     `db:"predicted_recoverable" json:"predicted_recoverable"`
	RecoveryProbability  *float64 `db:"recovery_probability" json:"recovery_probability,omitempty"`
	RiskFactors          []string `db:"risk_factors" json:"risk_factors,omitempty"`

	DenialCategory DenialCategory `db:"denial_category" json:"denial_category"`
	RootCause      *string        `db:"root_cause" json:"root_cause,omitempty"`

	RecoveredAmount *float64 `db:"recovered_amount" json:"recovered_amount,omitempty"`
	WriteOffAmount  *float64 `db:"write_off_amount" json:"write_off_amount,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Appeal maps to the appeal table: one attempt, at one level, to overturn
// a denial.
type Appeal struct {
	ID       AppealID `db:"id" json:"id"`
	DenialID DenialID `db:"denial_id" json:"denial_id"`

	AppealLevel int          `db:"appeal_level" json:"appeal_level"`
	AppealType  AppealType   `db:"appeal_type" json:"appeal_type"`
	Status      AppealStatus `db:"status" json:"status"`

	// Snapshot of payer requirements taken at creation time, not a live
	// reference to the PayerConfig row.
	PayerAppealStrategy map[string]interface{} `db:"payer_appeal_strategy" json:"payer_appeal_strategy,omitempty"`

	SupportingDocuments []string `db:"supporting_documents" json:"supporting_documents,omitempty"`

	FilingDeadline   time.Time  `db:"filing_deadline" json:"filing_deadline"`
	SubmittedDate    *time.Time `db:"submitted_date" json:"submitted_date,omitempty"`
	ResponseDeadline *time.Time `db:"response_deadline" json:"response_deadline,omitempty"`
	ResponseDate     *time.Time `db:"response_date" json:"response_date,omitempty"`

	Outcome        *AppealOutcome `db:"outcome" json:"outcome,omitempty"`
	OutcomeReason  *string        `db:"outcome_reason" json:"outcome_reason,omitempty"`
	AdjustedAmount *float64       `db:"adjusted_amount" json:"adjusted_amount,omitempty"`

	AssignedTo            *StaffID   `db:"assigned_to" json:"assigned_to,omitempty"`
	AssignedAt            *time.Time `db:"assigned_at" json:"assigned_at,omitempty"`
	CompletedBy           *StaffID   `db:"completed_by" json:"completed_by,omitempty"`
	CompletedAt           *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ProcessingTimeMinutes *int       `db:"processing_time_minutes" json:"processing_time_minutes,omitempty"`

	VersionID int       `db:"version_id" json:"version_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GetVersionID returns the current version.
func (a *Appeal) GetVersionID() int { return a.VersionID }

// SetVersionID sets the current version.
func (a *Appeal) SetVersionID(v int) { a.VersionID = v }

// PayerConfig maps to the payer_config table: per-payer appeal rules,
// one row per payer.
type PayerConfig struct {
	ID        string  `db:"id" json:"id"`
	PayerID   PayerID `db:"payer_id" json:"payer_id"`
	PayerName string  `db:"payer_name" json:"payer_name"`

	FirstLevelDeadlineDays     int `db:"first_level_deadline_days" json:"first_level_deadline_days"`
	SecondLevelDeadlineDays    int `db:"second_level_deadline_days" json:"second_level_deadline_days"`
	ExternalReviewDeadlineDays int `db:"external_review_deadline_days" json:"external_review_deadline_days"`

	RequiresClinicalNotes            bool `db:"requires_clinical_notes" json:"requires_clinical_notes"`
	RequiresMedicalRecords           bool `db:"requires_medical_records" json:"requires_medical_records"`
	RequiresLetterOfMedicalNecessity bool `db:"requires_letter_of_medical_necessity" json:"requires_letter_of_medical_necessity"`
	AcceptsElectronicAppeals         bool `db:"accepts_electronic_appeals" json:"accepts_electronic_appeals"`

	AppealAddress   map[string]interface{} `db:"appeal_address" json:"appeal_address,omitempty"`
	AppealFaxNumber *string                `db:"appeal_fax_number" json:"appeal_fax_number,omitempty"`
	AppealEmail     *string                `db:"appeal_email" json:"appeal_email,omitempty"`
	AppealPortalURL *string                `db:"appeal_portal_url" json:"appeal_portal_url,omitempty"`

	PreferredFormat     *string `db:"preferred_format" json:"preferred_format,omitempty"`
	SpecialInstructions *string `db:"special_instructions" json:"special_instructions,omitempty"`

	FirstLevelSuccessRate     *float64 `db:"first_level_success_rate" json:"first_level_success_rate,omitempty"`
	SecondLevelSuccessRate    *float64 `db:"second_level_success_rate" json:"second_level_success_rate,omitempty"`
	ExternalReviewSuccessRate *float64 `db:"external_review_success_rate" json:"external_review_success_rate,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StrategySnapshot flattens the payer's appeal requirements into the map
// stored on each Appeal at creation time.
func (pc *PayerConfig) StrategySnapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"payer_name":                           pc.PayerName,
		"requires_clinical_notes":              pc.RequiresClinicalNotes,
		"requires_medical_records":             pc.RequiresMedicalRecords,
		"requires_letter_of_medical_necessity": pc.RequiresLetterOfMedicalNecessity,
		"accepts_electronic_appeals":           pc.AcceptsElectronicAppeals,
	}
	if pc.PreferredFormat != nil {
		snap["preferred_format"] = *pc.PreferredFormat
	}
	if pc.SpecialInstructions != nil {
		snap["special_instructions"] = *pc.SpecialInstructions
	}
	if pc.AppealPortalURL != nil {
		snap["appeal_portal_url"] = *pc.AppealPortalURL
	}
	if pc.AppealFaxNumber != nil {
		snap["appeal_fax_number"] = *pc.AppealFaxNumber
	}
	if pc.AppealEmail != nil {
		snap["appeal_email"] = *pc.AppealEmail
	}
	return snap
}
