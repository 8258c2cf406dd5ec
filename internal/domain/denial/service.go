package denial

import (
	"context"
	"fmt"
	"time"

	"github.com/revcycle/denialengine/internal/platform/fault"
)

// DeadlineDefaults supplies filing-deadline windows for payers without a
// PayerConfig row. Values come from configuration, not from this package.
type DeadlineDefaults struct {
	FirstLevelDays     int
	SecondLevelDays    int
	ExternalReviewDays int
	UrgentWindowDays   int
}

type Service struct {
	denials  DenialRepository
	appeals  AppealRepository
	payers   PayerConfigRepository
	defaults DeadlineDefaults
	now      func() time.Time
}

func NewService(denials DenialRepository, appeals AppealRepository, payers PayerConfigRepository, defaults DeadlineDefaults) *Service {
	return &Service{
		denials:  denials,
		appeals:  appeals,
		payers:   payers,
		defaults: defaults,
		now:      time.Now,
	}
}

// -- Denial --

func (s *Service) CreateDenial(ctx context.Context, d *Denial) error {
	if d.ClaimStatus == "" {
		d.ClaimStatus = ClaimStatusDenied
	}
	if d.DenialDate.IsZero() {
		d.DenialDate = s.now()
	}
	if violations := ValidateDenial(d); len(violations) > 0 {
		return fault.Validation(violations...)
	}
	if d.ID == "" {
		d.ID = NewDenialID()
	}
	d.CreatedAt = s.now()
	d.UpdatedAt = d.CreatedAt
	return s.denials.Create(ctx, d)
}

func (s *Service) GetDenial(ctx context.Context, id DenialID) (*Denial, error) {
	return s.denials.GetByID(ctx, id)
}

func (s *Service) ListDenials(ctx context.Context, filter DenialFilter) ([]*Denial, error) {
	return s.denials.List(ctx, filter)
}

func (s *Service) UpdateDenial(ctx context.Context, d *Denial) error {
	if violations := ValidateDenial(d); len(violations) > 0 {
		return fault.Validation(violations...)
	}
	d.UpdatedAt = s.now()
	return s.denials.Update(ctx, d)
}

// RecordRecovery posts a recovery against the denial outside the appeal
// workflow, for payments that come back on a corrected claim or a payer
// adjustment rather than an appeal decision.
func (s *Service) RecordRecovery(ctx context.Context, id DenialID, amount float64) error {
	if amount < 0 {
		return fault.Validation("recovered_amount must be non-negative")
	}
	d, err := s.denials.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if amount > d.BilledAmount {
		return fault.Validation("recovered_amount must not exceed billed_amount")
	}
	d.RecoveredAmount = &amount
	d.ClaimStatus = ClaimStatusRecovered
	return s.UpdateDenial(ctx, d)
}

// RecordWriteOff marks the denial as abandoned for the given amount.
func (s *Service) RecordWriteOff(ctx context.Context, id DenialID, amount float64) error {
	if amount < 0 {
		return fault.Validation("write_off_amount must be non-negative")
	}
	d, err := s.denials.GetByID(ctx, id)
	if err != nil {
		return err
	}
	d.WriteOffAmount = &amount
	d.ClaimStatus = ClaimStatusWrittenOff
	return s.UpdateDenial(ctx, d)
}

// -- Appeal lifecycle --

// deadlineDays resolves the filing window for an appeal at the given
// level. External review always uses the external window regardless of
// level; otherwise the window follows the level.
func (s *Service) deadlineDays(level int, appealType AppealType, cfg *PayerConfig) int {
	switch {
	case appealType == AppealTypeExternalReview || level >= 3:
		if cfg != nil && cfg.ExternalReviewDeadlineDays > 0 {
			return cfg.ExternalReviewDeadlineDays
		}
		return s.defaults.ExternalReviewDays
	case level == 2:
		if cfg != nil && cfg.SecondLevelDeadlineDays > 0 {
			return cfg.SecondLevelDeadlineDays
		}
		return s.defaults.SecondLevelDays
	default:
		if cfg != nil && cfg.FirstLevelDeadlineDays > 0 {
			return cfg.FirstLevelDeadlineDays
		}
		return s.defaults.FirstLevelDays
	}
}

// newAppeal builds the next-level appeal for d. Levels stay dense: the
// new appeal is always at len(existing)+1.
func (s *Service) newAppeal(ctx context.Context, d *Denial, existing []*Appeal, appealType AppealType, docs []string) (*Appeal, error) {
	for _, a := range existing {
		if a.Status.Open() {
			return nil, fault.Conflict("denial %s already has an open appeal at level %d", d.ID, a.AppealLevel)
		}
	}
	level := len(existing) + 1

	cfg, err := s.payers.GetByPayerID(ctx, d.PayerID)
	if err != nil {
		return nil, err
	}
	days := s.deadlineDays(level, appealType, cfg)

	now := s.now()
	a := &Appeal{
		ID:                  NewAppealID(),
		DenialID:            d.ID,
		AppealLevel:         level,
		AppealType:          appealType,
		Status:              StatusDraft,
		FilingDeadline:      d.DenialDate.AddDate(0, 0, days),
		SupportingDocuments: docs,
		VersionID:           1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if cfg != nil {
		a.PayerAppealStrategy = cfg.StrategySnapshot()
	}
	if violations := ValidateAppeal(a); len(violations) > 0 {
		return nil, fault.Validation(violations...)
	}
	if err := s.appeals.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAppeal opens a draft appeal for the denial at the next level.
// Fails with ConflictError while another appeal is still open.
func (s *Service) CreateAppeal(ctx context.Context, denialID DenialID, appealType AppealType, docs []string) (*Appeal, error) {
	if !appealType.Valid() {
		return nil, fault.Validation(fmt.Sprintf("invalid appeal_type: %s", appealType))
	}
	d, err := s.denials.GetByID(ctx, denialID)
	if err != nil {
		return nil, err
	}
	existing, err := s.appeals.ListByDenial(ctx, denialID)
	if err != nil {
		return nil, err
	}
	return s.newAppeal(ctx, d, existing, appealType, docs)
}

func (s *Service) GetAppeal(ctx context.Context, id AppealID) (*Appeal, error) {
	return s.appeals.GetByID(ctx, id)
}

func (s *Service) ListAppeals(ctx context.Context, denialID DenialID) ([]*Appeal, error) {
	return s.appeals.ListByDenial(ctx, denialID)
}

// applyEvent runs the state machine for one event and persists the
// result. The appeal is untouched when the event is illegal.
func (s *Service) applyEvent(ctx context.Context, id AppealID, event Event, sideEffects func(a *Appeal) error) (*Appeal, error) {
	a, err := s.appeals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := NextStatus(a.Status, event)
	if err != nil {
		return nil, err
	}
	a.Status = next
	if sideEffects != nil {
		if err := sideEffects(a); err != nil {
			return nil, err
		}
	}
	a.UpdatedAt = s.now()
	if err := s.appeals.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) SubmitForReview(ctx context.Context, id AppealID) (*Appeal, error) {
	return s.applyEvent(ctx, id, EventSubmitForReview, nil)
}

func (s *Service) Approve(ctx context.Context, id AppealID) (*Appeal, error) {
	return s.applyEvent(ctx, id, EventApprove, nil)
}

// FileAppeal submits the appeal to the payer: stamps submittedDate,
// derives the response deadline from the payer's window for this level,
// and flips the underlying claim to appealed.
func (s *Service) FileAppeal(ctx context.Context, id AppealID) (*Appeal, error) {
	a, err := s.applyEvent(ctx, id, EventFile, func(a *Appeal) error {
		d, err := s.denials.GetByID(ctx, a.DenialID)
		if err != nil {
			return err
		}
		cfg, err := s.payers.GetByPayerID(ctx, d.PayerID)
		if err != nil {
			return err
		}
		now := s.now()
		deadline := now.AddDate(0, 0, s.deadlineDays(a.AppealLevel, a.AppealType, cfg))
		a.SubmittedDate = &now
		a.ResponseDeadline = &deadline
		return nil
	})
	if err != nil {
		return nil, err
	}

	d, err := s.denials.GetByID(ctx, a.DenialID)
	if err != nil {
		return nil, err
	}
	d.ClaimStatus = ClaimStatusAppealed
	if err := s.UpdateDenial(ctx, d); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Acknowledge(ctx context.Context, id AppealID) (*Appeal, error) {
	return s.applyEvent(ctx, id, EventAcknowledge, nil)
}

func (s *Service) RequestAdditionalInfo(ctx context.Context, id AppealID) (*Appeal, error) {
	return s.applyEvent(ctx, id, EventPayerRequestsInfo, nil)
}

func (s *Service) ProvideAdditionalInfo(ctx context.Context, id AppealID, docs []string) (*Appeal, error) {
	return s.applyEvent(ctx, id, EventInfoProvided, func(a *Appeal) error {
		a.SupportingDocuments = append(a.SupportingDocuments, docs...)
		return nil
	})
}

// RecordPayerResponse resolves the appeal with the payer's decision and
// posts the financial outcome back onto the denial. Overturn outcomes
// default the recovered amount to the full billed amount when the payer
// did not state an adjusted amount.
func (s *Service) RecordPayerResponse(ctx context.Context, id AppealID, outcome AppealOutcome, adjustedAmount *float64, reason *string, completedBy *StaffID) (*Appeal, error) {
	if outcome != OutcomeOverturnedFull && outcome != OutcomeOverturnedPartial && outcome != OutcomeUpheld {
		return nil, fault.Validation(fmt.Sprintf("outcome %s cannot be recorded as a payer response", outcome))
	}
	if adjustedAmount != nil && *adjustedAmount < 0 {
		return nil, fault.Validation("adjusted_amount must be non-negative")
	}

	existing, err := s.appeals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := s.denials.GetByID(ctx, existing.DenialID)
	if err != nil {
		return nil, err
	}
	if adjustedAmount != nil && *adjustedAmount > d.BilledAmount {
		return nil, fault.Validation("adjusted_amount must not exceed billed_amount")
	}

	a, err := s.applyEvent(ctx, id, EventPayerResponds, func(a *Appeal) error {
		now := s.now()
		a.ResponseDate = &now
		a.Outcome = &outcome
		a.OutcomeReason = reason
		if outcome.Overturn() {
			a.AdjustedAmount = adjustedAmount
		}
		a.CompletedBy = completedBy
		s.markCompleted(a, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case outcome.Overturn():
		recovered := d.BilledAmount
		if a.AdjustedAmount != nil {
			recovered = *a.AdjustedAmount
		}
		d.RecoveredAmount = &recovered
		d.ClaimStatus = ClaimStatusRecovered
	case outcome == OutcomeUpheld:
		d.ClaimStatus = ClaimStatusAppealDenied
	}
	if err := s.UpdateDenial(ctx, d); err != nil {
		return nil, err
	}
	return a, nil
}

// MarkDeadlineExpired resolves a pending appeal whose response deadline
// lapsed without a payer decision.
func (s *Service) MarkDeadlineExpired(ctx context.Context, id AppealID) (*Appeal, error) {
	return s.applyEvent(ctx, id, EventDeadlinePassed, func(a *Appeal) error {
		expired := OutcomeExpired
		a.Outcome = &expired
		s.markCompleted(a, s.now())
		return nil
	})
}

// Withdraw closes the appeal from any non-terminal state. An appeal
// that already carries a decision (a resolved appeal being withdrawn
// from further pursuit) keeps that outcome; otherwise the outcome is
// recorded as withdrawn.
func (s *Service) Withdraw(ctx context.Context, id AppealID, reason *string) (*Appeal, error) {
	return s.applyEvent(ctx, id, EventWithdraw, func(a *Appeal) error {
		if a.Outcome == nil {
			withdrawn := OutcomeWithdrawn
			a.Outcome = &withdrawn
		}
		if reason != nil {
			a.OutcomeReason = reason
		}
		s.markCompleted(a, s.now())
		return nil
	})
}

func (s *Service) CloseAppeal(ctx context.Context, id AppealID) (*Appeal, error) {
	return s.applyEvent(ctx, id, EventClose, nil)
}

func (s *Service) markCompleted(a *Appeal, now time.Time) {
	if a.CompletedAt != nil {
		return
	}
	a.CompletedAt = &now
	if a.AssignedAt != nil {
		minutes := int(now.Sub(*a.AssignedAt).Minutes())
		a.ProcessingTimeMinutes = &minutes
	}
}

// Escalate creates the next-level draft appeal for a denial whose latest
// appeal was resolved as upheld. Level 2 moves to peer-to-peer review,
// level 3 and beyond go to external review.
func (s *Service) Escalate(ctx context.Context, id AppealID) (*Appeal, error) {
	a, err := s.appeals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusResolved || a.Outcome == nil || *a.Outcome != OutcomeUpheld {
		return nil, fault.InvalidTransition(string(a.Status), "escalate")
	}

	d, err := s.denials.GetByID(ctx, a.DenialID)
	if err != nil {
		return nil, err
	}
	existing, err := s.appeals.ListByDenial(ctx, a.DenialID)
	if err != nil {
		return nil, err
	}
	if len(existing) != a.AppealLevel {
		return nil, fault.Conflict("appeal %s is not the latest level for denial %s", a.ID, d.ID)
	}

	nextType := AppealTypePeerToPeer
	if a.AppealLevel+1 >= 3 {
		nextType = AppealTypeExternalReview
	}
	return s.newAppeal(ctx, d, existing, nextType, nil)
}

// AssignAppeal hands the appeal to a staff member for working.
func (s *Service) AssignAppeal(ctx context.Context, id AppealID, staffID StaffID) (*Appeal, error) {
	a, err := s.appeals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.Open() {
		return nil, fault.InvalidTransition(string(a.Status), "assign")
	}
	now := s.now()
	a.AssignedTo = &staffID
	a.AssignedAt = &now
	a.UpdatedAt = now
	if err := s.appeals.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListUrgentAppeals returns open appeals whose filing deadline falls
// inside the configured urgent window.
func (s *Service) ListUrgentAppeals(ctx context.Context) ([]*Appeal, error) {
	cutoff := s.now().AddDate(0, 0, s.defaults.UrgentWindowDays)
	return s.appeals.ListOpenWithDeadlineBefore(ctx, cutoff)
}

// -- PayerConfig --

func (s *Service) GetPayerConfig(ctx context.Context, payerID PayerID) (*PayerConfig, error) {
	return s.payers.GetByPayerID(ctx, payerID)
}

func (s *Service) SavePayerConfig(ctx context.Context, pc *PayerConfig) error {
	if pc.PayerID == "" {
		return fault.Validation("payer_id is required")
	}
	if pc.FirstLevelDeadlineDays <= 0 || pc.SecondLevelDeadlineDays <= 0 || pc.ExternalReviewDeadlineDays <= 0 {
		return fault.Validation("deadline days must be positive")
	}
	pc.UpdatedAt = s.now()
	return s.payers.Upsert(ctx, pc)
}
