package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/revcycle/denialengine/internal/domain/denial"
)

// Service recomputes the aggregate tables from the denial and appeal
// stores. Every operation is a full recompute over its period: running
// it twice over the same inputs writes identical rows.
type Service struct {
	denials  denial.DenialRepository
	appeals  denial.AppealRepository
	patterns PatternRepository
	staff    StaffProductivityRepository
	revenue  RevenueRecoveryRepository
	now      func() time.Time
}

func NewService(
	denials denial.DenialRepository,
	appeals denial.AppealRepository,
	patterns PatternRepository,
	staff StaffProductivityRepository,
	revenue RevenueRecoveryRepository,
) *Service {
	return &Service{
		denials:  denials,
		appeals:  appeals,
		patterns: patterns,
		staff:    staff,
		revenue:  revenue,
		now:      time.Now,
	}
}

func (s *Service) FindPatterns(ctx context.Context, filter PatternFilter) ([]*DenialPattern, error) {
	return s.patterns.FindPatterns(ctx, filter)
}

// patternKey groups denials for one pattern row. Diagnosis stays the
// wildcard at this granularity; diagnosis-level rows would explode the
// row count without a consumer that needs them.
type patternKey struct {
	payerID       denial.PayerID
	procedureCode string
	carcCode      string
}

type patternAccum struct {
	payerName    string
	category     denial.DenialCategory
	denials      []*denial.Denial
	billed       float64
	recovered    float64
	monthCount   map[string]int
	monthAmount  map[string]float64
	recoveryDays []int
}

// AggregatePatterns recomputes the denial_pattern rows for the period
// at payer/procedure/carc granularity. totalClaims is the count of all
// claims submitted in the period, supplied by the claims pipeline; a
// zero value leaves denial_rate at 0. Returns the number of rows
// written.
func (s *Service) AggregatePatterns(ctx context.Context, period Period, totalClaims int) (int, error) {
	denials, err := s.denials.List(ctx, denial.DenialFilter{
		DeniedFrom: &period.Start,
		DeniedTo:   &period.End,
	})
	if err != nil {
		return 0, err
	}

	months := monthLabels(period)
	groups := make(map[patternKey]*patternAccum)
	for _, d := range denials {
		key := patternKey{payerID: d.PayerID, procedureCode: d.ProcedureCode, carcCode: d.CARCCode}
		acc, ok := groups[key]
		if !ok {
			acc = &patternAccum{
				payerName:   d.PayerName,
				category:    d.DenialCategory,
				monthCount:  make(map[string]int),
				monthAmount: make(map[string]float64),
			}
			groups[key] = acc
		}
		acc.denials = append(acc.denials, d)
		acc.billed += d.BilledAmount
		if d.RecoveredAmount != nil {
			acc.recovered += *d.RecoveredAmount
		}
		month := d.DenialDate.UTC().Format("Jan 2006")
		acc.monthCount[month]++
		acc.monthAmount[month] += d.BilledAmount

		if d.RecoveredAmount != nil && *d.RecoveredAmount > 0 {
			if days, ok, err := s.recoveryDays(ctx, d); err != nil {
				return 0, err
			} else if ok {
				acc.recoveryDays = append(acc.recoveryDays, days)
			}
		}
	}

	keys := make([]patternKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.payerID != b.payerID {
			return a.payerID < b.payerID
		}
		if a.procedureCode != b.procedureCode {
			return a.procedureCode < b.procedureCode
		}
		return a.carcCode < b.carcCode
	})

	written := 0
	for _, key := range keys {
		acc := groups[key]
		p := s.buildPattern(key, acc, period, months, totalClaims)
		if err := s.patterns.Upsert(ctx, p); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (s *Service) buildPattern(key patternKey, acc *patternAccum, period Period, months []string, totalClaims int) *DenialPattern {
	procedure := key.procedureCode
	carc := key.carcCode
	category := acc.category

	p := &DenialPattern{
		PayerID:              key.payerID,
		PayerName:            acc.payerName,
		ProcedureCode:        &procedure,
		CARCCode:             &carc,
		DenialCategory:       &category,
		TotalDenials:         len(acc.denials),
		TotalBilledAmount:    acc.billed,
		TotalRecoveredAmount: acc.recovered,
		PeriodStart:          period.Start,
		PeriodEnd:            period.End,
		SuggestedActions:     suggestedActions(category),
	}
	if totalClaims > 0 {
		p.DenialRate = float64(len(acc.denials)) / float64(totalClaims)
	}
	if acc.billed > 0 {
		p.RecoveryRate = acc.recovered / acc.billed
	}
	if len(acc.recoveryDays) > 0 {
		total := 0
		for _, d := range acc.recoveryDays {
			total += d
		}
		avg := int(math.Round(float64(total) / float64(len(acc.recoveryDays))))
		p.AverageRecoveryTimeDays = &avg
	}
	for _, month := range months {
		p.MonthlyTrend = append(p.MonthlyTrend, TrendPoint{
			Month:  month,
			Count:  acc.monthCount[month],
			Amount: acc.monthAmount[month],
		})
	}
	risk := PatternRiskScore(p.DenialRate, p.RecoveryRate)
	p.RiskScore = &risk
	return p
}

// recoveryDays measures denial date to the completion of the appeal
// that overturned it. Reports false when no overturn completion exists,
// e.g. a recovery posted outside the appeal workflow.
func (s *Service) recoveryDays(ctx context.Context, d *denial.Denial) (int, bool, error) {
	appeals, err := s.appeals.ListByDenial(ctx, d.ID)
	if err != nil {
		return 0, false, err
	}
	var completed *time.Time
	for _, a := range appeals {
		if a.Outcome == nil || !a.Outcome.Overturn() || a.CompletedAt == nil {
			continue
		}
		if completed == nil || a.CompletedAt.After(*completed) {
			completed = a.CompletedAt
		}
	}
	if completed == nil {
		return 0, false, nil
	}
	return int(completed.Sub(d.DenialDate).Hours() / 24), true, nil
}

func monthLabels(period Period) []string {
	var months []string
	cur := time.Date(period.Start.Year(), period.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for cur.Before(period.End) {
		months = append(months, cur.Format("Jan 2006"))
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

func suggestedActions(category denial.DenialCategory) []string {
	switch category {
	case denial.CategoryPriorAuthorization:
		return []string{
			"Implement automated prior auth verification",
			"Create pre-service checklist for high-denial procedures",
		}
	case denial.CategoryMedicalNecessity:
		return []string{
			"Enhance clinical documentation templates",
			"Provide medical necessity training to providers",
		}
	case denial.CategoryCodingError:
		return []string{
			"Review coding guidelines for this procedure",
			"Consider coding audit for high-volume coders",
		}
	case denial.CategoryTimelyFiling:
		return []string{
			"Review claim submission workflow",
			"Implement automated filing deadline alerts",
		}
	default:
		return []string{
			"Review denial patterns with billing team",
			"Contact payer for clarification on requirements",
		}
	}
}

// AggregateStaffProductivity recomputes every staff member's rollup for
// the calendar day containing the given time. staffNames supplies
// display names keyed by staff ID; unknown staff fall back to the raw
// ID. Returns the number of rows written.
//
// Attribution: creations, submissions, and assignments count for the
// assigned staff member; completions count for completed_by, falling
// back to the assignee. Events with no attributable staff are dropped.
func (s *Service) AggregateStaffProductivity(ctx context.Context, day time.Time, staffNames map[denial.StaffID]string) (int, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	appeals, err := s.appeals.ListActiveBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return 0, err
	}

	in := func(t *time.Time) bool {
		return t != nil && !t.Before(dayStart) && t.Before(dayEnd)
	}

	rows := make(map[denial.StaffID]*StaffProductivity)
	row := func(id denial.StaffID) *StaffProductivity {
		sp, ok := rows[id]
		if !ok {
			name, known := staffNames[id]
			if !known {
				name = string(id)
			}
			sp = &StaffProductivity{StaffID: id, StaffName: name, PeriodDate: dayStart}
			rows[id] = sp
		}
		return sp
	}

	for _, a := range appeals {
		if a.AssignedTo != nil {
			if !a.CreatedAt.Before(dayStart) && a.CreatedAt.Before(dayEnd) {
				row(*a.AssignedTo).AppealsCreated++
			}
			if in(a.SubmittedDate) {
				row(*a.AssignedTo).AppealsSubmitted++
			}
			if in(a.AssignedAt) {
				row(*a.AssignedTo).DenialsAssigned++
			}
		}

		if !in(a.CompletedAt) || a.Outcome == nil {
			continue
		}
		completer := a.CompletedBy
		if completer == nil {
			completer = a.AssignedTo
		}
		if completer == nil {
			continue
		}
		sp := row(*completer)
		sp.DenialsReviewed++
		if a.ProcessingTimeMinutes != nil {
			sp.TotalProcessingTime += *a.ProcessingTimeMinutes
		}
		switch {
		case a.Outcome.Overturn():
			sp.AppealsOverturned++
			amount, err := s.recoveredAmount(ctx, a)
			if err != nil {
				return 0, err
			}
			sp.TotalRecovered += amount
		case *a.Outcome == denial.OutcomeUpheld:
			sp.AppealsUpheld++
		}
	}

	ids := make([]denial.StaffID, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	written := 0
	for _, id := range ids {
		sp := rows[id]
		if completions := sp.AppealsOverturned + sp.AppealsUpheld; completions > 0 {
			avg := sp.TotalProcessingTime / completions
			sp.AverageProcessingTime = &avg
		}
		if err := s.staff.Upsert(ctx, sp); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (s *Service) recoveredAmount(ctx context.Context, a *denial.Appeal) (float64, error) {
	if a.AdjustedAmount != nil {
		return *a.AdjustedAmount, nil
	}
	d, err := s.denials.GetByID(ctx, a.DenialID)
	if err != nil {
		return 0, err
	}
	if d.RecoveredAmount != nil {
		return *d.RecoveredAmount, nil
	}
	return d.BilledAmount, nil
}

// AggregateRevenueRecovery recomputes the organization-wide rollup for
// the period and upserts it on (period_start, period_end).
func (s *Service) AggregateRevenueRecovery(ctx context.Context, period Period) (*RevenueRecovery, error) {
	denials, err := s.denials.List(ctx, denial.DenialFilter{
		DeniedFrom: &period.Start,
		DeniedTo:   &period.End,
	})
	if err != nil {
		return nil, err
	}

	r := &RevenueRecovery{
		PeriodStart:        period.Start,
		PeriodEnd:          period.End,
		TotalDenials:       len(denials),
		RecoveryByCategory: make(map[string]float64),
		RecoveryByPayer:    make(map[string]float64),
	}

	weekly := make(map[string]*WeeklyStat)
	for _, d := range denials {
		r.TotalDeniedAmount += d.BilledAmount
		recovered := 0.0
		if d.RecoveredAmount != nil {
			recovered = *d.RecoveredAmount
		}
		r.TotalRecovered += recovered
		if d.WriteOffAmount != nil {
			r.TotalWrittenOff += *d.WriteOffAmount
		}
		if recovered > 0 {
			r.RecoveryByCategory[string(d.DenialCategory)] += recovered
			r.RecoveryByPayer[string(d.PayerID)] += recovered
		}

		week := weekLabel(d.DenialDate)
		ws, ok := weekly[week]
		if !ok {
			ws = &WeeklyStat{Week: week}
			weekly[week] = ws
		}
		ws.Denied += d.BilledAmount
		ws.Recovered += recovered

		appeals, err := s.appeals.ListByDenial(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		r.TotalAppeals += len(appeals)
		for _, a := range appeals {
			if a.Outcome != nil && a.Outcome.Overturn() {
				r.SuccessfulAppeals++
			}
		}
	}

	if r.TotalDeniedAmount > 0 {
		r.RecoveryRate = r.TotalRecovered / r.TotalDeniedAmount
	}

	for cur := weekStart(period.Start); cur.Before(period.End); cur = cur.AddDate(0, 0, 7) {
		label := cur.Format("Jan 2")
		if ws, ok := weekly[label]; ok {
			r.WeeklyBreakdown = append(r.WeeklyBreakdown, *ws)
		} else {
			r.WeeklyBreakdown = append(r.WeeklyBreakdown, WeeklyStat{Week: label})
		}
	}

	if err := s.revenue.Upsert(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// weekStart truncates to the preceding Sunday.
func weekStart(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return t.AddDate(0, 0, -int(t.Weekday()))
}

func weekLabel(t time.Time) string {
	return weekStart(t.UTC()).Format("Jan 2")
}

// StaffSummary is a read-side aggregation of a staff member's daily
// rows over a period, with comparisons against the prior period and
// the team average.
type StaffSummary struct {
	StaffID   denial.StaffID `json:"staff_id"`
	StaffName string         `json:"staff_name"`
	Period    Period         `json:"period"`

	DenialsReviewed          int     `json:"denials_reviewed"`
	AppealsCreated           int     `json:"appeals_created"`
	AppealsSubmitted         int     `json:"appeals_submitted"`
	AppealsOverturned        int     `json:"appeals_overturned"`
	OverturnRate             float64 `json:"overturn_rate"`
	AverageProcessingMinutes int     `json:"average_processing_minutes"`
	TotalRecovered           float64 `json:"total_recovered"`
	AverageRecoveryPerAppeal float64 `json:"average_recovery_per_appeal"`

	VsPreviousPct    float64 `json:"vs_previous_pct"`
	VsTeamAveragePct float64 `json:"vs_team_average_pct"`
}

// StaffProductivitySummary folds a staff member's daily rows for the
// period into one summary.
func (s *Service) StaffProductivitySummary(ctx context.Context, staffID denial.StaffID, period Period) (*StaffSummary, error) {
	rows, err := s.staff.ListByStaffBetween(ctx, staffID, period.Start, period.End)
	if err != nil {
		return nil, err
	}

	sum := &StaffSummary{StaffID: staffID, StaffName: string(staffID), Period: period}
	totalProcessing := 0
	for _, row := range rows {
		sum.StaffName = row.StaffName
		sum.DenialsReviewed += row.DenialsReviewed
		sum.AppealsCreated += row.AppealsCreated
		sum.AppealsSubmitted += row.AppealsSubmitted
		sum.AppealsOverturned += row.AppealsOverturned
		sum.TotalRecovered += row.TotalRecovered
		totalProcessing += row.TotalProcessingTime
	}
	if sum.AppealsSubmitted > 0 {
		sum.OverturnRate = float64(sum.AppealsOverturned) / float64(sum.AppealsSubmitted)
	}
	if sum.AppealsCreated > 0 {
		sum.AverageProcessingMinutes = totalProcessing / sum.AppealsCreated
	}
	if sum.AppealsOverturned > 0 {
		sum.AverageRecoveryPerAppeal = sum.TotalRecovered / float64(sum.AppealsOverturned)
	}

	length := period.End.Sub(period.Start)
	prevRows, err := s.staff.ListByStaffBetween(ctx, staffID, period.Start.Add(-length), period.Start)
	if err != nil {
		return nil, err
	}
	prevRecovered := 0.0
	for _, row := range prevRows {
		prevRecovered += row.TotalRecovered
	}
	if prevRecovered > 0 {
		sum.VsPreviousPct = (sum.TotalRecovered - prevRecovered) / prevRecovered * 100
	}

	teamRows, err := s.staff.ListBetween(ctx, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	teamTotal, teamCount := 0.0, 0
	for _, row := range teamRows {
		teamTotal += row.TotalRecovered
		teamCount++
	}
	if teamCount > 0 {
		teamAvg := teamTotal / float64(teamCount)
		if teamAvg > 0 {
			sum.VsTeamAveragePct = (sum.TotalRecovered - teamAvg) / teamAvg * 100
		}
	}

	return sum, nil
}

// NewID mints identifiers for aggregate rows whose key is the dimension
// tuple rather than the ID itself.
func NewID() string { return uuid.NewString() }
