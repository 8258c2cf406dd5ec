package analytics

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/revcycle/denialengine/internal/domain/denial"
	"github.com/revcycle/denialengine/internal/platform/fault"
)

// -- Mock Repositories --

type mockDenialRepo struct {
	items []*denial.Denial
}

func (m *mockDenialRepo) Create(_ context.Context, d *denial.Denial) error {
	m.items = append(m.items, d)
	return nil
}

func (m *mockDenialRepo) GetByID(_ context.Context, id denial.DenialID) (*denial.Denial, error) {
	for _, d := range m.items {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, fault.NotFound("denial", string(id))
}

func (m *mockDenialRepo) Update(_ context.Context, d *denial.Denial) error { return nil }

func (m *mockDenialRepo) List(_ context.Context, filter denial.DenialFilter) ([]*denial.Denial, error) {
	var result []*denial.Denial
	for _, d := range m.items {
		if filter.DeniedFrom != nil && d.DenialDate.Before(*filter.DeniedFrom) {
			continue
		}
		if filter.DeniedTo != nil && !d.DenialDate.Before(*filter.DeniedTo) {
			continue
		}
		result = append(result, d)
	}
	return result, nil
}

type mockAppealRepo struct {
	items []*denial.Appeal
}

func (m *mockAppealRepo) Create(_ context.Context, a *denial.Appeal) error {
	m.items = append(m.items, a)
	return nil
}

func (m *mockAppealRepo) GetByID(_ context.Context, id denial.AppealID) (*denial.Appeal, error) {
	for _, a := range m.items {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, fault.NotFound("appeal", string(id))
}

func (m *mockAppealRepo) Update(_ context.Context, a *denial.Appeal) error { return nil }

func (m *mockAppealRepo) ListByDenial(_ context.Context, denialID denial.DenialID) ([]*denial.Appeal, error) {
	var result []*denial.Appeal
	for _, a := range m.items {
		if a.DenialID == denialID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *mockAppealRepo) ListOpenWithDeadlineBefore(_ context.Context, cutoff time.Time) ([]*denial.Appeal, error) {
	return nil, nil
}

func (m *mockAppealRepo) ListActiveBetween(_ context.Context, from, to time.Time) ([]*denial.Appeal, error) {
	in := func(t *time.Time) bool { return t != nil && !t.Before(from) && t.Before(to) }
	var result []*denial.Appeal
	for _, a := range m.items {
		if (!a.CreatedAt.Before(from) && a.CreatedAt.Before(to)) ||
			in(a.AssignedAt) || in(a.SubmittedDate) || in(a.CompletedAt) {
			result = append(result, a)
		}
	}
	return result, nil
}

type patternDims struct {
	payer                 denial.PayerID
	procedure, diag, carc string
	start, end            time.Time
}

func dimsOf(p *DenialPattern) patternDims {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return patternDims{
		payer:     p.PayerID,
		procedure: deref(p.ProcedureCode),
		diag:      deref(p.DiagnosisCode),
		carc:      deref(p.CARCCode),
		start:     p.PeriodStart,
		end:       p.PeriodEnd,
	}
}

type mockPatternRepo struct {
	rows map[patternDims]*DenialPattern
}

func newMockPatternRepo() *mockPatternRepo {
	return &mockPatternRepo{rows: make(map[patternDims]*DenialPattern)}
}

func (m *mockPatternRepo) FindPatterns(_ context.Context, filter PatternFilter) ([]*DenialPattern, error) {
	var result []*DenialPattern
	for _, p := range m.rows {
		if filter.PayerID != nil && p.PayerID != *filter.PayerID {
			continue
		}
		if filter.CARCCode != nil && (p.CARCCode == nil || *p.CARCCode != *filter.CARCCode) {
			continue
		}
		if filter.DenialCategory != nil && (p.DenialCategory == nil || *p.DenialCategory != *filter.DenialCategory) {
			continue
		}
		if filter.ProcedureCode != nil && (p.ProcedureCode == nil || *p.ProcedureCode != *filter.ProcedureCode) {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	return result, nil
}

func (m *mockPatternRepo) Upsert(_ context.Context, p *DenialPattern) error {
	key := dimsOf(p)
	if existing, ok := m.rows[key]; ok {
		p.ID = existing.ID
	} else if p.ID == "" {
		p.ID = NewID()
	}
	cp := *p
	m.rows[key] = &cp
	return nil
}

type staffKey struct {
	id   denial.StaffID
	date time.Time
}

type mockStaffRepo struct {
	rows map[staffKey]*StaffProductivity
}

func newMockStaffRepo() *mockStaffRepo {
	return &mockStaffRepo{rows: make(map[staffKey]*StaffProductivity)}
}

func (m *mockStaffRepo) Upsert(_ context.Context, sp *StaffProductivity) error {
	key := staffKey{id: sp.StaffID, date: sp.PeriodDate}
	if existing, ok := m.rows[key]; ok {
		sp.ID = existing.ID
	} else if sp.ID == "" {
		sp.ID = NewID()
	}
	cp := *sp
	m.rows[key] = &cp
	return nil
}

func (m *mockStaffRepo) ListByStaffBetween(_ context.Context, staffID denial.StaffID, from, to time.Time) ([]*StaffProductivity, error) {
	var result []*StaffProductivity
	for _, sp := range m.rows {
		if sp.StaffID == staffID && !sp.PeriodDate.Before(from) && sp.PeriodDate.Before(to) {
			result = append(result, sp)
		}
	}
	return result, nil
}

func (m *mockStaffRepo) ListBetween(_ context.Context, from, to time.Time) ([]*StaffProductivity, error) {
	var result []*StaffProductivity
	for _, sp := range m.rows {
		if !sp.PeriodDate.Before(from) && sp.PeriodDate.Before(to) {
			result = append(result, sp)
		}
	}
	return result, nil
}

type revenueKey struct{ start, end time.Time }

type mockRevenueRepo struct {
	rows map[revenueKey]*RevenueRecovery
}

func newMockRevenueRepo() *mockRevenueRepo {
	return &mockRevenueRepo{rows: make(map[revenueKey]*RevenueRecovery)}
}

func (m *mockRevenueRepo) Upsert(_ context.Context, r *RevenueRecovery) error {
	key := revenueKey{start: r.PeriodStart, end: r.PeriodEnd}
	if existing, ok := m.rows[key]; ok {
		r.ID = existing.ID
	} else if r.ID == "" {
		r.ID = NewID()
	}
	cp := *r
	m.rows[key] = &cp
	return nil
}

func (m *mockRevenueRepo) GetByPeriod(_ context.Context, start, end time.Time) (*RevenueRecovery, error) {
	r, ok := m.rows[revenueKey{start: start, end: end}]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

// -- Fixtures --

type testEnv struct {
	svc      *Service
	denials  *mockDenialRepo
	appeals  *mockAppealRepo
	patterns *mockPatternRepo
	staff    *mockStaffRepo
	revenue  *mockRevenueRepo
}

func newTestEnv() *testEnv {
	denials := &mockDenialRepo{}
	appeals := &mockAppealRepo{}
	patterns := newMockPatternRepo()
	staff := newMockStaffRepo()
	revenue := newMockRevenueRepo()
	return &testEnv{
		svc:      NewService(denials, appeals, patterns, staff, revenue),
		denials:  denials,
		appeals:  appeals,
		patterns: patterns,
		staff:    staff,
		revenue:  revenue,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedDenial(env *testEnv, id string, payer denial.PayerID, carc string, denied time.Time, billed float64, recovered *float64) *denial.Denial {
	d := &denial.Denial{
		ID:              denial.DenialID(id),
		ClaimID:         denial.ClaimID("claim-" + id),
		PatientID:       "patient-1",
		ProviderID:      "provider-1",
		PayerID:         payer,
		PayerName:       "Payer " + string(payer),
		ClaimStatus:     denial.ClaimStatusDenied,
		DenialDate:      denied,
		ServiceDate:     denied.AddDate(0, 0, -10),
		BilledAmount:    billed,
		CARCCode:        carc,
		CARCDescription: "desc",
		ProcedureCode:   "99214",
		DenialCategory:  denial.CategoryPriorAuthorization,
		RecoveredAmount: recovered,
	}
	env.denials.Create(context.Background(), d)
	return d
}

var janPeriod = Period{Start: date(2024, 1, 1), End: date(2024, 2, 1)}

// -- Pattern aggregation --

func TestAggregatePatterns(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	recovered := 800.0
	d1 := seedDenial(env, "d1", "payer-1", "CO-197", date(2024, 1, 5), 1000, &recovered)
	seedDenial(env, "d2", "payer-1", "CO-197", date(2024, 1, 20), 1000, nil)
	seedDenial(env, "d3", "payer-2", "CO-50", date(2024, 1, 10), 500, nil)

	completed := date(2024, 1, 25)
	outcome := denial.OutcomeOverturnedFull
	env.appeals.Create(ctx, &denial.Appeal{
		ID: "a1", DenialID: d1.ID, AppealLevel: 1,
		AppealType: denial.AppealTypeClinicalReview, Status: denial.StatusResolved,
		FilingDeadline: date(2024, 3, 1), Outcome: &outcome, CompletedAt: &completed,
		CreatedAt: date(2024, 1, 6),
	})

	written, err := env.svc.AggregatePatterns(ctx, janPeriod, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if written != 2 {
		t.Fatalf("expected 2 pattern rows, got %d", written)
	}

	carc := "CO-197"
	payer := denial.PayerID("payer-1")
	rows, err := env.svc.FindPatterns(ctx, PatternFilter{PayerID: &payer, CARCCode: &carc})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 matching pattern, got %d", len(rows))
	}
	p := rows[0]
	if p.TotalDenials != 2 || p.TotalBilledAmount != 2000 || p.TotalRecoveredAmount != 800 {
		t.Errorf("totals mismatch: %+v", p)
	}
	if p.DenialRate != 0.02 {
		t.Errorf("expected denial rate 0.02, got %v", p.DenialRate)
	}
	if p.RecoveryRate != 0.4 {
		t.Errorf("expected recovery rate 0.4, got %v", p.RecoveryRate)
	}
	// d1 denied Jan 5, overturn completed Jan 25.
	if p.AverageRecoveryTimeDays == nil || *p.AverageRecoveryTimeDays != 20 {
		t.Errorf("expected average recovery time 20 days, got %v", p.AverageRecoveryTimeDays)
	}
	if p.RiskScore == nil || *p.RiskScore < 0 || *p.RiskScore > 1 {
		t.Errorf("risk score out of range: %v", p.RiskScore)
	}
	if len(p.SuggestedActions) == 0 {
		t.Error("expected suggested actions for prior_authorization")
	}
	if len(p.MonthlyTrend) != 1 || p.MonthlyTrend[0].Month != "Jan 2024" || p.MonthlyTrend[0].Count != 2 {
		t.Errorf("monthly trend mismatch: %v", p.MonthlyTrend)
	}
}

func TestAggregatePatterns_ZeroBilledAndZeroClaims(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	seedDenial(env, "d1", "payer-1", "CO-197", date(2024, 1, 5), 0, nil)

	if _, err := env.svc.AggregatePatterns(ctx, janPeriod, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range env.patterns.rows {
		if p.RecoveryRate != 0 || p.DenialRate != 0 {
			t.Errorf("expected zero rates on zero denominators, got %+v", p)
		}
	}
}

func TestAggregatePatterns_Idempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	recovered := 300.0
	seedDenial(env, "d1", "payer-1", "CO-197", date(2024, 1, 5), 1000, &recovered)
	seedDenial(env, "d2", "payer-2", "CO-50", date(2024, 1, 9), 700, nil)

	if _, err := env.svc.AggregatePatterns(ctx, janPeriod, 50); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := make(map[patternDims]DenialPattern)
	for k, v := range env.patterns.rows {
		first[k] = *v
	}

	if _, err := env.svc.AggregatePatterns(ctx, janPeriod, 50); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second := make(map[patternDims]DenialPattern)
	for k, v := range env.patterns.rows {
		second[k] = *v
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-running aggregation drifted:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

// -- Revenue recovery --

func TestAggregateRevenueRecovery(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	recovered := 800.0
	writeOff := 200.0
	d1 := seedDenial(env, "d1", "payer-1", "CO-197", date(2024, 1, 5), 1000, &recovered)
	d2 := seedDenial(env, "d2", "payer-2", "CO-50", date(2024, 1, 15), 500, nil)
	d2.WriteOffAmount = &writeOff
	d2.DenialCategory = denial.CategoryCodingError

	outcome := denial.OutcomeOverturnedPartial
	env.appeals.Create(ctx, &denial.Appeal{
		ID: "a1", DenialID: d1.ID, AppealLevel: 1,
		AppealType: denial.AppealTypeClinicalReview, Status: denial.StatusResolved,
		FilingDeadline: date(2024, 3, 1), Outcome: &outcome,
	})
	env.appeals.Create(ctx, &denial.Appeal{
		ID: "a2", DenialID: d2.ID, AppealLevel: 1,
		AppealType: denial.AppealTypeClinicalReview, Status: denial.StatusDraft,
		FilingDeadline: date(2024, 3, 1),
	})

	r, err := env.svc.AggregateRevenueRecovery(ctx, janPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TotalDenials != 2 || r.TotalDeniedAmount != 1500 {
		t.Errorf("denial totals mismatch: %+v", r)
	}
	if r.TotalRecovered != 800 || r.TotalWrittenOff != 200 {
		t.Errorf("recovery totals mismatch: %+v", r)
	}
	if r.PendingRecovery() != 500 {
		t.Errorf("expected pending recovery 500, got %v", r.PendingRecovery())
	}
	if r.TotalAppeals != 2 || r.SuccessfulAppeals != 1 {
		t.Errorf("appeal totals mismatch: %+v", r)
	}
	if r.RecoveryByCategory["prior_authorization"] != 800 {
		t.Errorf("category breakdown mismatch: %v", r.RecoveryByCategory)
	}
	if r.RecoveryByPayer["payer-1"] != 800 {
		t.Errorf("payer breakdown mismatch: %v", r.RecoveryByPayer)
	}
	if len(r.WeeklyBreakdown) == 0 {
		t.Error("expected weekly breakdown")
	}
	weekTotal := 0.0
	for _, w := range r.WeeklyBreakdown {
		weekTotal += w.Denied
	}
	if weekTotal != 1500 {
		t.Errorf("weekly breakdown must sum to total denied, got %v", weekTotal)
	}

	stored, err := env.revenue.GetByPeriod(ctx, janPeriod.Start, janPeriod.End)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored == nil || stored.TotalRecovered != 800 {
		t.Errorf("rollup not persisted: %+v", stored)
	}
}

func TestAggregateRevenueRecovery_Idempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	recovered := 250.0
	seedDenial(env, "d1", "payer-1", "CO-197", date(2024, 1, 5), 1000, &recovered)

	first, err := env.svc.AggregateRevenueRecovery(ctx, janPeriod)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := env.svc.AggregateRevenueRecovery(ctx, janPeriod)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-running aggregation drifted:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

// -- Staff productivity --

func TestAggregateStaffProductivity(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	day := date(2024, 3, 4)

	recovered := 900.0
	d1 := seedDenial(env, "d1", "payer-1", "CO-197", date(2024, 2, 20), 1000, &recovered)

	staff := denial.StaffID("staff-7")
	assignedAt := day.Add(9 * time.Hour)
	submitted := day.Add(10 * time.Hour)
	completedAt := day.Add(12 * time.Hour)
	minutes := 180
	outcome := denial.OutcomeOverturnedFull
	env.appeals.Create(ctx, &denial.Appeal{
		ID: "a1", DenialID: d1.ID, AppealLevel: 1,
		AppealType: denial.AppealTypeClinicalReview, Status: denial.StatusResolved,
		FilingDeadline: date(2024, 4, 1),
		AssignedTo:     &staff, AssignedAt: &assignedAt,
		SubmittedDate: &submitted,
		CompletedBy:   &staff, CompletedAt: &completedAt,
		ProcessingTimeMinutes: &minutes,
		Outcome:               &outcome,
		CreatedAt:             day.Add(8 * time.Hour),
	})

	upheld := denial.OutcomeUpheld
	completedAt2 := day.Add(15 * time.Hour)
	minutes2 := 60
	env.appeals.Create(ctx, &denial.Appeal{
		ID: "a2", DenialID: d1.ID, AppealLevel: 2,
		AppealType: denial.AppealTypePeerToPeer, Status: denial.StatusResolved,
		FilingDeadline: date(2024, 4, 1),
		AssignedTo:     &staff,
		CompletedAt:    &completedAt2, ProcessingTimeMinutes: &minutes2,
		Outcome:   &upheld,
		CreatedAt: date(2024, 3, 1),
	})

	written, err := env.svc.AggregateStaffProductivity(ctx, day, map[denial.StaffID]string{staff: "Jamie Rivera"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if written != 1 {
		t.Fatalf("expected 1 staff row, got %d", written)
	}

	sp := env.staff.rows[staffKey{id: staff, date: day}]
	if sp == nil {
		t.Fatal("expected staff row for the day")
	}
	if sp.StaffName != "Jamie Rivera" {
		t.Errorf("staff name mismatch: %s", sp.StaffName)
	}
	if sp.AppealsCreated != 1 || sp.AppealsSubmitted != 1 || sp.DenialsAssigned != 1 {
		t.Errorf("creation metrics mismatch: %+v", sp)
	}
	if sp.AppealsOverturned != 1 || sp.AppealsUpheld != 1 || sp.DenialsReviewed != 2 {
		t.Errorf("completion metrics mismatch: %+v", sp)
	}
	if sp.TotalProcessingTime != 240 {
		t.Errorf("expected 240 processing minutes, got %d", sp.TotalProcessingTime)
	}
	if sp.AverageProcessingTime == nil || *sp.AverageProcessingTime != 120 {
		t.Errorf("expected average 120 minutes, got %v", sp.AverageProcessingTime)
	}
	// The overturned appeal has no adjusted amount, so the denial's
	// posted recovery is attributed.
	if sp.TotalRecovered != 900 {
		t.Errorf("expected 900 recovered, got %v", sp.TotalRecovered)
	}
}

func TestAggregateStaffProductivity_Idempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	day := date(2024, 3, 4)

	d1 := seedDenial(env, "d1", "payer-1", "CO-197", date(2024, 2, 20), 1000, nil)
	staff := denial.StaffID("staff-7")
	assignedAt := day.Add(9 * time.Hour)
	env.appeals.Create(ctx, &denial.Appeal{
		ID: "a1", DenialID: d1.ID, AppealLevel: 1,
		AppealType: denial.AppealTypeClinicalReview, Status: denial.StatusDraft,
		FilingDeadline: date(2024, 4, 1),
		AssignedTo:     &staff, AssignedAt: &assignedAt,
		CreatedAt: day.Add(8 * time.Hour),
	})

	if _, err := env.svc.AggregateStaffProductivity(ctx, day, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := make(map[staffKey]StaffProductivity)
	for k, v := range env.staff.rows {
		first[k] = *v
	}

	if _, err := env.svc.AggregateStaffProductivity(ctx, day, nil); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second := make(map[staffKey]StaffProductivity)
	for k, v := range env.staff.rows {
		second[k] = *v
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-running aggregation drifted:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestStaffProductivitySummary(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	staff := denial.StaffID("staff-7")

	env.staff.Upsert(ctx, &StaffProductivity{
		StaffID: staff, StaffName: "Jamie Rivera", PeriodDate: date(2024, 3, 4),
		DenialsReviewed: 3, AppealsCreated: 2, AppealsSubmitted: 2, AppealsOverturned: 1,
		TotalProcessingTime: 200, TotalRecovered: 1000,
	})
	env.staff.Upsert(ctx, &StaffProductivity{
		StaffID: staff, StaffName: "Jamie Rivera", PeriodDate: date(2024, 3, 5),
		AppealsCreated: 2, AppealsSubmitted: 2, AppealsOverturned: 1,
		TotalProcessingTime: 200, TotalRecovered: 500,
	})
	// Prior period row for comparison.
	env.staff.Upsert(ctx, &StaffProductivity{
		StaffID: staff, StaffName: "Jamie Rivera", PeriodDate: date(2024, 2, 27),
		TotalRecovered: 1000,
	})

	period := Period{Start: date(2024, 3, 1), End: date(2024, 3, 8)}
	sum, err := env.svc.StaffProductivitySummary(ctx, staff, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.AppealsCreated != 4 || sum.AppealsOverturned != 2 {
		t.Errorf("appeal totals mismatch: %+v", sum)
	}
	if sum.OverturnRate != 0.5 {
		t.Errorf("expected overturn rate 0.5, got %v", sum.OverturnRate)
	}
	if sum.AverageProcessingMinutes != 100 {
		t.Errorf("expected average 100 minutes, got %d", sum.AverageProcessingMinutes)
	}
	if sum.AverageRecoveryPerAppeal != 750 {
		t.Errorf("expected 750 per overturn, got %v", sum.AverageRecoveryPerAppeal)
	}
	if sum.VsPreviousPct != 50 {
		t.Errorf("expected +50%% vs previous period, got %v", sum.VsPreviousPct)
	}
}

// -- Pattern risk score --

func TestPatternRiskScore(t *testing.T) {
	tests := []struct {
		denialRate, recoveryRate, want float64
	}{
		{0, 1, 0},
		{1, 0, 1},
		{0.5, 0.5, 0.5},
		{0.1, 0.8, 0.14},
	}
	for _, tc := range tests {
		got := PatternRiskScore(tc.denialRate, tc.recoveryRate)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("PatternRiskScore(%v, %v) = %v, want %v", tc.denialRate, tc.recoveryRate, got, tc.want)
		}
	}

	if s := PatternRiskScore(2, -1); s != 1 {
		t.Errorf("expected clamp to 1, got %v", s)
	}
	if s := PatternRiskScore(-1, 2); s != 0 {
		t.Errorf("expected clamp to 0, got %v", s)
	}
}
