package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// =========== DenialPattern Repository ===========

type patternRepoPG struct{ pool *pgxpool.Pool }

func NewPatternRepoPG(pool *pgxpool.Pool) PatternRepository { return &patternRepoPG{pool: pool} }

const patternCols = `id, payer_id, payer_name,
	procedure_code, diagnosis_code, carc_code, denial_category,
	total_denials, total_billed_amount, total_recovered_amount,
	denial_rate, recovery_rate, average_recovery_time_days,
	period_start, period_end,
	monthly_trend, suggested_actions, risk_score,
	created_at, updated_at`

func scanPattern(row pgx.Row) (*DenialPattern, error) {
	var p DenialPattern
	err := row.Scan(&p.ID, &p.PayerID, &p.PayerName,
		&p.ProcedureCode, &p.DiagnosisCode, &p.CARCCode, &p.DenialCategory,
		&p.TotalDenials, &p.TotalBilledAmount, &p.TotalRecoveredAmount,
		&p.DenialRate, &p.RecoveryRate, &p.AverageRecoveryTimeDays,
		&p.PeriodStart, &p.PeriodEnd,
		&p.MonthlyTrend, &p.SuggestedActions, &p.RiskScore,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patternRepoPG) FindPatterns(ctx context.Context, filter PatternFilter) ([]*DenialPattern, error) {
	sql := `SELECT ` + patternCols + ` FROM denial_pattern WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.PayerID != nil {
		sql += ` AND payer_id = ` + arg(*filter.PayerID)
	}
	if filter.ProcedureCode != nil {
		sql += ` AND procedure_code = ` + arg(*filter.ProcedureCode)
	}
	if filter.DiagnosisCode != nil {
		sql += ` AND diagnosis_code = ` + arg(*filter.DiagnosisCode)
	}
	if filter.CARCCode != nil {
		sql += ` AND carc_code = ` + arg(*filter.CARCCode)
	}
	if filter.DenialCategory != nil {
		sql += ` AND denial_category = ` + arg(*filter.DenialCategory)
	}
	if filter.PeriodStart != nil {
		sql += ` AND period_start = ` + arg(*filter.PeriodStart)
	}
	if filter.PeriodEnd != nil {
		sql += ` AND period_end = ` + arg(*filter.PeriodEnd)
	}
	sql += ` ORDER BY period_start DESC, payer_id, procedure_code, carc_code`
	if filter.Limit > 0 {
		sql += ` LIMIT ` + arg(filter.Limit)
	}

	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fault.Repository("find denial patterns", err)
	}
	defer rows.Close()
	var items []*DenialPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fault.Repository("scan denial pattern", err)
		}
		items = append(items, p)
	}
	return items, fault.Repository("find denial patterns", rows.Err())
}

func (r *patternRepoPG) Upsert(ctx context.Context, p *DenialPattern) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO denial_pattern (id, payer_id, payer_name,
			procedure_code, diagnosis_code, carc_code, denial_category,
			total_denials, total_billed_amount, total_recovered_amount,
			denial_rate, recovery_rate, average_recovery_time_days,
			period_start, period_end,
			monthly_trend, suggested_actions, risk_score)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (payer_id, COALESCE(procedure_code, ''), COALESCE(diagnosis_code, ''),
			COALESCE(carc_code, ''), period_start, period_end)
		DO UPDATE SET
			payer_name=EXCLUDED.payer_name,
			denial_category=EXCLUDED.denial_category,
			total_denials=EXCLUDED.total_denials,
			total_billed_amount=EXCLUDED.total_billed_amount,
			total_recovered_amount=EXCLUDED.total_recovered_amount,
			denial_rate=EXCLUDED.denial_rate,
			recovery_rate=EXCLUDED.recovery_rate,
			average_recovery_time_days=EXCLUDED.average_recovery_time_days,
			monthly_trend=EXCLUDED.monthly_trend,
			suggested_actions=EXCLUDED.suggested_actions,
			risk_score=EXCLUDED.risk_score,
			updated_at=NOW()`,
		p.ID, p.PayerID, p.PayerName,
		p.ProcedureCode, p.DiagnosisCode, p.CARCCode, p.DenialCategory,
		p.TotalDenials, p.TotalBilledAmount, p.TotalRecoveredAmount,
		p.DenialRate, p.RecoveryRate, p.AverageRecoveryTimeDays,
		p.PeriodStart, p.PeriodEnd,
		p.MonthlyTrend, p.SuggestedActions, p.RiskScore)
	return fault.Repository("upsert denial pattern", err)
}

// =========== StaffProductivity Repository ===========

type staffRepoPG struct{ pool *pgxpool.Pool }

func NewStaffProductivityRepoPG(pool *pgxpool.Pool) StaffProductivityRepository {
	return &staffRepoPG{pool: pool}
}

const staffCols = `id, staff_id, staff_name, period_date,
	denials_reviewed, denials_assigned,
	appeals_created, appeals_submitted, appeals_overturned, appeals_upheld,
	average_processing_time, total_processing_time, total_recovered,
	created_at, updated_at`

func scanStaff(row pgx.Row) (*StaffProductivity, error) {
	var sp StaffProductivity
	err := row.Scan(&sp.ID, &sp.StaffID, &sp.StaffName, &sp.PeriodDate,
		&sp.DenialsReviewed, &sp.DenialsAssigned,
		&sp.AppealsCreated, &sp.AppealsSubmitted, &sp.AppealsOverturned, &sp.AppealsUpheld,
		&sp.AverageProcessingTime, &sp.TotalProcessingTime, &sp.TotalRecovered,
		&sp.CreatedAt, &sp.UpdatedAt)
	return &sp, err
}

func (r *staffRepoPG) Upsert(ctx context.Context, sp *StaffProductivity) error {
	if sp.ID == "" {
		sp.ID = NewID()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO staff_productivity (id, staff_id, staff_name, period_date,
			denials_reviewed, denials_assigned,
			appeals_created, appeals_submitted, appeals_overturned, appeals_upheld,
			average_processing_time, total_processing_time, total_recovered)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (staff_id, period_date) DO UPDATE SET
			staff_name=EXCLUDED.staff_name,
			denials_reviewed=EXCLUDED.denials_reviewed,
			denials_assigned=EXCLUDED.denials_assigned,
			appeals_created=EXCLUDED.appeals_created,
			appeals_submitted=EXCLUDED.appeals_submitted,
			appeals_overturned=EXCLUDED.appeals_overturned,
			appeals_upheld=EXCLUDED.appeals_upheld,
			average_processing_time=EXCLUDED.average_processing_time,
			total_processing_time=EXCLUDED.total_processing_time,
			total_recovered=EXCLUDED.total_recovered,
			updated_at=NOW()`,
		sp.ID, sp.StaffID, sp.StaffName, sp.PeriodDate,
		sp.DenialsReviewed, sp.DenialsAssigned,
		sp.AppealsCreated, sp.AppealsSubmitted, sp.AppealsOverturned, sp.AppealsUpheld,
		sp.AverageProcessingTime, sp.TotalProcessingTime, sp.TotalRecovered)
	return fault.Repository("upsert staff productivity", err)
}

func (r *staffRepoPG) ListByStaffBetween(ctx context.Context, staffID denial.StaffID, from, to time.Time) ([]*StaffProductivity, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+staffCols+` FROM staff_productivity
		 WHERE staff_id = $1 AND period_date >= $2 AND period_date < $3
		 ORDER BY period_date`, staffID, from, to)
	if err != nil {
		return nil, fault.Repository("list staff productivity", err)
	}
	defer rows.Close()
	return collectStaff(rows)
}

func (r *staffRepoPG) ListBetween(ctx context.Context, from, to time.Time) ([]*StaffProductivity, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+staffCols+` FROM staff_productivity
		 WHERE period_date >= $1 AND period_date < $2
		 ORDER BY staff_id, period_date`, from, to)
	if err != nil {
		return nil, fault.Repository("list staff productivity", err)
	}
	defer rows.Close()
	return collectStaff(rows)
}

func collectStaff(rows pgx.Rows) ([]*StaffProductivity, error) {
	var items []*StaffProductivity
	for rows.Next() {
		sp, err := scanStaff(rows)
		if err != nil {
			return nil, fault.Repository("scan staff productivity", err)
		}
		items = append(items, sp)
	}
	return items, fault.Repository("iterate staff productivity", rows.Err())
}

// =========== RevenueRecovery Repository ===========

type revenueRepoPG struct{ pool *pgxpool.Pool }

func NewRevenueRecoveryRepoPG(pool *pgxpool.Pool) RevenueRecoveryRepository {
	return &revenueRepoPG{pool: pool}
}

const revenueCols = `id, period_start, period_end,
	total_denials, total_denied_amount, total_appeals, successful_appeals,
	total_recovered, total_written_off, recovery_rate,
	recovery_by_category, recovery_by_payer, weekly_breakdown,
	created_at, updated_at`

func (r *revenueRepoPG) Upsert(ctx context.Context, rr *RevenueRecovery) error {
	if rr.ID == "" {
		rr.ID = NewID()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO revenue_recovery (id, period_start, period_end,
			total_denials, total_denied_amount, total_appeals, successful_appeals,
			total_recovered, total_written_off, recovery_rate,
			recovery_by_category, recovery_by_payer, weekly_breakdown)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (period_start, period_end) DO UPDATE SET
			total_denials=EXCLUDED.total_denials,
			total_denied_amount=EXCLUDED.total_denied_amount,
			total_appeals=EXCLUDED.total_appeals,
			successful_appeals=EXCLUDED.successful_appeals,
			total_recovered=EXCLUDED.total_recovered,
			total_written_off=EXCLUDED.total_written_off,
			recovery_rate=EXCLUDED.recovery_rate,
			recovery_by_category=EXCLUDED.recovery_by_category,
			recovery_by_payer=EXCLUDED.recovery_by_payer,
			weekly_breakdown=EXCLUDED.weekly_breakdown,
			updated_at=NOW()`,
		rr.ID, rr.PeriodStart, rr.PeriodEnd,
		rr.TotalDenials, rr.TotalDeniedAmount, rr.TotalAppeals, rr.SuccessfulAppeals,
		rr.TotalRecovered, rr.TotalWrittenOff, rr.RecoveryRate,
		rr.RecoveryByCategory, rr.RecoveryByPayer, rr.WeeklyBreakdown)
	return fault.Repository("upsert revenue recovery", err)
}

func (r *revenueRepoPG) GetByPeriod(ctx context.Context, start, end time.Time) (*RevenueRecovery, error) {
	var rr RevenueRecovery
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+revenueCols+` FROM revenue_recovery WHERE period_start = $1 AND period_end = $2`,
		start, end).
		Scan(&rr.ID, &rr.PeriodStart, &rr.PeriodEnd,
			&rr.TotalDenials, &rr.TotalDeniedAmount, &rr.TotalAppeals, &rr.SuccessfulAppeals,
			&rr.TotalRecovered, &rr.TotalWrittenOff, &rr.RecoveryRate,
			&rr.RecoveryByCategory, &rr.RecoveryByPayer, &rr.WeeklyBreakdown,
			&rr.CreatedAt, &rr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Repository("get revenue recovery", err)
	}
	return &rr, nil
}
