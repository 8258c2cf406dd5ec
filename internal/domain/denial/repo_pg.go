package denial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/revcycle/denialengine/internal/platform/db"
	"github.com/revcycle/denialengine/internal/platform/fault"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Denial Repository ===========

type denialRepoPG struct{ pool *pgxpool.Pool }

func NewDenialRepoPG(pool *pgxpool.Pool) DenialRepository { return &denialRepoPG{pool: pool} }

func (r *denialRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const denialCols = `id, claim_id, patient_id, provider_id, payer_id, payer_name,
	claim_status, denial_date, service_date,
	billed_amount, allowed_amount, paid_amount, patient_responsibility,
	carc_code, carc_description, rarc_codes, group_code,
	procedure_code, procedure_modifiers, diagnosis_codes, place_of_service,
	x277_status_code, x277_status_message,
	predicted_recoverable, recovery_probability, risk_factors,
	denial_category, root_cause, recovered_amount, write_off_amount,
	created_at, updated_at`

func (r *denialRepoPG) scanDenial(row pgx.Row) (*Denial, error) {
	var d Denial
	err := row.Scan(&d.ID, &d.ClaimID, &d.PatientID, &d.ProviderID, &d.PayerID, &d.PayerName,
		&d.ClaimStatus, &d.DenialDate, &d.ServiceDate,
		&d.BilledAmount, &d.AllowedAmount, &d.PaidAmount, &d.PatientResponsibility,
		&d.CARCCode, &d.CARCDescription, &d.RARCCodes, &d.GroupCode,
		&d.ProcedureCode, &d.ProcedureModifiers, &d.DiagnosisCodes, &d.PlaceOfService,
		&d.X277StatusCode, &d.X277StatusMessage,
		&d.PredictedRecoverable, &d.RecoveryProbability, &d.RiskFactors,
		&d.DenialCategory, &d.RootCause, &d.RecoveredAmount, &d.WriteOffAmount,
		&d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *denialRepoPG) Create(ctx context.Context, d *Denial) error {
	if d.ID == "" {
		d.ID = NewDenialID()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO denial (id, claim_id, patient_id, provider_id, payer_id, payer_name,
			claim_status, denial_date, service_date,
			billed_amount, allowed_amount, paid_amount, patient_responsibility,
			carc_code, carc_description, rarc_codes, group_code,
			procedure_code, procedure_modifiers, diagnosis_codes, place_of_service,
			x277_status_code, x277_status_message,
			predicted_recoverable, recovery_probability, risk_factors,
			denial_category, root_cause, recovered_amount, write_off_amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30)`,
		d.ID, d.ClaimID, d.PatientID, d.ProviderID, d.PayerID, d.PayerName,
		d.ClaimStatus, d.DenialDate, d.ServiceDate,
		d.BilledAmount, d.AllowedAmount, d.PaidAmount, d.PatientResponsibility,
		d.CARCCode, d.CARCDescription, d.RARCCodes, d.GroupCode,
		d.ProcedureCode, d.ProcedureModifiers, d.DiagnosisCodes, d.PlaceOfService,
		d.X277StatusCode, d.X277StatusMessage,
		d.PredictedRecoverable, d.RecoveryProbability, d.RiskFactors,
		d.DenialCategory, d.RootCause, d.RecoveredAmount, d.WriteOffAmount)
	return fault.Repository("insert denial", err)
}

func (r *denialRepoPG) GetByID(ctx context.Context, id DenialID) (*Denial, error) {
	d, err := r.scanDenial(r.conn(ctx).QueryRow(ctx, `SELECT `+denialCols+` FROM denial WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("denial", string(id))
	}
	if err != nil {
		return nil, fault.Repository("get denial", err)
	}
	return d, nil
}

func (r *denialRepoPG) Update(ctx context.Context, d *Denial) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE denial SET claim_status=$2, allowed_amount=$3, paid_amount=$4, patient_responsibility=$5,
			predicted_recoverable=$6, recovery_probability=$7, risk_factors=$8,
			root_cause=$9, recovered_amount=$10, write_off_amount=$11, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.ClaimStatus, d.AllowedAmount, d.PaidAmount, d.PatientResponsibility,
		d.PredictedRecoverable, d.RecoveryProbability, d.RiskFactors,
		d.RootCause, d.RecoveredAmount, d.WriteOffAmount)
	if err != nil {
		return fault.Repository("update denial", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("denial", string(d.ID))
	}
	return nil
}

func (r *denialRepoPG) List(ctx context.Context, filter DenialFilter) ([]*Denial, error) {
	sql := `SELECT ` + denialCols + ` FROM denial WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.PayerID != nil {
		sql += ` AND payer_id = ` + arg(*filter.PayerID)
	}
	if filter.ClaimStatus != nil {
		sql += ` AND claim_status = ` + arg(*filter.ClaimStatus)
	}
	if filter.Category != nil {
		sql += ` AND denial_category = ` + arg(*filter.Category)
	}
	if filter.DeniedFrom != nil {
		sql += ` AND denial_date >= ` + arg(*filter.DeniedFrom)
	}
	if filter.DeniedTo != nil {
		sql += ` AND denial_date < ` + arg(*filter.DeniedTo)
	}
	sql += ` ORDER BY denial_date DESC, id`
	if filter.Limit > 0 {
		sql += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		sql += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fault.Repository("list denials", err)
	}
	defer rows.Close()
	var items []*Denial
	for rows.Next() {
		d, err := r.scanDenial(rows)
		if err != nil {
			return nil, fault.Repository("scan denial", err)
		}
		items = append(items, d)
	}
	return items, fault.Repository("list denials", rows.Err())
}

// =========== Appeal Repository ===========

type appealRepoPG struct{ pool *pgxpool.Pool }

func NewAppealRepoPG(pool *pgxpool.Pool) AppealRepository { return &appealRepoPG{pool: pool} }

func (r *appealRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const appealCols = `id, denial_id, appeal_level, appeal_type, status,
	payer_appeal_strategy, supporting_documents,
	filing_deadline, submitted_date, response_deadline, response_date,
	outcome, outcome_reason, adjusted_amount,
	assigned_to, assigned_at, completed_by, completed_at, processing_time_minutes,
	version_id, created_at, updated_at`

func (r *appealRepoPG) scanAppeal(row pgx.Row) (*Appeal, error) {
	var a Appeal
	err := row.Scan(&a.ID, &a.DenialID, &a.AppealLevel, &a.AppealType, &a.Status,
		&a.PayerAppealStrategy, &a.SupportingDocuments,
		&a.FilingDeadline, &a.SubmittedDate, &a.ResponseDeadline, &a.ResponseDate,
		&a.Outcome, &a.OutcomeReason, &a.AdjustedAmount,
		&a.AssignedTo, &a.AssignedAt, &a.CompletedBy, &a.CompletedAt, &a.ProcessingTimeMinutes,
		&a.VersionID, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *appealRepoPG) Create(ctx context.Context, a *Appeal) error {
	if a.ID == "" {
		a.ID = NewAppealID()
	}
	if a.VersionID == 0 {
		a.VersionID = 1
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appeal (id, denial_id, appeal_level, appeal_type, status,
			payer_appeal_strategy, supporting_documents,
			filing_deadline, submitted_date, response_deadline, response_date,
			outcome, outcome_reason, adjusted_amount,
			assigned_to, assigned_at, completed_by, completed_at, processing_time_minutes,
			version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		a.ID, a.DenialID, a.AppealLevel, a.AppealType, a.Status,
		a.PayerAppealStrategy, a.SupportingDocuments,
		a.FilingDeadline, a.SubmittedDate, a.ResponseDeadline, a.ResponseDate,
		a.Outcome, a.OutcomeReason, a.AdjustedAmount,
		a.AssignedTo, a.AssignedAt, a.CompletedBy, a.CompletedAt, a.ProcessingTimeMinutes,
		a.VersionID)
	return fault.Repository("insert appeal", err)
}

func (r *appealRepoPG) GetByID(ctx context.Context, id AppealID) (*Appeal, error) {
	a, err := r.scanAppeal(r.conn(ctx).QueryRow(ctx, `SELECT `+appealCols+` FROM appeal WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("appeal", string(id))
	}
	if err != nil {
		return nil, fault.Repository("get appeal", err)
	}
	return a, nil
}

// Update persists the appeal only when the caller's snapshot is current,
// bumping version_id atomically. A stale snapshot gets ConflictError.
func (r *appealRepoPG) Update(ctx context.Context, a *Appeal) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appeal SET status=$2, payer_appeal_strategy=$3, supporting_documents=$4,
			submitted_date=$5, response_deadline=$6, response_date=$7,
			outcome=$8, outcome_reason=$9, adjusted_amount=$10,
			assigned_to=$11, assigned_at=$12, completed_by=$13, completed_at=$14,
			processing_time_minutes=$15, version_id = version_id + 1, updated_at=NOW()
		WHERE id = $1 AND version_id = $16`,
		a.ID, a.Status, a.PayerAppealStrategy, a.SupportingDocuments,
		a.SubmittedDate, a.ResponseDeadline, a.ResponseDate,
		a.Outcome, a.OutcomeReason, a.AdjustedAmount,
		a.AssignedTo, a.AssignedAt, a.CompletedBy, a.CompletedAt,
		a.ProcessingTimeMinutes, a.VersionID)
	if err != nil {
		return fault.Repository("update appeal", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM appeal WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
			return fault.Repository("update appeal", err)
		}
		if !exists {
			return fault.NotFound("appeal", string(a.ID))
		}
		return fault.Conflict("appeal %s version %d is stale", a.ID, a.VersionID)
	}
	a.VersionID++
	return nil
}

func (r *appealRepoPG) ListByDenial(ctx context.Context, denialID DenialID) ([]*Appeal, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+appealCols+` FROM appeal WHERE denial_id = $1 ORDER BY appeal_level`, denialID)
	if err != nil {
		return nil, fault.Repository("list appeals by denial", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *appealRepoPG) ListOpenWithDeadlineBefore(ctx context.Context, cutoff time.Time) ([]*Appeal, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+appealCols+` FROM appeal
		 WHERE status NOT IN ('resolved', 'closed') AND filing_deadline < $1
		 ORDER BY filing_deadline`, cutoff)
	if err != nil {
		return nil, fault.Repository("list open appeals", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *appealRepoPG) ListActiveBetween(ctx context.Context, from, to time.Time) ([]*Appeal, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+appealCols+` FROM appeal
		 WHERE (created_at >= $1 AND created_at < $2)
		    OR (assigned_at >= $1 AND assigned_at < $2)
		    OR (submitted_date >= $1 AND submitted_date < $2)
		    OR (completed_at >= $1 AND completed_at < $2)
		 ORDER BY created_at, id`, from, to)
	if err != nil {
		return nil, fault.Repository("list active appeals", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *appealRepoPG) collect(rows pgx.Rows) ([]*Appeal, error) {
	var items []*Appeal
	for rows.Next() {
		a, err := r.scanAppeal(rows)
		if err != nil {
			return nil, fault.Repository("scan appeal", err)
		}
		items = append(items, a)
	}
	return items, fault.Repository("iterate appeals", rows.Err())
}

// =========== PayerConfig Repository ===========

type payerConfigRepoPG struct{ pool *pgxpool.Pool }

func NewPayerConfigRepoPG(pool *pgxpool.Pool) PayerConfigRepository {
	return &payerConfigRepoPG{pool: pool}
}

func (r *payerConfigRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const payerConfigCols = `id, payer_id, payer_name,
	first_level_deadline_days, second_level_deadline_days, external_review_deadline_days,
	requires_clinical_notes, requires_medical_records, requires_letter_of_medical_necessity,
	accepts_electronic_appeals,
	appeal_address, appeal_fax_number, appeal_email, appeal_portal_url,
	preferred_format, special_instructions,
	first_level_success_rate, second_level_success_rate, external_review_success_rate,
	created_at, updated_at`

func (r *payerConfigRepoPG) scanPayerConfig(row pgx.Row) (*PayerConfig, error) {
	var pc PayerConfig
	err := row.Scan(&pc.ID, &pc.PayerID, &pc.PayerName,
		&pc.FirstLevelDeadlineDays, &pc.SecondLevelDeadlineDays, &pc.ExternalReviewDeadlineDays,
		&pc.RequiresClinicalNotes, &pc.RequiresMedicalRecords, &pc.RequiresLetterOfMedicalNecessity,
		&pc.AcceptsElectronicAppeals,
		&pc.AppealAddress, &pc.AppealFaxNumber, &pc.AppealEmail, &pc.AppealPortalURL,
		&pc.PreferredFormat, &pc.SpecialInstructions,
		&pc.FirstLevelSuccessRate, &pc.SecondLevelSuccessRate, &pc.ExternalReviewSuccessRate,
		&pc.CreatedAt, &pc.UpdatedAt)
	return &pc, err
}

func (r *payerConfigRepoPG) GetByPayerID(ctx context.Context, payerID PayerID) (*PayerConfig, error) {
	pc, err := r.scanPayerConfig(r.conn(ctx).QueryRow(ctx,
		`SELECT `+payerConfigCols+` FROM payer_config WHERE payer_id = $1`, payerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Repository("get payer config", err)
	}
	return pc, nil
}

func (r *payerConfigRepoPG) Upsert(ctx context.Context, pc *PayerConfig) error {
	if pc.ID == "" {
		pc.ID = uuid.NewString()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payer_config (id, payer_id, payer_name,
			first_level_deadline_days, second_level_deadline_days, external_review_deadline_days,
			requires_clinical_notes, requires_medical_records, requires_letter_of_medical_necessity,
			accepts_electronic_appeals,
			appeal_address, appeal_fax_number, appeal_email, appeal_portal_url,
			preferred_format, special_instructions,
			first_level_success_rate, second_level_success_rate, external_review_success_rate)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (payer_id) DO UPDATE SET
			payer_name=EXCLUDED.payer_name,
			first_level_deadline_days=EXCLUDED.first_level_deadline_days,
			second_level_deadline_days=EXCLUDED.second_level_deadline_days,
			external_review_deadline_days=EXCLUDED.external_review_deadline_days,
			requires_clinical_notes=EXCLUDED.requires_clinical_notes,
			requires_medical_records=EXCLUDED.requires_medical_records,
			requires_letter_of_medical_necessity=EXCLUDED.requires_letter_of_medical_necessity,
			accepts_electronic_appeals=EXCLUDED.accepts_electronic_appeals,
			appeal_address=EXCLUDED.appeal_address,
			appeal_fax_number=EXCLUDED.appeal_fax_number,
			appeal_email=EXCLUDED.appeal_email,
			appeal_portal_url=EXCLUDED.appeal_portal_url,
			preferred_format=EXCLUDED.preferred_format,
			special_instructions=EXCLUDED.special_instructions,
			first_level_success_rate=EXCLUDED.first_level_success_rate,
			second_level_success_rate=EXCLUDED.second_level_success_rate,
			external_review_success_rate=EXCLUDED.external_review_success_rate,
			updated_at=NOW()`,
		pc.ID, pc.PayerID, pc.PayerName,
		pc.FirstLevelDeadlineDays, pc.SecondLevelDeadlineDays, pc.ExternalReviewDeadlineDays,
		pc.RequiresClinicalNotes, pc.RequiresMedicalRecords, pc.RequiresLetterOfMedicalNecessity,
		pc.AcceptsElectronicAppeals,
		pc.AppealAddress, pc.AppealFaxNumber, pc.AppealEmail, pc.AppealPortalURL,
		pc.PreferredFormat, pc.SpecialInstructions,
		pc.FirstLevelSuccessRate, pc.SecondLevelSuccessRate, pc.ExternalReviewSuccessRate)
	return fault.Repository("upsert payer config", err)
}
