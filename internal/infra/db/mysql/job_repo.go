package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/propcheck/inspections/internal/domain/faults"
	"github.com/propcheck/inspections/internal/domain/inspections"
	domain "github.com/propcheck/inspections/internal/domain/jobs"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Save(ctx context.Context, j *domain.Job) error {
	const q = `
INSERT INTO analysis_jobs
(id, inspection_id, tenant_id, type, status, idempotency_key,
 created_at, updated_at, result_summary, result_payload)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status),
 updated_at=VALUES(updated_at),
 result_summary=VALUES(result_summary),
 result_payload=VALUES(result_payload);
`
	_, err := r.db.ExecContext(ctx, q,
		j.ID, j.InspectionID, j.TenantID, j.Type, j.Status, j.IdempotencyKey,
		j.CreatedAt, j.UpdatedAt, j.ResultSummary, j.ResultPayload,
	)
	return err
}

func (r *JobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	const q = jobColumns + `
WHERE id=? LIMIT 1;
`
	j, err := scanJob(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (r *JobRepository) Latest(ctx context.Context, id inspections.InspectionID) (*domain.Job, error) {
	const q = jobColumns + `
WHERE inspection_id=?
ORDER BY created_at DESC, id DESC
LIMIT 1;
`
	j, err := scanJob(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (r *JobRepository) ListByInspection(ctx context.Context, tenant string, id inspections.InspectionID) ([]*domain.Job, error) {
	const q = jobColumns + `
WHERE tenant_id=? AND inspection_id=?
ORDER BY created_at ASC, id ASC;
`
	rows, err := r.db.QueryContext(ctx, q, tenant, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateStatus moves a job along its lifecycle. The WHERE clause pins the
// current status so a concurrent writer cannot race the transition past
// the monotonic check.
func (r *JobRepository) UpdateStatus(ctx context.Context, tenant string, id domain.JobID, status domain.Status, summary, payload string) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return faults.NotFound("job", string(id))
	}
	if !current.Status.CanTransition(status) {
		return faults.InvalidState(fmt.Sprintf("job %s cannot move from %s to %s", id, current.Status, status))
	}

	const q = `
UPDATE analysis_jobs
SET status = ?,
    updated_at = NOW(),
    result_summary = CASE WHEN ? <> '' THEN ? ELSE result_summary END,
    result_payload = CASE WHEN ? <> '' THEN ? ELSE result_payload END
WHERE tenant_id = ? AND id = ? AND status = ?;
`
	res, err := r.db.ExecContext(ctx, q,
		status,
		summary, summary,
		payload, payload,
		tenant, id, current.Status,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return faults.ConflictRetry("job", string(id))
	}
	return nil
}

const jobColumns = `
SELECT id, inspection_id, tenant_id, type, status, idempotency_key,
       created_at, updated_at, result_summary, result_payload
FROM analysis_jobs`

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	if err := row.Scan(
		&j.ID, &j.InspectionID, &j.TenantID, &j.Type, &j.Status, &j.IdempotencyKey,
		&j.CreatedAt, &j.UpdatedAt, &j.ResultSummary, &j.ResultPayload,
	); err != nil {
		return nil, err
	}
	return &j, nil
}
