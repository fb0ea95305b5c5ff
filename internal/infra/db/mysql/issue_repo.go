package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/propcheck/inspections/internal/domain/inspections"
	domain "github.com/propcheck/inspections/internal/domain/issues"
)

type IssueRepository struct {
	db *sql.DB
}

func NewIssueRepository(db *sql.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Insert appends a finding. There is no delete and no generic update.
func (r *IssueRepository) Insert(ctx context.Context, i *domain.Issue) error {
	const q = `
INSERT INTO issues
(id, component_id, tenant_id, type, severity, source, confidence, notes,
 needs_confirmation, ai_resolution,
 derived_from_issue_id, accepted_by_user_id, rejected_by_user_id, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?);
`
	var derivedFrom, acceptedBy, rejectedBy string
	if i.Provenance != nil {
		derivedFrom = string(i.Provenance.DerivedFromIssueID)
		acceptedBy = i.Provenance.AcceptedByUserID
		rejectedBy = i.Provenance.RejectedByUserID
	}
	_, err := r.db.ExecContext(ctx, q,
		i.ID, i.ComponentID, i.TenantID, i.Type, i.Severity, i.Source, i.Confidence, i.Notes,
		i.NeedsConfirmation, string(i.AIResolution),
		derivedFrom, acceptedBy, rejectedBy, i.CreatedAt,
	)
	return err
}

func (r *IssueRepository) Get(ctx context.Context, id domain.IssueID) (*domain.Issue, error) {
	const q = issueColumns + `
WHERE id=? LIMIT 1;
`
	i, err := scanIssue(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return i, err
}

func (r *IssueRepository) ListByComponent(ctx context.Context, tenant string, componentID inspections.ComponentID, f domain.ListFilter) ([]*domain.Issue, error) {
	query := issueColumns + `
WHERE tenant_id=? AND component_id=?`
	args := []interface{}{tenant, componentID}

	if !f.IncludeRejected {
		query += " AND ai_resolution <> ?"
		args = append(args, domain.ResolutionRejected)
	}
	if f.OnlySource != "" {
		query += " AND source = ?"
		args = append(args, f.OnlySource)
	}
	query += "\nORDER BY created_at ASC, id ASC;"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// UpdateResolution touches only the review state and provenance columns;
// the finding itself stays as produced.
func (r *IssueRepository) UpdateResolution(ctx context.Context, tenant string, id domain.IssueID, res domain.AIResolution, prov *domain.Provenance) error {
	const q = `
UPDATE issues
SET ai_resolution = ?,
    derived_from_issue_id = ?,
    accepted_by_user_id = ?,
    rejected_by_user_id = ?
WHERE tenant_id = ? AND id = ?;
`
	var derivedFrom, acceptedBy, rejectedBy string
	if prov != nil {
		derivedFrom = string(prov.DerivedFromIssueID)
		acceptedBy = prov.AcceptedByUserID
		rejectedBy = prov.RejectedByUserID
	}
	_, err := r.db.ExecContext(ctx, q, string(res), derivedFrom, acceptedBy, rejectedBy, tenant, id)
	return err
}

func (r *IssueRepository) FindDerived(ctx context.Context, tenant string, derivedFrom domain.IssueID) (*domain.Issue, error) {
	const q = issueColumns + `
WHERE tenant_id=? AND derived_from_issue_id=? LIMIT 1;
`
	i, err := scanIssue(r.db.QueryRowContext(ctx, q, tenant, derivedFrom))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return i, err
}

const issueColumns = `
SELECT id, component_id, tenant_id, type, severity, source, confidence, notes,
       needs_confirmation, ai_resolution,
       derived_from_issue_id, accepted_by_user_id, rejected_by_user_id, created_at
FROM issues`

func scanIssue(row rowScanner) (*domain.Issue, error) {
	var i domain.Issue
	var resolution, derivedFrom, acceptedBy, rejectedBy string
	if err := row.Scan(
		&i.ID, &i.ComponentID, &i.TenantID, &i.Type, &i.Severity, &i.Source, &i.Confidence, &i.Notes,
		&i.NeedsConfirmation, &resolution,
		&derivedFrom, &acceptedBy, &rejectedBy, &i.CreatedAt,
	); err != nil {
		return nil, err
	}
	i.AIResolution = domain.AIResolution(resolution)
	if derivedFrom != "" || acceptedBy != "" || rejectedBy != "" {
		i.Provenance = &domain.Provenance{
			DerivedFromIssueID: domain.IssueID(derivedFrom),
			AcceptedByUserID:   acceptedBy,
			RejectedByUserID:   rejectedBy,
		}
	}
	return &i, nil
}
