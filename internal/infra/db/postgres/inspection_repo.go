package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/propcheck/inspections/internal/domain/faults"
	domain "github.com/propcheck/inspections/internal/domain/inspections"
)

type InspectionRepository struct{ db *sql.DB }

func NewInspectionRepository(db *sql.DB) *InspectionRepository { return &InspectionRepository{db: db} }

// SaveInspection insert/update an inspection record
func (r *InspectionRepository) SaveInspection(ctx context.Context, i *domain.Inspection) error {
	const q = `
INSERT INTO inspections
(id, tenant_id, created_by_user_id, inspection_type, property_address,
 status, report_status, analysis_version, created_at, updated_at, finalized_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
 status = EXCLUDED.status,
 report_status = EXCLUDED.report_status,
 analysis_version = EXCLUDED.analysis_version,
 updated_at = EXCLUDED.updated_at,
 finalized_at = EXCLUDED.finalized_at;`
	_, err := r.db.ExecContext(ctx, q,
		i.ID, i.TenantID, i.CreatedByUserID, i.InspectionType, i.PropertyAddress,
		i.Status, i.ReportStatus, i.AnalysisVersion, i.CreatedAt, i.UpdatedAt,
		nullTime(i.FinalizedAt),
	)
	return err
}

func (r *InspectionRepository) GetInspection(ctx context.Context, id domain.InspectionID) (*domain.Inspection, error) {
	const q = `
SELECT id, tenant_id, created_by_user_id, inspection_type, property_address,
       status, report_status, analysis_version, created_at, updated_at, finalized_at
FROM inspections
WHERE id=$1
LIMIT 1;`
	i, err := scanInspection(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return i, err
}

// ListInspections with offset + limit (classic pagination)
func (r *InspectionRepository) ListInspections(ctx context.Context, tenant string, page, pageSize int) (domain.PaginatedInspections, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, tenant_id, created_by_user_id, inspection_type, property_address,
       status, report_status, analysis_version, created_at, updated_at, finalized_at
FROM inspections
WHERE tenant_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;`
	rows, err := r.db.QueryContext(ctx, q, tenant, pageSize, offset)
	if err != nil {
		return domain.PaginatedInspections{}, fmt.Errorf("querying inspections: %w", err)
	}
	defer rows.Close()

	var list []*domain.Inspection
	for rows.Next() {
		i, err := scanInspection(rows)
		if err != nil {
			return domain.PaginatedInspections{}, fmt.Errorf("scanning row: %w", err)
		}
		list = append(list, i)
	}
	if err = rows.Err(); err != nil {
		return domain.PaginatedInspections{}, fmt.Errorf("iterating rows: %w", err)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM inspections WHERE tenant_id = $1", tenant,
	).Scan(&total); err != nil {
		return domain.PaginatedInspections{}, fmt.Errorf("getting total count: %w", err)
	}

	return domain.PaginatedInspections{
		Data:       list,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

func (r *InspectionRepository) SaveRoom(ctx context.Context, room *domain.Room) error {
	const q = `
INSERT INTO inspection_rooms
(id, inspection_id, tenant_id, name, room_type, sort_order)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
 name = EXCLUDED.name,
 room_type = EXCLUDED.room_type,
 sort_order = EXCLUDED.sort_order;`
	_, err := r.db.ExecContext(ctx, q,
		room.ID, room.InspectionID, room.TenantID, room.Name, room.RoomType, room.SortOrder,
	)
	return err
}

func (r *InspectionRepository) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	const q = `
SELECT id, inspection_id, tenant_id, name, room_type, sort_order
FROM inspection_rooms
WHERE id=$1
LIMIT 1;`
	var room domain.Room
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&room.ID, &room.InspectionID, &room.TenantID, &room.Name, &room.RoomType, &room.SortOrder,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *InspectionRepository) ListRooms(ctx context.Context, tenant string, id domain.InspectionID) ([]*domain.Room, error) {
	const q = `
SELECT id, inspection_id, tenant_id, name, room_type, sort_order
FROM inspection_rooms
WHERE tenant_id=$1 AND inspection_id=$2
ORDER BY sort_order ASC, id ASC;`
	rows, err := r.db.QueryContext(ctx, q, tenant, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Room
	for rows.Next() {
		var room domain.Room
		if err := rows.Scan(
			&room.ID, &room.InspectionID, &room.TenantID, &room.Name, &room.RoomType, &room.SortOrder,
		); err != nil {
			return nil, err
		}
		out = append(out, &room)
	}
	return out, rows.Err()
}

func (r *InspectionRepository) SaveComponent(ctx context.Context, c *domain.Component) error {
	photos, err := marshalPhotoIDs(c.PhotoIDs)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO inspection_components
(id, room_id, tenant_id, name,
 cond_clean, cond_undamaged, cond_working, overview_comment,
 cond_flags_edited, overview_comment_edited, last_human_edit_at,
 photo_ids, version)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
 name = EXCLUDED.name,
 cond_clean = EXCLUDED.cond_clean,
 cond_undamaged = EXCLUDED.cond_undamaged,
 cond_working = EXCLUDED.cond_working,
 overview_comment = EXCLUDED.overview_comment,
 cond_flags_edited = EXCLUDED.cond_flags_edited,
 overview_comment_edited = EXCLUDED.overview_comment_edited,
 last_human_edit_at = EXCLUDED.last_human_edit_at,
 photo_ids = EXCLUDED.photo_ids,
 version = EXCLUDED.version;`
	_, err = r.db.ExecContext(ctx, q,
		c.ID, c.RoomID, c.TenantID, c.Name,
		nullBool(c.Condition.Clean), nullBool(c.Condition.Undamaged), nullBool(c.Condition.Working),
		c.OverviewComment,
		c.HumanEdits.ConditionFlagsEdited, c.HumanEdits.OverviewCommentEdited, nullTime(c.HumanEdits.LastHumanEditAt),
		photos, c.Version,
	)
	return err
}

func (r *InspectionRepository) GetComponent(ctx context.Context, id domain.ComponentID) (*domain.Component, error) {
	const q = componentColumns + `
WHERE id=$1
LIMIT 1;`
	c, err := scanComponent(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *InspectionRepository) ListComponents(ctx context.Context, tenant string, roomID domain.RoomID) ([]*domain.Component, error) {
	const q = componentColumns + `
WHERE tenant_id=$1 AND room_id=$2
ORDER BY id ASC;`
	rows, err := r.db.QueryContext(ctx, q, tenant, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateComponent writes the row only when it still carries
// expectedVersion; a stale version comes back as a conflict fault.
func (r *InspectionRepository) UpdateComponent(ctx context.Context, c *domain.Component, expectedVersion int64) error {
	photos, err := marshalPhotoIDs(c.PhotoIDs)
	if err != nil {
		return err
	}
	const q = `
UPDATE inspection_components
SET name = $1,
    cond_clean = $2,
    cond_undamaged = $3,
    cond_working = $4,
    overview_comment = $5,
    cond_flags_edited = $6,
    overview_comment_edited = $7,
    last_human_edit_at = $8,
    photo_ids = $9,
    version = version + 1
WHERE id = $10 AND version = $11;`
	res, err := r.db.ExecContext(ctx, q,
		c.Name,
		nullBool(c.Condition.Clean), nullBool(c.Condition.Undamaged), nullBool(c.Condition.Working),
		c.OverviewComment,
		c.HumanEdits.ConditionFlagsEdited, c.HumanEdits.OverviewCommentEdited, nullTime(c.HumanEdits.LastHumanEditAt),
		photos,
		c.ID, expectedVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		existing, err := r.GetComponent(ctx, c.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return faults.NotFound("component", string(c.ID))
		}
		return faults.ConflictRetry("component", string(c.ID))
	}
	return nil
}

// ComponentChain walks component -> room -> inspection.
func (r *InspectionRepository) ComponentChain(ctx context.Context, id domain.ComponentID) (*domain.Component, *domain.Room, *domain.Inspection, error) {
	comp, err := r.GetComponent(ctx, id)
	if err != nil || comp == nil {
		return nil, nil, nil, err
	}
	room, err := r.GetRoom(ctx, comp.RoomID)
	if err != nil {
		return nil, nil, nil, err
	}
	if room == nil {
		return nil, nil, nil, fmt.Errorf("component %s references missing room %s", comp.ID, comp.RoomID)
	}
	insp, err := r.GetInspection(ctx, room.InspectionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if insp == nil {
		return nil, nil, nil, fmt.Errorf("room %s references missing inspection %s", room.ID, room.InspectionID)
	}
	return comp, room, insp, nil
}

const componentColumns = `
SELECT id, room_id, tenant_id, name,
       cond_clean, cond_undamaged, cond_working, overview_comment,
       cond_flags_edited, overview_comment_edited, last_human_edit_at,
       photo_ids, version
FROM inspection_components`

func scanInspection(row rowScanner) (*domain.Inspection, error) {
	var i domain.Inspection
	var finalized sql.NullTime
	if err := row.Scan(
		&i.ID, &i.TenantID, &i.CreatedByUserID, &i.InspectionType, &i.PropertyAddress,
		&i.Status, &i.ReportStatus, &i.AnalysisVersion, &i.CreatedAt, &i.UpdatedAt, &finalized,
	); err != nil {
		return nil, err
	}
	if finalized.Valid {
		t := finalized.Time
		i.FinalizedAt = &t
	}
	return &i, nil
}

func scanComponent(row rowScanner) (*domain.Component, error) {
	var c domain.Component
	var clean, undamaged, working sql.NullBool
	var lastEdit sql.NullTime
	var photos sql.NullString
	if err := row.Scan(
		&c.ID, &c.RoomID, &c.TenantID, &c.Name,
		&clean, &undamaged, &working, &c.OverviewComment,
		&c.HumanEdits.ConditionFlagsEdited, &c.HumanEdits.OverviewCommentEdited, &lastEdit,
		&photos, &c.Version,
	); err != nil {
		return nil, err
	}
	c.Condition.Clean = boolPtr(clean)
	c.Condition.Undamaged = boolPtr(undamaged)
	c.Condition.Working = boolPtr(working)
	if lastEdit.Valid {
		t := lastEdit.Time
		c.HumanEdits.LastHumanEditAt = &t
	}
	ids, err := unmarshalPhotoIDs(photos.String)
	if err != nil {
		return nil, err
	}
	c.PhotoIDs = ids
	return &c, nil
}
