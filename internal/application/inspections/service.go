package inspections

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/propcheck/inspections/internal/application"
	"github.com/propcheck/inspections/internal/domain/authz"
	"github.com/propcheck/inspections/internal/domain/faults"
	domain "github.com/propcheck/inspections/internal/domain/inspections"
)

// Service implements the inspection read side, structure edits, and the
// one-way finalization transition. Every operation authorizes through
// the security kernel before touching the store.
type Service struct {
	Repo   domain.Repository
	Clock  application.Clock
	Logger *slog.Logger
}

// Command for creating an inspection
type CreateInspectionCommand struct {
	InspectionType  string
	PropertyAddress string
}

// List returns the caller's tenant inspections, paginated.
func (s *Service) List(ctx context.Context, sc *authz.SecurityContext, page, pageSize int) (domain.PaginatedInspections, error) {
	if err := authz.Authorize(authz.ActionInspectionList, nil, sc); err != nil {
		return domain.PaginatedInspections{}, err
	}
	return s.Repo.ListInspections(ctx, sc.TenantID, page, pageSize)
}

// Get fetches one inspection by id.
func (s *Service) Get(ctx context.Context, sc *authz.SecurityContext, id domain.InspectionID) (*domain.Inspection, error) {
	insp, err := s.Repo.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	if insp == nil {
		return nil, faults.NotFound("inspection", string(id))
	}
	if err := authz.Authorize(authz.ActionInspectionRead, insp.Resource(), sc); err != nil {
		return nil, err
	}
	return insp, nil
}

// Rooms lists the rooms of an inspection.
func (s *Service) Rooms(ctx context.Context, sc *authz.SecurityContext, id domain.InspectionID) ([]*domain.Room, error) {
	insp, err := s.Repo.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	if insp == nil {
		return nil, faults.NotFound("inspection", string(id))
	}
	if err := authz.Authorize(authz.ActionRoomRead, insp.Resource(), sc); err != nil {
		return nil, err
	}
	return s.Repo.ListRooms(ctx, sc.TenantID, id)
}

// Components lists the components of a room.
func (s *Service) Components(ctx context.Context, sc *authz.SecurityContext, roomID domain.RoomID) ([]*domain.Component, error) {
	room, err := s.Repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, faults.NotFound("room", string(roomID))
	}
	res := &authz.Resource{ID: string(room.ID), Type: "room", TenantID: room.TenantID}
	if err := authz.Authorize(authz.ActionComponentRead, res, sc); err != nil {
		return nil, err
	}
	return s.Repo.ListComponents(ctx, sc.TenantID, roomID)
}

// Create opens a new draft inspection for the caller's tenant.
func (s *Service) Create(ctx context.Context, sc *authz.SecurityContext, cmd CreateInspectionCommand) (*domain.Inspection, error) {
	if err := authz.Authorize(authz.ActionInspectionUpdate, nil, sc); err != nil {
		return nil, err
	}
	now := s.Clock.Now()
	insp := &domain.Inspection{
		ID:              domain.InspectionID(uuid.New().String()),
		TenantID:        sc.TenantID,
		CreatedByUserID: sc.UserID,
		InspectionType:  cmd.InspectionType,
		PropertyAddress: cmd.PropertyAddress,
		Status:          domain.StatusDraft,
		ReportStatus:    domain.ReportNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Repo.SaveInspection(ctx, insp); err != nil {
		return nil, err
	}
	s.Logger.Info("inspection created",
		"inspection_id", insp.ID,
		"tenant", insp.TenantID,
		"user_id", sc.UserID,
	)
	return insp, nil
}

// AddRoom attaches a room to a non-finalized inspection. The child
// inherits the parent's tenant; this is where the structural tenant
// invariant is established.
func (s *Service) AddRoom(ctx context.Context, sc *authz.SecurityContext, id domain.InspectionID, name, roomType string, sortOrder int) (*domain.Room, error) {
	insp, err := s.Repo.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	if insp == nil {
		return nil, faults.NotFound("inspection", string(id))
	}
	if err := authz.Authorize(authz.ActionInspectionUpdate, insp.Resource(), sc); err != nil {
		return nil, err
	}
	room := &domain.Room{
		ID:           domain.RoomID(uuid.New().String()),
		InspectionID: insp.ID,
		TenantID:     insp.TenantID,
		Name:         name,
		RoomType:     roomType,
		SortOrder:    sortOrder,
	}
	if err := s.Repo.SaveRoom(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// AddComponent attaches a component to a room, authorized against the
// owning inspection so the finalization lock applies.
func (s *Service) AddComponent(ctx context.Context, sc *authz.SecurityContext, roomID domain.RoomID, name string) (*domain.Component, error) {
	room, err := s.Repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, faults.NotFound("room", string(roomID))
	}
	insp, err := s.Repo.GetInspection(ctx, room.InspectionID)
	if err != nil {
		return nil, err
	}
	if insp == nil {
		return nil, faults.NotFound("inspection", string(room.InspectionID))
	}
	if err := authz.Authorize(authz.ActionInspectionUpdate, insp.Resource(), sc); err != nil {
		return nil, err
	}
	comp := &domain.Component{
		ID:       domain.ComponentID(uuid.New().String()),
		RoomID:   room.ID,
		TenantID: room.TenantID,
		Name:     name,
		Version:  1,
	}
	if err := s.Repo.SaveComponent(ctx, comp); err != nil {
		return nil, err
	}
	return comp, nil
}

// Finalize freezes the inspection and everything beneath it. One-way:
// there is no unfinalize, and the kernel refuses a second call because
// the resource is already locked.
func (s *Service) Finalize(ctx context.Context, sc *authz.SecurityContext, id domain.InspectionID) (*domain.Inspection, error) {
	insp, err := s.Repo.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	if insp == nil {
		return nil, faults.NotFound("inspection", string(id))
	}
	if err := authz.Authorize(authz.ActionReportFinalize, insp.Resource(), sc); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	insp.Status = domain.StatusFinalized
	insp.ReportStatus = domain.ReportFinalized
	insp.FinalizedAt = &now
	insp.UpdatedAt = now
	if err := s.Repo.SaveInspection(ctx, insp); err != nil {
		return nil, fmt.Errorf("finalizing inspection %s: %w", id, err)
	}

	s.Logger.Info("inspection finalized",
		"inspection_id", insp.ID,
		"tenant", insp.TenantID,
		"finalized_by", sc.UserID,
	)
	return insp, nil
}
