package media

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/propcheck/inspections/internal/domain/authz"
	"github.com/propcheck/inspections/internal/domain/faults"
	dominsp "github.com/propcheck/inspections/internal/domain/inspections"
	domain "github.com/propcheck/inspections/internal/domain/media"
)

// Service stores evidence photos and links them to components. Uploads
// are gated on the owning inspection's finalization lock like every
// other mutation.
type Service struct {
	Store       domain.Store
	Inspections dominsp.Repository
	Logger      *slog.Logger
}

// UploadPhoto stores the photo bytes and appends the photo id to the
// component. The object key is tenant-scoped so storage mirrors the
// tenant partitioning of the database.
func (s *Service) UploadPhoto(ctx context.Context, sc *authz.SecurityContext, componentID dominsp.ComponentID, filename, contentType string, data []byte) (domain.Photo, error) {
	comp, _, insp, err := s.Inspections.ComponentChain(ctx, componentID)
	if err != nil {
		return domain.Photo{}, err
	}
	if comp == nil {
		return domain.Photo{}, faults.NotFound("component", string(componentID))
	}
	if err := authz.Authorize(authz.ActionMediaUpload, insp.Resource(), sc); err != nil {
		return domain.Photo{}, err
	}
	if len(data) == 0 {
		return domain.Photo{}, faults.InvalidState("empty photo upload")
	}

	photoID := uuid.New().String()
	key := fmt.Sprintf("%s/%s/%s/%s-%s", comp.TenantID, insp.ID, comp.ID, photoID, filename)
	photo, err := s.Store.Put(ctx, key, data, contentType)
	if err != nil {
		return domain.Photo{}, faults.ServiceUnavailable(fmt.Sprintf("media store: %v", err))
	}
	photo.ID = photoID

	comp.PhotoIDs = append(comp.PhotoIDs, photoID)
	if err := s.Inspections.UpdateComponent(ctx, comp, comp.Version); err != nil {
		return domain.Photo{}, err
	}

	s.Logger.Info("photo uploaded",
		"photo_id", photoID,
		"component_id", comp.ID,
		"tenant", comp.TenantID,
		"size", len(data),
	)
	return photo, nil
}
