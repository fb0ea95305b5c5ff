package inspections

import "context"

// Repository port for the inspection aggregate. Plain keyed access with
// no policy; listings are tenant-filtered, while by-id fetches are
// unscoped so the security kernel can report a tenant mismatch instead
// of a blind not-found. Missing rows come back as (nil, nil).
type Repository interface {
	SaveInspection(ctx context.Context, i *Inspection) error
	GetInspection(ctx context.Context, id InspectionID) (*Inspection, error)
	ListInspections(ctx context.Context, tenant string, page, pageSize int) (PaginatedInspections, error)

	SaveRoom(ctx context.Context, r *Room) error
	GetRoom(ctx context.Context, id RoomID) (*Room, error)
	ListRooms(ctx context.Context, tenant string, id InspectionID) ([]*Room, error)

	SaveComponent(ctx context.Context, c *Component) error
	GetComponent(ctx context.Context, id ComponentID) (*Component, error)
	ListComponents(ctx context.Context, tenant string, roomID RoomID) ([]*Component, error)

	// UpdateComponent persists c only when the stored row still carries
	// expectedVersion; on success the stored version becomes
	// expectedVersion+1. A stale expectedVersion yields a conflict fault.
	UpdateComponent(ctx context.Context, c *Component, expectedVersion int64) error

	// ComponentChain resolves a component's owning room and inspection,
	// used to find the finalization lock for child mutations.
	ComponentChain(ctx context.Context, id ComponentID) (*Component, *Room, *Inspection, error)
}
