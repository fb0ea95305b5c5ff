// Package memstore is an in-memory implementation of every repository
// port. It backs the "memory" database driver and gives the service
// tests a deterministic store with the same semantics as the SQL
// adapters, including the per-record component version check.
package memstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/propcheck/inspections/internal/domain/faults"
	"github.com/propcheck/inspections/internal/domain/inspections"
	"github.com/propcheck/inspections/internal/domain/issues"
	"github.com/propcheck/inspections/internal/domain/jobs"
)

// Store holds all tenant data behind one mutex. Repository views over it
// are obtained with Inspections, Issues, and Jobs.
type Store struct {
	mu sync.RWMutex

	inspectionRows map[inspections.InspectionID]*inspections.Inspection
	roomRows       map[inspections.RoomID]*inspections.Room
	componentRows  map[inspections.ComponentID]*inspections.Component
	issueRows      map[issues.IssueID]*issues.Issue
	jobRows        map[jobs.JobID]*jobs.Job

	// seq breaks creation-time ties so listings stay stable.
	seq   int64
	seqOf map[string]int64
}

func New() *Store {
	return &Store{
		inspectionRows: make(map[inspections.InspectionID]*inspections.Inspection),
		roomRows:       make(map[inspections.RoomID]*inspections.Room),
		componentRows:  make(map[inspections.ComponentID]*inspections.Component),
		issueRows:      make(map[issues.IssueID]*issues.Issue),
		jobRows:        make(map[jobs.JobID]*jobs.Job),
		seqOf:          make(map[string]int64),
	}
}

// Inspections returns the inspection-aggregate repository view.
func (s *Store) Inspections() inspections.Repository { return &inspectionRepo{s} }

// Issues returns the issue repository view.
func (s *Store) Issues() issues.Repository { return &issueRepo{s} }

// Jobs returns the job repository view.
func (s *Store) Jobs() jobs.Repository { return &jobRepo{s} }

func (s *Store) nextSeq(id string) {
	if _, ok := s.seqOf[id]; !ok {
		s.seq++
		s.seqOf[id] = s.seq
	}
}

//
// ==== inspections.Repository ====
//

type inspectionRepo struct{ s *Store }

func (r *inspectionRepo) SaveInspection(_ context.Context, i *inspections.Inspection) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *i
	r.s.inspectionRows[i.ID] = &cp
	r.s.nextSeq(string(i.ID))
	return nil
}

func (r *inspectionRepo) GetInspection(_ context.Context, id inspections.InspectionID) (*inspections.Inspection, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	row, ok := r.s.inspectionRows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (r *inspectionRepo) ListInspections(_ context.Context, tenant string, page, pageSize int) (inspections.PaginatedInspections, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var all []*inspections.Inspection
	for _, row := range r.s.inspectionRows {
		if row.TenantID == tenant {
			cp := *row
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(a, b int) bool {
		return r.s.seqOf[string(all[a].ID)] < r.s.seqOf[string(all[b].ID)]
	})

	total := int64(len(all))
	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return inspections.PaginatedInspections{
		Data:       all[start:end],
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

func (r *inspectionRepo) SaveRoom(_ context.Context, rm *inspections.Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *rm
	r.s.roomRows[rm.ID] = &cp
	r.s.nextSeq(string(rm.ID))
	return nil
}

func (r *inspectionRepo) GetRoom(_ context.Context, id inspections.RoomID) (*inspections.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	row, ok := r.s.roomRows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (r *inspectionRepo) ListRooms(_ context.Context, tenant string, id inspections.InspectionID) ([]*inspections.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*inspections.Room
	for _, row := range r.s.roomRows {
		if row.TenantID == tenant && row.InspectionID == id {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].SortOrder != out[b].SortOrder {
			return out[a].SortOrder < out[b].SortOrder
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

func (r *inspectionRepo) SaveComponent(_ context.Context, c *inspections.Component) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.componentRows[c.ID] = copyComponent(c)
	r.s.nextSeq(string(c.ID))
	return nil
}

func (r *inspectionRepo) GetComponent(_ context.Context, id inspections.ComponentID) (*inspections.Component, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	row, ok := r.s.componentRows[id]
	if !ok {
		return nil, nil
	}
	return copyComponent(row), nil
}

func (r *inspectionRepo) ListComponents(_ context.Context, tenant string, roomID inspections.RoomID) ([]*inspections.Component, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*inspections.Component
	for _, row := range r.s.componentRows {
		if row.TenantID == tenant && row.RoomID == roomID {
			out = append(out, copyComponent(row))
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return r.s.seqOf[string(out[a].ID)] < r.s.seqOf[string(out[b].ID)]
	})
	return out, nil
}

func (r *inspectionRepo) UpdateComponent(_ context.Context, c *inspections.Component, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.componentRows[c.ID]
	if !ok || row.TenantID != c.TenantID {
		return faults.NotFound("component", string(c.ID))
	}
	if row.Version != expectedVersion {
		return faults.ConflictRetry("component", string(c.ID))
	}
	cp := copyComponent(c)
	cp.Version = expectedVersion + 1
	r.s.componentRows[c.ID] = cp
	return nil
}

func (r *inspectionRepo) ComponentChain(_ context.Context, id inspections.ComponentID) (*inspections.Component, *inspections.Room, *inspections.Inspection, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	comp, ok := r.s.componentRows[id]
	if !ok {
		return nil, nil, nil, nil
	}
	room, ok := r.s.roomRows[comp.RoomID]
	if !ok {
		return nil, nil, nil, faults.NotFound("room", string(comp.RoomID))
	}
	insp, ok := r.s.inspectionRows[room.InspectionID]
	if !ok {
		return nil, nil, nil, faults.NotFound("inspection", string(room.InspectionID))
	}
	rm := *room
	in := *insp
	return copyComponent(comp), &rm, &in, nil
}

//
// ==== issues.Repository ====
//

type issueRepo struct{ s *Store }

func (r *issueRepo) Insert(_ context.Context, i *issues.Issue) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.issueRows[i.ID] = copyIssue(i)
	r.s.nextSeq(string(i.ID))
	return nil
}

func (r *issueRepo) Get(_ context.Context, id issues.IssueID) (*issues.Issue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	row, ok := r.s.issueRows[id]
	if !ok {
		return nil, nil
	}
	return copyIssue(row), nil
}

func (r *issueRepo) ListByComponent(_ context.Context, tenant string, componentID inspections.ComponentID, f issues.ListFilter) ([]*issues.Issue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*issues.Issue
	for _, row := range r.s.issueRows {
		if row.TenantID != tenant || row.ComponentID != componentID {
			continue
		}
		if !f.IncludeRejected && row.Rejected() {
			continue
		}
		if f.OnlySource != "" && row.Source != f.OnlySource {
			continue
		}
		out = append(out, copyIssue(row))
	}
	sort.Slice(out, func(a, b int) bool {
		return r.s.seqOf[string(out[a].ID)] < r.s.seqOf[string(out[b].ID)]
	})
	return out, nil
}

func (r *issueRepo) UpdateResolution(_ context.Context, tenant string, id issues.IssueID, res issues.AIResolution, prov *issues.Provenance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.issueRows[id]
	if !ok || row.TenantID != tenant {
		return faults.NotFound("issue", string(id))
	}
	row.AIResolution = res
	if prov != nil {
		cp := *prov
		row.Provenance = &cp
	}
	return nil
}

func (r *issueRepo) FindDerived(_ context.Context, tenant string, derivedFrom issues.IssueID) (*issues.Issue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *issues.Issue
	for _, row := range r.s.issueRows {
		if row.TenantID != tenant || row.Provenance == nil {
			continue
		}
		if row.Provenance.DerivedFromIssueID != derivedFrom {
			continue
		}
		if found == nil || r.s.seqOf[string(row.ID)] < r.s.seqOf[string(found.ID)] {
			found = row
		}
	}
	if found == nil {
		return nil, nil
	}
	return copyIssue(found), nil
}

//
// ==== jobs.Repository ====
//

type jobRepo struct{ s *Store }

func (r *jobRepo) Save(_ context.Context, j *jobs.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *j
	r.s.jobRows[j.ID] = &cp
	r.s.nextSeq(string(j.ID))
	return nil
}

func (r *jobRepo) Get(_ context.Context, id jobs.JobID) (*jobs.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	row, ok := r.s.jobRows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (r *jobRepo) Latest(_ context.Context, id inspections.InspectionID) (*jobs.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var latest *jobs.Job
	for _, row := range r.s.jobRows {
		if row.InspectionID != id {
			continue
		}
		if latest == nil || r.s.seqOf[string(row.ID)] > r.s.seqOf[string(latest.ID)] {
			latest = row
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *jobRepo) ListByInspection(_ context.Context, tenant string, id inspections.InspectionID) ([]*jobs.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*jobs.Job
	for _, row := range r.s.jobRows {
		if row.TenantID == tenant && row.InspectionID == id {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return r.s.seqOf[string(out[a].ID)] < r.s.seqOf[string(out[b].ID)]
	})
	return out, nil
}

func (r *jobRepo) UpdateStatus(_ context.Context, tenant string, id jobs.JobID, status jobs.Status, summary, payload string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.jobRows[id]
	if !ok || row.TenantID != tenant {
		return faults.NotFound("job", string(id))
	}
	if !row.Status.CanTransition(status) {
		return faults.InvalidState("job status may not regress")
	}
	row.Status = status
	if summary != "" {
		row.ResultSummary = summary
	}
	if payload != "" {
		row.ResultPayload = payload
	}
	return nil
}

//
// ==== copy helpers ====
//

func copyComponent(c *inspections.Component) *inspections.Component {
	cp := *c
	cp.Condition = copyCondition(c.Condition)
	if c.HumanEdits.LastHumanEditAt != nil {
		t := *c.HumanEdits.LastHumanEditAt
		cp.HumanEdits.LastHumanEditAt = &t
	}
	if c.PhotoIDs != nil {
		cp.PhotoIDs = append([]string(nil), c.PhotoIDs...)
	}
	return &cp
}

func copyCondition(c inspections.Condition) inspections.Condition {
	cp := inspections.Condition{}
	if c.Clean != nil {
		v := *c.Clean
		cp.Clean = &v
	}
	if c.Undamaged != nil {
		v := *c.Undamaged
		cp.Undamaged = &v
	}
	if c.Working != nil {
		v := *c.Working
		cp.Working = &v
	}
	return cp
}

func copyIssue(i *issues.Issue) *issues.Issue {
	cp := *i
	if i.Provenance != nil {
		p := *i.Provenance
		cp.Provenance = &p
	}
	return &cp
}
