package issues

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/propcheck/inspections/internal/application"
	"github.com/propcheck/inspections/internal/domain/authz"
	"github.com/propcheck/inspections/internal/domain/faults"
	dominsp "github.com/propcheck/inspections/internal/domain/inspections"
	domain "github.com/propcheck/inspections/internal/domain/issues"
)

// Service is the issue reconciliation engine. AI findings are never
// deleted or edited in place: a human accepts, rejects, or overrides
// them, and acceptance produces a separate human issue linked back to
// the original through provenance.
type Service struct {
	Repo        domain.Repository
	Inspections dominsp.Repository
	Clock       application.Clock
	Logger      *slog.Logger
}

// Command for a human-entered finding
type CreateHumanIssueCommand struct {
	ComponentID dominsp.ComponentID
	Type        string
	Severity    domain.Severity
	Notes       string
	Provenance  *domain.Provenance
}

// Resolve actions accepted by ResolveAIIssue.
const (
	ResolveAccept = "accept"
	ResolveReject = "reject"
)

// OverrideData replaces parts of the AI finding when accepting with
// corrections; nil fields fall back to the AI values.
type OverrideData struct {
	Severity *domain.Severity `json:"severity,omitempty"`
	Notes    *string          `json:"notes,omitempty"`
}

// ResolveResult carries both sides of a resolution: the (updated) AI
// issue and, for accepts, the derived human issue.
type ResolveResult struct {
	AIIssue    *domain.Issue `json:"ai_issue"`
	HumanIssue *domain.Issue `json:"human_issue,omitempty"`
}

// CreateHumanIssue appends a human finding. Confidence is always 1.0 and
// there is no AI resolution state to track.
func (s *Service) CreateHumanIssue(ctx context.Context, sc *authz.SecurityContext, cmd CreateHumanIssueCommand) (*domain.Issue, error) {
	comp, _, insp, err := s.Inspections.ComponentChain(ctx, cmd.ComponentID)
	if err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, faults.NotFound("component", string(cmd.ComponentID))
	}
	if err := authz.Authorize(authz.ActionIssueCreate, insp.Resource(), sc); err != nil {
		return nil, err
	}
	if !domain.ValidSeverity(cmd.Severity) {
		return nil, faults.InvalidState(fmt.Sprintf("unknown severity %q", cmd.Severity))
	}

	issue := &domain.Issue{
		ID:          domain.IssueID(uuid.New().String()),
		ComponentID: comp.ID,
		TenantID:    comp.TenantID,
		Type:        cmd.Type,
		Severity:    cmd.Severity,
		Source:      domain.SourceHuman,
		Confidence:  1.0,
		Notes:       cmd.Notes,
		Provenance:  cmd.Provenance,
		CreatedAt:   s.Clock.Now(),
	}
	if err := s.Repo.Insert(ctx, issue); err != nil {
		return nil, err
	}
	s.Logger.Info("human issue created",
		"issue_id", issue.ID,
		"component_id", comp.ID,
		"tenant", comp.TenantID,
		"user_id", sc.UserID,
	)
	return issue, nil
}

// ResolveAIIssue moves an AI finding out of pending. Reject hides it
// from active views; accept (optionally with overrides) additionally
// creates the linked human copy. Accepting an already accepted or
// overridden issue is idempotent: the existing copy is returned instead
// of a duplicate.
func (s *Service) ResolveAIIssue(ctx context.Context, sc *authz.SecurityContext, id domain.IssueID, action string, override *OverrideData) (*ResolveResult, error) {
	issue, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return nil, faults.NotFound("issue", string(id))
	}

	// The owning inspection carries the tenant and the finalization lock.
	comp, _, insp, err := s.Inspections.ComponentChain(ctx, issue.ComponentID)
	if err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, faults.NotFound("component", string(issue.ComponentID))
	}
	if err := authz.Authorize(authz.ActionIssueResolve, insp.Resource(), sc); err != nil {
		return nil, err
	}

	if issue.Source != domain.SourceAI {
		return nil, faults.InvalidState(fmt.Sprintf("issue %s is human-entered, nothing to resolve", id))
	}

	switch action {
	case ResolveReject:
		return s.reject(ctx, sc, issue)
	case ResolveAccept:
		return s.accept(ctx, sc, issue, override)
	default:
		return nil, faults.InvalidState(fmt.Sprintf("unknown resolve action %q", action))
	}
}

func (s *Service) reject(ctx context.Context, sc *authz.SecurityContext, issue *domain.Issue) (*ResolveResult, error) {
	switch issue.AIResolution {
	case "", domain.ResolutionPending:
		// fall through to the transition
	case domain.ResolutionRejected:
		return &ResolveResult{AIIssue: issue}, nil
	default:
		return nil, faults.InvalidState(fmt.Sprintf("issue %s already resolved as %s", issue.ID, issue.AIResolution))
	}

	prov := provenanceOf(issue)
	prov.RejectedByUserID = sc.UserID
	if err := s.Repo.UpdateResolution(ctx, issue.TenantID, issue.ID, domain.ResolutionRejected, prov); err != nil {
		return nil, err
	}
	issue.AIResolution = domain.ResolutionRejected
	issue.Provenance = prov

	s.Logger.Info("ai issue rejected",
		"issue_id", issue.ID,
		"tenant", issue.TenantID,
		"user_id", sc.UserID,
	)
	return &ResolveResult{AIIssue: issue}, nil
}

func (s *Service) accept(ctx context.Context, sc *authz.SecurityContext, issue *domain.Issue, override *OverrideData) (*ResolveResult, error) {
	switch issue.AIResolution {
	case "", domain.ResolutionPending:
		// fall through to the transition
	case domain.ResolutionAccepted, domain.ResolutionOverridden:
		existing, err := s.Repo.FindDerived(ctx, issue.TenantID, issue.ID)
		if err != nil {
			return nil, err
		}
		return &ResolveResult{AIIssue: issue, HumanIssue: existing}, nil
	default:
		return nil, faults.InvalidState(fmt.Sprintf("issue %s already resolved as %s", issue.ID, issue.AIResolution))
	}

	resolution := domain.ResolutionAccepted
	severity := issue.Severity
	notes := issue.Notes
	if override != nil {
		resolution = domain.ResolutionOverridden
		if override.Severity != nil {
			if !domain.ValidSeverity(*override.Severity) {
				return nil, faults.InvalidState(fmt.Sprintf("unknown severity %q", *override.Severity))
			}
			severity = *override.Severity
		}
		if override.Notes != nil {
			notes = *override.Notes
		}
	}

	// The human copy: the AI original keeps its type/severity/notes
	// untouched forever, so both sides of the audit trail survive.
	human := &domain.Issue{
		ID:          domain.IssueID(uuid.New().String()),
		ComponentID: issue.ComponentID,
		TenantID:    issue.TenantID,
		Type:        issue.Type,
		Severity:    severity,
		Source:      domain.SourceHuman,
		Confidence:  1.0,
		Notes:       notes,
		Provenance: &domain.Provenance{
			DerivedFromIssueID: issue.ID,
			AcceptedByUserID:   sc.UserID,
		},
		CreatedAt: s.Clock.Now(),
	}
	if err := s.Repo.Insert(ctx, human); err != nil {
		return nil, err
	}

	prov := provenanceOf(issue)
	prov.AcceptedByUserID = sc.UserID
	if err := s.Repo.UpdateResolution(ctx, issue.TenantID, issue.ID, resolution, prov); err != nil {
		return nil, err
	}
	issue.AIResolution = resolution
	issue.Provenance = prov

	s.Logger.Info("ai issue resolved",
		"issue_id", issue.ID,
		"resolution", resolution,
		"derived_issue_id", human.ID,
		"tenant", issue.TenantID,
		"user_id", sc.UserID,
	)
	return &ResolveResult{AIIssue: issue, HumanIssue: human}, nil
}

// List returns a component's issues. The default view hides rejected AI
// findings; includeRejected surfaces the full history.
func (s *Service) List(ctx context.Context, sc *authz.SecurityContext, componentID dominsp.ComponentID, includeRejected bool) ([]*domain.Issue, error) {
	comp, _, insp, err := s.Inspections.ComponentChain(ctx, componentID)
	if err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, faults.NotFound("component", string(componentID))
	}
	if err := authz.Authorize(authz.ActionIssueRead, insp.Resource(), sc); err != nil {
		return nil, err
	}
	return s.Repo.ListByComponent(ctx, comp.TenantID, componentID, domain.ListFilter{IncludeRejected: includeRejected})
}

// ActiveAISuggestions returns the AI findings still awaiting review.
func (s *Service) ActiveAISuggestions(ctx context.Context, sc *authz.SecurityContext, componentID dominsp.ComponentID) ([]*domain.Issue, error) {
	all, err := s.List(ctx, sc, componentID, false)
	if err != nil {
		return nil, err
	}
	var out []*domain.Issue
	for _, i := range all {
		if i.ActiveAISuggestion() {
			out = append(out, i)
		}
	}
	return out, nil
}

// HumanFindings returns every human issue, which already includes the
// accepted and overridden copies.
func (s *Service) HumanFindings(ctx context.Context, sc *authz.SecurityContext, componentID dominsp.ComponentID) ([]*domain.Issue, error) {
	all, err := s.List(ctx, sc, componentID, false)
	if err != nil {
		return nil, err
	}
	var out []*domain.Issue
	for _, i := range all {
		if i.Source == domain.SourceHuman {
			out = append(out, i)
		}
	}
	return out, nil
}

func provenanceOf(issue *domain.Issue) *domain.Provenance {
	if issue.Provenance != nil {
		cp := *issue.Provenance
		return &cp
	}
	return &domain.Provenance{}
}
