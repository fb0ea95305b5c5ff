package components

import (
	"context"
	"log/slog"

	"github.com/propcheck/inspections/internal/application"
	"github.com/propcheck/inspections/internal/domain/authz"
	"github.com/propcheck/inspections/internal/domain/faults"
	domain "github.com/propcheck/inspections/internal/domain/inspections"
)

// Service is the component edit merger: it applies human edits to a
// component's condition flags and commentary and stamps them as
// human-authored, so a later automated pass can only propose a competing
// value as a new AI issue, never overwrite the field.
type Service struct {
	Repo   domain.Repository
	Clock  application.Clock
	Logger *slog.Logger
}

// ConditionPatch carries only the flags the caller wants to change; nil
// fields keep their stored value.
type ConditionPatch struct {
	Clean     *bool `json:"clean,omitempty"`
	Undamaged *bool `json:"undamaged,omitempty"`
	Working   *bool `json:"working,omitempty"`
}

// EditCommand is one human edit. ExpectedVersion must be the component
// version the caller read; a stale value is rejected so the caller can
// re-read and retry.
type EditCommand struct {
	Condition       *ConditionPatch
	OverviewComment *string
	ExpectedVersion int64
}

// ApplyEdit merges the edit into the component, authorized against the
// owning inspection so the finalization lock applies.
func (s *Service) ApplyEdit(ctx context.Context, sc *authz.SecurityContext, id domain.ComponentID, cmd EditCommand) (*domain.Component, error) {
	comp, _, insp, err := s.Repo.ComponentChain(ctx, id)
	if err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, faults.NotFound("component", string(id))
	}
	if err := authz.Authorize(authz.ActionComponentUpdate, insp.Resource(), sc); err != nil {
		return nil, err
	}
	if cmd.Condition == nil && cmd.OverviewComment == nil {
		return nil, faults.InvalidState("edit carries no fields")
	}

	expected := cmd.ExpectedVersion
	if expected == 0 {
		expected = comp.Version
	}

	if cmd.Condition != nil {
		if cmd.Condition.Clean != nil {
			comp.Condition.Clean = cmd.Condition.Clean
		}
		if cmd.Condition.Undamaged != nil {
			comp.Condition.Undamaged = cmd.Condition.Undamaged
		}
		if cmd.Condition.Working != nil {
			comp.Condition.Working = cmd.Condition.Working
		}
		comp.HumanEdits.ConditionFlagsEdited = true
	}
	if cmd.OverviewComment != nil {
		comp.OverviewComment = *cmd.OverviewComment
		comp.HumanEdits.OverviewCommentEdited = true
	}
	now := s.Clock.Now()
	comp.HumanEdits.LastHumanEditAt = &now

	if err := s.Repo.UpdateComponent(ctx, comp, expected); err != nil {
		return nil, err
	}
	comp.Version = expected + 1

	s.Logger.Info("component edited",
		"component_id", comp.ID,
		"tenant", comp.TenantID,
		"user_id", sc.UserID,
		"version", comp.Version,
	)
	return comp, nil
}
