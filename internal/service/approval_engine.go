package service

import (
	"context"
	"time"

	"github.com/finipro/be-am-disposals/internal/apperrors"
	"github.com/finipro/be-am-disposals/internal/database"
	"github.com/finipro/be-am-disposals/internal/repository"
)

// Approve/reject transitions of DisposalService. Each transition runs in one
// transaction and serializes against concurrent transitions on the same
// workflow through the header row lock.

// Approve records an approval by the actor on the earliest awaiting step
// matching one of the actor's roles. When the last awaiting instance of the
// final step resolves, the workflow completes and the disposal finalizer runs
// in the same transaction.
func (s *DisposalService) Approve(ctx context.Context, actor Actor, workflowID string, note *string) (*ActionResult, error) {
	roles, err := s.identity.GetUserRoles(ctx, actor.OrgID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, apperrors.Unauthorized("actor has no approval role assigned")
	}

	result := &ActionResult{Success: true}
	completed := false

	err = s.runner.InTransaction(ctx, func(q database.Querier) error {
		wf, err := s.workflows.GetForUpdate(ctx, q, actor.OrgID, workflowID)
		if err != nil {
			return err
		}
		if wf.Status == repository.WorkflowCompleted || wf.Status == repository.WorkflowCancelled {
			return apperrors.Conflict("workflow is already " + wf.Status)
		}

		step, err := s.workflows.LockAwaitingForRoles(ctx, q, wf.ID, roles)
		if err != nil {
			return err
		}
		if step == nil {
			return apperrors.Unauthorized("no step is awaiting approval from the actor's roles")
		}

		if err := s.workflows.MarkStep(ctx, q, step.ID, repository.StepApproved, actor.UserID, note); err != nil {
			return err
		}

		remaining, err := s.workflows.CountAwaiting(ctx, q, wf.ID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			result.Message = "approved; awaiting other approvals"
			return nil
		}

		next, ok, err := s.workflows.NextActionableStep(ctx, q, wf.ID, step.StepNumber)
		if err != nil {
			return err
		}
		if ok {
			if err := s.workflows.ActivateStep(ctx, q, wf.ID, next, nil); err != nil {
				return err
			}
			if err := s.workflows.UpdateStatus(ctx, q, wf.ID, repository.WorkflowInProgress, nil); err != nil {
				return err
			}
			if err := s.workflows.SetCurrentStep(ctx, q, wf.ID, next); err != nil {
				return err
			}
			result.Message = "approved; advanced to next step"
			return nil
		}

		// Final step fully approved: dispose within this transaction.
		if err := s.finalizeWorkflow(ctx, q, wf, actor, note); err != nil {
			return err
		}
		now := time.Now()
		if err := s.workflows.UpdateStatus(ctx, q, wf.ID, repository.WorkflowCompleted, &now); err != nil {
			return err
		}
		completed = true
		result.Message = "approved; workflow completed and assets disposed"
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := "disposal_approved"
	if completed {
		eventType = "disposal_completed"
	}
	s.notifier.PublishWorkflowEvent(ctx, eventType, workflowID, actor.OrgID, actor.UserID, nil)

	s.log.Info().
		Str("workflow_id", workflowID).
		Str("actor", actor.UserID).
		Bool("completed", completed).
		Msg("Approval recorded")
	return result, nil
}

// Reject records a rejection on the earliest awaiting step matching one of
// the actor's roles, resets all later steps to pending and revokes earlier
// approvals so the chain is re-validated from the start.
func (s *DisposalService) Reject(ctx context.Context, actor Actor, workflowID string, reason string) (*ActionResult, error) {
	if reason == "" {
		return nil, apperrors.InvalidInput("reason", "rejection reason is required")
	}

	roles, err := s.identity.GetUserRoles(ctx, actor.OrgID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, apperrors.Unauthorized("actor has no approval role assigned")
	}

	result := &ActionResult{Success: true, Message: "rejected; earlier approvals revoked"}

	err = s.runner.InTransaction(ctx, func(q database.Querier) error {
		wf, err := s.workflows.GetForUpdate(ctx, q, actor.OrgID, workflowID)
		if err != nil {
			return err
		}
		if wf.Status == repository.WorkflowCompleted || wf.Status == repository.WorkflowCancelled {
			return apperrors.Conflict("workflow is already " + wf.Status)
		}

		step, err := s.workflows.LockAwaitingForRoles(ctx, q, wf.ID, roles)
		if err != nil {
			return err
		}
		if step == nil {
			return apperrors.Unauthorized("no step is awaiting approval from the actor's roles")
		}

		if err := s.workflows.MarkStep(ctx, q, step.ID, repository.StepRejected, actor.UserID, &reason); err != nil {
			return err
		}
		if err := s.workflows.RewindAfter(ctx, q, wf.ID, step.StepNumber); err != nil {
			return err
		}
		if err := s.workflows.ReopenBefore(ctx, q, wf.ID, step.StepNumber); err != nil {
			return err
		}
		if err := s.workflows.UpdateStatus(ctx, q, wf.ID, repository.WorkflowInProgress, nil); err != nil {
			return err
		}

		first, err := s.firstStepNumber(ctx, q, wf.ID)
		if err != nil {
			return err
		}
		return s.workflows.SetCurrentStep(ctx, q, wf.ID, first)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.PublishWorkflowEvent(ctx, "disposal_rejected", workflowID, actor.OrgID, actor.UserID,
		map[string]any{"reason": reason})

	s.log.Info().
		Str("workflow_id", workflowID).
		Str("actor", actor.UserID).
		Msg("Rejection recorded; chain rewound")
	return result, nil
}

// firstStepNumber returns the lowest step number in a workflow's chain.
func (s *DisposalService) firstStepNumber(ctx context.Context, q database.Querier, workflowID string) (int, error) {
	steps, err := s.workflows.ListSteps(ctx, q, workflowID)
	if err != nil {
		return 0, err
	}
	if len(steps) == 0 {
		return 0, apperrors.Newf(apperrors.ErrCodeInternal, "workflow %s has no steps", workflowID)
	}
	first := steps[0].StepNumber
	for _, st := range steps {
		if st.StepNumber < first {
			first = st.StepNumber
		}
	}
	return first, nil
}
