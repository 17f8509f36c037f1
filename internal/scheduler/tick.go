package scheduler

import (
	"context"

	"porter/internal/logging"
	"porter/internal/records"
	"porter/internal/stage"
)

// Tick runs one scheduling pass for a stage. Across projects dispatch is
// parallel (one candidate per eligible project); within a project at most
// one batch advances per tick.
func (m *Manager) Tick(ctx context.Context, def stage.Definition) error {
	projects, err := m.store.ListProjects(ctx, def.ProjectStatus)
	if err != nil {
		return err
	}
	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if def.ProjectScoped {
			if err := m.tickProjectScoped(ctx, def, project); err != nil {
				m.tickError(def, project, err)
			}
			continue
		}
		if err := m.tickBatch(ctx, def, project); err != nil {
			m.tickError(def, project, err)
		}
	}
	return nil
}

// tickBatch selects and claims one batch for the project under the
// single-flight rule.
func (m *Manager) tickBatch(ctx context.Context, def stage.Definition, project *records.Project) error {
	inFlight, err := m.store.HasInFlight(ctx, project.ID, def.Group)
	if err != nil {
		return err
	}
	if inFlight {
		return nil
	}
	batch, err := m.store.OldestReadyBatch(ctx, project.ID, def.Group, def.Ready)
	if err != nil {
		return err
	}
	if batch == nil {
		// The group may be empty for this project (or already drained by
		// a prior run); the barrier advance is idempotent either way.
		_, err := stage.AdvanceIfComplete(ctx, m.store, def, project.ID)
		return err
	}

	won, err := m.store.ClaimBatch(ctx, batch.ID, def.Ready)
	if err != nil {
		return err
	}
	if !won {
		// A racing tick claimed it first; skip without side effects.
		return nil
	}
	claimed, err := m.store.GetBatch(ctx, batch.ID)
	if err != nil || claimed == nil {
		return err
	}

	work := &stage.Work{Project: project, Batch: claimed}
	if err := m.dispatcher.Dispatch(ctx, def, work); err != nil {
		// The claim must not outlive a failed dispatch.
		if releaseErr := m.store.ReleaseClaim(ctx, batch.ID); releaseErr != nil {
			m.logger.Error("failed to release claim after dispatch failure",
				logging.String(logging.FieldStage, def.Name),
				logging.String(logging.FieldBatch, batch.Name),
				logging.Error(releaseErr))
		}
		return err
	}
	return nil
}

// tickProjectScoped claims the whole project by advancing it into the
// stage's working status; the conditional update lets exactly one tick win.
func (m *Manager) tickProjectScoped(ctx context.Context, def stage.Definition, project *records.Project) error {
	won, err := m.store.AdvanceProject(ctx, project.ID, records.ProjectPromoted, records.ProjectVerifying, def.Name, "verification started")
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	claimed, err := m.store.GetProject(ctx, project.ID)
	if err != nil {
		m.releaseProject(ctx, def, project.ID)
		return err
	}
	if err := m.dispatcher.Dispatch(ctx, def, &stage.Work{Project: claimed}); err != nil {
		// The project claim must not outlive a failed dispatch; a later
		// tick re-claims from the predecessor status.
		m.releaseProject(ctx, def, project.ID)
		return err
	}
	return nil
}

func (m *Manager) releaseProject(ctx context.Context, def stage.Definition, projectID int64) {
	_, err := m.store.AdvanceProject(ctx, projectID, records.ProjectVerifying, records.ProjectPromoted, def.Name, "verification dispatch failed; returned to promoted")
	if err != nil {
		m.logger.Error("failed to release project claim after dispatch failure",
			logging.String(logging.FieldStage, def.Name),
			logging.Int64(logging.FieldProject, projectID),
			logging.Error(err))
	}
}

func (m *Manager) tickError(def stage.Definition, project *records.Project, err error) {
	m.logger.Error("project scheduling failed",
		logging.String(logging.FieldStage, def.Name),
		logging.Int64(logging.FieldProject, project.ID),
		logging.Error(err))
}
