package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trailerforge/api/internal/model"
	"github.com/trailerforge/api/internal/store"
)

// PipelineService is the stage completion gateway: the operations external
// compute workers call back through while driving a claimed job.
type PipelineService struct {
	store store.Store
}

func NewPipelineService(st store.Store) *PipelineService {
	return &PipelineService{store: st}
}

// UpdateStatus records worker-reported progress. Any in-progress status is
// accepted (workers may skip fine-grained steps); unknown strings are rejected
// before anything is persisted. Terminal statuses go through Complete and
// Fail, and the ingest and claimable statuses through their own operations:
// a status report can never move a locked job back into a claimable status.
func (s *PipelineService) UpdateStatus(ctx context.Context, jobID string, req *model.UpdateStatusRequest) (*model.TrailerJob, error) {
	status, ok := model.ParseStatus(req.Status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, req.Status)
	}
	if status.IsTerminal() {
		return nil, fmt.Errorf("%w: status %q is set via complete/fail", ErrInvalidTransition, status)
	}
	if !status.IsInProgress() {
		return nil, fmt.Errorf("%w: status %q is not reachable by a status report", ErrInvalidTransition, status)
	}

	job, err := s.store.UpdateJob(ctx, jobID, func(job *model.TrailerJob) error {
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: job is %s", ErrInvalidTransition, job.Status)
		}
		job.Status = status
		if req.Progress != nil {
			job.Progress = *req.Progress
		}
		if req.CurrentStep != "" {
			job.CurrentStep = req.CurrentStep
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return job, err
}

// Complete marks the job ready. Valid from any in-progress status; calling it
// again on a ready job re-applies the terminal state (last write wins on the
// completion time).
func (s *PipelineService) Complete(ctx context.Context, jobID string) (*model.TrailerJob, error) {
	job, err := s.store.UpdateJob(ctx, jobID, func(job *model.TrailerJob) error {
		switch job.Status {
		case model.StatusFailed:
			return fmt.Errorf("%w: job has failed", ErrInvalidTransition)
		case model.StatusCreated, model.StatusUploading:
			return fmt.Errorf("%w: job is not in progress", ErrInvalidTransition)
		}

		now := time.Now().UTC()
		job.Status = model.StatusReady
		job.ProcessingLockID = nil
		job.Progress = 100
		job.CurrentStep = ""
		job.CompletedAt = &now
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return job, err
}

// Fail marks the job terminally failed, recording the human-readable error and
// the machine-readable stage. Valid from any non-ready status; idempotent.
func (s *PipelineService) Fail(ctx context.Context, jobID, errMsg, errStage string) (*model.TrailerJob, error) {
	job, err := s.store.UpdateJob(ctx, jobID, func(job *model.TrailerJob) error {
		if job.Status == model.StatusReady {
			return fmt.Errorf("%w: job already completed", ErrInvalidTransition)
		}

		job.Status = model.StatusFailed
		job.ProcessingLockID = nil
		job.Error = &errMsg
		if errStage != "" {
			job.ErrorStage = &errStage
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return job, err
}

// UpsertPlan creates or patches the singleton artifact for (job, kind) and
// links it into the job in one atomic store operation, no partial writes.
// A second upsert of the same kind patches in place rather than duplicating.
// Landing a timestamp plan while the job is planning advances it to
// plan_ready, the synthesis exit point.
func (s *PipelineService) UpsertPlan(ctx context.Context, jobID string, kind model.PlanKind, req *model.UpsertPlanRequest) (*model.PlanRecord, error) {
	rec, err := s.store.UpsertPlan(ctx, jobID, kind, req.Data, func(job *model.TrailerJob, rec *model.PlanRecord) error {
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: job is %s", ErrInvalidTransition, job.Status)
		}
		job.SetPlanID(kind, &rec.ID)
		if kind == model.PlanTimestamp && job.Status == model.StatusPlanning {
			job.Status = model.StatusPlanReady
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return rec, err
}

// CreateClip appends a rendered clip. The store tags it with the
// timestamp-plan revision that produced it, read in the same transaction so a
// concurrent plan upsert cannot leave a stale tag. Clips accumulate; nothing
// is replaced.
func (s *PipelineService) CreateClip(ctx context.Context, jobID string, req *model.CreateClipRequest) (*model.TrailerClip, error) {
	clip := &model.TrailerClip{
		ID:              uuid.New().String(),
		JobID:           jobID,
		OutputKey:       req.OutputKey,
		DurationSeconds: req.DurationSeconds,
		Width:           req.Width,
		Height:          req.Height,
		CreatedAt:       time.Now().UTC(),
	}

	err := s.store.AppendClip(ctx, clip, model.PlanTimestamp, func(job *model.TrailerJob) error {
		if job.Status == model.StatusFailed {
			return fmt.Errorf("%w: job has failed", ErrInvalidTransition)
		}
		job.ClipIDs = append(job.ClipIDs, clip.ID)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return clip, nil
}

// JobDetails is the read-only aggregate a worker fetches to bootstrap context
// after claiming.
func (s *PipelineService) JobDetails(ctx context.Context, jobID string) (*model.JobDetails, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	plans := make(map[model.PlanKind]*model.PlanRecord)
	for _, kind := range model.AllPlanKinds {
		rec, err := s.store.GetPlan(ctx, jobID, kind)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		plans[kind] = rec
	}

	clips, err := s.store.ListClips(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.JobDetails{Job: job, Plans: plans, Clips: clips}, nil
}
