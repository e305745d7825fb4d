package service

import (
	"context"
	"errors"

	"github.com/trailerforge/api/internal/model"
	"github.com/trailerforge/api/internal/store"
)

// Claim refusal reasons. Workers poll on these, so they are stable strings.
const (
	ReasonJobNotFound    = "job not found"
	ReasonNotClaimable   = "job not claimable"
	ReasonLockConflict   = "locked by another worker"
	ReasonTooManyRenders = "too many active render jobs"
	ReasonNotLockHolder  = "not the lock holder"
)

// claimRefusal aborts the atomic update and is converted into a soft result.
type claimRefusal struct {
	reason string
	prev   model.JobStatus
}

func (r *claimRefusal) Error() string { return r.reason }

// ClaimService is the claim manager and concurrency governor. It is the only
// component that transitions a job out of a claimable status, and the only
// synchronization point between workers.
type ClaimService struct {
	store            store.Store
	maxUserRenders   int
	maxGlobalRenders int
}

func NewClaimService(st store.Store, maxUserRenders, maxGlobalRenders int) *ClaimService {
	return &ClaimService{
		store:            st,
		maxUserRenders:   maxUserRenders,
		maxGlobalRenders: maxGlobalRenders,
	}
}

// Claim atomically takes ownership of a claimable job for workerID and
// advances it past its entry status (uploaded→claimed, analysis_ready→
// planning), incrementing the attempt count. Refusals come back as
// {claimed:false, reason}, never as an error.
//
// The per-user render cap is checked before the atomic update; it is advisory
// at claim time only and never enforced retroactively.
func (s *ClaimService) Claim(ctx context.Context, jobID, workerID string) (*model.ClaimResult, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return &model.ClaimResult{Claimed: false, Reason: ReasonJobNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	if job.Status == model.StatusAnalysisReady {
		count, err := s.store.CountUserJobsByStatus(ctx, job.UserID, model.StatusRendering)
		if err != nil {
			return nil, err
		}
		if count >= s.maxUserRenders {
			return &model.ClaimResult{
				Claimed:        false,
				Reason:         ReasonTooManyRenders,
				PreviousStatus: job.Status,
			}, nil
		}
	}

	var prev model.JobStatus
	updated, err := s.store.UpdateJob(ctx, jobID, func(job *model.TrailerJob) error {
		prev = job.Status
		if !job.Status.IsClaimable() {
			// Also blocks a caller that already holds the lock but advanced
			// past entry: claim is only valid from the two entry statuses.
			return &claimRefusal{reason: ReasonNotClaimable, prev: job.Status}
		}
		if job.Locked() && !job.LockedBy(workerID) {
			return &claimRefusal{reason: ReasonLockConflict, prev: job.Status}
		}

		next, _ := model.ClaimTarget(job.Status)
		worker := workerID
		job.ProcessingLockID = &worker
		job.Status = next
		job.AttemptCount++
		job.Progress = 0
		job.CurrentStep = ""
		return nil
	})

	var refusal *claimRefusal
	if errors.As(err, &refusal) {
		return &model.ClaimResult{Claimed: false, Reason: refusal.reason, PreviousStatus: refusal.prev}, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return &model.ClaimResult{Claimed: false, Reason: ReasonJobNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	// prev is the status observed inside the atomic update, not the earlier
	// governor-check snapshot.
	return &model.ClaimResult{
		Claimed:        true,
		PreviousStatus: prev,
		Job:            updated,
	}, nil
}

// Release gives up the lock without failing the job. Only the current lock
// holder succeeds. The job falls back to the claimable status of its furthest
// completed macro-phase: analysis_ready if a scene map exists, else uploaded.
func (s *ClaimService) Release(ctx context.Context, jobID, workerID string) (*model.ReleaseResult, error) {
	_, err := s.store.UpdateJob(ctx, jobID, func(job *model.TrailerJob) error {
		if !job.LockedBy(workerID) {
			return &claimRefusal{reason: ReasonNotLockHolder}
		}

		job.ProcessingLockID = nil
		if job.SceneMapID != nil {
			job.Status = model.StatusAnalysisReady
		} else {
			job.Status = model.StatusUploaded
		}
		job.CurrentStep = ""
		return nil
	})

	var refusal *claimRefusal
	if errors.As(err, &refusal) {
		return &model.ReleaseResult{Released: false, Reason: refusal.reason}, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return &model.ReleaseResult{Released: false, Reason: ReasonJobNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	return &model.ReleaseResult{Released: true}, nil
}

// ClaimableJobs lists jobs a worker may try to claim, oldest update first.
func (s *ClaimService) ClaimableJobs(ctx context.Context) ([]*model.ClaimableJob, error) {
	jobs, err := s.store.ListJobsByStatus(ctx, model.ClaimableStatuses...)
	if err != nil {
		return nil, err
	}

	out := make([]*model.ClaimableJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, &model.ClaimableJob{
			JobID:     job.ID,
			UserID:    job.UserID,
			Status:    job.Status,
			Attempts:  job.AttemptCount,
			UpdatedAt: job.UpdatedAt,
		})
	}
	return out, nil
}

// Capacity reports the advisory global render cap. Workers are expected to
// consult it before claiming render work; nothing reserves capacity.
func (s *ClaimService) Capacity(ctx context.Context) (*model.CapacityView, error) {
	active, err := s.store.CountJobsByStatus(ctx, model.RenderStatuses...)
	if err != nil {
		return nil, err
	}
	return &model.CapacityView{
		ActiveRenders:   active,
		GlobalRenderCap: s.maxGlobalRenders,
		AtCapacity:      s.maxGlobalRenders > 0 && active >= s.maxGlobalRenders,
	}, nil
}
