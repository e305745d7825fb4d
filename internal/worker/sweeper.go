package worker

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/trailerforge/api/internal/model"
	"github.com/trailerforge/api/internal/service"
	"github.com/trailerforge/api/internal/store"
	"github.com/trailerforge/api/internal/websocket"
)

// TaskTypeSweepStale is the periodic stale-lock sweep.
const TaskTypeSweepStale = "jobs:sweep_stale"

// Sweeper is the watchdog for crashed or wedged workers. A lock whose job has
// not been touched within the threshold is forcibly released back to its
// claimable status so another worker can retry, or failed outright once the
// attempt budget is spent. Everything else about retries is worker-initiated.
type Sweeper struct {
	store       store.Store
	pipeline    *service.PipelineService
	hub         *websocket.Hub
	threshold   time.Duration
	maxAttempts int
}

func NewSweeper(st store.Store, pipeline *service.PipelineService, hub *websocket.Hub, threshold time.Duration, maxAttempts int) *Sweeper {
	return &Sweeper{
		store:       st,
		pipeline:    pipeline,
		hub:         hub,
		threshold:   threshold,
		maxAttempts: maxAttempts,
	}
}

// ProcessTask handles one sweep pass.
func (s *Sweeper) ProcessTask(ctx context.Context, t *asynq.Task) error {
	jobs, err := s.store.ListJobsByStatus(ctx, model.InProgressStatuses...)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-s.threshold)
	for _, job := range jobs {
		if !job.Locked() || job.UpdatedAt.After(cutoff) {
			continue
		}

		if job.AttemptCount >= s.maxAttempts {
			if _, err := s.pipeline.Fail(ctx, job.ID, "worker stopped responding", "watchdog"); err != nil {
				log.Printf("Sweeper: failed to fail job %s: %v", job.ID, err)
				continue
			}
			s.hub.BroadcastError(job.ID, "JOB_FAILED", "worker stopped responding", "watchdog")
			log.Printf("Sweeper: failed stale job %s after %d attempts", job.ID, job.AttemptCount)
			continue
		}

		released, err := s.forceRelease(ctx, job.ID, cutoff)
		if err != nil {
			log.Printf("Sweeper: failed to release job %s: %v", job.ID, err)
			continue
		}
		if released != nil {
			s.hub.BroadcastStatus(job.ID, released.Status)
			log.Printf("Sweeper: released stale job %s back to %s (attempt %d)", job.ID, released.Status, job.AttemptCount)
		}
	}
	return nil
}

// forceRelease clears the lock regardless of holder. Staleness is re-checked
// inside the atomic update in case the worker came back between the list and
// the write.
func (s *Sweeper) forceRelease(ctx context.Context, jobID string, cutoff time.Time) (*model.TrailerJob, error) {
	job, err := s.store.UpdateJob(ctx, jobID, func(job *model.TrailerJob) error {
		if !job.Locked() || job.UpdatedAt.After(cutoff) || job.Status.IsTerminal() {
			return errSweepSkip
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
	if err == errSweepSkip {
		return nil, nil
	}
	return job, err
}

var errSweepSkip = sweepSkipError{}

type sweepSkipError struct{}

func (sweepSkipError) Error() string { return "job no longer stale" }
