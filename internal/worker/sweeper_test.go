package worker

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/trailerforge/api/internal/model"
	"github.com/trailerforge/api/internal/service"
	"github.com/trailerforge/api/internal/store"
	"github.com/trailerforge/api/internal/websocket"
)

func seedLockedJob(t *testing.T, st store.Store, id string, status model.JobStatus, workerID string, attempts int) {
	t.Helper()
	ctx := context.Background()
	job := &model.TrailerJob{
		ID:             id,
		UserID:         "user-1",
		SourceVideoKey: "sources/user-1/" + id + ".mp4",
		Status:         status,
	}
	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatalf("failed to seed job: %v", err)
	}
	if _, err := st.UpdateJob(ctx, id, func(j *model.TrailerJob) error {
		if workerID != "" {
			w := workerID
			j.ProcessingLockID = &w
		}
		j.AttemptCount = attempts
		return nil
	}); err != nil {
		t.Fatalf("failed to lock job: %v", err)
	}
}

func sweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSweepStale, nil)
}

// The store refreshes UpdatedAt on every write, so tests steer staleness
// through the threshold instead: a negative threshold puts the cutoff in the
// future and makes every locked job stale, a large one makes none stale.

func TestSweeperIgnoresFreshLocks(t *testing.T) {
	st := store.NewMemoryStore()
	pipeline := service.NewPipelineService(st)
	sweeper := NewSweeper(st, pipeline, websocket.NewHub(), time.Hour, 3)

	seedLockedJob(t, st, "job-1", model.StatusRendering, "worker-a", 1)

	if err := sweeper.ProcessTask(context.Background(), sweepTask()); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	job, _ := st.GetJob(context.Background(), "job-1")
	if !job.LockedBy("worker-a") || job.Status != model.StatusRendering {
		t.Errorf("fresh lock disturbed: %+v", job)
	}
}

func TestSweeperIgnoresUnlockedJobs(t *testing.T) {
	st := store.NewMemoryStore()
	pipeline := service.NewPipelineService(st)
	sweeper := NewSweeper(st, pipeline, websocket.NewHub(), -time.Second, 3)

	seedLockedJob(t, st, "job-1", model.StatusPlanReady, "", 1)

	if err := sweeper.ProcessTask(context.Background(), sweepTask()); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	job, _ := st.GetJob(context.Background(), "job-1")
	if job.Status != model.StatusPlanReady {
		t.Errorf("unlocked job swept: %+v", job)
	}
}

func TestSweeperReleasesStaleLock(t *testing.T) {
	st := store.NewMemoryStore()
	pipeline := service.NewPipelineService(st)
	sweeper := NewSweeper(st, pipeline, websocket.NewHub(), -time.Second, 3)

	seedLockedJob(t, st, "job-1", model.StatusTranscribing, "worker-a", 1)

	if err := sweeper.ProcessTask(context.Background(), sweepTask()); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	job, _ := st.GetJob(context.Background(), "job-1")
	if job.Locked() {
		t.Error("stale lock not released")
	}
	if job.Status != model.StatusUploaded {
		t.Errorf("status = %s, want uploaded", job.Status)
	}
	// Release, not a failed claim: the attempt count stays.
	if job.AttemptCount != 1 {
		t.Errorf("attemptCount = %d, want 1", job.AttemptCount)
	}
}

func TestSweeperReleasesToAnalysisReadyWithSceneMap(t *testing.T) {
	st := store.NewMemoryStore()
	pipeline := service.NewPipelineService(st)
	sweeper := NewSweeper(st, pipeline, websocket.NewHub(), -time.Second, 3)
	ctx := context.Background()

	seedLockedJob(t, st, "job-1", model.StatusPlanning, "worker-a", 1)
	sceneMap := "scene-map-1"
	if _, err := st.UpdateJob(ctx, "job-1", func(j *model.TrailerJob) error {
		j.SceneMapID = &sceneMap
		return nil
	}); err != nil {
		t.Fatalf("failed to link scene map: %v", err)
	}

	if err := sweeper.ProcessTask(ctx, sweepTask()); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	job, _ := st.GetJob(ctx, "job-1")
	if job.Status != model.StatusAnalysisReady {
		t.Errorf("status = %s, want analysis_ready", job.Status)
	}
}

func TestSweeperFailsAfterMaxAttempts(t *testing.T) {
	st := store.NewMemoryStore()
	pipeline := service.NewPipelineService(st)
	sweeper := NewSweeper(st, pipeline, websocket.NewHub(), -time.Second, 3)

	seedLockedJob(t, st, "job-1", model.StatusRendering, "worker-a", 3)

	if err := sweeper.ProcessTask(context.Background(), sweepTask()); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	job, _ := st.GetJob(context.Background(), "job-1")
	if job.Status != model.StatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if job.Locked() {
		t.Error("lock survived watchdog failure")
	}
	if job.Error == nil {
		t.Error("no error recorded")
	}
	if job.ErrorStage == nil || *job.ErrorStage != "watchdog" {
		t.Errorf("errorStage = %v", job.ErrorStage)
	}
}
