package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/trailerforge/api/internal/client"
	"github.com/trailerforge/api/internal/model"
	"github.com/trailerforge/api/internal/store"
)

// JobService handles the user-facing job lifecycle: creation, upload
// promotion, profile selection, plan regeneration and listing. Ownership is
// enforced on every per-job operation.
type JobService struct {
	store   store.Store
	storage client.StorageClient
}

// NewJobService creates a job service. storage may be nil; URL-producing
// operations then fall back to mock URLs (local/dev mode).
func NewJobService(st store.Store, storage client.StorageClient) *JobService {
	return &JobService{store: st, storage: storage}
}

// CreateJob registers a new trailer job for an uploaded (or about to be
// uploaded) source video. The job starts in created and is not claimable
// until the user promotes it with MarkUploaded.
func (s *JobService) CreateJob(ctx context.Context, userID string, req *model.CreateJobRequest) (*model.TrailerJob, error) {
	job := &model.TrailerJob{
		ID:                uuid.New().String(),
		UserID:            userID,
		SourceVideoKey:    req.SourceVideoKey,
		Status:            model.StatusCreated,
		SelectedProfileID: req.SelectedProfileID,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	return job, nil
}

// IssueUploadURL presigns a PUT for a new source video object.
func (s *JobService) IssueUploadURL(ctx context.Context, userID string, req *model.UploadURLRequest) (*model.UploadURLResponse, error) {
	key := fmt.Sprintf("sources/%s/%s%s", userID, uuid.New().String(), path.Ext(req.FileName))

	if s.storage == nil {
		// Mock URL for local development without object storage.
		return &model.UploadURLResponse{
			Key:       key,
			UploadURL: "https://storage.local/" + key,
		}, nil
	}

	url, err := s.storage.GetSignedPutURL(ctx, key, req.ContentType, 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}
	return &model.UploadURLResponse{Key: key, UploadURL: url}, nil
}

// MarkUploaded promotes a job to the uploaded status, the analysis claim
// entry point. No-op if the job is already uploaded.
func (s *JobService) MarkUploaded(ctx context.Context, userID, jobID string) (*model.TrailerJob, error) {
	return s.updateOwned(ctx, userID, jobID, func(job *model.TrailerJob) error {
		switch job.Status {
		case model.StatusUploaded:
			return nil
		case model.StatusCreated, model.StatusUploading:
			job.Status = model.StatusUploaded
			return nil
		}
		return fmt.Errorf("%w: cannot mark uploaded from %s", ErrInvalidTransition, job.Status)
	})
}

// SelectProfile replaces the job's creative profile. Blocked once rendering
// has started and on terminal jobs.
func (s *JobService) SelectProfile(ctx context.Context, userID, jobID, profileID string) (*model.TrailerJob, error) {
	return s.updateOwned(ctx, userID, jobID, func(job *model.TrailerJob) error {
		if job.Status.RenderingStarted() || job.Status.IsTerminal() {
			return fmt.Errorf("%w: profile is locked once rendering begins", ErrInvalidTransition)
		}
		profile := profileID
		job.SelectedProfileID = &profile
		return nil
	})
}

// RegeneratePlan revives a job into analysis_ready without re-running
// analysis: downstream plans and clips are cleared, the scene map and film
// identity survive. Requires completed analysis and an unclaimed job. This is
// one of the two documented backward edges of the status graph.
func (s *JobService) RegeneratePlan(ctx context.Context, userID, jobID string) (*model.TrailerJob, error) {
	job, err := s.store.ResetPlans(ctx, jobID, model.DownstreamPlanKinds, true, func(job *model.TrailerJob) error {
		if job.UserID != userID {
			return ErrPermissionDenied
		}
		if job.SceneMapID == nil {
			return fmt.Errorf("%w: analysis has not completed", ErrInvalidTransition)
		}
		if job.Locked() {
			return fmt.Errorf("%w: job is being processed", ErrInvalidTransition)
		}

		job.Status = model.StatusAnalysisReady
		for _, kind := range model.DownstreamPlanKinds {
			job.SetPlanID(kind, nil)
		}
		job.ClipIDs = nil
		job.Error = nil
		job.ErrorStage = nil
		job.Progress = 0
		job.CurrentStep = ""
		job.CompletedAt = nil
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return job, err
}

// ListJobs returns the user's jobs, newest first, with derived display fields.
func (s *JobService) ListJobs(ctx context.Context, userID string) ([]*model.JobView, error) {
	jobs, err := s.store.ListJobsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]*model.JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, s.view(job))
	}
	return views, nil
}

// GetJob returns one job with derived display fields.
func (s *JobService) GetJob(ctx context.Context, userID, jobID string) (*model.JobView, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrPermissionDenied
	}
	return s.view(job), nil
}

func (s *JobService) view(job *model.TrailerJob) *model.JobView {
	view := &model.JobView{
		TrailerJob: job,
		ClipCount:  len(job.ClipIDs),
	}
	// The thumbnail is written by the analysis worker under a fixed key.
	if job.SceneMapID != nil {
		key := fmt.Sprintf("thumbnails/%s.jpg", job.ID)
		if s.storage != nil {
			view.ThumbnailURL = s.storage.GetPublicURL(key)
		} else {
			view.ThumbnailURL = "https://storage.local/" + key
		}
	}
	return view
}

func (s *JobService) updateOwned(ctx context.Context, userID, jobID string, mutate func(*model.TrailerJob) error) (*model.TrailerJob, error) {
	job, err := s.store.UpdateJob(ctx, jobID, func(job *model.TrailerJob) error {
		if job.UserID != userID {
			return ErrPermissionDenied
		}
		return mutate(job)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return job, err
}
