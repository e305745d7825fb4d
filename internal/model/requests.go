package model

import (
	"encoding/json"
	"time"
)

// User-facing requests

// CreateJobRequest creates a job from an already-uploaded source video.
type CreateJobRequest struct {
	SourceVideoKey    string  `json:"sourceVideoKey" validate:"required"`
	SelectedProfileID *string `json:"selectedProfileId,omitempty"`
}

// UploadURLRequest asks for a presigned PUT URL for a source video.
type UploadURLRequest struct {
	FileName    string `json:"fileName" validate:"required"`
	ContentType string `json:"contentType" validate:"required"`
}

type UploadURLResponse struct {
	Key       string `json:"key"`
	UploadURL string `json:"uploadUrl"`
}

// SelectProfileRequest replaces the job's creative profile. Rejected once
// rendering has started.
type SelectProfileRequest struct {
	ProfileID string `json:"profileId" validate:"required"`
}

// JobView is a job plus derived display fields for list/get responses.
type JobView struct {
	*TrailerJob
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	ClipCount    int    `json:"clipCount"`
}

// Worker-facing requests

type ClaimRequest struct {
	WorkerID string `json:"workerId" validate:"required"`
}

// ClaimResult is the structured outcome of a claim attempt. Refusals are
// results, not errors, so polling workers can loop without exception handling.
type ClaimResult struct {
	Claimed        bool        `json:"claimed"`
	Reason         string      `json:"reason,omitempty"`
	PreviousStatus JobStatus   `json:"previousStatus,omitempty"`
	Job            *TrailerJob `json:"job,omitempty"`
}

type ReleaseRequest struct {
	WorkerID string `json:"workerId" validate:"required"`
}

type ReleaseResult struct {
	Released bool   `json:"released"`
	Reason   string `json:"reason,omitempty"`
}

type UpdateStatusRequest struct {
	Status      string `json:"status" validate:"required"`
	Progress    *int   `json:"progress,omitempty" validate:"omitempty,min=0,max=100"`
	CurrentStep string `json:"currentStep,omitempty"`
}

type UpsertPlanRequest struct {
	Data json.RawMessage `json:"data" validate:"required"`
}

type CreateClipRequest struct {
	OutputKey       string  `json:"outputKey" validate:"required"`
	DurationSeconds float64 `json:"durationSeconds" validate:"omitempty,min=0"`
	Width           int     `json:"width" validate:"omitempty,min=0"`
	Height          int     `json:"height" validate:"omitempty,min=0"`
}

type FailRequest struct {
	Error      string `json:"error" validate:"required"`
	ErrorStage string `json:"errorStage,omitempty"`
}

// JobDetails is the read-only aggregate a worker fetches to bootstrap context.
type JobDetails struct {
	Job   *TrailerJob              `json:"job"`
	Plans map[PlanKind]*PlanRecord `json:"plans"`
	Clips []*TrailerClip           `json:"clips"`
}

// CapacityView surfaces the advisory global render cap so workers can consult
// it before claiming. It is a soft guideline, not a reservation.
type CapacityView struct {
	ActiveRenders   int  `json:"activeRenders"`
	GlobalRenderCap int  `json:"globalRenderCap"`
	AtCapacity      bool `json:"atCapacity"`
}

// ClaimableJob is one entry of the worker polling list.
type ClaimableJob struct {
	JobID     string    `json:"jobId"`
	UserID    string    `json:"userId"`
	Status    JobStatus `json:"status"`
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updatedAt"`
}
