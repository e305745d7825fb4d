package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/trailerforge/api/internal/model"
)

var (
	// ErrNotFound is returned when a job or artifact does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an atomic update loses the optimistic
	// race too many times in a row.
	ErrConflict = errors.New("concurrent modification")
)

// Store is the durable record store for jobs and their stage artifacts.
// Every mutating method is atomic with respect to other mutations on the
// same job: the mutate callback sees the current record and either the whole
// write applies or none of it does. UpdatedAt is touched on every job write.
type Store interface {
	CreateJob(ctx context.Context, job *model.TrailerJob) error
	GetJob(ctx context.Context, id string) (*model.TrailerJob, error)

	// UpdateJob applies mutate to the job under an atomic read-modify-write.
	// An error from mutate aborts the write and is returned unchanged.
	UpdateJob(ctx context.Context, id string, mutate func(*model.TrailerJob) error) (*model.TrailerJob, error)

	ListJobsByUser(ctx context.Context, userID string) ([]*model.TrailerJob, error)
	ListJobsByStatus(ctx context.Context, statuses ...model.JobStatus) ([]*model.TrailerJob, error)
	CountJobsByStatus(ctx context.Context, statuses ...model.JobStatus) (int, error)
	CountUserJobsByStatus(ctx context.Context, userID string, statuses ...model.JobStatus) (int, error)

	// UpsertPlan inserts or patches the singleton plan record for (job, kind)
	// and applies mutate to the job in the same transaction. A patch bumps the
	// record's revision and leaves its ID stable.
	UpsertPlan(ctx context.Context, jobID string, kind model.PlanKind, data json.RawMessage, mutate func(*model.TrailerJob, *model.PlanRecord) error) (*model.PlanRecord, error)
	GetPlan(ctx context.Context, jobID string, kind model.PlanKind) (*model.PlanRecord, error)

	// AppendClip adds a clip record and applies mutate to the job in the same
	// transaction. The clip's PlanRevision is stamped from the current revision
	// of the revisionOf plan (0 if absent), read inside that transaction.
	// Clips accumulate; nothing is replaced.
	AppendClip(ctx context.Context, clip *model.TrailerClip, revisionOf model.PlanKind, mutate func(*model.TrailerJob) error) error
	ListClips(ctx context.Context, jobID string) ([]*model.TrailerClip, error)

	// ResetPlans deletes the given plan records (and, optionally, all clips)
	// and applies mutate to the job in the same transaction. Used by plan
	// regeneration.
	ResetPlans(ctx context.Context, jobID string, kinds []model.PlanKind, clearClips bool, mutate func(*model.TrailerJob) error) (*model.TrailerJob, error)
}
