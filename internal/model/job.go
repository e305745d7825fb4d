package model

import (
	"encoding/json"
	"time"
)

// TrailerJob is the aggregate root of the trailer pipeline. Status is the
// single source of truth for pipeline position; Progress and CurrentStep are
// worker-supplied and advisory only.
type TrailerJob struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	SourceVideoKey string    `json:"sourceVideoKey"`
	Status         JobStatus `json:"status"`

	// ProcessingLockID is non-nil iff a worker currently owns the job.
	ProcessingLockID *string `json:"processingLockId,omitempty"`

	// AttemptCount increments on every successful claim and never decreases.
	AttemptCount int `json:"attemptCount"`

	// SelectedProfileID is mutable only before rendering begins.
	SelectedProfileID *string `json:"selectedProfileId,omitempty"`

	Progress    int    `json:"progress"`
	CurrentStep string `json:"currentStep,omitempty"`

	Error      *string `json:"error,omitempty"`
	ErrorStage *string `json:"errorStage,omitempty"`

	// Singleton artifact links, one per plan kind, set as stages complete.
	SceneMapID      *string `json:"sceneMapId,omitempty"`
	TimestampPlanID *string `json:"timestampPlanId,omitempty"`
	TextCardPlanID  *string `json:"textCardPlanId,omitempty"`
	AudioPlanID     *string `json:"audioPlanId,omitempty"`
	FilmIdentityID  *string `json:"filmIdentityId,omitempty"`
	NarrationPlanID *string `json:"narrationPlanId,omitempty"`
	EffectsPlanID   *string `json:"effectsPlanId,omitempty"`
	WorkflowPlanID  *string `json:"workflowPlanId,omitempty"`
	SelectionPlanID *string `json:"selectionPlanId,omitempty"`

	// ClipIDs is append-only; every successful render adds a clip.
	ClipIDs []string `json:"clipIds,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// planLink returns the job field holding the artifact link for kind.
func (j *TrailerJob) planLink(kind PlanKind) **string {
	switch kind {
	case PlanSceneMap:
		return &j.SceneMapID
	case PlanTimestamp:
		return &j.TimestampPlanID
	case PlanTextCard:
		return &j.TextCardPlanID
	case PlanAudio:
		return &j.AudioPlanID
	case PlanFilmIdentity:
		return &j.FilmIdentityID
	case PlanNarration:
		return &j.NarrationPlanID
	case PlanEffects:
		return &j.EffectsPlanID
	case PlanWorkflow:
		return &j.WorkflowPlanID
	case PlanSelection:
		return &j.SelectionPlanID
	}
	return nil
}

// PlanID returns the linked artifact ID for kind, if any.
func (j *TrailerJob) PlanID(kind PlanKind) *string {
	if link := j.planLink(kind); link != nil {
		return *link
	}
	return nil
}

// SetPlanID links (or unlinks, with nil) the artifact for kind.
func (j *TrailerJob) SetPlanID(kind PlanKind, id *string) {
	if link := j.planLink(kind); link != nil {
		*link = id
	}
}

// Locked reports whether a worker currently owns the job.
func (j *TrailerJob) Locked() bool {
	return j.ProcessingLockID != nil && *j.ProcessingLockID != ""
}

// LockedBy reports whether workerID currently owns the job.
func (j *TrailerJob) LockedBy(workerID string) bool {
	return j.ProcessingLockID != nil && *j.ProcessingLockID == workerID
}

// PlanRecord is a singleton pipeline artifact, upserted in place per (job, kind).
// Revision counts upserts so clips can record which plan revision produced them.
type PlanRecord struct {
	ID        string          `json:"id"`
	JobID     string          `json:"jobId"`
	Kind      PlanKind        `json:"kind"`
	Revision  int             `json:"revision"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// TrailerClip is one rendered output. Clips accumulate; they are never
// replaced in place.
type TrailerClip struct {
	ID              string    `json:"id"`
	JobID           string    `json:"jobId"`
	PlanRevision    int       `json:"planRevision"`
	OutputKey       string    `json:"outputKey"`
	DurationSeconds float64   `json:"durationSeconds"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	CreatedAt       time.Time `json:"createdAt"`
}
