package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trailerforge/api/internal/model"
)

// MemoryStore is an in-process Store used when Redis is not configured and as
// the substrate for tests. A single mutex stands in for Redis transactions;
// records are deep-copied across the boundary so callers never alias store
// state.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]*model.TrailerJob
	plans map[string]map[model.PlanKind]*model.PlanRecord
	clips map[string][]*model.TrailerClip
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]*model.TrailerJob),
		plans: make(map[string]map[model.PlanKind]*model.PlanRecord),
		clips: make(map[string][]*model.TrailerClip),
	}
}

func cloneJob(j *model.TrailerJob) *model.TrailerJob {
	if j == nil {
		return nil
	}
	out := *j
	out.ProcessingLockID = cloneString(j.ProcessingLockID)
	out.SelectedProfileID = cloneString(j.SelectedProfileID)
	out.Error = cloneString(j.Error)
	out.ErrorStage = cloneString(j.ErrorStage)
	out.SceneMapID = cloneString(j.SceneMapID)
	out.TimestampPlanID = cloneString(j.TimestampPlanID)
	out.TextCardPlanID = cloneString(j.TextCardPlanID)
	out.AudioPlanID = cloneString(j.AudioPlanID)
	out.FilmIdentityID = cloneString(j.FilmIdentityID)
	out.NarrationPlanID = cloneString(j.NarrationPlanID)
	out.EffectsPlanID = cloneString(j.EffectsPlanID)
	out.WorkflowPlanID = cloneString(j.WorkflowPlanID)
	out.SelectionPlanID = cloneString(j.SelectionPlanID)
	out.ClipIDs = append([]string(nil), j.ClipIDs...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func clonePlan(p *model.PlanRecord) *model.PlanRecord {
	if p == nil {
		return nil
	}
	out := *p
	out.Data = append(json.RawMessage(nil), p.Data...)
	return &out
}

func cloneClip(c *model.TrailerClip) *model.TrailerClip {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

func (s *MemoryStore) CreateJob(ctx context.Context, job *model.TrailerJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*model.TrailerJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) UpdateJob(ctx context.Context, id string, mutate func(*model.TrailerJob) error) (*model.TrailerJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateJobLocked(id, mutate)
}

func (s *MemoryStore) updateJobLocked(id string, mutate func(*model.TrailerJob) error) (*model.TrailerJob, error) {
	current, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}

	job := cloneJob(current)
	if err := mutate(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = cloneJob(job)
	return job, nil
}

func (s *MemoryStore) ListJobsByUser(ctx context.Context, userID string) ([]*model.TrailerJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.TrailerJob
	for _, job := range s.jobs {
		if job.UserID == userID {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListJobsByStatus(ctx context.Context, statuses ...model.JobStatus) ([]*model.TrailerJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[model.JobStatus]struct{}, len(statuses))
	for _, st := range statuses {
		want[st] = struct{}{}
	}

	var out []*model.TrailerJob
	for _, job := range s.jobs {
		if _, ok := want[job.Status]; ok {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.Before(out[k].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) CountJobsByStatus(ctx context.Context, statuses ...model.JobStatus) (int, error) {
	jobs, err := s.ListJobsByStatus(ctx, statuses...)
	if err != nil {
		return 0, err
	}
	return len(jobs), nil
}

func (s *MemoryStore) CountUserJobsByStatus(ctx context.Context, userID string, statuses ...model.JobStatus) (int, error) {
	jobs, err := s.ListJobsByStatus(ctx, statuses...)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, job := range jobs {
		if job.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) UpsertPlan(ctx context.Context, jobID string, kind model.PlanKind, data json.RawMessage, mutate func(*model.TrailerJob, *model.PlanRecord) error) (*model.PlanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	var rec *model.PlanRecord
	if existing, ok := s.plans[jobID][kind]; ok {
		rec = clonePlan(existing)
		rec.Data = append(json.RawMessage(nil), data...)
		rec.Revision++
		rec.UpdatedAt = now
	} else {
		rec = &model.PlanRecord{
			ID:        uuid.New().String(),
			JobID:     jobID,
			Kind:      kind,
			Revision:  1,
			Data:      append(json.RawMessage(nil), data...),
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	if _, err := s.updateJobLocked(jobID, func(job *model.TrailerJob) error {
		return mutate(job, rec)
	}); err != nil {
		return nil, err
	}

	if s.plans[jobID] == nil {
		s.plans[jobID] = make(map[model.PlanKind]*model.PlanRecord)
	}
	s.plans[jobID][kind] = clonePlan(rec)
	return rec, nil
}

func (s *MemoryStore) GetPlan(ctx context.Context, jobID string, kind model.PlanKind) (*model.PlanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.plans[jobID][kind]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePlan(rec), nil
}

func (s *MemoryStore) AppendClip(ctx context.Context, clip *model.TrailerClip, revisionOf model.PlanKind, mutate func(*model.TrailerJob) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[clip.JobID]; !ok {
		return ErrNotFound
	}

	clip.PlanRevision = 0
	if plan, ok := s.plans[clip.JobID][revisionOf]; ok {
		clip.PlanRevision = plan.Revision
	}

	if _, err := s.updateJobLocked(clip.JobID, mutate); err != nil {
		return err
	}
	s.clips[clip.JobID] = append(s.clips[clip.JobID], cloneClip(clip))
	return nil
}

func (s *MemoryStore) ListClips(ctx context.Context, jobID string) ([]*model.TrailerClip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.TrailerClip, 0, len(s.clips[jobID]))
	for _, clip := range s.clips[jobID] {
		out = append(out, cloneClip(clip))
	}
	return out, nil
}

func (s *MemoryStore) ResetPlans(ctx context.Context, jobID string, kinds []model.PlanKind, clearClips bool, mutate func(*model.TrailerJob) error) (*model.TrailerJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.updateJobLocked(jobID, mutate)
	if err != nil {
		return nil, err
	}

	for _, kind := range kinds {
		delete(s.plans[jobID], kind)
	}
	if clearClips {
		delete(s.clips, jobID)
	}
	return job, nil
}
