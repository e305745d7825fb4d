package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/trailerforge/api/internal/model"
)

// updateRetries bounds the optimistic Watch loop before giving up with
// ErrConflict.
const updateRetries = 5

// RedisStore persists jobs and plan records as JSON values with SET-based
// secondary indexes by user and by status. All read-modify-write paths run
// under an optimistic WATCH transaction on the job key, so a claim (or any
// other job mutation) either fully applies or is retried.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func jobKey(id string) string                 { return "job:" + id }
func userJobsKey(userID string) string        { return "jobs:user:" + userID }
func statusKey(status model.JobStatus) string { return "jobs:status:" + string(status) }
func clipsKey(jobID string) string            { return "clips:" + jobID }

func planKey(jobID string, kind model.PlanKind) string {
	return fmt.Sprintf("plan:%s:%s", jobID, kind)
}

func (s *RedisStore) CreateJob(ctx context.Context, job *model.TrailerJob) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(job.ID), payload, 0)
		pipe.SAdd(ctx, userJobsKey(job.UserID), job.ID)
		pipe.SAdd(ctx, statusKey(job.Status), job.ID)
		return nil
	})
	return err
}

func (s *RedisStore) GetJob(ctx context.Context, id string) (*model.TrailerJob, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var job model.TrailerJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *RedisStore) UpdateJob(ctx context.Context, id string, mutate func(*model.TrailerJob) error) (*model.TrailerJob, error) {
	var updated *model.TrailerJob

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, jobKey(id)).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var job model.TrailerJob
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}

		prev := job.Status
		if err := mutate(&job); err != nil {
			return err
		}
		job.UpdatedAt = time.Now().UTC()

		payload, err := json.Marshal(&job)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, jobKey(id), payload, 0)
			if job.Status != prev {
				pipe.SRem(ctx, statusKey(prev), id)
				pipe.SAdd(ctx, statusKey(job.Status), id)
			}
			return nil
		})
		if err == nil {
			updated = &job
		}
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := s.client.Watch(ctx, txn, jobKey(id))
		if err == redis.TxFailedErr {
			continue // lost the optimistic race, retry
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, ErrConflict
}

func (s *RedisStore) ListJobsByUser(ctx context.Context, userID string) ([]*model.TrailerJob, error) {
	ids, err := s.client.SMembers(ctx, userJobsKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	return s.fetchJobs(ctx, ids)
}

func (s *RedisStore) ListJobsByStatus(ctx context.Context, statuses ...model.JobStatus) ([]*model.TrailerJob, error) {
	var ids []string
	for _, status := range statuses {
		members, err := s.client.SMembers(ctx, statusKey(status)).Result()
		if err != nil {
			return nil, err
		}
		ids = append(ids, members...)
	}
	return s.fetchJobs(ctx, ids)
}

func (s *RedisStore) CountJobsByStatus(ctx context.Context, statuses ...model.JobStatus) (int, error) {
	total := 0
	for _, status := range statuses {
		n, err := s.client.SCard(ctx, statusKey(status)).Result()
		if err != nil {
			return 0, err
		}
		total += int(n)
	}
	return total, nil
}

func (s *RedisStore) CountUserJobsByStatus(ctx context.Context, userID string, statuses ...model.JobStatus) (int, error) {
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

func (s *RedisStore) fetchJobs(ctx context.Context, ids []string) ([]*model.TrailerJob, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*model.TrailerJob, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // index member without a record, skip
		}
		var job model.TrailerJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

func (s *RedisStore) UpsertPlan(ctx context.Context, jobID string, kind model.PlanKind, data json.RawMessage, mutate func(*model.TrailerJob, *model.PlanRecord) error) (*model.PlanRecord, error) {
	var rec *model.PlanRecord

	txn := func(tx *redis.Tx) error {
		jobData, err := tx.Get(ctx, jobKey(jobID)).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var job model.TrailerJob
		if err := json.Unmarshal(jobData, &job); err != nil {
			return err
		}

		now := time.Now().UTC()
		rec = nil
		planData, err := tx.Get(ctx, planKey(jobID, kind)).Bytes()
		switch {
		case err == redis.Nil:
			rec = &model.PlanRecord{
				ID:        uuid.New().String(),
				JobID:     jobID,
				Kind:      kind,
				Revision:  1,
				Data:      data,
				CreatedAt: now,
				UpdatedAt: now,
			}
		case err != nil:
			return err
		default:
			rec = &model.PlanRecord{}
			if err := json.Unmarshal(planData, rec); err != nil {
				return err
			}
			rec.Data = data
			rec.Revision++
			rec.UpdatedAt = now
		}

		prev := job.Status
		if err := mutate(&job, rec); err != nil {
			return err
		}
		job.UpdatedAt = now

		jobPayload, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		planPayload, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, planKey(jobID, kind), planPayload, 0)
			pipe.Set(ctx, jobKey(jobID), jobPayload, 0)
			if job.Status != prev {
				pipe.SRem(ctx, statusKey(prev), jobID)
				pipe.SAdd(ctx, statusKey(job.Status), jobID)
			}
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := s.client.Watch(ctx, txn, jobKey(jobID), planKey(jobID, kind))
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, ErrConflict
}

func (s *RedisStore) GetPlan(ctx context.Context, jobID string, kind model.PlanKind) (*model.PlanRecord, error) {
	data, err := s.client.Get(ctx, planKey(jobID, kind)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec model.PlanRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisStore) AppendClip(ctx context.Context, clip *model.TrailerClip, revisionOf model.PlanKind, mutate func(*model.TrailerJob) error) error {
	txn := func(tx *redis.Tx) error {
		jobData, err := tx.Get(ctx, jobKey(clip.JobID)).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var job model.TrailerJob
		if err := json.Unmarshal(jobData, &job); err != nil {
			return err
		}

		// Revision tag comes from the watched plan key, so a concurrent plan
		// upsert retries this transaction instead of leaving a stale tag.
		clip.PlanRevision = 0
		planData, err := tx.Get(ctx, planKey(clip.JobID, revisionOf)).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var rec model.PlanRecord
			if err := json.Unmarshal(planData, &rec); err != nil {
				return err
			}
			clip.PlanRevision = rec.Revision
		}

		prev := job.Status
		if err := mutate(&job); err != nil {
			return err
		}
		job.UpdatedAt = time.Now().UTC()

		jobPayload, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		clipPayload, err := json.Marshal(clip)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, clipsKey(clip.JobID), clipPayload)
			pipe.Set(ctx, jobKey(clip.JobID), jobPayload, 0)
			if job.Status != prev {
				pipe.SRem(ctx, statusKey(prev), clip.JobID)
				pipe.SAdd(ctx, statusKey(job.Status), clip.JobID)
			}
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := s.client.Watch(ctx, txn, jobKey(clip.JobID), planKey(clip.JobID, revisionOf))
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return ErrConflict
}

func (s *RedisStore) ListClips(ctx context.Context, jobID string) ([]*model.TrailerClip, error) {
	values, err := s.client.LRange(ctx, clipsKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	clips := make([]*model.TrailerClip, 0, len(values))
	for _, raw := range values {
		var clip model.TrailerClip
		if err := json.Unmarshal([]byte(raw), &clip); err != nil {
			return nil, err
		}
		clips = append(clips, &clip)
	}
	return clips, nil
}

func (s *RedisStore) ResetPlans(ctx context.Context, jobID string, kinds []model.PlanKind, clearClips bool, mutate func(*model.TrailerJob) error) (*model.TrailerJob, error) {
	var updated *model.TrailerJob

	txn := func(tx *redis.Tx) error {
		jobData, err := tx.Get(ctx, jobKey(jobID)).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var job model.TrailerJob
		if err := json.Unmarshal(jobData, &job); err != nil {
			return err
		}

		prev := job.Status
		if err := mutate(&job); err != nil {
			return err
		}
		job.UpdatedAt = time.Now().UTC()

		jobPayload, err := json.Marshal(&job)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, kind := range kinds {
				pipe.Del(ctx, planKey(jobID, kind))
			}
			if clearClips {
				pipe.Del(ctx, clipsKey(jobID))
			}
			pipe.Set(ctx, jobKey(jobID), jobPayload, 0)
			if job.Status != prev {
				pipe.SRem(ctx, statusKey(prev), jobID)
				pipe.SAdd(ctx, statusKey(job.Status), jobID)
			}
			return nil
		})
		if err == nil {
			updated = &job
		}
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := s.client.Watch(ctx, txn, jobKey(jobID))
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, ErrConflict
}
