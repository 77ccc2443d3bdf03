package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/autofund-ai/autofund/internal/workflow"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
)

// JobState 任务状态
type JobState string

const (
	JobQueued     JobState = "queued"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
	JobCanceled   JobState = "canceled"
)

// Job 已接收的上传
type Job struct {
	ID             string
	DocumentPath   string
	FileName       string
	CompanyContext string
	SubmittedAt    time.Time
}

// JobStatus 对外返回的任务状态
type JobStatus struct {
	JobID          string                   `json:"job_id"`
	State          JobState                 `json:"status"`
	Stage          string                   `json:"stage,omitempty"`
	Progress       float64                  `json:"progress"`
	CompletedSteps []string                 `json:"completed_steps,omitempty"`
	Error          string                   `json:"error,omitempty"`
	Result         *workflow.WorkflowOutput `json:"result,omitempty"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

// Done 任务是否已结束
func (s *JobStatus) Done() bool {
	return s.State == JobCompleted || s.State == JobFailed || s.State == JobCanceled
}

// JobService 任务提交与查询，未知任务返回 apperrors.ErrNotFound
type JobService interface {
	Submit(ctx context.Context, job Job) error
	Status(ctx context.Context, jobID string) (*JobStatus, error)
}

// JobStore 本地模式下的任务状态存储
type JobStore interface {
	Save(ctx context.Context, status *JobStatus) error
	Load(ctx context.Context, jobID string) (*JobStatus, error)
}

// MemoryStore 进程内存储
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]JobStatus
}

// NewMemoryStore 创建进程内存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]JobStatus)}
}

// Save 保存状态副本
func (m *MemoryStore) Save(_ context.Context, status *JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *status
	s.CompletedSteps = append([]string(nil), status.CompletedSteps...)
	m.jobs[status.JobID] = s
	return nil
}

// Load 读取状态
func (m *MemoryStore) Load(_ context.Context, jobID string) (*JobStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, apperrors.ErrNotFound)
	}
	s.CompletedSteps = append([]string(nil), s.CompletedSteps...)
	return &s, nil
}

// HashCache Redis 哈希操作，*cache.RedisCache 实现该接口
type HashCache interface {
	HSetWithTTL(ctx context.Context, key string, ttl time.Duration, values map[string]interface{}) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// RedisStore 以 Redis 哈希保存任务状态，多个 API 实例可共享
type RedisStore struct {
	cache HashCache
	ttl   time.Duration
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(cache HashCache, ttl time.Duration) *RedisStore {
	return &RedisStore{cache: cache, ttl: ttl}
}

func jobKey(jobID string) string {
	return "ies:job:" + jobID
}

// Save 写入状态
func (r *RedisStore) Save(ctx context.Context, status *JobStatus) error {
	values := map[string]interface{}{
		"status":          string(status.State),
		"stage":           status.Stage,
		"progress":        strconv.FormatFloat(status.Progress, 'f', -1, 64),
		"completed_steps": strings.Join(status.CompletedSteps, ","),
		"error":           status.Error,
		"updated_at":      status.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if status.Result != nil {
		data, err := json.Marshal(status.Result)
		if err != nil {
			return fmt.Errorf("encode job result: %w", err)
		}
		values["result"] = string(data)
	}
	return r.cache.HSetWithTTL(ctx, jobKey(status.JobID), r.ttl, values)
}

// Load 读取状态
func (r *RedisStore) Load(ctx context.Context, jobID string) (*JobStatus, error) {
	fields, err := r.cache.HGetAll(ctx, jobKey(jobID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCacheUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, apperrors.ErrNotFound)
	}

	status := &JobStatus{
		JobID: jobID,
		State: JobState(fields["status"]),
		Stage: fields["stage"],
		Error: fields["error"],
	}
	if p, err := strconv.ParseFloat(fields["progress"], 64); err == nil {
		status.Progress = p
	}
	if steps := fields["completed_steps"]; steps != "" {
		status.CompletedSteps = strings.Split(steps, ",")
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		status.UpdatedAt = t
	}
	if raw := fields["result"]; raw != "" {
		var out workflow.WorkflowOutput
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
		status.Result = &out
	}
	return status, nil
}
