package val

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DefaultJobChannel is the Redis channel job updates are published on.
const DefaultJobChannel = "stk:jobs"

// Publisher pushes runtime-job progress into Redis so long batch runs can
// be watched from elsewhere. Every update writes the job hash and notifies
// the job channel. A nil Publisher discards all updates, so callers can
// wire it unconditionally.
type Publisher struct {
	rdb     *redis.Client
	channel string
	// token identifies this publisher session in the job hash, so stale
	// hashes from a crashed run are distinguishable from live ones.
	token string
}

// NewPublisher connects to the Redis instance at addr ("host:port").
// An empty addr returns nil, which is valid and silent.
func NewPublisher(addr, channel string) *Publisher {
	if addr == "" {
		return nil
	}
	if channel == "" {
		channel = DefaultJobChannel
	}
	return &Publisher{
		rdb:     redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
		token:   uuid.New().String(),
	}
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.rdb.Close()
}

// key returns the Redis hash key of one job.
func (p *Publisher) key(job *RuntimeJob) string {
	return fmt.Sprintf("stk:job:%s:%d", job.Node, job.JobID)
}

// PublishState records a job state transition and notifies subscribers.
func (p *Publisher) PublishState(ctx context.Context, job *RuntimeJob, state JobState) error {
	if p == nil {
		return nil
	}
	job.State = state
	pipe := p.rdb.Pipeline()
	pipe.HSet(ctx, p.key(job), map[string]interface{}{
		"node":       job.Node,
		"job-id":     job.JobID,
		"state":      string(state),
		"errors":     job.Errors,
		"exceptions": job.Exceptions,
		"crashes":    job.Crashes,
		"token":      p.token,
		"updated-at": time.Now().UTC().Format(time.RFC3339),
	})
	pipe.Publish(ctx, p.channel, fmt.Sprintf("%s %s", p.key(job), state))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish job state: %w", err)
	}
	return nil
}

// Heartbeat updates the progress counters of a running job.
func (p *Publisher) Heartbeat(ctx context.Context, job *RuntimeJob, done, total int) error {
	if p == nil {
		return nil
	}
	pipe := p.rdb.Pipeline()
	pipe.HSet(ctx, p.key(job), map[string]interface{}{
		"done":       done,
		"total":      total,
		"token":      p.token,
		"updated-at": time.Now().UTC().Format(time.RFC3339),
	})
	pipe.Publish(ctx, p.channel, fmt.Sprintf("%s %d/%d", p.key(job), done, total))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish job heartbeat: %w", err)
	}
	return nil
}
