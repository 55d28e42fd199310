package tasks

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// StatusKey prefixes the per-replica status hash, keyed by instance id.
	StatusKey = "scheduler:status"
	// InstancesKey is the set of replica ids that published a status.
	InstancesKey = "scheduler:instances"
)

func statusKey(instance string) string {
	if instance == "" {
		instance = "default"
	}
	return StatusKey + ":" + instance
}

// Status is the observable state of the scheduler loop.
type Status struct {
	LastExecution   *time.Time `json:"last_execution,omitempty"`
	ExecutionCount  int64      `json:"execution_count"`
	InvocationCount int64      `json:"invocation_count"`
	Running         bool       `json:"running"`
	Instance        string     `json:"instance,omitempty"`
}

// NotRunning reports whether operators should be alerted that no scheduler
// has ticked within maxAge.
func (s Status) NotRunning(now time.Time, maxAge time.Duration) bool {
	if s.LastExecution == nil {
		return true
	}
	return now.Sub(*s.LastExecution) > maxAge
}

// RedisStatusSink stores the status in a redis hash readable by other processes.
type RedisStatusSink struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStatusSink(rdb *redis.Client, ttl time.Duration) *RedisStatusSink {
	return &RedisStatusSink{rdb: rdb, ttl: ttl}
}

// PublishStatus writes this replica's hash. Replicas never overwrite each other.
func (r *RedisStatusSink) PublishStatus(ctx context.Context, s Status) error {
	fields := map[string]interface{}{
		"execution_count":  s.ExecutionCount,
		"invocation_count": s.InvocationCount,
		"running":          strconv.FormatBool(s.Running),
		"instance":         s.Instance,
	}
	if s.LastExecution != nil {
		fields["last_execution"] = s.LastExecution.UnixMilli()
	}

	key := statusKey(s.Instance)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, InstancesKey, s.Instance)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
		pipe.Expire(ctx, InstancesKey, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// LoadStatus sums the counters of every live replica and reports the most
// recent loop iteration. Replicas whose hash expired are dropped from the set.
func LoadStatus(ctx context.Context, rdb *redis.Client) (Status, error) {
	instances, err := rdb.SMembers(ctx, InstancesKey).Result()
	if err != nil {
		return Status{}, err
	}
	if len(instances) == 0 {
		return Status{}, nil
	}

	pipe := rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(instances))
	for i, instance := range instances {
		cmds[i] = pipe.HGetAll(ctx, statusKey(instance))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Status{}, err
	}

	replicas := make([]Status, 0, len(instances))
	var gone []interface{}
	for i, cmd := range cmds {
		values := cmd.Val()
		if len(values) == 0 {
			gone = append(gone, instances[i])
			continue
		}
		replicas = append(replicas, parseStatus(values))
	}
	if len(gone) > 0 {
		_ = rdb.SRem(ctx, InstancesKey, gone...).Err()
	}
	return mergeStatus(replicas), nil
}

// mergeStatus combines replica statuses. Instance names the replica that
// ticked most recently.
func mergeStatus(replicas []Status) Status {
	var out Status
	for _, r := range replicas {
		out.ExecutionCount += r.ExecutionCount
		out.InvocationCount += r.InvocationCount
		out.Running = out.Running || r.Running
		if r.LastExecution != nil && (out.LastExecution == nil || r.LastExecution.After(*out.LastExecution)) {
			last := *r.LastExecution
			out.LastExecution = &last
			out.Instance = r.Instance
		}
	}
	return out
}

func parseStatus(values map[string]string) Status {
	var s Status
	if v, ok := values["last_execution"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			t := time.UnixMilli(ms)
			s.LastExecution = &t
		}
	}
	s.ExecutionCount, _ = strconv.ParseInt(values["execution_count"], 10, 64)
	s.InvocationCount, _ = strconv.ParseInt(values["invocation_count"], 10, 64)
	s.Running, _ = strconv.ParseBool(values["running"])
	s.Instance = values["instance"]
	return s
}
