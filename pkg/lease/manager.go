package lease

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
else
	return 0
end`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
else
	return 0
end`)

// Key returns the redis key guarding the given task.
func Key(taskID int64) string {
	return "lease:task:" + strconv.FormatInt(taskID, 10)
}

// Manager hands out per-task leases held by a single holder id.
type Manager struct {
	rdb    *redis.Client
	holder string
	ttl    time.Duration
}

func NewManager(rdb *redis.Client, holder string, ttl time.Duration) *Manager {
	return &Manager{
		rdb:    rdb,
		holder: holder,
		ttl:    ttl,
	}
}

// Holder returns the id written into every lease this manager takes.
func (m *Manager) Holder() string {
	return m.holder
}

// Acquire 尝试设置租约（仅当不存在时成功），返回是否成功
func (m *Manager) Acquire(ctx context.Context, taskID int64) (bool, error) {
	return m.rdb.SetNX(ctx, Key(taskID), m.holder, m.ttl).Result()
}

// Renew 仅当持有者匹配时续租
func (m *Manager) Renew(ctx context.Context, taskID int64) (bool, error) {
	n, err := renewScript.Run(ctx, m.rdb, []string{Key(taskID)}, m.holder, m.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release 仅当持有者匹配时释放租约
func (m *Manager) Release(ctx context.Context, taskID int64) (bool, error) {
	n, err := releaseScript.Run(ctx, m.rdb, []string{Key(taskID)}, m.holder).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
