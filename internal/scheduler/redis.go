package scheduler

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/intergov/notary/internal/log"
)

// DefaultLease is how long a claimed task stays hidden from other consumers
const DefaultLease = 5 * time.Minute

// claimScript leases the due members by moving their score to the lease expiry.
// KEYS[1] schedule, ARGV[1] now, ARGV[2] limit, ARGV[3] lease expiry.
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(due) do
	redis.call('ZADD', KEYS[1], 'XX', ARGV[3], id)
end
return due
`)

// RedisScheduler keeps delayed tasks in a sorted set scored by due time in milliseconds.
// Claiming a task leases it: the task stays in the set with its score moved past the lease, so a
// consumer that dies before rescheduling or cancelling it only delays the task.
type RedisScheduler struct {
	rdb   *redis.Client
	key   string
	lease time.Duration
	now   func() time.Time
}

// NewRedisScheduler returns a scheduler storing tasks under key. A zero lease uses DefaultLease.
func NewRedisScheduler(rdb *redis.Client, key string, lease time.Duration) *RedisScheduler {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &RedisScheduler{rdb: rdb, key: key, lease: lease, now: time.Now}
}

// ScheduleRetry makes taskID due after delay. Scheduling an already scheduled or claimed task moves its due time.
func (s *RedisScheduler) ScheduleRetry(ctx context.Context, taskID string, delay time.Duration) error {
	due := s.now().Add(delay)
	err := s.rdb.ZAdd(ctx, s.key, &redis.Z{Score: float64(due.UnixMilli()), Member: taskID}).Err()
	if err != nil {
		return errors.Wrapf(err, "scheduling %s", taskID)
	}
	log.Debug(ctx, "task scheduled", "task", taskID, "due", due)
	return nil
}

// ClaimDue leases and returns up to limit tasks due at now. The claim is atomic, two consumers
// never receive the same task within one lease.
func (s *RedisScheduler) ClaimDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := claimScript.Run(ctx, s.rdb, []string{s.key},
		now.UnixMilli(), limit, now.Add(s.lease).UnixMilli()).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ids, nil
}

// Cancel drops a scheduled or claimed task
func (s *RedisScheduler) Cancel(ctx context.Context, taskID string) error {
	return errors.WithStack(s.rdb.ZRem(ctx, s.key, taskID).Err())
}

// Pending returns the number of scheduled and claimed tasks
func (s *RedisScheduler) Pending(ctx context.Context) (int64, error) {
	n, err := s.rdb.ZCard(ctx, s.key).Result()
	return n, errors.WithStack(err)
}
