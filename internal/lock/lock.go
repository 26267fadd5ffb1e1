package lock

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "dms:lock:"

// staleFactor is the age multiplier over the chosen TTL after which a
// surviving lock record is treated as orphaned by a crashed worker.
const staleFactor = 1.5

// releaseScript deletes the lock and its metadata only when the lock
// still carries our token, so a slow process never deletes a lock a
// faster one has since acquired.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	redis.call("del", KEYS[2])
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Manager provides mutual exclusion across worker processes for the
// duration of one ingestion run.
type Manager struct {
	client   redis.UniversalClient
	log      *zap.Logger
	hostname string
}

func NewManager(client redis.UniversalClient, log *zap.Logger) *Manager {
	hostname, _ := os.Hostname()
	return &Manager{client: client, log: log, hostname: hostname}
}

// Lease is the owned side of an acquired lock. A nil-token lease means
// acquisition failed open because the backend was unreachable; Release
// is then a no-op.
type Lease struct {
	manager *Manager
	lockKey string
	metaKey string
	token   string
}

// Acquire attempts a single atomic set-if-not-exists with expiry.
// Returns (lease, true) on success, (nil, false) when another process
// holds the lock. If the backend is unreachable the caller still gets
// (lease, true) with a warning logged: availability wins over strict
// exclusion here.
func (m *Manager) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, bool) {
	lockKey := keyPrefix + name
	metaKey := lockKey + ":meta"
	token := uuid.NewString()

	m.clearStale(ctx, name, lockKey, metaKey, ttl)

	acquired, err := m.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		m.log.Warn("Lock backend unreachable, proceeding unlocked",
			zap.String("lock", name),
			zap.Error(err),
		)
		return &Lease{}, true
	}
	if !acquired {
		m.log.Info("Lock held elsewhere", zap.String("lock", name))
		return nil, false
	}

	if err := m.client.HSet(ctx, metaKey, map[string]interface{}{
		"start_time": strconv.FormatInt(time.Now().Unix(), 10),
		"hostname":   m.hostname,
		"token":      token,
		"ttl":        strconv.Itoa(int(ttl.Seconds())),
	}).Err(); err != nil {
		m.log.Warn("Failed to record lock metadata", zap.String("lock", name), zap.Error(err))
	} else {
		m.client.Expire(ctx, metaKey, ttl+time.Minute)
	}

	m.log.Info("Lock acquired", zap.String("lock", name), zap.Duration("ttl", ttl))
	return &Lease{manager: m, lockKey: lockKey, metaKey: metaKey, token: token}, true
}

// clearStale removes a lock record whose age exceeds 1.5x its TTL.
// Failures here are non-fatal; acquisition decides what happens next.
func (m *Manager) clearStale(ctx context.Context, name, lockKey, metaKey string, ttl time.Duration) {
	meta, err := m.client.HGetAll(ctx, metaKey).Result()
	if err != nil || len(meta) == 0 {
		if err != nil {
			m.log.Warn("Stale-lock check failed", zap.String("lock", name), zap.Error(err))
		}
		return
	}

	startUnix, err := strconv.ParseInt(meta["start_time"], 10, 64)
	if err != nil {
		return
	}

	age := time.Since(time.Unix(startUnix, 0))
	maxAge := time.Duration(float64(ttl) * staleFactor)
	if age <= maxAge {
		return
	}

	m.log.Warn("Stale lock detected, auto-clearing",
		zap.String("lock", name),
		zap.Duration("age", age),
		zap.Duration("max_age", maxAge),
		zap.String("holder", meta["hostname"]),
	)
	if err := m.client.Del(ctx, lockKey, metaKey).Err(); err != nil {
		m.log.Warn("Failed to clear stale lock", zap.String("lock", name), zap.Error(err))
	}
}

// Release gives the lock back if we still own it.
func (l *Lease) Release(ctx context.Context) {
	if l == nil || l.token == "" {
		return
	}
	deleted, err := releaseScript.Run(ctx, l.manager.client, []string{l.lockKey, l.metaKey}, l.token).Int()
	if err != nil {
		l.manager.log.Warn("Failed to release lock", zap.String("lock", l.lockKey), zap.Error(err))
		return
	}
	if deleted == 0 {
		l.manager.log.Warn("Lock no longer owned at release", zap.String("lock", l.lockKey))
		return
	}
	l.manager.log.Info("Lock released", zap.String("lock", l.lockKey))
}

// String describes the lease for diagnostics.
func (l *Lease) String() string {
	if l == nil {
		return "lease(none)"
	}
	if l.token == "" {
		return "lease(fail-open)"
	}
	return fmt.Sprintf("lease(%s)", l.lockKey)
}
