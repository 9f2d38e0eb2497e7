package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another request holds the in-flight lock.
var ErrLockHeld = errors.New("in-flight lock held")

// TenantLockKey builds redis keys guarding payment allocation per tenant.
func TenantLockKey(tenantID int64) string {
	return fmt.Sprintf("ledger:tenant:%d:lock", tenantID)
}

// InvoiceLockKey builds redis keys guarding adjustment commits per invoice.
func InvoiceLockKey(invoiceID int64) string {
	return fmt.Sprintf("ledger:invoice:%d:lock", invoiceID)
}

// LeaseLockKey builds redis keys guarding renewal creation per lease.
func LeaseLockKey(leaseID int64) string {
	return fmt.Sprintf("ledger:lease:%d:lock", leaseID)
}

const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// LockManager hands out short-lived redis locks for critical sections.
type LockManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLockManager constructs the manager. A nil client disables locking.
func NewLockManager(client *redis.Client, ttl time.Duration) *LockManager {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LockManager{client: client, ttl: ttl}
}

// WithLock runs fn while holding key. It fails fast with ErrLockHeld rather
// than waiting.
func (m *LockManager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if m == nil || m.client == nil {
		return fn(ctx)
	}
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, key, token, m.ttl).Result()
	if err != nil {
		return fmt.Errorf("shared: acquire lock %s: %w", key, err)
	}
	if !ok {
		return ErrLockHeld
	}
	defer func() {
		// release with a fresh context so a cancelled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err()
	}()
	return fn(ctx)
}

// Locker is satisfied by LockManager and by test fakes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// RunLocked runs fn under locker, or directly when locker is nil.
func RunLocked(ctx context.Context, locker Locker, key string, fn func(context.Context) error) error {
	if locker == nil {
		return fn(ctx)
	}
	return locker.WithLock(ctx, key, fn)
}
