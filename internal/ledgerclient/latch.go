package ledgerclient

import (
	"fmt"
	"sync"

	"github.com/exceva/property-ledger/internal/shared"
)

// InvoiceKey names the latch guarding adjustment commits on an invoice.
func InvoiceKey(invoiceID int64) string {
	return fmt.Sprintf("invoice:%d", invoiceID)
}

// TenantKey names the latch guarding payment allocation for a tenant.
func TenantKey(tenantID int64) string {
	return fmt.Sprintf("tenant:%d", tenantID)
}

// Latch keeps at most one mutating request per key in flight from this
// client. A second request for a held key is refused, not queued.
type Latch struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLatch constructs an empty latch.
func NewLatch() *Latch {
	return &Latch{held: map[string]struct{}{}}
}

// Acquire claims key and returns its release func.
func (l *Latch) Acquire(key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, &shared.StateError{Op: "submit", Reason: "a request for " + key + " is already in progress"}
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently claimed, so a console can disable
// the triggering control.
func (l *Latch) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.held[key]
	return busy
}

// Do runs fn while holding key.
func (l *Latch) Do(key string, fn func() error) error {
	release, err := l.Acquire(key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
