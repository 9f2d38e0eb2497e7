package ledgerclient

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exceva/property-ledger/internal/shared"
)

func TestLatchRefusesSecondHolder(t *testing.T) {
	l := NewLatch()
	release, err := l.Acquire(TenantKey(3))
	require.NoError(t, err)
	require.True(t, l.Held("tenant:3"))

	_, err = l.Acquire(TenantKey(3))
	var serr *shared.StateError
	require.ErrorAs(t, err, &serr)
	require.Contains(t, serr.Reason, "tenant:3")

	_, err = l.Acquire(InvoiceKey(3))
	require.NoError(t, err)

	release()
	release()
	require.False(t, l.Held(TenantKey(3)))
}

func TestLatchDoReleasesOnError(t *testing.T) {
	l := NewLatch()
	err := l.Do(InvoiceKey(1), func() error {
		require.True(t, l.Held(InvoiceKey(1)))
		return shared.ErrNotFound
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.False(t, l.Held(InvoiceKey(1)))
}
