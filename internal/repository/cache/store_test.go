package cache

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// expiresAt returns the unix expiry of key, zero when it never expires.
func (s *Store) expiresAt(key string) (uint64, error) {
	var expires uint64

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}

		expires = item.ExpiresAt()

		return nil
	})

	return expires, err
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// TestStoreGetPut verifies that stored values are returned unchanged.
func TestStoreGetPut(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "manifest/version-a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Put(ctx, "manifest/version-a", []byte("v0\nRobloxApp.zip\n"), 0))

	value, ok, err := store.Get(ctx, "manifest/version-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v0\nRobloxApp.zip\n", string(value))
}

// TestStoreTTL verifies that only entries written with a TTL expire.
func TestStoreTTL(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "deploy-history", []byte("log"), time.Hour))
	require.NoError(t, store.Put(ctx, "manifest/version-b", []byte("v0"), 0))

	expires, err := store.expiresAt("deploy-history")
	require.NoError(t, err)
	require.Greater(t, expires, uint64(time.Now().Unix()))

	expires, err = store.expiresAt("manifest/version-b")
	require.NoError(t, err)
	require.Zero(t, expires)
}

// TestStorePurge verifies that purging drops every document.
func TestStorePurge(t *testing.T) {
	t.Parallel()

	store, err := OpenInMemory()
	require.NoError(t, err)

	defer func() {
		_ = store.Close()
	}()

	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Put(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, store.Purge())

	for _, key := range []string{"a", "b"} {
		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

// TestStoreCancelled verifies that a cancelled context is honoured.
func TestStoreCancelled(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.Get(ctx, "a")
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, store.Put(ctx, "a", nil, 0), context.Canceled)
}
