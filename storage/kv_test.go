package storage

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runKVStoreSuite checks the KVStore contract every backend must honor.
func runKVStoreSuite(t *testing.T, kv interfaces.KVStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := kv.Get(ctx, "manifest:absent")
		assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
	})

	t.Run("put get overwrite", func(t *testing.T) {
		require.NoError(t, kv.Put(ctx, "manifest:svc1", []byte(`{"id":"svc1"}`)))
		got, err := kv.Get(ctx, "manifest:svc1")
		require.NoError(t, err)
		assert.Equal(t, `{"id":"svc1"}`, string(got))

		require.NoError(t, kv.Put(ctx, "manifest:svc1", []byte(`{"id":"svc1","v":2}`)))
		got, err = kv.Get(ctx, "manifest:svc1")
		require.NoError(t, err)
		assert.Equal(t, `{"id":"svc1","v":2}`, string(got))
	})

	t.Run("keys with separators", func(t *testing.T) {
		keys := []string{"cmd:guild:123:ping", "component:a/b/c", "modal:with space"}
		for _, k := range keys {
			require.NoError(t, kv.Put(ctx, k, []byte(k)))
		}
		for _, k := range keys {
			got, err := kv.Get(ctx, k)
			require.NoError(t, err, k)
			assert.Equal(t, k, string(got))
		}
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, kv.Put(ctx, "cmd:global:ping", []byte("svc1")))
		require.NoError(t, kv.Delete(ctx, "cmd:global:ping"))
		_, err := kv.Get(ctx, "cmd:global:ping")
		assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

		assert.NoError(t, kv.Delete(ctx, "cmd:global:never-existed"))
	})

	t.Run("batch", func(t *testing.T) {
		batch, ok := kv.(interfaces.BatchKVStore)
		if !ok {
			t.Skipf("%s does not support batches", kv.Name())
		}
		require.NoError(t, kv.Put(ctx, "modal:old", []byte("svc1")))
		require.NoError(t, batch.Apply(ctx, []interfaces.KVOp{
			interfaces.PutOp("manifest:svc2", []byte("{}")),
			interfaces.PutOp("cmd:global:echo", []byte("svc2")),
			interfaces.DeleteOp("modal:old"),
		}))
		got, err := kv.Get(ctx, "cmd:global:echo")
		require.NoError(t, err)
		assert.Equal(t, "svc2", string(got))
		_, err = kv.Get(ctx, "modal:old")
		assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
	})

	t.Run("available", func(t *testing.T) {
		assert.True(t, kv.Available(ctx))
		assert.NotEmpty(t, kv.Name())
	})
}

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()
	runKVStoreSuite(t, kv)

	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, kv.Put(ctx, "k", value))
	value[0] = 'x'
	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got), "stored values are copied")

	keys := kv.Keys()
	sort.Strings(keys)
	assert.Contains(t, keys, "k")
}

func TestFileKV(t *testing.T) {
	kv, err := NewFileKV(t.TempDir(), testLogger())
	require.NoError(t, err)
	runKVStoreSuite(t, kv)
}
