package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockKV implements interfaces.KVStore for testing.
type MockKV struct {
	mock.Mock
	name string
}

func (m *MockKV) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKV) Put(ctx context.Context, key string, value []byte) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockKV) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockKV) Available(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *MockKV) Name() string {
	return m.name
}

func TestMultiKV_GetFallback(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		setup         func(primary, mirror *MockKV)
		expectedValue []byte
		expectedErr   error
	}{
		{
			name: "primary answers",
			setup: func(primary, mirror *MockKV) {
				primary.On("Available", ctx).Return(true)
				primary.On("Get", ctx, "k").Return([]byte("p"), nil)
			},
			expectedValue: []byte("p"),
		},
		{
			name: "not found on primary is final",
			setup: func(primary, mirror *MockKV) {
				primary.On("Available", ctx).Return(true)
				primary.On("Get", ctx, "k").Return(nil, interfaces.ErrKeyNotFound)
			},
			expectedErr: interfaces.ErrKeyNotFound,
		},
		{
			name: "primary error falls back",
			setup: func(primary, mirror *MockKV) {
				primary.On("Available", ctx).Return(true)
				primary.On("Get", ctx, "k").Return(nil, errors.New("timeout"))
				mirror.On("Available", ctx).Return(true)
				mirror.On("Get", ctx, "k").Return([]byte("m"), nil)
			},
			expectedValue: []byte("m"),
		},
		{
			name: "primary unavailable falls back",
			setup: func(primary, mirror *MockKV) {
				primary.On("Available", ctx).Return(false)
				mirror.On("Available", ctx).Return(true)
				mirror.On("Get", ctx, "k").Return([]byte("m"), nil)
			},
			expectedValue: []byte("m"),
		},
		{
			name: "everything down",
			setup: func(primary, mirror *MockKV) {
				primary.On("Available", ctx).Return(false)
				mirror.On("Available", ctx).Return(false)
			},
			expectedErr: interfaces.ErrBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &MockKV{name: "primary"}
			mirror := &MockKV{name: "mirror"}
			tt.setup(primary, mirror)

			kv := NewMultiKV(primary, []interfaces.KVStore{mirror}, testLogger())
			value, err := kv.Get(ctx, "k")
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedValue, value)
			}
			primary.AssertExpectations(t)
			mirror.AssertExpectations(t)
		})
	}
}

func TestMultiKV_Writes(t *testing.T) {
	ctx := context.Background()

	t.Run("mirror failure does not fail the write", func(t *testing.T) {
		primary := NewMemoryKV()
		mirror := &MockKV{name: "mirror"}
		mirror.On("Available", ctx).Return(true)
		mirror.On("Put", ctx, "k", []byte("v")).Return(errors.New("disk full"))

		kv := NewMultiKV(primary, []interfaces.KVStore{mirror}, testLogger())
		require.NoError(t, kv.Put(ctx, "k", []byte("v")))

		value, err := primary.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), value)
		mirror.AssertExpectations(t)
	})

	t.Run("primary failure fails the write and skips mirrors", func(t *testing.T) {
		primary := &MockKV{name: "primary"}
		primary.On("Delete", ctx, "k").Return(errors.New("down"))
		mirror := &MockKV{name: "mirror"}

		kv := NewMultiKV(primary, []interfaces.KVStore{mirror}, testLogger())
		assert.Error(t, kv.Delete(ctx, "k"))
		mirror.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("apply reaches every backend", func(t *testing.T) {
		primary := NewMemoryKV()
		mirror := NewMemoryKV()
		require.NoError(t, mirror.Put(ctx, "stale", []byte("x")))

		kv := NewMultiKV(primary, []interfaces.KVStore{mirror}, testLogger())
		require.NoError(t, kv.Apply(ctx, []interfaces.KVOp{
			interfaces.PutOp("a", []byte("1")),
			interfaces.DeleteOp("stale"),
		}))

		for _, backend := range []*MemoryKV{primary, mirror} {
			value, err := backend.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("1"), value)
			_, err = backend.Get(ctx, "stale")
			assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
		}
		assert.Equal(t, "multi[memory,memory]", kv.Name())
	})
}
