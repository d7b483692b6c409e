package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
)

// MultiKV writes to a primary backend and mirrors every write to
// secondary backends. Reads are served by the primary and fall back to the
// mirrors, in order, when the primary fails or is unavailable.
//
// Only the primary write decides success. A failed mirror write is logged
// and the mirror is left stale until a later write repairs the key.
type MultiKV struct {
	primary interfaces.KVStore
	mirrors []interfaces.KVStore
	log     *slog.Logger
}

// NewMultiKV creates a mirrored store. A MultiKV without mirrors behaves
// like primary.
func NewMultiKV(primary interfaces.KVStore, mirrors []interfaces.KVStore, logger *slog.Logger) *MultiKV {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiKV{
		primary: primary,
		mirrors: mirrors,
		log:     logger,
	}
}

func (m *MultiKV) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	var errs []error

	for _, backend := range m.backends() {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()), slog.String("key", key))
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		data, err := backend.Get(ctx, key)
		if err == nil || errors.Is(err, interfaces.ErrKeyNotFound) {
			return data, err
		}

		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Warn("Failed to read from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("key", key),
			"err", err)
	}

	m.log.Error("All backends failed to read key",
		slog.String("key", key),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))
	return nil, fmt.Errorf("all backends failed to read %s: %w", key, errors.Join(errs...))
}

func (m *MultiKV) Put(ctx context.Context, key string, value []byte) error {
	if err := m.primary.Put(ctx, key, value); err != nil {
		return err
	}
	m.mirror(ctx, "put", func(backend interfaces.KVStore) error {
		return backend.Put(ctx, key, value)
	})
	return nil
}

func (m *MultiKV) Delete(ctx context.Context, key string) error {
	if err := m.primary.Delete(ctx, key); err != nil {
		return err
	}
	m.mirror(ctx, "delete", func(backend interfaces.KVStore) error {
		return backend.Delete(ctx, key)
	})
	return nil
}

// Apply runs ops as one batch on the primary when it supports batches,
// else step by step. Mirrors receive the same ops.
func (m *MultiKV) Apply(ctx context.Context, ops []interfaces.KVOp) error {
	if err := applyOps(ctx, m.primary, ops); err != nil {
		return err
	}
	m.mirror(ctx, "apply", func(backend interfaces.KVStore) error {
		return applyOps(ctx, backend, ops)
	})
	return nil
}

func (m *MultiKV) mirror(ctx context.Context, op string, write func(interfaces.KVStore) error) {
	for _, backend := range m.mirrors {
		if !backend.Available(ctx) {
			m.log.Warn("Mirror unavailable, skipping write", slog.String("backend_name", backend.Name()), slog.String("op", op))
			continue
		}
		if err := write(backend); err != nil {
			m.log.Warn("Failed to mirror write",
				slog.String("backend_name", backend.Name()),
				slog.String("op", op),
				"err", err)
		}
	}
}

func applyOps(ctx context.Context, backend interfaces.KVStore, ops []interfaces.KVOp) error {
	if batch, ok := backend.(interfaces.BatchKVStore); ok {
		return batch.Apply(ctx, ops)
	}
	for _, op := range ops {
		var err error
		switch op.Kind {
		case interfaces.KVPut:
			err = backend.Put(ctx, op.Key, op.Value)
		case interfaces.KVDelete:
			err = backend.Delete(ctx, op.Key)
		default:
			err = fmt.Errorf("unknown op %v", op.Kind)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", op.Kind, op.Key, err)
		}
	}
	return nil
}

// Available reports the primary's availability; writes need it.
func (m *MultiKV) Available(ctx context.Context) bool {
	return m.primary.Available(ctx)
}

func (m *MultiKV) Name() string {
	names := make([]string, 0, len(m.mirrors)+1)
	for _, backend := range m.backends() {
		names = append(names, backend.Name())
	}
	return "multi[" + strings.Join(names, ",") + "]"
}

// Close closes every backend holding a network client.
func (m *MultiKV) Close() error {
	var errs []error
	for _, backend := range m.backends() {
		if closer, ok := backend.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

func (m *MultiKV) backends() []interfaces.KVStore {
	return append([]interfaces.KVStore{m.primary}, m.mirrors...)
}
