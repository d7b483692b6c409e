package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
)

// Repository is the KV-backed ManifestRepository.
//
// Manifest bodies are the source of truth; index entries are derived. Save
// writes body, then indices, then the enumeration list. Remove deletes
// indices, then the body, then the list entry. When the backend implements
// interfaces.BatchKVStore the same ordered plan is applied atomically;
// otherwise it runs step by step, and at every intermediate state an index
// never points at a missing body.
type Repository struct {
	kv  interfaces.KVStore
	log *slog.Logger

	// mu serializes writers within this process; the list entry is a
	// read-modify-write.
	mu sync.Mutex
}

var _ interfaces.ManifestRepository = (*Repository)(nil)

func NewRepository(kv interfaces.KVStore, log *slog.Logger) *Repository {
	return &Repository{kv: kv, log: log}
}

func (r *Repository) FindByID(ctx context.Context, id string) (*interfaces.Manifest, error) {
	data, err := r.kv.Get(ctx, ManifestKey(id))
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, interfaces.ErrManifestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", id, err)
	}

	var m interfaces.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", id, err)
	}
	return normalize(&m), nil
}

// FindAll skips ids whose body is missing.
func (r *Repository) FindAll(ctx context.Context) ([]*interfaces.Manifest, error) {
	ids, err := r.listIDs(ctx)
	if err != nil {
		return nil, err
	}

	manifests := make([]*interfaces.Manifest, 0, len(ids))
	for _, id := range ids {
		m, err := r.FindByID(ctx, id)
		if errors.Is(err, interfaces.ErrManifestNotFound) {
			r.log.Warn("Manifest listed but not stored", slog.String("manifestID", id))
			continue
		}
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// FindByInteraction follows the first present index entry from LookupKeys.
func (r *Repository) FindByInteraction(ctx context.Context, interaction *interfaces.Interaction) (*interfaces.Manifest, error) {
	keys, err := LookupKeys(interaction)
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		owner, err := r.kv.Get(ctx, key)
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read index %s: %w", key, err)
		}
		return r.FindByID(ctx, string(owner))
	}
	return nil, interfaces.ErrManifestNotFound
}

// Save stores m and points its indices at it. Index entries of a previous
// version of the same manifest are not removed; callers replacing a
// manifest remove it first.
func (r *Repository) Save(ctx context.Context, m *interfaces.Manifest) error {
	if m.ID == "" {
		return fmt.Errorf("%w: id is required", interfaces.ErrInvalidManifest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	body, err := json.Marshal(normalize(m))
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	plan := []interfaces.KVOp{interfaces.PutOp(ManifestKey(m.ID), body)}
	for _, key := range IndexKeys(m) {
		plan = append(plan, interfaces.PutOp(key, []byte(m.ID)))
	}

	ids, err := r.listIDs(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(ids, m.ID) {
		listOp, err := listPut(append(ids, m.ID))
		if err != nil {
			return err
		}
		plan = append(plan, listOp)
	}

	if err := r.apply(ctx, plan); err != nil {
		return fmt.Errorf("failed to save manifest %s: %w", m.ID, err)
	}
	r.log.Info("Manifest saved", slog.String("manifestID", m.ID), slog.Int("indices", len(plan)-1))
	return nil
}

// Remove deletes the manifest and the index entries that still point at
// it. An entry since claimed by another manifest is left alone.
func (r *Repository) Remove(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.FindByID(ctx, id)
	if errors.Is(err, interfaces.ErrManifestNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var plan []interfaces.KVOp
	for _, key := range IndexKeys(m) {
		owner, err := r.kv.Get(ctx, key)
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to read index %s: %w", key, err)
		}
		if string(owner) != id {
			r.log.Debug("Index entry owned by another manifest",
				slog.String("key", key), slog.String("owner", string(owner)))
			continue
		}
		plan = append(plan, interfaces.DeleteOp(key))
	}
	plan = append(plan, interfaces.DeleteOp(ManifestKey(id)))

	ids, err := r.listIDs(ctx)
	if err != nil {
		return false, err
	}
	if slices.Contains(ids, id) {
		listOp, err := listPut(slices.DeleteFunc(ids, func(s string) bool { return s == id }))
		if err != nil {
			return false, err
		}
		plan = append(plan, listOp)
	}

	if err := r.apply(ctx, plan); err != nil {
		return false, fmt.Errorf("failed to remove manifest %s: %w", id, err)
	}
	r.log.Info("Manifest removed", slog.String("manifestID", id))
	return true, nil
}

func (r *Repository) apply(ctx context.Context, plan []interfaces.KVOp) error {
	if batch, ok := r.kv.(interfaces.BatchKVStore); ok {
		return batch.Apply(ctx, plan)
	}
	for _, op := range plan {
		var err error
		switch op.Kind {
		case interfaces.KVPut:
			err = r.kv.Put(ctx, op.Key, op.Value)
		case interfaces.KVDelete:
			err = r.kv.Delete(ctx, op.Key)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", op.Kind, op.Key, err)
		}
	}
	return nil
}

func (r *Repository) listIDs(ctx context.Context) ([]string, error) {
	data, err := r.kv.Get(ctx, manifestListKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest list: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode manifest list: %w", err)
	}
	return ids, nil
}

func listPut(ids []string) (interfaces.KVOp, error) {
	data, err := json.Marshal(ids)
	if err != nil {
		return interfaces.KVOp{}, fmt.Errorf("failed to encode manifest list: %w", err)
	}
	return interfaces.PutOp(manifestListKey, data), nil
}

// normalize replaces nil lists so stored manifests always carry arrays.
func normalize(m *interfaces.Manifest) *interfaces.Manifest {
	out := *m
	if out.ApplicationCommands.Global == nil {
		out.ApplicationCommands.Global = []interfaces.Command{}
	}
	if out.ApplicationCommands.Guild == nil {
		out.ApplicationCommands.Guild = []interfaces.GuildCommand{}
	}
	if out.MessageComponentIDs == nil {
		out.MessageComponentIDs = []string{}
	}
	if out.ModalSubmitIDs == nil {
		out.ModalSubmitIDs = []string{}
	}
	if out.Permissions == nil {
		out.Permissions = []interfaces.Permission{}
	}
	return &out
}
