package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/hiyocord/hiyocord-nexus/registry"
	"github.com/hiyocord/hiyocord-nexus/tasks"
)

// CommandSyncer schedules Discord command re-registration.
type CommandSyncer interface {
	Enqueue(reason string) (*tasks.Task, error)
}

// ManifestService registers and deletes manifests and schedules the
// command re-registration that follows each change.
type ManifestService struct {
	repo       interfaces.ManifestRepository
	syncer     CommandSyncer
	auth       *WorkerAuthenticator
	validation registry.ValidationOptions
	log        *slog.Logger

	// workerPermissions limits the grant types of worker-signed
	// registrations. nil allows every type.
	workerPermissions map[interfaces.PermissionType]bool

	// mu makes remove-then-save a unit for concurrent registrations.
	mu sync.Mutex
}

// NewManifestService creates the service. syncer may be nil when no
// Discord application is configured; changes are then stored only.
func NewManifestService(repo interfaces.ManifestRepository, syncer CommandSyncer, auth *WorkerAuthenticator, validation registry.ValidationOptions, log *slog.Logger) *ManifestService {
	return &ManifestService{
		repo:       repo,
		syncer:     syncer,
		auth:       auth,
		validation: validation,
		log:        log,
	}
}

// WithWorkerPermissionTypes restricts worker-signed registrations to the
// given grant types. A replacement may also keep any type the stored
// manifest already holds, e.g. one granted through the dashboard.
func (s *ManifestService) WithWorkerPermissionTypes(types ...interfaces.PermissionType) *ManifestService {
	s.workerPermissions = make(map[interfaces.PermissionType]bool, len(types))
	for _, t := range types {
		s.workerPermissions[t] = true
	}
	return s
}

// AuthenticateRegistration checks a worker's signed registration request.
// A new manifest must be signed with its own key; a replacement must be
// signed with the key of the manifest currently stored under that id.
// Grants outside the worker permission types yield a *PermissionError.
func (s *ManifestService) AuthenticateRegistration(ctx context.Context, m *interfaces.Manifest, headers http.Header, body []byte) error {
	stored, err := s.repo.FindByID(ctx, m.ID)
	keyHolder := stored
	if errors.Is(err, interfaces.ErrManifestNotFound) {
		stored, keyHolder = nil, m
	} else if err != nil {
		return err
	}
	if err := s.authenticate(keyHolder, headers, body); err != nil {
		return err
	}
	return s.checkWorkerPermissions(m, stored)
}

func (s *ManifestService) checkWorkerPermissions(m, stored *interfaces.Manifest) error {
	if s.workerPermissions == nil {
		return nil
	}
	held := map[interfaces.PermissionType]bool{}
	if stored != nil {
		for _, p := range stored.Permissions {
			held[p.Type] = true
		}
	}
	for _, p := range m.Permissions {
		if s.workerPermissions[p.Type] || held[p.Type] {
			continue
		}
		s.log.Warn("Worker registration requested a restricted permission", slog.String("manifestID", m.ID), slog.String("type", string(p.Type)))
		return &PermissionError{ManifestID: m.ID, RequiredScope: string(p.Type)}
	}
	return nil
}

// AuthenticateDeletion checks a worker's signed delete request against the
// stored manifest's key.
func (s *ManifestService) AuthenticateDeletion(ctx context.Context, id string, headers http.Header, body []byte) error {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return s.authenticate(m, headers, body)
}

func (s *ManifestService) authenticate(m *interfaces.Manifest, headers http.Header, body []byte) error {
	if err := s.auth.Authenticate(m, headers, body); err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			s.log.Warn("Manifest request authentication failed", "err", authErr.Reason, slog.String("manifestID", m.ID))
		}
		return err
	}
	return nil
}

// Register validates m and stores it, replacing any manifest with the same
// id. The returned task completes once commands are re-registered; it is
// nil when no sync could be scheduled.
func (s *ManifestService) Register(ctx context.Context, m *interfaces.Manifest) (*tasks.Task, error) {
	if err := registry.ValidateManifest(m, s.validation); err != nil {
		return nil, err
	}

	s.mu.Lock()
	replaced, err := s.repo.Remove(ctx, m.ID)
	if err == nil {
		err = s.repo.Save(ctx, m)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to store manifest: %w", err)
	}

	s.log.Info("Manifest registered", slog.String("manifestID", m.ID), slog.Bool("replaced", replaced))
	return s.scheduleSync("register " + m.ID), nil
}

// Delete removes the manifest and its indices.
func (s *ManifestService) Delete(ctx context.Context, id string) (*tasks.Task, error) {
	s.mu.Lock()
	existed, err := s.repo.Remove(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to remove manifest: %w", err)
	}
	if !existed {
		return nil, interfaces.ErrManifestNotFound
	}

	s.log.Info("Manifest deleted", slog.String("manifestID", id))
	return s.scheduleSync("delete " + id), nil
}

func (s *ManifestService) List(ctx context.Context) ([]*interfaces.Manifest, error) {
	return s.repo.FindAll(ctx)
}

func (s *ManifestService) Get(ctx context.Context, id string) (*interfaces.Manifest, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *ManifestService) scheduleSync(reason string) *tasks.Task {
	if s.syncer == nil {
		return nil
	}
	task, err := s.syncer.Enqueue(reason)
	if err != nil {
		s.log.Error("Failed to schedule command sync", "err", err, slog.String("reason", reason))
		return nil
	}
	return task
}
