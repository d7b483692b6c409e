package registry

import (
	"context"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockRepository mocks the ManifestRepository interface
type MockRepository struct {
	mock.Mock
}

var _ interfaces.ManifestRepository = (*MockRepository)(nil)

func (m *MockRepository) FindByID(ctx context.Context, id string) (*interfaces.Manifest, error) {
	args := m.Called(ctx, id)
	manifest, _ := args.Get(0).(*interfaces.Manifest)
	return manifest, args.Error(1)
}

func (m *MockRepository) FindAll(ctx context.Context) ([]*interfaces.Manifest, error) {
	args := m.Called(ctx)
	manifests, _ := args.Get(0).([]*interfaces.Manifest)
	return manifests, args.Error(1)
}

func (m *MockRepository) FindByInteraction(ctx context.Context, interaction *interfaces.Interaction) (*interfaces.Manifest, error) {
	args := m.Called(ctx, interaction)
	manifest, _ := args.Get(0).(*interfaces.Manifest)
	return manifest, args.Error(1)
}

func (m *MockRepository) Save(ctx context.Context, manifest *interfaces.Manifest) error {
	args := m.Called(ctx, manifest)
	return args.Error(0)
}

func (m *MockRepository) Remove(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}
