package interfaces

import "context"

// ManifestRepository stores manifests and owns every derived index entry.
type ManifestRepository interface {
	// FindByID returns the manifest or ErrManifestNotFound.
	FindByID(ctx context.Context, id string) (*Manifest, error)

	// FindAll returns every readable manifest in enumeration order.
	FindAll(ctx context.Context) ([]*Manifest, error)

	// FindByInteraction returns the owning manifest, ErrManifestNotFound on
	// a routing miss, or ErrUnknownInteractionType.
	FindByInteraction(ctx context.Context, interaction *Interaction) (*Manifest, error)

	// Save writes the manifest body, then its indices, then the enumeration entry.
	Save(ctx context.Context, manifest *Manifest) error

	// Remove tears down indices, then the body, then the enumeration entry,
	// and reports whether the manifest existed.
	Remove(ctx context.Context, id string) (bool, error)
}
