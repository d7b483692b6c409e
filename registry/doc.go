// Package registry stores worker manifests in a KVStore and resolves
// incoming interactions to the manifest that owns them.
//
// # Key Layout
//
//	manifests                      JSON array of registered manifest ids
//	manifest:<id>                  manifest body (JSON)
//	cmd:global:<name>              id of the manifest owning a global command
//	cmd:guild:<guild>:<name>       id of the manifest owning a guild command
//	component:<custom_id>          id of the manifest owning a message component
//	modal:<custom_id>              id of the manifest owning a modal
//
// Manifest bodies are authoritative and index entries are derived from
// them. Writes are ordered so that an index entry never points at a body
// that does not exist, even when a non-transactional backend fails part
// way through a save or remove.
//
// # Resolution
//
// Application commands and autocompletes invoked inside a guild consult the
// guild index before the global index. Components and modals are looked up
// by custom id.
//
//	repo := registry.NewRepository(kv, logger)
//	manifest, err := repo.FindByInteraction(ctx, interaction)
//	if errors.Is(err, interfaces.ErrManifestNotFound) {
//	    // not registered
//	}
package registry
