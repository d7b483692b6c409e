// Package interfaces defines the data model and component contracts of the
// Hiyocord Nexus gateway, separating them from their implementations.
//
// # Data model
//
// Manifest: the declarative registration of a worker. It names the Discord
// application commands, message component custom ids and modal custom ids
// the worker owns, the permission grants it holds on the proxied Discord
// API, and the public key it signs its own requests with.
//
// Interaction: the subset of a Discord interaction payload the gateway needs
// to route it.
//
// # Storage
//
// KVStore: string keys to opaque values. Backends that can apply several
// writes atomically also implement BatchKVStore.
//
// # Components
//
// ManifestRepository: persistent manifests plus derived lookup indices.
//
// Keyring: the gateway's own signing identity and token secrets.
package interfaces
