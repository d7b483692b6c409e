// Package gateway composes authentication, resolution and authorization
// into the operations the HTTP handlers expose.
//
// InteractionTransfer forwards Discord interactions to the worker that owns
// them, signed with the gateway key and carrying a provenance token.
// DiscordProxy relays worker calls to the Discord API after checking the
// worker's signature and permission grants. ManifestService registers and
// deletes manifests and schedules command re-registration.
//
// Errors map to HTTP statuses through StatusCode; PublicMessage gives the
// text safe to return, which for every authentication failure is the
// generic "unauthorized".
package gateway
