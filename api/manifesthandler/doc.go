// Package manifesthandler serves the worker-facing manifest API and the
// gateway public key discovery endpoint.
//
//	POST   /manifest                       register or replace a manifest
//	DELETE /manifest/{id}                  delete a manifest
//	GET    /.well-known/nexus-public-key   gateway verification key
//
// Registration and deletion requests are signed by the worker; see
// gateway.ManifestService for which key applies.
package manifesthandler
