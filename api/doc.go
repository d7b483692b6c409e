// Package api holds the HTTP server configuration and the response types
// and helpers shared by the handler packages.
//
// Every error answer is a JSON object with an "error" field. Statuses come
// from gateway.StatusCode: 400 malformed input, 401 authentication failure,
// 403 permission denied, 404 unknown manifest, 500 misconfiguration and 502
// upstream failure. Authentication failures always read "unauthorized".
package api
