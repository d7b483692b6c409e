// Package dashboardhandler serves the JSON API behind the management
// dashboard. Requests authenticate with the nexus_token session cookie;
// issuing sessions (the OAuth login flow) happens elsewhere. A dashboard
// hosted on another origin is allowed through CORS with credentials when
// that origin is configured.
package dashboardhandler
