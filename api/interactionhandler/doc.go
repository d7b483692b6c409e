// Package interactionhandler serves POST /interactions, the endpoint
// configured as the Discord application's interactions URL.
package interactionhandler
