// Package discord verifies Discord interaction callbacks and calls the
// Discord REST API with the gateway's bot token: command registration and
// raw request forwarding for the worker proxy.
package discord
