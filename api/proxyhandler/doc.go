// Package proxyhandler exposes the Discord REST API to workers under
// /proxy/discord/api/v10. Workers sign each call with their manifest key;
// the gateway checks the manifest's permission grants and replaces the
// worker's credentials with the bot token before forwarding.
package proxyhandler
