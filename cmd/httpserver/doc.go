// Package main (cmd/httpserver) runs the hiyocord-nexus gateway.
//
// The gateway receives Discord interaction callbacks, routes each one to the
// worker whose manifest claims it, and relays workers' Discord API calls
// through a permission-checked proxy that injects the bot token. Workers
// manage their manifests over signed HTTP requests; operators use the
// dashboard API with a session cookie.
//
// Every flag can also be set through its NEXUS_* environment variable.
//
// Example usage:
//
//	nexus-server \
//	  --listen-addr 0.0.0.0:8080 \
//	  --kv-uri redis://localhost:6379/0 \
//	  --discord-application-id 1234 \
//	  --discord-public-key <hex> \
//	  --discord-bot-token <token> \
//	  --nexus-private-key <base64 pkcs8> \
//	  --token-secret <32+ byte secret>
//
// The token secret may instead be supplied as Shamir shares produced by
// `keygen split-secret`, one --token-secret-share per share.
package main
