// Package main (cmd/keygen) generates key material for hiyocord-nexus.
//
// Commands:
//
//	keypair        - signing key pair for the gateway (--nexus-private-key) or a worker manifest
//	split-secret   - split the token secret into Shamir shares for --token-secret-share
//	session        - mint a dashboard session token for a user id
package main
