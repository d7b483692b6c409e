// Package kms holds the gateway's own credentials.
//
// SimpleKeyring carries the key the gateway signs forwarded interactions
// with, the Discord bot token injected into proxied API calls, and a master
// token secret. Independent HMAC keys for provenance tokens and dashboard
// sessions are derived from the master secret with HKDF-SHA256.
//
// The master secret can be split into Shamir shares with SplitSecret and
// reconstructed at startup with CombineShares, so no single operator holds
// it.
//
//	secret, err := kms.CombineShares(shares)
//	keyring, err := kms.NewSimpleKeyring(secret)
//	keyring, err = keyring.WithSigningKey(cryptoutils.Ed25519, privateKey)
//	keyring = keyring.WithBotToken(botToken)
package kms
