package kms

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/hashicorp/vault/shamir"
)

// SplitSecret splits a master secret into hex-encoded Shamir shares, any
// threshold of which reconstruct it. Operators keep the shares apart and
// hand them to the gateway at startup instead of a single secret.
func SplitSecret(secret []byte, shares, threshold int) ([]string, error) {
	if len(secret) < MinMasterSecretLength {
		return nil, fmt.Errorf("master secret must be at least %d bytes", MinMasterSecretLength)
	}
	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	if shares < threshold {
		return nil, errors.New("total shares must be at least equal to threshold")
	}

	parts, err := shamir.Split(secret, shares, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split master secret: %w", err)
	}

	encoded := make([]string, len(parts))
	for i, part := range parts {
		encoded[i] = hex.EncodeToString(part)
	}
	return encoded, nil
}

// CombineShares reconstructs a master secret from hex-encoded shares.
// Fewer shares than the threshold yield a wrong secret, not an error; the
// length check below catches only the grossest mistakes.
func CombineShares(encoded []string) ([]byte, error) {
	if len(encoded) < 2 {
		return nil, errors.New("at least 2 shares are required")
	}

	parts := make([][]byte, len(encoded))
	for i, s := range encoded {
		part, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("share %d is not valid hex: %w", i, err)
		}
		parts[i] = part
	}

	secret, err := shamir.Combine(parts)
	if err != nil {
		return nil, fmt.Errorf("failed to combine shares: %w", err)
	}
	if len(secret) < MinMasterSecretLength {
		return nil, fmt.Errorf("reconstructed secret is shorter than %d bytes", MinMasterSecretLength)
	}
	return secret, nil
}
