package provenance

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, secret string, now time.Time) *Issuer {
	t.Helper()
	issuer, err := NewIssuer([]byte(secret))
	require.NoError(t, err)
	issuer.now = func() time.Time { return now }
	return issuer
}

func TestIssueVerify(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	issuer := newTestIssuer(t, "secret", now)

	token, err := issuer.Issue("svc1", "int-1", DefaultTTL)
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "svc1", claims.ManifestID)
	assert.Equal(t, "int-1", claims.InteractionID)
	assert.Equal(t, now.Add(DefaultTTL).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)

	other, err := issuer.Issue("svc1", "int-1", DefaultTTL)
	require.NoError(t, err)
	assert.NotEqual(t, token, other, "tokens carry a unique id")
}

func TestIssueRejectsTTL(t *testing.T) {
	issuer := newTestIssuer(t, "secret", time.Now())
	for _, ttl := range []time.Duration{0, 500 * time.Millisecond, 6 * time.Minute} {
		_, err := issuer.Issue("svc1", "int-1", ttl)
		assert.ErrorIs(t, err, ErrInvalidTTL, ttl.String())
	}
	_, err := issuer.Issue("", "int-1", time.Minute)
	assert.Error(t, err)
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer(nil)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestVerifyFailures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	issuer := newTestIssuer(t, "secret", now)

	valid, err := issuer.Issue("svc1", "int-1", 15*time.Second)
	require.NoError(t, err)

	expiredIssuer := newTestIssuer(t, "secret", now.Add(16*time.Second))
	wrongSecret := newTestIssuer(t, "other", now)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		ManifestID: "svc1", InteractionID: "int-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	missingClaims, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ManifestID:       "svc1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ManifestID: "svc1", InteractionID: "int-1",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name   string
		issuer *Issuer
		token  string
	}{
		{"expired", expiredIssuer, valid},
		{"wrong secret", wrongSecret, valid},
		{"alg none", issuer, noneToken},
		{"missing interaction id", issuer, missingClaims},
		{"missing expiry", issuer, noExpiry},
		{"tampered", issuer, tampered},
		{"garbage", issuer, "not-a-token"},
		{"empty", issuer, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := tt.issuer.Verify(tt.token)
			assert.Nil(t, claims)
			require.ErrorIs(t, err, ErrVerificationFailed)
			assert.Equal(t, "JWT verification failed", err.Error())

			var verr *VerificationError
			require.True(t, errors.As(err, &verr))
			assert.Error(t, verr.Reason)
		})
	}
}
