package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerSignAndVerify(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign(DownloadClaims{RunID: "run-1", Path: "run-1/schedule.csv", Format: "csv"})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 2*time.Second)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "run-1", claims.RunID)
	assert.Equal(t, "run-1/schedule.csv", claims.Path)
	assert.Equal(t, "csv", claims.Format)
	assert.True(t, expiresAt.Equal(claims.ExpiresAt))
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Sign(DownloadClaims{RunID: "run-1", Path: "run-1/schedule.pdf"})
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	claims, err := signer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, "run-1", claims.RunID)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign(DownloadClaims{RunID: "run-1", Path: "run-1/schedule.csv"})
	require.NoError(t, err)

	other := NewSignedURLSigner("other", time.Hour)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	_, err = signer.Verify(parts[0] + "." + parts[1] + "x." + parts[2])
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "run-1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = signer.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	for _, bad := range []string{"", "nodot", ".sig", "a.b.", "a.b.c"} {
		_, err = signer.Verify(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, bad)
	}
}

func TestSignedURLSignerRequiresSecret(t *testing.T) {
	_, _, err := NewSignedURLSigner("", time.Hour).Sign(DownloadClaims{RunID: "r", Path: "p"})
	assert.Error(t, err)

	_, _, err = NewSignedURLSigner("secret", time.Hour).Sign(DownloadClaims{RunID: "r"})
	assert.Error(t, err)
}
