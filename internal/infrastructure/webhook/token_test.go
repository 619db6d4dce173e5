package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSigner_SignAndVerifyRoundTrip(t *testing.T) {
	signer := NewTokenSigner("test-secret")
	token, err := signer.Sign("exec-123", "node-a", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	execID, nodeKey, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "exec-123", execID)
	assert.Equal(t, "node-a", nodeKey)
}

func TestTokenSigner_VerifyMissingToken(t *testing.T) {
	signer := NewTokenSigner("test-secret")
	_, _, err := signer.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestTokenSigner_VerifyExpiredToken(t *testing.T) {
	signer := NewTokenSigner("test-secret")
	token, err := signer.Sign("exec-123", "node-a", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, _, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenSigner_VerifyWrongSecretRejected(t *testing.T) {
	signer := NewTokenSigner("test-secret")
	token, err := signer.Sign("exec-123", "node-a", time.Now().Add(time.Hour))
	require.NoError(t, err)

	other := NewTokenSigner("different-secret")
	_, _, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
