package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, ttl time.Duration) *Codec {
	t.Helper()
	c, err := NewCodec("test-secret", ttl)
	require.NoError(t, err)
	return c
}

func TestNewCodecRequiresSecret(t *testing.T) {
	_, err := NewCodec("", time.Hour)
	assert.Error(t, err)

	_, err = NewCodec("secret", 0)
	assert.Error(t, err)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	c := newTestCodec(t, time.Hour)

	tok, expiresAt, err := c.Issue("sub-123")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	id, err := c.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "sub-123", id)
}

func TestVerifyExpired(t *testing.T) {
	c := newTestCodec(t, time.Hour)

	issued := time.Now()
	tok, _, err := c.Issue("sub-123")
	require.NoError(t, err)

	// Move the verifier's clock past the expiry.
	c.WithClock(func() time.Time { return issued.Add(2 * time.Hour) })

	_, err = c.Verify(tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyJustBeforeExpiryStillValid(t *testing.T) {
	c := newTestCodec(t, time.Hour)

	issued := time.Now()
	tok, _, err := c.Issue("sub-123")
	require.NoError(t, err)

	c.WithClock(func() time.Time { return issued.Add(59 * time.Minute) })

	id, err := c.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "sub-123", id)
}

func TestVerifyTamperedSignature(t *testing.T) {
	c := newTestCodec(t, time.Hour)

	tok, _, err := c.Issue("sub-123")
	require.NoError(t, err)

	// Flip a byte in the signature segment.
	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = c.Verify(tampered)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifyWrongSecret(t *testing.T) {
	c := newTestCodec(t, time.Hour)
	tok, _, err := c.Issue("sub-123")
	require.NoError(t, err)

	other, err := NewCodec("another-secret", time.Hour)
	require.NoError(t, err)

	_, err = other.Verify(tok)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifyMalformed(t *testing.T) {
	c := newTestCodec(t, time.Hour)

	for _, tok := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		_, err := c.Verify(tok)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", tok)
	}
}
