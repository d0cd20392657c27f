package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCodec(t *testing.T) (*Codec, *fakeClock) {
	t.Helper()

	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	c, err := New(testKey, WithClock(clock.Now))
	require.NoError(t, err)

	return c, clock
}

func TestNew(t *testing.T) {
	t.Run("rejects short keys", func(t *testing.T) {
		c, err := New([]byte("short"))
		assert.ErrorIs(t, err, ErrKeyTooShort)
		assert.Nil(t, c)
	})

	t.Run("copies the key", func(t *testing.T) {
		key := append([]byte(nil), testKey...)
		c, err := New(key)
		require.NoError(t, err)

		tok, err := c.Issue(1, time.Minute)
		require.NoError(t, err)

		key[0] = 'X'

		_, err = c.Validate(tok)
		assert.NoError(t, err)
	})
}

func TestRoundTrip(t *testing.T) {
	for _, fileID := range []int64{1, 7, 42, 1 << 40} {
		for _, ttl := range []time.Duration{time.Second, time.Minute, 24 * time.Hour} {
			c, clock := newTestCodec(t)

			tok, err := c.Issue(fileID, ttl)
			require.NoError(t, err)
			assert.NotContains(t, tok, "=")
			assert.NotContains(t, tok, "+")
			assert.NotContains(t, tok, "/")

			got, err := c.Validate(tok)
			require.NoError(t, err)
			assert.Equal(t, fileID, got)

			clock.Advance(ttl - time.Second)
			got, err = c.Validate(tok)
			require.NoError(t, err, "still valid one second before expiry")
			assert.Equal(t, fileID, got)

			clock.Advance(time.Second)
			_, err = c.Validate(tok)
			assert.ErrorIs(t, err, ErrExpired, "expired exactly at expires_at")
		}
	}
}

func TestDownloadWindow(t *testing.T) {
	c, clock := newTestCodec(t)

	tok, err := c.Issue(7, 60*time.Second)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	fileID, err := c.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(7), fileID)

	clock.Advance(31 * time.Second)
	fileID, err = c.Validate(tok)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Zero(t, fileID)

	var tokErr *TokenError
	require.True(t, errors.As(err, &tokErr))
	assert.Equal(t, Expired, tokErr.Reason)
}

func TestSignatureByteFlip(t *testing.T) {
	c, _ := newTestCodec(t)

	tok, err := c.Issue(42, time.Hour)
	require.NoError(t, err)

	dot := strings.IndexByte(tok, '.')
	require.Positive(t, dot)

	for i := dot + 1; i < len(tok); i++ {
		for _, mask := range []byte{0x01, 0x20, 0x80} {
			b := []byte(tok)
			b[i] ^= mask

			fileID, err := c.Validate(string(b))
			assert.ErrorIs(t, err, ErrBadSignature, "position %d mask %#x", i, mask)
			assert.Zero(t, fileID)
		}
	}
}

func TestTamperedPayload(t *testing.T) {
	c, _ := newTestCodec(t)

	tok, err := c.Issue(42, time.Hour)
	require.NoError(t, err)

	seg, sig, _ := strings.Cut(tok, ".")
	body, err := base64.RawURLEncoding.DecodeString(seg)
	require.NoError(t, err)

	forged := strings.Replace(string(body), `"fid":42`, `"fid":43`, 1)
	require.NotEqual(t, string(body), forged)

	_, err = c.Validate(base64.RawURLEncoding.EncodeToString([]byte(forged)) + "." + sig)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestForeignKey(t *testing.T) {
	c, _ := newTestCodec(t)

	other, err := New([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)

	tok, err := other.Issue(42, time.Hour)
	require.NoError(t, err)

	_, err = c.Validate(tok)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestMalformed(t *testing.T) {
	c, _ := newTestCodec(t)

	sign := func(raw string) string {
		seg := base64.RawURLEncoding.EncodeToString([]byte(raw))
		return seg + "." + c.sign(seg)
	}

	inputs := map[string]string{
		"empty":             "",
		"no separator":      "abcdef",
		"empty payload":     ".abc",
		"empty signature":   "abc.",
		"payload not b64":   "!!!.abc",
		"payload not json":  sign("not json"),
		"zero file id":      sign(`{"fid":0,"iat":1,"exp":2}`),
		"expiry before iat": sign(`{"fid":1,"iat":5,"exp":5}`),
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			fileID, err := c.Validate(in)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Zero(t, fileID)
		})
	}
}

func TestIssueValidation(t *testing.T) {
	c, _ := newTestCodec(t)

	_, err := c.Issue(1, 500*time.Millisecond)
	assert.ErrorIs(t, err, ErrInvalidTTL)

	_, err = c.Issue(0, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestDecodeClaims(t *testing.T) {
	c, clock := newTestCodec(t)

	tok, err := c.Issue(9, 90*time.Second)
	require.NoError(t, err)

	claims, err := c.Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(9), claims.FileID)
	assert.Equal(t, clock.t, claims.IssuedAt)
	assert.Equal(t, clock.t.Add(90*time.Second), claims.ExpiresAt)
	assert.True(t, claims.IssuedAt.Before(claims.ExpiresAt))
}

func TestLoadKey(t *testing.T) {
	raw := strings.Repeat("k", 32)

	key, err := LoadKey(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte(raw), key)

	key, err = LoadKey("hex:" + strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Len(t, key, 32)

	key, err = LoadKey("base64:" + base64.StdEncoding.EncodeToString([]byte(raw)))
	require.NoError(t, err)
	assert.Equal(t, []byte(raw), key)

	_, err = LoadKey("hex:zz")
	assert.Error(t, err)

	_, err = LoadKey("short")
	assert.ErrorIs(t, err, ErrKeyTooShort)
}
