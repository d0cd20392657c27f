// Package token issues and validates signed, time-limited download tokens.
//
// A token binds a single file id to an expiry time and is validated without
// any storage lookup. Tokens cannot be revoked individually; rotating the
// signing key invalidates every outstanding token.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinKeySize is the minimum accepted signing key length in bytes.
const MinKeySize = 32

const separator = "."

var encoding = base64.RawURLEncoding

// Reason classifies why a token was rejected.
type Reason int

const (
	Malformed Reason = iota + 1
	Expired
	BadSignature
)

func (r Reason) String() string {
	switch r {
	case Malformed:
		return "malformed"
	case Expired:
		return "expired"
	case BadSignature:
		return "bad signature"
	default:
		return "unknown"
	}
}

// TokenError is returned by Validate. A failed validation never yields a file id.
type TokenError struct {
	Reason Reason
	Err    error
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token %s: %v", e.Reason, e.Err)
	}

	return "token " + e.Reason.String()
}

func (e *TokenError) Unwrap() error { return e.Err }

// Is lets errors.Is match on the rejection reason.
func (e *TokenError) Is(target error) bool {
	t, ok := target.(*TokenError)
	if !ok {
		return false
	}

	return t.Reason == e.Reason
}

var (
	ErrMalformed    = &TokenError{Reason: Malformed}
	ErrExpired      = &TokenError{Reason: Expired}
	ErrBadSignature = &TokenError{Reason: BadSignature}

	ErrKeyTooShort = fmt.Errorf("signing key must be at least %d bytes", MinKeySize)
	ErrInvalidTTL  = errors.New("token ttl must be at least one second")
	ErrInvalidFile = errors.New("file id must be positive")
)

type payload struct {
	FileID    int64 `json:"fid"`
	IssuedAt  int64 `json:"iat"`
	ExpiresAt int64 `json:"exp"`
}

// Claims is the decoded content of a valid token.
type Claims struct {
	FileID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies tokens with a process-wide secret. It is immutable
// after construction and safe for concurrent use.
type Codec struct {
	key []byte
	now func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// New creates a Codec signing with key.
func New(key []byte, opts ...Option) (*Codec, error) {
	if len(key) < MinKeySize {
		return nil, ErrKeyTooShort
	}

	c := &Codec{
		key: append([]byte(nil), key...),
		now: time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Issue returns a token for fileID valid for ttl, truncated to whole seconds.
func (c *Codec) Issue(fileID int64, ttl time.Duration) (string, error) {
	if fileID <= 0 {
		return "", ErrInvalidFile
	}

	secs := int64(ttl / time.Second)
	if secs < 1 {
		return "", ErrInvalidTTL
	}

	iat := c.now().Unix()

	body, err := json.Marshal(payload{FileID: fileID, IssuedAt: iat, ExpiresAt: iat + secs})
	if err != nil {
		return "", fmt.Errorf("failed to encode token payload: %w", err)
	}

	seg := encoding.EncodeToString(body)

	return seg + separator + c.sign(seg), nil
}

// Validate returns the file id bound to tok.
func (c *Codec) Validate(tok string) (int64, error) {
	claims, err := c.Decode(tok)
	if err != nil {
		return 0, err
	}

	return claims.FileID, nil
}

// Decode verifies tok and returns its claims.
func (c *Codec) Decode(tok string) (Claims, error) {
	seg, sig, ok := strings.Cut(tok, separator)
	if !ok || seg == "" || sig == "" {
		return Claims{}, &TokenError{Reason: Malformed, Err: errors.New("expected two segments")}
	}

	body, err := encoding.DecodeString(seg)
	if err != nil {
		return Claims{}, &TokenError{Reason: Malformed, Err: err}
	}

	if !hmac.Equal([]byte(sig), []byte(c.sign(seg))) {
		return Claims{}, &TokenError{Reason: BadSignature}
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Claims{}, &TokenError{Reason: Malformed, Err: err}
	}

	if p.FileID <= 0 || p.ExpiresAt <= p.IssuedAt {
		return Claims{}, &TokenError{Reason: Malformed, Err: errors.New("invalid claims")}
	}

	if c.now().Unix() >= p.ExpiresAt {
		return Claims{}, &TokenError{Reason: Expired}
	}

	return Claims{
		FileID:    p.FileID,
		IssuedAt:  time.Unix(p.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(p.ExpiresAt, 0).UTC(),
	}, nil
}

func (c *Codec) sign(seg string) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(seg))

	return encoding.EncodeToString(mac.Sum(nil))
}

// LoadKey decodes a signing secret from configuration. Values prefixed with
// "hex:" or "base64:" are decoded; anything else is used verbatim.
func LoadKey(s string) ([]byte, error) {
	var (
		key []byte
		err error
	)

	switch {
	case strings.HasPrefix(s, "hex:"):
		key, err = hex.DecodeString(strings.TrimPrefix(s, "hex:"))
	case strings.HasPrefix(s, "base64:"):
		key, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(s, "base64:"))
	default:
		key = []byte(s)
	}

	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}

	if len(key) < MinKeySize {
		return nil, ErrKeyTooShort
	}

	return key, nil
}
