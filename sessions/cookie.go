package sessions

import (
	"crypto/sha256"
	"fmt"
	"io"

	apperrors "github.com/jrsteele09/epr-admin-frontend/internal/errors"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
	"github.com/lestrrat-go/jwx/v2/jws"
	"golang.org/x/crypto/hkdf"
)

// MinPasswordLength is the shortest cookie password accepted.
const MinPasswordLength = 32

// CookieCodec seals a session reference for the browser: HS256 signed, then
// encrypted with A256GCM under a direct key.
type CookieCodec struct {
	signKey []byte
	encKey  []byte
}

// NewCookieCodec derives independent signing and encryption keys from password.
func NewCookieCodec(password string) (*CookieCodec, error) {
	if len(password) < MinPasswordLength {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidConfig, "cookie password must be at least %d characters", MinPasswordLength)
	}

	signKey, err := deriveKey(password, "epr-admin session cookie signing")
	if err != nil {
		return nil, err
	}
	encKey, err := deriveKey(password, "epr-admin session cookie encryption")
	if err != nil {
		return nil, err
	}

	return &CookieCodec{signKey: signKey, encKey: encKey}, nil
}

func deriveKey(password, info string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(password), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("deriving cookie key: %w", err)
	}
	return key, nil
}

func (c *CookieCodec) Encode(reference string) (string, error) {
	signed, err := jws.Sign([]byte(reference), jws.WithKey(jwa.HS256, c.signKey))
	if err != nil {
		return "", fmt.Errorf("signing cookie: %w", err)
	}

	encrypted, err := jwe.Encrypt(signed, jwe.WithContentEncryption(jwa.A256GCM), jwe.WithKey(jwa.DIRECT, c.encKey))
	if err != nil {
		return "", fmt.Errorf("encrypting cookie: %w", err)
	}
	return string(encrypted), nil
}

// Decode returns the reference sealed in value. Any failure matches ErrInvalidCookie.
func (c *CookieCodec) Decode(value string) (string, error) {
	decrypted, err := jwe.Decrypt([]byte(value), jwe.WithKey(jwa.DIRECT, c.encKey))
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrInvalidCookie, "decrypting: %v", err)
	}

	reference, err := jws.Verify(decrypted, jws.WithKey(jwa.HS256, c.signKey))
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrInvalidCookie, "verifying signature: %v", err)
	}
	if len(reference) == 0 {
		return "", apperrors.Wrapf(apperrors.ErrInvalidCookie, "empty reference")
	}
	return string(reference), nil
}
