package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// CookieSigner signs cookie values in the format "value|signature".
type CookieSigner struct {
	key []byte
}

func NewCookieSigner(key []byte) *CookieSigner {
	return &CookieSigner{key: key}
}

func (c *CookieSigner) mac(value string) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(value))
	return mac.Sum(nil)
}

// Sign creates a signed cookie value.
func (c *CookieSigner) Sign(value string) string {
	return fmt.Sprintf("%s|%s", base64.URLEncoding.EncodeToString([]byte(value)), base64.URLEncoding.EncodeToString(c.mac(value)))
}

// Verify checks the signed cookie and returns the original value.
func (c *CookieSigner) Verify(signedValue string) (string, error) {
	valueBase64, signatureBase64, ok := strings.Cut(signedValue, "|")
	if !ok {
		return "", errors.New("invalid cookie format")
	}

	valueBytes, err := base64.URLEncoding.DecodeString(valueBase64)
	if err != nil {
		return "", errors.New("invalid value encoding")
	}
	value := string(valueBytes)

	signature, err := base64.URLEncoding.DecodeString(signatureBase64)
	if err != nil {
		return "", errors.New("invalid signature encoding")
	}

	if !hmac.Equal(signature, c.mac(value)) {
		return "", errors.New("invalid signature")
	}
	return value, nil
}
