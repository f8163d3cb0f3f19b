// Package pseudonym derives stable participant handles from external user
// identifiers without exposing the identifiers themselves.
package pseudonym

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const (
	Prefix = "user_"
	length = 16
)

var ErrMissingSecret = errors.New("pseudonym secret cannot be empty")

type Pseudonymizer struct {
	secret []byte
}

func New(secret []byte) (*Pseudonymizer, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}

	return &Pseudonymizer{secret: append([]byte(nil), secret...)}, nil
}

// Pseudonym returns Prefix followed by the first 16 hex characters of
// HMAC-SHA256(secret, externalId).
func (p *Pseudonymizer) Pseudonym(externalId string) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(externalId))
	return Prefix + hex.EncodeToString(mac.Sum(nil))[:length]
}
