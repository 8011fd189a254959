package state

import (
	"bytes"
	"fmt"

	"github.com/gorilla/securecookie"
)

// Sealer authenticates, and optionally encrypts, the stored blob so state
// kept in a shared location (a public gist) cannot be read or forged.
type Sealer struct {
	sc   *securecookie.SecureCookie
	name string
}

// NewSealer returns a sealer keyed by hashKey (HMAC, required) and blockKey
// (AES, optional: 16, 24 or 32 bytes). name binds the sealed value to one
// state key so blobs cannot be swapped between keys.
func NewSealer(hashKey, blockKey []byte, name string) (*Sealer, error) {
	if len(hashKey) == 0 {
		return nil, fmt.Errorf("state seal: hash key required")
	}
	switch len(blockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("state seal: block key must be 16, 24 or 32 bytes (got %d)", len(blockKey))
	}
	sc := securecookie.New(hashKey, blockKey).
		SetSerializer(securecookie.NopEncoder{}).
		MaxLength(0).
		MaxAge(0)
	return &Sealer{sc: sc, name: name}, nil
}

func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	enc, err := s.sc.Encode(s.name, plain)
	if err != nil {
		return nil, fmt.Errorf("state seal: %w", err)
	}
	return []byte(enc), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	var out []byte
	if err := s.sc.Decode(s.name, string(bytes.TrimSpace(sealed)), &out); err != nil {
		return nil, fmt.Errorf("state unseal: %w", err)
	}
	return out, nil
}
