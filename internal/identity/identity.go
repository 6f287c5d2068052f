// Package identity implements the receiver's static Curve25519 keypair,
// used both as the Noise static key and as the peer's durable address.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

const KeySize = 32

var ErrInvalidKeyLength = errors.New("identity: invalid key length")

// Identity is the long-term static keypair generated once on first launch.
type Identity struct {
	PrivateKey [KeySize]byte
	PublicKey  [KeySize]byte
}

// Generate creates a fresh static X25519 keypair.
func Generate() (*Identity, error) {
	var priv [KeySize]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, fmt.Errorf("identity: generate: %w", err)
	}
	// Clamp per RFC 7748 so the scalar is a valid X25519 private key.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("identity: derive public key: %w", err)
	}

	id := &Identity{PrivateKey: priv}
	copy(id.PublicKey[:], pub)
	return id, nil
}

// FromHex reconstructs an Identity from hex-encoded private/public keys, as
// stored in identity.json.
func FromHex(privateHex, publicHex string) (*Identity, error) {
	priv, err := hex.DecodeString(privateHex)
	if err != nil {
		return nil, fmt.Errorf("identity: decode private key: %w", err)
	}
	pub, err := hex.DecodeString(publicHex)
	if err != nil {
		return nil, fmt.Errorf("identity: decode public key: %w", err)
	}
	if len(priv) != KeySize || len(pub) != KeySize {
		return nil, ErrInvalidKeyLength
	}

	id := &Identity{}
	copy(id.PrivateKey[:], priv)
	copy(id.PublicKey[:], pub)
	return id, nil
}

func (id *Identity) PrivateKeyHex() string {
	return hex.EncodeToString(id.PrivateKey[:])
}

func (id *Identity) PublicKeyHex() string {
	return hex.EncodeToString(id.PublicKey[:])
}
