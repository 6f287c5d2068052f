package noiseops

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/hkdf"
)

const (
	pskSalt = "uclip-pair-v1"
	pskInfo = "psk"
	pskSize = 32

	pairingCodeMin = 100000
	pairingCodeMax = 999999
)

// DerivePSK derives the 32-byte Noise pre-shared key for pairing from the
// operator-visible 6-digit pairing code. Deterministic and bit-exact across
// platforms: HKDF-SHA256 with salt "uclip-pair-v1", IKM = the code's ASCII
// bytes, info = "psk".
func DerivePSK(code string) ([pskSize]byte, error) {
	var psk [pskSize]byte
	reader := hkdf.New(sha256.New, []byte(code), []byte(pskSalt), []byte(pskInfo))
	if _, err := io.ReadFull(reader, psk[:]); err != nil {
		return psk, fmt.Errorf("noiseops: derive psk: %w", err)
	}
	return psk, nil
}

// GeneratePairingCode produces a fresh 6-digit decimal pairing code in
// [100000, 999999]. Never persisted; regenerated every daemon start.
func GeneratePairingCode() (string, error) {
	span := big.NewInt(pairingCodeMax - pairingCodeMin + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("noiseops: generate pairing code: %w", err)
	}
	code := pairingCodeMin + int(n.Int64())
	return fmt.Sprintf("%06d", code), nil
}
