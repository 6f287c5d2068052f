package noiseops

import (
	"encoding/hex"
	"testing"
)

// TestDerivePSKVector pins the bit-exact HKDF-SHA256 output from spec §4.3 /
// §8 seed test 1, so a change to salt, info, or IKM encoding is caught here
// rather than in an end-to-end handshake failure.
func TestDerivePSKVector(t *testing.T) {
	const want = "2ae98c1bffa1161744024a43e105264640b44c822603030f1af425965079c5c5"

	psk, err := DerivePSK("123456")
	if err != nil {
		t.Fatalf("DerivePSK: %v", err)
	}
	if got := hex.EncodeToString(psk[:]); got != want {
		t.Fatalf("DerivePSK(\"123456\") = %s, want %s", got, want)
	}
}

func TestDerivePSKDeterministic(t *testing.T) {
	a, err := DerivePSK("000001")
	if err != nil {
		t.Fatalf("DerivePSK: %v", err)
	}
	b, err := DerivePSK("000001")
	if err != nil {
		t.Fatalf("DerivePSK: %v", err)
	}
	if a != b {
		t.Fatalf("DerivePSK not deterministic: %x != %x", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("DerivePSK length = %d, want 32", len(a))
	}
}

func TestGeneratePairingCodeFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GeneratePairingCode()
		if err != nil {
			t.Fatalf("GeneratePairingCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("pairing code %q has length %d, want 6", code, len(code))
		}
		n := 0
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("pairing code %q is not all-decimal", code)
			}
			n = n*10 + int(c-'0')
		}
		if n < pairingCodeMin || n > pairingCodeMax {
			t.Fatalf("pairing code %d out of range [%d,%d]", n, pairingCodeMin, pairingCodeMax)
		}
	}
}
