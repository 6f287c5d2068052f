// Package noiseops implements the HandshakeDispatcher (§4.3) and Transport
// (§4.4): marker-byte dispatch between the Noise XXpsk0 pairing handshake
// and the Noise KK reconnect handshake, and the length-prefixed encrypted
// transport produced by either.
package noiseops

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/flynn/noise"

	"github.com/uclip/receiverd/internal/identity"
)

// Marker bytes read from the start of every accepted connection (§6).
const (
	MarkerPairing   byte = 0x00
	MarkerReconnect byte = 0x01

	staticKeySize = 32
)

var (
	ErrUnknownMarker   = errors.New("noiseops: unknown handshake marker")
	ErrUnknownDevice   = errors.New("noiseops: reconnect from unknown device")
	ErrHandshakeFailed = errors.New("noiseops: handshake failed")
)

// DeviceStore is the subset of devicestore.Store the dispatcher needs. Kept
// as an interface so tests can fake it without touching disk.
type DeviceStore interface {
	FindDeviceByKey(key []byte) (string, bool, error)
	SavePairedDevice(name string, key []byte) error
}

// Dispatcher drives the connection prologue: read the marker byte, then run
// the matching Noise handshake against the local identity and device store.
type Dispatcher struct {
	identity    *identity.Identity
	store       DeviceStore
	pairingCode string
}

// NewDispatcher builds a Dispatcher for one daemon run. pairingCode is the
// fresh 6-digit code generated at daemon start (§3).
func NewDispatcher(id *identity.Identity, store DeviceStore, pairingCode string) *Dispatcher {
	return &Dispatcher{identity: id, store: store, pairingCode: pairingCode}
}

// Accept consumes the 1-byte marker from conn and runs the appropriate
// handshake to completion, returning an authenticated Transport, the
// peer's symbolic device name, and whether this connection completed a
// fresh pairing (as opposed to a reconnect to an already-paired device).
func (d *Dispatcher) Accept(conn io.ReadWriteCloser) (transport *Transport, name string, paired bool, err error) {
	var marker [1]byte
	if _, err := io.ReadFull(conn, marker[:]); err != nil {
		return nil, "", false, fmt.Errorf("noiseops: read marker: %w", err)
	}

	switch marker[0] {
	case MarkerPairing:
		transport, name, err = d.acceptPairing(conn)
		return transport, name, err == nil, err
	case MarkerReconnect:
		transport, name, err = d.acceptReconnect(conn)
		return transport, name, false, err
	default:
		return nil, "", false, fmt.Errorf("%w: 0x%02x", ErrUnknownMarker, marker[0])
	}
}

func (d *Dispatcher) localKeypair() noise.DHKey {
	return noise.DHKey{
		Private: d.identity.PrivateKey[:],
		Public:  d.identity.PublicKey[:],
	}
}

// acceptPairing runs Noise XXpsk0 as responder: read msg1, write msg2, read
// msg3. On success it derives a symbolic name from the peer's static key and
// persists the pairing.
func (d *Dispatcher) acceptPairing(conn io.ReadWriteCloser) (*Transport, string, error) {
	psk, err := DerivePSK(d.pairingCode)
	if err != nil {
		return nil, "", err
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:           noiseCipherSuite,
		Pattern:               noise.HandshakeXX,
		Initiator:             false,
		StaticKeypair:         d.localKeypair(),
		PresharedKey:          psk[:],
		PresharedKeyPlacement: 0,
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: init: %w", ErrHandshakeFailed, err)
	}

	// <- psk, e (msg 1)
	msg1, err := readFramed(conn)
	if err != nil {
		return nil, "", fmt.Errorf("%w: recv msg1: %w", ErrHandshakeFailed, err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, "", fmt.Errorf("%w: read msg1: %w", ErrHandshakeFailed, err)
	}

	// -> e, ee, s, es (msg 2)
	msg2, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: write msg2: %w", ErrHandshakeFailed, err)
	}
	if err := writeFramed(conn, msg2); err != nil {
		return nil, "", fmt.Errorf("%w: send msg2: %w", ErrHandshakeFailed, err)
	}

	// <- s, se (msg 3), finalizes the handshake
	msg3, err := readFramed(conn)
	if err != nil {
		return nil, "", fmt.Errorf("%w: recv msg3: %w", ErrHandshakeFailed, err)
	}
	_, cs1, cs2, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read msg3: %w", ErrHandshakeFailed, err)
	}

	remoteStatic := hs.PeerStatic()
	if len(remoteStatic) != staticKeySize {
		return nil, "", fmt.Errorf("%w: unexpected remote static key length %d", ErrHandshakeFailed, len(remoteStatic))
	}

	name := deviceNameFromKey(remoteStatic)
	if err := d.store.SavePairedDevice(name, remoteStatic); err != nil {
		return nil, "", fmt.Errorf("noiseops: persist pairing: %w", err)
	}

	// As responder: cs1 = initiator->responder (our decryptor),
	// cs2 = responder->initiator (our encryptor).
	return newTransport(conn, cs2, cs1), name, nil
}

// acceptReconnect reads the claimed 32-byte static public key, looks it up,
// and if known runs Noise KK as responder: read msg1, write msg2.
func (d *Dispatcher) acceptReconnect(conn io.ReadWriteCloser) (*Transport, string, error) {
	var claimedKey [staticKeySize]byte
	if _, err := io.ReadFull(conn, claimedKey[:]); err != nil {
		return nil, "", fmt.Errorf("noiseops: read claimed static key: %w", err)
	}

	name, ok, err := d.store.FindDeviceByKey(claimedKey[:])
	if err != nil {
		return nil, "", fmt.Errorf("noiseops: lookup device: %w", err)
	}
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownDevice, hex.EncodeToString(claimedKey[:]))
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   noiseCipherSuite,
		Pattern:       noise.HandshakeKK,
		Initiator:     false,
		StaticKeypair: d.localKeypair(),
		PeerStatic:    claimedKey[:],
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: init: %w", ErrHandshakeFailed, err)
	}

	// <- e, es, ss (msg 1)
	msg1, err := readFramed(conn)
	if err != nil {
		return nil, "", fmt.Errorf("%w: recv msg1: %w", ErrHandshakeFailed, err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, "", fmt.Errorf("%w: read msg1: %w", ErrHandshakeFailed, err)
	}

	// -> e, ee, se (msg 2), finalizes the handshake
	msg2, cs1, cs2, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: write msg2: %w", ErrHandshakeFailed, err)
	}
	if err := writeFramed(conn, msg2); err != nil {
		return nil, "", fmt.Errorf("%w: send msg2: %w", ErrHandshakeFailed, err)
	}

	// As responder: cs1 = initiator->responder (our decryptor),
	// cs2 = responder->initiator (our encryptor).
	return newTransport(conn, cs2, cs1), name, nil
}

// deviceNameFromKey synthesizes "device-<first-4-bytes-of-key-as-hex>".
func deviceNameFromKey(key []byte) string {
	n := 4
	if len(key) < n {
		n = len(key)
	}
	return "device-" + hex.EncodeToString(key[:n])
}
