package noiseops

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/flynn/noise"
	"github.com/valyala/bytebufferpool"

	"github.com/uclip/receiverd/internal/protocol"
)

// noiseCipherSuite is Noise_*_25519_ChaChaPoly_SHA256 for both handshake
// patterns used by this protocol (§4.3).
var noiseCipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

var (
	ErrFrameTooLarge = errors.New("noiseops: frame exceeds maximum Noise frame size")
	ErrClosed        = errors.New("noiseops: transport closed")
)

var scratchPool bytebufferpool.Pool

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// writeFramed writes a u16 big-endian length prefix followed by data. Used
// both for handshake messages and for post-handshake ciphertext frames,
// since both share the same on-wire shape (§6).
func writeFramed(w io.Writer, data []byte) error {
	if len(data) > protocol.MaxNoiseFrame {
		return ErrFrameTooLarge
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readFramed reads a u16-length-prefixed frame, rejecting anything over the
// maximum Noise frame size.
func readFramed(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint16(lenBuf[:])
	if int(length) > protocol.MaxNoiseFrame {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Transport owns the byte stream plus the completed Noise transport state.
// Per §4.4, both directions are strictly ordered and framed one-at-a-time;
// writes are serialized because the underlying CipherState uses sequential
// per-direction nonces.
type Transport struct {
	conn io.ReadWriteCloser

	encryptor *noise.CipherState
	decryptor *noise.CipherState

	writeMu sync.Mutex
	readMu  sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newTransport(conn io.ReadWriteCloser, encryptor, decryptor *noise.CipherState) *Transport {
	return &Transport{conn: conn, encryptor: encryptor, decryptor: decryptor}
}

// Send encrypts plaintext and writes one length-prefixed ciphertext frame.
func (t *Transport) Send(plaintext []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	scratch := scratchPool.Get()
	defer func() {
		wipe(scratch.B)
		scratchPool.Put(scratch)
	}()
	scratch.B = scratch.B[:0]

	ciphertext, err := t.encryptor.Encrypt(scratch.B, nil, plaintext)
	if err != nil {
		return fmt.Errorf("noiseops: encrypt: %w", err)
	}
	scratch.B = ciphertext
	return writeFramed(t.conn, ciphertext)
}

// Recv reads one length-prefixed ciphertext frame and decrypts it. Decrypt
// failures are fatal for the session: no nonce rewind, no retry.
func (t *Transport) Recv() ([]byte, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	ciphertext, err := readFramed(t.conn)
	if err != nil {
		return nil, err
	}

	plaintext, err := t.decryptor.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("noiseops: decrypt: %w", err)
	}
	return plaintext, nil
}

// SendMessage encodes msg via the framed-message codec and sends it.
func (t *Transport) SendMessage(kind protocol.MessageKind, payload []byte) error {
	return t.Send(protocol.Encode(kind, payload))
}

// RecvMessage receives one frame and decodes it via the framed-message codec.
func (t *Transport) RecvMessage() (protocol.Message, error) {
	plaintext, err := t.Recv()
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.Decode(plaintext)
}

// Close closes the underlying stream. Safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
