// Package protocol implements the in-session framed message codec: a 5-byte
// [kind|length] header followed by a payload, carried as the plaintext
// inside each Noise transport frame.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MessageKind tags the payload of a framed message.
type MessageKind byte

const (
	KindClipboardSend  MessageKind = 0x01
	KindClipboardAck   MessageKind = 0x02
	KindPing           MessageKind = 0x03
	KindPong           MessageKind = 0x04
	KindDeviceInfo     MessageKind = 0x05
	KindError          MessageKind = 0x06
	KindImageSendStart MessageKind = 0x07
	KindImageChunk     MessageKind = 0x08
	KindImageSendEnd   MessageKind = 0x09
	KindImageAck       MessageKind = 0x0A
)

func (k MessageKind) String() string {
	switch k {
	case KindClipboardSend:
		return "ClipboardSend"
	case KindClipboardAck:
		return "ClipboardAck"
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	case KindDeviceInfo:
		return "DeviceInfo"
	case KindError:
		return "Error"
	case KindImageSendStart:
		return "ImageSendStart"
	case KindImageChunk:
		return "ImageChunk"
	case KindImageSendEnd:
		return "ImageSendEnd"
	case KindImageAck:
		return "ImageAck"
	default:
		return fmt.Sprintf("MessageKind(0x%02x)", byte(k))
	}
}

// IsKnown reports whether k is one of the enumerated message kinds.
func (k MessageKind) IsKnown() bool {
	switch k {
	case KindClipboardSend, KindClipboardAck, KindPing, KindPong, KindDeviceInfo,
		KindError, KindImageSendStart, KindImageChunk, KindImageSendEnd, KindImageAck:
		return true
	default:
		return false
	}
}

const (
	// HeaderSize is the fixed [kind(1)|length(4)] header.
	HeaderSize = 5

	// MaxNoiseFrame is the outer Noise ciphertext frame cap (§5).
	MaxNoiseFrame = 65535
	// noiseTagSize is the ChaCha20-Poly1305 AEAD tag length.
	noiseTagSize = 16
	// MaxPayload is the largest payload that fits one framed message inside
	// one Noise frame: MaxNoiseFrame - tag - header.
	MaxPayload = MaxNoiseFrame - noiseTagSize - HeaderSize
)

var (
	ErrTruncated    = errors.New("protocol: truncated header")
	ErrUnknownKind  = errors.New("protocol: unknown message kind")
	ErrShortPayload = errors.New("protocol: short payload")
)

// Message is one in-session framed message.
type Message struct {
	Kind    MessageKind
	Payload []byte
}

// Encode is total: any (kind, payload) pair serializes without error.
func Encode(kind MessageKind, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(kind)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf
}

// Decode parses a single framed message from buf. buf must contain exactly
// one message's worth of bytes (callers slice frames by the Noise transport
// length prefix before calling Decode).
func Decode(buf []byte) (Message, error) {
	if len(buf) < HeaderSize {
		return Message{}, ErrTruncated
	}

	kind := MessageKind(buf[0])
	if !kind.IsKnown() {
		return Message{}, fmt.Errorf("%w: 0x%02x", ErrUnknownKind, buf[0])
	}

	length := binary.BigEndian.Uint32(buf[1:5])
	if uint64(len(buf)-HeaderSize) < uint64(length) {
		return Message{}, ErrShortPayload
	}

	payload := make([]byte, length)
	copy(payload, buf[HeaderSize:HeaderSize+int(length)])
	return Message{Kind: kind, Payload: payload}, nil
}
