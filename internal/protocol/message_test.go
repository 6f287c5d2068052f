package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		kind    MessageKind
		payload []byte
	}{
		{KindPing, nil},
		{KindClipboardSend, []byte("hello world")},
		{KindImageChunk, bytes.Repeat([]byte{0xAB}, 4096)},
	}

	for _, c := range cases {
		encoded := Encode(c.kind, c.payload)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%s): %v", c.kind, err)
		}
		if decoded.Kind != c.kind {
			t.Errorf("kind mismatch: got %s want %s", decoded.Kind, c.kind)
		}
		if !bytes.Equal(decoded.Payload, c.payload) && !(len(decoded.Payload) == 0 && len(c.payload) == 0) {
			t.Errorf("payload mismatch for %s", c.kind)
		}
	}
}

func TestClipboardSendEncodingMatchesWireVector(t *testing.T) {
	encoded := Encode(KindClipboardSend, []byte("hello world"))
	want := []byte{0x01, 0x00, 0x00, 0x00, 0x0B}
	want = append(want, []byte("hello world")...)
	if !bytes.Equal(encoded, want) {
		t.Fatalf("encoding mismatch:\n got %x\nwant %x", encoded, want)
	}
}

func TestPingEncodingIsFiveBytes(t *testing.T) {
	encoded := Encode(KindPing, nil)
	want := []byte{0x03, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(encoded, want) {
		t.Fatalf("encoding mismatch: got %x want %x", encoded, want)
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x00})
	if err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte{0xFF, 0x00, 0x00, 0x00, 0x00})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestDecodeShortPayload(t *testing.T) {
	// Claims 10 bytes of payload but supplies none.
	_, err := Decode([]byte{0x01, 0x00, 0x00, 0x00, 0x0A})
	if err != ErrShortPayload {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	// Decode only consumes HeaderSize+length; extra trailing bytes are the
	// caller's concern (there are none in practice since frames are sliced
	// by the transport before Decode is called).
	buf := Encode(KindPing, nil)
	buf = append(buf, 0xFF, 0xFF)
	msg, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Kind != KindPing || len(msg.Payload) != 0 {
		t.Fatalf("unexpected decode result: %+v", msg)
	}
}
