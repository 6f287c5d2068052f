package session

import "github.com/uclip/receiverd/internal/protocol"

// Resource bounds (§5).
const (
	// MaxNoiseFrame mirrors protocol.MaxNoiseFrame; kept as a local name
	// since §5 refers to it directly.
	MaxNoiseFrame = protocol.MaxNoiseFrame
	// MaxTextPayload is the largest ClipboardSend payload the front end may
	// enqueue.
	MaxTextPayload = protocol.MaxPayload
	// ImageChunkSize is the implementation-chosen chunk size used when
	// splitting an outbound image, comfortably under MaxTextPayload.
	ImageChunkSize = 32 * 1024
	// MaxImageSize bounds both declared and observed cumulative image bytes.
	MaxImageSize = 16 * 1024 * 1024
)

// ImageReceive is the in-progress inbound image reassembly buffer. At most
// one is active per session.
type ImageReceive struct {
	Width              uint32
	Height             uint32
	DeclaredTotalBytes uint64
	Buffer             []byte
}

// imageSendStartPayload is the JSON metadata carried by ImageSendStart.
type imageSendStartPayload struct {
	Width      uint32 `json:"width"`
	Height     uint32 `json:"height"`
	TotalBytes uint64 `json:"totalBytes"`
	MimeType   string `json:"mimeType"`
}

// deviceInfoPayload is the JSON metadata carried by DeviceInfo.
type deviceInfoPayload struct {
	Name string `json:"name"`
}

// Phase is the per-session state machine position (§4.5).
type Phase int

const (
	PhaseGreeting Phase = iota
	PhaseIdle
	PhaseImageReceiving
)

func (p Phase) String() string {
	switch p {
	case PhaseGreeting:
		return "Greeting"
	case PhaseIdle:
		return "Idle"
	case PhaseImageReceiving:
		return "ImageReceiving"
	default:
		return "Unknown"
	}
}
