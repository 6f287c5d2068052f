package session

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/uclip/receiverd/internal/protocol"
)

// ErrTextTooLarge is returned by EnqueueClipboardText when payload exceeds
// MaxTextPayload.
type ErrTextTooLarge struct {
	Size int
}

func (e *ErrTextTooLarge) Error() string {
	return fmt.Sprintf("session: clipboard text of %d bytes exceeds max payload %d", e.Size, MaxTextPayload)
}

// EnqueueClipboardText enqueues a ClipboardSend, applying the send-side
// text guard from §4.5: payloads over MaxTextPayload are rejected before
// enqueue with a reported size.
func EnqueueClipboardText(handle *OutboundHandle, text string) error {
	payload := []byte(text)
	if len(payload) > MaxTextPayload {
		return &ErrTextTooLarge{Size: len(payload)}
	}
	return handle.Enqueue(protocol.KindClipboardSend, payload)
}

// ErrTransferInProgress is returned by SendImage when another outbound
// image transfer is already in flight.
var ErrTransferInProgress = fmt.Errorf("session: transfer already in progress")

// SendImage drives the outbound image chunking protocol from §4.5: one
// ImageSendStart carrying JSON metadata, a sequence of ImageChunk messages
// of at most ImageChunkSize bytes each (emitting ImageTransferProgress
// after every chunk), then an empty ImageSendEnd. At most one call may be
// in flight at a time, process-wide, guarded by imageLock.
func SendImage(handle *OutboundHandle, imageLock *atomic.Bool, events *EventBus, pngBytes []byte, width, height uint32) error {
	if !imageLock.CompareAndSwap(false, true) {
		return ErrTransferInProgress
	}
	defer imageLock.Store(false)

	total := uint64(len(pngBytes))
	meta := imageSendStartPayload{
		Width:      width,
		Height:     height,
		TotalBytes: total,
		MimeType:   "image/png",
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("session: marshal image metadata: %w", err)
	}
	if err := handle.Enqueue(protocol.KindImageSendStart, metaJSON); err != nil {
		return err
	}

	var sent uint64
	for offset := 0; offset < len(pngBytes); offset += ImageChunkSize {
		end := offset + ImageChunkSize
		if end > len(pngBytes) {
			end = len(pngBytes)
		}
		chunk := pngBytes[offset:end]
		if err := handle.Enqueue(protocol.KindImageChunk, chunk); err != nil {
			return err
		}
		sent += uint64(len(chunk))
		events.Emit(Event{Kind: EventImageTransferProgress, BytesTransferred: sent, BytesTotal: total})
	}

	return handle.Enqueue(protocol.KindImageSendEnd, nil)
}
