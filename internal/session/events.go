// Package session implements the post-handshake SessionLoop: the
// Greeting/Idle/ImageReceiving state machine that multiplexes inbound
// decryption, outbound enqueuing, keepalive, and image reassembly.
package session

// EventKind tags the typed events the loop emits for UI consumption.
type EventKind string

const (
	EventServerStarted         EventKind = "ServerStarted"
	EventDeviceConnected       EventKind = "DeviceConnected"
	EventDeviceDisconnected    EventKind = "DeviceDisconnected"
	EventClipboardReceived     EventKind = "ClipboardReceived"
	EventClipboardSent         EventKind = "ClipboardSent"
	EventDevicePaired          EventKind = "DevicePaired"
	EventHandshakeFailed       EventKind = "HandshakeFailed"
	EventImageTransferProgress EventKind = "ImageTransferProgress"
	EventImageReceived         EventKind = "ImageReceived"
	EventImageSent             EventKind = "ImageSent"
	EventImageTransferFailed   EventKind = "ImageTransferFailed"
)

// Event is one typed occurrence broadcast to subscribers. Only the fields
// relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind EventKind

	Port        int    // ServerStarted
	PairingCode string // ServerStarted

	Name string // DeviceConnected, DeviceDisconnected, DevicePaired

	Chars int // ClipboardReceived, ClipboardSent — see OPEN QUESTIONS decision on ACK char count

	Addr   string // HandshakeFailed
	Reason string // HandshakeFailed, ImageTransferFailed

	BytesTransferred uint64 // ImageTransferProgress
	BytesTotal       uint64 // ImageTransferProgress

	Width  uint32 // ImageReceived
	Height uint32 // ImageReceived
	Bytes  uint64 // ImageReceived, ImageSent
}

const eventBufferSize = 64

// EventBus is a fan-out broadcaster for Event values. Emit never blocks:
// a subscriber that falls behind silently misses events rather than
// stalling the session loop, mirroring the "ignore send errors, no active
// receivers" behavior of a broadcast channel with no listeners.
type EventBus struct {
	subscribe   chan chan Event
	unsubscribe chan chan Event
	publish     chan Event
	done        chan struct{}
}

// NewEventBus starts the bus's dispatch goroutine and returns it ready to
// use. Callers must not call Close more than once.
func NewEventBus() *EventBus {
	b := &EventBus{
		subscribe:   make(chan chan Event),
		unsubscribe: make(chan chan Event),
		publish:     make(chan Event),
		done:        make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *EventBus) run() {
	subscribers := make(map[chan Event]struct{})
	for {
		select {
		case ch := <-b.subscribe:
			subscribers[ch] = struct{}{}
		case ch := <-b.unsubscribe:
			delete(subscribers, ch)
		case evt := <-b.publish:
			for ch := range subscribers {
				select {
				case ch <- evt:
				default:
					// Subscriber is behind; drop rather than block the loop.
				}
			}
		case <-b.done:
			return
		}
	}
}

// Emit broadcasts evt to all current subscribers, dropping it for any
// subscriber whose buffer is full.
func (b *EventBus) Emit(evt Event) {
	select {
	case b.publish <- evt:
	case <-b.done:
	}
}

// Subscribe returns a new receive channel that observes future events.
// Call Unsubscribe with the same channel to stop receiving.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, eventBufferSize)
	select {
	case b.subscribe <- ch:
	case <-b.done:
	}
	return ch
}

// Unsubscribe stops ch from receiving further events.
func (b *EventBus) Unsubscribe(ch chan Event) {
	select {
	case b.unsubscribe <- ch:
	case <-b.done:
	}
}

// Close stops the bus's dispatch goroutine.
func (b *EventBus) Close() {
	close(b.done)
}
