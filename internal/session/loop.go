package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/uclip/receiverd/internal/clipboard"
	"github.com/uclip/receiverd/internal/protocol"
)

// keepaliveInterval is the idle time after which the loop sends a Ping; the
// timer resets whenever any outbound frame is sent (§4.5).
const keepaliveInterval = 30 * time.Second

// Transport is the subset of noiseops.Transport the loop depends on. Kept
// as an interface so tests can drive the state machine without a real
// Noise handshake.
type Transport interface {
	SendMessage(kind protocol.MessageKind, payload []byte) error
	RecvMessage() (protocol.Message, error)
	Close() error
}

// ErrNoActiveSession is returned by OutboundHandle.Enqueue when looked up
// between sessions (§9).
var ErrNoActiveSession = errors.New("session: no active session")

// OutboundHandle is the shared, swappable reference to the current
// session's OutboundQueue. Producers snapshot it under a read lock;
// Loop.Run installs/clears it under a write lock at session
// boundaries (§9).
type OutboundHandle struct {
	mu    sync.RWMutex
	queue *OutboundQueue
}

// Enqueue looks up the current session's queue and enqueues onto it,
// failing with ErrNoActiveSession if no session is active.
func (h *OutboundHandle) Enqueue(kind protocol.MessageKind, payload []byte) error {
	h.mu.RLock()
	q := h.queue
	h.mu.RUnlock()
	if q == nil {
		return ErrNoActiveSession
	}
	return q.Enqueue(kind, payload)
}

func (h *OutboundHandle) install(q *OutboundQueue) {
	h.mu.Lock()
	h.queue = q
	h.mu.Unlock()
}

func (h *OutboundHandle) clear() {
	h.mu.Lock()
	h.queue = nil
	h.mu.Unlock()
}

// ConnectedPeer holds the symbolic name of the single currently-connected
// peer, if any (§3).
type ConnectedPeer struct {
	mu   sync.RWMutex
	name string
}

func (c *ConnectedPeer) set(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

func (c *ConnectedPeer) clear() {
	c.mu.Lock()
	c.name = ""
	c.mu.Unlock()
}

// Name returns the connected peer's symbolic name, or "" if none.
func (c *ConnectedPeer) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Loop owns one session's transport from handshake completion to
// termination (§4.5).
type Loop struct {
	transport Transport
	clip      clipboard.Clipboard
	events    *EventBus
	peerName  string

	handle *OutboundHandle
	peer   *ConnectedPeer

	queue *OutboundQueue

	phase         Phase
	imageRecv     *ImageReceive
	lastSentBytes uint64

	// imageLock is the process-wide flag SendImage uses to allow at most
	// one outbound image transfer at a time (§4.5 step 4). The loop keeps
	// the reference but neither reads nor sets it.
	imageLock *atomic.Bool
}

// NewLoop constructs a Loop for one accepted, handshaken connection. handle
// and peer are the shared AppState-style slots installed/cleared at session
// boundaries; imageLock is the process-wide "outbound transfer in
// progress" flag (§9).
func NewLoop(transport Transport, clip clipboard.Clipboard, events *EventBus, peerName string, handle *OutboundHandle, peer *ConnectedPeer, imageLock *atomic.Bool) *Loop {
	return &Loop{
		transport: transport,
		clip:      clip,
		events:    events,
		peerName:  peerName,
		handle:    handle,
		peer:      peer,
		queue:     NewOutboundQueue(),
		phase:     PhaseGreeting,
		imageLock: imageLock,
	}
}

// Run drives the session to completion: greeting, then the Idle/
// ImageReceiving event loop, until the peer disconnects, an unrecoverable
// error occurs, or ctx is cancelled. It always performs teardown before
// returning (§4.5, §7).
func (l *Loop) Run(ctx context.Context) error {
	l.peer.set(l.peerName)
	l.handle.install(l.queue)
	l.events.Emit(Event{Kind: EventDeviceConnected, Name: l.peerName})

	defer func() {
		l.handle.clear()
		l.peer.clear()
		l.queue.Close()
		l.transport.Close()
		l.events.Emit(Event{Kind: EventDeviceDisconnected, Name: l.peerName})
	}()

	if err := l.greet(); err != nil {
		return err
	}
	l.phase = PhaseIdle

	return l.eventLoop(ctx)
}

func (l *Loop) greet() error {
	payload, err := json.Marshal(deviceInfoPayload{Name: l.peerName})
	if err != nil {
		return fmt.Errorf("session: marshal greeting: %w", err)
	}
	if err := l.send(protocol.KindDeviceInfo, payload); err != nil {
		return fmt.Errorf("session: send greeting: %w", err)
	}

	msg, err := l.transport.RecvMessage()
	if err != nil {
		return fmt.Errorf("session: recv greeting: %w", err)
	}
	if msg.Kind != protocol.KindDeviceInfo {
		log.Warn().Str("peer", l.peerName).Str("kind", msg.Kind.String()).Msg("[session] unexpected first message after handshake")
	}
	return nil
}

func (l *Loop) send(kind protocol.MessageKind, payload []byte) error {
	if err := l.transport.SendMessage(kind, payload); err != nil {
		return err
	}
	return nil
}

func (l *Loop) eventLoop(ctx context.Context) error {
	timer := time.NewTimer(keepaliveInterval)
	defer timer.Stop()

	inbound := make(chan protocol.Message)
	inboundErr := make(chan error, 1)
	go func() {
		for {
			msg, err := l.transport.RecvMessage()
			if err != nil {
				inboundErr <- err
				return
			}
			inbound <- msg
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-inboundErr:
			return err

		case msg := <-inbound:
			if err := l.dispatchInbound(msg); err != nil {
				return err
			}
			resetTimer(timer)

		case item, ok := <-l.queue.C():
			if !ok {
				return nil
			}
			if item.kind == protocol.KindImageSendStart {
				l.cacheLastSentImageBytes(item.payload)
			}
			if err := l.send(item.kind, item.payload); err != nil {
				return err
			}
			resetTimer(timer)

		case <-timer.C:
			if err := l.send(protocol.KindPing, nil); err != nil {
				return err
			}
			timer.Reset(keepaliveInterval)
		}
	}
}

func resetTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(keepaliveInterval)
}

func (l *Loop) cacheLastSentImageBytes(payload []byte) {
	var meta imageSendStartPayload
	if err := json.Unmarshal(payload, &meta); err != nil {
		return
	}
	l.lastSentBytes = meta.TotalBytes
}

// dispatchInbound implements the §4.5 dispatch table.
func (l *Loop) dispatchInbound(msg protocol.Message) error {
	switch msg.Kind {
	case protocol.KindClipboardSend:
		return l.handleClipboardSend(msg.Payload)
	case protocol.KindClipboardAck:
		l.events.Emit(Event{Kind: EventClipboardSent, Chars: 0})
		return nil
	case protocol.KindPing:
		return l.send(protocol.KindPong, nil)
	case protocol.KindPong:
		return nil
	case protocol.KindError:
		return l.handleError(msg.Payload)
	case protocol.KindImageSendStart:
		return l.handleImageSendStart(msg.Payload)
	case protocol.KindImageChunk:
		return l.handleImageChunk(msg.Payload)
	case protocol.KindImageSendEnd:
		return l.handleImageSendEnd()
	case protocol.KindImageAck:
		bytesSent := l.lastSentBytes
		l.lastSentBytes = 0
		l.events.Emit(Event{Kind: EventImageSent, Bytes: bytesSent})
		return nil
	case protocol.KindDeviceInfo:
		log.Info().Str("peer", l.peerName).Msg("[session] received DeviceInfo after greeting")
		return nil
	default:
		return fmt.Errorf("session: unrecognized message kind 0x%02x", byte(msg.Kind))
	}
}

func (l *Loop) handleClipboardSend(payload []byte) error {
	if !utf8.Valid(payload) {
		return fmt.Errorf("session: clipboard payload is not valid utf-8")
	}
	text := string(payload)
	if err := l.clip.SetText(text); err != nil {
		return l.send(protocol.KindError, []byte("clipboard error: "+err.Error()))
	}
	l.events.Emit(Event{Kind: EventClipboardReceived, Chars: utf8.RuneCountInString(text)})
	return l.send(protocol.KindClipboardAck, nil)
}

func (l *Loop) handleError(payload []byte) error {
	if l.phase == PhaseImageReceiving {
		reason := string(payload)
		l.imageRecv = nil
		l.phase = PhaseIdle
		l.events.Emit(Event{Kind: EventImageTransferFailed, Reason: reason})
		return nil
	}
	log.Info().Str("peer", l.peerName).Str("payload", string(payload)).Msg("[session] peer reported error")
	return nil
}

func (l *Loop) handleImageSendStart(payload []byte) error {
	if l.phase == PhaseImageReceiving {
		return l.send(protocol.KindError, []byte("transfer already in progress"))
	}

	var meta imageSendStartPayload
	if err := json.Unmarshal(payload, &meta); err != nil {
		return fmt.Errorf("session: parse ImageSendStart metadata: %w", err)
	}
	if meta.TotalBytes > MaxImageSize {
		return l.send(protocol.KindError, []byte("image too large"))
	}

	l.imageRecv = &ImageReceive{
		Width:              meta.Width,
		Height:             meta.Height,
		DeclaredTotalBytes: meta.TotalBytes,
		Buffer:             make([]byte, 0, meta.TotalBytes),
	}
	l.phase = PhaseImageReceiving
	return nil
}

func (l *Loop) handleImageChunk(payload []byte) error {
	if l.phase != PhaseImageReceiving || l.imageRecv == nil {
		return l.send(protocol.KindError, []byte("no active image transfer"))
	}

	if uint64(len(l.imageRecv.Buffer)+len(payload)) > MaxImageSize {
		l.imageRecv = nil
		l.phase = PhaseIdle
		if err := l.send(protocol.KindError, []byte("image data exceeds max size")); err != nil {
			return err
		}
		l.events.Emit(Event{Kind: EventImageTransferFailed, Reason: "image data exceeds max size"})
		return nil
	}

	l.imageRecv.Buffer = append(l.imageRecv.Buffer, payload...)
	l.events.Emit(Event{
		Kind:             EventImageTransferProgress,
		BytesTransferred: uint64(len(l.imageRecv.Buffer)),
		BytesTotal:       l.imageRecv.DeclaredTotalBytes,
	})
	return nil
}

func (l *Loop) handleImageSendEnd() error {
	if l.phase != PhaseImageReceiving || l.imageRecv == nil {
		return l.send(protocol.KindError, []byte("no active image transfer"))
	}

	recv := l.imageRecv
	l.imageRecv = nil
	l.phase = PhaseIdle

	if err := l.clip.SetImage(recv.Buffer); err != nil {
		if sendErr := l.send(protocol.KindError, []byte("clipboard error: "+err.Error())); sendErr != nil {
			return sendErr
		}
		l.events.Emit(Event{Kind: EventImageTransferFailed, Reason: err.Error()})
		return nil
	}

	if err := l.send(protocol.KindImageAck, nil); err != nil {
		return err
	}
	l.events.Emit(Event{
		Kind:   EventImageReceived,
		Width:  recv.Width,
		Height: recv.Height,
		Bytes:  uint64(len(recv.Buffer)),
	})
	return nil
}
