package p2p

import (
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

// StreamDispatcher sits between the libp2p stream handlers and application
// components: it validates an incoming frame against its stream's
// configured size limit and the rate limiter's per-stream limit, then
// either invokes the stream's
// registered handler directly or, if none is set, forwards the message
// onto the shared Messages channel for a component to pull at its own
// pace.
type StreamDispatcher struct {
	registry    StreamRegistry
	rateLimiter *RateLimiter
	messages    chan IncomingMessage

	mu        sync.RWMutex
	callbacks []StreamRegistrationCallback
}

// NewStreamDispatcher builds a dispatcher over registry, applying
// rateLimiter (if non-nil) to every frame and falling back to messages
// when a stream has no directly registered handler.
func NewStreamDispatcher(registry StreamRegistry, rateLimiter *RateLimiter, messages chan IncomingMessage) *StreamDispatcher {
	return &StreamDispatcher{
		registry:    registry,
		rateLimiter: rateLimiter,
		messages:    messages,
	}
}

// Registry returns the underlying stream registry.
func (d *StreamDispatcher) Registry() StreamRegistry {
	return d.registry
}

// Dispatch validates and routes one frame received from peerID on
// streamName, returning a response to write back on the same stream (or
// nil for a fire-and-forget message). A returned error means the caller's
// stream is torn down without a response.
func (d *StreamDispatcher) Dispatch(peerID peer.ID, streamName string, data []byte) ([]byte, error) {
	cfg := d.registry.Get(streamName)
	if cfg != nil && cfg.MaxMessageSize > 0 && len(data) > cfg.MaxMessageSize {
		return nil, fmt.Errorf("p2p: message too large for stream %s: %d > %d", streamName, len(data), cfg.MaxMessageSize)
	}

	if d.rateLimiter != nil {
		if !d.rateLimiter.Allow(peerID, streamName, len(data)) {
			return nil, fmt.Errorf("p2p: rate limit exceeded for stream %s from peer %s", streamName, shortPeerID(peerID))
		}
	}

	if handler := d.registry.GetHandler(streamName); handler != nil {
		return handler(peerID, data)
	}

	msg := IncomingMessage{PeerID: peerID, StreamName: streamName, Data: data}
	select {
	case d.messages <- msg:
		return nil, nil
	default:
		return nil, fmt.Errorf("p2p: message queue full, dropping frame on stream %s from peer %s", streamName, shortPeerID(peerID))
	}
}

func shortPeerID(id peer.ID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// StreamRegistrationCallback is invoked when a stream is registered or
// unregistered, so the network layer can (re)attach or detach its libp2p
// handler accordingly.
type StreamRegistrationCallback func(name string, registered bool)

// AddCallback registers cb to be invoked on future registration changes
// made through RegisterStreamWithCallback/UnregisterStreamWithCallback.
func (d *StreamDispatcher) AddCallback(cb StreamRegistrationCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks = append(d.callbacks, cb)
}

// RegisterStreamWithCallback registers cfg and notifies callbacks on success.
func (d *StreamDispatcher) RegisterStreamWithCallback(cfg StreamConfig) error {
	if err := d.registry.Register(cfg); err != nil {
		return err
	}
	d.notify(cfg.Name, true)
	return nil
}

// UnregisterStreamWithCallback unregisters name and notifies callbacks on success.
func (d *StreamDispatcher) UnregisterStreamWithCallback(name string) error {
	if err := d.registry.Unregister(name); err != nil {
		return err
	}
	d.notify(name, false)
	return nil
}

func (d *StreamDispatcher) notify(name string, registered bool) {
	d.mu.RLock()
	callbacks := make([]StreamRegistrationCallback, len(d.callbacks))
	copy(callbacks, d.callbacks)
	d.mu.RUnlock()

	for _, cb := range callbacks {
		cb(name, registered)
	}
}
