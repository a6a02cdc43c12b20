// Package router implements the Frame Router (C2): it takes RawFrames
// from the camera (only while in Streaming mode) and dispatches each,
// synchronously, to whichever consumers are currently active, enforcing
// a minimum inter-frame interval and a keep-only-latest drop policy
// (§4.2).
package router

import (
	"sync"
	"time"

	"github.com/tomeksn/fitnessmirror/media"
)

// FrameConsumer is the narrow capability a router consumer needs — just
// "here is a frame, copy what you need before this call returns" (§9's
// design note: split the overloaded callback interface into narrow
// capability sets).
type FrameConsumer interface {
	ConsumeFrame(*media.RawFrame)
}

// FrameConsumerFunc adapts a plain function to FrameConsumer.
type FrameConsumerFunc func(*media.RawFrame)

func (f FrameConsumerFunc) ConsumeFrame(frame *media.RawFrame) { f(frame) }

// DefaultInterval is the 10fps back-pressure floor from §4.2 and §8.
const DefaultInterval = 100 * time.Millisecond

// Router dispatches frames to its registered consumers. It holds no
// frames across calls: a RawFrame it dispatches must not be retained by
// a consumer past ConsumeFrame returning (§3, RawFrame lifecycle).
type Router struct {
	interval time.Duration

	mu        sync.Mutex
	consumers map[string]FrameConsumer
	lastSent  time.Time
}

// New creates a Router with the given minimum dispatch interval. A
// non-positive interval falls back to DefaultInterval.
func New(interval time.Duration) *Router {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Router{interval: interval, consumers: make(map[string]FrameConsumer)}
}

// AddConsumer activates a named consumer. Registering under an existing
// name replaces it.
func (r *Router) AddConsumer(name string, c FrameConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumers[name] = c
}

// RemoveConsumer deactivates a named consumer.
func (r *Router) RemoveConsumer(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.consumers, name)
}

// ConsumerCount reports how many consumers are currently active.
func (r *Router) ConsumerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.consumers)
}

// Dispatch delivers frame to every active consumer if the minimum
// interval has elapsed since the last dispatch; otherwise it drops the
// frame immediately (never queues it — §4.2, §8 frame-rate floor).
// Dispatch is synchronous: it returns only after every consumer's
// ConsumeFrame call has returned, at which point frame is considered
// released by the router.
func (r *Router) Dispatch(frame *media.RawFrame) {
	r.mu.Lock()
	now := time.Now()
	if !r.lastSent.IsZero() && now.Sub(r.lastSent) < r.interval {
		r.mu.Unlock()
		return
	}
	if len(r.consumers) == 0 {
		r.lastSent = now
		r.mu.Unlock()
		return
	}
	r.lastSent = now
	consumers := make([]FrameConsumer, 0, len(r.consumers))
	for _, c := range r.consumers {
		consumers = append(consumers, c)
	}
	r.mu.Unlock()

	for _, c := range consumers {
		c.ConsumeFrame(frame)
	}
}

// Run drains frames from in and dispatches them until in is closed.
// The Pipeline Controller starts this loop once the signaling server is
// up (ServerUp); until a consumer is added, frames are dropped (§4.7).
func (r *Router) Run(in <-chan *media.RawFrame) {
	for frame := range in {
		r.Dispatch(frame)
	}
}
