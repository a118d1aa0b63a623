package gameserver

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/arena/internal/notify"
)

// DefaultStreamBuffer is the per-stream buffer used when none is configured.
const DefaultStreamBuffer = 64

type eventSub struct {
	ch chan *structpb.Struct
}

// EventHub is a Notifier that fans notifications out to the live event streams
// of a participant and then forwards them to the next Notifier, if any.
// A stream whose buffer is full misses the event; the others are unaffected.
type EventHub struct {
	next   Notifier
	buffer int
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]map[*eventSub]struct{}
}

// NewEventHub creates an EventHub forwarding to next. A nil next only feeds
// the streams.
//
// Postcondition: Returns a hub with no subscribers.
func NewEventHub(next Notifier, buffer int, logger *zap.Logger) *EventHub {
	if buffer < 1 {
		buffer = DefaultStreamBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHub{
		next:   next,
		buffer: buffer,
		logger: logger,
		subs:   make(map[string]map[*eventSub]struct{}),
	}
}

// Notify implements Notifier.
//
// Postcondition: Returns the error of the next Notifier only.
func (h *EventHub) Notify(ctx context.Context, participantID, key string, params *structpb.Struct) error {
	env := notify.Envelope(key, params)
	h.mu.Lock()
	for sub := range h.subs[participantID] {
		select {
		case sub.ch <- env:
		default:
			h.logger.Warn("event stream full, dropping event",
				zap.String("participant", participantID),
				zap.String("event", key),
			)
		}
	}
	h.mu.Unlock()
	if h.next == nil {
		return nil
	}
	return h.next.Notify(ctx, participantID, key, params)
}

// Subscribe opens a stream of envelopes for participantID. The returned
// cancel func closes the channel; later calls are no-ops.
func (h *EventHub) Subscribe(participantID string) (<-chan *structpb.Struct, func()) {
	sub := &eventSub{ch: make(chan *structpb.Struct, h.buffer)}
	h.mu.Lock()
	set, ok := h.subs[participantID]
	if !ok {
		set = make(map[*eventSub]struct{})
		h.subs[participantID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[participantID], sub)
			if len(h.subs[participantID]) == 0 {
				delete(h.subs, participantID)
			}
			close(sub.ch)
		})
	}
}

// Subscribers returns the number of live streams of participantID.
func (h *EventHub) Subscribers(participantID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[participantID])
}
