package eventlog

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/ag3ntum/ag3ntum/pkg/types"
)

// subscriberQueueSize bounds each subscriber's channel; a slow consumer
// can never block the writer or other subscribers (spec §4.5).
const subscriberQueueSize = 256

// Hub is the process-level, per-session fan-out registry. Adapted from
// the teacher's internal/event/bus.go (Bus.Subscribe/Publish), but keyed
// per session rather than one global bus instance — Design Notes §9
// flags "ambient per-process singletons" as something to re-architect,
// and a single global bus mixing every tenant's events is exactly that.
type Hub struct {
	store *Store

	mu       sync.Mutex
	sessions map[string]*sessionHub
}

// NewHub constructs a Hub backed by store for replay.
func NewHub(store *Store) *Hub {
	return &Hub{store: store, sessions: make(map[string]*sessionHub)}
}

type sessionHub struct {
	pubsub *gochannel.GoChannel
	topic  string
}

func (h *Hub) hubFor(sessionID string) *sessionHub {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sh, ok := h.sessions[sessionID]; ok {
		return sh
	}
	sh := &sessionHub{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: subscriberQueueSize, Persistent: false},
			watermill.NopLogger{},
		),
		topic: sessionID,
	}
	h.sessions[sessionID] = sh
	return sh
}

// Publish fans ev out to live subscribers; it does not persist ev, so
// callers run Store.Append first. Publish does not wait for subscribers:
// gochannel hands the message to each subscriber on its own goroutine,
// so a slow subscriber delays only its own delivery.
func (h *Hub) Publish(ctx context.Context, ev types.Event) error {
	sh := h.hubFor(ev.SessionID)
	payload, err := marshalEvent(ev)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return sh.pubsub.Publish(sh.topic, msg)
}

// Subscribe returns a channel that first replays every stored event
// after lastSeen, then switches to the live stream. A short overlap
// window (the replay cutoff is re-checked against the first live
// message's sequence) deduplicates events that were already replayed.
func (h *Hub) Subscribe(ctx context.Context, sessionID string, lastSeen int64) (<-chan types.Event, error) {
	sh := h.hubFor(sessionID)
	live, err := sh.pubsub.Subscribe(ctx, sh.topic)
	if err != nil {
		return nil, err
	}

	replay, err := h.store.Range(sessionID, lastSeen)
	if err != nil {
		return nil, err
	}

	out := make(chan types.Event, subscriberQueueSize)
	go func() {
		defer close(out)
		highWater := lastSeen
		for _, ev := range replay {
			select {
			case out <- ev:
				highWater = ev.Sequence
			case <-ctx.Done():
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-live:
				if !ok {
					return
				}
				ev, err := unmarshalEvent(msg.Payload)
				msg.Ack()
				if err != nil {
					continue
				}
				// Overlap dedup: skip anything already delivered by replay.
				if ev.Sequence <= highWater {
					continue
				}
				select {
				case out <- ev:
					highWater = ev.Sequence
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
