// Package pubsub implements the topic-based broadcast fabric that carries
// the room, lobby, and game events the Room Manager, Game Coordinators, and
// Bot Players publish and subscribe to. Requests that need a synchronous
// answer (starting or stopping a game or bot, applying an action) are
// direct calls instead.
//
// Delivery is best-effort per subscriber: a message is dropped (and
// counted) for a subscriber whose buffer is full rather than blocking the
// publisher; a subscriber that missed a state_update reconciles by
// re-fetching state on resubscribe. Ordering is strict: messages published
// to the same topic are delivered to every subscriber of that topic in the
// order they were published. Ordering across different topics is not
// guaranteed.
package pubsub

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pidro/roomserver/internal/metrics"
)

// Topic identifies a broadcast channel. The three topic families are
// lobby:updates, room:<code>, and game:<code>.
type Topic string

// LobbyUpdates is the single fixed topic for room-list changes.
const LobbyUpdates Topic = "lobby:updates"

// RoomTopic returns the per-room seating/status topic.
func RoomTopic(code string) Topic { return Topic(fmt.Sprintf("room:%s", code)) }

// GameTopic returns the per-room game-state topic.
func GameTopic(code string) Topic { return Topic(fmt.Sprintf("game:%s", code)) }

// Message is a single published event. Seq is set by the publisher (the
// Game Coordinator owns the monotonic sequence attached to game:<code>
// state_update events); the fabric never rewrites it.
type Message struct {
	Topic   Topic
	Event   string
	Payload any
	Seq     uint64
}

func kindOf(t Topic) string {
	switch {
	case t == LobbyUpdates:
		return "lobby"
	case len(t) >= 5 && t[:5] == "room:":
		return "room"
	case len(t) >= 5 && t[:5] == "game:":
		return "game"
	default:
		return "unknown"
	}
}

// subscriberBuffer is how many undelivered messages a subscriber can have
// queued before new messages for it start being dropped.
const subscriberBuffer = 64

// Subscription is a live subscriber handle. Receive from C; call Close
// when done to release the subscriber slot.
type Subscription struct {
	C <-chan Message

	topic Topic
	id    uint64
	fab   *Fabric
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.fab.unsubscribe(s.topic, s.id)
}

type topicState struct {
	mu   sync.Mutex // held across an entire Publish's fan-out, so per-topic order is exact
	subs map[uint64]chan Message
}

// Fabric is the in-process pubsub broker. The zero value is not usable;
// construct with New.
type Fabric struct {
	mu      sync.Mutex
	topics  map[Topic]*topicState
	nextSub uint64
}

// New returns an empty, ready-to-use Fabric.
func New() *Fabric {
	return &Fabric{topics: make(map[Topic]*topicState)}
}

func (f *Fabric) stateFor(topic Topic) *topicState {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.topics[topic]
	if !ok {
		ts = &topicState{subs: make(map[uint64]chan Message)}
		f.topics[topic] = ts
	}
	return ts
}

// Subscribe opens a new subscription to topic. Topics are public: any
// actor may subscribe to any topic and there is no membership check here;
// the caller (Room Manager, transport layer) is responsible for deciding
// who is allowed to ask.
func (f *Fabric) Subscribe(topic Topic) *Subscription {
	ts := f.stateFor(topic)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	id := atomic.AddUint64(&f.nextSub, 1)
	ch := make(chan Message, subscriberBuffer)
	ts.subs[id] = ch
	metrics.PubsubSubscribers.WithLabelValues(kindOf(topic)).Inc()

	return &Subscription{C: ch, topic: topic, id: id, fab: f}
}

func (f *Fabric) unsubscribe(topic Topic, id uint64) {
	ts := f.stateFor(topic)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ch, ok := ts.subs[id]; ok {
		delete(ts.subs, id)
		close(ch)
		metrics.PubsubSubscribers.WithLabelValues(kindOf(topic)).Dec()
	}
}

// Publish delivers msg to every current subscriber of msg.Topic, in the
// order Publish is called for that topic. A slow subscriber never blocks
// this call or other subscribers; its message is dropped and counted
// instead.
func (f *Fabric) Publish(msg Message) {
	ts := f.stateFor(msg.Topic)
	kind := kindOf(msg.Topic)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	metrics.PubsubMessagesPublished.WithLabelValues(kind).Inc()
	for _, ch := range ts.subs {
		select {
		case ch <- msg:
		default:
			metrics.PubsubMessagesDropped.WithLabelValues(kind).Inc()
		}
	}
}

// SubscriberCount reports the live subscriber count for topic. Exposed
// mainly for tests; production code should prefer the pubsub_subscribers
// metric.
func (f *Fabric) SubscriberCount(topic Topic) int {
	ts := f.stateFor(topic)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.subs)
}
