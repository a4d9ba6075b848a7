// Package broadcast implements the per-room event bus: one publisher (the
// room engine), N subscribers (player connections), bounded, and the
// publisher never blocks on a slow subscriber.
package broadcast

import "sync"

// EventKind enumerates the outbound wire kinds a room can publish.
type EventKind string

const (
	EventUserInfo    EventKind = "user_info"
	EventRoomList    EventKind = "room_list"
	EventStateUpdate EventKind = "state_update"
	EventNotification EventKind = "notification"
	EventDescription EventKind = "description"
	EventVote        EventKind = "vote"
	EventChat        EventKind = "chat"
	EventError       EventKind = "error"
)

// Event is one message published on a room's bus. Recipient is empty for a
// broadcast to every subscriber, or set to target exactly one player.
type Event struct {
	Kind      EventKind
	Recipient string // player id; empty means "everyone"
	Payload   interface{}
}

const subscriberBuffer = 32

// Subscription is a per-connection handle receiving one room's event stream.
type Subscription struct {
	PlayerID string
	ch       chan Event
	bus      *Bus
	closed   bool
	mu       sync.Mutex
}

// C returns the channel to range over; it is closed when the bus closes the
// subscription (end-of-stream, or because the subscriber fell behind).
func (s *Subscription) C() <-chan Event { return s.ch }

func (s *Subscription) deliver(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Unsubscribe removes this subscription from its bus. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s)
}

// Bus is one room's fan-out channel. The room engine is the sole publisher.
type Bus struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Bus) Subscribe(playerID string) *Subscription {
	sub := &Subscription{PlayerID: playerID, ch: make(chan Event, subscriberBuffer), bus: b}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Publish fans e out to every subscriber (or just e.Recipient, if set).
// Never blocks: a subscriber whose buffer is full is dropped and closed.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	targets := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		if e.Recipient == "" || sub.PlayerID == e.Recipient {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		if !sub.deliver(e) {
			b.remove(sub)
		}
	}
}

// Close ends the bus: every subscriber's channel is closed (end-of-stream)
// and no further Publish calls deliver anything.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
}

// SubscriberCount reports the current number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
