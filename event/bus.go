package event

import "sync"

// Appender persists an event and returns its allocated seq.
type Appender interface {
	AppendEvent(Event) (int64, error)
}

// Subscription is one live tail of the event stream. Events arrive in
// seq order. When the subscriber cannot keep up and its buffer fills,
// the subscription is dropped: C is closed and Dropped() reports true,
// and the consumer must reconnect and backfill from its last-seen seq
// via the repository.
type Subscription struct {
	C chan Event

	mu         sync.Mutex
	dropped    bool
	closed     bool
	publicOnly bool
}

// Dropped reports whether the bus evicted this subscriber for falling
// behind.
func (s *Subscription) Dropped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) close(dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.dropped = dropped
	close(s.C)
}

// Sink appends every event to persistent storage, then fans it out to
// all live subscribers. The persist-then-broadcast order guarantees a
// subscriber can always backfill any event it missed.
type Sink struct {
	store Appender

	// appendMu serialises persist+broadcast so subscribers observe
	// events strictly in seq order even with concurrent producers.
	appendMu sync.Mutex

	mu   sync.Mutex
	subs []*Subscription
}

func NewSink(store Appender) *Sink {
	return &Sink{store: store}
}

// Append persists e (allocating its seq) and broadcasts it. A slow
// subscriber never blocks the producer.
func (s *Sink) Append(e Event) (int64, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	seq, err := s.store.AppendEvent(e)
	if err != nil {
		return 0, err
	}
	e.Seq = seq

	s.mu.Lock()
	subs := make([]*Subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.publicOnly && !e.PublicSafe {
			continue
		}
		select {
		case sub.C <- e:
		default:
			s.Unsubscribe(sub)
			sub.close(true)
		}
	}
	return seq, nil
}

// Subscribe registers a live subscriber with the given buffer size.
// Backfill of historical events is the caller's job (EventsAfter on the
// repository) before or after attaching; the seq on each event lets the
// consumer de-duplicate the seam.
func (s *Sink) Subscribe(buffer int) *Subscription {
	return s.subscribe(buffer, false)
}

// SubscribePublic is Subscribe restricted to public-safe events, for
// consumers feeding sanitised external surfaces.
func (s *Sink) SubscribePublic(buffer int) *Subscription {
	return s.subscribe(buffer, true)
}

func (s *Sink) subscribe(buffer int, publicOnly bool) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &Subscription{C: make(chan Event, buffer), publicOnly: publicOnly}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub
}

// Unsubscribe detaches a subscriber. Safe to call twice.
func (s *Sink) Unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.subs {
		if x == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// Close drops all subscribers, closing their channels.
func (s *Sink) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.close(false)
	}
}
