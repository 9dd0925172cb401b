package syncobj

import (
	"log"
	"sync"

	"syncboard/pkg/interfaces"
)

// subscriber is one participant attached to a session's objects.
// ARCHITECTURAL DISCOVERY: Single pump goroutine per subscriber keeps per-name
// ordering while a slow or failing client never blocks its siblings
type subscriber struct {
	participantID string
	queue         chan interface{}
	done          chan struct{}
	closeOnce     sync.Once

	// needsResync is set when a delivery was dropped because the queue was
	// full; the next delivery is replaced by a full snapshot. Guarded by the
	// owning session's mutex.
	needsResync bool
}

func newSubscriber(participantID string, queueSize int, transport interfaces.Transport) *subscriber {
	s := &subscriber{
		participantID: participantID,
		queue:         make(chan interface{}, queueSize),
		done:          make(chan struct{}),
	}

	go s.pump(transport)
	activeSubscribers.Inc()

	return s
}

// offer enqueues without blocking and reports whether the message was accepted
func (s *subscriber) offer(msg interface{}) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.queue <- msg:
		return true
	default:
		return false
	}
}

func (s *subscriber) pump(transport interfaces.Transport) {
	for {
		select {
		case msg := <-s.queue:
			// FUNCTIONAL DISCOVERY: Failed sends are dropped, never retried
			if err := transport.SendToParticipant(s.participantID, msg); err != nil {
				deliveriesDropped.WithLabelValues("send_failed").Inc()
				log.Printf("Sync delivery failed: participant=%s error=%v", s.participantID, err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		activeSubscribers.Dec()
	})
}
