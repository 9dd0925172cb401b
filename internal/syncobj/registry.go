// Package syncobj holds named, server-owned values scoped to a session and
// propagates their changes to subscribers as structural diffs.
package syncobj

import (
	"context"
	"log"
	"sync"

	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// DefaultQueueSize is the per-subscriber outbound buffer
const DefaultQueueSize = 256

// Registry tracks synchronized objects per session and the subscribers that
// observe them.
// ARCHITECTURAL DISCOVERY: RWMutex on the session map only; each session owns
// its own lock so sessions never contend with each other
type Registry struct {
	transport interfaces.Transport
	queueSize int

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

type sessionState struct {
	id string

	mu          sync.Mutex
	closed      bool
	objects     map[string]*object
	subscribers map[string]*subscriber
}

// NewRegistry creates a registry that delivers through transport
func NewRegistry(transport interfaces.Transport, queueSize int) *Registry {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Registry{
		transport: transport,
		queueSize: queueSize,
		sessions:  make(map[string]*sessionState),
	}
}

// session returns the live state for sessionID, creating it on first use
func (r *Registry) session(sessionID string) *sessionState {
	r.mu.RLock()
	s, exists := r.sessions[sessionID]
	r.mu.RUnlock()
	if exists {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, exists = r.sessions[sessionID]; exists {
		return s
	}

	s = &sessionState{
		id:          sessionID,
		objects:     make(map[string]*object),
		subscribers: make(map[string]*subscriber),
	}
	r.sessions[sessionID] = s
	return s
}

func (r *Registry) lookup(sessionID string) (*sessionState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, exists := r.sessions[sessionID]
	return s, exists
}

// Register adds a named object to a session. Names are unique per session;
// the same name may be registered independently in different sessions.
// Subscribers already attached receive the initial value as a partial state
// event so their later diffs have a base to apply to.
func Register[T any](r *Registry, sessionID, name string, initialValue T, opts ...Option) (*Handle[T], error) {
	if name == "" {
		return nil, ErrInvalidName
	}

	obj := &object{name: name, value: initialValue}
	for _, opt := range opts {
		opt(obj)
	}

	s := r.session(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if _, exists := s.objects[name]; exists {
		return nil, ErrDuplicateName
	}

	s.objects[name] = obj
	registeredObjects.Inc()

	for _, sub := range s.subscribers {
		if !obj.visibleTo(sub.participantID) {
			continue
		}
		s.deliver(sub, types.Envelope{
			Type:    types.EventSynchronizeObjectState,
			Payload: map[string]interface{}{name: initialValue},
		})
	}

	return &Handle[T]{session: s, obj: obj}, nil
}

// Unregister removes an object from a session. Later Set calls on its handle
// fail with ErrObjectRemoved and the name becomes available again.
func (r *Registry) Unregister(sessionID, name string) error {
	s, exists := r.lookup(sessionID)
	if !exists {
		return ErrObjectNotFound
	}

	s.mu.Lock()
	obj, exists := s.objects[name]
	s.mu.Unlock()
	if !exists {
		return ErrObjectNotFound
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.objects[name] != obj {
		return ErrObjectNotFound
	}

	obj.removed = true
	delete(s.objects, name)
	registeredObjects.Dec()

	return nil
}

// GetFullState returns every object's current value in a session. The map is
// a consistent snapshot: no concurrent Set is half-visible in it.
func (r *Registry) GetFullState(sessionID string) map[string]interface{} {
	s, exists := r.lookup(sessionID)
	if !exists {
		return map[string]interface{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot("")
}

// GetStateFor returns the snapshot a given participant would receive on join
func (r *Registry) GetStateFor(sessionID, participantID string) map[string]interface{} {
	s, exists := r.lookup(sessionID)
	if !exists {
		return map[string]interface{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot(participantID)
}

// Subscribe attaches a participant to a session. The participant first
// receives the full state, then every diff produced after that snapshot was
// taken. A second Subscribe for the same participant replaces the first.
func (r *Registry) Subscribe(sessionID, participantID string) error {
	s := r.session(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	if existing, exists := s.subscribers[participantID]; exists {
		existing.close()
	}

	sub := newSubscriber(participantID, r.queueSize, r.transport)
	s.subscribers[participantID] = sub

	// TECHNICAL DISCOVERY: Snapshot and subscriber insertion share one critical
	// section with publish, so a diff is either inside the snapshot or queued
	// after it, never both and never neither
	s.deliver(sub, types.Envelope{
		Type:    types.EventSynchronizeObjectState,
		Payload: s.snapshot(participantID),
	})

	log.Printf("Sync subscriber attached: session=%s participant=%s objects=%d",
		sessionID, participantID, len(s.objects))
	return nil
}

// Unsubscribe detaches a participant; queued deliveries for them are dropped
func (r *Registry) Unsubscribe(sessionID, participantID string) {
	s, exists := r.lookup(sessionID)
	if !exists {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, exists := s.subscribers[participantID]; exists {
		sub.close()
		delete(s.subscribers, participantID)
	}
}

// Teardown discards a session's objects and subscribers. In-flight
// broadcasts for the session are dropped.
func (r *Registry) Teardown(sessionID string) {
	r.mu.Lock()
	s, exists := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if !exists {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for _, sub := range s.subscribers {
		sub.close()
	}
	registeredObjects.Sub(float64(len(s.objects)))

	log.Printf("Sync session torn down: session=%s objects=%d subscribers=%d",
		sessionID, len(s.objects), len(s.subscribers))

	s.subscribers = make(map[string]*subscriber)
	s.objects = make(map[string]*object)
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	sessions := make([]*sessionState, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	objects, subscribers := 0, 0
	for _, s := range sessions {
		s.mu.Lock()
		objects += len(s.objects)
		subscribers += len(s.subscribers)
		s.mu.Unlock()
	}

	return map[string]int{
		"sessions":    len(sessions),
		"objects":     objects,
		"subscribers": subscribers,
	}
}

// SessionStarted prepares an empty session scope
func (r *Registry) SessionStarted(ctx context.Context, sessionID string) error {
	r.session(sessionID)
	return nil
}

// SessionEnded tears the session down
func (r *Registry) SessionEnded(sessionID string) {
	r.Teardown(sessionID)
}

// ParticipantInitialized is a no-op: objects are registered by their owners
func (r *Registry) ParticipantInitialized(ctx context.Context, participant types.Participant) error {
	return nil
}

// ParticipantJoined subscribes the participant. It runs after every owner has
// initialized the participant so their objects are part of the snapshot.
func (r *Registry) ParticipantJoined(ctx context.Context, participant types.Participant) error {
	return r.Subscribe(participant.SessionID, participant.ID)
}

// ParticipantLeft unsubscribes the participant
func (r *Registry) ParticipantLeft(ctx context.Context, participant types.Participant) {
	r.Unsubscribe(participant.SessionID, participant.ID)
}

// publish swaps the stored value and enqueues msg to every subscriber that can
// see obj. Caller holds obj.mu.
func (s *sessionState) publish(obj *object, newValue interface{}, msg types.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	obj.value = newValue
	updatesBroadcast.Inc()

	for _, sub := range s.subscribers {
		if obj.visibleTo(sub.participantID) {
			s.deliver(sub, msg)
		}
	}

	return nil
}

// deliver enqueues msg for sub, falling back to a full snapshot for a
// subscriber that previously overflowed. Caller holds s.mu.
func (s *sessionState) deliver(sub *subscriber, msg interface{}) {
	if sub.needsResync {
		// the snapshot already contains whatever msg would have changed
		resync := types.Envelope{
			Type:    types.EventSynchronizeObjectState,
			Payload: s.snapshot(sub.participantID),
		}
		if sub.offer(resync) {
			sub.needsResync = false
			resyncsSent.Inc()
		} else {
			deliveriesDropped.WithLabelValues("queue_full").Inc()
		}
		return
	}

	if !sub.offer(msg) {
		sub.needsResync = true
		deliveriesDropped.WithLabelValues("queue_full").Inc()
		log.Printf("Sync queue full, scheduling resync: session=%s participant=%s", s.id, sub.participantID)
	}
}

// snapshot copies the current values visible to participantID (all values
// when participantID is empty). Caller holds s.mu.
func (s *sessionState) snapshot(participantID string) map[string]interface{} {
	state := make(map[string]interface{}, len(s.objects))
	for name, obj := range s.objects {
		if participantID == "" || obj.visibleTo(participantID) {
			state[name] = obj.value
		}
	}
	return state
}
