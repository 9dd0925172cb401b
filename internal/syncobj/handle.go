package syncobj

import (
	"fmt"
	"sync"

	"syncboard/internal/patch"
	"syncboard/pkg/types"
)

// ObjectUpdate is the wire payload of an OnSynchronizedObjectUpdated event
type ObjectUpdate struct {
	ObjectName string            `json:"objectName"`
	Operations []patch.Operation `json:"operations"`
}

// object is the registry's record for one name in one session
type object struct {
	name     string
	audience string // participant ID; empty means the whole session

	// mu serializes Set calls for this name. Lock order: object.mu before
	// sessionState.mu.
	mu sync.Mutex

	// value is written with both mu and the session mutex held, so either
	// lock alone is enough to read it.
	value   interface{}
	removed bool
}

func (o *object) visibleTo(participantID string) bool {
	return o.audience == "" || o.audience == participantID
}

// Option configures an object at registration
type Option func(*object)

// VisibleTo restricts an object to a single participant of the session: only
// that participant's snapshot contains it and only they receive its diffs.
func VisibleTo(participantID string) Option {
	return func(o *object) {
		o.audience = participantID
	}
}

// Handle is the owning subsystem's write access to one synchronized object
type Handle[T any] struct {
	session *sessionState
	obj     *object
}

// Name returns the object's name within its session
func (h *Handle[T]) Name() string {
	return h.obj.name
}

// SessionID returns the session the object belongs to
func (h *Handle[T]) SessionID() string {
	return h.session.id
}

// Current returns the value last accepted by Set
func (h *Handle[T]) Current() T {
	h.obj.mu.Lock()
	defer h.obj.mu.Unlock()
	return h.obj.value.(T)
}

// Set replaces the object's value. The diff against the current value is
// broadcast to every subscriber that can see the object; an empty diff
// performs no I/O. Calls for the same name are applied in arrival order.
func (h *Handle[T]) Set(newValue T) error {
	h.obj.mu.Lock()
	defer h.obj.mu.Unlock()

	if h.obj.removed {
		return ErrObjectRemoved
	}

	current := h.obj.value.(T)
	p, err := patch.Diff(current, newValue)
	if err != nil {
		return fmt.Errorf("diff %s: %w", h.obj.name, err)
	}

	if p.IsEmpty() {
		return nil
	}

	msg := types.Envelope{
		Type: types.EventSynchronizedObjectUpdated,
		Payload: ObjectUpdate{
			ObjectName: h.obj.name,
			Operations: p.Operations,
		},
	}

	return h.session.publish(h.obj, newValue, msg)
}
