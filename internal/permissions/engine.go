// Package permissions computes each participant's effective permissions from
// prioritized layers plus temporary overrides, and keeps them synchronized to
// the participant through the object registry.
package permissions

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"syncboard/internal/syncobj"
	"syncboard/pkg/types"
)

// DefaultProviderTimeout bounds a single provider fetch
const DefaultProviderTimeout = 5 * time.Second

// recomputeConcurrency caps parallel recomputes after a layer change
const recomputeConcurrency = 8

// ObjectName returns the synchronized object name of a participant's
// permissions
func ObjectName(participantID string) string {
	return "permissions/" + participantID
}

type permissionHandle = syncobj.Handle[map[string]interface{}]

// participantState is the registry binding of one joined participant
type participantState struct {
	// mu serializes recompute-and-publish so an older result never
	// overwrites a newer one
	mu     sync.Mutex
	handle *permissionHandle
}

// Engine aggregates permission layers per participant.
// ARCHITECTURAL DISCOVERY: Cache keyed by participant with a generation
// counter; an invalidation during an in-flight fetch bumps the generation so
// the stale result is returned once but never cached. A generation is kept
// only while its participant is joined or has a fetch in flight.
type Engine struct {
	registry  *syncobj.Registry
	temporary *TemporaryStore
	timeout   time.Duration

	providersMu sync.RWMutex
	providers   []LayerProvider

	mu           sync.RWMutex
	cache        map[types.Participant]EffectivePermissions
	generations  map[types.Participant]uint64
	pending      map[types.Participant]int // computations in flight
	participants map[types.Participant]*participantState

	flights singleflight.Group
}

// NewEngine creates an engine publishing through registry. providerTimeout
// of zero uses DefaultProviderTimeout.
func NewEngine(registry *syncobj.Registry, providerTimeout time.Duration, providers ...LayerProvider) *Engine {
	if providerTimeout <= 0 {
		providerTimeout = DefaultProviderTimeout
	}

	return &Engine{
		registry:     registry,
		temporary:    NewTemporaryStore(),
		timeout:      providerTimeout,
		providers:    append([]LayerProvider(nil), providers...),
		cache:        make(map[types.Participant]EffectivePermissions),
		generations:  make(map[types.Participant]uint64),
		pending:      make(map[types.Participant]int),
		participants: make(map[types.Participant]*participantState),
	}
}

// AddProvider registers another layer provider. Registration order breaks
// priority ties: on equal priority the later provider wins.
func (e *Engine) AddProvider(provider LayerProvider) {
	e.providersMu.Lock()
	e.providers = append(e.providers, provider)
	e.providersMu.Unlock()

	e.mu.Lock()
	e.invalidateAllLocked()
	e.mu.Unlock()
}

// FetchForParticipant returns the participant's effective permissions from
// cache, computing them on a miss. Provider failures are logged and never
// returned; the only error is ctx ending while waiting.
func (e *Engine) FetchForParticipant(ctx context.Context, participant types.Participant) (EffectivePermissions, error) {
	e.mu.RLock()
	cached, hit := e.cache[participant]
	generation := e.generations[participant]
	e.mu.RUnlock()

	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	// the generation is part of the flight key so callers arriving after an
	// invalidation never share a fetch started before it
	key := participant.Key() + "#" + strconv.FormatUint(generation, 10)
	ch := e.flights.DoChan(key, func() (interface{}, error) {
		// a flight that finished between our cache read and DoChan already
		// stored the result
		e.mu.Lock()
		cached, hit := e.cache[participant]
		if !hit {
			e.pending[participant]++
		}
		e.mu.Unlock()
		if hit {
			return cached, nil
		}

		values := e.compute(context.WithoutCancel(ctx), participant)
		effective := EffectivePermissions{values: values}

		e.mu.Lock()
		stored := e.generations[participant] == generation
		if stored {
			e.cache[participant] = effective
		}
		e.finishFlightLocked(participant, stored)
		e.mu.Unlock()

		return effective, nil
	})

	select {
	case res := <-ch:
		return res.Val.(EffectivePermissions), nil
	case <-ctx.Done():
		return EffectivePermissions{}, ctx.Err()
	}
}

// compute queries every provider concurrently and merges the result with the
// participant's overrides
func (e *Engine) compute(ctx context.Context, participant types.Participant) map[string]interface{} {
	e.providersMu.RLock()
	providers := append([]LayerProvider(nil), e.providers...)
	e.providersMu.RUnlock()

	results := make([][]Layer, len(providers))

	var g errgroup.Group
	for i, provider := range providers {
		g.Go(func() error {
			results[i] = e.fetchFromProvider(ctx, provider, participant)
			return nil
		})
	}
	_ = g.Wait()

	var layers []Layer
	for _, r := range results {
		layers = append(layers, r...)
	}

	return mergeLayers(layers, e.temporary.ForParticipant(participant))
}

// fetchFromProvider isolates one provider: an error, a timeout or a panic all
// contribute zero layers
func (e *Engine) fetchFromProvider(ctx context.Context, provider LayerProvider, participant types.Participant) (layers []Layer) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			providerFailures.WithLabelValues(provider.Name()).Inc()
			log.Printf("Permission provider panicked: provider=%s session=%s participant=%s panic=%v",
				provider.Name(), participant.SessionID, participant.ID, r)
			layers = nil
		}
	}()

	layers, err := provider.FetchLayersForParticipant(ctx, participant)
	if err != nil {
		providerFailures.WithLabelValues(provider.Name()).Inc()
		log.Printf("Permission provider failed: provider=%s session=%s participant=%s error=%v",
			provider.Name(), participant.SessionID, participant.ID, err)
		return nil
	}

	return layers
}

// SetTemporaryPermission stores an override for the participant, or clears it
// when value is nil, then republishes the participant's permissions. No
// update is broadcast when the effective set did not change.
// Only participants holding a permission object can carry overrides.
func (e *Engine) SetTemporaryPermission(ctx context.Context, participant types.Participant, key string, value interface{}) error {
	var normalized interface{}
	if value == nil {
		if _, ok := Lookup(key); !ok {
			return fmt.Errorf("%w: %q", ErrInvalidPermissionKey, key)
		}
	} else {
		var err error
		if normalized, err = ValidateValue(key, value); err != nil {
			return err
		}
	}

	// the membership check and the store change share the lock so a
	// concurrent leave cannot strand an override
	e.mu.Lock()
	if _, joined := e.participants[participant]; !joined {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrParticipantNotJoined, participant.Key())
	}
	switch {
	case value == nil && e.temporary.Remove(participant, key):
		temporaryChanges.WithLabelValues("clear").Inc()
	case value != nil && e.temporary.Set(participant, key, normalized):
		temporaryChanges.WithLabelValues("set").Inc()
	}
	e.invalidateLocked(participant)
	e.mu.Unlock()

	log.Printf("Temporary permission changed: session=%s participant=%s key=%s value=%v",
		participant.SessionID, participant.ID, key, value)

	return e.publish(ctx, participant)
}

// TemporaryPermissions returns a copy of the participant's overrides
func (e *Engine) TemporaryPermissions(participant types.Participant) map[string]interface{} {
	return e.temporary.ForParticipant(participant)
}

// RecomputeForParticipants re-fetches layers for exactly the given
// participants and republishes their permissions. Other caches are kept.
func (e *Engine) RecomputeForParticipants(ctx context.Context, participants []types.Participant) error {
	for _, p := range participants {
		e.invalidate(p)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recomputeConcurrency)

	for _, p := range participants {
		g.Go(func() error {
			recomputes.Inc()
			if err := e.publish(gctx, p); err != nil {
				return fmt.Errorf("recompute %s: %w", p.Key(), err)
			}
			return nil
		})
	}

	return g.Wait()
}

// ParticipantInitialized registers the participant's permission object so
// the computed state is part of their join snapshot
func (e *Engine) ParticipantInitialized(ctx context.Context, participant types.Participant) error {
	e.mu.Lock()
	state, exists := e.participants[participant]
	if !exists {
		state = &participantState{}
		e.participants[participant] = state
	}
	e.mu.Unlock()

	state.mu.Lock()
	defer state.mu.Unlock()

	effective, err := e.FetchForParticipant(ctx, participant)
	if err != nil {
		return err
	}

	if state.handle != nil {
		return state.handle.Set(effective.Values())
	}

	handle, err := syncobj.Register(e.registry, participant.SessionID, ObjectName(participant.ID),
		effective.Values(), syncobj.VisibleTo(participant.ID))
	if err != nil {
		e.mu.Lock()
		if e.participants[participant] == state {
			delete(e.participants, participant)
		}
		e.mu.Unlock()
		return fmt.Errorf("register permissions: %w", err)
	}
	state.handle = handle

	log.Printf("Permissions initialized: session=%s participant=%s keys=%d",
		participant.SessionID, participant.ID, effective.Len())
	return nil
}

// ParticipantJoined is a no-op: the object was registered on initialization
func (e *Engine) ParticipantJoined(ctx context.Context, participant types.Participant) error {
	return nil
}

// ParticipantLeft drops the cache entry, every temporary override and the
// permission object of the participant
func (e *Engine) ParticipantLeft(ctx context.Context, participant types.Participant) {
	e.mu.Lock()
	e.temporary.ClearParticipant(participant)
	_, registered := e.participants[participant]
	delete(e.participants, participant)
	e.invalidateLocked(participant)
	if e.pending[participant] == 0 {
		delete(e.generations, participant)
	}
	e.mu.Unlock()

	if registered {
		// the session may already be torn down; nothing to undo then
		_ = e.registry.Unregister(participant.SessionID, ObjectName(participant.ID))
	}
}

// SessionStarted has nothing to prepare
func (e *Engine) SessionStarted(ctx context.Context, sessionID string) error {
	return nil
}

// SessionEnded discards every cache entry and override of the session
func (e *Engine) SessionEnded(sessionID string) {
	e.temporary.ClearSession(sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()

	for p := range e.participants {
		if p.SessionID == sessionID {
			delete(e.participants, p)
		}
	}
	for p := range e.cache {
		if p.SessionID == sessionID {
			delete(e.cache, p)
		}
	}
	for p := range e.generations {
		if p.SessionID == sessionID && e.pending[p] == 0 {
			delete(e.generations, p)
		}
	}
	// results still being computed for the session must not be cached
	for p := range e.pending {
		if p.SessionID == sessionID {
			e.generations[p]++
		}
	}
}

// publish recomputes and pushes the participant's permissions through the
// registry. Participants without a permission object are only recomputed.
func (e *Engine) publish(ctx context.Context, participant types.Participant) error {
	e.mu.RLock()
	state, exists := e.participants[participant]
	e.mu.RUnlock()

	if !exists {
		_, err := e.FetchForParticipant(ctx, participant)
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	effective, err := e.FetchForParticipant(ctx, participant)
	if err != nil {
		return err
	}
	if state.handle == nil {
		return nil
	}

	return state.handle.Set(effective.Values())
}

func (e *Engine) invalidate(participant types.Participant) {
	e.mu.Lock()
	e.invalidateLocked(participant)
	e.mu.Unlock()
}

func (e *Engine) invalidateLocked(participant types.Participant) {
	delete(e.cache, participant)
	e.generations[participant]++
}

// finishFlightLocked ends one computation for participant. Once nothing is in
// flight, a participant that is neither joined nor cached needs no generation.
func (e *Engine) finishFlightLocked(participant types.Participant, stored bool) {
	if e.pending[participant]--; e.pending[participant] > 0 {
		return
	}
	delete(e.pending, participant)

	if _, joined := e.participants[participant]; !joined && !stored {
		delete(e.generations, participant)
	}
}

func (e *Engine) invalidateAllLocked() {
	for p := range e.cache {
		e.invalidateLocked(p)
	}
}

// GetStats returns engine statistics for monitoring and debugging
func (e *Engine) GetStats() map[string]int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	e.providersMu.RLock()
	providers := len(e.providers)
	e.providersMu.RUnlock()

	return map[string]int{
		"cached":       len(e.cache),
		"generations":  len(e.generations),
		"participants": len(e.participants),
		"providers":    providers,
	}
}
