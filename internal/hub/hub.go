// Package hub processes inbound client commands on a fixed pool of workers.
package hub

import (
	"context"
	"log"
	"sync"

	"github.com/cespare/xxhash/v2"

	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

const (
	DefaultWorkers   = 8
	DefaultQueueSize = 1000
)

// Hub shards commands over its workers by session id
// ARCHITECTURAL DISCOVERY: One worker owns each session, so a session's
// commands are applied in arrival order while different sessions run in parallel
type Hub struct {
	router    interfaces.MessageRouter
	transport interfaces.Transport

	shards    []chan *types.Message
	queueSize int

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
}

// NewHub creates a hub with workers shards of queueSize pending commands each
func NewHub(router interfaces.MessageRouter, transport interfaces.Transport, workers, queueSize int) *Hub {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Hub{
		router:    router,
		transport: transport,
		shards:    make([]chan *types.Message, workers),
		queueSize: queueSize,
	}
}

// Start launches the workers
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}

	ctx, h.cancel = context.WithCancel(ctx)
	for i := range h.shards {
		h.shards[i] = make(chan *types.Message, h.queueSize)
		h.wg.Add(1)
		go h.worker(ctx, h.shards[i])
	}
	h.running = true

	log.Printf("Starting command hub: workers=%d queue=%d", len(h.shards), h.queueSize)
	return nil
}

// Stop cancels the workers and waits for the command in flight on each.
// Queued commands that have not started are dropped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	h.cancel()
	h.mu.Unlock()

	log.Println("Stopping command hub...")
	h.wg.Wait()
	return nil
}

// Submit queues message on the worker that owns its session
func (h *Hub) Submit(message *types.Message) error {
	if message == nil {
		return ErrNilMessage
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}

	shard := h.shards[h.shardFor(message.SessionID)]

	// TECHNICAL DISCOVERY: Non-blocking send keeps a flooded session from
	// stalling the reader goroutine of every connection in it
	select {
	case shard <- message:
		commandsQueued.Inc()
		return nil
	default:
		commandsRejected.Inc()
		return ErrMessageChannelFull
	}
}

func (h *Hub) shardFor(sessionID string) int {
	return int(xxhash.Sum64String(sessionID) % uint64(len(h.shards)))
}

func (h *Hub) worker(ctx context.Context, queue <-chan *types.Message) {
	defer h.wg.Done()

	for {
		select {
		case message := <-queue:
			h.handleMessage(ctx, message)
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage routes one command; failures go back to the sender only
func (h *Hub) handleMessage(ctx context.Context, message *types.Message) {
	if err := h.router.RouteMessage(ctx, message); err != nil {
		commandsFailed.Inc()
		log.Printf("Command failed: id=%s type=%s from=%s session=%s error=%v",
			message.ID, message.Type, message.FromUser, message.SessionID, err)
		h.sendErrorToSender(message, err)
	}
}

func (h *Hub) sendErrorToSender(message *types.Message, routingErr error) {
	if h.transport == nil {
		return
	}

	failure := types.Envelope{
		Type:    types.EventCommandFailed,
		Payload: types.CommandFailed{MessageID: message.ID, Error: routingErr.Error()},
	}
	if err := h.transport.SendToParticipant(message.FromUser, failure); err != nil {
		log.Printf("Failed to send command failure to %s: %v", message.FromUser, err)
	}
}

// GetStats returns hub statistics for monitoring and debugging
func (h *Hub) GetStats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	queued := 0
	for _, shard := range h.shards {
		queued += len(shard)
	}

	running := 0
	if h.running {
		running = 1
	}

	return map[string]int{
		"workers": len(h.shards),
		"queued":  queued,
		"running": running,
	}
}
