package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// recordingRouter records the order commands reach it per session
type recordingRouter struct {
	mu       sync.Mutex
	bySess   map[string][]string
	fail     map[string]error
	block    chan struct{}
	received chan struct{}
}

func newRecordingRouter() *recordingRouter {
	return &recordingRouter{
		bySess:   make(map[string][]string),
		fail:     make(map[string]error),
		received: make(chan struct{}, 1000),
	}
}

func (r *recordingRouter) RouteMessage(ctx context.Context, message *types.Message) error {
	if r.block != nil {
		<-r.block
	}

	r.mu.Lock()
	r.bySess[message.SessionID] = append(r.bySess[message.SessionID], message.ID)
	err := r.fail[message.ID]
	r.mu.Unlock()

	r.received <- struct{}{}
	return err
}

func (r *recordingRouter) ValidateMessage(message *types.Message) error { return nil }

func (r *recordingRouter) order(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.bySess[sessionID]...)
}

func (r *recordingRouter) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.received:
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out after %d of %d commands", i, n)
		}
	}
}

type failureTransport struct {
	mu       sync.Mutex
	failures map[string][]types.CommandFailed
}

func (f *failureTransport) SendToParticipant(participantID string, message interface{}) error {
	env, ok := message.(types.Envelope)
	if !ok || env.Type != types.EventCommandFailed {
		return fmt.Errorf("unexpected message %#v", message)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures == nil {
		f.failures = make(map[string][]types.CommandFailed)
	}
	f.failures[participantID] = append(f.failures[participantID], env.Payload.(types.CommandFailed))
	return nil
}

func (f *failureTransport) SendToSession(sessionID string, message interface{}) error { return nil }

func (f *failureTransport) get(participantID string) []types.CommandFailed {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.CommandFailed(nil), f.failures[participantID]...)
}

func TestHub_StartStop(t *testing.T) {
	hub := NewHub(newRecordingRouter(), nil, 2, 10)
	ctx := context.Background()

	if err := hub.Start(ctx); err != nil {
		t.Errorf("Expected no error starting hub, got %v", err)
	}
	if err := hub.Start(ctx); err != ErrHubAlreadyRunning {
		t.Errorf("Expected ErrHubAlreadyRunning, got %v", err)
	}
	if err := hub.Stop(); err != nil {
		t.Errorf("Expected no error stopping hub, got %v", err)
	}
	if err := hub.Stop(); err != ErrHubNotRunning {
		t.Errorf("Expected ErrHubNotRunning, got %v", err)
	}
}

func TestHub_SubmitRequiresRunningHub(t *testing.T) {
	hub := NewHub(newRecordingRouter(), nil, 2, 10)

	if err := hub.Submit(&types.Message{SessionID: "s1"}); err != ErrHubNotRunning {
		t.Errorf("Expected ErrHubNotRunning, got %v", err)
	}
	if err := hub.Submit(nil); err != ErrNilMessage {
		t.Errorf("Expected ErrNilMessage, got %v", err)
	}
}

func TestHub_PerSessionOrdering(t *testing.T) {
	router := newRecordingRouter()
	hub := NewHub(router, nil, 4, 100)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	defer func() { _ = hub.Stop() }()

	sessions := []string{"s1", "s2", "s3"}
	const perSession = 30

	var wg sync.WaitGroup
	for _, sid := range sessions {
		wg.Add(1)
		go func(sid string) {
			defer wg.Done()
			for i := 0; i < perSession; i++ {
				msg := &types.Message{ID: fmt.Sprintf("%s-%02d", sid, i), SessionID: sid}
				if err := hub.Submit(msg); err != nil {
					t.Errorf("Submit failed: %v", err)
				}
			}
		}(sid)
	}
	wg.Wait()

	router.wait(t, len(sessions)*perSession)

	for _, sid := range sessions {
		got := router.order(sid)
		if len(got) != perSession {
			t.Fatalf("Session %s: expected %d commands, got %d", sid, perSession, len(got))
		}
		for i, id := range got {
			if want := fmt.Sprintf("%s-%02d", sid, i); id != want {
				t.Errorf("Session %s: position %d got %s, want %s", sid, i, id, want)
				break
			}
		}
	}
}

func TestHub_SameSessionSameShard(t *testing.T) {
	hub := NewHub(newRecordingRouter(), nil, 16, 1)

	for i := 0; i < 100; i++ {
		sid := fmt.Sprintf("session-%d", i)
		if hub.shardFor(sid) != hub.shardFor(sid) {
			t.Fatalf("Shard for %s is not stable", sid)
		}
		if s := hub.shardFor(sid); s < 0 || s >= 16 {
			t.Fatalf("Shard %d out of range", s)
		}
	}
}

func TestHub_FullQueueRejects(t *testing.T) {
	router := newRecordingRouter()
	router.block = make(chan struct{})
	hub := NewHub(router, nil, 1, 1)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}

	// first command occupies the worker, second fills the queue
	_ = hub.Submit(&types.Message{ID: "a", SessionID: "s1"})
	time.Sleep(50 * time.Millisecond)
	_ = hub.Submit(&types.Message{ID: "b", SessionID: "s1"})

	if err := hub.Submit(&types.Message{ID: "c", SessionID: "s1"}); err != ErrMessageChannelFull {
		t.Errorf("Expected ErrMessageChannelFull, got %v", err)
	}

	close(router.block)
	router.wait(t, 2)
	_ = hub.Stop()
}

func TestHub_FailuresGoBackToSender(t *testing.T) {
	router := newRecordingRouter()
	router.fail["bad"] = errors.New("permission denied")
	transport := &failureTransport{}

	hub := NewHub(router, transport, 2, 10)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	defer func() { _ = hub.Stop() }()

	_ = hub.Submit(&types.Message{ID: "ok", SessionID: "s1", FromUser: "alice"})
	_ = hub.Submit(&types.Message{ID: "bad", SessionID: "s1", FromUser: "alice"})
	router.wait(t, 2)

	deadline := time.Now().Add(time.Second)
	for len(transport.get("alice")) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	failures := transport.get("alice")
	if len(failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(failures))
	}
	if failures[0].MessageID != "bad" || failures[0].Error != "permission denied" {
		t.Errorf("Unexpected failure %+v", failures[0])
	}
}

func TestHub_RouterInterface(t *testing.T) {
	var _ interfaces.MessageRouter = newRecordingRouter()
}
