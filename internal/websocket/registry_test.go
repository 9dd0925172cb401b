package websocket

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"syncboard/pkg/interfaces"
)

func newTestConnection(t *testing.T, userID, sessionID string) *Connection {
	t.Helper()
	conn := NewConnection(nil)
	if err := conn.SetCredentials(userID, sessionID); err != nil {
		t.Fatalf("SetCredentials failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// queued decodes every frame waiting in a detached connection's buffer
func queued(conn *Connection) []string {
	var frames []string
	for {
		select {
		case data := <-conn.writeCh:
			frames = append(frames, string(data))
		default:
			return frames
		}
	}
}

func TestRegistry_TransportCompliance(t *testing.T) {
	var _ interfaces.Transport = &Registry{}
	var _ interfaces.SessionListener = &Registry{}
}

func TestRegistry_RegisterConnectionValidation(t *testing.T) {
	registry := NewRegistry()

	if _, err := registry.RegisterConnection(nil); err != ErrNilConnection {
		t.Errorf("Expected ErrNilConnection, got %v", err)
	}

	conn := NewConnection(nil)
	defer conn.Close()
	if _, err := registry.RegisterConnection(conn); err != ErrConnectionNotAuthenticated {
		t.Errorf("Expected ErrConnectionNotAuthenticated, got %v", err)
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewRegistry()
	conn := newTestConnection(t, "alice", "s1")

	replaced, err := registry.RegisterConnection(conn)
	if err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	if replaced != nil {
		t.Error("First registration should not replace anything")
	}

	got, exists := registry.GetUserConnection("alice")
	if !exists || got != conn {
		t.Error("Expected to find registered connection")
	}
	if conns := registry.GetSessionConnections("s1"); len(conns) != 1 {
		t.Errorf("Expected 1 session connection, got %d", len(conns))
	}
}

func TestRegistry_ConnectionReplacement(t *testing.T) {
	registry := NewRegistry()
	first := newTestConnection(t, "alice", "s1")
	second := newTestConnection(t, "alice", "s2")

	_, _ = registry.RegisterConnection(first)
	replaced, err := registry.RegisterConnection(second)
	if err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	if replaced != first {
		t.Error("Expected the first connection to be reported as replaced")
	}

	if len(registry.GetSessionConnections("s1")) != 0 {
		t.Error("Replaced connection should leave its old session")
	}

	// the old connection's cleanup must not remove its successor
	if registry.UnregisterConnection(first) {
		t.Error("Unregistering a replaced connection should report false")
	}
	if got, _ := registry.GetUserConnection("alice"); got != second {
		t.Error("Successor connection was removed")
	}
}

func TestRegistry_UnregisterConnection(t *testing.T) {
	registry := NewRegistry()
	conn := newTestConnection(t, "alice", "s1")
	_, _ = registry.RegisterConnection(conn)

	if !registry.UnregisterConnection(conn) {
		t.Error("Expected unregister to report true")
	}
	if registry.UnregisterConnection(conn) {
		t.Error("Second unregister should be a no-op")
	}
	if registry.UnregisterConnection(nil) {
		t.Error("nil unregister should report false")
	}

	stats := registry.GetStats()
	if stats["total_connections"] != 0 || stats["active_sessions"] != 0 {
		t.Errorf("Expected empty registry, got %v", stats)
	}
}

func TestRegistry_SendToParticipant(t *testing.T) {
	registry := NewRegistry()
	conn := newTestConnection(t, "alice", "s1")
	_, _ = registry.RegisterConnection(conn)

	if err := registry.SendToParticipant("alice", map[string]string{"type": "x"}); err != nil {
		t.Fatalf("SendToParticipant failed: %v", err)
	}
	if frames := queued(conn); len(frames) != 1 || frames[0] != `{"type":"x"}` {
		t.Errorf("Unexpected frames %v", frames)
	}

	err := registry.SendToParticipant("bob", "x")
	if !errors.Is(err, ErrParticipantNotConnected) {
		t.Errorf("Expected ErrParticipantNotConnected, got %v", err)
	}
}

func TestRegistry_SendToSessionSkipsFailures(t *testing.T) {
	registry := NewRegistry()
	alice := newTestConnection(t, "alice", "s1")
	bob := newTestConnection(t, "bob", "s1")
	carol := newTestConnection(t, "carol", "s2")
	for _, c := range []*Connection{alice, bob, carol} {
		_, _ = registry.RegisterConnection(c)
	}

	_ = bob.Close()

	err := registry.SendToSession("s1", "hello")
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected closed connection error to be reported, got %v", err)
	}
	if len(queued(alice)) != 1 {
		t.Error("Healthy connection should still receive the message")
	}
	if len(queued(carol)) != 0 {
		t.Error("Other sessions must not receive the message")
	}
}

func TestRegistry_SessionEndedClosesConnections(t *testing.T) {
	registry := NewRegistry()
	alice := newTestConnection(t, "alice", "s1")
	carol := newTestConnection(t, "carol", "s2")
	_, _ = registry.RegisterConnection(alice)
	_, _ = registry.RegisterConnection(carol)

	registry.SessionEnded("s1")

	select {
	case <-alice.Done():
	default:
		t.Error("Connection of the ended session should be closed")
	}
	select {
	case <-carol.Done():
		t.Error("Connection of another session should stay open")
	default:
	}
}

func TestRegistry_ConcurrentRegistrationAndUnregistration(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := NewConnection(nil)
			defer conn.Close()
			_ = conn.SetCredentials(fmt.Sprintf("user%d", i), fmt.Sprintf("s%d", i%5))
			if _, err := registry.RegisterConnection(conn); err != nil {
				t.Errorf("RegisterConnection failed: %v", err)
				return
			}
			_ = registry.SendToSession(conn.GetSessionID(), "ping")
			registry.UnregisterConnection(conn)
		}(i)
	}
	wg.Wait()

	if stats := registry.GetStats(); stats["total_connections"] != 0 {
		t.Errorf("Expected no connections left, got %v", stats)
	}
}
