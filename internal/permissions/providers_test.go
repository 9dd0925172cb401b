package permissions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

type fakeRoleStore struct {
	mu    sync.Mutex
	roles map[string]string
	err   error
}

func (s *fakeRoleStore) set(p types.Participant, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[p.Key()] = role
}

func (s *fakeRoleStore) GetParticipantRole(ctx context.Context, sessionID, participantID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	role, ok := s.roles[sessionID+"/"+participantID]
	if !ok {
		return "", interfaces.ErrRoleNotAssigned
	}
	return role, nil
}

func TestDefaultLayerProvider(t *testing.T) {
	provider, err := NewDefaultLayerProvider(map[string]interface{}{
		CanSendChatMessage.Key:            true,
		MaxWhiteboardObjectsPerAction.Key: 50,
	})
	require.NoError(t, err)

	layers, err := provider.FetchLayersForParticipant(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, layers, 1)

	assert.Equal(t, DefaultLayerPriority, layers[0].Priority)
	assert.Equal(t, 50.0, layers[0].Values[MaxWhiteboardObjectsPerAction.Key], "numbers are normalized")

	_, err = NewDefaultLayerProvider(map[string]interface{}{"nope": true})
	assert.ErrorIs(t, err, ErrInvalidPermissionKey)
}

func TestRoleLayerProvider(t *testing.T) {
	store := &fakeRoleStore{roles: map[string]string{}}
	provider, err := NewRoleLayerProvider(store, map[string]Role{
		"participant": {Priority: 10, Values: map[string]interface{}{CanCreateWhiteboard.Key: false}},
		"moderator":   {Priority: 20, Values: map[string]interface{}{CanCreateWhiteboard.Key: true}},
	}, "participant")
	require.NoError(t, err)

	tests := []struct {
		name       string
		assigned   string
		wantSource string
		wantValue  bool
	}{
		{name: "unassigned falls back to default role", assigned: "", wantSource: "role:participant", wantValue: false},
		{name: "assigned role", assigned: "moderator", wantSource: "role:moderator", wantValue: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.assigned != "" {
				store.set(alice, tt.assigned)
			}

			layers, err := provider.FetchLayersForParticipant(context.Background(), alice)
			require.NoError(t, err)
			require.Len(t, layers, 1)
			assert.Equal(t, tt.wantSource, layers[0].Source)
			assert.Equal(t, tt.wantValue, layers[0].Values[CanCreateWhiteboard.Key])
		})
	}
}

func TestRoleLayerProvider_UnknownAssignedRoleContributesNothing(t *testing.T) {
	store := &fakeRoleStore{roles: map[string]string{alice.Key(): "ghost"}}
	provider, err := NewRoleLayerProvider(store, map[string]Role{}, "")
	require.NoError(t, err)

	layers, err := provider.FetchLayersForParticipant(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, layers)
}

func TestRoleLayerProvider_StoreErrorIsReturned(t *testing.T) {
	store := &fakeRoleStore{roles: map[string]string{}, err: errors.New("database is locked")}
	provider, err := NewRoleLayerProvider(store, nil, "")
	require.NoError(t, err)

	_, err = provider.FetchLayersForParticipant(context.Background(), alice)
	assert.Error(t, err)
}

func TestNewRoleLayerProvider_Validation(t *testing.T) {
	_, err := NewRoleLayerProvider(&fakeRoleStore{}, map[string]Role{
		"bad role!": {Priority: 1},
	}, "")
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = NewRoleLayerProvider(&fakeRoleStore{}, map[string]Role{
		"moderator": {Priority: 1},
	}, "missing")
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = NewRoleLayerProvider(&fakeRoleStore{}, map[string]Role{
		"moderator": {Priority: 1, Values: map[string]interface{}{CanShareScreen.Key: 1}},
	}, "")
	assert.ErrorIs(t, err, ErrInvalidPermissionValue)
}

func TestMergeLayers(t *testing.T) {
	merged := mergeLayers([]Layer{
		layer(1, "b", map[string]interface{}{"x": 1.0, "y": 1.0}),
		layer(0, "a", map[string]interface{}{"x": 0.0, "z": 0.0}),
	}, map[string]interface{}{"z": 9.0})

	assert.Equal(t, map[string]interface{}{"x": 1.0, "y": 1.0, "z": 9.0}, merged)
}

func TestCatalog(t *testing.T) {
	descriptors := Catalog()
	require.NotEmpty(t, descriptors)
	for i := 1; i < len(descriptors); i++ {
		assert.Less(t, descriptors[i-1].Key, descriptors[i].Key)
	}

	d, ok := Lookup(MaxWhiteboardObjectsPerAction.Key)
	require.True(t, ok)
	assert.Equal(t, KindNumber, d.Kind)
}
