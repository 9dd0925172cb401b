package permissions

import (
	"context"
	"errors"
	"fmt"
	"log"

	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// DefaultLayerPriority is the priority of the configured default layer
const DefaultLayerPriority = 0

// DefaultLayerProvider contributes the same base layer to every participant
type DefaultLayerProvider struct {
	layer Layer
}

// NewDefaultLayerProvider validates values and builds the base layer
func NewDefaultLayerProvider(values map[string]interface{}) (*DefaultLayerProvider, error) {
	normalized, err := ValidateValues(values)
	if err != nil {
		return nil, fmt.Errorf("default layer: %w", err)
	}

	return &DefaultLayerProvider{
		layer: Layer{Priority: DefaultLayerPriority, Source: "default", Values: normalized},
	}, nil
}

func (p *DefaultLayerProvider) Name() string {
	return "default"
}

func (p *DefaultLayerProvider) FetchLayersForParticipant(ctx context.Context, participant types.Participant) ([]Layer, error) {
	if len(p.layer.Values) == 0 {
		return nil, nil
	}
	return []Layer{{Priority: p.layer.Priority, Source: p.layer.Source, Values: copyValues(p.layer.Values)}}, nil
}

// Role is a named permission layer a participant can be assigned to
type Role struct {
	Priority int
	Values   map[string]interface{}
}

// RoleStore is the subset of persistence the role provider reads
type RoleStore interface {
	GetParticipantRole(ctx context.Context, sessionID, participantID string) (string, error)
}

// RoleLayerProvider contributes the layer of the participant's assigned role
type RoleLayerProvider struct {
	store       RoleStore
	roles       map[string]Role
	defaultRole string
}

// NewRoleLayerProvider validates every role's values. Participants without an
// assignment fall back to defaultRole; an empty defaultRole contributes
// nothing for them.
func NewRoleLayerProvider(store RoleStore, roles map[string]Role, defaultRole string) (*RoleLayerProvider, error) {
	normalized := make(map[string]Role, len(roles))
	for name, role := range roles {
		if !types.IsValidRole(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRole, name)
		}
		values, err := ValidateValues(role.Values)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", name, err)
		}
		normalized[name] = Role{Priority: role.Priority, Values: values}
	}

	if defaultRole != "" {
		if _, exists := normalized[defaultRole]; !exists {
			return nil, fmt.Errorf("%w: default role %q is not defined", ErrInvalidRole, defaultRole)
		}
	}

	return &RoleLayerProvider{
		store:       store,
		roles:       normalized,
		defaultRole: defaultRole,
	}, nil
}

func (p *RoleLayerProvider) Name() string {
	return "role"
}

// HasRole reports whether name is a configured role
func (p *RoleLayerProvider) HasRole(name string) bool {
	_, exists := p.roles[name]
	return exists
}

func (p *RoleLayerProvider) FetchLayersForParticipant(ctx context.Context, participant types.Participant) ([]Layer, error) {
	roleName, err := p.store.GetParticipantRole(ctx, participant.SessionID, participant.ID)
	switch {
	case errors.Is(err, interfaces.ErrRoleNotAssigned):
		roleName = p.defaultRole
	case err != nil:
		return nil, fmt.Errorf("load role: %w", err)
	}

	if roleName == "" {
		return nil, nil
	}

	role, exists := p.roles[roleName]
	if !exists {
		log.Printf("Permission role not configured: session=%s participant=%s role=%s",
			participant.SessionID, participant.ID, roleName)
		return nil, nil
	}

	return []Layer{{
		Priority: role.Priority,
		Source:   "role:" + roleName,
		Values:   copyValues(role.Values),
	}}, nil
}
