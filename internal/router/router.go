// Package router validates inbound client commands, checks the sender's
// effective permissions and dispatches the command to its component.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"syncboard/internal/permissions"
	"syncboard/internal/whiteboard"
	"syncboard/pkg/types"
)

// PermissionService is the slice of the permission engine the router needs
type PermissionService interface {
	FetchForParticipant(ctx context.Context, participant types.Participant) (permissions.EffectivePermissions, error)
	SetTemporaryPermission(ctx context.Context, participant types.Participant, key string, value interface{}) error
}

// WhiteboardService applies whiteboard commands to a session's board
type WhiteboardService interface {
	Execute(sessionID string, action whiteboard.Action) error
	Undo(sessionID string) error
	Redo(sessionID string) error
	Clear(sessionID string) error
}

// Membership answers whether a participant is currently joined
type Membership interface {
	IsMember(participant types.Participant) bool
}

// TemporaryPermissionCommand is the payload of set_temporary_permission.
// A null value clears the override.
type TemporaryPermissionCommand struct {
	ParticipantID string      `json:"participantId"`
	Key           string      `json:"key"`
	Value         interface{} `json:"value"`
}

// Router implements the MessageRouter interface
// ARCHITECTURAL DISCOVERY: Routing decisions only; state lives in the
// components it dispatches to and delivery belongs to the sync core
type Router struct {
	permissions PermissionService
	whiteboards WhiteboardService
	members     Membership
	rateLimiter *RateLimiter
}

// NewRouter creates a new command router
func NewRouter(perms PermissionService, whiteboards WhiteboardService, members Membership, limiter *RateLimiter) *Router {
	if limiter == nil {
		limiter = NewRateLimiter(DefaultCommandsPerSecond, DefaultBurst)
	}

	return &Router{
		permissions: perms,
		whiteboards: whiteboards,
		members:     members,
		rateLimiter: limiter,
	}
}

// RouteMessage validates, authorizes and applies one command
func (r *Router) RouteMessage(ctx context.Context, message *types.Message) error {
	if err := r.ValidateMessage(message); err != nil {
		commandsRouted.WithLabelValues(commandLabel(message.Type), resultInvalid).Inc()
		return err
	}

	sender := message.Sender()

	// TECHNICAL DISCOVERY: Rate limiting applied per participant before any
	// permission lookup so a flood costs nothing downstream
	if !r.rateLimiter.Allow(sender.Key()) {
		commandsRouted.WithLabelValues(message.Type, resultRateLimited).Inc()
		return ErrRateLimitExceeded
	}

	effective, err := r.permissions.FetchForParticipant(ctx, sender)
	if err != nil {
		commandsRouted.WithLabelValues(message.Type, resultFailed).Inc()
		return fmt.Errorf("failed to fetch permissions: %w", err)
	}

	err = r.dispatch(ctx, message, sender, effective)
	switch {
	case err == nil:
		commandsRouted.WithLabelValues(message.Type, resultOK).Inc()
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrTooManyObjects):
		commandsRouted.WithLabelValues(message.Type, resultDenied).Inc()
	default:
		commandsRouted.WithLabelValues(message.Type, resultFailed).Inc()
	}
	return err
}

func (r *Router) dispatch(ctx context.Context, message *types.Message, sender types.Participant, effective permissions.EffectivePermissions) error {
	switch message.Type {
	case types.MessageTypeWhiteboardAction:
		if err := require(effective, permissions.CanUpdateWhiteboardObjects); err != nil {
			return err
		}

		action, err := whiteboard.DecodeAction(message.Payload)
		if err != nil {
			return err
		}

		// FUNCTIONAL DISCOVERY: A zero limit means the permission is not set
		if limit := int(effective.Number(permissions.MaxWhiteboardObjectsPerAction)); limit > 0 && action.Len() > limit {
			return fmt.Errorf("%w: %d > %d", ErrTooManyObjects, action.Len(), limit)
		}

		if err := r.whiteboards.Execute(message.SessionID, action); err != nil {
			return err
		}
		log.Printf("Whiteboard action applied: session=%s participant=%s kind=%s objects=%d",
			message.SessionID, sender.ID, action.Kind(), action.Len())
		return nil

	case types.MessageTypeWhiteboardUndo:
		if err := require(effective, permissions.CanUndoWhiteboard); err != nil {
			return err
		}
		return r.whiteboards.Undo(message.SessionID)

	case types.MessageTypeWhiteboardRedo:
		if err := require(effective, permissions.CanUndoWhiteboard); err != nil {
			return err
		}
		return r.whiteboards.Redo(message.SessionID)

	case types.MessageTypeWhiteboardClear:
		if err := require(effective, permissions.CanUpdateWhiteboardObjects); err != nil {
			return err
		}
		if err := r.whiteboards.Clear(message.SessionID); err != nil {
			return err
		}
		log.Printf("Whiteboard cleared: session=%s participant=%s", message.SessionID, sender.ID)
		return nil

	case types.MessageTypeSetTemporaryPermission:
		if err := require(effective, permissions.CanGiveTemporaryPermission); err != nil {
			return err
		}

		var cmd TemporaryPermissionCommand
		if err := json.Unmarshal(message.Payload, &cmd); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}

		target := types.Participant{SessionID: message.SessionID, ID: cmd.ParticipantID}
		if !r.members.IsMember(target) {
			return ErrInvalidTarget
		}

		if err := r.permissions.SetTemporaryPermission(ctx, target, cmd.Key, cmd.Value); err != nil {
			return err
		}
		log.Printf("Temporary permission set: session=%s by=%s target=%s key=%s",
			message.SessionID, sender.ID, target.ID, cmd.Key)
		return nil

	default:
		return ErrInvalidMessageType
	}
}

// commandLabel bounds the type label to the known command set; anything a
// client invents is counted as unknownCommand
func commandLabel(msgType string) string {
	if types.IsValidMessageType(msgType) {
		return msgType
	}
	return unknownCommand
}

func require(effective permissions.EffectivePermissions, p permissions.BoolPermission) error {
	if !effective.Bool(p) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, p.Key)
	}
	return nil
}

// ValidateMessage checks the message shape and that its sender is joined to
// the message's session
func (r *Router) ValidateMessage(message *types.Message) error {
	if err := message.Validate(); err != nil {
		if errors.Is(err, types.ErrInvalidMessageType) {
			return ErrInvalidMessageType
		}
		return err
	}

	if !r.members.IsMember(message.Sender()) {
		return ErrSenderNotInSession
	}

	return nil
}

// ParticipantInitialized has nothing to prepare
func (r *Router) ParticipantInitialized(ctx context.Context, participant types.Participant) error {
	return nil
}

// ParticipantJoined has nothing to prepare
func (r *Router) ParticipantJoined(ctx context.Context, participant types.Participant) error {
	return nil
}

// ParticipantLeft drops the participant's rate limiter state
func (r *Router) ParticipantLeft(ctx context.Context, participant types.Participant) {
	r.rateLimiter.Forget(participant.Key())
}

// GetStats returns router statistics for monitoring and debugging
func (r *Router) GetStats() map[string]int {
	return map[string]int{
		"rate_limited_participants": r.rateLimiter.Len(),
	}
}
