package interfaces

import (
	"context"

	"syncboard/pkg/types"
)

// MessageRouter handles inbound client commands
// ARCHITECTURAL DISCOVERY: Routing logic abstracted from transport
// enables testing command handling without WebSocket connections
type MessageRouter interface {
	// RouteMessage validates and dispatches a command
	RouteMessage(ctx context.Context, message *types.Message) error

	// ValidateMessage validates message content before dispatch
	ValidateMessage(message *types.Message) error
}
