package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"syncboard/internal/permissions"
	"syncboard/internal/session"
	"syncboard/internal/websocket"
	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// Registry interface to avoid tight coupling to websocket.Registry implementation
type Registry interface {
	GetSessionConnections(sessionID string) []*websocket.Connection
	GetStats() map[string]int
}

// PermissionService is the slice of the permission engine the API reads and refreshes
type PermissionService interface {
	FetchForParticipant(ctx context.Context, participant types.Participant) (permissions.EffectivePermissions, error)
	RecomputeForParticipants(ctx context.Context, participants []types.Participant) error
}

// StateReader returns the snapshot a participant would receive on join
type StateReader interface {
	GetStateFor(sessionID, participantID string) map[string]interface{}
}

// Membership answers whether a participant is currently joined
type Membership interface {
	IsMember(participant types.Participant) bool
}

// RoleCatalog reports which role names are configured
type RoleCatalog interface {
	HasRole(name string) bool
}

// Dependencies groups the components the HTTP surface fronts
type Dependencies struct {
	Sessions    interfaces.SessionManager
	Database    interfaces.DatabaseManager
	Connections Registry
	Permissions PermissionService
	State       StateReader
	Members     Membership
	Roles       RoleCatalog
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	deps   Dependencies
	router *http.ServeMux
}

// NewServer wires routes for the given components
func NewServer(deps Dependencies) *Server {
	s := &Server{
		deps:   deps,
		router: http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
// CORS and JSON middleware applied to all routes for web client compatibility
func (s *Server) setupRoutes() {
	api := func(h http.HandlerFunc) http.Handler {
		return s.corsMiddleware(s.jsonMiddleware(h))
	}

	s.router.Handle("POST /api/sessions", api(s.createSession))
	s.router.Handle("GET /api/sessions", api(s.listSessions))
	s.router.Handle("GET /api/sessions/{sessionID}", api(s.getSession))
	s.router.Handle("DELETE /api/sessions/{sessionID}", api(s.endSession))

	s.router.Handle("PUT /api/sessions/{sessionID}/participants/{participantID}/role", api(s.assignRole))
	s.router.Handle("DELETE /api/sessions/{sessionID}/participants/{participantID}/role", api(s.removeRole))
	s.router.Handle("GET /api/sessions/{sessionID}/roles", api(s.listRoles))
	s.router.Handle("GET /api/sessions/{sessionID}/participants/{participantID}/permissions", api(s.getPermissions))
	s.router.Handle("GET /api/sessions/{sessionID}/participants/{participantID}/state", api(s.getState))

	s.router.Handle("GET /health", api(s.healthCheck))
	s.router.Handle("GET /metrics", promhttp.Handler())

	// FUNCTIONAL DISCOVERY: Preflight requests match no method pattern, so
	// they get their own catch-all
	s.router.Handle("OPTIONS /", s.corsMiddleware(http.NotFoundHandler()))
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization
type CreateSessionRequest struct {
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
}

type CreateSessionResponse struct {
	Session *types.Session `json:"session"`
}

type SessionResponse struct {
	Session         *types.Session `json:"session"`
	ConnectionCount int            `json:"connection_count"`
}

type ListSessionsResponse struct {
	Sessions []SessionWithConnections `json:"sessions"`
}

type SessionWithConnections struct {
	*types.Session
	ConnectionCount int `json:"connection_count"`
}

type AssignRoleRequest struct {
	Role string `json:"role"`
}

type RoleResponse struct {
	Assignment *types.RoleAssignment `json:"assignment"`
}

type ListRolesResponse struct {
	Assignments []*types.RoleAssignment `json:"assignments"`
}

type PermissionsResponse struct {
	ParticipantID string                           `json:"participant_id"`
	Permissions   permissions.EffectivePermissions `json:"permissions"`
}

type StateResponse struct {
	ParticipantID string                 `json:"participant_id"`
	State         map[string]interface{} `json:"state"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// POST /api/sessions
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	created, err := s.deps.Sessions.CreateSession(r.Context(), req.Name, req.CreatedBy)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidSessionName), errors.Is(err, session.ErrInvalidCreatedBy):
			s.sendError(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("API create session failed: error=%v", err)
			s.sendError(w, "Failed to create session", http.StatusInternalServerError)
		}
		return
	}

	s.sendJSON(w, http.StatusCreated, CreateSessionResponse{Session: created})
}

// GET /api/sessions/{id}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	found, err := s.deps.Sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		s.sendSessionError(w, err, "Failed to get session")
		return
	}

	s.sendJSON(w, http.StatusOK, SessionResponse{
		Session:         found,
		ConnectionCount: len(s.deps.Connections.GetSessionConnections(sessionID)),
	})
}

// DELETE /api/sessions/{id}
// FUNCTIONAL DISCOVERY: Clients are notified by the session manager, the
// handler only maps the outcome
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	if err := s.deps.Sessions.EndSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrSessionAlreadyEnded) {
			s.sendError(w, "Session already ended", http.StatusBadRequest)
			return
		}
		s.sendSessionError(w, err, "Failed to end session")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"message": "Session ended successfully"})
}

// GET /api/sessions
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Sessions.ListActiveSessions(r.Context())
	if err != nil {
		s.sendError(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	withConnections := make([]SessionWithConnections, len(sessions))
	for i, sess := range sessions {
		withConnections[i] = SessionWithConnections{
			Session:         sess,
			ConnectionCount: len(s.deps.Connections.GetSessionConnections(sess.ID)),
		}
	}

	s.sendJSON(w, http.StatusOK, ListSessionsResponse{Sessions: withConnections})
}

// activeSession loads a session and rejects ended ones
func (s *Server) activeSession(w http.ResponseWriter, r *http.Request) (*types.Session, bool) {
	found, err := s.deps.Sessions.GetSession(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		s.sendSessionError(w, err, "Failed to get session")
		return nil, false
	}
	if found.Status != types.SessionStatusActive {
		s.sendError(w, "Session has ended", http.StatusGone)
		return nil, false
	}
	return found, true
}

// PUT /api/sessions/{id}/participants/{pid}/role
func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}

	participant := types.Participant{SessionID: sess.ID, ID: r.PathValue("participantID")}
	if !types.IsValidUserID(participant.ID) {
		s.sendError(w, types.ErrInvalidUserID.Error(), http.StatusBadRequest)
		return
	}

	var req AssignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidRole(req.Role) {
		s.sendError(w, types.ErrInvalidRole.Error(), http.StatusBadRequest)
		return
	}
	if s.deps.Roles != nil && !s.deps.Roles.HasRole(req.Role) {
		s.sendError(w, fmt.Sprintf("Role %q is not configured", req.Role), http.StatusBadRequest)
		return
	}

	assignment := &types.RoleAssignment{
		SessionID:     sess.ID,
		ParticipantID: participant.ID,
		Role:          req.Role,
		AssignedAt:    time.Now().UTC(),
	}
	if err := s.deps.Database.SetParticipantRole(r.Context(), assignment); err != nil {
		log.Printf("API assign role failed: session=%s participant=%s error=%v", sess.ID, participant.ID, err)
		s.sendError(w, "Failed to assign role", http.StatusInternalServerError)
		return
	}

	s.refreshPermissions(r.Context(), participant)
	log.Printf("Role assigned: session=%s participant=%s role=%s", sess.ID, participant.ID, req.Role)

	s.sendJSON(w, http.StatusOK, RoleResponse{Assignment: assignment})
}

// DELETE /api/sessions/{id}/participants/{pid}/role
func (s *Server) removeRole(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}

	participant := types.Participant{SessionID: sess.ID, ID: r.PathValue("participantID")}
	if err := s.deps.Database.DeleteParticipantRole(r.Context(), sess.ID, participant.ID); err != nil {
		if errors.Is(err, interfaces.ErrRoleNotAssigned) {
			s.sendError(w, "Role not assigned", http.StatusNotFound)
			return
		}
		log.Printf("API remove role failed: session=%s participant=%s error=%v", sess.ID, participant.ID, err)
		s.sendError(w, "Failed to remove role", http.StatusInternalServerError)
		return
	}

	s.refreshPermissions(r.Context(), participant)
	log.Printf("Role removed: session=%s participant=%s", sess.ID, participant.ID)

	s.sendJSON(w, http.StatusOK, map[string]string{"message": "Role removed"})
}

// refreshPermissions republishes a joined participant's permission object.
// Participants that are not connected pick the new role up when they join.
func (s *Server) refreshPermissions(ctx context.Context, participant types.Participant) {
	if s.deps.Permissions == nil || s.deps.Members == nil || !s.deps.Members.IsMember(participant) {
		return
	}
	if err := s.deps.Permissions.RecomputeForParticipants(ctx, []types.Participant{participant}); err != nil {
		log.Printf("Permission recompute failed: session=%s participant=%s error=%v",
			participant.SessionID, participant.ID, err)
	}
}

// GET /api/sessions/{id}/roles
func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if _, err := s.deps.Sessions.GetSession(r.Context(), sessionID); err != nil {
		s.sendSessionError(w, err, "Failed to get session")
		return
	}

	assignments, err := s.deps.Database.ListParticipantRoles(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Failed to list roles", http.StatusInternalServerError)
		return
	}
	if assignments == nil {
		assignments = []*types.RoleAssignment{}
	}

	s.sendJSON(w, http.StatusOK, ListRolesResponse{Assignments: assignments})
}

// GET /api/sessions/{id}/participants/{pid}/permissions?requester={rid}
// FUNCTIONAL DISCOVERY: A participant may always read their own permissions;
// reading anyone else's needs canSeeAnyParticipantsPermissions
func (s *Server) getPermissions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}

	target := types.Participant{SessionID: sess.ID, ID: r.PathValue("participantID")}
	requester := types.Participant{SessionID: sess.ID, ID: r.URL.Query().Get("requester")}
	if requester.ID == "" {
		s.sendError(w, "requester query parameter is required", http.StatusBadRequest)
		return
	}
	if !s.deps.Members.IsMember(requester) {
		s.sendError(w, "Requester is not in this session", http.StatusForbidden)
		return
	}

	if requester.ID != target.ID {
		own, err := s.deps.Permissions.FetchForParticipant(r.Context(), requester)
		if err != nil {
			s.sendError(w, "Failed to fetch permissions", http.StatusInternalServerError)
			return
		}
		if !own.Bool(permissions.CanSeeAnyParticipantsPermissions) {
			s.sendError(w, "Not allowed to read other participants' permissions", http.StatusForbidden)
			return
		}
		if !s.deps.Members.IsMember(target) {
			s.sendError(w, "Participant not in session", http.StatusNotFound)
			return
		}
	}

	effective, err := s.deps.Permissions.FetchForParticipant(r.Context(), target)
	if err != nil {
		s.sendError(w, "Failed to fetch permissions", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusOK, PermissionsResponse{ParticipantID: target.ID, Permissions: effective})
}

// GET /api/sessions/{id}/participants/{pid}/state
func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}

	participant := types.Participant{SessionID: sess.ID, ID: r.PathValue("participantID")}
	if !s.deps.Members.IsMember(participant) {
		s.sendError(w, "Participant not in session", http.StatusNotFound)
		return
	}

	s.sendJSON(w, http.StatusOK, StateResponse{
		ParticipantID: participant.ID,
		State:         s.deps.State.GetStateFor(sess.ID, participant.ID),
	})
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now(),
		Database:    "healthy",
		Connections: s.deps.Connections.GetStats(),
	}

	code := http.StatusOK
	if err := s.deps.Database.HealthCheck(ctx); err != nil {
		response.Status = "unhealthy"
		response.Database = fmt.Sprintf("error: %v", err)
		code = http.StatusServiceUnavailable
	}

	s.sendJSON(w, code, response)
}

// sendSessionError maps session lookup failures to status codes
func (s *Server) sendSessionError(w http.ResponseWriter, err error, fallback string) {
	if errors.Is(err, session.ErrSessionNotFound) {
		s.sendError(w, "Session not found", http.StatusNotFound)
		return
	}
	log.Printf("API session error: error=%v", err)
	s.sendError(w, fallback, http.StatusInternalServerError)
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, body interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("API response encode failed: error=%v", err)
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
// Allows all origins in development - would be restricted in production
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
