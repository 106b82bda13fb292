// Package api is the HTTP surface: chat-session endpoints backed by the
// durable store, the online-users view, and the WebSocket mount point.
// It owns persistence and reconciliation; the real-time relay only ever
// provides best-effort live notifications on top of what is stored here.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"marketchat/internal/session"
	"marketchat/pkg/interfaces"
	"marketchat/pkg/types"
)

// Presence is the registry view the API needs: the online set and a few
// counters for the health endpoint.
type Presence interface {
	ListOnline() []types.OnlineUser
	Stats() map[string]int
}

// Server wires the chat endpoints onto a chi router.
type Server struct {
	sessions *session.Manager
	presence Presence
	router   chi.Router
}

// NewServer builds the HTTP server. wsHandler, when non-nil, is mounted
// at /ws so the whole surface shares one listener.
func NewServer(sessions *session.Manager, presence Presence, wsHandler http.HandlerFunc) *Server {
	s := &Server{
		sessions: sessions,
		presence: presence,
		router:   chi.NewRouter(),
	}

	s.router.Use(corsMiddleware, jsonMiddleware)
	s.router.Route("/api/chat", func(r chi.Router) {
		r.Get("/users", s.listOnlineUsers)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.createSession)
			r.Get("/", s.listSessions)
			r.Get("/{sessionID}", s.getHistory)
			r.Post("/{sessionID}/messages", s.postMessage)
		})
	})
	s.router.Get("/health", s.healthCheck)
	if wsHandler != nil {
		s.router.Get("/ws", wsHandler)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type createSessionRequest struct {
	VendorID   string `json:"vendorId"`
	VendorName string `json:"vendorName"`
	ClientID   string `json:"clientId"`
	ClientName string `json:"clientName"`
}

type sessionResponse struct {
	Session *types.ChatSession `json:"session"`
}

type listSessionsResponse struct {
	Sessions []*types.ChatSession `json:"sessions"`
}

type historyResponse struct {
	Session  *types.ChatSession   `json:"session"`
	Messages []*types.ChatMessage `json:"messages"`
}

type postMessageRequest struct {
	SenderID string `json:"senderId"`
	Message  string `json:"message"`
}

type messageResponse struct {
	ChatMessage *types.ChatMessage `json:"chatMessage"`
}

type onlineUsersResponse struct {
	Users []types.OnlineUser `json:"users"`
}

// createSession finds or creates the session for a vendor/client pair.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	chat, err := s.sessions.FindOrCreateSession(r.Context(), req.VendorID, req.VendorName, req.ClientID, req.ClientName)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidParticipant), errors.Is(err, session.ErrSameParticipant):
			s.sendError(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("create session failed: %v", err)
			s.sendError(w, "failed to create session", http.StatusInternalServerError)
		}
		return
	}
	s.sendJSON(w, http.StatusOK, sessionResponse{Session: chat})
}

// listSessions returns the caller's sessions with unread counters.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.sendError(w, "user_id query parameter required", http.StatusBadRequest)
		return
	}

	sessions, err := s.sessions.ListSessions(r.Context(), userID)
	if err != nil {
		if errors.Is(err, session.ErrInvalidParticipant) {
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("list sessions failed for %s: %v", userID, err)
		s.sendError(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []*types.ChatSession{}
	}
	s.sendJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

// getHistory returns the session's messages for a participant and
// reconciles their unread state.
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "sessionID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.sendError(w, "user_id query parameter required", http.StatusBadRequest)
		return
	}

	chat, messages, err := s.sessions.GetHistory(r.Context(), chatID, userID)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrChatNotFound):
			s.sendError(w, "chat session not found", http.StatusNotFound)
		case errors.Is(err, session.ErrNotParticipant):
			s.sendError(w, "not a participant of this chat", http.StatusForbidden)
		default:
			log.Printf("history load failed for %s: %v", chatID, err)
			s.sendError(w, "failed to load history", http.StatusInternalServerError)
		}
		return
	}
	if messages == nil {
		messages = []*types.ChatMessage{}
	}
	s.sendJSON(w, http.StatusOK, historyResponse{Session: chat, Messages: messages})
}

// postMessage persists a message out-of-band of the relay.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "sessionID")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SenderID == "" {
		s.sendError(w, "senderId required", http.StatusBadRequest)
		return
	}

	msg, err := s.sessions.PostMessage(r.Context(), chatID, req.SenderID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrChatNotFound):
			s.sendError(w, "chat session not found", http.StatusNotFound)
		case errors.Is(err, session.ErrNotParticipant):
			s.sendError(w, "not a participant of this chat", http.StatusForbidden)
		case errors.Is(err, types.ErrInvalidMessage):
			s.sendError(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("message persistence failed for %s: %v", chatID, err)
			s.sendError(w, "failed to store message", http.StatusInternalServerError)
		}
		return
	}
	s.sendJSON(w, http.StatusCreated, messageResponse{ChatMessage: msg})
}

// listOnlineUsers returns the current presence set.
func (s *Server) listOnlineUsers(w http.ResponseWriter, r *http.Request) {
	users := s.presence.ListOnline()
	if users == nil {
		users = []types.OnlineUser{}
	}
	s.sendJSON(w, http.StatusOK, onlineUsersResponse{Users: users})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"presence": s.presence.Stats(),
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("response encoding failed: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, status int) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
