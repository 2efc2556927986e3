// Package server exposes the triage engine over HTTP. Sessions are managed
// with a small JSON API; turns stream back as server-sent events. One turn
// runs per session at a time: a second concurrent turn request is rejected
// with 409 rather than queued, and a client disconnect cancels the running
// turn (the state already merged is persisted by the synthesis layer).
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/vaidyahealth/vaidya/providers/session"
	"github.com/vaidyahealth/vaidya/triage"
	"github.com/vaidyahealth/vaidya/triage/stages"
	"github.com/vaidyahealth/vaidya/triage/stream"
)

// DefaultMaxSessionMessages bounds the conversation length a single session
// may accumulate.
const DefaultMaxSessionMessages = 50

// Server wires the session store and the turn synthesizer to the HTTP API.
type Server struct {
	store       session.Store
	synthesizer *stream.Synthesizer
	logger      *slog.Logger
	maxMessages int

	turnLocks sync.Map // session ID -> *sync.Mutex
}

// Option configures optional Server behavior.
type Option func(*Server)

// WithLogger sets the slog logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(server *Server) { server.logger = logger }
}

// WithMaxSessionMessages overrides the per-session message cap. Values below
// 1 are ignored.
func WithMaxSessionMessages(limit int) Option {
	return func(server *Server) {
		if limit >= 1 {
			server.maxMessages = limit
		}
	}
}

// New creates a Server over the given store and synthesizer.
func New(store session.Store, synthesizer *stream.Synthesizer, options ...Option) *Server {
	server := &Server{
		store:       store,
		synthesizer: synthesizer,
		logger:      slog.Default(),
		maxMessages: DefaultMaxSessionMessages,
	}
	for _, option := range options {
		option(server)
	}
	return server
}

// Handler returns the routed HTTP handler for the API.
func (server *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", server.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", server.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", server.handleGetSession)
	mux.HandleFunc("GET /api/sessions/{id}/history", server.handleSessionHistory)
	mux.HandleFunc("DELETE /api/sessions/{id}", server.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/complete", server.handleCompleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/messages", server.handleTurn)
	mux.HandleFunc("GET /healthz", server.handleHealth)
	return mux
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

// createSessionResponse is the new session plus the welcome message the client
// shows before the first turn.
type createSessionResponse struct {
	*session.Session
	GreetingText string `json:"greeting_text"`
}

func (server *Server) handleCreateSession(response http.ResponseWriter, request *http.Request) {
	var body createSessionRequest
	if err := decodeJSON(request, &body); err != nil {
		writeError(response, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	created, err := server.store.Create(request.Context(), body.UserID)
	if err != nil {
		server.logger.ErrorContext(request.Context(), "session creation failed",
			slog.String("error", err.Error()))
		writeError(response, http.StatusInternalServerError, stream.CodePersistence, "could not create session")
		return
	}

	writeJSON(response, http.StatusCreated, createSessionResponse{
		Session:      created,
		GreetingText: stages.GreetingText,
	})
}

func (server *Server) handleListSessions(response http.ResponseWriter, request *http.Request) {
	userID := request.URL.Query().Get("user_id")
	if userID == "" {
		writeError(response, http.StatusBadRequest, "BAD_REQUEST", "user_id query parameter is required")
		return
	}

	sessions, err := server.store.ListByUser(request.Context(), userID)
	if err != nil {
		writeError(response, http.StatusInternalServerError, stream.CodePersistence, "could not list sessions")
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	writeJSON(response, http.StatusOK, sessions)
}

func (server *Server) handleGetSession(response http.ResponseWriter, request *http.Request) {
	loaded, err := server.loadSession(response, request)
	if err != nil {
		return
	}
	writeJSON(response, http.StatusOK, loaded)
}

type sessionHistoryResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []triage.Message `json:"messages"`
}

// handleSessionHistory returns just the message log, without the rest of the
// conversation state.
func (server *Server) handleSessionHistory(response http.ResponseWriter, request *http.Request) {
	loaded, err := server.loadSession(response, request)
	if err != nil {
		return
	}

	messages := loaded.State.Messages
	if messages == nil {
		messages = []triage.Message{}
	}
	writeJSON(response, http.StatusOK, sessionHistoryResponse{
		SessionID: loaded.ID,
		Messages:  messages,
	})
}

func (server *Server) handleDeleteSession(response http.ResponseWriter, request *http.Request) {
	if err := server.store.Delete(request.Context(), request.PathValue("id")); err != nil {
		writeError(response, http.StatusInternalServerError, stream.CodePersistence, "could not delete session")
		return
	}
	server.turnLocks.Delete(request.PathValue("id"))
	response.WriteHeader(http.StatusNoContent)
}

func (server *Server) handleCompleteSession(response http.ResponseWriter, request *http.Request) {
	sessionID := request.PathValue("id")
	if err := server.store.Complete(request.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(response, http.StatusNotFound, "NOT_FOUND", "session not found")
			return
		}
		writeError(response, http.StatusInternalServerError, stream.CodePersistence, "could not complete session")
		return
	}
	response.WriteHeader(http.StatusNoContent)
}

func (server *Server) handleHealth(response http.ResponseWriter, request *http.Request) {
	writeJSON(response, http.StatusOK, map[string]string{"status": "ok"})
}

type turnRequest struct {
	Message  string           `json:"message"`
	Location *triage.GeoPoint `json:"location,omitempty"`
	Country  string           `json:"country,omitempty"` // ISO 3166-1 alpha-2
}

// handleTurn runs one conversational turn and streams its events as SSE.
func (server *Server) handleTurn(response http.ResponseWriter, request *http.Request) {
	loaded, err := server.loadSession(response, request)
	if err != nil {
		return
	}

	var body turnRequest
	if err := decodeJSON(request, &body); err != nil {
		writeError(response, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(response, http.StatusBadRequest, "BAD_REQUEST", "message must not be empty")
		return
	}

	if loaded.Completed {
		writeError(response, http.StatusConflict, "SESSION_COMPLETED", "session is completed")
		return
	}
	if len(loaded.State.Messages) >= server.maxMessages {
		writeError(response, http.StatusConflict, "SESSION_LIMIT",
			"session reached its message limit; start a new session")
		return
	}

	lock := server.turnLock(loaded.ID)
	if !lock.TryLock() {
		writeError(response, http.StatusConflict, "TURN_IN_PROGRESS",
			"a turn is already running for this session")
		return
	}
	defer lock.Unlock()

	state := loaded.State
	if body.Location != nil {
		state.UserLocation = body.Location
	}
	if country := strings.ToUpper(strings.TrimSpace(body.Country)); country != "" {
		state.UserCountry = country
	}

	writer, err := newSSEWriter(response)
	if err != nil {
		writeError(response, http.StatusInternalServerError, stream.CodeInternal, err.Error())
		return
	}

	// The request context cancels the run when the client disconnects; the
	// synthesizer persists whatever state was merged before cancellation.
	for event := range server.synthesizer.Turn(request.Context(), state, body.Message) {
		if err := writer.send(string(event.Type), event); err != nil {
			server.logger.DebugContext(request.Context(), "client disconnected mid-turn",
				slog.String("session_id", loaded.ID))
			return
		}
	}
}

// loadSession resolves the path session ID, writing the error response itself
// on failure.
func (server *Server) loadSession(response http.ResponseWriter, request *http.Request) (*session.Session, error) {
	sessionID := request.PathValue("id")
	loaded, err := server.store.Get(request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(response, http.StatusNotFound, "NOT_FOUND", "session not found")
		} else {
			writeError(response, http.StatusInternalServerError, stream.CodePersistence, "could not load session")
		}
		return nil, err
	}
	return loaded, nil
}

func (server *Server) turnLock(sessionID string) *sync.Mutex {
	lock, _ := server.turnLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func decodeJSON(request *http.Request, target any) error {
	decoder := json.NewDecoder(request.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(response http.ResponseWriter, status int, payload any) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	_ = json.NewEncoder(response).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(response http.ResponseWriter, status int, code, message string) {
	writeJSON(response, status, errorResponse{Error: message, Code: code})
}
