package server

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"

	"digibattle/internal/battle"
	"digibattle/internal/creature"
	"digibattle/internal/session"
	"digibattle/internal/storage"
)

// RoomLister lists the rooms currently open.
type RoomLister interface {
	ListRooms(state string) ([]storage.RoomRow, error)
}

// Server is the HTTP server.
type Server struct {
	mux     *http.ServeMux
	roster  *creature.Registry
	manager *session.Manager
	rooms   RoomLister
	webFS   fs.FS
	log     *slog.Logger
}

// New creates a server with all routes.
func New(roster *creature.Registry, manager *session.Manager, rooms RoomLister, webFS fs.FS, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mux:     http.NewServeMux(),
		roster:  roster,
		manager: manager,
		rooms:   rooms,
		webFS:   webFS,
		log:     logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// API routes
	s.mux.HandleFunc("GET /api/creatures", s.handleListCreatures)
	s.mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("GET /api/sessions/{id}/ws", s.handleWebSocket)

	s.mux.HandleFunc("POST /api/sessions/{id}/create", s.sessionAction(http.StatusOK, selectCreate))
	s.mux.HandleFunc("POST /api/sessions/{id}/join", s.sessionAction(http.StatusOK, selectJoin))
	s.mux.HandleFunc("POST /api/sessions/{id}/back", s.sessionAction(http.StatusOK, back))
	s.mux.HandleFunc("POST /api/sessions/{id}/rooms", s.sessionAction(http.StatusCreated, createRoom))
	s.mux.HandleFunc("POST /api/sessions/{id}/rooms/join", s.sessionAction(http.StatusOK, joinRoom))
	s.mux.HandleFunc("POST /api/sessions/{id}/ready", s.sessionAction(http.StatusOK, ready))
	s.mux.HandleFunc("POST /api/sessions/{id}/attack", s.sessionAction(http.StatusOK, attack))
	s.mux.HandleFunc("POST /api/sessions/{id}/play-again", s.sessionAction(http.StatusOK, playAgain))
	s.mux.HandleFunc("POST /api/sessions/{id}/exit", s.sessionAction(http.StatusOK, exit))

	// Static files
	if s.webFS != nil {
		s.mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListCreatures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.roster.List())
}

type roomInfo struct {
	Code     string `json:"code"`
	Host     string `json:"host"`
	Creature string `json:"creature"`
	State    string `json:"gameState"`
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rows, err := s.rooms.ListRooms(r.URL.Query().Get("state"))
	if err != nil {
		s.log.ErrorContext(r.Context(), "list rooms", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not list rooms"})
		return
	}
	out := make([]roomInfo, 0, len(rows))
	for _, row := range rows {
		out = append(out, roomInfo{Code: row.Code, Host: row.Host, Creature: row.Creature, State: row.State})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.manager.Create()
	writeJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.manager.Remove(r.PathValue("id")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// roomRequest is the body of the create and join forms.
type roomRequest struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
	Creature   string `json:"creature"`
}

// intent applies one user action to a session.
type intent func(sess *session.Session, req roomRequest) (session.View, error)

func selectCreate(sess *session.Session, _ roomRequest) (session.View, error) {
	return sess.SelectCreate()
}

func selectJoin(sess *session.Session, _ roomRequest) (session.View, error) {
	return sess.SelectJoin()
}

func back(sess *session.Session, _ roomRequest) (session.View, error) {
	return sess.Back()
}

func ready(sess *session.Session, _ roomRequest) (session.View, error) {
	return sess.MarkReady()
}

func attack(sess *session.Session, _ roomRequest) (session.View, error) {
	return sess.Attack()
}

func playAgain(sess *session.Session, _ roomRequest) (session.View, error) {
	return sess.PlayAgain()
}

func exit(sess *session.Session, _ roomRequest) (session.View, error) {
	return sess.Exit()
}

func createRoom(sess *session.Session, req roomRequest) (session.View, error) {
	return sess.CreateRoom(req.PlayerName, req.Creature)
}

func joinRoom(sess *session.Session, req roomRequest) (session.View, error) {
	return sess.JoinRoom(req.RoomCode, req.PlayerName, req.Creature)
}

func (s *Server) sessionAction(okStatus int, fn intent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.manager.Get(r.PathValue("id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		var req roomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		view, err := fn(sess, req)
		if err != nil {
			writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, okStatus, view)
	}
}

// statusFor maps game errors onto HTTP statuses: bad input is a 400, a
// well-formed action that the current state does not allow is a 409.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNameRequired),
		errors.Is(err, session.ErrNameTooLong),
		errors.Is(err, battle.ErrInvalidRoomCode),
		errors.Is(err, creature.ErrUnknown):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrClosed),
		errors.Is(err, battle.ErrNotBattling),
		errors.Is(err, battle.ErrNotReady),
		errors.Is(err, battle.ErrRoundOver),
		errors.Is(err, battle.ErrRoundRunning),
		errors.Is(err, battle.ErrNotYourTurn),
		errors.Is(err, battle.ErrAlreadyReady),
		errors.Is(err, battle.ErrUnknownPlayer),
		errors.Is(err, battle.ErrRoomFull):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
