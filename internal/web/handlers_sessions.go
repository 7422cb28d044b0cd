package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/uploadkit/internal/accept"
	"github.com/JonMunkholm/uploadkit/internal/adapter"
	"github.com/JonMunkholm/uploadkit/internal/core"
	"github.com/JonMunkholm/uploadkit/internal/history"
)

// sessionResponse describes a newly created session.
type sessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	MaxFiles  int       `json:"maxFiles"`
	EventsURL string    `json:"eventsUrl"`
}

// filesResponse is the record list of a session.
type filesResponse struct {
	Files       []core.Record `json:"files"`
	IsUploading bool          `json:"isUploading"`
	HasFiles    bool          `json:"hasFiles"`
}

// limitsResponse reports the upload policy and transfer capacity.
type limitsResponse struct {
	Accept      []accept.Type         `json:"accept"`
	Extensions  []string              `json:"extensions"`
	MaxFileSize int64                 `json:"maxFileSize"`
	MinFileSize int64                 `json:"minFileSize"`
	MaxFiles    int                   `json:"maxFiles"`
	Transfers   *adapter.LimiterStatus `json:"transfers,omitempty"`
}

// handleHealth reports liveness and the number of open sessions.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

// handleLimits returns the accept policy and global transfer slots.
func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	resp := limitsResponse{
		Accept:      s.accept.Accept,
		Extensions:  accept.Extensions(s.accept.Accept),
		MaxFileSize: s.accept.MaxFileSize,
		MinFileSize: s.accept.MinFileSize,
		MaxFiles:    s.accept.MaxFiles,
	}
	if s.limiter != nil {
		st := s.limiter.Status()
		resp.Transfers = &st
	}
	writeJSON(w, resp)
}

// handleCreateSession starts a session for the caller.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create(r.Context())
	writeJSONStatus(w, http.StatusCreated, sessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		MaxFiles:  sess.MaxFiles,
		EventsURL: "/api/sessions/" + sess.ID + "/events",
	})
}

// handleEndSession aborts a session's uploads and forgets it.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.End(sessionFrom(r.Context()).ID); err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListFiles returns every record in admission order.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	m := sessionFrom(r.Context()).Manager
	writeJSON(w, filesResponse{
		Files:       nonNil(m.Records()),
		IsUploading: m.IsUploading(),
		HasFiles:    m.HasFiles(),
	})
}

// handleHistory returns persisted outcomes of the session, newest first.
// Supports action, limit and offset query parameters.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, r, errHistoryOff, http.StatusNotFound)
		return
	}

	entries, err := s.history.List(r.Context(), history.Filter{
		SessionID: sessionFrom(r.Context()).ID,
		Action:    history.Action(r.URL.Query().Get("action")),
		Limit:     parseIntParam(r, "limit", history.DefaultListLimit),
		Offset:    parseIntParam(r, "offset", 0),
	})
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, entries)
}

// handleEvents upgrades to a websocket carrying the session's events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.hub.Serve(w, r, sessionFrom(r.Context()).ID)
}

// handleIndex starts a session and redirects to its page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create(r.Context())
	http.Redirect(w, r, "/sessions/"+sess.ID, http.StatusSeeOther)
}

// handleSessionPage renders the status page of a session.
func (s *Server) handleSessionPage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sid"))
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	view := sessionView{
		ID:          sess.ID,
		Records:     sess.Manager.Records(),
		Accept:      s.accept,
		IsUploading: sess.Manager.IsUploading(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := sessionPage(view).Render(r.Context(), w); err != nil {
		s.log.Error("render session page", "session_id", sess.ID, "error", err)
	}
}
