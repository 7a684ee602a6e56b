package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/auth"
	"smartscribe/pkg/logger"
	"smartscribe/pkg/models"
	"smartscribe/pkg/store"
	"smartscribe/pkg/utils"
	"smartscribe/pkg/validation"
)

// RegisterSessions registers the session registry routes.
func RegisterSessions(r *mux.Router) {
	r.HandleFunc("/sessions", createSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions", listSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", getSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", renameSession).Methods(http.MethodPatch)
}

// callerID resolves the acting user: the authenticated identity wins,
// a request-supplied id is accepted only when no identity was resolved
// (trusted backend callers set X-User-ID through the gateway).
func callerID(r *http.Request, fallback string) string {
	if id := auth.UserIDFromContext(r.Context()); id != "" {
		return id
	}
	return fallback
}

func createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title  string `json:"title"`
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validation.ValidateSessionTitle(req.Title); err != nil {
		writeErr(w, err)
		return
	}
	uid := callerID(r, req.UserID)
	if uid == "" {
		writeErr(w, apperr.Validation("user_id", "required"))
		return
	}
	now := time.Now().UTC().UnixNano()
	s := models.Session{
		ID:        utils.GenSessionID(),
		Title:     req.Title,
		UserID:    uid,
		CreatedTS: now,
		UpdatedTS: now,
	}
	if err := store.SaveSession(s); err != nil {
		writeErr(w, err)
		return
	}
	logger.Info("session_created", "session", s.ID, "user", uid)
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]any{"session": s})
}

func listSessions(w http.ResponseWriter, r *http.Request) {
	uid := callerID(r, r.URL.Query().Get("user_id"))
	if uid == "" {
		writeErr(w, apperr.Validation("user_id", "required"))
		return
	}
	sessions, err := store.ListSessions(uid)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func getSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, err := store.GetSession(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if uid := auth.UserIDFromContext(r.Context()); uid != "" && s.UserID != uid {
		writeErr(w, apperr.NotFound("session", id))
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"session": s})
}

// renameSession is last-writer-wins: concurrent renames both succeed and
// the later write stands.
func renameSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validation.ValidateSessionTitle(req.Title); err != nil {
		writeErr(w, err)
		return
	}
	s, err := store.GetSession(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if uid := auth.UserIDFromContext(r.Context()); uid != "" && s.UserID != uid {
		writeErr(w, apperr.NotFound("session", id))
		return
	}
	s.Title = req.Title
	s.UpdatedTS = time.Now().UTC().UnixNano()
	if err := store.SaveSession(s); err != nil {
		writeErr(w, err)
		return
	}
	logger.Info("session_renamed", "session", s.ID)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"session": s})
}
