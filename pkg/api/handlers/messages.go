package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/exchange"
	"smartscribe/pkg/logger"
	"smartscribe/pkg/models"
	"smartscribe/pkg/store"
	"smartscribe/pkg/utils"
)

// RegisterMessages registers the message append/list routes and the
// /talk exchange route.
func RegisterMessages(r *mux.Router, ex *exchange.Exchanger) {
	r.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		storeMessage(w, r, ex)
	}).Methods(http.MethodPost)
	r.HandleFunc("/messages", listMessages).Methods(http.MethodGet)
	r.HandleFunc("/talk", func(w http.ResponseWriter, r *http.Request) {
		talk(w, r, ex)
	}).Methods(http.MethodPost)
}

// storeMessage is phase one on its own: the user message is durable once
// this returns 201, regardless of any later /talk outcome.
func storeMessage(w http.ResponseWriter, r *http.Request, ex *exchange.Exchanger) {
	var req struct {
		Session string `json:"session_id"`
		Sender  string `json:"sender"`
		Text    string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Sender != "" && req.Sender != models.SenderUser {
		writeErr(w, apperr.Validation("sender", "must be \"user\""))
		return
	}
	if err := requireOwnership(r, req.Session); err != nil {
		writeErr(w, err)
		return
	}
	m, err := ex.StoreUserMessage(req.Session, req.Text)
	if err != nil {
		writeErr(w, err)
		return
	}
	logger.Info("message_saved", "session", m.Session, "id", m.ID)
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]any{"message_doc": m})
}

func listMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeErr(w, apperr.Validation("session_id", "required"))
		return
	}
	if err := requireOwnership(r, sessionID); err != nil {
		writeErr(w, err)
		return
	}
	msgs, err := store.ListMessages(sessionID, 0)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"messages": msgs})
}

// talk is phase two of an exchange: it only generates and stores the
// assistant reply. The user message is stored via POST /messages first;
// a failure here leaves that message untouched, so clients reconcile by
// re-fetching rather than re-submitting the same text.
func talk(w http.ResponseWriter, r *http.Request, ex *exchange.Exchanger) {
	var req struct {
		Session string `json:"session_id"`
		Prompt  string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := requireOwnership(r, req.Session); err != nil {
		writeErr(w, err)
		return
	}
	reply, err := ex.Talk(r.Context(), req.Session, req.Prompt)
	if err != nil {
		writeErr(w, err)
		return
	}
	logger.Info("exchange_completed", "session", req.Session, "reply", reply.ID)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"response": reply.Text,
		"message":  reply,
	})
}

// requireOwnership checks the session exists and belongs to the caller.
// Missing sessions and foreign sessions both read as not found.
func requireOwnership(r *http.Request, sessionID string) error {
	if sessionID == "" {
		return apperr.Validation("session_id", "required")
	}
	s, err := store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if uid := callerID(r, ""); uid != "" && s.UserID != uid {
		return apperr.NotFound("session", sessionID)
	}
	return nil
}
