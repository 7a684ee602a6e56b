package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/ingest"
	"smartscribe/pkg/store"
	"smartscribe/pkg/utils"
)

// RegisterTranscripts registers the ingestion routes. maxUpload bounds
// multipart file size in bytes.
func RegisterTranscripts(r *mux.Router, p *ingest.Pipeline, maxUpload int64) {
	r.HandleFunc("/transcripts", func(w http.ResponseWriter, r *http.Request) {
		ingestTranscript(w, r, p, maxUpload)
	}).Methods(http.MethodPost)
	r.HandleFunc("/transcripts/by-session", listSessionTranscripts).Methods(http.MethodGet)
}

// ingestTranscript accepts either a multipart file upload or a JSON body
// with a youtube_url. Both return the pending transcript immediately;
// the status advances out-of-band.
func ingestTranscript(w http.ResponseWriter, r *http.Request, p *ingest.Pipeline, maxUpload int64) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		ingestFile(w, r, p, maxUpload)
		return
	}
	ingestURL(w, r, p)
}

func ingestFile(w http.ResponseWriter, r *http.Request, p *ingest.Pipeline, maxUpload int64) {
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeErr(w, apperr.Validation("file", "upload too large or malformed"))
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeErr(w, apperr.Validation("file", "required"))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeErr(w, apperr.Validation("file", "unreadable upload"))
		return
	}
	sessionID := r.FormValue("session_id")
	uid := callerID(r, r.FormValue("user_id"))
	title := r.FormValue("title")

	t, err := p.IngestFile(r.Context(), sessionID, uid, title, hdr.Filename, data)
	if err != nil {
		if errors.Is(err, ingest.ErrQueueFull) {
			utils.JSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusAccepted, map[string]any{"transcript": t})
}

func ingestURL(w http.ResponseWriter, r *http.Request, p *ingest.Pipeline) {
	var req struct {
		Session string `json:"session_id"`
		UserID  string `json:"user_id"`
		Title   string `json:"title"`
		URL     string `json:"youtube_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	uid := callerID(r, req.UserID)
	t, err := p.IngestYouTube(r.Context(), req.Session, uid, req.Title, req.URL)
	if err != nil {
		if errors.Is(err, ingest.ErrQueueFull) {
			utils.JSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusAccepted, map[string]any{"transcript": t})
}

func listSessionTranscripts(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeErr(w, apperr.Validation("session_id", "required"))
		return
	}
	if err := requireOwnership(r, sessionID); err != nil {
		writeErr(w, err)
		return
	}
	ts, err := store.ListSessionTranscripts(sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"transcripts": ts})
}
