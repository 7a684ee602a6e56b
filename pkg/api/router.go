// Package api assembles the HTTP surface: session registry, message
// exchange, transcript ingestion.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"smartscribe/pkg/api/handlers"
	"smartscribe/pkg/exchange"
	"smartscribe/pkg/ingest"
	"smartscribe/pkg/store"
	"smartscribe/pkg/utils"
)

// Deps carries the collaborators the handlers need.
type Deps struct {
	Exchanger      *exchange.Exchanger
	Pipeline       *ingest.Pipeline
	MaxUploadBytes int64
}

// NewRouter builds the application router. Middleware (auth gateway,
// telemetry) is layered on by the caller.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !store.Ready() {
			utils.JSONError(w, http.StatusServiceUnavailable, "store not ready")
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ready"})
	}).Methods(http.MethodGet)

	handlers.RegisterSessions(r)
	handlers.RegisterMessages(r, d.Exchanger)
	handlers.RegisterTranscripts(r, d.Pipeline, d.MaxUploadBytes)
	return r
}
