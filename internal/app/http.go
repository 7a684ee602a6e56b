package app

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"smartscribe/pkg/api"
	"smartscribe/pkg/auth"
	"smartscribe/pkg/telemetry"
)

// startHTTP builds the handler, starts the HTTP server in a goroutine
// and returns a channel that will carry any server error.
func (a *App) startHTTP() <-chan error {
	cfg := a.eff.Config

	router := api.NewRouter(api.Deps{
		Exchanger:      a.exchanger,
		Pipeline:       a.pipeline,
		MaxUploadBytes: int64(cfg.Ingest.MaxUploadBytes),
	})
	router.Handle("/metrics", promhttp.Handler())
	router.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	router.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))

	secCfg := auth.SecConfig{
		AllowedOrigins: append([]string{}, cfg.Security.CORS.AllowedOrigins...),
		RPS:            cfg.Security.RateLimit.RPS,
		Burst:          cfg.Security.RateLimit.Burst,
		IPWhitelist:    append([]string{}, cfg.Security.IPWhitelist...),
		BackendKeys:    keySet(cfg.Auth.APIKeys.Backend),
		FrontendKeys:   keySet(cfg.Auth.APIKeys.Frontend),
		AdminKeys:      keySet(cfg.Auth.APIKeys.Admin),
	}
	if cfg.Auth.CacheTTLSeconds > 0 {
		secCfg.TokenTTL = time.Duration(cfg.Auth.CacheTTLSeconds) * time.Second
	}

	var handler http.Handler = router
	handler = auth.AuthenticateRequestMiddleware(secCfg, a.gate)(handler)
	handler = telemetry.Middleware(handler)

	a.srv = &http.Server{Addr: a.eff.Addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		cert := cfg.Server.TLS.CertFile
		key := cfg.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}

func keySet(keys []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}
