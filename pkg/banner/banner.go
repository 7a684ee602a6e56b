package banner

import (
	"fmt"

	"smartscribe/pkg/config"
)

const banner = `
███████╗███╗   ███╗ █████╗ ██████╗ ████████╗███████╗ ██████╗██████╗ ██╗██████╗ ███████╗
██╔════╝████╗ ████║██╔══██╗██╔══██╗╚══██╔══╝██╔════╝██╔════╝██╔══██╗██║██╔══██╗██╔════╝
███████╗██╔████╔██║███████║██████╔╝   ██║   ███████╗██║     ██████╔╝██║██████╔╝█████╗
╚════██║██║╚██╔╝██║██╔══██║██╔══██╗   ██║   ╚════██║██║     ██╔══██╗██║██╔══██╗██╔══╝
███████║██║ ╚═╝ ██║██║  ██║██║  ██║   ██║   ███████║╚██████╗██║  ██║██║██████╔╝███████╗
╚══════╝╚═╝     ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚══════╝ ╚═════╝╚═╝  ╚═╝╚═╝╚═════╝ ╚══════╝
`

// Print prints the startup banner using an EffectiveConfigResult which
// provides the resolved listen address, db path and config source.
func Print(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Storage.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST  /sessions                          - Create a session")
	fmt.Println("GET   /sessions?user_id=<id>             - List a user's sessions")
	fmt.Println("PATCH /sessions/{id}                     - Rename a session")
	fmt.Println("POST  /messages                          - Store a user message")
	fmt.Println("POST  /talk                              - Request an assistant reply")
	fmt.Println("GET   /messages?session_id=<id>          - List session messages")
	fmt.Println("POST  /transcripts                       - Ingest a file or YouTube URL")
	fmt.Println("GET   /transcripts/by-session?session_id=<id>")

	fmt.Println("\n== Production? ================================================")
	be, fe, ak := 0, 0, 0
	if eff.Config != nil {
		be = len(eff.Config.Auth.APIKeys.Backend)
		fe = len(eff.Config.Auth.APIKeys.Frontend)
		ak = len(eff.Config.Auth.APIKeys.Admin)
	}
	if be > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", be)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if fe > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", fe)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if ak > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", ak)
	} else {
		fmt.Println("- Admin API keys: MISSING (required for admin tooling)")
	}

	tlsOK := eff.Config != nil && eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != ""
	if tlsOK {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}

	if eff.Config != nil && eff.Config.Responder.APIKey != "" {
		fmt.Printf("- Responder: %s\n", eff.Config.Responder.Model)
	} else {
		fmt.Println("- Responder: MISSING API key (set SMARTSCRIBE_GENAI_API_KEY)")
	}
	if eff.Config != nil && eff.Config.Transcriber.URL != "" {
		fmt.Printf("- Transcriber: %s\n", eff.Config.Transcriber.URL)
	} else {
		fmt.Println("- Transcriber: unconfigured (ingestion will fail jobs)")
	}

	if eff.Config != nil && eff.Config.Retention.Enabled {
		fmt.Printf("- Retention: enabled (cron=%s)\n", eff.Config.Retention.Schedule)
	} else {
		fmt.Println("- Retention: disabled")
	}

	fmt.Println("\n== Logs: ======================================================")
}
