package app

import (
	"fmt"
	"os"

	"smartscribe/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, SMARTSCRIBE_DB_PATH env, or storage.db_path in config")
	}

	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if c := eff.Config.Ingest.QueueCapacity; c < 0 {
		return fmt.Errorf("ingest.queue_capacity must be >= 0, got %d", c)
	}
	if w := eff.Config.Ingest.Workers; w < 0 {
		return fmt.Errorf("ingest.workers must be >= 0, got %d", w)
	}
	return nil
}
