package config

import (
	"flag"
	"net"
	"os"
	"strconv"
	"strings"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the merged view of flags, environment and
// config file that the rest of the server consumes.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "env", or "config"
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and SMARTSCRIBE_CONFIG when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("SMARTSCRIBE_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// ApplyEnvOverrides mutates cfg with SMARTSCRIBE_* environment values
// and reports whether any were present.
func ApplyEnvOverrides(cfg *Config) bool {
	envUsed := false
	if v := os.Getenv("SMARTSCRIBE_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("SMARTSCRIBE_DB_PATH"); v != "" {
		envUsed = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("SMARTSCRIBE_GATE_URL"); v != "" {
		envUsed = true
		cfg.Auth.GateURL = v
	}
	if v := os.Getenv("SMARTSCRIBE_API_BACKEND_KEYS"); v != "" {
		envUsed = true
		cfg.Auth.APIKeys.Backend = parseList(v)
	}
	if v := os.Getenv("SMARTSCRIBE_API_FRONTEND_KEYS"); v != "" {
		envUsed = true
		cfg.Auth.APIKeys.Frontend = parseList(v)
	}
	if v := os.Getenv("SMARTSCRIBE_API_ADMIN_KEYS"); v != "" {
		envUsed = true
		cfg.Auth.APIKeys.Admin = parseList(v)
	}
	if v := os.Getenv("SMARTSCRIBE_CORS_ORIGINS"); v != "" {
		envUsed = true
		cfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := os.Getenv("SMARTSCRIBE_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("SMARTSCRIBE_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("SMARTSCRIBE_IP_WHITELIST"); v != "" {
		envUsed = true
		cfg.Security.IPWhitelist = parseList(v)
	}
	if v := os.Getenv("SMARTSCRIBE_GENAI_API_KEY"); v != "" {
		envUsed = true
		cfg.Responder.APIKey = v
	}
	if v := os.Getenv("SMARTSCRIBE_RESPONDER_MODEL"); v != "" {
		envUsed = true
		cfg.Responder.Model = v
	}
	if v := os.Getenv("SMARTSCRIBE_TRANSCRIBER_URL"); v != "" {
		envUsed = true
		cfg.Transcriber.URL = v
	}
	if c := os.Getenv("SMARTSCRIBE_TLS_CERT"); c != "" {
		envUsed = true
		cfg.Server.TLS.CertFile = c
	}
	if k := os.Getenv("SMARTSCRIBE_TLS_KEY"); k != "" {
		envUsed = true
		cfg.Server.TLS.KeyFile = k
	}
	return envUsed
}

// LoadEffective loads the config file at the resolved path, applies
// environment overrides, then lets explicitly set flags win for addr and
// db path.
func LoadEffective(flags Flags) (EffectiveConfigResult, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	fromFile := err == nil
	if !fromFile {
		cfg = &Config{}
	}
	envUsed := ApplyEnvOverrides(cfg)

	addr := cfg.Addr()
	if flags.Set["addr"] {
		addr = flags.Addr
	}
	dbPath := cfg.Storage.DBPath
	if dbPath == "" || flags.Set["db"] {
		dbPath = flags.DB
	}

	source := "flags"
	switch {
	case fromFile:
		source = "config"
	case envUsed:
		source = "env"
	}
	return EffectiveConfigResult{Config: cfg, Addr: addr, DBPath: dbPath, Source: source}, nil
}
