package app

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// clearConfigEnv unsets every variable LoadConfigFromEnv reads so tests
// start from a clean slate regardless of the host environment.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"HTTP_ADDR", "PUBLIC_BASE_URL", "DATABASE_URL", "SENTRY_DSN",
		"DEEPGRAM_API_KEY", "OPENAI_API_KEY", "OPENAI_MODEL", "EXA_API_KEY", "ELEVENLABS_API_KEY",
		"TRUSTED_DOMAINS", "TRUSTED_DOMAINS_FILE", "EVIDENCE_TOP_K",
		"SILENCE_FLUSH_MS", "CLAIM_TIMEOUT_MS", "MAX_INFLIGHT_CLAIMS", "ORDERED_DELIVERY",
		"STT_LANGUAGE", "STT_SAMPLE_RATE", "STT_ENDPOINTING_MS",
		"TTS_VOICE_ID", "TTS_STABILITY", "TTS_SIMILARITY", "SPOKEN_ALERTS",
		"JWT_SECRET", "JWT_EXPIRY", "SERVICE_API_KEY", "ADMIN_API_KEY",
		"DISCORD_WEBHOOK_URL",
		"APNS_KEY_PATH", "APNS_KEY_ID", "APNS_TEAM_ID", "APNS_BUNDLE_ID", "APNS_PRODUCTION", "APNS_DEVICE_TOKEN",
		"SESSION_REAP_INTERVAL", "SESSION_MAX_IDLE",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.SilenceFlushMs != 800 {
		t.Errorf("SilenceFlushMs = %d, want 800", cfg.SilenceFlushMs)
	}
	if cfg.ClaimTimeoutMs != 5000 {
		t.Errorf("ClaimTimeoutMs = %d, want 5000", cfg.ClaimTimeoutMs)
	}
	if cfg.MaxInflightClaims != 8 {
		t.Errorf("MaxInflightClaims = %d, want 8", cfg.MaxInflightClaims)
	}
	if cfg.EvidenceTopK != 4 {
		t.Errorf("EvidenceTopK = %d, want 4", cfg.EvidenceTopK)
	}
	if cfg.OrderedDelivery {
		t.Error("OrderedDelivery should default to false")
	}
	if cfg.JWTExpiry != 24*time.Hour {
		t.Errorf("JWTExpiry = %v, want 24h", cfg.JWTExpiry)
	}
	if cfg.ReapInterval != 5*time.Minute {
		t.Errorf("ReapInterval = %v, want 5m", cfg.ReapInterval)
	}
	if cfg.SessionMaxIdle != 2*time.Hour {
		t.Errorf("SessionMaxIdle = %v, want 2h", cfg.SessionMaxIdle)
	}

	want := []string{"docs.python.org", "kubernetes.io", "owasp.org", "nist.gov", "postgresql.org"}
	if !reflect.DeepEqual(cfg.TrustedDomains, want) {
		t.Errorf("TrustedDomains = %v, want %v", cfg.TrustedDomains, want)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("SILENCE_FLUSH_MS", "500")
	t.Setenv("MAX_INFLIGHT_CLAIMS", "16")
	t.Setenv("ORDERED_DELIVERY", "true")
	t.Setenv("JWT_EXPIRY", "2h")
	t.Setenv("TRUSTED_DOMAINS", " Kubernetes.io , owasp.org ,, ")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error: %v", err)
	}

	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9999")
	}
	if cfg.SilenceFlushMs != 500 {
		t.Errorf("SilenceFlushMs = %d, want 500", cfg.SilenceFlushMs)
	}
	if cfg.MaxInflightClaims != 16 {
		t.Errorf("MaxInflightClaims = %d, want 16", cfg.MaxInflightClaims)
	}
	if !cfg.OrderedDelivery {
		t.Error("OrderedDelivery should be true")
	}
	if cfg.JWTExpiry != 2*time.Hour {
		t.Errorf("JWTExpiry = %v, want 2h", cfg.JWTExpiry)
	}

	want := []string{"kubernetes.io", "owasp.org"}
	if !reflect.DeepEqual(cfg.TrustedDomains, want) {
		t.Errorf("TrustedDomains = %v, want %v", cfg.TrustedDomains, want)
	}
}

func TestLoadConfigInvalidIntFallsBack(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("CLAIM_TIMEOUT_MS", "not-a-number")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error: %v", err)
	}
	if cfg.ClaimTimeoutMs != 5000 {
		t.Errorf("ClaimTimeoutMs = %d, want default 5000", cfg.ClaimTimeoutMs)
	}
}

func TestTrustedDomainsFromYAMLFile(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "domains.yaml")
	content := "domains:\n  - who.int\n  - CDC.gov\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	t.Setenv("TRUSTED_DOMAINS_FILE", path)
	// The file wins even when the env list is set.
	t.Setenv("TRUSTED_DOMAINS", "kubernetes.io")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error: %v", err)
	}

	want := []string{"who.int", "cdc.gov"}
	if !reflect.DeepEqual(cfg.TrustedDomains, want) {
		t.Errorf("TrustedDomains = %v, want %v", cfg.TrustedDomains, want)
	}
}

func TestTrustedDomainsFileMissing(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("TRUSTED_DOMAINS_FILE", "/nonexistent/domains.yaml")

	if _, err := LoadConfigFromEnv(); err == nil {
		t.Error("expected an error for a missing trusted domains file")
	}
}

func TestTrustedDomainsFileEmpty(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "domains.yaml")
	if err := os.WriteFile(path, []byte("domains: []\n"), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	t.Setenv("TRUSTED_DOMAINS_FILE", path)

	if _, err := LoadConfigFromEnv(); err == nil {
		t.Error("expected an error for an empty trusted domains file")
	}
}

func TestTrustedDomainsFileMalformed(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "domains.yaml")
	if err := os.WriteFile(path, []byte("domains: {not a list"), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	t.Setenv("TRUSTED_DOMAINS_FILE", path)

	if _, err := LoadConfigFromEnv(); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}
