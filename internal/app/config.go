package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTrustedDomains is the built-in evidence allow-list, used when
// neither TRUSTED_DOMAINS nor TRUSTED_DOMAINS_FILE is set.
const DefaultTrustedDomains = "docs.python.org,kubernetes.io,owasp.org,nist.gov,postgresql.org"

type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	DatabaseURL   string
	SentryDSN     string

	// Verification providers
	DeepgramAPIKey   string
	OpenAIAPIKey     string
	OpenAIModel      string
	ExaAPIKey        string
	ElevenLabsAPIKey string

	// Evidence retrieval
	TrustedDomains []string
	EvidenceTopK   int

	// Pipeline tuning
	SilenceFlushMs    int
	ClaimTimeoutMs    int
	MaxInflightClaims int
	OrderedDelivery   bool

	// STT settings
	STTLanguage      string
	STTSampleRate    int
	STTEndpointingMs int

	// TTS settings (spoken verdict alerts)
	TTSVoiceID    string
	TTSStability  float64
	TTSSimilarity float64
	SpokenAlerts  bool

	// JWT Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// API keys exchanged for JWTs
	ServiceAPIKey string
	AdminAPIKey   string

	// Notifications
	DiscordWebhookURL string

	// APNs Push Notifications
	APNsKeyPath     string
	APNsKeyID       string
	APNsTeamID      string
	APNsBundleID    string
	APNsProduction  bool
	APNsDeviceToken string

	// Idle session reaper
	ReapInterval   time.Duration
	SessionMaxIdle time.Duration
}

func LoadConfigFromEnv() (Config, error) {
	jwtExpiry, err := time.ParseDuration(getenv("JWT_EXPIRY", "24h"))
	if err != nil {
		jwtExpiry = 24 * time.Hour
	}

	domains, err := loadTrustedDomains(
		getenv("TRUSTED_DOMAINS", DefaultTrustedDomains),
		os.Getenv("TRUSTED_DOMAINS_FILE"),
	)
	if err != nil {
		return Config{}, err
	}

	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		SentryDSN:     getenv("SENTRY_DSN", ""),

		DeepgramAPIKey:   getenv("DEEPGRAM_API_KEY", ""),
		OpenAIAPIKey:     getenv("OPENAI_API_KEY", ""),
		OpenAIModel:      getenv("OPENAI_MODEL", ""),
		ExaAPIKey:        getenv("EXA_API_KEY", ""),
		ElevenLabsAPIKey: getenv("ELEVENLABS_API_KEY", ""),

		TrustedDomains: domains,
		EvidenceTopK:   getenvInt("EVIDENCE_TOP_K", 4),

		SilenceFlushMs:    getenvInt("SILENCE_FLUSH_MS", 800),
		ClaimTimeoutMs:    getenvInt("CLAIM_TIMEOUT_MS", 5000),
		MaxInflightClaims: getenvInt("MAX_INFLIGHT_CLAIMS", 8),
		OrderedDelivery:   getenvBool("ORDERED_DELIVERY", false),

		STTLanguage:      getenv("STT_LANGUAGE", "en"),
		STTSampleRate:    getenvInt("STT_SAMPLE_RATE", 16000),
		STTEndpointingMs: getenvInt("STT_ENDPOINTING_MS", 300),

		TTSVoiceID:    getenv("TTS_VOICE_ID", ""),
		TTSStability:  getenvFloat("TTS_STABILITY", -1),
		TTSSimilarity: getenvFloat("TTS_SIMILARITY", -1),
		SpokenAlerts:  getenvBool("SPOKEN_ALERTS", false),

		JWTSecret: os.Getenv("JWT_SECRET"), // Required - no fallback for security
		JWTExpiry: jwtExpiry,

		ServiceAPIKey: os.Getenv("SERVICE_API_KEY"),
		AdminAPIKey:   os.Getenv("ADMIN_API_KEY"),

		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),

		APNsKeyPath:     getenv("APNS_KEY_PATH", ""),
		APNsKeyID:       getenv("APNS_KEY_ID", ""),
		APNsTeamID:      getenv("APNS_TEAM_ID", ""),
		APNsBundleID:    getenv("APNS_BUNDLE_ID", ""),
		APNsProduction:  getenvBool("APNS_PRODUCTION", false),
		APNsDeviceToken: getenv("APNS_DEVICE_TOKEN", ""),

		ReapInterval:   getenvDuration("SESSION_REAP_INTERVAL", 5*time.Minute),
		SessionMaxIdle: getenvDuration("SESSION_MAX_IDLE", 2*time.Hour),
	}, nil
}

// trustedDomainsFile is the YAML shape of TRUSTED_DOMAINS_FILE. Teams
// with long allow-lists keep them in a reviewed file instead of an env
// var.
type trustedDomainsFile struct {
	Domains []string `yaml:"domains"`
}

// loadTrustedDomains merges the env list with the optional YAML file.
// The file, when present, replaces the env list entirely so the
// reviewed version wins.
func loadTrustedDomains(envList, filePath string) ([]string, error) {
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read trusted domains file: %w", err)
		}
		var f trustedDomainsFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse trusted domains file: %w", err)
		}
		if len(f.Domains) == 0 {
			return nil, fmt.Errorf("trusted domains file %s lists no domains", filePath)
		}
		return normalizeDomains(f.Domains), nil
	}
	return normalizeDomains(strings.Split(envList, ",")), nil
}

func normalizeDomains(raw []string) []string {
	var out []string
	for _, d := range raw {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
