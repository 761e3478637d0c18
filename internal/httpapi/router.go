package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/pkriz/veritas/internal/breaker"
	"github.com/pkriz/veritas/internal/eventlog"
	"github.com/pkriz/veritas/internal/llm"
	"github.com/pkriz/veritas/internal/notifications"
	"github.com/pkriz/veritas/internal/search"
	"github.com/pkriz/veritas/internal/store"
	"github.com/pkriz/veritas/internal/tts"
)

type RouterConfig struct {
	PublicBaseURL string

	// Verification providers
	DeepgramAPIKey   string
	OpenAIAPIKey     string
	OpenAIModel      string
	ExaAPIKey        string
	ElevenLabsAPIKey string

	// Evidence retrieval settings
	TrustedDomains []string
	EvidenceTopK   int

	// Pipeline settings
	SilenceFlushMs    int  // sentence assembler silence window
	ClaimTimeoutMs    int  // per-claim deadline
	MaxInflightClaims int  // concurrent claims per session
	OrderedDelivery   bool // per-sentence ordered verdict delivery

	// STT settings
	STTLanguage       string
	STTSampleRate     int
	STTEndpointingMs  int

	// TTS settings (spoken verdict alerts)
	TTSVoiceID    string
	TTSStability  float64
	TTSSimilarity float64
	SpokenAlerts  bool

	// JWT Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// API keys exchanged for JWTs at /auth/token
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
	APNsDeviceToken string // single alert recipient; a token registry is overkill here

	// Factories let tests swap the external providers for fakes.
	LLMFactory    func() llm.Client
	SearchFactory func() search.Client
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	store    *store.Store
	eventLog eventlog.Recorder
	registry *SessionRegistry
	hub      *DashboardHub
	discord  *notifications.Discord
	apns     *notifications.APNsClient
	tts      tts.Client
	mux      *http.ServeMux

	// Shared across sessions so provider outages are observed globally.
	llmBreaker    *breaker.Breaker
	searchBreaker *breaker.Breaker
}

func NewRouter(cfg RouterConfig, logger *log.Logger, s *store.Store, eventLog eventlog.Recorder, registry *SessionRegistry) http.Handler {
	// Initialize APNs client (may be nil if not configured)
	apnsClient, err := notifications.NewAPNsClient(notifications.APNsConfig{
		KeyPath:    cfg.APNsKeyPath,
		KeyID:      cfg.APNsKeyID,
		TeamID:     cfg.APNsTeamID,
		BundleID:   cfg.APNsBundleID,
		Production: cfg.APNsProduction,
	}, logger)
	if err != nil {
		logger.Printf("Warning: APNs client initialization failed: %v", err)
	}

	if registry == nil {
		registry = NewSessionRegistry()
	}

	r := &Router{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		eventLog: eventLog,
		registry: registry,
		hub:      NewDashboardHub(logger),
		discord:  notifications.NewDiscord(cfg.DiscordWebhookURL, logger),
		apns:     apnsClient,
		mux:      http.NewServeMux(),
		llmBreaker: breaker.New(breaker.Config{
			Name:   "llm",
			Logger: logger,
		}),
		searchBreaker: breaker.New(breaker.Config{
			Name:   "search",
			Logger: logger,
		}),
	}

	if cfg.SpokenAlerts && cfg.ElevenLabsAPIKey != "" {
		r.tts = tts.NewElevenLabsClient(tts.ElevenLabsConfig{
			APIKey:     cfg.ElevenLabsAPIKey,
			VoiceID:    cfg.TTSVoiceID,
			Stability:  cfg.TTSStability,
			Similarity: cfg.TTSSimilarity,
		})
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health check
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)

	// Auth endpoint (public, exchanges an API key for a JWT)
	r.mux.HandleFunc("POST /auth/token", r.handleIssueToken)

	// Ingest websockets (service role)
	r.mux.HandleFunc("GET /ingest/transcript", r.withAuth(r.handleTranscriptWS))
	r.mux.HandleFunc("GET /ingest/audio", r.withAuth(r.handleAudioWS))

	// Dashboard websocket (any authenticated consumer)
	r.mux.HandleFunc("GET /ws/dashboard", r.withAuth(r.handleDashboardWS))

	// Protected API endpoints
	r.mux.HandleFunc("GET /api/sessions", r.withAuth(r.handleListSessions))
	r.mux.HandleFunc("GET /api/sessions/{id}", r.withAuth(r.handleGetSession))
	r.mux.HandleFunc("GET /api/sessions/{id}/costs", r.withAuth(r.handleGetSessionCosts))

	// Admin endpoints
	r.mux.HandleFunc("GET /admin/active", r.withAdmin(r.handleAdminActiveSessions))
	r.mux.HandleFunc("GET /admin/sessions/{id}/events", r.withAdmin(r.handleAdminSessionEvents))
	r.mux.HandleFunc("GET /admin/costs", r.withAdmin(r.handleAdminCostSummary))
	r.mux.HandleFunc("POST /admin/test-push", r.withAdmin(r.handleAdminTestPush))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// newLLMClient builds the language-model client, honoring the test
// factory when set. Either way the client runs behind the shared
// circuit breaker.
func (r *Router) newLLMClient() llm.Client {
	if r.cfg.LLMFactory != nil {
		return llm.WithBreaker(r.cfg.LLMFactory(), r.llmBreaker)
	}
	return llm.WithBreaker(llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey: r.cfg.OpenAIAPIKey,
		Model:  r.cfg.OpenAIModel,
	}), r.llmBreaker)
}

// newSearchClient builds the web-search client, honoring the test
// factory when set. Either way the client runs behind the shared
// circuit breaker.
func (r *Router) newSearchClient() search.Client {
	if r.cfg.SearchFactory != nil {
		return search.WithBreaker(r.cfg.SearchFactory(), r.searchBreaker)
	}
	return search.WithBreaker(search.NewExaClient(search.ExaConfig{
		APIKey:         r.cfg.ExaAPIKey,
		IncludeDomains: r.cfg.TrustedDomains,
	}), r.searchBreaker)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func nowUTC() time.Time { return time.Now().UTC() }

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
