package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkriz/veritas/internal/eventlog"
	"github.com/pkriz/veritas/internal/httpapi"
	"github.com/pkriz/veritas/internal/jobs"
	"github.com/pkriz/veritas/internal/store"
)

type App struct {
	cfg      Config
	logger   *log.Logger
	db       *pgxpool.Pool
	store    *store.Store
	eventLog *eventlog.Logger
	registry *httpapi.SessionRegistry
	reaper   *jobs.SessionReaperJob
}

// New wires the application together. DATABASE_URL is optional: without
// it, live sessions still run end to end and only the history API is
// unavailable.
func New(cfg Config, logger *log.Logger) (*App, error) {
	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		db = pool
	} else {
		logger.Printf("no DATABASE_URL set, running without persistence")
	}

	s := store.New(db)
	registry := httpapi.NewSessionRegistry()

	// Migrations are applied externally by the CI deploy job.
	// No automatic migration runner at startup.

	a := &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    s,
		eventLog: eventlog.New(db),
		registry: registry,
	}
	a.reaper = jobs.NewSessionReaperJob(s, registry, logger, cfg.ReapInterval, cfg.SessionMaxIdle)
	return a, nil
}

// Registry exposes the session registry for graceful shutdown.
func (a *App) Registry() *httpapi.SessionRegistry {
	return a.registry
}

// Start launches background jobs.
func (a *App) Start() {
	a.reaper.Start()
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		PublicBaseURL:     a.cfg.PublicBaseURL,
		DeepgramAPIKey:    a.cfg.DeepgramAPIKey,
		OpenAIAPIKey:      a.cfg.OpenAIAPIKey,
		OpenAIModel:       a.cfg.OpenAIModel,
		ExaAPIKey:         a.cfg.ExaAPIKey,
		ElevenLabsAPIKey:  a.cfg.ElevenLabsAPIKey,
		TrustedDomains:    a.cfg.TrustedDomains,
		EvidenceTopK:      a.cfg.EvidenceTopK,
		SilenceFlushMs:    a.cfg.SilenceFlushMs,
		ClaimTimeoutMs:    a.cfg.ClaimTimeoutMs,
		MaxInflightClaims: a.cfg.MaxInflightClaims,
		OrderedDelivery:   a.cfg.OrderedDelivery,
		STTLanguage:       a.cfg.STTLanguage,
		STTSampleRate:     a.cfg.STTSampleRate,
		STTEndpointingMs:  a.cfg.STTEndpointingMs,
		TTSVoiceID:        a.cfg.TTSVoiceID,
		TTSStability:      a.cfg.TTSStability,
		TTSSimilarity:     a.cfg.TTSSimilarity,
		SpokenAlerts:      a.cfg.SpokenAlerts,
		JWTSecret:         a.cfg.JWTSecret,
		JWTExpiry:         a.cfg.JWTExpiry,
		ServiceAPIKey:     a.cfg.ServiceAPIKey,
		AdminAPIKey:       a.cfg.AdminAPIKey,
		DiscordWebhookURL: a.cfg.DiscordWebhookURL,
		APNsKeyPath:       a.cfg.APNsKeyPath,
		APNsKeyID:         a.cfg.APNsKeyID,
		APNsTeamID:        a.cfg.APNsTeamID,
		APNsBundleID:      a.cfg.APNsBundleID,
		APNsProduction:    a.cfg.APNsProduction,
		APNsDeviceToken:   a.cfg.APNsDeviceToken,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.store, a.eventLog, a.registry)
}

func (a *App) Close() error {
	if a.reaper != nil {
		a.reaper.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
