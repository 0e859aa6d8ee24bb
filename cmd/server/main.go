package main

// #region imports
import (
	"net/http"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/scuhci/focusmode-backend/internal/allowlist"
	"github.com/scuhci/focusmode-backend/internal/audit"
	"github.com/scuhci/focusmode-backend/internal/categories"
	"github.com/scuhci/focusmode-backend/internal/config"
	"github.com/scuhci/focusmode-backend/internal/entry"
	"github.com/scuhci/focusmode-backend/internal/features"
	"github.com/scuhci/focusmode-backend/internal/httpapi"
	"github.com/scuhci/focusmode-backend/internal/judgment"
	"github.com/scuhci/focusmode-backend/internal/logger"
	"github.com/scuhci/focusmode-backend/internal/metadata"
	"github.com/scuhci/focusmode-backend/internal/participant"
	"github.com/scuhci/focusmode-backend/internal/pipeline"
	"github.com/scuhci/focusmode-backend/internal/progression"
)

// #endregion

// #region main
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", "console")
		zlog.Fatal().Err(err).Msg("config load failed")
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	// Tag every line with a per-process instance ID so interleaved logs
	// from rolling restarts stay attributable.
	log := logger.Logger.With().Str("instance", uuid.NewString()).Logger()

	participants, err := participant.NewStore(cfg.DBPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("participant store init failed")
	}
	defer participants.Close()

	entries, err := entry.NewStore(participants.DB())
	if err != nil {
		zlog.Fatal().Err(err).Msg("entry store init failed")
	}
	auditLog, err := audit.NewLog(participants.DB())
	if err != nil {
		zlog.Fatal().Err(err).Msg("audit log init failed")
	}

	allow, err := allowlist.NewStore(cfg.RedisURL)
	if err != nil {
		zlog.Fatal().Err(err).Msg("allowlist init failed")
	}
	defer allow.Close()

	resolver := categories.NewCached(
		categories.NewHTTPResolver(cfg.CategoriesBaseURL, cfg.MetadataAPIKey, cfg.ProviderTimeout))
	extractor := features.NewExtractor(resolver)

	judge := judgment.NewClient(judgment.Config{
		BaseURL:        cfg.JudgmentBaseURL,
		APIKey:         cfg.JudgmentAPIKey,
		Model:          cfg.JudgmentModel,
		MaxAttempts:    cfg.JudgmentMaxAttempts,
		AttemptTimeout: cfg.JudgmentTimeout,
	}, log)

	lookup := metadata.NewClient(cfg.MetadataBaseURL, cfg.MetadataAPIKey, cfg.ProviderTimeout)
	engine := progression.NewEngine(participants, log)
	pipe := pipeline.New(participants, entries, engine, extractor, judge, lookup, auditLog, log)

	h := httpapi.NewHandler(allow, participants, engine, pipe, judge, log)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewRouter(h, cfg),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	zlog.Info().Str("addr", cfg.HTTPAddr).Str("db", cfg.DBPath).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zlog.Fatal().Err(err).Msg("server crashed")
	}
}

// #endregion main
