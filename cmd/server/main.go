// Command server runs the triage HTTP service: session API, SSE turn
// streaming, and the conversational stage engine behind them.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"

	"github.com/vaidyahealth/vaidya/core/client"
	"github.com/vaidyahealth/vaidya/core/client/middleware"
	"github.com/vaidyahealth/vaidya/core/config"
	"github.com/vaidyahealth/vaidya/providers/ai/openai"
	"github.com/vaidyahealth/vaidya/providers/session"
	"github.com/vaidyahealth/vaidya/providers/session/inmemory"
	"github.com/vaidyahealth/vaidya/providers/session/pgsession"
	"github.com/vaidyahealth/vaidya/server"
	"github.com/vaidyahealth/vaidya/triage/routing"
	"github.com/vaidyahealth/vaidya/triage/stages"
	"github.com/vaidyahealth/vaidya/triage/stream"
	"github.com/vaidyahealth/vaidya/triage/tools"
)

const shutdownGrace = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	settings := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, settings, logger)
	if err != nil {
		logger.Error("session store initialization failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	provider := buildProvider(settings)

	classifier, err := newProfileClient(provider, settings.ClassificationModel, settings, logger)
	if err != nil {
		logger.Error("classifier client initialization failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	interviewer, err := newProfileClient(provider, settings.InterviewModel, settings, logger)
	if err != nil {
		logger.Error("interview client initialization failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	clinical, err := newProfileClient(provider, settings.ClinicalModel, settings, logger)
	if err != nil {
		logger.Error("clinical client initialization failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	flow, err := stages.BuildFlow(stages.Deps{
		Policy:      routing.NewPolicy(classifier, logger),
		Classifier:  classifier,
		Interviewer: interviewer,
		Clinical:    clinical,

		Records:   tools.NewRecordService(nil),
		Directory: tools.NewDirectory(settings.DirectoryEndpoint),
		Saver:     store,

		Logger: logger,

		CompactFirstThreshold:  settings.CompactFirstThreshold,
		CompactRepeatThreshold: settings.CompactRepeatThreshold,
		WindowMinMessages:      settings.WindowMinMessages,
		WindowTailMessages:     settings.WindowTailMessages,
	})
	if err != nil {
		logger.Error("flow construction failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	synthesizer := stream.New(flow,
		stream.WithPersister(store),
		stream.WithTokenPacing(settings.TokenPacing),
		stream.WithReplayPacing(settings.ReplayPacing),
		stream.WithLogger(logger),
	)

	api := server.New(store, synthesizer,
		server.WithLogger(logger),
		server.WithMaxSessionMessages(settings.MaxSessionMessages),
	)

	httpServer := &http.Server{
		Addr:              settings.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown incomplete", slog.String("error", err.Error()))
		}
	}()

	logger.Info("triage service listening",
		slog.String("addr", settings.Addr),
		slog.String("clinical_model", settings.ClinicalModel),
		slog.Bool("postgres", settings.DatabaseURL != ""),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// buildStore selects the Postgres store when DATABASE_URL is configured,
// creating the schema on the way up, and the in-memory store otherwise.
func buildStore(ctx context.Context, settings config.Settings, logger *slog.Logger) (session.Store, func(), error) {
	if settings.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory session store")
		return inmemory.New(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, settings.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	store := pgsession.New(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

// buildProvider configures the OpenAI-compatible provider from the loaded
// settings, so key and endpoint resolution happens in one place (config.Load)
// rather than the provider re-reading the environment.
func buildProvider(settings config.Settings) *openai.OpenAIProvider {
	provider := openai.NewOpenAIProvider()
	if settings.OpenAIAPIKey != "" {
		provider.WithAPIKey(settings.OpenAIAPIKey)
	}
	if settings.OpenAIBaseURL != "" {
		provider.WithBaseURL(settings.OpenAIBaseURL)
	}
	return provider
}

// newProfileClient builds one model-profile client with the shared middleware
// chain: per-call timeout outermost, then request logging, then retries.
func newProfileClient(provider *openai.OpenAIProvider, model string, settings config.Settings, logger *slog.Logger) (*client.Client, error) {
	return client.New(provider,
		client.WithModel(model),
		client.WithMiddleware(
			middleware.NewTimeoutMiddleware(settings.LLMTimeout),
			middleware.NewLoggingMiddleware(logger, middleware.LogLevelMinimal),
			middleware.NewRetryMiddleware(middleware.RetryConfig{}),
		),
	)
}
