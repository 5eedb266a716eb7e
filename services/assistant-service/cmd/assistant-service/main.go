package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nabil-hisham/medibook/libs/config"
	"github.com/nabil-hisham/medibook/libs/httpx"
	otelx "github.com/nabil-hisham/medibook/libs/otel"
	"github.com/nabil-hisham/medibook/libs/runtime"
	"github.com/nabil-hisham/medibook/services/assistant-service/internal/chat"
	"github.com/nabil-hisham/medibook/services/assistant-service/internal/handlers"
	"github.com/nabil-hisham/medibook/services/assistant-service/internal/meds"
	"github.com/nabil-hisham/medibook/services/assistant-service/internal/quota"
)

func parseModels(raw string) []string {
	var models []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			models = append(models, part)
		}
	}
	return models
}

func main() {
	service := config.String("SERVICE_NAME", "assistant-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	apiKey, err := config.RequiredString("OPENROUTER_API_KEY")
	if err != nil {
		panic(err)
	}

	redisAddr := config.String("REDIS_ADDR", "redis:6379")
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	completer := chat.NewClient(chat.Config{
		BaseURL: config.String("OPENROUTER_BASE_URL", ""),
		APIKey:  apiKey,
		Models:  parseModels(config.String("OPENROUTER_MODELS", "")),
		Referer: config.String("OPENROUTER_REFERER", ""),
		Title:   config.String("OPENROUTER_TITLE", "Medical Symptom Checker"),
	}, logger)

	lookup := meds.NewClient(
		config.String("RXNORM_BASE_URL", ""),
		meds.NewRedisCache(rdb, logger),
		logger,
	)
	chatQuota := quota.New(rdb, config.Int("CHAT_DAILY_LIMIT", 5))

	assistantHandler := handlers.NewAssistantHandler(completer, lookup, chatQuota, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "redis", Check: chatQuota.Ready},
	)
	mux.HandleFunc("/api/v1/assistant/chat", assistantHandler.Chat)
	mux.HandleFunc("/api/v1/assistant/medications", assistantHandler.SearchMedications)
	mux.HandleFunc("/api/v1/assistant/medications/details", assistantHandler.MedicationDetails)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "assistant")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
