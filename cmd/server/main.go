// Command server runs the dispatch platform's HTTP/WS API, telephony
// webhook surface, and messenger channel in one process.
//
// Grounded on order-service/cmd/server/main.go's construction order
// (load config -> connect storage -> build the service graph -> mount
// the router -> run with graceful shutdown on SIGINT/SIGTERM) — kept
// HOW, generalized WHAT: the single order-service Handler becomes this
// module's job/triage/routing/scheduling/session/conversation graph.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/api"
	"github.com/fieldopsvoice/dispatch/internal/audit"
	"github.com/fieldopsvoice/dispatch/internal/channels/telegram"
	"github.com/fieldopsvoice/dispatch/internal/compliance"
	"github.com/fieldopsvoice/dispatch/internal/config"
	"github.com/fieldopsvoice/dispatch/internal/conversation"
	"github.com/fieldopsvoice/dispatch/internal/conversation/profiles/handwerk"
	"github.com/fieldopsvoice/dispatch/internal/inference"
	"github.com/fieldopsvoice/dispatch/internal/jobservice"
	"github.com/fieldopsvoice/dispatch/internal/logging"
	"github.com/fieldopsvoice/dispatch/internal/matcher/cache"
	"github.com/fieldopsvoice/dispatch/internal/notify"
	"github.com/fieldopsvoice/dispatch/internal/pipeline"
	pipelineopenai "github.com/fieldopsvoice/dispatch/internal/pipeline/openai"
	"github.com/fieldopsvoice/dispatch/internal/recording"
	"github.com/fieldopsvoice/dispatch/internal/routing"
	"github.com/fieldopsvoice/dispatch/internal/scheduling"
	"github.com/fieldopsvoice/dispatch/internal/session"
	"github.com/fieldopsvoice/dispatch/internal/storage"
	"github.com/fieldopsvoice/dispatch/internal/telephony"
	"github.com/fieldopsvoice/dispatch/internal/telephony/twilio"
	"github.com/fieldopsvoice/dispatch/internal/triage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("dispatch server starting", zap.String("env", cfg.Env), zap.String("tenant_id", cfg.TenantID))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewWithRetry(ctx, storage.ConfigFromEnv(), log, 5, 2*time.Second)
	if err != nil {
		log.Fatal("storage connection failed", zap.Error(err))
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		log.Fatal("schema initialization failed", zap.Error(err))
	}

	ledger := audit.New(store, log)
	router := routing.New(log)
	scheduler := scheduling.New(store, log)
	matcherCache := cache.New(cache.NewClient(cfg.RedisAddr), 15*time.Second)

	var notifier jobservice.Notifier
	var recorder *recording.Uploader
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Warn("aws config load failed, notifications and call recording disabled", zap.Error(err))
	} else {
		notifier = notify.New(notify.Config{AWS: awsCfg, SESFromEmail: cfg.SESFromEmail}, store, log)
		recorder = recording.New(awsCfg, cfg.S3RecordingsBucket)
	}

	jobs := jobservice.New(store, ledger, router, scheduler, notifier, log)
	compl := compliance.New(store, ledger, log)

	pool := inference.New(inference.Config{
		Workers:       cfg.InferencePool.Workers,
		QueueSize:     cfg.InferencePool.QueueSize,
		HighWaterMark: cfg.InferencePool.HighWaterMark,
	}, log)
	for _, c := range pool.Collectors() {
		prometheus.MustRegister(c)
	}
	pool.Start()
	defer pool.Stop()

	sessionLimits := session.Limits{
		MaxConcurrent: cfg.Session.MaxConcurrent,
		PhoneIdle:     cfg.Session.PhoneIdle,
		ChatIdle:      cfg.Session.ChatIdle,
		PhoneMax:      cfg.Session.PhoneMax,
		ChatMax:       cfg.Session.ChatMax,
	}

	convoDeps := conversation.Deps{
		STT:    pipelineopenai.NewSTT(cfg.OpenAIAPIKey, ""),
		LLM:    pipelineopenai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel),
		TTS:    pipelineopenai.NewTTS(cfg.OpenAIAPIKey, ""),
		Pool:   pool,
		Jobs:   jobs,
		Ledger: ledger,
		Timeouts: pipeline.Timeouts{
			STT:           cfg.Inference.STT,
			LLMSoft:       cfg.Inference.LLMSoft,
			LLMHard:       cfg.Inference.LLMHard,
			TTSFirstFrame: cfg.Inference.TTSFirstFrame,
		},
		Log: log,
	}
	factory := conversation.NewFactory(convoDeps, handwerk.New())

	sup := session.New(sessionLimits, factory, store, log).WithInferencePool(pool)
	sup.StartSweep(ctx)
	defer sup.Stop()

	escalator := routing.NewEscalator(store, ledger, log, 30*time.Second)
	escalator.Start(ctx)
	defer escalator.Stop()

	deps := &api.Deps{
		Store:      store,
		Jobs:       jobs,
		Ledger:     ledger,
		Router:     router,
		Scheduler:  scheduler,
		Sessions:   sup,
		Convo:      factory,
		Compliance: compl,
		TTS:        convoDeps.TTS,
		Recording:  recorder,
		Matcher:    matcherCache,
		Pool:       pool,
		Cfg:        cfg,
		Log:        log,

		TriageVersion: triage.DefaultVersion,
	}

	if cfg.TelegramBotToken != "" {
		ch, err := telegram.New(telegram.Config{Token: cfg.TelegramBotToken, TenantID: cfg.TenantID}, sup, store, log)
		if err != nil {
			log.Error("telegram channel init failed", zap.Error(err))
		} else {
			deps.Telegram = ch
			go ch.Start(ctx)
		}
	}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		provider, err := twilio.New(twilio.Config{
			AccountSID:    cfg.TwilioAccountSID,
			AuthToken:     cfg.TwilioAuthToken,
			PhoneNumber:   cfg.TwilioPhoneNumber,
			StreamURL:     fmt.Sprintf("wss://%s/twilio/stream", os.Getenv("PUBLIC_HOST")),
			SigToleranceS: cfg.WebhookSigToleranceS,
		}, log)
		if err != nil {
			log.Error("twilio provider init failed", zap.Error(err))
		} else {
			var tp telephony.Provider = provider
			deps.Twilio = tp
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(deps),
	}

	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
