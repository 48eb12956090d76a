// Package config loads the process configuration the way the teacher
// loads it: godotenv for local .env files (non-fatal if absent), then
// typed environment variables with defaults. There is no global mutable
// config — Load returns a *Config that callers construct their service
// graph from, per the "avoid hidden global mutable state" design note.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// SessionLimits mirrors the "session.limits" configuration option.
type SessionLimits struct {
	MaxConcurrent int
	PhoneIdle     time.Duration
	ChatIdle      time.Duration
	PhoneMax      time.Duration
	ChatMax       time.Duration
}

// InferenceTimeouts mirrors "inference.timeouts".
type InferenceTimeouts struct {
	STT           time.Duration
	LLMSoft       time.Duration
	LLMHard       time.Duration
	TTSFirstFrame time.Duration
}

// InferencePoolConfig sizes the process-wide bounded worker pool that
// every STT/LLM/TTS submission runs through (§5 "Shared-resource
// policy"). HighWaterMark bounds queue depth before the Session
// Supervisor starts rejecting new sessions with Overloaded (§5
// Backpressure, §8 "Inference pool at its high-water mark").
type InferencePoolConfig struct {
	Workers       int
	QueueSize     int
	HighWaterMark int
}

// Config is the fully resolved process configuration.
type Config struct {
	Env  string
	Port string

	// TenantID is the tenant this process serves. Telephony and
	// messenger channels are single-tenant-per-process (a deployment
	// wanting per-tenant phone numbers or bots runs one process per
	// tenant), matching internal/channels/telegram.Config's TenantID.
	TenantID string

	DatabaseURL string
	RedisAddr   string

	JWTSecret string

	AWSRegion     string
	SESFromEmail  string
	S3RecordingsBucket string

	OpenAIAPIKey string
	OpenAIModel  string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string
	TwilioWebhookSecret string

	TelegramBotToken string

	Session       SessionLimits
	Inference     InferenceTimeouts
	InferencePool InferencePoolConfig

	AudioFrameMS          int
	BargeInThresholdMS    int
	TriageRulesVersion    int
	RoutingFallbackDeptID string
	WebhookSigToleranceS  int
	StorageRetentionDays  int

	// EmergencyTransferNumber is the human operator line the phone
	// Outbound dials into on Controller.Transfer (§4.4 step 4's
	// escalation hand-off), independent of any tenant's own department
	// fallback contact.
	EmergencyTransferNumber string
}

// Load builds a Config from `.env` (if present) plus environment
// variables. It never panics on a missing .env file — local development
// convenience only, matching order-service/cmd/server/main.go.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// absent .env is expected in production; fall through silently.
		_ = err
	}

	cfg := &Config{
		Env:  getEnv("APP_ENV", "development"),
		Port: getEnv("PORT", "8080"),

		TenantID: getEnv("TENANT_ID", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		AWSRegion:          getEnv("AWS_REGION", "eu-central-1"),
		SESFromEmail:       getEnv("SES_FROM_EMAIL", ""),
		S3RecordingsBucket: getEnv("S3_RECORDINGS_BUCKET", ""),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber:   getEnv("TWILIO_PHONE_NUMBER", ""),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		Session: SessionLimits{
			MaxConcurrent: getEnvInt("SESSION_MAX_CONCURRENT", 100),
			PhoneIdle:     time.Duration(getEnvInt("SESSION_PHONE_IDLE_S", 8)) * time.Second,
			ChatIdle:      time.Duration(getEnvInt("SESSION_CHAT_IDLE_S", 45)) * time.Second,
			PhoneMax:      time.Duration(getEnvInt("SESSION_PHONE_MAX_S", 1200)) * time.Second,
			ChatMax:       time.Duration(getEnvInt("SESSION_CHAT_MAX_S", 7200)) * time.Second,
		},
		Inference: InferenceTimeouts{
			STT:           time.Duration(getEnvInt("INFERENCE_STT_MS", 5000)) * time.Millisecond,
			LLMSoft:       time.Duration(getEnvInt("INFERENCE_LLM_SOFT_MS", 2000)) * time.Millisecond,
			LLMHard:       time.Duration(getEnvInt("INFERENCE_LLM_HARD_MS", 5000)) * time.Millisecond,
			TTSFirstFrame: time.Duration(getEnvInt("INFERENCE_TTS_FIRST_FRAME_MS", 300)) * time.Millisecond,
		},
		InferencePool: InferencePoolConfig{
			Workers:       getEnvInt("INFERENCE_POOL_WORKERS", 8),
			QueueSize:     getEnvInt("INFERENCE_POOL_QUEUE_SIZE", 64),
			HighWaterMark: getEnvInt("INFERENCE_POOL_HIGH_WATER_MARK", 200),
		},

		AudioFrameMS:          getEnvInt("AUDIO_FRAME_MS", 20),
		BargeInThresholdMS:    getEnvInt("BARGE_IN_THRESHOLD_MS", 300),
		TriageRulesVersion:    getEnvInt("TRIAGE_RULES_VERSION", 1),
		RoutingFallbackDeptID: getEnv("ROUTING_FALLBACK_DEPARTMENT_ID", ""),
		WebhookSigToleranceS:  getEnvInt("WEBHOOK_SIGNATURE_TOLERANCE_S", 300),
		StorageRetentionDays:  getEnvInt("STORAGE_RETENTION_DAYS", 365),

		EmergencyTransferNumber: getEnv("EMERGENCY_TRANSFER_NUMBER", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
