// Package api implements the REST/WebSocket surface (§6): tenant-scoped
// job/triage/technician/appointment/consent/audit/compliance endpoints,
// the chat WebSocket, and the Twilio telephony webhooks, all mounted on
// one gin.Engine.
//
// Grounded on expotoworld's order-service/cmd/server/main.go router
// wiring (setupRouter, health endpoints, route groups) and
// order-service/internal/api/auth.go's JWT middleware — kept HOW
// (gin.New + explicit middleware chain, Bearer-token JWT auth,
// role-gated admin group), replaced WHAT (order/manufacturer resources
// -> job/triage/technician/appointment/consent/audit resources).
package api

import (
	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/audit"
	"github.com/fieldopsvoice/dispatch/internal/channels/telegram"
	"github.com/fieldopsvoice/dispatch/internal/compliance"
	"github.com/fieldopsvoice/dispatch/internal/config"
	"github.com/fieldopsvoice/dispatch/internal/conversation"
	"github.com/fieldopsvoice/dispatch/internal/inference"
	"github.com/fieldopsvoice/dispatch/internal/jobservice"
	"github.com/fieldopsvoice/dispatch/internal/matcher/cache"
	"github.com/fieldopsvoice/dispatch/internal/pipeline"
	"github.com/fieldopsvoice/dispatch/internal/recording"
	"github.com/fieldopsvoice/dispatch/internal/routing"
	"github.com/fieldopsvoice/dispatch/internal/scheduling"
	"github.com/fieldopsvoice/dispatch/internal/session"
	"github.com/fieldopsvoice/dispatch/internal/storage"
	"github.com/fieldopsvoice/dispatch/internal/telephony"
	"github.com/fieldopsvoice/dispatch/internal/triage"
)

// Deps bundles every collaborator the HTTP layer needs. Constructed
// once at process start-up and threaded into the handlers (§9's
// dependency-injection design note) — there is no package-level
// singleton anywhere in this package.
type Deps struct {
	Store      *storage.Postgres
	Jobs       *jobservice.Service
	Ledger     *audit.Ledger
	Router     *routing.Engine
	Scheduler  *scheduling.Engine
	Sessions   *session.Supervisor
	Convo      *conversation.Factory
	Compliance *compliance.Service
	Telegram   *telegram.Channel  // nil if not configured for this tenant
	Twilio     telephony.Provider // nil if not configured for this tenant
	TTS        pipeline.TTS       // needed by the phone Outbound to synthesize Say() text
	Recording  *recording.Uploader // nil-safe no-op if no bucket configured
	Matcher    *cache.Cache        // nil-safe: Get always misses, Set/Invalidate no-op
	Pool       *inference.Pool     // shared STT/LLM/TTS worker pool (§5); nil-safe, see phoneTransport.Say
	Cfg        *config.Config
	Log        *zap.Logger

	TriageVersion triage.Version
}
