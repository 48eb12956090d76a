package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldopsvoice/dispatch/internal/logging"
	"github.com/fieldopsvoice/dispatch/internal/telephony/twilio"
)

// NewRouter builds the gin.Engine for the whole HTTP/WS/webhook surface
// (§6). Grounded on order-service/cmd/server/main.go's setupRouter:
// gin.New() (not gin.Default()) plus an explicit middleware chain,
// /live+/ready+/health probes, and route groups gated by auth
// middleware — CORS here uses the real gin-contrib/cors middleware
// instead of order-service's hand-rolled corsMiddleware, since the
// mandate favors a declared third-party dependency over an equivalent
// hand-rolled one (see DESIGN.md).
func NewRouter(d *Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.Middleware(d.Log))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
	}))

	r.GET("/live", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "live"}) })
	r.GET("/ready", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ready"}) })
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "healthy"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jobs := &jobHandlers{d: d}
	triageH := &triageHandlers{d: d}
	techs := &technicianHandlers{d: d}
	appts := &appointmentHandlers{d: d}
	consents := &consentHandlers{d: d}
	auditH := &auditHandlers{d: d}
	compl := &complianceHandlers{d: d}
	chat := &chatHandlers{d: d}

	api := r.Group("/api/v1")
	api.Use(AuthMiddleware(d.Cfg.JWTSecret))
	{
		api.POST("/jobs", jobs.create)
		api.GET("/jobs", jobs.list)
		api.GET("/jobs/stats", jobs.stats)
		api.GET("/jobs/:id", jobs.get)
		api.GET("/jobs/:id/history", jobs.history)
		api.PATCH("/jobs/:id/status", jobs.updateStatus)
		api.PATCH("/jobs/:id/assign", jobs.assign)
		api.DELETE("/jobs/:id", jobs.cancel)

		api.POST("/triage/assess", triageH.assess)
		api.POST("/technicians/search", techs.search)
		api.POST("/appointments/slots", appts.slots)
		api.POST("/appointments/book", appts.book)

		api.GET("/consent/:contact_id", consents.list)
		api.POST("/consent/:contact_id", consents.grant)
		api.DELETE("/consent/:contact_id/:kind", consents.revoke)

		api.GET("/export/:contact_id", compl.export)
		api.DELETE("/erasure/:contact_id", compl.erase)

		admin := api.Group("/audit")
		admin.Use(AdminMiddleware())
		{
			admin.GET("", auditH.list)
			admin.GET("/integrity", auditH.integrity)
		}

		api.GET("/chat", chat.connect)
	}

	if d.Twilio != nil {
		mountTwilio(r, d)
	}

	return r
}

// mountTwilio wires the Twilio carrier webhooks directly (unauthenticated
// by JWT — Twilio validates its own request signature, per §6's webhook
// security note) and starts this tenant's telephony.Handler.
func mountTwilio(r *gin.Engine, d *Deps) {
	provider, ok := d.Twilio.(*twilio.Provider)
	if !ok {
		return
	}
	router := newTelephonyRouter(d, d.Cfg.TenantID)
	provider.SetHandler(router)

	tw := r.Group("/twilio")
	tw.POST("/voice", gin.WrapF(provider.VoiceWebhook))
	tw.POST("/status", gin.WrapF(provider.StatusCallback))
	tw.GET("/stream", gin.WrapF(provider.MediaStreamHandler))
}
