// Package routing implements the Routing Engine (§4.6): given a Job,
// evaluates the tenant's ordered routing rules and resolves a
// (department, optional worker, priority, reason).
//
// Grounded on original_source/src/phone_agent/services/routing_engine.py
// (RoutingDecision shape, URGENCY_PRIORITY default-priority mapping,
// documented rule-evaluation order) — re-expressed as a pure evaluator
// over data loaded by the caller, not an async service holding its own
// repositories, per the dependency-injection design note (§9).
package routing

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

// urgencyDefaultPriority mirrors URGENCY_PRIORITY from the original
// routing engine: lower number = higher priority, matching §3 Job's
// "routing priority (1-99, lower is higher priority)".
var urgencyDefaultPriority = map[models.Urgency]int{
	models.UrgencyEmergency: 1,
	models.UrgencyUrgent:    25,
	models.UrgencyNormal:    60,
	models.UrgencyRoutine:   90,
}

// defaultNotificationChannels is used when a rule sets NotificationFlag
// but names no explicit channels.
var defaultNotificationChannels = []string{"sms", "email"}

// Decision is the Routing Engine's output, per §4.6.
type Decision struct {
	DepartmentID        string
	WorkerID            string
	Priority            int
	Reason              string
	EscalationDeadline  time.Duration
	SendNotification    bool
	NotificationChannels []string
	MatchedRuleID       string
	MatchedRuleName     string
}

// Engine evaluates routing rules. It holds no state between calls —
// Route is a pure function of (job, rules), satisfying the idempotence
// property in §4.6 and §8.
type Engine struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Engine { return &Engine{log: log} }

// Route evaluates rules in ascending-priority order and returns the
// first match, per §4.6 steps 1-4. rules MUST include a fallback rule
// (IsFallback=true); if none matches and none is marked fallback, Route
// returns an Internal error — tenants are required to maintain one.
func (e *Engine) Route(job *models.Job, rules []*models.RoutingRule) (Decision, error) {
	var fallback *models.RoutingRule
	for _, r := range rules {
		if r.IsFallback {
			fallback = r
		}
		if !r.Active {
			continue
		}
		if matches(job, r.Conditions) {
			return e.decisionFor(job, r), nil
		}
	}
	if fallback != nil {
		return e.decisionFor(job, fallback), nil
	}
	return Decision{}, apperr.New(apperr.Internal, "no_fallback_rule", "tenant has no fallback routing rule configured")
}

func (e *Engine) decisionFor(job *models.Job, r *models.RoutingRule) Decision {
	priority := r.Action.Priority
	if priority == 0 {
		priority = urgencyDefaultPriority[job.Urgency]
	}
	d := Decision{
		DepartmentID:        r.Action.DepartmentID,
		WorkerID:            r.Action.WorkerID,
		Priority:            priority,
		Reason:              reasonFor(r, job),
		SendNotification:    r.NotificationFlag,
		MatchedRuleID:       r.ID,
		MatchedRuleName:     r.Name,
	}
	if d.SendNotification {
		d.NotificationChannels = r.Action.NotificationChannels
		if len(d.NotificationChannels) == 0 {
			d.NotificationChannels = defaultNotificationChannels
		}
	}
	if r.EscalationDeadlineMin > 0 {
		d.EscalationDeadline = time.Duration(r.EscalationDeadlineMin) * time.Minute
	}
	return d
}

func reasonFor(r *models.RoutingRule, job *models.Job) string {
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteString(" (priority=")
	b.WriteString(strconv.Itoa(r.Priority))
	b.WriteString(", urgency=")
	b.WriteString(string(job.Urgency))
	b.WriteString(")")
	return b.String()
}

// matches implements §4.6 step 2: a missing condition matches
// everything; conditions combine by AND.
func matches(job *models.Job, c models.RuleConditions) bool {
	if len(c.TaskTypes) > 0 && !containsTrade(c.TaskTypes, job.TradeCategory) {
		return false
	}
	if len(c.Urgencies) > 0 && !containsUrgency(c.Urgencies, job.Urgency) {
		return false
	}
	if c.PostalPrefix != "" && !strings.HasPrefix(job.AddressSnapshot.PostalCode, c.PostalPrefix) {
		return false
	}
	if c.TimeOfDayFrom != "" && c.TimeOfDayTo != "" {
		now := job.CreatedAt.Format("15:04")
		if now < c.TimeOfDayFrom || now > c.TimeOfDayTo {
			return false
		}
	}
	return true
}

func containsTrade(list []models.TradeCategory, t models.TradeCategory) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}

func containsUrgency(list []models.Urgency, u models.Urgency) bool {
	for _, x := range list {
		if x == u {
			return true
		}
	}
	return false
}
