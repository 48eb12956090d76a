package models

// RuleConditions are the optional match conditions over a Job; a nil/zero
// field matches everything ("missing condition matches everything",
// §4.6 step 2). Conditions combine by AND.
type RuleConditions struct {
	TaskTypes    []TradeCategory `json:"task_types,omitempty"`
	Urgencies    []Urgency       `json:"urgencies,omitempty"`
	PostalPrefix string          `json:"postal_prefix,omitempty"`
	TimeOfDayFrom string         `json:"time_of_day_from,omitempty"` // "HH:MM"
	TimeOfDayTo   string         `json:"time_of_day_to,omitempty"`
}

// RuleAction names the routing target: either a Department or a specific
// Worker (never both).
type RuleAction struct {
	DepartmentID string `json:"department_id,omitempty"`
	WorkerID     string `json:"worker_id,omitempty"`
	Priority     int    `json:"priority,omitempty"`
	// NotificationChannels lists the channel adapters to dispatch through
	// when the owning rule's NotificationFlag is set. Empty means the
	// routing engine falls back to the tenant's default channel set.
	NotificationChannels []string `json:"notification_channels,omitempty"`
}

// RoutingRule is ordered by Priority (ascending, lower evaluated first).
// See §3 Routing Rule and §4.6.
type RoutingRule struct {
	ID                  string         `json:"id" db:"id"`
	TenantID            string         `json:"tenant_id" db:"tenant_id"`
	Name                string         `json:"name" db:"name"`
	Priority            int            `json:"priority" db:"priority"`
	Conditions          RuleConditions `json:"conditions" db:"conditions_json"`
	Action              RuleAction     `json:"action" db:"action_json"`
	EscalationDeadlineMin int          `json:"escalation_deadline_minutes,omitempty" db:"escalation_deadline_minutes"`
	NotificationFlag    bool           `json:"notification_flag" db:"notification_flag"`
	Active              bool           `json:"active" db:"active"`
	IsFallback          bool           `json:"is_fallback" db:"is_fallback"`
}
