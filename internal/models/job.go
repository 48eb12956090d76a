package models

import (
	"fmt"
	"time"
)

// TradeCategory classifies a Job's line of work. The base set is
// plumbing-heating/electrical/sanitary/general; domain extensions append
// more specific categories (see industry profiles).
type TradeCategory string

const (
	TradePlumbingHeating TradeCategory = "plumbing-heating"
	TradeElectrical      TradeCategory = "electrical"
	TradeSanitary        TradeCategory = "sanitary"
	TradeGeneral         TradeCategory = "general"
	TradeLocksmith       TradeCategory = "locksmith"
	TradeRoofing         TradeCategory = "roofing"
	TradePainting        TradeCategory = "painting"
	TradeCarpentry       TradeCategory = "carpentry"
	TradeConstruction    TradeCategory = "construction"
)

// Urgency is the triage-assigned severity bucket.
type Urgency string

const (
	UrgencyEmergency Urgency = "emergency"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyNormal    Urgency = "normal"
	UrgencyRoutine   Urgency = "routine"
)

// MaxWait returns the urgency's maximum acceptable scheduling wait, per
// §4.8 step 1 (emergency 2h, urgent 8h, normal 48h, routine 2 weeks).
func (u Urgency) MaxWait() time.Duration {
	switch u {
	case UrgencyEmergency:
		return 2 * time.Hour
	case UrgencyUrgent:
		return 8 * time.Hour
	case UrgencyNormal:
		return 48 * time.Hour
	case UrgencyRoutine:
		return 14 * 24 * time.Hour
	default:
		return 48 * time.Hour
	}
}

// JobStatus is the Job lifecycle state. Valid transitions are enforced by
// jobservice.ValidateTransition per §8's status-machine property.
type JobStatus string

const (
	JobNew        JobStatus = "new"
	JobAssigned   JobStatus = "assigned"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether s forbids further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobCancelled
}

// Source enumerates how a Job's originating interaction arrived.
type Source string

const (
	SourcePhone     Source = "phone"
	SourceEmail     Source = "email"
	SourceChat      Source = "chat"
	SourceForm      Source = "form"
	SourceMessenger Source = "messenger"
)

// Job is a service request — the central persisted entity. See §3 Job.
type Job struct {
	ID               string        `json:"id" db:"id"`
	TenantID         string        `json:"tenant_id" db:"tenant_id"`
	JobNumber        string        `json:"job_number" db:"job_number"` // JOB-YYYY-NNNN
	ContactID        string        `json:"contact_id" db:"contact_id"`
	Title            string        `json:"title" db:"title"`
	Description      string        `json:"description" db:"description"`
	TradeCategory    TradeCategory `json:"trade_category" db:"trade_category"`
	Urgency          Urgency       `json:"urgency" db:"urgency"`
	Status           JobStatus     `json:"status" db:"status"`
	Source           Source        `json:"source" db:"source"`
	AddressSnapshot  Address       `json:"address_snapshot" db:"address_snapshot"`
	Geo              GeoPoint      `json:"geo" db:"geo"`
	DistanceFromHQKM float64       `json:"distance_from_hq_km" db:"distance_from_hq_km"`
	RoutingPriority  int           `json:"routing_priority" db:"routing_priority"` // 1-99, lower = higher priority
	RoutingReason    string        `json:"routing_reason" db:"routing_reason"`
	EscalationAt     *time.Time    `json:"escalation_at,omitempty" db:"escalation_at"` // §4.6 step 5: cleared once acted on
	DepartmentID     string        `json:"department_id,omitempty" db:"department_id"`
	WorkerID         string        `json:"worker_id,omitempty" db:"worker_id"`
	PreferredWindow  *TimeWindow   `json:"preferred_window,omitempty" db:"preferred_window"`
	ScheduledAt      *time.Time    `json:"scheduled_at,omitempty" db:"scheduled_at"`
	AccessNotes      string        `json:"access_notes,omitempty" db:"access_notes"`
	RecordingFlag    bool          `json:"recording_flag" db:"recording_flag"`
	RecordingURL     string        `json:"recording_url,omitempty" db:"recording_url"`
	CancelReason     string        `json:"cancel_reason,omitempty" db:"cancel_reason"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// TimeWindow is a preferred or booked appointment window.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsAssignedConsistent checks the §3 invariant status=assigned ⇒
// assigned_worker ≠ null.
func (j *Job) IsAssignedConsistent() bool {
	if j.Status == JobAssigned {
		return j.WorkerID != ""
	}
	return true
}

// IsCompletedConsistent checks status=completed ⇒ completed_at ≠ null.
func (j *Job) IsCompletedConsistent() bool {
	if j.Status == JobCompleted {
		return j.CompletedAt != nil
	}
	return true
}

// FormatJobNumber renders the canonical JOB-YYYY-NNNN job number.
func FormatJobNumber(year int, seq int) string {
	return fmt.Sprintf("JOB-%04d-%04d", year, seq)
}

// JobHistoryEntry is an append-only audit row per job mutation. See §3
// Job History Entry — never updated or deleted.
type JobHistoryEntry struct {
	ID        string         `json:"id" db:"id"`
	JobID     string         `json:"job_id" db:"job_id"`
	Actor     string         `json:"actor" db:"actor"` // "system" or a user id
	Action    string         `json:"action" db:"action"`
	Timestamp time.Time      `json:"timestamp" db:"timestamp"`
	Detail    map[string]any `json:"detail" db:"detail_json"`
}
