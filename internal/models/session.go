package models

import "time"

// SessionChannel is how a Session is connected: audio (phone/telephony
// provider) or text (web chat / messenger).
type SessionChannel string

const (
	ChannelPhone     SessionChannel = "phone"
	ChannelChat      SessionChannel = "chat"
	ChannelMessenger SessionChannel = "messenger"
)

// ConversationState is the per-turn state of the Conversation SM, per §4.4.
type ConversationState string

const (
	StateGreeting       ConversationState = "GREETING"
	StateIntake         ConversationState = "INTAKE"
	StateClassification ConversationState = "CLASSIFICATION"
	StateSlotFill       ConversationState = "SLOT_FILL"
	StateConfirmation   ConversationState = "CONFIRMATION"
	StateAction         ConversationState = "ACTION"
	StateFarewell       ConversationState = "FAREWELL"
	StateEscalation     ConversationState = "ESCALATION"
)

// SessionEndStatus records how a Session terminated, written into its
// end-of-session summary.
type SessionEndStatus string

const (
	SessionCompleted SessionEndStatus = "completed"
	SessionAbandoned SessionEndStatus = "abandoned"
	SessionEscalated SessionEndStatus = "escalated"
	SessionErrored   SessionEndStatus = "errored"
)

// Role is a Conversation Message's speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is an ordered (role, content, timestamp) triple within a
// Session, bounded by a sliding window before being handed to the LLM.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SlotValues holds the slot-fill progress for the active industry
// profile's slot schema: name -> captured value. This is the "small
// mutable slot store owned by the Session actor" from §9's design note —
// state transitions otherwise produce immutable per-turn snapshots.
type SlotValues map[string]string

// Snapshot is the immutable per-turn context handed to the Conversation
// SM, replacing the source's mutable shared context dict per §9.
type Snapshot struct {
	SessionID   string
	TenantID    string
	State       ConversationState
	Slots       SlotValues
	History     []Message
	TurnCount   int
	Escalated   bool
	Language    string
}

// SessionSummary is the durable record written to Storage when a Session
// ends; the live Session itself is never persisted (§3 Session lifecycle).
type SessionSummary struct {
	ID          string            `json:"id" db:"id"`
	TenantID    string            `json:"tenant_id" db:"tenant_id"`
	ContactID   string            `json:"contact_id,omitempty" db:"contact_id"`
	Channel     SessionChannel    `json:"channel" db:"channel"`
	JobID       string            `json:"job_id,omitempty" db:"job_id"`
	EndStatus   SessionEndStatus  `json:"end_status" db:"end_status"`
	TurnCount   int               `json:"turn_count" db:"turn_count"`
	Transcript  []Message         `json:"transcript" db:"transcript_json"`
	StartedAt   time.Time         `json:"started_at" db:"started_at"`
	EndedAt     time.Time         `json:"ended_at" db:"ended_at"`
}
