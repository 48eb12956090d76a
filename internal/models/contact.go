package models

import "time"

// PropertyType classifies a Contact's address for triage/matching.
type PropertyType string

const (
	PropertyResidential PropertyType = "residential"
	PropertyCommercial  PropertyType = "commercial"
	PropertyIndustrial  PropertyType = "industrial"
)

// Address is a German-style postal address (5-digit postal code).
type Address struct {
	Street     string `json:"street" db:"street"`
	Number     string `json:"number" db:"number"`
	PostalCode string `json:"postal_code" db:"postal_code"`
	City       string `json:"city" db:"city"`
}

// Contact is a caller/customer. Never hard-deleted — SoftDeletedAt marks
// erasure instead, per §3 Contact and §8 scenario 6.
type Contact struct {
	ID            string       `json:"id" db:"id"`
	TenantID      string       `json:"tenant_id" db:"tenant_id"`
	Name          string       `json:"name" db:"name"`
	Phone         string       `json:"phone" db:"phone"` // E.164
	Email         string       `json:"email" db:"email"`
	Address       Address      `json:"address" db:"address"`
	Geo           GeoPoint     `json:"geo" db:"geo"`
	PropertyType  PropertyType `json:"property_type" db:"property_type"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
	SoftDeletedAt *time.Time   `json:"soft_deleted_at,omitempty" db:"soft_deleted_at"`
}

// IsErased reports whether this contact has been processed by a
// right-to-erasure request.
func (c *Contact) IsErased() bool { return c.SoftDeletedAt != nil }

// ConsentKind enumerates the consent categories tracked per contact.
type ConsentKind string

const (
	ConsentDataProcessing ConsentKind = "data_processing"
	ConsentCallRecording  ConsentKind = "call_recording"
	ConsentReminders      ConsentKind = "reminders"
	ConsentMarketing      ConsentKind = "marketing"
)

// ConsentMethod is how consent was captured.
type ConsentMethod string

const (
	ConsentVerbal  ConsentMethod = "verbal"
	ConsentWritten ConsentMethod = "written"
	ConsentDigital ConsentMethod = "digital"
)

// Consent is a grant-or-revocation record keyed by (contact, kind). Records
// are append-only: revoking never deletes a prior record, per §3 invariant.
type Consent struct {
	ID         string        `json:"id" db:"id"`
	TenantID   string        `json:"tenant_id" db:"tenant_id"`
	ContactID  string        `json:"contact_id" db:"contact_id"`
	Kind       ConsentKind   `json:"kind" db:"kind"`
	GrantedAt  *time.Time    `json:"granted_at,omitempty" db:"granted_at"`
	RevokedAt  *time.Time    `json:"revoked_at,omitempty" db:"revoked_at"`
	Method     ConsentMethod `json:"method" db:"method"`
	CallID     string        `json:"call_id,omitempty" db:"call_id"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// IsActive reports whether this record currently grants consent: it has
// a GrantedAt, no RevokedAt, and (if set) has not expired as of at.
func (c *Consent) IsActive(at time.Time) bool {
	if c.GrantedAt == nil || c.RevokedAt != nil {
		return false
	}
	if c.ExpiresAt != nil && at.After(*c.ExpiresAt) {
		return false
	}
	return true
}
