package models

// TenantStatus is the lifecycle flag on a Tenant row.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
)

// Tenant is the isolation boundary: every persisted entity carries
// TenantID, and every storage query filters by it. See §3 Tenant.
type Tenant struct {
	ID       string       `json:"id" db:"id"`
	Status   TenantStatus `json:"status" db:"status"`
	Settings TenantSettings `json:"settings" db:"settings_json"`
}

// TenantSettings mirrors the "tenant.*" configuration options that live
// in Storage rather than process config, since they vary per tenant.
type TenantSettings struct {
	DefaultLanguage     string               `json:"default_language"`
	BusinessHours       map[string]DayHours  `json:"business_hours"`
	HQLocation          GeoPoint             `json:"hq_location"`
	ServiceRadiusKM      float64              `json:"service_radius_km"`
	RoutingFallbackDeptID string             `json:"routing_fallback_department_id"`
	TriageRulesVersion  int                  `json:"triage_rules_version"`
	ConsentRequiredKinds []ConsentKind       `json:"consent_required_kinds"`
	CategoryPreference  TradeCategory        `json:"category_preference"`
}

// DayHours is an open/close pair in the tenant's local time, HH:MM.
type DayHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// GeoPoint is a latitude/longitude pair used for great-circle distance.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
