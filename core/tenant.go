package core

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// Onboarding states of a tenant. Transitions are forward-only except for
// the failed -> provisioning retry path taken by a repeated CreateTenant.
const (
	StatePending      = "pending"
	StateProvisioning = "provisioning"
	StateProvisioned  = "provisioned"
	StateCompleted    = "completed"
	StateFailed       = "failed"
)

// ReservedSubdomains can never be provisioned; they collide with the main
// site, the admin panel or shared infrastructure hostnames.
var ReservedSubdomains = []string{"www", "admin", "main", "api", "assets"}

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// NormalizeSubdomain lower-cases and trims a candidate subdomain. The
// physical schema name is this value verbatim, so validation below is what
// keeps the subdomain->schema mapping collision-free.
func NormalizeSubdomain(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidSubdomain reports whether a normalized subdomain is usable as both a
// DNS label and a schema name.
func ValidSubdomain(s string) bool {
	return len(s) > 0 && len(s) <= 63 && subdomainPattern.MatchString(s)
}

// ReservedSubdomain reports whether the normalized name is on the reserved list.
func ReservedSubdomain(s string) bool {
	for _, r := range ReservedSubdomains {
		if s == r {
			return true
		}
	}
	return false
}

// Tenant is one registry row per provisioned or in-progress environment.
// Billing and imprint fields are opaque pass-through values.
type Tenant struct {
	UID             string  `gorm:"column:uid;primaryKey;size:64" json:"uid"`
	Subdomain       string  `gorm:"column:subdomain;size:63;not null;uniqueIndex" json:"subdomain"`
	Plan            *string `gorm:"column:plan;size:32" json:"plan"`
	OnboardingState string  `gorm:"column:onboarding_state;size:16;not null;default:pending" json:"onboarding_state"`
	CustomLimits    *string `gorm:"column:custom_limits;type:text" json:"custom_limits"`

	BillingCustomerID     *string    `gorm:"column:billing_customer_id;size:255" json:"billing_customer_id"`
	BillingSubscriptionID *string    `gorm:"column:billing_subscription_id;size:255" json:"billing_subscription_id"`
	BillingPriceID        *string    `gorm:"column:billing_price_id;size:255" json:"billing_price_id"`
	BillingStatus         *string    `gorm:"column:billing_status;size:64" json:"billing_status"`
	BillingPeriodEnd      *time.Time `gorm:"column:billing_period_end" json:"billing_period_end"`
	BillingCancelAtEnd    bool       `gorm:"column:billing_cancel_at_period_end;not null;default:false" json:"billing_cancel_at_period_end"`

	ImprintName   *string `gorm:"column:imprint_name;size:255" json:"imprint_name"`
	ImprintStreet *string `gorm:"column:imprint_street;size:255" json:"imprint_street"`
	ImprintZip    *string `gorm:"column:imprint_zip;size:32" json:"imprint_zip"`
	ImprintCity   *string `gorm:"column:imprint_city;size:255" json:"imprint_city"`
	ImprintEmail  *string `gorm:"column:imprint_email;size:255" json:"imprint_email"`

	PlanStartedAt *time.Time `gorm:"column:plan_started_at" json:"plan_started_at"`
	PlanExpiresAt *time.Time `gorm:"column:plan_expires_at" json:"plan_expires_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// CustomLimitMap decodes custom_limits; a missing or broken value yields an
// empty map.
func (t *Tenant) CustomLimitMap() map[string]int {
	limits := map[string]int{}
	if t.CustomLimits == nil || *t.CustomLimits == "" {
		return limits
	}
	if err := json.Unmarshal([]byte(*t.CustomLimits), &limits); err != nil {
		return map[string]int{}
	}
	return limits
}

// EffectiveLimits merges catalog defaults for the tenant's plan with any
// per-tenant overrides from custom_limits.
func (t *Tenant) EffectiveLimits() map[string]int {
	plan := PlanFree
	if t.Plan != nil {
		plan = Plan(*t.Plan)
	}
	limits := PlanLimitsFor(plan)
	for metric, max := range t.CustomLimitMap() {
		limits[metric] = max
	}
	return limits
}

// Status derives the single user-facing status string from onboarding state
// plus billing status.
func (t *Tenant) Status() string {
	if t.BillingStatus != nil {
		switch *t.BillingStatus {
		case "canceled":
			return "canceled"
		case "past_due", "unpaid":
			return "past_due"
		}
	}
	switch t.OnboardingState {
	case StateCompleted, StateProvisioned:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// TenantSummary is the list representation exposed by GetAll.
type TenantSummary struct {
	UID           string     `json:"uid"`
	Subdomain     string     `json:"subdomain"`
	Plan          *string    `json:"plan"`
	Status        string     `json:"status"`
	PlanStartedAt *time.Time `json:"plan_started_at"`
	PlanExpiresAt *time.Time `json:"plan_expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (t *Tenant) Summary() TenantSummary {
	return TenantSummary{
		UID:           t.UID,
		Subdomain:     t.Subdomain,
		Plan:          t.Plan,
		Status:        t.Status(),
		PlanStartedAt: t.PlanStartedAt,
		PlanExpiresAt: t.PlanExpiresAt,
		CreatedAt:     t.CreatedAt,
	}
}

// Setting is one row of the key-value settings store. The reconciliation
// cooldown timestamp lives here, outside the tenants table.
type Setting struct {
	Key   string `gorm:"column:k;primaryKey;size:64"`
	Value string `gorm:"column:v;type:text;not null"`
}

func (Setting) TableName() string {
	return "settings"
}
