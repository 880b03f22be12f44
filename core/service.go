package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// SchemaManager is the physical resource handle for per-tenant schemas.
// DatabaseManager implements it against MySQL.
type SchemaManager interface {
	Create(ctx context.Context, schema string) error
	Drop(ctx context.Context, schema string) error
	Exists(ctx context.Context, schema string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// VhostManager writes and removes reverse-proxy routing entries for a
// subdomain. CreateRouting includes the reload; reload failures are
// reported synchronously.
type VhostManager interface {
	CreateRouting(ctx context.Context, subdomain string) error
	RemoveRouting(ctx context.Context, subdomain string, triggerReload bool) error
	Reload(ctx context.Context) error
}

// UsageReader reports live resource usage of a tenant, used to guard plan
// downgrades.
type UsageReader interface {
	EventCount(ctx context.Context, subdomain string) (int, error)
}

// Notifier receives operator notifications. Implementations must not block
// provisioning; errors from the notifier are logged and dropped.
type Notifier interface {
	ProvisioningFailed(subdomain string, cause string)
	TenantsImported(subdomains []string)
}

// TenantService drives the tenant lifecycle: it is the only writer of the
// tenants table and the only caller of the migration runner and the vhost
// manager.
type TenantService struct {
	db       *gorm.DB
	schemas  SchemaManager
	migrator MigrationRunner
	vhosts   VhostManager
	usage    UsageReader
	settings *SettingsStore
	notifier Notifier

	MigrationsDir string
	TenantsDir    string
	SyncCooldown  time.Duration
}

func NewTenantService(
	db *gorm.DB,
	schemas SchemaManager,
	migrator MigrationRunner,
	vhosts VhostManager,
	usage UsageReader,
	migrationsDir string,
	tenantsDir string,
) *TenantService {
	return &TenantService{
		db:            db,
		schemas:       schemas,
		migrator:      migrator,
		vhosts:        vhosts,
		usage:         usage,
		settings:      NewSettingsStore(db),
		MigrationsDir: migrationsDir,
		TenantsDir:    tenantsDir,
		SyncCooldown:  10 * time.Minute,
	}
}

// SetNotifier attaches an optional operator notifier (e.g. Slack).
func (s *TenantService) SetNotifier(n Notifier) {
	s.notifier = n
}

// CreateParams carries everything a tenant can be created with. Billing and
// imprint values are stored untouched.
type CreateParams struct {
	UID       string
	Subdomain string
	Plan      *string

	BillingCustomerID     *string
	BillingSubscriptionID *string
	BillingPriceID        *string
	BillingStatus         *string

	ImprintName   *string
	ImprintStreet *string
	ImprintZip    *string
	ImprintCity   *string
	ImprintEmail  *string

	CustomLimits map[string]int
}

// CreateTenant provisions a tenant end to end: registry row, physical
// schema, migrations, vhost routing. A failed attempt leaves a row in state
// failed with its partial footprint rolled back; calling CreateTenant again
// with the same subdomain retries it.
func (s *TenantService) CreateTenant(ctx context.Context, p CreateParams) error {
	sub := NormalizeSubdomain(p.Subdomain)
	if !ValidSubdomain(sub) {
		return fmt.Errorf("invalid subdomain %q", p.Subdomain)
	}
	if p.Plan != nil && !ValidPlan(*p.Plan) {
		return fmt.Errorf("%w: %s", ErrInvalidPlan, *p.Plan)
	}
	if ReservedSubdomain(sub) {
		return fmt.Errorf("%w: %s is reserved", ErrTenantExists, sub)
	}

	var existing Tenant
	err := s.db.First(&existing, "subdomain = ?", sub).Error
	switch {
	case err == nil && existing.OnboardingState != StateFailed:
		return fmt.Errorf("%w: %s", ErrTenantExists, sub)
	case err == nil:
		// Retry of a failed attempt: this is the only path that
		// reassigns the uid and resets the row.
		return s.provision(ctx, p, sub, &existing)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return fmt.Errorf("failed to query tenant %s: %w", sub, err)
	}

	// No registry row. An already-present physical schema means an orphan
	// created out of band: import it instead of provisioning.
	orphan, err := s.schemas.Exists(ctx, sub)
	if err != nil {
		return err
	}
	if orphan {
		return s.importOrphan(ctx, p, sub)
	}

	return s.provision(ctx, p, sub, nil)
}

// provision runs the pending -> provisioning -> provisioned (-> completed)
// path. retry is the failed row to reuse, or nil for a fresh insert.
func (s *TenantService) provision(ctx context.Context, p CreateParams, sub string, retry *Tenant) error {
	row := s.newRow(p, sub)
	row.OnboardingState = StatePending

	if retry != nil {
		if err := s.db.Model(&Tenant{}).Where("subdomain = ?", sub).Updates(s.resetColumns(row)).Error; err != nil {
			return fmt.Errorf("failed to reset tenant %s: %w", sub, err)
		}
	} else {
		if err := s.db.Create(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost the race against a concurrent create; the
				// unique subdomain index is the atomicity primitive.
				return fmt.Errorf("%w: %s", ErrTenantExists, sub)
			}
			return fmt.Errorf("failed to insert tenant %s: %w", sub, err)
		}
	}

	s.setState(sub, StateProvisioning)

	// Compensating steps for everything created in this attempt, executed
	// in reverse on failure.
	var undo []func()

	// The schema may survive from a half-cleaned earlier attempt; the
	// migration runner is idempotent either way.
	schemaExists, err := s.schemas.Exists(ctx, sub)
	if err != nil {
		s.fail(ctx, sub, undo, err)
		return err
	}
	if !schemaExists {
		if err := s.schemas.Create(ctx, sub); err != nil {
			s.fail(ctx, sub, undo, err)
			return err
		}
		undo = append(undo, func() {
			if err := s.schemas.Drop(context.Background(), sub); err != nil {
				log.Printf("rollback: failed to drop schema %s: %v", sub, err)
			}
		})
	}

	if _, err := s.migrator.Apply(ctx, sub, s.MigrationsDir); err != nil {
		if !errors.Is(err, ErrDuplicateObject) {
			s.fail(ctx, sub, undo, err)
			return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
		}
		// Leftovers of a previous attempt; the schema is fine.
		log.Printf("migrations for %s: tolerated duplicate object: %v", sub, err)
	}

	s.setState(sub, StateProvisioned)

	if err := s.vhosts.CreateRouting(ctx, sub); err != nil {
		undo = append(undo, func() {
			if rmErr := s.vhosts.RemoveRouting(context.Background(), sub, false); rmErr != nil {
				log.Printf("rollback: failed to remove vhost %s: %v", sub, rmErr)
			}
		})
		s.fail(ctx, sub, undo, err)
		return fmt.Errorf("%w: %v", ErrNginxReloadFailed, err)
	}

	return s.finish(sub, p.Plan)
}

// importOrphan registers a schema that exists without a registry row. The
// schema is assumed correct: no creation, no migrations, but routing is
// still established.
func (s *TenantService) importOrphan(ctx context.Context, p CreateParams, sub string) error {
	row := s.newRow(p, sub)
	row.OnboardingState = StateProvisioned

	if err := s.db.Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrTenantExists, sub)
		}
		return fmt.Errorf("failed to insert tenant %s: %w", sub, err)
	}

	if err := s.vhosts.CreateRouting(ctx, sub); err != nil {
		// The schema predates this call and is not ours to drop.
		undo := []func(){func() {
			if rmErr := s.vhosts.RemoveRouting(context.Background(), sub, false); rmErr != nil {
				log.Printf("rollback: failed to remove vhost %s: %v", sub, rmErr)
			}
		}}
		s.fail(ctx, sub, undo, err)
		return fmt.Errorf("%w: %v", ErrNginxReloadFailed, err)
	}

	return s.finish(sub, p.Plan)
}

func (s *TenantService) newRow(p CreateParams, sub string) *Tenant {
	row := &Tenant{
		UID:                   p.UID,
		Subdomain:             sub,
		Plan:                  p.Plan,
		BillingCustomerID:     p.BillingCustomerID,
		BillingSubscriptionID: p.BillingSubscriptionID,
		BillingPriceID:        p.BillingPriceID,
		BillingStatus:         p.BillingStatus,
		ImprintName:           p.ImprintName,
		ImprintStreet:         p.ImprintStreet,
		ImprintZip:            p.ImprintZip,
		ImprintCity:           p.ImprintCity,
		ImprintEmail:          p.ImprintEmail,
	}
	if len(p.CustomLimits) > 0 {
		raw, _ := json.Marshal(p.CustomLimits)
		encoded := string(raw)
		row.CustomLimits = &encoded
	}
	return row
}

// resetColumns maps a rebuilt row onto column updates for the retry path.
// created_at is deliberately absent: it is set once and never mutated.
func (s *TenantService) resetColumns(row *Tenant) map[string]any {
	return map[string]any{
		"uid":                     row.UID,
		"plan":                    row.Plan,
		"onboarding_state":        row.OnboardingState,
		"custom_limits":           row.CustomLimits,
		"billing_customer_id":     row.BillingCustomerID,
		"billing_subscription_id": row.BillingSubscriptionID,
		"billing_price_id":        row.BillingPriceID,
		"billing_status":          row.BillingStatus,
		"imprint_name":            row.ImprintName,
		"imprint_street":          row.ImprintStreet,
		"imprint_zip":             row.ImprintZip,
		"imprint_city":            row.ImprintCity,
		"imprint_email":           row.ImprintEmail,
		"plan_started_at":         nil,
		"plan_expires_at":         nil,
	}
}

// fail runs the compensating steps in reverse order and marks the row
// failed. Compensation errors are logged, never raised in place of the
// original failure.
func (s *TenantService) fail(ctx context.Context, sub string, undo []func(), cause error) {
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	s.setState(sub, StateFailed)
	log.Printf("provisioning %s failed: %v", sub, cause)
	if s.notifier != nil {
		s.notifier.ProvisioningFailed(sub, cause.Error())
	}
}

func (s *TenantService) finish(sub string, plan *string) error {
	updates := map[string]any{"onboarding_state": StateProvisioned}
	if plan != nil {
		now := time.Now().UTC()
		expires := now.Add(PlanTerm)
		updates["onboarding_state"] = StateCompleted
		updates["plan_started_at"] = now
		updates["plan_expires_at"] = expires
	}
	if err := s.db.Model(&Tenant{}).Where("subdomain = ?", sub).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to finish tenant %s: %w", sub, err)
	}
	return nil
}

func (s *TenantService) setState(sub, state string) {
	if err := s.db.Model(&Tenant{}).Where("subdomain = ?", sub).Update("onboarding_state", state).Error; err != nil {
		log.Printf("failed to set state %s for %s: %v", state, sub, err)
	}
}

// DeleteTenant tears a tenant down completely. Routing goes first so no
// traffic can reach a schema that is about to vanish.
func (s *TenantService) DeleteTenant(ctx context.Context, subdomain string) error {
	sub := NormalizeSubdomain(subdomain)

	var row Tenant
	if err := s.db.First(&row, "subdomain = ?", sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrTenantNotFound, sub)
		}
		return fmt.Errorf("failed to query tenant %s: %w", sub, err)
	}

	if err := s.vhosts.RemoveRouting(ctx, sub, true); err != nil {
		return fmt.Errorf("failed to remove routing for %s: %w", sub, err)
	}
	if err := s.schemas.Drop(ctx, sub); err != nil {
		return err
	}
	if err := s.db.Delete(&Tenant{}, "subdomain = ?", sub).Error; err != nil {
		return fmt.Errorf("failed to delete tenant %s: %w", sub, err)
	}
	return nil
}

// UpdateProfileParams are the partially supplied fields of an update. Nil
// means "leave unchanged"; custom limits merge key-wise into the stored set.
type UpdateProfileParams struct {
	Plan          *string
	PlanStartedAt *time.Time

	BillingCustomerID     *string
	BillingSubscriptionID *string
	BillingPriceID        *string
	BillingStatus         *string
	BillingPeriodEnd      *time.Time
	BillingCancelAtEnd    *bool

	ImprintName   *string
	ImprintStreet *string
	ImprintZip    *string
	ImprintCity   *string
	ImprintEmail  *string

	CustomLimits map[string]int
}

// UpdateProfile applies a partial update. A plan change is validated
// against the catalog and against the tenant's live usage before anything
// is written: usage above any limit of the target plan rejects the whole
// update.
func (s *TenantService) UpdateProfile(ctx context.Context, subdomain string, p UpdateProfileParams) error {
	sub := NormalizeSubdomain(subdomain)

	var row Tenant
	if err := s.db.First(&row, "subdomain = ?", sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrTenantNotFound, sub)
		}
		return fmt.Errorf("failed to query tenant %s: %w", sub, err)
	}

	updates := map[string]any{}

	planChanged := p.Plan != nil && (row.Plan == nil || *row.Plan != *p.Plan)
	if planChanged {
		if !ValidPlan(*p.Plan) {
			return fmt.Errorf("%w: %s", ErrInvalidPlan, *p.Plan)
		}
		limits := PlanLimitsFor(Plan(*p.Plan))
		events, err := s.usage.EventCount(ctx, sub)
		if err != nil {
			return err
		}
		if max, ok := limits[MetricMaxEvents]; ok && events > max {
			return &LimitExceededError{Metric: MetricMaxEvents, Usage: events, Limit: max}
		}
		updates["plan"] = *p.Plan
	}

	if planChanged || p.PlanStartedAt != nil {
		start := time.Now().UTC()
		if p.PlanStartedAt != nil {
			start = p.PlanStartedAt.UTC()
		}
		updates["plan_started_at"] = start
		updates["plan_expires_at"] = start.Add(PlanTerm)
	}

	if len(p.CustomLimits) > 0 {
		merged := row.CustomLimitMap()
		for metric, max := range p.CustomLimits {
			merged[metric] = max
		}
		raw, _ := json.Marshal(merged)
		updates["custom_limits"] = string(raw)
	}

	setIfPresent(updates, "billing_customer_id", p.BillingCustomerID)
	setIfPresent(updates, "billing_subscription_id", p.BillingSubscriptionID)
	setIfPresent(updates, "billing_price_id", p.BillingPriceID)
	setIfPresent(updates, "billing_status", p.BillingStatus)
	if p.BillingPeriodEnd != nil {
		updates["billing_period_end"] = *p.BillingPeriodEnd
	}
	if p.BillingCancelAtEnd != nil {
		updates["billing_cancel_at_period_end"] = *p.BillingCancelAtEnd
	}
	setIfPresent(updates, "imprint_name", p.ImprintName)
	setIfPresent(updates, "imprint_street", p.ImprintStreet)
	setIfPresent(updates, "imprint_zip", p.ImprintZip)
	setIfPresent(updates, "imprint_city", p.ImprintCity)
	setIfPresent(updates, "imprint_email", p.ImprintEmail)

	if len(updates) == 0 {
		return nil
	}
	if err := s.db.Model(&Tenant{}).Where("subdomain = ?", sub).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update tenant %s: %w", sub, err)
	}
	return nil
}

func setIfPresent(updates map[string]any, column string, value *string) {
	if value != nil {
		updates[column] = *value
	}
}

// GetAll lists tenant summaries, optionally filtered by a subdomain
// substring.
func (s *TenantService) GetAll(filter string) ([]TenantSummary, error) {
	q := s.db.Order("subdomain")
	if filter != "" {
		q = q.Where("subdomain LIKE ?", "%"+NormalizeSubdomain(filter)+"%")
	}
	var rows []Tenant
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	summaries := make([]TenantSummary, 0, len(rows))
	for i := range rows {
		summaries = append(summaries, rows[i].Summary())
	}
	return summaries, nil
}

// GetBySubdomain returns the full registry row, or nil when absent.
func (s *TenantService) GetBySubdomain(subdomain string) (*Tenant, error) {
	var row Tenant
	err := s.db.First(&row, "subdomain = ?", NormalizeSubdomain(subdomain)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant: %w", err)
	}
	return &row, nil
}

// GetPlanBySubdomain returns the tenant's plan, empty when none is active.
func (s *TenantService) GetPlanBySubdomain(subdomain string) (string, error) {
	row, err := s.GetBySubdomain(subdomain)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", fmt.Errorf("%w: %s", ErrTenantNotFound, subdomain)
	}
	if row.Plan == nil {
		return "", nil
	}
	return *row.Plan, nil
}

// GetLimitsBySubdomain returns the effective limits: catalog defaults with
// custom_limits overriding per key.
func (s *TenantService) GetLimitsBySubdomain(subdomain string) (map[string]int, error) {
	row, err := s.GetBySubdomain(subdomain)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, subdomain)
	}
	return row.EffectiveLimits(), nil
}

// GetCustomLimitsBySubdomain returns only the per-tenant overrides.
func (s *TenantService) GetCustomLimitsBySubdomain(subdomain string) (map[string]int, error) {
	row, err := s.GetBySubdomain(subdomain)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, subdomain)
	}
	return row.CustomLimitMap(), nil
}

// SetCustomLimits merges the given overrides into the stored custom limits.
func (s *TenantService) SetCustomLimits(ctx context.Context, subdomain string, limits map[string]int) error {
	return s.UpdateProfile(ctx, subdomain, UpdateProfileParams{CustomLimits: limits})
}

// Exists reports whether the candidate is taken: reserved, registered, or
// already backed by a physical schema created out of band.
func (s *TenantService) Exists(ctx context.Context, candidate string) (bool, error) {
	sub := NormalizeSubdomain(candidate)
	if ReservedSubdomain(sub) {
		return true, nil
	}
	var count int64
	if err := s.db.Model(&Tenant{}).Where("subdomain = ?", sub).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to query tenant %s: %w", sub, err)
	}
	if count > 0 {
		return true, nil
	}
	return s.schemas.Exists(ctx, sub)
}
