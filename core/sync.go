package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
)

const syncLastRunKey = "tenant_sync_last_run_at"

// SyncStatus describes the throttle state of the reconciliation job.
type SyncStatus struct {
	IsThrottled bool       `json:"is_throttled"`
	LastRunAt   *time.Time `json:"last_run_at"`
}

// SyncResult is what ImportMissing returns to its caller.
type SyncResult struct {
	Imported  int        `json:"imported"`
	Throttled bool       `json:"throttled"`
	Sync      SyncStatus `json:"sync"`
}

// ImportMissing repairs drift between the registry, the physical schema
// catalog and the on-disk tenants directory: every name present physically
// but absent from the registry is imported through the create path.
//
// The sweep is throttled by a persisted timestamp instead of a lock. Two
// calls racing just after the cooldown may both scan; the unique subdomain
// index makes the double import benign, so the narrow race is accepted.
func (s *TenantService) ImportMissing(ctx context.Context) (*SyncResult, error) {
	lastRun, err := s.lastSyncRun()
	if err != nil {
		return nil, err
	}
	if lastRun != nil && time.Since(*lastRun) < s.SyncCooldown {
		return &SyncResult{
			Throttled: true,
			Sync:      SyncStatus{IsThrottled: true, LastRunAt: lastRun},
		}, nil
	}

	candidates, err := s.collectCandidates(ctx)
	if err != nil {
		return nil, err
	}

	known := map[string]bool{}
	var rows []Tenant
	if err := s.db.Select("subdomain").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list registered tenants: %w", err)
	}
	for i := range rows {
		known[rows[i].Subdomain] = true
	}

	imported := 0
	var importedSubs []string
	for _, sub := range candidates {
		if known[sub] {
			continue
		}
		err := s.CreateTenant(ctx, CreateParams{UID: uuid.NewString(), Subdomain: sub})
		if errors.Is(err, ErrTenantExists) {
			// Another sweep got here first.
			continue
		}
		if err != nil {
			log.Printf("sync: failed to import %s: %v", sub, err)
			continue
		}
		imported++
		importedSubs = append(importedSubs, sub)
	}

	// Persisted unconditionally, even for an empty sweep: the cooldown
	// counts scans, not imports.
	now := time.Now().UTC()
	if err := s.settings.Set(syncLastRunKey, now.Format(time.RFC3339)); err != nil {
		return nil, err
	}

	if imported > 0 && s.notifier != nil {
		s.notifier.TenantsImported(importedSubs)
	}

	return &SyncResult{
		Imported: imported,
		Sync:     SyncStatus{LastRunAt: &now},
	}, nil
}

func (s *TenantService) lastSyncRun() (*time.Time, error) {
	value, ok, err := s.settings.Get(syncLastRunKey)
	if err != nil || !ok {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		// A mangled timestamp must not wedge the job forever.
		log.Printf("sync: ignoring unparsable last-run timestamp %q", value)
		return nil, nil
	}
	return &ts, nil
}

// collectCandidates unions the schema catalog with the tenants directory.
func (s *TenantService) collectCandidates(ctx context.Context) ([]string, error) {
	set := map[string]bool{}

	schemas, err := s.schemas.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range schemas {
		sub := NormalizeSubdomain(name)
		if ValidSubdomain(sub) && !ReservedSubdomain(sub) {
			set[sub] = true
		}
	}

	if s.TenantsDir != "" {
		entries, err := os.ReadDir(s.TenantsDir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read tenants dir: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			sub := NormalizeSubdomain(entry.Name())
			if ValidSubdomain(sub) && !ReservedSubdomain(sub) {
				set[sub] = true
			}
		}
	}

	candidates := make([]string, 0, len(set))
	for sub := range set {
		candidates = append(candidates, sub)
	}
	sort.Strings(candidates)
	return candidates, nil
}
