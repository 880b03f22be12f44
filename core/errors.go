package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantExists: subdomain is reserved, already registered in a
	// non-failed state, or has a conflicting physical footprint.
	ErrTenantExists = errors.New("tenant-exists")

	// ErrInvalidPlan: requested plan is not in the catalog.
	ErrInvalidPlan = errors.New("invalid-plan")

	// ErrMigrationFailed: the migration runner reported an unrecoverable
	// error; the tenant row is marked failed.
	ErrMigrationFailed = errors.New("migration-failed")

	// ErrNginxReloadFailed: vhost creation or its reload step failed; the
	// tenant row is marked failed after best-effort rollback.
	ErrNginxReloadFailed = errors.New("nginx-reload-failed")

	// ErrDuplicateObject is returned by a MigrationRunner when the only
	// failure was an already-existing table/column/index, i.e. the schema
	// was partially migrated by an earlier attempt.
	ErrDuplicateObject = errors.New("duplicate-object")

	// ErrTenantNotFound: no registry row for the subdomain.
	ErrTenantNotFound = errors.New("tenant-not-found")
)

// LimitExceededError rejects a plan change whose target limit is below the
// tenant's current live usage. Error() yields e.g. "max-events-exceeded".
type LimitExceededError struct {
	Metric string
	Usage  int
	Limit  int
}

func (e *LimitExceededError) Error() string {
	switch e.Metric {
	case MetricMaxEvents:
		return "max-events-exceeded"
	case MetricMaxTeamsPerEvent:
		return "max-teams-exceeded"
	case MetricMaxCatalogsPerEvent:
		return "max-catalogs-exceeded"
	case MetricMaxChatbots:
		return "max-chatbots-exceeded"
	}
	return fmt.Sprintf("limit-exceeded:%s", e.Metric)
}

// IsLimitExceeded reports whether err is a plan-limit rejection.
func IsLimitExceeded(err error) bool {
	var le *LimitExceededError
	return errors.As(err, &le)
}
