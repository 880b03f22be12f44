package core

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeSchemas struct {
	existing map[string]bool

	created []string
	dropped []string

	createErr error
	dropErr   error
	existsErr error
	listErr   error
}

func (f *fakeSchemas) Create(ctx context.Context, schema string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.existing[schema] = true
	f.created = append(f.created, schema)
	return nil
}

func (f *fakeSchemas) Drop(ctx context.Context, schema string) error {
	if f.dropErr != nil {
		return f.dropErr
	}
	delete(f.existing, schema)
	f.dropped = append(f.dropped, schema)
	return nil
}

func (f *fakeSchemas) Exists(ctx context.Context, schema string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.existing[schema], nil
}

func (f *fakeSchemas) List(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	names := make([]string, 0, len(f.existing))
	for name := range f.existing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type fakeMigrator struct {
	applied  []string
	applyErr error
}

func (f *fakeMigrator) Apply(ctx context.Context, schema string, dir string) (bool, error) {
	if f.applyErr != nil {
		return false, f.applyErr
	}
	f.applied = append(f.applied, schema)
	return true, nil
}

type fakeVhosts struct {
	routes map[string]bool

	created []string
	removed []string
	reloads int

	createErr error
}

func (f *fakeVhosts) CreateRouting(ctx context.Context, subdomain string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.routes[subdomain] = true
	f.created = append(f.created, subdomain)
	return nil
}

func (f *fakeVhosts) RemoveRouting(ctx context.Context, subdomain string, triggerReload bool) error {
	delete(f.routes, subdomain)
	f.removed = append(f.removed, subdomain)
	if triggerReload {
		f.reloads++
	}
	return nil
}

func (f *fakeVhosts) Reload(ctx context.Context) error {
	f.reloads++
	return nil
}

type fakeUsage struct {
	events   int
	eventErr error
}

func (f *fakeUsage) EventCount(ctx context.Context, subdomain string) (int, error) {
	return f.events, f.eventErr
}

type fakeNotifier struct {
	failed   []string
	imported [][]string
}

func (f *fakeNotifier) ProvisioningFailed(subdomain string, cause string) {
	f.failed = append(f.failed, subdomain)
}

func (f *fakeNotifier) TenantsImported(subdomains []string) {
	f.imported = append(f.imported, subdomains)
}

type serviceFakes struct {
	schemas  *fakeSchemas
	migrator *fakeMigrator
	vhosts   *fakeVhosts
	usage    *fakeUsage
	notifier *fakeNotifier
}

func newTestService(t *testing.T) (*TenantService, *serviceFakes) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "registry.db")), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Tenant{}, &Setting{}))

	f := &serviceFakes{
		schemas:  &fakeSchemas{existing: map[string]bool{}},
		migrator: &fakeMigrator{},
		vhosts:   &fakeVhosts{routes: map[string]bool{}},
		usage:    &fakeUsage{},
		notifier: &fakeNotifier{},
	}

	s := NewTenantService(db, f.schemas, f.migrator, f.vhosts, f.usage, "migrations", "")
	s.SetNotifier(f.notifier)
	return s, f
}
