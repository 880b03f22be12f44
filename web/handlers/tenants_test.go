package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bastelix/sommerfest-quiz-sub007/core"
)

type stubSchemas struct {
	existing map[string]bool
}

func (s *stubSchemas) Create(ctx context.Context, schema string) error {
	s.existing[schema] = true
	return nil
}

func (s *stubSchemas) Drop(ctx context.Context, schema string) error {
	delete(s.existing, schema)
	return nil
}

func (s *stubSchemas) Exists(ctx context.Context, schema string) (bool, error) {
	return s.existing[schema], nil
}

func (s *stubSchemas) List(ctx context.Context) ([]string, error) {
	var names []string
	for name := range s.existing {
		names = append(names, name)
	}
	return names, nil
}

type stubMigrator struct{}

func (stubMigrator) Apply(ctx context.Context, schema string, dir string) (bool, error) {
	return true, nil
}

type stubVhosts struct{}

func (stubVhosts) CreateRouting(ctx context.Context, subdomain string) error { return nil }
func (stubVhosts) RemoveRouting(ctx context.Context, subdomain string, triggerReload bool) error {
	return nil
}
func (stubVhosts) Reload(ctx context.Context) error { return nil }

type stubUsage struct {
	events int
}

func (s *stubUsage) EventCount(ctx context.Context, subdomain string) (int, error) {
	return s.events, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "registry.db")), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&core.Tenant{}, &core.Setting{}))

	service := core.NewTenantService(
		db,
		&stubSchemas{existing: map[string]bool{}},
		stubMigrator{},
		stubVhosts{},
		&stubUsage{},
		"migrations",
		"",
	)

	r := gin.New()
	Register(r.Group("/api"), service)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewBuffer(raw)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateTenantEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/tenants", gin.H{
		"uid":       "uid-1",
		"subdomain": "Acme",
		"plan":      "starter",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data struct {
			Subdomain string `json:"subdomain"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "acme", resp.Data.Subdomain)
}

func TestCreateTenantEndpointConflict(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/tenants", gin.H{"uid": "uid-1", "subdomain": "acme"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/tenants", gin.H{"uid": "uid-2", "subdomain": "acme"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"tenant-exists"}`, w.Body.String())
}

func TestCreateTenantEndpointValidation(t *testing.T) {
	tests := []struct {
		name string
		body gin.H
		code int
	}{
		{name: "Missing uid", body: gin.H{"subdomain": "acme"}, code: http.StatusBadRequest},
		{name: "Missing subdomain", body: gin.H{"uid": "uid-1"}, code: http.StatusBadRequest},
		{name: "Bad subdomain", body: gin.H{"uid": "uid-1", "subdomain": "no_good"}, code: http.StatusBadRequest},
		{name: "Bad email", body: gin.H{"uid": "uid-1", "subdomain": "acme", "imprint_email": "nope"}, code: http.StatusBadRequest},
		{name: "Unknown plan", body: gin.H{"uid": "uid-1", "subdomain": "acme", "plan": "platinum"}, code: http.StatusUnprocessableEntity},
		{name: "Reserved subdomain", body: gin.H{"uid": "uid-1", "subdomain": "www"}, code: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t)
			w := doJSON(t, r, http.MethodPost, "/api/tenants", tt.body)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestExistsEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/tenants", gin.H{"uid": "uid-1", "subdomain": "acme"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/tenants/acme/exists", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/tenants/fresh/exists", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTenantEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/tenants", gin.H{"uid": "uid-1", "subdomain": "acme", "plan": "standard"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/tenants/acme", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data core.Tenant `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "uid-1", resp.Data.UID)
	assert.Equal(t, "standard", *resp.Data.Plan)

	w = doJSON(t, r, http.MethodGet, "/api/tenants/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateTenantEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/tenants", gin.H{"uid": "uid-1", "subdomain": "acme"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPatch, "/api/tenants/acme", gin.H{"imprint_city": "Berlin"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/tenants/acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data core.Tenant `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Berlin", *resp.Data.ImprintCity)
}

func TestLimitsEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/tenants", gin.H{"uid": "uid-1", "subdomain": "acme", "plan": "starter"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPut, "/api/tenants/acme/limits", gin.H{
		"custom_limits": gin.H{"maxEvents": 7},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/tenants/acme/limits", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Plan         string         `json:"plan"`
			Limits       map[string]int `json:"limits"`
			CustomLimits map[string]int `json:"custom_limits"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "starter", resp.Data.Plan)
	assert.Equal(t, 7, resp.Data.Limits["maxEvents"])
	assert.Equal(t, map[string]int{"maxEvents": 7}, resp.Data.CustomLimits)
}

func TestDeleteTenantEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/tenants", gin.H{"uid": "uid-1", "subdomain": "acme"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/api/tenants/acme", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/api/tenants/acme", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTenantsEndpoint(t *testing.T) {
	r := newTestRouter(t)

	for _, sub := range []string{"acme", "globex"} {
		w := doJSON(t, r, http.MethodPost, "/api/tenants", gin.H{"uid": "uid-" + sub, "subdomain": sub})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, r, http.MethodGet, "/api/tenants?q=acme", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data       []core.TenantSummary `json:"data"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "acme", resp.Data[0].Subdomain)
	assert.Equal(t, int64(1), resp.Pagination.Total)
}

func TestSyncEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/tenants/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result core.SyncResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Throttled)
	assert.Equal(t, 0, result.Imported)

	// Immediately repeated sweeps are throttled by the cooldown.
	w = doJSON(t, r, http.MethodPost, "/api/tenants/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Throttled)
}
