package nginx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRoutingWritesVhost(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, "", "example.com", "app:8080")

	require.NoError(t, m.CreateRouting(context.Background(), "acme"))

	raw, err := os.ReadFile(filepath.Join(dir, "vhost.acme.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "server_name acme.example.com;")
	assert.Contains(t, string(raw), "proxy_pass http://app:8080;")
}

func TestCreateRoutingTriggersReload(t *testing.T) {
	reloads := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reloads++
	}))
	defer srv.Close()

	m := NewManager(t.TempDir(), srv.URL, "example.com", "app:8080")
	require.NoError(t, m.CreateRouting(context.Background(), "acme"))
	assert.Equal(t, 1, reloads)
}

func TestCreateRoutingRemovesFileOnReloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := NewManager(dir, srv.URL, "example.com", "app:8080")

	err := m.CreateRouting(context.Background(), "acme")
	require.Error(t, err)

	// The broken entry must not linger in the proxy dir.
	_, statErr := os.Stat(filepath.Join(dir, "vhost.acme.conf"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRemoveRouting(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, "", "example.com", "app:8080")

	require.NoError(t, m.CreateRouting(context.Background(), "acme"))
	require.NoError(t, m.RemoveRouting(context.Background(), "acme", false))

	_, statErr := os.Stat(filepath.Join(dir, "vhost.acme.conf"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRemoveRoutingMissingFile(t *testing.T) {
	m := NewManager(t.TempDir(), "", "example.com", "app:8080")
	assert.NoError(t, m.RemoveRouting(context.Background(), "ghost", false))
}

func TestRemoveRoutingTriggersReload(t *testing.T) {
	reloads := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reloads++
	}))
	defer srv.Close()

	m := NewManager(t.TempDir(), srv.URL, "example.com", "app:8080")
	require.NoError(t, m.RemoveRouting(context.Background(), "ghost", true))
	assert.Equal(t, 1, reloads)
}
