package nginx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
)

// Manager maintains one vhost config file per tenant subdomain and asks the
// nginx reloader sidecar to pick changes up. It implements core.VhostManager.
type Manager struct {
	VhostDir    string
	ReloaderURL string
	BaseDomain  string
	Upstream    string

	client *resty.Client
}

func NewManager(vhostDir, reloaderURL, baseDomain, upstream string) *Manager {
	return &Manager{
		VhostDir:    vhostDir,
		ReloaderURL: reloaderURL,
		BaseDomain:  baseDomain,
		Upstream:    upstream,
		client:      resty.New(),
	}
}

const vhostTemplate = `server {
    listen 80;
    server_name {{subdomain}}.{{base}};

    location / {
        proxy_pass http://{{upstream}};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
    }
}
`

func (m *Manager) vhostPath(subdomain string) string {
	return filepath.Join(m.VhostDir, "vhost."+subdomain+".conf")
}

// CreateRouting writes the vhost entry and reloads nginx. A failed reload
// removes the file again so a broken entry never lingers in the proxy dir.
func (m *Manager) CreateRouting(ctx context.Context, subdomain string) error {
	content := strings.NewReplacer(
		"{{subdomain}}", subdomain,
		"{{base}}", m.BaseDomain,
		"{{upstream}}", m.Upstream,
	).Replace(vhostTemplate)

	path := m.vhostPath(subdomain)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write vhost for %s: %w", subdomain, err)
	}

	if err := m.Reload(ctx); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// RemoveRouting deletes the vhost entry. A missing file is not an error.
func (m *Manager) RemoveRouting(ctx context.Context, subdomain string, triggerReload bool) error {
	if err := os.Remove(m.vhostPath(subdomain)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove vhost for %s: %w", subdomain, err)
	}
	if triggerReload {
		return m.Reload(ctx)
	}
	return nil
}

// Reload posts to the reloader sidecar. An empty ReloaderURL disables the
// call (local development without a proxy in front).
func (m *Manager) Reload(ctx context.Context) error {
	if m.ReloaderURL == "" {
		return nil
	}

	resp, err := m.client.R().SetContext(ctx).Post(m.ReloaderURL)
	if err != nil {
		return fmt.Errorf("failed to reach nginx reloader: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("nginx reload failed: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
