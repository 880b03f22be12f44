package v1

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bastelix/sommerfest-quiz-sub007/core"
)

type TenantEndpoint struct {
	transport *Transport
}

// Sync triggers the server-side reconciliation sweep.
func (this *TenantEndpoint) Sync() (*core.SyncResult, error) {
	resp, err := this.transport.Post("/api/tenants/sync", nil, nil)
	if err != nil {
		return nil, err
	}

	var result core.SyncResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

type listEnvelope struct {
	Data []core.TenantSummary `json:"data"`
}

func (this *TenantEndpoint) List(query string) ([]core.TenantSummary, error) {
	params := map[string]string{}
	if query != "" {
		params["q"] = query
	}

	resp, err := this.transport.Get("/api/tenants", params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GET /api/tenants failed with status code %d: %s", resp.StatusCode, string(b))
	}

	var result listEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return result.Data, nil
}

// Exists reports whether the subdomain is already taken.
func (this *TenantEndpoint) Exists(subdomain string) (bool, error) {
	resp, err := this.transport.Get(fmt.Sprintf("/api/tenants/%s/exists", subdomain), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		b, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("exists check failed with status code %d: %s", resp.StatusCode, string(b))
	}
}
