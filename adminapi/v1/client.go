package v1

type AdminClient struct {
	Transport *Transport
	Tenants   *TenantEndpoint
}

// NewAdminClient initializes the API client
func NewAdminClient(baseURL string, token string) *AdminClient {
	t := NewTransport(baseURL, token)
	return &AdminClient{
		Transport: t,
		Tenants:   &TenantEndpoint{transport: t},
	}
}
