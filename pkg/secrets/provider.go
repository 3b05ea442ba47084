package secrets

import "context"

// Provider resolves named secrets into key-value maps. The AWS implementation
// is the production one; tests supply fakes.
type Provider interface {
	// GetSecret fetches the secret stored under name and decodes it into a
	// flat key-value map.
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}
