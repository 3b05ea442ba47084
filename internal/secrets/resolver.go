package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	pkgsecrets "github.com/Checker-Finance/expense-metrics/pkg/secrets"
)

// DBCredentials holds connection material resolved at startup.
type DBCredentials struct {
	DatabaseURL string
	RedisPass   string
}

// Resolver fetches the service's datastore credentials from a secrets
// provider, caching the result so rotations can be picked up by Bust+Resolve
// without re-hitting AWS on every call.
type Resolver struct {
	logger     *zap.Logger
	provider   pkgsecrets.Provider
	cache      *pkgsecrets.Cache[DBCredentials]
	secretName string
}

// NewResolver constructs a credentials resolver for the named secret.
func NewResolver(logger *zap.Logger, provider pkgsecrets.Provider, cache *pkgsecrets.Cache[DBCredentials], secretName string) *Resolver {
	return &Resolver{
		logger:     logger,
		provider:   provider,
		cache:      cache,
		secretName: secretName,
	}
}

// Resolve returns the datastore credentials, from cache when possible.
// Secret JSON format: {"database_url": "postgres://...", "redis_pass": "..."}
func (r *Resolver) Resolve(ctx context.Context) (DBCredentials, error) {
	if creds, ok := r.cache.Get(r.secretName); ok {
		return creds, nil
	}

	raw, err := r.provider.GetSecret(ctx, r.secretName)
	if err != nil {
		return DBCredentials{}, fmt.Errorf("resolve db credentials: %w", err)
	}

	creds := DBCredentials{
		DatabaseURL: raw["database_url"],
		RedisPass:   raw["redis_pass"],
	}
	if creds.DatabaseURL == "" {
		return DBCredentials{}, fmt.Errorf("secret [%s] missing required field 'database_url'", r.secretName)
	}

	r.cache.Put(r.secretName, creds)
	r.logger.Info("secrets.resolved", zap.String("secret", r.secretName))
	return creds, nil
}

// Bust drops the cached credentials (e.g. after a rotation signal).
func (r *Resolver) Bust() {
	r.cache.Bust(r.secretName)
}
