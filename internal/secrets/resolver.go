// Package secrets resolves LLM provider API keys. Two resolvers implement
// the same interface: a Vault-backed one for production, and an
// environment-variable one for local development and tests.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"

	"github.com/marketintel/engine/internal/config"
)

// Resolver resolves a named secret (e.g. "llm/provider_A/api_key") to its
// value.
type Resolver interface {
	Resolve(ctx context.Context, key string) (string, error)
}

// EnvResolver resolves MIE_SECRET_<KEY> environment variables, upper-cased
// with '/', '-' and '.' replaced by underscores. It is the default when
// Vault is disabled.
type EnvResolver struct{}

func (EnvResolver) Resolve(_ context.Context, key string) (string, error) {
	envKey := "MIE_SECRET_" + strings.ToUpper(strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(key))
	val, ok := os.LookupEnv(envKey)
	if !ok {
		return "", fmt.Errorf("secret %q not found (expected env var %s)", key, envKey)
	}
	return val, nil
}

type cachedValue struct {
	value     string
	expiresAt time.Time
}

// VaultResolver reads secrets from a KV v2 mount, caching reads for a short
// TTL to avoid hammering Vault on every agent construction.
type VaultResolver struct {
	client   *vaultapi.Client
	mount    string
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]cachedValue
}

// NewVaultResolver builds a resolver from engine configuration. It never
// dials Vault at construction time; the first Resolve call establishes
// connectivity.
func NewVaultResolver(cfg config.VaultConfig) (*VaultResolver, error) {
	vc := vaultapi.DefaultConfig()
	if cfg.Address != "" {
		vc.Address = cfg.Address
	}
	client, err := vaultapi.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("failed to construct vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	return &VaultResolver{
		client:   client,
		mount:    cfg.Mount,
		cacheTTL: 5 * time.Minute,
		cache:    make(map[string]cachedValue),
	}, nil
}

// Resolve reads secret/data/<key>'s "value" field, in the KV v2 layout
// the teacher's Vault deployment uses.
func (r *VaultResolver) Resolve(ctx context.Context, key string) (string, error) {
	r.mu.RLock()
	if cached, ok := r.cache[key]; ok && time.Now().Before(cached.expiresAt) {
		r.mu.RUnlock()
		return cached.value, nil
	}
	r.mu.RUnlock()

	path := fmt.Sprintf("%s/data/%s", r.mount, key)
	secret, err := r.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("vault read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("vault secret %s not found", path)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("vault secret %s has unexpected shape", path)
	}
	value, ok := data["value"].(string)
	if !ok {
		return "", fmt.Errorf("vault secret %s missing string field 'value'", path)
	}

	r.mu.Lock()
	r.cache[key] = cachedValue{value: value, expiresAt: time.Now().Add(r.cacheTTL)}
	r.mu.Unlock()

	log.Debug().Str("path", path).Msg("resolved secret from vault")
	return value, nil
}

// NewResolver picks the Vault or env resolver based on configuration.
func NewResolver(cfg config.VaultConfig) (Resolver, error) {
	if !cfg.Enabled {
		return EnvResolver{}, nil
	}
	return NewVaultResolver(cfg)
}
