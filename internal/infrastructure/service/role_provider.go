// Package service adapts external collaborators to domain interfaces: the
// identity service behind quota.RoleProvider and the notification channel
// behind notification.Sender.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/quota"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/circuitbreaker"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATIC ROLE PROVIDER
// ══════════════════════════════════════════════════════════════════════════════

// StaticRoleProvider resolves roles from a fixed map, falling back to a
// default role. Used in development and tests, and as the inner fallback
// of the HTTP provider.
type StaticRoleProvider struct {
	roles       map[shared.UserID]quota.Role
	defaultRole quota.Role
}

// NewStaticRoleProvider creates a provider with the given overrides.
func NewStaticRoleProvider(overrides map[string]string, defaultRole quota.Role) (*StaticRoleProvider, error) {
	if !defaultRole.IsValid() {
		return nil, fmt.Errorf("role provider: invalid default role %q", defaultRole)
	}

	roles := make(map[shared.UserID]quota.Role, len(overrides))
	for id, raw := range overrides {
		role, err := quota.ParseRole(raw)
		if err != nil {
			return nil, fmt.Errorf("role provider: user %s: %w", id, err)
		}
		roles[shared.UserID(id)] = role
	}

	return &StaticRoleProvider{roles: roles, defaultRole: defaultRole}, nil
}

// RoleOf implements quota.RoleProvider.
func (p *StaticRoleProvider) RoleOf(_ context.Context, userID shared.UserID) (quota.Role, error) {
	if role, ok := p.roles[userID]; ok {
		return role, nil
	}
	return p.defaultRole, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP ROLE PROVIDER
// Asks the identity service for the user's role, behind a circuit breaker
// and a short-lived local cache. On outage the last cached role is served;
// with nothing cached the request degrades to the fallback role, keeping
// quota decisions conservative rather than failing the whole request.
// ══════════════════════════════════════════════════════════════════════════════

// HTTPRoleProviderConfig configures HTTPRoleProvider.
type HTTPRoleProviderConfig struct {
	// BaseURL of the identity service, without trailing slash.
	BaseURL string

	// ServiceKey is sent as the X-Service-Key header.
	ServiceKey string

	// Timeout per request.
	Timeout time.Duration

	// CacheTTL is how long a resolved role is served locally.
	CacheTTL time.Duration

	// FallbackRole is used when the service is down and nothing is cached.
	FallbackRole quota.Role

	Logger *logger.Logger
}

type cachedRole struct {
	role      quota.Role
	expiresAt time.Time
}

// HTTPRoleProvider implements quota.RoleProvider over the identity service.
type HTTPRoleProvider struct {
	cfg     HTTPRoleProviderConfig
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger

	mu    sync.RWMutex
	cache map[shared.UserID]cachedRole
}

// NewHTTPRoleProvider creates an HTTPRoleProvider.
func NewHTTPRoleProvider(cfg HTTPRoleProviderConfig) (*HTTPRoleProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("role provider: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if !cfg.FallbackRole.IsValid() {
		cfg.FallbackRole = quota.RoleFreeMember
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	return &HTTPRoleProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "identity",
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		}),
		log:   cfg.Logger.With(logger.Component("role_provider")),
		cache: make(map[shared.UserID]cachedRole),
	}, nil
}

type roleResponse struct {
	Role string `json:"role"`
}

// RoleOf implements quota.RoleProvider.
func (p *HTTPRoleProvider) RoleOf(ctx context.Context, userID shared.UserID) (quota.Role, error) {
	if role, ok := p.cachedFresh(userID); ok {
		return role, nil
	}

	var role quota.Role
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		fetched, err := p.fetch(ctx, userID)
		if err != nil {
			return err
		}
		role = fetched
		return nil
	})
	if err != nil {
		// Stale cache beats a guess; a guess beats an error.
		if stale, ok := p.cachedAny(userID); ok {
			p.log.Warn("identity unavailable, serving stale role",
				logger.UserID(userID.String()), logger.Err(err))
			return stale, nil
		}
		p.log.Warn("identity unavailable, serving fallback role",
			logger.UserID(userID.String()),
			logger.Role(string(p.cfg.FallbackRole)),
			logger.Err(err))
		return p.cfg.FallbackRole, nil
	}

	p.store(userID, role)
	return role, nil
}

func (p *HTTPRoleProvider) fetch(ctx context.Context, userID shared.UserID) (quota.Role, error) {
	url := fmt.Sprintf("%s/internal/users/%s/role", p.cfg.BaseURL, userID.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.cfg.ServiceKey != "" {
		req.Header.Set("X-Service-Key", p.cfg.ServiceKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Unknown users get the weakest role.
		return quota.RoleGuest, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("identity returned status %d", resp.StatusCode)
	}

	var body roleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode role response: %w", err)
	}

	role, err := quota.ParseRole(body.Role)
	if err != nil {
		return "", fmt.Errorf("identity returned unknown role %q", body.Role)
	}
	return role, nil
}

func (p *HTTPRoleProvider) cachedFresh(userID shared.UserID) (quota.Role, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.cache[userID]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.role, true
}

func (p *HTTPRoleProvider) cachedAny(userID shared.UserID) (quota.Role, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.cache[userID]
	return entry.role, ok
}

func (p *HTTPRoleProvider) store(userID shared.UserID, role quota.Role) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cache[userID] = cachedRole{
		role:      role,
		expiresAt: time.Now().Add(p.cfg.CacheTTL),
	}
}
