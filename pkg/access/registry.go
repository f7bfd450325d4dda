package access

import (
	"context"
	"errors"
	"sync"
	"time"

	attrs "github.com/virtru/access-pdp/attributes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultFetchTimeout bounds a single attribute authority round trip.
const DefaultFetchTimeout = 10 * time.Second

// An AttributeFetcher resolves attribute namespaces to their definitions,
// typically by calling the external attribute authority.
type AttributeFetcher interface {
	FetchAttributes(ctx context.Context, namespaces []string) ([]attrs.AttributeDefinition, error)
}

type cacheEntry struct {
	policy  AttributePolicy
	expires time.Time
}

// Registry maps attribute namespaces to their evaluation policies. Misses
// are fetched in batches, cached with a TTL, and coalesced so concurrent
// requests for the same fresh namespace reach the fetcher once.
type Registry struct {
	fetcher AttributeFetcher
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.SugaredLogger

	mu    sync.RWMutex
	cache map[string]cacheEntry
	sf    singleflight.Group
}

func NewRegistry(fetcher AttributeFetcher, ttl time.Duration, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		fetcher: fetcher,
		ttl:     ttl,
		timeout: DefaultFetchTimeout,
		logger:  logger,
		cache:   make(map[string]cacheEntry),
	}
}

// SetFetchTimeout overrides the per-fetch deadline.
func (r *Registry) SetFetchTimeout(d time.Duration) { r.timeout = d }

func (r *Registry) lookup(namespace string) (AttributePolicy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[namespace]
	if !ok || time.Now().After(entry.expires) {
		return AttributePolicy{}, false
	}
	return entry.policy, true
}

func (r *Registry) store(policy AttributePolicy) {
	r.mu.Lock()
	r.cache[policy.Namespace] = cacheEntry{policy: policy, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()
}

// Get resolves one namespace. Unknown namespaces return the RuleUnknown
// sentinel; fetcher failures are transient errors, never a silent deny.
func (r *Registry) Get(ctx context.Context, namespace string) (AttributePolicy, error) {
	policies, err := r.GetAll(ctx, []string{namespace})
	if err != nil {
		return AttributePolicy{}, err
	}
	return policies[namespace], nil
}

// GetAll resolves a set of namespaces, fetching all misses in one batch.
func (r *Registry) GetAll(ctx context.Context, namespaces []string) (map[string]AttributePolicy, error) {
	policies := make(map[string]AttributePolicy, len(namespaces))
	var misses []string
	for _, ns := range namespaces {
		if policy, ok := r.lookup(ns); ok {
			policies[ns] = policy
		} else {
			misses = append(misses, ns)
		}
	}
	for _, ns := range misses {
		policy, err := r.fetchOne(ctx, ns)
		if err != nil {
			return nil, err
		}
		policies[ns] = policy
	}
	return policies, nil
}

func (r *Registry) fetchOne(ctx context.Context, namespace string) (AttributePolicy, error) {
	v, err, shared := r.sf.Do(namespace, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		defs, err := r.fetcher.FetchAttributes(fetchCtx, []string{namespace})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, errors.Join(ErrRequestTimeout, err)
			}
			return nil, errors.Join(ErrPluginBackend, err)
		}
		policy := Unknown(namespace)
		for _, def := range defs {
			p, convErr := policyFromDefinition(def)
			if convErr != nil {
				return nil, convErr
			}
			if p.Namespace == namespace {
				policy = p
			}
		}
		r.store(policy)
		return policy, nil
	})
	if err != nil {
		return AttributePolicy{}, err
	}
	if shared {
		r.logger.Debugw("coalesced attribute fetch", "namespace", namespace)
	}
	return v.(AttributePolicy), nil
}
