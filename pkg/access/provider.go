package access

import (
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"
)

const schemaVersion = "1.1.0"

// DefaultRequestDeadline bounds one rewrap or upsert request end to end.
const DefaultRequestDeadline = 30 * time.Second

// Provider is the KAS service: key store, attribute registry, and plugin
// chains, threaded explicitly through the request handlers. Everything
// here is read-only after startup except the registry's cache, which does
// its own locking.
type Provider struct {
	Logger        *zap.SugaredLogger
	Keys          *KeyStore
	Registry      *Registry
	RewrapPlugins *RewrapRunner
	UpsertPlugins *UpsertRunner

	// TokenOptions verify the signedRequestToken envelope and the identity
	// token. jwt.WithVerify(false) here is a startup decision for
	// deployments where an administrative boundary already validated the
	// token, never a per-request one.
	TokenOptions []jwt.ParseOption

	RequestDeadline time.Duration
}

func NewProvider(logger *zap.SugaredLogger, keys *KeyStore, registry *Registry) *Provider {
	return &Provider{
		Logger:          logger,
		Keys:            keys,
		Registry:        registry,
		RequestDeadline: DefaultRequestDeadline,
	}
}

func (p *Provider) deadline() time.Duration {
	if p.RequestDeadline > 0 {
		return p.RequestDeadline
	}
	return DefaultRequestDeadline
}
