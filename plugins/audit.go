package plugins

import (
	"context"

	"go.uber.org/zap"

	"github.com/opentdf/kas/pkg/access"
)

// Audit emits one structured log line per key release and per policy
// write-through. It never alters the request.
type Audit struct {
	Logger *zap.SugaredLogger
}

var _ access.RewrapPlugin = (*Audit)(nil)
var _ access.UpsertPlugin = (*Audit)(nil)

func (a *Audit) OnRewrap(_ context.Context, pc *access.PluginContext) (*access.PluginContext, error) {
	policyUUID := ""
	if pc.Policy != nil {
		policyUUID = pc.Policy.UUID
	}
	a.Logger.Infow("key release",
		"subject", pc.Claims.Subject,
		"policy", policyUUID,
		"kid", pc.KeyAccess.KID,
	)
	return pc, nil
}

func (a *Audit) OnUpsert(_ context.Context, pc *access.PluginContext) (interface{}, error) {
	policyUUID := ""
	if pc.Policy != nil {
		policyUUID = pc.Policy.UUID
	}
	a.Logger.Infow("policy upsert",
		"subject", pc.Claims.Subject,
		"policy", policyUUID,
		"url", pc.KeyAccess.URL,
	)
	return map[string]string{"plugin": "audit", "status": "logged"}, nil
}
