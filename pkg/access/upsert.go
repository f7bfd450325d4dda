package access

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/opentdf/kas/pkg/tdf3"
)

// UpsertHandler records a policy write-through: authenticate, parse, then
// hand off to the upsert plugin chain. No key material is read or
// produced here.
func (p *Provider) UpsertHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), p.deadline())
	defer cancel()

	logger := p.Logger.With("request_id", uuid.NewString())
	results, err := p.upsert(ctx, r)
	if err != nil {
		writeError(w, logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(results)
}

func (p *Provider) upsert(ctx context.Context, r *http.Request) ([]interface{}, error) {
	claims, err := p.authenticate(r)
	if err != nil {
		return nil, err
	}
	requestBody, err := p.parseRequestBody(r, claims)
	if err != nil {
		return nil, err
	}
	policy, err := tdf3.ParsePolicy(requestBody.Policy)
	if err != nil {
		return nil, errors.Join(ErrBadRequest, err)
	}

	pluginCtx := &PluginContext{Policy: policy, Claims: claims, KeyAccess: &requestBody.KeyAccess}
	if p.UpsertPlugins == nil {
		return []interface{}{}, nil
	}
	results, err := p.UpsertPlugins.Upsert(ctx, pluginCtx)
	if err != nil {
		return nil, err
	}
	return results, nil
}
