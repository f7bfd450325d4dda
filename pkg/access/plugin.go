package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentdf/kas/pkg/tdf3"
)

// PluginContext is the shared request context handed to every plugin in a
// chain. Plugins may amend Policy, Claims, or KeyAccess; they never see
// key material.
type PluginContext struct {
	Policy    *tdf3.Policy
	Claims    *Claims
	KeyAccess *tdf3.KeyAccess

	// Metadata is the decrypted encryptedMetadata, when present. A rewrap
	// plugin may replace it; the replacement is re-encrypted into the
	// response.
	Metadata []byte

	// ReplacementKey, when set by a rewrap plugin, is returned to the
	// client as the entityWrappedKey verbatim. The plugin has taken over
	// the wrap; no further plugins run.
	ReplacementKey string
}

// A RewrapPlugin participates in the rewrap pipeline, returning the
// (possibly amended) context.
type RewrapPlugin interface {
	OnRewrap(ctx context.Context, pc *PluginContext) (*PluginContext, error)
}

// An UpsertPlugin records a policy write-through and reports a status
// object for the response; it must not mutate the context.
type UpsertPlugin interface {
	OnUpsert(ctx context.Context, pc *PluginContext) (interface{}, error)
}

// NewRewrapRunner validates plugin kinds at construction; a plugin of the
// wrong kind is fatal, not a request-time surprise.
func NewRewrapRunner(plugins ...interface{}) (*RewrapRunner, error) {
	runner := &RewrapRunner{}
	for i, p := range plugins {
		rp, ok := p.(RewrapPlugin)
		if !ok {
			return nil, errors.Join(ErrPluginIsBad,
				fmt.Errorf("plugin %d (%T) is not a rewrap plugin", i, p))
		}
		runner.plugins = append(runner.plugins, rp)
	}
	return runner, nil
}

// RewrapRunner invokes rewrap plugins in registration order, feeding each
// the previous plugin's output. The first error short-circuits the chain.
type RewrapRunner struct {
	plugins []RewrapPlugin
}

func (r *RewrapRunner) Update(ctx context.Context, pc *PluginContext) (*PluginContext, error) {
	for _, p := range r.plugins {
		next, err := p.OnRewrap(ctx, pc)
		if err != nil {
			return nil, classifyPluginErr(ctx, err)
		}
		pc = next
		if pc.ReplacementKey != "" {
			break
		}
	}
	return pc, nil
}

func NewUpsertRunner(plugins ...interface{}) (*UpsertRunner, error) {
	runner := &UpsertRunner{}
	for i, p := range plugins {
		up, ok := p.(UpsertPlugin)
		if !ok {
			return nil, errors.Join(ErrPluginIsBad,
				fmt.Errorf("plugin %d (%T) is not an upsert plugin", i, p))
		}
		runner.plugins = append(runner.plugins, up)
	}
	return runner, nil
}

// UpsertRunner invokes upsert plugins in registration order and collects
// their status reports. The first error short-circuits the chain.
type UpsertRunner struct {
	plugins []UpsertPlugin
}

func (r *UpsertRunner) Upsert(ctx context.Context, pc *PluginContext) ([]interface{}, error) {
	results := make([]interface{}, 0, len(r.plugins))
	for _, p := range r.plugins {
		result, err := p.OnUpsert(ctx, pc)
		if err != nil {
			return nil, classifyPluginErr(ctx, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// classifyPluginErr keeps a plugin's own taxonomy when it used one and
// defaults the rest to PluginFailed. Deadline expiry wins over both.
func classifyPluginErr(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrRequestTimeout, err)
	}
	switch {
	case errors.Is(err, ErrPluginBackend),
		errors.Is(err, ErrInvalidAttribute),
		errors.Is(err, ErrRequestTimeout),
		errors.Is(err, ErrForbidden):
		return err
	}
	return errors.Join(ErrPluginFailed, err)
}
