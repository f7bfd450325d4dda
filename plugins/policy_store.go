// Package plugins holds the stock rewrap and upsert plugins wired into the
// service at startup.
package plugins

import (
	"context"
	"errors"

	"github.com/opentdf/kas/internal/db"
	"github.com/opentdf/kas/pkg/access"
)

// PolicyStore is an upsert plugin that writes policies through to
// postgres, keyed by policy UUID. Re-upserting the same UUID refreshes the
// stored canonical form.
type PolicyStore struct {
	DB *db.Client
}

var _ access.UpsertPlugin = (*PolicyStore)(nil)
var _ access.HealthProber = (*PolicyStore)(nil)

type policyStoreResult struct {
	Plugin string `json:"plugin"`
	UUID   string `json:"uuid"`
	Status string `json:"status"`
}

func (s *PolicyStore) OnUpsert(ctx context.Context, pc *access.PluginContext) (interface{}, error) {
	if pc.Policy == nil {
		return nil, errors.Join(access.ErrPluginFailed, errors.New("upsert without policy"))
	}
	_, err := s.DB.Exec(ctx,
		`INSERT INTO policy (uuid, raw, subject, kao_url) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (uuid) DO UPDATE
		 SET raw = $2, subject = $3, kao_url = $4, updated_at = now()`,
		pc.Policy.UUID, pc.Policy.RawCanonical, pc.Claims.Subject, pc.KeyAccess.URL)
	if err != nil {
		return nil, errors.Join(access.ErrPluginBackend, err)
	}
	return policyStoreResult{
		Plugin: "policy_store",
		UUID:   pc.Policy.UUID,
		Status: "stored",
	}, nil
}

func (s *PolicyStore) ProbeHealth(ctx context.Context) error {
	return s.DB.Ping(ctx)
}
