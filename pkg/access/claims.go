package access

import (
	"crypto"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwt"

	kascrypto "github.com/opentdf/kas/internal/crypto"
	"github.com/opentdf/kas/pkg/tdf3"
)

// Claims is the verified identity of a requester: subject, the public key
// rewrapped keys are encrypted to, and the entity attributes the
// adjudicator evaluates. Immutable after construction.
type Claims struct {
	Subject          string
	ClientSigningKey crypto.PublicKey
	Entitlements     []Entitlement
}

// Entitlement is one entity's attribute set from the tdf_claims block.
type Entitlement struct {
	EntityID   string           `json:"entity_identifier"`
	Attributes []tdf3.Attribute `json:"entity_attributes"`
}

type tdfClaims struct {
	ClientPublicSigningKey string        `json:"client_public_signing_key"`
	Entitlements           []Entitlement `json:"entitlements"`
	SchemaVersion          string        `json:"tdf_spec_version,omitempty"`
}

// ParseClaims validates a bearer token and extracts the tdf_claims block.
// Callers supply jwt parse options for signature verification; passing
// jwt.WithVerify(false) accepts a pre-verified payload, which must be a
// startup decision, never per-request.
func ParseClaims(token []byte, opts ...jwt.ParseOption) (*Claims, error) {
	tok, err := jwt.Parse(token, opts...)
	if err != nil {
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return claimsFromToken(tok)
}

func claimsFromToken(tok jwt.Token) (*Claims, error) {
	raw, ok := tok.Get("tdf_claims")
	if !ok {
		return nil, errors.Join(ErrBadRequest, errors.New("token has no tdf_claims"))
	}
	// jwx exposes private claims as decoded interface values; round-trip
	// through JSON to get the typed form.
	blob, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Join(ErrBadRequest, err)
	}
	var tc tdfClaims
	if err := json.Unmarshal(blob, &tc); err != nil {
		if errors.Is(err, tdf3.ErrAttributeURI) {
			return nil, errors.Join(ErrInvalidAttribute, err)
		}
		return nil, errors.Join(ErrBadRequest, err)
	}
	if tc.ClientPublicSigningKey == "" {
		return nil, errors.Join(ErrBadRequest, errors.New("tdf_claims has no client_public_signing_key"))
	}
	signingKey, err := kascrypto.ParsePublicKey([]byte(tc.ClientPublicSigningKey))
	if err != nil {
		return nil, errors.Join(ErrBadRequest, fmt.Errorf("client_public_signing_key: %w", err))
	}
	return &Claims{
		Subject:          tok.Subject(),
		ClientSigningKey: signingKey,
		Entitlements:     tc.Entitlements,
	}, nil
}

// EntityValues collects the attribute values all entitled entities hold in
// the given namespace.
func (c *Claims) EntityValues(namespace string) []string {
	var values []string
	for _, ent := range c.Entitlements {
		for _, attr := range ent.Attributes {
			if attr.Namespace() == namespace {
				values = append(values, attr.Value)
			}
		}
	}
	return values
}
