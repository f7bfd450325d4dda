package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/square/go-jose.v2/jwt"

	kascrypto "github.com/opentdf/kas/internal/crypto"
	"github.com/opentdf/kas/pkg/tdf3"
)

// maxRequestBytes bounds a rewrap or upsert body. Headers and wrapped
// keys are small; anything near this is abuse.
const maxRequestBytes = 1 << 20

// RewrapRequest is the HTTP request body: the request proper rides inside
// a client-signed JWT envelope.
type RewrapRequest struct {
	SignedRequestToken string `json:"signedRequestToken"`
}

// RequestBody is the envelope payload shared by rewrap and upsert.
type RequestBody struct {
	KeyAccess       tdf3.KeyAccess `json:"keyAccess"`
	Policy          string         `json:"policy"`
	Algorithm       string         `json:"algorithm,omitempty"`
	ClientPublicKey string         `json:"clientPublicKey,omitempty"`
	SchemaVersion   string         `json:"schemaVersion,omitempty"`
}

type RewrapResponse struct {
	EntityWrappedKey string      `json:"entityWrappedKey"`
	SessionPublicKey string      `json:"sessionPublicKey,omitempty"`
	Metadata         interface{} `json:"metadata,omitempty"`
	SchemaVersion    string      `json:"schemaVersion,omitempty"`
}

type customClaims struct {
	RequestBody string `json:"requestBody,omitempty"`
}

// RewrapHandler decrypts and re-encrypts the symmetric data key:
// authenticate, parse, verify the policy binding, adjudicate, run the
// plugin chain, rewrap to the client key.
func (p *Provider) RewrapHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), p.deadline())
	defer cancel()

	logger := p.Logger.With("request_id", uuid.NewString())
	response, err := p.rewrap(ctx, logger, r)
	if err != nil {
		writeError(w, logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (p *Provider) rewrap(ctx context.Context, logger *zap.SugaredLogger, r *http.Request) (*RewrapResponse, error) {
	claims, err := p.authenticate(r)
	if err != nil {
		return nil, err
	}
	requestBody, err := p.parseRequestBody(r, claims)
	if err != nil {
		return nil, err
	}
	if len(requestBody.KeyAccess.Header) > 0 || strings.HasPrefix(requestBody.Algorithm, "ec:") {
		// Clients that predate the versioned header expect the rewrapped
		// key IV in the legacy zero-prefixed form.
		legacyIV := r.Header.Get("virtru-ntdf-version") == ""
		return p.rewrapNano(ctx, logger, claims, requestBody, legacyIV)
	}
	return p.rewrapTDF3(ctx, logger, claims, requestBody)
}

func (p *Provider) rewrapTDF3(ctx context.Context, logger *zap.SugaredLogger, claims *Claims, requestBody *RequestBody) (*RewrapResponse, error) {
	if err := requestBody.KeyAccess.Validate(); err != nil {
		return nil, errors.Join(ErrBadRequest, err)
	}
	policy, err := tdf3.ParsePolicy(requestBody.Policy)
	if err != nil {
		return nil, errors.Join(ErrBadRequest, err)
	}

	method, err := kascrypto.ParseMethod(requestBody.Algorithm)
	if err != nil {
		return nil, errors.Join(ErrBadRequest, err)
	}
	kasPrivate, err := p.Keys.PrivateKey(requestBody.KeyAccess.KID)
	if err != nil {
		return nil, err
	}
	wrappedKey, err := UnwrapKey(requestBody.KeyAccess.WrappedKey, kasPrivate, method)
	if err != nil {
		return nil, err
	}
	defer wrappedKey.Destroy()

	if requestBody.KeyAccess.PolicyBinding == nil {
		return nil, errors.Join(ErrPolicyBinding, errors.New("keyAccess has no policyBinding"))
	}
	binding := requestBody.KeyAccess.PolicyBinding
	if err := wrappedKey.VerifyBinding(policy.RawCanonical, binding.Hash, binding.Alg); err != nil {
		return nil, err
	}

	policies, err := p.Registry.GetAll(ctx, policy.Namespaces())
	if err != nil {
		return nil, err
	}
	decision := Adjudicate(policy, claims, policies)
	if !decision.Allow {
		logger.Infow("access denied",
			"subject", claims.Subject,
			"policy", policy.UUID,
			"reasons", decision.Reasons)
		return nil, errors.Join(ErrForbidden, errors.New("access denied"))
	}

	pluginCtx := &PluginContext{Policy: policy, Claims: claims, KeyAccess: &requestBody.KeyAccess}
	if requestBody.KeyAccess.EncryptedMetadata != "" {
		metadata, err := wrappedKey.DecryptMetadata(requestBody.KeyAccess.EncryptedMetadata, "")
		if err != nil {
			return nil, err
		}
		pluginCtx.Metadata = metadata
	}
	if p.RewrapPlugins != nil {
		if pluginCtx, err = p.RewrapPlugins.Update(ctx, pluginCtx); err != nil {
			return nil, err
		}
	}

	entityWrappedKey := pluginCtx.ReplacementKey
	if entityWrappedKey == "" {
		clientKey := claims.ClientSigningKey
		if requestBody.ClientPublicKey != "" {
			if clientKey, err = kascrypto.ParsePublicKey([]byte(requestBody.ClientPublicKey)); err != nil {
				return nil, errors.Join(ErrBadRequest, err)
			}
		}
		if entityWrappedKey, err = wrappedKey.Rewrap(clientKey, method); err != nil {
			return nil, err
		}
	}

	response := &RewrapResponse{
		EntityWrappedKey: entityWrappedKey,
		SchemaVersion:    schemaVersion,
	}
	if len(pluginCtx.Metadata) > 0 {
		var metadata interface{}
		if err := json.Unmarshal(pluginCtx.Metadata, &metadata); err != nil {
			return nil, errors.Join(ErrCrypto, errors.New("metadata is not valid JSON"))
		}
		response.Metadata = metadata
	}
	return response, nil
}

// authenticate verifies the bearer identity token and extracts claims.
func (p *Provider) authenticate(r *http.Request) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, errors.Join(ErrUnauthorized, errors.New("missing bearer token"))
	}
	return ParseClaims([]byte(strings.TrimPrefix(authHeader, "Bearer ")), p.TokenOptions...)
}

// parseRequestBody unwraps the signedRequestToken envelope and verifies
// its signature against the client_public_signing_key from the bearer
// token. That proves the requester holds the key the DEK will be
// rewrapped to. Older clients send the schema fields at the top level
// with no envelope; those are accepted on the strength of the bearer
// token alone and must name a clientPublicKey explicitly.
func (p *Provider) parseRequestBody(r *http.Request, claims *Claims) (*RequestBody, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return nil, errors.Join(ErrBadRequest, err)
	}
	var rewrapRequest RewrapRequest
	if err := json.Unmarshal(raw, &rewrapRequest); err != nil {
		return nil, errors.Join(ErrBadRequest, err)
	}
	if rewrapRequest.SignedRequestToken == "" {
		var requestBody RequestBody
		if err := json.Unmarshal(raw, &requestBody); err != nil {
			if errors.Is(err, tdf3.ErrAttributeURI) {
				return nil, errors.Join(ErrInvalidAttribute, err)
			}
			return nil, errors.Join(ErrBadRequest, err)
		}
		if requestBody.KeyAccess.WrappedKey == "" && len(requestBody.KeyAccess.Header) == 0 {
			return nil, errors.Join(ErrBadRequest, errors.New("request has no signedRequestToken"))
		}
		return &requestBody, nil
	}
	requestToken, err := jwt.ParseSigned(rewrapRequest.SignedRequestToken)
	if err != nil {
		return nil, errors.Join(ErrBadRequest, err)
	}
	var envelope customClaims
	if err := requestToken.Claims(claims.ClientSigningKey, &envelope); err != nil {
		return nil, errors.Join(ErrUnauthorized,
			fmt.Errorf("signedRequestToken signature: %w", err))
	}
	if envelope.RequestBody == "" {
		return nil, errors.Join(ErrBadRequest, errors.New("signedRequestToken has no requestBody"))
	}
	var requestBody RequestBody
	if err := json.Unmarshal([]byte(envelope.RequestBody), &requestBody); err != nil {
		if errors.Is(err, tdf3.ErrAttributeURI) {
			return nil, errors.Join(ErrInvalidAttribute, err)
		}
		return nil, errors.Join(ErrBadRequest, err)
	}
	return &requestBody, nil
}
