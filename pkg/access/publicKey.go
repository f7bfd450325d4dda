package access

import (
	"encoding/json"
	"net/http"
)

// PublicKeyHandler serves the KAS public key for the requested algorithm,
// as a JSON string. SDKs wrap new DEKs to this key.
//
//	GET /kas_public_key?algorithm=ec:secp256r1
//	GET /kas_public_key?algorithm=rsa:2048  (default)
func (p *Provider) PublicKeyHandler(w http.ResponseWriter, r *http.Request) {
	algorithm := r.URL.Query().Get("algorithm")
	kid, err := p.Keys.DefaultKID(algorithm)
	if err != nil {
		writeError(w, p.Logger, err)
		return
	}
	if v2kid := r.URL.Query().Get("kid"); v2kid != "" {
		kid = v2kid
	}
	pemStr, err := p.Keys.PublicKeyPEM(kid)
	if err != nil {
		writeError(w, p.Logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pemStr)
}
