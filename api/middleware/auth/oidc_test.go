package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// stubIdP serves a discovery document and a JWKS for one RSA key.
func stubIdP(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	pub, err := jwk.FromRaw(key.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "idp-1"))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, jwa.RS256))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                 server.URL,
			"authorization_endpoint": server.URL + "/auth",
			"token_endpoint":         server.URL + "/token",
			"jwks_uri":               server.URL + "/jwks",
			"response_types_supported": []string{"code"},
			"subject_types_supported":  []string{"public"},
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(set)
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func signToken(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject("alice").
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)
	hdrs := jws.NewHeaders()
	require.NoError(t, hdrs.Set(jws.KeyIDKey, "idp-1"))
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key, jws.WithProtectedHeaders(hdrs)))
	require.NoError(t, err)
	return string(signed)
}

func TestDiscoverJWKSURL(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	idp := stubIdP(t, key)

	jwksURL, err := DiscoverJWKSURL(context.Background(), idp.URL)
	require.NoError(t, err)
	assert.Equal(t, idp.URL+"/jwks", jwksURL)
}

func TestOidcAuth(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rogueKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	idp := stubIdP(t, key)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	keyset, err := JWKSKeySet(ctx, idp.URL+"/jwks")
	require.NoError(t, err)

	var reached bool
	handler := OidcAuth(keyset, zaptest.NewLogger(t).Sugar())(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			reached = true
			w.WriteHeader(http.StatusNoContent)
		}))

	post := func(authorization string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v2/rewrap", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w := post("Bearer " + signToken(t, key))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, reached)

	reached = false
	assert.Equal(t, http.StatusUnauthorized, post("").Code)
	assert.Equal(t, http.StatusUnauthorized, post("Bearer "+signToken(t, rogueKey)).Code)
	assert.Equal(t, http.StatusUnauthorized, post("Bearer not-a-token").Code)
	assert.False(t, reached)
}
