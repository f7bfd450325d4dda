package access

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *rewrapFixture) postUpsert(t *testing.T, bearer string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v2/upsert", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.provider.UpsertHandler(w, req)
	return w
}

func TestUpsertCollectsPluginResults(t *testing.T) {
	f := newRewrapFixture(t)
	var calls []string
	runner, err := NewUpsertRunner(
		&recordingPlugin{name: "store", log: &calls},
		&recordingPlugin{name: "audit", log: &calls},
	)
	require.NoError(t, err)
	f.provider.UpsertPlugins = runner

	policyB64 := f.canonicalPolicy(t, nil)
	w := f.postUpsert(t, f.bearerToken(t), f.signedRequest(t, f.requestBody(t, policyB64)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var results []map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "store", results[0]["plugin"])
	assert.Equal(t, "audit", results[1]["plugin"])
	assert.Equal(t, []string{"store", "audit"}, calls)
}

func TestUpsertPluginBackendFailure(t *testing.T) {
	f := newRewrapFixture(t)
	var calls []string
	runner, err := NewUpsertRunner(
		&recordingPlugin{name: "store", log: &calls,
			err: errors.Join(ErrPluginBackend, errors.New("database down"))},
		&recordingPlugin{name: "audit", log: &calls},
	)
	require.NoError(t, err)
	f.provider.UpsertPlugins = runner

	policyB64 := f.canonicalPolicy(t, nil)
	w := f.postUpsert(t, f.bearerToken(t), f.signedRequest(t, f.requestBody(t, policyB64)))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "PluginBackend", errorCode(t, w))
	assert.Equal(t, []string{"store"}, calls)
}

func TestUpsertNoPlugins(t *testing.T) {
	f := newRewrapFixture(t)
	policyB64 := f.canonicalPolicy(t, nil)
	w := f.postUpsert(t, f.bearerToken(t), f.signedRequest(t, f.requestBody(t, policyB64)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestUpsertRequiresAuth(t *testing.T) {
	f := newRewrapFixture(t)
	policyB64 := f.canonicalPolicy(t, nil)
	payload := f.signedRequest(t, f.requestBody(t, policyB64))

	req := httptest.NewRequest(http.MethodPost, "/v2/upsert", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	f.provider.UpsertHandler(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
