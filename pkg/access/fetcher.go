package access

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	attrs "github.com/virtru/access-pdp/attributes"
)

// AuthorityFetcher resolves attribute definitions from the external
// attribute authority over HTTP. The http.Client carries transport
// concerns (mTLS, OAuth2 client credentials, timeouts) configured at
// startup.
type AuthorityFetcher struct {
	BaseURL string
	Client  *http.Client
}

func NewAuthorityFetcher(baseURL string, client *http.Client) *AuthorityFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &AuthorityFetcher{BaseURL: baseURL, Client: client}
}

// FetchAttributes queries one definition list per authority namespace.
func (f *AuthorityFetcher) FetchAttributes(ctx context.Context, namespaces []string) ([]attrs.AttributeDefinition, error) {
	var definitions []attrs.AttributeDefinition
	for _, ns := range namespaces {
		defs, err := f.fetchNamespace(ctx, ns)
		if err != nil {
			return nil, err
		}
		definitions = append(definitions, defs...)
	}
	return definitions, nil
}

func (f *AuthorityFetcher) fetchNamespace(ctx context.Context, namespace string) ([]attrs.AttributeDefinition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/v1/attrName", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	q := req.URL.Query()
	q.Add("authority", namespace)
	req.URL.RawQuery = q.Encode()

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attribute authority returned %d %s",
			resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	var definitions []attrs.AttributeDefinition
	if err := json.NewDecoder(resp.Body).Decode(&definitions); err != nil {
		return nil, err
	}
	return definitions, nil
}
