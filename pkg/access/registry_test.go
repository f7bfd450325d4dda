package access

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	attrs "github.com/virtru/access-pdp/attributes"
	"go.uber.org/zap/zaptest"
)

type stubFetcher struct {
	calls int32
	defs  map[string][]attrs.AttributeDefinition
	delay time.Duration
	err   error
}

func (f *stubFetcher) FetchAttributes(ctx context.Context, namespaces []string) ([]attrs.AttributeDefinition, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []attrs.AttributeDefinition
	for _, ns := range namespaces {
		out = append(out, f.defs[ns]...)
	}
	return out, nil
}

func classificationDef() attrs.AttributeDefinition {
	return attrs.AttributeDefinition{
		Authority: "https://a.example",
		Name:      "Classification",
		Rule:      "hierarchy",
		Order:     []string{"TS", "S", "C", "U"},
	}
}

func newTestRegistry(t *testing.T, fetcher AttributeFetcher) *Registry {
	t.Helper()
	return NewRegistry(fetcher, time.Minute, zaptest.NewLogger(t).Sugar())
}

func TestRegistryGet(t *testing.T) {
	fetcher := &stubFetcher{defs: map[string][]attrs.AttributeDefinition{
		classificationNS: {classificationDef()},
	}}
	registry := newTestRegistry(t, fetcher)

	policy, err := registry.Get(context.Background(), classificationNS)
	require.NoError(t, err)
	assert.Equal(t, RuleHierarchy, policy.Rule)
	assert.Equal(t, []string{"TS", "S", "C", "U"}, policy.Order)

	// Second read is served from cache.
	_, err = registry.Get(context.Background(), classificationNS)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fetcher.calls))
}

func TestRegistryUnknownNamespace(t *testing.T) {
	registry := newTestRegistry(t, &stubFetcher{})

	policy, err := registry.Get(context.Background(), "https://x/attr/Foo")
	require.NoError(t, err)
	assert.Equal(t, RuleUnknown, policy.Rule)
}

func TestRegistrySingleFlight(t *testing.T) {
	fetcher := &stubFetcher{
		defs: map[string][]attrs.AttributeDefinition{
			classificationNS: {classificationDef()},
		},
		delay: 50 * time.Millisecond,
	}
	registry := newTestRegistry(t, fetcher)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = registry.Get(context.Background(), classificationNS)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&fetcher.calls))
}

func TestRegistryFetchTimeout(t *testing.T) {
	fetcher := &stubFetcher{delay: time.Second}
	registry := newTestRegistry(t, fetcher)
	registry.SetFetchTimeout(20 * time.Millisecond)

	_, err := registry.Get(context.Background(), classificationNS)
	assert.ErrorIs(t, err, ErrRequestTimeout)
}

func TestRegistryBadDefinition(t *testing.T) {
	fetcher := &stubFetcher{defs: map[string][]attrs.AttributeDefinition{
		classificationNS: {{
			Authority: "https://a.example",
			Name:      "Classification",
			Rule:      "hierarchy",
		}},
	}}
	registry := newTestRegistry(t, fetcher)

	_, err := registry.Get(context.Background(), classificationNS)
	assert.ErrorIs(t, err, ErrInvalidAttribute)
}
