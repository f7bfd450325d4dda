package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPlugin struct {
	name string
	log  *[]string
	err  error
}

func (p *recordingPlugin) OnRewrap(_ context.Context, pc *PluginContext) (*PluginContext, error) {
	*p.log = append(*p.log, p.name)
	if p.err != nil {
		return nil, p.err
	}
	return pc, nil
}

func (p *recordingPlugin) OnUpsert(_ context.Context, _ *PluginContext) (interface{}, error) {
	*p.log = append(*p.log, p.name)
	if p.err != nil {
		return nil, p.err
	}
	return map[string]string{"plugin": p.name, "status": "ok"}, nil
}

type upsertOnlyPlugin struct{}

func (upsertOnlyPlugin) OnUpsert(context.Context, *PluginContext) (interface{}, error) {
	return nil, nil
}

func TestRewrapRunnerOrder(t *testing.T) {
	var calls []string
	runner, err := NewRewrapRunner(
		&recordingPlugin{name: "p1", log: &calls},
		&recordingPlugin{name: "p2", log: &calls},
		&recordingPlugin{name: "p3", log: &calls},
	)
	require.NoError(t, err)

	_, err = runner.Update(context.Background(), &PluginContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, calls)
}

func TestRewrapRunnerShortCircuit(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	runner, err := NewRewrapRunner(
		&recordingPlugin{name: "p1", log: &calls},
		&recordingPlugin{name: "p2", log: &calls, err: boom},
		&recordingPlugin{name: "p3", log: &calls},
	)
	require.NoError(t, err)

	_, err = runner.Update(context.Background(), &PluginContext{})
	assert.ErrorIs(t, err, ErrPluginFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"p1", "p2"}, calls)
}

type replacingPlugin struct {
	name string
	log  *[]string
	key  string
}

func (p *replacingPlugin) OnRewrap(_ context.Context, pc *PluginContext) (*PluginContext, error) {
	*p.log = append(*p.log, p.name)
	pc.ReplacementKey = p.key
	return pc, nil
}

func TestRewrapRunnerReplacementKeyEndsChain(t *testing.T) {
	var calls []string
	runner, err := NewRewrapRunner(
		&recordingPlugin{name: "p1", log: &calls},
		&replacingPlugin{name: "p2", log: &calls, key: "already-wrapped"},
		&recordingPlugin{name: "p3", log: &calls},
	)
	require.NoError(t, err)

	pc, err := runner.Update(context.Background(), &PluginContext{})
	require.NoError(t, err)
	assert.Equal(t, "already-wrapped", pc.ReplacementKey)
	assert.Equal(t, []string{"p1", "p2"}, calls)
}

func TestRunnerRejectsWrongKind(t *testing.T) {
	_, err := NewRewrapRunner(upsertOnlyPlugin{})
	assert.ErrorIs(t, err, ErrPluginIsBad)

	var calls []string
	_, err = NewUpsertRunner(upsertOnlyPlugin{}, &recordingPlugin{name: "ok", log: &calls}, "not a plugin")
	assert.ErrorIs(t, err, ErrPluginIsBad)
}

func TestUpsertRunnerCollectsResults(t *testing.T) {
	var calls []string
	runner, err := NewUpsertRunner(
		&recordingPlugin{name: "p1", log: &calls},
		&recordingPlugin{name: "p2", log: &calls},
	)
	require.NoError(t, err)

	results, err := runner.Upsert(context.Background(), &PluginContext{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, []string{"p1", "p2"}, calls)
}

func TestPluginErrorClasses(t *testing.T) {
	backgroundCtx := context.Background()

	// A plugin that classified its own failure keeps the class.
	err := classifyPluginErr(backgroundCtx, errors.Join(ErrPluginBackend, errors.New("eas 500")))
	assert.ErrorIs(t, err, ErrPluginBackend)
	assert.NotErrorIs(t, err, ErrPluginFailed)

	err = classifyPluginErr(backgroundCtx, errors.Join(ErrInvalidAttribute, errors.New("bad uri")))
	assert.ErrorIs(t, err, ErrInvalidAttribute)

	// Unclassified failures are internal.
	err = classifyPluginErr(backgroundCtx, errors.New("nil pointer somewhere"))
	assert.ErrorIs(t, err, ErrPluginFailed)

	// Deadline expiry wins.
	expired, cancel := context.WithDeadline(backgroundCtx, time.Now().Add(-time.Second))
	defer cancel()
	err = classifyPluginErr(expired, errors.New("interrupted"))
	assert.ErrorIs(t, err, ErrRequestTimeout)
}
