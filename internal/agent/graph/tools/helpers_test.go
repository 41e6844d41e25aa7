package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/require"

	"github.com/oceanchat-core/server/internal/agent/model"
	"github.com/oceanchat-core/server/internal/onc"
)

// memParamsRepo is an in-memory ParameterStoreRepository for tool tests.
type memParamsRepo struct {
	stores map[string]*model.ParameterStore
}

func newMemParamsRepo() *memParamsRepo {
	return &memParamsRepo{stores: map[string]*model.ParameterStore{}}
}

func (m *memParamsRepo) Load(_ context.Context, conversationID string) (*model.ParameterStore, error) {
	if s, ok := m.stores[conversationID]; ok {
		copied := model.NewParameterStore()
		for k, v := range s.Values {
			copied.Values[k] = v
		}
		return copied, nil
	}
	return model.NewParameterStore(), nil
}

func (m *memParamsRepo) Save(_ context.Context, conversationID string, store *model.ParameterStore) error {
	m.stores[conversationID] = store
	return nil
}

func (m *memParamsRepo) Clear(_ context.Context, conversationID string) error {
	delete(m.stores, conversationID)
	return nil
}

func newTestDeps(t *testing.T, baseURL string) (*Deps, *memParamsRepo) {
	t.Helper()
	client, err := onc.NewClient(onc.Config{
		BaseURL:         baseURL,
		Tokens:          "test-token",
		TimeoutSeconds:  5,
		RunPollSeconds:  1,
		RunPollAttempts: 3,
	})
	require.NoError(t, err)
	repo := newMemParamsRepo()
	return &Deps{Oceans: client, Params: repo}, repo
}

func findTool(t *testing.T, deps *Deps, name string) tool.InvokableTool {
	t.Helper()
	for _, bt := range GetQueryTools(deps) {
		info, err := bt.Info(context.Background())
		require.NoError(t, err)
		if info.Name == name {
			inv, ok := bt.(tool.InvokableTool)
			require.True(t, ok, "tool %s is not invokable", name)
			return inv
		}
	}
	t.Fatalf("tool %s not registered", name)
	return nil
}

func runTool(t *testing.T, deps *Deps, name string, args map[string]any) model.ToolExecutionResult {
	t.Helper()
	encoded, err := json.Marshal(args)
	require.NoError(t, err)

	raw, err := findTool(t, deps, name).InvokableRun(context.Background(), string(encoded))
	require.NoError(t, err)

	var result model.ToolExecutionResult
	require.NoError(t, json.Unmarshal([]byte(raw), &result))
	return result
}
