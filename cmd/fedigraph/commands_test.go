package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Scobiform/fedi-follow-force-graph/internal/app"
	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBuilder struct {
	buildGraphFn func(ctx context.Context, req app.GraphRequest) (*domain.Graph, error)
}

func (m *mockBuilder) BuildGraph(ctx context.Context, req app.GraphRequest) (*domain.Graph, error) {
	if m.buildGraphFn != nil {
		return m.buildGraphFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func execute(t *testing.T, builder graphBuilder, loadErr error, args ...string) (string, error) {
	t.Helper()
	load := func() (graphBuilder, error) {
		if loadErr != nil {
			return nil, loadErr
		}
		return builder, nil
	}

	var out bytes.Buffer
	cmd := newRootCmd(load)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExport_PrintsGraph(t *testing.T) {
	var got app.GraphRequest
	builder := &mockBuilder{
		buildGraphFn: func(_ context.Context, req app.GraphRequest) (*domain.Graph, error) {
			got = req
			return &domain.Graph{
				Nodes: []domain.GraphNode{{ID: "1", Username: "alice", Role: domain.RoleCenter}},
				Links: []domain.GraphEdge{},
			}, nil
		},
	}

	out, err := execute(t, builder, nil, "export", "--user-id", "109", "--instances")

	require.NoError(t, err)
	assert.Equal(t, app.GraphRequest{AccountID: "109", InstanceLinks: true}, got)

	var graph domain.Graph
	require.NoError(t, json.Unmarshal([]byte(out), &graph))
	require.Len(t, graph.Nodes, 1)
	assert.Equal(t, "alice", graph.Nodes[0].Username)
}

func TestExport_DefaultsToCurrentAccount(t *testing.T) {
	var got app.GraphRequest
	builder := &mockBuilder{
		buildGraphFn: func(_ context.Context, req app.GraphRequest) (*domain.Graph, error) {
			got = req
			return &domain.Graph{Nodes: []domain.GraphNode{}, Links: []domain.GraphEdge{}}, nil
		},
	}

	out, err := execute(t, builder, nil, "export", "--indent")

	require.NoError(t, err)
	assert.Equal(t, app.GraphRequest{}, got)
	assert.Equal(t, "{\n  \"nodes\": [],\n  \"links\": []\n}\n", out)
}

func TestExport_BuildFailurePrintsNothing(t *testing.T) {
	builder := &mockBuilder{
		buildGraphFn: func(context.Context, app.GraphRequest) (*domain.Graph, error) {
			return nil, domain.ErrPaginationOverrun
		},
	}

	out, err := execute(t, builder, nil, "export")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPaginationOverrun)
	assert.Empty(t, out)
}

func TestExport_ConfigError(t *testing.T) {
	_, err := execute(t, nil, errors.New("MASTODON_INSTANCE_URL is required"), "export")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "MASTODON_INSTANCE_URL is required")
}

func TestExport_RejectsArguments(t *testing.T) {
	_, err := execute(t, &mockBuilder{}, nil, "export", "extra")

	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, nil, errors.New("config must not be loaded"), "version")

	require.NoError(t, err)
	assert.Equal(t, version.Get().String()+"\n", out)
}
