package e2e

import (
	"context"
	"fmt"
	"testing"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/kilnworks/kiln/internal/codegen"
	"github.com/kilnworks/kiln/internal/generator"
	pgstore "github.com/kilnworks/kiln/internal/store"
)

// Package-level shared state, set by TestMain and used by all subtests.
var (
	testLogger   *zap.Logger
	testStore    *pgstore.Store
	testRedisURL string
)

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("kiln_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// newGenerator wires a Generator over the shared store.
func newGenerator(t *testing.T) *generator.Generator {
	t.Helper()
	engine, err := codegen.New()
	if err != nil {
		t.Fatalf("codegen engine: %v", err)
	}
	return generator.New(testStore, engine, testLogger)
}

// rawDefinition builds a wrapped definition document with one tool.
func rawDefinition(name string) map[string]any {
	return map[string]any{
		"agent": map[string]any{
			"name":         name,
			"type":         "Utility",
			"description":  "Summarizes text",
			"prompt":       "Summarize the input.",
			"capabilities": []any{"summarization", "text_processing"},
		},
		"tools": []any{
			map[string]any{
				"name":        "summarize",
				"description": "Summarize a block of text",
				"parameters": []any{
					map[string]any{"name": "text", "type": "string", "description": "input text"},
				},
				"returns":        map[string]any{"type": "string", "description": "summary"},
				"implementation": "return summary of text",
			},
		},
	}
}
