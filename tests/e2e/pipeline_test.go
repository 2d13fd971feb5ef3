package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kilnworks/kiln/internal/events"
	"github.com/kilnworks/kiln/internal/registry"
	pgstore "github.com/kilnworks/kiln/internal/store"
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	pgDSN, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		os.Exit(1)
	}
	defer pgCleanup()

	testStore, err = pgstore.New(pgDSN, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pg store: %v\n", err)
		os.Exit(1)
	}
	defer testStore.Close()

	if err := testStore.Migrate(ctx, "../../migrations"); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	redisURL, redisCleanup, err := startRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer redisCleanup()
	testRedisURL = redisURL

	os.Exit(m.Run())
}

func TestDefinitionPipeline(t *testing.T) {
	ctx := context.Background()
	gen := newGenerator(t)

	def, tools, caps, err := gen.SaveDefinition(ctx, rawDefinition("digest_bot"))
	if err != nil {
		t.Fatalf("SaveDefinition: %v", err)
	}
	if def.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if len(tools) != 1 || tools[0].ID == 0 {
		t.Fatalf("unexpected tools: %+v", tools)
	}
	if len(caps) != 2 {
		t.Fatalf("unexpected capabilities: %+v", caps)
	}

	t.Run("DuplicateName", func(t *testing.T) {
		_, _, _, err := gen.SaveDefinition(ctx, rawDefinition("digest_bot"))
		if !errors.Is(err, pgstore.ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("LoadRoundTrip", func(t *testing.T) {
		tpl, err := gen.LoadDefinition(ctx, def.ID)
		if err != nil {
			t.Fatalf("LoadDefinition: %v", err)
		}
		if tpl.Agent.Name != "digest_bot" {
			t.Errorf("name = %q", tpl.Agent.Name)
		}
		want := []string{"summarization", "text_processing"}
		if len(tpl.Agent.Capabilities) != 2 ||
			tpl.Agent.Capabilities[0] != want[0] || tpl.Agent.Capabilities[1] != want[1] {
			t.Errorf("capabilities out of order: %v", tpl.Agent.Capabilities)
		}
		if len(tpl.Tools) != 1 || tpl.Tools[0].Name != "summarize" {
			t.Errorf("unexpected tools: %+v", tpl.Tools)
		}
		if len(tpl.Tools[0].Parameters) != 1 || tpl.Tools[0].Parameters[0].Name != "text" {
			t.Errorf("unexpected parameters: %+v", tpl.Tools[0].Parameters)
		}
	})

	t.Run("GenerateFromStore", func(t *testing.T) {
		code, err := gen.GenerateFromStore(ctx, def.ID)
		if err != nil {
			t.Fatalf("GenerateFromStore: %v", err)
		}
		if !strings.Contains(code, "digest_bot") || !strings.Contains(code, "DigestBot") {
			t.Errorf("generated code missing identifiers:\n%s", code)
		}
	})

	t.Run("Deploy", func(t *testing.T) {
		reg := registry.New(testLogger)
		inst, err := gen.Deploy(ctx, def.ID, reg, true)
		if err != nil {
			t.Fatalf("Deploy: %v", err)
		}
		if inst.Name != "digest_bot" || !inst.Sandbox {
			t.Errorf("unexpected instance: %+v", inst)
		}
		got, ok := reg.Lookup("digest_bot")
		if !ok || got != inst {
			t.Error("deployed instance not registered")
		}
		tool, ok := inst.Tool("summarize")
		if !ok {
			t.Fatal("expected summarize tool")
		}
		if _, err := tool.Func(ctx, map[string]any{"text": "hello"}); err != nil {
			t.Errorf("tool invocation: %v", err)
		}
	})

	t.Run("ListSummaries", func(t *testing.T) {
		rows, err := testStore.ListDefinitions(ctx)
		if err != nil {
			t.Fatalf("ListDefinitions: %v", err)
		}
		var found bool
		for _, r := range rows {
			if r.ID == def.ID {
				found = true
				if r.ToolsCount != 1 || r.CapabilitiesCount != 2 {
					t.Errorf("unexpected counts: %+v", r)
				}
			}
		}
		if !found {
			t.Error("saved agent missing from listing")
		}
	})
}

func TestMissingDefinition(t *testing.T) {
	ctx := context.Background()
	gen := newGenerator(t)

	if _, err := gen.LoadDefinition(ctx, 999999); !errors.Is(err, pgstore.ErrNotFound) {
		t.Errorf("LoadDefinition: expected ErrNotFound, got %v", err)
	}
	if _, err := gen.GenerateFromStore(ctx, 999999); !errors.Is(err, pgstore.ErrNotFound) {
		t.Errorf("GenerateFromStore: expected ErrNotFound, got %v", err)
	}
	if err := testStore.DeleteDefinition(ctx, 999999, false); !errors.Is(err, pgstore.ErrNotFound) {
		t.Errorf("DeleteDefinition: expected ErrNotFound, got %v", err)
	}
}

func TestRelationships(t *testing.T) {
	ctx := context.Background()
	gen := newGenerator(t)

	raw := rawDefinition("team_lead")
	agent := raw["agent"].(map[string]any)
	agent["type"] = "Supervisor"
	agent["metadata"] = map[string]any{
		"supervisor": "root_supervisor",
		"subAgents":  []any{"digest_bot", "translator"},
	}

	def, _, _, err := gen.SaveDefinition(ctx, raw)
	if err != nil {
		t.Fatalf("SaveDefinition: %v", err)
	}

	rel, err := testStore.Relationships(ctx, def.ID)
	if err != nil {
		t.Fatalf("Relationships: %v", err)
	}
	if rel.Supervisor == nil || *rel.Supervisor != "root_supervisor" {
		t.Errorf("supervisor = %v", rel.Supervisor)
	}
	if len(rel.SubAgents) != 2 {
		t.Errorf("subAgents = %v", rel.SubAgents)
	}

	t.Run("AbsentMetadata", func(t *testing.T) {
		plain, _, _, err := gen.SaveDefinition(ctx, rawDefinition("loner"))
		if err != nil {
			t.Fatalf("SaveDefinition: %v", err)
		}
		rel, err := testStore.Relationships(ctx, plain.ID)
		if err != nil {
			t.Fatalf("Relationships: %v", err)
		}
		if rel.Supervisor != nil {
			t.Errorf("expected null supervisor, got %v", *rel.Supervisor)
		}
		if rel.SubAgents == nil || len(rel.SubAgents) != 0 {
			t.Errorf("expected empty subAgents slice, got %v", rel.SubAgents)
		}
	})
}

func TestDeleteDefinition(t *testing.T) {
	ctx := context.Background()
	gen := newGenerator(t)

	t.Run("Soft", func(t *testing.T) {
		def, _, _, err := gen.SaveDefinition(ctx, rawDefinition("soft_target"))
		if err != nil {
			t.Fatalf("SaveDefinition: %v", err)
		}
		if err := testStore.DeleteDefinition(ctx, def.ID, false); err != nil {
			t.Fatalf("soft delete: %v", err)
		}
		if _, err := testStore.GetDefinition(ctx, def.ID); !errors.Is(err, pgstore.ErrNotFound) {
			t.Errorf("soft-deleted agent still readable: %v", err)
		}
		// A second soft delete finds no active row.
		if err := testStore.DeleteDefinition(ctx, def.ID, false); !errors.Is(err, pgstore.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Hard", func(t *testing.T) {
		def, tools, _, err := gen.SaveDefinition(ctx, rawDefinition("hard_target"))
		if err != nil {
			t.Fatalf("SaveDefinition: %v", err)
		}
		if len(tools) != 1 {
			t.Fatalf("unexpected tools: %+v", tools)
		}
		if err := testStore.DeleteDefinition(ctx, def.ID, true); err != nil {
			t.Fatalf("hard delete: %v", err)
		}
		remaining, err := testStore.ToolsForAgent(ctx, def.ID)
		if err != nil {
			t.Fatalf("ToolsForAgent: %v", err)
		}
		if len(remaining) != 0 {
			t.Errorf("expected cascade to remove tools, got %v", remaining)
		}
	})
}

func TestDeploymentEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bus, err := events.NewBus(testRedisURL, testLogger)
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	defer bus.Close()

	sub := bus.Subscribe(ctx)
	// Give the subscriber time to issue its first blocking read.
	time.Sleep(500 * time.Millisecond)

	want := events.DeploymentEvent{
		AgentName: "digest_bot",
		Action:    "deployed",
		Sandbox:   true,
		Success:   true,
	}
	if err := bus.Publish(ctx, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-sub:
		if got.AgentName != want.AgentName || got.Action != want.Action || !got.Success {
			t.Errorf("unexpected event: %+v", got)
		}
		if got.ID == "" || got.Timestamp.IsZero() {
			t.Errorf("expected filled id and timestamp, got %+v", got)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for deployment event")
	}
}

func TestSubscribeTerminatesOnCancel(t *testing.T) {
	pubCtx, pubCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer pubCancel()

	bus, err := events.NewBus(testRedisURL, testLogger)
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	defer bus.Close()

	subCtx, subCancel := context.WithCancel(context.Background())
	sub := bus.Subscribe(subCtx)
	time.Sleep(500 * time.Millisecond)

	// Overfill the subscription buffer without draining so the sender
	// is blocked when the context is cancelled.
	for i := 0; i < 24; i++ {
		ev := events.DeploymentEvent{AgentName: fmt.Sprintf("agent_%d", i), Action: "deployed"}
		if err := bus.Publish(pubCtx, ev); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	time.Sleep(time.Second)
	subCancel()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case _, ok := <-sub:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel not closed after cancel")
		}
	}
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *events.Bus
	if err := bus.Publish(context.Background(), events.DeploymentEvent{AgentName: "x"}); err != nil {
		t.Errorf("nil bus publish: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("nil bus close: %v", err)
	}
}
