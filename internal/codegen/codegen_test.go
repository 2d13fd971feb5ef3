package codegen

import (
	"strings"
	"testing"

	"github.com/kilnworks/kiln/internal/definition"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func digestBot() definition.Definition {
	return definition.Definition{
		Name:         "digest_bot",
		Type:         definition.TypeUtility,
		Description:  "Summarizes text",
		Capabilities: []string{},
		Prompt:       "Summarize the input.",
	}
}

func TestRenderPreservesSpec(t *testing.T) {
	e := newEngine(t)
	tpl, err := e.Render(digestBot())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if tpl.Agent.Name != "digest_bot" {
		t.Errorf("got name %q, want digest_bot", tpl.Agent.Name)
	}
	if tpl.Agent.Type != definition.TypeUtility {
		t.Errorf("got type %q, want Utility", tpl.Agent.Type)
	}
	if tpl.Agent.Description != "Summarizes text" {
		t.Errorf("got description %q", tpl.Agent.Description)
	}
	if tpl.Agent.Prompt != "Summarize the input." {
		t.Errorf("got prompt %q", tpl.Agent.Prompt)
	}
	if len(tpl.Tools) != 0 {
		t.Errorf("fresh template should have no tools, got %d", len(tpl.Tools))
	}
}

func TestRenderRejectsBadSpec(t *testing.T) {
	e := newEngine(t)
	if _, err := e.Render(definition.Definition{Type: definition.TypeUtility}); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := e.Render(definition.Definition{Name: "x", Type: "Wizard"}); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestValidateIsPure(t *testing.T) {
	e := newEngine(t)
	tpl := definition.Template{Agent: definition.Definition{Name: "x", Type: "Wizard"}}

	first := e.Validate(tpl)
	second := e.Validate(tpl)
	if len(first) != len(second) {
		t.Fatalf("verdict changed between calls: %d vs %d", len(first), len(second))
	}
	if len(first) == 0 {
		t.Fatal("expected violations for invalid template")
	}
}

func TestValidateReportsAllViolations(t *testing.T) {
	e := newEngine(t)
	tpl := definition.Template{
		Agent: definition.Definition{},
		Tools: []definition.ToolSpec{
			{Name: "dup"},
			{Name: "dup"},
		},
	}
	violations := e.Validate(tpl)
	found := false
	for _, v := range violations {
		if strings.Contains(v, "duplicate tool") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected duplicate tool violation, got %v", violations)
	}
}

func TestGenerateContainsAgentName(t *testing.T) {
	e := newEngine(t)
	tpl, err := e.Render(digestBot())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	tpl, err = e.AppendTool(tpl, definition.ToolSpec{
		Name:           "summarize_text",
		Description:    "Summarize a document",
		Parameters:     []definition.Param{{Name: "text", Type: "string", Description: "Input text"}},
		Returns:        definition.Returns{Type: "string", Description: "The summary"},
		Implementation: "return summary of text",
	})
	if err != nil {
		t.Fatalf("AppendTool: %v", err)
	}

	code, err := e.Generate(tpl)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if code == "" {
		t.Fatal("generated source is empty")
	}
	if !strings.Contains(code, "digest_bot") {
		t.Error("generated source missing agent name identifier")
	}
	if !strings.Contains(code, "DigestBot") {
		t.Error("generated source missing exported type name")
	}
	if !strings.Contains(code, "SummarizeText") {
		t.Error("generated source missing tool method")
	}
}

func TestExportedName(t *testing.T) {
	cases := map[string]string{
		"digest_bot":     "DigestBot",
		"chart-data":     "ChartData",
		"already":        "Already",
		"two words here": "TwoWordsHere",
	}
	for in, want := range cases {
		if got := exportedName(in); got != want {
			t.Errorf("exportedName(%q) = %q, want %q", in, got, want)
		}
	}
}
