package templates

import (
	"errors"
	"reflect"
	"testing"

	"github.com/kilnworks/kiln/internal/definition"
)

func sampleTemplate() definition.Template {
	return definition.Template{
		Agent: definition.Definition{
			Name:         "digest_bot",
			Type:         definition.TypeUtility,
			Description:  "Summarizes text",
			Capabilities: []string{"summarization"},
			Prompt:       "Summarize the input.",
		},
		Tools: []definition.ToolSpec{
			{
				Name:       "summarize",
				Parameters: []definition.Param{{Name: "text", Type: "string"}},
				Returns:    definition.Returns{Type: "string", Description: "summary"},
			},
		},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	fs := NewFileStore(t.TempDir() + "/nested/templates")

	tpl := sampleTemplate()
	if err := fs.Put("my-template", tpl); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := fs.Get("my-template")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got, tpl) {
		t.Errorf("round-trip mismatch:\ngot  %+v\nwant %+v", got, tpl)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	_, err := fs.Get("missing-id")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteThenGet(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	if err := fs.Put("gone", sampleTemplate()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := fs.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := fs.Get("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := fs.Delete("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestListEmptyDir(t *testing.T) {
	fs := NewFileStore(t.TempDir() + "/never-created")
	all, err := fs.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected empty store, got %d entries", len(all))
	}
}

func TestIDsSorted(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := fs.Put(id, sampleTemplate()); err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}
	ids, err := fs.IDs()
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("got %v, want %v", ids, want)
	}
}
