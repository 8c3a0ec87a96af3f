package schema

import (
	"errors"
	"testing"

	"github.com/forgekit/forge-backend/internal/domain"
)

func blogSchema() *Schema {
	return &Schema{
		Table:       "blog",
		SearchField: "title",
		Fields: []Field{
			{Name: "title", Kind: KindString},
			{Name: "content", Kind: KindString},
			{Name: "category", Kind: KindEnum, Enum: []string{"tech", "life"}},
			{Name: "published", Kind: KindBool, Default: false},
			{Name: "coverImage", Kind: KindFile, Optional: true},
			{Name: "attachments", Kind: KindArray, Optional: true, Elem: &Field{Kind: KindFile}},
			{Name: "tags", Kind: KindArray, Optional: true, Elem: &Field{Kind: KindString}},
		},
	}
}

func TestSchema_Validate_AppliesDefaults(t *testing.T) {
	t.Parallel()

	s := blogSchema()
	out, err := s.Validate(map[string]any{
		"title":    "T",
		"content":  "C",
		"category": "tech",
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if out["published"] != false {
		t.Errorf("expected default published=false, got %v", out["published"])
	}
}

func TestSchema_Validate_Rejections(t *testing.T) {
	t.Parallel()

	s := blogSchema()

	cases := []struct {
		name string
		in   map[string]any
	}{
		{"unknown field", map[string]any{"title": "T", "content": "C", "category": "tech", "nope": 1}},
		{"missing required", map[string]any{"title": "T", "category": "tech"}},
		{"bad enum value", map[string]any{"title": "T", "content": "C", "category": "sports"}},
		{"wrong type", map[string]any{"title": 42, "content": "C", "category": "tech"}},
		{"bad array element", map[string]any{"title": "T", "content": "C", "category": "tech", "tags": []any{"ok", 7}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := s.Validate(tc.in); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSchema_ValidatePartial_AllowsSubsetAndNull(t *testing.T) {
	t.Parallel()

	s := blogSchema()
	out, err := s.ValidatePartial(map[string]any{
		"title":      "T2",
		"coverImage": nil,
	})
	if err != nil {
		t.Fatalf("validate partial: %v", err)
	}
	if out["title"] != "T2" {
		t.Errorf("expected title coerced through, got %v", out["title"])
	}
	val, present := out["coverImage"]
	if !present || val != nil {
		t.Error("expected explicit null to be preserved")
	}
	if _, present := out["content"]; present {
		t.Error("expected untouched fields to stay absent")
	}
}

func TestFileRefs_CollectsSingleAndArray(t *testing.T) {
	t.Parallel()

	s := blogSchema()
	refs := FileRefs(s, map[string]any{
		"title":       "T",
		"coverImage":  "blob-1",
		"attachments": []any{"blob-2", "blob-3"},
	})

	if len(refs) != 3 {
		t.Fatalf("expected 3 refs, got %v", refs)
	}
}

func TestOrphanedRefs(t *testing.T) {
	t.Parallel()

	s := blogSchema()
	before := map[string]any{"coverImage": "old", "attachments": []any{"keep", "drop"}}

	t.Run("replaced and removed", func(t *testing.T) {
		t.Parallel()
		after := map[string]any{"coverImage": "new", "attachments": []any{"keep"}}
		got := OrphanedRefs(s, before, after)
		want := map[string]bool{"old": true, "drop": true}
		if len(got) != 2 || !want[got[0]] || !want[got[1]] {
			t.Fatalf("expected old+drop orphaned, got %v", got)
		}
	})

	t.Run("set to null", func(t *testing.T) {
		t.Parallel()
		after := map[string]any{"coverImage": nil, "attachments": []any{"keep", "drop"}}
		got := OrphanedRefs(s, before, after)
		if len(got) != 1 || got[0] != "old" {
			t.Fatalf("expected only old orphaned, got %v", got)
		}
	})

	t.Run("untouched", func(t *testing.T) {
		t.Parallel()
		got := OrphanedRefs(s, before, before)
		if len(got) != 0 {
			t.Fatalf("expected no orphans, got %v", got)
		}
	})
}
