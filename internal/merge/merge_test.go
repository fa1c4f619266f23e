package merge

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lucasnoah/ciresolve/internal/cierr"
	"github.com/lucasnoah/ciresolve/internal/include"
	"github.com/lucasnoah/ciresolve/internal/yamlnode"
)

func docs(t *testing.T, srcs ...string) []include.Document {
	t.Helper()
	var out []include.Document
	for i, src := range srcs {
		root, err := yamlnode.Parse([]byte(src))
		if err != nil {
			t.Fatalf("parse doc %d: %v", i, err)
		}
		out = append(out, include.Document{Path: string(rune('a'+i)) + ".yml", Root: root})
	}
	return out
}

func mergeValue(t *testing.T, m *Merger, srcs ...string) map[string]any {
	t.Helper()
	unified, err := m.Merge(docs(t, srcs...))
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	v, err := yamlnode.Decode(unified.Root)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v.(map[string]any)
}

func TestMergeStagesReplace(t *testing.T) {
	got := mergeValue(t, &Merger{},
		"stages: [a, b]\n",
		"stages: [c, d]\n",
		"job: {script: [x]}\n",
	)
	if diff := cmp.Diff([]any{"c", "d"}, got["stages"]); diff != "" {
		t.Errorf("stages mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeVariablesShallow(t *testing.T) {
	got := mergeValue(t, &Merger{},
		"variables: {A: '1', B: '1'}\ndefault: {image: alpine, tags: [a]}\n",
		"variables: {B: '2', C: '2'}\ndefault: {tags: [b]}\n",
	)
	want := map[string]any{
		"variables": map[string]any{"A": "1", "B": "2", "C": "2"},
		"default":   map[string]any{"image": "alpine", "tags": []any{"b"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeEmptyKeysKeepEarlierValues(t *testing.T) {
	m := &Merger{}
	unified, err := m.Merge(docs(t,
		"stages: [build, test]\nvariables: {A: '1'}\ndefault: {image: alpine}\n",
		"stages:\nvariables:\ndefault: ~\njob: {script: [x]}\n",
	))
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	v, err := yamlnode.Decode(unified.Root)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]any{
		"stages":    []any{"build", "test"},
		"variables": map[string]any{"A": "1"},
		"default":   map[string]any{"image": "alpine"},
		"job":       map[string]any{"script": []any{"x"}},
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("merged mismatch (-want +got):\n%s", diff)
	}
	for _, key := range []string{"stages", "variables", "default"} {
		if got := unified.Origin(key); got != "a.yml" {
			t.Errorf("Origin(%s) = %q, want a.yml", key, got)
		}
	}
}

func TestMergeEmptyKeysStrict(t *testing.T) {
	m := &Merger{Strict: true}
	if _, err := m.Merge(docs(t, "stages: [build]\n", "stages:\n")); err != nil {
		t.Errorf("empty stages in a later document: %v", err)
	}
}

func TestMergeJobRedefinitionReplaces(t *testing.T) {
	got := mergeValue(t, &Merger{},
		"job: {script: [one], variables: {A: '1'}}\n",
		"job: {script: [two]}\n",
	)
	want := map[string]any{"job": map[string]any{"script": []any{"two"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeDropsIncludeAndKeepsOrder(t *testing.T) {
	unified, err := (&Merger{}).Merge(docs(t,
		"first: {}\nsecond: {}\n",
		"include: a.yml\nthird: {}\nfirst: {script: [x]}\n",
	))
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	want := []string{"first", "second", "third"}
	if diff := cmp.Diff(want, yamlnode.Keys(unified.Root)); diff != "" {
		t.Errorf("key order mismatch (-want +got):\n%s", diff)
	}
	if got := unified.Origin("first"); got != "b.yml" {
		t.Errorf("Origin(first) = %q, want b.yml", got)
	}
}

func TestMergeDoesNotAliasInputs(t *testing.T) {
	in := docs(t, "variables: {A: '1'}\n", "variables: {B: '2'}\n")
	unified, err := (&Merger{}).Merge(in)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	yamlnode.Set(yamlnode.Get(unified.Root, "variables"), "A", yamlnode.NewString("changed"))
	if got := yamlnode.Get(yamlnode.Get(in[0].Root, "variables"), "A").Value; got != "1" {
		t.Errorf("input document modified: A = %q", got)
	}
}

func TestMergeStrict(t *testing.T) {
	tests := []struct {
		name string
		srcs []string
		kind error
	}{
		{"stage order", []string{"stages: [a, b]\n", "stages: [b, a]\n"}, cierr.ErrConflictingStageOrder},
		{"job redefinition", []string{"job: {script: [a]}\n", "job: {script: [b]}\n"}, cierr.ErrConflictingJobDefinition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&Merger{Strict: true}).Merge(docs(t, tt.srcs...))
			if !errors.Is(err, tt.kind) {
				t.Fatalf("err = %v, want %v", err, tt.kind)
			}
		})
	}

	if _, err := (&Merger{Strict: true}).Merge(docs(t, "stages: [a, b]\n", "stages: [a, b]\n")); err != nil {
		t.Errorf("identical stages in strict mode: %v", err)
	}
}

func TestIsHidden(t *testing.T) {
	if !IsHidden(".template") || IsHidden("job") || IsHidden("") {
		t.Error("IsHidden misclassified keys")
	}
	if IsJobKey("stages") || !IsJobKey("build") {
		t.Error("IsJobKey misclassified keys")
	}
}
