package mergekey

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/ciresolve/internal/cierr"
	"github.com/lucasnoah/ciresolve/internal/yamlnode"
)

func parse(t *testing.T, src string) *yaml.Node {
	t.Helper()
	n, err := yamlnode.Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return n
}

func resolveToValue(t *testing.T, src string) any {
	t.Helper()
	out, err := Resolve(parse(t, src))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	v, err := yamlnode.Decode(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestResolveAlias(t *testing.T) {
	got := resolveToValue(t, `
base: &base
  image: alpine
  tags: [docker]
job:
  conf: *base
`)
	want := map[string]any{
		"base": map[string]any{"image": "alpine", "tags": []any{"docker"}},
		"job":  map[string]any{"conf": map[string]any{"image": "alpine", "tags": []any{"docker"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resolved value mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveMergeKeyExplicitWins(t *testing.T) {
	got := resolveToValue(t, `
.defaults: &defaults
  image: alpine
  stage: build
job:
  stage: test
  <<: *defaults
`)
	job := got.(map[string]any)["job"]
	want := map[string]any{"stage": "test", "image": "alpine"}
	if diff := cmp.Diff(want, job); diff != "" {
		t.Errorf("job mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveMergeSequenceEarlierWins(t *testing.T) {
	got := resolveToValue(t, `
a: &a {x: "1", y: "a"}
b: &b {y: "b", z: "b"}
job:
  <<: [*a, *b]
`)
	job := got.(map[string]any)["job"]
	want := map[string]any{"x": "1", "y": "a", "z": "b"}
	if diff := cmp.Diff(want, job); diff != "" {
		t.Errorf("job mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveMergeKeepsPosition(t *testing.T) {
	out, err := Resolve(parse(t, `
src: &src {b: "2", c: "3"}
job:
  a: "1"
  <<: *src
  d: "4"
`))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	got := yamlnode.Keys(yamlnode.Get(out, "job"))
	want := []string{"a", "b", "c", "d"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("key order mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveNestedMergeThroughAlias(t *testing.T) {
	got := resolveToValue(t, `
.one: &one {v: "1"}
.two: &two
  <<: *one
  w: "2"
job:
  <<: *two
`)
	job := got.(map[string]any)["job"]
	want := map[string]any{"v": "1", "w": "2"}
	if diff := cmp.Diff(want, job); diff != "" {
		t.Errorf("job mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveQuotedMergeKeyIsLiteral(t *testing.T) {
	got := resolveToValue(t, `
job:
  "<<": literal
`)
	job := got.(map[string]any)["job"]
	want := map[string]any{"<<": "literal"}
	if diff := cmp.Diff(want, job); diff != "" {
		t.Errorf("job mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveMalformedMerge(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"scalar", "job:\n  <<: nope\n"},
		{"sequence of scalars", "job:\n  <<: [a, b]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(parse(t, tt.src))
			if !errors.Is(err, cierr.ErrMalformedMerge) {
				t.Fatalf("err = %v, want ErrMalformedMerge", err)
			}
		})
	}
}

func TestResolveUnresolvedAlias(t *testing.T) {
	root := yamlnode.NewMapping()
	root.Content = append(root.Content, yamlnode.NewString("job"), &yaml.Node{Kind: yaml.AliasNode, Value: "missing"})
	_, err := Resolve(root)
	if !errors.Is(err, cierr.ErrUnresolvedAlias) {
		t.Fatalf("err = %v, want ErrUnresolvedAlias", err)
	}
}

func TestResolveLeavesInputUntouched(t *testing.T) {
	in := parse(t, "a: &x {k: v}\nb: *x\n")
	before, _ := yamlnode.Encode(in)
	if _, err := Resolve(in); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	after, _ := yamlnode.Encode(in)
	if string(before) != string(after) {
		t.Errorf("input modified:\nbefore:\n%s\nafter:\n%s", before, after)
	}
}

func TestResolveIdempotent(t *testing.T) {
	first, err := Resolve(parse(t, `
.base: &base
  script: [make]
  variables: {A: "1"}
job:
  <<: *base
  tags: &tags [linux]
other:
  tags: *tags
`))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	assertNoAliasing(t, first)

	second, err := Resolve(first)
	if err != nil {
		t.Fatalf("second Resolve() error: %v", err)
	}
	a, _ := yamlnode.Encode(first)
	b, _ := yamlnode.Encode(second)
	if diff := cmp.Diff(string(a), string(b)); diff != "" {
		t.Errorf("second pass changed output (-first +second):\n%s", diff)
	}
}

func assertNoAliasing(t *testing.T, n *yaml.Node) {
	t.Helper()
	if n.Kind == yaml.AliasNode || n.Anchor != "" {
		t.Fatalf("node at line %d still carries alias/anchor", n.Line)
	}
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			if isMergeKey(n.Content[i]) {
				t.Fatalf("merge key left at line %d", n.Content[i].Line)
			}
		}
	}
	for _, c := range n.Content {
		assertNoAliasing(t, c)
	}
}
