package yamlnode

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func mustParse(t *testing.T, src string) *yaml.Node {
	t.Helper()
	n, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return n
}

func TestParseEmpty(t *testing.T) {
	for _, src := range []string{"", "# only a comment\n"} {
		n := mustParse(t, src)
		if !IsMapping(n) || len(n.Content) != 0 {
			t.Errorf("Parse(%q) = %+v, want empty mapping", src, n)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse([]byte("a: [1, 2\n")); err == nil {
		t.Fatal("expected error for unterminated flow sequence")
	}
}

func TestMappingHelpers(t *testing.T) {
	m := mustParse(t, "b: 1\na: 2\nc: 3\n")

	if diff := cmp.Diff([]string{"b", "a", "c"}, Keys(m)); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
	if v := Get(m, "a"); v == nil || v.Value != "2" {
		t.Errorf("Get(a) = %+v", v)
	}
	if Has(m, "z") {
		t.Error("Has(z) = true")
	}

	Set(m, "a", NewString("two"))
	Set(m, "d", NewString("4"))
	Delete(m, "b")
	Delete(m, "missing")

	if diff := cmp.Diff([]string{"a", "c", "d"}, Keys(m)); diff != "" {
		t.Errorf("Keys after edits mismatch (-want +got):\n%s", diff)
	}
	if Get(m, "a").Value != "two" {
		t.Errorf("Set did not replace in place: %q", Get(m, "a").Value)
	}
}

func TestHelpersOnNonMapping(t *testing.T) {
	seq := NewSequence(NewString("x"))
	if Get(seq, "x") != nil || Pairs(seq) != nil || Keys(seq) != nil {
		t.Error("mapping helpers returned data for a sequence")
	}
	if Get(nil, "x") != nil {
		t.Error("Get(nil) returned a node")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := mustParse(t, "job:\n  script:\n    - a\n")
	c := Clone(orig)

	Get(Get(c, "job"), "script").Content[0].Value = "changed"
	Set(c, "extra", NewString("x"))

	if got := Get(Get(orig, "job"), "script").Content[0].Value; got != "a" {
		t.Errorf("original mutated through clone: %q", got)
	}
	if Has(orig, "extra") {
		t.Error("original gained a key through clone")
	}
	if Get(c, "job").Line != Get(orig, "job").Line {
		t.Error("Clone dropped source line")
	}
	if Clone(nil) != nil {
		t.Error("Clone(nil) != nil")
	}
}

func TestStrings(t *testing.T) {
	tests := []struct {
		src    string
		want   []string
		wantOK bool
	}{
		{src: "v: one", want: []string{"one"}, wantOK: true},
		{src: "v: [a, b]", want: []string{"a", "b"}, wantOK: true},
		{src: "v: [a, [b]]", wantOK: false},
		{src: "v: {a: 1}", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := Strings(Get(mustParse(t, tt.src), "v"))
		if ok != tt.wantOK {
			t.Errorf("Strings(%q) ok = %v, want %v", tt.src, ok, tt.wantOK)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Strings(%q) mismatch (-want +got):\n%s", tt.src, diff)
		}
	}
}

func TestIsNull(t *testing.T) {
	m := mustParse(t, "a: ~\nb: null\nc: ''\n")
	if !IsNull(Get(m, "a")) || !IsNull(Get(m, "b")) || !IsNull(nil) {
		t.Error("IsNull missed an explicit null")
	}
	if IsNull(Get(m, "c")) {
		t.Error("IsNull matched an empty string")
	}
}

func TestEncodeDecode(t *testing.T) {
	m := NewMapping()
	Set(m, "stages", NewSequence(NewString("build"), NewString("test")))

	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if want := "stages:\n  - build\n  - test\n"; string(data) != want {
		t.Errorf("Encode = %q, want %q", data, want)
	}

	v, err := Decode(m)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := map[string]any{"stages": []any{"build", "test"}}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}
