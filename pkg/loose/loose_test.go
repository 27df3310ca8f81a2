package loose

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustParse(t *testing.T, s string) any {
	t.Helper()
	v, err := Parse([]byte(s))
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", s, err)
	}
	return v
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse([]byte(`{"a":`)); err == nil {
		t.Error("Parse() expected error for truncated JSON")
	}
}

func TestStringCaseInsensitive(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"camelCase", `{"profile": {"realName": "Alice"}}`},
		{"PascalCase", `{"Profile": {"RealName": "Alice"}}`},
		{"snake_case", `{"profile": {"real_name": "Alice"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := mustParse(t, tt.json)
			if got := String(root, "profile.realName"); got != "Alice" {
				t.Errorf("String() = %q, want %q", got, "Alice")
			}
		})
	}
}

func TestFirstCandidateWins(t *testing.T) {
	root := mustParse(t, `{"v2": {"score": 7}, "v1": {"score": 3}, "empty": null}`)

	if got := Int(root, "missing.score", "empty", "v2.score", "v1.score"); got != 7 {
		t.Errorf("Int() = %d, want 7", got)
	}
	if got := Int(root, "v1.score", "v2.score"); got != 3 {
		t.Errorf("Int() = %d, want 3", got)
	}
	if got := Int(root, "nope"); got != 0 {
		t.Errorf("Int() missing = %d, want 0", got)
	}
}

func TestNullIsAbsent(t *testing.T) {
	root := mustParse(t, `{"name": null, "login": "bob"}`)
	if got := String(root, "name", "login"); got != "bob" {
		t.Errorf("String() = %q, want %q", got, "bob")
	}
	if Has(root, "name") {
		t.Error("Has(name) = true for null value")
	}
}

func TestIsNull(t *testing.T) {
	root := mustParse(t, `{"data": {"matchedUser": null, "user": {"id": 1}}, "errors": []}`)
	tests := map[string]bool{
		"data.matchedUser": true,
		"data.MatchedUser": true,
		"data.user":        false,
		"data.missing":     false,
		"data.user.id":     false,
		"nothing.here":     false,
		"errors":           false,
	}
	for path, want := range tests {
		if got := IsNull(root, path); got != want {
			t.Errorf("IsNull(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestListIndexing(t *testing.T) {
	root := mustParse(t, `{"items": [{"count": 1}, {"count": "2,500"}]}`)

	if got := Int(root, "items.1.count"); got != 2500 {
		t.Errorf("Int(items.1.count) = %d, want 2500", got)
	}
	if got := Int(root, "items.5.count"); got != 0 {
		t.Errorf("Int(items.5.count) = %d, want 0", got)
	}
	if got := len(List(root, "items")); got != 2 {
		t.Errorf("len(List(items)) = %d, want 2", got)
	}
}

func TestFloatAndTypeMismatch(t *testing.T) {
	root := mustParse(t, `{"rating": 1523.456, "label": "n/a", "flag": true, "obj": {"a": 1}}`)

	if got := Float(root, "rating"); got != 1523.456 {
		t.Errorf("Float(rating) = %v", got)
	}
	if got := Float(root, "label", "flag", "rating"); got != 1523.456 {
		t.Errorf("Float() should skip non-numeric candidates, got %v", got)
	}
	if got := List(root, "obj"); got != nil {
		t.Errorf("List(obj) = %v, want nil", got)
	}
	if diff := cmp.Diff(map[string]any{"a": mustParse(t, "1")}, Map(root, "obj")); diff != "" {
		t.Errorf("Map(obj) mismatch (-want +got):\n%s", diff)
	}
}

func TestStringFormatsNumbers(t *testing.T) {
	root := mustParse(t, `{"id": 12345, "blank": "   "}`)
	if got := String(root, "blank", "id"); got != "12345" {
		t.Errorf("String() = %q, want %q", got, "12345")
	}
}

func TestDuplicateSpellingsAreDeterministic(t *testing.T) {
	root := mustParse(t, `{"Real_Name": "B", "REALNAME": "A"}`)
	for range 20 {
		if got := String(root, "realName"); got != "A" {
			t.Fatalf("String() = %q, want %q", got, "A")
		}
	}
}
