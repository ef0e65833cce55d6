package expr

import "testing"

func TestAddExplicitReturn(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"already returns", "return 1", "return 1"},
		{"already returns multi-line", "local a = 1\nreturn a", "local a = 1\nreturn a"},
		{"bare expression", "x + 1", "return x + 1"},
		{"return as part of a word", "returned + 1", "return returned + 1"},
		{"statements", "a = 1; a + 1", "a = 1;\nreturn  a + 1"},
		{"repeated separators", "x;;y", "x;\nreturn y"},
		{"separator inside parens", "foo(a; b)", "return foo(a; b)"},
		{"nested parens protect outer group", "f(g(1; 2); 3)", "return f(g(1; 2); 3)"},
		{"separator between calls", "a(1); b(2)", "a(1);\nreturn  b(2)"},
		{"newline inside parens removed", "f(a,\nb)", "return f(a,b)"},
		{"leading and trailing newline trimmed", "\nx\n", "return x"},
		{"trailing separator", "x;", "return x;"},
		{"multi-line", "local n = #items\nn * 2", "local n = #items\nreturn n * 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AddExplicitReturn(tt.src); got != tt.want {
				t.Errorf("AddExplicitReturn(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestParenGroups(t *testing.T) {
	tests := []struct {
		src  string
		want [][2]int
	}{
		{"abc", nil},
		{"(a)", [][2]int{{0, 2}}},
		{"(a)(b)", [][2]int{{0, 2}, {3, 5}}},
		{"((a))", [][2]int{{1, 3}, {0, 4}}},
		{"(a", nil},
		{"a)", nil},
	}

	for _, tt := range tests {
		got := parenGroups(tt.src)
		if len(got) != len(tt.want) {
			t.Errorf("parenGroups(%q) = %v, want %v", tt.src, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parenGroups(%q)[%d] = %v, want %v", tt.src, i, got[i], tt.want[i])
			}
		}
	}
}

func TestHasReturn(t *testing.T) {
	if !HasReturn("if x then return 1 end") {
		t.Error("HasReturn should find return statement")
	}
	if HasReturn("returns + nonreturn") {
		t.Error("HasReturn should not match inside identifiers")
	}
}
