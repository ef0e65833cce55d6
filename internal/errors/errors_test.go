package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "lookup error",
			code:    "E001",
			wantMsg: "Unknown selector",
			wantCat: CategoryLookup,
		},
		{
			name:    "expression error",
			code:    "E011",
			wantMsg: "Expression evaluation failed",
			wantCat: CategoryExpression,
		},
		{
			name:    "shape error",
			code:    "E020",
			wantMsg: "List value is not a sequence",
			wantCat: CategoryShape,
		},
		{
			name:    "unknown error code",
			code:    "E999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryBinding, "element %q detached", "#main")
	if err.Message != `element "#main" detached` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Category != CategoryBinding {
		t.Errorf("Category = %q, want %q", err.Category, CategoryBinding)
	}
}

func TestError_Error(t *testing.T) {
	err := New("E001")
	if got, want := err.Error(), "E001: Unknown selector"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	err = New("E001").WithDetail(`"films"`)
	if got, want := err.Error(), `E001: Unknown selector: "films"`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := &Error{Message: "test error"}
	if bare.Error() != "test error" {
		t.Errorf("Error() = %q, want %q", bare.Error(), "test error")
	}
}

func TestError_Is(t *testing.T) {
	sentinel := New("E020")
	err := fmt.Errorf("bind list: %w", New("E020").WithDetail("got string"))

	if !stderrors.Is(err, sentinel) {
		t.Error("errors.Is should match by code")
	}
	if stderrors.Is(err, New("E001")) {
		t.Error("errors.Is should not match a different code")
	}
	if stderrors.Is(err, &Error{Message: "no code"}) {
		t.Error("errors.Is should not match a codeless target")
	}

	var te *Error
	if !stderrors.As(err, &te) || te.Detail != "got string" {
		t.Errorf("errors.As = %v", te)
	}
}

func TestError_WithLocation(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "bindings.yaml")
	content := `- id: "1"
  list:
    value: films
  text: {value: title}
- id: ""
  text: {value: name}
`
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	err := New("E041").WithLocation(tmpFile, 5, 3)

	if err.Location == nil {
		t.Fatal("Location is nil")
	}
	if err.Location.File != tmpFile {
		t.Errorf("Location.File = %q, want %q", err.Location.File, tmpFile)
	}
	if err.Location.Line != 5 || err.Location.Column != 3 {
		t.Errorf("Location = %d:%d, want 5:3", err.Location.Line, err.Location.Column)
	}
	if len(err.Context) == 0 {
		t.Error("Context should not be empty")
	}
}

func TestError_Builders(t *testing.T) {
	err := New("E002").
		WithSuggestion("register the action before binding").
		WithExample(`actions.Register("select", fn)`).
		WithDetailf("action %q", "select")

	if err.Suggestion != "register the action before binding" {
		t.Errorf("Suggestion = %q", err.Suggestion)
	}
	if err.Example != `actions.Register("select", fn)` {
		t.Errorf("Example = %q", err.Example)
	}
	if err.Detail != `action "select"` {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestError_Wrap(t *testing.T) {
	inner := New("E010")
	outer := New("E011").Wrap(inner)

	if outer.Wrapped != inner {
		t.Error("Wrapped error mismatch")
	}
	if outer.Unwrap() != inner {
		t.Error("Unwrap() should return wrapped error")
	}
	if !stderrors.Is(outer, New("E010")) {
		t.Error("errors.Is should see the wrapped code")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "E001") != nil {
		t.Error("FromError(nil, ...) should return nil")
	}

	te := New("E001")
	if FromError(te, "E002") != te {
		t.Error("FromError should return *Error as-is")
	}

	stdErr := stderrors.New("boom")
	result := FromError(stdErr, "E011")
	if result.Wrapped != stdErr {
		t.Error("Standard error should be wrapped")
	}
	if result.Code != "E011" {
		t.Errorf("Code = %q, want E011", result.Code)
	}
}

func TestLocation_String(t *testing.T) {
	tests := []struct {
		name string
		loc  *Location
		want string
	}{
		{"nil location", nil, ""},
		{"with column", &Location{File: "b.yaml", Line: 10, Column: 5}, "b.yaml:10:5"},
		{"without column", &Location{File: "b.yaml", Line: 10}, "b.yaml:10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.loc.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	SetColor(false)
	defer SetColor(true)

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "bindings.yaml")
	content := `- selector: "#title"
  text: state.title
- selector: "#list"
  list:
    selector: film
`
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	err := New("E001").
		WithLocation(tmpFile, 5, 15).
		WithSuggestion("did you mean films?").
		WithExample("selector: films")

	formatted := err.Format()

	for _, want := range []string{"E001", "Unknown selector", tmpFile, "Hint:", "Example:", "Learn more:"} {
		if !strings.Contains(formatted, want) {
			t.Errorf("Format should contain %q", want)
		}
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("E001").WithLocation("bindings.yaml", 10, 5)
	want := "bindings.yaml:10:5: E001: Unknown selector"
	if got := err.FormatCompact(); got != want {
		t.Errorf("FormatCompact() = %q, want %q", got, want)
	}
	if got := New("E001").WithDetail("films").FormatCompact(); got != "E001: Unknown selector: films" {
		t.Errorf("FormatCompact() without location = %q", got)
	}
}

func TestCompact(t *testing.T) {
	located := New("E042").WithDetail("field colour").WithLocation("bindings.yaml", 3, 3)
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain", stderrors.New("boom"), "boom"},
		{"unlocated", New("E001"), "E001: Unknown selector"},
		{"located", located, "bindings.yaml:3:3: E042: Unknown binding key: field colour"},
		{"wrapped", fmt.Errorf("reload: %w", located), "bindings.yaml:3:3: reload: E042: Unknown binding key: field colour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compact(tt.err); got != tt.want {
				t.Errorf("Compact = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFprintJSON(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain", stderrors.New("boom"), `{"category":"","message":"boom"}`},
		{
			"coded",
			New("E144").WithDetail("blog"),
			`{"code":"E144","category":"cli","message":"Unknown template","detail":"blog","docUrl":"https://tapas.dev/docs/errors/E144"}`,
		},
		{
			"wrapped",
			fmt.Errorf("load bindings: %w", New("E042").Wrap(stderrors.New("bad key"))),
			`{"code":"E042","category":"descriptor","message":"load bindings: Unknown binding key","cause":"bad key","docUrl":"https://tapas.dev/docs/errors/E042"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			FprintJSON(&b, tt.err)
			if got := strings.TrimSpace(b.String()); got != tt.want {
				t.Errorf("FprintJSON =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestFormatContextNearFileStart(t *testing.T) {
	SetColor(false)
	defer SetColor(true)

	file := filepath.Join(t.TempDir(), "bindings.yaml")
	if err := os.WriteFile(file, []byte("- id: \"1\"\n  colour: red\n  text: {value: x}\n- id: \"2\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	err := New("E042").WithLocation(file, 2, 3)
	if n := len(err.Context); n != 4 {
		t.Fatalf("Context = %q, want lines 1-4", err.Context)
	}
	out := err.Format()
	for _, want := range []string{"       1 │ - id: \"1\"", "→    2 │   colour: red", "│   ^"} {
		if !strings.Contains(out, want) {
			t.Errorf("Format lacks %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	json := New("E001").WithLocation("bindings.yaml", 10, 5).FormatJSON()

	for _, want := range []string{`"code":"E001"`, `"category":"lookup"`, `"message":"Unknown selector"`, `"location":`} {
		if !strings.Contains(json, want) {
			t.Errorf("JSON should contain %s", want)
		}
	}
}

func TestGetAllCodes(t *testing.T) {
	codes := GetAllCodes()
	if len(codes) == 0 {
		t.Fatal("GetAllCodes() should return codes")
	}
	if codes[0] != "E001" {
		t.Errorf("codes[0] = %q, want E001 (sorted)", codes[0])
	}
	for i := 1; i < len(codes); i++ {
		if codes[i-1] >= codes[i] {
			t.Errorf("codes not sorted at %d: %q >= %q", i, codes[i-1], codes[i])
		}
	}
}

func TestGetTemplate(t *testing.T) {
	template, ok := GetTemplate("E020")
	if !ok {
		t.Fatal("E020 should exist")
	}
	if template.Category != CategoryShape {
		t.Errorf("Category = %q", template.Category)
	}

	if _, ok := GetTemplate("E999"); ok {
		t.Error("E999 should not exist")
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("short text", 100)
	if len(got) != 1 || got[0] != "short text" {
		t.Errorf("wrapText short text: got %v", got)
	}

	got = wrapText("this is a longer text that should be wrapped", 20)
	if len(got) != 3 {
		t.Errorf("wrapText long text: expected 3 lines, got %d: %v", len(got), got)
	}

	if got := wrapText("", 10); len(got) != 0 {
		t.Errorf("wrapText empty: expected empty, got %v", got)
	}
}

func TestColorFunctions(t *testing.T) {
	SetColor(true)
	if !strings.Contains(red("test"), "\033[31m") {
		t.Error("red should contain ANSI code when colors enabled")
	}

	SetColor(false)
	if strings.Contains(red("test"), "\033[") {
		t.Error("red should not contain ANSI code when colors disabled")
	}
	SetColor(true)
}

func TestCode(t *testing.T) {
	coded := New("E020").WithDetail("not a list")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", stderrors.New("boom"), ""},
		{"direct", coded, "E020"},
		{"wrapped", fmt.Errorf("bind 1.3: %w", coded), "E020"},
		{"joined", Join(stderrors.New("first"), fmt.Errorf("bind 2: %w", New("E001"))), "E001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsThroughWraps(t *testing.T) {
	err := fmt.Errorf("bootstrap: %w", New("E034"))
	if !Is(err, New("E034")) {
		t.Error("Is should match the code through a wrap")
	}
	if Is(err, New("E035")) {
		t.Error("Is should not match another code")
	}
}

func TestFprint(t *testing.T) {
	SetColor(false)
	defer SetColor(true)

	tests := []struct {
		name string
		err  error
		want []string
	}{
		{"plain", stderrors.New("boom"), []string{"ERROR: boom"}},
		{"coded", New("E144").WithDetail("blog"), []string{"ERROR E144: Unknown template", "blog", "Learn more:"}},
		{
			"wrapped",
			fmt.Errorf("load bindings: %w", New("E042").Wrap(stderrors.New("field colour not found"))),
			[]string{"load bindings: E042", "ERROR E042:", "Cause: field colour not found"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			Fprint(&b, tt.err)
			for _, want := range tt.want {
				if !strings.Contains(b.String(), want) {
					t.Errorf("output lacks %q:\n%s", want, b.String())
				}
			}
		})
	}
}
