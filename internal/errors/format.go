package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// ANSI styles for terminal output.
const (
	styleReset = "\033[0m"
	styleRed   = "\033[31m"
	styleBlue  = "\033[34m"
	styleCyan  = "\033[36m"
	styleGray  = "\033[90m"
	styleBold  = "\033[1m"
)

// colorEnabled controls whether ANSI styles are used. NO_COLOR turns them
// off at startup.
var colorEnabled = os.Getenv("NO_COLOR") == ""

// SetColor turns ANSI styles in Format and Fprint on or off.
func SetColor(on bool) {
	colorEnabled = on
}

func paint(style, text string) string {
	if !colorEnabled || text == "" {
		return text
	}
	return style + text + styleReset
}

func red(text string) string  { return paint(styleRed, text) }
func blue(text string) string { return paint(styleBlue, text) }
func cyan(text string) string { return paint(styleCyan, text) }
func gray(text string) string { return paint(styleGray, text) }
func bold(text string) string { return paint(styleBold, text) }

// Format returns a multi-line error message for terminal display:
//
//	ERROR E001: Unknown selector
//
//	  bindings.yaml:5:15
//	  → 5 │     selector: film
//	      │               ^
//
//	  Hint: did you mean films?
func (e *Error) Format() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(red(bold("ERROR")))
	if e.Code != "" {
		b.WriteString(" " + bold(e.Code))
	}
	b.WriteString(": " + e.Message + "\n\n")

	if e.Location != nil {
		fmt.Fprintf(&b, "  %s\n", cyan(e.Location.String()))
		e.writeContext(&b)
		b.WriteString("\n")
	}

	if e.Detail != "" {
		writeIndented(&b, "  ", wrapText(e.Detail, 70))
		b.WriteString("\n")
	}
	if e.Wrapped != nil {
		fmt.Fprintf(&b, "  %s%s\n\n", gray("Cause: "), e.Wrapped.Error())
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  %s%s\n\n", cyan("Hint: "), e.Suggestion)
	}
	if e.Example != "" {
		fmt.Fprintf(&b, "  %s\n", cyan("Example:"))
		writeIndented(&b, "    ", strings.Split(e.Example, "\n"))
		b.WriteString("\n")
	}
	if e.DocURL != "" {
		fmt.Fprintf(&b, "  %s%s\n", gray("Learn more: "), blue(e.DocURL))
	}
	return b.String()
}

// writeContext prints the source lines around the location with an arrow
// on the failing line and a caret under its column.
func (e *Error) writeContext(b *strings.Builder) {
	first := contextStart(e.Location.Line)
	for i, line := range e.Context {
		n := first + i
		if n != e.Location.Line {
			fmt.Fprintf(b, "    %4d%s%s\n", n, gray(" │ "), line)
			continue
		}
		fmt.Fprintf(b, "  %s%4d%s%s\n", red("→ "), n, gray(" │ "), line)
		if e.Location.Column > 0 {
			fmt.Fprintf(b, "        %s%s%s\n", gray("│ "), strings.Repeat(" ", e.Location.Column-1), red("^"))
		}
	}
}

func writeIndented(b *strings.Builder, indent string, lines []string) {
	for _, line := range lines {
		b.WriteString(indent)
		b.WriteString(line)
		b.WriteString("\n")
	}
}

// FormatCompact returns the error on one line, prefixed with its location:
//
//	bindings.yaml:10:5: E042: Unknown binding key: field colour not found
func (e *Error) FormatCompact() string {
	if e.Location == nil {
		return e.Error()
	}
	return e.Location.String() + ": " + e.Error()
}

// Compact renders any error on one line. When err carries a located coded
// error, the location leads.
func Compact(err error) string {
	var ce *Error
	if !As(err, &ce) || ce.Location == nil {
		return err.Error()
	}
	if err == error(ce) {
		return ce.FormatCompact()
	}
	return ce.Location.String() + ": " + err.Error()
}

type jsonLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

type jsonError struct {
	Code       string        `json:"code,omitempty"`
	Category   Category      `json:"category"`
	Message    string        `json:"message"`
	Detail     string        `json:"detail,omitempty"`
	Cause      string        `json:"cause,omitempty"`
	Location   *jsonLocation `json:"location,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	DocURL     string        `json:"docUrl,omitempty"`
}

// FormatJSON returns the error as a JSON object.
func (e *Error) FormatJSON() string {
	out := jsonError{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		Suggestion: e.Suggestion,
		DocURL:     e.DocURL,
	}
	if e.Wrapped != nil {
		out.Cause = e.Wrapped.Error()
	}
	if e.Location != nil {
		out.Location = &jsonLocation{File: e.Location.File, Line: e.Location.Line, Column: e.Location.Column}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf(`{"message":%q}`, e.Error())
	}
	return string(data)
}

// wrapText wraps text at word boundaries to the given width.
func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= width {
		return []string{text}
	}

	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len() > 0 && current.Len()+len(word)+1 > width {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}

// Fprint writes err to w. Coded errors get the full Format output, with
// any wrap context added by callers shown above it.
func Fprint(w io.Writer, err error) {
	var ce *Error
	if !As(err, &ce) {
		fmt.Fprintf(w, "\n%s %s\n\n", red(bold("ERROR:")), err.Error())
		return
	}
	if msg := err.Error(); msg != ce.Error() {
		fmt.Fprintf(w, "\n%s\n", gray(msg))
	}
	fmt.Fprint(w, ce.Format())
}

// FprintJSON writes err to w as one JSON object. Errors without a code
// keep their message; any wrap context stays in it.
func FprintJSON(w io.Writer, err error) {
	var ce *Error
	if !As(err, &ce) {
		ce = &Error{Message: err.Error()}
	} else if msg := err.Error(); msg != ce.Error() {
		c := *ce
		c.Message = strings.TrimSuffix(msg, ce.Error()) + ce.Message
		ce = &c
	}
	fmt.Fprintln(w, ce.FormatJSON())
}
