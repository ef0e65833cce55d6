package bind

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/tapas/internal/errors"
)

// Descriptor declares the bindings of one element, addressed by the value
// of its data-tapas-id attribute.
type Descriptor struct {
	ID           string           `yaml:"id" json:"id"`
	Selectors    []SelectorSpec   `yaml:"selectors,omitempty" json:"selectors,omitempty"`
	Text         OneOrMany[Value] `yaml:"text,omitempty" json:"text,omitempty"`
	HTML         OneOrMany[Value] `yaml:"html,omitempty" json:"html,omitempty"`
	Attributes   OneOrMany[Named] `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Classes      OneOrMany[Named] `yaml:"classes,omitempty" json:"classes,omitempty"`
	Events       OneOrMany[Event] `yaml:"events,omitempty" json:"events,omitempty"`
	List         *List            `yaml:"list,omitempty" json:"list,omitempty"`
	DefaultState map[string]any   `yaml:"defaultState,omitempty" json:"defaultState,omitempty"`
}

// SelectorSpec subscribes the element to a catalog selector and exposes
// its value under Name. Args are expressions evaluated against the
// element's scope on every store notification.
type SelectorSpec struct {
	Selector string   `yaml:"selector" json:"selector"`
	Name     string   `yaml:"name" json:"name"`
	Args     []string `yaml:"args,omitempty" json:"args,omitempty"`
}

// UnmarshalYAML accepts the argument list under args or selectorArgs,
// as a list or a single expression.
func (s *SelectorSpec) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Selector     string            `yaml:"selector"`
		Name         string            `yaml:"name"`
		Args         OneOrMany[string] `yaml:"args"`
		SelectorArgs OneOrMany[string] `yaml:"selectorArgs"`
	}
	if err := checkKeys(node, &raw, "SelectorSpec"); err != nil {
		return err
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	s.Selector, s.Name = raw.Selector, raw.Name
	s.Args = append([]string(raw.Args), raw.SelectorArgs...)
	return nil
}

// UnmarshalJSON is the JSON counterpart of UnmarshalYAML.
func (s *SelectorSpec) UnmarshalJSON(b []byte) error {
	var raw struct {
		Selector     string            `json:"selector"`
		Name         string            `json:"name"`
		Args         OneOrMany[string] `json:"args"`
		SelectorArgs OneOrMany[string] `json:"selectorArgs"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.Selector, s.Name = raw.Selector, raw.Name
	s.Args = append([]string(raw.Args), raw.SelectorArgs...)
	return nil
}

// Value is a text or html binding.
type Value struct {
	Value     string `yaml:"value" json:"value"`
	Transform string `yaml:"transform,omitempty" json:"transform,omitempty"`
	Target    string `yaml:"target,omitempty" json:"target,omitempty"`
}

// Named is an attribute or class binding.
type Named struct {
	Name      string `yaml:"name" json:"name"`
	Value     string `yaml:"value" json:"value"`
	Transform string `yaml:"transform,omitempty" json:"transform,omitempty"`
	Target    string `yaml:"target,omitempty" json:"target,omitempty"`
}

// Event is a host event listener or a lifecycle hook (init, change,
// remove).
type Event struct {
	Name     string `yaml:"name" json:"name"`
	Value    string `yaml:"value,omitempty" json:"value,omitempty"`
	Callback string `yaml:"callback,omitempty" json:"callback,omitempty"`
	Action   string `yaml:"action,omitempty" json:"action,omitempty"`
	Target   string `yaml:"target,omitempty" json:"target,omitempty"`
}

// List stamps one copy of a template child per item of Value.
type List struct {
	Value          string `yaml:"value" json:"value"`
	ItemName       string `yaml:"itemName,omitempty" json:"itemName,omitempty"`
	ItemKey        string `yaml:"itemKey,omitempty" json:"itemKey,omitempty"`
	IndexName      string `yaml:"indexName,omitempty" json:"indexName,omitempty"`
	TemplateTarget string `yaml:"templateTarget,omitempty" json:"templateTarget,omitempty"`
}

func (l List) withDefaults() List {
	if l.ItemName == "" {
		l.ItemName = "item"
	}
	if l.IndexName == "" {
		l.IndexName = "index"
	}
	if l.TemplateTarget == "" {
		l.TemplateTarget = ":not(script)"
	}
	return l
}

// OneOrMany decodes either a single value or a list of values.
type OneOrMany[T any] []T

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *OneOrMany[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var many []T
		for _, item := range node.Content {
			if err := checkKeys(item, new(T), ""); err != nil {
				return err
			}
		}
		if err := node.Decode(&many); err != nil {
			return err
		}
		*o = many
		return nil
	}
	var one T
	if err := checkKeys(node, &one, ""); err != nil {
		return err
	}
	if err := node.Decode(&one); err != nil {
		return err
	}
	*o = OneOrMany[T]{one}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OneOrMany[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*o = nil
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var many []T
		if err := json.Unmarshal(b, &many); err != nil {
			return err
		}
		*o = many
		return nil
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*o = OneOrMany[T]{one}
	return nil
}

// checkKeys rejects the keys of a mapping node that name no field of the
// struct out points to. Decoding through a custom unmarshaler does not
// inherit the decoder's KnownFields setting, so nested entries need it.
func checkKeys(node *yaml.Node, out any, typeName string) error {
	t := reflect.TypeOf(out).Elem()
	if node.Kind != yaml.MappingNode || t.Kind() != reflect.Struct {
		return nil
	}
	if typeName == "" {
		typeName = t.Name()
	}
	known := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = strings.ToLower(f.Name)
		}
		known[name] = true
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k := node.Content[i]
		if !known[k.Value] {
			return errors.New("E042").
				WithDetailf("field %s not found in %s", k.Value, typeName).
				WithLocation("", k.Line, k.Column)
		}
	}
	return nil
}

var yamlLine = regexp.MustCompile(`line (\d+):`)

// Decode reads a list of descriptors from YAML or JSON. Unknown keys are
// rejected, at any depth.
func Decode(r io.Reader) ([]Descriptor, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var ds []Descriptor
	if err := dec.Decode(&ds); err != nil && err != io.EOF {
		var ce *errors.Error
		if errors.As(err, &ce) {
			return nil, err
		}
		code := "E040"
		if strings.Contains(err.Error(), "not found in type") {
			code = "E042"
		}
		e := errors.New(code).Wrap(err)
		if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
			line, _ := strconv.Atoi(m[1])
			e.Location = &errors.Location{Line: line}
		}
		return nil, e
	}
	for i, d := range ds {
		if d.ID == "" {
			return nil, errors.New("E041").WithDetailf("entry %d", i).
				WithExample("- id: \"1.2\"\n  text: {value: title}")
		}
	}
	return ds, nil
}

// Load reads descriptors from a file.
func Load(path string) ([]Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New("E140").WithDetail(path).Wrap(err)
	}
	defer f.Close()
	ds, err := Decode(f)
	if err != nil {
		var e *errors.Error
		if errors.As(err, &e) {
			switch {
			case e.Location == nil:
				e.Location = &errors.Location{File: path}
			case e.Location.File == "":
				e.WithLocation(path, e.Location.Line, e.Location.Column)
			}
		}
		return nil, err
	}
	return ds, nil
}
