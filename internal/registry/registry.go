// Package registry maps command names to typed handlers.
//
// Handlers are registered with a parameter struct type. The struct is decoded
// strictly from the request params when the command is dispatched, and its
// fields are listed as the command's parameter schema at registration.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

var (
	ErrDuplicate     = errors.New("command already registered")
	ErrInvalidParams = errors.New("invalid params")
)

// HandlerFunc is the untyped form every registered handler is reduced to.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Param describes one field of a command's parameter struct.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// Spec is the registration-time metadata of a command.
type Spec struct {
	Name        string
	Category    string
	Description string
	// Aliases are legacy names that resolve to Name.
	Aliases []string
}

// Command is a registered command.
type Command struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	Params      []Param  `json:"params"`

	invoke HandlerFunc
}

// Invoke decodes raw params and runs the handler.
func (c *Command) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	return c.invoke(ctx, raw)
}

type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
	aliases  map[string]string
}

func New() *Registry {
	return &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
	}
}

// Register adds a handler whose params decode into P. P must be a struct.
func Register[P any](r *Registry, spec Spec, fn func(ctx context.Context, p P) (any, error)) error {
	if spec.Name == "" {
		return fmt.Errorf("command name is empty")
	}
	if fn == nil {
		return fmt.Errorf("command %q: handler is nil", spec.Name)
	}
	var zero P
	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() != reflect.Struct {
		return fmt.Errorf("command %q: params type must be a struct, got %v", spec.Name, typ)
	}
	params := describe(typ)

	var required []string
	for _, p := range params {
		if p.Required {
			required = append(required, p.Name)
		}
	}

	cmd := &Command{
		Name:        spec.Name,
		Category:    spec.Category,
		Description: spec.Description,
		Aliases:     append([]string(nil), spec.Aliases...),
		Params:      params,
		invoke: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p P
			if err := decodeStrict(raw, &p, required); err != nil {
				return nil, fmt.Errorf("%s: %w", spec.Name, err)
			}
			return fn(ctx, p)
		},
	}
	if cmd.Category == "" {
		cmd.Category = "general"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[spec.Name]; exists {
		return fmt.Errorf("%q: %w", spec.Name, ErrDuplicate)
	}
	if _, exists := r.aliases[spec.Name]; exists {
		return fmt.Errorf("%q is an alias: %w", spec.Name, ErrDuplicate)
	}
	for _, a := range spec.Aliases {
		if _, exists := r.commands[a]; exists {
			return fmt.Errorf("alias %q: %w", a, ErrDuplicate)
		}
		if _, exists := r.aliases[a]; exists {
			return fmt.Errorf("alias %q: %w", a, ErrDuplicate)
		}
	}
	r.commands[spec.Name] = cmd
	for _, a := range spec.Aliases {
		r.aliases[a] = spec.Name
	}
	return nil
}

// MustRegister is Register for static command tables; it panics on error.
func MustRegister[P any](r *Registry, spec Spec, fn func(ctx context.Context, p P) (any, error)) {
	if err := Register(r, spec, fn); err != nil {
		panic(err)
	}
}

// Resolve maps a name or alias to the canonical command name.
func (r *Registry) Resolve(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.commands[name]; ok {
		return name, true
	}
	if canonical, ok := r.aliases[name]; ok {
		return canonical, true
	}
	return "", false
}

// Lookup returns the command for a name or alias.
func (r *Registry) Lookup(name string) (*Command, bool) {
	canonical, ok := r.Resolve(name)
	if !ok {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[canonical]
	return c, ok
}

// List returns every command sorted by category then name.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ByCategory groups command names by category.
func (r *Registry) ByCategory() map[string][]string {
	out := make(map[string][]string)
	for _, c := range r.List() {
		out[c.Category] = append(out[c.Category], c.Name)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

func decodeStrict(raw json.RawMessage, dst any, required []string) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	if len(required) > 0 {
		var present map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &present); err != nil {
			return fmt.Errorf("%w: params must be an object: %v", ErrInvalidParams, err)
		}
		var missing []string
		for _, name := range required {
			if v, ok := present[name]; !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: missing required parameter(s): %s", ErrInvalidParams, strings.Join(missing, ", "))
		}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

func describe(typ reflect.Type) []Param {
	params := make([]Param, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			head, _, _ := strings.Cut(tag, ",")
			if head == "-" {
				continue
			}
			if head != "" {
				name = head
			}
		}
		params = append(params, Param{
			Name:        name,
			Type:        typeName(f.Type),
			Required:    f.Tag.Get("cmd") == "required",
			Description: f.Tag.Get("desc"),
		})
	}
	return params
}

func typeName(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		return typeName(t.Elem())
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map:
		return "object"
	case reflect.Struct:
		// Vectors and rotators travel as fixed-size arrays.
		switch t.Name() {
		case "Vec3", "Rotator":
			return "array"
		}
		return "object"
	case reflect.Interface:
		return "any"
	}
	return t.Kind().String()
}
