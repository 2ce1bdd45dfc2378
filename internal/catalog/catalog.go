// Package catalog is the closed registry of permitted image operations.
// Every operation a caller can request is described here: its parameter
// schema, the argv tokens its renderer emits, and whether it runs on the
// CLI engine or the inference collaborator. The catalog is built once at
// process start and never mutated, so it is safe to share without locking.
package catalog

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Request is a single operation as submitted by a caller. Params are raw
// JSON values and must pass Validate before anything is rendered from them.
type Request struct {
	Kind   string         `json:"kind"`
	Params map[string]any `json:"params,omitempty"`
}

// ParamType describes the JSON type expected for a parameter.
type ParamType string

const (
	TypeInt    ParamType = "int"
	TypeFloat  ParamType = "float"
	TypeString ParamType = "string"
	TypeEnum   ParamType = "enum"
	TypeBool   ParamType = "bool"
)

// ParamSpec is the schema for one named parameter of an operation.
type ParamSpec struct {
	Type     ParamType
	Required bool
	Default  any
	Min      float64
	Max      float64
	Enum     []string  // allowed values for TypeEnum
	OneOf    []float64 // allowed values for numeric choice params
	MaxLen   int       // maximum length for TypeString
}

// Params holds validated parameter values. Accessors are total for any
// value that passed schema validation.
type Params map[string]any

// Int returns the named parameter as an int.
func (p Params) Int(name string) int {
	return int(p[name].(float64))
}

// Float returns the named parameter as a float64.
func (p Params) Float(name string) float64 {
	return p[name].(float64)
}

// Str returns the named parameter as a string.
func (p Params) Str(name string) string {
	return p[name].(string)
}

// Bool returns the named parameter as a bool.
func (p Params) Bool(name string) bool {
	return p[name].(bool)
}

// Has reports whether the parameter was provided or defaulted.
func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Spec describes one registered operation kind.
type Spec struct {
	Kind    string
	Summary string
	Params  map[string]ParamSpec

	// Flags lists every argv flag token the renderer can emit. The raw-text
	// flag allowlist is derived from the union of these, so structured and
	// terminal mode can never drift apart.
	Flags []string

	// RequiresInference marks operations dispatched to the AI collaborator
	// instead of the CLI engine.
	RequiresInference bool

	// Check validates cross-field constraints after per-field validation.
	// Optional.
	Check func(p Params) error

	// Render emits the argv fragment for validated params. Renderers are
	// pure and must not fail for any value that passed Validate. Every
	// parameter value is its own argv element, never concatenated into a
	// flag token.
	Render func(p Params) []string
}

// ValidationError reports a bad or unknown operation parameter. It is
// user-correctable and safe to surface verbatim.
type ValidationError struct {
	Kind   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("operation %q: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("operation %q: parameter %q: %s", e.Kind, e.Field, e.Reason)
}

// DisallowedOperationError reports an unknown operation kind or a raw-mode
// token outside the allowlist.
type DisallowedOperationError struct {
	Token string
}

func (e *DisallowedOperationError) Error() string {
	return fmt.Sprintf("operation or flag not allowed: %q", e.Token)
}

// Catalog holds the registered operation specs and the derived flag
// allowlist. Read-only after New.
type Catalog struct {
	specs map[string]*Spec
	allow map[string]struct{}
}

// New builds the catalog from the built-in spec set.
func New() *Catalog {
	c := &Catalog{
		specs: make(map[string]*Spec),
		allow: make(map[string]struct{}),
	}
	for _, s := range builtinSpecs() {
		c.specs[s.Kind] = s
		for _, f := range s.Flags {
			c.allow[f] = struct{}{}
		}
	}
	return c
}

// Lookup returns the spec for a kind, or a DisallowedOperationError.
func (c *Catalog) Lookup(kind string) (*Spec, error) {
	s, ok := c.specs[kind]
	if !ok {
		return nil, &DisallowedOperationError{Token: kind}
	}
	return s, nil
}

// List returns all specs ordered by kind.
func (c *Catalog) List() []*Spec {
	out := make([]*Spec, 0, len(c.specs))
	for _, s := range c.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// FlagAllowed reports whether a flag token may appear in raw terminal input.
func (c *Catalog) FlagAllowed(flag string) bool {
	_, ok := c.allow[flag]
	return ok
}

// IsFlagToken reports whether an argv token is a flag rather than a value.
// Flags start with "-" (or "+" for engine toggles like +repage) followed by
// a letter; numeric tokens such as "-90" or "+22+22" are values.
func IsFlagToken(tok string) bool {
	if len(tok) < 2 {
		return false
	}
	if tok[0] != '-' && tok[0] != '+' {
		return false
	}
	c := tok[1]
	return c == '-' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Validate checks a request against its kind's schema and returns the
// resolved parameter set (defaults applied). Extra fields are rejected, not
// ignored; numeric values outside their declared range are rejected, not
// clamped.
func (c *Catalog) Validate(req Request) (*Spec, Params, error) {
	spec, err := c.Lookup(req.Kind)
	if err != nil {
		return nil, nil, err
	}

	for name := range req.Params {
		if _, ok := spec.Params[name]; !ok {
			return nil, nil, &ValidationError{Kind: req.Kind, Field: name, Reason: "unknown parameter"}
		}
	}

	out := make(Params, len(spec.Params))
	for name, ps := range spec.Params {
		raw, provided := req.Params[name]
		if !provided {
			if ps.Required {
				return nil, nil, &ValidationError{Kind: req.Kind, Field: name, Reason: "required parameter missing"}
			}
			if ps.Default != nil {
				out[name] = normalizeDefault(ps.Default)
			}
			continue
		}

		val, err := checkValue(req.Kind, name, ps, raw)
		if err != nil {
			return nil, nil, err
		}
		out[name] = val
	}

	if spec.Check != nil {
		if err := spec.Check(out); err != nil {
			return nil, nil, &ValidationError{Kind: req.Kind, Reason: err.Error()}
		}
	}

	return spec, out, nil
}

func normalizeDefault(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64, string, bool:
		return n
	}
	return v
}

func checkValue(kind, field string, ps ParamSpec, raw any) (any, error) {
	switch ps.Type {
	case TypeInt, TypeFloat:
		n, ok := raw.(float64)
		if !ok {
			return nil, &ValidationError{Kind: kind, Field: field, Reason: "expected a number"}
		}
		if ps.Type == TypeInt && n != math.Trunc(n) {
			return nil, &ValidationError{Kind: kind, Field: field, Reason: "expected an integer"}
		}
		if len(ps.OneOf) > 0 {
			if !containsFloat(ps.OneOf, n) {
				return nil, &ValidationError{Kind: kind, Field: field, Reason: fmt.Sprintf("must be one of %v", ps.OneOf)}
			}
			return n, nil
		}
		if n < ps.Min || n > ps.Max {
			return nil, &ValidationError{Kind: kind, Field: field,
				Reason: fmt.Sprintf("out of range [%g, %g]", ps.Min, ps.Max)}
		}
		return n, nil

	case TypeEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, &ValidationError{Kind: kind, Field: field, Reason: "expected a string"}
		}
		for _, e := range ps.Enum {
			if s == e {
				return s, nil
			}
		}
		return nil, &ValidationError{Kind: kind, Field: field,
			Reason: fmt.Sprintf("must be one of %s", strings.Join(ps.Enum, ", "))}

	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, &ValidationError{Kind: kind, Field: field, Reason: "expected a string"}
		}
		if ps.MaxLen > 0 && len(s) > ps.MaxLen {
			return nil, &ValidationError{Kind: kind, Field: field,
				Reason: fmt.Sprintf("longer than %d characters", ps.MaxLen)}
		}
		if err := checkTextSafe(s); err != nil {
			return nil, &ValidationError{Kind: kind, Field: field, Reason: err.Error()}
		}
		return s, nil

	case TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, &ValidationError{Kind: kind, Field: field, Reason: "expected a boolean"}
		}
		return b, nil
	}
	return nil, &ValidationError{Kind: kind, Field: field, Reason: "unsupported parameter type"}
}

func containsFloat(vals []float64, n float64) bool {
	for _, v := range vals {
		if v == n {
			return true
		}
	}
	return false
}

// checkTextSafe rejects string values that could smuggle shell or engine
// syntax through an otherwise safe argv element. Rendering stays total
// because the check happens at validation time.
func checkTextSafe(s string) error {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("control characters not allowed")
		}
		switch r {
		case '`', '$', '\\', ';', '|', '&':
			return fmt.Errorf("character %q not allowed", r)
		}
	}
	if strings.Contains(s, "@") || strings.Contains(s, "..") || strings.Contains(s, "/") {
		return fmt.Errorf("path-like text not allowed")
	}
	return nil
}
