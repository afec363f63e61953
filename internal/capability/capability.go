package capability

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ParamType is the JSON type of a parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// Valid reports whether t is a known parameter type.
func (t ParamType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean:
		return true
	}
	return false
}

// readOnlyPrefixes mark functions that are idempotent by naming convention.
var readOnlyPrefixes = []string{"get_", "list_", "describe_", "show_", "watch_"}

// Param describes one function parameter.
type Param struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any       `json:"default,omitempty" yaml:"default,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	// Minimum bounds numeric parameters from below when set.
	Minimum *float64 `json:"minimum,omitempty" yaml:"minimum,omitempty"`
}

// Ref identifies a capability.
type Ref struct {
	AgentID  string `json:"agent"`
	Function string `json:"function"`
}

func (r Ref) String() string {
	return r.AgentID + "/" + r.Function
}

// Less orders references lexically by agent, then function.
func (r Ref) Less(o Ref) bool {
	if r.AgentID != o.AgentID {
		return r.AgentID < o.AgentID
	}
	return r.Function < o.Function
}

// Capability is one invocable function exposed by an agent.
type Capability struct {
	AgentID     string        `json:"agent"`
	Function    string        `json:"function"`
	Description string        `json:"description"`
	Params      []Param       `json:"params,omitempty"`
	Keywords    []string      `json:"keywords,omitempty"`
	Idempotent  bool          `json:"idempotent,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	// ClusterScoped is true for functions that run against a target cluster.
	ClusterScoped bool `json:"cluster_scoped,omitempty"`
}

// Ref returns the identity of c.
func (c Capability) Ref() Ref {
	return Ref{AgentID: c.AgentID, Function: c.Function}
}

// Param returns the named parameter.
func (c Capability) Param(name string) (Param, bool) {
	for _, p := range c.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// RequiredParams returns the names of required parameters in declaration order.
func (c Capability) RequiredParams() []string {
	var names []string
	for _, p := range c.Params {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// IsIdempotent reports whether the function is safe to retry, either by the
// explicit flag or by its read-style name.
func (c Capability) IsIdempotent() bool {
	if c.Idempotent {
		return true
	}
	for _, prefix := range readOnlyPrefixes {
		if strings.HasPrefix(c.Function, prefix) {
			return true
		}
	}
	return false
}

// Validate checks that c can be registered.
func (c Capability) Validate() error {
	if c.AgentID == "" || c.Function == "" {
		return fmt.Errorf("%w: agent and function are required", ErrInvalidCapability)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: %s: negative timeout", ErrInvalidCapability, c.Ref())
	}
	seen := make(map[string]struct{}, len(c.Params))
	for _, p := range c.Params {
		if p.Name == "" {
			return fmt.Errorf("%w: %s: parameter without a name", ErrInvalidCapability, c.Ref())
		}
		if !p.Type.Valid() {
			return fmt.Errorf("%w: %s: parameter %q has unknown type %q", ErrInvalidCapability, c.Ref(), p.Name, p.Type)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: %s: parameter %q declared twice", ErrInvalidCapability, c.Ref(), p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// clone returns a deep copy so callers can never mutate registry state.
func (c Capability) clone() Capability {
	out := c
	out.Params = slices.Clone(c.Params)
	for i, p := range out.Params {
		if p.Minimum != nil {
			m := *p.Minimum
			out.Params[i].Minimum = &m
		}
	}
	out.Keywords = slices.Clone(c.Keywords)
	return out
}

// Float returns a pointer to f, for Param.Minimum literals.
func Float(f float64) *float64 {
	return &f
}
