package variable

import (
	"regexp"
	"strings"
)

// Environment is the flat variable table of one script run. A name set
// anywhere in the script is visible to every later statement.
type Environment struct {
	vars map[string]interface{}
}

// NewEnvironment creates an Environment seeded with a copy of initial.
func NewEnvironment(initial map[string]interface{}) *Environment {
	e := &Environment{vars: make(map[string]interface{}, len(initial))}
	for k, v := range initial {
		e.vars[k] = v
	}
	return e
}

// Get retrieves a variable.
func (e *Environment) Get(name string) (interface{}, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Set assigns a variable, creating it if needed.
func (e *Environment) Set(name string, value interface{}) {
	e.vars[name] = value
}

// Snapshot returns a shallow copy of every variable.
func (e *Environment) Snapshot() map[string]interface{} {
	out := make(map[string]interface{}, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Resolution and interpolation
// ---------------------------------------------------------------------------

var interpPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolve replaces a string argument that names a variable with that
// variable's value. Anything else is returned unchanged.
func (e *Environment) Resolve(v interface{}) interface{} {
	if s, ok := v.(string); ok {
		if val, found := e.vars[s]; found {
			return val
		}
	}
	return v
}

// Interpolate substitutes ${name} references in s. The text between the
// braces is the exact variable name, so ${ name } only matches a variable
// whose name includes the spaces. Unknown names are left as written and nil
// values become the empty string.
func (e *Environment) Interpolate(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return interpPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-1]
		val, ok := e.vars[name]
		if !ok {
			return m
		}
		return ToString(val)
	})
}

// Expand resolves v and then interpolates it when the result is a string.
func (e *Environment) Expand(v interface{}) interface{} {
	v = e.Resolve(v)
	if s, ok := v.(string); ok {
		return e.Interpolate(s)
	}
	return v
}
