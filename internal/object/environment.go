package object

import (
	"errors"
	"fmt"
	"log/slog"
)

// Sentinel errors the engines map onto ErrorObject kinds.
var (
	ErrImmutable  = errors.New("immutable binding")
	ErrUnresolved = errors.New("unresolved name")
)

type Binding struct {
	Value     Object
	IsMutable bool
}

// Environment is one scope in the lexical chain. A child holds the only
// strong reference to its parent, so a captured scope stays alive exactly
// as long as some Function or inner scope can still reach it.
type Environment struct {
	Bindings map[string]*Binding
	Outer    *Environment
}

func NewEnvironment() *Environment {
	return &Environment{Bindings: make(map[string]*Binding)}
}

func NewEnclosedEnvironment(outer *Environment) *Environment {
	env := NewEnvironment()
	env.Outer = outer
	return env
}

func (e *Environment) GetBinding(name string) (*Binding, bool) {
	for env := e; env != nil; env = env.Outer {
		if binding, ok := env.Bindings[name]; ok {
			return binding, true
		}
	}
	return nil, false
}

func (e *Environment) Get(name string) (Object, bool) {
	binding, ok := e.GetBinding(name)
	if !ok {
		return nil, false
	}
	return binding.Value, true
}

// Define introduces a binding in this scope, shadowing any outer binding of
// the same name. Redefining an immutable name in the same scope fails.
func (e *Environment) Define(name string, val Object, mutable bool) (Object, error) {
	if existing, exists := e.Bindings[name]; exists && !existing.IsMutable {
		return nil, fmt.Errorf("%w: const `%s` is already defined in this scope", ErrImmutable, name)
	}
	e.Bindings[name] = &Binding{Value: val, IsMutable: mutable}
	slog.Debug("binding defined",
		slog.String("name", name),
		slog.Bool("mutable", mutable),
		slog.String("type", string(val.Type())))
	return val, nil
}

// Assign walks the chain to the nearest existing binding.
func (e *Environment) Assign(name string, val Object) (Object, error) {
	for env := e; env != nil; env = env.Outer {
		if binding, ok := env.Bindings[name]; ok {
			if !binding.IsMutable {
				return nil, fmt.Errorf("%w: cannot assign to const `%s`", ErrImmutable, name)
			}
			binding.Value = val
			return val, nil
		}
	}
	return nil, fmt.Errorf("%w: `%s` is not defined in any accessible scope", ErrUnresolved, name)
}
