package object

import (
	"bytes"
	"strconv"
	"strings"

	"hexza/internal/ast"
	"hexza/internal/code"
)

type ObjectType string

const (
	NULL_OBJ    = "NULL"
	BOOLEAN_OBJ = "BOOLEAN"
	INTEGER_OBJ = "INTEGER"
	FLOAT_OBJ   = "FLOAT"
	STRING_OBJ  = "STRING"
	ARRAY_OBJ   = "ARRAY"
	MAP_OBJ     = "MAP"

	FUNCTION_OBJ          = "FUNCTION"
	BUILTIN_OBJ           = "BUILTIN"
	COMPILED_FUNCTION_OBJ = "COMPILED_FUNCTION"
	CLOSURE_OBJ           = "CLOSURE"
	CELL_OBJ              = "CELL"

	CLASS_OBJ        = "CLASS"
	INSTANCE_OBJ     = "INSTANCE"
	BOUND_METHOD_OBJ = "BOUND_METHOD"
	NATIVE_OBJ       = "NATIVE_HANDLE"
	TASK_OBJ         = "TASK"

	ERROR_OBJ        = "ERROR"
	RETURN_VALUE_OBJ = "RETURN_VALUE"
	BREAK_OBJ        = "BREAK"
	CONTINUE_OBJ     = "CONTINUE"
	ITERATOR_OBJ     = "ITERATOR"
)

// Object is implemented by every runtime value.
type Object interface {
	Type() ObjectType
	Inspect() string
}

type Null struct{}

func (n *Null) Type() ObjectType { return NULL_OBJ }
func (n *Null) Inspect() string  { return "null" }

type Boolean struct {
	Value bool
}

func (b *Boolean) Type() ObjectType { return BOOLEAN_OBJ }
func (b *Boolean) Inspect() string  { return strconv.FormatBool(b.Value) }

type Integer struct {
	Value int64
}

func (i *Integer) Type() ObjectType { return INTEGER_OBJ }
func (i *Integer) Inspect() string  { return strconv.FormatInt(i.Value, 10) }

type Float struct {
	Value float64
}

func (f *Float) Type() ObjectType { return FLOAT_OBJ }
func (f *Float) Inspect() string  { return strconv.FormatFloat(f.Value, 'g', -1, 64) }

type String struct {
	Value string
}

func (s *String) Type() ObjectType { return STRING_OBJ }
func (s *String) Inspect() string  { return s.Value }

type Array struct {
	Elements []Object
}

func (a *Array) Type() ObjectType { return ARRAY_OBJ }
func (a *Array) Inspect() string {
	elems := make([]string, 0, len(a.Elements))
	for _, e := range a.Elements {
		elems = append(elems, e.Inspect())
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

// Map is the language-level object value: string keys, insertion order
// preserved for iteration and rendering.
type Map struct {
	keys  []string
	pairs map[string]Object
}

func NewMap() *Map {
	return &Map{pairs: make(map[string]Object)}
}

func (m *Map) Type() ObjectType { return MAP_OBJ }
func (m *Map) Inspect() string {
	pairs := make([]string, 0, len(m.keys))
	for _, k := range m.keys {
		pairs = append(pairs, k+": "+m.pairs[k].Inspect())
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

func (m *Map) Get(key string) (Object, bool) {
	v, ok := m.pairs[key]
	return v, ok
}

func (m *Map) Set(key string, val Object) {
	if _, exists := m.pairs[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.pairs[key] = val
}

func (m *Map) Delete(key string) bool {
	if _, exists := m.pairs[key]; !exists {
		return false
	}
	delete(m.pairs, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the key list in insertion order. Callers must not mutate it.
func (m *Map) Keys() []string { return m.keys }

func (m *Map) Len() int { return len(m.keys) }

// Function is a tree-walk function value carrying its defining scope.
type Function struct {
	Name       string
	Parameters []*ast.Parameter
	Body       *ast.BlockStatement
	Env        *Environment
	IsAsync    bool
}

func (f *Function) Type() ObjectType { return FUNCTION_OBJ }
func (f *Function) Inspect() string {
	if f.Name != "" {
		return "<func " + f.Name + ">"
	}
	return "<func>"
}

// BuiltinFunction receives the call-site position so failures carry a usable
// location.
type BuiltinFunction func(pos ast.Pos, args ...Object) Object

type Builtin struct {
	Name string
	Fn   BuiltinFunction
}

func (b *Builtin) Type() ObjectType { return BUILTIN_OBJ }
func (b *Builtin) Inspect() string  { return "<builtin " + b.Name + ">" }

// PosEntry maps an instruction offset to the source position active from
// that offset onward.
type PosEntry struct {
	Offset int
	Pos    ast.Pos
}

// CompiledFunction is the bytecode form of a function. Each one carries its
// own constant pool; constants may themselves be CompiledFunctions.
type CompiledFunction struct {
	Name         string
	Instructions code.Instructions
	Constants    []Object
	Positions    []PosEntry
	NumLocals    int
	NumParams    int // includes the variadic slot when Variadic is set
	Required     int // parameters without defaults, variadic excluded
	Variadic     bool
	IsAsync      bool
	IsMethod     bool // local slot 0 is the receiver
	Pos          ast.Pos
}

// PosAt returns the source position for an instruction offset.
func (cf *CompiledFunction) PosAt(offset int) ast.Pos {
	pos := cf.Pos
	for _, entry := range cf.Positions {
		if entry.Offset > offset {
			break
		}
		pos = entry.Pos
	}
	return pos
}

func (cf *CompiledFunction) Type() ObjectType { return COMPILED_FUNCTION_OBJ }
func (cf *CompiledFunction) Inspect() string {
	if cf.Name != "" {
		return "<func " + cf.Name + ">"
	}
	return "<func>"
}

// Cell is a shared storage slot for a variable captured by one or more
// closures. Loads and stores go through the pointer so every capturer and
// the declaring frame observe the same value.
type Cell struct {
	Ref *Object
}

func NewCell(ref *Object) *Cell { return &Cell{Ref: ref} }

func (c *Cell) Type() ObjectType { return CELL_OBJ }
func (c *Cell) Inspect() string {
	if c.Ref == nil || *c.Ref == nil {
		return "<cell>"
	}
	return "<cell " + (*c.Ref).Inspect() + ">"
}

type Closure struct {
	Fn    *CompiledFunction
	Free  []*Cell
	Owner *Class // set when the closure is a method
}

func (cl *Closure) Type() ObjectType { return CLOSURE_OBJ }
func (cl *Closure) Inspect() string  { return cl.Fn.Inspect() }

// Class holds a method table and an optional single base link. Method values
// are *Function under the evaluator and *Closure under the VM.
type Class struct {
	Name    string
	Base    *Class
	Methods map[string]Object
}

func (c *Class) Type() ObjectType { return CLASS_OBJ }
func (c *Class) Inspect() string  { return "<class " + c.Name + ">" }

// FindMethod walks the base-class chain.
func (c *Class) FindMethod(name string) (Object, bool) {
	for cls := c; cls != nil; cls = cls.Base {
		if m, ok := cls.Methods[name]; ok {
			return m, true
		}
	}
	return nil, false
}

type Instance struct {
	Class  *Class
	Fields *Map
}

func (i *Instance) Type() ObjectType { return INSTANCE_OBJ }
func (i *Instance) Inspect() string {
	var out bytes.Buffer
	out.WriteString("<" + i.Class.Name)
	if i.Fields.Len() > 0 {
		out.WriteString(" " + i.Fields.Inspect())
	}
	out.WriteString(">")
	return out.String()
}

// BoundMethod pairs a method with its receiver. Owner is the class whose
// table the method was found in, which anchors super resolution.
type BoundMethod struct {
	Receiver *Instance
	Method   Object
	Owner    *Class
}

func (bm *BoundMethod) Type() ObjectType { return BOUND_METHOD_OBJ }
func (bm *BoundMethod) Inspect() string {
	return "<bound " + bm.Owner.Name + "." + methodName(bm.Method) + ">"
}

func methodName(m Object) string {
	switch m := m.(type) {
	case *Function:
		return m.Name
	case *Closure:
		return m.Fn.Name
	}
	return "?"
}

// NativeHandle wraps an opaque foreign resource. Symbols lists the callable
// operations the bridge exported for it.
type NativeHandle struct {
	Kind    string
	Value   any
	Symbols map[string]*Builtin
}

func (nh *NativeHandle) Type() ObjectType { return NATIVE_OBJ }
func (nh *NativeHandle) Inspect() string  { return "<native " + nh.Kind + ">" }

// ReturnValue wraps a value travelling up from a return statement.
type ReturnValue struct {
	Value Object
}

func (rv *ReturnValue) Type() ObjectType { return RETURN_VALUE_OBJ }
func (rv *ReturnValue) Inspect() string  { return rv.Value.Inspect() }

type BreakSignal struct{}

func (bs *BreakSignal) Type() ObjectType { return BREAK_OBJ }
func (bs *BreakSignal) Inspect() string  { return "break" }

type ContinueSignal struct{}

func (cs *ContinueSignal) Type() ObjectType { return CONTINUE_OBJ }
func (cs *ContinueSignal) Inspect() string  { return "continue" }

var (
	NIL      = &Null{}
	TRUE     = &Boolean{Value: true}
	FALSE    = &Boolean{Value: false}
	BREAK    = &BreakSignal{}
	CONTINUE = &ContinueSignal{}
)

func NativeBoolToBooleanObject(input bool) *Boolean {
	if input {
		return TRUE
	}
	return FALSE
}

// TypeName is the user-facing name reported by the type() builtin and used
// in TypeError messages.
func TypeName(o Object) string {
	switch o.(type) {
	case *Null:
		return "null"
	case *Boolean:
		return "bool"
	case *Integer:
		return "int"
	case *Float:
		return "float"
	case *String:
		return "string"
	case *Array:
		return "array"
	case *Map:
		return "object"
	case *Function, *Builtin, *Closure, *CompiledFunction, *BoundMethod:
		return "function"
	case *Class:
		return "class"
	case *Instance:
		return "instance"
	case *NativeHandle:
		return "native"
	case *ErrorObject:
		return "error"
	default:
		if o.Type() == TASK_OBJ {
			return "task"
		}
		return strings.ToLower(string(o.Type()))
	}
}

// IsCallable reports whether a value can appear in call position.
func IsCallable(o Object) bool {
	switch o.(type) {
	case *Function, *Builtin, *Closure, *BoundMethod, *Class:
		return true
	}
	return false
}
