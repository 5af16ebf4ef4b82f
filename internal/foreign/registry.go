package foreign

import (
	"fmt"
	"log/slog"
	"time"

	"hexza/internal/ast"
	"hexza/internal/object"
)

// Registry is the foreign call bridge: the single boundary through which
// native modules are reached. The bridge marshals scalars only; arrays and
// objects do not cross it implicitly — callers convert explicitly. Native
// modules may of course construct runtime values directly, since they live
// on the Go side of the boundary already.

type Registry struct {
	symbols map[string]*object.Builtin
}

func NewRegistry() *Registry {
	return &Registry{symbols: make(map[string]*object.Builtin)}
}

func (r *Registry) Register(name string, fn object.BuiltinFunction) {
	r.symbols[name] = &object.Builtin{Name: name, Fn: fn}
	slog.Debug("foreign symbol registered", slog.String("name", name))
}

// Call invokes a registered symbol. Missing symbols and argument values
// outside the scalar marshalling contract surface as ForeignCallError.
func (r *Registry) Call(name string, pos ast.Pos, args ...object.Object) object.Object {
	sym, ok := r.symbols[name]
	if !ok {
		return object.NewError(object.ForeignCallError, pos, "no foreign symbol `%s`", name)
	}
	for i, arg := range args {
		if !Scalar(arg) {
			return object.NewError(object.ForeignCallError, pos,
				"foreign call `%s`: argument %d is %s; only scalars cross the bridge", name, i+1, object.TypeName(arg))
		}
	}
	return sym.Fn(pos, args...)
}

// Scalar reports whether a value passes the bridge by value.
func Scalar(o object.Object) bool {
	switch o.(type) {
	case *object.Null, *object.Boolean, *object.Integer, *object.Float, *object.String:
		return true
	}
	return false
}

// ToNative converts a scalar runtime value to its Go representation.
func ToNative(o object.Object) (any, bool) {
	switch o := o.(type) {
	case *object.Null:
		return nil, true
	case *object.Boolean:
		return o.Value, true
	case *object.Integer:
		return o.Value, true
	case *object.Float:
		return o.Value, true
	case *object.String:
		return o.Value, true
	}
	return nil, false
}

// FromNative converts a Go value produced by a native module back into a
// runtime value. Unknown types render through fmt as strings.
func FromNative(v any) object.Object {
	if v == nil {
		return object.NIL
	}
	switch x := v.(type) {
	case bool:
		return object.NativeBoolToBooleanObject(x)
	case int:
		return &object.Integer{Value: int64(x)}
	case int64:
		return &object.Integer{Value: x}
	case float64:
		return &object.Float{Value: x}
	case string:
		return &object.String{Value: x}
	case []byte:
		return &object.String{Value: string(x)}
	case time.Time:
		return &object.String{Value: x.Format(time.RFC3339)}
	default:
		return &object.String{Value: fmt.Sprintf("%v", v)}
	}
}
