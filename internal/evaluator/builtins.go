package evaluator

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"hexza/internal/ast"
	"hexza/internal/foreign"
	"hexza/internal/object"
	"hexza/internal/sched"
)

// Builtins returns the builtin function set in a fixed order. The compiler
// assigns global slots from the same order, so both engines see identical
// bindings.
func Builtins(out io.Writer, loop *sched.Loop, reg *foreign.Registry) []*object.Builtin {
	return []*object.Builtin{
		{Name: "print", Fn: builtinPrint(out)},
		{Name: "len", Fn: builtinLen},
		{Name: "range", Fn: builtinRange},
		{Name: "str", Fn: builtinStr},
		{Name: "int", Fn: builtinInt},
		{Name: "float", Fn: builtinFloat},
		{Name: "bool", Fn: builtinBool},
		{Name: "type", Fn: builtinType},
		{Name: "abs", Fn: builtinAbs},
		{Name: "min", Fn: builtinMin},
		{Name: "max", Fn: builtinMax},
		{Name: "sum", Fn: builtinSum},
		{Name: "round", Fn: builtinRound},
		{Name: "sleep", Fn: builtinSleep(loop)},
		{Name: "cancel", Fn: builtinCancel},
		{Name: "native", Fn: builtinNative(reg)},
	}
}

func arityError(name string, want string, got int, pos ast.Pos) *object.ErrorObject {
	return object.NewError(object.ArityError, pos, "`%s` expects %s argument(s), got %d", name, want, got)
}

func builtinPrint(out io.Writer) object.BuiltinFunction {
	return func(pos ast.Pos, args ...object.Object) object.Object {
		parts := make([]string, 0, len(args))
		for _, arg := range args {
			parts = append(parts, arg.Inspect())
		}
		fmt.Fprintln(out, strings.Join(parts, " "))
		return object.NIL
	}
}

func builtinLen(pos ast.Pos, args ...object.Object) object.Object {
	if len(args) != 1 {
		return arityError("len", "1", len(args), pos)
	}
	switch arg := args[0].(type) {
	case *object.String:
		return &object.Integer{Value: int64(len([]rune(arg.Value)))}
	case *object.Array:
		return &object.Integer{Value: int64(len(arg.Elements))}
	case *object.Map:
		return &object.Integer{Value: int64(arg.Len())}
	}
	return object.NewError(object.TypeError, pos, "`len` does not support %s", object.TypeName(args[0]))
}

// builtinRange mirrors range(stop) / range(start, stop[, step]).
func builtinRange(pos ast.Pos, args ...object.Object) object.Object {
	if len(args) < 1 || len(args) > 3 {
		return arityError("range", "1 to 3", len(args), pos)
	}
	bounds := make([]int64, len(args))
	for i, arg := range args {
		n, ok := arg.(*object.Integer)
		if !ok {
			return object.NewError(object.TypeError, pos, "`range` expects int arguments, got %s", object.TypeName(arg))
		}
		bounds[i] = n.Value
	}
	var start, stop, step int64 = 0, 0, 1
	switch len(bounds) {
	case 1:
		stop = bounds[0]
	case 2:
		start, stop = bounds[0], bounds[1]
	case 3:
		start, stop, step = bounds[0], bounds[1], bounds[2]
	}
	if step == 0 {
		return object.NewError(object.TypeError, pos, "`range` step must not be zero")
	}
	result := &object.Array{Elements: []object.Object{}}
	if step > 0 {
		for i := start; i < stop; i += step {
			result.Elements = append(result.Elements, &object.Integer{Value: i})
		}
	} else {
		for i := start; i > stop; i += step {
			result.Elements = append(result.Elements, &object.Integer{Value: i})
		}
	}
	return result
}

func builtinStr(pos ast.Pos, args ...object.Object) object.Object {
	if len(args) != 1 {
		return arityError("str", "1", len(args), pos)
	}
	return &object.String{Value: args[0].Inspect()}
}

func builtinInt(pos ast.Pos, args ...object.Object) object.Object {
	if len(args) != 1 {
		return arityError("int", "1", len(args), pos)
	}
	switch arg := args[0].(type) {
	case *object.Integer:
		return arg
	case *object.Float:
		return &object.Integer{Value: int64(arg.Value)}
	case *object.Boolean:
		if arg.Value {
			return &object.Integer{Value: 1}
		}
		return &object.Integer{Value: 0}
	case *object.String:
		n, err := strconv.ParseInt(strings.TrimSpace(arg.Value), 10, 64)
		if err != nil {
			return object.NewError(object.TypeError, pos, "`int` cannot parse %q", arg.Value)
		}
		return &object.Integer{Value: n}
	}
	return object.NewError(object.TypeError, pos, "`int` does not support %s", object.TypeName(args[0]))
}

func builtinFloat(pos ast.Pos, args ...object.Object) object.Object {
	if len(args) != 1 {
		return arityError("float", "1", len(args), pos)
	}
	switch arg := args[0].(type) {
	case *object.Float:
		return arg
	case *object.Integer:
		return &object.Float{Value: float64(arg.Value)}
	case *object.Boolean:
		if arg.Value {
			return &object.Float{Value: 1}
		}
		return &object.Float{Value: 0}
	case *object.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(arg.Value), 64)
		if err != nil {
			return object.NewError(object.TypeError, pos, "`float` cannot parse %q", arg.Value)
		}
		return &object.Float{Value: f}
	}
	return object.NewError(object.TypeError, pos, "`float` does not support %s", object.TypeName(args[0]))
}

func builtinBool(pos ast.Pos, args ...object.Object) object.Object {
	if len(args) != 1 {
		return arityError("bool", "1", len(args), pos)
	}
	return object.NativeBoolToBooleanObject(object.Truthy(args[0]))
}

func builtinType(pos ast.Pos, args ...object.Object) object.Object {
	if len(args) != 1 {
		return arityError("type", "1", len(args), pos)
	}
	return &object.String{Value: object.TypeName(args[0])}
}

func builtinAbs(pos ast.Pos, args ...object.Object) object.Object {
	if len(args) != 1 {
		return arityError("abs", "1", len(args), pos)
	}
	switch arg := args[0].(type) {
	case *object.Integer:
		if arg.Value < 0 {
			return &object.Integer{Value: -arg.Value}
		}
		return arg
	case *object.Float:
		return &object.Float{Value: math.Abs(arg.Value)}
	}
	return object.NewError(object.TypeError, pos, "`abs` expects a number, got %s", object.TypeName(args[0]))
}

// pickExtreme serves min and max: variadic numerics, or one array of them.
func pickExtreme(name string, wantLess bool, pos ast.Pos, args []object.Object) object.Object {
	items := args
	if len(args) == 1 {
		if arr, ok := args[0].(*object.Array); ok {
			items = arr.Elements
		}
	}
	if len(items) == 0 {
		return arityError(name, "at least 1", 0, pos)
	}
	best := items[0]
	bestVal, ok := numericValue(best)
	if !ok {
		return object.NewError(object.TypeError, pos, "`%s` expects numbers, got %s", name, object.TypeName(best))
	}
	for _, item := range items[1:] {
		v, ok := numericValue(item)
		if !ok {
			return object.NewError(object.TypeError, pos, "`%s` expects numbers, got %s", name, object.TypeName(item))
		}
		if (wantLess && v < bestVal) || (!wantLess && v > bestVal) {
			best, bestVal = item, v
		}
	}
	return best
}

func numericValue(o object.Object) (float64, bool) {
	switch o := o.(type) {
	case *object.Integer:
		return float64(o.Value), true
	case *object.Float:
		return o.Value, true
	}
	return 0, false
}

func builtinMin(pos ast.Pos, args ...object.Object) object.Object {
	return pickExtreme("min", true, pos, args)
}

func builtinMax(pos ast.Pos, args ...object.Object) object.Object {
	return pickExtreme("max", false, pos, args)
}

func builtinSum(pos ast.Pos, args ...object.Object) object.Object {
	if len(args) != 1 {
		return arityError("sum", "1", len(args), pos)
	}
	arr, ok := args[0].(*object.Array)
	if !ok {
		return object.NewError(object.TypeError, pos, "`sum` expects an array, got %s", object.TypeName(args[0]))
	}
	var intSum int64
	var floatSum float64
	allInts := true
	for _, el := range arr.Elements {
		switch el := el.(type) {
		case *object.Integer:
			intSum += el.Value
			floatSum += float64(el.Value)
		case *object.Float:
			allInts = false
			floatSum += el.Value
		default:
			return object.NewError(object.TypeError, pos, "`sum` expects numbers, got %s", object.TypeName(el))
		}
	}
	if allInts {
		return &object.Integer{Value: intSum}
	}
	return &object.Float{Value: floatSum}
}

func builtinRound(pos ast.Pos, args ...object.Object) object.Object {
	if len(args) < 1 || len(args) > 2 {
		return arityError("round", "1 or 2", len(args), pos)
	}
	value, ok := numericValue(args[0])
	if !ok {
		return object.NewError(object.TypeError, pos, "`round` expects a number, got %s", object.TypeName(args[0]))
	}
	if len(args) == 1 {
		return &object.Integer{Value: int64(math.Round(value))}
	}
	digits, ok := args[1].(*object.Integer)
	if !ok {
		return object.NewError(object.TypeError, pos, "`round` digits must be an int, got %s", object.TypeName(args[1]))
	}
	scale := math.Pow(10, float64(digits.Value))
	return &object.Float{Value: math.Round(value*scale) / scale}
}

// builtinSleep returns a task resolving after the given number of seconds.
func builtinSleep(loop *sched.Loop) object.BuiltinFunction {
	return func(pos ast.Pos, args ...object.Object) object.Object {
		if len(args) != 1 {
			return arityError("sleep", "1", len(args), pos)
		}
		seconds, ok := numericValue(args[0])
		if !ok || seconds < 0 {
			return object.NewError(object.TypeError, pos, "`sleep` expects a non-negative number of seconds")
		}
		return loop.NewTimer(time.Duration(seconds * float64(time.Second)))
	}
}

func builtinCancel(pos ast.Pos, args ...object.Object) object.Object {
	if len(args) != 1 {
		return arityError("cancel", "1", len(args), pos)
	}
	task, ok := args[0].(*sched.Task)
	if !ok {
		return object.NewError(object.TypeError, pos, "`cancel` expects a task, got %s", object.TypeName(args[0]))
	}
	return object.NativeBoolToBooleanObject(task.Cancel(pos))
}

// builtinNative is the script-side door into the foreign call bridge.
func builtinNative(reg *foreign.Registry) object.BuiltinFunction {
	return func(pos ast.Pos, args ...object.Object) object.Object {
		if len(args) < 1 {
			return arityError("native", "at least 1", len(args), pos)
		}
		symbol, ok := args[0].(*object.String)
		if !ok {
			return object.NewError(object.TypeError, pos, "`native` symbol must be a string, got %s", object.TypeName(args[0]))
		}
		return reg.Call(symbol.Value, pos, args[1:]...)
	}
}
