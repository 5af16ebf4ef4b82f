package object

import (
	"math"

	"hexza/internal/ast"
)

// This file is the single source of operator semantics. Both engines call
// into it so they cannot drift apart on coercion, comparison, indexing or
// member access.

// Truthy: null and false are falsy, as are zero numbers, empty strings and
// empty aggregates. Everything else is truthy.
func Truthy(o Object) bool {
	switch o := o.(type) {
	case *Null:
		return false
	case *Boolean:
		return o.Value
	case *Integer:
		return o.Value != 0
	case *Float:
		return o.Value != 0
	case *String:
		return o.Value != ""
	case *Array:
		return len(o.Elements) > 0
	case *Map:
		return o.Len() > 0
	default:
		return true
	}
}

// Equals implements `==`. Numbers compare across Int/Float; arrays and
// objects compare element-wise; everything else compares by identity.
func Equals(a, b Object) bool {
	switch a := a.(type) {
	case *Null:
		_, ok := b.(*Null)
		return ok
	case *Boolean:
		if b, ok := b.(*Boolean); ok {
			return a.Value == b.Value
		}
		return false
	case *Integer:
		switch b := b.(type) {
		case *Integer:
			return a.Value == b.Value
		case *Float:
			return float64(a.Value) == b.Value
		}
		return false
	case *Float:
		switch b := b.(type) {
		case *Integer:
			return a.Value == float64(b.Value)
		case *Float:
			return a.Value == b.Value
		}
		return false
	case *String:
		if b, ok := b.(*String); ok {
			return a.Value == b.Value
		}
		return false
	case *Array:
		b, ok := b.(*Array)
		if !ok || len(a.Elements) != len(b.Elements) {
			return false
		}
		for i := range a.Elements {
			if !Equals(a.Elements[i], b.Elements[i]) {
				return false
			}
		}
		return true
	case *Map:
		b, ok := b.(*Map)
		if !ok || a.Len() != b.Len() {
			return false
		}
		for _, k := range a.Keys() {
			av, _ := a.Get(k)
			bv, ok := b.Get(k)
			if !ok || !Equals(av, bv) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func isNumeric(o Object) bool {
	switch o.(type) {
	case *Integer, *Float:
		return true
	}
	return false
}

func toFloat(o Object) float64 {
	switch o := o.(type) {
	case *Integer:
		return float64(o.Value)
	case *Float:
		return o.Value
	}
	return 0
}

// BinaryOp applies an infix operator and returns the result, or an
// ErrorObject on a type mismatch or zero divisor.
//
// `+` concatenates when the left operand is a string, converting the right
// operand canonically; with a numeric left operand it is strictly numeric
// addition, so 1 + "2" is a TypeError.
func BinaryOp(op string, left, right Object, pos ast.Pos) Object {
	switch op {
	case "+":
		if l, ok := left.(*String); ok {
			return &String{Value: l.Value + right.Inspect()}
		}
		if isNumeric(left) && isNumeric(right) {
			return numericOp(op, left, right, pos)
		}
		return NewError(TypeError, pos, "unsupported operands for `+`: %s and %s",
			TypeName(left), TypeName(right))
	case "-", "*", "/", "%", "**":
		if !isNumeric(left) || !isNumeric(right) {
			return NewError(TypeError, pos, "unsupported operands for `%s`: %s and %s",
				op, TypeName(left), TypeName(right))
		}
		return numericOp(op, left, right, pos)
	case "==":
		return NativeBoolToBooleanObject(Equals(left, right))
	case "!=":
		return NativeBoolToBooleanObject(!Equals(left, right))
	case "<", "<=", ">", ">=":
		return compareOp(op, left, right, pos)
	case "&", "|", "^", "<<", ">>":
		return bitwiseOp(op, left, right, pos)
	default:
		return NewError(TypeError, pos, "unknown operator `%s`", op)
	}
}

func numericOp(op string, left, right Object, pos ast.Pos) Object {
	li, lInt := left.(*Integer)
	ri, rInt := right.(*Integer)

	switch op {
	case "+":
		if lInt && rInt {
			return &Integer{Value: li.Value + ri.Value}
		}
		return &Float{Value: toFloat(left) + toFloat(right)}
	case "-":
		if lInt && rInt {
			return &Integer{Value: li.Value - ri.Value}
		}
		return &Float{Value: toFloat(left) - toFloat(right)}
	case "*":
		if lInt && rInt {
			return &Integer{Value: li.Value * ri.Value}
		}
		return &Float{Value: toFloat(left) * toFloat(right)}
	case "/":
		// Division is true division: the result is always a float.
		divisor := toFloat(right)
		if divisor == 0 {
			return NewError(DivisionByZeroError, pos, "division by zero")
		}
		return &Float{Value: toFloat(left) / divisor}
	case "%":
		if lInt && rInt {
			if ri.Value == 0 {
				return NewError(DivisionByZeroError, pos, "modulo by zero")
			}
			// Result takes the sign of the divisor.
			m := li.Value % ri.Value
			if m != 0 && (m < 0) != (ri.Value < 0) {
				m += ri.Value
			}
			return &Integer{Value: m}
		}
		divisor := toFloat(right)
		if divisor == 0 {
			return NewError(DivisionByZeroError, pos, "modulo by zero")
		}
		m := math.Mod(toFloat(left), divisor)
		if m != 0 && (m < 0) != (divisor < 0) {
			m += divisor
		}
		return &Float{Value: m}
	case "**":
		if lInt && rInt && ri.Value >= 0 {
			result := int64(1)
			base := li.Value
			for exp := ri.Value; exp > 0; exp >>= 1 {
				if exp&1 == 1 {
					result *= base
				}
				base *= base
			}
			return &Integer{Value: result}
		}
		return &Float{Value: math.Pow(toFloat(left), toFloat(right))}
	}
	return NewError(TypeError, pos, "unknown numeric operator `%s`", op)
}

func compareOp(op string, left, right Object, pos ast.Pos) Object {
	if ls, ok := left.(*String); ok {
		if rs, ok := right.(*String); ok {
			switch op {
			case "<":
				return NativeBoolToBooleanObject(ls.Value < rs.Value)
			case "<=":
				return NativeBoolToBooleanObject(ls.Value <= rs.Value)
			case ">":
				return NativeBoolToBooleanObject(ls.Value > rs.Value)
			case ">=":
				return NativeBoolToBooleanObject(ls.Value >= rs.Value)
			}
		}
	}
	if !isNumeric(left) || !isNumeric(right) {
		return NewError(TypeError, pos, "unsupported operands for `%s`: %s and %s",
			op, TypeName(left), TypeName(right))
	}
	l, r := toFloat(left), toFloat(right)
	switch op {
	case "<":
		return NativeBoolToBooleanObject(l < r)
	case "<=":
		return NativeBoolToBooleanObject(l <= r)
	case ">":
		return NativeBoolToBooleanObject(l > r)
	case ">=":
		return NativeBoolToBooleanObject(l >= r)
	}
	return NewError(TypeError, pos, "unknown comparison `%s`", op)
}

func bitwiseOp(op string, left, right Object, pos ast.Pos) Object {
	li, lok := left.(*Integer)
	ri, rok := right.(*Integer)
	if !lok || !rok {
		return NewError(TypeError, pos, "bitwise `%s` requires int operands, got %s and %s",
			op, TypeName(left), TypeName(right))
	}
	switch op {
	case "&":
		return &Integer{Value: li.Value & ri.Value}
	case "|":
		return &Integer{Value: li.Value | ri.Value}
	case "^":
		return &Integer{Value: li.Value ^ ri.Value}
	case "<<":
		if ri.Value < 0 {
			return NewError(TypeError, pos, "negative shift count")
		}
		return &Integer{Value: li.Value << uint64(ri.Value)}
	case ">>":
		if ri.Value < 0 {
			return NewError(TypeError, pos, "negative shift count")
		}
		return &Integer{Value: li.Value >> uint64(ri.Value)}
	}
	return NewError(TypeError, pos, "unknown bitwise operator `%s`", op)
}

// UnaryOp applies a prefix operator.
func UnaryOp(op string, operand Object, pos ast.Pos) Object {
	switch op {
	case "-":
		switch o := operand.(type) {
		case *Integer:
			return &Integer{Value: -o.Value}
		case *Float:
			return &Float{Value: -o.Value}
		}
		return NewError(TypeError, pos, "unsupported operand for unary `-`: %s", TypeName(operand))
	case "!":
		return NativeBoolToBooleanObject(!Truthy(operand))
	case "~":
		if o, ok := operand.(*Integer); ok {
			return &Integer{Value: ^o.Value}
		}
		return NewError(TypeError, pos, "unsupported operand for `~`: %s", TypeName(operand))
	}
	return NewError(TypeError, pos, "unknown operator `%s`", op)
}

// Index implements `left[index]`. Negative array and string indexes count
// from the end.
func Index(left, index Object, pos ast.Pos) Object {
	switch left := left.(type) {
	case *Array:
		idx, ok := index.(*Integer)
		if !ok {
			return NewError(TypeError, pos, "array index must be int, got %s", TypeName(index))
		}
		i := idx.Value
		if i < 0 {
			i += int64(len(left.Elements))
		}
		if i < 0 || i >= int64(len(left.Elements)) {
			return NewError(IndexOutOfRangeError, pos, "index %d out of range for array of length %d",
				idx.Value, len(left.Elements))
		}
		return left.Elements[i]
	case *Map:
		key, ok := index.(*String)
		if !ok {
			return NewError(TypeError, pos, "object key must be string, got %s", TypeName(index))
		}
		value, found := left.Get(key.Value)
		if !found {
			return NewError(KeyNotFoundError, pos, "key `%s` not found", key.Value)
		}
		return value
	case *String:
		idx, ok := index.(*Integer)
		if !ok {
			return NewError(TypeError, pos, "string index must be int, got %s", TypeName(index))
		}
		runes := []rune(left.Value)
		i := idx.Value
		if i < 0 {
			i += int64(len(runes))
		}
		if i < 0 || i >= int64(len(runes)) {
			return NewError(IndexOutOfRangeError, pos, "index %d out of range for string of length %d",
				idx.Value, len(runes))
		}
		return &String{Value: string(runes[i])}
	default:
		return NewError(TypeError, pos, "%s is not indexable", TypeName(left))
	}
}

// SetIndex implements `left[index] = value` and returns the stored value.
func SetIndex(left, index, value Object, pos ast.Pos) Object {
	switch left := left.(type) {
	case *Array:
		idx, ok := index.(*Integer)
		if !ok {
			return NewError(TypeError, pos, "array index must be int, got %s", TypeName(index))
		}
		i := idx.Value
		if i < 0 {
			i += int64(len(left.Elements))
		}
		if i < 0 || i >= int64(len(left.Elements)) {
			return NewError(IndexOutOfRangeError, pos, "index %d out of range for array of length %d",
				idx.Value, len(left.Elements))
		}
		left.Elements[i] = value
		return value
	case *Map:
		key, ok := index.(*String)
		if !ok {
			return NewError(TypeError, pos, "object key must be string, got %s", TypeName(index))
		}
		left.Set(key.Value, value)
		return value
	default:
		return NewError(TypeError, pos, "%s does not support index assignment", TypeName(left))
	}
}

// ResolveMethod finds a method in the chain and reports which class's table
// it came from; the owning class anchors super resolution.
func (c *Class) ResolveMethod(name string) (Object, *Class, bool) {
	for cls := c; cls != nil; cls = cls.Base {
		if m, ok := cls.Methods[name]; ok {
			return m, cls, true
		}
	}
	return nil, nil, false
}

// GetMember implements `obj.name`. Instance lookup checks fields before
// methods.
func GetMember(obj Object, name string, pos ast.Pos) Object {
	switch obj := obj.(type) {
	case *Map:
		value, found := obj.Get(name)
		if !found {
			return NewError(KeyNotFoundError, pos, "key `%s` not found", name)
		}
		return value
	case *Instance:
		if value, found := obj.Fields.Get(name); found {
			return value
		}
		if method, owner, found := obj.Class.ResolveMethod(name); found {
			return &BoundMethod{Receiver: obj, Method: method, Owner: owner}
		}
		return NewError(KeyNotFoundError, pos, "`%s` has no field or method `%s`", obj.Class.Name, name)
	case *NativeHandle:
		if sym, found := obj.Symbols[name]; found {
			return sym
		}
		return NewError(KeyNotFoundError, pos, "native %s exports no symbol `%s`", obj.Kind, name)
	default:
		return NewError(TypeError, pos, "%s has no members", TypeName(obj))
	}
}

// SetMember implements `obj.name = value` and returns the stored value.
func SetMember(obj Object, name string, value Object, pos ast.Pos) Object {
	switch obj := obj.(type) {
	case *Map:
		obj.Set(name, value)
		return value
	case *Instance:
		obj.Fields.Set(name, value)
		return value
	default:
		return NewError(TypeError, pos, "%s does not support member assignment", TypeName(obj))
	}
}

// Iterator walks a snapshot of an iterable; both engines share it so for-in
// order is identical.
type Iterator struct {
	items []Object
	next  int
}

func (it *Iterator) Type() ObjectType { return ITERATOR_OBJ }
func (it *Iterator) Inspect() string  { return "<iterator>" }

func (it *Iterator) Next() (Object, bool) {
	if it.next >= len(it.items) {
		return nil, false
	}
	item := it.items[it.next]
	it.next++
	return item, true
}

// NewIterator builds an iterator over an array's elements, an object's keys
// in insertion order, or a string's characters.
func NewIterator(o Object, pos ast.Pos) Object {
	switch o := o.(type) {
	case *Array:
		items := make([]Object, len(o.Elements))
		copy(items, o.Elements)
		return &Iterator{items: items}
	case *Map:
		items := make([]Object, 0, o.Len())
		for _, k := range o.Keys() {
			items = append(items, &String{Value: k})
		}
		return &Iterator{items: items}
	case *String:
		runes := []rune(o.Value)
		items := make([]Object, len(runes))
		for i, r := range runes {
			items[i] = &String{Value: string(r)}
		}
		return &Iterator{items: items}
	default:
		return NewError(TypeError, pos, "%s is not iterable", TypeName(o))
	}
}
