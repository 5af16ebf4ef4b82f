package foreign

import (
	"testing"

	"hexza/internal/ast"
	"hexza/internal/object"
)

func TestCallDispatchesToRegisteredSymbol(t *testing.T) {
	r := NewRegistry()
	r.Register("math.add", func(pos ast.Pos, args ...object.Object) object.Object {
		a := args[0].(*object.Integer)
		b := args[1].(*object.Integer)
		return &object.Integer{Value: a.Value + b.Value}
	})

	got := r.Call("math.add", ast.Pos{}, &object.Integer{Value: 2}, &object.Integer{Value: 3})
	if got.Inspect() != "5" {
		t.Fatalf("math.add = %s, want 5", got.Inspect())
	}
}

func TestCallMissingSymbol(t *testing.T) {
	got := NewRegistry().Call("no.such", ast.Pos{})
	err, ok := got.(*object.ErrorObject)
	if !ok || err.Kind != object.ForeignCallError {
		t.Fatalf("missing symbol = %v, want ForeignCallError", got)
	}
}

func TestCallRejectsNonScalarArguments(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register("echo", func(pos ast.Pos, args ...object.Object) object.Object {
		called = true
		return object.NIL
	})

	got := r.Call("echo", ast.Pos{}, &object.Array{Elements: []object.Object{}})
	err, ok := got.(*object.ErrorObject)
	if !ok || err.Kind != object.ForeignCallError {
		t.Fatalf("array argument = %v, want ForeignCallError", got)
	}
	if called {
		t.Errorf("symbol ran despite the marshalling failure")
	}
}

func TestScalarConversionRoundTrip(t *testing.T) {
	scalars := []object.Object{
		object.NIL,
		object.TRUE,
		&object.Integer{Value: -7},
		&object.Float{Value: 1.5},
		&object.String{Value: "hi"},
	}
	for _, s := range scalars {
		if !Scalar(s) {
			t.Errorf("Scalar(%s) = false", object.TypeName(s))
		}
		native, ok := ToNative(s)
		if !ok {
			t.Errorf("ToNative(%s) failed", object.TypeName(s))
			continue
		}
		back := FromNative(native)
		if !object.Equals(s, back) {
			t.Errorf("round trip of %s: got %s", s.Inspect(), back.Inspect())
		}
	}

	if Scalar(&object.Map{}) {
		t.Errorf("Scalar reported true for an object")
	}
	if _, ok := ToNative(&object.Array{}); ok {
		t.Errorf("ToNative accepted an array")
	}
}

func TestFromNativeBytes(t *testing.T) {
	got := FromNative([]byte("raw"))
	if s, ok := got.(*object.String); !ok || s.Value != "raw" {
		t.Errorf("FromNative([]byte) = %v", got)
	}
}
