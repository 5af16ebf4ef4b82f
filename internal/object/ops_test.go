package object

import (
	"testing"

	"hexza/internal/ast"
)

var pos = ast.Pos{Line: 1, Col: 1, Source: "test"}

func TestTruthy(t *testing.T) {
	tests := []struct {
		input Object
		want  bool
	}{
		{NIL, false},
		{FALSE, false},
		{TRUE, true},
		{&Integer{Value: 0}, false},
		{&Integer{Value: -3}, true},
		{&Float{Value: 0.0}, false},
		{&Float{Value: 0.1}, true},
		{&String{Value: ""}, false},
		{&String{Value: "x"}, true},
		{&Array{Elements: []Object{}}, false},
		{&Array{Elements: []Object{NIL}}, true},
		{NewMap(), false},
	}
	for _, tt := range tests {
		if got := Truthy(tt.input); got != tt.want {
			t.Errorf("Truthy(%s) = %v, want %v", tt.input.Inspect(), got, tt.want)
		}
	}
}

func TestBinaryOpArithmetic(t *testing.T) {
	tests := []struct {
		op    string
		left  Object
		right Object
		want  string
	}{
		{"+", &Integer{Value: 1}, &Integer{Value: 2}, "3"},
		{"+", &Integer{Value: 1}, &Float{Value: 2.5}, "3.5"},
		{"-", &Integer{Value: 7}, &Integer{Value: 9}, "-2"},
		{"*", &Integer{Value: 4}, &Integer{Value: 5}, "20"},
		{"/", &Integer{Value: 7}, &Integer{Value: 2}, "3.5"},
		{"/", &Integer{Value: 4}, &Integer{Value: 2}, "2"},
		{"%", &Integer{Value: 7}, &Integer{Value: 3}, "1"},
		{"%", &Integer{Value: -7}, &Integer{Value: 3}, "2"},
		{"%", &Integer{Value: 7}, &Integer{Value: -3}, "-2"},
		{"**", &Integer{Value: 2}, &Integer{Value: 10}, "1024"},
		{"**", &Integer{Value: 2}, &Integer{Value: -1}, "0.5"},
		{"<<", &Integer{Value: 1}, &Integer{Value: 4}, "16"},
		{"&", &Integer{Value: 6}, &Integer{Value: 3}, "2"},
		{"|", &Integer{Value: 6}, &Integer{Value: 3}, "7"},
		{"^", &Integer{Value: 6}, &Integer{Value: 3}, "5"},
	}
	for _, tt := range tests {
		got := BinaryOp(tt.op, tt.left, tt.right, pos)
		if err, ok := got.(*ErrorObject); ok {
			t.Errorf("%s %s %s: unexpected error %s", tt.left.Inspect(), tt.op, tt.right.Inspect(), err.Inspect())
			continue
		}
		if got.Inspect() != tt.want {
			t.Errorf("%s %s %s = %s, want %s", tt.left.Inspect(), tt.op, tt.right.Inspect(), got.Inspect(), tt.want)
		}
	}
}

func TestDivisionIsAlwaysFloat(t *testing.T) {
	got := BinaryOp("/", &Integer{Value: 4}, &Integer{Value: 2}, pos)
	if _, ok := got.(*Float); !ok {
		t.Fatalf("4 / 2 produced %T, want *Float", got)
	}
}

func TestStringConcatCoercion(t *testing.T) {
	// A string left operand concatenates with anything.
	got := BinaryOp("+", &String{Value: "Sum: "}, &Integer{Value: 3}, pos)
	if s, ok := got.(*String); !ok || s.Value != "Sum: 3" {
		t.Fatalf("\"Sum: \" + 3 = %v, want \"Sum: 3\"", got.Inspect())
	}

	// A numeric left operand never implicitly stringifies.
	got = BinaryOp("+", &Integer{Value: 1}, &String{Value: "2"}, pos)
	err, ok := got.(*ErrorObject)
	if !ok || err.Kind != TypeError {
		t.Fatalf("1 + \"2\" = %v, want TypeError", got.Inspect())
	}
}

func TestDivisionByZero(t *testing.T) {
	tests := []struct {
		op    string
		left  Object
		right Object
	}{
		{"/", &Integer{Value: 1}, &Integer{Value: 0}},
		{"/", &Float{Value: 1}, &Float{Value: 0}},
		{"%", &Integer{Value: 1}, &Integer{Value: 0}},
		{"%", &Float{Value: 1}, &Float{Value: 0}},
	}
	for _, tt := range tests {
		got := BinaryOp(tt.op, tt.left, tt.right, pos)
		err, ok := got.(*ErrorObject)
		if !ok || err.Kind != DivisionByZeroError {
			t.Errorf("%s %s %s = %v, want DivisionByZeroError",
				tt.left.Inspect(), tt.op, tt.right.Inspect(), got.Inspect())
		}
	}
}

func TestComparisons(t *testing.T) {
	tests := []struct {
		op    string
		left  Object
		right Object
		want  bool
	}{
		{"==", &Integer{Value: 1}, &Float{Value: 1.0}, true},
		{"!=", &Integer{Value: 1}, &Integer{Value: 2}, true},
		{"==", &String{Value: "a"}, &String{Value: "a"}, true},
		{"==", &Integer{Value: 1}, &String{Value: "1"}, false},
		{"<", &Integer{Value: 1}, &Integer{Value: 2}, true},
		{"<=", &Float{Value: 2}, &Integer{Value: 2}, true},
		{">", &String{Value: "b"}, &String{Value: "a"}, true},
	}
	for _, tt := range tests {
		got := BinaryOp(tt.op, tt.left, tt.right, pos)
		b, ok := got.(*Boolean)
		if !ok {
			t.Errorf("%s %s %s: got %T", tt.left.Inspect(), tt.op, tt.right.Inspect(), got)
			continue
		}
		if b.Value != tt.want {
			t.Errorf("%s %s %s = %v, want %v", tt.left.Inspect(), tt.op, tt.right.Inspect(), b.Value, tt.want)
		}
	}
}

func TestEqualsDeep(t *testing.T) {
	a := &Array{Elements: []Object{&Integer{Value: 1}, &String{Value: "x"}}}
	b := &Array{Elements: []Object{&Integer{Value: 1}, &String{Value: "x"}}}
	if !Equals(a, b) {
		t.Errorf("equal arrays compared unequal")
	}
	m1 := NewMap()
	m1.Set("k", &Integer{Value: 1})
	m2 := NewMap()
	m2.Set("k", &Integer{Value: 1})
	if !Equals(m1, m2) {
		t.Errorf("equal maps compared unequal")
	}
	m2.Set("extra", NIL)
	if Equals(m1, m2) {
		t.Errorf("maps of different size compared equal")
	}
}

func TestIndex(t *testing.T) {
	arr := &Array{Elements: []Object{&Integer{Value: 10}, &Integer{Value: 20}, &Integer{Value: 30}}}

	if got := Index(arr, &Integer{Value: 1}, pos); got.Inspect() != "20" {
		t.Errorf("arr[1] = %s, want 20", got.Inspect())
	}
	// Negative indexes count from the end.
	if got := Index(arr, &Integer{Value: -1}, pos); got.Inspect() != "30" {
		t.Errorf("arr[-1] = %s, want 30", got.Inspect())
	}
	got := Index(arr, &Integer{Value: 3}, pos)
	if err, ok := got.(*ErrorObject); !ok || err.Kind != IndexOutOfRangeError {
		t.Errorf("arr[3] = %v, want IndexOutOfRangeError", got.Inspect())
	}

	m := NewMap()
	m.Set("a", &Integer{Value: 1})
	if got := Index(m, &String{Value: "a"}, pos); got.Inspect() != "1" {
		t.Errorf("m[\"a\"] = %s, want 1", got.Inspect())
	}
	got = Index(m, &String{Value: "missing"}, pos)
	if err, ok := got.(*ErrorObject); !ok || err.Kind != KeyNotFoundError {
		t.Errorf("m[\"missing\"] = %v, want KeyNotFoundError", got.Inspect())
	}

	s := &String{Value: "hey"}
	if got := Index(s, &Integer{Value: -1}, pos); got.Inspect() != "y" {
		t.Errorf("\"hey\"[-1] = %s, want y", got.Inspect())
	}
}

func TestSetIndex(t *testing.T) {
	arr := &Array{Elements: []Object{&Integer{Value: 1}, &Integer{Value: 2}}}
	if got := SetIndex(arr, &Integer{Value: 0}, &Integer{Value: 9}, pos); IsError(got) {
		t.Fatalf("arr[0] = 9 failed: %s", got.Inspect())
	}
	if arr.Elements[0].Inspect() != "9" {
		t.Errorf("arr[0] is %s after set, want 9", arr.Elements[0].Inspect())
	}

	m := NewMap()
	// Setting a fresh key inserts.
	if got := SetIndex(m, &String{Value: "k"}, &Integer{Value: 5}, pos); IsError(got) {
		t.Fatalf("m[\"k\"] = 5 failed: %s", got.Inspect())
	}
	if v, ok := m.Get("k"); !ok || v.Inspect() != "5" {
		t.Errorf("m[\"k\"] not stored")
	}
}

func TestUnaryOp(t *testing.T) {
	if got := UnaryOp("-", &Integer{Value: 3}, pos); got.Inspect() != "-3" {
		t.Errorf("-3 = %s", got.Inspect())
	}
	if got := UnaryOp("!", FALSE, pos); got != TRUE {
		t.Errorf("!false != true")
	}
	if got := UnaryOp("~", &Integer{Value: 0}, pos); got.Inspect() != "-1" {
		t.Errorf("~0 = %s, want -1", got.Inspect())
	}
	got := UnaryOp("-", &String{Value: "x"}, pos)
	if err, ok := got.(*ErrorObject); !ok || err.Kind != TypeError {
		t.Errorf("-\"x\" = %v, want TypeError", got.Inspect())
	}
}

func TestIteratorOrder(t *testing.T) {
	m := NewMap()
	m.Set("first", &Integer{Value: 1})
	m.Set("second", &Integer{Value: 2})
	m.Set("third", &Integer{Value: 3})

	it := NewIterator(m, pos).(*Iterator)
	var keys []string
	for {
		item, ok := it.Next()
		if !ok {
			break
		}
		keys = append(keys, item.Inspect())
	}
	want := []string{"first", "second", "third"}
	if len(keys) != len(want) {
		t.Fatalf("iterated %d keys, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d = %s, want %s (insertion order)", i, keys[i], want[i])
		}
	}
}

func TestGetMemberInstance(t *testing.T) {
	cls := &Class{Name: "Point", Methods: map[string]Object{}}
	inst := &Instance{Class: cls, Fields: NewMap()}
	inst.Fields.Set("x", &Integer{Value: 4})

	if got := GetMember(inst, "x", pos); got.Inspect() != "4" {
		t.Errorf("inst.x = %s, want 4", got.Inspect())
	}
	got := GetMember(inst, "missing", pos)
	if err, ok := got.(*ErrorObject); !ok || err.Kind != KeyNotFoundError {
		t.Errorf("inst.missing = %v, want KeyNotFoundError", got.Inspect())
	}
}

func TestThrownErrorInspectsPayload(t *testing.T) {
	err := NewThrown(&String{Value: "boom"}, pos)
	if err.Inspect() != "boom" {
		t.Errorf("thrown string inspects as %q, want \"boom\"", err.Inspect())
	}
	// Rethrowing keeps the identity of the original error.
	if again := NewThrown(err, pos); again != err {
		t.Errorf("rethrow produced a new error object")
	}
}
