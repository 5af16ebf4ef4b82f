package ast

import (
	"strings"
	"testing"
)

const sampleProgram = `{
  "kind": "program",
  "body": [
    {"kind": "const", "name": "PI", "line": 1, "col": 1,
     "value": {"kind": "float", "value": 3.14, "line": 1, "col": 12}},
    {"kind": "func_def", "name": "area", "line": 2, "col": 1,
     "params": [{"name": "r", "line": 2, "col": 11}],
     "body": {"kind": "block", "line": 2, "col": 14, "body": [
       {"kind": "return", "line": 3, "col": 3,
        "value": {"kind": "infix", "op": "*", "line": 3, "col": 10,
          "left": {"kind": "ident", "name": "PI", "line": 3, "col": 10},
          "right": {"kind": "infix", "op": "*", "line": 3, "col": 15,
            "left": {"kind": "ident", "name": "r", "line": 3, "col": 15},
            "right": {"kind": "ident", "name": "r", "line": 3, "col": 19}}}}
     ]}},
    {"kind": "expr_stmt", "line": 5, "col": 1,
     "expr": {"kind": "call", "line": 5, "col": 1,
       "callee": {"kind": "ident", "name": "area", "line": 5, "col": 1},
       "args": [{"kind": "int", "value": 2, "line": 5, "col": 6}]}}
  ]
}`

func TestDecodeProgram(t *testing.T) {
	program, err := Decode(strings.NewReader(sampleProgram), "circle.hx")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(program.Statements) != 3 {
		t.Fatalf("decoded %d statements, want 3", len(program.Statements))
	}

	let, ok := program.Statements[0].(*LetStatement)
	if !ok || let.Kind != "const" || let.Name != "PI" {
		t.Fatalf("statement 0 = %+v, want const PI", program.Statements[0])
	}
	if let.Pos.Line != 1 || let.Pos.Source != "circle.hx" {
		t.Errorf("const position = %+v", let.Pos)
	}

	fn, ok := program.Statements[1].(*FunctionStatement)
	if !ok || fn.Name != "area" {
		t.Fatalf("statement 1 = %+v, want func area", program.Statements[1])
	}
	if len(fn.Function.Parameters) != 1 || fn.Function.Parameters[0].Name != "r" {
		t.Errorf("area params = %+v", fn.Function.Parameters)
	}

	call, ok := program.Statements[2].(*ExpressionStatement).Expression.(*CallExpression)
	if !ok || len(call.Arguments) != 1 {
		t.Fatalf("statement 2 is not a 1-arg call")
	}
}

func TestDecodeLambdaGetsImplicitReturn(t *testing.T) {
	src := `{"kind": "program", "body": [
    {"kind": "expr_stmt", "line": 1, "col": 1,
     "expr": {"kind": "lambda", "line": 1, "col": 1,
       "params": [{"name": "x", "line": 1, "col": 8}],
       "expr": {"kind": "infix", "op": "+", "line": 1, "col": 12,
         "left": {"kind": "ident", "name": "x", "line": 1, "col": 12},
         "right": {"kind": "int", "value": 1, "line": 1, "col": 16}}}}
  ]}`
	program, err := Decode(strings.NewReader(src), "lambda.hx")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	fn := program.Statements[0].(*ExpressionStatement).Expression.(*FunctionLiteral)
	if len(fn.Body.Statements) != 1 {
		t.Fatalf("lambda body has %d statements, want 1", len(fn.Body.Statements))
	}
	if _, ok := fn.Body.Statements[0].(*ReturnStatement); !ok {
		t.Errorf("lambda body is %T, want implicit return", fn.Body.Statements[0])
	}
}

func TestDecodeRejectsBareTry(t *testing.T) {
	src := `{"kind": "program", "body": [
    {"kind": "try", "line": 1, "col": 1,
     "try": {"kind": "block", "line": 1, "col": 5, "body": []}}
  ]}`
	if _, err := Decode(strings.NewReader(src), "bad.hx"); err == nil {
		t.Fatalf("try without catch or finally decoded without error")
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	src := `{"kind": "program", "body": [{"kind": "mystery", "line": 1, "col": 1}]}`
	if _, err := Decode(strings.NewReader(src), "bad.hx"); err == nil {
		t.Fatalf("unknown statement kind decoded without error")
	}
}
