package engine

import (
	"bytes"
	"testing"

	"hexza/internal/ast"
	"hexza/internal/object"
)

// The tests below drive the same program through the evaluator and the VM
// and require identical output and agreeing results.

func runBoth(t *testing.T, stmts ...ast.Statement) (*Comparison, string) {
	t.Helper()
	var out bytes.Buffer
	cmp := RunBoth(&ast.Program{Statements: stmts, Source: "test"}, &out)
	if !cmp.Match {
		t.Fatalf("engines diverge:\n  eval: %s\n  vm:   %s", renderResult(cmp.Eval), renderResult(cmp.VM))
	}
	return cmp, out.String()
}

func wantOutput(t *testing.T, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func wantErrKind(t *testing.T, cmp *Comparison, kind object.ErrorKind) {
	t.Helper()
	if cmp.Eval.Err == nil || rootKind(cmp.Eval.Err) != kind {
		t.Errorf("eval err = %v, want %s", cmp.Eval.Err, kind)
	}
	if cmp.VM.Err == nil || rootKind(cmp.VM.Err) != kind {
		t.Errorf("vm err = %v, want %s", cmp.VM.Err, kind)
	}
}

// AST construction helpers; programs are written as trees because the front
// end that produces them lives elsewhere.

func ident(name string) *ast.Identifier    { return &ast.Identifier{Name: name} }
func num(v int64) *ast.IntegerLiteral      { return &ast.IntegerLiteral{Value: v} }
func lit(v string) *ast.StringLiteral      { return &ast.StringLiteral{Value: v} }
func boolean(v bool) *ast.BooleanLiteral   { return &ast.BooleanLiteral{Value: v} }
func exprS(e ast.Expression) ast.Statement { return &ast.ExpressionStatement{Expression: e} }
func ret(v ast.Expression) ast.Statement   { return &ast.ReturnStatement{Value: v} }

func infix(op string, l, r ast.Expression) *ast.InfixExpression {
	return &ast.InfixExpression{Operator: op, Left: l, Right: r}
}

func call(fn ast.Expression, args ...ast.Expression) *ast.CallExpression {
	return &ast.CallExpression{Function: fn, Arguments: args}
}

func printS(args ...ast.Expression) ast.Statement {
	return exprS(call(ident("print"), args...))
}

func let(name string, v ast.Expression) ast.Statement {
	return &ast.LetStatement{Kind: "let", Name: name, Value: v}
}

func constS(name string, v ast.Expression) ast.Statement {
	return &ast.LetStatement{Kind: "const", Name: name, Value: v}
}

func assign(target, v ast.Expression) ast.Expression {
	return &ast.AssignExpression{Target: target, Value: v}
}

func block(stmts ...ast.Statement) *ast.BlockStatement {
	return &ast.BlockStatement{Statements: stmts}
}

func fnStmt(name string, params []*ast.Parameter, body *ast.BlockStatement) *ast.FunctionStatement {
	return &ast.FunctionStatement{
		Name:     name,
		Function: &ast.FunctionLiteral{Name: name, Parameters: params, Body: body},
	}
}

func asyncFnStmt(name string, params []*ast.Parameter, body *ast.BlockStatement) *ast.FunctionStatement {
	fs := fnStmt(name, params, body)
	fs.Function.IsAsync = true
	return fs
}

func param(name string) *ast.Parameter { return &ast.Parameter{Name: name} }

func TestArithmeticAndPrint(t *testing.T) {
	_, out := runBoth(t,
		let("x", num(10)),
		let("y", num(20)),
		printS(infix("+", ident("x"), ident("y"))),
	)
	wantOutput(t, out, "30\n")
}

func TestDivisionIsAlwaysFloat(t *testing.T) {
	_, out := runBoth(t, printS(infix("/", num(7), num(2))))
	wantOutput(t, out, "3.5\n")
}

func TestStringCoercion(t *testing.T) {
	_, out := runBoth(t, printS(infix("+", lit("Sum: "), num(3))))
	wantOutput(t, out, "Sum: 3\n")
}

func TestIntPlusStringFails(t *testing.T) {
	cmp, _ := runBoth(t, exprS(infix("+", num(1), lit("2"))))
	wantErrKind(t, cmp, object.TypeError)
}

func TestDivisionByZero(t *testing.T) {
	cmp, _ := runBoth(t, printS(infix("/", num(1), num(0))))
	wantErrKind(t, cmp, object.DivisionByZeroError)
}

func TestConstReassignmentFails(t *testing.T) {
	cmp, _ := runBoth(t,
		constS("PI", &ast.FloatLiteral{Value: 3.14}),
		exprS(assign(ident("PI"), num(3))),
	)
	wantErrKind(t, cmp, object.ImmutableBindingError)
}

func TestUndefinedNameFails(t *testing.T) {
	cmp, _ := runBoth(t, printS(ident("ghost")))
	wantErrKind(t, cmp, object.UnresolvedNameError)
}

func TestClosureCounters(t *testing.T) {
	// Each call to makeCounter yields an independent counter.
	_, out := runBoth(t,
		fnStmt("makeCounter", nil, block(
			let("n", num(0)),
			ret(&ast.FunctionLiteral{Body: block(
				exprS(assign(ident("n"), infix("+", ident("n"), num(1)))),
				ret(ident("n")),
			)}),
		)),
		let("c", call(ident("makeCounter"))),
		printS(call(ident("c"))),
		printS(call(ident("c"))),
		let("d", call(ident("makeCounter"))),
		printS(call(ident("d"))),
		printS(call(ident("c"))),
	)
	wantOutput(t, out, "1\n2\n1\n3\n")
}

func TestNestedFreeCapture(t *testing.T) {
	_, out := runBoth(t,
		fnStmt("make", []*ast.Parameter{param("x")}, block(
			ret(&ast.FunctionLiteral{Body: block(
				ret(&ast.FunctionLiteral{Body: block(
					ret(ident("x")),
				)}),
			)}),
		)),
		printS(call(call(call(ident("make"), num(7))))),
	)
	wantOutput(t, out, "7\n")
}

func TestRecursion(t *testing.T) {
	_, out := runBoth(t,
		fnStmt("fib", []*ast.Parameter{param("n")}, block(
			&ast.IfStatement{
				Condition: infix("<", ident("n"), num(2)),
				Then:      block(ret(ident("n"))),
			},
			ret(infix("+",
				call(ident("fib"), infix("-", ident("n"), num(1))),
				call(ident("fib"), infix("-", ident("n"), num(2))),
			)),
		)),
		printS(call(ident("fib"), num(10))),
	)
	wantOutput(t, out, "55\n")
}

func TestTryCatchFinally(t *testing.T) {
	_, out := runBoth(t,
		&ast.TryStatement{
			Try:       block(&ast.ThrowStatement{Value: lit("boom")}),
			CatchName: "e",
			Catch:     block(printS(ident("e"))),
			Finally:   block(printS(lit("done"))),
		},
	)
	wantOutput(t, out, "boom\ndone\n")
}

func TestFinallyOverwritesPendingError(t *testing.T) {
	// A throw inside finally replaces the error already unwinding.
	cmp, out := runBoth(t,
		&ast.TryStatement{
			Try: block(
				&ast.TryStatement{
					Try:     block(&ast.ThrowStatement{Value: lit("boom")}),
					Finally: block(&ast.ThrowStatement{Value: lit("oops")}),
				},
			),
			CatchName: "e",
			Catch:     block(printS(ident("e"))),
		},
	)
	if cmp.Eval.Err != nil {
		t.Fatalf("unexpected error: %v", cmp.Eval.Err)
	}
	wantOutput(t, out, "oops\n")
}

func TestBreakInsideFinallyExitsLoop(t *testing.T) {
	_, out := runBoth(t,
		let("r", num(0)),
		&ast.WhileStatement{Condition: boolean(true), Body: block(
			&ast.TryStatement{
				Try:     block(exprS(assign(ident("r"), num(1)))),
				Finally: block(&ast.BreakStatement{}),
			},
		)},
		printS(ident("r")),
	)
	wantOutput(t, out, "1\n")
}

func TestReturnInsideFinallyWins(t *testing.T) {
	// A return in finally replaces the return pending from the try body.
	_, out := runBoth(t,
		fnStmt("f", nil, block(
			&ast.TryStatement{
				Try:     block(ret(lit("try"))),
				Finally: block(ret(lit("finally"))),
			},
		)),
		printS(call(ident("f"))),
	)
	wantOutput(t, out, "finally\n")
}

func TestContinueInsideFinally(t *testing.T) {
	// continue in finally skips the rest of the body on every iteration.
	_, out := runBoth(t,
		let("i", num(0)),
		let("n", num(0)),
		&ast.WhileStatement{Condition: infix("<", ident("i"), num(3)), Body: block(
			exprS(assign(ident("i"), infix("+", ident("i"), num(1)))),
			&ast.TryStatement{
				Try:     block(),
				Finally: block(&ast.ContinueStatement{}),
			},
			exprS(assign(ident("n"), infix("+", ident("n"), num(10)))),
		)},
		printS(ident("n")),
	)
	wantOutput(t, out, "0\n")
}

func TestReturnInsideTryRunsFinally(t *testing.T) {
	_, out := runBoth(t,
		fnStmt("f", nil, block(
			&ast.TryStatement{
				Try:     block(ret(lit("r"))),
				Finally: block(printS(lit("cleanup"))),
			},
		)),
		printS(call(ident("f"))),
	)
	wantOutput(t, out, "cleanup\nr\n")
}

func TestUncaughtThrowSurfaces(t *testing.T) {
	cmp, _ := runBoth(t, &ast.ThrowStatement{Value: lit("boom")})
	wantErrKind(t, cmp, object.ThrownError)
}

func TestAsyncAwait(t *testing.T) {
	_, out := runBoth(t,
		asyncFnStmt("f", nil, block(ret(num(42)))),
		printS(&ast.AwaitExpression{Value: call(ident("f"))}),
	)
	wantOutput(t, out, "42\n")
}

func TestAsyncRunsAfterCallerParks(t *testing.T) {
	// Calling an async function only queues it; the caller keeps running
	// until it awaits.
	_, out := runBoth(t,
		asyncFnStmt("job", []*ast.Parameter{param("tag")}, block(
			printS(ident("tag")),
		)),
		let("t1", call(ident("job"), lit("a"))),
		let("t2", call(ident("job"), lit("b"))),
		printS(lit("main")),
		exprS(&ast.AwaitExpression{Value: ident("t1")}),
		exprS(&ast.AwaitExpression{Value: ident("t2")}),
	)
	wantOutput(t, out, "main\na\nb\n")
}

func TestAsyncRejectionPropagatesThroughAwait(t *testing.T) {
	cmp, _ := runBoth(t,
		asyncFnStmt("f", nil, block(&ast.ThrowStatement{Value: lit("late")})),
		exprS(&ast.AwaitExpression{Value: call(ident("f"))}),
	)
	wantErrKind(t, cmp, object.ThrownError)
}

func TestDefaultParameters(t *testing.T) {
	_, out := runBoth(t,
		fnStmt("greet", []*ast.Parameter{{Name: "who", Default: lit("world")}}, block(
			ret(ident("who")),
		)),
		printS(call(ident("greet"))),
		printS(call(ident("greet"), lit("go"))),
	)
	wantOutput(t, out, "world\ngo\n")
}

func TestVariadicParameters(t *testing.T) {
	_, out := runBoth(t,
		fnStmt("tally", []*ast.Parameter{param("first"), {Name: "rest", Variadic: true}}, block(
			ret(infix("+", ident("first"), call(ident("len"), ident("rest")))),
		)),
		printS(call(ident("tally"), num(1), num(2), num(3))),
		printS(call(ident("tally"), num(1))),
	)
	wantOutput(t, out, "3\n1\n")
}

func TestArityErrors(t *testing.T) {
	cmp, _ := runBoth(t,
		fnStmt("f", []*ast.Parameter{param("a"), param("b")}, block(ret(ident("a")))),
		exprS(call(ident("f"), num(1))),
	)
	wantErrKind(t, cmp, object.ArityError)
}

func TestForInFollowsInsertionOrder(t *testing.T) {
	_, out := runBoth(t,
		let("m", &ast.ObjectLiteral{
			Keys:   []string{"a", "b", "c"},
			Values: []ast.Expression{num(1), num(2), num(3)},
		}),
		&ast.ForInStatement{Name: "k", Iterable: ident("m"), Body: block(
			printS(ident("k"), &ast.IndexExpression{Left: ident("m"), Index: ident("k")}),
		)},
	)
	wantOutput(t, out, "a 1\nb 2\nc 3\n")
}

func TestForInVariableIsOneBindingPerLoop(t *testing.T) {
	// Closures made in the body all capture the same loop binding and see
	// the value of the final iteration, in both engines.
	_, out := runBoth(t,
		let("a", &ast.NullLiteral{}),
		let("b", &ast.NullLiteral{}),
		let("i", num(0)),
		&ast.ForInStatement{
			Name:     "x",
			Iterable: &ast.ArrayLiteral{Elements: []ast.Expression{num(10), num(20)}},
			Body: block(
				&ast.IfStatement{
					Condition: infix("==", ident("i"), num(0)),
					Then: block(exprS(assign(ident("a"), &ast.FunctionLiteral{
						Body: block(ret(ident("x"))),
					}))),
					Else: block(exprS(assign(ident("b"), &ast.FunctionLiteral{
						Body: block(ret(ident("x"))),
					}))),
				},
				exprS(assign(ident("i"), infix("+", ident("i"), num(1)))),
			),
		},
		printS(call(ident("a"))),
		printS(call(ident("b"))),
	)
	wantOutput(t, out, "20\n20\n")
}

func TestForInCaptureInsideFunction(t *testing.T) {
	// Same property when the loop variable is a function local.
	_, out := runBoth(t,
		fnStmt("collect", nil, block(
			let("first", &ast.NullLiteral{}),
			&ast.ForInStatement{
				Name:     "x",
				Iterable: &ast.ArrayLiteral{Elements: []ast.Expression{num(1), num(2), num(3)}},
				Body: block(
					&ast.IfStatement{
						Condition: infix("==", ident("x"), num(1)),
						Then: block(exprS(assign(ident("first"), &ast.FunctionLiteral{
							Body: block(ret(ident("x"))),
						}))),
					},
				),
			},
			ret(call(ident("first"))),
		)),
		printS(call(ident("collect"))),
	)
	wantOutput(t, out, "3\n")
}

func TestWhileBreakContinue(t *testing.T) {
	_, out := runBoth(t,
		let("i", num(0)),
		let("acc", num(0)),
		&ast.WhileStatement{Condition: boolean(true), Body: block(
			exprS(assign(ident("i"), infix("+", ident("i"), num(1)))),
			&ast.IfStatement{
				Condition: infix("==", ident("i"), num(3)),
				Then:      block(&ast.ContinueStatement{}),
			},
			&ast.IfStatement{
				Condition: infix(">", ident("i"), num(5)),
				Then:      block(&ast.BreakStatement{}),
			},
			exprS(assign(ident("acc"), infix("+", ident("acc"), ident("i")))),
		)},
		printS(ident("acc")),
	)
	wantOutput(t, out, "12\n")
}

func TestThreeClauseFor(t *testing.T) {
	_, out := runBoth(t,
		let("total", num(0)),
		&ast.ForStatement{
			Init:      let("i", num(1)),
			Condition: infix("<=", ident("i"), num(4)),
			Post:      exprS(assign(ident("i"), infix("+", ident("i"), num(1)))),
			Body: block(
				exprS(assign(ident("total"), infix("+", ident("total"), ident("i")))),
			),
		},
		printS(ident("total")),
	)
	wantOutput(t, out, "10\n")
}

func TestMatchStatement(t *testing.T) {
	program := func(subject int64) []ast.Statement {
		return []ast.Statement{
			&ast.MatchStatement{
				Subject: num(subject),
				Cases: []*ast.MatchCase{
					{Value: num(1), Body: block(printS(lit("one")))},
					{Value: num(2), Body: block(printS(lit("two")))},
					{Value: nil, Body: block(printS(lit("many")))},
				},
			},
		}
	}
	_, out := runBoth(t, program(2)...)
	wantOutput(t, out, "two\n")
	_, out = runBoth(t, program(9)...)
	wantOutput(t, out, "many\n")
}

func TestTernaryAndUnary(t *testing.T) {
	_, out := runBoth(t,
		printS(&ast.TernaryExpression{
			Condition: infix("<", num(1), num(2)),
			Then:      lit("yes"),
			Else:      lit("no"),
		}),
		printS(&ast.PrefixExpression{Operator: "-", Right: num(5)}),
		printS(&ast.PrefixExpression{Operator: "~", Right: num(0)}),
		printS(&ast.PrefixExpression{Operator: "!", Right: num(0)}),
	)
	wantOutput(t, out, "yes\n-5\n-1\ntrue\n")
}

func TestBitwiseAndPower(t *testing.T) {
	_, out := runBoth(t,
		printS(infix("&", num(5), num(3))),
		printS(infix("|", num(5), num(3))),
		printS(infix("^", num(5), num(3))),
		printS(infix("<<", num(1), num(4))),
		printS(infix("**", num(2), num(10))),
	)
	wantOutput(t, out, "1\n7\n6\n16\n1024\n")
}

func TestShortCircuitSkipsRightOperand(t *testing.T) {
	_, out := runBoth(t,
		fnStmt("loud", nil, block(printS(lit("called")), ret(boolean(true)))),
		printS(infix("&&", boolean(false), call(ident("loud")))),
		printS(infix("||", boolean(true), call(ident("loud")))),
	)
	wantOutput(t, out, "false\ntrue\n")
}

func TestIndexAndMemberAssignment(t *testing.T) {
	_, out := runBoth(t,
		let("xs", &ast.ArrayLiteral{Elements: []ast.Expression{num(1), num(2), num(3)}}),
		exprS(assign(&ast.IndexExpression{Left: ident("xs"), Index: num(0)}, num(9))),
		printS(&ast.IndexExpression{Left: ident("xs"), Index: num(0)}),
		printS(&ast.IndexExpression{Left: ident("xs"), Index: &ast.PrefixExpression{Operator: "-", Right: num(1)}}),
		let("m", &ast.ObjectLiteral{Keys: []string{"k"}, Values: []ast.Expression{num(1)}}),
		exprS(assign(&ast.IndexExpression{Left: ident("m"), Index: lit("k")}, num(2))),
		exprS(assign(&ast.IndexExpression{Left: ident("m"), Index: lit("new")}, num(3))),
		printS(infix("+",
			&ast.IndexExpression{Left: ident("m"), Index: lit("k")},
			&ast.IndexExpression{Left: ident("m"), Index: lit("new")},
		)),
	)
	wantOutput(t, out, "9\n3\n5\n")
}

func TestIndexOutOfRange(t *testing.T) {
	cmp, _ := runBoth(t,
		let("xs", &ast.ArrayLiteral{Elements: []ast.Expression{num(1)}}),
		printS(&ast.IndexExpression{Left: ident("xs"), Index: num(5)}),
	)
	wantErrKind(t, cmp, object.IndexOutOfRangeError)
}

func classProgram() []ast.Statement {
	method := fnStmt
	return []ast.Statement{
		&ast.ClassStatement{
			Name: "Animal",
			Methods: []*ast.FunctionStatement{
				method("__init__", []*ast.Parameter{param("name")}, block(
					exprS(assign(&ast.MemberExpression{Object: &ast.ThisExpression{}, Property: "name"}, ident("name"))),
				)),
				method("speak", nil, block(
					ret(infix("+",
						&ast.MemberExpression{Object: &ast.ThisExpression{}, Property: "name"},
						lit(" makes a sound"),
					)),
				)),
			},
		},
		&ast.ClassStatement{
			Name: "Dog",
			Base: "Animal",
			Methods: []*ast.FunctionStatement{
				method("__init__", []*ast.Parameter{param("name")}, block(
					exprS(call(&ast.MemberExpression{Object: &ast.SuperExpression{}, Property: "__init__"}, ident("name"))),
				)),
				method("speak", nil, block(
					ret(infix("+",
						call(&ast.MemberExpression{Object: &ast.SuperExpression{}, Property: "speak"}),
						lit(": woof"),
					)),
				)),
			},
		},
		let("d", &ast.NewExpression{Class: ident("Dog"), Arguments: []ast.Expression{lit("rex")}}),
		printS(call(&ast.MemberExpression{Object: ident("d"), Property: "speak"})),
	}
}

func TestClassInheritanceAndSuper(t *testing.T) {
	_, out := runBoth(t, classProgram()...)
	wantOutput(t, out, "rex makes a sound: woof\n")
}

func TestMissingMemberFails(t *testing.T) {
	cmp, _ := runBoth(t,
		&ast.ClassStatement{Name: "Empty"},
		let("e", &ast.NewExpression{Class: ident("Empty")}),
		printS(&ast.MemberExpression{Object: ident("e"), Property: "nothing"}),
	)
	wantErrKind(t, cmp, object.KeyNotFoundError)
}

func TestCallingNonCallableFails(t *testing.T) {
	cmp, _ := runBoth(t, exprS(call(num(5))))
	wantErrKind(t, cmp, object.TypeError)
}

func TestBuiltins(t *testing.T) {
	_, out := runBoth(t,
		printS(call(ident("len"), lit("héllo"))),
		printS(call(ident("str"), num(42))),
		printS(call(ident("int"), lit("17"))),
		printS(call(ident("abs"), &ast.PrefixExpression{Operator: "-", Right: num(3)})),
		printS(call(ident("min"), num(4), num(2), num(9))),
		printS(call(ident("sum"), call(ident("range"), num(1), num(5)))),
		printS(call(ident("type"), lit("x"))),
	)
	wantOutput(t, out, "5\n42\n17\n3\n2\n10\nstring\n")
}

func TestLambdaExpression(t *testing.T) {
	_, out := runBoth(t,
		let("double", &ast.FunctionLiteral{
			Parameters: []*ast.Parameter{param("x")},
			Body:       block(ret(infix("*", ident("x"), num(2)))),
		}),
		printS(call(ident("double"), num(21))),
	)
	wantOutput(t, out, "42\n")
}

func TestProgramResultValue(t *testing.T) {
	cmp, _ := runBoth(t,
		let("x", num(6)),
		exprS(infix("*", ident("x"), num(7))),
	)
	if cmp.Eval.Value == nil || cmp.Eval.Value.Inspect() != "42" {
		t.Errorf("eval result = %v, want 42", cmp.Eval.Value)
	}
	if cmp.VM.Value == nil || cmp.VM.Value.Inspect() != "42" {
		t.Errorf("vm result = %v, want 42", cmp.VM.Value)
	}
}
