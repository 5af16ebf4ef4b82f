package evaluator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"hexza/internal/ast"
	"hexza/internal/object"
	"hexza/internal/sched"
)

// Evaluator walks the AST directly. One instance serves one fiber; spawning
// an async call clones it onto the new fiber so each continuation keeps its
// own call-stack snapshot state.
type Evaluator struct {
	Out   io.Writer
	Loop  *sched.Loop
	fiber *sched.Fiber
	stack []object.StackFrame
}

func New(out io.Writer, loop *sched.Loop) *Evaluator {
	return &Evaluator{Out: out, Loop: loop}
}

// Run evaluates a whole program as the root fiber of the loop.
func (e *Evaluator) Run(program *ast.Program, env *object.Environment) (object.Object, *object.ErrorObject) {
	return e.Loop.Main("main", func(f *sched.Fiber) (object.Object, *object.ErrorObject) {
		child := e.withFiber(f)
		result := child.Eval(program, env)
		if err, ok := result.(*object.ErrorObject); ok {
			return nil, object.Uncaught(err)
		}
		return result, nil
	})
}

func (e *Evaluator) withFiber(f *sched.Fiber) *Evaluator {
	return &Evaluator{Out: e.Out, Loop: e.Loop, fiber: f}
}

// fail stamps a freshly raised error with the current call-stack snapshot.
// Errors already carrying a stack pass through untouched.
func (e *Evaluator) fail(err *object.ErrorObject) *object.ErrorObject {
	if err.Stack == nil {
		err.Stack = make([]object.StackFrame, len(e.stack))
		copy(err.Stack, e.stack)
	}
	return err
}

func (e *Evaluator) newError(kind object.ErrorKind, pos ast.Pos, format string, a ...any) *object.ErrorObject {
	return e.fail(object.NewError(kind, pos, format, a...))
}

func isSignal(o object.Object) bool {
	switch o.(type) {
	case *object.ErrorObject, *object.ReturnValue, *object.BreakSignal, *object.ContinueSignal:
		return true
	}
	return false
}

func (e *Evaluator) Eval(node ast.Node, env *object.Environment) object.Object {
	switch node := node.(type) {

	case *ast.Program:
		return e.evalProgram(node, env)

	case *ast.ExpressionStatement:
		return e.Eval(node.Expression, env)

	case *ast.LetStatement:
		var value object.Object = object.NIL
		if node.Value != nil {
			value = e.Eval(node.Value, env)
			if object.IsError(value) {
				return value
			}
		}
		if _, err := env.Define(node.Name, value, node.Kind != "const"); err != nil {
			return e.newError(object.ImmutableBindingError, node.Pos, "%s", err.Error())
		}
		return object.NIL

	case *ast.ReturnStatement:
		var value object.Object = object.NIL
		if node.Value != nil {
			value = e.Eval(node.Value, env)
			if object.IsError(value) {
				return value
			}
		}
		return &object.ReturnValue{Value: value}

	case *ast.BlockStatement:
		return e.evalBlock(node, object.NewEnclosedEnvironment(env))

	case *ast.IfStatement:
		return e.evalIf(node, env)

	case *ast.WhileStatement:
		return e.evalWhile(node, env)

	case *ast.ForStatement:
		return e.evalFor(node, env)

	case *ast.ForInStatement:
		return e.evalForIn(node, env)

	case *ast.BreakStatement:
		return object.BREAK

	case *ast.ContinueStatement:
		return object.CONTINUE

	case *ast.ThrowStatement:
		value := e.Eval(node.Value, env)
		if object.IsError(value) {
			return value
		}
		return e.fail(object.NewThrown(value, node.Pos))

	case *ast.TryStatement:
		return e.evalTry(node, env)

	case *ast.MatchStatement:
		return e.evalMatch(node, env)

	case *ast.FunctionStatement:
		fn := e.makeFunction(node.Function, env)
		if _, err := env.Define(node.Name, fn, true); err != nil {
			return e.newError(object.ImmutableBindingError, node.Pos, "%s", err.Error())
		}
		return object.NIL

	case *ast.ClassStatement:
		return e.evalClass(node, env)

	// Expressions

	case *ast.Identifier:
		if value, ok := env.Get(node.Name); ok {
			return value
		}
		return e.newError(object.UnresolvedNameError, node.Pos, "`%s` is not defined", node.Name)

	case *ast.IntegerLiteral:
		return &object.Integer{Value: node.Value}

	case *ast.FloatLiteral:
		return &object.Float{Value: node.Value}

	case *ast.StringLiteral:
		return &object.String{Value: node.Value}

	case *ast.BooleanLiteral:
		return object.NativeBoolToBooleanObject(node.Value)

	case *ast.NullLiteral:
		return object.NIL

	case *ast.ArrayLiteral:
		elements := make([]object.Object, 0, len(node.Elements))
		for _, el := range node.Elements {
			value := e.Eval(el, env)
			if object.IsError(value) {
				return value
			}
			elements = append(elements, value)
		}
		return &object.Array{Elements: elements}

	case *ast.ObjectLiteral:
		m := object.NewMap()
		for i, key := range node.Keys {
			value := e.Eval(node.Values[i], env)
			if object.IsError(value) {
				return value
			}
			m.Set(key, value)
		}
		return m

	case *ast.PrefixExpression:
		right := e.Eval(node.Right, env)
		if object.IsError(right) {
			return right
		}
		result := object.UnaryOp(node.Operator, right, node.Pos)
		if err, ok := result.(*object.ErrorObject); ok {
			return e.fail(err)
		}
		return result

	case *ast.InfixExpression:
		return e.evalInfix(node, env)

	case *ast.TernaryExpression:
		cond := e.Eval(node.Condition, env)
		if object.IsError(cond) {
			return cond
		}
		if object.Truthy(cond) {
			return e.Eval(node.Then, env)
		}
		return e.Eval(node.Else, env)

	case *ast.AssignExpression:
		return e.evalAssign(node, env)

	case *ast.FunctionLiteral:
		return e.makeFunction(node, env)

	case *ast.CallExpression:
		return e.evalCall(node, env)

	case *ast.IndexExpression:
		left := e.Eval(node.Left, env)
		if object.IsError(left) {
			return left
		}
		index := e.Eval(node.Index, env)
		if object.IsError(index) {
			return index
		}
		result := object.Index(left, index, node.Pos)
		if err, ok := result.(*object.ErrorObject); ok {
			return e.fail(err)
		}
		return result

	case *ast.MemberExpression:
		return e.evalMember(node, env)

	case *ast.NewExpression:
		class := e.Eval(node.Class, env)
		if object.IsError(class) {
			return class
		}
		args, errObj := e.evalArgs(node.Arguments, env)
		if errObj != nil {
			return errObj
		}
		return e.instantiate(class, args, node.Pos)

	case *ast.ThisExpression:
		if value, ok := env.Get("this"); ok {
			return value
		}
		return e.newError(object.TypeError, node.Pos, "`this` used outside a method")

	case *ast.SuperExpression:
		return e.newError(object.TypeError, node.Pos, "`super` is only valid as `super.<method>(...)`")

	case *ast.AwaitExpression:
		return e.evalAwait(node, env)
	}

	return e.newError(object.TypeError, node.Position(), "cannot evaluate node %T", node)
}

func (e *Evaluator) evalProgram(program *ast.Program, env *object.Environment) object.Object {
	var result object.Object = object.NIL
	for _, stmt := range program.Statements {
		result = e.Eval(stmt, env)
		switch result := result.(type) {
		case *object.ReturnValue:
			return result.Value
		case *object.ErrorObject:
			return result
		}
	}
	return result
}

// evalBlock runs statements in the given scope; callers decide whether that
// scope is fresh.
func (e *Evaluator) evalBlock(block *ast.BlockStatement, env *object.Environment) object.Object {
	var result object.Object = object.NIL
	for _, stmt := range block.Statements {
		result = e.Eval(stmt, env)
		if isSignal(result) {
			return result
		}
	}
	return result
}

func (e *Evaluator) evalIf(node *ast.IfStatement, env *object.Environment) object.Object {
	cond := e.Eval(node.Condition, env)
	if object.IsError(cond) {
		return cond
	}
	if object.Truthy(cond) {
		return e.evalBlock(node.Then, object.NewEnclosedEnvironment(env))
	}
	if node.Else != nil {
		return e.Eval(node.Else, env)
	}
	return object.NIL
}

func (e *Evaluator) evalWhile(node *ast.WhileStatement, env *object.Environment) object.Object {
	for {
		cond := e.Eval(node.Condition, env)
		if object.IsError(cond) {
			return cond
		}
		if !object.Truthy(cond) {
			return object.NIL
		}
		result := e.evalBlock(node.Body, object.NewEnclosedEnvironment(env))
		switch result.(type) {
		case *object.BreakSignal:
			return object.NIL
		case *object.ContinueSignal:
			continue
		case *object.ReturnValue, *object.ErrorObject:
			return result
		}
	}
}

func (e *Evaluator) evalFor(node *ast.ForStatement, env *object.Environment) object.Object {
	loopEnv := object.NewEnclosedEnvironment(env)
	if node.Init != nil {
		if result := e.Eval(node.Init, loopEnv); object.IsError(result) {
			return result
		}
	}
	for {
		if node.Condition != nil {
			cond := e.Eval(node.Condition, loopEnv)
			if object.IsError(cond) {
				return cond
			}
			if !object.Truthy(cond) {
				return object.NIL
			}
		}
		result := e.evalBlock(node.Body, object.NewEnclosedEnvironment(loopEnv))
		switch result.(type) {
		case *object.BreakSignal:
			return object.NIL
		case *object.ReturnValue, *object.ErrorObject:
			return result
		}
		if node.Post != nil {
			if result := e.Eval(node.Post, loopEnv); object.IsError(result) {
				return result
			}
		}
	}
}

func (e *Evaluator) evalForIn(node *ast.ForInStatement, env *object.Environment) object.Object {
	iterable := e.Eval(node.Iterable, env)
	if object.IsError(iterable) {
		return iterable
	}
	iter := object.NewIterator(iterable, node.Pos)
	if err, ok := iter.(*object.ErrorObject); ok {
		return e.fail(err)
	}
	it := iter.(*object.Iterator)
	// One binding for the whole loop, reassigned per iteration; closures
	// created in the body share it, the same way the compiled engine shares
	// the loop variable's slot.
	loopEnv := object.NewEnclosedEnvironment(env)
	loopEnv.Define(node.Name, object.NIL, true)
	for {
		item, ok := it.Next()
		if !ok {
			return object.NIL
		}
		loopEnv.Assign(node.Name, item)
		result := e.evalBlock(node.Body, object.NewEnclosedEnvironment(loopEnv))
		switch result.(type) {
		case *object.BreakSignal:
			return object.NIL
		case *object.ReturnValue, *object.ErrorObject:
			return result
		}
	}
}

// evalTry implements the overwrite rule: a finally block always runs, and if
// it raises (or transfers control) that replaces whatever was pending from
// the try or catch.
func (e *Evaluator) evalTry(node *ast.TryStatement, env *object.Environment) object.Object {
	result := e.evalBlock(node.Try, object.NewEnclosedEnvironment(env))

	if err, ok := result.(*object.ErrorObject); ok && node.Catch != nil {
		catchEnv := object.NewEnclosedEnvironment(env)
		catchEnv.Define(node.CatchName, err, false)
		result = e.evalBlock(node.Catch, catchEnv)
	}

	if node.Finally != nil {
		finallyResult := e.evalBlock(node.Finally, object.NewEnclosedEnvironment(env))
		if isSignal(finallyResult) {
			result = finallyResult
		}
	}

	if isSignal(result) {
		return result
	}
	return object.NIL
}

func (e *Evaluator) evalMatch(node *ast.MatchStatement, env *object.Environment) object.Object {
	subject := e.Eval(node.Subject, env)
	if object.IsError(subject) {
		return subject
	}
	var defaultCase *ast.MatchCase
	for _, c := range node.Cases {
		if c.Value == nil {
			defaultCase = c
			continue
		}
		value := e.Eval(c.Value, env)
		if object.IsError(value) {
			return value
		}
		if object.Equals(subject, value) {
			return e.evalBlock(c.Body, object.NewEnclosedEnvironment(env))
		}
	}
	if defaultCase != nil {
		return e.evalBlock(defaultCase.Body, object.NewEnclosedEnvironment(env))
	}
	return object.NIL
}

func (e *Evaluator) evalInfix(node *ast.InfixExpression, env *object.Environment) object.Object {
	// && and || short-circuit; everything else is strict.
	switch node.Operator {
	case "&&":
		left := e.Eval(node.Left, env)
		if object.IsError(left) {
			return left
		}
		if !object.Truthy(left) {
			return left
		}
		return e.Eval(node.Right, env)
	case "||":
		left := e.Eval(node.Left, env)
		if object.IsError(left) {
			return left
		}
		if object.Truthy(left) {
			return left
		}
		return e.Eval(node.Right, env)
	}

	left := e.Eval(node.Left, env)
	if object.IsError(left) {
		return left
	}
	right := e.Eval(node.Right, env)
	if object.IsError(right) {
		return right
	}
	result := object.BinaryOp(node.Operator, left, right, node.Pos)
	if err, ok := result.(*object.ErrorObject); ok {
		return e.fail(err)
	}
	return result
}

func (e *Evaluator) evalAssign(node *ast.AssignExpression, env *object.Environment) object.Object {
	value := e.Eval(node.Value, env)
	if object.IsError(value) {
		return value
	}

	switch target := node.Target.(type) {
	case *ast.Identifier:
		if _, err := env.Assign(target.Name, value); err != nil {
			kind := object.UnresolvedNameError
			if isImmutableErr(err) {
				kind = object.ImmutableBindingError
			}
			return e.newError(kind, node.Pos, "%s", err.Error())
		}
		return value
	case *ast.IndexExpression:
		left := e.Eval(target.Left, env)
		if object.IsError(left) {
			return left
		}
		index := e.Eval(target.Index, env)
		if object.IsError(index) {
			return index
		}
		result := object.SetIndex(left, index, value, node.Pos)
		if err, ok := result.(*object.ErrorObject); ok {
			return e.fail(err)
		}
		return result
	case *ast.MemberExpression:
		obj := e.Eval(target.Object, env)
		if object.IsError(obj) {
			return obj
		}
		result := object.SetMember(obj, target.Property, value, node.Pos)
		if err, ok := result.(*object.ErrorObject); ok {
			return e.fail(err)
		}
		return result
	}
	return e.newError(object.TypeError, node.Pos, "invalid assignment target")
}

func (e *Evaluator) evalMember(node *ast.MemberExpression, env *object.Environment) object.Object {
	if _, ok := node.Object.(*ast.SuperExpression); ok {
		return e.evalSuperMember(node, env)
	}
	obj := e.Eval(node.Object, env)
	if object.IsError(obj) {
		return obj
	}
	if task, ok := obj.(*sched.Task); ok {
		return e.taskMember(task, node.Property, node.Pos)
	}
	result := object.GetMember(obj, node.Property, node.Pos)
	if err, ok := result.(*object.ErrorObject); ok {
		return e.fail(err)
	}
	return result
}

// taskMember exposes the small introspection surface of Task values.
func (e *Evaluator) taskMember(task *sched.Task, name string, pos ast.Pos) object.Object {
	switch name {
	case "state":
		return &object.String{Value: task.State().String()}
	case "cancelled":
		return object.NativeBoolToBooleanObject(task.Cancelled())
	}
	return e.newError(object.KeyNotFoundError, pos, "task has no member `%s`", name)
}

func (e *Evaluator) evalSuperMember(node *ast.MemberExpression, env *object.Environment) object.Object {
	owner, ok := env.Get("__class__")
	if !ok {
		return e.newError(object.TypeError, node.Pos, "`super` used outside a method")
	}
	receiver, _ := env.Get("this")
	base := owner.(*object.Class).Base
	if base == nil {
		return e.newError(object.TypeError, node.Pos, "class `%s` has no base class", owner.(*object.Class).Name)
	}
	method, foundIn, found := base.ResolveMethod(node.Property)
	if !found {
		return e.newError(object.KeyNotFoundError, node.Pos, "base class `%s` has no method `%s`", base.Name, node.Property)
	}
	return &object.BoundMethod{Receiver: receiver.(*object.Instance), Method: method, Owner: foundIn}
}

func (e *Evaluator) makeFunction(node *ast.FunctionLiteral, env *object.Environment) *object.Function {
	return &object.Function{
		Name:       node.Name,
		Parameters: node.Parameters,
		Body:       node.Body,
		Env:        env,
		IsAsync:    node.IsAsync,
	}
}

func (e *Evaluator) evalClass(node *ast.ClassStatement, env *object.Environment) object.Object {
	class := &object.Class{Name: node.Name, Methods: make(map[string]object.Object)}
	if node.Base != "" {
		baseValue, ok := env.Get(node.Base)
		if !ok {
			return e.newError(object.UnresolvedNameError, node.Pos, "`%s` is not defined", node.Base)
		}
		base, ok := baseValue.(*object.Class)
		if !ok {
			return e.newError(object.TypeError, node.Pos, "`%s` is not a class", node.Base)
		}
		class.Base = base
	}
	for _, m := range node.Methods {
		class.Methods[m.Name] = e.makeFunction(m.Function, env)
	}
	if _, err := env.Define(node.Name, class, true); err != nil {
		return e.newError(object.ImmutableBindingError, node.Pos, "%s", err.Error())
	}
	return object.NIL
}

func (e *Evaluator) evalArgs(exprs []ast.Expression, env *object.Environment) ([]object.Object, *object.ErrorObject) {
	args := make([]object.Object, 0, len(exprs))
	for _, expr := range exprs {
		value := e.Eval(expr, env)
		if err, ok := value.(*object.ErrorObject); ok {
			return nil, err
		}
		args = append(args, value)
	}
	return args, nil
}

func (e *Evaluator) evalCall(node *ast.CallExpression, env *object.Environment) object.Object {
	callee := e.Eval(node.Function, env)
	if object.IsError(callee) {
		return callee
	}
	args, errObj := e.evalArgs(node.Arguments, env)
	if errObj != nil {
		return errObj
	}
	return e.applyCallable(callee, args, node.Pos)
}

func (e *Evaluator) applyCallable(callee object.Object, args []object.Object, pos ast.Pos) object.Object {
	switch callee := callee.(type) {
	case *object.Function:
		return e.applyFunction(callee, nil, args, pos)
	case *object.BoundMethod:
		fn, ok := callee.Method.(*object.Function)
		if !ok {
			return e.newError(object.TypeError, pos, "method is not callable in this engine")
		}
		return e.applyFunction(fn, callee, args, pos)
	case *object.Builtin:
		result := callee.Fn(pos, args...)
		if err, ok := result.(*object.ErrorObject); ok {
			return e.fail(err)
		}
		return result
	case *object.Class:
		return e.instantiate(callee, args, pos)
	default:
		return e.newError(object.TypeError, pos, "%s is not callable", object.TypeName(callee))
	}
}

// applyFunction runs fn synchronously, or spawns a fiber and returns a Task
// when fn is async. bound carries the receiver for method calls.
func (e *Evaluator) applyFunction(fn *object.Function, bound *object.BoundMethod, args []object.Object, pos ast.Pos) object.Object {
	if fn.IsAsync {
		task := e.Loop.Spawn(fn.Name, func(f *sched.Fiber) (object.Object, *object.ErrorObject) {
			child := e.withFiber(f)
			result := child.invoke(fn, bound, args, pos)
			if err, ok := result.(*object.ErrorObject); ok {
				return nil, err
			}
			return result, nil
		})
		return task
	}
	return e.invoke(fn, bound, args, pos)
}

func (e *Evaluator) invoke(fn *object.Function, bound *object.BoundMethod, args []object.Object, pos ast.Pos) object.Object {
	callEnv, errObj := e.extendFunctionEnv(fn, bound, args, pos)
	if errObj != nil {
		return errObj
	}

	e.stack = append(e.stack, object.StackFrame{Function: fn.Name, Pos: pos})
	slog.Debug("calling function", slog.String("name", fn.Name), slog.Int("args", len(args)))
	result := e.evalBlock(fn.Body, callEnv)
	e.stack = e.stack[:len(e.stack)-1]

	switch result := result.(type) {
	case *object.ReturnValue:
		return result.Value
	case *object.ErrorObject:
		return result
	case *object.BreakSignal, *object.ContinueSignal:
		return e.newError(object.TypeError, pos, "break/continue escaped function body")
	}
	return object.NIL
}

// extendFunctionEnv builds the call scope: positional binding, variadic
// collection, and call-time evaluation of defaults for omitted arguments.
func (e *Evaluator) extendFunctionEnv(fn *object.Function, bound *object.BoundMethod, args []object.Object, pos ast.Pos) (*object.Environment, *object.ErrorObject) {
	env := object.NewEnclosedEnvironment(fn.Env)

	if bound != nil {
		env.Define("this", bound.Receiver, false)
		env.Define("__class__", bound.Owner, false)
	}

	params := fn.Parameters
	variadic := len(params) > 0 && params[len(params)-1].Variadic
	maxPositional := len(params)
	if variadic {
		maxPositional--
	}
	required := 0
	for i := 0; i < maxPositional; i++ {
		if params[i].Default == nil {
			required++
		}
	}

	if len(args) < required {
		return nil, e.newError(object.ArityError, pos,
			"%s expects at least %d argument(s), got %d", fnLabel(fn), required, len(args))
	}
	if !variadic && len(args) > maxPositional {
		return nil, e.newError(object.ArityError, pos,
			"%s expects at most %d argument(s), got %d", fnLabel(fn), maxPositional, len(args))
	}

	for i := 0; i < maxPositional; i++ {
		param := params[i]
		var value object.Object
		if i < len(args) {
			value = args[i]
		} else {
			// Defaults re-evaluate in the call scope on every call.
			value = e.Eval(param.Default, env)
			if err, ok := value.(*object.ErrorObject); ok {
				return nil, err
			}
		}
		env.Define(param.Name, value, true)
	}

	if variadic {
		rest := &object.Array{Elements: []object.Object{}}
		if len(args) > maxPositional {
			rest.Elements = append(rest.Elements, args[maxPositional:]...)
		}
		env.Define(params[len(params)-1].Name, rest, true)
	}

	return env, nil
}

func fnLabel(fn *object.Function) string {
	if fn.Name != "" {
		return fmt.Sprintf("`%s`", fn.Name)
	}
	return "function"
}

func (e *Evaluator) instantiate(class object.Object, args []object.Object, pos ast.Pos) object.Object {
	cls, ok := class.(*object.Class)
	if !ok {
		return e.newError(object.TypeError, pos, "%s is not a class", object.TypeName(class))
	}
	instance := &object.Instance{Class: cls, Fields: object.NewMap()}
	if method, owner, found := cls.ResolveMethod("__init__"); found {
		fn, ok := method.(*object.Function)
		if !ok {
			return e.newError(object.TypeError, pos, "constructor is not callable in this engine")
		}
		bound := &object.BoundMethod{Receiver: instance, Method: fn, Owner: owner}
		result := e.applyFunction(fn, bound, args, pos)
		if object.IsError(result) {
			return result
		}
	} else if len(args) > 0 {
		return e.newError(object.ArityError, pos, "`%s` has no __init__ but was given %d argument(s)", cls.Name, len(args))
	}
	return instance
}

func (e *Evaluator) evalAwait(node *ast.AwaitExpression, env *object.Environment) object.Object {
	value := e.Eval(node.Value, env)
	if object.IsError(value) {
		return value
	}
	task, ok := value.(*sched.Task)
	if !ok {
		return e.newError(object.TypeError, node.Pos, "await expects a task, got %s", object.TypeName(value))
	}
	result, err := e.Loop.Await(e.fiber, task, node.Pos)
	if err != nil {
		// Rejection propagates as a throw at the await site.
		return e.fail(err)
	}
	return result
}

func isImmutableErr(err error) bool {
	return errors.Is(err, object.ErrImmutable)
}
