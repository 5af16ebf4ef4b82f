package engine

import (
	"bytes"
	"io"
	"log/slog"
	"time"

	"hexza/internal/ast"
	"hexza/internal/compiler"
	"hexza/internal/evaluator"
	"hexza/internal/foreign"
	"hexza/internal/object"
	"hexza/internal/sched"
	"hexza/internal/vm"
)

// The entry points exposed to front ends. Each run gets its own event loop
// and foreign registry so consecutive runs cannot observe each other.

// Result is the outcome of one engine run.
type Result struct {
	Value   object.Object
	Err     *object.ErrorObject
	Elapsed time.Duration
}

// Comparison is the outcome of running a program through both engines.
type Comparison struct {
	Eval  Result
	VM    Result
	Match bool
}

func newRegistry() *foreign.Registry {
	reg := foreign.NewRegistry()
	foreign.RegisterDB(reg)
	return reg
}

// Evaluate runs the program through the tree-walking evaluator.
func Evaluate(program *ast.Program, out io.Writer) (object.Object, *object.ErrorObject) {
	loop := sched.NewLoop()
	builtins := evaluator.Builtins(out, loop, newRegistry())

	env := object.NewEnvironment()
	for _, b := range builtins {
		env.Define(b.Name, b, false)
	}
	return evaluator.New(out, loop).Run(program, env)
}

// RunCompiled compiles the program and runs it on the bytecode VM.
// Compile-time failures surface the same way runtime errors do.
func RunCompiled(program *ast.Program, out io.Writer) (object.Object, *object.ErrorObject) {
	loop := sched.NewLoop()
	builtins := evaluator.Builtins(out, loop, newRegistry())

	names := make([]string, len(builtins))
	for i, b := range builtins {
		names[i] = b.Name
	}
	comp := compiler.New(names)
	main, err := comp.Compile(program)
	if err != nil {
		return nil, err
	}

	globals := make([]object.Object, comp.NumGlobals())
	for i, b := range builtins {
		globals[i] = b
	}
	return vm.New(main, globals, loop).Run()
}

// RunBoth executes the program through both engines, forwards the
// evaluator's output to out, and reports whether results and output agree.
func RunBoth(program *ast.Program, out io.Writer) *Comparison {
	var evalOut, vmOut bytes.Buffer

	cmp := &Comparison{}

	start := time.Now()
	cmp.Eval.Value, cmp.Eval.Err = Evaluate(program, &evalOut)
	cmp.Eval.Elapsed = time.Since(start)

	start = time.Now()
	cmp.VM.Value, cmp.VM.Err = RunCompiled(program, &vmOut)
	cmp.VM.Elapsed = time.Since(start)

	out.Write(evalOut.Bytes())

	cmp.Match = evalOut.String() == vmOut.String() && resultsAgree(cmp.Eval, cmp.VM)
	if !cmp.Match {
		slog.Warn("engine results diverge",
			slog.String("eval", renderResult(cmp.Eval)),
			slog.String("vm", renderResult(cmp.VM)))
	}
	return cmp
}

func resultsAgree(a, b Result) bool {
	if (a.Err == nil) != (b.Err == nil) {
		return false
	}
	if a.Err != nil {
		// One engine may report an error raw where the other wraps it as
		// uncaught; compare the underlying kinds.
		return rootKind(a.Err) == rootKind(b.Err)
	}
	if (a.Value == nil) != (b.Value == nil) {
		return false
	}
	if a.Value == nil {
		return true
	}
	return object.Equals(a.Value, b.Value)
}

func rootKind(err *object.ErrorObject) object.ErrorKind {
	for err.Kind == object.UncaughtError && err.Cause != nil {
		err = err.Cause
	}
	return err.Kind
}

func renderResult(r Result) string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.Value == nil {
		return "null"
	}
	return r.Value.Inspect()
}
