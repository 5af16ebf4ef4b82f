package compiler

import (
	"fmt"

	"hexza/internal/ast"
	"hexza/internal/code"
	"hexza/internal/object"
)

// Compiler lowers the AST to bytecode with semantics matching the
// tree-walking evaluator. Name resolution is static: unresolved names are
// reported before execution. Finally blocks are inlined at every normal
// exit path (fallthrough, return, break, continue); the error path reaches
// them through the VM's handler unwinding.

type loopCtx struct {
	breakJumps     []int
	continueJumps  []int
	continueTarget int // -1 until the target is known; then a direct back-jump
	tryLen         int // active trys when the loop was entered
}

type tryCtx struct {
	finally *ast.BlockStatement
}

type scope struct {
	instructions code.Instructions
	constants    []object.Object
	positions    []object.PosEntry
	table        *SymbolTable // innermost block table
	root         *SymbolTable // function root table
	loops        []*loopCtx
	trys         []*tryCtx
	isMethod     bool
	lastPos      ast.Pos
}

type Compiler struct {
	scopes  []*scope
	globals *SymbolTable
}

// New creates a compiler whose global table starts with the given builtin
// names; the VM is handed their values at the same indexes.
func New(builtins []string) *Compiler {
	globals := NewSymbolTable()
	for _, name := range builtins {
		globals.Define(name, false)
	}
	return &Compiler{globals: globals}
}

// NumGlobals is the global-slot count after compilation, builtins included.
func (c *Compiler) NumGlobals() int { return c.globals.NumDefinitions() }

// Compile lowers a whole program into the implicit main function. The value
// of the final expression statement becomes the program result.
func (c *Compiler) Compile(program *ast.Program) (*object.CompiledFunction, *object.ErrorObject) {
	main := &scope{table: c.globals, root: c.globals}
	c.scopes = []*scope{main}

	stmts := program.Statements
	c.hoistDeclarations(stmts)
	for i, stmt := range stmts {
		last := i == len(stmts)-1
		if es, ok := stmt.(*ast.ExpressionStatement); ok && last {
			if err := c.compileExpr(es.Expression); err != nil {
				return nil, err
			}
			c.emit(es.Pos, code.OpReturn)
			return c.finishMain(program), nil
		}
		if err := c.compileStmt(stmt); err != nil {
			return nil, err
		}
	}
	c.emit(program.Position(), code.OpNull)
	c.emit(program.Position(), code.OpReturn)
	return c.finishMain(program), nil
}

func (c *Compiler) finishMain(program *ast.Program) *object.CompiledFunction {
	s := c.scope()
	return &object.CompiledFunction{
		Name:         "main",
		Instructions: s.instructions,
		Constants:    s.constants,
		Positions:    s.positions,
		Pos:          program.Position(),
	}
}

func (c *Compiler) scope() *scope { return c.scopes[len(c.scopes)-1] }

func (c *Compiler) emit(pos ast.Pos, op code.Opcode, operands ...int) int {
	s := c.scope()
	offset := len(s.instructions)
	if pos.Line != 0 && pos != s.lastPos {
		s.positions = append(s.positions, object.PosEntry{Offset: offset, Pos: pos})
		s.lastPos = pos
	}
	s.instructions = append(s.instructions, code.Make(op, operands...)...)
	return offset
}

func (c *Compiler) addConstant(obj object.Object) int {
	s := c.scope()
	s.constants = append(s.constants, obj)
	return len(s.constants) - 1
}

// patchU16 overwrites a two-byte operand with the current position.
func (c *Compiler) patchU16(operandOffset int) {
	c.patchU16To(operandOffset, len(c.scope().instructions))
}

func (c *Compiler) patchU16To(operandOffset, target int) {
	ins := c.scope().instructions
	ins[operandOffset] = byte(target >> 8)
	ins[operandOffset+1] = byte(target)
}

func (c *Compiler) compileError(kind object.ErrorKind, pos ast.Pos, format string, a ...any) *object.ErrorObject {
	return object.NewError(kind, pos, format, a...)
}

// emitRaise compiles to a runtime throw so the VM fails at the same point
// in execution as the evaluator does.
func (c *Compiler) emitRaise(kind object.ErrorKind, pos ast.Pos, format string, a ...any) {
	idx, _ := code.RaiseKindIndex(string(kind))
	msg := c.addConstant(&object.String{Value: fmt.Sprintf(format, a...)})
	c.emit(pos, code.OpRaise, idx, msg)
}

// hoistDeclarations predeclares function and class names of a statement
// list so sibling declarations can reference each other.
func (c *Compiler) hoistDeclarations(stmts []ast.Statement) {
	table := c.scope().table
	for _, stmt := range stmts {
		switch stmt := stmt.(type) {
		case *ast.FunctionStatement:
			if _, ok := table.Local(stmt.Name); !ok {
				table.Define(stmt.Name, true)
			}
		case *ast.ClassStatement:
			if _, ok := table.Local(stmt.Name); !ok {
				table.Define(stmt.Name, true)
			}
		}
	}
}

func (c *Compiler) pushBlock() { s := c.scope(); s.table = s.table.NewBlock() }
func (c *Compiler) popBlock()  { s := c.scope(); s.table = s.table.outer }

func (c *Compiler) compileBlock(block *ast.BlockStatement) *object.ErrorObject {
	c.pushBlock()
	defer c.popBlock()
	c.hoistDeclarations(block.Statements)
	for _, stmt := range block.Statements {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

// store emits the write for a symbol in the current scope.
func (c *Compiler) store(pos ast.Pos, res *Resolution) {
	switch res.Scope {
	case GlobalScope:
		c.emit(pos, code.OpSetGlobal, res.Symbol.Index)
	case LocalScope:
		c.emit(pos, code.OpSetLocal, res.Symbol.Index)
	case FreeScope:
		c.emit(pos, code.OpSetFree, res.FreeIndex)
	}
}

func (c *Compiler) load(pos ast.Pos, res *Resolution) {
	switch res.Scope {
	case GlobalScope:
		c.emit(pos, code.OpGetGlobal, res.Symbol.Index)
	case LocalScope:
		c.emit(pos, code.OpGetLocal, res.Symbol.Index)
	case FreeScope:
		c.emit(pos, code.OpGetFree, res.FreeIndex)
	}
}

func (c *Compiler) defineAndStore(pos ast.Pos, name string, mutable bool) {
	table := c.scope().table
	sym, ok := table.Define(name, mutable)
	if !ok {
		c.emitRaise(object.ImmutableBindingError, pos, "const `%s` is already defined in this scope", name)
		return
	}
	scopeKind := LocalScope
	if table.global {
		scopeKind = GlobalScope
	}
	c.store(pos, &Resolution{Symbol: sym, Scope: scopeKind})
}

func (c *Compiler) compileStmt(stmt ast.Statement) *object.ErrorObject {
	switch stmt := stmt.(type) {

	case *ast.ExpressionStatement:
		if err := c.compileExpr(stmt.Expression); err != nil {
			return err
		}
		c.emit(stmt.Pos, code.OpPop)
		return nil

	case *ast.LetStatement:
		return c.compileLet(stmt)

	case *ast.ReturnStatement:
		return c.compileReturn(stmt)

	case *ast.BlockStatement:
		return c.compileBlock(stmt)

	case *ast.IfStatement:
		return c.compileIf(stmt)

	case *ast.WhileStatement:
		return c.compileWhile(stmt)

	case *ast.ForStatement:
		return c.compileFor(stmt)

	case *ast.ForInStatement:
		return c.compileForIn(stmt)

	case *ast.BreakStatement:
		return c.compileBreak(stmt)

	case *ast.ContinueStatement:
		return c.compileContinue(stmt)

	case *ast.ThrowStatement:
		if err := c.compileExpr(stmt.Value); err != nil {
			return err
		}
		c.emit(stmt.Pos, code.OpThrow)
		return nil

	case *ast.TryStatement:
		return c.compileTry(stmt)

	case *ast.MatchStatement:
		return c.compileMatch(stmt)

	case *ast.FunctionStatement:
		if err := c.compileFunction(stmt.Function, false); err != nil {
			return err
		}
		c.storeDeclared(stmt.Pos, stmt.Name)
		return nil

	case *ast.ClassStatement:
		return c.compileClass(stmt)
	}
	return c.compileError(object.TypeError, stmt.Position(), "cannot compile statement %T", stmt)
}

// storeDeclared writes to a name hoisted into the current block table.
func (c *Compiler) storeDeclared(pos ast.Pos, name string) {
	table := c.scope().table
	sym, _ := table.Local(name)
	scopeKind := LocalScope
	if table.global {
		scopeKind = GlobalScope
	}
	c.store(pos, &Resolution{Symbol: sym, Scope: scopeKind})
}

func (c *Compiler) compileLet(stmt *ast.LetStatement) *object.ErrorObject {
	table := c.scope().table
	if existing, ok := table.Local(stmt.Name); ok && !existing.Mutable {
		// The evaluator raises after evaluating the initializer; match that.
		if stmt.Value != nil {
			if err := c.compileExpr(stmt.Value); err != nil {
				return err
			}
			c.emit(stmt.Pos, code.OpPop)
		}
		c.emitRaise(object.ImmutableBindingError, stmt.Pos, "const `%s` is already defined in this scope", stmt.Name)
		return nil
	}

	// Named function initializers see their own binding, enabling
	// self-recursion, just as the evaluator's late lookup does.
	if fl, ok := stmt.Value.(*ast.FunctionLiteral); ok {
		c.defineOnly(stmt.Name, stmt.Kind != "const")
		if err := c.compileFunction(fl, false); err != nil {
			return err
		}
		c.storeDeclared(stmt.Pos, stmt.Name)
		return nil
	}

	if stmt.Value != nil {
		if err := c.compileExpr(stmt.Value); err != nil {
			return err
		}
	} else {
		c.emit(stmt.Pos, code.OpNull)
	}
	c.defineAndStore(stmt.Pos, stmt.Name, stmt.Kind != "const")
	return nil
}

func (c *Compiler) defineOnly(name string, mutable bool) {
	c.scope().table.Define(name, mutable)
}

func (c *Compiler) compileReturn(stmt *ast.ReturnStatement) *object.ErrorObject {
	if stmt.Value != nil {
		if err := c.compileExpr(stmt.Value); err != nil {
			return err
		}
	} else {
		c.emit(stmt.Pos, code.OpNull)
	}
	// Leaving through active trys runs their finally blocks innermost-first.
	if err := c.unwindTrys(stmt.Pos, 0); err != nil {
		return err
	}
	c.emit(stmt.Pos, code.OpReturn)
	return nil
}

// unwindTrys emits OpTryEnd plus the inlined finally for every try context
// above downTo, innermost first. Each finally compiles with the contexts it
// sits inside masked off, so a break, continue or return within it unwinds
// only the trys enclosing the finally itself and never re-enters it.
func (c *Compiler) unwindTrys(pos ast.Pos, downTo int) *object.ErrorObject {
	s := c.scope()
	saved := s.trys
	for i := len(saved) - 1; i >= downTo; i-- {
		c.emit(pos, code.OpTryEnd)
		if fin := saved[i].finally; fin != nil {
			s.trys = saved[:i:i]
			if err := c.compileBlock(fin); err != nil {
				s.trys = saved
				return err
			}
		}
	}
	s.trys = saved
	return nil
}

// compileFinally inlines a finally block with the try contexts from keep
// onward masked off; see unwindTrys.
func (c *Compiler) compileFinally(keep int, fin *ast.BlockStatement) *object.ErrorObject {
	s := c.scope()
	saved := s.trys
	s.trys = saved[:keep:keep]
	err := c.compileBlock(fin)
	s.trys = saved
	return err
}

func (c *Compiler) compileIf(stmt *ast.IfStatement) *object.ErrorObject {
	if err := c.compileExpr(stmt.Condition); err != nil {
		return err
	}
	jumpElse := c.emit(stmt.Pos, code.OpJumpIfFalse, 0xFFFF)
	if err := c.compileBlock(stmt.Then); err != nil {
		return err
	}
	if stmt.Else == nil {
		c.patchU16(jumpElse + 1)
		return nil
	}
	jumpEnd := c.emit(stmt.Pos, code.OpJump, 0xFFFF)
	c.patchU16(jumpElse + 1)
	if err := c.compileStmt(stmt.Else); err != nil {
		return err
	}
	c.patchU16(jumpEnd + 1)
	return nil
}

func (c *Compiler) compileWhile(stmt *ast.WhileStatement) *object.ErrorObject {
	s := c.scope()
	condTarget := len(s.instructions)
	if err := c.compileExpr(stmt.Condition); err != nil {
		return err
	}
	jumpEnd := c.emit(stmt.Pos, code.OpJumpIfFalse, 0xFFFF)

	loop := &loopCtx{continueTarget: condTarget, tryLen: len(s.trys)}
	s.loops = append(s.loops, loop)
	if err := c.compileBlock(stmt.Body); err != nil {
		return err
	}
	s.loops = s.loops[:len(s.loops)-1]

	c.emit(stmt.Pos, code.OpJump, condTarget)
	c.patchU16(jumpEnd + 1)
	for _, j := range loop.breakJumps {
		c.patchU16(j + 1)
	}
	return nil
}

func (c *Compiler) compileFor(stmt *ast.ForStatement) *object.ErrorObject {
	s := c.scope()
	c.pushBlock()
	defer c.popBlock()

	if stmt.Init != nil {
		if err := c.compileStmt(stmt.Init); err != nil {
			return err
		}
	}
	condTarget := len(s.instructions)
	var jumpEnd int
	if stmt.Condition != nil {
		if err := c.compileExpr(stmt.Condition); err != nil {
			return err
		}
		jumpEnd = c.emit(stmt.Pos, code.OpJumpIfFalse, 0xFFFF)
	} else {
		jumpEnd = -1
	}

	loop := &loopCtx{continueTarget: -1, tryLen: len(s.trys)}
	s.loops = append(s.loops, loop)
	if err := c.compileBlock(stmt.Body); err != nil {
		return err
	}
	s.loops = s.loops[:len(s.loops)-1]

	// continue lands on the post clause.
	for _, j := range loop.continueJumps {
		c.patchU16(j + 1)
	}
	if stmt.Post != nil {
		if err := c.compileStmt(stmt.Post); err != nil {
			return err
		}
	}
	c.emit(stmt.Pos, code.OpJump, condTarget)
	if jumpEnd >= 0 {
		c.patchU16(jumpEnd + 1)
	}
	for _, j := range loop.breakJumps {
		c.patchU16(j + 1)
	}
	return nil
}

func (c *Compiler) compileForIn(stmt *ast.ForInStatement) *object.ErrorObject {
	s := c.scope()
	if err := c.compileExpr(stmt.Iterable); err != nil {
		return err
	}
	c.emit(stmt.Pos, code.OpGetIter)

	start := len(s.instructions)
	iterNext := c.emit(stmt.Pos, code.OpIterNext, 0xFFFF)

	c.pushBlock()
	c.defineAndStore(stmt.Pos, stmt.Name, true)

	loop := &loopCtx{continueTarget: start, tryLen: len(s.trys)}
	s.loops = append(s.loops, loop)
	err := c.compileBlock(stmt.Body)
	s.loops = s.loops[:len(s.loops)-1]
	c.popBlock()
	if err != nil {
		return err
	}

	c.emit(stmt.Pos, code.OpJump, start)
	// Exhaustion and break both land here with the iterator still on the
	// stack.
	c.patchU16(iterNext + 1)
	for _, j := range loop.breakJumps {
		c.patchU16(j + 1)
	}
	c.emit(stmt.Pos, code.OpPop)
	return nil
}

func (c *Compiler) currentLoop(pos ast.Pos, what string) (*loopCtx, *object.ErrorObject) {
	s := c.scope()
	if len(s.loops) == 0 {
		return nil, c.compileError(object.TypeError, pos, "`%s` outside a loop", what)
	}
	return s.loops[len(s.loops)-1], nil
}

func (c *Compiler) compileBreak(stmt *ast.BreakStatement) *object.ErrorObject {
	loop, err := c.currentLoop(stmt.Pos, "break")
	if err != nil {
		return err
	}
	if err := c.unwindTrys(stmt.Pos, loop.tryLen); err != nil {
		return err
	}
	loop.breakJumps = append(loop.breakJumps, c.emit(stmt.Pos, code.OpJump, 0xFFFF))
	return nil
}

func (c *Compiler) compileContinue(stmt *ast.ContinueStatement) *object.ErrorObject {
	loop, err := c.currentLoop(stmt.Pos, "continue")
	if err != nil {
		return err
	}
	if err := c.unwindTrys(stmt.Pos, loop.tryLen); err != nil {
		return err
	}
	if loop.continueTarget >= 0 {
		c.emit(stmt.Pos, code.OpJump, loop.continueTarget)
	} else {
		loop.continueJumps = append(loop.continueJumps, c.emit(stmt.Pos, code.OpJump, 0xFFFF))
	}
	return nil
}

// compileTry lays out: try body, inline finally, jump end; catch body,
// inline finally, jump end; the unwind-path finally ending in OpRethrow.
func (c *Compiler) compileTry(stmt *ast.TryStatement) *object.ErrorObject {
	s := c.scope()
	tryBegin := c.emit(stmt.Pos, code.OpTryBegin, code.TryNone, code.TryNone)

	s.trys = append(s.trys, &tryCtx{finally: stmt.Finally})
	if err := c.compileBlock(stmt.Try); err != nil {
		return err
	}
	c.emit(stmt.Pos, code.OpTryEnd)
	var endJumps []int
	if stmt.Finally != nil {
		if err := c.compileFinally(len(s.trys)-1, stmt.Finally); err != nil {
			return err
		}
	}
	endJumps = append(endJumps, c.emit(stmt.Pos, code.OpJump, 0xFFFF))

	if stmt.Catch != nil {
		c.patchU16(tryBegin + 1) // catch target
		c.pushBlock()
		c.defineAndStore(stmt.Pos, stmt.CatchName, false)
		c.hoistDeclarations(stmt.Catch.Statements)
		var err *object.ErrorObject
		for _, st := range stmt.Catch.Statements {
			if err = c.compileStmt(st); err != nil {
				break
			}
		}
		c.popBlock()
		if err != nil {
			return err
		}
		c.emit(stmt.Pos, code.OpTryEnd)
		if stmt.Finally != nil {
			if err := c.compileFinally(len(s.trys)-1, stmt.Finally); err != nil {
				return err
			}
		}
		endJumps = append(endJumps, c.emit(stmt.Pos, code.OpJump, 0xFFFF))
	}
	s.trys = s.trys[:len(s.trys)-1]

	if stmt.Finally != nil {
		c.patchU16(tryBegin + 3) // finally target for the unwind path
		if err := c.compileBlock(stmt.Finally); err != nil {
			return err
		}
		c.emit(stmt.Pos, code.OpRethrow)
	}
	for _, j := range endJumps {
		c.patchU16(j + 1)
	}
	return nil
}

func (c *Compiler) compileMatch(stmt *ast.MatchStatement) *object.ErrorObject {
	if err := c.compileExpr(stmt.Subject); err != nil {
		return err
	}
	eqIdx, _ := code.BinaryOpIndex("==")
	var endJumps []int
	var defaultCase *ast.MatchCase
	for _, cse := range stmt.Cases {
		if cse.Value == nil {
			defaultCase = cse
			continue
		}
		c.emit(cse.Pos, code.OpDup)
		if err := c.compileExpr(cse.Value); err != nil {
			return err
		}
		c.emit(cse.Pos, code.OpBinary, eqIdx)
		next := c.emit(cse.Pos, code.OpJumpIfFalse, 0xFFFF)
		c.emit(cse.Pos, code.OpPop) // drop the subject
		if err := c.compileBlock(cse.Body); err != nil {
			return err
		}
		endJumps = append(endJumps, c.emit(cse.Pos, code.OpJump, 0xFFFF))
		c.patchU16(next + 1)
	}
	c.emit(stmt.Pos, code.OpPop) // no case matched: drop the subject
	if defaultCase != nil {
		if err := c.compileBlock(defaultCase.Body); err != nil {
			return err
		}
	}
	for _, j := range endJumps {
		c.patchU16(j + 1)
	}
	return nil
}

func (c *Compiler) compileClass(stmt *ast.ClassStatement) *object.ErrorObject {
	if stmt.Base != "" {
		res, ok := c.scope().table.Resolve(stmt.Base)
		if !ok {
			return c.compileError(object.UnresolvedNameError, stmt.Pos, "`%s` is not defined", stmt.Base)
		}
		c.load(stmt.Pos, res)
	} else {
		c.emit(stmt.Pos, code.OpNull)
	}
	for _, m := range stmt.Methods {
		if err := c.compileFunction(m.Function, true); err != nil {
			return err
		}
	}
	nameIdx := c.addConstant(&object.String{Value: stmt.Name})
	c.emit(stmt.Pos, code.OpMakeClass, nameIdx, len(stmt.Methods))
	c.storeDeclared(stmt.Pos, stmt.Name)
	return nil
}

func (c *Compiler) compileFunction(fl *ast.FunctionLiteral, isMethod bool) *object.ErrorObject {
	enclosing := c.scope()
	fnTable := enclosing.table.NewFunction()
	c.scopes = append(c.scopes, &scope{table: fnTable, root: fnTable, isMethod: isMethod})

	if isMethod {
		fnTable.Define("this", false)
	}
	required := 0
	variadic := false
	for i, p := range fl.Parameters {
		if p.Variadic {
			if i != len(fl.Parameters)-1 {
				c.scopes = c.scopes[:len(c.scopes)-1]
				return c.compileError(object.TypeError, p.Pos, "variadic parameter must be last")
			}
			variadic = true
		} else if p.Default == nil {
			required++
		}
		fnTable.Define(p.Name, true)
	}

	// Default prologue: omitted arguments arrive as unset slots; fill them
	// by evaluating the default in the call scope.
	base := 0
	if isMethod {
		base = 1
	}
	for i, p := range fl.Parameters {
		if p.Default == nil {
			continue
		}
		slot := base + i
		skip := c.emit(p.Pos, code.OpDefault, slot, 0xFFFF)
		if err := c.compileExpr(p.Default); err != nil {
			c.scopes = c.scopes[:len(c.scopes)-1]
			return err
		}
		c.emit(p.Pos, code.OpSetLocal, slot)
		c.patchU16(skip + 2)
	}

	c.hoistDeclarations(fl.Body.Statements)
	for _, stmt := range fl.Body.Statements {
		if err := c.compileStmt(stmt); err != nil {
			c.scopes = c.scopes[:len(c.scopes)-1]
			return err
		}
	}
	c.emit(fl.Pos, code.OpNull)
	c.emit(fl.Pos, code.OpReturn)

	fnScope := c.scope()
	freeList := fnTable.FreeList()
	// Slot and capture indexes travel in one-byte operands.
	if n := fnTable.NumDefinitions(); n > 255 {
		c.scopes = c.scopes[:len(c.scopes)-1]
		return c.compileError(object.TypeError, fl.Pos, "function has too many local variables (%d, limit 255)", n)
	}
	if n := len(freeList); n > 255 {
		c.scopes = c.scopes[:len(c.scopes)-1]
		return c.compileError(object.TypeError, fl.Pos, "function captures too many variables (%d, limit 255)", n)
	}
	fn := &object.CompiledFunction{
		Name:         fl.Name,
		Instructions: fnScope.instructions,
		Constants:    fnScope.constants,
		Positions:    fnScope.positions,
		NumLocals:    fnTable.NumDefinitions(),
		NumParams:    len(fl.Parameters),
		Required:     required,
		Variadic:     variadic,
		IsAsync:      fl.IsAsync,
		IsMethod:     isMethod,
		Pos:          fl.Pos,
	}
	c.scopes = c.scopes[:len(c.scopes)-1]

	// Assemble the capture list in the enclosing scope: fresh cells for the
	// enclosing function's own locals, existing cells for its free vars.
	for _, res := range freeList {
		switch res.Scope {
		case LocalScope:
			c.emit(fl.Pos, code.OpMakeCell, res.Symbol.Index, 0)
		case FreeScope:
			c.emit(fl.Pos, code.OpGetFreeCell, res.FreeIndex)
		}
	}
	constIdx := c.addConstant(fn)
	c.emit(fl.Pos, code.OpClosure, constIdx, len(freeList))
	return nil
}

func (c *Compiler) compileExpr(expr ast.Expression) *object.ErrorObject {
	switch expr := expr.(type) {

	case *ast.Identifier:
		res, ok := c.scope().table.Resolve(expr.Name)
		if !ok {
			return c.compileError(object.UnresolvedNameError, expr.Pos, "`%s` is not defined", expr.Name)
		}
		c.load(expr.Pos, res)
		return nil

	case *ast.IntegerLiteral:
		c.emit(expr.Pos, code.OpConstant, c.addConstant(&object.Integer{Value: expr.Value}))
		return nil

	case *ast.FloatLiteral:
		c.emit(expr.Pos, code.OpConstant, c.addConstant(&object.Float{Value: expr.Value}))
		return nil

	case *ast.StringLiteral:
		c.emit(expr.Pos, code.OpConstant, c.addConstant(&object.String{Value: expr.Value}))
		return nil

	case *ast.BooleanLiteral:
		if expr.Value {
			c.emit(expr.Pos, code.OpTrue)
		} else {
			c.emit(expr.Pos, code.OpFalse)
		}
		return nil

	case *ast.NullLiteral:
		c.emit(expr.Pos, code.OpNull)
		return nil

	case *ast.ArrayLiteral:
		for _, el := range expr.Elements {
			if err := c.compileExpr(el); err != nil {
				return err
			}
		}
		c.emit(expr.Pos, code.OpArray, len(expr.Elements))
		return nil

	case *ast.ObjectLiteral:
		for i, key := range expr.Keys {
			c.emit(expr.Pos, code.OpConstant, c.addConstant(&object.String{Value: key}))
			if err := c.compileExpr(expr.Values[i]); err != nil {
				return err
			}
		}
		c.emit(expr.Pos, code.OpObject, len(expr.Keys))
		return nil

	case *ast.PrefixExpression:
		if err := c.compileExpr(expr.Right); err != nil {
			return err
		}
		idx, ok := code.UnaryOpIndex(expr.Operator)
		if !ok {
			return c.compileError(object.TypeError, expr.Pos, "unknown operator `%s`", expr.Operator)
		}
		c.emit(expr.Pos, code.OpUnary, idx)
		return nil

	case *ast.InfixExpression:
		return c.compileInfix(expr)

	case *ast.TernaryExpression:
		if err := c.compileExpr(expr.Condition); err != nil {
			return err
		}
		jumpElse := c.emit(expr.Pos, code.OpJumpIfFalse, 0xFFFF)
		if err := c.compileExpr(expr.Then); err != nil {
			return err
		}
		jumpEnd := c.emit(expr.Pos, code.OpJump, 0xFFFF)
		c.patchU16(jumpElse + 1)
		if err := c.compileExpr(expr.Else); err != nil {
			return err
		}
		c.patchU16(jumpEnd + 1)
		return nil

	case *ast.AssignExpression:
		return c.compileAssign(expr)

	case *ast.FunctionLiteral:
		return c.compileFunction(expr, false)

	case *ast.CallExpression:
		if err := c.compileExpr(expr.Function); err != nil {
			return err
		}
		for _, arg := range expr.Arguments {
			if err := c.compileExpr(arg); err != nil {
				return err
			}
		}
		c.emit(expr.Pos, code.OpCall, len(expr.Arguments))
		return nil

	case *ast.IndexExpression:
		if err := c.compileExpr(expr.Left); err != nil {
			return err
		}
		if err := c.compileExpr(expr.Index); err != nil {
			return err
		}
		c.emit(expr.Pos, code.OpIndex)
		return nil

	case *ast.MemberExpression:
		return c.compileMember(expr)

	case *ast.NewExpression:
		if err := c.compileExpr(expr.Class); err != nil {
			return err
		}
		for _, arg := range expr.Arguments {
			if err := c.compileExpr(arg); err != nil {
				return err
			}
		}
		c.emit(expr.Pos, code.OpNew, len(expr.Arguments))
		return nil

	case *ast.ThisExpression:
		// Inside a method `this` is local slot 0; nested closures reach it
		// as a captured free variable.
		if res, ok := c.scope().table.Resolve("this"); ok {
			c.load(expr.Pos, res)
			return nil
		}
		c.emitRaise(object.TypeError, expr.Pos, "`this` used outside a method")
		return nil

	case *ast.SuperExpression:
		c.emitRaise(object.TypeError, expr.Pos, "`super` is only valid as `super.<method>(...)`")
		return nil

	case *ast.AwaitExpression:
		if err := c.compileExpr(expr.Value); err != nil {
			return err
		}
		c.emit(expr.Pos, code.OpAwait)
		return nil
	}
	return c.compileError(object.TypeError, expr.Position(), "cannot compile expression %T", expr)
}

func (c *Compiler) compileInfix(expr *ast.InfixExpression) *object.ErrorObject {
	switch expr.Operator {
	case "&&":
		if err := c.compileExpr(expr.Left); err != nil {
			return err
		}
		end := c.emit(expr.Pos, code.OpJumpIfFalseKeep, 0xFFFF)
		c.emit(expr.Pos, code.OpPop)
		if err := c.compileExpr(expr.Right); err != nil {
			return err
		}
		c.patchU16(end + 1)
		return nil
	case "||":
		if err := c.compileExpr(expr.Left); err != nil {
			return err
		}
		end := c.emit(expr.Pos, code.OpJumpIfTrueKeep, 0xFFFF)
		c.emit(expr.Pos, code.OpPop)
		if err := c.compileExpr(expr.Right); err != nil {
			return err
		}
		c.patchU16(end + 1)
		return nil
	}
	if err := c.compileExpr(expr.Left); err != nil {
		return err
	}
	if err := c.compileExpr(expr.Right); err != nil {
		return err
	}
	idx, ok := code.BinaryOpIndex(expr.Operator)
	if !ok {
		return c.compileError(object.TypeError, expr.Pos, "unknown operator `%s`", expr.Operator)
	}
	c.emit(expr.Pos, code.OpBinary, idx)
	return nil
}

func (c *Compiler) compileAssign(expr *ast.AssignExpression) *object.ErrorObject {
	switch target := expr.Target.(type) {
	case *ast.Identifier:
		res, ok := c.scope().table.Resolve(target.Name)
		if !ok {
			return c.compileError(object.UnresolvedNameError, target.Pos, "`%s` is not defined", target.Name)
		}
		if err := c.compileExpr(expr.Value); err != nil {
			return err
		}
		if !res.Symbol.Mutable {
			c.emitRaise(object.ImmutableBindingError, expr.Pos, "cannot assign to const `%s`", target.Name)
			return nil
		}
		c.emit(expr.Pos, code.OpDup)
		c.store(expr.Pos, res)
		return nil
	case *ast.IndexExpression:
		if err := c.compileExpr(target.Left); err != nil {
			return err
		}
		if err := c.compileExpr(target.Index); err != nil {
			return err
		}
		if err := c.compileExpr(expr.Value); err != nil {
			return err
		}
		c.emit(expr.Pos, code.OpSetIndex)
		return nil
	case *ast.MemberExpression:
		if _, ok := target.Object.(*ast.SuperExpression); ok {
			return c.compileError(object.TypeError, expr.Pos, "cannot assign through `super`")
		}
		if err := c.compileExpr(target.Object); err != nil {
			return err
		}
		if err := c.compileExpr(expr.Value); err != nil {
			return err
		}
		c.emit(expr.Pos, code.OpSetMember, c.addConstant(&object.String{Value: target.Property}))
		return nil
	}
	return c.compileError(object.TypeError, expr.Pos, "invalid assignment target")
}

func (c *Compiler) compileMember(expr *ast.MemberExpression) *object.ErrorObject {
	if _, ok := expr.Object.(*ast.SuperExpression); ok {
		if !c.scope().isMethod {
			c.emitRaise(object.TypeError, expr.Pos, "`super` used outside a method")
			return nil
		}
		c.emit(expr.Pos, code.OpGetLocal, 0)
		c.emit(expr.Pos, code.OpGetSuper, c.addConstant(&object.String{Value: expr.Property}))
		return nil
	}
	if err := c.compileExpr(expr.Object); err != nil {
		return err
	}
	c.emit(expr.Pos, code.OpGetMember, c.addConstant(&object.String{Value: expr.Property}))
	return nil
}
