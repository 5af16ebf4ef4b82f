package vm

import (
	"fmt"
	"log/slog"

	"hexza/internal/ast"
	"hexza/internal/code"
	"hexza/internal/object"
	"hexza/internal/sched"
)

// VM executes compiled bytecode. One instance serves one fiber; calling an
// async closure forks the VM onto a new fiber with the globals slice shared.
// The loop's one-runner-at-a-time handoff makes that sharing safe.

const initialStackSize = 256

type handler struct {
	catchPC     int
	finallyPC   int
	sp          int
	pendingBase int
	inCatch     bool
}

// Frame is one activation record. Locals live in a per-frame heap slice so
// cells made from them stay valid after the frame returns.
type Frame struct {
	closure       *object.Closure
	ip            int
	locals        []object.Object
	handlers      []handler
	stackBase     int
	pendingBase   int
	discardResult bool
	callPos       ast.Pos
	isMain        bool
}

type VM struct {
	loop    *sched.Loop
	fiber   *sched.Fiber
	main    *object.CompiledFunction
	globals []object.Object

	frames   []*Frame
	stack    []object.Object
	sp       int
	pendings []*object.ErrorObject
}

// New prepares a VM for one program run. globals must be sized per the
// compiler's NumGlobals, with builtin values pre-filled at their indexes.
func New(main *object.CompiledFunction, globals []object.Object, loop *sched.Loop) *VM {
	return &VM{
		loop:    loop,
		main:    main,
		globals: globals,
		stack:   make([]object.Object, initialStackSize),
	}
}

// Run executes the main function as the root fiber of the loop.
func (vm *VM) Run() (object.Object, *object.ErrorObject) {
	return vm.loop.Main("main", func(f *sched.Fiber) (object.Object, *object.ErrorObject) {
		child := vm.fork(f)
		child.frames = append(child.frames, &Frame{
			closure: &object.Closure{Fn: vm.main},
			locals:  make([]object.Object, vm.main.NumLocals),
			callPos: vm.main.Pos,
			isMain:  true,
		})
		result, err := child.run()
		if err != nil {
			return nil, object.Uncaught(err)
		}
		return result, nil
	})
}

func (vm *VM) fork(f *sched.Fiber) *VM {
	return &VM{
		loop:    vm.loop,
		fiber:   f,
		main:    vm.main,
		globals: vm.globals,
		stack:   make([]object.Object, initialStackSize),
	}
}

func (vm *VM) push(o object.Object) {
	if vm.sp >= len(vm.stack) {
		vm.stack = append(vm.stack, o)
	} else {
		vm.stack[vm.sp] = o
	}
	vm.sp++
}

func (vm *VM) pop() object.Object {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek() object.Object {
	return vm.stack[vm.sp-1]
}

// fail stamps a freshly raised error with the current call-stack snapshot.
func (vm *VM) fail(err *object.ErrorObject) *object.ErrorObject {
	if err.Stack == nil {
		err.Stack = []object.StackFrame{}
		for _, fr := range vm.frames {
			if fr.isMain {
				continue
			}
			err.Stack = append(err.Stack, object.StackFrame{
				Function: fr.closure.Fn.Name,
				Pos:      fr.callPos,
			})
		}
	}
	return err
}

// raise transfers control to the innermost live handler: an unentered catch
// gets the error on the stack, a finally gets it parked on the pendings
// stack for OpRethrow. Returns false when no handler remains and the error
// escapes the run.
func (vm *VM) raise(err *object.ErrorObject) bool {
	err = vm.fail(err)
	for len(vm.frames) > 0 {
		frame := vm.frames[len(vm.frames)-1]
		for len(frame.handlers) > 0 {
			h := &frame.handlers[len(frame.handlers)-1]
			if !h.inCatch && h.catchPC != code.TryNone {
				vm.sp = h.sp
				vm.push(err)
				frame.ip = h.catchPC
				h.inCatch = true
				return true
			}
			done := *h
			frame.handlers = frame.handlers[:len(frame.handlers)-1]
			vm.pendings = vm.pendings[:done.pendingBase]
			if done.finallyPC != code.TryNone {
				vm.sp = done.sp
				vm.pendings = append(vm.pendings, err)
				frame.ip = done.finallyPC
				return true
			}
		}
		vm.popFrame()
	}
	return false
}

func (vm *VM) popFrame() *Frame {
	frame := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.sp = frame.stackBase
	vm.pendings = vm.pendings[:frame.pendingBase]
	return frame
}

// prepareLocals binds arguments into a fresh locals slice. Slots for omitted
// defaulted parameters stay nil; the function's prologue fills them.
func (vm *VM) prepareLocals(cl *object.Closure, receiver *object.Instance, args []object.Object, pos ast.Pos) ([]object.Object, *object.ErrorObject) {
	fn := cl.Fn
	maxPositional := fn.NumParams
	if fn.Variadic {
		maxPositional--
	}
	if len(args) < fn.Required {
		return nil, object.NewError(object.ArityError, pos,
			"%s expects at least %d argument(s), got %d", fnLabel(fn), fn.Required, len(args))
	}
	if !fn.Variadic && len(args) > maxPositional {
		return nil, object.NewError(object.ArityError, pos,
			"%s expects at most %d argument(s), got %d", fnLabel(fn), maxPositional, len(args))
	}

	locals := make([]object.Object, fn.NumLocals)
	base := 0
	if fn.IsMethod {
		locals[0] = receiver
		base = 1
	}
	for i := 0; i < maxPositional && i < len(args); i++ {
		locals[base+i] = args[i]
	}
	if fn.Variadic {
		rest := &object.Array{Elements: []object.Object{}}
		if len(args) > maxPositional {
			rest.Elements = append(rest.Elements, args[maxPositional:]...)
		}
		locals[base+maxPositional] = rest
	}
	return locals, nil
}

func fnLabel(fn *object.CompiledFunction) string {
	if fn.Name != "" {
		return fmt.Sprintf("`%s`", fn.Name)
	}
	return "function"
}

func (vm *VM) pushFrame(cl *object.Closure, receiver *object.Instance, args []object.Object, discard bool, pos ast.Pos) *object.ErrorObject {
	locals, err := vm.prepareLocals(cl, receiver, args, pos)
	if err != nil {
		return err
	}
	slog.Debug("calling function", slog.String("name", cl.Fn.Name), slog.Int("args", len(args)))
	vm.frames = append(vm.frames, &Frame{
		closure:       cl,
		locals:        locals,
		stackBase:     vm.sp,
		pendingBase:   len(vm.pendings),
		discardResult: discard,
		callPos:       pos,
	})
	return nil
}

// spawnClosure runs an async closure on its own fiber; arity failures reject
// the task rather than throwing at the call site.
func (vm *VM) spawnClosure(cl *object.Closure, receiver *object.Instance, args []object.Object, pos ast.Pos) object.Object {
	return vm.loop.Spawn(cl.Fn.Name, func(f *sched.Fiber) (object.Object, *object.ErrorObject) {
		child := vm.fork(f)
		if err := child.pushFrame(cl, receiver, args, false, pos); err != nil {
			return nil, child.fail(err)
		}
		return child.run()
	})
}

func (vm *VM) run() (object.Object, *object.ErrorObject) {
	for {
		frame := vm.frames[len(vm.frames)-1]
		fn := frame.closure.Fn
		ins := fn.Instructions
		opStart := frame.ip
		op := code.Opcode(ins[frame.ip])
		frame.ip++

		var raised *object.ErrorObject

		switch op {

		case code.OpConstant:
			idx := int(code.ReadUint16(ins[frame.ip:]))
			frame.ip += 2
			vm.push(fn.Constants[idx])

		case code.OpPop:
			vm.pop()

		case code.OpDup:
			vm.push(vm.peek())

		case code.OpNull:
			vm.push(object.NIL)

		case code.OpTrue:
			vm.push(object.TRUE)

		case code.OpFalse:
			vm.push(object.FALSE)

		case code.OpArray:
			n := int(code.ReadUint16(ins[frame.ip:]))
			frame.ip += 2
			elements := make([]object.Object, n)
			copy(elements, vm.stack[vm.sp-n:vm.sp])
			vm.sp -= n
			vm.push(&object.Array{Elements: elements})

		case code.OpObject:
			n := int(code.ReadUint16(ins[frame.ip:]))
			frame.ip += 2
			m := object.NewMap()
			base := vm.sp - 2*n
			for i := 0; i < n; i++ {
				key := vm.stack[base+2*i].(*object.String).Value
				m.Set(key, vm.stack[base+2*i+1])
			}
			vm.sp = base
			vm.push(m)

		case code.OpBinary:
			opIdx := int(ins[frame.ip])
			frame.ip++
			right := vm.pop()
			left := vm.pop()
			result := object.BinaryOp(code.BinaryOps[opIdx], left, right, fn.PosAt(opStart))
			if err, ok := result.(*object.ErrorObject); ok {
				raised = err
				break
			}
			vm.push(result)

		case code.OpUnary:
			opIdx := int(ins[frame.ip])
			frame.ip++
			right := vm.pop()
			result := object.UnaryOp(code.UnaryOps[opIdx], right, fn.PosAt(opStart))
			if err, ok := result.(*object.ErrorObject); ok {
				raised = err
				break
			}
			vm.push(result)

		case code.OpJump:
			frame.ip = int(code.ReadUint16(ins[frame.ip:]))

		case code.OpJumpIfFalse:
			target := int(code.ReadUint16(ins[frame.ip:]))
			frame.ip += 2
			if !object.Truthy(vm.pop()) {
				frame.ip = target
			}

		case code.OpJumpIfFalseKeep:
			target := int(code.ReadUint16(ins[frame.ip:]))
			frame.ip += 2
			if !object.Truthy(vm.peek()) {
				frame.ip = target
			}

		case code.OpJumpIfTrueKeep:
			target := int(code.ReadUint16(ins[frame.ip:]))
			frame.ip += 2
			if object.Truthy(vm.peek()) {
				frame.ip = target
			}

		case code.OpGetGlobal:
			idx := int(code.ReadUint16(ins[frame.ip:]))
			frame.ip += 2
			value := vm.globals[idx]
			if value == nil {
				raised = object.NewError(object.UnresolvedNameError, fn.PosAt(opStart),
					"binding is used before its definition runs")
				break
			}
			vm.push(value)

		case code.OpSetGlobal:
			idx := int(code.ReadUint16(ins[frame.ip:]))
			frame.ip += 2
			vm.globals[idx] = vm.pop()

		case code.OpGetLocal:
			idx := int(ins[frame.ip])
			frame.ip++
			value := frame.locals[idx]
			if value == nil {
				raised = object.NewError(object.UnresolvedNameError, fn.PosAt(opStart),
					"binding is used before its definition runs")
				break
			}
			vm.push(value)

		case code.OpSetLocal:
			idx := int(ins[frame.ip])
			frame.ip++
			frame.locals[idx] = vm.pop()

		case code.OpGetFree:
			idx := int(ins[frame.ip])
			frame.ip++
			vm.push(*frame.closure.Free[idx].Ref)

		case code.OpSetFree:
			idx := int(ins[frame.ip])
			frame.ip++
			*frame.closure.Free[idx].Ref = vm.pop()

		case code.OpGetFreeCell:
			idx := int(ins[frame.ip])
			frame.ip++
			vm.push(frame.closure.Free[idx])

		case code.OpMakeCell:
			slot := int(ins[frame.ip])
			frame.ip += 2 // second operand reserved
			vm.push(object.NewCell(&frame.locals[slot]))

		case code.OpClosure:
			constIdx := int(code.ReadUint16(ins[frame.ip:]))
			numFree := int(ins[frame.ip+2])
			frame.ip += 3
			compiled := fn.Constants[constIdx].(*object.CompiledFunction)
			free := make([]*object.Cell, numFree)
			for i := 0; i < numFree; i++ {
				free[i] = vm.stack[vm.sp-numFree+i].(*object.Cell)
			}
			vm.sp -= numFree
			vm.push(&object.Closure{Fn: compiled, Free: free})

		case code.OpCall:
			argc := int(ins[frame.ip])
			frame.ip++
			raised = vm.opCall(argc, fn.PosAt(opStart))

		case code.OpReturn:
			result := vm.pop()
			finished := vm.popFrame()
			if len(vm.frames) == 0 {
				return result, nil
			}
			if !finished.discardResult {
				vm.push(result)
			}

		case code.OpDefault:
			slot := int(ins[frame.ip])
			target := int(code.ReadUint16(ins[frame.ip+1:]))
			frame.ip += 3
			if frame.locals[slot] != nil {
				frame.ip = target
			}

		case code.OpIndex:
			index := vm.pop()
			left := vm.pop()
			result := object.Index(left, index, fn.PosAt(opStart))
			if err, ok := result.(*object.ErrorObject); ok {
				raised = err
				break
			}
			vm.push(result)

		case code.OpSetIndex:
			value := vm.pop()
			index := vm.pop()
			left := vm.pop()
			result := object.SetIndex(left, index, value, fn.PosAt(opStart))
			if err, ok := result.(*object.ErrorObject); ok {
				raised = err
				break
			}
			vm.push(result)

		case code.OpGetMember:
			nameIdx := int(code.ReadUint16(ins[frame.ip:]))
			frame.ip += 2
			name := fn.Constants[nameIdx].(*object.String).Value
			obj := vm.pop()
			var result object.Object
			if task, ok := obj.(*sched.Task); ok {
				result = taskMember(task, name, fn.PosAt(opStart))
			} else {
				result = object.GetMember(obj, name, fn.PosAt(opStart))
			}
			if err, ok := result.(*object.ErrorObject); ok {
				raised = err
				break
			}
			vm.push(result)

		case code.OpSetMember:
			nameIdx := int(code.ReadUint16(ins[frame.ip:]))
			frame.ip += 2
			name := fn.Constants[nameIdx].(*object.String).Value
			value := vm.pop()
			obj := vm.pop()
			result := object.SetMember(obj, name, value, fn.PosAt(opStart))
			if err, ok := result.(*object.ErrorObject); ok {
				raised = err
				break
			}
			vm.push(result)

		case code.OpGetIter:
			value := vm.pop()
			result := object.NewIterator(value, fn.PosAt(opStart))
			if err, ok := result.(*object.ErrorObject); ok {
				raised = err
				break
			}
			vm.push(result)

		case code.OpIterNext:
			target := int(code.ReadUint16(ins[frame.ip:]))
			frame.ip += 2
			it := vm.peek().(*object.Iterator)
			item, ok := it.Next()
			if ok {
				vm.push(item)
			} else {
				frame.ip = target
			}

		case code.OpThrow:
			value := vm.pop()
			raised = object.NewThrown(value, fn.PosAt(opStart))

		case code.OpTryBegin:
			catchPC := int(code.ReadUint16(ins[frame.ip:]))
			finallyPC := int(code.ReadUint16(ins[frame.ip+2:]))
			frame.ip += 4
			frame.handlers = append(frame.handlers, handler{
				catchPC:     catchPC,
				finallyPC:   finallyPC,
				sp:          vm.sp,
				pendingBase: len(vm.pendings),
			})

		case code.OpTryEnd:
			h := frame.handlers[len(frame.handlers)-1]
			frame.handlers = frame.handlers[:len(frame.handlers)-1]
			vm.pendings = vm.pendings[:h.pendingBase]

		case code.OpRethrow:
			raised = vm.pendings[len(vm.pendings)-1]
			vm.pendings = vm.pendings[:len(vm.pendings)-1]

		case code.OpRaise:
			kindIdx := int(ins[frame.ip])
			msgIdx := int(code.ReadUint16(ins[frame.ip+1:]))
			frame.ip += 3
			raised = object.NewError(
				object.ErrorKind(code.RaiseKinds[kindIdx]),
				fn.PosAt(opStart),
				"%s", fn.Constants[msgIdx].(*object.String).Value)

		case code.OpMakeClass:
			nameIdx := int(code.ReadUint16(ins[frame.ip:]))
			methodCount := int(ins[frame.ip+2])
			frame.ip += 3
			raised = vm.opMakeClass(fn.Constants[nameIdx].(*object.String).Value, methodCount, fn.PosAt(opStart))

		case code.OpNew:
			argc := int(ins[frame.ip])
			frame.ip++
			raised = vm.opNew(argc, fn.PosAt(opStart))

		case code.OpGetSuper:
			nameIdx := int(code.ReadUint16(ins[frame.ip:]))
			frame.ip += 2
			raised = vm.opGetSuper(fn.Constants[nameIdx].(*object.String).Value, fn.PosAt(opStart))

		case code.OpAwait:
			value := vm.pop()
			task, ok := value.(*sched.Task)
			if !ok {
				raised = object.NewError(object.TypeError, fn.PosAt(opStart),
					"await expects a task, got %s", object.TypeName(value))
				break
			}
			result, err := vm.loop.Await(vm.fiber, task, fn.PosAt(opStart))
			if err != nil {
				// Rejection propagates as a throw at the await site.
				raised = err
				break
			}
			vm.push(result)

		default:
			raised = object.NewError(object.TypeError, fn.PosAt(opStart), "unknown opcode %d", op)
		}

		if raised != nil {
			if !vm.raise(raised) {
				return nil, raised
			}
		}
	}
}

func (vm *VM) opCall(argc int, pos ast.Pos) *object.ErrorObject {
	calleeSlot := vm.sp - argc - 1
	callee := vm.stack[calleeSlot]
	args := make([]object.Object, argc)
	copy(args, vm.stack[vm.sp-argc:vm.sp])

	switch callee := callee.(type) {
	case *object.Closure:
		vm.sp = calleeSlot
		if callee.Fn.IsAsync {
			vm.push(vm.spawnClosure(callee, nil, args, pos))
			return nil
		}
		return vm.pushFrame(callee, nil, args, false, pos)
	case *object.BoundMethod:
		cl, ok := callee.Method.(*object.Closure)
		if !ok {
			return object.NewError(object.TypeError, pos, "method is not callable in this engine")
		}
		vm.sp = calleeSlot
		if cl.Fn.IsAsync {
			vm.push(vm.spawnClosure(cl, callee.Receiver, args, pos))
			return nil
		}
		return vm.pushFrame(cl, callee.Receiver, args, false, pos)
	case *object.Builtin:
		vm.sp = calleeSlot
		result := callee.Fn(pos, args...)
		if err, ok := result.(*object.ErrorObject); ok {
			return err
		}
		vm.push(result)
		return nil
	case *object.Class:
		vm.sp = calleeSlot
		return vm.instantiate(callee, args, pos)
	default:
		return object.NewError(object.TypeError, pos, "%s is not callable", object.TypeName(callee))
	}
}

func (vm *VM) opNew(argc int, pos ast.Pos) *object.ErrorObject {
	calleeSlot := vm.sp - argc - 1
	callee := vm.stack[calleeSlot]
	args := make([]object.Object, argc)
	copy(args, vm.stack[vm.sp-argc:vm.sp])
	vm.sp = calleeSlot

	cls, ok := callee.(*object.Class)
	if !ok {
		return object.NewError(object.TypeError, pos, "%s is not a class", object.TypeName(callee))
	}
	return vm.instantiate(cls, args, pos)
}

// instantiate pushes the new instance and, when an __init__ exists, runs it
// above the instance with its result discarded.
func (vm *VM) instantiate(cls *object.Class, args []object.Object, pos ast.Pos) *object.ErrorObject {
	instance := &object.Instance{Class: cls, Fields: object.NewMap()}
	method, _, found := cls.ResolveMethod("__init__")
	if !found {
		if len(args) > 0 {
			return object.NewError(object.ArityError, pos,
				"`%s` has no __init__ but was given %d argument(s)", cls.Name, len(args))
		}
		vm.push(instance)
		return nil
	}
	init, ok := method.(*object.Closure)
	if !ok {
		return object.NewError(object.TypeError, pos, "constructor is not callable in this engine")
	}
	vm.push(instance)
	if init.Fn.IsAsync {
		vm.spawnClosure(init, instance, args, pos)
		return nil
	}
	return vm.pushFrame(init, instance, args, true, pos)
}

func (vm *VM) opMakeClass(name string, methodCount int, pos ast.Pos) *object.ErrorObject {
	methods := make([]object.Object, methodCount)
	copy(methods, vm.stack[vm.sp-methodCount:vm.sp])
	vm.sp -= methodCount
	baseValue := vm.pop()

	class := &object.Class{Name: name, Methods: make(map[string]object.Object)}
	switch base := baseValue.(type) {
	case *object.Null:
	case *object.Class:
		class.Base = base
	default:
		return object.NewError(object.TypeError, pos, "%s is not a class", object.TypeName(baseValue))
	}
	for _, m := range methods {
		cl := m.(*object.Closure)
		cl.Owner = class
		class.Methods[cl.Fn.Name] = cl
	}
	vm.push(class)
	return nil
}

func (vm *VM) opGetSuper(name string, pos ast.Pos) *object.ErrorObject {
	receiver := vm.pop()
	frame := vm.frames[len(vm.frames)-1]
	owner := frame.closure.Owner
	if owner == nil {
		return object.NewError(object.TypeError, pos, "`super` used outside a method")
	}
	if owner.Base == nil {
		return object.NewError(object.TypeError, pos, "class `%s` has no base class", owner.Name)
	}
	method, foundIn, found := owner.Base.ResolveMethod(name)
	if !found {
		return object.NewError(object.KeyNotFoundError, pos,
			"base class `%s` has no method `%s`", owner.Base.Name, name)
	}
	vm.push(&object.BoundMethod{Receiver: receiver.(*object.Instance), Method: method, Owner: foundIn})
	return nil
}

// taskMember mirrors the introspection surface tasks expose in the
// tree-walking engine.
func taskMember(task *sched.Task, name string, pos ast.Pos) object.Object {
	switch name {
	case "state":
		return &object.String{Value: task.State().String()}
	case "cancelled":
		return object.NativeBoolToBooleanObject(task.Cancelled())
	}
	return object.NewError(object.KeyNotFoundError, pos, "task has no member `%s`", name)
}
