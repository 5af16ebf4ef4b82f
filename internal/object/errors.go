package object

import (
	"bytes"
	"fmt"

	"hexza/internal/ast"
)

type ErrorKind string

const (
	UnresolvedNameError   ErrorKind = "UnresolvedNameError"
	ImmutableBindingError ErrorKind = "ImmutableBindingError"
	TypeError             ErrorKind = "TypeError"
	ArityError            ErrorKind = "ArityError"
	IndexOutOfRangeError  ErrorKind = "IndexOutOfRangeError"
	KeyNotFoundError      ErrorKind = "KeyNotFoundError"
	DivisionByZeroError   ErrorKind = "DivisionByZeroError"
	CancellationError     ErrorKind = "CancellationError"
	ForeignCallError      ErrorKind = "ForeignCallError"
	UncaughtError         ErrorKind = "UncaughtError"

	// ThrownError marks a user `throw`; the thrown value rides in Payload.
	ThrownError ErrorKind = "ThrownError"
)

// StackFrame is one entry of the call-stack snapshot taken at the throw
// site.
type StackFrame struct {
	Function string
	Pos      ast.Pos
}

func (sf StackFrame) String() string {
	name := sf.Function
	if name == "" {
		name = "<anonymous>"
	}
	return fmt.Sprintf("  at %s (%s)", name, sf.Pos)
}

// ErrorObject is the uniform runtime error value. It propagates through
// both engines as an ordinary Object and is catchable by try/catch.
type ErrorObject struct {
	Kind    ErrorKind
	Message string
	Payload Object // the thrown value for ThrownError, nil otherwise
	Pos     ast.Pos
	Stack   []StackFrame
	Cause   *ErrorObject
}

func (e *ErrorObject) Type() ObjectType { return ERROR_OBJ }

func (e *ErrorObject) Inspect() string {
	if e.Payload != nil {
		return e.Payload.Inspect()
	}
	return string(e.Kind) + ": " + e.Message
}

// Error lets an ErrorObject cross the host boundary as a Go error.
func (e *ErrorObject) Error() string {
	var out bytes.Buffer
	out.WriteString(e.Inspect())
	if e.Pos.Line > 0 {
		out.WriteString(" at " + e.Pos.String())
	}
	for _, frame := range e.Stack {
		out.WriteString("\n" + frame.String())
	}
	if e.Cause != nil {
		out.WriteString("\ncaused by: " + e.Cause.Error())
	}
	return out.String()
}

func NewError(kind ErrorKind, pos ast.Pos, format string, a ...any) *ErrorObject {
	return &ErrorObject{
		Kind:    kind,
		Message: fmt.Sprintf(format, a...),
		Pos:     pos,
	}
}

// NewThrown wraps a user-thrown value. Rethrowing an existing ErrorObject
// keeps it intact so catch sees the same value.
func NewThrown(value Object, pos ast.Pos) *ErrorObject {
	if err, ok := value.(*ErrorObject); ok {
		return err
	}
	return &ErrorObject{
		Kind:    ThrownError,
		Message: value.Inspect(),
		Payload: value,
		Pos:     pos,
	}
}

// Uncaught marks an error that escaped the outermost frame. Already-wrapped
// errors pass through so kinds are not stacked.
func Uncaught(err *ErrorObject) *ErrorObject {
	if err.Kind == UncaughtError {
		return err
	}
	return &ErrorObject{
		Kind:    UncaughtError,
		Message: err.Inspect(),
		Payload: err.Payload,
		Pos:     err.Pos,
		Stack:   err.Stack,
		Cause:   err,
	}
}

func IsError(o Object) bool {
	if o == nil {
		return false
	}
	_, ok := o.(*ErrorObject)
	return ok
}
