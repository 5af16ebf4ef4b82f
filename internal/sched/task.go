package sched

import (
	"hexza/internal/ast"
	"hexza/internal/object"
)

type TaskState int

const (
	Pending TaskState = iota
	Resolved
	Rejected
)

func (s TaskState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Task is the first-class handle to an asynchronous computation. It settles
// exactly once; waiters registered before settlement are scheduled in
// registration order.
type Task struct {
	loop      *Loop
	state     TaskState
	result    object.Object
	err       *object.ErrorObject
	waiters   []*Fiber
	cancelled bool
}

func (t *Task) Type() object.ObjectType { return object.TASK_OBJ }
func (t *Task) Inspect() string         { return "<task " + t.state.String() + ">" }

func (t *Task) State() TaskState         { return t.state }
func (t *Task) Result() object.Object    { return t.result }
func (t *Task) Err() *object.ErrorObject { return t.err }
func (t *Task) Cancelled() bool          { return t.cancelled }

func (t *Task) Resolve(value object.Object) {
	if t.state != Pending {
		return
	}
	t.state = Resolved
	t.result = value
	t.settle()
}

func (t *Task) Reject(err *object.ErrorObject) {
	if t.state != Pending {
		return
	}
	t.state = Rejected
	t.err = err
	t.settle()
}

// Cancel rejects a pending task with a CancellationError. Settled tasks are
// unaffected.
func (t *Task) Cancel(pos ast.Pos) bool {
	if t.state != Pending {
		return false
	}
	t.cancelled = true
	t.Reject(object.NewError(object.CancellationError, pos, "task cancelled"))
	return true
}

func (t *Task) settle() {
	r := resume{value: t.result, err: t.err}
	if t.state == Resolved && t.result == nil {
		r.value = object.NIL
	}
	for _, w := range t.waiters {
		t.loop.enqueue(w, r)
	}
	t.waiters = nil
}
