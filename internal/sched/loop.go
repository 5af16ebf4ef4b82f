package sched

import (
	"container/heap"
	"log/slog"
	"time"

	"hexza/internal/ast"
	"hexza/internal/object"
)

// The loop is single-threaded in the cooperative sense: fibers are backed by
// goroutines, but control is handed over explicitly through channels so
// exactly one fiber (or the loop itself) runs at any moment. Channel
// handoffs give the necessary happens-before edges, so shared runtime state
// needs no locking.

type resume struct {
	value object.Object
	err   *object.ErrorObject
}

// Fiber is a resumable continuation: a goroutine parked on its in channel
// until the loop dispatches it.
type Fiber struct {
	loop *Loop
	in   chan resume
	name string
}

func (f *Fiber) Name() string { return f.name }

// yield parks the fiber and hands control back to the loop. It returns the
// value the fiber is eventually resumed with.
func (f *Fiber) yield() resume {
	f.loop.park <- struct{}{}
	return <-f.in
}

type entry struct {
	fiber *Fiber
	r     resume
}

type timerEntry struct {
	deadline time.Time
	seq      uint64
	task     *Task
}

type timerQueue []*timerEntry

func (q timerQueue) Len() int { return len(q) }
func (q timerQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].seq < q[j].seq
	}
	return q[i].deadline.Before(q[j].deadline)
}
func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *timerQueue) Push(x any)   { *q = append(*q, x.(*timerEntry)) }
func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Loop drives all fibers of one run. Ready fibers resume in enqueue order;
// timers fire by deadline with ties broken by creation order.
type Loop struct {
	ready  []entry
	timers timerQueue
	seq    uint64
	park   chan struct{}
}

func NewLoop() *Loop {
	return &Loop{park: make(chan struct{})}
}

func (l *Loop) enqueue(f *Fiber, r resume) {
	l.ready = append(l.ready, entry{fiber: f, r: r})
}

// Spawn registers fn as a new fiber and returns the Task that will carry its
// result. The body starts on the current tick, after already-ready fibers.
func (l *Loop) Spawn(name string, fn func(*Fiber) (object.Object, *object.ErrorObject)) *Task {
	task := &Task{loop: l}
	fiber := &Fiber{loop: l, in: make(chan resume), name: name}
	go func() {
		<-fiber.in
		value, err := fn(fiber)
		if err != nil {
			task.Reject(err)
		} else {
			if value == nil {
				value = object.NIL
			}
			task.Resolve(value)
		}
		l.park <- struct{}{}
	}()
	l.enqueue(fiber, resume{})
	slog.Debug("fiber spawned", slog.String("name", name))
	return task
}

// Await suspends the fiber until the task settles. A settled task resumes
// immediately without yielding; a rejection surfaces as the returned error.
func (l *Loop) Await(f *Fiber, t *Task, pos ast.Pos) (object.Object, *object.ErrorObject) {
	switch t.state {
	case Resolved:
		return t.result, nil
	case Rejected:
		return nil, t.err
	}
	t.waiters = append(t.waiters, f)
	slog.Debug("fiber awaiting", slog.String("name", f.name))
	r := f.yield()
	return r.value, r.err
}

// NewTimer returns a task that resolves to null once d has elapsed, ordered
// after earlier timers with the same deadline.
func (l *Loop) NewTimer(d time.Duration) *Task {
	task := &Task{loop: l}
	l.seq++
	heap.Push(&l.timers, &timerEntry{
		deadline: time.Now().Add(d),
		seq:      l.seq,
		task:     task,
	})
	return task
}

// Main runs fn as the root fiber and drives the loop until every fiber has
// settled or nothing can make progress.
func (l *Loop) Main(name string, fn func(*Fiber) (object.Object, *object.ErrorObject)) (object.Object, *object.ErrorObject) {
	root := l.Spawn(name, fn)
	l.run()
	switch root.state {
	case Resolved:
		return root.result, nil
	case Rejected:
		return nil, root.err
	}
	// Every queue is empty but the root never settled: the program awaited
	// a task nothing will resolve.
	return nil, object.NewError(object.UncaughtError, ast.Pos{}, "program stalled: awaited task never settles")
}

func (l *Loop) run() {
	for {
		for len(l.ready) > 0 {
			e := l.ready[0]
			l.ready = l.ready[1:]
			e.fiber.in <- e.r
			<-l.park
		}
		if l.timers.Len() == 0 {
			return
		}
		te := heap.Pop(&l.timers).(*timerEntry)
		if d := time.Until(te.deadline); d > 0 {
			time.Sleep(d)
		}
		if te.task.state == Pending {
			te.task.Resolve(object.NIL)
		}
	}
}
