package forkjoin

// Task is a schedulable unit of work: a resume dispatcher plus the state its
// closure captures. Construct one with [NewTask]; a Task is single-use, and
// is bound to a frame when forked, called, or submitted.
type Task struct {
	body func(*Scope) Directive
}

// NewTask wraps a task body. The body is invoked once per straight-line
// segment: each invocation must inspect [Scope.Step] to select the segment
// to run, and return the directive for the suspension point it reached.
// Step starts at 0 and advances by one every time a returned directive is
// consumed (forks and calls advance when the child has been scheduled,
// joins when the join completes).
//
// Bodies signal failure by panicking; see the package documentation.
func NewTask(body func(*Scope) Directive) *Task {
	return &Task{body: body}
}

// directiveKind discriminates the suspension points a task body can reach.
type directiveKind uint8

const (
	directiveInvalid directiveKind = iota
	directiveFork
	directiveCall
	directiveJoin
	directiveReturn
)

// Directive is the opaque result of a task body segment, describing the
// suspension point the segment ended at. Obtain one only from the methods of
// the [Scope] passed to the body.
type Directive struct {
	kind  directiveKind
	child *Task
}

// Scope is a task body's view of its own frame and of the worker currently
// executing it. A Scope is only valid inside the body invocation it was
// passed to; do not retain it across segments.
type Scope struct {
	f *frame
	w *workerContext
}

// Step returns the index of the segment to execute, starting at 0.
func (s *Scope) Step() int {
	return int(s.f.step)
}

// Worker returns the index of the worker executing the current segment.
// Segments of one task may run on different workers; the value is
// informational (diagnostics, tests).
func (s *Scope) Worker() int {
	return s.w.index
}

// Fork schedules child as an asynchronous task and ends the segment. The
// runtime pushes the current task onto the worker's deque, making it
// stealable, and runs the child directly (child-first). The child's results
// become visible to the parent only after a matching [Scope.Join].
//
// Every fork must be matched by exactly one join before the body returns.
func (s *Scope) Fork(child *Task) Directive {
	if child == nil {
		panic("forkjoin: fork of nil task")
	}
	return Directive{kind: directiveFork, child: child}
}

// Call invokes child synchronously and ends the segment. The parent is not
// made stealable; the child (and its entire task tree) completes before the
// next segment runs.
func (s *Scope) Call(child *Task) Directive {
	if child == nil {
		panic("forkjoin: call of nil task")
	}
	return Directive{kind: directiveCall, child: child}
}

// Join ends the segment, suspending until every child forked by this task
// since the previous join has completed. If no fork is outstanding the
// suspension is a no-op. A failure captured from any child is surfaced here,
// after all children have joined.
func (s *Scope) Join() Directive {
	return Directive{kind: directiveJoin}
}

// Return ends the segment and completes the task. The body must have written
// its result (if any) before returning this directive; the write is
// published to the joining parent by the completion protocol.
func (s *Scope) Return() Directive {
	return Directive{kind: directiveReturn}
}
